package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
)

// handleTopologyCommand prints the cluster topology
func handleTopologyCommand(args []string) {
	fs := flag.NewFlagSet("topology", flag.ExitOnError)
	opts := addClientFlags(fs)
	fs.Parse(args)

	client, err := openClient(opts)
	if err != nil {
		fail(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	snap, err := client.Provider().Snapshot(ctx)
	if err != nil {
		fail(err)
	}

	fmt.Println("=== Cluster Topology ===")
	fmt.Println()
	fmt.Printf("Version:  %d\n", snap.Version)
	fmt.Printf("Source:   %s\n", snap.Source)
	fmt.Printf("Captured: %s\n", snap.CapturedAt.Format(time.RFC3339))
	fmt.Printf("Nodes:    %d (%d masters, %d replicas)\n",
		snap.Topology.Size(), snap.Topology.MasterCount(), snap.Topology.ReplicaCount())
	fmt.Println()

	fmt.Printf("  %-24s %-22s %-8s %s\n", "ID", "ADDR", "ROLE", "SLOTS")
	for _, node := range snap.Topology.Nodes() {
		detail := formatSlots(node.Slots)
		if node.IsReplica() {
			detail = "-> " + node.MasterID
		}
		fmt.Printf("  %-24s %-22s %-8s %s\n", node.ID, node.Addr, node.Role, detail)
	}
}

// handleCoverageCommand prints hash slot coverage
func handleCoverageCommand(args []string) {
	fs := flag.NewFlagSet("coverage", flag.ExitOnError)
	opts := addClientFlags(fs)
	fs.Parse(args)

	client, err := openClient(opts)
	if err != nil {
		fail(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	topo, err := client.Topology(ctx)
	if err != nil {
		fail(err)
	}

	cov := topo.Coverage()
	percent := float64(cov.Served) / float64(cluster.SlotCount) * 100

	fmt.Println("=== Slot Coverage ===")
	fmt.Println()
	fmt.Printf("Served: %d / %d (%.1f%%)\n", cov.Served, cluster.SlotCount, percent)
	fmt.Println()

	if cov.Full() {
		fmt.Println("✓ All slots served")
		return
	}

	fmt.Printf("✗ %d gaps:\n", len(cov.Gaps))
	for _, gap := range cov.Gaps {
		fmt.Printf("  %s (%d slots)\n", gap, gap.Size())
	}
}

// handleRefreshCommand forces a topology refresh
func handleRefreshCommand(args []string) {
	fs := flag.NewFlagSet("refresh", flag.ExitOnError)
	opts := addClientFlags(fs)
	fs.Parse(args)

	client, err := openClient(opts)
	if err != nil {
		fail(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	start := time.Now()
	snap, err := client.Provider().Refresh(ctx)
	if err != nil {
		fail(err)
	}

	fmt.Printf("✓ Refreshed in %s: version %d, %d nodes from %s\n",
		time.Since(start).Round(time.Millisecond), snap.Version, snap.Topology.Size(), snap.Source)
}

// handlePingCommand measures round trips to arbitrary cluster nodes
func handlePingCommand(args []string) {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	opts := addClientFlags(fs)
	count := fs.Int("count", 3, "Number of pings to send")
	fs.Parse(args)

	client, err := openClient(opts)
	if err != nil {
		fail(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	fmt.Println("=== Ping ===")
	fmt.Println()

	var total time.Duration
	ok := 0
	for i := 0; i < *count; i++ {
		start := time.Now()
		node, err := client.Ping(ctx)
		elapsed := time.Since(start)
		if err != nil {
			fmt.Printf("  %d: error: %v\n", i+1, err)
			continue
		}
		fmt.Printf("  %d: %s in %s\n", i+1, node, elapsed.Round(time.Microsecond))
		total += elapsed
		ok++
	}

	fmt.Println()
	if ok == 0 {
		fail(fmt.Errorf("all %d pings failed", *count))
	}
	fmt.Printf("✓ %d/%d pings succeeded, avg %s\n", ok, *count, (total / time.Duration(ok)).Round(time.Microsecond))
}

func formatSlots(slots []cluster.SlotRange) string {
	if len(slots) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(slots))
	for _, r := range slots {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, ",")
}
