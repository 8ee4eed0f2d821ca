package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dd0wney/cluso-kvclient/pkg/journal"
)

// handleJournalCommand queries the durable Postgres journal
func handleJournalCommand(args []string) {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	databaseURL := fs.String("database-url", os.Getenv("KVCLIENT_DATABASE_URL"), "Postgres URL of the journal store")
	eventType := fs.String("type", "", "Filter by event type")
	limit := fs.Int("limit", 50, "Maximum events to list")
	id := fs.String("id", "", "Show a single event by id")
	fs.Parse(args)

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "Error: Provide --database-url or set KVCLIENT_DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sink, err := journal.NewPGSink(ctx, *databaseURL)
	if err != nil {
		fail(err)
	}
	defer sink.Close()

	if *id != "" {
		event, err := sink.Get(ctx, *id)
		if err != nil {
			fail(err)
		}
		printEvent(event)
		return
	}

	events, err := sink.List(ctx, journal.EventType(*eventType), *limit)
	if err != nil {
		fail(err)
	}

	fmt.Println("=== Journal Events ===")
	fmt.Println()
	if len(events) == 0 {
		fmt.Println("No events recorded.")
		return
	}

	fmt.Printf("  %-20s %-18s %-22s %s\n", "TIME", "TYPE", "NODE", "DETAIL")
	for _, event := range events {
		node := event.Node
		if node == "" {
			node = "-"
		}
		fmt.Printf("  %-20s %-18s %-22s %s\n",
			event.Timestamp.Format("2006-01-02 15:04:05"),
			event.Type, node, event.Detail)
	}
	fmt.Println()
	fmt.Printf("%d events. Use --id=<id> for full detail.\n", len(events))
}

func printEvent(event *journal.Event) {
	fmt.Println("=== Journal Event ===")
	fmt.Println()
	fmt.Printf("ID:        %s\n", event.ID)
	fmt.Printf("Timestamp: %s\n", event.Timestamp.Format(time.RFC3339))
	fmt.Printf("Type:      %s\n", event.Type)
	if event.Node != "" {
		fmt.Printf("Node:      %s\n", event.Node)
	}
	if event.Version != 0 {
		fmt.Printf("Version:   %d\n", event.Version)
	}
	if event.Nodes != 0 {
		fmt.Printf("Nodes:     %d\n", event.Nodes)
	}
	if event.Detail != "" {
		fmt.Printf("Detail:    %s\n", event.Detail)
	}
}
