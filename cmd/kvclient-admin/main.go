package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "topology":
		handleTopologyCommand(os.Args[2:])
	case "coverage":
		handleCoverageCommand(os.Args[2:])
	case "refresh":
		handleRefreshCommand(os.Args[2:])
	case "ping":
		handlePingCommand(os.Args[2:])
	case "get":
		handleGetCommand(os.Args[2:])
	case "set":
		handleSetCommand(os.Args[2:])
	case "del":
		handleDelCommand(os.Args[2:])
	case "journal":
		handleJournalCommand(os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	case "version", "--version", "-v":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	usage := `KV Client Admin CLI - Cluster inspection and data tools

Usage:
  kvclient-admin <command> [options]

Available Commands:
  topology    Show the cluster topology
  coverage    Show hash slot coverage
  refresh     Force a topology refresh and report the new snapshot
  ping        Measure round trips to cluster nodes
  get         Read a key
  set         Write a key
  del         Delete a key
  journal     Query the durable event journal
  help        Show this help message
  version     Show version information

Cluster Flags (topology, coverage, ping, get, set, del):
  --config PATH   Client config file (default: $KVCLIENT_CONFIG)
  --seeds LIST    Comma-separated seed addresses, overriding the config
  --timeout DUR   Command timeout (default: 10s)

Examples:
  # Show the topology discovered from two seeds
  kvclient-admin topology --seeds=10.0.0.1:7000,10.0.0.2:7000

  # Read a key using a config file
  kvclient-admin get --config=client.yaml user:1

  # List topology swaps recorded in Postgres
  kvclient-admin journal --type=topology_swap --limit=20

Use "kvclient-admin <command> --help" for more information about a command.
`
	fmt.Print(usage)
}

func printVersion() {
	fmt.Println("KV Client Admin CLI v1.0.0")
}
