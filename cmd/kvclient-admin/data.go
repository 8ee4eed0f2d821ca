package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

// handleGetCommand reads one key
func handleGetCommand(args []string) {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	opts := addClientFlags(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: kvclient-admin get [options] <key>")
		os.Exit(1)
	}
	key := fs.Arg(0)

	client, err := openClient(opts)
	if err != nil {
		fail(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	value, found, err := client.Get(ctx, key)
	if err != nil {
		fail(err)
	}
	if !found {
		fmt.Fprintf(os.Stderr, "Key not found: %s\n", key)
		os.Exit(1)
	}
	fmt.Println(value)
}

// handleSetCommand writes one key
func handleSetCommand(args []string) {
	fs := flag.NewFlagSet("set", flag.ExitOnError)
	opts := addClientFlags(fs)
	fs.Parse(args)

	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "Usage: kvclient-admin set [options] <key> <value>")
		os.Exit(1)
	}
	key, value := fs.Arg(0), fs.Arg(1)

	client, err := openClient(opts)
	if err != nil {
		fail(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	if err := client.Set(ctx, key, value); err != nil {
		fail(err)
	}

	node, err := client.Route(ctx, key)
	if err == nil {
		fmt.Printf("✓ %s written to %s (%s)\n", key, node.ID, node.Addr)
	} else {
		fmt.Printf("✓ %s written\n", key)
	}
}

// handleDelCommand deletes one key
func handleDelCommand(args []string) {
	fs := flag.NewFlagSet("del", flag.ExitOnError)
	opts := addClientFlags(fs)
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: kvclient-admin del [options] <key>")
		os.Exit(1)
	}
	key := fs.Arg(0)

	client, err := openClient(opts)
	if err != nil {
		fail(err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	removed, err := client.Del(ctx, key)
	if err != nil {
		fail(err)
	}
	if !removed {
		fmt.Fprintf(os.Stderr, "Key not found: %s\n", key)
		os.Exit(1)
	}
	fmt.Printf("✓ %s deleted\n", key)
}
