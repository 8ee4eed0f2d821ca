package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dd0wney/cluso-kvclient/pkg/config"
	"github.com/dd0wney/cluso-kvclient/pkg/kv"
)

// clientOptions holds the flags shared by every cluster command
type clientOptions struct {
	ConfigPath string
	Seeds      string
	Timeout    time.Duration
}

// addClientFlags registers the shared cluster flags on a flag set
func addClientFlags(fs *flag.FlagSet) *clientOptions {
	opts := &clientOptions{}
	fs.StringVar(&opts.ConfigPath, "config", os.Getenv("KVCLIENT_CONFIG"), "Client config file")
	fs.StringVar(&opts.Seeds, "seeds", getEnvOrDefault("KVCLIENT_SEEDS", ""), "Comma-separated seed addresses")
	fs.DurationVar(&opts.Timeout, "timeout", 10*time.Second, "Command timeout")
	return opts
}

// openClient builds a client from the config file and flag overrides
func openClient(opts *clientOptions) (*kv.Client, error) {
	var cfg config.Config
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	} else {
		cfg = config.DefaultConfig()
	}

	if opts.Seeds != "" {
		cfg.Cluster.Seeds = strings.Split(opts.Seeds, ",")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	kvOpts, err := kv.FromConfig(&cfg)
	if err != nil {
		return nil, err
	}
	return kv.Open(kvOpts)
}

// fail prints the error and exits
func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// getEnvOrDefault returns environment variable value or default
func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
