package kv

import (
	"github.com/google/uuid"

	"github.com/dd0wney/cluso-kvclient/pkg/auth"
	"github.com/dd0wney/cluso-kvclient/pkg/config"
	"github.com/dd0wney/cluso-kvclient/pkg/pool"
	"github.com/dd0wney/cluso-kvclient/pkg/transport"
)

// FromConfig maps a loaded configuration onto client options. A
// non-empty auth secret wires a token manager into the dialer so every
// handshake carries a signed token.
func FromConfig(cfg *config.Config) (Options, error) {
	opts := Options{
		Seeds:        cfg.Cluster.Seeds,
		TopologyTTL:  cfg.Cluster.TopologyTTL.Std(),
		FetchTimeout: cfg.Cluster.FetchTimeout.Std(),
		MaxRedirects: cfg.Executor.MaxRedirects,
		Workers:      cfg.Executor.Workers,
		NodeTimeout:  cfg.Executor.NodeTimeout.Std(),
		Pool: pool.Config{
			MaxPerNode:     cfg.Pool.MaxPerNode,
			MaxIdlePerNode: cfg.Pool.MaxIdlePerNode,
			MinIdlePerNode: cfg.Pool.MinIdlePerNode,
			IdleTimeout:    cfg.Pool.IdleTimeout.Std(),
			TestOnBorrow:   cfg.Pool.TestOnBorrow,
		},
		DialerConfig: transport.DialerConfig{
			ClientID:       cfg.Transport.ClientID,
			ConnectTimeout: cfg.Transport.ConnectTimeout.Std(),
			Compression:    cfg.Transport.Compression,
		},
		Protocol: cfg.Transport.Protocol,
	}

	if cfg.Auth.Secret != "" {
		clientID := opts.DialerConfig.ClientID
		if clientID == "" {
			clientID = "kvclient-" + uuid.New().String()
			opts.DialerConfig.ClientID = clientID
		}
		tokens, err := auth.NewTokenManager(cfg.Auth.Secret, clientID, cfg.Auth.TokenTTL.Std())
		if err != nil {
			return Options{}, err
		}
		opts.DialerConfig.Tokens = tokens
	}

	return opts, nil
}
