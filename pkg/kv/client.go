package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
	"github.com/dd0wney/cluso-kvclient/pkg/executor"
	"github.com/dd0wney/cluso-kvclient/pkg/logging"
	"github.com/dd0wney/cluso-kvclient/pkg/pool"
	"github.com/dd0wney/cluso-kvclient/pkg/transport"
)

// Options configures a Client. Zero values fall back to the defaults
// of the underlying packages.
type Options struct {
	// Seeds are the node addresses contacted for initial discovery
	Seeds []string

	// TopologyTTL is how long a topology snapshot stays fresh
	TopologyTTL time.Duration

	// FetchTimeout bounds each per-candidate topology fetch
	FetchTimeout time.Duration

	// MaxRedirects bounds redirect chasing per routed command
	MaxRedirects int

	// Workers sizes the fan-out worker pool
	Workers int

	// NodeTimeout bounds each per-node command attempt
	NodeTimeout time.Duration

	// Pool controls per-node connection pooling
	Pool pool.Config

	// DialerConfig is used to build the default framed TCP dialer.
	// Ignored when Dialer is set.
	DialerConfig transport.DialerConfig

	// Protocol selects the wire transport built from DialerConfig.
	// Empty means framed TCP; zmq and nng need their build tags.
	Protocol string

	// Dialer overrides how node connections are established
	Dialer transport.ConnDialer

	// Source overrides where topology snapshots come from. Defaults
	// to fetching over Dialer connections.
	Source cluster.TopologySource

	// EventSink receives topology lifecycle notifications
	EventSink cluster.EventSink

	// Observer receives redirect and node-error notifications
	Observer executor.Observer

	// Logger replaces the default logger across all components
	Logger logging.Logger
}

// Client is the command surface over a sharded KV cluster. It owns a
// topology provider, per-node connection pools, and the command
// executor, and wires them together so callers only deal in keys and
// values.
//
// Concurrent Safety:
// 1. Safe for concurrent use after Open returns
// 2. Close is idempotent through the executor's closed flag
type Client struct {
	provider *cluster.Provider
	pools    *pool.Provider
	exec     *executor.Executor
	logger   logging.Logger
}

// topologySink prunes stale node pools on every swap before handing
// the notification to the caller's sink.
type topologySink struct {
	pools *pool.Provider
	next  cluster.EventSink
}

func (s *topologySink) TopologySwapped(prev, next *cluster.Snapshot) {
	s.pools.Prune(next.Topology)
	if s.next != nil {
		s.next.TopologySwapped(prev, next)
	}
}

func (s *topologySink) TopologyRefreshFailed(err error) {
	if s.next != nil {
		s.next.TopologyRefreshFailed(err)
	}
}

// Open builds a client from options. It does not contact the cluster;
// the first command or an explicit Refresh triggers discovery.
func Open(opts Options) (*Client, error) {
	seeds, err := cluster.ParseNodeAddresses(opts.Seeds)
	if err != nil {
		return nil, fmt.Errorf("invalid seeds: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	dialer := opts.Dialer
	if dialer == nil {
		switch opts.Protocol {
		case "", transport.ProtocolTCP:
			d := transport.NewDialer(opts.DialerConfig)
			if opts.Logger != nil {
				d.SetLogger(opts.Logger.With(logging.Component("transport")))
			}
			dialer = d
		default:
			d, err := transport.NewProtocolDialer(opts.Protocol, opts.DialerConfig)
			if err != nil {
				return nil, err
			}
			dialer = d
		}
	}

	source := opts.Source
	if source == nil {
		source = transport.NewSource(dialer)
	}

	provider, err := cluster.NewProvider(source, cluster.ProviderConfig{
		Seeds:        seeds,
		TTL:          opts.TopologyTTL,
		FetchTimeout: opts.FetchTimeout,
	})
	if err != nil {
		return nil, err
	}

	pools := pool.NewProvider(dialer, opts.Pool)
	provider.SetEventSink(&topologySink{pools: pools, next: opts.EventSink})

	exec, err := executor.New(provider, pools, executor.Config{
		MaxRedirects: opts.MaxRedirects,
		Workers:      opts.Workers,
		NodeTimeout:  opts.NodeTimeout,
	})
	if err != nil {
		pools.Close()
		return nil, err
	}
	if opts.Observer != nil {
		exec.SetObserver(opts.Observer)
	}

	if opts.Logger != nil {
		provider.SetLogger(opts.Logger.With(logging.Component("topology")))
		pools.SetLogger(opts.Logger.With(logging.Component("pool")))
		exec.SetLogger(opts.Logger.With(logging.Component("executor")))
	}

	return &Client{
		provider: provider,
		pools:    pools,
		exec:     exec,
		logger:   logger.With(logging.Component("kv")),
	}, nil
}

// Close releases the executor's workers and every pooled connection
func (c *Client) Close() {
	c.exec.Close()
	c.pools.Close()
}

// Refresh forces a topology refresh, bypassing the TTL
func (c *Client) Refresh(ctx context.Context) error {
	return c.exec.Refresh(ctx)
}

// Topology returns the current topology snapshot, refreshing when the
// cached one went stale
func (c *Client) Topology(ctx context.Context) (*cluster.Topology, error) {
	return c.exec.Topology(ctx)
}

// Route resolves the master descriptor serving key's slot
func (c *Client) Route(ctx context.Context, key string) (cluster.NodeDescriptor, error) {
	return c.exec.Route(ctx, []byte(key))
}

// RouteKeys resolves the single master serving every key. Keys hashing
// to different slots are rejected with cluster.ErrCrossSlotKeys.
func (c *Client) RouteKeys(ctx context.Context, keys ...string) (cluster.NodeDescriptor, error) {
	return c.exec.RouteKeys(ctx, byteKeys(keys)...)
}

// WithConn borrows a connection to node for the duration of fn.
// The descriptor is re-resolved against the current topology first,
// so a stale caller still lands on today's address.
func (c *Client) WithConn(ctx context.Context, node cluster.NodeDescriptor, fn func(transport.Conn) error) error {
	if topo, err := c.exec.Topology(ctx); err == nil {
		node = topo.Lookup(node)
	}
	if node.Addr.Host == "" {
		return fmt.Errorf("node %q: %w", node.ID, cluster.ErrNodeNotFound)
	}
	return c.pools.WithConn(ctx, node.Addr, fn)
}

// PoolStats reports per-node connection pool usage
func (c *Client) PoolStats() []pool.Stats {
	return c.pools.Stats()
}

// Provider exposes the topology provider for diagnostics tooling
func (c *Client) Provider() *cluster.Provider {
	return c.provider
}

// Pools exposes the connection pool provider for diagnostics tooling
func (c *Client) Pools() *pool.Provider {
	return c.pools
}

// Executor exposes the command executor for callers that need the
// generic execution surface directly
func (c *Client) Executor() *executor.Executor {
	return c.exec
}

func byteKeys(keys []string) [][]byte {
	bs := make([][]byte, len(keys))
	for i, k := range keys {
		bs[i] = []byte(k)
	}
	return bs
}
