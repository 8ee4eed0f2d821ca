package pool

import (
	"context"
	"sort"
	"sync"
	"time"

	commonspool "github.com/jolestar/go-commons-pool/v2"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
	"github.com/dd0wney/cluso-kvclient/pkg/logging"
	"github.com/dd0wney/cluso-kvclient/pkg/metrics"
	"github.com/dd0wney/cluso-kvclient/pkg/transport"
)

// Config sizes the per-node connection pools
type Config struct {
	// MaxPerNode caps live connections to a single node. Borrows
	// beyond the cap block until a connection is returned or the
	// context expires.
	MaxPerNode int

	// MaxIdlePerNode caps idle connections kept for reuse.
	MaxIdlePerNode int

	// MinIdlePerNode keeps warm connections through idle reaping.
	MinIdlePerNode int

	// IdleTimeout reaps idle connections above MinIdlePerNode after
	// this long. Zero disables reaping.
	IdleTimeout time.Duration

	// TestOnBorrow revalidates a connection's health before handing
	// it out.
	TestOnBorrow bool
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		MaxPerNode:     8,
		MaxIdlePerNode: 8,
		MinIdlePerNode: 0,
		IdleTimeout:    5 * time.Minute,
		TestOnBorrow:   true,
	}
}

// Provider hands out pooled connections keyed by node address. Pools
// are created lazily on first borrow and dropped when a topology no
// longer lists their node.
//
// Concurrent Safety:
// 1. mu guards the pool map; each pool synchronizes itself
// 2. A borrowed connection is owned by the caller until Return
// 3. Prune swaps stale pools out under the lock and closes them
//    outside it, so in-flight borrows never stall on teardown
type Provider struct {
	dialer transport.ConnDialer
	config Config

	mu     sync.Mutex
	pools  map[string]*commonspool.ObjectPool
	closed bool

	logger  logging.Logger
	metrics *metrics.Registry
}

// NewProvider creates a pool provider over dialer, filling config
// defaults.
func NewProvider(dialer transport.ConnDialer, config Config) *Provider {
	def := DefaultConfig()
	if config.MaxPerNode <= 0 {
		config.MaxPerNode = def.MaxPerNode
	}
	if config.MaxIdlePerNode <= 0 {
		config.MaxIdlePerNode = def.MaxIdlePerNode
	}
	if config.MinIdlePerNode < 0 {
		config.MinIdlePerNode = 0
	}
	if config.IdleTimeout < 0 {
		config.IdleTimeout = 0
	}

	return &Provider{
		dialer:  dialer,
		config:  config,
		pools:   make(map[string]*commonspool.ObjectPool),
		logger:  logging.DefaultLogger().With(logging.Component("pool")),
		metrics: metrics.DefaultRegistry(),
	}
}

// SetLogger replaces the provider's logger
func (p *Provider) SetLogger(logger logging.Logger) {
	if logger != nil {
		p.logger = logger
	}
}

// Borrow takes a connection to addr from its pool, dialing if the pool
// is below capacity. The wait for a free slot respects ctx.
func (p *Provider) Borrow(ctx context.Context, addr cluster.NodeAddress) (transport.Conn, error) {
	op, err := p.poolFor(addr)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	obj, err := op.BorrowObject(ctx)
	p.metrics.PoolBorrowWaitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		p.metrics.PoolBorrowsTotal.WithLabelValues("error").Inc()
		return nil, &NodeUnavailableError{Addr: addr, Err: err}
	}
	p.metrics.PoolBorrowsTotal.WithLabelValues("ok").Inc()
	p.updateGauges(addr, op)

	return obj.(transport.Conn), nil
}

// Return gives a borrowed connection back. Unhealthy connections are
// destroyed instead of pooled.
func (p *Provider) Return(ctx context.Context, conn transport.Conn) {
	addr := conn.Addr()

	p.mu.Lock()
	op := p.pools[addr.String()]
	p.mu.Unlock()
	if op == nil {
		// The pool was pruned while the connection was out.
		conn.Close()
		return
	}

	if conn.Healthy() {
		if err := op.ReturnObject(ctx, conn); err != nil {
			conn.Close()
		}
	} else {
		if err := op.InvalidateObject(ctx, conn); err != nil {
			conn.Close()
		}
	}
	p.updateGauges(addr, op)
}

// WithConn borrows a connection to addr, runs fn, and returns it
func (p *Provider) WithConn(ctx context.Context, addr cluster.NodeAddress, fn func(transport.Conn) error) error {
	conn, err := p.Borrow(ctx, addr)
	if err != nil {
		return err
	}
	defer p.Return(ctx, conn)

	return fn(conn)
}

// Prune closes pools for nodes the topology no longer lists
func (p *Provider) Prune(topology *cluster.Topology) {
	if topology == nil {
		return
	}
	keep := make(map[string]struct{})
	for _, addr := range topology.Addrs() {
		keep[addr.String()] = struct{}{}
	}

	p.mu.Lock()
	var stale []*commonspool.ObjectPool
	var staleAddrs []string
	for key, op := range p.pools {
		if _, ok := keep[key]; !ok {
			stale = append(stale, op)
			staleAddrs = append(staleAddrs, key)
			delete(p.pools, key)
		}
	}
	p.mu.Unlock()

	for i, op := range stale {
		op.Close(context.Background())
		p.metrics.PoolActiveConnections.DeleteLabelValues(staleAddrs[i])
		p.metrics.PoolIdleConnections.DeleteLabelValues(staleAddrs[i])
		p.logger.Info("pruned connection pool", logging.Addr(staleAddrs[i]))
	}
}

// Close shuts down every pool. Subsequent borrows fail.
func (p *Provider) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	pools := make([]*commonspool.ObjectPool, 0, len(p.pools))
	for _, op := range p.pools {
		pools = append(pools, op)
	}
	p.pools = make(map[string]*commonspool.ObjectPool)
	p.mu.Unlock()

	for _, op := range pools {
		op.Close(context.Background())
	}
}

// Stats reports per-node pool occupancy
type Stats struct {
	Addr   string `json:"addr"`
	Active int    `json:"active"`
	Idle   int    `json:"idle"`
}

// Stats returns a snapshot of every pool, sorted by address
func (p *Provider) Stats() []Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Stats, 0, len(p.pools))
	for key, op := range p.pools {
		out = append(out, Stats{
			Addr:   key,
			Active: op.GetNumActive(),
			Idle:   op.GetNumIdle(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

func (p *Provider) poolFor(addr cluster.NodeAddress) (*commonspool.ObjectPool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrProviderClosed
	}
	key := addr.String()
	if op, ok := p.pools[key]; ok {
		return op, nil
	}

	conf := commonspool.NewDefaultPoolConfig()
	conf.MaxTotal = p.config.MaxPerNode
	conf.MaxIdle = p.config.MaxIdlePerNode
	conf.MinIdle = p.config.MinIdlePerNode
	conf.TestOnBorrow = p.config.TestOnBorrow
	conf.BlockWhenExhausted = true
	if p.config.IdleTimeout > 0 {
		conf.MinEvictableIdleTime = p.config.IdleTimeout
		conf.TimeBetweenEvictionRuns = p.config.IdleTimeout / 2
	}

	factory := &connFactory{dialer: p.dialer, addr: addr, metrics: p.metrics}
	op := commonspool.NewObjectPool(context.Background(), factory, conf)
	p.pools[key] = op
	return op, nil
}

func (p *Provider) updateGauges(addr cluster.NodeAddress, op *commonspool.ObjectPool) {
	p.metrics.PoolActiveConnections.WithLabelValues(addr.String()).Set(float64(op.GetNumActive()))
	p.metrics.PoolIdleConnections.WithLabelValues(addr.String()).Set(float64(op.GetNumIdle()))
}
