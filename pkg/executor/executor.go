package executor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
	"github.com/dd0wney/cluso-kvclient/pkg/logging"
	"github.com/dd0wney/cluso-kvclient/pkg/metrics"
	"github.com/dd0wney/cluso-kvclient/pkg/parallel"
	"github.com/dd0wney/cluso-kvclient/pkg/pool"
	"github.com/dd0wney/cluso-kvclient/pkg/transport"
)

// Config tunes the command executor
type Config struct {
	// MaxRedirects bounds how many times one routed execution may be
	// retried against another node after a moved or ask signal.
	MaxRedirects int

	// Workers sizes the pool that runs fan-out node tasks. The pool
	// is shared by all batch operations, so large clusters do not
	// translate into unbounded goroutines.
	Workers int

	// NodeTimeout bounds each per-node attempt, covering both the
	// connection borrow and the command itself. Zero leaves the
	// caller's context in charge.
	NodeTimeout time.Duration
}

// DefaultConfig returns production defaults
func DefaultConfig() Config {
	return Config{
		MaxRedirects: 5,
		Workers:      16,
		NodeTimeout:  5 * time.Second,
	}
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.MaxRedirects < 0 {
		return fmt.Errorf("max redirects must not be negative, got %d", c.MaxRedirects)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", c.Workers)
	}
	return nil
}

// Executor runs commands against the nodes a topology snapshot says
// should serve them: on one node, on any node, on every node, or once
// per key group across different nodes. Batch operations fan out over
// a bounded worker pool and always join every task before returning.
//
// The executor holds no routing state of its own. Every decision is
// made against the provider's current snapshot, so a topology swap is
// picked up by the next operation without coordination.
//
// Concurrent Safety:
// 1. Safe for concurrent use; per-call state lives on the stack
// 2. The redirect budget is atomic so SetMaxRedirects can be called
//    while commands are in flight
// 3. Fan-outs write results into per-task slots and join through a
//    WaitGroup, never a completion race
type Executor struct {
	provider *cluster.Provider
	pools    *pool.Provider
	workers  *parallel.WorkerPool
	config   Config

	maxRedirects atomic.Int32
	closed       atomic.Bool

	logger   logging.Logger
	metrics  *metrics.Registry
	observer Observer
}

// Observer receives routing events as they happen. The journal
// implements it; a nil observer disables notification entirely.
// Implementations must not block: notifications run on the command
// path.
type Observer interface {
	CommandRedirected(node cluster.NodeAddress, kind string)
	NodeFailed(node cluster.NodeAddress, err error)
}

// New creates an executor over a topology provider and a connection
// pool provider, filling config defaults.
func New(provider *cluster.Provider, pools *pool.Provider, config Config) (*Executor, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	if pools == nil {
		return nil, ErrNilPools
	}

	def := DefaultConfig()
	if config.MaxRedirects == 0 {
		config.MaxRedirects = def.MaxRedirects
	}
	if config.Workers == 0 {
		config.Workers = def.Workers
	}
	if config.NodeTimeout == 0 {
		config.NodeTimeout = def.NodeTimeout
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	workers, err := parallel.NewWorkerPool(config.Workers)
	if err != nil {
		return nil, err
	}

	e := &Executor{
		provider: provider,
		pools:    pools,
		workers:  workers,
		config:   config,
		logger:   logging.DefaultLogger().With(logging.Component("executor")),
		metrics:  metrics.DefaultRegistry(),
	}
	e.maxRedirects.Store(int32(config.MaxRedirects))
	return e, nil
}

// SetLogger replaces the executor's logger.
// Call before the executor is shared between goroutines.
func (e *Executor) SetLogger(logger logging.Logger) {
	if logger != nil {
		e.logger = logger
	}
}

// SetObserver attaches a routing event observer.
// Call before the executor is shared between goroutines.
func (e *Executor) SetObserver(observer Observer) {
	e.observer = observer
}

// noteRedirect records a redirect signal from one node
func (e *Executor) noteRedirect(node cluster.NodeAddress, kind string) {
	e.metrics.RecordRedirect(kind)
	if e.observer != nil {
		e.observer.CommandRedirected(node, kind)
	}
}

// noteNodeError records a command failure attributed to one node
func (e *Executor) noteNodeError(node cluster.NodeAddress, err error) {
	e.metrics.RecordNodeError(node.String())
	if e.observer != nil {
		e.observer.NodeFailed(node, err)
	}
}

// SetMaxRedirects changes the redirect budget for routed executions.
// Safe to call while commands are in flight; in-flight commands pick
// up the new budget on their next redirect decision.
func (e *Executor) SetMaxRedirects(n int) {
	if n < 0 {
		n = 0
	}
	e.maxRedirects.Store(int32(n))
}

// MaxRedirects returns the current redirect budget
func (e *Executor) MaxRedirects() int {
	return int(e.maxRedirects.Load())
}

// Close shuts the executor's worker pool down, draining queued tasks.
// In-flight batch calls complete; new calls fail.
func (e *Executor) Close() {
	if !e.closed.CompareAndSwap(false, true) {
		return
	}
	e.workers.Close()
}

// Refresh forces a topology refresh, bypassing the TTL. Exposed for
// operational tooling; routed commands refresh on their own when they
// see redirect signals.
func (e *Executor) Refresh(ctx context.Context) error {
	_, err := e.provider.Refresh(ctx)
	return err
}

// Topology returns the provider's current topology snapshot
func (e *Executor) Topology(ctx context.Context) (*cluster.Topology, error) {
	return e.provider.Topology(ctx)
}

// Route resolves the master serving a key's hash slot. A slot without
// a serving master is retried once against a forced refresh, because
// an unserved slot is usually a reconfiguration the cached snapshot
// has not caught up with.
func (e *Executor) Route(ctx context.Context, key []byte) (cluster.NodeDescriptor, error) {
	slot := cluster.SlotForKey(key)

	topo, err := e.provider.Topology(ctx)
	if err != nil {
		return cluster.NodeDescriptor{}, err
	}
	if node, ok := topo.MasterServing(slot); ok {
		e.metrics.RecordRoutingLookup("hit")
		return node, nil
	}

	snap, err := e.provider.Refresh(ctx)
	if err != nil {
		return cluster.NodeDescriptor{}, err
	}
	if node, ok := snap.Topology.MasterServing(slot); ok {
		e.metrics.RecordRoutingLookup("refresh_hit")
		return node, nil
	}

	e.metrics.RecordRoutingLookup("unserved")
	return cluster.NodeDescriptor{}, fmt.Errorf("slot %d: %w", slot, cluster.ErrSlotUnserved)
}

// RouteKeys resolves the master serving a key set that must share one
// hash slot. Cross-slot key sets are rejected before any network I/O,
// because the store cannot execute them as a single operation.
func (e *Executor) RouteKeys(ctx context.Context, keys ...[]byte) (cluster.NodeDescriptor, error) {
	if _, err := cluster.SlotForKeys(keys...); err != nil {
		e.metrics.RecordRoutingLookup("cross_slot")
		return cluster.NodeDescriptor{}, err
	}
	return e.Route(ctx, keys[0])
}

// GroupByNode splits keys into one group per serving master,
// preserving caller order inside each group. Groups come back in
// first-key order, so the same key list always produces the same
// grouping against the same topology. A key whose slot has no serving
// master fails the whole call before any network I/O.
func (e *Executor) GroupByNode(ctx context.Context, keys [][]byte) ([]KeyGroup, error) {
	if len(keys) == 0 {
		return nil, cluster.ErrNoKeys
	}

	topo, err := e.provider.Topology(ctx)
	if err != nil {
		return nil, err
	}

	groups, unserved := groupKeys(topo, keys)
	if unserved >= 0 {
		// One forced refresh, then give up: an unserved slot should
		// resolve as soon as a node reports the new owner.
		snap, err := e.provider.Refresh(ctx)
		if err != nil {
			return nil, err
		}
		groups, unserved = groupKeys(snap.Topology, keys)
		if unserved >= 0 {
			e.metrics.RecordRoutingLookup("unserved")
			return nil, fmt.Errorf("key %d of %d, slot %d: %w",
				unserved+1, len(keys), cluster.SlotForKey(keys[unserved]), cluster.ErrSlotUnserved)
		}
	}
	return groups, nil
}

// groupKeys builds per-node key groups against one topology. The
// second return is the index of the first unroutable key, or -1.
func groupKeys(topo *cluster.Topology, keys [][]byte) ([]KeyGroup, int) {
	var groups []KeyGroup
	index := make(map[string]int)

	for i, key := range keys {
		node, ok := topo.MasterServing(cluster.SlotForKey(key))
		if !ok {
			return nil, i
		}
		at, seen := index[node.ID]
		if !seen {
			at = len(groups)
			index[node.ID] = at
			groups = append(groups, KeyGroup{Node: node})
		}
		groups[at].Keys = append(groups[at].Keys, key)
		groups[at].Positions = append(groups[at].Positions, i)
	}
	return groups, -1
}

// redirect decides whether err warrants another attempt and resolves
// the node to try next. Moved signals force a topology refresh first;
// ask signals point one command at a migration target without marking
// the topology stale; a node the pool cannot reach is re-resolved
// against a fresh topology in case its address changed on failover.
func (e *Executor) redirect(ctx context.Context, current cluster.NodeDescriptor, err error) (cluster.NodeDescriptor, bool) {
	var moved *transport.MovedError
	if errors.As(err, &moved) {
		e.noteRedirect(current.Addr, "moved")
		snap, refreshErr := e.provider.Refresh(ctx)
		if refreshErr != nil {
			// The moved target is still actionable without a fresh
			// snapshot; the next refresh will catch the rest up.
			e.logger.Warn("refresh after moved signal failed",
				logging.Slot(moved.Slot),
				logging.Error(refreshErr))
			return e.nodeAt(nil, moved.Addr), true
		}
		if node, ok := snap.Topology.MasterServing(moved.Slot); ok {
			return node, true
		}
		return e.nodeAt(snap.Topology, moved.Addr), true
	}

	var ask *transport.AskError
	if errors.As(err, &ask) {
		e.noteRedirect(current.Addr, "ask")
		topo, _ := e.provider.Topology(ctx)
		return e.nodeAt(topo, ask.Addr), true
	}

	var unavailable *pool.NodeUnavailableError
	if errors.As(err, &unavailable) {
		e.noteRedirect(current.Addr, "unavailable")
		snap, refreshErr := e.provider.Refresh(ctx)
		if refreshErr != nil {
			return current, false
		}
		next := snap.Topology.Lookup(current)
		if next.Addr == current.Addr {
			// Same address after a refresh: the node is down, not
			// moved, and retrying would only burn the budget.
			return current, false
		}
		return next, true
	}

	return current, false
}

// nodeAt resolves the descriptor for a redirect target address. When
// the topology does not know the address yet, a bare descriptor is
// synthesized so the retry can still dial it.
func (e *Executor) nodeAt(topo *cluster.Topology, addr cluster.NodeAddress) cluster.NodeDescriptor {
	if topo != nil {
		if node, ok := topo.NodeByAddr(addr); ok {
			return node
		}
	}
	return cluster.NodeDescriptor{Addr: addr, Role: cluster.RoleMaster}
}
