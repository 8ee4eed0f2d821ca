package cluster

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/dd0wney/cluso-kvclient/pkg/logging"
	"github.com/dd0wney/cluso-kvclient/pkg/metrics"
)

// TopologySource fetches the authoritative node table from one
// candidate node. The transport package provides the production
// implementation; tests substitute their own.
type TopologySource interface {
	FetchTopology(ctx context.Context, addr NodeAddress) ([]NodeDescriptor, error)
}

// Snapshot pairs a topology with the moment it was captured
type Snapshot struct {
	Topology   *Topology
	CapturedAt time.Time
	Source     NodeAddress // candidate that answered the fetch
	Version    uint64      // increases with every successful refresh
}

// Age returns how long ago the snapshot was captured
func (s *Snapshot) Age() time.Duration {
	return time.Since(s.CapturedAt)
}

// EventSink receives topology lifecycle notifications. The journal
// implements it; a nil sink disables notification entirely.
type EventSink interface {
	TopologySwapped(prev, next *Snapshot)
	TopologyRefreshFailed(err error)
}

// ProviderConfig defines how topology snapshots are fetched and cached
type ProviderConfig struct {
	// Seed nodes contacted when no topology is known yet
	Seeds []NodeAddress

	// TTL is how long a snapshot stays fresh (default: 100ms)
	TTL time.Duration

	// FetchTimeout bounds each per-candidate fetch (default: 1s)
	FetchTimeout time.Duration
}

// DefaultProviderConfig returns a safe default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		TTL:          100 * time.Millisecond,
		FetchTimeout: time.Second,
	}
}

// Validate checks if configuration is valid
func (c *ProviderConfig) Validate() error {
	if len(c.Seeds) == 0 {
		return ErrNoSeedNodes
	}
	if c.TTL <= 0 {
		return ErrInvalidTTL
	}
	return nil
}

// Provider serves cached topology snapshots and refreshes them when
// the TTL lapses, shielding the cluster from a refresh stampede while
// keeping routing decisions close to the real cluster shape.
//
// Concurrent Safety:
// 1. The current snapshot sits behind an atomic pointer; readers never block
// 2. Concurrent refreshes after expiry are tolerated; the last completed
//    refresh wins the swap, and both results are internally consistent
// 3. Candidate order is shuffled per refresh to spread fetch load
type Provider struct {
	source          TopologySource
	config          ProviderConfig
	current         atomic.Pointer[Snapshot]
	version         atomic.Uint64
	sink            EventSink
	logger          logging.Logger
	metricsRegistry *metrics.Registry
}

// NewProvider creates a topology provider over the given source.
// The configuration must carry at least one seed address.
func NewProvider(source TopologySource, config ProviderConfig) (*Provider, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if config.TTL == 0 {
		config.TTL = DefaultProviderConfig().TTL
	}
	if config.FetchTimeout == 0 {
		config.FetchTimeout = DefaultProviderConfig().FetchTimeout
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Provider{
		source:          source,
		config:          config,
		logger:          logging.DefaultLogger().With(logging.Component("topology")),
		metricsRegistry: metrics.DefaultRegistry(),
	}, nil
}

// SetEventSink registers a sink for topology lifecycle events.
// Call before the provider is shared between goroutines.
func (p *Provider) SetEventSink(sink EventSink) {
	p.sink = sink
}

// SetLogger replaces the provider's logger.
// Call before the provider is shared between goroutines.
func (p *Provider) SetLogger(logger logging.Logger) {
	p.logger = logger
}

// Topology returns a fresh-enough topology, refreshing past the TTL
func (p *Provider) Topology(ctx context.Context) (*Topology, error) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Topology, nil
}

// Snapshot returns the cached snapshot while it is within the TTL,
// otherwise it performs a refresh and returns the result.
func (p *Provider) Snapshot(ctx context.Context) (*Snapshot, error) {
	if snap := p.current.Load(); snap != nil && snap.Age() < p.config.TTL {
		if p.metricsRegistry != nil {
			p.metricsRegistry.TopologyCacheHitsTotal.Inc()
		}
		return snap, nil
	}
	return p.Refresh(ctx)
}

// Cached returns the last snapshot without refreshing.
// The result may be stale, or nil before the first refresh.
func (p *Provider) Cached() *Snapshot {
	return p.current.Load()
}

// Refresh fetches a new snapshot immediately, bypassing the TTL.
// Candidates are tried in shuffled order; the first success wins and
// suppresses earlier failures. When every candidate fails, the
// returned TopologyUnavailableError aggregates all of them and any
// previously cached snapshot is left in place.
func (p *Provider) Refresh(ctx context.Context) (*Snapshot, error) {
	start := time.Now()

	candidates := p.candidates()
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}

	attempts := make([]CandidateError, 0, len(candidates))
	for _, addr := range candidates {
		nodes, err := p.fetchFrom(ctx, addr)
		if err == nil && len(nodes) == 0 {
			err = ErrEmptyTopology
		}
		if err != nil {
			attempts = append(attempts, CandidateError{Addr: addr, Err: err})
			if p.metricsRegistry != nil {
				p.metricsRegistry.TopologyCandidateErrorsTotal.WithLabelValues(addr.String()).Inc()
			}
			p.logger.Warn("topology fetch failed",
				logging.Addr(addr.String()),
				logging.Error(err))
			if ctx.Err() != nil {
				// The caller's context is gone; further candidates
				// would fail the same way.
				break
			}
			continue
		}

		snap := p.swap(nodes, addr)
		if p.metricsRegistry != nil {
			p.metricsRegistry.RecordTopologyRefresh(true, time.Since(start))
		}
		p.logger.Debug("topology refreshed",
			logging.Addr(addr.String()),
			logging.Count(snap.Topology.Size()),
			logging.Uint64("version", snap.Version),
			logging.Latency(time.Since(start)))
		return snap, nil
	}

	err := &TopologyUnavailableError{Attempts: attempts}
	if p.metricsRegistry != nil {
		p.metricsRegistry.RecordTopologyRefresh(false, time.Since(start))
	}
	if p.sink != nil {
		p.sink.TopologyRefreshFailed(err)
	}
	p.logger.Error("topology refresh exhausted all candidates",
		logging.Count(len(attempts)),
		logging.Error(err))
	return nil, err
}

func (p *Provider) fetchFrom(ctx context.Context, addr NodeAddress) ([]NodeDescriptor, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.config.FetchTimeout)
	defer cancel()
	return p.source.FetchTopology(fetchCtx, addr)
}

func (p *Provider) swap(nodes []NodeDescriptor, source NodeAddress) *Snapshot {
	prev := p.current.Load()
	snap := &Snapshot{
		Topology:   NewTopology(nodes),
		CapturedAt: time.Now(),
		Source:     source,
		Version:    p.version.Add(1),
	}
	p.current.Store(snap)

	if p.metricsRegistry != nil {
		cov := snap.Topology.Coverage()
		p.metricsRegistry.UpdateTopologySnapshot(
			snap.Topology.Size(),
			snap.Topology.MasterCount(),
			snap.Topology.ReplicaCount(),
			cov.Served)
	}
	if p.sink != nil {
		p.sink.TopologySwapped(prev, snap)
	}
	return snap
}

// candidates returns the refresh contact order: every node from the
// current snapshot plus the configured seeds, deduplicated and
// shuffled so repeated refreshes do not hammer one node.
func (p *Provider) candidates() []NodeAddress {
	seen := make(map[string]struct{})
	var out []NodeAddress

	if snap := p.current.Load(); snap != nil {
		for _, addr := range snap.Topology.Addrs() {
			if _, ok := seen[addr.String()]; ok {
				continue
			}
			seen[addr.String()] = struct{}{}
			out = append(out, addr)
		}
	}
	for _, addr := range p.config.Seeds {
		if _, ok := seen[addr.String()]; ok {
			continue
		}
		seen[addr.String()] = struct{}{}
		out = append(out, addr)
	}

	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
