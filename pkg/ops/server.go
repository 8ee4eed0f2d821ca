package ops

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
	"github.com/dd0wney/cluso-kvclient/pkg/health"
	"github.com/dd0wney/cluso-kvclient/pkg/journal"
	"github.com/dd0wney/cluso-kvclient/pkg/kv"
	"github.com/dd0wney/cluso-kvclient/pkg/logging"
	"github.com/dd0wney/cluso-kvclient/pkg/metrics"
)

// Config controls the diagnostics endpoint
type Config struct {
	// Listen is the address the server binds, e.g. ":9090"
	Listen string

	// StaleAfter marks the cached topology degraded once it exceeds
	// this age. Zero disables the staleness check.
	StaleAfter time.Duration

	// PoolMaxPerNode is the per-node connection cap used to flag
	// saturated pools. Zero disables the saturation check.
	PoolMaxPerNode int
}

// Server exposes client diagnostics over HTTP: the cached topology,
// slot coverage, pool stats, the event journal, health probes, and
// Prometheus metrics. It reports what the client currently believes;
// only POST /topology/refresh touches the cluster.
type Server struct {
	client   *kv.Client
	journal  *journal.Journal
	checker  *health.HealthChecker
	registry *metrics.Registry
	logger   logging.Logger

	cfg        Config
	httpServer *http.Server

	started     time.Time
	samplerStop chan struct{}
	samplerOnce sync.Once
}

// NewServer wires a diagnostics server around an open client. The
// journal may be nil; /journal/events then serves an empty list.
func NewServer(cfg Config, client *kv.Client, jnl *journal.Journal) *Server {
	s := &Server{
		client:   client,
		journal:  jnl,
		checker:  health.NewHealthChecker(),
		registry: metrics.DefaultRegistry(),
		logger:   logging.DefaultLogger().With(logging.Component("ops")),
		cfg:      cfg,
	}
	s.registerChecks()
	return s
}

// SetLogger replaces the server's logger
func (s *Server) SetLogger(logger logging.Logger) {
	s.logger = logger
}

// Checker returns the health checker so callers can register extra
// checks before Start
func (s *Server) Checker() *health.HealthChecker {
	return s.checker
}

func (s *Server) registerChecks() {
	provider := s.client.Provider()

	s.checker.RegisterCheck("topology", health.TopologyCheck(provider.Cached, s.cfg.StaleAfter))
	s.checker.RegisterCheck("slot_coverage", health.CoverageCheck(func() *cluster.Topology {
		snap := provider.Cached()
		if snap == nil {
			return nil
		}
		return snap.Topology
	}))
	s.checker.RegisterCheck("connection_pools", health.PoolCheck(s.client.PoolStats, s.cfg.PoolMaxPerNode))
	s.checker.RegisterCheck("memory", health.MemoryCheck(func() (uint64, uint64) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		return m.Alloc, m.Sys
	}))

	// Ready once a topology has been discovered, however old
	s.checker.RegisterReadinessCheck("topology", health.TopologyCheck(provider.Cached, 0))

	s.checker.RegisterLivenessCheck("process", func() health.Check {
		return health.SimpleCheck("process")
	})
}

// Handler returns the routed handler without binding a listener
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)
	router.Use(s.metricsMiddleware)

	router.HandleFunc("/topology", s.handleTopology).Methods(http.MethodGet)
	router.HandleFunc("/topology/coverage", s.handleCoverage).Methods(http.MethodGet)
	router.HandleFunc("/topology/refresh", s.handleRefresh).Methods(http.MethodPost)
	router.HandleFunc("/pools", s.handlePools).Methods(http.MethodGet)
	router.HandleFunc("/journal/events", s.handleJournalEvents).Methods(http.MethodGet)
	router.HandleFunc("/ping", s.handlePing).Methods(http.MethodGet)

	router.HandleFunc("/healthz", s.checker.HTTPHandler()).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.checker.ReadinessHandler()).Methods(http.MethodGet)
	router.HandleFunc("/livez", s.checker.LivenessHandler()).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.HandlerFor(
		s.registry.GetPrometheusRegistry(),
		promhttp.HandlerOpts{},
	)).Methods(http.MethodGet)

	return router
}

// Start binds the listen address and serves until Shutdown
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.started = time.Now()
	s.samplerStop = make(chan struct{})
	go s.sampleSystem()

	s.logger.Info("ops server listening", logging.Addr(s.cfg.Listen))
	err := s.httpServer.ListenAndServe()
	s.stopSampler()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopSampler()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) stopSampler() {
	s.samplerOnce.Do(func() {
		if s.samplerStop != nil {
			close(s.samplerStop)
		}
	})
}
