package ops

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
	"github.com/dd0wney/cluso-kvclient/pkg/journal"
	"github.com/dd0wney/cluso-kvclient/pkg/logging"
)

// NodeSummary describes one node in a topology response
type NodeSummary struct {
	ID       string   `json:"id"`
	Addr     string   `json:"addr"`
	Role     string   `json:"role"`
	MasterID string   `json:"master_id,omitempty"`
	Slots    []string `json:"slots,omitempty"`
}

// TopologyResponse describes the cached topology snapshot
type TopologyResponse struct {
	Version    uint64        `json:"version"`
	CapturedAt time.Time     `json:"captured_at"`
	AgeMS      int64         `json:"age_ms"`
	Source     string        `json:"source"`
	Nodes      []NodeSummary `json:"nodes"`
}

// CoverageResponse summarizes slot coverage
type CoverageResponse struct {
	Served int      `json:"served"`
	Total  int      `json:"total"`
	Full   bool     `json:"full"`
	Gaps   []string `json:"gaps,omitempty"`
}

// RefreshResponse reports the outcome of a forced refresh
type RefreshResponse struct {
	Version  uint64 `json:"version"`
	Nodes    int    `json:"nodes"`
	Source   string `json:"source"`
	Duration string `json:"duration"`
}

// PingResponse reports a round trip to an arbitrary node
type PingResponse struct {
	Node      string `json:"node"`
	LatencyMS int64  `json:"latency_ms"`
}

// ErrorResponse is the JSON error envelope
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (s *Server) handleTopology(w http.ResponseWriter, r *http.Request) {
	snap := s.client.Provider().Cached()
	if snap == nil {
		s.respondError(w, http.StatusServiceUnavailable, "no topology discovered yet")
		return
	}
	s.respondJSON(w, http.StatusOK, topologyResponse(snap))
}

func topologyResponse(snap *cluster.Snapshot) TopologyResponse {
	resp := TopologyResponse{
		Version:    snap.Version,
		CapturedAt: snap.CapturedAt,
		AgeMS:      snap.Age().Milliseconds(),
		Source:     snap.Source.String(),
	}
	for _, node := range snap.Topology.Nodes() {
		summary := NodeSummary{
			ID:       node.ID,
			Addr:     node.Addr.String(),
			Role:     node.Role.String(),
			MasterID: node.MasterID,
		}
		for _, slots := range node.Slots {
			summary.Slots = append(summary.Slots, slots.String())
		}
		resp.Nodes = append(resp.Nodes, summary)
	}
	return resp
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	snap := s.client.Provider().Cached()
	if snap == nil {
		s.respondError(w, http.StatusServiceUnavailable, "no topology discovered yet")
		return
	}

	cov := snap.Topology.Coverage()
	resp := CoverageResponse{
		Served: cov.Served,
		Total:  cluster.SlotCount,
		Full:   cov.Full(),
	}
	for _, gap := range cov.Gaps {
		resp.Gaps = append(resp.Gaps, gap.String())
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snap, err := s.client.Provider().Refresh(r.Context())
	if err != nil {
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, RefreshResponse{
		Version:  snap.Version,
		Nodes:    snap.Topology.Size(),
		Source:   snap.Source.String(),
		Duration: time.Since(start).Round(time.Millisecond).String(),
	})
}

func (s *Server) handlePools(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.client.PoolStats())
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	node, err := s.client.Ping(r.Context())
	if err != nil {
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, PingResponse{
		Node:      node.String(),
		LatencyMS: time.Since(start).Milliseconds(),
	})
}

// handleJournalEvents serves the event journal, filtered by the
// type, node, since, and limit query parameters.
func (s *Server) handleJournalEvents(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.respondJSON(w, http.StatusOK, []*journal.Event{})
		return
	}

	q := r.URL.Query()

	limit := 100
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	filter := &journal.Filter{}
	if t := q.Get("type"); t != "" {
		filter.Type = journal.EventType(t)
	}
	if node := q.Get("node"); node != "" {
		filter.Node = node
	}
	if raw := q.Get("since"); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "since must be an RFC3339 timestamp")
			return
		}
		filter.StartTime = &ts
	}

	events := s.journal.Events(filter)
	if len(events) > limit {
		events = events[len(events)-limit:]
	}
	s.respondJSON(w, http.StatusOK, events)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
