package health

import (
	"sync"
	"time"
)

// Status grades one check or a whole report
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// rank orders statuses by severity so aggregation can take a max
func (s Status) rank() int {
	switch s {
	case StatusUnhealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

// worse returns the more severe of two statuses
func worse(a, b Status) Status {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

// Details carries check-specific numbers and labels
type Details map[string]any

// Check is the outcome of one probe. Name, CheckedAt, and DurationMS
// are stamped by the evaluator; a probe only decides status, message,
// and details.
type Check struct {
	Name       string    `json:"name"`
	Status     Status    `json:"status"`
	Message    string    `json:"message,omitempty"`
	Details    Details   `json:"details,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
	DurationMS float64   `json:"duration_ms"`
}

// CheckFunc runs one probe
type CheckFunc func() Check

// Response is one full evaluation of a probe class
type Response struct {
	Status    Status           `json:"status"`
	Timestamp time.Time        `json:"timestamp"`
	Checks    map[string]Check `json:"checks"`
	UptimeSec float64          `json:"uptime_seconds"`
}

// probe is one registered check under its registration name
type probe struct {
	name string
	run  CheckFunc
}

// class separates the three probe sets a checker serves
type class int

const (
	classHealth class = iota
	classReady
	classLive
	classCount
)

// HealthChecker evaluates registered probes on demand.
//
// Concurrent Safety:
//  1. Registration and evaluation interleave freely; evaluation works
//     on a copy of the probe list taken under the read lock.
//  2. Probes run outside the lock, so a slow probe never blocks
//     registration or a concurrent evaluation.
type HealthChecker struct {
	mu      sync.RWMutex
	probes  [classCount][]probe
	started time.Time
}
