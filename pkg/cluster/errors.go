package cluster

import (
	"errors"
	"fmt"
	"strings"
)

// Key routing errors
var (
	ErrNoKeys         = errors.New("at least one key is required")
	ErrCrossSlotKeys  = errors.New("keys hash to different slots")
	ErrSlotUnserved   = errors.New("no master serves the hash slot")
	ErrSlotOutOfRange = errors.New("hash slot outside the valid range")
)

// Topology errors
var (
	ErrInvalidNodeAddr  = errors.New("node address must be host:port")
	ErrInvalidSlotRange = errors.New("slot range must be start-end within the slot space")
	ErrEmptyTopology    = errors.New("topology snapshot contains no nodes")
	ErrNodeNotFound     = errors.New("node not found in topology")
)

// Provider configuration errors
var (
	ErrNoSeedNodes  = errors.New("at least one seed node address is required")
	ErrNilSource    = errors.New("topology source is required")
	ErrInvalidTTL   = errors.New("topology TTL must be positive")
	ErrNoCandidates = errors.New("no candidate nodes available for refresh")
)

// CandidateError records a topology fetch failure against one candidate
type CandidateError struct {
	Addr NodeAddress
	Err  error
}

func (e *CandidateError) Error() string {
	return fmt.Sprintf("%s: %v", e.Addr, e.Err)
}

func (e *CandidateError) Unwrap() error {
	return e.Err
}

// TopologyUnavailableError reports that a refresh exhausted every
// candidate node. It carries all per-candidate failures so callers
// can see why each contact point was rejected, not just the last one.
type TopologyUnavailableError struct {
	Attempts []CandidateError
}

func (e *TopologyUnavailableError) Error() string {
	if len(e.Attempts) == 0 {
		return "topology unavailable: no candidates attempted"
	}
	parts := make([]string, len(e.Attempts))
	for i := range e.Attempts {
		parts[i] = e.Attempts[i].Error()
	}
	return fmt.Sprintf("topology unavailable after %d candidates: %s",
		len(e.Attempts), strings.Join(parts, "; "))
}

// Unwrap exposes the per-candidate failures to errors.Is and errors.As
func (e *TopologyUnavailableError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i := range e.Attempts {
		errs[i] = &e.Attempts[i]
	}
	return errs
}
