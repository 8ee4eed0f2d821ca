package journal

import (
	"fmt"
	"time"
)

// EventType classifies journal entries
type EventType string

const (
	EventTopologySwap   EventType = "topology_swap"
	EventRefreshFailure EventType = "refresh_failure"
	EventRedirect       EventType = "redirect"
	EventNodeError      EventType = "node_error"
)

// Event is a single topology or routing occurrence worth keeping around
// for diagnostics
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Node      string    `json:"node,omitempty"`    // node address the event concerns
	Detail    string    `json:"detail,omitempty"`  // redirect kind, error text
	Version   uint64    `json:"version,omitempty"` // topology version after a swap
	Nodes     int       `json:"nodes,omitempty"`   // cluster size after a swap
}

// Filter represents filtering criteria for journal events
type Filter struct {
	Type      EventType
	Node      string
	StartTime *time.Time
	EndTime   *time.Time
}

// matches reports whether the event passes every criterion set on the
// filter. A nil filter matches everything.
func (f *Filter) matches(event *Event) bool {
	if f == nil {
		return true
	}
	if f.Type != "" && event.Type != f.Type {
		return false
	}
	if f.Node != "" && event.Node != f.Node {
		return false
	}
	if f.StartTime != nil && event.Timestamp.Before(*f.StartTime) {
		return false
	}
	if f.EndTime != nil && event.Timestamp.After(*f.EndTime) {
		return false
	}
	return true
}

// String returns a human-readable representation of an event
func (e *Event) String() string {
	switch e.Type {
	case EventTopologySwap:
		return fmt.Sprintf("[%s] %s version=%d nodes=%d (source: %s)",
			e.Timestamp.Format(time.RFC3339), e.Type, e.Version, e.Nodes, e.Node)
	case EventRefreshFailure:
		return fmt.Sprintf("[%s] %s: %s",
			e.Timestamp.Format(time.RFC3339), e.Type, e.Detail)
	default:
		return fmt.Sprintf("[%s] %s node=%s %s",
			e.Timestamp.Format(time.RFC3339), e.Type, e.Node, e.Detail)
	}
}
