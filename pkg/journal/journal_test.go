package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
)

// TestJournal_Record tests basic event recording
func TestJournal_Record(t *testing.T) {
	j := New(100)

	event := &Event{
		Type:   EventRedirect,
		Node:   "10.0.0.1:7000",
		Detail: "moved",
	}
	j.Record(event)

	if event.ID == "" {
		t.Error("Expected event ID to be assigned")
	}
	if event.Timestamp.IsZero() {
		t.Error("Expected non-zero timestamp")
	}
	if j.Count() != 1 {
		t.Errorf("Expected count 1, got %d", j.Count())
	}
}

// TestJournal_RingOverwrite tests that old events are overwritten when
// the buffer is full
func TestJournal_RingOverwrite(t *testing.T) {
	j := New(5)

	for i := 0; i < 8; i++ {
		j.Record(&Event{
			Type:   EventNodeError,
			Node:   fmt.Sprintf("10.0.0.%d:7000", i),
			Detail: "connection refused",
		})
	}

	if j.Count() != 5 {
		t.Errorf("Expected count capped at 5, got %d", j.Count())
	}

	events := j.Events(nil)
	if len(events) != 5 {
		t.Fatalf("Expected 5 events, got %d", len(events))
	}

	// Oldest surviving event should be the fourth recorded (index 3)
	if events[0].Node != "10.0.0.3:7000" {
		t.Errorf("Expected oldest event from 10.0.0.3:7000, got %s", events[0].Node)
	}
	if events[4].Node != "10.0.0.7:7000" {
		t.Errorf("Expected newest event from 10.0.0.7:7000, got %s", events[4].Node)
	}
}

// TestJournal_Filter tests event filtering by type and node
func TestJournal_Filter(t *testing.T) {
	j := New(100)

	j.Record(&Event{Type: EventRedirect, Node: "10.0.0.1:7000", Detail: "moved"})
	j.Record(&Event{Type: EventRedirect, Node: "10.0.0.2:7000", Detail: "ask"})
	j.Record(&Event{Type: EventNodeError, Node: "10.0.0.1:7000", Detail: "timeout"})
	j.Record(&Event{Type: EventRefreshFailure, Detail: "all candidates failed"})

	redirects := j.Events(&Filter{Type: EventRedirect})
	if len(redirects) != 2 {
		t.Errorf("Expected 2 redirect events, got %d", len(redirects))
	}

	node1 := j.Events(&Filter{Node: "10.0.0.1:7000"})
	if len(node1) != 2 {
		t.Errorf("Expected 2 events for node 10.0.0.1:7000, got %d", len(node1))
	}

	both := j.Events(&Filter{Type: EventNodeError, Node: "10.0.0.1:7000"})
	if len(both) != 1 {
		t.Errorf("Expected 1 event matching type and node, got %d", len(both))
	}

	all := j.Events(nil)
	if len(all) != 4 {
		t.Errorf("Expected 4 events with nil filter, got %d", len(all))
	}
}

// TestJournal_FilterTimeRange tests filtering by time window
func TestJournal_FilterTimeRange(t *testing.T) {
	j := New(100)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		j.Record(&Event{
			Type:      EventRedirect,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Detail:    "moved",
		})
	}

	start := base.Add(90 * time.Second)
	end := base.Add(210 * time.Second)
	window := j.Events(&Filter{StartTime: &start, EndTime: &end})
	if len(window) != 2 {
		t.Errorf("Expected 2 events in window, got %d", len(window))
	}
}

// TestJournal_Recent tests newest-first retrieval
func TestJournal_Recent(t *testing.T) {
	j := New(100)

	for i := 0; i < 10; i++ {
		j.Record(&Event{
			Type: EventRedirect,
			Node: fmt.Sprintf("10.0.0.%d:7000", i),
		})
	}

	recent := j.Recent(3)
	if len(recent) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(recent))
	}
	if recent[0].Node != "10.0.0.9:7000" {
		t.Errorf("Expected newest event first, got %s", recent[0].Node)
	}
	if recent[2].Node != "10.0.0.7:7000" {
		t.Errorf("Expected third newest last, got %s", recent[2].Node)
	}

	all := j.Recent(50)
	if len(all) != 10 {
		t.Errorf("Expected Recent to cap at stored count, got %d", len(all))
	}
}

// TestJournal_Clear tests buffer reset
func TestJournal_Clear(t *testing.T) {
	j := New(10)
	j.Record(&Event{Type: EventRedirect})
	j.Record(&Event{Type: EventNodeError})

	j.Clear()

	if j.Count() != 0 {
		t.Errorf("Expected empty journal after Clear, got %d", j.Count())
	}
	if len(j.Events(nil)) != 0 {
		t.Error("Expected no events after Clear")
	}
}

// TestJournal_TopologyEventSink tests the cluster.EventSink implementation
func TestJournal_TopologyEventSink(t *testing.T) {
	j := New(100)

	nodes := []cluster.NodeDescriptor{
		{
			ID:    "n1",
			Addr:  cluster.NodeAddress{Host: "10.0.0.1", Port: 7000},
			Role:  cluster.RoleMaster,
			Slots: []cluster.SlotRange{{Start: 0, End: cluster.SlotCount - 1}},
		},
	}
	prev := &cluster.Snapshot{
		Topology:   cluster.NewTopology(nodes),
		CapturedAt: time.Now().Add(-time.Minute),
		Version:    1,
	}
	next := &cluster.Snapshot{
		Topology:   cluster.NewTopology(nodes),
		CapturedAt: time.Now(),
		Source:     cluster.NodeAddress{Host: "10.0.0.1", Port: 7000},
		Version:    2,
	}

	j.TopologySwapped(prev, next)
	j.TopologyRefreshFailed(errors.New("all candidates failed"))

	swaps := j.Events(&Filter{Type: EventTopologySwap})
	if len(swaps) != 1 {
		t.Fatalf("Expected 1 swap event, got %d", len(swaps))
	}
	if swaps[0].Version != 2 {
		t.Errorf("Expected swap event version 2, got %d", swaps[0].Version)
	}
	if swaps[0].Nodes != 1 {
		t.Errorf("Expected swap event nodes 1, got %d", swaps[0].Nodes)
	}

	failures := j.Events(&Filter{Type: EventRefreshFailure})
	if len(failures) != 1 {
		t.Fatalf("Expected 1 refresh failure event, got %d", len(failures))
	}
	if failures[0].Detail != "all candidates failed" {
		t.Errorf("Unexpected failure detail: %s", failures[0].Detail)
	}
}

// TestJournal_RoutingObserver tests redirect and node-error recording
func TestJournal_RoutingObserver(t *testing.T) {
	j := New(100)

	addr := cluster.NodeAddress{Host: "10.0.0.2", Port: 7000}
	j.CommandRedirected(addr, "moved")
	j.NodeFailed(addr, errors.New("connection reset"))

	redirects := j.Events(&Filter{Type: EventRedirect})
	if len(redirects) != 1 || redirects[0].Detail != "moved" {
		t.Errorf("Expected one moved redirect, got %+v", redirects)
	}

	nodeErrors := j.Events(&Filter{Type: EventNodeError})
	if len(nodeErrors) != 1 || nodeErrors[0].Node != "10.0.0.2:7000" {
		t.Errorf("Expected one node error for 10.0.0.2:7000, got %+v", nodeErrors)
	}
}

// captureSink records writes for sink forwarding tests
type captureSink struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (s *captureSink) Write(ctx context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// TestJournal_SinkForwarding tests that recorded events reach the sink
func TestJournal_SinkForwarding(t *testing.T) {
	j := New(100)
	sink := &captureSink{}
	j.SetSink(sink)

	for i := 0; i < 5; i++ {
		j.Record(&Event{Type: EventRedirect, Detail: "moved"})
	}
	j.Close()

	if sink.len() != 5 {
		t.Errorf("Expected 5 events forwarded to sink, got %d", sink.len())
	}
}

// TestJournal_SinkErrorDoesNotBlock tests that sink failures leave the
// ring intact
func TestJournal_SinkErrorDoesNotBlock(t *testing.T) {
	j := New(100)
	sink := &captureSink{err: errors.New("database unreachable")}
	j.SetSink(sink)

	j.Record(&Event{Type: EventNodeError, Detail: "timeout"})
	j.Close()

	if j.Count() != 1 {
		t.Errorf("Expected ring to keep event despite sink error, got count %d", j.Count())
	}
}

// TestEvent_String tests human-readable formatting
func TestEvent_String(t *testing.T) {
	swap := &Event{
		Type:      EventTopologySwap,
		Timestamp: time.Now(),
		Node:      "10.0.0.1:7000",
		Version:   3,
		Nodes:     6,
	}
	s := swap.String()
	if s == "" {
		t.Error("Expected non-empty string for swap event")
	}

	redirect := &Event{
		Type:      EventRedirect,
		Timestamp: time.Now(),
		Node:      "10.0.0.2:7000",
		Detail:    "ask",
	}
	if redirect.String() == "" {
		t.Error("Expected non-empty string for redirect event")
	}
}
