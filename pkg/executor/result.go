package executor

import (
	"fmt"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
)

// NodeResult pairs a node with the outcome of one task run against it.
// Exactly one of Value and Err is meaningful.
type NodeResult[T any] struct {
	// Node is the node the task finally ran against. After redirects
	// this is the last node tried, not the one the caller supplied.
	Node cluster.NodeDescriptor

	// Value is the callback's return value when Err is nil.
	Value T

	// Err is the captured failure, nil on success.
	Err error

	// Attempts counts command attempts, including redirect retries.
	Attempts int
}

// Ok reports whether the task succeeded
func (r NodeResult[T]) Ok() bool {
	return r.Err == nil
}

// Unpack returns the value and error as an ordinary pair
func (r NodeResult[T]) Unpack() (T, error) {
	return r.Value, r.Err
}

// BatchResult is the aggregated outcome of a fan-out: one NodeResult
// per participating node, successes and failures side by side. The
// batch itself never hides a failure; reducers escalate on request.
type BatchResult[T any] struct {
	Results []NodeResult[T]
}

// Len returns the number of node tasks in the batch
func (b *BatchResult[T]) Len() int {
	return len(b.Results)
}

// Failures returns the failed entries of the batch
func (b *BatchResult[T]) Failures() []NodeFailure {
	var failures []NodeFailure
	for _, r := range b.Results {
		if r.Err != nil {
			failures = append(failures, NodeFailure{Node: r.Node, Err: r.Err})
		}
	}
	return failures
}

// AllFailed reports whether every node task failed
func (b *BatchResult[T]) AllFailed() bool {
	if len(b.Results) == 0 {
		return false
	}
	for _, r := range b.Results {
		if r.Err == nil {
			return false
		}
	}
	return true
}

// Values demands all-success semantics: it returns every value in
// task order, or a PartialBatchFailure listing each failed node when
// any task failed.
func (b *BatchResult[T]) Values() ([]T, error) {
	if failures := b.Failures(); len(failures) > 0 {
		return nil, &PartialBatchFailure{Total: len(b.Results), Failures: failures}
	}
	out := make([]T, len(b.Results))
	for i, r := range b.Results {
		out[i] = r.Value
	}
	return out, nil
}

// KeyGroup is the set of keys a multi-key command routes to one node.
type KeyGroup struct {
	// Node serves every key in the group under the topology the
	// grouping was computed from.
	Node cluster.NodeDescriptor

	// Keys holds the group's keys in caller order.
	Keys [][]byte

	// Positions maps each key back to its index in the caller's
	// original key list.
	Positions []int
}

// KeyedBatch is the outcome of a multi-key fan-out: one node task per
// key group, each producing one value per key in the group.
type KeyedBatch[T any] struct {
	// Groups describes how the keys were split across nodes.
	Groups []KeyGroup

	// Results holds one entry per group, aligned with Groups.
	Results []NodeResult[[]T]

	keyCount int
}

// Len returns the number of node tasks the fan-out dispatched
func (b *KeyedBatch[T]) Len() int {
	return len(b.Results)
}

// KeyCount returns the number of keys the caller supplied
func (b *KeyedBatch[T]) KeyCount() int {
	return b.keyCount
}

// Failures returns the failed entries of the batch
func (b *KeyedBatch[T]) Failures() []NodeFailure {
	var failures []NodeFailure
	for _, r := range b.Results {
		if r.Err != nil {
			failures = append(failures, NodeFailure{Node: r.Node, Err: r.Err})
		}
	}
	return failures
}

// AllFailed reports whether every node task failed
func (b *KeyedBatch[T]) AllFailed() bool {
	if len(b.Results) == 0 {
		return false
	}
	for _, r := range b.Results {
		if r.Err == nil {
			return false
		}
	}
	return true
}

// ValuesByKey reassembles per-key values into the caller's original
// key order, regardless of which node produced each one or in what
// order the node tasks completed. It demands all-success semantics:
// any failed group surfaces as a PartialBatchFailure.
func (b *KeyedBatch[T]) ValuesByKey() ([]T, error) {
	if failures := b.Failures(); len(failures) > 0 {
		return nil, &PartialBatchFailure{Total: len(b.Results), Failures: failures}
	}

	out := make([]T, b.keyCount)
	for i, r := range b.Results {
		group := b.Groups[i]
		if len(r.Value) != len(group.Keys) {
			return nil, fmt.Errorf("%w: node %s returned %d values for %d keys",
				ErrValueCount, group.Node.Addr, len(r.Value), len(group.Keys))
		}
		for j, pos := range group.Positions {
			out[pos] = r.Value[j]
		}
	}
	return out, nil
}
