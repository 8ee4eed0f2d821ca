package executor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/dd0wney/cluso-kvclient/pkg/cluster"
	"github.com/dd0wney/cluso-kvclient/pkg/logging"
	"github.com/dd0wney/cluso-kvclient/pkg/transport"
)

// Handler runs one command against a live connection to a node and
// returns its result. The context carries the per-node deadline;
// implementations must pass it through to every transport call.
type Handler[T any] func(ctx context.Context, conn transport.Conn) (T, error)

// KeyedHandler runs one multi-key command against the node serving
// keys. It must return exactly one value per key, in key order.
type KeyedHandler[T any] func(ctx context.Context, conn transport.Conn, keys [][]byte) ([]T, error)

// OnSingleNode runs fn against one node and wraps the outcome with the
// node it finally ran on. Moved and ask signals are chased through
// fresh topology up to the executor's redirect budget; an unreachable
// node is re-resolved once in case its address changed on failover.
func OnSingleNode[T any](ctx context.Context, e *Executor, node cluster.NodeDescriptor, fn Handler[T]) NodeResult[T] {
	return routed(ctx, e, "single", node, fn)
}

// OnKey routes a key to the master serving its hash slot and runs fn
// there. This is the path every routed single-key command takes.
func OnKey[T any](ctx context.Context, e *Executor, key []byte, fn Handler[T]) NodeResult[T] {
	node, err := e.Route(ctx, key)
	if err != nil {
		return NodeResult[T]{Err: err}
	}
	return routed(ctx, e, "single", node, fn)
}

// OnArbitraryNode runs fn against a randomly chosen node. Use it for
// commands every node answers identically, like server metadata.
func OnArbitraryNode[T any](ctx context.Context, e *Executor, fn Handler[T]) NodeResult[T] {
	topo, err := e.provider.Topology(ctx)
	if err != nil {
		return NodeResult[T]{Err: err}
	}
	nodes := topo.Nodes()
	if len(nodes) == 0 {
		return NodeResult[T]{Err: ErrNoNodes}
	}
	return routed(ctx, e, "arbitrary", nodes[rand.Intn(len(nodes))], fn)
}

// OnAllNodes runs fn against every node in the current topology
// concurrently and returns one NodeResult per node. The call joins
// every task before returning: a slow node delays the batch, a failed
// node becomes a failure entry, and no task is abandoned. The batch
// comes back with a non-nil error only when every node failed.
func OnAllNodes[T any](ctx context.Context, e *Executor, fn Handler[T]) (*BatchResult[T], error) {
	topo, err := e.provider.Topology(ctx)
	if err != nil {
		return nil, err
	}
	return fanOut(ctx, e, "all", topo.Nodes(), fn)
}

// OnAllMasters is OnAllNodes restricted to masters. Aggregations that
// must count each key once use it so replicas do not double-report.
func OnAllMasters[T any](ctx context.Context, e *Executor, fn Handler[T]) (*BatchResult[T], error) {
	topo, err := e.provider.Topology(ctx)
	if err != nil {
		return nil, err
	}
	return fanOut(ctx, e, "all_masters", topo.Masters(), fn)
}

// MultiKey groups keys by the master serving each key's slot, runs fn
// once per group concurrently, and joins every task. Unlike native
// multi-key commands the keys need not share a slot; the grouping is
// the explicit fan-out alternative to a cross-slot rejection. Use
// ValuesByKey on the result to reassemble values in key order.
func MultiKey[T any](ctx context.Context, e *Executor, keys [][]byte, fn KeyedHandler[T]) (*KeyedBatch[T], error) {
	start := time.Now()
	if fn == nil {
		return nil, ErrNilHandler
	}
	if e.closed.Load() {
		return nil, ErrExecutorDown
	}

	groups, err := e.GroupByNode(ctx, keys)
	if err != nil {
		return nil, err
	}

	e.metrics.ExecutorBatchFanout.Observe(float64(len(groups)))

	results := make([]NodeResult[[]T], len(groups))
	var wg sync.WaitGroup
	for i, group := range groups {
		wg.Add(1)
		submitErr := e.workers.Submit(ctx, func() {
			defer wg.Done()
			results[i] = runKeyedTask(ctx, e, group, fn)
		})
		if submitErr != nil {
			results[i] = NodeResult[[]T]{Node: group.Node, Err: submitErr}
			wg.Done()
		}
	}
	wg.Wait()

	batch := &KeyedBatch[T]{Groups: groups, Results: results, keyCount: len(keys)}
	for _, r := range results {
		if r.Err != nil {
			e.noteNodeError(r.Node.Addr, r.Err)
		}
	}
	if batch.AllFailed() {
		e.metrics.RecordCommand("multikey", "error", time.Since(start))
		return batch, &PartialBatchFailure{Total: len(results), Failures: batch.Failures()}
	}
	outcome := "ok"
	if len(batch.Failures()) > 0 {
		outcome = "partial"
	}
	e.metrics.RecordCommand("multikey", outcome, time.Since(start))
	return batch, nil
}

// routed is the shared single-node path: resolve the descriptor, run
// with redirect chasing, record the outcome.
func routed[T any](ctx context.Context, e *Executor, mode string, node cluster.NodeDescriptor, fn Handler[T]) NodeResult[T] {
	start := time.Now()
	if fn == nil {
		return NodeResult[T]{Node: node, Err: ErrNilHandler}
	}
	if e.closed.Load() {
		return NodeResult[T]{Node: node, Err: ErrExecutorDown}
	}

	// The caller's descriptor may predate a failover; resolve it
	// against the current snapshot before dialing. A topology error
	// here is not fatal while the descriptor still carries an address.
	if topo, err := e.provider.Topology(ctx); err == nil {
		node = topo.Lookup(node)
	}

	result := runWithRedirects(ctx, e, node, fn)
	if result.Err != nil {
		e.noteNodeError(result.Node.Addr, result.Err)
		e.metrics.RecordCommand(mode, "error", time.Since(start))
	} else {
		e.metrics.RecordCommand(mode, "ok", time.Since(start))
	}
	return result
}

// runWithRedirects attempts fn against target, following redirect
// signals to new targets until success, a terminal error, or an
// exhausted redirect budget.
func runWithRedirects[T any](ctx context.Context, e *Executor, target cluster.NodeDescriptor, fn Handler[T]) NodeResult[T] {
	e.metrics.ExecutorTasksInFlight.Inc()
	defer e.metrics.ExecutorTasksInFlight.Dec()

	attempts := 0
	for {
		attempts++
		value, err := attempt(ctx, e, target.Addr, fn)
		if err == nil {
			return NodeResult[T]{Node: target, Value: value, Attempts: attempts}
		}
		if ctx.Err() != nil {
			// The caller is gone; do not chase redirects for them.
			return NodeResult[T]{Node: target, Err: err, Attempts: attempts}
		}

		next, retry := e.redirect(ctx, target, err)
		if !retry {
			return NodeResult[T]{Node: target, Err: err, Attempts: attempts}
		}
		if attempts > e.MaxRedirects() {
			e.metrics.ExecutorRedirectsExhausted.Inc()
			e.logger.Warn("redirect budget exhausted",
				logging.Addr(target.Addr.String()),
				logging.Attempt(attempts),
				logging.Error(err))
			return NodeResult[T]{Node: target, Attempts: attempts, Err: &RedirectLimitExceededError{
				Node:     target,
				Attempts: attempts,
				Err:      err,
			}}
		}

		e.logger.Debug("following redirect",
			logging.Addr(target.Addr.String()),
			logging.String("next", next.Addr.String()),
			logging.Attempt(attempts))
		target = next
	}
}

// fanOut dispatches one task per node to the worker pool and joins
// them all. Per-node failures are data; the error return is reserved
// for the everything-failed case.
func fanOut[T any](ctx context.Context, e *Executor, mode string, nodes []cluster.NodeDescriptor, fn Handler[T]) (*BatchResult[T], error) {
	start := time.Now()
	if fn == nil {
		return nil, ErrNilHandler
	}
	if e.closed.Load() {
		return nil, ErrExecutorDown
	}
	if len(nodes) == 0 {
		return nil, ErrNoNodes
	}

	e.metrics.ExecutorBatchFanout.Observe(float64(len(nodes)))

	results := make([]NodeResult[T], len(nodes))
	var wg sync.WaitGroup
	for i, node := range nodes {
		wg.Add(1)
		submitErr := e.workers.Submit(ctx, func() {
			defer wg.Done()
			results[i] = runTask(ctx, e, node, fn)
		})
		if submitErr != nil {
			results[i] = NodeResult[T]{Node: node, Err: submitErr}
			wg.Done()
		}
	}
	wg.Wait()

	batch := &BatchResult[T]{Results: results}
	for _, r := range results {
		if r.Err != nil {
			e.noteNodeError(r.Node.Addr, r.Err)
		}
	}
	if batch.AllFailed() {
		e.metrics.RecordCommand(mode, "error", time.Since(start))
		return batch, &PartialBatchFailure{Total: len(results), Failures: batch.Failures()}
	}
	outcome := "ok"
	if len(batch.Failures()) > 0 {
		outcome = "partial"
	}
	e.metrics.RecordCommand(mode, outcome, time.Since(start))
	return batch, nil
}

// runTask is one fan-out task: a single attempt against one node,
// with panics captured into the task's result so a bad callback can
// fail only its own entry.
func runTask[T any](ctx context.Context, e *Executor, node cluster.NodeDescriptor, fn Handler[T]) (result NodeResult[T]) {
	e.metrics.ExecutorTasksInFlight.Inc()
	defer e.metrics.ExecutorTasksInFlight.Dec()
	defer func() {
		if r := recover(); r != nil {
			result = NodeResult[T]{Node: node, Attempts: 1, Err: fmt.Errorf("%w: %v", ErrCallbackPanic, r)}
		}
	}()

	value, err := attempt(ctx, e, node.Addr, fn)
	return NodeResult[T]{Node: node, Value: value, Err: err, Attempts: 1}
}

// runKeyedTask is runTask for one key group, enforcing the one value
// per key contract on the callback's return.
func runKeyedTask[T any](ctx context.Context, e *Executor, group KeyGroup, fn KeyedHandler[T]) (result NodeResult[[]T]) {
	e.metrics.ExecutorTasksInFlight.Inc()
	defer e.metrics.ExecutorTasksInFlight.Dec()
	defer func() {
		if r := recover(); r != nil {
			result = NodeResult[[]T]{Node: group.Node, Attempts: 1, Err: fmt.Errorf("%w: %v", ErrCallbackPanic, r)}
		}
	}()

	values, err := keyedAttempt(ctx, e, group, fn)
	if err == nil && len(values) != len(group.Keys) {
		err = fmt.Errorf("%w: node %s returned %d values for %d keys",
			ErrValueCount, group.Node.Addr, len(values), len(group.Keys))
		values = nil
	}
	return NodeResult[[]T]{Node: group.Node, Value: values, Err: err, Attempts: 1}
}

// attempt borrows a connection, runs fn under the per-node deadline,
// and returns the connection on every exit path, panics included.
func attempt[T any](ctx context.Context, e *Executor, addr cluster.NodeAddress, fn Handler[T]) (value T, err error) {
	actx := ctx
	if timeout := e.config.NodeTimeout; timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := e.pools.Borrow(actx, addr)
	if err != nil {
		return value, err
	}
	// Return must succeed even when the attempt's deadline already
	// fired, or timed-out tasks would leak their connections.
	defer e.pools.Return(context.WithoutCancel(ctx), conn)

	return fn(actx, conn)
}

// keyedAttempt is attempt for a key group
func keyedAttempt[T any](ctx context.Context, e *Executor, group KeyGroup, fn KeyedHandler[T]) (values []T, err error) {
	actx := ctx
	if timeout := e.config.NodeTimeout; timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := e.pools.Borrow(actx, group.Node.Addr)
	if err != nil {
		return nil, err
	}
	defer e.pools.Return(context.WithoutCancel(ctx), conn)

	return fn(actx, conn, group.Keys)
}
