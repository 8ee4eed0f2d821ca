// Package parallel bounds the goroutines a fan-out may spend. The
// executor leans on it so a hundred-node batch costs a fixed number of
// workers, not a goroutine per node.
package parallel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/dd0wney/cluso-kvclient/pkg/logging"
)

var (
	// ErrPoolClosed is returned for submissions after Close
	ErrPoolClosed = errors.New("worker pool closed")

	// ErrTooManyWorkers rejects sizes that would overflow the queue
	ErrTooManyWorkers = errors.New("worker count exceeds maximum")
)

// queueDepth is the pending-task buffer per worker. Submissions block
// once every worker is busy and the buffer is full.
const queueDepth = 2

// MaxWorkers caps the pool size so the queue buffer cannot overflow
const MaxWorkers = math.MaxInt / queueDepth

// WorkerPool runs submitted tasks on a fixed set of goroutines.
//
// Concurrent Safety:
//  1. Submit and Close may race freely; the queue is only closed under
//     the write lock and every send holds the read lock.
//  2. Close drains: every task accepted before Close runs before Close
//     returns.
type WorkerPool struct {
	size   int
	queue  chan func()
	drain  sync.WaitGroup
	logger logging.Logger

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

// NewWorkerPool starts size workers. Non-positive sizes run a single
// worker.
func NewWorkerPool(size int) (*WorkerPool, error) {
	if size <= 0 {
		size = 1
	}
	if size > MaxWorkers {
		return nil, fmt.Errorf("%w: %d exceeds %d", ErrTooManyWorkers, size, MaxWorkers)
	}

	wp := &WorkerPool{
		size:   size,
		queue:  make(chan func(), size*queueDepth),
		logger: logging.DefaultLogger().With(logging.Component("parallel")),
	}
	wp.drain.Add(size)
	for i := 0; i < size; i++ {
		go wp.consume()
	}
	return wp, nil
}

// Workers returns the pool size
func (wp *WorkerPool) Workers() int {
	return wp.size
}

// consume runs queued tasks until the queue closes. A panicking task
// is contained so it cannot take its worker down with it.
func (wp *WorkerPool) consume() {
	defer wp.drain.Done()
	for task := range wp.queue {
		func() {
			defer func() {
				if r := recover(); r != nil {
					wp.logger.Error("task panic contained", logging.Any("panic", r))
				}
			}()
			task()
		}()
	}
}

// Submit queues a task for execution. With every worker busy and the
// queue full it blocks until space frees or ctx is done.
func (wp *WorkerPool) Submit(ctx context.Context, task func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrPoolClosed
	}

	// The read lock pins the queue open: Close needs the write lock
	// before it may close the channel.
	select {
	case wp.queue <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake and waits for every accepted task to finish.
// Safe to call repeatedly and from several goroutines.
func (wp *WorkerPool) Close() {
	wp.once.Do(func() {
		wp.mu.Lock()
		wp.closed = true
		close(wp.queue)
		wp.mu.Unlock()
	})
	wp.drain.Wait()
}
