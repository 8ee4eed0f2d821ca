package parallel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_RunsSubmittedTask(t *testing.T) {
	pool, err := NewWorkerPool(4)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}

	var ran atomic.Bool
	if err := pool.Submit(context.Background(), func() { ran.Store(true) }); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	pool.Close()
	if !ran.Load() {
		t.Error("task did not run before Close returned")
	}
}

func TestWorkerPool_ClampsSizeToOne(t *testing.T) {
	for _, size := range []int{0, -3} {
		pool, err := NewWorkerPool(size)
		if err != nil {
			t.Fatalf("NewWorkerPool(%d): %v", size, err)
		}
		if pool.Workers() != 1 {
			t.Errorf("NewWorkerPool(%d).Workers() = %d, want 1", size, pool.Workers())
		}
		pool.Close()
	}
}

func TestWorkerPool_AllTasksRunOnce(t *testing.T) {
	pool, err := NewWorkerPool(5)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}

	const tasks = 50
	ran := make([]int32, tasks)
	for i := 0; i < tasks; i++ {
		id := i
		if err := pool.Submit(context.Background(), func() {
			atomic.AddInt32(&ran[id], 1)
		}); err != nil {
			t.Fatalf("Submit(%d): %v", id, err)
		}
	}
	pool.Close()

	for i, n := range ran {
		if n != 1 {
			t.Errorf("task %d ran %d times", i, n)
		}
	}
}

func TestWorkerPool_ConcurrentSubmitters(t *testing.T) {
	pool, err := NewWorkerPool(10)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}

	var counter int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Submit(context.Background(), func() {
				atomic.AddInt64(&counter, 1)
			})
		}()
	}
	wg.Wait()
	pool.Close()

	if counter != 100 {
		t.Errorf("counter = %d, want 100", counter)
	}
}

func TestWorkerPool_SubmitAfterClose(t *testing.T) {
	pool, err := NewWorkerPool(2)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}
	pool.Close()

	err = pool.Submit(context.Background(), func() {
		t.Error("task ran on a closed pool")
	})
	if !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit after Close = %v, want ErrPoolClosed", err)
	}
}

func TestWorkerPool_BackpressureHonorsContext(t *testing.T) {
	pool, err := NewWorkerPool(1)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}
	defer pool.Close()

	// Park the only worker, then fill its queue.
	release := make(chan struct{})
	parked := make(chan struct{})
	defer close(release)
	pool.Submit(context.Background(), func() {
		close(parked)
		<-release
	})
	<-parked
	for i := 0; i < queueDepth; i++ {
		if err := pool.Submit(context.Background(), func() {}); err != nil {
			t.Fatalf("queue fill %d: %v", i, err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = pool.Submit(ctx, func() {})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Submit on full queue = %v, want DeadlineExceeded", err)
	}
}

func TestWorkerPool_CloseIsIdempotent(t *testing.T) {
	pool, err := NewWorkerPool(4)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}
	for i := 0; i < 10; i++ {
		pool.Submit(context.Background(), func() {
			time.Sleep(time.Millisecond)
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Close()
		}()
	}
	wg.Wait()
	pool.Close()
}

func TestWorkerPool_SubmitCloseRace(t *testing.T) {
	for iter := 0; iter < 100; iter++ {
		pool, err := NewWorkerPool(4)
		if err != nil {
			t.Fatalf("NewWorkerPool: %v", err)
		}

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
				defer cancel()
				for j := 0; j < 10; j++ {
					// Rejected once the pool closes; that is the point.
					if err := pool.Submit(ctx, func() {
						time.Sleep(time.Millisecond)
					}); err != nil {
						return
					}
				}
			}()
		}

		time.Sleep(2 * time.Millisecond)
		pool.Close()
		wg.Wait()
	}
}

func TestWorkerPool_ContainsPanics(t *testing.T) {
	pool, err := NewWorkerPool(4)
	if err != nil {
		t.Fatalf("NewWorkerPool: %v", err)
	}

	for i := 0; i < 5; i++ {
		pool.Submit(context.Background(), func() {
			panic("task gone wrong")
		})
	}

	var counter int64
	for i := 0; i < 10; i++ {
		pool.Submit(context.Background(), func() {
			atomic.AddInt64(&counter, 1)
		})
	}
	pool.Close()

	if counter != 10 {
		t.Errorf("counter = %d, want 10; panics took workers down", counter)
	}
}

func BenchmarkWorkerPool_Submit(b *testing.B) {
	pool, err := NewWorkerPool(10)
	if err != nil {
		b.Fatalf("NewWorkerPool: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pool.Submit(context.Background(), func() {})
	}
	pool.Close()
}

func BenchmarkWorkerPool_SubmitWithWork(b *testing.B) {
	pool, err := NewWorkerPool(10)
	if err != nil {
		b.Fatalf("NewWorkerPool: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pool.Submit(context.Background(), func() {
			sum := 0
			for j := 0; j < 100; j++ {
				sum += j
			}
			_ = sum
		})
	}
	pool.Close()
}
