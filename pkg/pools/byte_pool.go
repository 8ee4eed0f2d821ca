package pools

import (
	"sync"
)

// Buffer size classes, sized for typical wire traffic: bare commands
// and acks in the tens of bytes, single-key replies in the hundreds,
// pipelined batches in the kilobytes.
const (
	TinySize   = 16    // Acks, pings, bare headers
	SmallSize  = 64    // Single commands with short keys
	MediumSize = 256   // Typical single-key replies
	LargeSize  = 1024  // Larger values, topology payloads
	HugeSize   = 4096  // Pipelined batches
	MaxPool    = 65536 // Buffers above this are left to the allocator
)

// classSizes ascend; a request takes the first class that fits
var classSizes = [...]int{TinySize, SmallSize, MediumSize, LargeSize, HugeSize}

// BytePool hands out byte slices from per-size-class free lists.
// Every buffer filed under a class is guaranteed at least that class's
// capacity: new buffers are allocated at exactly the class size and
// returned ones are filed under the largest class they can cover.
//
// Concurrent Safety:
//  1. Get and Put are safe for concurrent use; each size class is a
//     sync.Pool underneath.
//  2. A buffer must not be used after Put returns it to the pool.
type BytePool struct {
	classes [len(classSizes)]sync.Pool
}

// NewBytePool creates a pool with one free list per size class
func NewBytePool() *BytePool {
	p := &BytePool{}
	for i := range p.classes {
		capacity := classSizes[i]
		p.classes[i].New = func() any {
			b := make([]byte, 0, capacity)
			return &b
		}
	}
	return p
}

// getClass returns the smallest class serving size, or -1 when the
// request is too large to pool
func getClass(size int) int {
	for i, c := range classSizes {
		if size <= c {
			return i
		}
	}
	return -1
}

// putClass returns the largest class a buffer of capacity c can serve,
// or -1 when the buffer is too small or too large to keep
func putClass(c int) int {
	if c > MaxPool {
		return -1
	}
	for i := len(classSizes) - 1; i >= 0; i-- {
		if c >= classSizes[i] {
			return i
		}
	}
	return -1
}

// Get returns a zero-length slice with at least the requested capacity
func (p *BytePool) Get(size int) []byte {
	i := getClass(size)
	if i < 0 {
		return make([]byte, 0, size)
	}
	bp := p.classes[i].Get().(*[]byte)
	return (*bp)[:0]
}

// GetSized returns a slice with exactly the requested length. Contents
// are unspecified; callers fill it before reading.
func (p *BytePool) GetSized(size int) []byte {
	i := getClass(size)
	if i < 0 {
		return make([]byte, size)
	}
	bp := p.classes[i].Get().(*[]byte)
	return (*bp)[:size]
}

// Put files a slice back for reuse. Oversized and undersized buffers
// are dropped.
func (p *BytePool) Put(b []byte) {
	i := putClass(cap(b))
	if i < 0 {
		return
	}
	b = b[:0]
	p.classes[i].Put(&b)
}

// Default pool shared by the frame codec
var defaultBytePool = NewBytePool()

// GetBytes returns a zero-length slice from the default pool
func GetBytes(size int) []byte {
	return defaultBytePool.Get(size)
}

// GetBytesSized returns an exact-length slice from the default pool
func GetBytesSized(size int) []byte {
	return defaultBytePool.GetSized(size)
}

// PutBytes files a slice back into the default pool
func PutBytes(b []byte) {
	defaultBytePool.Put(b)
}
