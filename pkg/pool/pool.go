// Package pool provides typed object pools for thor's hot paths: response
// bodies read by HTTP sessions and the buffers JSON lines are encoded into.
//
// Example usage:
//
//	buf := pool.GetBuffer()
//	defer pool.PutBuffer(buf)
//
//	// Using custom pools
//	rows := pool.New(
//	    func() []string { return make([]string, 0, 32) },
//	    nil,
//	)
package pool

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// maxPooledBuffer is the largest buffer capacity returned to the pool.
// Bigger buffers are dropped so one oversized page does not pin memory.
const maxPooledBuffer = 1 << 20

// Pool is a typed wrapper over sync.Pool that tracks allocations and
// outstanding objects. It is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		gets      int64
	}
}

// New creates a pool. reset, when non-nil, is called on every object
// passed to Put before it is pooled.
func New[T any](new func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return new()
	}
	return p
}

// Get retrieves an object, allocating one when the pool is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.gets, 1)
	atomic.AddInt64(&p.stats.inUse, 1)
	return p.pool.Get().(T)
}

// Put returns obj to the pool.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats reports the objects allocated so far, the objects currently checked
// out, and the Get calls served from a previously pooled object.
func (p *Pool[T]) Stats() (allocated, inUse, hits int64) {
	allocated = atomic.LoadInt64(&p.stats.allocated)
	inUse = atomic.LoadInt64(&p.stats.inUse)
	hits = atomic.LoadInt64(&p.stats.gets) - allocated
	if hits < 0 {
		hits = 0
	}
	return allocated, inUse, hits
}

// Buffers is the shared pool behind GetBuffer and PutBuffer.
var Buffers = New(
	func() *bytes.Buffer { return bytes.NewBuffer(make([]byte, 0, 4096)) },
	func(b *bytes.Buffer) { b.Reset() },
)

// GetBuffer returns an empty pooled buffer.
func GetBuffer() *bytes.Buffer {
	buf := Buffers.Get()
	buf.Reset()
	return buf
}

// PutBuffer returns buf to the pool. Buffers that grew past 1 MiB are
// released to the garbage collector instead.
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil {
		return
	}
	if buf.Cap() > maxPooledBuffer {
		atomic.AddInt64(&Buffers.stats.inUse, -1)
		return
	}
	Buffers.Put(buf)
}

// Copy returns a copy of buf's contents that stays valid after buf is
// returned to the pool.
func Copy(buf *bytes.Buffer) []byte {
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}
