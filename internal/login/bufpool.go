package login

import "sync"

// BytePool is a pool of reusable []byte buffers, reducing GC pressure
// from per-packet allocation.
type BytePool struct {
	pool sync.Pool
}

// NewBytePool creates a pool whose new slices start at defaultCap.
func NewBytePool(defaultCap int) *BytePool {
	p := &BytePool{}
	p.pool.New = func() any {
		return make([]byte, 0, defaultCap)
	}
	return p
}

// Get returns a slice of length size, reused from the pool when it
// has enough capacity.
func (p *BytePool) Get(size int) []byte {
	b := p.pool.Get().([]byte)
	if cap(b) < size {
		p.pool.Put(b)
		return make([]byte, size)
	}
	b = b[:size]
	clear(b)
	return b
}

// Put returns a slice to the pool.
func (p *BytePool) Put(b []byte) {
	if b == nil {
		return
	}
	p.pool.Put(b[:0])
}
