package optimize

import "sync"

// BytePool recycles fixed-size pixel buffers so the capture and conversion
// paths do not allocate per frame. All buffers handed out by one pool share
// a single size; a pool is rebuilt when the capture profile changes.
type BytePool struct {
	size int
	pool sync.Pool
}

func NewBytePool(size int) *BytePool {
	p := &BytePool{size: size}
	p.pool.New = func() interface{} {
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// Get returns a buffer of exactly the pool's size. Contents are whatever the
// previous user left behind; callers overwrite before reading.
func (p *BytePool) Get() []byte {
	return (*p.pool.Get().(*[]byte))[:p.size]
}

// Put recycles a buffer obtained from Get. Buffers that no longer fit the
// pool's size are left to the garbage collector.
func (p *BytePool) Put(b []byte) {
	if cap(b) < p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}

// Size reports the buffer size this pool hands out.
func (p *BytePool) Size() int {
	return p.size
}
