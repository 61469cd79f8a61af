package aio

import (
	"sync"

	"github.com/brickingsoft/errors"
)

// requestPool is the arena of Request records. The freelist refills in
// batches to bound allocator contention; exhaustion blocks acquisition until
// requests retire, back-pressuring the submission pipeline.
type requestPool struct {
	mu     sync.Mutex
	arena  []*Request
	free   []int32
	batch  int32
	max    int32
	refill chan struct{}
	closed bool
}

func newRequestPool(batch uint32, max uint32) *requestPool {
	if batch == 0 {
		batch = 64
	}
	if max == 0 {
		max = 4096
	}
	if max < batch {
		max = batch
	}
	return &requestPool{
		arena:  make([]*Request, 0, batch),
		free:   make([]int32, 0, batch),
		batch:  int32(batch),
		max:    int32(max),
		refill: make(chan struct{}, 1),
	}
}

func (pool *requestPool) grow() {
	n := int32(len(pool.arena))
	grow := pool.batch
	if n+grow > pool.max {
		grow = pool.max - n
	}
	for i := int32(0); i < grow; i++ {
		req := &Request{index: n + i, link: noLink, bufIndex: -1}
		pool.arena = append(pool.arena, req)
		pool.free = append(pool.free, req.index)
	}
}

// acquire returns a ready request, blocking while the arena is saturated.
func (pool *requestPool) acquire() (req *Request, err error) {
	for {
		pool.mu.Lock()
		if pool.closed {
			pool.mu.Unlock()
			err = errors.From(ErrClosed, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
			return
		}
		if len(pool.free) == 0 && int32(len(pool.arena)) < pool.max {
			pool.grow()
		}
		if n := len(pool.free); n > 0 {
			index := pool.free[n-1]
			pool.free = pool.free[:n-1]
			req = pool.arena[index]
			req.reset()
			req.cancelCh = make(chan struct{})
			req.status.Store(ReadyRequestStatus)
			req.refs.Store(1)
			pool.mu.Unlock()
			return
		}
		pool.mu.Unlock()
		<-pool.refill
	}
}

func (pool *requestPool) get(index int32) *Request {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	if index < 0 || index >= int32(len(pool.arena)) {
		return nil
	}
	return pool.arena[index]
}

// addRef pins a request across a queue handoff so the retiring side cannot
// recycle it while another context still holds it.
func (pool *requestPool) addRef(req *Request) {
	req.refs.Add(1)
}

// release drops one reference; the last one returns the request to the
// freelist and wakes a blocked acquirer.
func (pool *requestPool) release(req *Request) {
	if req.refs.Add(-1) != 0 {
		return
	}
	req.releaseResources()
	pool.mu.Lock()
	req.status.Store(FreeRequestStatus)
	pool.free = append(pool.free, req.index)
	pool.mu.Unlock()
	select {
	case pool.refill <- struct{}{}:
	default:
	}
}

// snapshot lists live requests for selector matching. The slice is a copy,
// entries may retire while the caller scans.
func (pool *requestPool) snapshot(dst []*Request) []*Request {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	dst = dst[:0]
	for _, req := range pool.arena {
		if status := req.status.Load(); status != FreeRequestStatus {
			dst = append(dst, req)
		}
	}
	return dst
}

func (pool *requestPool) close() {
	pool.mu.Lock()
	pool.closed = true
	pool.mu.Unlock()
	select {
	case pool.refill <- struct{}{}:
	default:
	}
}
