package aio

import (
	"context"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brickingsoft/rxp"
)

// workerPool offloads blocking issues. Operations on the same target funnel
// through one bound worker to keep per-target ordering; everything else runs
// unbound on the shared executors.
type workerPool struct {
	ring  *Ring
	ctx   context.Context
	bound []*boundWorker
	wg    sync.WaitGroup
}

func newWorkerPool(ring *Ring, execs rxp.Executors) *workerPool {
	pool := &workerPool{
		ring: ring,
		ctx:  rxp.With(context.Background(), execs),
	}
	n := ring.options.BoundWorkers
	pool.bound = make([]*boundWorker, n)
	for i := uint32(0); i < n; i++ {
		pool.bound[i] = &boundWorker{
			pool: pool,
			ch:   make(chan *Request, ring.options.RequestPoolMax),
			idle: ring.options.WorkerIdle,
		}
	}
	return pool
}

func (pool *workerPool) dispatch(req *Request) {
	pool.ring.pool.addRef(req)
	if serializes(req.entry.Opcode) {
		slot := targetKey(req) % uint64(len(pool.bound))
		pool.bound[slot].submit(req)
		return
	}
	task := &unboundTask{pool: pool, req: req}
	for {
		if ok := rxp.TryExecute(pool.ctx, task); ok {
			return
		}
		if !pool.ring.running.Load() {
			// Shutdown in progress, run it inline rather than dropping it.
			pool.execute(req)
			return
		}
		time.Sleep(500 * time.Nanosecond)
	}
}

// execute issues a queued request. The non-blocking pass lets handlers that
// park on a timer or poll registration arm themselves off the engine
// goroutine; everything else claims and issues blocking. A failed claim
// means a canceller won the race and owns the completion.
func (pool *workerPool) execute(req *Request) {
	defer pool.ring.pool.release(req)
	handler, _ := handlerOf(req.entry.Opcode)
	res, flags, outcome, err := handler.Issue(pool.ring, req, false)
	switch outcome {
	case IssueCompleted:
		if req.claim() {
			pool.ring.finish(req, res, flags, err, flags&CQEFMore == 0)
		}
	case IssueArmed:
		// A timer or the poller owns the completion now.
	case IssueWouldBlock:
		if !req.claim() {
			return
		}
		res, flags, _, err = handler.Issue(pool.ring, req, true)
		pool.ring.finish(req, res, flags, err, true)
	}
}

func (pool *workerPool) close() {
	for _, worker := range pool.bound {
		worker.closeOnce.Do(func() { close(worker.ch) })
	}
	pool.wg.Wait()
}

type unboundTask struct {
	pool *workerPool
	req  *Request
}

func (task *unboundTask) Handle(_ context.Context) {
	task.pool.execute(task.req)
}

// boundWorker is a lazily started goroutine that drains its channel in order
// and exits after sitting idle, restarting on the next submit.
type boundWorker struct {
	pool      *workerPool
	ch        chan *Request
	running   atomic.Bool
	idle      time.Duration
	closeOnce sync.Once
}

func (worker *boundWorker) submit(req *Request) {
	worker.ch <- req
	if worker.running.CompareAndSwap(false, true) {
		worker.pool.wg.Add(1)
		go worker.run()
	}
}

func (worker *boundWorker) run() {
	defer worker.pool.wg.Done()
	timer := time.NewTimer(worker.idle)
	defer timer.Stop()
	for {
		select {
		case req, ok := <-worker.ch:
			if !ok {
				worker.running.Store(false)
				return
			}
			worker.pool.execute(req)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(worker.idle)
		case <-timer.C:
			worker.running.Store(false)
			// A submit may have raced the exit, reclaim the goroutine slot.
			if len(worker.ch) > 0 && worker.running.CompareAndSwap(false, true) {
				timer.Reset(worker.idle)
				continue
			}
			return
		}
	}
}

// targetKey hashes a request onto a bound worker. Fixed files key by table
// index, direct handles by identity when the handle kind carries one.
func targetKey(req *Request) uint64 {
	if req.entry.Flags&EntryFixedFile != 0 {
		return uint64(req.entry.Fd)
	}
	if req.file == nil {
		return uint64(req.entry.Fd)
	}
	v := reflect.ValueOf(req.file)
	switch v.Kind() {
	case reflect.Pointer, reflect.Chan, reflect.Map, reflect.Func, reflect.UnsafePointer:
		return uint64(v.Pointer())
	default:
		return uint64(req.entry.Fd)
	}
}
