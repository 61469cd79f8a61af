package aio

import (
	"context"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/ringio/pkg/aio/queue"
)

// Ring is the asynchronous execution engine: a submission/completion ring
// pair, fixed resource tables, a request arena and the pipelines that move
// work between them. One engine goroutine drains submissions; blocking work
// runs on bound workers or the shared executors.
type Ring struct {
	options      Options
	pair         *ringPair
	pool         *requestPool
	files        *resourceTable[FileHandle]
	buffers      *resourceTable[[]byte]
	workers      *workerPool
	poller       *poller
	waiters      *waiterList
	funnel       *queue.Queue[completionRecord]
	chainQ       *queue.Queue[chainEvent]
	tran         *CurveTransmission
	cqMu         sync.Mutex
	overflow     []CompletionEntry
	overflowN    atomic.Int32
	timersMu     sync.Mutex
	timers       map[uint64]int32
	inflight     atomic.Int64
	running      atomic.Bool
	ready        chan struct{}
	singleIssuer bool
	wg           sync.WaitGroup
	notifyMu     sync.Mutex
	notifier     Notifier
}

func New(options ...Option) (ring *Ring, err error) {
	opts := Options{}
	for _, opt := range options {
		opt(&opts)
	}
	opts.normalize()
	if opts.Executors == nil {
		err = errors.From(ErrInvalidArgument,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithWrap(errors.New("missing executors")),
		)
		return
	}
	pair, pairErr := newRingPair(opts.SQEntries, opts.CQEntries, opts.SingleProducer)
	if pairErr != nil {
		err = pairErr
		return
	}
	ring = &Ring{
		options:      opts,
		pair:         pair,
		pool:         newRequestPool(opts.RequestPoolIncr, opts.RequestPoolMax),
		files:        newResourceTable[FileHandle](opts.FileSlots),
		buffers:      newResourceTable[[]byte](opts.BufferSlots),
		waiters:      &waiterList{},
		funnel:       queue.New[completionRecord](),
		chainQ:       queue.New[chainEvent](),
		tran:         NewCurveTransmission(opts.WaitCurve),
		timers:       make(map[uint64]int32),
		ready:        make(chan struct{}, 1),
		singleIssuer: opts.SingleIssuer,
	}
	ring.workers = newWorkerPool(ring, opts.Executors)
	ring.poller = newPoller(ring)
	ring.running.Store(true)
	ring.wg.Add(1)
	go ring.run()
	return
}

// SQCapacity reports the submission ring capacity after rounding.
func (ring *Ring) SQCapacity() uint32 { return ring.pair.sq.capacity() }

// CQCapacity reports the completion ring capacity after rounding.
func (ring *Ring) CQCapacity() uint32 { return ring.pair.cq.capacity() }

// Flags exposes the shared flag word carrying the needs-wakeup and overflow
// bits.
func (ring *Ring) Flags() uint32 { return ring.pair.flags.Load() }

// Dropped counts submission entries rejected before a request existed.
func (ring *Ring) Dropped() uint32 { return ring.pair.dropped.Load() }

// TryEnqueue publishes one submission entry, reporting false when the ring
// is full or closed. A sleeping engine is woken when the needs-wakeup flag
// is up.
func (ring *Ring) TryEnqueue(entry SubmissionEntry) bool {
	if !ring.running.Load() {
		return false
	}
	if !ring.pair.sq.tryEnqueue(entry) {
		return false
	}
	if ring.pair.hasFlag(ringNeedsWakeup) {
		ring.signal()
	}
	return true
}

// Enqueue publishes as many of the given entries as fit.
func (ring *Ring) Enqueue(entries ...SubmissionEntry) (n int) {
	for _, entry := range entries {
		if !ring.TryEnqueue(entry) {
			return
		}
		n++
	}
	return
}

// PeekCompletions drains up to len(dst) completion entries without blocking.
func (ring *Ring) PeekCompletions(dst []CompletionEntry) (n uint32) {
	n = ring.pair.cq.drain(dst)
	if n > 0 && ring.overflowN.Load() > 0 {
		// Freed space, let the engine backfill spilled entries.
		ring.signal()
	}
	return
}

// Enter waits until at least waitNr completions are visible, then drains
// into dst. With waitNr zero and nothing pending it fails with ErrWouldBlock.
func (ring *Ring) Enter(ctx context.Context, dst []CompletionEntry, waitNr uint32, deadline time.Time) (n uint32, err error) {
	if waitNr > uint32(len(dst)) {
		waitNr = uint32(len(dst))
	}
	for {
		n += ring.PeekCompletions(dst[n:])
		if n >= waitNr {
			if n == 0 {
				err = errors.From(ErrWouldBlock, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
			}
			return
		}
		if waitErr := ring.WaitCompletions(ctx, waitNr-n, deadline); waitErr != nil {
			if n > 0 {
				return n, nil
			}
			err = waitErr
			return
		}
	}
}

// RegisterFile installs a file handle into the fixed table and returns its
// index.
func (ring *Ring) RegisterFile(file FileHandle) (index int, err error) {
	if file == nil {
		err = errors.From(ErrInvalidArgument, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
		return
	}
	return ring.files.register(file)
}

// UnregisterFile retires a fixed file slot. It fails while in-flight
// requests still reference the slot.
func (ring *Ring) UnregisterFile(index int) (file FileHandle, err error) {
	return ring.files.unregister(index)
}

// RegisterBuffer installs a buffer into the fixed table and returns its
// index.
func (ring *Ring) RegisterBuffer(buf []byte) (index int, err error) {
	if len(buf) == 0 {
		err = errors.From(ErrInvalidArgument, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
		return
	}
	return ring.buffers.register(buf)
}

// UnregisterBuffer retires a fixed buffer slot.
func (ring *Ring) UnregisterBuffer(index int) (buf []byte, err error) {
	return ring.buffers.unregister(index)
}

// Cancel applies the selector to in-flight requests outside the submission
// flow. It fails with ErrCancelNotFound when nothing matched.
func (ring *Ring) Cancel(sel CancelSelector, all bool) (n int, err error) {
	n = ring.cancelMatching(sel, all, nil)
	if n == 0 {
		err = errors.From(ErrCancelNotFound, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
	}
	return
}

// RegisterNotify installs an asynchronous completion notifier. The ring owns
// installed notifiers: a replaced one is closed here, the current one closes
// with the ring. A nil notifier detaches.
func (ring *Ring) RegisterNotify(n Notifier) {
	ring.notifyMu.Lock()
	prev := ring.notifier
	ring.notifier = n
	ring.notifyMu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
}

func (ring *Ring) notify() {
	ring.notifyMu.Lock()
	n := ring.notifier
	ring.notifyMu.Unlock()
	if n != nil {
		n.Notify()
	}
}

// armTimeout schedules expiry for a staged timeout request. The callback
// holds a pool reference so the request cannot recycle underneath it.
func (ring *Ring) armTimeout(req *Request) {
	ring.timersMu.Lock()
	ring.timers[req.entry.UserData] = req.index
	ring.timersMu.Unlock()
	ring.pool.addRef(req)
	req.timer.Store(time.AfterFunc(req.entry.Timeout, func() {
		ring.timeoutFired(req)
	}))
}

func (ring *Ring) timeoutFired(req *Request) {
	defer ring.pool.release(req)
	ring.forgetTimeout(req)
	if req.claim() {
		ring.finish(req, -int32(syscall.ETIME), 0, nil, true)
	}
}

func (ring *Ring) forgetTimeout(req *Request) {
	ring.timersMu.Lock()
	if index, ok := ring.timers[req.entry.UserData]; ok && index == req.index {
		delete(ring.timers, req.entry.UserData)
	}
	ring.timersMu.Unlock()
}

// removeTimeout cancels an armed timeout by its tag. The caller owns the
// ECANCELED completion when the staged CAS wins.
func (ring *Ring) removeTimeout(target uint64) bool {
	ring.timersMu.Lock()
	index, ok := ring.timers[target]
	if ok {
		delete(ring.timers, target)
	}
	ring.timersMu.Unlock()
	if !ok {
		return false
	}
	req := ring.pool.get(index)
	if req == nil || !req.cancelStaged() {
		return false
	}
	if timer := req.timer.Load(); timer != nil && timer.Stop() {
		ring.pool.release(req)
	}
	ring.finish(req, -int32(syscall.ECANCELED), 0, nil, true)
	return true
}

// armLinkTimeout starts the companion timer of a linked predecessor. Firing
// cancels the target and completes the timer with ETIME; the target winning
// completes the timer with ECANCELED instead.
func (ring *Ring) armLinkTimeout(target *Request, lt *Request) {
	ring.pool.addRef(lt)
	ring.pool.addRef(target)
	lt.timer.Store(time.AfterFunc(lt.entry.Timeout, func() {
		defer ring.pool.release(target)
		defer ring.pool.release(lt)
		if !lt.claim() {
			return
		}
		ring.cancelRequest(target)
		ring.finish(lt, -int32(syscall.ETIME), 0, nil, true)
	}))
}

func (ring *Ring) disarmLinkTimeout(target *Request) {
	lt := ring.pool.get(target.linkTimeout)
	target.linkTimeout = noLink
	if lt == nil {
		return
	}
	if !lt.cancelStaged() {
		return
	}
	if timer := lt.timer.Load(); timer != nil && timer.Stop() {
		ring.pool.release(target)
		ring.pool.release(lt)
	}
	ring.finish(lt, -int32(syscall.ECANCELED), 0, nil, true)
}

func (ring *Ring) signal() {
	select {
	case ring.ready <- struct{}{}:
	default:
	}
}

// Close cancels everything in flight, waits for the pipelines to drain and
// releases the resource tables.
func (ring *Ring) Close() (err error) {
	if !ring.running.CompareAndSwap(true, false) {
		err = errors.From(ErrClosed, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
		return
	}
	ring.signal()
	ring.wg.Wait()
	ring.workers.close()
	ring.poller.close()
	ring.pool.close()
	ring.waiters.wakeAll()
	ring.files.drop()
	ring.buffers.drop()
	ring.notifyMu.Lock()
	if ring.notifier != nil {
		_ = ring.notifier.Close()
		ring.notifier = nil
	}
	ring.notifyMu.Unlock()
	return
}
