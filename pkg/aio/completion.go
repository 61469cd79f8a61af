package aio

import (
	"syscall"
)

// completionRecord carries a finish across the single-issuer funnel so the
// engine goroutine is the only publisher.
type completionRecord struct {
	req      *Request
	res      int32
	flags    uint32
	terminal bool
}

// chainEvent asks the engine goroutine to advance a link chain after a
// member's terminal completion.
type chainEvent struct {
	next   int32
	failed bool
	hard   bool
}

// finish is the completion entry point for workers, the poller and timers.
// Under single-issuer mode it defers to the engine goroutine; otherwise it
// publishes directly under the completion lock.
func (ring *Ring) finish(req *Request, res int32, flags uint32, err error, terminal bool) {
	if err != nil && res >= 0 {
		res = errnoOf(err)
	}
	if ring.singleIssuer {
		ring.funnel.Enqueue(&completionRecord{req: req, res: res, flags: flags, terminal: terminal})
		ring.signal()
		return
	}
	ring.doFinish(req, res, flags, terminal)
}

// doFinish publishes the completion entry and, on terminal completions, runs
// cleanup, schedules chain advancement and retires the request.
func (ring *Ring) doFinish(req *Request, res int32, flags uint32, terminal bool) {
	skip := req.silent || (terminal && res >= 0 && req.entry.Flags&EntrySkipSuccess != 0)
	if !skip {
		ring.publish(CompletionEntry{UserData: req.entry.UserData, Res: res, Flags: flags})
	}
	if !terminal {
		return
	}
	if req.linkTimeout != noLink {
		ring.disarmLinkTimeout(req)
	}
	if req.link != noLink {
		ring.chainQ.Enqueue(&chainEvent{next: req.link, failed: res < 0, hard: req.hardLink})
		ring.signal()
	}
	if handler, handlerErr := handlerOf(req.entry.Opcode); handlerErr == nil {
		handler.Cleanup(ring, req)
	}
	ring.inflight.Add(-1)
	ring.pool.release(req)
	ring.signal()
}

// publish appends one entry to the completion ring, spilling to the overflow
// list when the ring is full. Single-issuer rings skip the lock, the engine
// goroutine is the only caller.
func (ring *Ring) publish(entry CompletionEntry) {
	if !ring.singleIssuer {
		ring.cqMu.Lock()
	}
	ring.flushOverflowLocked()
	if len(ring.overflow) > 0 || !ring.pair.cq.tryPublish(entry) {
		ring.overflow = append(ring.overflow, entry)
		ring.overflowN.Store(int32(len(ring.overflow)))
		ring.pair.setFlag(ringCQOverflow)
	}
	if !ring.singleIssuer {
		ring.cqMu.Unlock()
	}
	ring.waiters.wake(ring.completionsAvailable())
	ring.notify()
}

// flushOverflowLocked backfills spilled entries in arrival order once the
// consumer frees space.
func (ring *Ring) flushOverflowLocked() {
	if len(ring.overflow) == 0 {
		return
	}
	n := 0
	for ; n < len(ring.overflow); n++ {
		if !ring.pair.cq.tryPublish(ring.overflow[n]) {
			break
		}
	}
	if n > 0 {
		ring.overflow = ring.overflow[:copy(ring.overflow, ring.overflow[n:])]
	}
	ring.overflowN.Store(int32(len(ring.overflow)))
	if len(ring.overflow) == 0 {
		ring.pair.clearFlag(ringCQOverflow)
	}
}

func (ring *Ring) flushOverflow() {
	if !ring.singleIssuer {
		ring.cqMu.Lock()
		defer ring.cqMu.Unlock()
	}
	ring.flushOverflowLocked()
}

// completionsAvailable counts entries a consumer can observe, ring plus the
// overflow backlog that will backfill as it drains.
func (ring *Ring) completionsAvailable() uint32 {
	return ring.pair.cq.ready() + uint32(ring.overflowN.Load())
}

func (ring *Ring) drainFunnel() (n uint32) {
	for {
		record := ring.funnel.Dequeue()
		if record == nil {
			return
		}
		ring.doFinish(record.req, record.res, record.flags, record.terminal)
		n++
	}
}

// drainChainQ dispatches chain successors on the engine goroutine. A failed
// soft-linked member cancels the whole remainder.
func (ring *Ring) drainChainQ() (n uint32) {
	for {
		event := ring.chainQ.Dequeue()
		if event == nil {
			return
		}
		n++
		next := ring.pool.get(event.next)
		if next == nil {
			continue
		}
		if event.failed && !event.hard {
			ring.cancelChainFrom(next)
			continue
		}
		ring.dispatch(next)
		ring.pool.release(next)
	}
}

// cancelChainFrom walks the staged remainder of a broken chain and completes
// each member with ECANCELED. Links are cleared first so the terminal path
// does not re-enter chain advancement.
func (ring *Ring) cancelChainFrom(req *Request) {
	for req != nil {
		nextIndex := req.link
		req.link = noLink
		var next *Request
		if nextIndex != noLink {
			next = ring.pool.get(nextIndex)
		}
		if req.cancelStaged() || req.status.CompareAndSwap(ReadyRequestStatus, CancelledRequestStatus) {
			ring.doFinish(req, -int32(syscall.ECANCELED), 0, true)
		}
		ring.pool.release(req)
		req = next
	}
}
