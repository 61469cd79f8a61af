package aio

import (
	"syscall"
	"time"
)

// chainAssembly accumulates consecutive link-flagged entries into a chain.
// The head dispatches when the chain closes; successors stay staged until
// their predecessor's terminal completion.
type chainAssembly struct {
	head   *Request
	tail   *Request
	broken bool
}

func (asm *chainAssembly) active() bool { return asm.head != nil }

func (asm *chainAssembly) append(req *Request) {
	if asm.head == nil {
		asm.head = req
		asm.tail = req
		return
	}
	asm.tail.link = req.index
	asm.tail = req
}

func (asm *chainAssembly) reset() {
	asm.head = nil
	asm.tail = nil
	asm.broken = false
}

// run is the engine goroutine. It drains the funnel and chain queues,
// backfills overflow, consumes submission batches and sleeps on the wait
// curve when nothing moves, raising the needs-wakeup flag first.
func (ring *Ring) run() {
	defer ring.wg.Done()
	batch := make([]SubmissionEntry, ring.options.SubmitBatch)
	var carry []SubmissionEntry
	var asm chainAssembly
	var moved uint32
	var lastBatch uint32
	for ring.running.Load() {
		moved = 0
		moved += ring.drainFunnel()
		moved += ring.drainChainQ()
		ring.flushOverflow()

		// Parked entries first, a drain barrier may still be waiting.
		for len(carry) > 0 {
			if carry[0].Flags&EntryDrain != 0 && ring.inflight.Load() > 0 {
				break
			}
			entry := carry[0]
			carry = carry[1:]
			ring.processEntry(entry, &asm)
			moved++
		}
		if len(carry) == 0 {
			n := ring.pair.sq.dequeueBatch(batch)
			for i := uint32(0); i < n; i++ {
				entry := batch[i]
				if entry.Flags&EntryDrain != 0 && ring.inflight.Load() > 0 {
					carry = append(carry, batch[i:n]...)
					break
				}
				ring.processEntry(entry, &asm)
			}
			moved += n
		}
		// End of batch closes any open chain.
		if asm.active() {
			ring.flushChain(&asm)
		}

		if moved > 0 {
			lastBatch = moved
			continue
		}
		_, timeout := ring.tran.Match(lastBatch)
		lastBatch /= 2
		ring.pair.setFlag(ringNeedsWakeup)
		// Recheck after raising the flag, a producer may have published
		// against the old flag word.
		if ring.pair.sq.ready() == 0 && ring.funnel.Length() == 0 && ring.chainQ.Length() == 0 {
			timer := time.NewTimer(timeout)
			select {
			case <-ring.ready:
			case <-timer.C:
			}
			timer.Stop()
		}
		ring.pair.clearFlag(ringNeedsWakeup)
	}
	ring.shutdown(carry, &asm)
}

// processEntry turns one submission entry into a staged request, growing or
// closing the current chain as its flags say.
func (ring *Ring) processEntry(entry SubmissionEntry, asm *chainAssembly) {
	handler, handlerErr := handlerOf(entry.Opcode)
	if handlerErr != nil {
		// No request exists yet, account it and move on.
		ring.pair.dropped.Add(1)
		return
	}

	linked := entry.Flags&(EntryLink|EntryHardLink) != 0
	if entry.Opcode == OpLinkTimeout && asm.active() && !asm.broken {
		ring.attachLinkTimeout(entry, asm)
		if !linked {
			ring.flushChain(asm)
		}
		return
	}

	req, acquireErr := ring.pool.acquire()
	if acquireErr != nil {
		ring.pair.dropped.Add(1)
		return
	}
	req.entry = entry
	ring.inflight.Add(1)
	// Held until the engine is done dispatching this request, so a winning
	// canceller cannot retire it mid-dispatch. Chain members carry it until
	// they dispatch or cancel from the chain queue.
	ring.pool.addRef(req)

	if asm.broken {
		// The chain already failed validation, cancel the remainder as it
		// arrives.
		req.status.Store(CancelledRequestStatus)
		ring.doFinish(req, -int32(syscall.ECANCELED), 0, true)
		ring.pool.release(req)
		if !linked {
			asm.reset()
		}
		return
	}

	if resolveErr := ring.resolveResources(req); resolveErr != nil {
		req.status.Store(CompletedRequestStatus)
		ring.doFinish(req, errnoOf(resolveErr), 0, true)
		ring.pool.release(req)
		ring.markBrokenOrFlush(asm, linked)
		return
	}
	if prepErr := handler.Prepare(ring, req); prepErr != nil {
		req.releaseResources()
		req.status.Store(CompletedRequestStatus)
		ring.doFinish(req, errnoOf(prepErr), 0, true)
		ring.pool.release(req)
		ring.markBrokenOrFlush(asm, linked)
		return
	}

	req.hardLink = entry.Flags&EntryHardLink != 0
	if entry.Timeout > 0 && deadlineCapable(entry.Opcode) {
		ring.attachDeadline(req)
	}

	if linked {
		asm.append(req)
		return
	}
	if asm.active() {
		asm.append(req)
		ring.flushChain(asm)
		return
	}
	ring.dispatch(req)
	ring.pool.release(req)
}

// markBrokenOrFlush handles a validation failure inside an open chain: the
// remainder cancels, a standalone failure just completes.
func (ring *Ring) markBrokenOrFlush(asm *chainAssembly, linked bool) {
	if !asm.active() {
		if linked {
			// The failed entry opened a chain, poison it until it closes.
			asm.broken = true
		}
		return
	}
	if linked {
		// Members before the failure still run, the remainder cancels as it
		// arrives.
		ring.flushChain(asm)
		asm.broken = true
		return
	}
	// The chain closed on the failure, dispatch what assembled before it.
	ring.flushChain(asm)
}

// attachLinkTimeout binds a timeout companion to the chain tail. It arms at
// dispatch, not here.
func (ring *Ring) attachLinkTimeout(entry SubmissionEntry, asm *chainAssembly) {
	req, acquireErr := ring.pool.acquire()
	if acquireErr != nil {
		ring.pair.dropped.Add(1)
		return
	}
	req.entry = entry
	ring.inflight.Add(1)
	// A second companion on the same tail would orphan the first one as a
	// staged request nothing ever completes.
	if entry.Timeout < 1 || asm.tail.linkTimeout != noLink {
		req.status.Store(CompletedRequestStatus)
		ring.doFinish(req, -int32(syscall.EINVAL), 0, true)
		return
	}
	req.stage()
	asm.tail.linkTimeout = req.index
}

// deadlineCapable reports whether a per-entry timeout attaches an implicit
// companion instead of being the operation's own payload.
func deadlineCapable(op uint8) bool {
	switch op {
	case OpTimeout, OpLinkTimeout, OpTimeoutRemove:
		return false
	default:
		return true
	}
}

// attachDeadline gives the request a silent companion timer carrying the
// per-entry deadline. It never publishes a completion of its own.
func (ring *Ring) attachDeadline(req *Request) {
	lt, acquireErr := ring.pool.acquire()
	if acquireErr != nil {
		return
	}
	lt.entry = SubmissionEntry{Opcode: OpLinkTimeout, Timeout: req.entry.Timeout}
	lt.silent = true
	lt.stage()
	ring.inflight.Add(1)
	req.linkTimeout = lt.index
}

// flushChain stages every member and dispatches the head. Successors wait on
// their predecessor's terminal completion.
func (ring *Ring) flushChain(asm *chainAssembly) {
	if asm.head == nil {
		asm.reset()
		return
	}
	for index := asm.head.index; index != noLink; {
		member := ring.pool.get(index)
		member.stage()
		index = member.link
	}
	head := asm.head
	asm.reset()
	ring.dispatchStaged(head)
	ring.pool.release(head)
}

// resolveResources pins fixed table entries the request names and captures
// direct handles from the entry itself.
func (ring *Ring) resolveResources(req *Request) (err error) {
	if needsFile(req.entry.Opcode) {
		if req.entry.Flags&EntryFixedFile != 0 {
			file, slot, resolveErr := ring.files.resolve(int(req.entry.Fd))
			if resolveErr != nil {
				err = resolveErr
				return
			}
			req.file, req.fileSlot = file, slot
		} else {
			if req.entry.File == nil {
				err = errorWithMeta(ErrInvalidArgument)
				return
			}
			req.file = req.entry.File
		}
	}
	switch req.entry.Opcode {
	case OpReadFixed, OpWriteFixed:
		buf, slot, resolveErr := ring.buffers.resolve(int(req.entry.BufIndex))
		if resolveErr != nil {
			err = resolveErr
			return
		}
		req.buf, req.bufSlot, req.bufIndex = buf, slot, int(req.entry.BufIndex)
	default:
		req.buf = req.entry.Buf
	}
	return
}

// dispatch stages a fresh request and issues it. Chain successors arrive
// already staged; a successor cancelled while parked was completed by its
// canceller and is skipped.
func (ring *Ring) dispatch(req *Request) {
	if !req.stage() && req.status.Load() != StagedRequestStatus {
		return
	}
	ring.dispatchStaged(req)
}

// dispatchStaged runs the issue protocol on a staged request: inline fast
// path first, then poll registration or worker offload on would-block.
func (ring *Ring) dispatchStaged(req *Request) {
	if req.linkTimeout != noLink {
		if lt := ring.pool.get(req.linkTimeout); lt != nil {
			ring.armLinkTimeout(req, lt)
		}
	}
	handler, _ := handlerOf(req.entry.Opcode)
	if req.entry.Flags&EntryAsync != 0 && !req.multishot {
		ring.workers.dispatch(req)
		return
	}
	res, flags, outcome, err := handler.Issue(ring, req, false)
	switch outcome {
	case IssueCompleted:
		if req.claim() {
			ring.doFinish(req, completionRes(res, err), flags, flags&CQEFMore == 0)
		}
	case IssueArmed:
		// A timer or the poller owns the completion now.
	case IssueWouldBlock:
		if _, ok := req.file.(Pollable); ok && req.entry.Flags&EntryAsync == 0 {
			ring.poller.register(req)
			return
		}
		ring.workers.dispatch(req)
	}
}

func completionRes(res int32, err error) int32 {
	if err != nil && res >= 0 {
		return errnoOf(err)
	}
	return res
}

// shutdown fails whatever was still parked and waits for in-flight work to
// complete, draining the funnel on behalf of the stopped loop.
func (ring *Ring) shutdown(carry []SubmissionEntry, asm *chainAssembly) {
	if asm.active() {
		ring.cancelChainFrom(asm.head)
		asm.reset()
	}
	for range carry {
		ring.pair.dropped.Add(1)
	}
	ring.cancelMatching(CancelSelector{Kind: CancelAny}, true, nil)
	for ring.inflight.Load() > 0 {
		if ring.drainFunnel()+ring.drainChainQ() > 0 {
			continue
		}
		timer := time.NewTimer(100 * time.Microsecond)
		select {
		case <-ring.ready:
		case <-timer.C:
		}
		timer.Stop()
	}
	ring.flushOverflow()
	ring.waiters.wakeAll()
}
