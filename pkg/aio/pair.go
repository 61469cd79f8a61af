package aio

import (
	"sync"
	"sync/atomic"

	"github.com/brickingsoft/errors"
)

const (
	ringNeedsWakeup uint32 = 1 << iota
	ringCQOverflow
)

// ringPair holds the submission ring, the completion ring and their shared
// control state. Index fields increase monotonically and are wrapped by the
// power-of-two mask on access.
//
// The ordering contract between the two sides of each ring is carried by the
// index atomics alone: the store that makes new entries visible is the
// release, the load that gates consumption is the acquire. Entry records are
// only touched between the paired loads and stores, so no further locking is
// needed for the rings themselves.
type ringPair struct {
	sq      submissionRing
	cq      completionRing
	flags   atomic.Uint32
	dropped atomic.Uint32
}

func newRingPair(sqEntries uint32, cqEntries uint32, singleProducer bool) (pair *ringPair, err error) {
	if sqEntries == 0 || cqEntries == 0 {
		err = errors.From(ErrInvalidArgument, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
		return
	}
	sqEntries = RoundupPow2(sqEntries)
	cqEntries = RoundupPow2(cqEntries)
	pair = &ringPair{}
	pair.sq.entries = make([]SubmissionEntry, sqEntries)
	pair.sq.mask = sqEntries - 1
	pair.sq.singleProducer = singleProducer
	pair.cq.entries = make([]CompletionEntry, cqEntries)
	pair.cq.mask = cqEntries - 1
	return
}

func (pair *ringPair) setFlag(flag uint32) {
	for {
		old := pair.flags.Load()
		if old&flag != 0 {
			return
		}
		if pair.flags.CompareAndSwap(old, old|flag) {
			return
		}
	}
}

func (pair *ringPair) clearFlag(flag uint32) {
	for {
		old := pair.flags.Load()
		if old&flag == 0 {
			return
		}
		if pair.flags.CompareAndSwap(old, old&^flag) {
			return
		}
	}
}

func (pair *ringPair) hasFlag(flag uint32) bool {
	return pair.flags.Load()&flag != 0
}

// submissionRing is produced by the client and consumed by the engine
// goroutine. head is written by the consumer only, tail by the producer only.
type submissionRing struct {
	entries        []SubmissionEntry
	mask           uint32
	head           atomic.Uint32
	tail           atomic.Uint32
	produceMu      sync.Mutex
	singleProducer bool
}

func (sq *submissionRing) capacity() uint32 {
	return sq.mask + 1
}

func (sq *submissionRing) ready() uint32 {
	return sq.tail.Load() - sq.head.Load()
}

// tryEnqueue writes one entry and publishes it with a release-store of the
// producer index. Returns false when the ring is full.
func (sq *submissionRing) tryEnqueue(entry SubmissionEntry) bool {
	if !sq.singleProducer {
		sq.produceMu.Lock()
		defer sq.produceMu.Unlock()
	}
	tail := sq.tail.Load()
	head := sq.head.Load()
	if tail-head >= sq.capacity() {
		return false
	}
	sq.entries[tail&sq.mask] = entry
	sq.tail.Store(tail + 1)
	return true
}

// dequeueBatch is the engine-side drain. The acquire-load of tail makes the
// producer's entry writes visible before they are read.
func (sq *submissionRing) dequeueBatch(dst []SubmissionEntry) (n uint32) {
	head := sq.head.Load()
	tail := sq.tail.Load()
	avail := tail - head
	if avail > sq.capacity() {
		panic(errors.New("submission ring index inconsistency", errors.WithMeta(errMetaPkgKey, errMetaPkgVal)))
	}
	if avail == 0 {
		return
	}
	n = uint32(len(dst))
	if n > avail {
		n = avail
	}
	for i := uint32(0); i < n; i++ {
		dst[i] = sq.entries[(head+i)&sq.mask]
		sq.entries[(head+i)&sq.mask].File = nil
		sq.entries[(head+i)&sq.mask].Buf = nil
	}
	sq.head.Store(head + n)
	return
}

// completionRing is produced by the engine and consumed by the client.
type completionRing struct {
	entries []CompletionEntry
	mask    uint32
	head    atomic.Uint32
	tail    atomic.Uint32
}

func (cq *completionRing) capacity() uint32 {
	return cq.mask + 1
}

func (cq *completionRing) ready() uint32 {
	n := cq.tail.Load() - cq.head.Load()
	if n > cq.capacity() {
		panic(errors.New("completion ring index inconsistency", errors.WithMeta(errMetaPkgKey, errMetaPkgVal)))
	}
	return n
}

// tryPublish is not safe for concurrent producers; callers serialize through
// the completion lock or the single-issuer funnel.
func (cq *completionRing) tryPublish(entry CompletionEntry) bool {
	tail := cq.tail.Load()
	head := cq.head.Load()
	if tail-head >= cq.capacity() {
		return false
	}
	cq.entries[tail&cq.mask] = entry
	cq.tail.Store(tail + 1)
	return true
}

// drain is the client-side consume.
func (cq *completionRing) drain(dst []CompletionEntry) (n uint32) {
	head := cq.head.Load()
	tail := cq.tail.Load()
	avail := tail - head
	if avail > cq.capacity() {
		panic(errors.New("completion ring index inconsistency", errors.WithMeta(errMetaPkgKey, errMetaPkgVal)))
	}
	if avail == 0 {
		return
	}
	n = uint32(len(dst))
	if n > avail {
		n = avail
	}
	for i := uint32(0); i < n; i++ {
		dst[i] = cq.entries[(head+i)&cq.mask]
	}
	cq.head.Store(head + n)
	return
}
