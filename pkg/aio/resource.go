package aio

import (
	"sync"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/ringio/pkg/reference"
)

// FileHandle is the target of a file-style operation. The engine only
// orchestrates; the handle performs the primitive. Concrete capabilities are
// asserted per opcode: io.ReaderAt for reads, io.WriterAt for writes, Syncer
// for fsync, Pollable for poll registration.
type FileHandle any

type Syncer interface {
	Sync() error
}

// Pollable exposes a readiness stream. One receive is one readiness event;
// closing the channel terminates any registration, including multishot ones.
type Pollable interface {
	Ready() <-chan struct{}
}

// CancelableHandle supports cooperative cancellation of an executing
// operation.
type CancelableHandle interface {
	CancelPending()
}

// resourceTable maps small integer indices to pinned values. Registration
// and deregistration take the table lock; resolution is a read-side
// reference count increment on the slot.
type resourceTable[E any] struct {
	mu    sync.Mutex
	slots []*reference.Slot[E]
}

func newResourceTable[E any](size uint32) *resourceTable[E] {
	slots := make([]*reference.Slot[E], size)
	for i := range slots {
		slots[i] = &reference.Slot[E]{}
	}
	return &resourceTable[E]{slots: slots}
}

func (table *resourceTable[E]) register(value E) (index int, err error) {
	table.mu.Lock()
	defer table.mu.Unlock()
	for i, slot := range table.slots {
		if slot.Valid() || slot.Count() != 0 {
			continue
		}
		if slot.Fill(value) {
			index = i
			return
		}
	}
	err = errors.From(ErrResourceExhausted, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
	return
}

func (table *resourceTable[E]) unregister(index int) (value E, err error) {
	table.mu.Lock()
	defer table.mu.Unlock()
	if index < 0 || index >= len(table.slots) {
		err = errors.From(ErrInvalidIndex, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
		return
	}
	value, ok := table.slots[index].Retire()
	if !ok {
		err = errors.From(ErrInvalidIndex, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
	}
	return
}

func (table *resourceTable[E]) resolve(index int) (value E, slot *reference.Slot[E], err error) {
	if index < 0 || index >= len(table.slots) {
		err = errors.From(ErrInvalidIndex, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
		return
	}
	slot = table.slots[index]
	value, ok := slot.Acquire()
	if !ok {
		slot = nil
		err = errors.From(ErrInvalidIndex, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
	}
	return
}

// selectFree acquires the first unreferenced valid slot, for
// EntryBufferSelect issue-time buffer selection.
func (table *resourceTable[E]) selectFree() (index int, value E, slot *reference.Slot[E], ok bool) {
	for i, s := range table.slots {
		if !s.Valid() {
			continue
		}
		if value, ok = s.TryAcquireExclusive(); ok {
			index = i
			slot = s
			return
		}
	}
	return
}

func (table *resourceTable[E]) drop() {
	table.mu.Lock()
	defer table.mu.Unlock()
	for _, slot := range table.slots {
		_, _ = slot.Retire()
	}
}
