// Package reference provides reference-counted value slots. A slot becomes
// reusable only after it has been retired and every acquired reference has
// been released.
package reference

import (
	"sync/atomic"
)

type Slot[E any] struct {
	value E
	count atomic.Int64
	valid atomic.Bool
}

// Fill stores a value and marks the slot valid. It must only be called on an
// empty slot.
func (slot *Slot[E]) Fill(value E) bool {
	if !slot.valid.CompareAndSwap(false, true) {
		return false
	}
	slot.value = value
	return true
}

// Acquire returns the value and takes a reference. It fails when the slot is
// invalid. No exclusive lock is involved, acquisition is a read-side count
// increment.
func (slot *Slot[E]) Acquire() (value E, ok bool) {
	slot.count.Add(1)
	if !slot.valid.Load() {
		slot.count.Add(-1)
		return
	}
	value = slot.value
	ok = true
	return
}

// TryAcquireExclusive takes the value only when nobody else holds it, for
// issue-time selection of an unreferenced slot.
func (slot *Slot[E]) TryAcquireExclusive() (value E, ok bool) {
	if !slot.count.CompareAndSwap(0, 1) {
		return
	}
	if !slot.valid.Load() {
		slot.count.Add(-1)
		return
	}
	value = slot.value
	ok = true
	return
}

func (slot *Slot[E]) Release() {
	if n := slot.count.Add(-1); n < 0 {
		panic("reference: release of unacquired slot")
	}
}

func (slot *Slot[E]) Count() int64 {
	return slot.count.Load()
}

func (slot *Slot[E]) Valid() bool {
	return slot.valid.Load()
}

// Retire invalidates the slot. It fails while references remain; the caller
// retries once in-flight holders have released.
func (slot *Slot[E]) Retire() (value E, ok bool) {
	if !slot.valid.Load() {
		return
	}
	if slot.count.Load() != 0 {
		return
	}
	value = slot.value
	var zero E
	slot.value = zero
	slot.valid.Store(false)
	ok = true
	return
}
