// Package queue provides an unbounded lock-free multi-producer queue used to
// funnel completion records and worker handoffs between execution contexts.
package queue

import (
	"sync/atomic"
)

func New[E any]() *Queue[E] {
	q := &Queue[E]{}
	n := &node[E]{}
	q.head.Store(n)
	q.tail.Store(n)
	return q
}

type node[E any] struct {
	entry *E
	next  atomic.Pointer[node[E]]
}

// Queue is a Michael-Scott queue. Nodes are never reused, the collector
// rules out the ABA case that tagged pointers would otherwise guard.
type Queue[E any] struct {
	head atomic.Pointer[node[E]]
	tail atomic.Pointer[node[E]]
	len  atomic.Int64
}

func (q *Queue[E]) Enqueue(entry *E) {
	n := &node[E]{entry: entry}
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if tail != q.tail.Load() {
			continue
		}
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				q.tail.CompareAndSwap(tail, n)
				q.len.Add(1)
				return
			}
		} else {
			q.tail.CompareAndSwap(tail, next)
		}
	}
}

func (q *Queue[E]) Dequeue() *E {
	for {
		head := q.head.Load()
		tail := q.tail.Load()
		next := head.next.Load()
		if head != q.head.Load() {
			continue
		}
		if head == tail {
			if next == nil {
				return nil
			}
			q.tail.CompareAndSwap(tail, next)
			continue
		}
		entry := next.entry
		if q.head.CompareAndSwap(head, next) {
			next.entry = nil
			q.len.Add(-1)
			return entry
		}
	}
}

func (q *Queue[E]) Length() int64 {
	return q.len.Load()
}
