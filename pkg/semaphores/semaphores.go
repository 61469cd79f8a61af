// Package semaphores provides a binary signal/wait primitive with deadline
// support. One waiter at a time; a signal delivered while nobody waits is
// dropped, not latched.
package semaphores

import (
	"context"
	"sync/atomic"
	"time"
)

func New() *Semaphores {
	return &Semaphores{
		ch:     make(chan struct{}, 1),
		status: atomic.Bool{},
	}
}

type Semaphores struct {
	ch     chan struct{}
	status atomic.Bool
}

func (s *Semaphores) Signal() {
	if s.status.CompareAndSwap(true, false) {
		s.ch <- struct{}{}
	}
}

func (s *Semaphores) Wait(ctx context.Context, deadline time.Time) (err error) {
	if !s.status.CompareAndSwap(false, true) {
		return
	}
	if deadline.IsZero() {
		select {
		case <-ctx.Done():
			s.status.CompareAndSwap(true, false)
			err = ctx.Err()
		case _, ok := <-s.ch:
			if !ok {
				err = context.Canceled
			}
		}
		return
	}
	timeout := time.Until(deadline)
	if timeout < 1 {
		s.status.CompareAndSwap(true, false)
		err = context.DeadlineExceeded
		return
	}
	timer := time.NewTimer(timeout)
	select {
	case <-ctx.Done():
		s.status.CompareAndSwap(true, false)
		err = ctx.Err()
	case <-timer.C:
		s.status.CompareAndSwap(true, false)
		err = context.DeadlineExceeded
	case _, ok := <-s.ch:
		if !ok {
			err = context.Canceled
		}
	}
	timer.Stop()
	return
}

func (s *Semaphores) Close() error {
	s.status.Store(false)
	close(s.ch)
	return nil
}
