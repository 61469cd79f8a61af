package aio

import (
	"context"
	"sync"
	"time"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/ringio/pkg/semaphores"
)

type waiter struct {
	want uint32
	sem  *semaphores.Semaphores
}

type waiterList struct {
	mu sync.Mutex
	ws []*waiter
}

func (list *waiterList) add(w *waiter) {
	list.mu.Lock()
	list.ws = append(list.ws, w)
	list.mu.Unlock()
}

func (list *waiterList) remove(w *waiter) {
	list.mu.Lock()
	for i, it := range list.ws {
		if it == w {
			list.ws[i] = list.ws[len(list.ws)-1]
			list.ws = list.ws[:len(list.ws)-1]
			break
		}
	}
	list.mu.Unlock()
}

// wake signals every waiter whose threshold the available count satisfies.
func (list *waiterList) wake(available uint32) {
	list.mu.Lock()
	for _, w := range list.ws {
		if available >= w.want {
			w.sem.Signal()
		}
	}
	list.mu.Unlock()
}

func (list *waiterList) wakeAll() {
	list.mu.Lock()
	for _, w := range list.ws {
		w.sem.Signal()
	}
	list.mu.Unlock()
}

// WaitCompletions blocks until at least want completions are visible, the
// deadline passes, the context ends or the ring closes.
func (ring *Ring) WaitCompletions(ctx context.Context, want uint32, deadline time.Time) (err error) {
	if want == 0 {
		return
	}
	w := &waiter{want: want, sem: semaphores.New()}
	ring.waiters.add(w)
	defer func() {
		ring.waiters.remove(w)
		_ = w.sem.Close()
	}()
	for {
		if ring.completionsAvailable() >= want {
			return
		}
		if !ring.running.Load() {
			err = errors.From(ErrClosed, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
			return
		}
		if waitErr := w.sem.Wait(ctx, deadline); waitErr != nil {
			err = mapWaitErr(waitErr)
			return
		}
	}
}

func mapWaitErr(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return errors.From(ErrTimeout, errors.WithMeta(errMetaPkgKey, errMetaPkgVal), errors.WithWrap(err))
	case errors.Is(err, context.Canceled):
		return errors.From(ErrCanceled, errors.WithMeta(errMetaPkgKey, errMetaPkgVal), errors.WithWrap(err))
	default:
		return err
	}
}
