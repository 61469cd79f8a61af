package aio

import (
	"sync"
	"sync/atomic"
	"syscall"
)

// poller parks pollable requests until their handle signals readiness, then
// issues them blocking. Multishot registrations stay armed and publish one
// completion per event until terminated.
type poller struct {
	ring   *Ring
	wg     sync.WaitGroup
	closed atomic.Bool
}

func newPoller(ring *Ring) *poller {
	return &poller{ring: ring}
}

// register parks the request. The caller must have staged it; the parked
// goroutine holds a pool reference until it unparks.
func (p *poller) register(req *Request) {
	p.ring.pool.addRef(req)
	p.wg.Add(1)
	go p.wait(req)
}

func (p *poller) wait(req *Request) {
	defer p.wg.Done()
	defer p.ring.pool.release(req)
	ready := req.file.(Pollable).Ready()
	for {
		select {
		case _, open := <-ready:
			if !req.claim() {
				// Canceller won, it owns the completion.
				return
			}
			if !open {
				p.ring.finish(req, 0, 0, nil, true)
				return
			}
			handler, _ := handlerOf(req.entry.Opcode)
			res, flags, _, err := handler.Issue(p.ring, req, true)
			if req.multishot && err == nil && res >= 0 {
				p.ring.finish(req, res, flags|CQEFMore, nil, false)
				if req.CancelRequested() || p.closed.Load() {
					req.status.Store(CancelledRequestStatus)
					p.ring.finish(req, -int32(syscall.ECANCELED), 0, nil, true)
					return
				}
				// Re-arm for the next event.
				req.status.Store(StagedRequestStatus)
				continue
			}
			p.ring.finish(req, res, flags, err, true)
			return
		case <-req.cancelCh:
			// A canceller that won the staged CAS published already; a
			// cooperative nudge leaves the terminal completion to us.
			if req.cancelStaged() {
				p.ring.finish(req, -int32(syscall.ECANCELED), 0, nil, true)
			}
			return
		}
	}
}

func (p *poller) close() {
	p.closed.Store(true)
	p.wg.Wait()
}
