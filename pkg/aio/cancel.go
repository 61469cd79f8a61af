package aio

import (
	"syscall"
)

// CancelSelector describes which in-flight requests an async cancel targets.
type CancelSelector struct {
	Kind     uint32
	UserData uint64
	Fd       int32
	Opcode   uint8
}

const (
	CancelByUserData uint32 = iota
	CancelByFd
	CancelByOpcode
	CancelAny
)

func (sel CancelSelector) matches(req *Request) bool {
	switch sel.Kind {
	case CancelByUserData:
		return req.entry.UserData == sel.UserData
	case CancelByFd:
		return req.entry.Fd == sel.Fd
	case CancelByOpcode:
		return req.entry.Opcode == sel.Opcode
	case CancelAny:
		return true
	default:
		return false
	}
}

// cancelRequest attempts to cancel one request. When the staged CAS wins the
// canceller owns the terminal completion; a request already processing only
// gets the cooperative flag and completes through its own path.
func (ring *Ring) cancelRequest(req *Request) bool {
	if req.cancelStaged() {
		// A stopped timer never runs its callback, drop the reference it held.
		if timer := req.timer.Load(); timer != nil && timer.Stop() {
			ring.pool.release(req)
		}
		ring.forgetTimeout(req)
		req.signalCancel()
		ring.finish(req, -int32(syscall.ECANCELED), 0, nil, true)
		return true
	}
	if req.status.Load() != ProcessingRequestStatus {
		return false
	}
	req.signalCancel()
	if handle, ok := req.file.(CancelableHandle); ok && handle != nil {
		handle.CancelPending()
		return true
	}
	// Multishot streams observe the flag between events and terminate.
	return req.multishot
}

// cancelMatching scans the live arena for selector matches, skipping the
// cancel request itself and engine-internal companions.
func (ring *Ring) cancelMatching(sel CancelSelector, all bool, self *Request) (n int) {
	live := ring.pool.snapshot(nil)
	for _, req := range live {
		if req == self || req.silent {
			continue
		}
		// Link timeout companions disarm through their target, not here.
		if req.entry.Opcode == OpLinkTimeout {
			continue
		}
		if !sel.matches(req) {
			continue
		}
		if ring.cancelRequest(req) {
			n++
			if !all {
				return
			}
		}
	}
	return
}
