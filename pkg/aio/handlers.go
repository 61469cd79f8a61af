package aio

import (
	"io"
	"syscall"

	"github.com/brickingsoft/errors"
)

func prepareFailed(op uint8, cause error) error {
	return errors.From(ErrPrepareFailed,
		errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
		errors.WithMeta("op", OpName(op)),
		errors.WithWrap(cause),
	)
}

type nopHandler struct{}

func (nopHandler) Prepare(_ *Ring, _ *Request) error { return nil }

func (nopHandler) Issue(_ *Ring, _ *Request, _ bool) (res int32, flags uint32, outcome IssueOutcome, err error) {
	outcome = IssueCompleted
	return
}

func (nopHandler) Cleanup(_ *Ring, _ *Request) {}

type readHandler struct{}

func (readHandler) Prepare(ring *Ring, req *Request) (err error) {
	if _, ok := req.file.(io.ReaderAt); !ok {
		err = prepareFailed(req.entry.Opcode, errors.New("target is not readable"))
		return
	}
	if req.entry.Flags&EntryBufferSelect == 0 && req.buf == nil {
		err = prepareFailed(req.entry.Opcode, errors.New("missing buffer"))
		return
	}
	return
}

func (readHandler) Issue(ring *Ring, req *Request, blocking bool) (res int32, flags uint32, outcome IssueOutcome, err error) {
	if !blocking {
		outcome = IssueWouldBlock
		return
	}
	buf := req.buf
	if req.entry.Flags&EntryBufferSelect != 0 {
		index, picked, slot, ok := ring.buffers.selectFree()
		if !ok {
			outcome = IssueCompleted
			res = -int32(syscall.ENOBUFS)
			return
		}
		req.buf, req.bufSlot, req.bufIndex = picked, slot, index
		buf = picked
	}
	if n := req.entry.Len; n > 0 && n < uint32(len(buf)) {
		buf = buf[:n]
	}
	outcome = IssueCompleted
	ra := req.file.(io.ReaderAt)
	n, readErr := ra.ReadAt(buf, int64(req.entry.Off))
	res = int32(n)
	if readErr != nil {
		if errors.Is(readErr, io.EOF) {
			if n > 0 {
				flags |= CQEFPartial
			}
		} else {
			res = errnoOf(readErr)
			err = readErr
			return
		}
	} else if n < len(buf) {
		flags |= CQEFPartial
	}
	if req.bufIndex >= 0 && req.entry.Flags&EntryBufferSelect != 0 {
		flags |= CQEFBuffer | uint32(req.bufIndex)<<CQEBufferShift
	}
	return
}

func (readHandler) Cleanup(_ *Ring, _ *Request) {}

type writeHandler struct{}

func (writeHandler) Prepare(ring *Ring, req *Request) (err error) {
	if _, ok := req.file.(io.WriterAt); !ok {
		err = prepareFailed(req.entry.Opcode, errors.New("target is not writable"))
		return
	}
	if req.buf == nil {
		err = prepareFailed(req.entry.Opcode, errors.New("missing buffer"))
		return
	}
	return
}

func (writeHandler) Issue(ring *Ring, req *Request, blocking bool) (res int32, flags uint32, outcome IssueOutcome, err error) {
	if !blocking {
		outcome = IssueWouldBlock
		return
	}
	buf := req.buf
	if n := req.entry.Len; n > 0 && n < uint32(len(buf)) {
		buf = buf[:n]
	}
	outcome = IssueCompleted
	wa := req.file.(io.WriterAt)
	n, writeErr := wa.WriteAt(buf, int64(req.entry.Off))
	res = int32(n)
	if writeErr != nil {
		res = errnoOf(writeErr)
		err = writeErr
		return
	}
	if n < len(buf) {
		flags |= CQEFPartial
	}
	return
}

func (writeHandler) Cleanup(_ *Ring, _ *Request) {}

type fsyncHandler struct{}

func (fsyncHandler) Prepare(ring *Ring, req *Request) (err error) {
	if _, ok := req.file.(Syncer); !ok {
		err = prepareFailed(req.entry.Opcode, errors.New("target is not syncable"))
	}
	return
}

func (fsyncHandler) Issue(ring *Ring, req *Request, blocking bool) (res int32, flags uint32, outcome IssueOutcome, err error) {
	if !blocking {
		outcome = IssueWouldBlock
		return
	}
	outcome = IssueCompleted
	if syncErr := req.file.(Syncer).Sync(); syncErr != nil {
		res = errnoOf(syncErr)
		err = syncErr
	}
	return
}

func (fsyncHandler) Cleanup(_ *Ring, _ *Request) {}

type pollAddHandler struct{}

func (pollAddHandler) Prepare(ring *Ring, req *Request) (err error) {
	if _, ok := req.file.(Pollable); !ok {
		err = prepareFailed(req.entry.Opcode, errors.New("target is not pollable"))
		return
	}
	if req.entry.OpFlags&PollAddMulti != 0 && multishotCapable(req.entry.Opcode) {
		req.multishot = true
	}
	return
}

func (pollAddHandler) Issue(ring *Ring, req *Request, blocking bool) (res int32, flags uint32, outcome IssueOutcome, err error) {
	if !blocking {
		ring.poller.register(req)
		outcome = IssueArmed
		return
	}
	// one readiness event observed
	outcome = IssueCompleted
	res = 1
	if req.multishot {
		flags |= CQEFMore
	}
	return
}

func (pollAddHandler) Cleanup(_ *Ring, _ *Request) {}

type timeoutHandler struct{}

func (timeoutHandler) Prepare(ring *Ring, req *Request) (err error) {
	if req.entry.Timeout < 1 {
		err = prepareFailed(req.entry.Opcode, errors.New("missing timeout"))
	}
	return
}

func (timeoutHandler) Issue(ring *Ring, req *Request, blocking bool) (res int32, flags uint32, outcome IssueOutcome, err error) {
	ring.armTimeout(req)
	outcome = IssueArmed
	return
}

func (timeoutHandler) Cleanup(ring *Ring, req *Request) {
	ring.forgetTimeout(req)
}

type timeoutRemoveHandler struct{}

func (timeoutRemoveHandler) Prepare(_ *Ring, _ *Request) error { return nil }

func (timeoutRemoveHandler) Issue(ring *Ring, req *Request, blocking bool) (res int32, flags uint32, outcome IssueOutcome, err error) {
	outcome = IssueCompleted
	if !ring.removeTimeout(req.entry.Target) {
		res = -int32(syscall.ENOENT)
	}
	return
}

func (timeoutRemoveHandler) Cleanup(_ *Ring, _ *Request) {}

type asyncCancelHandler struct{}

func (asyncCancelHandler) Prepare(_ *Ring, _ *Request) error { return nil }

func (asyncCancelHandler) Issue(ring *Ring, req *Request, blocking bool) (res int32, flags uint32, outcome IssueOutcome, err error) {
	sel := CancelSelector{UserData: req.entry.Target}
	switch {
	case req.entry.OpFlags&AsyncCancelAny != 0:
		sel.Kind = CancelAny
	case req.entry.OpFlags&AsyncCancelFd != 0:
		sel.Kind = CancelByFd
		sel.Fd = req.entry.Fd
	case req.entry.OpFlags&AsyncCancelOp != 0:
		sel.Kind = CancelByOpcode
		sel.Opcode = uint8(req.entry.Target)
	default:
		sel.Kind = CancelByUserData
	}
	all := req.entry.OpFlags&AsyncCancelAll != 0
	outcome = IssueCompleted
	count := ring.cancelMatching(sel, all, req)
	if count == 0 {
		res = -int32(syscall.ENOENT)
		return
	}
	res = int32(count)
	return
}

func (asyncCancelHandler) Cleanup(_ *Ring, _ *Request) {}

type linkTimeoutHandler struct{}

func (linkTimeoutHandler) Prepare(ring *Ring, req *Request) (err error) {
	if req.entry.Timeout < 1 {
		err = prepareFailed(req.entry.Opcode, errors.New("missing timeout"))
	}
	return
}

// A link timeout only makes sense attached to a linked predecessor; the
// submission pipeline arms it there and never issues it standalone.
func (linkTimeoutHandler) Issue(ring *Ring, req *Request, blocking bool) (res int32, flags uint32, outcome IssueOutcome, err error) {
	outcome = IssueCompleted
	res = -int32(syscall.EINVAL)
	return
}

func (linkTimeoutHandler) Cleanup(_ *Ring, _ *Request) {}
