package aio

import (
	"sync/atomic"
	"time"

	"github.com/brickingsoft/ringio/pkg/reference"
)

const (
	FreeRequestStatus int64 = iota
	ReadyRequestStatus
	StagedRequestStatus
	ProcessingRequestStatus
	CompletedRequestStatus
	CancelledRequestStatus
)

const noLink int32 = -1

// Request is the in-flight unit. It is owned exclusively by the pipeline
// currently processing it; ownership moves at state transitions and is never
// shared. Chain links are arena indices, the pool owns every lifetime.
// timer is atomic because cancellers stop it from outside the arming
// goroutine; cancelCh exists from acquisition on so no handoff can race its
// creation.
type Request struct {
	entry       SubmissionEntry
	index       int32
	link        int32
	linkTimeout int32
	hardLink    bool
	silent      bool
	status      atomic.Int64
	refs        atomic.Int32
	cancelReq   atomic.Bool
	cancelSent  atomic.Bool
	cancelCh    chan struct{}
	file        FileHandle
	fileSlot    *reference.Slot[FileHandle]
	buf         []byte
	bufSlot     *reference.Slot[[]byte]
	bufIndex    int
	timer       atomic.Pointer[time.Timer]
	multishot   bool
}

func (req *Request) Opcode() uint8 {
	return req.entry.Opcode
}

func (req *Request) UserData() uint64 {
	return req.entry.UserData
}

// CancelRequested reports whether cooperative cancellation was asked for.
// Handlers driving long multishot operations are expected to check it.
func (req *Request) CancelRequested() bool {
	return req.cancelReq.Load()
}

func (req *Request) reset() {
	req.entry = SubmissionEntry{}
	req.link = noLink
	req.linkTimeout = noLink
	req.hardLink = false
	req.silent = false
	req.status.Store(FreeRequestStatus)
	req.refs.Store(0)
	req.cancelReq.Store(false)
	req.cancelSent.Store(false)
	req.cancelCh = nil
	req.file = nil
	req.fileSlot = nil
	req.buf = nil
	req.bufSlot = nil
	req.bufIndex = -1
	req.timer.Store(nil)
	req.multishot = false
}

// releaseResources drops the resolved table references. Called exactly once,
// on retire.
func (req *Request) releaseResources() {
	if req.fileSlot != nil {
		req.fileSlot.Release()
		req.fileSlot = nil
	}
	if req.bufSlot != nil {
		req.bufSlot.Release()
		req.bufSlot = nil
	}
	if timer := req.timer.Swap(nil); timer != nil {
		timer.Stop()
	}
}

func (req *Request) stage() bool {
	return req.status.CompareAndSwap(ReadyRequestStatus, StagedRequestStatus)
}

// claim moves a staged request to processing. Losing the race means a
// canceller got there first and owns the completion.
func (req *Request) claim() bool {
	return req.status.CompareAndSwap(StagedRequestStatus, ProcessingRequestStatus)
}

func (req *Request) complete() bool {
	if req.status.CompareAndSwap(ProcessingRequestStatus, CompletedRequestStatus) {
		return true
	}
	return req.status.CompareAndSwap(ReadyRequestStatus, CompletedRequestStatus)
}

func (req *Request) cancelStaged() bool {
	return req.status.CompareAndSwap(StagedRequestStatus, CancelledRequestStatus)
}

// signalCancel closes the cancellation channel at most once.
func (req *Request) signalCancel() {
	req.cancelReq.Store(true)
	if req.cancelCh != nil && req.cancelSent.CompareAndSwap(false, true) {
		close(req.cancelCh)
	}
}

func (req *Request) terminal() bool {
	status := req.status.Load()
	return status == CompletedRequestStatus || status == CancelledRequestStatus
}
