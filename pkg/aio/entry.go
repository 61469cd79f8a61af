package aio

import (
	"time"
)

const (
	OpNop uint8 = iota
	OpRead
	OpWrite
	OpReadFixed
	OpWriteFixed
	OpFsync
	OpPollAdd
	OpTimeout
	OpTimeoutRemove
	OpAsyncCancel
	OpLinkTimeout
	OpLast
)

var opNames = [OpLast]string{
	OpNop:           "nop",
	OpRead:          "read",
	OpWrite:         "write",
	OpReadFixed:     "read_fixed",
	OpWriteFixed:    "write_fixed",
	OpFsync:         "fsync",
	OpPollAdd:       "poll_add",
	OpTimeout:       "timeout",
	OpTimeoutRemove: "timeout_remove",
	OpAsyncCancel:   "async_cancel",
	OpLinkTimeout:   "link_timeout",
}

func OpName(code uint8) string {
	if code < OpLast {
		return opNames[code]
	}
	return "unknown"
}

// Submission entry flags.
const (
	// EntryFixedFile resolves Fd against the registered file table.
	EntryFixedFile uint8 = 1 << iota
	// EntryLink chains this entry to the next, the successor waits for a
	// successful terminal completion.
	EntryLink
	// EntryHardLink chains regardless of the predecessor's result.
	EntryHardLink
	// EntryAsync skips the inline issue attempt and goes straight to a
	// worker.
	EntryAsync
	// EntryBufferSelect picks an unreferenced registered buffer at issue
	// time.
	EntryBufferSelect
	// EntrySkipSuccess suppresses the completion entry when the terminal
	// result is a success.
	EntrySkipSuccess
	// EntryDrain delays this entry until everything submitted before it
	// completed.
	EntryDrain
)

// Operation flags carried in OpFlags.
const (
	PollAddMulti uint32 = 1 << iota
)

const (
	AsyncCancelAll uint32 = 1 << iota
	AsyncCancelFd
	AsyncCancelAny
	AsyncCancelOp
)

// Completion entry flags.
const (
	// CQEFBuffer marks a buffer-select completion, the chosen index sits in
	// the upper bits.
	CQEFBuffer uint32 = 1 << iota
	// CQEFMore promises further completions from the same request.
	CQEFMore
	// CQEFPartial marks a short transfer.
	CQEFPartial
)

const CQEBufferShift = 16

// SubmissionEntry describes one operation. Producers fill it and publish it
// into the submission ring; the engine copies it out, the slot is reusable
// the moment the publish completes.
type SubmissionEntry struct {
	Opcode   uint8
	Flags    uint8
	Priority uint16
	Fd       int32
	Off      uint64
	Len      uint32
	OpFlags  uint32
	BufIndex uint16
	Target   uint64
	Timeout  time.Duration
	File     FileHandle
	Buf      []byte
	UserData uint64
}

// CompletionEntry carries one result. Res follows the negated errno
// convention, zero or positive on success.
type CompletionEntry struct {
	UserData uint64
	Res      int32
	Flags    uint32
}

// BufferId extracts the selected buffer index of a buffer-select completion.
func (entry CompletionEntry) BufferId() (index int, ok bool) {
	if entry.Flags&CQEFBuffer == 0 {
		return
	}
	return int(entry.Flags >> CQEBufferShift), true
}

// More reports whether the request will produce further completions.
func (entry CompletionEntry) More() bool {
	return entry.Flags&CQEFMore != 0
}
