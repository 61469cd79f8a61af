// Package ringio exposes a ring based asynchronous execution engine.
//
// Clients enqueue submission entries describing operations against direct or
// table registered resources and harvest completion entries carrying negated
// errno style results. The heavy lifting lives in pkg/aio; this package adds
// executor lifecycle management and a friendlier surface over the rings.
package ringio

import (
	"context"
	"time"

	"github.com/brickingsoft/ringio/pkg/aio"
)

type (
	SubmissionEntry = aio.SubmissionEntry
	CompletionEntry = aio.CompletionEntry
	CancelSelector  = aio.CancelSelector
	FileHandle      = aio.FileHandle
	Notifier        = aio.Notifier
)

const (
	OpNop           = aio.OpNop
	OpRead          = aio.OpRead
	OpWrite         = aio.OpWrite
	OpReadFixed     = aio.OpReadFixed
	OpWriteFixed    = aio.OpWriteFixed
	OpFsync         = aio.OpFsync
	OpPollAdd       = aio.OpPollAdd
	OpTimeout       = aio.OpTimeout
	OpTimeoutRemove = aio.OpTimeoutRemove
	OpAsyncCancel   = aio.OpAsyncCancel
	OpLinkTimeout   = aio.OpLinkTimeout
)

const (
	EntryFixedFile    = aio.EntryFixedFile
	EntryLink         = aio.EntryLink
	EntryHardLink     = aio.EntryHardLink
	EntryAsync        = aio.EntryAsync
	EntryBufferSelect = aio.EntryBufferSelect
	EntrySkipSuccess  = aio.EntrySkipSuccess
	EntryDrain        = aio.EntryDrain
)

const (
	CancelByUserData = aio.CancelByUserData
	CancelByFd       = aio.CancelByFd
	CancelByOpcode   = aio.CancelByOpcode
	CancelAny        = aio.CancelAny
)

// NewChanNotifier signals the given channel after completions are
// published, dropping nudges the channel cannot take.
func NewChanNotifier(ch chan<- struct{}) Notifier {
	return aio.NewChanNotifier(ch)
}

// New builds a ring over the shared executors. The executors start lazily
// on first use unless Startup ran earlier.
func New(options ...Option) (ring *Ring, err error) {
	opts := Options{}
	for _, opt := range options {
		if err = opt(&opts); err != nil {
			return
		}
	}
	engineOpts := opts.AsAioOptions()
	engineOpts = append(engineOpts, aio.WithExecutors(Executors()))
	engine, engineErr := aio.New(engineOpts...)
	if engineErr != nil {
		err = engineErr
		return
	}
	ring = &Ring{engine: engine}
	return
}

// Ring wraps the engine with the client-side operations: publishing
// submissions, harvesting completions, resource registration and cancel.
type Ring struct {
	engine *aio.Ring
}

// TryEnqueue publishes one entry without blocking, false means full or
// closed.
func (r *Ring) TryEnqueue(entry SubmissionEntry) bool {
	return r.engine.TryEnqueue(entry)
}

// Enqueue publishes entries until the ring fills, returning how many made
// it in and ErrBusy when not all fit.
func (r *Ring) Enqueue(entries ...SubmissionEntry) (n int, err error) {
	n = r.engine.Enqueue(entries...)
	if n < len(entries) {
		err = ErrBusy
	}
	return
}

// PeekCompletions drains ready completions without waiting.
func (r *Ring) PeekCompletions(dst []CompletionEntry) uint32 {
	return r.engine.PeekCompletions(dst)
}

// WaitCompletions blocks until want completions are visible or the deadline
// or context ends.
func (r *Ring) WaitCompletions(ctx context.Context, want uint32, deadline time.Time) error {
	return r.engine.WaitCompletions(ctx, want, deadline)
}

// Enter waits for at least waitNr completions and drains them into dst.
func (r *Ring) Enter(ctx context.Context, dst []CompletionEntry, waitNr uint32, deadline time.Time) (uint32, error) {
	return r.engine.Enter(ctx, dst, waitNr, deadline)
}

func (r *Ring) RegisterFile(file FileHandle) (int, error) {
	return r.engine.RegisterFile(file)
}

func (r *Ring) UnregisterFile(index int) (FileHandle, error) {
	return r.engine.UnregisterFile(index)
}

func (r *Ring) RegisterBuffer(buf []byte) (int, error) {
	return r.engine.RegisterBuffer(buf)
}

func (r *Ring) UnregisterBuffer(index int) ([]byte, error) {
	return r.engine.UnregisterBuffer(index)
}

// Cancel matches in-flight operations outside the submission flow.
func (r *Ring) Cancel(sel CancelSelector, all bool) (int, error) {
	return r.engine.Cancel(sel, all)
}

// RegisterNotify installs an asynchronous completion notifier.
func (r *Ring) RegisterNotify(n Notifier) {
	r.engine.RegisterNotify(n)
}

// SQCapacity reports the submission ring capacity after rounding.
func (r *Ring) SQCapacity() uint32 { return r.engine.SQCapacity() }

// CQCapacity reports the completion ring capacity after rounding.
func (r *Ring) CQCapacity() uint32 { return r.engine.CQCapacity() }

// Dropped counts submissions rejected before a request existed.
func (r *Ring) Dropped() uint32 { return r.engine.Dropped() }

// Flags exposes the shared flag word.
func (r *Ring) Flags() uint32 { return r.engine.Flags() }

func (r *Ring) Close() error {
	return r.engine.Close()
}
