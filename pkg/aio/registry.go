package aio

import (
	"github.com/brickingsoft/errors"
)

type IssueOutcome uint8

const (
	// IssueCompleted carries the final result.
	IssueCompleted IssueOutcome = iota
	// IssueWouldBlock means the operation needs a blocking context: a poll
	// registration when the target supports it, a worker otherwise.
	IssueWouldBlock
	// IssueArmed means the handler parked the request on a timer or poll
	// registration; a later event owns the completion.
	IssueArmed
)

// Handler binds an opcode to its prepare, issue and cleanup steps. Issue is
// called with blocking=false from the submission pipeline and with
// blocking=true from a worker or the poller once the target is ready.
type Handler interface {
	Prepare(ring *Ring, req *Request) (err error)
	Issue(ring *Ring, req *Request, blocking bool) (res int32, flags uint32, outcome IssueOutcome, err error)
	Cleanup(ring *Ring, req *Request)
}

type opAttr uint8

const (
	// attrSerial: the target serializes naturally, issue through a bound
	// worker hashed by target so per-target order holds.
	attrSerial opAttr = 1 << iota
	attrNeedsFile
	attrMultishotCapable
)

// The operation set is closed: handlers are bound at compile time, there is
// no dynamic registration.
var (
	opHandlers = [OpLast]Handler{
		OpNop:           nopHandler{},
		OpRead:          readHandler{},
		OpWrite:         writeHandler{},
		OpReadFixed:     readHandler{},
		OpWriteFixed:    writeHandler{},
		OpFsync:         fsyncHandler{},
		OpPollAdd:       pollAddHandler{},
		OpTimeout:       timeoutHandler{},
		OpTimeoutRemove: timeoutRemoveHandler{},
		OpAsyncCancel:   asyncCancelHandler{},
		OpLinkTimeout:   linkTimeoutHandler{},
	}
	opAttrs = [OpLast]opAttr{
		OpNop:           0,
		OpRead:          attrNeedsFile,
		OpWrite:         attrNeedsFile | attrSerial,
		OpReadFixed:     attrNeedsFile,
		OpWriteFixed:    attrNeedsFile | attrSerial,
		OpFsync:         attrNeedsFile | attrSerial,
		OpPollAdd:       attrNeedsFile | attrMultishotCapable,
		OpTimeout:       0,
		OpTimeoutRemove: 0,
		OpAsyncCancel:   0,
		OpLinkTimeout:   0,
	}
)

func handlerOf(code uint8) (handler Handler, err error) {
	if code >= OpLast || opHandlers[code] == nil {
		err = errors.From(ErrInvalidOpcode,
			errors.WithMeta(errMetaPkgKey, errMetaPkgVal),
			errors.WithMeta("op", OpName(code)),
		)
		return
	}
	handler = opHandlers[code]
	return
}

func serializes(code uint8) bool {
	return code < OpLast && opAttrs[code]&attrSerial != 0
}

func needsFile(code uint8) bool {
	return code < OpLast && opAttrs[code]&attrNeedsFile != 0
}

func multishotCapable(code uint8) bool {
	return code < OpLast && opAttrs[code]&attrMultishotCapable != 0
}
