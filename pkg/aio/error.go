package aio

import (
	"context"
	"io"
	"os"
	"syscall"

	"github.com/brickingsoft/errors"
)

var (
	ErrClosed            = errors.Define("use of closed ring")
	ErrBusy              = errors.Define("ring is busy")
	ErrInvalidArgument   = errors.Define("invalid argument")
	ErrInvalidOpcode     = errors.Define("invalid opcode")
	ErrInvalidIndex      = errors.Define("invalid resource index")
	ErrResourceExhausted = errors.Define("resource exhausted")
	ErrPrepareFailed     = errors.Define("prepare failed")
	ErrCancelNotFound    = errors.Define("cancel target not found")
	ErrWouldBlock        = errors.Define("would block")
	ErrCanceled          = &CanceledError{}
	ErrTimeout           = &TimeoutError{}
)

func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

func IsCanceled(err error) bool {
	return errors.Is(err, ErrCanceled)
}

func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock)
}

type CanceledError struct{}

func (e *CanceledError) Error() string   { return "operation was canceled" }
func (e *CanceledError) Timeout() bool   { return false }
func (e *CanceledError) Temporary() bool { return true }
func (e *CanceledError) Is(err error) bool {
	if errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, syscall.ECANCELED) {
		return true
	}
	return false
}

type TimeoutError struct{}

func (e *TimeoutError) Error() string   { return "i/o timeout" }
func (e *TimeoutError) Timeout() bool   { return true }
func (e *TimeoutError) Temporary() bool { return true }
func (e *TimeoutError) Is(err error) bool {
	return err == context.DeadlineExceeded || errors.Is(err, syscall.ETIME)
}

const (
	errMetaPkgKey = "pkg"
	errMetaPkgVal = "aio"
)

func errorWithMeta(sentinel error) error {
	return errors.From(sentinel, errors.WithMeta(errMetaPkgKey, errMetaPkgVal))
}

// errnoOf maps a handler error to the negated result code carried by a
// completion entry. Unknown errors map to EIO.
func errnoOf(err error) int32 {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return -int32(errno)
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		if errors.As(pathErr.Err, &errno) {
			return -int32(errno)
		}
	}
	switch {
	case errors.Is(err, io.EOF):
		return 0
	case errors.Is(err, io.ErrUnexpectedEOF):
		return -int32(syscall.EIO)
	case IsCanceled(err):
		return -int32(syscall.ECANCELED)
	case IsTimeout(err):
		return -int32(syscall.ETIME)
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidIndex), errors.Is(err, ErrInvalidOpcode), errors.Is(err, ErrPrepareFailed):
		return -int32(syscall.EINVAL)
	case errors.Is(err, ErrResourceExhausted):
		return -int32(syscall.ENOSPC)
	default:
		return -int32(syscall.EIO)
	}
}
