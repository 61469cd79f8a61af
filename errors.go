package ringio

import (
	"github.com/brickingsoft/ringio/pkg/aio"
)

var (
	ErrClosed            = aio.ErrClosed
	ErrBusy              = aio.ErrBusy
	ErrInvalidArgument   = aio.ErrInvalidArgument
	ErrInvalidOpcode     = aio.ErrInvalidOpcode
	ErrInvalidIndex      = aio.ErrInvalidIndex
	ErrResourceExhausted = aio.ErrResourceExhausted
	ErrCancelNotFound    = aio.ErrCancelNotFound
	ErrWouldBlock        = aio.ErrWouldBlock
	ErrCanceled          = aio.ErrCanceled
	ErrTimeout           = aio.ErrTimeout
)

func IsClosed(err error) bool {
	return aio.IsClosed(err)
}

func IsCanceled(err error) bool {
	return aio.IsCanceled(err)
}

func IsTimeout(err error) bool {
	return aio.IsTimeout(err)
}

func IsWouldBlock(err error) bool {
	return aio.IsWouldBlock(err)
}
