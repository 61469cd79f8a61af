//go:build linux

package aio

import (
	"encoding/binary"

	"github.com/brickingsoft/errors"
	"golang.org/x/sys/unix"
)

// NewEventFd creates a nonblocking close-on-exec eventfd suitable for
// RegisterEventFd.
func NewEventFd() (fd int, err error) {
	fd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		err = errors.From(ErrInvalidArgument, errors.WithMeta(errMetaPkgKey, errMetaPkgVal), errors.WithWrap(err))
	}
	return
}

// NewEventFdNotifier wraps an eventfd so an epoll-driven consumer can sleep
// on completions. The counter write coalesces under load, one wakeup may
// cover many entries.
func NewEventFdNotifier(fd int) Notifier {
	return &eventFdNotifier{fd: fd}
}

type eventFdNotifier struct {
	fd int
}

func (n *eventFdNotifier) Notify() {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], 1)
	_, _ = unix.Write(n.fd, b[:])
}

func (n *eventFdNotifier) Close() error {
	return unix.Close(n.fd)
}

// RegisterEventFd installs an eventfd as the ring's completion notifier.
// The ring takes ownership of fd and closes it when the ring closes or a
// later RegisterNotify replaces the notifier. Callers must not close it.
func (ring *Ring) RegisterEventFd(fd int) {
	ring.RegisterNotify(NewEventFdNotifier(fd))
}
