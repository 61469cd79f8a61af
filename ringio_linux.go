//go:build linux

package ringio

import (
	"github.com/brickingsoft/ringio/pkg/aio"
)

// NewEventFd creates an eventfd ready to pass to RegisterEventFd.
func NewEventFd() (int, error) {
	return aio.NewEventFd()
}

// RegisterEventFd installs fd as the completion notifier. The ring writes
// one counter increment per completion batch, so an epoll loop watching the
// eventfd can sleep until work arrives. The ring takes ownership of fd and
// closes it when the ring closes; callers must not close it themselves.
func (r *Ring) RegisterEventFd(fd int) {
	r.engine.RegisterEventFd(fd)
}
