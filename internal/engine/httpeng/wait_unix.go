//go:build unix

package httpeng

import (
	"time"

	"golang.org/x/sys/unix"
)

// Wait polls the worker's wake descriptors together with the engine's own
// completion pipe, so both control messages and finished transfers
// interrupt the wait immediately.
func (e *Engine) Wait(wakeFDs []int, timeout time.Duration) error {
	fds := make([]unix.PollFd, 0, len(wakeFDs)+1)
	for _, fd := range wakeFDs {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}
	if fd := e.wakeRx.FD(); fd >= 0 {
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	}

	if len(fds) == 0 {
		time.Sleep(timeout)
		return nil
	}

	_, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err != nil && err != unix.EINTR {
		return err
	}

	e.wakeRx.Drain()
	return nil
}
