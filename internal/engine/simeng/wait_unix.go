//go:build unix

package simeng

import (
	"time"

	"golang.org/x/sys/unix"
)

// Wait sleeps until the timeout passes or one of the wake descriptors
// becomes readable. A signal interruption just ends the wait early.
func (e *Engine) Wait(wakeFDs []int, timeout time.Duration) error {
	if len(wakeFDs) == 0 {
		time.Sleep(timeout)
		return nil
	}

	fds := make([]unix.PollFd, len(wakeFDs))
	for i, fd := range wakeFDs {
		fds[i] = unix.PollFd{Fd: int32(fd), Events: unix.POLLIN}
	}
	_, err := unix.Poll(fds, int(timeout.Milliseconds()))
	if err == unix.EINTR {
		return nil
	}
	return err
}
