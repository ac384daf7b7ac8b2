//go:build unix

package notify

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Sender is the producer side of the wake signal. It is safe for concurrent
// use from any number of goroutines, including concurrently with Close: the
// lock keeps the descriptor alive for the duration of every write, so a ping
// can never hit a closed or recycled fd.
type Sender struct {
	mu     sync.RWMutex
	fd     int
	closed bool
}

// Receiver is the consumer side, owned by the agent goroutine.
type Receiver struct {
	fd     int
	buf    [64]byte
	closed atomic.Bool
}

func newPair() (*Sender, *Receiver, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, nil, fmt.Errorf("notify: create pipe: %w", err)
	}

	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, nil, fmt.Errorf("notify: set nonblock: %w", err)
		}
	}

	return &Sender{fd: fds[1]}, &Receiver{fd: fds[0]}, nil
}

// Notify pings the receiver. A full pipe means a wake-up is already pending,
// so EAGAIN is treated as success. Errors from a torn-down receiver are
// ignored; the terminated flag on the handle is the authoritative signal.
func (s *Sender) Notify() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	_, _ = unix.Write(s.fd, []byte{1})
}

// Close releases the write end. Idempotent, and safe to call while other
// goroutines are notifying.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return unix.Close(s.fd)
}

// FD returns the pollable read descriptor.
func (r *Receiver) FD() int {
	return r.fd
}

// Drain consumes all pending pings and reports whether any were pending.
// The count is irrelevant: one byte and fifty bytes both mean "wake once".
func (r *Receiver) Drain() bool {
	woke := false
	for {
		n, err := unix.Read(r.fd, r.buf[:])
		if n > 0 {
			woke = true
		}
		if err != nil || n < len(r.buf) {
			return woke
		}
	}
}

// Close releases the read end.
func (r *Receiver) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(r.fd)
}
