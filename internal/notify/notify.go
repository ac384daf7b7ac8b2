// Package notify implements the cross-thread wake signal used to interrupt
// the agent's blocking wait. The sender side is non-blocking and coalescing:
// any number of pings between two drains collapse into a single wake-up,
// which is correct because the waker is a level signal, not a counted queue.
//
// On unix the signal is a non-blocking CLOEXEC pipe whose read end can be
// handed to an OS-level wait set. On other platforms New still succeeds but
// the receiver exposes no descriptor; callers detect this via FD() < 0 and
// fall back to timeout-only waking.
package notify

// New creates a connected sender/receiver pair.
func New() (*Sender, *Receiver, error) {
	return newPair()
}
