//go:build !unix

package notify

// Sender is a no-op on platforms without a pollable wake descriptor. The
// agent detects FD() < 0 and degrades to timeout-bounded waking, so behavior
// stays correct and only wake latency suffers.
type Sender struct{}

// Receiver exposes no descriptor on this platform.
type Receiver struct{}

func newPair() (*Sender, *Receiver, error) {
	return &Sender{}, &Receiver{}, nil
}

// Notify is a no-op.
func (s *Sender) Notify() {}

// Close is a no-op.
func (s *Sender) Close() error { return nil }

// FD returns -1 to signal that polling interruption is unsupported.
func (r *Receiver) FD() int { return -1 }

// Drain reports no pending pings.
func (r *Receiver) Drain() bool { return false }

// Close is a no-op.
func (r *Receiver) Close() error { return nil }
