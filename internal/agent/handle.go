package agent

import (
	"errors"
	"sync/atomic"

	"github.com/seantiz/courier/internal/engine"
	"github.com/seantiz/courier/internal/notify"
)

// handleCore is the state shared by every clone of a handle. Exactly one
// exists per agent. The worker keeps a back-reference to it, but touches
// only the terminated flag and the done channel; ownership stays with the
// handles.
type handleCore struct {
	queue *msgQueue
	wake  *notify.Sender

	// terminated transitions once, false to true, and is published before
	// the worker goroutine exits.
	terminated atomic.Bool

	// refs counts live handle clones. The last release sends the close
	// message and closes released.
	refs     atomic.Int64
	released chan struct{}

	// done is closed by the worker after it has published terminated.
	done chan struct{}
}

// send enqueues a message and pings the worker. It fails fast once the
// worker has terminated, without enqueuing.
func (c *handleCore) send(m message) error {
	if c.terminated.Load() {
		return ErrTerminated
	}
	c.queue.push(m)
	c.wake.Notify()
	messagesTotal.WithLabelValues(m.kind()).Inc()
	return nil
}

// Handle submits work to an agent. Handles are cheap, safe for concurrent
// use, and may be cloned freely; the worker begins shutting down once every
// clone has been closed.
type Handle struct {
	core   *handleCore
	closed atomic.Bool
}

// Clone returns a new handle sharing the same agent.
func (h *Handle) Clone() *Handle {
	h.core.refs.Add(1)
	return &Handle{core: h.core}
}

// Submit hands a transfer to the worker for execution. The transfer's
// handler is bound to this handle first, so it can cancel or resume its own
// transfer later. Ownership of the transfer moves to the agent.
func (h *Handle) Submit(t *engine.Transfer) error {
	if t.Handler != nil {
		t.Handler.BindSubmitter(h)
	}
	return h.core.send(beginMessage{transfer: t})
}

// Cancel asks the worker to abort the transfer under token. Cancelling a
// token that already resolved or never existed is a harmless no-op.
func (h *Handle) Cancel(token int) error {
	return h.core.send(cancelMessage{token: token})
}

// UnpauseWrite asks the worker to resume a paused response-body stream.
func (h *Handle) UnpauseWrite(token int) error {
	return h.core.send(unpauseWriteMessage{token: token})
}

// Terminated reports whether the worker goroutine has exited.
func (h *Handle) Terminated() bool {
	return h.core.terminated.Load()
}

// Done returns a channel closed once the worker has fully terminated. The
// terminated flag is visible before the channel closes.
func (h *Handle) Done() <-chan struct{} {
	return h.core.done
}

// Close releases this handle. When the last clone is closed, a close message
// is sent to the worker, which terminates once all active transfers have
// drained. Close is idempotent per clone and never blocks.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	if h.core.refs.Add(-1) > 0 {
		return nil
	}

	err := h.core.send(closeMessage{})
	close(h.core.released)
	h.core.wake.Close()
	if err != nil && !errors.Is(err, ErrTerminated) {
		return err
	}
	return nil
}
