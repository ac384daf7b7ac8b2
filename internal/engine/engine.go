package engine

import "time"

// Engine is the interface that all transfer engines must implement. An
// engine multiplexes any number of in-flight transfers behind one polling
// primitive; all methods are invoked from the single agent goroutine that
// owns the engine instance, and none of them may block except Wait.
type Engine interface {
	// Register hands ownership of a transfer to the engine and returns the
	// engine-side handle for it. The transfer starts making progress on
	// subsequent Progress calls.
	Register(t *Transfer) (Registration, error)

	// Deregister detaches a transfer from the engine, aborting any in-flight
	// I/O, and returns the original transfer.
	Deregister(reg Registration) (*Transfer, error)

	// Progress drives engine-internal I/O without blocking.
	Progress() error

	// DrainEvents invokes fn once for each transfer that finished since the
	// previous drain. A nil result means success; anything else is the
	// engine-level failure for that transfer.
	DrainEvents(fn func(token int, result error))

	// SuggestedTimeout reports how long the caller may block before the
	// engine needs another Progress call. ok is false when the engine has
	// no deadline of its own.
	SuggestedTimeout() (d time.Duration, ok bool)

	// Wait blocks until engine readiness, one of the extra wake descriptors
	// becomes readable, or the timeout passes. Descriptors with value < 0
	// are ignored.
	Wait(wakeFDs []int, timeout time.Duration) error

	// Shutdown releases all engine resources. No other method may be called
	// afterwards.
	Shutdown() error
}

// Registration is the engine-side handle for one active transfer. The agent
// binds its table token here so completion events can be mapped back.
type Registration interface {
	// BindToken associates the agent's table token with this registration.
	BindToken(token int)

	// Token returns the token previously bound, or -1.
	Token() int

	// UnpauseWrite resumes a previously paused response-body write stream.
	UnpauseWrite() error
}

// Submitter is the narrow view of an agent handle that a handler may call
// back into once its transfer has been submitted.
type Submitter interface {
	Cancel(token int) error
	UnpauseWrite(token int) error
}

// Handler consumes the lifecycle events of a single transfer. Exactly one
// of OnComplete or OnFail fires for every transfer the engine resolves;
// transfers cancelled before resolution receive neither.
type Handler interface {
	// BindSubmitter gives the handler a way to cancel or resume its own
	// transfer. Called once, before the transfer reaches the engine.
	BindSubmitter(s Submitter)

	// BindToken tells the handler which table token its transfer received.
	BindToken(token int)

	// OnComplete fires when the engine resolves the transfer successfully.
	OnComplete()

	// OnFail fires with the engine-level failure for this transfer.
	OnFail(err error)
}

// Transfer is one opaque unit of work bound to a Handler. Payload carries
// the engine-specific description of the work; the agent never inspects it.
type Transfer struct {
	ID      string
	Handler Handler
	Payload any
}
