// Package simeng implements a simulated transfer engine. Transfers resolve
// after a configured latency without touching the network, which makes it
// the engine of choice for load drivers and worker tests.
package simeng

import (
	"time"

	"github.com/seantiz/courier/internal/engine"
)

// Spec configures one simulated transfer. It travels as the transfer's
// Payload.
type Spec struct {
	// Latency is how long the transfer runs before resolving.
	Latency time.Duration

	// Fail, when non-nil, is the error the transfer resolves with.
	Fail error

	// StartPaused holds the transfer until an unpause arrives; the latency
	// clock starts on unpause.
	StartPaused bool
}

// Engine is a deterministic engine driven purely by deadlines. It is owned
// by a single worker goroutine and is not safe for concurrent use.
type Engine struct {
	regs map[*registration]bool
	done []event
}

type event struct {
	token  int
	result error
}

type registration struct {
	spec     Spec
	transfer *engine.Transfer
	token    int
	deadline time.Time
	paused   bool
	resolved bool
}

func New() *Engine {
	return &Engine{regs: make(map[*registration]bool)}
}

func (e *Engine) Register(t *engine.Transfer) (engine.Registration, error) {
	spec, _ := t.Payload.(Spec)
	r := &registration{spec: spec, transfer: t, token: -1, paused: spec.StartPaused}
	if !r.paused {
		r.deadline = time.Now().Add(spec.Latency)
	}
	e.regs[r] = true
	return r, nil
}

func (e *Engine) Deregister(reg engine.Registration) (*engine.Transfer, error) {
	r := reg.(*registration)
	delete(e.regs, r)
	return r.transfer, nil
}

// Progress resolves every transfer whose deadline has passed. Paused
// transfers have no deadline and never resolve here.
func (e *Engine) Progress() error {
	now := time.Now()
	for r := range e.regs {
		if r.resolved || r.paused || now.Before(r.deadline) {
			continue
		}
		r.resolved = true
		e.done = append(e.done, event{token: r.token, result: r.spec.Fail})
	}
	return nil
}

func (e *Engine) DrainEvents(fn func(token int, result error)) {
	events := e.done
	e.done = nil
	for _, ev := range events {
		fn(ev.token, ev.result)
	}
}

// SuggestedTimeout returns the time until the nearest deadline. With only
// paused or resolved transfers there is no deadline to honor.
func (e *Engine) SuggestedTimeout() (time.Duration, bool) {
	var next time.Time
	for r := range e.regs {
		if r.resolved || r.paused {
			continue
		}
		if next.IsZero() || r.deadline.Before(next) {
			next = r.deadline
		}
	}
	if next.IsZero() {
		return 0, false
	}
	return time.Until(next), true
}

func (e *Engine) Shutdown() error {
	e.regs = make(map[*registration]bool)
	e.done = nil
	return nil
}

func (r *registration) BindToken(token int) { r.token = token }

func (r *registration) Token() int { return r.token }

// UnpauseWrite releases a paused transfer and starts its latency clock.
// Unpausing a running transfer changes nothing.
func (r *registration) UnpauseWrite() error {
	if !r.paused {
		return nil
	}
	r.paused = false
	r.deadline = time.Now().Add(r.spec.Latency)
	return nil
}
