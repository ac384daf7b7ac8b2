package agent

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/seantiz/courier/internal/engine"
	"github.com/seantiz/courier/internal/notify"
	"github.com/seantiz/courier/internal/slab"
)

// defaultWaitTimeout bounds every blocking wait so that a missed or
// coalesced wake signal can never stall the loop indefinitely.
const defaultWaitTimeout = 1000 * time.Millisecond

// Start spawns the worker goroutine for eng and returns the first handle to
// it. The worker takes exclusive ownership of eng; construction failures are
// reported synchronously and nothing is spawned.
func Start(eng engine.Engine, logger *slog.Logger) (*Handle, error) {
	if logger == nil {
		logger = slog.Default()
	}

	wakeTx, wakeRx, err := notify.New()
	if err != nil {
		return nil, fmt.Errorf("agent: create notifier: %w", err)
	}

	core := &handleCore{
		queue:    newMsgQueue(),
		wake:     wakeTx,
		released: make(chan struct{}),
		done:     make(chan struct{}),
	}
	core.refs.Store(1)

	w := &worker{
		eng:       eng,
		queue:     core.queue,
		wakeRx:    wakeRx,
		transfers: slab.New[engine.Registration](),
		core:      core,
		logger:    logger,
	}
	go w.run()

	return &Handle{core: core}, nil
}

// worker holds the agent state. Every field is owned by the worker
// goroutine alone; exclusivity is structural, not enforced by locks.
type worker struct {
	eng       engine.Engine
	queue     *msgQueue
	wakeRx    *notify.Receiver
	transfers *slab.Slab[engine.Registration]

	closeRequested bool

	// core is a back-reference to the shared handle state, used only to
	// publish termination.
	core *handleCore

	logger *slog.Logger
	events []completion
}

type completion struct {
	token  int
	result error
}

func (w *worker) run() {
	defer func() {
		w.core.terminated.Store(true)
		close(w.core.done)
		w.wakeRx.Close()
	}()

	err := w.loop()
	if err != nil {
		w.logger.Error("agent: worker failed", "error", err)
	}

	// The engine is torn down on every exit path, clean or fatal.
	if err := w.eng.Shutdown(); err != nil {
		w.logger.Error("agent: engine shutdown failed", "error", err)
	}
}

func (w *worker) loop() error {
	var wakeFDs []int
	if fd := w.wakeRx.FD(); fd >= 0 {
		wakeFDs = []int{fd}
	} else {
		w.logger.Warn("agent: polling interruption unsupported on this platform, waits are timeout-bounded only")
	}

	w.logger.Debug("agent: ready")

	for {
		loopIterations.Inc()

		if w.closeRequested && w.transfers.Len() == 0 {
			break
		}

		if err := w.pollMessages(); err != nil {
			return err
		}
		if w.closeRequested && w.transfers.Len() == 0 {
			break
		}

		timeout := defaultWaitTimeout
		if d, ok := w.eng.SuggestedTimeout(); ok && d < timeout {
			timeout = max(d, 0)
		}

		if err := w.eng.Wait(wakeFDs, timeout); err != nil {
			return fmt.Errorf("agent: wait: %w", err)
		}

		if w.wakeRx.Drain() {
			wakeupsTotal.Inc()
		}

		if err := w.dispatch(); err != nil {
			return err
		}
	}

	w.logger.Debug("agent: shutting down")
	return nil
}

// pollMessages applies all pending control messages. While no transfer is
// active it blocks for the next message, so an idle worker consumes no CPU;
// otherwise it drains without blocking so I/O stays serviced.
func (w *worker) pollMessages() error {
	for {
		if w.transfers.Len() == 0 && !w.closeRequested {
			m, ok := w.waitMessage()
			if !ok {
				w.logger.Warn("agent: all handles released without close message")
				w.closeRequested = true
				return nil
			}
			if err := w.handleMessage(m); err != nil {
				return err
			}
			continue
		}

		m, ok := w.queue.tryPop()
		if !ok {
			return nil
		}
		if err := w.handleMessage(m); err != nil {
			return err
		}

		if w.closeRequested && w.transfers.Len() == 0 {
			return nil
		}
	}
}

// waitMessage blocks until a message arrives or the last handle has been
// released. The queue is re-checked after a release to drain any message
// that raced it.
func (w *worker) waitMessage() (message, bool) {
	for {
		if m, ok := w.queue.tryPop(); ok {
			return m, true
		}
		select {
		case <-w.queue.ready:
		case <-w.core.released:
			if m, ok := w.queue.tryPop(); ok {
				return m, true
			}
			return nil, false
		}
	}
}

func (w *worker) handleMessage(m message) error {
	switch m := m.(type) {
	case closeMessage:
		w.logger.Debug("agent: close requested")
		w.closeRequested = true

	case beginMessage:
		reg, err := w.eng.Register(m.transfer)
		if err != nil {
			return fmt.Errorf("agent: register transfer: %w", err)
		}
		token := w.transfers.Insert(reg)
		reg.BindToken(token)
		if h := m.transfer.Handler; h != nil {
			h.BindToken(token)
		}
		activeTransfers.Set(float64(w.transfers.Len()))

	case cancelMessage:
		reg, ok := w.transfers.Remove(m.token)
		if !ok {
			break
		}
		if _, err := w.eng.Deregister(reg); err != nil {
			return fmt.Errorf("agent: deregister transfer: %w", err)
		}
		transfersTotal.WithLabelValues(outcomeCancelled).Inc()
		activeTransfers.Set(float64(w.transfers.Len()))

	case unpauseWriteMessage:
		reg, ok := w.transfers.Get(m.token)
		if !ok {
			w.logger.Warn("agent: unpause for unknown transfer token", "token", m.token)
			break
		}
		if err := reg.UnpauseWrite(); err != nil {
			return fmt.Errorf("agent: unpause write: %w", err)
		}
	}

	return nil
}

// dispatch performs the engine's non-blocking progress step and resolves
// every transfer it finished. Exactly one of the handler's OnComplete or
// OnFail fires per resolved token.
func (w *worker) dispatch() error {
	if err := w.eng.Progress(); err != nil {
		return fmt.Errorf("agent: progress: %w", err)
	}

	w.events = w.events[:0]
	w.eng.DrainEvents(func(token int, result error) {
		w.events = append(w.events, completion{token: token, result: result})
	})

	for _, ev := range w.events {
		reg, ok := w.transfers.Remove(ev.token)
		if !ok {
			continue
		}
		tr, err := w.eng.Deregister(reg)
		if err != nil {
			return fmt.Errorf("agent: deregister transfer: %w", err)
		}
		activeTransfers.Set(float64(w.transfers.Len()))

		if ev.result == nil {
			transfersTotal.WithLabelValues(outcomeCompleted).Inc()
			if tr != nil && tr.Handler != nil {
				tr.Handler.OnComplete()
			}
		} else {
			w.logger.Debug("agent: transfer failed", "token", ev.token, "error", ev.result)
			transfersTotal.WithLabelValues(outcomeFailed).Inc()
			if tr != nil && tr.Handler != nil {
				tr.Handler.OnFail(ev.result)
			}
		}
	}

	return nil
}
