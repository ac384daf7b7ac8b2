// Package httpeng implements the transfer engine over net/http. Each
// registered transfer runs on its own goroutine; completions flow back to
// the worker through a channel paired with a pipe wake, so the worker's
// poll wakes the moment a transfer resolves.
package httpeng

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/seantiz/courier/internal/engine"
	"github.com/seantiz/courier/internal/notify"
)

// ErrPauseWrite is returned by a transfer's sink to pause delivery of the
// response body. The transfer holds its current chunk until an unpause
// arrives, then retries the same write.
var ErrPauseWrite = errors.New("httpeng: sink paused")

// Spec describes one HTTP transfer. It travels as the transfer's Payload.
type Spec struct {
	Method string
	URL    string
	Header http.Header
	Body   io.Reader

	// Sink receives the response body. A nil sink discards it.
	Sink io.Writer

	// OnResponse, when set, is called once response headers arrive. It runs
	// on the transfer's goroutine, before any body bytes are written.
	OnResponse func(status int, header http.Header)
}

type completionEvent struct {
	reg *registration
	err error
}

// Engine executes transfers with an http.Client. It is owned by a single
// worker goroutine; only the completions channel and the wake pipe are
// touched from transfer goroutines.
type Engine struct {
	client *http.Client

	regs        map[*registration]bool
	completions chan completionEvent

	wakeTx *notify.Sender
	wakeRx *notify.Receiver
}

// New builds an engine around client. A nil client gets a dedicated default
// client so transfer-goroutine connection state is never shared with other
// users of http.DefaultClient.
func New(client *http.Client) (*Engine, error) {
	if client == nil {
		client = &http.Client{}
	}
	wakeTx, wakeRx, err := notify.New()
	if err != nil {
		return nil, fmt.Errorf("httpeng: create notifier: %w", err)
	}
	return &Engine{
		client:      client,
		regs:        make(map[*registration]bool),
		completions: make(chan completionEvent, 128),
		wakeTx:      wakeTx,
		wakeRx:      wakeRx,
	}, nil
}

type registration struct {
	eng      *Engine
	transfer *engine.Transfer
	token    int
	cancel   context.CancelFunc
	resume   chan struct{} // capacity 1
}

func (e *Engine) Register(t *engine.Transfer) (engine.Registration, error) {
	spec, ok := t.Payload.(Spec)
	if !ok {
		return nil, fmt.Errorf("httpeng: transfer %s carries no spec", t.ID)
	}
	if spec.URL == "" {
		return nil, fmt.Errorf("httpeng: transfer %s has no url", t.ID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &registration{
		eng:      e,
		transfer: t,
		token:    -1,
		cancel:   cancel,
		resume:   make(chan struct{}, 1),
	}
	e.regs[r] = true

	go e.run(ctx, r, spec)
	return r, nil
}

// Deregister cancels the transfer's context and forgets it. An in-flight
// goroutine unwinds on its own; its completion event is dropped because the
// token is no longer live.
func (e *Engine) Deregister(reg engine.Registration) (*engine.Transfer, error) {
	r := reg.(*registration)
	r.cancel()
	delete(e.regs, r)
	return r.transfer, nil
}

// Progress is a no-op: transfer goroutines make their own progress.
func (e *Engine) Progress() error { return nil }

func (e *Engine) DrainEvents(fn func(token int, result error)) {
	for {
		select {
		case ev := <-e.completions:
			// An event queued before its transfer was deregistered is stale;
			// its token may already belong to a newer transfer.
			if !e.regs[ev.reg] {
				continue
			}
			fn(ev.reg.token, ev.err)
		default:
			return
		}
	}
}

// SuggestedTimeout reports no deadline. Completions wake the worker through
// the pipe, so waits only need the loop's own bound.
func (e *Engine) SuggestedTimeout() (time.Duration, bool) { return 0, false }

func (e *Engine) Shutdown() error {
	for r := range e.regs {
		r.cancel()
	}
	e.regs = make(map[*registration]bool)
	e.wakeTx.Close()
	e.wakeRx.Close()
	return nil
}

// run performs the transfer and reports its result. When the context is
// already cancelled nobody is waiting for the event, so it is dropped
// rather than blocking forever on a full channel.
func (e *Engine) run(ctx context.Context, r *registration, spec Spec) {
	err := e.perform(ctx, r, spec)

	select {
	case e.completions <- completionEvent{reg: r, err: err}:
		e.wakeTx.Notify()
	case <-ctx.Done():
	}
}

func (e *Engine) perform(ctx context.Context, r *registration, spec Spec) error {
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, spec.URL, spec.Body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range spec.Header {
		req.Header[k] = vs
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if spec.OnResponse != nil {
		spec.OnResponse(resp.StatusCode, resp.Header)
	}

	sink := spec.Sink
	if sink == nil {
		sink = io.Discard
	}
	if err := r.copyBody(ctx, sink, resp.Body); err != nil {
		return err
	}
	return nil
}

// copyBody streams the response body into the sink, honoring write pauses.
// A paused chunk is retried verbatim after the unpause.
func (r *registration) copyBody(ctx context.Context, sink io.Writer, body io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if werr := r.writeChunk(ctx, sink, buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return fmt.Errorf("read body: %w", rerr)
		}
	}
}

func (r *registration) writeChunk(ctx context.Context, sink io.Writer, chunk []byte) error {
	for {
		_, err := sink.Write(chunk)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrPauseWrite) {
			return fmt.Errorf("write body: %w", err)
		}

		select {
		case <-r.resume:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *registration) BindToken(token int) { r.token = token }

func (r *registration) Token() int { return r.token }

// UnpauseWrite releases a transfer blocked on a paused sink. The signal is
// buffered, so unpausing before the transfer actually pauses is not lost.
func (r *registration) UnpauseWrite() error {
	select {
	case r.resume <- struct{}{}:
	default:
	}
	return nil
}
