// Package dispatch connects the HTTP API to the transfer worker. It owns
// the id-to-token mapping, keeps the journal in sync with transfer
// lifecycle callbacks, and fans lifecycle events out to SSE subscribers.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seantiz/courier/internal/agent"
	"github.com/seantiz/courier/internal/engine"
	"github.com/seantiz/courier/internal/engine/httpeng"
	"github.com/seantiz/courier/internal/model"
	"github.com/seantiz/courier/internal/store"
)

// ErrNotActive is returned when an operation needs a running transfer and
// the id does not name one.
var ErrNotActive = errors.New("transfer not active")

// Request describes one transfer submission.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte

	// Paused starts the transfer with body delivery paused; it downloads
	// nothing until resumed.
	Paused bool
}

// Dispatcher submits transfers to the worker and records their lifecycle
// in the journal.
type Dispatcher struct {
	handle *agent.Handle
	store  store.Store
	broker *Broker
	logger *slog.Logger

	mu            sync.Mutex
	active        map[string]*activeTransfer
	pendingCancel map[string]bool
}

type activeTransfer struct {
	token   int
	handler *transferHandler
}

func New(h *agent.Handle, st store.Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		handle:        h,
		store:         st,
		broker:        NewBroker(),
		logger:        logger,
		active:        make(map[string]*activeTransfer),
		pendingCancel: make(map[string]bool),
	}
}

// Broker returns the event broker for SSE subscriptions.
func (d *Dispatcher) Broker() *Broker {
	return d.broker
}

// Close releases the dispatcher's handle on the worker.
func (d *Dispatcher) Close() error {
	return d.handle.Close()
}

// Done returns a channel closed once the worker has terminated.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.handle.Done()
}

// Submit journals a new transfer and hands it to the worker. The returned
// record is in the pending state; progress is reported through the journal
// and the event broker.
func (d *Dispatcher) Submit(ctx context.Context, req Request) (*model.TransferRecord, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	record := &model.TransferRecord{
		ID:        model.NewID(),
		Method:    method,
		URL:       req.URL,
		Status:    model.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.store.CreateTransfer(ctx, record); err != nil {
		return nil, fmt.Errorf("journal transfer: %w", err)
	}

	h := &transferHandler{
		d:     d,
		id:    record.ID,
		start: time.Now(),
		sink:  &gatedSink{},
	}
	h.sink.paused.Store(req.Paused)

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}

	err := d.handle.Submit(&engine.Transfer{
		ID:      record.ID,
		Handler: h,
		Payload: httpeng.Spec{
			Method:     method,
			URL:        req.URL,
			Header:     req.Header,
			Body:       body,
			Sink:       h.sink,
			OnResponse: h.onResponse,
		},
	})
	if err != nil {
		if merr := d.store.MarkTransferDone(ctx, record.ID, model.StatusFailed, err.Error(), 0, 0); merr != nil {
			d.logger.Error("journal rejected transfer", "id", record.ID, "error", merr)
		}
		return nil, fmt.Errorf("submit transfer: %w", err)
	}

	return record, nil
}

// Cancel aborts a transfer. Cancelling a transfer that already resolved
// returns store.ErrInvalidTransition; an unknown id returns store.ErrNotFound.
func (d *Dispatcher) Cancel(ctx context.Context, id string) error {
	d.mu.Lock()
	at, bound := d.active[id]
	if bound {
		delete(d.active, id)
	} else {
		// Not registered yet; the bind callback will cancel it on arrival.
		d.pendingCancel[id] = true
	}
	d.mu.Unlock()

	if err := d.store.UpdateTransferStatus(ctx, id, model.StatusCancelled); err != nil {
		d.mu.Lock()
		delete(d.pendingCancel, id)
		d.mu.Unlock()
		return err
	}

	if bound {
		if err := d.handle.Cancel(at.token); err != nil {
			d.logger.Warn("cancel after worker termination", "id", id, "error", err)
		}
	}

	d.broker.Publish(id, eventJSON(model.StatusCancelled, ""))
	d.broker.Close(id)
	return nil
}

// Resume reopens the body sink of a paused transfer and pokes the worker to
// unpause it.
func (d *Dispatcher) Resume(id string) error {
	d.mu.Lock()
	at, ok := d.active[id]
	d.mu.Unlock()
	if !ok {
		return ErrNotActive
	}

	at.handler.sink.paused.Store(false)
	return d.handle.UnpauseWrite(at.token)
}

// bindToken runs on the worker goroutine once the transfer is registered.
func (d *Dispatcher) bindToken(h *transferHandler, token int) {
	d.mu.Lock()
	cancelled := d.pendingCancel[h.id]
	delete(d.pendingCancel, h.id)
	if !cancelled {
		d.active[h.id] = &activeTransfer{token: token, handler: h}
	}
	d.mu.Unlock()

	if cancelled {
		if err := d.handle.Cancel(token); err != nil {
			d.logger.Warn("cancel pending transfer", "id", h.id, "error", err)
		}
		return
	}

	if err := d.store.UpdateTransferStatus(context.Background(), h.id, model.StatusActive); err != nil {
		// A cancel can land between the map check and this write.
		if !errors.Is(err, store.ErrInvalidTransition) {
			d.logger.Error("journal transfer activation", "id", h.id, "error", err)
		}
		return
	}
	d.broker.Publish(h.id, eventJSON(model.StatusActive, ""))
}

// finish runs on the worker goroutine when the transfer resolves.
func (d *Dispatcher) finish(h *transferHandler, result error) {
	d.mu.Lock()
	_, wasActive := d.active[h.id]
	delete(d.active, h.id)
	d.mu.Unlock()

	if !wasActive {
		// Already cancelled; the journal holds the terminal state.
		return
	}

	status := model.StatusCompleted
	errMsg := ""
	if result != nil {
		status = model.StatusFailed
		errMsg = result.Error()
	}

	durationMS := int(time.Since(h.start).Milliseconds())
	if err := d.store.MarkTransferDone(context.Background(), h.id, status, errMsg, h.sink.count(), durationMS); err != nil {
		d.logger.Error("journal transfer outcome", "id", h.id, "error", err)
	}

	d.broker.Publish(h.id, eventJSON(status, errMsg))
	d.broker.Close(h.id)
}

// transferHandler carries per-transfer state between the dispatcher and the
// worker's lifecycle callbacks.
type transferHandler struct {
	d     *Dispatcher
	id    string
	start time.Time
	sink  *gatedSink
}

func (h *transferHandler) BindSubmitter(engine.Submitter) {}

func (h *transferHandler) BindToken(token int) { h.d.bindToken(h, token) }

func (h *transferHandler) OnComplete() { h.d.finish(h, nil) }

func (h *transferHandler) OnFail(err error) { h.d.finish(h, err) }

func (h *transferHandler) onResponse(status int, _ http.Header) {
	h.d.broker.Publish(h.id, eventJSON(model.StatusActive, fmt.Sprintf("response status %d", status)))
}

// gatedSink counts response-body bytes and pauses delivery while the gate
// is closed.
type gatedSink struct {
	paused atomic.Bool
	n      atomic.Int64
}

func (s *gatedSink) Write(p []byte) (int, error) {
	if s.paused.Load() {
		return 0, httpeng.ErrPauseWrite
	}
	s.n.Add(int64(len(p)))
	return len(p), nil
}

func (s *gatedSink) count() int64 {
	return s.n.Load()
}

// event is the JSON payload published to SSE subscribers.
type event struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func eventJSON(status, detail string) string {
	b, err := json.Marshal(event{Status: status, Detail: detail})
	if err != nil {
		return `{"status":"` + status + `"}`
	}
	return string(b)
}
