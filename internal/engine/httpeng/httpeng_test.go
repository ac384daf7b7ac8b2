package httpeng

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/seantiz/courier/internal/engine"
)

// awaitCompletion drives the engine the way a worker would until one
// completion arrives or the timeout passes.
func awaitCompletion(t *testing.T, e *Engine, timeout time.Duration) (int, error) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if err := e.Wait(nil, 10*time.Millisecond); err != nil {
			t.Fatalf("Wait: %v", err)
		}
		var (
			gotToken  = -1
			gotResult error
		)
		e.DrainEvents(func(token int, result error) {
			gotToken = token
			gotResult = result
		})
		if gotToken >= 0 {
			return gotToken, gotResult
		}
	}
	t.Fatal("no completion within timeout")
	return -1, nil
}

func TestPerformsRequest(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.Path
		w.Write([]byte("hello transfer"))
	}))
	defer srv.Close()

	e, err := New(srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Shutdown()

	var sink bytes.Buffer
	reg, err := e.Register(&engine.Transfer{ID: "t1", Payload: Spec{
		URL:  srv.URL + "/objects/42",
		Sink: &sink,
	}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	reg.BindToken(5)

	token, result := awaitCompletion(t, e, 5*time.Second)
	if token != 5 || result != nil {
		t.Fatalf("completion = token %d, err %v; want 5, nil", token, result)
	}
	if gotMethod != http.MethodGet || gotPath != "/objects/42" {
		t.Errorf("request = %s %s, want GET /objects/42", gotMethod, gotPath)
	}
	if sink.String() != "hello transfer" {
		t.Errorf("sink = %q, want %q", sink.String(), "hello transfer")
	}

	if _, err := e.Deregister(reg); err != nil {
		t.Fatalf("Deregister: %v", err)
	}
}

func TestPostWithBodyAndHeaders(t *testing.T) {
	var gotBody []byte
	var gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		buf.ReadFrom(r.Body)
		gotBody = buf.Bytes()
		gotHeader = r.Header.Get("X-Batch")
	}))
	defer srv.Close()

	e, err := New(srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Shutdown()

	reg, err := e.Register(&engine.Transfer{ID: "t1", Payload: Spec{
		Method: http.MethodPost,
		URL:    srv.URL,
		Header: http.Header{"X-Batch": []string{"7"}},
		Body:   strings.NewReader("payload bytes"),
	}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	reg.BindToken(0)

	if _, result := awaitCompletion(t, e, 5*time.Second); result != nil {
		t.Fatalf("completion error: %v", result)
	}
	if string(gotBody) != "payload bytes" {
		t.Errorf("server saw body %q", gotBody)
	}
	if gotHeader != "7" {
		t.Errorf("server saw X-Batch %q, want 7", gotHeader)
	}
}

func TestOnResponseSeesStatusAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Origin", "cache")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	e, err := New(srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Shutdown()

	var (
		mu        sync.Mutex
		gotStatus int
		gotOrigin string
	)
	reg, err := e.Register(&engine.Transfer{ID: "t1", Payload: Spec{
		URL: srv.URL,
		OnResponse: func(status int, header http.Header) {
			mu.Lock()
			defer mu.Unlock()
			gotStatus = status
			gotOrigin = header.Get("X-Origin")
		},
	}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	reg.BindToken(0)

	if _, result := awaitCompletion(t, e, 5*time.Second); result != nil {
		t.Fatalf("completion error: %v", result)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotStatus != http.StatusAccepted || gotOrigin != "cache" {
		t.Errorf("OnResponse saw %d, %q; want 202, cache", gotStatus, gotOrigin)
	}
}

func TestTransportErrorReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	e, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Shutdown()

	reg, err := e.Register(&engine.Transfer{ID: "t1", Payload: Spec{URL: url}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	reg.BindToken(0)

	if _, result := awaitCompletion(t, e, 5*time.Second); result == nil {
		t.Fatal("expected a transport error against a closed server")
	}
}

func TestRegisterRejectsBadSpec(t *testing.T) {
	e, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Shutdown()

	if _, err := e.Register(&engine.Transfer{ID: "t1"}); err == nil {
		t.Error("Register accepted a transfer without a spec")
	}
	if _, err := e.Register(&engine.Transfer{ID: "t2", Payload: Spec{}}); err == nil {
		t.Error("Register accepted a spec without a url")
	}
}

func TestDeregisterCancelsInFlight(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	e, err := New(srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Shutdown()

	reg, err := e.Register(&engine.Transfer{ID: "t1", Payload: Spec{URL: srv.URL}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	reg.BindToken(0)

	if _, err := e.Deregister(reg); err != nil {
		t.Fatalf("Deregister: %v", err)
	}

	// The cancelled transfer's event is dropped, not delivered.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		e.Wait(nil, 10*time.Millisecond)
		e.DrainEvents(func(token int, result error) {
			t.Errorf("cancelled transfer produced completion: token %d, err %v", token, result)
		})
	}
}

func TestDeregisterDropsQueuedCompletion(t *testing.T) {
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("done"))
	}))
	defer fast.Close()

	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	deadURL := dead.URL
	dead.Close()

	e, err := New(fast.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Shutdown()

	regA, err := e.Register(&engine.Transfer{ID: "a", Payload: Spec{URL: fast.URL}})
	if err != nil {
		t.Fatalf("Register A: %v", err)
	}
	regA.BindToken(5)

	// Let A's completion land on the queue before the cancel arrives.
	deadline := time.Now().Add(5 * time.Second)
	for len(e.completions) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("transfer A never queued its completion")
		}
		time.Sleep(2 * time.Millisecond)
	}

	if _, err := e.Deregister(regA); err != nil {
		t.Fatalf("Deregister A: %v", err)
	}

	// Token 5 is recycled for B, which resolves with a transport error.
	regB, err := e.Register(&engine.Transfer{ID: "b", Payload: Spec{URL: deadURL}})
	if err != nil {
		t.Fatalf("Register B: %v", err)
	}
	regB.BindToken(5)

	// A's queued success must not surface on B's token.
	token, result := awaitCompletion(t, e, 5*time.Second)
	if token != 5 {
		t.Fatalf("completion token = %d, want 5", token)
	}
	if result == nil {
		t.Fatal("cancelled transfer's completion was delivered to the reused token")
	}
}

// pauseSink pauses body delivery while paused is set.
type pauseSink struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	paused bool
	hits   int
}

func (s *pauseSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		s.hits++
		return 0, ErrPauseWrite
	}
	return s.buf.Write(p)
}

func (s *pauseSink) pauseHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits
}

func (s *pauseSink) setPaused(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = v
}

func (s *pauseSink) contents() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestPauseAndResume(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("streamed body"))
	}))
	defer srv.Close()

	e, err := New(srv.Client())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer e.Shutdown()

	sink := &pauseSink{paused: true}
	reg, err := e.Register(&engine.Transfer{ID: "t1", Payload: Spec{URL: srv.URL, Sink: sink}})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	reg.BindToken(0)

	// Wait until the transfer has actually hit the pause.
	deadline := time.Now().Add(5 * time.Second)
	for sink.pauseHits() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("transfer never paused")
		}
		time.Sleep(2 * time.Millisecond)
	}

	sink.setPaused(false)
	if err := reg.UnpauseWrite(); err != nil {
		t.Fatalf("UnpauseWrite: %v", err)
	}

	if _, result := awaitCompletion(t, e, 5*time.Second); result != nil {
		t.Fatalf("completion error: %v", result)
	}
	// The paused chunk is retried, not dropped.
	if got := sink.contents(); got != "streamed body" {
		t.Errorf("sink = %q, want %q", got, "streamed body")
	}
}
