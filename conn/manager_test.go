package conn

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/burntcarrot/docsync/commons"
	"github.com/cenkalti/backoff"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type recorder struct {
	mu       sync.Mutex
	statuses []Status
	ready    []InitialState
	ops      []commons.Operation
	syncs    []commons.Snapshot
	errs     []*commons.Error
}

func (r *recorder) OnStatus(status Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recorder) OnReady(state InitialState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = append(r.ready, state)
}

func (r *recorder) OnOperation(op commons.Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

func (r *recorder) OnOutOfSync(snapshot commons.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncs = append(r.syncs, snapshot)
}

func (r *recorder) OnError(err *commons.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) count(f func() int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return f()
}

func waitFor(t *testing.T, description string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}

type testServer struct {
	*httptest.Server
	attempts int32
}

func newTestServer(handle func(ws *websocket.Conn, r *http.Request)) *testServer {
	ts := &testServer{}
	upgrader := websocket.Upgrader{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&ts.attempts, 1)
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		handle(ws, r)
	}))
	return ts
}

func (ts *testServer) endpoint() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (ts *testServer) count() int {
	return int(atomic.LoadInt32(&ts.attempts))
}

func testConfig(endpoint string) Config {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := DefaultConfig(endpoint)
	cfg.HandshakeTimeout = 300 * time.Millisecond
	cfg.BackoffBase = 10 * time.Millisecond
	cfg.BackoffMax = 40 * time.Millisecond
	cfg.Logger = logger
	return cfg
}

func writeJSON(ws *websocket.Conn, v interface{}) {
	_ = ws.WriteJSON(v)
}

// drain reads until the client goes away.
func drain(ws *websocket.Conn, received chan<- string) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if received != nil {
			received <- string(data)
		}
	}
}

func TestReadyOnInitialState(t *testing.T) {
	received := make(chan string, 10)
	requests := make(chan *http.Request, 1)

	ts := newTestServer(func(ws *websocket.Conn, r *http.Request) {
		requests <- r
		time.Sleep(50 * time.Millisecond)
		content := "hello"
		writeJSON(ws, commons.NewInitialState(&content, 3))
		drain(ws, received)
	})
	defer ts.Close()

	rec := &recorder{}
	m := New(testConfig(ts.endpoint()), "doc 1", "se&cret", rec)

	if m.Send(commons.Insert(0, "x")) {
		t.Fatalf("send must fail before the session is open")
	}

	m.Open(context.Background())
	defer m.Close()

	r := <-requests
	if got, want := r.URL.Path, "/ws/doc/doc 1"; got != want {
		t.Errorf("path: got = %q, expected = %q", got, want)
	}
	if got, want := r.URL.Query().Get("token"), "se&cret"; got != want {
		t.Errorf("token: got = %q, expected = %q", got, want)
	}
	if got, want := r.Header.Get(ClientIDHeader), m.ClientID().String(); got != want {
		t.Errorf("client id: got = %q, expected = %q", got, want)
	}

	waitFor(t, "ready", func() bool { return rec.count(func() int { return len(rec.ready) }) == 1 })

	if got := m.Status(); got != StatusOpen {
		t.Fatalf("status: got = %s, expected = %s", got, StatusOpen)
	}
	if got := *rec.ready[0].Content; got != "hello" {
		t.Errorf("initial content: got = %q", got)
	}

	op := commons.Insert(5, " world")
	op.Version = 3
	if !m.Send(op) {
		t.Fatalf("send failed on an open session")
	}

	select {
	case got := <-received:
		want := `{"type":"insert","pos":5,"text":" world","version":3}`
		if got != want {
			t.Errorf("got != expected, diff: %v\n", cmp.Diff(got, want))
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("server did not receive the operation")
	}

	m.Close()

	if got := m.Status(); got != StatusClosed {
		t.Errorf("status after close: got = %s", got)
	}
	expected := []Status{StatusConnecting, StatusOpen, StatusClosed}
	if !cmp.Equal(rec.statuses, expected) {
		t.Errorf("statuses: got != expected, diff: %v\n", cmp.Diff(rec.statuses, expected))
	}
}

func TestMalformedMessagesDropped(t *testing.T) {
	ts := newTestServer(func(ws *websocket.Conn, r *http.Request) {
		writeJSON(ws, commons.NewInitialState(nil, 1))
		_ = ws.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"cursor","pos":1}`))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"operation"}`))
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"operation","op":{"type":"delete","pos":-4,"len":1}}`))
		writeJSON(ws, commons.NewOperationMessage(commons.Operation{Type: commons.OpInsert, Pos: 0, Text: "a", Version: 2}))
		drain(ws, nil)
	})
	defer ts.Close()

	rec := &recorder{}
	m := New(testConfig(ts.endpoint()), "doc", "token", rec)
	m.Open(context.Background())
	defer m.Close()

	waitFor(t, "operation", func() bool { return rec.count(func() int { return len(rec.ops) }) == 1 })

	expected := commons.Operation{Type: commons.OpInsert, Pos: 0, Text: "a", Version: 2}
	if !cmp.Equal(rec.ops[0], expected) {
		t.Errorf("got != expected, diff: %v\n", cmp.Diff(rec.ops[0], expected))
	}
	if got := m.Status(); got != StatusOpen {
		t.Errorf("status: got = %s, expected = %s", got, StatusOpen)
	}
	if n := rec.count(func() int { return len(rec.errs) }); n != 0 {
		t.Errorf("malformed input must not surface errors, got %d", n)
	}
}

func TestConflictKeepsSessionOpen(t *testing.T) {
	ts := newTestServer(func(ws *websocket.Conn, r *http.Request) {
		writeJSON(ws, commons.NewInitialState(nil, 5))
		v := uint64(7)
		writeJSON(ws, commons.NewErrorMessage(&commons.Error{Code: commons.CodeConflict, Message: "stale", CurrentVersion: &v}))
		writeJSON(ws, commons.NewOutOfSync("fresh", 8))
		drain(ws, nil)
	})
	defer ts.Close()

	rec := &recorder{}
	m := New(testConfig(ts.endpoint()), "doc", "token", rec)
	m.Open(context.Background())
	defer m.Close()

	waitFor(t, "out of sync", func() bool { return rec.count(func() int { return len(rec.syncs) }) == 1 })

	if len(rec.errs) != 1 || rec.errs[0].Code != commons.CodeConflict || *rec.errs[0].CurrentVersion != 7 {
		t.Fatalf("expected one conflict error at version 7, got %v", rec.errs)
	}
	if !cmp.Equal(rec.syncs[0], commons.Snapshot{Content: "fresh", Version: 8}) {
		t.Errorf("unexpected snapshot %+v", rec.syncs[0])
	}
	if got := m.Status(); got != StatusOpen {
		t.Errorf("status: got = %s, expected = %s", got, StatusOpen)
	}
}

func TestRetryCeiling(t *testing.T) {
	ts := newTestServer(func(ws *websocket.Conn, r *http.Request) {
		// Drop the transport without a close frame.
		ws.UnderlyingConn().Close()
	})
	defer ts.Close()

	rec := &recorder{}
	m := New(testConfig(ts.endpoint()), "doc", "token", rec)
	m.Open(context.Background())
	defer m.Close()

	waitFor(t, "terminal error", func() bool { return rec.count(func() int { return len(rec.errs) }) == 1 })

	if got := rec.errs[0].Code; got != commons.CodeConnectionFailed {
		t.Errorf("code: got = %s, expected = %s", got, commons.CodeConnectionFailed)
	}

	// The first attempt plus three retries, and nothing after that.
	time.Sleep(150 * time.Millisecond)
	if got := ts.count(); got != 4 {
		t.Errorf("attempts: got = %d, expected = 4", got)
	}
	if got := m.Status(); got != StatusClosed {
		t.Errorf("status: got = %s, expected = %s", got, StatusClosed)
	}
	if n := rec.count(func() int { return len(rec.ready) }); n != 0 {
		t.Errorf("ready must not fire, got %d", n)
	}
}

func TestHandshakeTimeoutRetries(t *testing.T) {
	ts := newTestServer(func(ws *websocket.Conn, r *http.Request) {
		// Never send initial_state.
		drain(ws, nil)
	})
	defer ts.Close()

	cfg := testConfig(ts.endpoint())
	cfg.HandshakeTimeout = 100 * time.Millisecond
	cfg.MaxRetries = 1

	rec := &recorder{}
	m := New(cfg, "doc", "token", rec)
	m.Open(context.Background())
	defer m.Close()

	waitFor(t, "terminal error", func() bool { return rec.count(func() int { return len(rec.errs) }) == 1 })

	if got := ts.count(); got != 2 {
		t.Errorf("attempts: got = %d, expected = 2", got)
	}
	if got := rec.errs[0].Code; got != commons.CodeConnectionFailed {
		t.Errorf("code: got = %s", got)
	}
}

func TestCleanCloseIsNotRetried(t *testing.T) {
	ts := newTestServer(func(ws *websocket.Conn, r *http.Request) {
		writeJSON(ws, commons.NewInitialState(nil, 1))
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		drain(ws, nil)
	})
	defer ts.Close()

	rec := &recorder{}
	m := New(testConfig(ts.endpoint()), "doc", "token", rec)
	m.Open(context.Background())
	defer m.Close()

	waitFor(t, "ready", func() bool { return rec.count(func() int { return len(rec.ready) }) == 1 })
	waitFor(t, "closed", func() bool { return m.Status() == StatusClosed })

	time.Sleep(100 * time.Millisecond)
	if got := ts.count(); got != 1 {
		t.Errorf("attempts: got = %d, expected = 1", got)
	}
	if n := rec.count(func() int { return len(rec.errs) }); n != 0 {
		t.Errorf("clean close must not surface errors, got %d", n)
	}
}

func TestAuthErrorIsNotRetried(t *testing.T) {
	ts := newTestServer(func(ws *websocket.Conn, r *http.Request) {
		writeJSON(ws, commons.NewErrorMessage(&commons.Error{Code: commons.CodeUnauthorized, Message: "bad token"}))
		drain(ws, nil)
	})
	defer ts.Close()

	rec := &recorder{}
	m := New(testConfig(ts.endpoint()), "doc", "token", rec)
	m.Open(context.Background())
	defer m.Close()

	waitFor(t, "error", func() bool { return rec.count(func() int { return len(rec.errs) }) == 1 })
	waitFor(t, "closed", func() bool { return m.Status() == StatusClosed })

	if got := rec.errs[0].Code; got != commons.CodeUnauthorized {
		t.Errorf("code: got = %s, expected = %s", got, commons.CodeUnauthorized)
	}
	time.Sleep(100 * time.Millisecond)
	if got := ts.count(); got != 1 {
		t.Errorf("attempts: got = %d, expected = 1", got)
	}
}

func TestHandshakeRejected(t *testing.T) {
	var attempts int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer ts.Close()

	rec := &recorder{}
	m := New(testConfig("ws"+strings.TrimPrefix(ts.URL, "http")), "doc", "token", rec)
	m.Open(context.Background())
	defer m.Close()

	waitFor(t, "error", func() bool { return rec.count(func() int { return len(rec.errs) }) == 1 })

	if got := rec.errs[0].Code; got != commons.CodeForbidden {
		t.Errorf("code: got = %s, expected = %s", got, commons.CodeForbidden)
	}
	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&attempts); got != 1 {
		t.Errorf("attempts: got = %d, expected = 1", got)
	}
}

func TestOpenReplacesSession(t *testing.T) {
	closes := make(chan error, 4)

	ts := newTestServer(func(ws *websocket.Conn, r *http.Request) {
		writeJSON(ws, commons.NewInitialState(nil, 1))
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				closes <- err
				return
			}
		}
	})
	defer ts.Close()

	rec := &recorder{}
	m := New(testConfig(ts.endpoint()), "doc", "token", rec)

	m.Open(context.Background())
	waitFor(t, "first ready", func() bool { return rec.count(func() int { return len(rec.ready) }) == 1 })

	m.Open(context.Background())
	waitFor(t, "second ready", func() bool { return rec.count(func() int { return len(rec.ready) }) == 2 })

	select {
	case err := <-closes:
		if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			t.Errorf("first session was not closed cleanly: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("first session was not torn down")
	}

	m.Close()
	if got := ts.count(); got != 2 {
		t.Errorf("attempts: got = %d, expected = 2", got)
	}

	// No callbacks after Close.
	n := rec.count(func() int { return len(rec.statuses) })
	time.Sleep(50 * time.Millisecond)
	if got := rec.count(func() int { return len(rec.statuses) }); got != n {
		t.Errorf("status changed after close")
	}
}

func TestBackOffSchedule(t *testing.T) {
	tests := []struct {
		description string
		maxRetries  int
		expected    []time.Duration
	}{
		{
			description: "default retries",
			maxRetries:  3,
			expected:    []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, backoff.Stop},
		},
		{
			description: "interval is capped",
			maxRetries:  6,
			expected: []time.Duration{
				1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
				10 * time.Second, 10 * time.Second, backoff.Stop,
			},
		},
		{
			description: "no retries",
			maxRetries:  0,
			expected:    []time.Duration{backoff.Stop},
		},
	}

	for _, tc := range tests {
		cfg := DefaultConfig("ws://unused")
		cfg.MaxRetries = tc.maxRetries
		cfg.Logger = logrus.New()
		m := New(cfg, "doc", "token", &recorder{})

		b := m.newBackOff()
		var got []time.Duration
		for range tc.expected {
			got = append(got, b.NextBackOff())
		}

		if !cmp.Equal(got, tc.expected) {
			t.Errorf("(%s) got != expected, diff: %v\n", tc.description, cmp.Diff(got, tc.expected))
		}
	}
}
