package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeScreen struct {
	mu    sync.Mutex
	text  string
	err   error
	reads int
}

func (f *fakeScreen) ReadText(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	return f.text, f.err
}

func (f *fakeScreen) set(text string) {
	f.mu.Lock()
	f.text = text
	f.mu.Unlock()
}

func newTestHub(screen ScreenSource) *Hub {
	h := NewHub(screen)
	h.pollInterval = 10 * time.Millisecond
	return h
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// nextEvent reads frames until one holds an event of the wanted type
func nextEvent(t *testing.T, conn *websocket.Conn, want EventType) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Waiting for %s event: %v", want, err)
		}
		for _, line := range bytes.Split(data, newline) {
			var ev Event
			if err := json.Unmarshal(line, &ev); err != nil {
				t.Fatalf("Invalid event %q: %v", line, err)
			}
			if ev.Type == want {
				return ev
			}
		}
	}
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, have %d", n, h.ClientCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHelloAndToolCall(t *testing.T) {
	hub := newTestHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	hello := nextEvent(t, conn, EventHello)
	if !hello.OK || hello.SessionID != "anonymous" {
		t.Errorf("Unexpected hello %+v", hello)
	}
	waitForClients(t, hub, 1)

	hub.ToolCall(context.Background(), "read_memory", errors.New("HTTP Error 500"), 42*time.Millisecond)
	ev := nextEvent(t, conn, EventToolCall)
	if ev.Tool != "read_memory" || ev.OK || ev.Error != "HTTP Error 500" || ev.DurationMS != 42 {
		t.Errorf("Unexpected tool event %+v", ev)
	}

	conn.Close()
	waitForClients(t, hub, 0)
}

func TestMaxClients(t *testing.T) {
	hub := newTestHub(nil)
	hub.clients.maxClients = 1
	srv := httptest.NewServer(hub)
	defer srv.Close()

	first := dial(t, srv)
	nextEvent(t, first, EventHello)
	waitForClients(t, hub, 1)

	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err == nil {
		t.Fatal("Second client should be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %+v", resp)
	}
}

func TestRateLimit(t *testing.T) {
	cm := NewClientManager(0, 2)
	for i := 0; i < 2; i++ {
		if err := cm.CheckRateLimit("10.0.0.1"); err != nil {
			t.Fatalf("Attempt %d rejected: %v", i, err)
		}
	}
	if err := cm.CheckRateLimit("10.0.0.1"); err == nil {
		t.Error("Third attempt should be rate limited")
	}
	if err := cm.CheckRateLimit("10.0.0.2"); err != nil {
		t.Errorf("Other IP should not be limited: %v", err)
	}

	// windows older than a minute are dropped
	cm.rateLimits["10.0.0.1"].lastReset = time.Now().Add(-2 * time.Minute)
	if err := cm.CheckRateLimit("10.0.0.3"); err != nil {
		t.Fatal(err)
	}
	if _, exists := cm.rateLimits["10.0.0.1"]; exists {
		t.Error("Stale rate limit entry was kept")
	}
	if len(cm.rateLimits) != 2 {
		t.Errorf("Expected 2 tracked IPs, got %d", len(cm.rateLimits))
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws/monitor", nil)
	r.RemoteAddr = "192.0.2.7:51234"
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if got := clientIP(r, false); got != "192.0.2.7" {
		t.Errorf("Untrusted proxy header used: %s", got)
	}
	if got := clientIP(r, true); got != "203.0.113.9" {
		t.Errorf("Trusted proxy header ignored: %s", got)
	}
}

func TestForeignOriginRejected(t *testing.T) {
	hub := newTestHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	if err == nil {
		t.Fatal("Foreign origin should be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %+v", resp)
	}
}

func TestScreenPolling(t *testing.T) {
	screen := &fakeScreen{text: "READY.\n"}
	hub := newTestHub(screen)
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dial(t, srv)
	nextEvent(t, conn, EventHello)
	if ev := nextEvent(t, conn, EventScreen); ev.Content != "READY.\n" {
		t.Errorf("First screen = %q", ev.Content)
	}

	screen.set("READY.\nRUN\n")
	if ev := nextEvent(t, conn, EventScreen); ev.Content != "READY.\nRUN\n" {
		t.Errorf("Changed screen = %q", ev.Content)
	}

	// a refresh request republishes an unchanged screen
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"refresh"}`)); err != nil {
		t.Fatal(err)
	}
	if ev := nextEvent(t, conn, EventScreen); ev.Content != "READY.\nRUN\n" {
		t.Errorf("Refreshed screen = %q", ev.Content)
	}
}

func TestNoPollingWithoutClients(t *testing.T) {
	screen := &fakeScreen{text: "x"}
	hub := newTestHub(screen)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	hub.Run(ctx)

	screen.mu.Lock()
	defer screen.mu.Unlock()
	if screen.reads != 0 {
		t.Errorf("Screen read %d times with no clients", screen.reads)
	}
}

func TestPollErrorKeepsLastScreen(t *testing.T) {
	screen := &fakeScreen{text: "A"}
	hub := newTestHub(screen)
	hub.pollScreen(context.Background(), false)

	screen.mu.Lock()
	screen.err = errors.New("timeout")
	screen.mu.Unlock()
	hub.pollScreen(context.Background(), false)

	if hub.lastScreen != "A" {
		t.Errorf("lastScreen = %q", hub.lastScreen)
	}
}
