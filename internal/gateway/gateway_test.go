package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/basket/pocketclaw/internal/bus"
	"github.com/basket/pocketclaw/internal/events"
	"github.com/basket/pocketclaw/internal/health"
)

type stubDispatcher struct {
	reply string
	err   error
	last  string
}

func (d *stubDispatcher) Dispatch(_ context.Context, text string) (string, error) {
	d.last = text
	return d.reply, d.err
}

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	if cfg.Health == nil {
		cfg.Health = health.NewRegistry(nil)
	}
	cfg.Logger = slog.New(slog.DiscardHandler)
	server := httptest.NewServer(New(cfg).Handler())
	t.Cleanup(server.Close)
	return server
}

func postWebhook(t *testing.T, url, body string) (int, map[string]string) {
	t.Helper()
	resp, err := http.Post(url+"/webhook", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /webhook: %v", err)
	}
	defer resp.Body.Close()
	var decoded map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.StatusCode, decoded
}

func TestWebhookRoundTrip(t *testing.T) {
	dispatcher := &stubDispatcher{reply: "pong"}
	server := newTestServer(t, Config{Dispatcher: dispatcher})

	status, body := postWebhook(t, server.URL, `{"message":"ping"}`)
	if status != http.StatusOK || body["response"] != "pong" {
		t.Fatalf("status=%d body=%v", status, body)
	}
	if dispatcher.last != "ping" {
		t.Fatalf("dispatched %q", dispatcher.last)
	}
}

func TestWebhookRejectsBadInput(t *testing.T) {
	server := newTestServer(t, Config{Dispatcher: &stubDispatcher{}})

	status, body := postWebhook(t, server.URL, `not json`)
	if status != http.StatusBadRequest || body["error"] == "" {
		t.Fatalf("status=%d body=%v", status, body)
	}

	status, body = postWebhook(t, server.URL, `{"message":""}`)
	if status != http.StatusBadRequest || !strings.Contains(body["error"], "required") {
		t.Fatalf("status=%d body=%v", status, body)
	}

	resp, err := http.Get(server.URL + "/webhook")
	if err != nil {
		t.Fatalf("GET /webhook: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("GET status = %d", resp.StatusCode)
	}
}

func TestWebhookSurfacesDispatchError(t *testing.T) {
	dispatcher := &stubDispatcher{err: errors.New("session budget exceeded")}
	server := newTestServer(t, Config{Dispatcher: dispatcher})

	status, body := postWebhook(t, server.URL, `{"message":"hi"}`)
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d", status)
	}
	if !strings.Contains(body["error"], "budget exceeded") {
		t.Fatalf("body = %v", body)
	}
}

func TestWebhookRecordsChannelEvents(t *testing.T) {
	bridge := events.NewBridge(nil)
	server := newTestServer(t, Config{Dispatcher: &stubDispatcher{reply: "ok"}, Events: bridge})

	if status, _ := postWebhook(t, server.URL, `{"message":"hi"}`); status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	recent := bridge.Recent(10)
	if !strings.Contains(recent, `"direction":"inbound"`) || !strings.Contains(recent, `"direction":"outbound"`) {
		t.Fatalf("channel events missing: %s", recent)
	}
}

func TestHealthzReportsComponents(t *testing.T) {
	registry := health.NewRegistry(nil)
	registry.MarkOK("gateway")
	registry.MarkOK("scheduler")
	server := newTestServer(t, Config{Dispatcher: &stubDispatcher{}, Health: registry})

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var body struct {
		Healthy    bool `json:"healthy"`
		Components []struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"components"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Healthy || len(body.Components) != 2 {
		t.Fatalf("body = %+v", body)
	}

	registry.MarkError("scheduler", "db locked")
	resp2, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy status = %d", resp2.StatusCode)
	}
}

func TestEventsWSStreamsBusEvents(t *testing.T) {
	eventBus := bus.New()
	bridge := events.NewBridge(eventBus)
	server := newTestServer(t, Config{Dispatcher: &stubDispatcher{}, Bus: eventBus})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/events/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Subscription races connect; give the handler a moment to register.
	deadline := time.After(2 * time.Second)
	for eventBus.SubscriberCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("handler never subscribed")
		case <-time.After(5 * time.Millisecond):
		}
	}

	bridge.Record(events.HeartbeatTick{})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"kind":"heartbeat_tick"`) {
		t.Fatalf("got %s", data)
	}
}

func TestRunReturnsBindError(t *testing.T) {
	server := New(Config{
		Host: "invalid host name", Port: 1,
		Dispatcher: &stubDispatcher{},
		Health:     health.NewRegistry(nil),
		Logger:     slog.New(slog.DiscardHandler),
	})
	if err := server.Run(context.Background()); err == nil {
		t.Fatal("expected bind error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	server := New(Config{
		Host: "127.0.0.1", Port: 0,
		Dispatcher: &stubDispatcher{},
		Health:     health.NewRegistry(nil),
		Logger:     slog.New(slog.DiscardHandler),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
