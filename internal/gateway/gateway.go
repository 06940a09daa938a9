// Package gateway is the daemon's loopback HTTP surface: a webhook for
// host-originated messages, a health snapshot, and a websocket event
// stream fed from the in-process bus.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"
	"go.opentelemetry.io/otel/trace"

	"github.com/basket/pocketclaw/internal/bus"
	"github.com/basket/pocketclaw/internal/events"
	"github.com/basket/pocketclaw/internal/health"
	"github.com/basket/pocketclaw/internal/otel"
)

// maxWebhookBody caps inbound webhook payloads at 2 MiB.
const maxWebhookBody = 2 << 20

// Dispatcher handles a webhook message and returns the agent's reply.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string) (string, error)
}

// Config holds the server's collaborators. Bus, Events, Tracer, and
// Metrics are optional.
type Config struct {
	Host       string
	Port       uint16
	Dispatcher Dispatcher
	Health     *health.Registry
	Events     *events.Bridge
	Bus        *bus.Bus
	Logger     *slog.Logger
	Tracer     trace.Tracer
	Metrics    *otel.Metrics
}

// Server serves the loopback HTTP API. It runs as a supervised component.
type Server struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a gateway server.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: logger}
}

// Handler returns the route table, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/events/ws", s.handleEventsWS)
	return mux
}

// Run listens until the context is cancelled. A bind failure is returned
// to the supervisor; graceful shutdown returns nil.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(int(s.cfg.Port)))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(listener) }()
	s.logger.Info("gateway: listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway serve: %w", err)
	}
}

type webhookRequest struct {
	Message string `json:"message"`
}

// webhookResponse always carries "response" on success so callers can
// distinguish an empty reply from a malformed body.
type webhookResponse struct {
	Response *string `json:"response,omitempty"`
	Error    string  `json:"error,omitempty"`
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, webhookResponse{Error: "method not allowed"})
		return
	}

	ctx := r.Context()
	if s.cfg.Tracer != nil {
		var span trace.Span
		ctx, span = s.cfg.Tracer.Start(ctx, "gateway.webhook")
		defer span.End()
	}

	start := time.Now()
	defer func() {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.WebhookDuration.Record(ctx, time.Since(start).Seconds())
		}
	}()

	var req webhookRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Error: "invalid JSON body: " + err.Error()})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, webhookResponse{Error: "message is required"})
		return
	}

	if s.cfg.Events != nil {
		s.cfg.Events.Record(events.ChannelMessage{Channel: "webhook", Direction: "inbound"})
	}

	reply, err := s.cfg.Dispatcher.Dispatch(ctx, req.Message)
	if err != nil {
		s.logger.Error("gateway: webhook dispatch failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, webhookResponse{Error: err.Error()})
		return
	}

	if s.cfg.Events != nil {
		s.cfg.Events.Record(events.ChannelMessage{Channel: "webhook", Direction: "outbound"})
	}
	writeJSON(w, http.StatusOK, webhookResponse{Response: &reply})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, webhookResponse{Error: "method not allowed"})
		return
	}

	type componentJSON struct {
		Name      string `json:"name"`
		Status    string `json:"status"`
		LastError string `json:"last_error,omitempty"`
		Restarts  uint64 `json:"restarts"`
	}

	snapshot := s.cfg.Health.Snapshot()
	components := make([]componentJSON, 0, len(snapshot))
	healthy := true
	for _, c := range snapshot {
		if c.Status == health.StatusError {
			healthy = false
		}
		components = append(components, componentJSON{
			Name:      c.Name,
			Status:    c.Status,
			LastError: c.LastError,
			Restarts:  c.RestartCount,
		})
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"healthy":    healthy,
		"components": components,
	})
}

// handleEventsWS streams rendered observer events to a websocket client.
// The subscription starts at connect time; no history is replayed.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Bus == nil {
		http.Error(w, "event stream not available", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	// CloseRead surfaces client disconnects through ctx cancellation.
	ctx := conn.CloseRead(r.Context())

	sub := s.cfg.Bus.Subscribe(bus.TopicEventStream)
	defer s.cfg.Bus.Unsubscribe(sub)

	s.logger.Debug("gateway: event stream client connected")
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Ch():
			if !ok {
				return
			}
			payload, ok := event.Payload.(string)
			if !ok {
				continue
			}
			if err := conn.Write(ctx, websocket.MessageText, []byte(payload)); err != nil {
				s.logger.Debug("gateway: event stream write failed", "error", err)
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
