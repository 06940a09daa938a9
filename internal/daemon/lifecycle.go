package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/basket/pocketclaw/internal/agent"
	"github.com/basket/pocketclaw/internal/channels"
	"github.com/basket/pocketclaw/internal/config"
	"github.com/basket/pocketclaw/internal/cost"
	"github.com/basket/pocketclaw/internal/cron"
	"github.com/basket/pocketclaw/internal/gateway"
	"github.com/basket/pocketclaw/internal/heartbeat"
	"github.com/basket/pocketclaw/internal/memory"
	"github.com/basket/pocketclaw/internal/otel"
	"github.com/basket/pocketclaw/internal/persistence"
	"github.com/basket/pocketclaw/internal/provider"
	"github.com/basket/pocketclaw/internal/skills"
	"github.com/basket/pocketclaw/internal/telemetry"
	"github.com/basket/pocketclaw/internal/workspace"
)

const (
	// maxMessageBytes bounds SendMessage payloads.
	maxMessageBytes = 1 << 20
	// gatewayTimeout is generous because local models can take minutes
	// to answer a single turn.
	gatewayTimeout = 600 * time.Second
	// stateWriteInterval is how often the health snapshot hits disk.
	stateWriteInterval = 5 * time.Second
)

// Start validates the inputs, parses the config, and installs a fresh
// daemon in the lifecycle slot. All validation happens before any
// filesystem mutation; the check-and-install is a single lock
// acquisition, so two racing Starts cannot both win.
func (r *Runtime) Start(dataDir, configText, host string, port uint16) error {
	if !strings.HasPrefix(dataDir, "/") {
		return configErrorf("data_dir must be an absolute path")
	}
	if strings.Contains(dataDir, "..") {
		return configErrorf("data_dir must not contain '..' segments")
	}
	if host == "" {
		return configErrorf("host must not be empty")
	}
	for _, c := range host {
		if !isHostChar(c) {
			return configErrorf("host contains invalid characters")
		}
	}

	cfg, err := config.Parse(configText)
	if err != nil {
		return configErrorf("failed to parse config: %v", err)
	}
	endpoint, ok := provider.Classify(cfg.Provider.Name)
	if !ok {
		return configErrorf("unsupported provider: %s", cfg.Provider.Name)
	}

	cfg.WorkspaceDir = filepath.Join(dataDir, "workspace")
	cfg.StateDir = dataDir
	if err := os.MkdirAll(cfg.WorkspaceDir, 0o755); err != nil {
		return configErrorf("failed to create workspace dir: %v", err)
	}

	return r.critical(func() error {
		if r.state != nil {
			return stateErrorf("daemon already running")
		}
		st := r.buildState(dataDir, host, port, cfg, endpoint)
		r.spawnComponents(st)
		r.state = st
		r.health.MarkOK("daemon")
		st.logger.Info("daemon: started",
			"host", host, "port", port, "config", cfg.Fingerprint())
		return nil
	})
}

// buildState wires every handle a running daemon owns. Cost, memory,
// scheduler storage, and telemetry are best-effort: a failure logs a
// warning and leaves the handle nil, never aborting startup.
func (r *Runtime) buildState(dataDir, host string, port uint16, cfg config.Config, endpoint provider.Endpoint) *daemonState {
	st := &daemonState{
		host:      host,
		port:      port,
		dataDir:   dataDir,
		startedAt: time.Now(),
		cfg:       cfg,
	}

	logger, closer, err := telemetry.NewLogger(dataDir, cfg.LogLevel, r.quiet)
	if err != nil {
		r.logger.Warn("daemon: log file unavailable", "error", err)
		logger = r.logger
	} else {
		st.logCloser = closer
	}
	st.logger = logger

	if err := workspace.Create(cfg.WorkspaceDir, workspace.Params{
		AgentName: cfg.AgentName,
		UserName:  cfg.UserName,
		Timezone:  cfg.Timezone,
	}); err != nil {
		logger.Warn("daemon: workspace scaffold failed", "error", err)
	}

	store, err := persistence.Open(persistence.DBPath(dataDir))
	if err != nil {
		logger.Warn("daemon: persistence unavailable", "error", err)
	} else {
		st.store = store
		st.jobs = cron.NewJobs(store)
		if cfg.Cost.Enabled {
			st.tracker = cost.NewTracker(store, cost.Limits{
				SessionUSD:       cfg.Cost.SessionBudgetUSD,
				DailyUSD:         cfg.Cost.DailyBudgetUSD,
				MonthlyUSD:       cfg.Cost.MonthlyBudgetUSD,
				WarningThreshold: cfg.Cost.WarningThreshold,
			}, uuid.NewString())
		}
		if cfg.Memory.Enabled {
			st.memories = memory.NewStore(store)
		}
	}

	otelProv, err := otel.Init(context.Background(), cfg.Telemetry)
	if err != nil {
		logger.Warn("daemon: telemetry init failed", "error", err)
	} else {
		st.otelProv = otelProv
	}
	var metrics *otel.Metrics
	if st.otelProv != nil {
		metrics, err = otel.NewMetrics(st.otelProv.Meter)
		if err != nil {
			logger.Warn("daemon: metric instruments unavailable", "error", err)
			metrics = nil
		}
	}
	st.metrics = metrics

	st.loader = skills.NewLoader(filepath.Join(cfg.WorkspaceDir, "skills"), logger)
	st.installer = skills.NewInstaller(filepath.Join(cfg.WorkspaceDir, "skills"), logger)

	st.runner = agent.NewRunner(agent.RunnerConfig{
		Client:       provider.NewClient(endpoint, cfg.Provider.APIKey),
		ProviderName: cfg.Provider.Name,
		Model:        cfg.Provider.Model,
		AgentName:    cfg.AgentName,
		Tracker:      st.tracker,
		Memories:     st.memories,
		Events:       r.events,
		Metrics:      metrics,
		Logger:       logger,
	})
	return st
}

// spawnComponents launches every supervised component for the state.
func (r *Runtime) spawnComponents(st *daemonState) {
	ctx, cancel := context.WithCancel(context.Background())
	wg := &sync.WaitGroup{}
	st.cancel = cancel
	st.wg = wg
	cfg := st.cfg
	logger := st.logger

	initial := time.Duration(cfg.Reliability.InitialBackoffSeconds) * time.Second
	max := time.Duration(cfg.Reliability.MaxBackoffSeconds) * time.Second

	spawn := func(name string, run func(context.Context) error) {
		sup := &supervisor{
			name:    name,
			initial: initial,
			max:     max,
			health:  r.health,
			logger:  logger,
			run:     run,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sup.loop(ctx)
		}()
	}

	spawn("state-writer", func(ctx context.Context) error {
		return r.runStateWriter(ctx, st.dataDir, logger)
	})

	gw := gateway.New(gateway.Config{
		Host:       st.host,
		Port:       st.port,
		Dispatcher: st.runner,
		Health:     r.health,
		Events:     r.events,
		Bus:        r.bus,
		Logger:     logger,
		Tracer:     tracerOrNil(st.otelProv),
		Metrics:    st.metrics,
	})
	spawn("gateway", gw.Run)

	if cfg.HasSupervisedChannels() {
		tg := channels.NewTelegram(channels.TelegramConfig{
			Token:      cfg.Channels.Telegram.Token,
			AllowedIDs: cfg.Channels.Telegram.AllowedIDs,
			Dispatcher: st.runner,
			Logger:     logger,
			Events:     r.events,
		})
		spawn("channels", tg.Run)
	} else {
		r.health.MarkOK("channels")
		logger.Info("daemon: no real-time channels configured")
	}

	if cfg.Heartbeat.Enabled {
		hb := heartbeat.NewWorker(heartbeat.Config{
			WorkspaceDir:    cfg.WorkspaceDir,
			IntervalMinutes: cfg.Heartbeat.IntervalMinutes,
			Dispatcher:      st.runner,
			Logger:          logger,
			Events:          r.events,
			Metrics:         st.metrics,
		})
		spawn("heartbeat", hb.Run)
	}

	if st.jobs != nil {
		sched := cron.NewScheduler(cron.SchedulerConfig{
			Jobs:       st.jobs,
			Dispatcher: st.runner,
			Logger:     logger,
			Events:     r.events,
		})
		spawn("scheduler", sched.Run)
	} else {
		r.health.MarkError("scheduler", "scheduler storage not available")
	}

	watcher := skills.NewWatcher(skills.WatcherConfig{
		Dir:    st.loader.Dir(),
		Bus:    r.bus,
		Events: r.events,
		Logger: logger,
	})
	spawn("skills-watcher", watcher.Run)
}

// Stop takes the daemon out of the lifecycle slot, cancels its context,
// and waits for every component goroutine to exit.
func (r *Runtime) Stop() error {
	var st *daemonState
	err := r.critical(func() error {
		if r.state == nil {
			return stateErrorf("daemon not running")
		}
		st = r.state
		r.state = nil
		return nil
	})
	if err != nil {
		return err
	}

	st.cancel()
	st.wg.Wait()

	if st.otelProv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := st.otelProv.Shutdown(shutdownCtx); err != nil {
			st.logger.Warn("daemon: telemetry shutdown failed", "error", err)
		}
		cancel()
	}
	if st.store != nil {
		if err := st.store.Close(); err != nil {
			st.logger.Warn("daemon: closing store failed", "error", err)
		}
	}
	if st.logCloser != nil {
		_ = st.logCloser.Close()
	}

	r.health.MarkError("daemon", "shutdown requested")
	r.logger.Info("daemon: stopped")
	return nil
}

// SendMessage posts one message to the running daemon's local gateway
// and returns the agent's reply.
func (r *Runtime) SendMessage(message string) (string, error) {
	if len(message) > maxMessageBytes {
		return "", configErrorf("message too large (%d bytes, max %d)", len(message), maxMessageBytes)
	}
	st, err := r.readState()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	url := fmt.Sprintf("http://127.0.0.1:%d/webhook", st.port)
	client := &http.Client{Timeout: gatewayTimeout}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		hint := ""
		if resp.StatusCode == http.StatusRequestTimeout {
			hint = " (model may need more time to respond - try a smaller prompt or faster model)"
		}
		if detail := extractGatewayError(respBody); detail != "" {
			return "", fmt.Errorf("gateway returned status %d%s: %s", resp.StatusCode, hint, detail)
		}
		return "", fmt.Errorf("gateway returned status %d%s", resp.StatusCode, hint)
	}

	var parsed struct {
		Response *string `json:"response"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse gateway response: %w", err)
	}
	if parsed.Response == nil {
		return "", fmt.Errorf("gateway response missing 'response' field")
	}
	return *parsed.Response, nil
}

// ValidateConfig parses and validates a config document without touching
// the lifecycle slot. Returns "" when valid, else the error text.
func ValidateConfig(configText string) string {
	if _, err := config.Parse(configText); err != nil {
		return err.Error()
	}
	return ""
}

// DoctorChannels probes the configured channels without starting the
// daemon. Returns a JSON array of probe results; the whole check is
// bounded to thirty seconds.
func DoctorChannels(configText, dataDir string) (string, error) {
	cfg, err := config.Parse(configText)
	if err != nil {
		return "", configErrorf("failed to parse config: %v", err)
	}
	cfg.WorkspaceDir = filepath.Join(dataDir, "workspace")
	cfg.StateDir = dataDir

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	results := channels.Doctor(ctx, &cfg)
	out, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("failed to serialise doctor results: %w", err)
	}
	return string(out), nil
}

// stateFile is the daemon_state.json document.
type stateFile struct {
	Snapshot
	WrittenAt string `json:"written_at"`
}

// runStateWriter persists the health snapshot every five seconds. Write
// failures are logged and retried on the next tick, never fatal.
func (r *Runtime) runStateWriter(ctx context.Context, dataDir string, logger *slog.Logger) error {
	path := filepath.Join(dataDir, "daemon_state.json")
	ticker := time.NewTicker(stateWriteInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snap, err := r.Status()
			if err != nil {
				return err
			}
			doc := stateFile{Snapshot: snap, WrittenAt: time.Now().UTC().Format(time.RFC3339)}
			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				logger.Warn("daemon: state snapshot encode failed", "error", err)
				continue
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				logger.Warn("daemon: state write failed", "path", path, "error", err)
			}
		}
	}
}

func extractGatewayError(body []byte) string {
	var parsed struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	return parsed.Error
}

func isHostChar(c rune) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.' || c == ':' || c == '-':
		return true
	}
	return false
}

func tracerOrNil(p *otel.Provider) trace.Tracer {
	if p == nil {
		return nil
	}
	return p.Tracer
}
