// Package agent runs conversation turns against the configured provider.
// Each turn is budget-gated, recorded in the usage ledger, and reported
// through the event bridge.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/basket/pocketclaw/internal/cost"
	"github.com/basket/pocketclaw/internal/events"
	"github.com/basket/pocketclaw/internal/memory"
	"github.com/basket/pocketclaw/internal/otel"
	"github.com/basket/pocketclaw/internal/provider"
)

// historyCap bounds the retained conversation turns.
const historyCap = 40

// recallLimit is how many stored memories are folded into a turn's context.
const recallLimit = 3

// RunnerConfig holds the runner's collaborators. Tracker, Memories,
// Events, and Metrics are all optional.
type RunnerConfig struct {
	Client       *provider.Client
	ProviderName string
	Model        string
	AgentName    string
	Tracker      *cost.Tracker
	Memories     *memory.Store
	Events       *events.Bridge
	Metrics      *otel.Metrics
	Logger       *slog.Logger
}

// Runner dispatches turns to the provider, carrying a bounded
// conversation history across calls. Safe for concurrent use; turns are
// serialized so history stays coherent.
type Runner struct {
	client       *provider.Client
	providerName string
	model        string
	agentName    string
	tracker      *cost.Tracker
	memories     *memory.Store
	events       *events.Bridge
	metrics      *otel.Metrics
	logger       *slog.Logger

	mu      sync.Mutex
	history []provider.Message
}

// NewRunner creates a Runner. Client, ProviderName, and Model are required.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		client:       cfg.Client,
		providerName: cfg.ProviderName,
		model:        cfg.Model,
		agentName:    cfg.AgentName,
		tracker:      cfg.Tracker,
		memories:     cfg.Memories,
		events:       cfg.Events,
		metrics:      cfg.Metrics,
		logger:       logger,
	}
}

// Dispatch runs one text turn and returns the assistant reply.
func (r *Runner) Dispatch(ctx context.Context, text string) (string, error) {
	return r.run(ctx, text, nil)
}

// DispatchVision runs one image+text turn. Vision turns bypass history:
// the provider sees only the current message.
func (r *Runner) DispatchVision(ctx context.Context, text string, images []provider.Image) (string, error) {
	return r.run(ctx, text, images)
}

func (r *Runner) run(ctx context.Context, text string, images []provider.Image) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("message must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkBudget(ctx, text); err != nil {
		return "", err
	}

	r.record(events.AgentStart{Provider: r.providerName, Model: r.model})
	turnStart := time.Now()

	req := provider.Request{
		Model:    r.model,
		Messages: r.buildMessages(ctx, text, images),
		Images:   images,
	}

	r.record(events.LLMRequest{Provider: r.providerName, Model: r.model, Messages: len(req.Messages)})

	callStart := time.Now()
	reply, err := r.client.Complete(ctx, req)
	callDuration := time.Since(callStart)

	if r.metrics != nil {
		r.metrics.LLMCallDuration.Record(ctx, callDuration.Seconds())
	}

	if err != nil {
		msg := err.Error()
		r.record(events.LLMResponse{
			Provider: r.providerName, Model: r.model,
			Duration: callDuration, Success: false, ErrorMessage: &msg,
		})
		r.record(events.AgentEnd{Duration: time.Since(turnStart)})
		r.logger.Error("agent: provider call failed", "provider", r.providerName, "error", err)
		return "", fmt.Errorf("provider call failed: %w", err)
	}

	r.record(events.LLMResponse{
		Provider: r.providerName, Model: r.model,
		Duration: callDuration, Success: true,
	})

	r.recordUsage(ctx, reply.Usage)

	if images == nil {
		r.history = append(r.history,
			provider.Message{Role: "user", Content: text},
			provider.Message{Role: "assistant", Content: reply.Text},
		)
		if len(r.history) > historyCap {
			r.history = r.history[len(r.history)-historyCap:]
		}
	}

	tokens := reply.Usage.Total()
	r.record(events.AgentEnd{Duration: time.Since(turnStart), TokensUsed: &tokens})
	r.record(events.TurnComplete{})
	return reply.Text, nil
}

// Reset clears the conversation history.
func (r *Runner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = nil
}

// buildMessages assembles the turn: recalled memories as a context
// preamble, then prior history, then the user message.
func (r *Runner) buildMessages(ctx context.Context, text string, images []provider.Image) []provider.Message {
	var messages []provider.Message

	if recall := r.recallContext(ctx, text); recall != "" {
		messages = append(messages,
			provider.Message{Role: "user", Content: recall},
			provider.Message{Role: "assistant", Content: "Understood."},
		)
	}
	if images == nil {
		messages = append(messages, r.history...)
	}
	return append(messages, provider.Message{Role: "user", Content: text})
}

func (r *Runner) recallContext(ctx context.Context, text string) string {
	if r.memories == nil {
		return ""
	}
	entries, err := r.memories.Recall(ctx, text, recallLimit)
	if err != nil {
		r.logger.Warn("agent: memory recall failed", "error", err)
		return ""
	}
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant memories:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s: %s\n", e.Key, e.Content)
	}
	return b.String()
}

// checkBudget estimates the turn's spend and refuses when a budget
// window is exceeded. A warning state only logs.
func (r *Runner) checkBudget(ctx context.Context, text string) error {
	if r.tracker == nil {
		return nil
	}
	estimated := cost.EstimateCost(r.model, estimateTokens(text), 0)
	status, err := r.tracker.CheckBudget(ctx, estimated)
	if err != nil {
		r.logger.Warn("agent: budget check failed", "error", err)
		return nil
	}
	switch status.State {
	case cost.BudgetExceeded:
		return fmt.Errorf("%s budget exceeded: $%.4f of $%.2f spent",
			status.Period, status.CurrentUSD, status.LimitUSD)
	case cost.BudgetWarning:
		r.logger.Warn("agent: approaching budget limit",
			"period", status.Period,
			"current_usd", status.CurrentUSD,
			"limit_usd", status.LimitUSD,
		)
	}
	return nil
}

func (r *Runner) recordUsage(ctx context.Context, usage provider.Usage) {
	if r.tracker == nil || usage.Total() == 0 {
		return
	}
	if err := r.tracker.RecordUsage(ctx,
		r.providerName, r.model,
		int(usage.InputTokens), int(usage.OutputTokens)); err != nil {
		r.logger.Warn("agent: failed to record usage", "error", err)
	}
	if r.metrics != nil {
		r.metrics.TokensUsed.Add(ctx, int64(usage.Total()))
	}
}

func (r *Runner) record(e events.Event) {
	if r.events != nil {
		r.events.Record(e)
	}
}

// estimateTokens is a word-based token estimate with a bytes/4 floor
// for code and non-English text.
func estimateTokens(content string) int {
	if content == "" {
		return 0
	}
	wordEstimate := int(float64(len(strings.Fields(content))) * 1.33)
	if charEstimate := len(content) / 4; charEstimate > wordEstimate {
		return charEstimate
	}
	return wordEstimate
}
