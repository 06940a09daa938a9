package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds the daemon's metric instruments.
type Metrics struct {
	WebhookDuration   metric.Float64Histogram
	LLMCallDuration   metric.Float64Histogram
	TokensUsed        metric.Int64Counter
	ComponentRestarts metric.Int64Counter
	HeartbeatTicks    metric.Int64Counter
	CronJobsFired     metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.WebhookDuration, err = meter.Float64Histogram("pocketclaw.webhook.duration",
		metric.WithDescription("Gateway webhook request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.LLMCallDuration, err = meter.Float64Histogram("pocketclaw.llm.duration",
		metric.WithDescription("LLM API call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.TokensUsed, err = meter.Int64Counter("pocketclaw.llm.tokens",
		metric.WithDescription("Total tokens consumed"),
	)
	if err != nil {
		return nil, err
	}

	m.ComponentRestarts, err = meter.Int64Counter("pocketclaw.supervisor.restarts",
		metric.WithDescription("Supervised component restart count"),
	)
	if err != nil {
		return nil, err
	}

	m.HeartbeatTicks, err = meter.Int64Counter("pocketclaw.heartbeat.ticks",
		metric.WithDescription("Heartbeat cycles executed"),
	)
	if err != nil {
		return nil, err
	}

	m.CronJobsFired, err = meter.Int64Counter("pocketclaw.cron.fired",
		metric.WithDescription("Cron jobs dispatched"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
