package channels

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/basket/pocketclaw/internal/config"
)

// probeTimeout bounds each channel health probe.
const probeTimeout = 10 * time.Second

// DoctorResult is one channel probe outcome.
type DoctorResult struct {
	Name   string `json:"name"`
	Status string `json:"status"` // "healthy", "unhealthy", or "timeout"
	Detail string `json:"detail,omitempty"`
}

// Doctor probes every configured channel without starting the daemon.
// With no channels configured it reports a single healthy entry.
func Doctor(ctx context.Context, cfg *config.Config) []DoctorResult {
	if !cfg.HasSupervisedChannels() {
		return []DoctorResult{{
			Name:   "channels",
			Status: "healthy",
			Detail: "no channels configured",
		}}
	}

	var results []DoctorResult
	if cfg.Channels.Telegram.Enabled {
		results = append(results, probeTelegram(ctx, cfg.Channels.Telegram.Token))
	}
	return results
}

// probeTelegram authenticates against the Bot API (getMe) with a timeout.
func probeTelegram(ctx context.Context, token string) DoctorResult {
	type outcome struct {
		user string
		err  error
	}
	ch := make(chan outcome, 1)
	go func() {
		bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, apiEndpoint)
		if err != nil {
			ch <- outcome{err: err}
			return
		}
		ch <- outcome{user: bot.Self.UserName}
	}()

	select {
	case <-ctx.Done():
		return DoctorResult{Name: "telegram", Status: "timeout", Detail: ctx.Err().Error()}
	case <-time.After(probeTimeout):
		return DoctorResult{Name: "telegram", Status: "timeout"}
	case o := <-ch:
		if o.err != nil {
			return DoctorResult{Name: "telegram", Status: "unhealthy", Detail: o.err.Error()}
		}
		return DoctorResult{Name: "telegram", Status: "healthy", Detail: "authenticated as @" + o.user}
	}
}
