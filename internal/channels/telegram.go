// Package channels connects external chat surfaces to the agent runner.
// Telegram is the only bundled channel; it long-polls the Bot API and
// replies in the chat the message came from.
package channels

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/basket/pocketclaw/internal/events"
)

// stallTimeout is how long the update channel may stay silent before the
// connection is considered dead. tgbotapi long-polls with a 60s timeout
// and blocks instead of closing the channel on a broken connection.
const stallTimeout = 150 * time.Second

// apiEndpoint is the Bot API endpoint template, overridden in tests.
var apiEndpoint = tgbotapi.APIEndpoint

// Dispatcher produces the agent's reply to an inbound message.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string) (string, error)
}

// TelegramConfig holds the channel's settings and collaborators.
type TelegramConfig struct {
	Token      string
	AllowedIDs []int64
	Dispatcher Dispatcher
	Logger     *slog.Logger
	Events     *events.Bridge
}

// Telegram is the Telegram channel component. It runs under the
// component supervisor via Run.
type Telegram struct {
	token      string
	allowedIDs map[int64]struct{}
	dispatcher Dispatcher
	logger     *slog.Logger
	events     *events.Bridge
	bot        *tgbotapi.BotAPI
}

// NewTelegram creates the channel. An empty AllowedIDs list rejects
// every sender.
func NewTelegram(cfg TelegramConfig) *Telegram {
	allowed := make(map[int64]struct{}, len(cfg.AllowedIDs))
	for _, id := range cfg.AllowedIDs {
		allowed[id] = struct{}{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Telegram{
		token:      cfg.Token,
		allowedIDs: allowed,
		dispatcher: cfg.Dispatcher,
		logger:     logger,
		events:     cfg.Events,
	}
}

// Name returns the channel name used in health and event reporting.
func (t *Telegram) Name() string { return "telegram" }

// Run connects to the Bot API and polls for updates until the context is
// cancelled. Transient poll failures reconnect with exponential backoff;
// an authentication failure is returned to the supervisor.
func (t *Telegram) Run(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(t.token, apiEndpoint)
	if err != nil {
		return fmt.Errorf("telegram init failed: %w", err)
	}
	t.bot = bot
	t.logger.Info("telegram: connected", "user", bot.Self.UserName)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		if ctx.Err() != nil {
			return nil
		}

		u := tgbotapi.NewUpdate(0)
		u.Timeout = 60
		updates := bot.GetUpdatesChan(u)

		pollErr := t.pollUpdates(ctx, updates)
		bot.StopReceivingUpdates()

		if pollErr == nil {
			return nil
		}

		t.logger.Warn("telegram: poll disconnected, reconnecting",
			"error", pollErr, "backoff", backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// pollUpdates reads updates until ctx is done, the channel closes, or the
// stall timeout fires. Returns nil only on context cancellation.
func (t *Telegram) pollUpdates(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)

			if update.Message == nil || update.Message.From == nil {
				continue
			}
			if _, ok := t.allowedIDs[update.Message.From.ID]; !ok {
				t.logger.Warn("telegram: access denied",
					"user_id", update.Message.From.ID,
					"user_name", update.Message.From.UserName,
				)
				continue
			}
			t.handleMessage(ctx, update.Message)
		case <-timer.C:
			return fmt.Errorf("no updates received for %v (possible disconnect)", stallTimeout)
		}
	}
}

func (t *Telegram) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	t.record(events.ChannelMessage{Channel: "telegram", Direction: "inbound"})

	reply, err := t.dispatcher.Dispatch(ctx, text)
	if err != nil {
		t.logger.Error("telegram: dispatch failed", "error", err)
		t.record(events.Error{Component: "telegram", Message: err.Error()})
		t.reply(msg.Chat.ID, fmt.Sprintf("Error: %v", err))
		return
	}

	t.record(events.ChannelMessage{Channel: "telegram", Direction: "outbound"})
	t.reply(msg.Chat.ID, reply)
}

func (t *Telegram) reply(chatID int64, text string) {
	if text == "" {
		return
	}
	if _, err := t.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		t.logger.Error("telegram: send failed", "error", err)
	}
}

func (t *Telegram) record(e events.Event) {
	if t.events != nil {
		t.events.Record(e)
	}
}
