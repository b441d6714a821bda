package notify

// telegram.go — best-effort Telegram delivery. Messages are rate-limited
// and deduplicated so a flapping market cannot flood the chat; a failed
// send is logged and dropped, never retried into the trading path.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/edgebot/edgebot/internal/domain"
)

const (
	telegramAPI     = "https://api.telegram.org"
	telegramTimeout = 10 * time.Second
	minSendInterval = time.Second
	dedupeWindow    = 10 * time.Second
)

// TrendTagger supplies a short market-context tag appended to fill and
// settle messages, e.g. "(5m: RISING +0.18%)".
type TrendTagger interface {
	Tag() string
}

// Telegram implements ports.Notifier over the Bot API.
type Telegram struct {
	client *resty.Client
	chatID string
	log    *slog.Logger
	trend  TrendTagger

	mu       sync.Mutex
	lastMsg  string
	lastSent time.Time
	now      func() time.Time
}

// NewTelegram creates a notifier for the given bot token and chat.
// trend may be nil.
func NewTelegram(token, chatID string, trend TrendTagger, log *slog.Logger) *Telegram {
	client := resty.New().
		SetBaseURL(fmt.Sprintf("%s/bot%s", telegramAPI, token)).
		SetTimeout(telegramTimeout).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	return &Telegram{
		client: client,
		chatID: chatID,
		log:    log.With("component", "telegram"),
		trend:  trend,
		now:    time.Now,
	}
}

func (t *Telegram) NotifyStart(ctx context.Context, sessionID string, balance float64) error {
	return t.send(ctx, fmt.Sprintf("START session=%s balance=$%.2f", sessionID, balance))
}

func (t *Telegram) NotifyFill(ctx context.Context, a domain.Attempt) error {
	msg := fmt.Sprintf("FILLED BUY %s @ %.3f cost=$%.2f", a.Direction, a.FillPrice, a.Cost())
	if a.Degraded {
		msg += fmt.Sprintf(" DEGRADED slip=%.0fbps", a.SlippageBps)
	}
	if t.trend != nil {
		msg += "\n" + t.trend.Tag()
	}
	return t.send(ctx, msg)
}

func (t *Telegram) NotifySettle(ctx context.Context, s domain.Settlement, snap domain.RiskSnapshot) error {
	result := "WIN"
	if !s.Won {
		result = "LOSS"
		if s.ConsecutiveLosses >= 2 {
			result = fmt.Sprintf("LOSS (%dL)", s.ConsecutiveLosses)
		}
	}
	msg := fmt.Sprintf("SETTLED %s\npnl=$%+.2f run=$%+.2f W/L=%d/%d",
		result, s.PnL, s.CumulativePnL, snap.TotalWins, snap.TotalLosses)
	if s.Reason != "" {
		msg = fmt.Sprintf("SETTLED %s [%s]\npnl=$%+.2f run=$%+.2f W/L=%d/%d",
			result, s.Reason, s.PnL, s.CumulativePnL, snap.TotalWins, snap.TotalLosses)
	}
	if t.trend != nil {
		msg += "\n" + t.trend.Tag()
	}
	return t.send(ctx, msg)
}

func (t *Telegram) NotifyKill(ctx context.Context, reason string, snap domain.RiskSnapshot) error {
	return t.send(ctx, fmt.Sprintf("KILL %s run_pnl=$%+.2f", reason, snap.CumulativePnL))
}

func (t *Telegram) NotifyStop(ctx context.Context, snap domain.RiskSnapshot) error {
	return t.send(ctx, fmt.Sprintf("STOP final_pnl=$%+.2f balance=$%.2f",
		snap.CumulativePnL, snap.Balance))
}

// send applies dedupe and pacing, then posts. Delivery failures are
// reported but carry no retry obligation for the caller.
func (t *Telegram) send(ctx context.Context, msg string) error {
	t.mu.Lock()
	now := t.now()
	if msg == t.lastMsg && now.Sub(t.lastSent) < dedupeWindow {
		t.mu.Unlock()
		return nil
	}
	if wait := minSendInterval - now.Sub(t.lastSent); wait > 0 {
		t.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		t.mu.Lock()
	}
	t.lastMsg = msg
	t.lastSent = t.now()
	t.mu.Unlock()

	resp, err := t.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"chat_id": t.chatID,
			"text":    msg,
		}).
		Post("/sendMessage")
	if err != nil {
		t.log.Warn("telegram send failed", "error", err)
		return fmt.Errorf("notify.Telegram.send: %w", err)
	}
	if resp.IsError() {
		t.log.Warn("telegram send rejected", "status", resp.StatusCode())
		return fmt.Errorf("notify.Telegram.send: status %d", resp.StatusCode())
	}
	return nil
}
