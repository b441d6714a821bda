package executor

// Package executor drives one order attempt at a time through
// submission, bounded polling, partial-fill resolution and conditional
// retry. It owns the attempt for its whole lifetime; risk bookkeeping
// goes through the shared risk state and everything else leaves through
// the journal, notifier and metrics ports.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edgebot/edgebot/internal/domain"
	"github.com/edgebot/edgebot/internal/ports"
	"github.com/edgebot/edgebot/internal/risk"
)

// Config tunes the execution state machine. Zero values fall back to
// the production defaults.
type Config struct {
	CashPerTrade         float64
	CoreTimeout          time.Duration
	RecoveryTimeout      time.Duration
	PollInterval         time.Duration
	MaxRetries           int
	RetryDelay           time.Duration
	DegradedThresholdBps float64
	DegradedKillCount    int
	PartialMinRemaining  float64
	EdgeThreshold        float64
	SafetyCap            float64
	// MaxAskDrift is the absolute price drift from the original ask a
	// retry will tolerate, in price points on the 0..1 scale.
	MaxAskDrift float64
	// RebaseSlippage computes slippage against the retried price instead
	// of the original ask. Off by default: a retry that chased the ask
	// should still count the full drift as slippage.
	RebaseSlippage bool
}

func (c *Config) setDefaults() {
	if c.CashPerTrade <= 0 {
		c.CashPerTrade = 5.0
	}
	if c.CoreTimeout <= 0 {
		c.CoreTimeout = 1000 * time.Millisecond
	}
	if c.RecoveryTimeout <= 0 {
		c.RecoveryTimeout = 1200 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = 1
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 200 * time.Millisecond
	}
	if c.DegradedThresholdBps <= 0 {
		c.DegradedThresholdBps = 100
	}
	if c.DegradedKillCount <= 0 {
		c.DegradedKillCount = 2
	}
	if c.PartialMinRemaining <= 0 {
		c.PartialMinRemaining = 0.1
	}
	if c.EdgeThreshold <= 0 {
		c.EdgeThreshold = 0.64
	}
	if c.SafetyCap <= 0 {
		c.SafetyCap = 0.68
	}
	if c.MaxAskDrift <= 0 {
		c.MaxAskDrift = 0.005
	}
}

// MarketView supplies fresh market state for retry revalidation.
// It returns the current zone, edge and the favored side's best ask.
type MarketView func() (zone domain.Zone, edge, ask float64)

// fillPctComplete treats a near-total match as a full fill.
const fillPctComplete = 0.99

// Executor runs one attempt at a time. Calls to Execute must be
// serialized by the caller; the engine never overlaps attempts.
type Executor struct {
	cfg      Config
	venue    ports.OrderVenue
	state    *risk.State
	journal  ports.TradeJournal
	notifier ports.Notifier
	metrics  ports.MetricsSink
	log      *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an Executor wired to the given collaborators.
func New(cfg Config, venue ports.OrderVenue, state *risk.State, journal ports.TradeJournal, notifier ports.Notifier, metrics ports.MetricsSink, log *slog.Logger) *Executor {
	cfg.setDefaults()
	return &Executor{
		cfg:      cfg,
		venue:    venue,
		state:    state,
		journal:  journal,
		notifier: notifier,
		metrics:  metrics,
		log:      log.With("component", "executor"),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Execute drives one validated signal to a terminal attempt status.
// view supplies fresh market state for retry revalidation; a nil view
// denies all retries. The returned attempt always carries exactly one
// terminal status; the error is non-nil only for StatusFailed and
// preserves the fault detail.
func (e *Executor) Execute(ctx context.Context, sig domain.Signal, view MarketView) (domain.Attempt, error) {
	attempt := domain.Attempt{
		ID:        uuid.NewString(),
		SessionID: sig.SessionID,
		Direction: sig.Direction,
		Zone:      sig.Zone,
		AskPrice:  sig.Ask,
		Size:      shares(e.cfg.CashPerTrade, sig.Ask),
		Status:    domain.StatusPending,
	}

	originalAsk := sig.Ask
	price := sig.Ask

	for {
		if err := e.submit(ctx, &attempt, sig.TokenID, price); err != nil {
			return attempt, err
		}

		outcome, err := e.pollFill(ctx, &attempt, sig.Zone)
		switch outcome {
		case pollFilled:
			e.finalize(ctx, &attempt, originalAsk, price)
			return attempt, nil

		case pollFault:
			attempt.Advance(domain.StatusFailed)
			attempt.Error = err.Error()
			e.log.Error("poll fault", "attempt_id", attempt.ID, "error", err)
			return attempt, fmt.Errorf("executor.Execute: poll: %w", err)

		case pollCancelled, pollTimeout:
			// An exchange-side cancellation with no fill is handled
			// like a timeout: the order is gone either way, and the
			// same retry revalidation decides whether to resubmit.
			if outcome == pollTimeout {
				if cancelErr := e.venue.CancelOrder(ctx, attempt.VenueOrderID); cancelErr != nil {
					e.log.Warn("cancel after timeout failed", "attempt_id", attempt.ID, "error", cancelErr)
				}
			} else {
				e.log.Warn("order cancelled on venue", "attempt_id", attempt.ID, "venue_order_id", attempt.VenueOrderID)
			}

			newPrice, reason := e.retryPrice(attempt, originalAsk, view)
			if reason != "" {
				attempt.Advance(domain.StatusCancelled)
				attempt.Error = reason
				e.log.Info("attempt cancelled", "attempt_id", attempt.ID, "reason", reason, "retries", attempt.Retries)
				return attempt, nil
			}

			// A retry opens a fresh submission cycle within the same
			// attempt, so the lifecycle restarts at Pending.
			attempt.Retries++
			price = newPrice
			attempt.AskPrice = newPrice
			attempt.Size = shares(e.cfg.CashPerTrade, newPrice)
			attempt.Status = domain.StatusPending
			attempt.VenueOrderID = ""

			e.log.Info("resubmitting order",
				"attempt_id", attempt.ID,
				"retry", attempt.Retries,
				"price", newPrice,
			)
			if err := e.sleep(ctx, e.cfg.RetryDelay); err != nil {
				attempt.Advance(domain.StatusCancelled)
				attempt.Error = "shutdown during retry delay"
				return attempt, nil
			}
		}
	}
}

// submit places the order and advances Pending → Submitted. A missing
// acknowledgment or order ID is terminal Failed with no retry.
func (e *Executor) submit(ctx context.Context, attempt *domain.Attempt, tokenID string, price float64) error {
	req := domain.PlaceOrderRequest{
		TokenID: tokenID,
		Price:   price,
		Size:    attempt.Size,
	}

	start := e.now()
	placed, err := e.venue.PlaceOrder(ctx, req)
	attempt.Latency = e.now().Sub(start)
	attempt.SubmitAt = start

	if err != nil {
		attempt.Advance(domain.StatusFailed)
		attempt.Error = err.Error()
		e.log.Error("submit failed", "attempt_id", attempt.ID, "error", err)
		return fmt.Errorf("executor.submit: place order: %w", err)
	}
	if placed.VenueOrderID == "" {
		attempt.Advance(domain.StatusFailed)
		attempt.Error = "no order ID in acknowledgment"
		e.log.Error("submit failed", "attempt_id", attempt.ID, "error", attempt.Error)
		return fmt.Errorf("executor.submit: no order ID in acknowledgment")
	}

	attempt.VenueOrderID = placed.VenueOrderID
	attempt.Advance(domain.StatusSubmitted)

	if err := e.journal.Submit(ctx, *attempt); err != nil {
		e.log.Error("journal submit failed", "attempt_id", attempt.ID, "error", err)
	}

	e.log.Info("order submitted",
		"attempt_id", attempt.ID,
		"venue_order_id", attempt.VenueOrderID,
		"price", price,
		"size", attempt.Size,
		"latency_ms", attempt.Latency.Milliseconds(),
	)
	return nil
}

type pollOutcome int

const (
	pollFilled pollOutcome = iota
	pollCancelled
	pollTimeout
	pollFault
)

// pollFill watches the order until fill, cancellation or the zone
// budget elapses. A partial whose unfilled remainder drops under the
// configured minimum is resolved immediately: cancel the rest and book
// the filled portion.
func (e *Executor) pollFill(ctx context.Context, attempt *domain.Attempt, zone domain.Zone) (pollOutcome, error) {
	deadline := e.now().Add(e.timeoutFor(zone))

	for {
		if e.now().After(deadline) {
			return pollTimeout, nil
		}
		if err := e.sleep(ctx, e.cfg.PollInterval); err != nil {
			return pollTimeout, nil
		}

		order, err := e.venue.GetOrder(ctx, attempt.VenueOrderID)
		if err != nil {
			return pollFault, fmt.Errorf("get order %s: %w", attempt.VenueOrderID, err)
		}

		status := strings.ToUpper(order.Status)
		fillPct := 0.0
		if order.OriginalSize > 0 {
			fillPct = order.SizeMatched / order.OriginalSize
		}

		switch {
		case status == "MATCHED" || fillPct >= fillPctComplete:
			attempt.FilledSize = math.Min(order.SizeMatched, attempt.Size)
			attempt.FillPrice = order.Price
			return pollFilled, nil

		case status == "CANCELED" || status == "CANCELLED":
			if order.SizeMatched > 0 {
				// Cancelled with a partial on the books: keep the fill.
				attempt.FilledSize = math.Min(order.SizeMatched, attempt.Size)
				attempt.FillPrice = order.Price
				return pollFilled, nil
			}
			return pollCancelled, nil

		case order.SizeMatched > 0:
			attempt.Advance(domain.StatusPartiallyFilled)
			remaining := 1 - fillPct
			if remaining < e.cfg.PartialMinRemaining {
				if err := e.venue.CancelOrder(ctx, attempt.VenueOrderID); err != nil {
					e.log.Warn("cancel partial remainder failed", "attempt_id", attempt.ID, "error", err)
				}
				attempt.FilledSize = math.Min(order.SizeMatched, attempt.Size)
				attempt.FillPrice = order.Price
				e.log.Info("partial resolved as final fill",
					"attempt_id", attempt.ID,
					"fill_pct", fillPct,
				)
				return pollFilled, nil
			}
		}
	}
}

// finalize books a terminal fill: slippage classification, degraded
// accounting, balance and cooldown updates, journal and notification.
// A duplicate call for an attempt already Filled is a no-op.
func (e *Executor) finalize(ctx context.Context, attempt *domain.Attempt, originalAsk, requestedPrice float64) {
	if !attempt.Advance(domain.StatusFilled) {
		e.log.Warn("duplicate fill ignored", "attempt_id", attempt.ID)
		return
	}

	base := originalAsk
	if e.cfg.RebaseSlippage {
		base = requestedPrice
	}
	attempt.SlippageBps = (attempt.FillPrice - base) / base * 10_000

	now := e.now()
	attempt.FillAt = &now

	if attempt.SlippageBps > e.cfg.DegradedThresholdBps {
		attempt.Degraded = true
		count := e.state.IncrementDegraded()
		e.log.Warn("degraded fill",
			"attempt_id", attempt.ID,
			"slippage_bps", attempt.SlippageBps,
			"degraded_count", count,
		)
		if count >= e.cfg.DegradedKillCount {
			reason := fmt.Sprintf("%d degraded fills", count)
			if e.state.TripKill(reason) {
				e.log.Error("kill-switch activated", "reason", reason)
				snap := e.state.Snapshot()
				if err := e.journal.Kill(ctx, reason, snap); err != nil {
					e.log.Error("journal kill failed", "error", err)
				}
				if err := e.notifier.NotifyKill(ctx, reason, snap); err != nil {
					e.log.Warn("notify kill failed", "error", err)
				}
			}
		}
	}

	e.state.BookFill(attempt.Cost(), attempt.Zone, now)

	if err := e.journal.Filled(ctx, *attempt); err != nil {
		e.log.Error("journal fill failed", "attempt_id", attempt.ID, "error", err)
	}
	if err := e.notifier.NotifyFill(ctx, *attempt); err != nil {
		e.log.Warn("notify fill failed", "attempt_id", attempt.ID, "error", err)
	}
	e.metrics.OnEntry(*attempt)

	e.log.Info("order filled",
		"attempt_id", attempt.ID,
		"fill_price", attempt.FillPrice,
		"filled_size", attempt.FilledSize,
		"slippage_bps", attempt.SlippageBps,
		"degraded", attempt.Degraded,
	)
}

// retryPrice revalidates against fresh market state and returns the new
// submission price, or a deny reason. Retries never chase a decayed
// signal: the zone must still be tradeable, edge and cap must still
// hold and the ask must not have drifted more than the allowed amount
// from the original.
func (e *Executor) retryPrice(attempt domain.Attempt, originalAsk float64, view MarketView) (float64, string) {
	if attempt.Retries >= e.cfg.MaxRetries {
		return 0, fmt.Sprintf("retry budget exhausted (%d)", e.cfg.MaxRetries)
	}
	if view == nil {
		return 0, "no market view for revalidation"
	}

	zone, edge, ask := view()
	switch {
	case !zone.Tradeable():
		return 0, fmt.Sprintf("zone %s no longer tradeable", zone)
	case edge < e.cfg.EdgeThreshold:
		return 0, fmt.Sprintf("edge %.4f below threshold %.4f", edge, e.cfg.EdgeThreshold)
	case ask >= e.cfg.SafetyCap:
		return 0, fmt.Sprintf("ask %.4f at or above safety cap %.4f", ask, e.cfg.SafetyCap)
	case ask > originalAsk+e.cfg.MaxAskDrift+1e-9:
		return 0, fmt.Sprintf("ask moved %.4f -> %.4f (over %.3f drift)", originalAsk, ask, e.cfg.MaxAskDrift)
	}
	return ask, ""
}

func (e *Executor) timeoutFor(zone domain.Zone) time.Duration {
	if zone == domain.ZoneCore {
		return e.cfg.CoreTimeout
	}
	return e.cfg.RecoveryTimeout
}

// shares converts a cash amount to order size at the given price,
// truncated to two decimals the way the venue expects.
func shares(cash, price float64) float64 {
	return math.Floor(cash/price*100) / 100
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
