package engine

import (
	"context"

	"github.com/edgebot/edgebot/internal/domain"
	"github.com/edgebot/edgebot/internal/executor"
	"github.com/edgebot/edgebot/internal/metrics"
	"github.com/edgebot/edgebot/internal/regime"
)

// Edge requirement brackets by ask price: the more the entry costs, the
// more conviction the market has to show first.
func edgeRequirement(ask float64) float64 {
	switch {
	case ask <= 0.66:
		return 0.64
	case ask <= 0.69:
		return 0.67
	default:
		return 0.70
	}
}

// maybeTrade runs the per-tick gate pipeline over the current snapshot
// and executes at most one attempt when everything admits.
func (e *Engine) maybeTrade(ctx context.Context, updates <-chan domain.BookUpdate) {
	e.mu.Lock()
	s := e.snap
	e.mu.Unlock()

	if !s.Zone.Tradeable() {
		return
	}

	book := s.FavoredBook()
	if !book.Valid() {
		e.skip(s.Zone, "book invalid")
		return
	}
	if book.Spread() > e.cfg.MaxSpread {
		e.skip(s.Zone, "spread too wide")
		return
	}

	minEdge := edgeRequirement(book.BestAsk)
	if label, _ := e.tracker.Regime(); label == regime.Choppy {
		minEdge += e.cfg.ChoppyEdgeModifier
	}

	sig := domain.Signal{
		SessionID: s.Slug,
		Zone:      s.Zone,
		Direction: s.Direction,
		TokenID:   s.FavoredToken(),
		Edge:      s.Edge,
		Bid:       book.BestBid,
		Ask:       book.BestAsk,
		Spread:    book.Spread(),
	}

	ok, reason := e.gate.ValidateSignal(sig, minEdge)
	if !ok {
		metrics.Signal(string(s.Zone), false)
		e.skip(s.Zone, reason)
		return
	}

	metrics.Signal(string(s.Zone), true)
	if err := e.journal.Signal(ctx, sig); err != nil {
		e.log.Warn("journal signal failed", "err", err)
	}
	e.log.Info("signal admitted", "zone", s.Zone, "direction", sig.Direction,
		"edge", sig.Edge, "ask", sig.Ask, "min_edge", minEdge, "regime", e.tracker.Tag())

	if !e.cfg.ExecutionEnabled {
		e.log.Info("execution disabled, signal not routed", "zone", s.Zone)
		return
	}

	view := e.marketView(sig.Direction, updates)
	attempt, err := e.exec.Execute(ctx, sig, view)
	if err != nil {
		e.log.Warn("execution error", "attempt", attempt.ID, "err", err)
	}
	e.afterExecute(ctx, attempt)
}

// marketView gives the executor fresh zone/edge/ask readings for retry
// revalidation. Queued feed updates are folded in before each read.
func (e *Engine) marketView(dir domain.Direction, updates <-chan domain.BookUpdate) executor.MarketView {
	return func() (domain.Zone, float64, float64) {
		e.drain(updates)
		e.mu.Lock()
		defer e.mu.Unlock()
		e.snap.UpdateTiming(e.now())
		book := e.snap.Up
		if dir == domain.DirectionDown {
			book = e.snap.Down
		}
		return e.snap.Zone, e.snap.Edge, book.BestAsk
	}
}

func (e *Engine) afterExecute(ctx context.Context, attempt domain.Attempt) {
	metrics.Attempt(string(attempt.Status))

	if attempt.Status == domain.StatusFilled {
		metrics.Fill(string(attempt.Zone), attempt.Degraded, attempt.SlippageBps,
			attempt.Latency.Seconds())
		metrics.SetBalance(e.state.Balance())

		e.mu.Lock()
		e.pending = append(e.pending, attempt)
		e.mu.Unlock()

		if err := e.journal.SaveRiskState(ctx, e.state.Snapshot()); err != nil {
			e.log.Warn("save risk state failed", "err", err)
		}
	}

	active, _ := e.state.KillSwitch()
	metrics.SetKillSwitch(active)
}

// skip logs a denial once per zone until the reason changes, so a quiet
// market does not flood the log with identical lines every tick.
func (e *Engine) skip(zone domain.Zone, reason string) {
	e.mu.Lock()
	last := e.lastSkip[zone]
	e.lastSkip[zone] = reason
	e.mu.Unlock()

	if last != reason {
		e.log.Debug("signal skipped", "zone", zone, "reason", reason)
	}
}
