package risk

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/edgebot/edgebot/internal/domain"
)

// Config holds the admission and kill-switch thresholds. All values are
// fixed at process start.
type Config struct {
	CashPerTrade         float64
	EdgeThreshold        float64
	SafetyCap            float64
	MaxTradesPerZone     int
	Cooldown             time.Duration
	MaxConsecutiveLosses int
	PnLFloor             float64
	DegradedKillCount    int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		CashPerTrade:         5.0,
		EdgeThreshold:        0.64,
		SafetyCap:            0.68,
		MaxTradesPerZone:     1,
		Cooldown:             30 * time.Second,
		MaxConsecutiveLosses: 3,
		PnLFloor:             -50.0,
		DegradedKillCount:    2,
	}
}

// Gate performs pre-trade admission checks against the shared risk
// state. Checks run in a fixed order and the first failure wins.
type Gate struct {
	state *State
	cfg   Config
	log   *slog.Logger
	now   func() time.Time
}

// NewGate creates an admission gate over the given state.
func NewGate(state *State, cfg Config, log *slog.Logger) *Gate {
	return &Gate{
		state: state,
		cfg:   cfg,
		log:   log.With("component", "risk_gate"),
		now:   time.Now,
	}
}

// CanTrade decides whether a trade in the zone is admissible right now.
// Threshold breaches found here latch the kill-switch before denying,
// so a limit crossed between settlements is still caught pre-trade.
func (g *Gate) CanTrade(zone domain.Zone) (bool, string) {
	if active, reason := g.state.KillSwitch(); active {
		return false, fmt.Sprintf("kill-switch active: %s", reason)
	}

	if streak := g.state.ConsecutiveLosses(); streak >= g.cfg.MaxConsecutiveLosses {
		reason := fmt.Sprintf("%d consecutive losses", streak)
		g.trip(reason)
		return false, fmt.Sprintf("kill-switch active: %s", reason)
	}

	if pnl := g.state.CumulativePnL(); pnl <= g.cfg.PnLFloor {
		reason := fmt.Sprintf("cumulative PnL %.2f at floor %.2f", pnl, g.cfg.PnLFloor)
		g.trip(reason)
		return false, fmt.Sprintf("kill-switch active: %s", reason)
	}

	if n := g.state.ZoneTrades(zone); n >= g.cfg.MaxTradesPerZone {
		return false, fmt.Sprintf("zone %s quota exhausted (%d/%d)", zone, n, g.cfg.MaxTradesPerZone)
	}

	if last := g.state.LastTradeAt(); !last.IsZero() {
		if since := g.now().Sub(last); since < g.cfg.Cooldown {
			return false, fmt.Sprintf("cooldown: %.0fs remaining", (g.cfg.Cooldown - since).Seconds())
		}
	}

	if bal := g.state.Balance(); bal < g.cfg.CashPerTrade {
		return false, fmt.Sprintf("balance %.2f below cash per trade %.2f", bal, g.cfg.CashPerTrade)
	}

	return true, ""
}

// ValidateSignal applies the signal-level checks before delegating to
// CanTrade. minEdge carries any regime-adjusted threshold from the
// caller; values below the configured floor are clamped to it.
func (g *Gate) ValidateSignal(sig domain.Signal, minEdge float64) (bool, string) {
	if !sig.Zone.Tradeable() {
		return false, fmt.Sprintf("zone %s not tradeable", sig.Zone)
	}
	if minEdge < g.cfg.EdgeThreshold {
		minEdge = g.cfg.EdgeThreshold
	}
	if sig.Edge < minEdge {
		return false, fmt.Sprintf("edge %.4f below threshold %.4f", sig.Edge, minEdge)
	}
	if sig.Ask >= g.cfg.SafetyCap {
		return false, fmt.Sprintf("ask %.4f at or above safety cap %.4f", sig.Ask, g.cfg.SafetyCap)
	}
	return g.CanTrade(sig.Zone)
}

// NewSession resets the per-zone counters for a fresh market window.
// Kill-switch state and degraded counts carry over.
func (g *Gate) NewSession(id string) {
	g.state.newSession(id)
	g.log.Info("new session", "session_id", id)
}

// ResetKillSwitch clears the latch, the loss streak and the degraded
// counter. This is the only path that does; cumulative PnL stays.
func (g *Gate) ResetKillSwitch() {
	g.state.resetKill()
	g.log.Warn("kill-switch manually reset")
}

func (g *Gate) trip(reason string) {
	if g.state.TripKill(reason) {
		g.log.Error("kill-switch activated", "reason", reason)
	}
}
