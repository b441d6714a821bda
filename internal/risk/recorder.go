package risk

import (
	"fmt"
	"log/slog"
)

// Recorder feeds settlement outcomes back into the shared risk state
// and fires the reactive kill-switch checks immediately, so a breach is
// latched within the same call rather than on the next admission check.
type Recorder struct {
	state *State
	cfg   Config
	log   *slog.Logger
}

// Result describes the state after one settlement was booked.
type Result struct {
	Duplicate     bool
	CumulativePnL float64
	Streak        int
	KillTripped   bool
	KillReason    string
}

// NewRecorder creates an outcome recorder over the given state.
func NewRecorder(state *State, cfg Config, log *slog.Logger) *Recorder {
	return &Recorder{
		state: state,
		cfg:   cfg,
		log:   log.With("component", "risk_recorder"),
	}
}

// RecordResult books one settlement. Duplicate attempt IDs are dropped
// without touching any counter.
func (r *Recorder) RecordResult(attemptID string, won bool, pnl float64) Result {
	if !r.state.markSettled(attemptID) {
		r.log.Warn("duplicate settlement ignored", "attempt_id", attemptID)
		return Result{Duplicate: true}
	}

	cumPnL, streak := r.state.applyResult(won, pnl)
	res := Result{CumulativePnL: cumPnL, Streak: streak}

	r.log.Info("settlement recorded",
		"attempt_id", attemptID,
		"won", won,
		"pnl", pnl,
		"cumulative_pnl", cumPnL,
		"streak", streak,
	)

	if streak >= r.cfg.MaxConsecutiveLosses {
		reason := fmt.Sprintf("%d consecutive losses", streak)
		if r.state.TripKill(reason) {
			r.log.Error("kill-switch activated", "reason", reason)
			res.KillTripped = true
			res.KillReason = reason
		}
	}
	if cumPnL <= r.cfg.PnLFloor {
		reason := fmt.Sprintf("cumulative PnL %.2f at floor %.2f", cumPnL, r.cfg.PnLFloor)
		if r.state.TripKill(reason) {
			r.log.Error("kill-switch activated", "reason", reason)
			res.KillTripped = true
			res.KillReason = reason
		}
	}

	return res
}
