package engine

import (
	"context"
	"fmt"

	"github.com/edgebot/edgebot/internal/domain"
	"github.com/edgebot/edgebot/internal/metrics"
)

// settleSession resolves every pending attempt of the ended window.
// The winner is the side whose final mid finished higher; a winning
// share pays out $1, a losing share pays nothing.
func (e *Engine) settleSession(ctx context.Context) {
	e.mu.Lock()
	upFinal := e.snap.Up.Mid
	downFinal := e.snap.Down.Mid
	slug := e.snap.Slug
	pending := e.pending
	e.pending = nil
	e.mu.Unlock()

	if len(pending) == 0 {
		e.log.Info("session ended, nothing to settle", "slug", slug)
		return
	}

	winner := domain.DirectionUp
	if downFinal > upFinal {
		winner = domain.DirectionDown
	}
	reason := fmt.Sprintf("final up=%.3f down=%.3f", upFinal, downFinal)
	e.log.Info("settling session", "slug", slug, "winner", winner,
		"attempts", len(pending), "up", upFinal, "down", downFinal)

	for _, att := range pending {
		won := att.Direction == winner
		var pnl float64
		if won {
			pnl = (1 - att.FillPrice) * att.FilledSize
		} else {
			pnl = -att.FillPrice * att.FilledSize
		}

		res := e.recorder.RecordResult(att.ID, won, pnl)
		if res.Duplicate {
			continue
		}
		if won {
			// Winning shares redeem at $1 each.
			e.state.SetBalance(e.state.Balance() + att.FilledSize)
		}

		settlement := domain.Settlement{
			AttemptID:         att.ID,
			SessionID:         att.SessionID,
			Direction:         att.Direction,
			Won:               won,
			PnL:               pnl,
			CumulativePnL:     res.CumulativePnL,
			ConsecutiveLosses: res.Streak,
			Reason:            reason,
		}

		if err := e.journal.Settled(ctx, settlement); err != nil {
			e.log.Warn("journal settled failed", "attempt", att.ID, "err", err)
		}
		riskSnap := e.state.Snapshot()
		if err := e.notifier.NotifySettle(ctx, settlement, riskSnap); err != nil {
			e.log.Warn("notify settle failed", "attempt", att.ID, "err", err)
		}
		e.sink.OnSettlement(settlement)
		metrics.Settlement(won, res.CumulativePnL)

		if res.KillTripped {
			if err := e.journal.Kill(ctx, res.KillReason, riskSnap); err != nil {
				e.log.Warn("journal kill failed", "err", err)
			}
			if err := e.notifier.NotifyKill(ctx, res.KillReason, riskSnap); err != nil {
				e.log.Warn("notify kill failed", "err", err)
			}
			metrics.SetKillSwitch(true)
		}
	}

	metrics.SetBalance(e.state.Balance())
	if err := e.journal.SaveRiskState(ctx, e.state.Snapshot()); err != nil {
		e.log.Warn("save risk state failed", "err", err)
	}
}
