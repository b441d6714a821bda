package ports

import (
	"context"

	"github.com/edgebot/edgebot/internal/domain"
)

// TradeJournal records the trade lifecycle append-only, flushed on every
// event. Implementations must not buffer past the call boundary.
type TradeJournal interface {
	// SessionStart marks the beginning of a market window.
	SessionStart(ctx context.Context, sessionID string, balance float64) error

	// SessionStop marks engine shutdown with final counters.
	SessionStop(ctx context.Context, sessionID string, snap domain.RiskSnapshot) error

	// Signal records an admitted signal before submission.
	Signal(ctx context.Context, sig domain.Signal) error

	// Submit records an order submission.
	Submit(ctx context.Context, attempt domain.Attempt) error

	// Filled records a terminal fill, including degraded fills.
	Filled(ctx context.Context, attempt domain.Attempt) error

	// Settled records the realized outcome of a filled attempt.
	Settled(ctx context.Context, settlement domain.Settlement) error

	// Kill records a kill-switch activation.
	Kill(ctx context.Context, reason string, snap domain.RiskSnapshot) error

	// SaveRiskState persists the risk snapshot for restart recovery.
	SaveRiskState(ctx context.Context, snap domain.RiskSnapshot) error

	// LoadRiskState returns the last persisted snapshot, or false if none.
	LoadRiskState(ctx context.Context) (domain.RiskSnapshot, bool, error)

	// Close flushes and releases underlying resources.
	Close() error
}
