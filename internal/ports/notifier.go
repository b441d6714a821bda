package ports

import (
	"context"

	"github.com/edgebot/edgebot/internal/domain"
)

// Notifier surfaces lifecycle events to the user. Implementations are
// best-effort; a delivery failure never blocks trading.
type Notifier interface {
	// NotifyStart announces a new session.
	NotifyStart(ctx context.Context, sessionID string, balance float64) error

	// NotifyFill announces a terminal fill.
	NotifyFill(ctx context.Context, attempt domain.Attempt) error

	// NotifySettle announces a realized outcome with updated counters.
	NotifySettle(ctx context.Context, settlement domain.Settlement, snap domain.RiskSnapshot) error

	// NotifyKill announces a kill-switch activation.
	NotifyKill(ctx context.Context, reason string, snap domain.RiskSnapshot) error

	// NotifyStop announces engine shutdown.
	NotifyStop(ctx context.Context, snap domain.RiskSnapshot) error
}
