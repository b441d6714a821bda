package notify

import (
	"context"
	"errors"

	"github.com/edgebot/edgebot/internal/domain"
	"github.com/edgebot/edgebot/internal/ports"
)

// Multi fans notifications out to all notifiers, best-effort each.
type Multi struct {
	notifiers []ports.Notifier
}

// NewMulti combines notifiers in the given order.
func NewMulti(notifiers ...ports.Notifier) *Multi {
	return &Multi{notifiers: notifiers}
}

func (m *Multi) NotifyStart(ctx context.Context, sessionID string, balance float64) error {
	return m.each(func(n ports.Notifier) error { return n.NotifyStart(ctx, sessionID, balance) })
}

func (m *Multi) NotifyFill(ctx context.Context, a domain.Attempt) error {
	return m.each(func(n ports.Notifier) error { return n.NotifyFill(ctx, a) })
}

func (m *Multi) NotifySettle(ctx context.Context, s domain.Settlement, snap domain.RiskSnapshot) error {
	return m.each(func(n ports.Notifier) error { return n.NotifySettle(ctx, s, snap) })
}

func (m *Multi) NotifyKill(ctx context.Context, reason string, snap domain.RiskSnapshot) error {
	return m.each(func(n ports.Notifier) error { return n.NotifyKill(ctx, reason, snap) })
}

func (m *Multi) NotifyStop(ctx context.Context, snap domain.RiskSnapshot) error {
	return m.each(func(n ports.Notifier) error { return n.NotifyStop(ctx, snap) })
}

func (m *Multi) each(fn func(ports.Notifier) error) error {
	var errs []error
	for _, n := range m.notifiers {
		if err := fn(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
