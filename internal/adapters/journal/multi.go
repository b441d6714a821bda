package journal

import (
	"context"
	"errors"

	"github.com/edgebot/edgebot/internal/domain"
	"github.com/edgebot/edgebot/internal/ports"
)

// Multi fans every event out to all journals. Errors are joined, not
// short-circuited: one failing backend must not starve the others of a
// real-money record. LoadRiskState returns the first snapshot found.
type Multi struct {
	journals []ports.TradeJournal
}

// NewMulti combines journals in the given order.
func NewMulti(journals ...ports.TradeJournal) *Multi {
	return &Multi{journals: journals}
}

func (m *Multi) SessionStart(ctx context.Context, sessionID string, balance float64) error {
	return m.each(func(j ports.TradeJournal) error {
		return j.SessionStart(ctx, sessionID, balance)
	})
}

func (m *Multi) SessionStop(ctx context.Context, sessionID string, snap domain.RiskSnapshot) error {
	return m.each(func(j ports.TradeJournal) error {
		return j.SessionStop(ctx, sessionID, snap)
	})
}

func (m *Multi) Signal(ctx context.Context, sig domain.Signal) error {
	return m.each(func(j ports.TradeJournal) error { return j.Signal(ctx, sig) })
}

func (m *Multi) Submit(ctx context.Context, a domain.Attempt) error {
	return m.each(func(j ports.TradeJournal) error { return j.Submit(ctx, a) })
}

func (m *Multi) Filled(ctx context.Context, a domain.Attempt) error {
	return m.each(func(j ports.TradeJournal) error { return j.Filled(ctx, a) })
}

func (m *Multi) Settled(ctx context.Context, s domain.Settlement) error {
	return m.each(func(j ports.TradeJournal) error { return j.Settled(ctx, s) })
}

func (m *Multi) Kill(ctx context.Context, reason string, snap domain.RiskSnapshot) error {
	return m.each(func(j ports.TradeJournal) error { return j.Kill(ctx, reason, snap) })
}

func (m *Multi) SaveRiskState(ctx context.Context, snap domain.RiskSnapshot) error {
	return m.each(func(j ports.TradeJournal) error { return j.SaveRiskState(ctx, snap) })
}

func (m *Multi) LoadRiskState(ctx context.Context) (domain.RiskSnapshot, bool, error) {
	for _, j := range m.journals {
		snap, ok, err := j.LoadRiskState(ctx)
		if err != nil {
			return domain.RiskSnapshot{}, false, err
		}
		if ok {
			return snap, true, nil
		}
	}
	return domain.RiskSnapshot{}, false, nil
}

func (m *Multi) Close() error {
	return m.each(func(j ports.TradeJournal) error { return j.Close() })
}

func (m *Multi) each(fn func(ports.TradeJournal) error) error {
	var errs []error
	for _, j := range m.journals {
		if err := fn(j); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
