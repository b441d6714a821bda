package risk

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgebot/edgebot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGate(balance float64) (*Gate, *State) {
	state := NewState(balance)
	gate := NewGate(state, DefaultConfig(), testLogger())
	return gate, state
}

func TestCanTradeAllowsFreshState(t *testing.T) {
	gate, _ := newTestGate(100)

	ok, reason := gate.CanTrade(domain.ZoneCore)
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestCanTradeKillSwitchShortCircuits(t *testing.T) {
	gate, state := newTestGate(100)
	state.TripKill("manual test")

	ok, reason := gate.CanTrade(domain.ZoneCore)
	assert.False(t, ok)
	assert.Contains(t, reason, "kill-switch active")
	assert.Contains(t, reason, "manual test")
}

func TestCanTradeProactiveLossStreakTrip(t *testing.T) {
	gate, state := newTestGate(100)

	// Streak at the limit without a settlement handler having run.
	state.applyResult(false, -5)
	state.applyResult(false, -5)
	state.applyResult(false, -5)

	ok, reason := gate.CanTrade(domain.ZoneCore)
	assert.False(t, ok)
	assert.Contains(t, reason, "consecutive losses")

	active, killReason := state.KillSwitch()
	assert.True(t, active)
	assert.Contains(t, killReason, "3 consecutive losses")
}

func TestCanTradeProactivePnLFloorTrip(t *testing.T) {
	gate, state := newTestGate(100)

	state.applyResult(true, -55) // single large realized loss

	ok, reason := gate.CanTrade(domain.ZoneCore)
	assert.False(t, ok)
	assert.Contains(t, reason, "kill-switch active")

	active, _ := state.KillSwitch()
	assert.True(t, active)
}

func TestCanTradeZoneQuota(t *testing.T) {
	gate, state := newTestGate(100)
	gate.now = func() time.Time { return time.Unix(1_766_430_000, 0) }

	state.BookFill(3.2, domain.ZoneCore, time.Unix(1_766_429_000, 0))

	ok, reason := gate.CanTrade(domain.ZoneCore)
	assert.False(t, ok)
	assert.Contains(t, reason, "quota exhausted")

	// Other zones still have quota.
	ok, _ = gate.CanTrade(domain.ZoneRecovery)
	assert.True(t, ok)
}

func TestCanTradeCooldown(t *testing.T) {
	gate, state := newTestGate(100)

	tradeAt := time.Unix(1_766_430_000, 0)
	state.BookFill(3.2, domain.ZoneCore, tradeAt)

	gate.now = func() time.Time { return tradeAt.Add(10 * time.Second) }
	ok, reason := gate.CanTrade(domain.ZoneRecovery)
	assert.False(t, ok)
	assert.Contains(t, reason, "cooldown")

	gate.now = func() time.Time { return tradeAt.Add(31 * time.Second) }
	ok, _ = gate.CanTrade(domain.ZoneRecovery)
	assert.True(t, ok)
}

func TestCanTradeBalance(t *testing.T) {
	gate, _ := newTestGate(3.0)

	ok, reason := gate.CanTrade(domain.ZoneCore)
	assert.False(t, ok)
	assert.Contains(t, reason, "balance")
}

func TestValidateSignal(t *testing.T) {
	tests := []struct {
		name    string
		zone    domain.Zone
		edge    float64
		ask     float64
		minEdge float64
		ok      bool
		reason  string
	}{
		{"edge below floor", domain.ZoneCore, 0.62, 0.63, 0, false, "edge"},
		{"edge at floor", domain.ZoneCore, 0.64, 0.65, 0, true, ""},
		{"raised threshold", domain.ZoneCore, 0.65, 0.65, 0.67, false, "edge"},
		{"raised threshold met", domain.ZoneCore, 0.675, 0.66, 0.67, true, ""},
		{"ask at cap", domain.ZoneCore, 0.70, 0.68, 0, false, "safety cap"},
		{"ask above cap", domain.ZoneCore, 0.72, 0.70, 0, false, "safety cap"},
		{"recovery zone allowed", domain.ZoneRecovery, 0.65, 0.65, 0, true, ""},
		{"early zone denied", domain.ZoneEarly, 0.65, 0.65, 0, false, "not tradeable"},
		{"dead zone denied", domain.ZoneDead, 0.65, 0.65, 0, false, "not tradeable"},
		{"late zone denied", domain.ZoneLate, 0.65, 0.65, 0, false, "not tradeable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate, _ := newTestGate(100)
			sig := domain.Signal{
				Zone:      tt.zone,
				Direction: domain.DirectionUp,
				Edge:      tt.edge,
				Ask:       tt.ask,
			}
			ok, reason := gate.ValidateSignal(sig, tt.minEdge)
			assert.Equal(t, tt.ok, ok)
			if tt.reason != "" {
				assert.Contains(t, reason, tt.reason)
			}
		})
	}
}

func TestNewSessionResetsOnlyZoneCounters(t *testing.T) {
	gate, state := newTestGate(100)

	state.BookFill(3.2, domain.ZoneCore, time.Now())
	state.IncrementDegraded()
	state.TripKill("degraded fills")

	gate.NewSession("btc-updown-15m-1766430600")
	assert.Equal(t, 0, state.ZoneTrades(domain.ZoneCore))

	active, _ := state.KillSwitch()
	assert.True(t, active)
	assert.Equal(t, 1, state.DegradedFills())

	// A second rollover still does not clear the latch.
	gate.NewSession("btc-updown-15m-1766431500")
	active, _ = state.KillSwitch()
	assert.True(t, active)
}

func TestResetKillSwitch(t *testing.T) {
	gate, state := newTestGate(100)

	state.applyResult(false, -10)
	state.applyResult(false, -10)
	state.IncrementDegraded()
	state.TripKill("2 consecutive losses")

	gate.ResetKillSwitch()

	active, reason := state.KillSwitch()
	assert.False(t, active)
	assert.Empty(t, reason)
	assert.Equal(t, 0, state.ConsecutiveLosses())
	assert.Equal(t, 0, state.DegradedFills())
	// PnL is never touched by a kill reset.
	assert.InDelta(t, -20.0, state.CumulativePnL(), 1e-9)
}

func TestTripKillFirstReasonWins(t *testing.T) {
	state := NewState(100)

	require.True(t, state.TripKill("first"))
	require.False(t, state.TripKill("second"))

	_, reason := state.KillSwitch()
	assert.Equal(t, "first", reason)
}

func TestSnapshotRestore(t *testing.T) {
	state := NewState(100)
	state.applyResult(false, -12.5)
	state.IncrementDegraded()
	state.TripKill("degraded fills")
	state.newSession("btc-updown-15m-1766430600")

	snap := state.Snapshot()

	fresh := NewState(0)
	fresh.Restore(snap)

	assert.InDelta(t, state.Balance(), fresh.Balance(), 1e-9)
	assert.InDelta(t, -12.5, fresh.CumulativePnL(), 1e-9)
	assert.Equal(t, 1, fresh.ConsecutiveLosses())
	assert.Equal(t, 1, fresh.DegradedFills())

	active, reason := fresh.KillSwitch()
	assert.True(t, active)
	assert.Equal(t, "degraded fills", reason)
}
