package risk

// Package risk owns the cross-session trading risk state and the two
// components allowed to mutate it: the admission Gate (pre-trade) and
// the outcome Recorder (post-settlement). The executor books fills and
// degraded counts through the guarded methods here; nothing else writes.

import (
	"sync"
	"time"

	"github.com/edgebot/edgebot/internal/domain"
)

// State is the single mutable risk store for a trading run. It persists
// across sessions; only per-zone counters reset at session boundaries.
type State struct {
	mu sync.Mutex

	balance       float64
	cumulativePnL float64

	consecutiveLosses int
	degradedFills     int

	killSwitch bool
	killReason string

	totalTrades int
	wins        int
	losses      int

	zoneTrades  map[domain.Zone]int
	lastTradeAt time.Time

	settled map[string]struct{}

	sessionID string
}

// NewState creates a State with the given starting balance.
func NewState(balance float64) *State {
	return &State{
		balance:    balance,
		zoneTrades: make(map[domain.Zone]int),
		settled:    make(map[string]struct{}),
	}
}

// Balance returns the current tracked balance.
func (s *State) Balance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// SetBalance overwrites the tracked balance, e.g. after a venue refresh.
func (s *State) SetBalance(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = v
}

// CumulativePnL returns realized PnL since start (or last manual reset).
func (s *State) CumulativePnL() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cumulativePnL
}

// ConsecutiveLosses returns the current loss streak.
func (s *State) ConsecutiveLosses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consecutiveLosses
}

// DegradedFills returns the cross-session degraded-fill count.
func (s *State) DegradedFills() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degradedFills
}

// KillSwitch reports whether the latch is set and why.
func (s *State) KillSwitch() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.killSwitch, s.killReason
}

// TripKill sets the latch. The first reason wins; later trips while
// already latched do not overwrite it. Returns true if this call set it.
func (s *State) TripKill(reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.killSwitch {
		return false
	}
	s.killSwitch = true
	s.killReason = reason
	return true
}

// BookFill records a completed entry: debits the balance, bumps the
// zone counter and stamps the cooldown clock.
func (s *State) BookFill(cost float64, zone domain.Zone, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance -= cost
	s.zoneTrades[zone]++
	s.lastTradeAt = at
}

// IncrementDegraded bumps the degraded-fill counter and returns the new
// count so the caller can compare against its kill limit.
func (s *State) IncrementDegraded() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degradedFills++
	return s.degradedFills
}

// ZoneTrades returns the trade count booked in the zone this session.
func (s *State) ZoneTrades(zone domain.Zone) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoneTrades[zone]
}

// LastTradeAt returns the cooldown anchor, zero before the first trade.
func (s *State) LastTradeAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTradeAt
}

// Stats returns the lifetime trade tally.
func (s *State) Stats() (total, wins, losses int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalTrades, s.wins, s.losses
}

// Snapshot copies the current state for persistence.
func (s *State) Snapshot() domain.RiskSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.RiskSnapshot{
		Balance:           s.balance,
		CumulativePnL:     s.cumulativePnL,
		ConsecutiveLosses: s.consecutiveLosses,
		DegradedFills:     s.degradedFills,
		KillSwitch:        s.killSwitch,
		KillReason:        s.killReason,
		TotalTrades:       s.totalTrades,
		TotalWins:         s.wins,
		TotalLosses:       s.losses,
		LastTradeAt:       s.lastTradeAt,
		SessionID:         s.sessionID,
		UpdatedAt:         time.Now().UTC(),
	}
}

// Restore loads a persisted snapshot, typically at process start so a
// latched kill-switch survives restarts. Per-zone counters and the
// settled set start empty; they are session-scoped.
func (s *State) Restore(snap domain.RiskSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = snap.Balance
	s.cumulativePnL = snap.CumulativePnL
	s.consecutiveLosses = snap.ConsecutiveLosses
	s.degradedFills = snap.DegradedFills
	s.killSwitch = snap.KillSwitch
	s.killReason = snap.KillReason
	s.totalTrades = snap.TotalTrades
	s.wins = snap.TotalWins
	s.losses = snap.TotalLosses
	s.lastTradeAt = snap.LastTradeAt
	s.sessionID = snap.SessionID
}

// newSession resets the per-zone counters only. Kill-switch, streaks and
// degraded counts are cross-session accumulators and are left alone.
func (s *State) newSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = id
	s.zoneTrades = make(map[domain.Zone]int)
}

// resetKill clears the latch together with the streak and degraded
// counters. Cumulative PnL is untouched.
func (s *State) resetKill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killSwitch = false
	s.killReason = ""
	s.consecutiveLosses = 0
	s.degradedFills = 0
}

// markSettled registers an attempt ID as settled. Returns false if it
// was already present.
func (s *State) markSettled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.settled[id]; ok {
		return false
	}
	s.settled[id] = struct{}{}
	return true
}

// applyResult books a settlement into the tallies and returns the
// updated PnL and streak for the caller's kill checks.
func (s *State) applyResult(won bool, pnl float64) (cumPnL float64, streak int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalTrades++
	s.cumulativePnL += pnl
	if won {
		s.wins++
		s.consecutiveLosses = 0
	} else {
		s.losses++
		s.consecutiveLosses++
	}
	return s.cumulativePnL, s.consecutiveLosses
}
