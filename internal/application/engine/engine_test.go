package engine

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgebot/edgebot/internal/domain"
	"github.com/edgebot/edgebot/internal/executor"
	"github.com/edgebot/edgebot/internal/regime"
	"github.com/edgebot/edgebot/internal/risk"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeJournal struct {
	mu      sync.Mutex
	signals []domain.Signal
	settled []domain.Settlement
	kills   []string
	saved   int
	started []string
	stopped []string
}

func (j *fakeJournal) SessionStart(_ context.Context, id string, _ float64) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.started = append(j.started, id)
	return nil
}

func (j *fakeJournal) SessionStop(_ context.Context, id string, _ domain.RiskSnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stopped = append(j.stopped, id)
	return nil
}

func (j *fakeJournal) Signal(_ context.Context, sig domain.Signal) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.signals = append(j.signals, sig)
	return nil
}

func (j *fakeJournal) Submit(context.Context, domain.Attempt) error { return nil }
func (j *fakeJournal) Filled(context.Context, domain.Attempt) error { return nil }

func (j *fakeJournal) Settled(_ context.Context, s domain.Settlement) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.settled = append(j.settled, s)
	return nil
}

func (j *fakeJournal) Kill(_ context.Context, reason string, _ domain.RiskSnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.kills = append(j.kills, reason)
	return nil
}

func (j *fakeJournal) SaveRiskState(context.Context, domain.RiskSnapshot) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.saved++
	return nil
}

func (j *fakeJournal) LoadRiskState(context.Context) (domain.RiskSnapshot, bool, error) {
	return domain.RiskSnapshot{}, false, nil
}

func (j *fakeJournal) Close() error { return nil }

type fakeNotifier struct {
	mu      sync.Mutex
	settles []domain.Settlement
	kills   []string
}

func (n *fakeNotifier) NotifyStart(context.Context, string, float64) error { return nil }
func (n *fakeNotifier) NotifyFill(context.Context, domain.Attempt) error   { return nil }

func (n *fakeNotifier) NotifySettle(_ context.Context, s domain.Settlement, _ domain.RiskSnapshot) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.settles = append(n.settles, s)
	return nil
}

func (n *fakeNotifier) NotifyKill(_ context.Context, reason string, _ domain.RiskSnapshot) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kills = append(n.kills, reason)
	return nil
}

func (n *fakeNotifier) NotifyStop(context.Context, domain.RiskSnapshot) error { return nil }

type fakeSink struct {
	mu          sync.Mutex
	entries     []string
	prices      map[string]int
	settlements []domain.Settlement
}

func (s *fakeSink) OnEntry(att domain.Attempt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, att.ID)
}

func (s *fakeSink) OnPrice(id string, _ float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.prices == nil {
		s.prices = make(map[string]int)
	}
	s.prices[id]++
}

func (s *fakeSink) OnSettlement(st domain.Settlement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlements = append(s.settlements, st)
}

type fakeVenue struct {
	mu         sync.Mutex
	placeCalls int
}

func (v *fakeVenue) PlaceOrder(_ context.Context, req domain.PlaceOrderRequest) (domain.PlacedOrder, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.placeCalls++
	return domain.PlacedOrder{VenueOrderID: "ord-1", Status: "live"}, nil
}

func (v *fakeVenue) GetOrder(_ context.Context, id string) (domain.VenueOrder, error) {
	return domain.VenueOrder{ID: id, Status: "MATCHED", OriginalSize: 7.57, SizeMatched: 7.57, Price: 0.66}, nil
}

func (v *fakeVenue) CancelOrder(context.Context, string) error { return nil }
func (v *fakeVenue) CancelAll(context.Context) error           { return nil }
func (v *fakeVenue) GetBalance(context.Context) (float64, error) {
	return 100, nil
}

type harness struct {
	engine   *Engine
	state    *risk.State
	journal  *fakeJournal
	notifier *fakeNotifier
	sink     *fakeSink
	venue    *fakeVenue
}

func newHarness(t *testing.T, executionEnabled bool) *harness {
	t.Helper()
	log := discardLogger()
	state := risk.NewState(100)
	gate := risk.NewGate(state, risk.DefaultConfig(), log)
	recorder := risk.NewRecorder(state, risk.DefaultConfig(), log)
	tracker := regime.New(regime.Config{})
	journal := &fakeJournal{}
	notifier := &fakeNotifier{}
	sink := &fakeSink{}
	venue := &fakeVenue{}
	exec := executor.New(executor.Config{}, venue, state, journal, notifier, sink, log)

	eng := New(Config{ExecutionEnabled: executionEnabled}, nil, nil,
		gate, recorder, state, exec, tracker, journal, notifier, sink, log)

	return &harness{engine: eng, state: state, journal: journal,
		notifier: notifier, sink: sink, venue: venue}
}

// setSnapshot installs a CORE-zone session snapshot with the given books.
func (h *harness) setSnapshot(up, down domain.BookTop) {
	now := time.Now()
	start := now.Unix() - 200 // 200s elapsed puts us in CORE
	h.engine.mu.Lock()
	h.engine.snap = domain.Snapshot{
		Slug:      "btc-updown-15m-1766430000",
		StartTS:   start,
		EndTS:     start + 900,
		TokenUp:   "tok-up",
		TokenDown: "tok-down",
		Up:        up,
		Down:      down,
	}
	h.engine.snap.UpdateTiming(now)
	h.engine.snap.UpdateEdge()
	h.engine.mu.Unlock()
}

func goodBooks() (domain.BookTop, domain.BookTop) {
	up := domain.BookTop{BestBid: 0.64, BestAsk: 0.66}
	down := domain.BookTop{BestBid: 0.33, BestAsk: 0.35}
	return up, down
}

func TestEdgeRequirementBrackets(t *testing.T) {
	assert.InDelta(t, 0.64, edgeRequirement(0.60), 1e-9)
	assert.InDelta(t, 0.64, edgeRequirement(0.66), 1e-9)
	assert.InDelta(t, 0.67, edgeRequirement(0.67), 1e-9)
	assert.InDelta(t, 0.67, edgeRequirement(0.69), 1e-9)
	assert.InDelta(t, 0.70, edgeRequirement(0.695), 1e-9)
}

func TestMaybeTradeSkipsUntradeableZone(t *testing.T) {
	h := newHarness(t, true)
	up, down := goodBooks()
	h.setSnapshot(up, down)
	h.engine.mu.Lock()
	h.engine.snap.Zone = domain.ZoneDead
	h.engine.mu.Unlock()

	h.engine.maybeTrade(context.Background(), nil)
	assert.Zero(t, h.venue.placeCalls)
	assert.Empty(t, h.journal.signals)
}

func TestMaybeTradeSkipsInvalidBook(t *testing.T) {
	h := newHarness(t, true)
	h.setSnapshot(domain.BookTop{BestAsk: 0.66}, domain.BookTop{})

	h.engine.maybeTrade(context.Background(), nil)
	assert.Zero(t, h.venue.placeCalls)
}

func TestMaybeTradeSkipsWideSpread(t *testing.T) {
	h := newHarness(t, true)
	up := domain.BookTop{BestBid: 0.60, BestAsk: 0.66}
	down := domain.BookTop{BestBid: 0.30, BestAsk: 0.36}
	h.setSnapshot(up, down)

	h.engine.maybeTrade(context.Background(), nil)
	assert.Zero(t, h.venue.placeCalls)
}

func TestMaybeTradeExecutionDisabledLogsSignalOnly(t *testing.T) {
	h := newHarness(t, false)
	up, down := goodBooks()
	h.setSnapshot(up, down)

	h.engine.maybeTrade(context.Background(), nil)

	require.Len(t, h.journal.signals, 1)
	sig := h.journal.signals[0]
	assert.Equal(t, domain.DirectionUp, sig.Direction)
	assert.Equal(t, "tok-up", sig.TokenID)
	assert.InDelta(t, 0.65, sig.Edge, 1e-9)
	assert.Zero(t, h.venue.placeCalls)
	assert.Empty(t, h.engine.pending)
}

func TestMaybeTradeExecutesAndTracksPending(t *testing.T) {
	h := newHarness(t, true)
	up, down := goodBooks()
	h.setSnapshot(up, down)

	h.engine.maybeTrade(context.Background(), nil)

	assert.Equal(t, 1, h.venue.placeCalls)
	require.Len(t, h.engine.pending, 1)
	att := h.engine.pending[0]
	assert.Equal(t, domain.StatusFilled, att.Status)
	assert.Equal(t, domain.DirectionUp, att.Direction)
	assert.Greater(t, h.journal.saved, 0)
	require.Len(t, h.sink.entries, 1)
}

func TestMaybeTradeDeniedSignalNotJournaled(t *testing.T) {
	h := newHarness(t, true)
	// Edge 0.635 sits below the 0.64 bracket requirement.
	up := domain.BookTop{BestBid: 0.62, BestAsk: 0.65}
	down := domain.BookTop{BestBid: 0.33, BestAsk: 0.35}
	h.setSnapshot(up, down)

	h.engine.maybeTrade(context.Background(), nil)
	assert.Empty(t, h.journal.signals)
	assert.Zero(t, h.venue.placeCalls)
}

func TestApplyUpdatesSnapshotAndSamplesPending(t *testing.T) {
	h := newHarness(t, true)
	up, down := goodBooks()
	h.setSnapshot(up, down)

	h.engine.mu.Lock()
	h.engine.pending = []domain.Attempt{{ID: "att-1", Direction: domain.DirectionUp}}
	h.engine.mu.Unlock()

	h.engine.apply(domain.BookUpdate{
		TokenID: "tok-up",
		Book:    domain.BookTop{BestBid: 0.65, BestAsk: 0.67},
	})

	h.engine.mu.Lock()
	snap := h.engine.snap
	h.engine.mu.Unlock()
	assert.InDelta(t, 0.66, snap.Up.Mid, 1e-9)
	assert.InDelta(t, 0.66, snap.Edge, 1e-9)
	assert.True(t, snap.Connected)
	assert.Equal(t, 1, h.sink.prices["att-1"])

	// Updates for unknown tokens are ignored.
	h.engine.apply(domain.BookUpdate{TokenID: "other", Book: domain.BookTop{BestBid: 0.9, BestAsk: 0.91}})
	h.engine.mu.Lock()
	assert.InDelta(t, 0.66, h.engine.snap.Up.Mid, 1e-9)
	h.engine.mu.Unlock()
}

func TestSettleSessionWinnerAndLoser(t *testing.T) {
	h := newHarness(t, true)
	up := domain.BookTop{BestBid: 0.97, BestAsk: 0.99, Mid: 0.98}
	down := domain.BookTop{BestBid: 0.01, BestAsk: 0.03, Mid: 0.02}
	h.setSnapshot(up, down)

	h.engine.mu.Lock()
	h.engine.pending = []domain.Attempt{
		{ID: "att-win", SessionID: "s1", Direction: domain.DirectionUp, Status: domain.StatusFilled, FillPrice: 0.64, FilledSize: 7.81},
		{ID: "att-lose", SessionID: "s1", Direction: domain.DirectionDown, Status: domain.StatusFilled, FillPrice: 0.35, FilledSize: 14.28},
	}
	h.engine.mu.Unlock()

	balanceBefore := h.state.Balance()
	h.engine.settleSession(context.Background())

	require.Len(t, h.journal.settled, 2)
	win := h.journal.settled[0]
	lose := h.journal.settled[1]
	assert.True(t, win.Won)
	assert.InDelta(t, (1-0.64)*7.81, win.PnL, 1e-9)
	assert.False(t, lose.Won)
	assert.InDelta(t, -0.35*14.28, lose.PnL, 1e-9)

	// Winning shares redeem at $1.
	assert.InDelta(t, balanceBefore+7.81, h.state.Balance(), 1e-9)

	assert.Len(t, h.notifier.settles, 2)
	assert.Len(t, h.sink.settlements, 2)
	assert.Empty(t, h.engine.pending)
	assert.Greater(t, h.journal.saved, 0)
	assert.Empty(t, h.journal.kills)
}

func TestSettleSessionTripsKillOnThirdLoss(t *testing.T) {
	h := newHarness(t, true)
	h.setSnapshot(domain.BookTop{BestBid: 0.97, BestAsk: 0.99}, domain.BookTop{BestBid: 0.01, BestAsk: 0.03})

	h.engine.mu.Lock()
	h.engine.pending = []domain.Attempt{
		{ID: "l1", SessionID: "s1", Direction: domain.DirectionDown, Status: domain.StatusFilled, FillPrice: 0.64, FilledSize: 7.81},
		{ID: "l2", SessionID: "s1", Direction: domain.DirectionDown, Status: domain.StatusFilled, FillPrice: 0.64, FilledSize: 7.81},
		{ID: "l3", SessionID: "s1", Direction: domain.DirectionDown, Status: domain.StatusFilled, FillPrice: 0.64, FilledSize: 7.81},
	}
	h.engine.mu.Unlock()

	h.engine.settleSession(context.Background())

	active, reason := h.state.KillSwitch()
	assert.True(t, active)
	assert.Contains(t, reason, "consecutive losses")
	require.Len(t, h.journal.kills, 1)
	require.Len(t, h.notifier.kills, 1)
}

func TestSettleSessionDuplicateAttemptIgnored(t *testing.T) {
	h := newHarness(t, true)
	h.setSnapshot(domain.BookTop{BestBid: 0.97, BestAsk: 0.99}, domain.BookTop{BestBid: 0.01, BestAsk: 0.03})

	h.engine.mu.Lock()
	h.engine.pending = []domain.Attempt{
		{ID: "att-1", SessionID: "s1", Direction: domain.DirectionUp, Status: domain.StatusFilled, FillPrice: 0.64, FilledSize: 7.81},
		{ID: "att-1", SessionID: "s1", Direction: domain.DirectionUp, Status: domain.StatusFilled, FillPrice: 0.64, FilledSize: 7.81},
	}
	h.engine.mu.Unlock()

	h.engine.settleSession(context.Background())

	assert.Len(t, h.journal.settled, 1)
	assert.Len(t, h.notifier.settles, 1)
}

func TestSkipLogsOncePerReason(t *testing.T) {
	h := newHarness(t, true)
	h.engine.skip(domain.ZoneCore, "spread too wide")
	h.engine.skip(domain.ZoneCore, "spread too wide")
	h.engine.skip(domain.ZoneCore, "book invalid")

	h.engine.mu.Lock()
	defer h.engine.mu.Unlock()
	assert.Equal(t, "book invalid", h.engine.lastSkip[domain.ZoneCore])
}
