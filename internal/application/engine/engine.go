package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/edgebot/edgebot/internal/domain"
	"github.com/edgebot/edgebot/internal/executor"
	"github.com/edgebot/edgebot/internal/metrics"
	"github.com/edgebot/edgebot/internal/ports"
	"github.com/edgebot/edgebot/internal/regime"
	"github.com/edgebot/edgebot/internal/risk"
)

const (
	defaultSlugPrefix = "btc-updown-15m"
	sessionRetryWait  = 5 * time.Second
)

// MarketSource resolves session metadata for a market slug.
type MarketSource interface {
	EventBySlug(ctx context.Context, slug string) (domain.MarketEvent, error)
}

// Config holds the engine-level knobs. Execution, admission and regime
// parameters live in their own components.
type Config struct {
	SlugPrefix string

	// ExecutionEnabled false runs every gate and logs admitted signals
	// without ever touching the venue.
	ExecutionEnabled bool

	// MaxSpread is the widest favored-side spread still considered a
	// usable quote.
	MaxSpread float64

	// ChoppyEdgeModifier is added to the edge requirement when the
	// regime detector reports a choppy window.
	ChoppyEdgeModifier float64
}

func (c *Config) setDefaults() {
	if c.SlugPrefix == "" {
		c.SlugPrefix = defaultSlugPrefix
	}
	if c.MaxSpread == 0 {
		c.MaxSpread = 0.02
	}
	if c.ChoppyEdgeModifier == 0 {
		c.ChoppyEdgeModifier = 0.03
	}
}

// Engine drives one 15-minute session at a time: discover the market,
// stream its books, admit at most a handful of signals through the gate
// pipeline, execute them, and settle everything at the window boundary.
type Engine struct {
	cfg      Config
	markets  MarketSource
	feed     ports.MarketFeed
	gate     *risk.Gate
	recorder *risk.Recorder
	state    *risk.State
	exec     *executor.Executor
	tracker  *regime.Tracker
	journal  ports.TradeJournal
	notifier ports.Notifier
	sink     ports.MetricsSink
	log      *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	snap     domain.Snapshot
	pending  []domain.Attempt
	lastSkip map[domain.Zone]string
}

func New(
	cfg Config,
	markets MarketSource,
	feed ports.MarketFeed,
	gate *risk.Gate,
	recorder *risk.Recorder,
	state *risk.State,
	exec *executor.Executor,
	tracker *regime.Tracker,
	journal ports.TradeJournal,
	notifier ports.Notifier,
	sink ports.MetricsSink,
	log *slog.Logger,
) *Engine {
	cfg.setDefaults()
	return &Engine{
		cfg:      cfg,
		markets:  markets,
		feed:     feed,
		gate:     gate,
		recorder: recorder,
		state:    state,
		exec:     exec,
		tracker:  tracker,
		journal:  journal,
		notifier: notifier,
		sink:     sink,
		log:      log.With("component", "engine"),
		now:      time.Now,
		lastSkip: make(map[domain.Zone]string),
	}
}

// Run executes sessions until ctx is cancelled. Each session failure is
// retried after a short wait; only cancellation ends the loop.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine started", "execution_enabled", e.cfg.ExecutionEnabled,
		"balance", e.state.Balance())

	for ctx.Err() == nil {
		if err := e.session(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			e.log.Warn("session ended with error", "err", err, "retry_in", sessionRetryWait)
			select {
			case <-ctx.Done():
			case <-time.After(sessionRetryWait):
			}
		}
	}

	e.shutdown()
	return ctx.Err()
}

// session runs one full market window from discovery to settlement.
func (e *Engine) session(ctx context.Context) error {
	slug := domain.CurrentSlug(e.cfg.SlugPrefix, e.now())
	ev, err := e.markets.EventBySlug(ctx, slug)
	if err != nil {
		return fmt.Errorf("engine.session: resolve %s: %w", slug, err)
	}

	startTS := domain.SlugTimestamp(slug)
	e.mu.Lock()
	e.snap = domain.Snapshot{
		Slug:      slug,
		StartTS:   startTS,
		EndTS:     startTS + int64(domain.SessionDuration.Seconds()),
		TokenUp:   ev.TokenUp,
		TokenDown: ev.TokenDown,
	}
	e.snap.UpdateTiming(e.now())
	e.lastSkip = make(map[domain.Zone]string)
	e.mu.Unlock()

	e.gate.NewSession(slug)
	e.tracker.Clear()

	balance := e.state.Balance()
	metrics.SetBalance(balance)
	if err := e.journal.SessionStart(ctx, slug, balance); err != nil {
		e.log.Warn("journal session start failed", "err", err)
	}
	if err := e.notifier.NotifyStart(ctx, slug, balance); err != nil {
		e.log.Warn("notify start failed", "err", err)
	}
	e.log.Info("session started", "slug", slug, "balance", balance)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	updates, err := e.feed.Subscribe(subCtx, []string{ev.TokenUp, ev.TokenDown})
	if err != nil {
		return fmt.Errorf("engine.session: subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return fmt.Errorf("engine.session: feed stream ended")
			}
			e.apply(u)
			if e.expired() {
				e.settleSession(ctx)
				return nil
			}
			e.maybeTrade(ctx, updates)
		}
	}
}

// apply folds one book update into the session snapshot and feeds the
// observational collaborators.
func (e *Engine) apply(u domain.BookUpdate) {
	e.mu.Lock()
	switch u.TokenID {
	case e.snap.TokenUp:
		e.snap.Up = u.Book
	case e.snap.TokenDown:
		e.snap.Down = u.Book
	default:
		e.mu.Unlock()
		return
	}
	e.snap.UpdateTiming(e.now())
	e.snap.UpdateEdge()
	e.snap.Connected = true
	upMid := e.snap.Up.Mid
	samples := make(map[string]float64, len(e.pending))
	for _, att := range e.pending {
		samples[att.ID] = e.midFor(att.Direction)
	}
	e.mu.Unlock()

	if upMid > 0 {
		e.tracker.Record(upMid)
	}
	for id, mid := range samples {
		if mid > 0 {
			e.sink.OnPrice(id, mid)
		}
	}
}

// midFor returns the current mid of one side. Caller holds e.mu.
func (e *Engine) midFor(dir domain.Direction) float64 {
	if dir == domain.DirectionDown {
		return e.snap.Down.Mid
	}
	return e.snap.Up.Mid
}

func (e *Engine) expired() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.Tau <= 0
}

// drain applies any already-queued updates without blocking, so that
// revalidation during an in-flight attempt sees current market state.
func (e *Engine) drain(updates <-chan domain.BookUpdate) {
	for {
		select {
		case u, ok := <-updates:
			if !ok {
				return
			}
			e.apply(u)
		default:
			return
		}
	}
}

func (e *Engine) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap := e.state.Snapshot()
	e.mu.Lock()
	slug := e.snap.Slug
	e.mu.Unlock()

	if err := e.journal.SessionStop(ctx, slug, snap); err != nil {
		e.log.Warn("journal session stop failed", "err", err)
	}
	if err := e.notifier.NotifyStop(ctx, snap); err != nil {
		e.log.Warn("notify stop failed", "err", err)
	}
	e.log.Info("engine stopped", "trades", snap.TotalTrades, "pnl", snap.CumulativePnL)
}
