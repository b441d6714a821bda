package regime

// Package regime tracks the favored token's mid price and classifies the
// trailing window as stable, neutral or choppy by counting directional
// reversals. The engine uses the classification to tighten the edge gate;
// it never feeds back into settlement.

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Label is the coarse market regime over the trailing window.
type Label string

const (
	Choppy        Label = "CHOPPY"
	Stable        Label = "STABLE"
	Neutral       Label = "NEUTRAL"
	Indeterminate Label = "N/A"
)

// TrendLabel is the coarse price drift over the trailing window.
type TrendLabel string

const (
	TrendRising  TrendLabel = "RISING"
	TrendFalling TrendLabel = "FALLING"
	TrendFlat    TrendLabel = "FLAT"
	TrendUnknown TrendLabel = "N/A"
)

// Config tunes the tracker. Zero values fall back to defaults.
type Config struct {
	Window        time.Duration // trailing window for crossings/trend
	MinInterval   time.Duration // min spacing between accepted observations
	MoveThreshold float64       // absolute move that counts as a step
	MinSamples    int           // below this Crossings degrades to 0
	ChoppyMin     int           // crossings >= ChoppyMin → choppy
	StableMax     int           // crossings <= StableMax → stable
	DeadZonePct   float64       // trend dead zone, in percent
	Capacity      int           // max buffered observations
}

func (c *Config) setDefaults() {
	if c.Window <= 0 {
		c.Window = 5 * time.Minute
	}
	if c.MinInterval <= 0 {
		c.MinInterval = time.Second
	}
	if c.MoveThreshold <= 0 {
		c.MoveThreshold = 0.001
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 10
	}
	if c.ChoppyMin <= 0 {
		c.ChoppyMin = 6
	}
	if c.StableMax <= 0 {
		c.StableMax = 2
	}
	if c.DeadZonePct <= 0 {
		c.DeadZonePct = 0.05
	}
	if c.Capacity <= 0 {
		c.Capacity = 600
	}
}

type point struct {
	at    time.Time
	price float64
}

// Tracker owns a fixed-capacity, time-ordered buffer of mid-price
// observations. Only derived values leave the package.
type Tracker struct {
	cfg     Config
	limiter *rate.Limiter
	now     func() time.Time

	mu     sync.Mutex
	points []point
}

// New creates a Tracker with the given config.
func New(cfg Config) *Tracker {
	cfg.setDefaults()
	return &Tracker{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		now:     time.Now,
	}
}

// Record accepts a new observation. Non-positive prices and observations
// arriving faster than MinInterval are silently dropped; upstream update
// frequency must not grow the buffer.
func (t *Tracker) Record(price float64) {
	if price <= 0 {
		return
	}
	now := t.now()
	if !t.limiter.AllowN(now, 1) {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.points = append(t.points, point{at: now, price: price})
	if len(t.points) > t.cfg.Capacity {
		t.points = t.points[len(t.points)-t.cfg.Capacity:]
	}
}

// Crossings counts directional reversals in the trailing window. Each
// observation deviating from the current anchor by at least the move
// threshold is a step; consecutive steps in opposite directions count as
// one crossing. Returns 0 with fewer than MinSamples in-window points.
func (t *Tracker) Crossings() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.crossingsLocked(t.inWindow(t.now()))
}

func (t *Tracker) crossingsLocked(window []point) int {
	if len(window) < t.cfg.MinSamples {
		return 0
	}

	anchor := window[0].price
	lastDir := 0 // +1 up, -1 down, 0 unknown
	crossings := 0

	for _, p := range window[1:] {
		move := p.price - anchor
		if move >= t.cfg.MoveThreshold || -move >= t.cfg.MoveThreshold {
			dir := 1
			if move < 0 {
				dir = -1
			}
			if lastDir != 0 && dir != lastDir {
				crossings++
			}
			lastDir = dir
			anchor = p.price
		}
	}
	return crossings
}

// Regime maps the crossing count to a label. With too few samples the
// window is indeterminate rather than guessed.
func (t *Tracker) Regime() (Label, int) {
	t.mu.Lock()
	window := t.inWindow(t.now())
	if len(window) < t.cfg.MinSamples {
		t.mu.Unlock()
		return Indeterminate, 0
	}
	crossings := t.crossingsLocked(window)
	t.mu.Unlock()
	switch {
	case crossings >= t.cfg.ChoppyMin:
		return Choppy, crossings
	case crossings <= t.cfg.StableMax:
		return Stable, crossings
	default:
		return Neutral, crossings
	}
}

// Trend reports the percent change over the trailing window with a dead
// zone around zero.
func (t *Tracker) Trend() (TrendLabel, float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.points) < 2 {
		return TrendUnknown, 0
	}

	now := t.now()
	target := now.Add(-t.cfg.Window)

	// Last observation at or before the window start, if any.
	var ref float64
	for _, p := range t.points {
		if p.at.After(target) {
			break
		}
		ref = p.price
	}
	if ref == 0 {
		oldest := t.points[0]
		if now.Sub(oldest.at) < t.cfg.Window {
			return TrendUnknown, 0
		}
		ref = oldest.price
	}

	current := t.points[len(t.points)-1].price
	pct := (current - ref) / ref * 100

	switch {
	case pct >= t.cfg.DeadZonePct:
		return TrendRising, pct
	case pct <= -t.cfg.DeadZonePct:
		return TrendFalling, pct
	default:
		return TrendFlat, pct
	}
}

// Tag formats the trend for notification context, e.g. "(5m: RISING +0.18%)".
func (t *Tracker) Tag() string {
	label, pct := t.Trend()
	if label == TrendUnknown {
		return "(5m: N/A)"
	}
	return fmt.Sprintf("(5m: %s %+.2f%%)", label, pct)
}

// Clear drops the buffer, e.g. on session rollover when the tracked
// token changes.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.points = nil
}

// inWindow returns the observations inside the trailing window.
// Caller holds t.mu.
func (t *Tracker) inWindow(now time.Time) []point {
	cutoff := now.Add(-t.cfg.Window)
	for i, p := range t.points {
		if !p.at.Before(cutoff) {
			return t.points[i:]
		}
	}
	return nil
}
