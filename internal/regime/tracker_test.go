package regime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances a tracker's notion of time so the min-interval
// limiter and window trimming behave deterministically.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(cfg Config) (*Tracker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_766_430_000, 0)}
	tr := New(cfg)
	tr.now = clock.now
	return tr, clock
}

// feed records one price per advance of step.
func feed(tr *Tracker, clock *fakeClock, step time.Duration, prices []float64) {
	for _, p := range prices {
		clock.advance(step)
		tr.Record(p)
	}
}

func TestRecordRateLimit(t *testing.T) {
	tr, clock := newTestTracker(Config{})

	clock.advance(time.Second)
	tr.Record(0.60)
	// Burst inside the same second must be dropped.
	clock.advance(100 * time.Millisecond)
	tr.Record(0.61)
	clock.advance(100 * time.Millisecond)
	tr.Record(0.62)

	tr.mu.Lock()
	n := len(tr.points)
	tr.mu.Unlock()
	assert.Equal(t, 1, n)
}

func TestRecordIgnoresInvalidPrice(t *testing.T) {
	tr, clock := newTestTracker(Config{})

	clock.advance(time.Second)
	tr.Record(0)
	clock.advance(time.Second)
	tr.Record(-0.5)

	tr.mu.Lock()
	n := len(tr.points)
	tr.mu.Unlock()
	assert.Equal(t, 0, n)
}

func TestCrossingsBelowMinSamples(t *testing.T) {
	tr, clock := newTestTracker(Config{MinSamples: 10})

	feed(tr, clock, time.Second, []float64{0.60, 0.61, 0.60, 0.61, 0.60})

	assert.Equal(t, 0, tr.Crossings())

	label, crossings := tr.Regime()
	assert.Equal(t, Indeterminate, label)
	assert.Equal(t, 0, crossings)
}

func TestCrossingsAlternating(t *testing.T) {
	tr, clock := newTestTracker(Config{MinSamples: 10, MoveThreshold: 0.001})

	// Each point moves 0.002 from the previous anchor, alternating
	// direction: 11 points, 10 steps, 9 reversals.
	prices := []float64{0.600}
	for i := 1; i <= 10; i++ {
		if i%2 == 1 {
			prices = append(prices, prices[i-1]+0.002)
		} else {
			prices = append(prices, prices[i-1]-0.002)
		}
	}
	feed(tr, clock, time.Second, prices)

	assert.Equal(t, 9, tr.Crossings())

	label, crossings := tr.Regime()
	assert.Equal(t, Choppy, label)
	assert.Equal(t, 9, crossings)
}

func TestCrossingsSubThresholdNoise(t *testing.T) {
	tr, clock := newTestTracker(Config{MinSamples: 10, MoveThreshold: 0.001})

	// Oscillation below the move threshold never counts as a step.
	prices := make([]float64, 0, 12)
	for i := 0; i < 12; i++ {
		if i%2 == 0 {
			prices = append(prices, 0.6000)
		} else {
			prices = append(prices, 0.6005)
		}
	}
	feed(tr, clock, time.Second, prices)

	assert.Equal(t, 0, tr.Crossings())

	label, _ := tr.Regime()
	assert.Equal(t, Stable, label)
}

func TestRegimeMonotonicDrift(t *testing.T) {
	tr, clock := newTestTracker(Config{MinSamples: 10, MoveThreshold: 0.001})

	prices := make([]float64, 0, 12)
	for i := 0; i < 12; i++ {
		prices = append(prices, 0.600+float64(i)*0.002)
	}
	feed(tr, clock, time.Second, prices)

	assert.Equal(t, 0, tr.Crossings())

	label, _ := tr.Regime()
	assert.Equal(t, Stable, label)
}

func TestRegimeNeutralBand(t *testing.T) {
	tr, clock := newTestTracker(Config{MinSamples: 10, MoveThreshold: 0.001, ChoppyMin: 6, StableMax: 2})

	// Up, down, up, down then drift: 3 reversals lands between the bands.
	prices := []float64{0.600, 0.602, 0.600, 0.602, 0.600}
	for i := 0; i < 7; i++ {
		prices = append(prices, 0.600+float64(i+1)*0.002)
	}
	feed(tr, clock, time.Second, prices)

	require.Equal(t, 4, tr.Crossings())

	label, _ := tr.Regime()
	assert.Equal(t, Neutral, label)
}

func TestWindowEviction(t *testing.T) {
	tr, clock := newTestTracker(Config{Window: 5 * time.Minute, MinSamples: 10, MoveThreshold: 0.001})

	// A choppy burst that will age out of the window.
	prices := []float64{0.600}
	for i := 1; i <= 11; i++ {
		if i%2 == 1 {
			prices = append(prices, prices[i-1]+0.002)
		} else {
			prices = append(prices, prices[i-1]-0.002)
		}
	}
	feed(tr, clock, time.Second, prices)
	require.GreaterOrEqual(t, tr.Crossings(), 6)

	// Six minutes later the burst is out of window.
	clock.advance(6 * time.Minute)
	assert.Equal(t, 0, tr.Crossings())

	label, _ := tr.Regime()
	assert.Equal(t, Indeterminate, label)
}

func TestTrendDeadZone(t *testing.T) {
	tr, clock := newTestTracker(Config{Window: 5 * time.Minute, DeadZonePct: 0.05})

	tr.Record(100_000)
	clock.advance(5 * time.Minute)
	tr.Record(100_020) // +0.02%, inside the dead zone

	label, pct := tr.Trend()
	assert.Equal(t, TrendFlat, label)
	assert.InDelta(t, 0.02, pct, 1e-9)
}

func TestTrendRisingFalling(t *testing.T) {
	tr, clock := newTestTracker(Config{Window: 5 * time.Minute, DeadZonePct: 0.05})

	tr.Record(100_000)
	clock.advance(5 * time.Minute)
	tr.Record(100_100) // +0.1%

	label, pct := tr.Trend()
	assert.Equal(t, TrendRising, label)
	assert.InDelta(t, 0.1, pct, 1e-9)

	tr2, clock2 := newTestTracker(Config{Window: 5 * time.Minute, DeadZonePct: 0.05})
	tr2.Record(100_000)
	clock2.advance(5 * time.Minute)
	tr2.Record(99_900) // -0.1%

	label, pct = tr2.Trend()
	assert.Equal(t, TrendFalling, label)
	assert.InDelta(t, -0.1, pct, 1e-9)
}

func TestTrendUnknownWithoutHistory(t *testing.T) {
	tr, clock := newTestTracker(Config{Window: 5 * time.Minute})

	tr.Record(100_000)
	clock.advance(time.Second)
	tr.Record(100_050)

	// Both points are recent; no reference a full window back.
	label, _ := tr.Trend()
	assert.Equal(t, TrendUnknown, label)

	assert.Equal(t, "(5m: N/A)", tr.Tag())
}

func TestClear(t *testing.T) {
	tr, clock := newTestTracker(Config{})

	feed(tr, clock, time.Second, []float64{0.60, 0.61, 0.62})
	tr.Clear()

	tr.mu.Lock()
	n := len(tr.points)
	tr.mu.Unlock()
	assert.Equal(t, 0, n)
}

func TestCapacityBound(t *testing.T) {
	tr, clock := newTestTracker(Config{Capacity: 50})

	for i := 0; i < 120; i++ {
		clock.advance(time.Second)
		tr.Record(0.6 + float64(i)*0.0001)
	}

	tr.mu.Lock()
	n := len(tr.points)
	tr.mu.Unlock()
	assert.Equal(t, 50, n)
}
