package metricsink

// Package metricsink writes one JSON line per settled trade for offline
// pattern analysis. It observes the trade's price path between entry and
// settlement and derives a classification; nothing here ever feeds back
// into trading decisions.

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/edgebot/edgebot/internal/domain"
)

// record is the flat per-trade document.
type record struct {
	AttemptID   string  `json:"attempt_id"`
	SessionID   string  `json:"session_id"`
	EntryTime   string  `json:"entry_time"`
	Direction   string  `json:"direction"`
	Zone        string  `json:"zone"`
	EntryPrice  float64 `json:"entry_price"`
	SlippageBps float64 `json:"slippage_bps"`
	Degraded    bool    `json:"degraded"`

	Result string  `json:"result"`
	PnL    float64 `json:"pnl"`

	Samples        int     `json:"samples"`
	TimeInFavorPct float64 `json:"time_in_favor_pct"`
	PeakFavorPct   float64 `json:"peak_favorable_pct"`
	MaxAdversePct  float64 `json:"max_adverse_pct"`
	Reason         string  `json:"reason"`
}

type openTrade struct {
	attempt domain.Attempt
	prices  []float64
}

// JSONL implements ports.MetricsSink with an append-only .jsonl file.
type JSONL struct {
	mu   sync.Mutex
	file *os.File
	open map[string]*openTrade
	log  *slog.Logger
}

// New opens (or creates) the metrics file.
func New(path string, log *slog.Logger) (*JSONL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("metricsink.New: mkdir %q: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("metricsink.New: open %q: %w", path, err)
	}
	return &JSONL{
		file: f,
		open: make(map[string]*openTrade),
		log:  log.With("component", "metricsink"),
	}, nil
}

func (j *JSONL) OnEntry(a domain.Attempt) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.open[a.ID] = &openTrade{attempt: a, prices: []float64{a.FillPrice}}
}

func (j *JSONL) OnPrice(attemptID string, price float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if t, ok := j.open[attemptID]; ok {
		t.prices = append(t.prices, price)
	}
}

func (j *JSONL) OnSettlement(s domain.Settlement) {
	j.mu.Lock()
	t, ok := j.open[s.AttemptID]
	if ok {
		delete(j.open, s.AttemptID)
	}
	j.mu.Unlock()
	if !ok {
		return
	}

	inFavor, peak, adverse := pathStats(t.attempt.FillPrice, t.prices)

	result := "LOSS"
	if s.Won {
		result = "WIN"
	}

	rec := record{
		AttemptID:      s.AttemptID,
		SessionID:      s.SessionID,
		EntryTime:      t.attempt.SubmitAt.UTC().Format(time.RFC3339),
		Direction:      string(t.attempt.Direction),
		Zone:           string(t.attempt.Zone),
		EntryPrice:     t.attempt.FillPrice,
		SlippageBps:    t.attempt.SlippageBps,
		Degraded:       t.attempt.Degraded,
		Result:         result,
		PnL:            s.PnL,
		Samples:        len(t.prices),
		TimeInFavorPct: inFavor,
		PeakFavorPct:   peak,
		MaxAdversePct:  adverse,
		Reason:         classify(s.Won, inFavor, peak),
	}

	line, err := json.Marshal(rec)
	if err != nil {
		j.log.Error("marshal metrics record", "attempt_id", s.AttemptID, "error", err)
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.file.Write(append(line, '\n')); err != nil {
		j.log.Error("write metrics record", "attempt_id", s.AttemptID, "error", err)
	}
}

// Close releases the file.
func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// pathStats summarizes the price path relative to entry: percent of
// samples at or above entry, peak favorable move and max adverse move,
// both as percent of entry price.
func pathStats(entry float64, prices []float64) (inFavorPct, peakPct, adversePct float64) {
	if entry <= 0 || len(prices) == 0 {
		return 0, 0, 0
	}
	favor := 0
	for _, p := range prices {
		if p >= entry {
			favor++
		}
		move := (p - entry) / entry * 100
		if move > peakPct {
			peakPct = move
		}
		if move < adversePct {
			adversePct = move
		}
	}
	return float64(favor) / float64(len(prices)) * 100, peakPct, adversePct
}

// classify derives an observational reason label from the path shape.
func classify(won bool, inFavorPct, peakPct float64) string {
	if won {
		if inFavorPct >= 70 {
			return "clean conviction"
		}
		if peakPct >= 25 {
			return "strong follow-through"
		}
		return "clean conviction"
	}
	switch {
	case inFavorPct >= 55 && peakPct >= 10:
		return "late flip"
	case inFavorPct < 35 && peakPct < 8:
		return "trend built against"
	default:
		return "weak follow-through"
	}
}
