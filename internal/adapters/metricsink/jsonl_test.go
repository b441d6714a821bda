package metricsink

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgebot/edgebot/internal/domain"
)

func newTestSink(t *testing.T) (*JSONL, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "metrics.jsonl")
	sink, err := New(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })
	return sink, path
}

func readRecords(t *testing.T, path string) []record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec record
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		out = append(out, rec)
	}
	return out
}

func TestSettlementWritesRecord(t *testing.T) {
	sink, path := newTestSink(t)

	att := domain.Attempt{
		ID:          "att-1",
		SessionID:   "btc-updown-15m-1766430000",
		Direction:   domain.DirectionUp,
		Zone:        domain.ZoneCore,
		FillPrice:   0.64,
		FilledSize:  7.81,
		SlippageBps: 0,
		SubmitAt:    time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
	}
	sink.OnEntry(att)
	for _, p := range []float64{0.65, 0.66, 0.70, 0.72} {
		sink.OnPrice("att-1", p)
	}
	sink.OnSettlement(domain.Settlement{
		AttemptID: "att-1",
		SessionID: att.SessionID,
		Won:       true,
		PnL:       2.81,
	})

	recs := readRecords(t, path)
	require.Len(t, recs, 1)
	rec := recs[0]
	assert.Equal(t, "att-1", rec.AttemptID)
	assert.Equal(t, "WIN", rec.Result)
	assert.Equal(t, "CORE", rec.Zone)
	assert.Equal(t, 5, rec.Samples) // entry price plus four ticks
	assert.InDelta(t, 100, rec.TimeInFavorPct, 1e-9)
	assert.InDelta(t, 12.5, rec.PeakFavorPct, 1e-9)
	assert.Zero(t, rec.MaxAdversePct)
	assert.Equal(t, "clean conviction", rec.Reason)
	assert.Equal(t, "2026-01-02T15:04:05Z", rec.EntryTime)
}

func TestSettlementWithoutEntryIsIgnored(t *testing.T) {
	sink, path := newTestSink(t)
	sink.OnSettlement(domain.Settlement{AttemptID: "ghost", Won: false})
	assert.Empty(t, readRecords(t, path))
}

func TestOnPriceForUnknownAttemptIsNoop(t *testing.T) {
	sink, _ := newTestSink(t)
	sink.OnPrice("missing", 0.5)
}

func TestPathStats(t *testing.T) {
	inFavor, peak, adverse := pathStats(0.64, []float64{0.64, 0.66, 0.60, 0.62})
	assert.InDelta(t, 50, inFavor, 1e-9)
	assert.InDelta(t, (0.66-0.64)/0.64*100, peak, 1e-6)
	assert.InDelta(t, (0.60-0.64)/0.64*100, adverse, 1e-6)

	inFavor, peak, adverse = pathStats(0, []float64{0.5})
	assert.Zero(t, inFavor)
	assert.Zero(t, peak)
	assert.Zero(t, adverse)
}

func TestClassifyLabels(t *testing.T) {
	tests := []struct {
		name    string
		won     bool
		inFavor float64
		peak    float64
		want    string
	}{
		{"win mostly ahead", true, 85, 5, "clean conviction"},
		{"win big excursion", true, 50, 30, "strong follow-through"},
		{"loss after leading", false, 60, 15, "late flip"},
		{"loss never ahead", false, 10, 2, "trend built against"},
		{"loss middling", false, 45, 5, "weak follow-through"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.won, tt.inFavor, tt.peak))
		})
	}
}
