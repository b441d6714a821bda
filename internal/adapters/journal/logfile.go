package journal

// logfile.go — append-only lifecycle log for real-money events.
//
// Format: one block per event, a [REAL][CATEGORY] header followed by
// key=value lines and a blank separator. Every write is synced to disk
// before returning; these records must survive a crash.

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/edgebot/edgebot/internal/domain"
)

// Logfile writes the trade lifecycle to a flat file. It satisfies the
// event half of ports.TradeJournal; risk snapshots are persisted by the
// SQLite journal and pass through here as KILL/STOP context only.
type Logfile struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// NewLogfile opens (or creates) the log file, creating the directory
// if needed.
func NewLogfile(path string) (*Logfile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal.NewLogfile: mkdir %q: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal.NewLogfile: open %q: %w", path, err)
	}
	return &Logfile{file: f, now: time.Now}, nil
}

func (l *Logfile) SessionStart(_ context.Context, sessionID string, balance float64) error {
	return l.write("START", map[string]any{
		"session_id": sessionID,
		"balance":    balance,
	})
}

func (l *Logfile) SessionStop(_ context.Context, sessionID string, snap domain.RiskSnapshot) error {
	return l.write("STOP", map[string]any{
		"session_id":    sessionID,
		"final_balance": snap.Balance,
		"final_pnl":     snap.CumulativePnL,
		"total_trades":  snap.TotalTrades,
		"wins":          snap.TotalWins,
		"losses":        snap.TotalLosses,
	})
}

func (l *Logfile) Signal(_ context.Context, sig domain.Signal) error {
	return l.write("SIGNAL", map[string]any{
		"session_id": sig.SessionID,
		"zone":       string(sig.Zone),
		"direction":  string(sig.Direction),
		"edge":       sig.Edge,
		"best_bid":   sig.Bid,
		"best_ask":   sig.Ask,
		"spread":     sig.Spread,
	})
}

func (l *Logfile) Submit(_ context.Context, a domain.Attempt) error {
	return l.write("SUBMIT", map[string]any{
		"attempt_id":     a.ID,
		"order_id":       a.VenueOrderID,
		"side":           string(a.Direction),
		"zone":           string(a.Zone),
		"limit_price":    a.AskPrice,
		"shares":         a.Size,
		"retries":        a.Retries,
		"latency_ms":     a.Latency.Milliseconds(),
		"max_loss_estim": a.AskPrice * a.Size,
	})
}

func (l *Logfile) Filled(_ context.Context, a domain.Attempt) error {
	fillTime := ""
	if a.FillAt != nil {
		fillTime = a.FillAt.Format("2006-01-02 15:04:05.000")
	}
	return l.write("FILLED", map[string]any{
		"attempt_id":   a.ID,
		"order_id":     a.VenueOrderID,
		"fill_price":   a.FillPrice,
		"filled_size":  a.FilledSize,
		"fill_time":    fillTime,
		"slippage_bps": a.SlippageBps,
		"degraded":     a.Degraded,
	})
}

func (l *Logfile) Settled(_ context.Context, s domain.Settlement) error {
	return l.write("SETTLED", map[string]any{
		"attempt_id":         s.AttemptID,
		"session_id":         s.SessionID,
		"won":                s.Won,
		"trade_pnl":          s.PnL,
		"cumulative_pnl":     s.CumulativePnL,
		"consecutive_losses": s.ConsecutiveLosses,
		"reason":             s.Reason,
	})
}

func (l *Logfile) Kill(_ context.Context, reason string, snap domain.RiskSnapshot) error {
	return l.write("KILL", map[string]any{
		"reason":             reason,
		"cumulative_pnl":     snap.CumulativePnL,
		"consecutive_losses": snap.ConsecutiveLosses,
		"degraded_fills":     snap.DegradedFills,
	})
}

// SaveRiskState is a no-op here; durability for snapshots lives in the
// SQLite journal.
func (l *Logfile) SaveRiskState(context.Context, domain.RiskSnapshot) error { return nil }

// LoadRiskState always reports no snapshot.
func (l *Logfile) LoadRiskState(context.Context) (domain.RiskSnapshot, bool, error) {
	return domain.RiskSnapshot{}, false, nil
}

func (l *Logfile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// write appends one block and fsyncs before returning.
func (l *Logfile) write(category string, fields map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "[REAL][%s]\n", category)
	fmt.Fprintf(&b, "time=%s\n", l.now().Format("2006-01-02 15:04:05.000"))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case float64:
			fmt.Fprintf(&b, "%s=%.6f\n", k, v)
		case bool:
			fmt.Fprintf(&b, "%s=%t\n", k, v)
		default:
			fmt.Fprintf(&b, "%s=%v\n", k, v)
		}
	}
	b.WriteString("\n")

	if _, err := l.file.WriteString(b.String()); err != nil {
		return fmt.Errorf("journal.Logfile.write: %s: %w", category, err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("journal.Logfile.write: sync: %w", err)
	}
	return nil
}
