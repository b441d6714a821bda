package journal

// sqlite.go — structured persistence for attempts, settlements and the
// risk snapshot. The snapshot table holds a single row that is replaced
// on every save, so a restart recovers exactly the last known state and
// a latched kill-switch survives the process.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/edgebot/edgebot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS attempts (
    id            TEXT PRIMARY KEY,
    venue_order_id TEXT,
    session_id    TEXT NOT NULL,
    direction     TEXT NOT NULL,
    zone          TEXT NOT NULL,
    ask_price     REAL NOT NULL,
    size          REAL NOT NULL,
    filled_size   REAL NOT NULL DEFAULT 0,
    fill_price    REAL NOT NULL DEFAULT 0,
    slippage_bps  REAL NOT NULL DEFAULT 0,
    status        TEXT NOT NULL,
    degraded      INTEGER NOT NULL DEFAULT 0,
    retries       INTEGER NOT NULL DEFAULT 0,
    submit_at     DATETIME,
    fill_at       DATETIME,
    latency_ms    INTEGER NOT NULL DEFAULT 0,
    error         TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS settlements (
    attempt_id         TEXT PRIMARY KEY,
    session_id         TEXT NOT NULL,
    direction          TEXT NOT NULL,
    won                INTEGER NOT NULL,
    pnl                REAL NOT NULL,
    cumulative_pnl     REAL NOT NULL,
    consecutive_losses INTEGER NOT NULL,
    reason             TEXT NOT NULL DEFAULT '',
    settled_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS risk_state (
    id                 INTEGER PRIMARY KEY CHECK (id = 1),
    balance            REAL NOT NULL,
    cumulative_pnl     REAL NOT NULL,
    consecutive_losses INTEGER NOT NULL,
    degraded_fills     INTEGER NOT NULL,
    kill_switch        INTEGER NOT NULL,
    kill_reason        TEXT NOT NULL DEFAULT '',
    total_trades       INTEGER NOT NULL,
    total_wins         INTEGER NOT NULL,
    total_losses       INTEGER NOT NULL,
    last_trade_at      DATETIME,
    session_id         TEXT NOT NULL DEFAULT '',
    updated_at         DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
    session_id TEXT PRIMARY KEY,
    started_at DATETIME NOT NULL,
    stopped_at DATETIME,
    start_balance REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_attempts_session    ON attempts(session_id);
CREATE INDEX IF NOT EXISTS idx_settlements_session ON settlements(session_id);
`

// SQLite persists the trade lifecycle in a local database. Implements
// ports.TradeJournal.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (or creates) the database and applies the schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal.NewSQLite: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal.NewSQLite: apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) SessionStart(ctx context.Context, sessionID string, balance float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, started_at, start_balance)
		VALUES (?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING`,
		sessionID, time.Now().UTC(), balance)
	if err != nil {
		return fmt.Errorf("journal.SQLite.SessionStart: %w", err)
	}
	return nil
}

func (s *SQLite) SessionStop(ctx context.Context, sessionID string, snap domain.RiskSnapshot) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET stopped_at = ? WHERE session_id = ?`,
		time.Now().UTC(), sessionID); err != nil {
		return fmt.Errorf("journal.SQLite.SessionStop: %w", err)
	}
	return s.SaveRiskState(ctx, snap)
}

// Signal events live only in the flat log; nothing structured to keep.
func (s *SQLite) Signal(context.Context, domain.Signal) error { return nil }

func (s *SQLite) Submit(ctx context.Context, a domain.Attempt) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts
			(id, venue_order_id, session_id, direction, zone, ask_price, size,
			 status, retries, submit_at, latency_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			venue_order_id = excluded.venue_order_id,
			ask_price      = excluded.ask_price,
			size           = excluded.size,
			status         = excluded.status,
			retries        = excluded.retries,
			latency_ms     = excluded.latency_ms`,
		a.ID, a.VenueOrderID, a.SessionID, string(a.Direction), string(a.Zone),
		a.AskPrice, a.Size, string(a.Status), a.Retries, a.SubmitAt.UTC(),
		a.Latency.Milliseconds(), a.Error)
	if err != nil {
		return fmt.Errorf("journal.SQLite.Submit: %w", err)
	}
	return nil
}

func (s *SQLite) Filled(ctx context.Context, a domain.Attempt) error {
	var fillAt any
	if a.FillAt != nil {
		fillAt = a.FillAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE attempts SET
			filled_size  = ?,
			fill_price   = ?,
			slippage_bps = ?,
			status       = ?,
			degraded     = ?,
			retries      = ?,
			fill_at      = ?,
			error        = ?
		WHERE id = ?`,
		a.FilledSize, a.FillPrice, a.SlippageBps, string(a.Status),
		boolToInt(a.Degraded), a.Retries, fillAt, a.Error, a.ID)
	if err != nil {
		return fmt.Errorf("journal.SQLite.Filled: %w", err)
	}
	return nil
}

func (s *SQLite) Settled(ctx context.Context, st domain.Settlement) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settlements
			(attempt_id, session_id, direction, won, pnl, cumulative_pnl,
			 consecutive_losses, reason, settled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(attempt_id) DO NOTHING`,
		st.AttemptID, st.SessionID, string(st.Direction), boolToInt(st.Won),
		st.PnL, st.CumulativePnL, st.ConsecutiveLosses, st.Reason,
		time.Now().UTC())
	if err != nil {
		return fmt.Errorf("journal.SQLite.Settled: %w", err)
	}
	return nil
}

// Kill persists the snapshot that accompanied the activation; the latch
// itself lives inside it.
func (s *SQLite) Kill(ctx context.Context, _ string, snap domain.RiskSnapshot) error {
	return s.SaveRiskState(ctx, snap)
}

func (s *SQLite) SaveRiskState(ctx context.Context, snap domain.RiskSnapshot) error {
	var lastTrade any
	if !snap.LastTradeAt.IsZero() {
		lastTrade = snap.LastTradeAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_state
			(id, balance, cumulative_pnl, consecutive_losses, degraded_fills,
			 kill_switch, kill_reason, total_trades, total_wins, total_losses,
			 last_trade_at, session_id, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			balance            = excluded.balance,
			cumulative_pnl     = excluded.cumulative_pnl,
			consecutive_losses = excluded.consecutive_losses,
			degraded_fills     = excluded.degraded_fills,
			kill_switch        = excluded.kill_switch,
			kill_reason        = excluded.kill_reason,
			total_trades       = excluded.total_trades,
			total_wins         = excluded.total_wins,
			total_losses       = excluded.total_losses,
			last_trade_at      = excluded.last_trade_at,
			session_id         = excluded.session_id,
			updated_at         = excluded.updated_at`,
		snap.Balance, snap.CumulativePnL, snap.ConsecutiveLosses,
		snap.DegradedFills, boolToInt(snap.KillSwitch), snap.KillReason,
		snap.TotalTrades, snap.TotalWins, snap.TotalLosses, lastTrade,
		snap.SessionID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("journal.SQLite.SaveRiskState: %w", err)
	}
	return nil
}

func (s *SQLite) LoadRiskState(ctx context.Context) (domain.RiskSnapshot, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT balance, cumulative_pnl, consecutive_losses, degraded_fills,
		       kill_switch, kill_reason, total_trades, total_wins,
		       total_losses, last_trade_at, session_id, updated_at
		FROM risk_state WHERE id = 1`)

	var snap domain.RiskSnapshot
	var kill int
	var lastTrade sql.NullTime
	err := row.Scan(&snap.Balance, &snap.CumulativePnL, &snap.ConsecutiveLosses,
		&snap.DegradedFills, &kill, &snap.KillReason, &snap.TotalTrades,
		&snap.TotalWins, &snap.TotalLosses, &lastTrade, &snap.SessionID,
		&snap.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.RiskSnapshot{}, false, nil
	}
	if err != nil {
		return domain.RiskSnapshot{}, false, fmt.Errorf("journal.SQLite.LoadRiskState: %w", err)
	}
	snap.KillSwitch = kill != 0
	if lastTrade.Valid {
		snap.LastTradeAt = lastTrade.Time
	}
	return snap, true, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
