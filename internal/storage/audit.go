// Package storage provides an append-only, sqlite-backed audit trail of
// completed trades, purely for operator reporting (cmd/report). It is not
// consulted by the cycle engine's dedup logic or the risk evaluator — both
// work only off domain.TradeRecord values held in memory, per spec.md §9's
// resolved design note that sync() and history stay authoritative from the
// broker and in-process history, never from a side store.
//
// Grounded on AlejandroRuiz99-polybot's internal/adapters/storage/sqlite.go:
// a single-writer *sql.DB (modernc.org/sqlite, pure Go, no cgo),
// CREATE TABLE IF NOT EXISTS applied at open, and a prune-on-start pass.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tradecore/enginecore/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol        TEXT NOT NULL,
    strategy_name TEXT NOT NULL,
    entry_time    DATETIME NOT NULL,
    exit_time     DATETIME NOT NULL,
    entry_price   REAL NOT NULL,
    exit_price    REAL NOT NULL,
    size          REAL NOT NULL,
    pnl           REAL NOT NULL,
    recorded_at   DATETIME NOT NULL,
    UNIQUE(entry_time, exit_time, symbol, strategy_name)
);

CREATE INDEX IF NOT EXISTS idx_trades_strategy ON trades(strategy_name);
CREATE INDEX IF NOT EXISTS idx_trades_symbol   ON trades(symbol);
CREATE INDEX IF NOT EXISTS idx_trades_exit     ON trades(exit_time DESC);
`

// retentionWindow bounds how long a trade stays in the audit database
// before PruneOld removes it; the in-memory dedup history the cycle engine
// keeps is unaffected (it never reads this store).
const retentionWindow = 180 * 24 * time.Hour

// TradeAuditStore is an append-only record of every TradeRecord the cycle
// engine has appended to its in-memory history, for post-hoc reporting.
type TradeAuditStore struct {
	db *sql.DB
}

// Open opens (or creates) the sqlite database at path and applies the
// schema. Safe to call with path == ":memory:" for tests.
func Open(path string) (*TradeAuditStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}

	s := &TradeAuditStore{db: db}
	s.PruneOld(context.Background(), time.Now().UTC())
	return s, nil
}

// Record appends trade to the audit trail. A trade already present (same
// dedup 4-tuple) is a silent no-op via INSERT OR IGNORE — the store's own
// uniqueness constraint mirrors domain.TradeRecord.Key(), so callers can
// call Record for the whole in-memory history every cycle without
// duplicating rows.
func (s *TradeAuditStore) Record(ctx context.Context, trade domain.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO trades
			(symbol, strategy_name, entry_time, exit_time, entry_price, exit_price, size, pnl, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trade.Symbol, trade.StrategyName,
		trade.EntryTime.UTC(), trade.ExitTime.UTC(),
		trade.EntryPrice, trade.ExitPrice, trade.Size, trade.PnL,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: record trade %s/%s: %w", trade.Symbol, trade.StrategyName, err)
	}
	return nil
}

// RecordAll calls Record for every trade in history, for use right after a
// cycle engine has finished updating its in-memory history.
func (s *TradeAuditStore) RecordAll(ctx context.Context, history []domain.TradeRecord) error {
	for _, t := range history {
		if err := s.Record(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Recent returns every recorded trade with exit_time at or after since,
// ordered by exit_time ascending (matching the risk evaluator's expected
// chronological input order).
func (s *TradeAuditStore) Recent(ctx context.Context, since time.Time) ([]domain.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, strategy_name, entry_time, exit_time, entry_price, exit_price, size, pnl
		FROM trades
		WHERE exit_time >= ?
		ORDER BY exit_time ASC`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("storage: query recent trades: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.TradeRecord
	for rows.Next() {
		var t domain.TradeRecord
		if err := rows.Scan(&t.Symbol, &t.StrategyName, &t.EntryTime, &t.ExitTime, &t.EntryPrice, &t.ExitPrice, &t.Size, &t.PnL); err != nil {
			return nil, fmt.Errorf("storage: scan trade row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PruneOld deletes trades whose exit_time is older than retentionWindow
// relative to now, keeping the audit database bounded.
func (s *TradeAuditStore) PruneOld(ctx context.Context, now time.Time) {
	cutoff := now.Add(-retentionWindow)
	_, _ = s.db.ExecContext(ctx, `DELETE FROM trades WHERE exit_time < ?`, cutoff)
}

// Close releases the underlying database handle.
func (s *TradeAuditStore) Close() error {
	return s.db.Close()
}
