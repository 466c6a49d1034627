// Package store persists trades and signal-dedup state in sqlite. The schema
// is managed by embedded golang-migrate migrations, applied on Open.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"botdeck/internal/jsonutil"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	// DBPathEnv overrides the default database location (for testing).
	DBPathEnv = "BOTDECK_DB"
	// DefaultDBBase is the default database path under the user home.
	DefaultDBBase = ".botdeck/botdeck.db"

	// seenKeep is how many dedup hashes are retained per bot.
	seenKeep = 500
)

// TradeStatus is the lifecycle state of a recorded trade.
type TradeStatus string

const (
	StatusPending   TradeStatus = "pending"
	StatusOpen      TradeStatus = "open"
	StatusClosed    TradeStatus = "closed"
	StatusCancelled TradeStatus = "cancelled"
	StatusExpired   TradeStatus = "expired"
)

// Terminal reports whether the status ends the trade's lifecycle.
func (s TradeStatus) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled || s == StatusExpired
}

// Trade is one recorded trade. Entry is the trigger level; Qty is the
// position size in base units, zero for dry runs that never sized.
type Trade struct {
	ID        string
	BotID     string
	Symbol    string
	Side      string
	Entry     float64
	TPs       []float64
	DCAs      []float64
	SL        float64
	Leverage  int
	Timeframe string
	Trader    string
	Score     float64
	Qty       float64
	DryRun    bool
	Status    TradeStatus
	CreatedAt time.Time
	ClosedAt  time.Time // zero unless Status is terminal
}

// Store wraps the sqlite handle.
type Store struct {
	db *sql.DB
}

// DefaultPath returns the database path: BOTDECK_DB if set, otherwise
// ~/.botdeck/botdeck.db.
func DefaultPath() (string, error) {
	if p := os.Getenv(DBPathEnv); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultDBBase), nil
}

// Open opens (creating if needed) the sqlite database at path and applies
// pending migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// now returns UTC truncated to seconds, matching sqlite's resolution.
func now() time.Time { return time.Now().UTC().Truncate(time.Second) }

// Insert records a new trade. A missing ID gets a fresh uuid, a missing
// status defaults to pending, and CreatedAt is stamped when zero.
func (s *Store) Insert(ctx context.Context, t *Trade) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}

	tps, err := json.Marshal(t.TPs)
	if err != nil {
		return fmt.Errorf("encode tps: %w", err)
	}
	dcas, err := json.Marshal(t.DCAs)
	if err != nil {
		return fmt.Errorf("encode dcas: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, bot_id, symbol, side, entry_price, tps, dcas, sl, leverage,
			 timeframe, trader, score, qty, dry_run, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.BotID, t.Symbol, t.Side, t.Entry, string(tps), string(dcas),
		t.SL, t.Leverage, t.Timeframe, t.Trader, t.Score, t.Qty, t.DryRun,
		string(t.Status), t.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.Symbol, err)
	}
	return nil
}

// SetStatus transitions a trade; terminal statuses also stamp closed_at.
func (s *Store) SetStatus(ctx context.Context, id string, status TradeStatus) error {
	var res sql.Result
	var err error
	if status.Terminal() {
		res, err = s.db.ExecContext(ctx,
			`UPDATE trades SET status = ?, closed_at = ? WHERE id = ?`,
			string(status), now(), id)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE trades SET status = ? WHERE id = ?`, string(status), id)
	}
	if err != nil {
		return fmt.Errorf("update trade %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("trade %s not found", id)
	}
	return nil
}

// UpdateLevels replaces the TP/DCA/SL levels on an existing trade. Zero SL
// leaves the stored stop untouched.
func (s *Store) UpdateLevels(ctx context.Context, id string, tps, dcas []float64, sl float64) error {
	tpsJSON, err := json.Marshal(tps)
	if err != nil {
		return fmt.Errorf("encode tps: %w", err)
	}
	dcasJSON, err := json.Marshal(dcas)
	if err != nil {
		return fmt.Errorf("encode dcas: %w", err)
	}

	query := `UPDATE trades SET tps = ?, dcas = ? WHERE id = ?`
	args := []any{string(tpsJSON), string(dcasJSON), id}
	if sl != 0 {
		query = `UPDATE trades SET tps = ?, dcas = ?, sl = ? WHERE id = ?`
		args = []any{string(tpsJSON), string(dcasJSON), sl, id}
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update trade levels %s: %w", id, err)
	}
	return nil
}

const tradeColumns = `id, bot_id, symbol, side, entry_price, tps, dcas, sl,
	leverage, timeframe, trader, score, qty, dry_run, status, created_at, closed_at`

func scanTrade(rows *sql.Rows) (Trade, error) {
	var t Trade
	var tps, dcas, status string
	var closedAt sql.NullTime
	err := rows.Scan(&t.ID, &t.BotID, &t.Symbol, &t.Side, &t.Entry, &tps, &dcas,
		&t.SL, &t.Leverage, &t.Timeframe, &t.Trader, &t.Score, &t.Qty, &t.DryRun,
		&status, &t.CreatedAt, &closedAt)
	if err != nil {
		return Trade{}, err
	}
	t.Status = TradeStatus(status)
	if closedAt.Valid {
		t.ClosedAt = closedAt.Time
	}
	if err := jsonutil.UnmarshalWithContext([]byte(tps), &t.TPs, "decode tps"); err != nil {
		return Trade{}, err
	}
	if err := jsonutil.UnmarshalWithContext([]byte(dcas), &t.DCAs, "decode dcas"); err != nil {
		return Trade{}, err
	}
	return t, nil
}

func (s *Store) queryTrades(ctx context.Context, query string, args ...any) ([]Trade, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ByBot returns the most recent trades for a bot, newest first.
func (s *Store) ByBot(ctx context.Context, botID string, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades
		WHERE bot_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, botID, limit)
}

// Active returns pending and open trades for a bot, oldest first.
func (s *Store) Active(ctx context.Context, botID string) ([]Trade, error) {
	return s.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades
		WHERE bot_id = ? AND status IN ('pending', 'open')
		ORDER BY created_at ASC`, botID)
}

// BySymbol returns active trades for a bot and symbol, used to route signal
// updates to the trade they modify.
func (s *Store) BySymbol(ctx context.Context, botID, symbol string) ([]Trade, error) {
	return s.queryTrades(ctx, `SELECT `+tradeColumns+` FROM trades
		WHERE bot_id = ? AND symbol = ? AND status IN ('pending', 'open')
		ORDER BY created_at ASC`, botID, symbol)
}

// CountActive counts pending and open trades for a bot.
func (s *Store) CountActive(ctx context.Context, botID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE bot_id = ? AND status IN ('pending', 'open')`,
		botID).Scan(&n)
	return n, err
}

// CountSince counts trades created at or after the cutoff, regardless of
// status. Used for the per-day trade cap.
func (s *Store) CountSince(ctx context.Context, botID string, cutoff time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trades WHERE bot_id = ? AND created_at >= ?`,
		botID, cutoff).Scan(&n)
	return n, err
}

// MarkSeen records a signal hash for dedup. Returns true when the hash was
// new. Old hashes beyond the retention cap are pruned.
func (s *Store) MarkSeen(ctx context.Context, botID, hash, summary string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_signals (bot_id, hash, summary, seen_at) VALUES (?, ?, ?, ?)`,
		botID, hash, summary, now())
	if err != nil {
		return false, fmt.Errorf("mark seen: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	_, err = s.db.ExecContext(ctx, `DELETE FROM seen_signals WHERE bot_id = ? AND id NOT IN
		(SELECT id FROM seen_signals WHERE bot_id = ? ORDER BY id DESC LIMIT ?)`,
		botID, botID, seenKeep)
	if err != nil {
		return true, fmt.Errorf("prune seen: %w", err)
	}
	return true, nil
}

// RecentSummaries returns the latest recorded signal summaries for a bot,
// newest first. Used for near-duplicate detection across distinct hashes.
func (s *Store) RecentSummaries(ctx context.Context, botID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT summary FROM seen_signals
		WHERE bot_id = ? AND summary != '' ORDER BY id DESC LIMIT ?`, botID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
