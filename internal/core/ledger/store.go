// Package ledger is the durable, insert-only record of every execution
// attempt on every venue.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charleschow/trade-bridge/internal/events"
	"github.com/charleschow/trade-bridge/internal/telemetry"
)

// baseColumns is the original trades layout; migrations may only append.
const baseColumns = `
	timestamp      TEXT NOT NULL,
	venue          TEXT NOT NULL,
	symbol         TEXT NOT NULL,
	action         TEXT NOT NULL,
	volume         REAL NOT NULL,
	status         TEXT NOT NULL,
	latency_ms     REAL,
	details        TEXT`

// migrations are additive, nullable columns, applied in order.
var migrations = []struct{ name, typ string }{
	{"expected_price", "REAL"},
	{"executed_price", "REAL"},
	{"slippage", "REAL"},
	{"signal_id", "TEXT"},
	{"state", "TEXT"},
	{"native_order_id", "TEXT"},
	{"attempts", "INTEGER"},
}

var insertColumns = []string{
	"timestamp", "venue", "symbol", "action", "volume", "status", "latency_ms",
	"expected_price", "executed_price", "slippage", "details",
	"signal_id", "state", "native_order_id", "attempts",
}

// Entry is one ledger row as read back.
type Entry struct {
	ID            int64
	Timestamp     time.Time
	Venue         string
	Symbol        string
	Action        string
	Volume        float64
	Status        string
	LatencyMs     float64
	ExpectedPrice float64
	ExecutedPrice float64
	Slippage      float64
	Details       string
	SignalID      string
	State         string
	NativeOrderID string
	Attempts      int
}

type Store struct {
	db      *sql.DB
	dialect dialect
	insert  string
	timeout time.Duration
}

// Open connects to dsn (a SQLite path or a postgres:// URL), creates the
// trades table if needed and applies pending column migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	d := dialectFor(dsn)
	source := dsn
	if d.name == "sqlite" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create ledger dir: %w", err)
			}
		}
		source = dsn + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open(d.driver, source)
	if err != nil {
		return nil, fmt.Errorf("open %s ledger: %w", d.name, err)
	}
	if d.name == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s ledger: %w", d.name, err)
	}

	s := &Store{
		db:      db,
		dialect: d,
		insert: fmt.Sprintf(`INSERT INTO trades (%s) VALUES (%s)`,
			strings.Join(insertColumns, ", "), d.placeholders(len(insertColumns))),
		timeout: 2 * time.Second,
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.logOpened(ctx)
	return s, nil
}

func (s *Store) logOpened(ctx context.Context) {
	var rows int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`).Scan(&rows); err != nil {
		telemetry.Warnf("ledger: count rows on %s backend: %v", s.dialect.name, err)
		return
	}
	telemetry.Infof("ledger: opened %s backend rows=%d", s.dialect.name, rows)
}

func (s *Store) migrate(ctx context.Context) error {
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS trades (\n\t%s,%s\n)", s.dialect.idColumn, baseColumns)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init ledger schema: %w", err)
	}

	existing, err := s.dialect.columns(ctx, s.db)
	if err != nil {
		return fmt.Errorf("read ledger columns: %w", err)
	}
	for _, m := range migrations {
		if existing[m.name] {
			continue
		}
		telemetry.Infof("ledger: migrating, adding column %s %s", m.name, m.typ)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE trades ADD COLUMN %s %s`, m.name, m.typ)); err != nil {
			return fmt.Errorf("add column %s: %w", m.name, err)
		}
	}
	return nil
}

// Append writes one row. Failures are logged and counted, never returned:
// a ledger outage must not block trading.
func (s *Store) Append(ctx context.Context, r events.ExecutionResult) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	at := r.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.insert,
		at.UTC().Format(time.RFC3339Nano),
		r.Venue,
		r.Symbol,
		string(r.Action),
		r.Volume,
		string(r.Status),
		r.LatencyMs,
		r.ExpectedPrice,
		r.ExecutedPrice,
		r.Slippage,
		r.Detail,
		nullable(r.SignalID),
		nullable(string(r.State)),
		nullable(r.NativeOrderID),
		r.Attempts,
	)
	if err != nil {
		telemetry.Metrics.LedgerWriteErrors.Inc()
		telemetry.Errorf("ledger: append %s %s %s %s failed: %v", r.Venue, r.Action, r.Symbol, r.Status, err)
	}
}

// Subscribe appends every execution result published on bus.
func (s *Store) Subscribe(bus *events.Bus) {
	bus.Subscribe(events.EventExecution, func(e events.Event) error {
		r, ok := e.Payload.(events.ExecutionResult)
		if !ok {
			return nil
		}
		s.Append(context.Background(), r)
		return nil
	})
}

// Filter narrows Query. Zero fields match everything.
type Filter struct {
	Venue    string
	Status   string
	SignalID string
	Limit    int
}

// Recent returns up to n rows, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	return s.Query(ctx, Filter{Limit: n})
}

// Query returns rows matching f, newest first.
func (s *Store) Query(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		where = append(where, col+" = "+s.dialect.placeholder(len(args)))
	}
	add("venue", f.Venue)
	add("status", f.Status)
	add("signal_id", f.SignalID)

	q := `SELECT id, timestamp, venue, symbol, action, volume, status,
		COALESCE(latency_ms, 0), COALESCE(expected_price, 0), COALESCE(executed_price, 0),
		COALESCE(slippage, 0), COALESCE(details, ''), COALESCE(signal_id, ''),
		COALESCE(state, ''), COALESCE(native_order_id, ''), COALESCE(attempts, 0)
		FROM trades`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += " LIMIT " + s.dialect.placeholder(len(args))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			ts string
		)
		if err := rows.Scan(&e.ID, &ts, &e.Venue, &e.Symbol, &e.Action, &e.Volume, &e.Status,
			&e.LatencyMs, &e.ExpectedPrice, &e.ExecutedPrice, &e.Slippage, &e.Details,
			&e.SignalID, &e.State, &e.NativeOrderID, &e.Attempts); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
