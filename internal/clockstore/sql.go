package clockstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dreamware/replset/internal/cluster"
)

//go:embed schema.sql
var schemaSQL string

// SQLStore is a Store backed by a SQLite database. WAL mode keeps reads from
// the engine cheap while the write path bumps clocks.
type SQLStore struct {
	db *sql.DB
}

// Open creates or opens the clock database at path and applies the schema.
func Open(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open clock db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect clock db: %w", err)
	}

	// SQLite allows a single writer; keep the pool to one connection so
	// concurrent bumps queue instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Bump increments the clock for wallet, inserting the row at clock 0 on the
// first write, and returns the new value.
func (s *SQLStore) Bump(ctx context.Context, wallet string) (int64, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO clock_records (wallet, clock) VALUES (?, 0)
		ON CONFLICT(wallet) DO UPDATE SET
			clock = clock + 1,
			updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
		RETURNING clock`, wallet)
	var clock int64
	if err := row.Scan(&clock); err != nil {
		return 0, fmt.Errorf("bump clock for %s: %w", wallet, err)
	}
	return clock, nil
}

// Clock implements Store.
func (s *SQLStore) Clock(ctx context.Context, wallet string) (int64, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT clock FROM clock_records WHERE wallet = ?`, wallet)
	var clock int64
	switch err := row.Scan(&clock); err {
	case nil:
		return clock, nil
	case sql.ErrNoRows:
		return cluster.ClockNone, nil
	default:
		return 0, fmt.Errorf("read clock for %s: %w", wallet, err)
	}
}

// Clocks implements Store.
func (s *SQLStore) Clocks(ctx context.Context, wallets []string) (map[string]int64, error) {
	out := make(map[string]int64, len(wallets))
	if len(wallets) == 0 {
		return out, nil
	}
	for _, w := range wallets {
		out[w] = cluster.ClockNone
	}

	placeholders := strings.TrimRight(strings.Repeat("?,", len(wallets)), ",")
	args := make([]any, len(wallets))
	for i, w := range wallets {
		args[i] = w
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT wallet, clock FROM clock_records WHERE wallet IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("read clocks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var wallet string
		var clock int64
		if err := rows.Scan(&wallet, &clock); err != nil {
			return nil, fmt.Errorf("scan clock row: %w", err)
		}
		out[wallet] = clock
	}
	return out, rows.Err()
}
