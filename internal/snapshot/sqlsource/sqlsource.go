// Package sqlsource loads warm-up snapshots from a contract_state table in
// SQLite or PostgreSQL.
package sqlsource

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/soroban-registry/statecache/internal/snapshot"
)

// Compile-time check that Source implements snapshot.Source.
var _ snapshot.Source = (*Source)(nil)

// Source reads and writes the contract_state table.
type Source struct {
	db      *sql.DB
	dialect Dialect
	owned   bool
}

// Open connects to the database named by driver and dsn.
func Open(driver, dsn string) (*Source, error) {
	d, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open snapshot db: %w", err)
	}
	if d.Name == SQLite.Name {
		// A single connection keeps in-memory databases and writes consistent.
		db.SetMaxOpenConns(1)
	}
	s := New(db, d)
	s.owned = true
	return s, nil
}

// New wraps an existing database handle. Close will not close db.
func New(db *sql.DB, d Dialect) *Source {
	return &Source{db: db, dialect: d}
}

// Migrate creates the contract_state table and its index if missing.
func (s *Source) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.createTable()); err != nil {
		return fmt.Errorf("create contract_state: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.createIndex()); err != nil {
		return fmt.Errorf("create contract_state index: %w", err)
	}
	return nil
}

// Load returns up to limit entries, most recently updated first.
func (s *Source) Load(ctx context.Context, limit int) ([]snapshot.Entry, error) {
	var args []any
	if limit > 0 {
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.selectRecent(limit), args...)
	if err != nil {
		return nil, fmt.Errorf("query contract_state: %w", err)
	}
	defer rows.Close()

	var entries []snapshot.Entry
	for rows.Next() {
		var e snapshot.Entry
		if err := rows.Scan(&e.ContractID, &e.Key, &e.Value, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan contract_state: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contract_state: %w", err)
	}
	return entries, nil
}

// Save upserts entries in one transaction. A zero UpdatedAt is set to now.
func (s *Source) Save(ctx context.Context, entries ...snapshot.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, s.dialect.upsert())
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, e := range entries {
		ts := e.UpdatedAt
		if ts.IsZero() {
			ts = now
		}
		value := e.Value
		if value == nil {
			value = []byte{}
		}
		if _, err := stmt.ExecContext(ctx, e.ContractID, e.Key, value, ts.UTC()); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", e.ContractID, e.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *Source) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, s.dialect.count()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count contract_state: %w", err)
	}
	return n, nil
}

// Dialect returns the SQL dialect in use.
func (s *Source) Dialect() Dialect {
	return s.dialect
}

// Close closes the database if Open created it.
func (s *Source) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
