// Package state persists reconciler handles so separate invocations of the
// CLI operate on the same load balancer.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Record is the persisted identity and lifecycle state of one reconciler.
type Record struct {
	ID       string
	Name     string
	Provider string
	Region   string
	Profile  string
	Hostname string
	State    string
	// LastOp and LastError describe the pass that left the record Failed.
	LastOp    string
	LastError string
	UpdatedAt time.Time
}

// Store is a SQLite-backed table of Records keyed by reconciler id.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and initializes the
// schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Writers serialize in SQLite anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

var schema = []string{`
	CREATE TABLE IF NOT EXISTS handles (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		provider TEXT NOT NULL,
		region TEXT NOT NULL,
		profile TEXT NOT NULL DEFAULT '',
		hostname TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		last_op TEXT NOT NULL DEFAULT '',
		last_error TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	)`, `
	CREATE TABLE IF NOT EXISTS leases (
		id TEXT PRIMARY KEY,
		owner TEXT NOT NULL,
		pid INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
}

func initSchema(db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}

	// Databases written before last_op/last_error existed.
	for _, col := range []string{"last_op", "last_error"} {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('handles') WHERE name = ?`, col).Scan(&n); err != nil {
			return fmt.Errorf("inspecting handles table: %w", err)
		}
		if n == 0 {
			if _, err := db.Exec(`ALTER TABLE handles ADD COLUMN ` + col + ` TEXT NOT NULL DEFAULT ''`); err != nil {
				return fmt.Errorf("adding column %s: %w", col, err)
			}
		}
	}
	return nil
}

// Save inserts or replaces the record for r.ID.
func (s *Store) Save(ctx context.Context, r Record) error {
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO handles (id, name, provider, region, profile, hostname, state, last_op, last_error, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			provider = excluded.provider,
			region = excluded.region,
			profile = excluded.profile,
			hostname = excluded.hostname,
			state = excluded.state,
			last_op = excluded.last_op,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, r.ID, r.Name, r.Provider, r.Region, r.Profile, r.Hostname, r.State, r.LastOp, r.LastError, r.UpdatedAt.UTC().Unix())
	if err != nil {
		return fmt.Errorf("saving handle %s: %w", r.ID, err)
	}
	return nil
}

// Load returns the record for id and whether it exists.
func (s *Store) Load(ctx context.Context, id string) (Record, bool, error) {
	var r Record
	var updated int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, provider, region, profile, hostname, state, last_op, last_error, updated_at
		FROM handles WHERE id = ?
	`, id).Scan(&r.ID, &r.Name, &r.Provider, &r.Region, &r.Profile, &r.Hostname, &r.State, &r.LastOp, &r.LastError, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("loading handle %s: %w", id, err)
	}
	r.UpdatedAt = time.Unix(updated, 0).UTC()
	return r, true, nil
}

// Delete removes the record for id. Deleting a missing record is not an
// error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM handles WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting handle %s: %w", id, err)
	}
	return nil
}

// List returns every stored record ordered by id.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, provider, region, profile, hostname, state, last_op, last_error, updated_at
		FROM handles ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("listing handles: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var updated int64
		if err := rows.Scan(&r.ID, &r.Name, &r.Provider, &r.Region, &r.Profile, &r.Hostname, &r.State, &r.LastOp, &r.LastError, &updated); err != nil {
			return nil, fmt.Errorf("scanning handle: %w", err)
		}
		r.UpdatedAt = time.Unix(updated, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
