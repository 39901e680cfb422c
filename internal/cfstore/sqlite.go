package cfstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cf_tables (
	name       TEXT PRIMARY KEY,
	enabled    INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cf_families (
	table_name TEXT NOT NULL,
	family     TEXT NOT NULL,
	attributes TEXT NOT NULL,
	PRIMARY KEY (table_name, family)
);
CREATE TABLE IF NOT EXISTS cf_cells (
	table_name TEXT NOT NULL,
	row_key    TEXT NOT NULL,
	family     TEXT NOT NULL,
	qualifier  TEXT NOT NULL,
	value      BLOB,
	PRIMARY KEY (table_name, row_key, family, qualifier)
) WITHOUT ROWID;
`

// SQLiteStore implements Store on a single SQLite database.
// Every logical table shares the cf_cells table, keyed by table name.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (or creates) the store database under dir.
func NewSQLiteStore(ctx context.Context, dir string) (*SQLiteStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("cfstore: failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(dir, "tripload.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("cfstore: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // Single writer
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cfstore: failed to create schema: %w", err)
	}

	return &SQLiteStore{db: db, dbPath: dbPath}, nil
}

// tableState returns whether the table exists and is enabled.
func (s *SQLiteStore) tableState(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}, table string) (exists, enabled bool, err error) {
	var en int
	err = q.QueryRowContext(ctx, "SELECT enabled FROM cf_tables WHERE name = ?", table).Scan(&en)
	if err == sql.ErrNoRows {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, en == 1, nil
}

// DisableTable marks the table disabled.
func (s *SQLiteStore) DisableTable(ctx context.Context, table string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE cf_tables SET enabled = 0 WHERE name = ?", table)
	if err != nil {
		return fmt.Errorf("cfstore: disable %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	return nil
}

// DeleteTable removes a disabled table with its families and cells.
func (s *SQLiteStore) DeleteTable(ctx context.Context, table string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	exists, enabled, err := s.tableState(ctx, tx, table)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	if enabled {
		return fmt.Errorf("%w: %s", ErrTableEnabled, table)
	}

	for _, stmt := range []string{
		"DELETE FROM cf_cells WHERE table_name = ?",
		"DELETE FROM cf_families WHERE table_name = ?",
		"DELETE FROM cf_tables WHERE name = ?",
	} {
		if _, err := tx.ExecContext(ctx, stmt, table); err != nil {
			return fmt.Errorf("cfstore: delete %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// CreateTable registers the table and its families.
func (s *SQLiteStore) CreateTable(ctx context.Context, table string, families []FamilyDescriptor) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	exists, _, err := s.tableState(ctx, tx, table)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrTableExists, table)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO cf_tables (name, enabled, created_at) VALUES (?, 1, ?)",
		table, time.Now().UnixNano()); err != nil {
		return fmt.Errorf("cfstore: create %s: %w", table, err)
	}
	for _, fam := range families {
		attrs, err := json.Marshal(fam.Attributes)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO cf_families (table_name, family, attributes) VALUES (?, ?, ?)",
			table, fam.Name, string(attrs)); err != nil {
			return fmt.Errorf("cfstore: create family %s:%s: %w", table, fam.Name, err)
		}
	}
	return tx.Commit()
}

// families returns the declared family set of a table.
func (s *SQLiteStore) families(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, "SELECT family FROM cf_families WHERE table_name = ?", table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fams := make(map[string]bool)
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		fams[f] = true
	}
	return fams, rows.Err()
}

// Apply writes all mutations in a single transaction.
func (s *SQLiteStore) Apply(ctx context.Context, table string, mutations []Mutation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	exists, enabled, err := s.tableState(ctx, tx, table)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	if !enabled {
		return fmt.Errorf("%w: %s", ErrTableDisabled, table)
	}

	declared, err := s.families(ctx, tx, table)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR REPLACE INTO cf_cells (table_name, row_key, family, qualifier, value) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range mutations {
		if err := checkFamilies(declared, m); err != nil {
			return err
		}
		for fam, quals := range m.Cells {
			for qual, val := range quals {
				if _, err := stmt.ExecContext(ctx, table, m.Row, fam, qual, val); err != nil {
					return fmt.Errorf("cfstore: put %s/%s: %w", table, m.Row, err)
				}
			}
		}
	}

	return tx.Commit()
}

// CountRows returns the number of distinct row keys in the table.
func (s *SQLiteStore) CountRows(ctx context.Context, table string) (int64, error) {
	exists, _, err := s.tableState(ctx, s.db, table)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}

	var n int64
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT row_key) FROM cf_cells WHERE table_name = ?", table).Scan(&n)
	return n, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
