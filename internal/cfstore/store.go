// Package cfstore provides column-family store abstractions for bulk loading.
// Implementations include HBase (through its REST gateway), plus SQLite and Badger emulations for local
// runs and testing.
package cfstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/arkilian/tripload/internal/config"
)

// Common errors for store operations.
var (
	ErrTableNotFound  = errors.New("table not found")
	ErrTableExists    = errors.New("table already exists")
	ErrTableEnabled   = errors.New("table is enabled")
	ErrTableDisabled  = errors.New("table is disabled")
	ErrUnknownFamily  = errors.New("unknown column family")
	ErrEmptyRowKey    = errors.New("empty row key")
	ErrInvalidBatch   = errors.New("batch size must be positive")
	ErrUnknownBackend = errors.New("unknown store backend")
)

// Cells maps column family -> qualifier -> value.
type Cells map[string]map[string][]byte

// Mutation is a single row write.
type Mutation struct {
	Row   string
	Cells Cells
}

// FamilyDescriptor declares a column family at table creation.
// A nil Attributes map means the store defaults.
type FamilyDescriptor struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Families builds descriptors with default attributes for the given names.
func Families(names ...string) []FamilyDescriptor {
	fams := make([]FamilyDescriptor, len(names))
	for i, n := range names {
		fams[i] = FamilyDescriptor{Name: n}
	}
	return fams
}

// Store abstracts the column-family storage service.
type Store interface {
	// DisableTable takes a table offline so it can be deleted.
	// Returns ErrTableNotFound if the table does not exist.
	DisableTable(ctx context.Context, table string) error

	// DeleteTable drops a disabled table and all of its data.
	// Returns ErrTableNotFound if the table does not exist and
	// ErrTableEnabled if it was not disabled first.
	DeleteTable(ctx context.Context, table string) error

	// CreateTable creates an enabled table with the given families.
	CreateTable(ctx context.Context, table string, families []FamilyDescriptor) error

	// Apply writes all mutations to the table in one round trip.
	// Implementations must not retain the slice after returning.
	Apply(ctx context.Context, table string, mutations []Mutation) error

	// CountRows returns the number of distinct row keys in the table.
	CountRows(ctx context.Context, table string) (int64, error)

	// Close releases the connection.
	Close() error
}

// Open connects to the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendHBase:
		store := NewHBaseStore(cfg.GatewayURL(), cfg.Timeout)
		if err := store.Ping(ctx); err != nil {
			return nil, fmt.Errorf("cfstore: hbase gateway %s: %w", cfg.GatewayURL(), err)
		}
		return store, nil
	case config.BackendSQLite:
		return NewSQLiteStore(ctx, cfg.Path)
	case config.BackendBadger:
		return NewBadgerStore(BadgerOptions{DataDir: cfg.Path, InMemory: cfg.InMemory})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// checkFamilies verifies every family in m is declared.
func checkFamilies(declared map[string]bool, m Mutation) error {
	if m.Row == "" {
		return ErrEmptyRowKey
	}
	for fam := range m.Cells {
		if !declared[fam] {
			return fmt.Errorf("%w: %s", ErrUnknownFamily, fam)
		}
	}
	return nil
}
