// Package ingest prepares the target table and writes trip records into it.
package ingest

import (
	"context"
	"fmt"
	"log"

	"github.com/arkilian/tripload/internal/cfstore"
	"github.com/arkilian/tripload/internal/config"
	lderrors "github.com/arkilian/tripload/internal/errors"
)

// OpenFunc connects to a column-family store.
type OpenFunc func(ctx context.Context, cfg config.StoreConfig) (cfstore.Store, error)

// Initializer drops and recreates the benchmark table before every load.
type Initializer struct {
	cfg   config.StoreConfig
	table string
	open  OpenFunc
}

// NewInitializer creates an initializer for the configured table.
// A nil open uses cfstore.Open.
func NewInitializer(cfg *config.Config, open OpenFunc) *Initializer {
	if open == nil {
		open = cfstore.Open
	}
	return &Initializer{
		cfg:   cfg.Store,
		table: cfg.QualifiedTable(),
		open:  open,
	}
}

// Table returns the namespace-qualified table name.
func (i *Initializer) Table() string { return i.table }

// Prepare opens a connection, discards any existing table, creates a fresh
// one and returns the connection with a batch of the given capacity.
// Failure to drop the old table (typically because it does not exist) is
// logged and ignored. All existing data in the table is lost.
func (i *Initializer) Prepare(ctx context.Context, batchSize int) (cfstore.Store, *cfstore.Batch, error) {
	if batchSize <= 0 {
		return nil, nil, lderrors.NewConfigError(fmt.Sprintf("batch size must be positive, got %d", batchSize))
	}

	store, err := i.open(ctx, i.cfg)
	if err != nil {
		return nil, nil, lderrors.NewStoreError(lderrors.CodeConnectFailed, "connect to "+string(i.cfg.Backend), err)
	}

	if err := i.drop(ctx, store); err != nil {
		log.Printf("WARN: couldn't disable table %s, error: %v", i.table, err)
	}

	if err := store.CreateTable(ctx, i.table, cfstore.Families(i.cfg.Families...)); err != nil {
		store.Close()
		return nil, nil, lderrors.NewStoreError(lderrors.CodeCreateTableFailed, "create "+i.table, err)
	}

	batch, err := cfstore.NewBatch(store, i.table, batchSize)
	if err != nil {
		store.Close()
		return nil, nil, lderrors.NewInternalError("create batch", err)
	}

	return store, batch, nil
}

// drop disables then deletes the table.
func (i *Initializer) drop(ctx context.Context, store cfstore.Store) error {
	if err := store.DisableTable(ctx, i.table); err != nil {
		return err
	}
	return store.DeleteTable(ctx, i.table)
}
