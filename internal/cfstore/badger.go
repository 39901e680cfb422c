package cfstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Key prefixes for BadgerDB storage organization.
const (
	prefixMeta = byte(0x01) // meta:table -> JSON(tableMeta)
	prefixCell = byte(0x02) // cell:table 0x00 row 0x00 family 0x00 qualifier -> value
)

// BadgerOptions configures the embedded Badger store.
type BadgerOptions struct {
	// DataDir is the database directory (ignored when InMemory)
	DataDir string

	// InMemory keeps all data in RAM
	InMemory bool

	// SyncWrites fsyncs every write
	SyncWrites bool
}

type tableMeta struct {
	Enabled  bool               `json:"enabled"`
	Families []FamilyDescriptor `json:"families"`
}

// BadgerStore implements Store on an embedded BadgerDB.
//
// Key Structure:
//   - Tables: 0x01 + table -> JSON(tableMeta)
//   - Cells:  0x02 + table + 0x00 + row + 0x00 + family + 0x00 + qualifier -> value
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens a Badger database with the given options.
func NewBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true).WithDir("").WithValueDir("")
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithLogger(nil)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("cfstore: failed to open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func metaKey(table string) []byte {
	return append([]byte{prefixMeta}, table...)
}

func cellPrefix(table string) []byte {
	k := make([]byte, 0, len(table)+2)
	k = append(k, prefixCell)
	k = append(k, table...)
	return append(k, 0x00)
}

func cellKey(table, row, family, qualifier string) []byte {
	k := cellPrefix(table)
	k = append(k, row...)
	k = append(k, 0x00)
	k = append(k, family...)
	k = append(k, 0x00)
	return append(k, qualifier...)
}

// loadMeta reads the table metadata; a missing table is ErrTableNotFound.
func loadMeta(txn *badger.Txn, table string) (*tableMeta, error) {
	item, err := txn.Get(metaKey(table))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, table)
	}
	if err != nil {
		return nil, err
	}

	var meta tableMeta
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &meta)
	}); err != nil {
		return nil, fmt.Errorf("cfstore: corrupt metadata for %s: %w", table, err)
	}
	return &meta, nil
}

func saveMeta(txn *badger.Txn, table string, meta *tableMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return txn.Set(metaKey(table), data)
}

// DisableTable marks the table disabled.
func (s *BadgerStore) DisableTable(ctx context.Context, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		meta, err := loadMeta(txn, table)
		if err != nil {
			return err
		}
		meta.Enabled = false
		return saveMeta(txn, table, meta)
	})
}

// DeleteTable drops the table's cells and metadata.
func (s *BadgerStore) DeleteTable(ctx context.Context, table string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var meta *tableMeta
	if err := s.db.View(func(txn *badger.Txn) error {
		var err error
		meta, err = loadMeta(txn, table)
		return err
	}); err != nil {
		return err
	}
	if meta.Enabled {
		return fmt.Errorf("%w: %s", ErrTableEnabled, table)
	}

	if err := s.db.DropPrefix(cellPrefix(table)); err != nil {
		return fmt.Errorf("cfstore: drop cells of %s: %w", table, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(metaKey(table))
	})
}

// CreateTable stores enabled metadata for a new table.
func (s *BadgerStore) CreateTable(ctx context.Context, table string, families []FamilyDescriptor) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := loadMeta(txn, table)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrTableExists, table)
		}
		if !errors.Is(err, ErrTableNotFound) {
			return err
		}
		return saveMeta(txn, table, &tableMeta{Enabled: true, Families: families})
	})
}

// Apply writes the mutations through a Badger WriteBatch.
func (s *BadgerStore) Apply(ctx context.Context, table string, mutations []Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var meta *tableMeta
	if err := s.db.View(func(txn *badger.Txn) error {
		var err error
		meta, err = loadMeta(txn, table)
		return err
	}); err != nil {
		return err
	}
	if !meta.Enabled {
		return fmt.Errorf("%w: %s", ErrTableDisabled, table)
	}

	declared := make(map[string]bool, len(meta.Families))
	for _, f := range meta.Families {
		declared[f.Name] = true
	}
	for _, m := range mutations {
		if err := checkFamilies(declared, m); err != nil {
			return err
		}
	}

	wb := s.db.NewWriteBatch()
	for _, m := range mutations {
		for fam, quals := range m.Cells {
			for qual, val := range quals {
				if err := wb.Set(cellKey(table, m.Row, fam, qual), val); err != nil {
					wb.Cancel()
					return fmt.Errorf("cfstore: put %s/%s: %w", table, m.Row, err)
				}
			}
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("cfstore: flush %s: %w", table, err)
	}
	return nil
}

// CountRows counts distinct row keys with a key-only prefix scan.
func (s *BadgerStore) CountRows(ctx context.Context, table string) (int64, error) {
	var count int64
	err := s.db.View(func(txn *badger.Txn) error {
		if _, err := loadMeta(txn, table); err != nil {
			return err
		}

		prefix := cellPrefix(table)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false // Keys only
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var lastRow []byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			rest := it.Item().Key()[len(prefix):]
			row := rest
			if i := bytes.IndexByte(rest, 0x00); i >= 0 {
				row = rest[:i]
			}
			if lastRow == nil || !bytes.Equal(row, lastRow) {
				count++
				lastRow = append(lastRow[:0], row...)
			}
		}
		return nil
	})
	return count, err
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
