// Package badgerstore provides an embedded complaint.Store on BadgerDB, for
// single-host deployments that want persistence without a database server.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/MrWong99/voxdesk/internal/complaint"
)

// Compile-time interface check.
var _ complaint.Store = (*Store)(nil)

// keyPrefix namespaces complaint keys inside the database.
const keyPrefix = "complaint:"

// Options configures [Open].
type Options struct {
	// Dir is the directory for BadgerDB data files. Required unless InMemory.
	Dir string

	// InMemory runs BadgerDB without disk persistence.
	InMemory bool

	// Logger receives badger's internal log output at debug level.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// Store is a [complaint.Store] backed by BadgerDB.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the database described by opts.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badgerstore: Dir is required for on-disk mode")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(slogAdapter{log: logger})
	if opts.InMemory {
		dbOpts = dbOpts.WithDir("").WithValueDir("").WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	return &Store{db: db}, nil
}

func key(name string) []byte {
	return []byte(keyPrefix + name)
}

// Exists implements [complaint.Store.Exists].
func (s *Store) Exists(_ context.Context, name string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key(name))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("badgerstore: exists: %w", err)
	}
	return true, nil
}

// Put implements [complaint.Store.Put].
func (s *Store) Put(_ context.Context, name, address string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(name), []byte(address))
	})
	if err != nil {
		return fmt.Errorf("badgerstore: put: %w", err)
	}
	return nil
}

// Address implements [complaint.Store.Address].
func (s *Store) Address(_ context.Context, name string) (string, error) {
	var val []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(name))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", complaint.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("badgerstore: address: %w", err)
	}
	return string(val), nil
}

// Ping implements [complaint.Store.Ping].
func (s *Store) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badgerstore: database closed")
	}
	return nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// slogAdapter routes badger's printf-style logging into slog. Badger is
// chatty at info level, so everything below warning is demoted to debug.
type slogAdapter struct {
	log *slog.Logger
}

func (a slogAdapter) Errorf(format string, args ...any) {
	a.log.Error("badger: " + fmt.Sprintf(format, args...))
}

func (a slogAdapter) Warningf(format string, args ...any) {
	a.log.Warn("badger: " + fmt.Sprintf(format, args...))
}

func (a slogAdapter) Infof(format string, args ...any) {
	a.log.Debug("badger: " + fmt.Sprintf(format, args...))
}

func (a slogAdapter) Debugf(format string, args ...any) {
	a.log.Debug("badger: " + fmt.Sprintf(format, args...))
}
