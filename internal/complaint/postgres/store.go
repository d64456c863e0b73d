// Package postgres provides a PostgreSQL-backed complaint.Store so the
// complaint book survives restarts and can be shared by the voice loop and
// the webhook server.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voxdesk/internal/complaint"
)

// Compile-time interface check.
var _ complaint.Store = (*Store)(nil)

// Store is a [complaint.Store] backed by a single [pgxpool.Pool].
// All operations are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies the connection and runs
// [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Exists implements [complaint.Store.Exists].
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM complaints WHERE name = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres store: exists: %w", err)
	}
	return exists, nil
}

// Put implements [complaint.Store.Put].
func (s *Store) Put(ctx context.Context, name, address string) error {
	const q = `
		INSERT INTO complaints (name, address)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE
		    SET address = EXCLUDED.address,
		        updated_at = now()`
	if _, err := s.pool.Exec(ctx, q, name, address); err != nil {
		return fmt.Errorf("postgres store: put: %w", err)
	}
	return nil
}

// Address implements [complaint.Store.Address].
func (s *Store) Address(ctx context.Context, name string) (string, error) {
	var addr string
	err := s.pool.QueryRow(ctx,
		`SELECT address FROM complaints WHERE name = $1`, name,
	).Scan(&addr)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", complaint.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres store: address: %w", err)
	}
	return addr, nil
}

// Ping implements [complaint.Store.Ping].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
