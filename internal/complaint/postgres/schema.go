package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlComplaints = `
CREATE TABLE IF NOT EXISTS complaints (
    name       TEXT        PRIMARY KEY,
    address    TEXT        NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate creates the complaints table if it does not exist. It is idempotent
// and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlComplaints); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
