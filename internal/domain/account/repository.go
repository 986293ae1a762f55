// Package account exposes the bank-account lookups the ingestion pipeline
// consumes. Account CRUD itself lives elsewhere in the CRM.
package account

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgxpool.Pool the repository needs
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository handles bank account lookups
type Repository struct {
	db DBTX
}

// NewRepository creates a new account repository
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// Exists reports whether a bank account with the given id exists
func (r *Repository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM bank_accounts WHERE id = $1)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}
