package ingestion

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is the subset of pgxpool.Pool the repository needs
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository handles database operations for ledger transactions
type Repository struct {
	db DBTX
}

// NewRepository creates a new transaction repository
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// Insert persists one transaction and returns it with generated fields set
func (r *Repository) Insert(ctx context.Context, tx *Transaction) (*Transaction, error) {
	query := `
		INSERT INTO transactions (account_id, date, description, amount, type, category_id, ai_confidence, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`

	saved := *tx
	err := r.db.QueryRow(ctx, query,
		tx.AccountID,
		tx.Date,
		tx.Description,
		tx.Amount,
		tx.Direction,
		tx.CategoryID,
		tx.AIConfidence,
		tx.Notes,
	).Scan(&saved.ID, &saved.CreatedAt)
	if err != nil {
		return nil, err
	}

	return &saved, nil
}

// HasRecentDuplicate reports whether an identical transaction (same account,
// date, description and amount) was persisted within the trailing window.
func (r *Repository) HasRecentDuplicate(ctx context.Context, accountID uuid.UUID, date time.Time, description string, amount decimal.Decimal, withinDays int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE account_id = $1
			  AND date = $2
			  AND description = $3
			  AND amount = $4
			  AND created_at >= now() - make_interval(days => $5)
		)
	`

	var exists bool
	err := r.db.QueryRow(ctx, query, accountID, date, description, amount, withinDays).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// CategoryExists reports whether a category with the given id exists
func (r *Repository) CategoryExists(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1)`

	var exists bool
	if err := r.db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// UpdateCategory applies a manual category override. ai_confidence is
// cleared unconditionally: a human decision replaces the classifier's.
// Returns nil when no transaction matches.
func (r *Repository) UpdateCategory(ctx context.Context, id uuid.UUID, categoryID uuid.UUID, notes *string) (*Transaction, error) {
	query := `
		UPDATE transactions
		SET category_id = $1,
		    notes = $2,
		    ai_confidence = NULL
		WHERE id = $3
		RETURNING id, account_id, date, description, amount, type, category_id, ai_confidence, notes, created_at
	`

	var tx Transaction
	err := r.db.QueryRow(ctx, query, categoryID, notes, id).Scan(
		&tx.ID,
		&tx.AccountID,
		&tx.Date,
		&tx.Description,
		&tx.Amount,
		&tx.Direction,
		&tx.CategoryID,
		&tx.AIConfidence,
		&tx.Notes,
		&tx.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &tx, nil
}
