package categorization

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// CategoryType splits the taxonomy into money-in and money-out categories.
type CategoryType string

const (
	CategoryTypeIncome  CategoryType = "income"
	CategoryTypeExpense CategoryType = "expense"
)

// Category is one entry of the categorization taxonomy
type Category struct {
	ID        uuid.UUID
	Name      string
	Type      CategoryType
	ParentID  *uuid.UUID
	CreatedAt time.Time
}

// DBTX is the subset of pgxpool.Pool the repository needs
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository handles database operations for the category taxonomy
type Repository struct {
	db DBTX
}

// NewRepository creates a new categorization repository
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// ListCategories fetches the full category taxonomy
func (r *Repository) ListCategories(ctx context.Context) ([]Category, error) {
	query := `
		SELECT id, name, type, parent_id, created_at
		FROM categories
		ORDER BY type, name
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(
			&c.ID,
			&c.Name,
			&c.Type,
			&c.ParentID,
			&c.CreatedAt,
		); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}

	return categories, rows.Err()
}
