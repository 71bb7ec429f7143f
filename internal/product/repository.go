package product

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jmoiron/sqlx"
)

var ErrNotFound = errors.New("product not found")

// Repository gives read access to the vendor catalog. Catalog writes happen
// through the vendor tooling, not through the dispatch core.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Product, error)
	ListAvailable(ctx context.Context, category string) ([]Product, error)
}

type sqlxRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &sqlxRepository{db: db}
}

func (r *sqlxRepository) GetByID(ctx context.Context, id uuid.UUID) (*Product, error) {
	var p Product
	query := `SELECT id, vendor_id, name, description, price, category, is_available, created_at
              FROM products WHERE id = $1`
	err := r.db.GetContext(ctx, &p, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to get product by id %s: %w", id, err)
	}

	return &p, nil
}

func (r *sqlxRepository) ListAvailable(ctx context.Context, category string) ([]Product, error) {
	products := make([]Product, 0)

	query := `SELECT id, vendor_id, name, description, price, category, is_available, created_at
              FROM products WHERE is_available = TRUE`
	args := []any{}
	if category != "" {
		query += ` AND category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY created_at DESC`

	if err := r.db.SelectContext(ctx, &products, query, args...); err != nil {
		return nil, fmt.Errorf("repository: failed to list available products: %w", err)
	}

	return products, nil
}
