package postgres

import (
	"context"
	"errors"
	"fmt"

	"keymarket/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PriceOverrideRepo implements ports.PriceOverrideRepository.
type PriceOverrideRepo struct {
	pool Pool
}

// NewPriceOverrideRepo creates a new PriceOverrideRepo.
func NewPriceOverrideRepo(pool Pool) *PriceOverrideRepo {
	return &PriceOverrideRepo{pool: pool}
}

// Upsert creates or replaces the override for a seller/product pair.
func (r *PriceOverrideRepo) Upsert(ctx context.Context, o *domain.PriceOverride) error {
	query := `INSERT INTO price_overrides (id, seller_id, product_id, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (seller_id, product_id)
		DO UPDATE SET price = EXCLUDED.price, updated_at = EXCLUDED.updated_at`

	_, err := r.pool.Exec(ctx, query, o.ID, o.SellerID, o.ProductID, o.Price, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert price override: %w", err)
	}
	return nil
}

// Delete removes the override for a seller/product pair.
func (r *PriceOverrideRepo) Delete(ctx context.Context, sellerID, productID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM price_overrides WHERE seller_id = $1 AND product_id = $2`, sellerID, productID)
	if err != nil {
		return fmt.Errorf("delete price override: %w", err)
	}
	return nil
}

// Get returns nil, nil when no override exists for the pair.
func (r *PriceOverrideRepo) Get(ctx context.Context, sellerID, productID uuid.UUID) (*domain.PriceOverride, error) {
	query := `SELECT id, seller_id, product_id, price, created_at, updated_at
		FROM price_overrides WHERE seller_id = $1 AND product_id = $2`

	o := &domain.PriceOverride{}
	err := r.pool.QueryRow(ctx, query, sellerID, productID).Scan(
		&o.ID, &o.SellerID, &o.ProductID, &o.Price, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get price override: %w", err)
	}
	return o, nil
}
