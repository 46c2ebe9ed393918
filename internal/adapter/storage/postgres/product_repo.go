package postgres

import (
	"context"
	"errors"
	"fmt"

	"keymarket/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProductRepo implements ports.ProductRepository.
type ProductRepo struct {
	pool Pool
}

// NewProductRepo creates a new ProductRepo.
func NewProductRepo(pool Pool) *ProductRepo {
	return &ProductRepo{pool: pool}
}

// Create inserts a new product.
func (r *ProductRepo) Create(ctx context.Context, p *domain.Product) error {
	query := `INSERT INTO products (id, category_id, name, base_price, total_available, total_sold, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.CategoryID, p.Name, p.BasePrice, p.TotalAvailable, p.TotalSold, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetByID fetches a product by its UUID (without locking).
func (r *ProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT id, category_id, name, base_price, total_available, total_sold, created_at, updated_at
		FROM products WHERE id = $1`

	p := &domain.Product{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.CategoryID, &p.Name, &p.BasePrice, &p.TotalAvailable, &p.TotalSold, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product by id: %w", err)
	}
	return p, nil
}

// GetByIDForUpdate fetches a product by ID with pessimistic locking.
// This MUST be called within a transaction.
func (r *ProductRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Product, error) {
	query := `SELECT id, category_id, name, base_price, total_available, total_sold, created_at, updated_at
		FROM products WHERE id = $1 FOR UPDATE`

	p := &domain.Product{}
	err := tx.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.CategoryID, &p.Name, &p.BasePrice, &p.TotalAvailable, &p.TotalSold, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product for update: %w", err)
	}
	return p, nil
}

// List returns all products ordered by name.
func (r *ProductRepo) List(ctx context.Context) ([]domain.Product, error) {
	query := `SELECT id, category_id, name, base_price, total_available, total_sold, created_at, updated_at
		FROM products ORDER BY name`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(
			&p.ID, &p.CategoryID, &p.Name, &p.BasePrice, &p.TotalAvailable, &p.TotalSold, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// AddUnits stocks a batch of units for one product and bumps the
// product's available counter in the same transaction, so the batch
// lands whole or not at all.
func (r *ProductRepo) AddUnits(ctx context.Context, units []*domain.InventoryUnit) error {
	if len(units) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin stock tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var total int64
	for _, u := range units {
		_, err := tx.Exec(ctx,
			`INSERT INTO inventory_units (id, product_id, value_enc, qty_available, qty_sold, position, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			u.ID, u.ProductID, u.ValueEnc, u.QtyAvailable, u.QtySold, u.Position, u.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert inventory unit: %w", err)
		}
		total += u.QtyAvailable
	}

	tag, err := tx.Exec(ctx,
		`UPDATE products SET total_available = total_available + $1, updated_at = NOW() WHERE id = $2`,
		total, units[0].ProductID,
	)
	if err != nil {
		return fmt.Errorf("update product stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product not found: %s", units[0].ProductID)
	}

	return tx.Commit(ctx)
}

// FirstUnitForUpdate locks and returns the oldest-stocked unit with
// remaining quantity, or nil when the product is out of stock.
// This MUST be called within a transaction.
func (r *ProductRepo) FirstUnitForUpdate(ctx context.Context, tx pgx.Tx, productID uuid.UUID) (*domain.InventoryUnit, error) {
	query := `SELECT id, product_id, value_enc, qty_available, qty_sold, position, created_at
		FROM inventory_units
		WHERE product_id = $1 AND qty_available > 0
		ORDER BY position
		LIMIT 1
		FOR UPDATE`

	u := &domain.InventoryUnit{}
	err := tx.QueryRow(ctx, query, productID).Scan(
		&u.ID, &u.ProductID, &u.ValueEnc, &u.QtyAvailable, &u.QtySold, &u.Position, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get first unit for update: %w", err)
	}
	return u, nil
}

// ConsumeUnit decrements the unit's available quantity, increments its
// sold count and appends the buyer. Depleted units are removed.
func (r *ProductRepo) ConsumeUnit(ctx context.Context, tx pgx.Tx, unitID uuid.UUID, buyerID uuid.UUID) error {
	query := `UPDATE inventory_units
		SET qty_available = qty_available - 1,
		    qty_sold = qty_sold + 1,
		    buyers = array_append(buyers, $2)
		WHERE id = $1 AND qty_available > 0`

	tag, err := tx.Exec(ctx, query, unitID, buyerID)
	if err != nil {
		return fmt.Errorf("consume inventory unit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("inventory unit depleted or missing: %s", unitID)
	}

	// Depleted units leave the allocation list.
	if _, err := tx.Exec(ctx, `DELETE FROM inventory_units WHERE id = $1 AND qty_available = 0`, unitID); err != nil {
		return fmt.Errorf("remove depleted unit: %w", err)
	}
	return nil
}

// UpdateAggregates adjusts the product's available/sold counters.
// The available count floors at zero.
func (r *ProductRepo) UpdateAggregates(ctx context.Context, tx pgx.Tx, productID uuid.UUID, availableDelta, soldDelta int64) error {
	query := `UPDATE products
		SET total_available = GREATEST(total_available + $1, 0),
		    total_sold = total_sold + $2,
		    updated_at = NOW()
		WHERE id = $3`

	tag, err := tx.Exec(ctx, query, availableDelta, soldDelta, productID)
	if err != nil {
		return fmt.Errorf("update product aggregates: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("product not found: %s", productID)
	}
	return nil
}
