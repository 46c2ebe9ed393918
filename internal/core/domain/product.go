package domain

import (
	"time"

	"github.com/google/uuid"
)

// Product groups sellable inventory units under a category.
// TotalAvailable mirrors the sum of its units' QtyAvailable.
type Product struct {
	ID             uuid.UUID `json:"id"`
	CategoryID     uuid.UUID `json:"category_id"`
	Name           string    `json:"name"`
	BasePrice      int64     `json:"base_price"` // cents
	TotalAvailable int64     `json:"total_available"`
	TotalSold      int64     `json:"total_sold"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// InventoryUnit holds one redeemable secret. ValueEnc is AES-256-GCM
// encrypted at rest; plaintext leaves storage only on allocation.
// Units are allocated oldest-stocked-first by Position and removed from
// the product's list once QtyAvailable reaches zero.
type InventoryUnit struct {
	ID           uuid.UUID   `json:"id"`
	ProductID    uuid.UUID   `json:"product_id"`
	ValueEnc     string      `json:"-"`
	QtyAvailable int64       `json:"qty_available"`
	QtySold      int64       `json:"qty_sold"`
	Buyers       []uuid.UUID `json:"buyers,omitempty"`
	Position     int64       `json:"position"`
	CreatedAt    time.Time   `json:"created_at"`
}
