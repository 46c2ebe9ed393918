package domain

import (
	"time"

	"github.com/google/uuid"
)

// PriceOverride pins a product's price for one seller. When present it
// wins over the product base price, even when higher.
type PriceOverride struct {
	ID        uuid.UUID `json:"id"`
	SellerID  uuid.UUID `json:"seller_id"`
	ProductID uuid.UUID `json:"product_id"`
	Price     int64     `json:"price"` // cents
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
