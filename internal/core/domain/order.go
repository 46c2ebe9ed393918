package domain

import (
	"time"

	"github.com/google/uuid"
)

// Order is the immutable record of one successful purchase. Name, value
// and price are snapshots: later catalog edits never change history.
// RedeemedValueEnc is encrypted at rest like the inventory unit it came from.
type Order struct {
	ID               uuid.UUID `json:"id"`
	SellerID         uuid.UUID `json:"seller_id"`
	ProductID        uuid.UUID `json:"product_id"`
	ProductName      string    `json:"product_name"`
	RedeemedValueEnc string    `json:"-"`
	Price            int64     `json:"price"` // cents paid
	CreatedAt        time.Time `json:"created_at"`
}
