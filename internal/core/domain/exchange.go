package domain

import "time"

// ExchangeRate is the single system-wide quote-to-local conversion
// rate: local units per whole unit of the quote currency. Payments
// snapshot the rate at issue time; later changes never touch them.
type ExchangeRate struct {
	Rate      float64   `json:"rate"`
	UpdatedAt time.Time `json:"updated_at"`
}
