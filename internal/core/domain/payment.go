package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the lifecycle state of a top-up invoice.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusExpired   PaymentStatus = "EXPIRED"
)

// Payment is a top-up invoice awaiting an external bank transfer.
// PENDING -> COMPLETED and PENDING -> EXPIRED are the only transitions;
// both targets are terminal. Expired payments are retained for audit.
type Payment struct {
	ID            uuid.UUID     `json:"id"`
	SellerID      uuid.UUID     `json:"seller_id"`
	QuoteAmount   int64         `json:"quote_amount"` // cents, credited on completion
	LocalAmount   int64         `json:"local_amount"` // whole local-currency units to transfer
	TransferRef   string        `json:"transfer_ref"` // globally unique, quoted in the bank memo
	BankAccountID uuid.UUID     `json:"bank_account_id"`
	Status        PaymentStatus `json:"status"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"` // set at most once
	ExpiresAt     time.Time     `json:"expires_at"`
	Note          *string       `json:"note,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
}

// IsTerminal returns true if the payment is in a final state.
func (p *Payment) IsTerminal() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusExpired
}

// IsExpired reports whether a pending payment has outlived its deadline.
func (p *Payment) IsExpired(now time.Time) bool {
	return p.Status == PaymentStatusPending && !now.Before(p.ExpiresAt)
}

// LocalAmountFor converts a quote amount in cents to whole local units
// at the given rate, rounding half away from zero.
func LocalAmountFor(quoteCents int64, rate float64) int64 {
	v := float64(quoteCents) * rate / 100.0
	if v >= 0 {
		return int64(v + 0.5)
	}
	return int64(v - 0.5)
}
