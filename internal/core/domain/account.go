package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role distinguishes seller accounts from the operator's admin accounts.
type Role string

const (
	RoleSeller Role = "SELLER"
	RoleAdmin  Role = "ADMIN"
)

// Account represents a marketplace account with a prepaid wallet.
// Balance is in cents of the quote currency and is mutated only through
// the ledger debit/credit paths inside a database transaction.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	Balance   int64     `json:"balance"`
	Locked    bool      `json:"locked"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CanPurchase returns true if the account may redeem inventory.
func (a *Account) CanPurchase() bool {
	return a.Role == RoleSeller && !a.Locked
}
