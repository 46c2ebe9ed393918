package domain

import (
	"time"

	"github.com/google/uuid"
)

// BankAccount is an operator-owned receiving account for top-up
// transfers. At most one account is active at a time; new payments
// always quote the most recently activated active account.
type BankAccount struct {
	ID            uuid.UUID  `json:"id"`
	BankName      string     `json:"bank_name"`
	AccountNumber string     `json:"account_number"`
	HolderName    string     `json:"holder_name"`
	Active        bool       `json:"active"`
	ActivatedAt   *time.Time `json:"activated_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
