package domain

import (
	"strings"
	"time"
)

// BankTransaction is one inbound transfer reported by the bank feed.
// Amount is in whole local-currency units.
type BankTransaction struct {
	ID       string    `json:"id"`
	Amount   int64     `json:"amount"`
	Memo     string    `json:"memo"`
	PostedAt time.Time `json:"posted_at"`
}

// Matches reports whether this transfer settles the given payment:
// the memo must contain the payment's transfer reference and the
// amount must equal the expected local amount exactly. Partial or
// overpaid transfers never match.
func (t *BankTransaction) Matches(p *Payment) bool {
	return strings.Contains(t.Memo, p.TransferRef) && t.Amount == p.LocalAmount
}
