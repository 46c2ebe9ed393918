package ports

import (
	"context"

	"keymarket/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountRepository defines persistence operations for accounts.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error)
	// UpdateBalance sets the wallet balance read under the same row lock.
	UpdateBalance(ctx context.Context, tx pgx.Tx, id uuid.UUID, balance int64) error
	// Credit atomically adds amount to the wallet without a prior read.
	Credit(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int64) error
	// SetLocked flips the account's lock flag, returning false when no
	// such account exists.
	SetLocked(ctx context.Context, id uuid.UUID, locked bool) (bool, error)
}

// ProductRepository defines persistence for products and their inventory units.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
	// AddUnits stocks a batch of units for one product and bumps the
	// product's available counter, all in a single transaction.
	AddUnits(ctx context.Context, units []*domain.InventoryUnit) error
	// FirstUnitForUpdate locks and returns the oldest-stocked unit with
	// remaining quantity, or domain.ErrNoRows-style not found.
	FirstUnitForUpdate(ctx context.Context, tx pgx.Tx, productID uuid.UUID) (*domain.InventoryUnit, error)
	// ConsumeUnit decrements the unit's available quantity, increments its
	// sold count and appends the buyer. Depleted units are removed.
	ConsumeUnit(ctx context.Context, tx pgx.Tx, unitID uuid.UUID, buyerID uuid.UUID) error
	// UpdateAggregates adjusts the product's available/sold counters.
	UpdateAggregates(ctx context.Context, tx pgx.Tx, productID uuid.UUID, availableDelta, soldDelta int64) error
}

// OrderRepository defines persistence for purchase records.
type OrderRepository interface {
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, page, pageSize int) ([]domain.Order, int64, error)
}

// PaymentRepository defines persistence for top-up invoices.
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	// CreateInTx inserts a payment inside the caller's transaction, so
	// the insert can commit or roll back together with a wallet credit.
	CreateInTx(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, page, pageSize int) ([]domain.Payment, int64, error)
	// ListPending returns all payments still awaiting a transfer.
	ListPending(ctx context.Context) ([]domain.Payment, error)
	CountPending(ctx context.Context, sellerID uuid.UUID) (int, error)
	// LatestPendingCreatedAt returns the creation time of the seller's most
	// recent pending payment, or nil when none exist.
	LatestPendingCreatedAt(ctx context.Context, sellerID uuid.UUID) (*int64, error)
	// Complete transitions PENDING -> COMPLETED. It returns true only for
	// the call that performed the transition; a payment already terminal
	// yields false. Callers credit the wallet in the same tx iff true.
	Complete(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
	// MarkExpired transitions PENDING -> EXPIRED, returning true if this
	// call performed the transition.
	MarkExpired(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error)
}

// PriceOverrideRepository defines persistence for per-seller price pins.
type PriceOverrideRepository interface {
	Upsert(ctx context.Context, override *domain.PriceOverride) error
	Delete(ctx context.Context, sellerID, productID uuid.UUID) error
	// Get returns nil, nil when no override exists for the pair.
	Get(ctx context.Context, sellerID, productID uuid.UUID) (*domain.PriceOverride, error)
}

// BankAccountRepository defines persistence for operator receiving accounts.
type BankAccountRepository interface {
	Create(ctx context.Context, account *domain.BankAccount) error
	// GetByID returns nil, nil when no such account exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error)
	SetActive(ctx context.Context, id uuid.UUID) error
	// GetActive returns the most recently activated active account,
	// or a not-found error when none is active.
	GetActive(ctx context.Context) (*domain.BankAccount, error)
}

// ExchangeRateRepository defines persistence for the single conversion rate row.
type ExchangeRateRepository interface {
	Get(ctx context.Context) (*domain.ExchangeRate, error)
	Set(ctx context.Context, rate float64) error
}

// ReferenceSequence allocates monotonically increasing values for
// transfer reference generation. Allocated values are never reused,
// including across restarts.
type ReferenceSequence interface {
	Next(ctx context.Context) (int64, error)
}

// AuditRepository defines persistence for the audit trail.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
	List(ctx context.Context, page, pageSize int) ([]domain.AuditLog, int64, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
