package postgres

import (
	"context"
	"errors"
	"fmt"

	"keymarket/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// BankAccountRepo implements ports.BankAccountRepository.
type BankAccountRepo struct {
	pool Pool
}

// NewBankAccountRepo creates a new BankAccountRepo.
func NewBankAccountRepo(pool Pool) *BankAccountRepo {
	return &BankAccountRepo{pool: pool}
}

// Create inserts a new receiving account.
func (r *BankAccountRepo) Create(ctx context.Context, a *domain.BankAccount) error {
	query := `INSERT INTO bank_accounts (id, bank_name, account_number, holder_name, active, activated_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.BankName, a.AccountNumber, a.HolderName, a.Active, a.ActivatedAt, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert bank account: %w", err)
	}
	return nil
}

// GetByID fetches a receiving account by its UUID, or nil when absent.
func (r *BankAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BankAccount, error) {
	query := `SELECT id, bank_name, account_number, holder_name, active, activated_at, created_at
		FROM bank_accounts WHERE id = $1`

	a := &domain.BankAccount{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.BankName, &a.AccountNumber, &a.HolderName, &a.Active, &a.ActivatedAt, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get bank account by id: %w", err)
	}
	return a, nil
}

// SetActive activates one account and deactivates the rest.
func (r *BankAccountRepo) SetActive(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE bank_accounts
		SET active = (id = $1),
		    activated_at = CASE WHEN id = $1 THEN NOW() ELSE activated_at END`

	_, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("set active bank account: %w", err)
	}
	return nil
}

// GetActive returns the most recently activated active account,
// or nil when none is active.
func (r *BankAccountRepo) GetActive(ctx context.Context) (*domain.BankAccount, error) {
	query := `SELECT id, bank_name, account_number, holder_name, active, activated_at, created_at
		FROM bank_accounts WHERE active
		ORDER BY activated_at DESC
		LIMIT 1`

	a := &domain.BankAccount{}
	err := r.pool.QueryRow(ctx, query).Scan(
		&a.ID, &a.BankName, &a.AccountNumber, &a.HolderName, &a.Active, &a.ActivatedAt, &a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active bank account: %w", err)
	}
	return a, nil
}
