package postgres

import (
	"context"
	"errors"
	"fmt"

	"keymarket/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PaymentRepo implements ports.PaymentRepository.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

const paymentColumns = `id, seller_id, quote_amount, local_amount, transfer_ref, bank_account_id, status, completed_at, expires_at, note, created_at`

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	err := row.Scan(
		&p.ID, &p.SellerID, &p.QuoteAmount, &p.LocalAmount, &p.TransferRef,
		&p.BankAccountID, &p.Status, &p.CompletedAt, &p.ExpiresAt, &p.Note, &p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// execer covers both the pool and a pgx.Tx, so the same insert serves
// standalone creation and transactional creation.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertPayment(ctx context.Context, db execer, p *domain.Payment) error {
	query := `INSERT INTO payments (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := db.Exec(ctx, query,
		p.ID, p.SellerID, p.QuoteAmount, p.LocalAmount, p.TransferRef,
		p.BankAccountID, p.Status, p.CompletedAt, p.ExpiresAt, p.Note, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// Create inserts a new payment invoice.
func (r *PaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	return insertPayment(ctx, r.pool, p)
}

// CreateInTx inserts a payment inside the caller's transaction.
func (r *PaymentRepo) CreateInTx(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	return insertPayment(ctx, tx, p)
}

// GetByID fetches a payment by its UUID.
func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	p, err := scanPayment(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get payment by id: %w", err)
	}
	return p, nil
}

// ListBySeller returns a seller's payments newest first, with total count.
func (r *PaymentRepo) ListBySeller(ctx context.Context, sellerID uuid.UUID, page, pageSize int) ([]domain.Payment, int64, error) {
	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payments WHERE seller_id = $1`, sellerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE seller_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, sellerID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	payments, err := collectPayments(rows)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// ListPending returns all payments still awaiting a transfer, oldest first.
func (r *PaymentRepo) ListPending(ctx context.Context) ([]domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE status = 'PENDING' ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pending payments: %w", err)
	}
	defer rows.Close()

	return collectPayments(rows)
}

// CountPending counts a seller's open invoices.
func (r *PaymentRepo) CountPending(ctx context.Context, sellerID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM payments WHERE seller_id = $1 AND status = 'PENDING'`, sellerID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending payments: %w", err)
	}
	return n, nil
}

// LatestPendingCreatedAt returns the Unix time of the seller's most
// recent pending payment, or nil when none exist.
func (r *PaymentRepo) LatestPendingCreatedAt(ctx context.Context, sellerID uuid.UUID) (*int64, error) {
	var ts *int64
	err := r.pool.QueryRow(ctx,
		`SELECT EXTRACT(EPOCH FROM MAX(created_at))::bigint
		 FROM payments WHERE seller_id = $1 AND status = 'PENDING'`, sellerID,
	).Scan(&ts)
	if err != nil {
		return nil, fmt.Errorf("latest pending payment: %w", err)
	}
	return ts, nil
}

// Complete transitions PENDING -> COMPLETED as a single check-and-set.
// The WHERE clause makes the transition happen at most once: only the
// caller that sees RowsAffected == 1 may credit the wallet.
func (r *PaymentRepo) Complete(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	query := `UPDATE payments SET status = 'COMPLETED', completed_at = NOW()
		WHERE id = $1 AND status = 'PENDING'`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("complete payment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkExpired transitions PENDING -> EXPIRED with the same check-and-set shape.
func (r *PaymentRepo) MarkExpired(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	query := `UPDATE payments SET status = 'EXPIRED'
		WHERE id = $1 AND status = 'PENDING'`

	tag, err := tx.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark payment expired: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func collectPayments(rows pgx.Rows) ([]domain.Payment, error) {
	var payments []domain.Payment
	for rows.Next() {
		var p domain.Payment
		if err := rows.Scan(
			&p.ID, &p.SellerID, &p.QuoteAmount, &p.LocalAmount, &p.TransferRef,
			&p.BankAccountID, &p.Status, &p.CompletedAt, &p.ExpiresAt, &p.Note, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
