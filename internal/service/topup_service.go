package service

import (
	"context"
	"fmt"
	"time"

	"keymarket/internal/core/domain"
	"keymarket/internal/core/ports"
	"keymarket/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TopupConfig carries the issuance policy knobs.
type TopupConfig struct {
	PendingLimit  int           // max open invoices per seller
	IssueInterval time.Duration // min gap between issues per seller
	Expiry        time.Duration // invoice lifetime
}

// TopupServiceImpl implements ports.TopupService.
type TopupServiceImpl struct {
	paymentRepo ports.PaymentRepository
	accountRepo ports.AccountRepository
	bankRepo    ports.BankAccountRepository
	rateRepo    ports.ExchangeRateRepository
	refGen      ports.ReferenceGenerator
	transactor  ports.DBTransactor
	auditSvc    ports.AuditService
	cfg         TopupConfig
	log         zerolog.Logger
}

// NewTopupService creates a new TopupServiceImpl.
func NewTopupService(
	paymentRepo ports.PaymentRepository,
	accountRepo ports.AccountRepository,
	bankRepo ports.BankAccountRepository,
	rateRepo ports.ExchangeRateRepository,
	refGen ports.ReferenceGenerator,
	transactor ports.DBTransactor,
	auditSvc ports.AuditService,
	cfg TopupConfig,
	log zerolog.Logger,
) *TopupServiceImpl {
	return &TopupServiceImpl{
		paymentRepo: paymentRepo,
		accountRepo: accountRepo,
		bankRepo:    bankRepo,
		rateRepo:    rateRepo,
		refGen:      refGen,
		transactor:  transactor,
		auditSvc:    auditSvc,
		cfg:         cfg,
		log:         log,
	}
}

// IssueTopup creates a PENDING invoice quoting the active receiving
// account, a unique transfer reference and the local amount at the
// current rate. The rate is snapshotted: later changes never retouch
// an issued invoice.
func (s *TopupServiceImpl) IssueTopup(ctx context.Context, req ports.TopupRequest) (*ports.TopupInstructions, error) {
	if req.QuoteAmount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	account, err := s.accountRepo.GetByID(ctx, req.SellerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrNotFound("account")
	}
	if account.Locked {
		return nil, apperror.ErrAccountLocked()
	}

	// Business rule: cap open invoices per seller
	pending, err := s.paymentRepo.CountPending(ctx, req.SellerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("count pending: %w", err))
	}
	if pending >= s.cfg.PendingLimit {
		return nil, apperror.ErrTooManyPending()
	}

	// Business rule: throttle issuance per seller
	latest, err := s.paymentRepo.LatestPendingCreatedAt(ctx, req.SellerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("latest pending: %w", err))
	}
	now := time.Now().UTC()
	if latest != nil {
		elapsed := now.Sub(time.Unix(*latest, 0))
		if elapsed < s.cfg.IssueInterval {
			wait := (s.cfg.IssueInterval - elapsed).Round(time.Second)
			return nil, apperror.ErrIssueRateLimited(wait.String())
		}
	}

	bankAcc, err := s.bankRepo.GetActive(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get active bank account: %w", err))
	}
	if bankAcc == nil {
		return nil, apperror.ErrNoActiveBankAccount()
	}

	rate, err := s.rateRepo.Get(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get exchange rate: %w", err))
	}

	ref, err := s.refGen.Next(ctx)
	if err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		ID:            uuid.New(),
		SellerID:      req.SellerID,
		QuoteAmount:   req.QuoteAmount,
		LocalAmount:   domain.LocalAmountFor(req.QuoteAmount, rate.Rate),
		TransferRef:   ref,
		BankAccountID: bankAcc.ID,
		Status:        domain.PaymentStatusPending,
		ExpiresAt:     now.Add(s.cfg.Expiry),
		CreatedAt:     now,
	}
	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create payment: %w", err))
	}

	s.auditSvc.Record(ctx, &req.SellerID, domain.AuditTopupIssued,
		fmt.Sprintf("payment=%s ref=%s quote=%d local=%d", payment.ID, ref, payment.QuoteAmount, payment.LocalAmount), req.ClientIP)

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("seller_id", req.SellerID.String()).
		Str("transfer_ref", ref).
		Int64("quote_amount", payment.QuoteAmount).
		Int64("local_amount", payment.LocalAmount).
		Msg("topup invoice issued")

	return &ports.TopupInstructions{
		Payment:     payment,
		BankName:    bankAcc.BankName,
		AccountNo:   bankAcc.AccountNumber,
		HolderName:  bankAcc.HolderName,
		TransferRef: ref,
		LocalAmount: payment.LocalAmount,
		ExpiresAt:   payment.ExpiresAt,
	}, nil
}

// ManualCredit credits a seller's wallet by operator decision, outside
// any pending invoice. It records an already-completed payment and the
// wallet credit in one transaction, so the ledger and the balance can
// never disagree. An active receiving account is quoted when one
// exists but is not required.
func (s *TopupServiceImpl) ManualCredit(ctx context.Context, adminID, sellerID uuid.UUID, quoteAmount int64, note string) (*domain.Payment, error) {
	if quoteAmount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	account, err := s.accountRepo.GetByID(ctx, sellerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrNotFound("account")
	}

	rate, err := s.rateRepo.Get(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get exchange rate: %w", err))
	}

	ref, err := s.refGen.Next(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	payment := &domain.Payment{
		ID:          uuid.New(),
		SellerID:    sellerID,
		QuoteAmount: quoteAmount,
		LocalAmount: domain.LocalAmountFor(quoteAmount, rate.Rate),
		TransferRef: ref,
		Status:      domain.PaymentStatusCompleted,
		CompletedAt: &now,
		ExpiresAt:   now,
		CreatedAt:   now,
	}
	if bankAcc, err := s.bankRepo.GetActive(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get active bank account: %w", err))
	} else if bankAcc != nil {
		payment.BankAccountID = bankAcc.ID
	}
	if note != "" {
		payment.Note = &note
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.paymentRepo.CreateInTx(ctx, dbTx, payment); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create payment: %w", err))
	}
	if err := s.accountRepo.Credit(ctx, dbTx, sellerID, quoteAmount); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("credit wallet: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.auditSvc.Record(ctx, &adminID, domain.AuditManualCredit,
		fmt.Sprintf("payment=%s seller=%s amount=%d note=%q", payment.ID, sellerID, quoteAmount, note), "")

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("seller_id", sellerID.String()).
		Str("admin_id", adminID.String()).
		Int64("amount", quoteAmount).
		Msg("wallet credited manually")

	return payment, nil
}

// SettlePayment force-completes a pending payment by operator decision,
// outside the bank feed. The PENDING -> COMPLETED transition and the
// wallet credit share one transaction, and the credit happens only for
// the call that performed the transition, so a concurrent feed match
// can never double-credit.
func (s *TopupServiceImpl) SettlePayment(ctx context.Context, paymentID uuid.UUID, adminID uuid.UUID, note string) (*domain.Payment, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	transitioned, err := s.paymentRepo.Complete(ctx, dbTx, paymentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("complete payment: %w", err))
	}
	if !transitioned {
		// Lost the race or the payment already reached a terminal state.
		current, err := s.paymentRepo.GetByID(ctx, paymentID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("reload payment: %w", err))
		}
		if current != nil && current.Status == domain.PaymentStatusCompleted {
			return current, nil
		}
		return nil, apperror.Validation("payment is no longer pending")
	}

	if err := s.accountRepo.Credit(ctx, dbTx, payment.SellerID, payment.QuoteAmount); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("credit wallet: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.auditSvc.Record(ctx, &adminID, domain.AuditPaymentSettled,
		fmt.Sprintf("payment=%s seller=%s amount=%d note=%q", paymentID, payment.SellerID, payment.QuoteAmount, note), "")

	s.log.Info().
		Str("payment_id", paymentID.String()).
		Str("admin_id", adminID.String()).
		Int64("amount", payment.QuoteAmount).
		Msg("payment settled manually")

	completedAt := time.Now().UTC()
	payment.Status = domain.PaymentStatusCompleted
	payment.CompletedAt = &completedAt
	if note != "" {
		payment.Note = &note
	}
	return payment, nil
}
