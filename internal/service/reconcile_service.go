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

// accountFeed caches one receiving account's statement feed for the
// duration of a pass.
type accountFeed struct {
	txs    []domain.BankTransaction
	failed bool
}

// ReconcileServiceImpl implements ports.ReconciliationService.
// Each pass pulls every referenced receiving account's statement feed
// once, expires overdue invoices and settles the ones a feed can prove
// paid. Settlement reuses the same check-and-set transition as operator
// settlement, so a payment credits its wallet at most once no matter
// how often a pass sees it.
type ReconcileServiceImpl struct {
	paymentRepo ports.PaymentRepository
	accountRepo ports.AccountRepository
	bankRepo    ports.BankAccountRepository
	feed        ports.BankFeed
	transactor  ports.DBTransactor
	auditSvc    ports.AuditService
	log         zerolog.Logger
}

// NewReconcileService creates a new ReconcileServiceImpl.
func NewReconcileService(
	paymentRepo ports.PaymentRepository,
	accountRepo ports.AccountRepository,
	bankRepo ports.BankAccountRepository,
	feed ports.BankFeed,
	transactor ports.DBTransactor,
	auditSvc ports.AuditService,
	log zerolog.Logger,
) *ReconcileServiceImpl {
	return &ReconcileServiceImpl{
		paymentRepo: paymentRepo,
		accountRepo: accountRepo,
		bankRepo:    bankRepo,
		feed:        feed,
		transactor:  transactor,
		auditSvc:    auditSvc,
		log:         log,
	}
}

// RunOnce performs one reconciliation pass. A failure on one payment is
// logged and counted but never blocks the rest of the batch.
func (s *ReconcileServiceImpl) RunOnce(ctx context.Context) (*ports.ReconcileReport, error) {
	pending, err := s.paymentRepo.ListPending(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list pending payments: %w", err))
	}

	report := &ports.ReconcileReport{Scanned: len(pending)}
	if len(pending) == 0 {
		return report, nil
	}

	now := time.Now().UTC()

	// Expire first so an overdue invoice cannot be settled by a
	// transfer that arrived after its deadline.
	var live []domain.Payment
	for i := range pending {
		p := &pending[i]
		if !p.IsExpired(now) {
			live = append(live, *p)
			continue
		}
		if err := s.expire(ctx, p); err != nil {
			report.Errors++
			s.log.Error().Err(err).Str("payment_id", p.ID.String()).Msg("expire payment failed")
			continue
		}
		report.Expired++
	}

	if len(live) == 0 {
		return report, nil
	}

	// Invoices may quote different receiving accounts; each account's
	// feed is fetched once per pass. A fetch failure parks only that
	// account's payments until the next pass.
	feeds := make(map[uuid.UUID]*accountFeed)
	for i := range live {
		p := &live[i]
		af, ok := feeds[p.BankAccountID]
		if !ok {
			af = &accountFeed{}
			feeds[p.BankAccountID] = af
			txs, err := s.fetchFeed(ctx, p.BankAccountID)
			if err != nil {
				report.Errors++
				af.failed = true
				s.log.Warn().Err(err).
					Str("bank_account_id", p.BankAccountID.String()).
					Msg("bank feed unavailable, skipping account")
			} else {
				af.txs = txs
			}
		}
		if af.failed {
			continue
		}
		tx := matchTransaction(af.txs, p)
		if tx == nil {
			continue
		}
		settled, err := s.settle(ctx, p, tx)
		if err != nil {
			report.Errors++
			s.log.Error().Err(err).Str("payment_id", p.ID.String()).Msg("settle payment failed")
			continue
		}
		if settled {
			report.Completed++
		}
	}

	s.log.Info().
		Int("scanned", report.Scanned).
		Int("expired", report.Expired).
		Int("completed", report.Completed).
		Int("errors", report.Errors).
		Msg("reconciliation pass finished")

	return report, nil
}

// fetchFeed resolves the receiving account and pulls its statement feed.
func (s *ReconcileServiceImpl) fetchFeed(ctx context.Context, bankAccountID uuid.UUID) ([]domain.BankTransaction, error) {
	acc, err := s.bankRepo.GetByID(ctx, bankAccountID)
	if err != nil {
		return nil, fmt.Errorf("get bank account: %w", err)
	}
	if acc == nil {
		return nil, fmt.Errorf("bank account not found: %s", bankAccountID)
	}
	txs, err := s.feed.RecentTransactions(ctx, acc.AccountNumber)
	if err != nil {
		return nil, fmt.Errorf("fetch bank feed: %w", err)
	}
	return txs, nil
}

func (s *ReconcileServiceImpl) expire(ctx context.Context, p *domain.Payment) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	transitioned, err := s.paymentRepo.MarkExpired(ctx, dbTx, p.ID)
	if err != nil {
		return fmt.Errorf("mark expired: %w", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	if transitioned {
		s.auditSvc.Record(ctx, &p.SellerID, domain.AuditTopupExpired,
			fmt.Sprintf("payment=%s ref=%s", p.ID, p.TransferRef), "")
	}
	return nil
}

// settle credits the wallet for a matched transfer. It returns false
// when the payment already reached a terminal state elsewhere, in which
// case nothing is credited.
func (s *ReconcileServiceImpl) settle(ctx context.Context, p *domain.Payment, tx *domain.BankTransaction) (bool, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	transitioned, err := s.paymentRepo.Complete(ctx, dbTx, p.ID)
	if err != nil {
		return false, fmt.Errorf("complete payment: %w", err)
	}
	if !transitioned {
		// Already settled elsewhere; nothing to credit.
		return false, dbTx.Commit(ctx)
	}

	if err := s.accountRepo.Credit(ctx, dbTx, p.SellerID, p.QuoteAmount); err != nil {
		return false, fmt.Errorf("credit wallet: %w", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	s.auditSvc.Record(ctx, &p.SellerID, domain.AuditTopupCompleted,
		fmt.Sprintf("payment=%s ref=%s bank_tx=%s amount=%d", p.ID, p.TransferRef, tx.ID, p.QuoteAmount), "")

	s.log.Info().
		Str("payment_id", p.ID.String()).
		Str("transfer_ref", p.TransferRef).
		Str("bank_tx_id", tx.ID).
		Int64("amount", p.QuoteAmount).
		Msg("payment settled from bank feed")

	return true, nil
}

// matchTransaction finds a feed entry whose memo quotes the payment's
// reference and whose amount equals the expected local amount exactly.
func matchTransaction(feed []domain.BankTransaction, p *domain.Payment) *domain.BankTransaction {
	for i := range feed {
		if feed[i].Matches(p) {
			return &feed[i]
		}
	}
	return nil
}
