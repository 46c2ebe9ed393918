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

// PurchaseServiceImpl implements ports.PurchaseService with pessimistic locking.
// All stock, price and balance checks happen under row locks inside one
// transaction, so concurrent buyers of the last unit serialize and
// exactly one wins.
type PurchaseServiceImpl struct {
	accountRepo  ports.AccountRepository
	productRepo  ports.ProductRepository
	orderRepo    ports.OrderRepository
	overrideRepo ports.PriceOverrideRepository
	encSvc       ports.EncryptionService
	transactor   ports.DBTransactor
	auditSvc     ports.AuditService
	log          zerolog.Logger
}

// NewPurchaseService creates a new PurchaseServiceImpl.
func NewPurchaseService(
	accountRepo ports.AccountRepository,
	productRepo ports.ProductRepository,
	orderRepo ports.OrderRepository,
	overrideRepo ports.PriceOverrideRepository,
	encSvc ports.EncryptionService,
	transactor ports.DBTransactor,
	auditSvc ports.AuditService,
	log zerolog.Logger,
) *PurchaseServiceImpl {
	return &PurchaseServiceImpl{
		accountRepo:  accountRepo,
		productRepo:  productRepo,
		orderRepo:    orderRepo,
		overrideRepo: overrideRepo,
		encSvc:       encSvc,
		transactor:   transactor,
		auditSvc:     auditSvc,
		log:          log,
	}
}

// Purchase executes the atomic purchase path: lock buyer, lock product,
// resolve price, check funds, allocate the oldest unit, debit the wallet
// and snapshot the order. Any failure rolls the whole thing back.
func (s *PurchaseServiceImpl) Purchase(ctx context.Context, req ports.PurchaseRequest) (*ports.PurchaseResult, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	// Lock & get buyer account
	account, err := s.accountRepo.GetByIDForUpdate(ctx, dbTx, req.SellerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrNotFound("account")
	}
	if !account.CanPurchase() {
		return nil, apperror.ErrAccountLocked()
	}

	// Lock & get product
	product, err := s.productRepo.GetByIDForUpdate(ctx, dbTx, req.ProductID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock product: %w", err))
	}
	if product == nil {
		return nil, apperror.ErrNotFound("product")
	}

	// Resolve effective price: a positive seller override wins over
	// the base price.
	price := product.BasePrice
	override, err := s.overrideRepo.Get(ctx, req.SellerID, req.ProductID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get price override: %w", err))
	}
	if override != nil && override.Price > 0 {
		price = override.Price
	}

	// Business rule: sufficient funds
	if account.Balance < price {
		return nil, apperror.ErrInsufficientBalance()
	}

	// Allocate oldest-stocked unit with remaining quantity
	unit, err := s.productRepo.FirstUnitForUpdate(ctx, dbTx, req.ProductID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock inventory unit: %w", err))
	}
	if unit == nil {
		return nil, apperror.ErrOutOfStock()
	}

	value, err := s.encSvc.Decrypt(unit.ValueEnc)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(fmt.Errorf("decrypt unit value: %w", err))
	}

	// Persist: consume the unit and adjust product aggregates
	if err := s.productRepo.ConsumeUnit(ctx, dbTx, unit.ID, req.SellerID); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("consume unit: %w", err))
	}
	if err := s.productRepo.UpdateAggregates(ctx, dbTx, product.ID, -1, 1); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update product aggregates: %w", err))
	}

	// Persist: debit wallet
	newBalance := account.Balance - price
	if err := s.accountRepo.UpdateBalance(ctx, dbTx, account.ID, newBalance); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("debit wallet: %w", err))
	}

	// Persist: immutable order snapshot
	now := time.Now().UTC()
	order := &domain.Order{
		ID:               uuid.New(),
		SellerID:         req.SellerID,
		ProductID:        product.ID,
		ProductName:      product.Name,
		RedeemedValueEnc: unit.ValueEnc,
		Price:            price,
		CreatedAt:        now,
	}
	if err := s.orderRepo.Create(ctx, dbTx, order); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create order: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.auditSvc.Record(ctx, &req.SellerID, domain.AuditPurchase,
		fmt.Sprintf("order=%s product=%s price=%d", order.ID, product.ID, price), req.ClientIP)

	s.log.Info().
		Str("order_id", order.ID.String()).
		Str("seller_id", req.SellerID.String()).
		Str("product_id", product.ID.String()).
		Int64("price", price).
		Int64("new_balance", newBalance).
		Msg("purchase completed")

	return &ports.PurchaseResult{
		Order:         order,
		RedeemedValue: value,
		NewBalance:    newBalance,
	}, nil
}
