package service

import (
	"context"
	"fmt"

	"keymarket/internal/core/ports"
	"keymarket/pkg/apperror"

	"github.com/google/uuid"
)

// PricingServiceImpl implements ports.PricingResolver.
// A positive per-seller override wins over the product base price,
// even when it is higher. Non-positive overrides are ignored.
type PricingServiceImpl struct {
	productRepo  ports.ProductRepository
	overrideRepo ports.PriceOverrideRepository
}

// NewPricingService creates a new PricingServiceImpl.
func NewPricingService(productRepo ports.ProductRepository, overrideRepo ports.PriceOverrideRepository) *PricingServiceImpl {
	return &PricingServiceImpl{productRepo: productRepo, overrideRepo: overrideRepo}
}

// Resolve returns the effective unit price in cents for the pair.
func (s *PricingServiceImpl) Resolve(ctx context.Context, sellerID, productID uuid.UUID) (int64, error) {
	override, err := s.overrideRepo.Get(ctx, sellerID, productID)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("get price override: %w", err))
	}
	if override != nil && override.Price > 0 {
		return override.Price, nil
	}

	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("get product: %w", err))
	}
	if product == nil {
		return 0, apperror.ErrNotFound("product")
	}
	return product.BasePrice, nil
}
