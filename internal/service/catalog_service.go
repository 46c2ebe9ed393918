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

// CatalogServiceImpl implements ports.CatalogService.
type CatalogServiceImpl struct {
	productRepo ports.ProductRepository
	encSvc      ports.EncryptionService
	log         zerolog.Logger
}

// NewCatalogService creates a new CatalogServiceImpl.
func NewCatalogService(productRepo ports.ProductRepository, encSvc ports.EncryptionService, log zerolog.Logger) *CatalogServiceImpl {
	return &CatalogServiceImpl{productRepo: productRepo, encSvc: encSvc, log: log}
}

// CreateProduct registers a new product with no stock.
func (s *CatalogServiceImpl) CreateProduct(ctx context.Context, categoryID uuid.UUID, name string, basePrice int64) (*domain.Product, error) {
	if basePrice <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if name == "" {
		return nil, apperror.Validation("product name is required")
	}

	now := time.Now().UTC()
	product := &domain.Product{
		ID:         uuid.New(),
		CategoryID: categoryID,
		Name:       name,
		BasePrice:  basePrice,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.productRepo.Create(ctx, product); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create product: %w", err))
	}

	s.log.Info().Str("product_id", product.ID.String()).Str("name", name).Int64("base_price", basePrice).Msg("product created")
	return product, nil
}

// AddInventory stocks one unit per value at the end of the allocation
// order, preserving the order given. The whole batch lands atomically,
// and every value is encrypted before it ever reaches storage.
func (s *CatalogServiceImpl) AddInventory(ctx context.Context, productID uuid.UUID, values []string) (int64, error) {
	if len(values) == 0 {
		return 0, apperror.Validation("at least one unit value is required")
	}
	for _, v := range values {
		if v == "" {
			return 0, apperror.Validation("unit value is required")
		}
	}

	product, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("get product: %w", err))
	}
	if product == nil {
		return 0, apperror.ErrNotFound("product")
	}

	now := time.Now().UTC()
	base := now.UnixNano()
	units := make([]*domain.InventoryUnit, len(values))
	for i, v := range values {
		valueEnc, err := s.encSvc.Encrypt(v)
		if err != nil {
			return 0, apperror.ErrEncryptionFailure(fmt.Errorf("encrypt unit value: %w", err))
		}
		units[i] = &domain.InventoryUnit{
			ID:           uuid.New(),
			ProductID:    productID,
			ValueEnc:     valueEnc,
			QtyAvailable: 1,
			Position:     base + int64(i),
			CreatedAt:    now,
		}
	}
	if err := s.productRepo.AddUnits(ctx, units); err != nil {
		return 0, apperror.InternalError(fmt.Errorf("add inventory units: %w", err))
	}

	s.log.Info().Str("product_id", productID.String()).Int("count", len(units)).Msg("inventory stocked")
	return int64(len(units)), nil
}

// ListProducts returns the catalog.
func (s *CatalogServiceImpl) ListProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := s.productRepo.List(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list products: %w", err))
	}
	return products, nil
}
