package service

import (
	"context"
	"fmt"

	"keymarket/internal/core/domain"
	"keymarket/internal/core/ports"
	"keymarket/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ExchangeServiceImpl implements ports.ExchangeRateService.
// The rate applies to newly issued invoices only; invoices snapshot it.
type ExchangeServiceImpl struct {
	rateRepo ports.ExchangeRateRepository
	auditSvc ports.AuditService
	log      zerolog.Logger
}

// NewExchangeService creates a new ExchangeServiceImpl.
func NewExchangeService(rateRepo ports.ExchangeRateRepository, auditSvc ports.AuditService, log zerolog.Logger) *ExchangeServiceImpl {
	return &ExchangeServiceImpl{rateRepo: rateRepo, auditSvc: auditSvc, log: log}
}

// GetRate returns the current system-wide conversion rate.
func (s *ExchangeServiceImpl) GetRate(ctx context.Context) (*domain.ExchangeRate, error) {
	rate, err := s.rateRepo.Get(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get exchange rate: %w", err))
	}
	return rate, nil
}

// SetRate replaces the conversion rate. Must be strictly positive.
func (s *ExchangeServiceImpl) SetRate(ctx context.Context, rate float64, adminID uuid.UUID) (*domain.ExchangeRate, error) {
	if rate <= 0 {
		return nil, apperror.ErrInvalidRate()
	}
	if err := s.rateRepo.Set(ctx, rate); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("set exchange rate: %w", err))
	}

	s.auditSvc.Record(ctx, &adminID, domain.AuditRateChanged, fmt.Sprintf("rate=%g", rate), "")
	s.log.Info().Float64("rate", rate).Str("admin_id", adminID.String()).Msg("exchange rate updated")

	return s.rateRepo.Get(ctx)
}
