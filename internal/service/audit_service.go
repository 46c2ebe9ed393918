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

type auditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
}

// NewAuditService creates a new audit service.
// If repo is nil, audit events are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) ports.AuditService {
	return &auditService{repo: repo, log: log}
}

// Record writes an audit entry asynchronously (fire-and-forget).
func (s *auditService) Record(ctx context.Context, accountID *uuid.UUID, action domain.AuditAction, detail, ip string) {
	entry := &domain.AuditLog{
		ID:        uuid.New(),
		AccountID: accountID,
		Action:    action,
		Detail:    detail,
		IP:        ip,
		CreatedAt: time.Now().UTC(),
	}
	go func() {
		s.log.Info().
			Str("action", string(action)).
			Str("detail", detail).
			Str("ip", ip).
			Msg("audit")

		if s.repo != nil {
			if err := s.repo.Create(context.Background(), entry); err != nil {
				s.log.Warn().Err(err).Str("action", string(action)).Msg("failed to persist audit log")
			}
		}
	}()
}

// List returns audit entries newest first.
func (s *auditService) List(ctx context.Context, page, pageSize int) ([]domain.AuditLog, int64, error) {
	entries, total, err := s.repo.List(ctx, page, pageSize)
	if err != nil {
		return nil, 0, apperror.InternalError(fmt.Errorf("list audit logs: %w", err))
	}
	return entries, total, nil
}
