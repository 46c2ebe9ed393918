package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"keymarket/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ExchangeRateRepo implements ports.ExchangeRateRepository over a
// single-row table. Before the first SetRate the configured default
// rate is served.
type ExchangeRateRepo struct {
	pool        Pool
	defaultRate float64
}

// NewExchangeRateRepo creates a new ExchangeRateRepo.
func NewExchangeRateRepo(pool Pool, defaultRate float64) *ExchangeRateRepo {
	return &ExchangeRateRepo{pool: pool, defaultRate: defaultRate}
}

// Get returns the current rate.
func (r *ExchangeRateRepo) Get(ctx context.Context) (*domain.ExchangeRate, error) {
	rate := &domain.ExchangeRate{}
	err := r.pool.QueryRow(ctx,
		`SELECT rate, updated_at FROM exchange_rate WHERE id = 1`,
	).Scan(&rate.Rate, &rate.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &domain.ExchangeRate{Rate: r.defaultRate}, nil
		}
		return nil, fmt.Errorf("get exchange rate: %w", err)
	}
	return rate, nil
}

// Set replaces the rate.
func (r *ExchangeRateRepo) Set(ctx context.Context, rate float64) error {
	query := `INSERT INTO exchange_rate (id, rate, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET rate = EXCLUDED.rate, updated_at = EXCLUDED.updated_at`

	_, err := r.pool.Exec(ctx, query, rate, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set exchange rate: %w", err)
	}
	return nil
}
