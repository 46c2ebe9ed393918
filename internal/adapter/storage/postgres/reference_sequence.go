package postgres

import (
	"context"
	"fmt"
)

// ReferenceSequenceRepo implements ports.ReferenceSequence over a
// native PostgreSQL sequence. nextval never hands out the same value
// twice, even across crashes and restarts, which is exactly the
// reservation property transfer references need.
type ReferenceSequenceRepo struct {
	pool Pool
}

// NewReferenceSequenceRepo creates a new ReferenceSequenceRepo.
func NewReferenceSequenceRepo(pool Pool) *ReferenceSequenceRepo {
	return &ReferenceSequenceRepo{pool: pool}
}

// Next allocates the next sequence value.
func (r *ReferenceSequenceRepo) Next(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT nextval('transfer_reference_seq')`).Scan(&n); err != nil {
		return 0, fmt.Errorf("next transfer reference: %w", err)
	}
	return n, nil
}
