package service

import (
	"context"
	"fmt"
	"math"

	"keymarket/internal/core/ports"
	"keymarket/pkg/apperror"
)

// SequenceReferenceGenerator implements ports.ReferenceGenerator.
// References are built from a persistent monotone sequence, zero-padded
// to a fixed width, with two mod-97 check digits appended so a typo in
// a bank memo fails matching instead of settling the wrong invoice.
// Sequence values are never reused, including across restarts.
type SequenceReferenceGenerator struct {
	seq    ports.ReferenceSequence
	prefix string
	width  int
	max    int64 // first sequence value that no longer fits the width
}

// NewSequenceReferenceGenerator creates a generator with the given
// prefix and digit width for the sequence part.
func NewSequenceReferenceGenerator(seq ports.ReferenceSequence, prefix string, width int) *SequenceReferenceGenerator {
	return &SequenceReferenceGenerator{
		seq:    seq,
		prefix: prefix,
		width:  width,
		max:    int64(math.Pow10(width)),
	}
}

// Next allocates the next reference. Once the sequence outgrows the
// fixed width the generator is exhausted permanently; widening the
// format is an operator decision, not something to improvise here.
func (g *SequenceReferenceGenerator) Next(ctx context.Context) (string, error) {
	n, err := g.seq.Next(ctx)
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("next reference sequence: %w", err))
	}
	if n >= g.max {
		return "", apperror.ErrReferenceExhausted()
	}
	return fmt.Sprintf("%s%0*d%02d", g.prefix, g.width, n, checkDigits(n)), nil
}

// checkDigits computes ISO 7064 mod-97-10 style check digits for n.
func checkDigits(n int64) int64 {
	return 98 - (n*100)%97
}
