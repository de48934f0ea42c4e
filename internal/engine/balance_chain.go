package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// strategy is one way of performing a balance update
type strategy[T any] struct {
	name string
	run  func(ctx context.Context) (T, error)
}

// runChain tries strategies in order. A strategy that reports
// shared.ErrPrimitiveUnavailable hands over to the next one; any other result
// is final.
func runChain[T any](ctx context.Context, logger *slog.Logger, strategies []strategy[T]) (T, error) {
	var zero T
	for _, st := range strategies {
		result, err := st.run(ctx)
		if errors.Is(err, shared.ErrPrimitiveUnavailable) {
			logger.Warn("Balance primitive unavailable, falling back", "primitive", st.name)
			continue
		}
		if err != nil {
			return zero, fmt.Errorf("%s: %w", st.name, err)
		}
		return result, nil
	}
	return zero, fmt.Errorf("no balance primitive available: %w", shared.ErrPrimitiveUnavailable)
}

type residentBalanceChain struct {
	s *LedgerService
}

func (s *LedgerService) balanceChain() residentBalanceChain {
	return residentBalanceChain{s: s}
}

func (c residentBalanceChain) apply(ctx context.Context, logger *slog.Logger, residentID, entryID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	repo := c.s.residents
	return runChain(ctx, logger, []strategy[decimal.Decimal]{
		{
			name: "adjust_resident_balance",
			run: func(ctx context.Context) (decimal.Decimal, error) {
				return repo.AdjustBalanceAtomic(ctx, residentID, entryID, delta)
			},
		},
		{
			name: "increment_resident_balance",
			run: func(ctx context.Context) (decimal.Decimal, error) {
				return repo.IncrementBalance(ctx, residentID, entryID, delta)
			},
		},
		{
			// read then write, guarded by the account version
			name: "versioned_balance_write",
			run: func(ctx context.Context) (decimal.Decimal, error) {
				acc, err := repo.GetByID(ctx, residentID)
				if err != nil {
					return decimal.Zero, err
				}
				next := acc.Balance.Add(delta)
				if err := repo.WriteBalance(ctx, residentID, entryID, next, acc.Version); err != nil {
					return decimal.Zero, err
				}
				return next, nil
			},
		},
	})
}
