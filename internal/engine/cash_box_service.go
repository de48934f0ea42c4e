package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/config"
	"github.com/resident-trust-ledger/internal/domain/cashbox"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/platform/cache"
	"github.com/shopspring/decimal"
)

const defaultHistoryLimit = 12

// CashBoxService is the facility cash sub-ledger
type CashBoxService struct {
	logger         *slog.Logger
	repo           cashbox.Repository
	history        cashbox.HistoryRepository
	cache          cache.Cache
	opening        decimal.Decimal
	allowNonAtomic bool
	now            func() time.Time
}

func NewCashBoxService(
	logger *slog.Logger,
	repo cashbox.Repository,
	history cashbox.HistoryRepository,
	c cache.Cache,
	cashCfg config.CashBoxConfig,
	ledgerCfg config.LedgerConfig,
) (*CashBoxService, error) {
	opening, err := decimal.NewFromString(cashCfg.OpeningBalance)
	if err != nil {
		return nil, fmt.Errorf("invalid cash box opening balance %q: %w", cashCfg.OpeningBalance, err)
	}
	if c == nil {
		c = cache.Noop{}
	}
	return &CashBoxService{
		logger:         logger,
		repo:           repo,
		history:        history,
		cache:          c,
		opening:        opening,
		allowNonAtomic: ledgerCfg.AllowNonAtomicFallback,
		now:            func() time.Time { return time.Now().UTC() },
	}, nil
}

// GetBalance reads through the cache and falls back to the opening amount
// for a facility that has no balance row yet
func (s *CashBoxService) GetBalance(ctx context.Context, facilityID uuid.UUID) (decimal.Decimal, error) {
	return cache.ReadThrough(ctx, s.cache, s.logger, cache.CashBoxBalanceKey(facilityID), func(ctx context.Context) (decimal.Decimal, error) {
		balance, _, err := s.currentBalance(ctx, facilityID)
		return balance, err
	})
}

// currentBalance reads the store. exists is false when no row has been written yet.
func (s *CashBoxService) currentBalance(ctx context.Context, facilityID uuid.UUID) (balance decimal.Decimal, exists bool, err error) {
	b, err := s.repo.GetBalance(ctx, facilityID)
	if errors.Is(err, cashbox.ErrBalanceNotFound{}) {
		return s.opening, false, nil
	}
	if err != nil {
		return decimal.Zero, false, shared.Remote("get cash box balance", err)
	}
	return b.Balance, true, nil
}

// ProcessTransaction applies a cash movement at most once per TransactionID.
// A repeated key returns the transaction stored by the first call.
func (s *CashBoxService) ProcessTransaction(ctx context.Context, p cashbox.TransactionParams) (*cashbox.Transaction, error) {
	tx, err := cashbox.NewTransaction(p)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("facility_id", tx.FacilityID.String(), "transaction_id", tx.TransactionID)
	defer cache.Invalidate(ctx, s.cache, logger, cache.CashBoxBalanceKey(tx.FacilityID))

	stored, err := runChain(ctx, logger, []strategy[*cashbox.Transaction]{
		{
			name: "process_cash_box_transaction",
			run: func(ctx context.Context) (*cashbox.Transaction, error) {
				return s.repo.ApplyTransaction(ctx, tx, s.opening)
			},
		},
		{
			name: "adjust_cash_box_balance",
			run: func(ctx context.Context) (*cashbox.Transaction, error) {
				return s.adjustThenInsert(ctx, logger, tx)
			},
		},
		{
			name: "read_then_write",
			run: func(ctx context.Context) (*cashbox.Transaction, error) {
				return s.readThenWrite(ctx, logger, tx)
			},
		},
	})
	if err != nil {
		return nil, shared.Remote("process cash box transaction", err)
	}

	if stored.ID != tx.ID {
		logger.Info("Cash box transaction already applied", "existing_id", stored.ID.String())
	} else {
		logger.Info("Cash box transaction applied",
			"type", stored.Type,
			"amount", stored.Amount.StringFixed(shared.MoneyScale),
			"balance_after", stored.BalanceAfter.StringFixed(shared.MoneyScale),
		)
	}
	return stored, nil
}

// existing returns the transaction stored under tx's key, or nil
func (s *CashBoxService) existing(ctx context.Context, tx *cashbox.Transaction) (*cashbox.Transaction, error) {
	found, err := s.repo.GetTransaction(ctx, tx.FacilityID, tx.TransactionID)
	if errors.Is(err, cashbox.ErrTransactionNotFound{}) {
		return nil, nil
	}
	return found, err
}

// adjustThenInsert moves the balance atomically and then appends the row.
// The two calls are not one unit; a key that races in between is compensated.
func (s *CashBoxService) adjustThenInsert(ctx context.Context, logger *slog.Logger, tx *cashbox.Transaction) (*cashbox.Transaction, error) {
	if found, err := s.existing(ctx, tx); err != nil || found != nil {
		return found, err
	}

	balance, err := s.repo.AdjustBalance(ctx, tx.FacilityID, tx.Delta(), s.opening)
	if err != nil {
		return nil, err
	}
	tx.BalanceAfter = balance

	inserted, err := s.repo.InsertTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	if inserted {
		return tx, nil
	}

	logger.Warn("Duplicate cash box key raced the balance update, reverting")
	if _, err := s.repo.AdjustBalance(ctx, tx.FacilityID, tx.Delta().Neg(), s.opening); err != nil {
		return nil, fmt.Errorf("failed to revert duplicate cash box adjustment: %w", err)
	}
	return s.repo.GetTransaction(ctx, tx.FacilityID, tx.TransactionID)
}

// readThenWrite is the last resort for stores without either atomic
// primitive. The write is compare-and-set on the balance that was read, so a
// concurrent writer makes it fail with shared.ErrConcurrencyHazard instead of
// losing an update.
// TODO: remove once every deployed schema ships process_cash_box_transaction.
func (s *CashBoxService) readThenWrite(ctx context.Context, logger *slog.Logger, tx *cashbox.Transaction) (*cashbox.Transaction, error) {
	if !s.allowNonAtomic {
		return nil, fmt.Errorf("store has no atomic cash box primitive and the non-atomic fallback is disabled: %w", shared.ErrConcurrencyHazard)
	}
	logger.Warn("Using non-atomic cash box fallback")

	if found, err := s.existing(ctx, tx); err != nil || found != nil {
		return found, err
	}

	current, exists, err := s.currentBalance(ctx, tx.FacilityID)
	if err != nil {
		return nil, err
	}
	var expected *decimal.Decimal
	if exists {
		expected = &current
	}

	next := current.Add(tx.Delta())
	if err := s.repo.WriteBalance(ctx, tx.FacilityID, next, expected); err != nil {
		return nil, err
	}
	tx.BalanceAfter = next

	inserted, err := s.repo.InsertTransaction(ctx, tx)
	if err != nil {
		return nil, err
	}
	if !inserted {
		if err := s.repo.WriteBalance(ctx, tx.FacilityID, current, &next); err != nil {
			return nil, fmt.Errorf("failed to revert duplicate cash box write: %w", err)
		}
		return s.repo.GetTransaction(ctx, tx.FacilityID, tx.TransactionID)
	}
	return tx, nil
}

// periodStart is the reset date of the last completed period, or zero
func (s *CashBoxService) periodStart(ctx context.Context, facilityID uuid.UUID) (*cashbox.History, time.Time, error) {
	latest, err := s.history.GetLatest(ctx, facilityID)
	if err != nil {
		return nil, time.Time{}, shared.Remote("get latest cash box history", err)
	}
	if latest == nil {
		return nil, time.Time{}, nil
	}
	return latest, latest.ResetDate, nil
}

func (s *CashBoxService) ListTransactions(ctx context.Context, facilityID uuid.UUID) ([]*cashbox.Transaction, error) {
	_, since, err := s.periodStart(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactions(ctx, facilityID, since)
	if err != nil {
		return nil, shared.Remote("list cash box transactions", err)
	}
	return txs, nil
}

// ResetMonthly archives first and resets second. If an earlier call archived
// but did not reset, only the reset is retried.
func (s *CashBoxService) ResetMonthly(ctx context.Context, facilityID uuid.UUID, userID string) (*cashbox.History, error) {
	if facilityID == uuid.Nil {
		return nil, shared.NewValidationError("facility_id", "is required")
	}
	if userID == "" {
		return nil, shared.NewValidationError("user_id", "is required")
	}
	logger := s.logger.With("facility_id", facilityID.String())

	incomplete, err := s.history.FindIncomplete(ctx, facilityID)
	if err != nil {
		return nil, shared.Remote("find incomplete cash box reset", err)
	}
	if incomplete != nil {
		logger.Warn("Completing interrupted cash box reset", "history_id", incomplete.ID.String())
		return s.completeReset(ctx, logger, incomplete)
	}

	previous, since, err := s.periodStart(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	ending, _, err := s.currentBalance(ctx, facilityID)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactions(ctx, facilityID, since)
	if err != nil {
		return nil, shared.Remote("list cash box transactions", err)
	}

	h := cashbox.NewHistory(facilityID, previous, s.opening, ending, txs, userID, s.now())
	if err := s.history.Create(ctx, h); err != nil {
		return nil, shared.Remote("archive cash box period", err)
	}
	logger.Info("Cash box period archived",
		"history_id", h.ID.String(),
		"ending_balance", ending.StringFixed(shared.MoneyScale),
		"transactions", len(txs),
	)
	return s.completeReset(ctx, logger, h)
}

func (s *CashBoxService) completeReset(ctx context.Context, logger *slog.Logger, h *cashbox.History) (*cashbox.History, error) {
	defer cache.Invalidate(ctx, s.cache, logger, cache.CashBoxBalanceKey(h.FacilityID))

	if err := s.repo.SetBalance(ctx, h.FacilityID, h.ResetAmount); err != nil {
		logger.Error("Cash box archived but balance not reset", "history_id", h.ID.String(), "error", err)
		return nil, shared.Remote(fmt.Sprintf("reset cash box after archiving %s, retry the reset", h.ID), err)
	}
	h.MarkCompleted(s.now())
	if err := s.history.MarkCompleted(ctx, h); err != nil {
		return nil, shared.Remote("mark cash box reset completed", err)
	}

	logger.Info("Cash box reset", "history_id", h.ID.String(), "reset_amount", h.ResetAmount.StringFixed(shared.MoneyScale))
	return h, nil
}

func (s *CashBoxService) ListHistory(ctx context.Context, facilityID uuid.UUID, limit int) ([]*cashbox.History, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	histories, err := s.history.ListByFacility(ctx, facilityID, limit)
	if err != nil {
		return nil, shared.Remote("list cash box history", err)
	}
	return histories, nil
}
