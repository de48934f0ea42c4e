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
	"github.com/resident-trust-ledger/internal/domain/ledger"
	"github.com/resident-trust-ledger/internal/domain/reporting"
	"github.com/resident-trust-ledger/internal/domain/resident"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/platform/cache"
	"github.com/shopspring/decimal"
)

// RecordEntryRequest carries the inputs of a single ledger posting
type RecordEntryRequest struct {
	ResidentID    uuid.UUID
	Type          shared.EntryType
	Amount        decimal.Decimal
	Method        shared.PaymentMethod
	Description   string
	Source        ledger.Source
	CreatedBy     string
	CorrelationID string
}

// Reconciliation is the result of checking one resident balance against its ledger
type Reconciliation struct {
	ResidentID uuid.UUID       `json:"resident_id"`
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Difference decimal.Decimal `json:"difference"`
	Consistent bool            `json:"consistent"`
	CheckedAt  time.Time       `json:"checked_at"`
}

// LedgerService owns the resident balance invariant
type LedgerService struct {
	logger      *slog.Logger
	residents   resident.Repository
	entries     ledger.Repository
	withdrawals reporting.WithdrawalRepository
	cashBox     CashMirror
	cache       cache.Cache
	retryDelay  time.Duration
}

// NewLedgerService wires the ledger. cashBox may be nil, in which case cash
// entries are not mirrored.
func NewLedgerService(
	logger *slog.Logger,
	residents resident.Repository,
	entries ledger.Repository,
	withdrawals reporting.WithdrawalRepository,
	cashBox CashMirror,
	c cache.Cache,
	cfg config.LedgerConfig,
) *LedgerService {
	if c == nil {
		c = cache.Noop{}
	}
	return &LedgerService{
		logger:      logger,
		residents:   residents,
		entries:     entries,
		withdrawals: withdrawals,
		cashBox:     cashBox,
		cache:       c,
		retryDelay:  cfg.AdjustRetryDelay,
	}
}

func (s *LedgerService) OpenAccount(ctx context.Context, facilityID uuid.UUID, name string) (*resident.Account, error) {
	acc, err := resident.NewAccount(facilityID, name)
	if err != nil {
		return nil, err
	}
	if err := s.residents.Create(ctx, acc); err != nil {
		return nil, shared.Remote("create resident", err)
	}
	s.logger.Info("Resident account opened", "resident_id", acc.ID, "facility_id", facilityID)
	return acc, nil
}

func (s *LedgerService) GetAccount(ctx context.Context, residentID uuid.UUID) (*resident.Account, error) {
	acc, err := s.residents.GetByID(ctx, residentID)
	if err != nil {
		return nil, shared.Remote("get resident", err)
	}
	return acc, nil
}

func (s *LedgerService) ListAccounts(ctx context.Context, facilityID uuid.UUID) ([]*resident.Account, error) {
	accounts, err := s.residents.ListByFacility(ctx, facilityID)
	if err != nil {
		return nil, shared.Remote("list residents", err)
	}
	return accounts, nil
}

func (s *LedgerService) Deactivate(ctx context.Context, residentID uuid.UUID) (*resident.Account, error) {
	acc, err := s.GetAccount(ctx, residentID)
	if err != nil {
		return nil, err
	}
	if !acc.Deactivate() {
		return acc, nil
	}
	if err := s.residents.UpdateStatus(ctx, residentID, acc.Status); err != nil {
		return nil, shared.Remote("deactivate resident", err)
	}
	s.logger.Info("Resident account deactivated", "resident_id", residentID)
	return acc, nil
}

// GetBalance reads through the cache. Posting paths never use it.
func (s *LedgerService) GetBalance(ctx context.Context, residentID uuid.UUID) (decimal.Decimal, error) {
	return cache.ReadThrough(ctx, s.cache, s.logger, cache.ResidentBalanceKey(residentID),
		func(ctx context.Context) (decimal.Decimal, error) {
			acc, err := s.GetAccount(ctx, residentID)
			if err != nil {
				return decimal.Zero, err
			}
			return acc.Balance, nil
		})
}

func (s *LedgerService) ListEntries(ctx context.Context, residentID uuid.UUID, limit int) ([]*ledger.Entry, error) {
	if _, err := s.GetAccount(ctx, residentID); err != nil {
		return nil, err
	}
	entries, err := s.entries.ListByResident(ctx, residentID, limit)
	if err != nil {
		return nil, shared.Remote("list resident entries", err)
	}
	return entries, nil
}

func (s *LedgerService) ListFacilityEntries(ctx context.Context, facilityID uuid.UUID, limit int) ([]*ledger.Entry, error) {
	entries, err := s.entries.ListByFacility(ctx, facilityID, limit)
	if err != nil {
		return nil, shared.Remote("list facility entries", err)
	}
	return entries, nil
}

func (s *LedgerService) ListFacilityEntriesInRange(ctx context.Context, facilityID uuid.UUID, from, to time.Time) ([]*ledger.Entry, error) {
	if !from.Before(to) {
		return nil, shared.NewValidationError("to", "must be after from")
	}
	entries, err := s.entries.ListByFacilityRange(ctx, facilityID, from, to)
	if err != nil {
		return nil, shared.Remote("list facility entries", err)
	}
	return entries, nil
}

func (s *LedgerService) ListWithdrawals(ctx context.Context, facilityID uuid.UUID, from, to time.Time) ([]*reporting.WithdrawalRecord, error) {
	if !from.Before(to) {
		return nil, shared.NewValidationError("to", "must be after from")
	}
	records, err := s.withdrawals.ListByFacility(ctx, facilityID, from, to)
	if err != nil {
		return nil, shared.Remote("list withdrawals", err)
	}
	return records, nil
}

func (s *LedgerService) Reconcile(ctx context.Context, residentID uuid.UUID) (*Reconciliation, error) {
	acc, err := s.GetAccount(ctx, residentID)
	if err != nil {
		return nil, err
	}
	sum, err := s.entries.SumByResident(ctx, residentID)
	if err != nil {
		return nil, shared.Remote("sum resident entries", err)
	}

	diff := acc.Balance.Sub(sum)
	rec := &Reconciliation{
		ResidentID: residentID,
		Balance:    acc.Balance,
		LedgerSum:  sum,
		Difference: diff,
		Consistent: diff.IsZero(),
		CheckedAt:  time.Now().UTC(),
	}
	if !rec.Consistent {
		s.logger.Error("Resident balance does not match ledger",
			"resident_id", residentID,
			"balance", acc.Balance.StringFixed(shared.MoneyScale),
			"ledger_sum", sum.StringFixed(shared.MoneyScale),
		)
	}
	return rec, nil
}

// RecordEntry appends the entry and then moves the balance by its signed
// amount. Debits are not checked against the balance here. If the balance
// cannot be moved after one retry the call fails even though the entry is
// durable, so the caller never sees success for a lost balance update.
//
// A sourced entry is recorded once. Re-recording a source whose entry never
// moved the balance resumes that entry; otherwise ErrDuplicateEntry is returned.
func (s *LedgerService) RecordEntry(ctx context.Context, req RecordEntryRequest) (*ledger.Entry, error) {
	logger := s.logger.With("resident_id", req.ResidentID.String())
	if req.CorrelationID != "" {
		logger = logger.With("correlation_id", req.CorrelationID)
	}

	acc, err := s.GetAccount(ctx, req.ResidentID)
	if err != nil {
		return nil, err
	}
	if err := acc.RequireActive(); err != nil {
		return nil, err
	}

	entry, err := ledger.NewEntry(ledger.NewEntryParams{
		ResidentID:  acc.ID,
		FacilityID:  acc.FacilityID,
		Type:        req.Type,
		Amount:      req.Amount,
		Method:      req.Method,
		Description: req.Description,
		Source:      req.Source,
		CreatedBy:   req.CreatedBy,
	})
	if err != nil {
		return nil, err
	}
	entry.CorrelationID = req.CorrelationID

	if err := s.entries.Create(ctx, entry); err != nil {
		if errors.Is(err, ledger.ErrDuplicateEntry{}) && entry.Source.ItemID != nil {
			return s.resumeDuplicate(ctx, logger, entry.Source, err)
		}
		return nil, shared.Remote("record ledger entry", err)
	}
	return s.applyEntry(ctx, logger, entry)
}

// resumeDuplicate finishes an earlier recording of the same source that
// stored its entry but failed to move the balance
func (s *LedgerService) resumeDuplicate(ctx context.Context, logger *slog.Logger, src ledger.Source, dup error) (*ledger.Entry, error) {
	existing, err := s.entries.GetBySource(ctx, src.Kind, *src.ItemID)
	if err != nil {
		return nil, shared.Remote("find recorded ledger entry", err)
	}
	if existing.BalanceApplied {
		return nil, shared.Remote("record ledger entry", dup)
	}

	logger.Warn("Resuming ledger entry recorded without balance change",
		"entry_id", existing.ID.String(),
		"source", existing.Source.Kind,
	)
	return s.applyEntry(ctx, logger, existing)
}

// applyEntry moves the balance for a stored entry and runs the follow-up writes
func (s *LedgerService) applyEntry(ctx context.Context, logger *slog.Logger, entry *ledger.Entry) (*ledger.Entry, error) {
	defer cache.Invalidate(ctx, s.cache, logger, cache.ResidentBalanceKey(entry.ResidentID))

	balance, err := s.adjustBalance(ctx, logger, entry)
	if err != nil {
		logger.Error("Ledger entry recorded but balance adjustment failed",
			"entry_id", entry.ID.String(),
			"delta", entry.SignedAmount().StringFixed(shared.MoneyScale),
			"error", err,
		)
		return nil, fmt.Errorf("entry %s recorded without balance change: %w", entry.ID, err)
	}
	entry.BalanceApplied = true

	logger.Info("Ledger entry recorded",
		"entry_id", entry.ID.String(),
		"type", entry.Type,
		"method", entry.Method,
		"amount", entry.Amount.StringFixed(shared.MoneyScale),
		"balance", balance.StringFixed(shared.MoneyScale),
		"source", entry.Source.Kind,
	)

	s.mirrorCash(ctx, logger, entry)
	s.appendWithdrawal(ctx, logger, entry)
	return entry, nil
}

// adjustBalance runs the balance chain and retries it once after retryDelay.
// An attempt whose write landed but whose reply was lost shows up as
// ErrBalanceAlreadyApplied on the retry and counts as success.
func (s *LedgerService) adjustBalance(ctx context.Context, logger *slog.Logger, entry *ledger.Entry) (decimal.Decimal, error) {
	delta := entry.SignedAmount()
	chain := s.balanceChain()

	balance, err := chain.apply(ctx, logger, entry.ResidentID, entry.ID, delta)
	if err == nil {
		return balance, nil
	}
	if errors.Is(err, resident.ErrBalanceAlreadyApplied{}) {
		return s.appliedBalance(ctx, entry)
	}

	logger.Warn("Balance adjustment failed, retrying once", "entry_id", entry.ID.String(), "error", err)
	select {
	case <-ctx.Done():
		return decimal.Zero, shared.Remote("adjust balance", ctx.Err())
	case <-time.After(s.retryDelay):
	}

	balance, err = chain.apply(ctx, logger, entry.ResidentID, entry.ID, delta)
	if errors.Is(err, resident.ErrBalanceAlreadyApplied{}) {
		return s.appliedBalance(ctx, entry)
	}
	if err != nil {
		return decimal.Zero, shared.Remote("adjust balance", err)
	}
	return balance, nil
}

func (s *LedgerService) appliedBalance(ctx context.Context, entry *ledger.Entry) (decimal.Decimal, error) {
	acc, err := s.GetAccount(ctx, entry.ResidentID)
	if err != nil {
		return decimal.Zero, err
	}
	return acc.Balance, nil
}

func (s *LedgerService) mirrorCash(ctx context.Context, logger *slog.Logger, entry *ledger.Entry) {
	if s.cashBox == nil || !entry.MovesCash() {
		return
	}

	txType := cashbox.TypeDeposit
	if entry.Type == shared.EntryTypeDebit {
		txType = cashbox.TypeWithdrawal
	}
	residentID := entry.ResidentID
	_, err := s.cashBox.ProcessTransaction(ctx, cashbox.TransactionParams{
		FacilityID:    entry.FacilityID,
		Type:          txType,
		Amount:        entry.Amount,
		Description:   entry.Description,
		ResidentID:    &residentID,
		UserID:        entry.CreatedBy,
		TransactionID: entry.CashBoxKey(),
	})
	if err != nil {
		// the resident side is already consistent; the key makes a later replay safe
		logger.Error("Failed to mirror cash entry into cash box",
			"entry_id", entry.ID.String(),
			"facility_id", entry.FacilityID.String(),
			"error", err,
		)
	}
}

func (s *LedgerService) appendWithdrawal(ctx context.Context, logger *slog.Logger, entry *ledger.Entry) {
	if s.withdrawals == nil {
		return
	}
	record, err := reporting.NewWithdrawalRecord(entry)
	if errors.Is(err, reporting.ErrNotWithdrawal) {
		return
	}
	if err == nil {
		err = s.withdrawals.Append(ctx, record)
	}
	if err != nil {
		logger.Warn("Failed to append withdrawal record, outbox poller will retry",
			"entry_id", entry.ID.String(),
			"error", err,
		)
	}
}
