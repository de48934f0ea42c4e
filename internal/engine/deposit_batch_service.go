package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/batch"
	"github.com/resident-trust-ledger/internal/domain/depositbatch"
	"github.com/resident-trust-ledger/internal/domain/ledger"
	"github.com/resident-trust-ledger/internal/domain/resident"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/platform/cache"
)

// CloseResult is the outcome of closing a deposit batch
type CloseResult struct {
	Batch         *depositbatch.Batch `json:"batch"`
	Outcomes      []ItemOutcome       `json:"outcomes"`
	AlreadyClosed bool                `json:"already_closed"`
}

type DepositBatchService struct {
	logger    *slog.Logger
	batches   depositbatch.Repository
	residents resident.Repository
	recorder  EntryRecorder
	cache     cache.Cache
	now       func() time.Time
}

func NewDepositBatchService(
	logger *slog.Logger,
	batches depositbatch.Repository,
	residents resident.Repository,
	recorder EntryRecorder,
	c cache.Cache,
) *DepositBatchService {
	if c == nil {
		c = cache.Noop{}
	}
	return &DepositBatchService{
		logger:    logger,
		batches:   batches,
		residents: residents,
		recorder:  recorder,
		cache:     c,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *DepositBatchService) Create(ctx context.Context, facilityID uuid.UUID, description, createdBy string) (*depositbatch.Batch, error) {
	b, err := depositbatch.NewBatch(facilityID, description, createdBy)
	if err != nil {
		return nil, err
	}
	if err := s.batches.Create(ctx, b); err != nil {
		return nil, shared.Remote("create deposit batch", err)
	}
	s.logger.Info("Deposit batch created", "batch_id", b.ID, "facility_id", facilityID)
	return b, nil
}

func (s *DepositBatchService) Get(ctx context.Context, batchID uuid.UUID) (*depositbatch.Batch, error) {
	return cache.ReadThrough(ctx, s.cache, s.logger, cache.DepositBatchKey(batchID), func(ctx context.Context) (*depositbatch.Batch, error) {
		return s.load(ctx, batchID)
	})
}

func (s *DepositBatchService) load(ctx context.Context, batchID uuid.UUID) (*depositbatch.Batch, error) {
	b, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, shared.Remote("get deposit batch", err)
	}
	return b, nil
}

func (s *DepositBatchService) loadOpen(ctx context.Context, batchID uuid.UUID) (*depositbatch.Batch, error) {
	b, err := s.load(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := b.RequireOpen(); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *DepositBatchService) ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]*depositbatch.Batch, error) {
	batches, err := s.batches.ListByFacility(ctx, facilityID)
	if err != nil {
		return nil, shared.Remote("list deposit batches", err)
	}
	return batches, nil
}

// AddEntry validates the input before touching the store, so a cheque without
// a number is rejected before anything is written.
func (s *DepositBatchService) AddEntry(ctx context.Context, batchID uuid.UUID, in depositbatch.EntryInput) (*depositbatch.Entry, error) {
	entry, err := depositbatch.NewEntry(batchID, in)
	if err != nil {
		return nil, err
	}
	b, err := s.loadOpen(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, b.FacilityID, entry.ResidentID); err != nil {
		return nil, err
	}

	if err := s.batches.AddEntry(ctx, entry); err != nil {
		return nil, shared.Remote("add deposit entry", err)
	}
	if err := s.recompute(ctx, batchID); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *DepositBatchService) UpdateEntry(ctx context.Context, batchID, entryID uuid.UUID, in depositbatch.EntryInput) (*depositbatch.Entry, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	b, err := s.loadOpen(ctx, batchID)
	if err != nil {
		return nil, err
	}
	entry := b.FindEntry(entryID)
	if entry == nil {
		return nil, depositbatch.ErrEntryNotFound{EntryID: entryID}
	}
	if entry.Status != depositbatch.EntryPending {
		return nil, depositbatch.ErrEntryProcessed{EntryID: entryID}
	}
	if in.ResidentID != entry.ResidentID {
		if err := s.requireMember(ctx, b.FacilityID, in.ResidentID); err != nil {
			return nil, err
		}
	}
	if err := entry.Apply(in); err != nil {
		return nil, err
	}

	if err := s.batches.UpdateEntry(ctx, entry); err != nil {
		return nil, shared.Remote("update deposit entry", err)
	}
	if err := s.recompute(ctx, batchID); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *DepositBatchService) RemoveEntry(ctx context.Context, batchID, entryID uuid.UUID) error {
	if _, err := s.loadOpen(ctx, batchID); err != nil {
		return err
	}
	if err := s.batches.DeleteEntry(ctx, batchID, entryID); err != nil {
		return shared.Remote("remove deposit entry", err)
	}
	return s.recompute(ctx, batchID)
}

func (s *DepositBatchService) recompute(ctx context.Context, batchID uuid.UUID) error {
	defer cache.Invalidate(ctx, s.cache, s.logger, cache.DepositBatchKey(batchID))
	if _, err := s.batches.RecomputeTotals(ctx, batchID); err != nil {
		return shared.Remote("recompute deposit totals", err)
	}
	return nil
}

func (s *DepositBatchService) requireMember(ctx context.Context, facilityID, residentID uuid.UUID) error {
	acc, err := s.residents.GetByID(ctx, residentID)
	if err != nil {
		return shared.Remote("get resident", err)
	}
	if acc.FacilityID != facilityID {
		return shared.NewValidationError("resident_id", "resident belongs to another facility")
	}
	return acc.RequireActive()
}

func (s *DepositBatchService) Close(ctx context.Context, batchID uuid.UUID, closedBy string) (*CloseResult, error) {
	if closedBy == "" {
		return nil, shared.NewValidationError("closed_by", "is required")
	}
	b, err := s.load(ctx, batchID)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("batch_id", batchID.String())
	if b.IsClosed() {
		logger.Info("Deposit batch already closed, nothing to credit")
		return &CloseResult{Batch: b, Outcomes: outcomesOf(b, nil), AlreadyClosed: true}, nil
	}
	defer cache.Invalidate(ctx, s.cache, logger, cache.DepositBatchKey(batchID))

	pending := b.PendingEntries()
	logger.Info("Closing deposit batch", "pending_entries", len(pending))

	outcomes, succeeded := batch.Run(ctx, pending, func(ctx context.Context, e *depositbatch.Entry) error {
		return s.creditEntry(ctx, b, e, closedBy)
	})

	failures := make(map[uuid.UUID]error)
	for _, o := range outcomes {
		if o.Err != nil {
			failures[o.Item.ID] = o.Err
			logger.Warn("Deposit entry failed to post", "entry_id", o.Item.ID.String(), "error", o.Err)
		}
	}
	if len(failures) > 0 {
		result := &CloseResult{Batch: b, Outcomes: outcomesOf(b, failures)}
		return result, depositbatch.ErrPartialClose{BatchID: batchID, Failed: len(failures), Total: len(pending)}
	}

	b.MarkClosed(closedBy, s.now())
	if err := s.batches.MarkClosed(ctx, b); err != nil {
		if errors.Is(err, shared.ErrBatchNotOpen) {
			// closed by a concurrent request; its credits already landed
			current, loadErr := s.load(ctx, batchID)
			if loadErr != nil {
				return nil, loadErr
			}
			return &CloseResult{Batch: current, Outcomes: outcomesOf(current, nil), AlreadyClosed: true}, nil
		}
		return nil, shared.Remote("close deposit batch", err)
	}
	if totals, err := s.batches.RecomputeTotals(ctx, batchID); err != nil {
		logger.Warn("Failed to recompute totals after close", "error", err)
	} else {
		b.SetTotals(totals)
	}

	logger.Info("Deposit batch closed",
		"credited", succeeded,
		"total_amount", b.TotalAmount.StringFixed(shared.MoneyScale),
	)
	return &CloseResult{Batch: b, Outcomes: outcomesOf(b, nil)}, nil
}

// creditEntry posts one pending entry. An entry whose credit already exists
// from an earlier interrupted close is only marked processed.
func (s *DepositBatchService) creditEntry(ctx context.Context, b *depositbatch.Batch, e *depositbatch.Entry, closedBy string) error {
	batchID, entryID := b.ID, e.ID
	_, err := s.recorder.RecordEntry(ctx, RecordEntryRequest{
		ResidentID:  e.ResidentID,
		Type:        shared.EntryTypeCredit,
		Amount:      e.Amount,
		Method:      e.Method,
		Description: b.EntryDescription(e),
		Source: ledger.Source{
			Kind:         ledger.SourceDepositBatch,
			BatchID:      &batchID,
			ItemID:       &entryID,
			ChequeNumber: e.ChequeNumber,
		},
		CreatedBy: closedBy,
	})
	// a duplicate is only reported once its entry has moved the balance
	if err != nil && !errors.Is(err, ledger.ErrDuplicateEntry{}) {
		return err
	}

	at := s.now()
	if err := s.batches.MarkEntryProcessed(ctx, e.ID, at); err != nil {
		return shared.Remote("mark deposit entry processed", err)
	}
	e.MarkProcessed(at)
	return nil
}

func outcomesOf(b *depositbatch.Batch, failures map[uuid.UUID]error) []ItemOutcome {
	outcomes := make([]ItemOutcome, 0, len(b.Entries))
	for _, e := range b.Entries {
		out := ItemOutcome{ItemID: e.ID, ResidentID: e.ResidentID, Amount: e.Amount, Status: string(e.Status)}
		if err, failed := failures[e.ID]; failed {
			out.Error = err.Error()
		}
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (s *DepositBatchService) Delete(ctx context.Context, batchID uuid.UUID) error {
	if _, err := s.loadOpen(ctx, batchID); err != nil {
		return err
	}
	if err := s.batches.Delete(ctx, batchID); err != nil {
		return shared.Remote("delete deposit batch", err)
	}
	cache.Invalidate(ctx, s.cache, s.logger, cache.DepositBatchKey(batchID))
	s.logger.Info("Deposit batch deleted", "batch_id", batchID)
	return nil
}
