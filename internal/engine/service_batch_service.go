package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/batch"
	"github.com/resident-trust-ledger/internal/domain/ledger"
	"github.com/resident-trust-ledger/internal/domain/resident"
	"github.com/resident-trust-ledger/internal/domain/servicebatch"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/platform/cache"
	"github.com/shopspring/decimal"
)

// ItemOutcome reports what happened to one item or entry during a post or close
type ItemOutcome struct {
	ItemID     uuid.UUID       `json:"item_id"`
	ResidentID uuid.UUID       `json:"resident_id"`
	Amount     decimal.Decimal `json:"amount"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
}

// PostResult is the outcome of posting a service batch
type PostResult struct {
	Batch          *servicebatch.Batch `json:"batch"`
	Outcomes       []ItemOutcome       `json:"outcomes"`
	ProcessedCount int                 `json:"processed_count"`
	FailedCount    int                 `json:"failed_count"`
}

type ServiceBatchService struct {
	logger    *slog.Logger
	batches   servicebatch.Repository
	residents resident.Repository
	recorder  EntryRecorder
	cache     cache.Cache
	now       func() time.Time
}

func NewServiceBatchService(
	logger *slog.Logger,
	batches servicebatch.Repository,
	residents resident.Repository,
	recorder EntryRecorder,
	c cache.Cache,
) *ServiceBatchService {
	if c == nil {
		c = cache.Noop{}
	}
	return &ServiceBatchService{
		logger:    logger,
		batches:   batches,
		residents: residents,
		recorder:  recorder,
		cache:     c,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *ServiceBatchService) Create(ctx context.Context, facilityID uuid.UUID, serviceType servicebatch.ServiceType, createdBy string) (*servicebatch.Batch, error) {
	b, err := servicebatch.NewBatch(facilityID, serviceType, createdBy)
	if err != nil {
		return nil, err
	}
	if err := s.batches.Create(ctx, b); err != nil {
		return nil, shared.Remote("create service batch", err)
	}
	s.logger.Info("Service batch created", "batch_id", b.ID, "facility_id", facilityID, "service_type", serviceType)
	return b, nil
}

func (s *ServiceBatchService) Get(ctx context.Context, batchID uuid.UUID) (*servicebatch.Batch, error) {
	return cache.ReadThrough(ctx, s.cache, s.logger, cache.ServiceBatchKey(batchID), func(ctx context.Context) (*servicebatch.Batch, error) {
		return s.load(ctx, batchID)
	})
}

// load always reads the store
func (s *ServiceBatchService) load(ctx context.Context, batchID uuid.UUID) (*servicebatch.Batch, error) {
	b, err := s.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, shared.Remote("get service batch", err)
	}
	return b, nil
}

func (s *ServiceBatchService) ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]*servicebatch.Batch, error) {
	batches, err := s.batches.ListByFacility(ctx, facilityID)
	if err != nil {
		return nil, shared.Remote("list service batches", err)
	}
	return batches, nil
}

// loadOpen returns the batch if it exists and is still open
func (s *ServiceBatchService) loadOpen(ctx context.Context, batchID uuid.UUID) (*servicebatch.Batch, error) {
	b, err := s.load(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := b.RequireOpen(); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *ServiceBatchService) AddItem(ctx context.Context, batchID, residentID uuid.UUID, amount decimal.Decimal) (*servicebatch.Item, error) {
	item, err := servicebatch.NewItem(batchID, residentID, amount)
	if err != nil {
		return nil, err
	}
	b, err := s.loadOpen(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := s.requireMember(ctx, b.FacilityID, residentID); err != nil {
		return nil, err
	}

	stored, err := s.batches.UpsertItem(ctx, item)
	if err != nil {
		return nil, shared.Remote("upsert service batch item", err)
	}
	if err := s.recompute(ctx, batchID); err != nil {
		return nil, err
	}
	return stored, nil
}

func (s *ServiceBatchService) UpdateItem(ctx context.Context, batchID, residentID uuid.UUID, amount decimal.Decimal) error {
	if err := shared.ValidateAmount("amount", amount); err != nil {
		return err
	}
	if _, err := s.loadOpen(ctx, batchID); err != nil {
		return err
	}
	if err := s.batches.UpdateItemAmount(ctx, batchID, residentID, amount); err != nil {
		return shared.Remote("update service batch item", err)
	}
	return s.recompute(ctx, batchID)
}

func (s *ServiceBatchService) RemoveItem(ctx context.Context, batchID, residentID uuid.UUID) error {
	if _, err := s.loadOpen(ctx, batchID); err != nil {
		return err
	}
	if err := s.batches.DeleteItem(ctx, batchID, residentID); err != nil {
		return shared.Remote("remove service batch item", err)
	}
	return s.recompute(ctx, batchID)
}

func (s *ServiceBatchService) recompute(ctx context.Context, batchID uuid.UUID) error {
	defer cache.Invalidate(ctx, s.cache, s.logger, cache.ServiceBatchKey(batchID))
	if _, err := s.batches.RecomputeTotal(ctx, batchID); err != nil {
		return shared.Remote("recompute service batch total", err)
	}
	return nil
}

// requireMember checks the resident is an active account of the batch facility
func (s *ServiceBatchService) requireMember(ctx context.Context, facilityID, residentID uuid.UUID) error {
	acc, err := s.residents.GetByID(ctx, residentID)
	if err != nil {
		return shared.Remote("get resident", err)
	}
	if acc.FacilityID != facilityID {
		return shared.NewValidationError("resident_id", "resident belongs to another facility")
	}
	return acc.RequireActive()
}

// Post attempts every pending item in order. Items that fail are recorded
// with their reason and never stop the remaining items.
func (s *ServiceBatchService) Post(ctx context.Context, batchID uuid.UUID, postedBy, chequeNumber string) (*PostResult, error) {
	if postedBy == "" {
		return nil, shared.NewValidationError("posted_by", "is required")
	}
	b, err := s.load(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := b.RequirePostable(); err != nil {
		return nil, err
	}
	defer cache.Invalidate(ctx, s.cache, s.logger, cache.ServiceBatchKey(batchID))

	logger := s.logger.With("batch_id", batchID.String())
	logger.Info("Posting service batch", "items", len(b.Items))

	outcomes, succeeded := batch.Run(ctx, b.PendingItems(), func(ctx context.Context, item *servicebatch.Item) error {
		return s.postItem(ctx, logger, b, item, postedBy, chequeNumber)
	})

	b.MarkPosted(postedBy, s.now())
	if err := s.batches.MarkPosted(ctx, b); err != nil {
		return nil, shared.Remote("mark service batch posted", err)
	}
	if total, err := s.batches.RecomputeTotal(ctx, batchID); err != nil {
		logger.Warn("Failed to recompute total after posting", "error", err)
	} else {
		b.TotalAmount = total
	}

	result := &PostResult{Batch: b, ProcessedCount: b.ProcessedCount, Outcomes: make([]ItemOutcome, 0, len(b.Items))}
	for _, it := range b.Items {
		out := ItemOutcome{ItemID: it.ID, ResidentID: it.ResidentID, Amount: it.Amount, Status: string(it.Status)}
		if it.ErrorMessage != nil {
			out.Error = *it.ErrorMessage
		}
		if it.Status == servicebatch.ItemFailed {
			result.FailedCount++
		}
		result.Outcomes = append(result.Outcomes, out)
	}

	logger.Info("Service batch posted",
		"attempted", len(outcomes),
		"succeeded", succeeded,
		"processed", result.ProcessedCount,
		"failed", result.FailedCount,
		"total_amount", b.TotalAmount.StringFixed(shared.MoneyScale),
	)
	return result, nil
}

func (s *ServiceBatchService) postItem(ctx context.Context, logger *slog.Logger, b *servicebatch.Batch, item *servicebatch.Item, postedBy, chequeNumber string) error {
	acc, err := s.residents.GetByID(ctx, item.ResidentID)
	if err != nil {
		return s.failItem(ctx, logger, item, err, err.Error())
	}
	if err := acc.RequireFunds(item.Amount); err != nil {
		return s.failItem(ctx, logger, item, err, servicebatch.InsufficientFundsMessage)
	}

	batchID, itemID := b.ID, item.ID
	_, err = s.recorder.RecordEntry(ctx, RecordEntryRequest{
		ResidentID:  item.ResidentID,
		Type:        shared.EntryTypeDebit,
		Amount:      item.Amount,
		Method:      shared.MethodManual,
		Description: b.EntryDescription(chequeNumber),
		Source: ledger.Source{
			Kind:         ledger.SourceServiceBatch,
			BatchID:      &batchID,
			ItemID:       &itemID,
			ServiceType:  string(b.ServiceType),
			ChequeNumber: chequeNumber,
		},
		CreatedBy: postedBy,
	})
	// a duplicate is only reported once its entry has moved the balance
	if err != nil && !errors.Is(err, ledger.ErrDuplicateEntry{}) {
		return s.failItem(ctx, logger, item, err, err.Error())
	}

	item.MarkProcessed(s.now())
	if err := s.batches.SaveItemOutcome(ctx, item); err != nil {
		// the debit landed; a repost finds the entry by source and marks it again
		logger.Error("Failed to save processed item", "item_id", item.ID.String(), "error", err)
	}
	return nil
}

func (s *ServiceBatchService) failItem(ctx context.Context, logger *slog.Logger, item *servicebatch.Item, cause error, message string) error {
	item.MarkFailed(message)
	logger.Warn("Service batch item failed",
		"item_id", item.ID.String(),
		"resident_id", item.ResidentID.String(),
		"amount", item.Amount.StringFixed(shared.MoneyScale),
		"reason", message,
	)
	if err := s.batches.SaveItemOutcome(ctx, item); err != nil {
		logger.Error("Failed to save failed item", "item_id", item.ID.String(), "error", err)
	}
	return cause
}

func (s *ServiceBatchService) Delete(ctx context.Context, batchID uuid.UUID) error {
	if _, err := s.loadOpen(ctx, batchID); err != nil {
		return err
	}
	if err := s.batches.Delete(ctx, batchID); err != nil {
		return shared.Remote("delete service batch", err)
	}
	cache.Invalidate(ctx, s.cache, s.logger, cache.ServiceBatchKey(batchID))
	s.logger.Info("Service batch deleted", "batch_id", batchID)
	return nil
}
