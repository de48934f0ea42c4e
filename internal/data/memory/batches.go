package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/batch"
	"github.com/resident-trust-ledger/internal/domain/depositbatch"
	"github.com/resident-trust-ledger/internal/domain/servicebatch"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ServiceBatchRepository implements servicebatch.Repository
type ServiceBatchRepository struct {
	s *Store
}

func (r *ServiceBatchRepository) Create(_ context.Context, b *servicebatch.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.serviceBatches[b.ID]; exists {
		return fmt.Errorf("service batch %s: %w", b.ID, shared.ErrInvalidState)
	}
	r.s.serviceBatches[b.ID] = copyServiceBatch(b, true)
	return nil
}

func (r *ServiceBatchRepository) GetByID(_ context.Context, id uuid.UUID) (*servicebatch.Batch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.serviceBatches[id]
	if !ok {
		return nil, servicebatch.ErrBatchNotFound{BatchID: id}
	}
	return copyServiceBatch(b, true), nil
}

func (r *ServiceBatchRepository) ListByFacility(_ context.Context, facilityID uuid.UUID) ([]*servicebatch.Batch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	batches := []*servicebatch.Batch{}
	for _, b := range r.s.serviceBatches {
		if b.FacilityID == facilityID {
			batches = append(batches, copyServiceBatch(b, false))
		}
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].CreatedAt.After(batches[j].CreatedAt) })
	return batches, nil
}

// open returns the stored batch if it can still be edited. Callers hold the lock.
func (r *ServiceBatchRepository) open(id uuid.UUID) (*servicebatch.Batch, error) {
	b, ok := r.s.serviceBatches[id]
	if !ok || b.Status != batch.StatusOpen {
		return nil, shared.ErrBatchNotOpen
	}
	return b, nil
}

func (r *ServiceBatchRepository) UpsertItem(_ context.Context, item *servicebatch.Item) (*servicebatch.Item, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, err := r.open(item.BatchID)
	if err != nil {
		return nil, err
	}
	if existing := b.FindItem(item.ResidentID); existing != nil {
		if existing.Status != servicebatch.ItemPending {
			return nil, servicebatch.ErrItemNotPending{BatchID: b.ID, ResidentID: item.ResidentID}
		}
		existing.Amount = item.Amount
		return copyServiceItem(existing), nil
	}
	stored := copyServiceItem(item)
	b.Items = append(b.Items, stored)
	return copyServiceItem(stored), nil
}

func (r *ServiceBatchRepository) UpdateItemAmount(_ context.Context, batchID, residentID uuid.UUID, amount decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, err := r.open(batchID)
	if err != nil {
		return servicebatch.ErrItemNotFound{BatchID: batchID, ResidentID: residentID}
	}
	it := b.FindItem(residentID)
	if it == nil {
		return servicebatch.ErrItemNotFound{BatchID: batchID, ResidentID: residentID}
	}
	if it.Status != servicebatch.ItemPending {
		return servicebatch.ErrItemNotPending{BatchID: batchID, ResidentID: residentID}
	}
	it.Amount = amount
	return nil
}

func (r *ServiceBatchRepository) DeleteItem(_ context.Context, batchID, residentID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, err := r.open(batchID)
	if err != nil {
		return servicebatch.ErrItemNotFound{BatchID: batchID, ResidentID: residentID}
	}
	for i, it := range b.Items {
		if it.ResidentID != residentID {
			continue
		}
		if it.Status != servicebatch.ItemPending {
			return servicebatch.ErrItemNotPending{BatchID: batchID, ResidentID: residentID}
		}
		b.Items = append(b.Items[:i], b.Items[i+1:]...)
		return nil
	}
	return servicebatch.ErrItemNotFound{BatchID: batchID, ResidentID: residentID}
}

func (r *ServiceBatchRepository) SaveItemOutcome(_ context.Context, item *servicebatch.Item) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.serviceBatches[item.BatchID]
	if !ok {
		return servicebatch.ErrItemNotFound{BatchID: item.BatchID, ResidentID: item.ResidentID}
	}
	for _, it := range b.Items {
		if it.ID == item.ID {
			it.Status = item.Status
			it.ErrorMessage = copyPtr(item.ErrorMessage)
			it.ProcessedAt = copyPtr(item.ProcessedAt)
			return nil
		}
	}
	return servicebatch.ErrItemNotFound{BatchID: item.BatchID, ResidentID: item.ResidentID}
}

func (r *ServiceBatchRepository) RecomputeTotal(_ context.Context, batchID uuid.UUID) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.serviceBatches[batchID]
	if !ok {
		return decimal.Zero, servicebatch.ErrBatchNotFound{BatchID: batchID}
	}
	b.TotalAmount = b.SumItems()
	return b.TotalAmount, nil
}

func (r *ServiceBatchRepository) MarkPosted(_ context.Context, b *servicebatch.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.serviceBatches[b.ID]
	if !ok || stored.Status != batch.StatusOpen {
		return shared.ErrBatchAlreadyPosted
	}
	stored.Status = servicebatch.StatusPosted
	stored.PostedBy = copyPtr(b.PostedBy)
	stored.PostedAt = copyPtr(b.PostedAt)
	stored.ProcessedCount = stored.CountProcessed()
	stored.TotalAmount = stored.SumItems()

	b.ProcessedCount = stored.ProcessedCount
	b.TotalAmount = stored.TotalAmount
	return nil
}

func (r *ServiceBatchRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, err := r.open(id); err != nil {
		return err
	}
	delete(r.s.serviceBatches, id)
	return nil
}

// DepositBatchRepository implements depositbatch.Repository
type DepositBatchRepository struct {
	s *Store
}

func (r *DepositBatchRepository) Create(_ context.Context, b *depositbatch.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.depositBatches[b.ID]; exists {
		return fmt.Errorf("deposit batch %s: %w", b.ID, shared.ErrInvalidState)
	}
	r.s.depositBatches[b.ID] = copyDepositBatch(b, true)
	return nil
}

func (r *DepositBatchRepository) GetByID(_ context.Context, id uuid.UUID) (*depositbatch.Batch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.depositBatches[id]
	if !ok {
		return nil, depositbatch.ErrBatchNotFound{BatchID: id}
	}
	return copyDepositBatch(b, true), nil
}

func (r *DepositBatchRepository) ListByFacility(_ context.Context, facilityID uuid.UUID) ([]*depositbatch.Batch, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	batches := []*depositbatch.Batch{}
	for _, b := range r.s.depositBatches {
		if b.FacilityID == facilityID {
			batches = append(batches, copyDepositBatch(b, false))
		}
	}
	sort.Slice(batches, func(i, j int) bool { return batches[i].CreatedAt.After(batches[j].CreatedAt) })
	return batches, nil
}

func (r *DepositBatchRepository) AddEntry(_ context.Context, e *depositbatch.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.depositBatches[e.BatchID]
	if !ok || b.Status != batch.StatusOpen {
		return shared.ErrBatchNotOpen
	}
	b.Entries = append(b.Entries, copyDepositEntry(e))
	return nil
}

// pendingEntry finds an unprocessed entry of the batch. Callers hold the lock.
func (r *DepositBatchRepository) pendingEntry(batchID, entryID uuid.UUID) (*depositbatch.Batch, int, error) {
	b, ok := r.s.depositBatches[batchID]
	if !ok {
		return nil, -1, depositbatch.ErrEntryNotFound{EntryID: entryID}
	}
	for i, e := range b.Entries {
		if e.ID == entryID && e.Status == depositbatch.EntryPending {
			return b, i, nil
		}
	}
	return nil, -1, depositbatch.ErrEntryNotFound{EntryID: entryID}
}

func (r *DepositBatchRepository) UpdateEntry(_ context.Context, e *depositbatch.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, i, err := r.pendingEntry(e.BatchID, e.ID)
	if err != nil {
		return err
	}
	stored := b.Entries[i]
	stored.ResidentID = e.ResidentID
	stored.Amount = e.Amount
	stored.Method = e.Method
	stored.ChequeNumber = e.ChequeNumber
	stored.Description = e.Description
	return nil
}

func (r *DepositBatchRepository) DeleteEntry(_ context.Context, batchID, entryID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, i, err := r.pendingEntry(batchID, entryID)
	if err != nil {
		return err
	}
	b.Entries = append(b.Entries[:i], b.Entries[i+1:]...)
	return nil
}

func (r *DepositBatchRepository) MarkEntryProcessed(_ context.Context, entryID uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, b := range r.s.depositBatches {
		for _, e := range b.Entries {
			if e.ID == entryID {
				e.MarkProcessed(at)
				return nil
			}
		}
	}
	return depositbatch.ErrEntryNotFound{EntryID: entryID}
}

func (r *DepositBatchRepository) RecomputeTotals(_ context.Context, batchID uuid.UUID) (depositbatch.Totals, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.depositBatches[batchID]
	if !ok {
		return depositbatch.Totals{}, depositbatch.ErrBatchNotFound{BatchID: batchID}
	}
	totals := depositbatch.ComputeTotals(b.Entries)
	b.SetTotals(totals)
	return totals, nil
}

func (r *DepositBatchRepository) MarkClosed(_ context.Context, b *depositbatch.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.depositBatches[b.ID]
	if !ok || stored.Status != batch.StatusOpen {
		return shared.ErrBatchNotOpen
	}
	stored.Status = depositbatch.StatusClosed
	stored.ClosedBy = copyPtr(b.ClosedBy)
	stored.ClosedAt = copyPtr(b.ClosedAt)
	return nil
}

func (r *DepositBatchRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.depositBatches[id]
	if !ok || b.Status != batch.StatusOpen {
		return shared.ErrBatchNotOpen
	}
	delete(r.s.depositBatches, id)
	return nil
}
