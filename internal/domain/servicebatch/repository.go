package servicebatch

import (
	"context"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Repository persists service batches and their items
type Repository interface {
	Create(ctx context.Context, b *Batch) error
	// GetByID loads the batch with its items ordered by creation
	GetByID(ctx context.Context, id uuid.UUID) (*Batch, error)
	ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]*Batch, error)

	// UpsertItem inserts the item or, when the resident already has one in the
	// batch, replaces its amount. Returns the stored item.
	UpsertItem(ctx context.Context, item *Item) (*Item, error)
	UpdateItemAmount(ctx context.Context, batchID, residentID uuid.UUID, amount decimal.Decimal) error
	DeleteItem(ctx context.Context, batchID, residentID uuid.UUID) error
	SaveItemOutcome(ctx context.Context, item *Item) error

	// RecomputeTotal sets total_amount to the sum of current items and returns it
	RecomputeTotal(ctx context.Context, batchID uuid.UUID) (decimal.Decimal, error)

	// MarkPosted performs the open -> posted transition. Returns
	// shared.ErrBatchAlreadyPosted if the batch left the open state meanwhile.
	MarkPosted(ctx context.Context, b *Batch) error

	// Delete removes an open batch, items first
	Delete(ctx context.Context, id uuid.UUID) error
}

// ErrBatchNotFound indicates missing service batch
type ErrBatchNotFound struct {
	BatchID uuid.UUID
}

func (e ErrBatchNotFound) Error() string {
	return "service batch not found: " + e.BatchID.String()
}

func (e ErrBatchNotFound) Is(target error) bool {
	if target == shared.ErrNotFound {
		return true
	}
	t, ok := target.(ErrBatchNotFound)
	return ok && (t.BatchID == uuid.Nil || t.BatchID == e.BatchID)
}

// ErrItemNotFound indicates the resident has no item in the batch
type ErrItemNotFound struct {
	BatchID    uuid.UUID
	ResidentID uuid.UUID
}

func (e ErrItemNotFound) Error() string {
	return "service batch " + e.BatchID.String() + " has no item for resident " + e.ResidentID.String()
}

func (e ErrItemNotFound) Is(target error) bool {
	if target == shared.ErrNotFound {
		return true
	}
	_, ok := target.(ErrItemNotFound)
	return ok
}

// ErrItemNotPending is returned when changing an item that a post already settled
type ErrItemNotPending struct {
	BatchID    uuid.UUID
	ResidentID uuid.UUID
}

func (e ErrItemNotPending) Error() string {
	return "service batch " + e.BatchID.String() + " item for resident " + e.ResidentID.String() + " is no longer pending"
}

func (e ErrItemNotPending) Is(target error) bool {
	if target == shared.ErrInvalidState {
		return true
	}
	_, ok := target.(ErrItemNotPending)
	return ok
}
