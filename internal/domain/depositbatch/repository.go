package depositbatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/shared"
)

// Repository persists deposit batches and their entries
type Repository interface {
	Create(ctx context.Context, b *Batch) error
	GetByID(ctx context.Context, id uuid.UUID) (*Batch, error)
	ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]*Batch, error)

	AddEntry(ctx context.Context, e *Entry) error
	// UpdateEntry rewrites a pending entry
	UpdateEntry(ctx context.Context, e *Entry) error
	// DeleteEntry removes a pending entry
	DeleteEntry(ctx context.Context, batchID, entryID uuid.UUID) error
	MarkEntryProcessed(ctx context.Context, entryID uuid.UUID, at time.Time) error

	// RecomputeTotals stores the sums of current entries and returns them
	RecomputeTotals(ctx context.Context, batchID uuid.UUID) (Totals, error)

	// MarkClosed performs the open -> closed transition. Returns
	// shared.ErrBatchNotOpen if the batch already left the open state.
	MarkClosed(ctx context.Context, b *Batch) error

	// Delete removes an open batch, entries first
	Delete(ctx context.Context, id uuid.UUID) error
}

// ErrBatchNotFound indicates missing deposit batch
type ErrBatchNotFound struct {
	BatchID uuid.UUID
}

func (e ErrBatchNotFound) Error() string {
	return "deposit batch not found: " + e.BatchID.String()
}

func (e ErrBatchNotFound) Is(target error) bool {
	if target == shared.ErrNotFound {
		return true
	}
	t, ok := target.(ErrBatchNotFound)
	return ok && (t.BatchID == uuid.Nil || t.BatchID == e.BatchID)
}

// ErrEntryNotFound indicates missing deposit entry
type ErrEntryNotFound struct {
	EntryID uuid.UUID
}

func (e ErrEntryNotFound) Error() string {
	return "deposit entry not found: " + e.EntryID.String()
}

func (e ErrEntryNotFound) Is(target error) bool {
	if target == shared.ErrNotFound {
		return true
	}
	_, ok := target.(ErrEntryNotFound)
	return ok
}

// ErrEntryProcessed is returned when editing an entry that was already credited
type ErrEntryProcessed struct {
	EntryID uuid.UUID
}

func (e ErrEntryProcessed) Error() string {
	return "deposit entry already processed: " + e.EntryID.String()
}

func (e ErrEntryProcessed) Is(target error) bool {
	return target == shared.ErrInvalidState
}

// ErrPartialClose is returned when some pending entries could not be credited.
// The batch stays open so the close can be retried; credited entries are not
// credited again.
type ErrPartialClose struct {
	BatchID uuid.UUID
	Failed  int
	Total   int
}

func (e ErrPartialClose) Error() string {
	return fmt.Sprintf("deposit batch %s left open: %d of %d entries failed to post", e.BatchID, e.Failed, e.Total)
}

func (e ErrPartialClose) Is(target error) bool {
	if target == shared.ErrRemoteFailure {
		return true
	}
	_, ok := target.(ErrPartialClose)
	return ok
}
