package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Repository manages the append-only ledger entry relation
type Repository interface {
	// Create durably records the entry together with its outbox message.
	// Returns ErrDuplicateEntry when the entry's source item was already posted.
	Create(ctx context.Context, entry *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	GetBySource(ctx context.Context, kind SourceKind, itemID uuid.UUID) (*Entry, error)
	ListByResident(ctx context.Context, residentID uuid.UUID, limit int) ([]*Entry, error)
	ListByFacility(ctx context.Context, facilityID uuid.UUID, limit int) ([]*Entry, error)
	ListByFacilityRange(ctx context.Context, facilityID uuid.UUID, from, to time.Time) ([]*Entry, error)
	SumByResident(ctx context.Context, residentID uuid.UUID) (decimal.Decimal, error)
}

// ErrEntryNotFound indicates missing ledger entry
type ErrEntryNotFound struct {
	EntryID uuid.UUID
}

func (e ErrEntryNotFound) Error() string {
	return "ledger entry not found: " + e.EntryID.String()
}

// Is implements the errors.Is interface for ErrEntryNotFound
func (e ErrEntryNotFound) Is(target error) bool {
	if target == shared.ErrNotFound {
		return true
	}
	t, ok := target.(ErrEntryNotFound)
	if !ok {
		return false
	}
	// If the target EntryID is empty, consider it a match for any ErrEntryNotFound
	if t.EntryID == uuid.Nil {
		return true
	}
	return e.EntryID == t.EntryID
}

// ErrDuplicateEntry indicates the source item already has a ledger entry
type ErrDuplicateEntry struct {
	Kind   SourceKind
	ItemID uuid.UUID
}

func (e ErrDuplicateEntry) Error() string {
	return "duplicate ledger entry for " + string(e.Kind) + " item " + e.ItemID.String()
}

// Is implements the errors.Is interface for ErrDuplicateEntry
func (e ErrDuplicateEntry) Is(target error) bool {
	if target == shared.ErrInvalidState {
		return true
	}
	t, ok := target.(ErrDuplicateEntry)
	if !ok {
		return false
	}
	if t.ItemID == uuid.Nil {
		return true
	}
	return e.ItemID == t.ItemID
}
