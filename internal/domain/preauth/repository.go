package preauth

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/shared"
)

// Repository persists authorizations and their monthly lists
type Repository interface {
	CreateDebit(ctx context.Context, d *Debit) error
	GetDebit(ctx context.Context, id uuid.UUID) (*Debit, error)
	ListByMonth(ctx context.Context, facilityID uuid.UUID, month string) ([]*Debit, error)
	// MarkProcessed moves a pending authorization to processed
	MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error
	// Cancel moves a pending authorization to cancelled
	Cancel(ctx context.Context, id uuid.UUID) error

	// GetOrCreateList returns the facility month list, creating it open if absent
	GetOrCreateList(ctx context.Context, facilityID uuid.UUID, month string) (*MonthlyList, error)
	// CloseList persists the open -> closed transition
	CloseList(ctx context.Context, l *MonthlyList) error
}

// ErrDebitNotFound indicates missing authorization
type ErrDebitNotFound struct {
	DebitID uuid.UUID
}

func (e ErrDebitNotFound) Error() string {
	return "pre-authorization not found: " + e.DebitID.String()
}

func (e ErrDebitNotFound) Is(target error) bool {
	if target == shared.ErrNotFound {
		return true
	}
	t, ok := target.(ErrDebitNotFound)
	return ok && (t.DebitID == uuid.Nil || t.DebitID == e.DebitID)
}

// ErrNotProcessable is returned for inactive or non-pending authorizations
type ErrNotProcessable struct {
	DebitID uuid.UUID
	Reason  string
}

func (e ErrNotProcessable) Error() string {
	return "pre-authorization " + e.DebitID.String() + " cannot be processed: " + e.Reason
}

func (e ErrNotProcessable) Is(target error) bool {
	return target == shared.ErrInvalidState
}

// ErrListClosed is returned when adding to or processing a closed month
type ErrListClosed struct {
	FacilityID uuid.UUID
	Month      string
}

func (e ErrListClosed) Error() string {
	return "pre-authorization list " + e.Month + " is closed for facility " + e.FacilityID.String()
}

func (e ErrListClosed) Is(target error) bool {
	return target == shared.ErrInvalidState
}
