package resident

import (
	"context"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Repository defines resident account persistence operations
type Repository interface {
	Create(ctx context.Context, account *Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]*Account, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	BalanceStore
}

// BalanceStore exposes the balance primitives of the ledger store, strongest
// first. A store lacking one returns shared.ErrPrimitiveUnavailable.
//
// Every primitive applies the delta of one recorded ledger entry and flags
// that entry as applied in the same store operation. An entry that is already
// flagged leaves the balance alone and yields ErrBalanceAlreadyApplied.
type BalanceStore interface {
	// AdjustBalanceAtomic applies delta in one atomic store call and returns the new balance
	AdjustBalanceAtomic(ctx context.Context, id, entryID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)

	// IncrementBalance applies delta with a single relative update and returns the new balance
	IncrementBalance(ctx context.Context, id, entryID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error)

	// WriteBalance stores an absolute balance if the account is still at expectedVersion
	WriteBalance(ctx context.Context, id, entryID uuid.UUID, balance decimal.Decimal, expectedVersion int) error
}

// ErrBalanceAlreadyApplied means the entry's delta is already part of the balance
type ErrBalanceAlreadyApplied struct {
	EntryID uuid.UUID
}

func (e ErrBalanceAlreadyApplied) Error() string {
	return "balance already applied for ledger entry: " + e.EntryID.String()
}

func (e ErrBalanceAlreadyApplied) Is(target error) bool {
	_, ok := target.(ErrBalanceAlreadyApplied)
	return ok
}

// ErrResidentNotFound indicates missing resident account
type ErrResidentNotFound struct {
	ResidentID uuid.UUID
}

func (e ErrResidentNotFound) Error() string {
	return "resident not found: " + e.ResidentID.String()
}

// Is matches shared.ErrNotFound and any ErrResidentNotFound with the same or a nil ID
func (e ErrResidentNotFound) Is(target error) bool {
	if target == shared.ErrNotFound {
		return true
	}
	t, ok := target.(ErrResidentNotFound)
	if !ok {
		return false
	}
	return t.ResidentID == uuid.Nil || t.ResidentID == e.ResidentID
}

// ErrConcurrentModification indicates optimistic lock failure
type ErrConcurrentModification struct {
	ResidentID uuid.UUID
}

func (e ErrConcurrentModification) Error() string {
	return "concurrent modification detected for resident: " + e.ResidentID.String()
}

func (e ErrConcurrentModification) Is(target error) bool {
	return target == shared.ErrConcurrencyHazard
}

// ErrResidentInactive is returned when a deactivated account is asked to take part in posting
type ErrResidentInactive struct {
	ResidentID uuid.UUID
}

func (e ErrResidentInactive) Error() string {
	return "resident account is inactive: " + e.ResidentID.String()
}

func (e ErrResidentInactive) Is(target error) bool {
	return target == shared.ErrInvalidState
}

// ErrInsufficientBalance indicates the balance does not cover a debit
type ErrInsufficientBalance struct {
	ResidentID uuid.UUID
	Balance    decimal.Decimal
	Amount     decimal.Decimal
}

func (e ErrInsufficientBalance) Error() string {
	return "insufficient funds for resident " + e.ResidentID.String() +
		": balance " + e.Balance.StringFixed(shared.MoneyScale) + ", requested " + e.Amount.StringFixed(shared.MoneyScale)
}

func (e ErrInsufficientBalance) Is(target error) bool {
	return target == shared.ErrInsufficientFunds
}
