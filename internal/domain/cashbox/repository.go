package cashbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Repository is the cash box side of the ledger store. The three balance
// paths are ordered strongest first; a store that lacks one returns
// shared.ErrPrimitiveUnavailable from it.
type Repository interface {
	// ApplyTransaction inserts tx and moves the balance in one atomic call,
	// seeding a missing balance row with opening. A repeated TransactionID
	// returns the stored transaction without moving the balance.
	ApplyTransaction(ctx context.Context, tx *Transaction, opening decimal.Decimal) (*Transaction, error)

	// AdjustBalance atomically adds delta and returns the new balance
	AdjustBalance(ctx context.Context, facilityID uuid.UUID, delta, opening decimal.Decimal) (decimal.Decimal, error)

	// WriteBalance stores an absolute balance if the current one still equals
	// expected. A nil expected means no balance row may exist yet.
	WriteBalance(ctx context.Context, facilityID uuid.UUID, balance decimal.Decimal, expected *decimal.Decimal) error

	// InsertTransaction appends tx. Returns false if the TransactionID already exists.
	InsertTransaction(ctx context.Context, tx *Transaction) (bool, error)
	GetTransaction(ctx context.Context, facilityID uuid.UUID, transactionID string) (*Transaction, error)
	ListTransactions(ctx context.Context, facilityID uuid.UUID, since time.Time) ([]*Transaction, error)

	GetBalance(ctx context.Context, facilityID uuid.UUID) (*Balance, error)
	// SetBalance unconditionally sets the live balance, used by the monthly reset
	SetBalance(ctx context.Context, facilityID uuid.UUID, balance decimal.Decimal) error
}

// HistoryRepository archives monthly cash box periods
type HistoryRepository interface {
	Create(ctx context.Context, h *History) error
	// FindIncomplete returns the archived period whose reset has not completed, or nil
	FindIncomplete(ctx context.Context, facilityID uuid.UUID) (*History, error)
	// GetLatest returns the most recent completed period, or nil
	GetLatest(ctx context.Context, facilityID uuid.UUID) (*History, error)
	MarkCompleted(ctx context.Context, h *History) error
	ListByFacility(ctx context.Context, facilityID uuid.UUID, limit int) ([]*History, error)
}

// ErrBalanceNotFound indicates the facility has no balance row yet
type ErrBalanceNotFound struct {
	FacilityID uuid.UUID
}

func (e ErrBalanceNotFound) Error() string {
	return "cash box balance not found for facility: " + e.FacilityID.String()
}

func (e ErrBalanceNotFound) Is(target error) bool {
	if target == shared.ErrNotFound {
		return true
	}
	_, ok := target.(ErrBalanceNotFound)
	return ok
}

// ErrTransactionNotFound indicates no transaction with the idempotency key
type ErrTransactionNotFound struct {
	TransactionID string
}

func (e ErrTransactionNotFound) Error() string {
	return "cash box transaction not found: " + e.TransactionID
}

func (e ErrTransactionNotFound) Is(target error) bool {
	if target == shared.ErrNotFound {
		return true
	}
	_, ok := target.(ErrTransactionNotFound)
	return ok
}

// ErrBalanceChanged is returned by WriteBalance when the balance moved since it was read
type ErrBalanceChanged struct {
	FacilityID uuid.UUID
}

func (e ErrBalanceChanged) Error() string {
	return "cash box balance changed concurrently for facility: " + e.FacilityID.String()
}

func (e ErrBalanceChanged) Is(target error) bool {
	return target == shared.ErrConcurrencyHazard
}
