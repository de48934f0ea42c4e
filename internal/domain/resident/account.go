package resident

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Status of a resident trust account
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

var ErrEmptyName = shared.NewValidationError("name", "cannot be empty")

// Account is a resident trust account. Balance is only ever changed through
// ledger entries.
type Account struct {
	ID         uuid.UUID       `json:"id"`
	FacilityID uuid.UUID       `json:"facility_id"`
	Name       string          `json:"name"`
	Balance    decimal.Decimal `json:"balance"`
	Status     Status          `json:"status"`
	Version    int             `json:"version"` // For optimistic locking
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// NewAccount opens an active account with a zero balance
func NewAccount(facilityID uuid.UUID, name string) (*Account, error) {
	if facilityID == uuid.Nil {
		return nil, shared.NewValidationError("facility_id", "is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}

	now := time.Now().UTC()
	return &Account{
		ID:         uuid.New(),
		FacilityID: facilityID,
		Name:       name,
		Balance:    decimal.Zero,
		Status:     StatusActive,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

// CanDebit checks if the balance covers amount. A balance exactly equal to
// the amount is sufficient.
func (a *Account) CanDebit(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}

// RequireFunds returns ErrInsufficientBalance when the balance does not cover amount
func (a *Account) RequireFunds(amount decimal.Decimal) error {
	if !a.CanDebit(amount) {
		return ErrInsufficientBalance{ResidentID: a.ID, Balance: a.Balance, Amount: amount}
	}
	return nil
}

// RequireActive returns ErrResidentInactive for deactivated accounts
func (a *Account) RequireActive() error {
	if !a.IsActive() {
		return ErrResidentInactive{ResidentID: a.ID}
	}
	return nil
}

// Deactivate marks the account inactive. Accounts are never deleted.
func (a *Account) Deactivate() bool {
	if a.Status == StatusInactive {
		return false
	}
	a.Status = StatusInactive
	a.UpdatedAt = time.Now().UTC()
	return true
}

// IsNotFound reports whether err is an ErrResidentNotFound for any resident
func IsNotFound(err error) bool {
	return errors.Is(err, ErrResidentNotFound{})
}
