// Package reporting models the withdrawal report log. Records are appended
// for reporting only and never take part in balance computation.
package reporting

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/ledger"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

var ErrNotWithdrawal = errors.New("ledger entry is not a cash or cheque withdrawal")

// WithdrawalRecord is one line of the facility withdrawal report
type WithdrawalRecord struct {
	EntryID        uuid.UUID            `json:"entry_id"`
	FacilityID     uuid.UUID            `json:"facility_id"`
	ResidentID     uuid.UUID            `json:"resident_id"`
	Amount         decimal.Decimal      `json:"amount"`
	Method         shared.PaymentMethod `json:"method"`
	Description    string               `json:"description"`
	CreatedBy      string               `json:"created_by"`
	EntryCreatedAt time.Time            `json:"entry_created_at"`
	RecordedAt     time.Time            `json:"recorded_at"`
}

func NewWithdrawalRecord(e *ledger.Entry) (*WithdrawalRecord, error) {
	if !e.IsWithdrawal() {
		return nil, ErrNotWithdrawal
	}
	return &WithdrawalRecord{
		EntryID:        e.ID,
		FacilityID:     e.FacilityID,
		ResidentID:     e.ResidentID,
		Amount:         e.Amount,
		Method:         e.Method,
		Description:    e.Description,
		CreatedBy:      e.CreatedBy,
		EntryCreatedAt: e.CreatedAt,
		RecordedAt:     time.Now().UTC(),
	}, nil
}

// WithdrawalRepository is the append-only withdrawal log
type WithdrawalRepository interface {
	// Append stores the record once per entry. Appending the same entry again is a no-op.
	Append(ctx context.Context, r *WithdrawalRecord) error
	ListByFacility(ctx context.Context, facilityID uuid.UUID, from, to time.Time) ([]*WithdrawalRecord, error)
}
