package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// SourceKind names the operation that produced an entry
type SourceKind string

const (
	SourceManual       SourceKind = "manual"
	SourceServiceBatch SourceKind = "service_batch"
	SourceDepositBatch SourceKind = "deposit_batch"
	SourcePreAuth      SourceKind = "preauth"
)

// Source is the structured origin of an entry. ItemID identifies the batch
// item, deposit entry or authorization that was posted and is unique per kind.
type Source struct {
	Kind         SourceKind `json:"kind" bson:"kind"`
	BatchID      *uuid.UUID `json:"batch_id,omitempty" bson:"batch_id,omitempty"`
	ItemID       *uuid.UUID `json:"item_id,omitempty" bson:"item_id,omitempty"`
	ServiceType  string     `json:"service_type,omitempty" bson:"service_type,omitempty"`
	ChequeNumber string     `json:"cheque_number,omitempty" bson:"cheque_number,omitempty"`
}

// Entry is an immutable credit or debit applied to one resident balance
type Entry struct {
	ID            uuid.UUID            `json:"id"`
	ResidentID    uuid.UUID            `json:"resident_id"`
	FacilityID    uuid.UUID            `json:"facility_id"`
	Type          shared.EntryType     `json:"type"`
	Amount        decimal.Decimal      `json:"amount"`
	Method        shared.PaymentMethod `json:"method"`
	Description   string               `json:"description"`
	Source        Source               `json:"source"`
	CreatedBy     string               `json:"created_by"`
	CorrelationID string               `json:"correlation_id,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`

	// BalanceApplied is set by the balance primitive that moved the resident balance
	BalanceApplied bool `json:"-"`
}

// NewEntryParams groups the inputs of NewEntry
type NewEntryParams struct {
	ResidentID  uuid.UUID
	FacilityID  uuid.UUID
	Type        shared.EntryType
	Amount      decimal.Decimal
	Method      shared.PaymentMethod
	Description string
	Source      Source
	CreatedBy   string
}

// NewEntry validates params and builds an entry stamped with the current time
func NewEntry(p NewEntryParams) (*Entry, error) {
	if p.ResidentID == uuid.Nil {
		return nil, shared.NewValidationError("resident_id", "is required")
	}
	if p.FacilityID == uuid.Nil {
		return nil, shared.NewValidationError("facility_id", "is required")
	}
	if !p.Type.Valid() {
		return nil, shared.NewValidationError("type", fmt.Sprintf("unknown entry type %q", p.Type))
	}
	if !p.Method.Valid() {
		return nil, shared.NewValidationError("method", fmt.Sprintf("unknown payment method %q", p.Method))
	}
	if err := shared.ValidateAmount("amount", p.Amount); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.CreatedBy) == "" {
		return nil, shared.NewValidationError("created_by", "is required")
	}
	if p.Source.Kind == "" {
		p.Source.Kind = SourceManual
	}

	return &Entry{
		ID:          uuid.New(),
		ResidentID:  p.ResidentID,
		FacilityID:  p.FacilityID,
		Type:        p.Type,
		Amount:      p.Amount,
		Method:      p.Method,
		Description: strings.TrimSpace(p.Description),
		Source:      p.Source,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// SignedAmount is the change this entry applies to the resident balance
func (e *Entry) SignedAmount() decimal.Decimal {
	if e.Type == shared.EntryTypeDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// IsWithdrawal reports whether the entry belongs in the withdrawal report
func (e *Entry) IsWithdrawal() bool {
	return e.Type == shared.EntryTypeDebit && (e.Method == shared.MethodCash || e.Method == shared.MethodCheque)
}

// MovesCash reports whether the entry must be mirrored into the facility cash box
func (e *Entry) MovesCash() bool {
	return e.Method == shared.MethodCash
}

// CashBoxKey is the cash box idempotency key used when mirroring this entry
func (e *Entry) CashBoxKey() string {
	return "ledger-entry:" + e.ID.String()
}

// Sum returns credits minus debits over entries
func Sum(entries []*Entry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.SignedAmount())
	}
	return total
}
