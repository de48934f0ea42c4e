package depositbatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/batch"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

const StatusClosed batch.Status = "closed"

var Lifecycle = batch.Lifecycle{Terminal: StatusClosed}

// EntryStatus tracks whether a deposit entry has been credited
type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryProcessed EntryStatus = "processed"
)

// Batch groups cash and cheque deposits credited to residents on close
type Batch struct {
	ID           uuid.UUID       `json:"id"`
	FacilityID   uuid.UUID       `json:"facility_id"`
	Status       batch.Status    `json:"status"`
	Description  string          `json:"description,omitempty"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	TotalCash    decimal.Decimal `json:"total_cash"`
	TotalCheques decimal.Decimal `json:"total_cheques"`
	CreatedBy    string          `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
	ClosedBy     *string         `json:"closed_by,omitempty"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty"`
	Entries      []*Entry        `json:"entries"`
}

// Entry is a single deposit for one resident
type Entry struct {
	ID           uuid.UUID            `json:"id"`
	BatchID      uuid.UUID            `json:"batch_id"`
	ResidentID   uuid.UUID            `json:"resident_id"`
	Amount       decimal.Decimal      `json:"amount"`
	Method       shared.PaymentMethod `json:"method"`
	ChequeNumber string               `json:"cheque_number,omitempty"`
	Description  string               `json:"description,omitempty"`
	Status       EntryStatus          `json:"status"`
	ProcessedAt  *time.Time           `json:"processed_at,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

// Totals are the derived sums of a deposit batch
type Totals struct {
	Amount  decimal.Decimal `json:"total_amount"`
	Cash    decimal.Decimal `json:"total_cash"`
	Cheques decimal.Decimal `json:"total_cheques"`
}

func NewBatch(facilityID uuid.UUID, description, createdBy string) (*Batch, error) {
	if facilityID == uuid.Nil {
		return nil, shared.NewValidationError("facility_id", "is required")
	}
	if strings.TrimSpace(createdBy) == "" {
		return nil, shared.NewValidationError("created_by", "is required")
	}
	return &Batch{
		ID:           uuid.New(),
		FacilityID:   facilityID,
		Status:       batch.StatusOpen,
		Description:  strings.TrimSpace(description),
		TotalAmount:  decimal.Zero,
		TotalCash:    decimal.Zero,
		TotalCheques: decimal.Zero,
		CreatedBy:    createdBy,
		CreatedAt:    time.Now().UTC(),
		Entries:      []*Entry{},
	}, nil
}

// EntryInput carries the editable fields of a deposit entry
type EntryInput struct {
	ResidentID   uuid.UUID
	Amount       decimal.Decimal
	Method       shared.PaymentMethod
	ChequeNumber string
	Description  string
}

// Validate enforces the deposit rules. A cheque number is required exactly
// when the method is cheque.
func (in *EntryInput) Validate() error {
	if in.ResidentID == uuid.Nil {
		return shared.NewValidationError("resident_id", "is required")
	}
	if err := shared.ValidateAmount("amount", in.Amount); err != nil {
		return err
	}
	in.ChequeNumber = strings.TrimSpace(in.ChequeNumber)
	switch in.Method {
	case shared.MethodCheque:
		if in.ChequeNumber == "" {
			return shared.NewValidationError("cheque_number", "is required for cheque deposits")
		}
	case shared.MethodCash:
		if in.ChequeNumber != "" {
			return shared.NewValidationError("cheque_number", "is only allowed for cheque deposits")
		}
	default:
		return shared.NewValidationError("method", fmt.Sprintf("deposits must be cash or cheque, got %q", in.Method))
	}
	return nil
}

func NewEntry(batchID uuid.UUID, in EntryInput) (*Entry, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return &Entry{
		ID:           uuid.New(),
		BatchID:      batchID,
		ResidentID:   in.ResidentID,
		Amount:       in.Amount,
		Method:       in.Method,
		ChequeNumber: in.ChequeNumber,
		Description:  strings.TrimSpace(in.Description),
		Status:       EntryPending,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// Apply replaces the editable fields after validating them
func (e *Entry) Apply(in EntryInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	e.ResidentID = in.ResidentID
	e.Amount = in.Amount
	e.Method = in.Method
	e.ChequeNumber = in.ChequeNumber
	e.Description = strings.TrimSpace(in.Description)
	return nil
}

func (e *Entry) MarkProcessed(at time.Time) {
	e.Status = EntryProcessed
	e.ProcessedAt = &at
}

// ComputeTotals sums entries by method
func ComputeTotals(entries []*Entry) Totals {
	t := Totals{Amount: decimal.Zero, Cash: decimal.Zero, Cheques: decimal.Zero}
	for _, e := range entries {
		t.Amount = t.Amount.Add(e.Amount)
		switch e.Method {
		case shared.MethodCash:
			t.Cash = t.Cash.Add(e.Amount)
		case shared.MethodCheque:
			t.Cheques = t.Cheques.Add(e.Amount)
		}
	}
	return t
}

func (b *Batch) RequireOpen() error {
	return Lifecycle.RequireOpen(b.Status)
}

func (b *Batch) IsClosed() bool {
	return Lifecycle.IsTerminal(b.Status)
}

func (b *Batch) SetTotals(t Totals) {
	b.TotalAmount = t.Amount
	b.TotalCash = t.Cash
	b.TotalCheques = t.Cheques
}

func (b *Batch) FindEntry(id uuid.UUID) *Entry {
	for _, e := range b.Entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

func (b *Batch) PendingEntries() []*Entry {
	pending := make([]*Entry, 0, len(b.Entries))
	for _, e := range b.Entries {
		if e.Status == EntryPending {
			pending = append(pending, e)
		}
	}
	return pending
}

func (b *Batch) MarkClosed(closedBy string, at time.Time) {
	b.Status = StatusClosed
	b.ClosedBy = &closedBy
	b.ClosedAt = &at
}

// EntryDescription renders the human readable ledger description for an entry
func (b *Batch) EntryDescription(e *Entry) string {
	desc := fmt.Sprintf("Deposit (%s, batch %s)", e.Method, b.ID)
	if e.ChequeNumber != "" {
		desc += ", cheque " + e.ChequeNumber
	}
	if e.Description != "" {
		desc += ": " + e.Description
	}
	return desc
}
