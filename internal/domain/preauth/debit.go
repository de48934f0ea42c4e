package preauth

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// MonthLayout is the YYYY-MM format of target months
const MonthLayout = "2006-01"

// Status of an authorization
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusCancelled Status = "cancelled"
)

// Debit is a standing authorization for one credit or debit in one month.
// Despite the name it may carry either entry type.
type Debit struct {
	ID             uuid.UUID        `json:"id"`
	ResidentID     uuid.UUID        `json:"resident_id"`
	FacilityID     uuid.UUID        `json:"facility_id"`
	AuthorizedBy   string           `json:"authorized_by"`
	Description    string           `json:"description"`
	AuthorizedDate time.Time        `json:"authorized_date"`
	TargetMonth    string           `json:"target_month"`
	Amount         decimal.Decimal  `json:"amount"`
	Type           shared.EntryType `json:"type"`
	IsActive       bool             `json:"is_active"`
	Status         Status           `json:"status"`
	ProcessedAt    *time.Time       `json:"processed_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// NewDebitParams groups the inputs of NewDebit
type NewDebitParams struct {
	ResidentID     uuid.UUID
	FacilityID     uuid.UUID
	AuthorizedBy   string
	Description    string
	AuthorizedDate time.Time
	TargetMonth    string
	Amount         decimal.Decimal
	Type           shared.EntryType
}

// ParseMonth validates a YYYY-MM month and returns its first instant in UTC
func ParseMonth(month string) (time.Time, error) {
	t, err := time.Parse(MonthLayout, month)
	if err != nil {
		return time.Time{}, shared.NewValidationError("month", fmt.Sprintf("%q is not in YYYY-MM format", month))
	}
	return t, nil
}

func NewDebit(p NewDebitParams) (*Debit, error) {
	if p.ResidentID == uuid.Nil {
		return nil, shared.NewValidationError("resident_id", "is required")
	}
	if p.FacilityID == uuid.Nil {
		return nil, shared.NewValidationError("facility_id", "is required")
	}
	if strings.TrimSpace(p.AuthorizedBy) == "" {
		return nil, shared.NewValidationError("authorized_by", "is required")
	}
	if !p.Type.Valid() {
		return nil, shared.NewValidationError("type", fmt.Sprintf("unknown entry type %q", p.Type))
	}
	if err := shared.ValidateAmount("amount", p.Amount); err != nil {
		return nil, err
	}
	if _, err := ParseMonth(p.TargetMonth); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	authorizedDate := p.AuthorizedDate
	if authorizedDate.IsZero() {
		authorizedDate = now
	}
	return &Debit{
		ID:             uuid.New(),
		ResidentID:     p.ResidentID,
		FacilityID:     p.FacilityID,
		AuthorizedBy:   p.AuthorizedBy,
		Description:    strings.TrimSpace(p.Description),
		AuthorizedDate: authorizedDate,
		TargetMonth:    p.TargetMonth,
		Amount:         p.Amount,
		Type:           p.Type,
		IsActive:       true,
		Status:         StatusPending,
		CreatedAt:      now,
	}, nil
}

// RequireProcessable allows only active pending authorizations through
func (d *Debit) RequireProcessable() error {
	if !d.IsActive {
		return ErrNotProcessable{DebitID: d.ID, Reason: "authorization is inactive"}
	}
	if d.Status != StatusPending {
		return ErrNotProcessable{DebitID: d.ID, Reason: "authorization is " + string(d.Status)}
	}
	return nil
}

func (d *Debit) MarkProcessed(at time.Time) {
	d.Status = StatusProcessed
	d.ProcessedAt = &at
}

// EntryDescription renders the ledger description for the authorization
func (d *Debit) EntryDescription() string {
	if d.Description == "" {
		return fmt.Sprintf("Pre-authorized %s for %s", d.Type, d.TargetMonth)
	}
	return fmt.Sprintf("%s (pre-authorized %s)", d.Description, d.TargetMonth)
}
