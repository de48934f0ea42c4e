package preauth

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ListStatus of a facility month
type ListStatus string

const (
	ListOpen   ListStatus = "open"
	ListClosed ListStatus = "closed"
)

// MonthlyList groups the authorizations of a facility for one month.
// Authorizations and TotalAmount are a derived view.
type MonthlyList struct {
	ID             uuid.UUID       `json:"id"`
	FacilityID     uuid.UUID       `json:"facility_id"`
	Month          string          `json:"month"`
	Status         ListStatus      `json:"status"`
	ClosedBy       *string         `json:"closed_by,omitempty"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Authorizations []*Debit        `json:"authorizations"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

func NewMonthlyList(facilityID uuid.UUID, month string) (*MonthlyList, error) {
	if _, err := ParseMonth(month); err != nil {
		return nil, err
	}
	return &MonthlyList{
		ID:          uuid.New(),
		FacilityID:  facilityID,
		Month:       month,
		Status:      ListOpen,
		CreatedAt:   time.Now().UTC(),
		TotalAmount: decimal.Zero,
	}, nil
}

// Aggregate attaches debits and totals every authorization that is not cancelled
func (l *MonthlyList) Aggregate(debits []*Debit) {
	l.Authorizations = debits
	total := decimal.Zero
	for _, d := range debits {
		if d.Status != StatusCancelled {
			total = total.Add(d.Amount)
		}
	}
	l.TotalAmount = total
}

func (l *MonthlyList) RequireOpen() error {
	if l.Status != ListOpen {
		return ErrListClosed{FacilityID: l.FacilityID, Month: l.Month}
	}
	return nil
}

func (l *MonthlyList) Close(closedBy string, at time.Time) error {
	if err := l.RequireOpen(); err != nil {
		return err
	}
	l.Status = ListClosed
	l.ClosedBy = &closedBy
	l.ClosedAt = &at
	return nil
}

// Processable returns the ids of active pending authorizations
func (l *MonthlyList) Processable() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(l.Authorizations))
	for _, d := range l.Authorizations {
		if d.IsActive && d.Status == StatusPending {
			ids = append(ids, d.ID)
		}
	}
	return ids
}
