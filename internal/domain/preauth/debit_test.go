package preauth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDebitParams() NewDebitParams {
	return NewDebitParams{
		ResidentID:   uuid.New(),
		FacilityID:   uuid.New(),
		AuthorizedBy: "guardian",
		Description:  "Monthly phone plan",
		TargetMonth:  "2026-11",
		Amount:       decimal.RequireFromString("35.00"),
		Type:         shared.EntryTypeDebit,
	}
}

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("2026-02")
	require.NoError(t, err)
	assert.Equal(t, time.February, m.Month())
	assert.Equal(t, 1, m.Day())

	for _, bad := range []string{"2026-13", "2026/02", "26-02", "", "2026-2"} {
		_, err := ParseMonth(bad)
		assert.ErrorIs(t, err, shared.ErrValidation, bad)
	}
}

func TestNewDebit(t *testing.T) {
	d, err := NewDebit(validDebitParams())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, d.Status)
	assert.True(t, d.IsActive)
	assert.False(t, d.AuthorizedDate.IsZero())

	p := validDebitParams()
	p.TargetMonth = "November"
	_, err = NewDebit(p)
	assert.ErrorIs(t, err, shared.ErrValidation)

	p = validDebitParams()
	p.Type = "transfer"
	_, err = NewDebit(p)
	assert.ErrorIs(t, err, shared.ErrValidation)

	p = validDebitParams()
	p.AuthorizedBy = ""
	_, err = NewDebit(p)
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestDebit_RequireProcessable(t *testing.T) {
	d, err := NewDebit(validDebitParams())
	require.NoError(t, err)
	assert.NoError(t, d.RequireProcessable())

	d.IsActive = false
	assert.ErrorIs(t, d.RequireProcessable(), shared.ErrInvalidState)

	d.IsActive = true
	d.MarkProcessed(time.Now())
	assert.ErrorIs(t, d.RequireProcessable(), shared.ErrInvalidState)
	assert.NotNil(t, d.ProcessedAt)
}

func TestMonthlyList(t *testing.T) {
	facilityID := uuid.New()
	l, err := NewMonthlyList(facilityID, "2026-11")
	require.NoError(t, err)

	pending, _ := NewDebit(validDebitParams())
	processed, _ := NewDebit(validDebitParams())
	processed.MarkProcessed(time.Now())
	cancelled, _ := NewDebit(validDebitParams())
	cancelled.Status = StatusCancelled
	inactive, _ := NewDebit(validDebitParams())
	inactive.IsActive = false

	l.Aggregate([]*Debit{pending, processed, cancelled, inactive})
	assert.True(t, l.TotalAmount.Equal(decimal.RequireFromString("105.00")), "cancelled authorizations are excluded")
	assert.Equal(t, []uuid.UUID{pending.ID}, l.Processable())

	require.NoError(t, l.Close("manager", time.Now()))
	assert.Equal(t, ListClosed, l.Status)
	assert.ErrorIs(t, l.RequireOpen(), shared.ErrInvalidState)
	assert.ErrorIs(t, l.Close("manager", time.Now()), shared.ErrInvalidState)

	_, err = NewMonthlyList(facilityID, "2026")
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestDebit_EntryDescription(t *testing.T) {
	d, _ := NewDebit(validDebitParams())
	assert.Equal(t, "Monthly phone plan (pre-authorized 2026-11)", d.EntryDescription())

	d.Description = ""
	assert.Equal(t, "Pre-authorized debit for 2026-11", d.EntryDescription())
}
