package resident

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAccount(t *testing.T) {
	facilityID := uuid.New()

	tests := []struct {
		name       string
		facilityID uuid.UUID
		owner      string
		wantErr    bool
	}{
		{"valid account", facilityID, "Margaret Hill", false},
		{"name is trimmed", facilityID, "  Ada  ", false},
		{"empty name", facilityID, "   ", true},
		{"missing facility", uuid.Nil, "Margaret Hill", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, err := NewAccount(tt.facilityID, tt.owner)
			if tt.wantErr {
				assert.ErrorIs(t, err, shared.ErrValidation)
				assert.Nil(t, acc)
				return
			}
			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, acc.ID)
			assert.True(t, acc.Balance.IsZero())
			assert.Equal(t, StatusActive, acc.Status)
			assert.Equal(t, 1, acc.Version)
			assert.Equal(t, strings.TrimSpace(tt.owner), acc.Name)
		})
	}
}

func TestAccount_CanDebit(t *testing.T) {
	acc := &Account{ID: uuid.New(), Balance: decimal.RequireFromString("50.00")}

	assert.True(t, acc.CanDebit(decimal.RequireFromString("50.00")), "exact balance is sufficient")
	assert.True(t, acc.CanDebit(decimal.RequireFromString("49.99")))
	assert.False(t, acc.CanDebit(decimal.RequireFromString("50.01")))

	err := acc.RequireFunds(decimal.RequireFromString("50.01"))
	assert.ErrorIs(t, err, shared.ErrInsufficientFunds)
	var insufficient ErrInsufficientBalance
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, acc.ID, insufficient.ResidentID)
}

func TestAccount_Deactivate(t *testing.T) {
	acc, err := NewAccount(uuid.New(), "Ada")
	require.NoError(t, err)

	assert.NoError(t, acc.RequireActive())
	assert.True(t, acc.Deactivate())
	assert.False(t, acc.Deactivate(), "second deactivation is a no-op")
	assert.ErrorIs(t, acc.RequireActive(), shared.ErrInvalidState)
}

func TestErrResidentNotFound_Is(t *testing.T) {
	id := uuid.New()
	err := ErrResidentNotFound{ResidentID: id}

	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.ErrorIs(t, err, ErrResidentNotFound{})
	assert.ErrorIs(t, err, ErrResidentNotFound{ResidentID: id})
	assert.NotErrorIs(t, err, ErrResidentNotFound{ResidentID: uuid.New()})
	assert.True(t, IsNotFound(err))
}

func TestErrConcurrentModification_Is(t *testing.T) {
	assert.ErrorIs(t, ErrConcurrentModification{ResidentID: uuid.New()}, shared.ErrConcurrencyHazard)
}

func TestErrBalanceAlreadyApplied_Is(t *testing.T) {
	err := ErrBalanceAlreadyApplied{EntryID: uuid.New()}
	assert.ErrorIs(t, err, ErrBalanceAlreadyApplied{})
	assert.NotErrorIs(t, err, shared.ErrConcurrencyHazard)
}
