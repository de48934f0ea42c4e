package reporting

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/ledger"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithdrawalRecord(t *testing.T) {
	entry := &ledger.Entry{
		ID:         uuid.New(),
		ResidentID: uuid.New(),
		FacilityID: uuid.New(),
		Type:       shared.EntryTypeDebit,
		Amount:     decimal.RequireFromString("40.00"),
		Method:     shared.MethodCash,
		CreatedBy:  "clerk",
		CreatedAt:  time.Now().UTC(),
	}

	rec, err := NewWithdrawalRecord(entry)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, rec.EntryID)
	assert.Equal(t, entry.FacilityID, rec.FacilityID)
	assert.Equal(t, shared.MethodCash, rec.Method)
	assert.Equal(t, entry.CreatedAt, rec.EntryCreatedAt)

	entry.Type = shared.EntryTypeCredit
	_, err = NewWithdrawalRecord(entry)
	assert.ErrorIs(t, err, ErrNotWithdrawal)

	entry.Type = shared.EntryTypeDebit
	entry.Method = shared.MethodManual
	_, err = NewWithdrawalRecord(entry)
	assert.ErrorIs(t, err, ErrNotWithdrawal)
}
