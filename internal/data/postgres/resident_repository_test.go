package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/resident-trust-ledger/internal/domain/ledger"
	"github.com/resident-trust-ledger/internal/domain/resident"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/platform/persistence"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var residentRowColumns = []string{"id", "facility_id", "name", "balance", "status", "version", "created_at", "updated_at"}

func TestResidentRepository_Create(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &ResidentRepository{db: mock, logger: newTestLogger()}

	acc, err := resident.NewAccount(uuid.New(), "Margaret Hill")
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(q("INSERT INTO residents")).
			WithArgs(acc.ID, acc.FacilityID, acc.Name, acc.Balance, acc.Status, acc.Version, acc.CreatedAt, acc.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		assert.NoError(t, repo.Create(ctx, acc))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		expectedErr := errors.New("db error")
		mock.ExpectExec(q("INSERT INTO residents")).WillReturnError(expectedErr)

		err := repo.Create(ctx, acc)
		assert.ErrorIs(t, err, expectedErr)
		assert.Contains(t, err.Error(), "failed to create resident")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResidentRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &ResidentRepository{db: mock, logger: newTestLogger()}

	id := uuid.New()
	now := time.Now().UTC()
	expected := &resident.Account{
		ID:         id,
		FacilityID: uuid.New(),
		Name:       "Margaret Hill",
		Balance:    dec("50.00"),
		Status:     resident.StatusActive,
		Version:    3,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	t.Run("success", func(t *testing.T) {
		rows := pgxmock.NewRows(residentRowColumns).
			AddRow(expected.ID, expected.FacilityID, expected.Name, expected.Balance, expected.Status, expected.Version, expected.CreatedAt, expected.UpdatedAt)
		mock.ExpectQuery(q("FROM residents WHERE id = $1")).WithArgs(id).WillReturnRows(rows)

		acc, err := repo.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, expected, acc)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(q("FROM residents WHERE id = $1")).WithArgs(id).WillReturnError(pgx.ErrNoRows)

		acc, err := repo.GetByID(ctx, id)
		assert.Nil(t, acc)
		assert.ErrorIs(t, err, resident.ErrResidentNotFound{ResidentID: id})
		assert.ErrorIs(t, err, shared.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestResidentRepository_ListByFacility(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &ResidentRepository{db: mock, logger: newTestLogger()}

	facilityID := uuid.New()
	now := time.Now().UTC()
	rows := pgxmock.NewRows(residentRowColumns).
		AddRow(uuid.New(), facilityID, "Ada", dec("1.00"), resident.StatusActive, 1, now, now).
		AddRow(uuid.New(), facilityID, "Bert", dec("2.00"), resident.StatusInactive, 2, now, now)
	mock.ExpectQuery(q("FROM residents WHERE facility_id = $1 ORDER BY name")).WithArgs(facilityID).WillReturnRows(rows)

	accounts, err := repo.ListByFacility(ctx, facilityID)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "Ada", accounts[0].Name)
	assert.Equal(t, resident.StatusInactive, accounts[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResidentRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &ResidentRepository{db: mock, logger: newTestLogger()}
	id := uuid.New()

	mock.ExpectExec(q("UPDATE residents SET status = $1")).
		WithArgs(resident.StatusInactive, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, repo.UpdateStatus(ctx, id, resident.StatusInactive))

	mock.ExpectExec(q("UPDATE residents SET status = $1")).
		WithArgs(resident.StatusInactive, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.UpdateStatus(ctx, id, resident.StatusInactive), shared.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResidentRepository_AdjustBalanceAtomic(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &ResidentRepository{db: mock, logger: newTestLogger()}
	id := uuid.New()
	entryID := uuid.New()
	delta := dec("-12.50")
	query := q("SELECT adjust_resident_balance($1, $2, $3)")

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(id, entryID, delta).
			WillReturnRows(pgxmock.NewRows([]string{"adjust_resident_balance"}).AddRow(dec("37.50")))

		balance, err := repo.AdjustBalanceAtomic(ctx, id, entryID, delta)
		require.NoError(t, err)
		assert.True(t, balance.Equal(dec("37.50")))
	})

	t.Run("already applied", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(id, entryID, delta).
			WillReturnRows(pgxmock.NewRows([]string{"adjust_resident_balance"}).AddRow(nil))

		_, err := repo.AdjustBalanceAtomic(ctx, id, entryID, delta)
		assert.ErrorIs(t, err, resident.ErrBalanceAlreadyApplied{EntryID: entryID})
	})

	t.Run("function missing", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(id, entryID, delta).
			WillReturnError(&pgconn.PgError{Code: persistence.CodeUndefinedFunction})

		_, err := repo.AdjustBalanceAtomic(ctx, id, entryID, delta)
		assert.ErrorIs(t, err, shared.ErrPrimitiveUnavailable)
	})

	t.Run("unknown resident", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(id, entryID, delta).
			WillReturnError(&pgconn.PgError{Code: codeNoDataFound})

		_, err := repo.AdjustBalanceAtomic(ctx, id, entryID, delta)
		assert.ErrorIs(t, err, resident.ErrResidentNotFound{ResidentID: id})
	})

	t.Run("unknown entry", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(id, entryID, delta).
			WillReturnError(&pgconn.PgError{Code: codeForeignKeyViolation})

		_, err := repo.AdjustBalanceAtomic(ctx, id, entryID, delta)
		assert.ErrorIs(t, err, ledger.ErrEntryNotFound{EntryID: entryID})
	})

	t.Run("connection error", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs(id, entryID, delta).WillReturnError(errors.New("conn reset"))

		_, err := repo.AdjustBalanceAtomic(ctx, id, entryID, delta)
		assert.ErrorContains(t, err, "failed to adjust resident balance")
		assert.NotErrorIs(t, err, shared.ErrPrimitiveUnavailable)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResidentRepository_IncrementBalance(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &ResidentRepository{db: mock, logger: newTestLogger()}
	id := uuid.New()
	entryID := uuid.New()
	delta := dec("20.00")
	increment := q("SET balance = balance + $1")
	state := q("SELECT balance_applied FROM ledger_entries")

	mock.ExpectQuery(increment).WithArgs(delta, id, entryID).
		WillReturnRows(pgxmock.NewRows([]string{"balance"}).AddRow(dec("70.00")))
	balance, err := repo.IncrementBalance(ctx, id, entryID, delta)
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("70.00")))

	mock.ExpectQuery(increment).WithArgs(delta, id, entryID).WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(state).WithArgs(entryID, id).
		WillReturnRows(pgxmock.NewRows([]string{"balance_applied"}).AddRow(true))
	_, err = repo.IncrementBalance(ctx, id, entryID, delta)
	assert.ErrorIs(t, err, resident.ErrBalanceAlreadyApplied{EntryID: entryID})

	mock.ExpectQuery(increment).WithArgs(delta, id, entryID).WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(state).WithArgs(entryID, id).WillReturnError(pgx.ErrNoRows)
	_, err = repo.IncrementBalance(ctx, id, entryID, delta)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound{EntryID: entryID})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResidentRepository_WriteBalance(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &ResidentRepository{db: mock, logger: newTestLogger()}
	id := uuid.New()
	entryID := uuid.New()
	balance := decimal.RequireFromString("15.00")
	write := q("WHERE id = $2 AND version = $3")
	state := q("SELECT balance_applied FROM ledger_entries")

	mock.ExpectExec(write).WithArgs(balance, id, 4, entryID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, repo.WriteBalance(ctx, id, entryID, balance, 4))

	mock.ExpectExec(write).WithArgs(balance, id, 4, entryID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(state).WithArgs(entryID, id).
		WillReturnRows(pgxmock.NewRows([]string{"balance_applied"}).AddRow(false))
	err := repo.WriteBalance(ctx, id, entryID, balance, 4)
	assert.ErrorIs(t, err, shared.ErrConcurrencyHazard)
	var conflict resident.ErrConcurrentModification
	assert.ErrorAs(t, err, &conflict)

	mock.ExpectExec(write).WithArgs(balance, id, 4, entryID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(state).WithArgs(entryID, id).
		WillReturnRows(pgxmock.NewRows([]string{"balance_applied"}).AddRow(true))
	err = repo.WriteBalance(ctx, id, entryID, balance, 4)
	assert.ErrorIs(t, err, resident.ErrBalanceAlreadyApplied{EntryID: entryID})
	assert.NotErrorIs(t, err, shared.ErrConcurrencyHazard)

	assert.NoError(t, mock.ExpectationsWereMet())
}
