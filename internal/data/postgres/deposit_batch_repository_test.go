package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/resident-trust-ledger/internal/domain/batch"
	"github.com/resident-trust-ledger/internal/domain/depositbatch"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDepositBatchRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &DepositBatchRepository{db: mock, logger: newTestLogger()}

	batchID := uuid.New()
	now := time.Now().UTC()
	mock.ExpectQuery(q("FROM deposit_batches WHERE id = $1")).WithArgs(batchID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "facility_id", "description", "status", "total_amount", "total_cash",
			"total_cheques", "created_by", "created_at", "closed_by", "closed_at"}).
			AddRow(batchID, uuid.New(), "Family deposits", batch.StatusOpen, dec("150.00"), dec("50.00"), dec("100.00"),
				"clerk", now, (*string)(nil), (*time.Time)(nil)))
	mock.ExpectQuery(q("FROM deposit_batch_entries")).WithArgs(batchID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "batch_id", "resident_id", "amount", "method", "cheque_number",
			"description", "status", "processed_at", "created_at"}).
			AddRow(uuid.New(), batchID, uuid.New(), dec("50.00"), shared.MethodCash, "", "", depositbatch.EntryPending, (*time.Time)(nil), now).
			AddRow(uuid.New(), batchID, uuid.New(), dec("100.00"), shared.MethodCheque, "1042", "", depositbatch.EntryPending, (*time.Time)(nil), now))

	b, err := repo.GetByID(ctx, batchID)
	require.NoError(t, err)
	require.Len(t, b.Entries, 2)
	assert.Equal(t, "1042", b.Entries[1].ChequeNumber)
	totals := depositbatch.ComputeTotals(b.Entries)
	assert.True(t, totals.Amount.Equal(b.TotalAmount))
	assert.True(t, totals.Cheques.Equal(b.TotalCheques))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepositBatchRepository_AddEntry(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &DepositBatchRepository{db: mock, logger: newTestLogger()}

	e, err := depositbatch.NewEntry(uuid.New(), depositbatch.EntryInput{
		ResidentID:   uuid.New(),
		Amount:       dec("75.00"),
		Method:       shared.MethodCheque,
		ChequeNumber: "881",
	})
	require.NoError(t, err)

	mock.ExpectExec(q("FROM deposit_batches b WHERE b.id = $2 AND b.status = 'open'")).
		WithArgs(e.ID, e.BatchID, e.ResidentID, e.Amount, e.Method, e.ChequeNumber, e.Description, e.Status, e.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	assert.NoError(t, repo.AddEntry(ctx, e))

	mock.ExpectExec(q("INSERT INTO deposit_batch_entries")).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	assert.ErrorIs(t, repo.AddEntry(ctx, e), shared.ErrBatchNotOpen)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepositBatchRepository_RecomputeTotals(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &DepositBatchRepository{db: mock, logger: newTestLogger()}
	batchID := uuid.New()

	mock.ExpectQuery(q("FILTER (WHERE method = 'cash')")).WithArgs(batchID).
		WillReturnRows(pgxmock.NewRows([]string{"total_amount", "total_cash", "total_cheques"}).
			AddRow(dec("125.00"), dec("25.00"), dec("100.00")))

	totals, err := repo.RecomputeTotals(ctx, batchID)
	require.NoError(t, err)
	assert.True(t, totals.Amount.Equal(totals.Cash.Add(totals.Cheques)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepositBatchRepository_MarkClosed(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &DepositBatchRepository{db: mock, logger: newTestLogger()}

	b, err := depositbatch.NewBatch(uuid.New(), "", "clerk")
	require.NoError(t, err)
	b.MarkClosed("clerk", time.Now().UTC())

	mock.ExpectExec(q("UPDATE deposit_batches SET status = $1")).
		WithArgs(depositbatch.StatusClosed, b.ClosedBy, b.ClosedAt, b.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, repo.MarkClosed(ctx, b))

	mock.ExpectExec(q("UPDATE deposit_batches SET status = $1")).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.MarkClosed(ctx, b), shared.ErrBatchNotOpen)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepositBatchRepository_EntryMutations(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &DepositBatchRepository{db: mock, logger: newTestLogger()}
	batchID, entryID := uuid.New(), uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec(q("DELETE FROM deposit_batch_entries WHERE id = $1 AND batch_id = $2 AND status = 'pending'")).
		WithArgs(entryID, batchID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	assert.NoError(t, repo.DeleteEntry(ctx, batchID, entryID))

	mock.ExpectExec(q("UPDATE deposit_batch_entries SET status = $1, processed_at = $2")).
		WithArgs(depositbatch.EntryProcessed, at, entryID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.ErrorIs(t, repo.MarkEntryProcessed(ctx, entryID, at), depositbatch.ErrEntryNotFound{EntryID: entryID})

	assert.NoError(t, mock.ExpectationsWereMet())
}
