package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/resident-trust-ledger/internal/domain/batch"
	"github.com/resident-trust-ledger/internal/domain/servicebatch"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	serviceBatchRowColumns = []string{"id", "facility_id", "service_type", "status", "created_by", "created_at",
		"posted_by", "posted_at", "total_amount", "processed_count"}
	serviceItemRowColumns = []string{"id", "batch_id", "resident_id", "amount", "status", "error_message", "processed_at", "created_at"}
)

func TestServiceBatchRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &ServiceBatchRepository{db: mock, logger: newTestLogger()}

	batchID, facilityID := uuid.New(), uuid.New()
	now := time.Now().UTC()
	msg := servicebatch.InsufficientFundsMessage

	mock.ExpectQuery(q("FROM service_batches WHERE id = $1")).WithArgs(batchID).
		WillReturnRows(pgxmock.NewRows(serviceBatchRowColumns).
			AddRow(batchID, facilityID, servicebatch.ServicePharmacy, batch.StatusOpen, "manager", now,
				(*string)(nil), (*time.Time)(nil), dec("30.00"), 0))
	mock.ExpectQuery(q("FROM service_batch_items")).WithArgs(batchID).
		WillReturnRows(pgxmock.NewRows(serviceItemRowColumns).
			AddRow(uuid.New(), batchID, uuid.New(), dec("10.00"), servicebatch.ItemPending, (*string)(nil), (*time.Time)(nil), now).
			AddRow(uuid.New(), batchID, uuid.New(), dec("20.00"), servicebatch.ItemFailed, &msg, (*time.Time)(nil), now))

	b, err := repo.GetByID(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, servicebatch.ServicePharmacy, b.ServiceType)
	require.Len(t, b.Items, 2)
	assert.Nil(t, b.PostedBy)
	require.NotNil(t, b.Items[1].ErrorMessage)
	assert.Equal(t, "Insufficient funds", *b.Items[1].ErrorMessage)
	assert.True(t, b.SumItems().Equal(b.TotalAmount))

	mock.ExpectQuery(q("FROM service_batches WHERE id = $1")).WithArgs(batchID).WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetByID(ctx, batchID)
	assert.ErrorIs(t, err, servicebatch.ErrBatchNotFound{BatchID: batchID})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceBatchRepository_UpsertItem(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &ServiceBatchRepository{db: mock, logger: newTestLogger()}

	item, err := servicebatch.NewItem(uuid.New(), uuid.New(), dec("12.00"))
	require.NoError(t, err)
	existingID := uuid.New()

	t.Run("existing resident item keeps its id", func(t *testing.T) {
		mock.ExpectQuery(q("ON CONFLICT (batch_id, resident_id) DO UPDATE SET amount = EXCLUDED.amount")).
			WithArgs(item.ID, item.BatchID, item.ResidentID, item.Amount, item.Status, item.CreatedAt).
			WillReturnRows(pgxmock.NewRows(serviceItemRowColumns).
				AddRow(existingID, item.BatchID, item.ResidentID, item.Amount, servicebatch.ItemPending, (*string)(nil), (*time.Time)(nil), item.CreatedAt))

		stored, err := repo.UpsertItem(ctx, item)
		require.NoError(t, err)
		assert.Equal(t, existingID, stored.ID)
		assert.True(t, stored.Amount.Equal(dec("12.00")))
	})

	t.Run("batch not open", func(t *testing.T) {
		mock.ExpectQuery(q("INSERT INTO service_batch_items")).WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(q("SELECT status = 'open' FROM service_batches")).WithArgs(item.BatchID).
			WillReturnRows(pgxmock.NewRows([]string{"open"}).AddRow(false))

		_, err := repo.UpsertItem(ctx, item)
		assert.ErrorIs(t, err, shared.ErrBatchNotOpen)
	})

	t.Run("settled item is not overwritten", func(t *testing.T) {
		mock.ExpectQuery(q("WHERE service_batch_items.status = 'pending'")).WillReturnError(pgx.ErrNoRows)
		mock.ExpectQuery(q("SELECT status = 'open' FROM service_batches")).WithArgs(item.BatchID).
			WillReturnRows(pgxmock.NewRows([]string{"open"}).AddRow(true))

		_, err := repo.UpsertItem(ctx, item)
		assert.ErrorIs(t, err, servicebatch.ErrItemNotPending{})
		assert.ErrorIs(t, err, shared.ErrInvalidState)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceBatchRepository_ItemMutations(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &ServiceBatchRepository{db: mock, logger: newTestLogger()}
	batchID, residentID := uuid.New(), uuid.New()

	mock.ExpectExec(q("UPDATE service_batch_items i SET amount = $1")).
		WithArgs(dec("8.00"), batchID, residentID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, repo.UpdateItemAmount(ctx, batchID, residentID, dec("8.00")))

	mock.ExpectExec(q("AND i.status = 'pending'")).
		WithArgs(dec("9.00"), batchID, residentID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := repo.UpdateItemAmount(ctx, batchID, residentID, dec("9.00"))
	assert.ErrorIs(t, err, servicebatch.ErrItemNotFound{}, "processed items are left alone")

	mock.ExpectExec(q("DELETE FROM service_batch_items i")).
		WithArgs(batchID, residentID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	err = repo.DeleteItem(ctx, batchID, residentID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	mock.ExpectQuery(q("SET total_amount = (SELECT COALESCE(SUM(amount), 0)")).WithArgs(batchID).
		WillReturnRows(pgxmock.NewRows([]string{"total_amount"}).AddRow(dec("8.00")))
	total, err := repo.RecomputeTotal(ctx, batchID)
	require.NoError(t, err)
	assert.True(t, total.Equal(dec("8.00")))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceBatchRepository_MarkPosted(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &ServiceBatchRepository{db: mock, logger: newTestLogger()}

	b, err := servicebatch.NewBatch(uuid.New(), servicebatch.ServiceHairCare, "manager")
	require.NoError(t, err)
	b.MarkPosted("manager", time.Now().UTC())

	t.Run("first post", func(t *testing.T) {
		mock.ExpectQuery(q("WHERE id = $4 AND status = 'open'")).
			WithArgs(servicebatch.StatusPosted, b.PostedBy, b.PostedAt, b.ID).
			WillReturnRows(pgxmock.NewRows([]string{"processed_count", "total_amount"}).AddRow(2, dec("45.00")))

		require.NoError(t, repo.MarkPosted(ctx, b))
		assert.Equal(t, 2, b.ProcessedCount)
		assert.True(t, b.TotalAmount.Equal(dec("45.00")))
	})

	t.Run("already posted", func(t *testing.T) {
		mock.ExpectQuery(q("WHERE id = $4 AND status = 'open'")).WillReturnError(pgx.ErrNoRows)

		err := repo.MarkPosted(ctx, b)
		assert.ErrorIs(t, err, shared.ErrBatchAlreadyPosted)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceBatchRepository_Delete(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	t.Run("items then batch", func(t *testing.T) {
		mock := newMockPool(t)
		repo := &ServiceBatchRepository{db: mock, logger: newTestLogger()}

		mock.ExpectBegin()
		mock.ExpectExec(q("DELETE FROM service_batch_items WHERE batch_id = $1")).WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		mock.ExpectExec(q("DELETE FROM service_batches WHERE id = $1 AND status = 'open'")).WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()

		assert.NoError(t, repo.Delete(ctx, id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("posted batch rolls back", func(t *testing.T) {
		mock := newMockPool(t)
		repo := &ServiceBatchRepository{db: mock, logger: newTestLogger()}

		mock.ExpectBegin()
		mock.ExpectExec(q("DELETE FROM service_batch_items")).WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 3))
		mock.ExpectExec(q("DELETE FROM service_batches")).WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.Delete(ctx, id), shared.ErrBatchNotOpen)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("store failure", func(t *testing.T) {
		mock := newMockPool(t)
		repo := &ServiceBatchRepository{db: mock, logger: newTestLogger()}

		mock.ExpectBegin()
		mock.ExpectExec(q("DELETE FROM service_batch_items")).WillReturnError(errors.New("lost connection"))
		mock.ExpectRollback()

		assert.ErrorContains(t, repo.Delete(ctx, id), "failed to delete service batch items")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
