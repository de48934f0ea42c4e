package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/resident-trust-ledger/internal/domain/outbox"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxRepository_GetPending(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &OutboxRepository{db: mock, logger: newTestLogger()}

	entryID, facilityID := uuid.New(), uuid.New()
	now := time.Now().UTC()
	rows := pgxmock.NewRows([]string{"id", "entry_id", "facility_id", "payload", "status", "attempts", "created_at", "last_attempt_at"}).
		AddRow(int64(7), entryID, facilityID, []byte(`{"id":"x"}`), shared.OutboxStatusPending, 1, now, &now)

	mock.ExpectQuery(q("FROM ledger_outbox")).
		WithArgs(shared.OutboxStatusPending, 50).
		WillReturnRows(rows)

	messages, err := repo.GetPending(ctx, 50)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, int64(7), messages[0].ID)
	assert.Equal(t, entryID, messages[0].EntryID)
	assert.Equal(t, facilityID, messages[0].FacilityID)
	assert.Equal(t, 1, messages[0].Attempts)

	mock.ExpectQuery(q("FROM ledger_outbox")).WillReturnError(errors.New("db down"))
	_, err = repo.GetPending(ctx, 50)
	assert.ErrorContains(t, err, "failed to get pending outbox messages")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_UpdateStatus(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &OutboxRepository{db: mock, logger: newTestLogger()}

	mock.ExpectExec(q("UPDATE ledger_outbox")).
		WithArgs(shared.OutboxStatusProcessed, pgxmock.AnyArg(), int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, repo.UpdateStatus(ctx, 3, shared.OutboxStatusProcessed))

	mock.ExpectExec(q("UPDATE ledger_outbox")).
		WithArgs(shared.OutboxStatusProcessed, pgxmock.AnyArg(), int64(4)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := repo.UpdateStatus(ctx, 4, shared.OutboxStatusProcessed)
	assert.Equal(t, outbox.ErrMessageNotFound{ID: 4}, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_IncrementAttempts(t *testing.T) {
	ctx := context.Background()
	mock := newMockPool(t)
	repo := &OutboxRepository{db: mock, logger: newTestLogger()}

	mock.ExpectExec(q("SET attempts = attempts + 1")).
		WithArgs(pgxmock.AnyArg(), int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	assert.NoError(t, repo.IncrementAttempts(ctx, 9))

	mock.ExpectExec(q("SET attempts = attempts + 1")).
		WithArgs(pgxmock.AnyArg(), int64(9)).
		WillReturnError(errors.New("boom"))
	assert.ErrorContains(t, repo.IncrementAttempts(ctx, 9), "failed to increment outbox message attempts")

	assert.NoError(t, mock.ExpectationsWereMet())
}
