package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/preauth"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMonthlyListReader struct {
	mock.Mock
}

func (m *MockMonthlyListReader) GetMonthlyList(ctx context.Context, facilityID uuid.UUID, month string) (*preauth.MonthlyList, error) {
	args := m.Called(ctx, facilityID, month)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*preauth.MonthlyList), args.Error(1)
}

type MockMessagePublisher struct {
	mock.Mock
}

func (m *MockMessagePublisher) Publish(ctx context.Context, key string, value interface{}) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockMessagePublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestPreAuthRunService_RequestRun(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	ctx := context.Background()
	facilityID := uuid.New()
	const month = "2026-11"

	openList := &preauth.MonthlyList{ID: uuid.New(), FacilityID: facilityID, Month: month, Status: preauth.ListOpen}

	t.Run("publishes keyed by facility", func(t *testing.T) {
		lists := new(MockMonthlyListReader)
		producer := new(MockMessagePublisher)
		svc := NewPreAuthRunService(logger, lists, producer)

		lists.On("GetMonthlyList", ctx, facilityID, month).Return(openList, nil)
		producer.On("Publish", ctx, facilityID.String(), mock.MatchedBy(func(req *shared.PreAuthRunRequest) bool {
			return req.FacilityID == facilityID && req.Month == month && req.RequestedBy == "clerk" && req.CorrelationID == "corr-1"
		})).Return(nil)

		req, err := svc.RequestRun(ctx, facilityID, month, "clerk", "corr-1")
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, req.RequestID)
		assert.False(t, req.Timestamp.IsZero())

		lists.AssertExpectations(t)
		producer.AssertExpectations(t)
	})

	t.Run("closed list is refused before publishing", func(t *testing.T) {
		lists := new(MockMonthlyListReader)
		producer := new(MockMessagePublisher)
		svc := NewPreAuthRunService(logger, lists, producer)

		closed := *openList
		closed.Status = preauth.ListClosed
		lists.On("GetMonthlyList", ctx, facilityID, month).Return(&closed, nil)

		_, err := svc.RequestRun(ctx, facilityID, month, "clerk", "")
		assert.ErrorIs(t, err, shared.ErrInvalidState)
		producer.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("invalid input", func(t *testing.T) {
		lists := new(MockMonthlyListReader)
		producer := new(MockMessagePublisher)
		svc := NewPreAuthRunService(logger, lists, producer)

		_, err := svc.RequestRun(ctx, facilityID, "11/2026", "clerk", "")
		assert.ErrorIs(t, err, shared.ErrValidation)

		_, err = svc.RequestRun(ctx, facilityID, month, " ", "")
		assert.ErrorIs(t, err, shared.ErrValidation)

		_, err = svc.RequestRun(ctx, uuid.Nil, month, "clerk", "")
		assert.ErrorIs(t, err, shared.ErrValidation)

		lists.AssertNotCalled(t, "GetMonthlyList", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("publish failure is a remote failure", func(t *testing.T) {
		lists := new(MockMonthlyListReader)
		producer := new(MockMessagePublisher)
		svc := NewPreAuthRunService(logger, lists, producer)

		lists.On("GetMonthlyList", ctx, facilityID, month).Return(openList, nil)
		producer.On("Publish", ctx, facilityID.String(), mock.Anything).Return(errors.New("broker unavailable"))

		_, err := svc.RequestRun(ctx, facilityID, month, "clerk", "")
		assert.ErrorIs(t, err, shared.ErrRemoteFailure)
	})
}
