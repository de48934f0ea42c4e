package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/preauth"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPreAuthRunService struct {
	mock.Mock
}

func (m *MockPreAuthRunService) RequestRun(ctx context.Context, facilityID uuid.UUID, month, requestedBy, correlationID string) (*shared.PreAuthRunRequest, error) {
	args := m.Called(ctx, facilityID, month, requestedBy, correlationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*shared.PreAuthRunRequest), args.Error(1)
}

const testMonth = "2026-11"

func preAuthRouter(eng *engine.Engine, runs *MockPreAuthRunService) *gin.Engine {
	var h *PreAuthHandler
	if runs == nil {
		h = NewPreAuthHandler(testLogger(), eng.PreAuth, nil)
	} else {
		h = NewPreAuthHandler(testLogger(), eng.PreAuth, runs)
	}
	router := setupTestRouter()
	router.POST("/preauth", h.Create)
	router.POST("/preauth/process", h.ProcessBatch)
	router.GET("/preauth/:id", h.GetByID)
	router.POST("/preauth/:id/process", h.Process)
	router.POST("/preauth/:id/cancel", h.Cancel)
	router.GET("/facilities/:id/preauth/:month", h.GetMonthlyList)
	router.POST("/facilities/:id/preauth/:month/close", h.CloseMonthlyList)
	router.POST("/facilities/:id/preauth/:month/run", h.RunMonth)
	return router
}

func authorize(t *testing.T, router *gin.Engine, residentID, facilityID uuid.UUID, amount string) preauth.Debit {
	t.Helper()
	rr, env := do(t, router, http.MethodPost, "/preauth", CreatePreAuthRequest{
		ResidentID:  residentID.String(),
		FacilityID:  facilityID.String(),
		Description: "Telephone",
		TargetMonth: testMonth,
		Amount:      dec(amount),
		Type:        "debit",
	}, testUser)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var d preauth.Debit
	decodeData(t, env, &d)
	return d
}

func TestPreAuthHandler_ProcessOne(t *testing.T) {
	eng, _ := testEngine(t)
	router := preAuthRouter(eng, nil)
	facilityID := uuid.New()
	funded := openResident(t, eng, facilityID, "30.00")
	broke := openResident(t, eng, facilityID, "1.00")

	t.Run("Success", func(t *testing.T) {
		d := authorize(t, router, funded, facilityID, "25.00")

		rr, env := do(t, router, http.MethodPost, "/preauth/"+d.ID.String()+"/process", nil, testUser)
		require.Equal(t, http.StatusOK, rr.Code)
		var got preauth.Debit
		decodeData(t, env, &got)
		assert.Equal(t, preauth.StatusProcessed, got.Status)

		rr, _ = do(t, router, http.MethodPost, "/preauth/"+d.ID.String()+"/process", nil, testUser)
		assert.Equal(t, http.StatusConflict, rr.Code, "a processed authorization is not posted again")
	})

	t.Run("InsufficientFunds", func(t *testing.T) {
		d := authorize(t, router, broke, facilityID, "1.01")

		rr, env := do(t, router, http.MethodPost, "/preauth/"+d.ID.String()+"/process", nil, testUser)
		assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "INSUFFICIENT_FUNDS", env.Error.Code)

		rr, env = do(t, router, http.MethodGet, "/preauth/"+d.ID.String(), nil, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var got preauth.Debit
		decodeData(t, env, &got)
		assert.Equal(t, preauth.StatusPending, got.Status)
	})

	t.Run("Cancel", func(t *testing.T) {
		d := authorize(t, router, funded, facilityID, "1.00")
		rr, _ := do(t, router, http.MethodPost, "/preauth/"+d.ID.String()+"/cancel", nil, testUser)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		rr, _ = do(t, router, http.MethodPost, "/preauth/"+d.ID.String()+"/cancel", nil, testUser)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("Unknown", func(t *testing.T) {
		rr, _ := do(t, router, http.MethodPost, "/preauth/"+uuid.NewString()+"/process", nil, testUser)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestPreAuthHandler_ProcessBatch(t *testing.T) {
	eng, _ := testEngine(t)
	router := preAuthRouter(eng, nil)
	facilityID := uuid.New()

	var ids []string
	for _, balance := range []string{"10.00", "10.00", "2.00"} {
		id := openResident(t, eng, facilityID, balance)
		ids = append(ids, authorize(t, router, id, facilityID, "5.00").ID.String())
	}

	rr, env := do(t, router, http.MethodPost, "/preauth/process", ProcessPreAuthRequest{IDs: ids}, testUser)
	require.Equal(t, http.StatusOK, rr.Code)
	var result engine.RunResult
	decodeData(t, env, &result)
	assert.Equal(t, 2, result.SuccessCount)
	assert.Equal(t, 1, result.FailedCount)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, ids[2], result.Failures[0].DebitID.String())

	rr, _ = do(t, router, http.MethodPost, "/preauth/process", gin.H{"ids": []string{"nope"}}, testUser)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = do(t, router, http.MethodPost, "/preauth/process", gin.H{"ids": []string{}}, testUser)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPreAuthHandler_MonthlyList(t *testing.T) {
	eng, _ := testEngine(t)
	runs := new(MockPreAuthRunService)
	router := preAuthRouter(eng, runs)
	facilityID := uuid.New()
	id := openResident(t, eng, facilityID, "50.00")
	authorize(t, router, id, facilityID, "12.00")
	listPath := "/facilities/" + facilityID.String() + "/preauth/" + testMonth

	t.Run("Get", func(t *testing.T) {
		rr, env := do(t, router, http.MethodGet, listPath, nil, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var list preauth.MonthlyList
		decodeData(t, env, &list)
		assert.Equal(t, preauth.ListOpen, list.Status)
		assert.Len(t, list.Authorizations, 1)
		assert.Equal(t, "12.00", list.TotalAmount.StringFixed(2))

		rr, _ = do(t, router, http.MethodGet, "/facilities/"+facilityID.String()+"/preauth/2026-13", nil, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("RunIsQueued", func(t *testing.T) {
		requestID := uuid.New()
		runs.On("RequestRun", mock.Anything, facilityID, testMonth, testUser, mock.AnythingOfType("string")).
			Return(&shared.PreAuthRunRequest{RequestID: requestID, FacilityID: facilityID, Month: testMonth, Timestamp: time.Now()}, nil).Once()

		rr, env := do(t, router, http.MethodPost, listPath+"/run", nil, testUser)
		require.Equal(t, http.StatusAccepted, rr.Code)
		var body map[string]string
		decodeData(t, env, &body)
		assert.Equal(t, requestID.String(), body["request_id"])
		assert.Equal(t, "QUEUED", body["status"])
		runs.AssertExpectations(t)
	})

	t.Run("RunRejected", func(t *testing.T) {
		runs.On("RequestRun", mock.Anything, facilityID, testMonth, "", mock.AnythingOfType("string")).
			Return(nil, shared.NewValidationError("requested_by", "is required")).Once()

		rr, _ := do(t, router, http.MethodPost, listPath+"/run", nil, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Close", func(t *testing.T) {
		rr, env := do(t, router, http.MethodPost, listPath+"/close", nil, testUser)
		require.Equal(t, http.StatusOK, rr.Code)
		var list preauth.MonthlyList
		decodeData(t, env, &list)
		assert.Equal(t, preauth.ListClosed, list.Status)

		rr, _ = do(t, router, http.MethodPost, listPath+"/close", nil, testUser)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})
}

func TestPreAuthHandler_RunWithoutProducer(t *testing.T) {
	eng, _ := testEngine(t)
	router := preAuthRouter(eng, nil)

	rr, env := do(t, router, http.MethodPost, "/facilities/"+uuid.NewString()+"/preauth/"+testMonth+"/run", nil, testUser)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error.Code)
}
