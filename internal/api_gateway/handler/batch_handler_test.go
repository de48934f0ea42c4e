package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/depositbatch"
	"github.com/resident-trust-ledger/internal/domain/ledger"
	"github.com/resident-trust-ledger/internal/domain/servicebatch"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableFor fails every posting for one resident
type unreachableFor struct {
	next       engine.EntryRecorder
	residentID uuid.UUID
}

func (r *unreachableFor) RecordEntry(ctx context.Context, req engine.RecordEntryRequest) (*ledger.Entry, error) {
	if req.ResidentID == r.residentID {
		return nil, shared.Remote("record ledger entry", errors.New("i/o timeout"))
	}
	return r.next.RecordEntry(ctx, req)
}

func TestServiceBatchHandler(t *testing.T) {
	eng, _ := testEngine(t)
	h := NewServiceBatchHandler(testLogger(), eng.ServiceBatches)
	router := setupTestRouter()
	router.POST("/service-batches", h.Create)
	router.GET("/service-batches/:id", h.GetByID)
	router.DELETE("/service-batches/:id", h.Delete)
	router.PUT("/service-batches/:id/items/:residentId", h.PutItem)
	router.PATCH("/service-batches/:id/items/:residentId", h.PatchItem)
	router.DELETE("/service-batches/:id/items/:residentId", h.RemoveItem)
	router.POST("/service-batches/:id/post", h.Post)
	router.GET("/facilities/:id/service-batches", h.ListByFacility)

	facilityID := uuid.New()
	rich := openResident(t, eng, facilityID, "100.00")
	poor := openResident(t, eng, facilityID, "5.00")

	rr, env := do(t, router, http.MethodPost, "/service-batches",
		CreateServiceBatchRequest{FacilityID: facilityID.String(), ServiceType: "pharmacy"}, testUser)
	require.Equal(t, http.StatusCreated, rr.Code)
	var b servicebatch.Batch
	decodeData(t, env, &b)
	base := "/service-batches/" + b.ID.String()

	t.Run("UnknownServiceType", func(t *testing.T) {
		rr, _ := do(t, router, http.MethodPost, "/service-batches",
			CreateServiceBatchRequest{FacilityID: facilityID.String(), ServiceType: "massage"}, testUser)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Items", func(t *testing.T) {
		rr, _ := do(t, router, http.MethodPut, base+"/items/"+rich.String(), gin.H{"amount": "20.00"}, testUser)
		require.Equal(t, http.StatusOK, rr.Code)
		rr, _ = do(t, router, http.MethodPut, base+"/items/"+poor.String(), gin.H{"amount": 5.01}, testUser)
		require.Equal(t, http.StatusOK, rr.Code)

		rr, _ = do(t, router, http.MethodPatch, base+"/items/"+rich.String(), gin.H{"amount": "25.00"}, testUser)
		require.Equal(t, http.StatusNoContent, rr.Code)

		rr, _ = do(t, router, http.MethodPatch, base+"/items/"+uuid.NewString(), gin.H{"amount": "1.00"}, testUser)
		assert.Equal(t, http.StatusNotFound, rr.Code)

		rr, _ = do(t, router, http.MethodPut, base+"/items/"+rich.String(), gin.H{"amount": "-1"}, testUser)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr, env := do(t, router, http.MethodGet, base, nil, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var got servicebatch.Batch
		decodeData(t, env, &got)
		assert.Equal(t, "30.01", got.TotalAmount.StringFixed(2))
		assert.Len(t, got.Items, 2)
	})

	t.Run("Post", func(t *testing.T) {
		rr, env := do(t, router, http.MethodPost, base+"/post", PostServiceBatchRequest{ChequeNumber: "CHQ-7"}, testUser)
		require.Equal(t, http.StatusOK, rr.Code, "per-item failures do not fail the post")

		var result engine.PostResult
		decodeData(t, env, &result)
		assert.Equal(t, 1, result.ProcessedCount)
		assert.Equal(t, 1, result.FailedCount)
		for _, o := range result.Outcomes {
			if o.ResidentID == poor {
				assert.Equal(t, servicebatch.InsufficientFundsMessage, o.Error)
			}
		}

		rr, env = do(t, router, http.MethodPost, base+"/post", nil, testUser)
		assert.Equal(t, http.StatusConflict, rr.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "INVALID_STATE", env.Error.Code)

		rr, _ = do(t, router, http.MethodDelete, base, nil, testUser)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("ListAndDelete", func(t *testing.T) {
		rr, env := do(t, router, http.MethodPost, "/service-batches",
			CreateServiceBatchRequest{FacilityID: facilityID.String(), ServiceType: "cable_tv"}, testUser)
		require.Equal(t, http.StatusCreated, rr.Code)
		var open servicebatch.Batch
		decodeData(t, env, &open)

		rr, env = do(t, router, http.MethodGet, "/facilities/"+facilityID.String()+"/service-batches", nil, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var batches []servicebatch.Batch
		decodeData(t, env, &batches)
		assert.Len(t, batches, 2)

		rr, _ = do(t, router, http.MethodDelete, "/service-batches/"+open.ID.String(), nil, testUser)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		rr, _ = do(t, router, http.MethodGet, "/service-batches/"+open.ID.String(), nil, "")
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestDepositBatchHandler(t *testing.T) {
	eng, store := testEngine(t)
	facilityID := uuid.New()
	steady := openResident(t, eng, facilityID, "0")
	flaky := openResident(t, eng, facilityID, "0")

	svc := engine.NewDepositBatchService(testLogger(), store.DepositBatches(), store.Residents(),
		&unreachableFor{next: eng.Ledger, residentID: flaky}, nil)
	h := NewDepositBatchHandler(testLogger(), svc)
	router := setupTestRouter()
	router.POST("/deposit-batches", h.Create)
	router.GET("/deposit-batches/:id", h.GetByID)
	router.POST("/deposit-batches/:id/entries", h.AddEntry)
	router.PUT("/deposit-batches/:id/entries/:entryId", h.UpdateEntry)
	router.DELETE("/deposit-batches/:id/entries/:entryId", h.RemoveEntry)
	router.POST("/deposit-batches/:id/close", h.Close)
	router.GET("/facilities/:id/deposit-batches", h.ListByFacility)

	rr, env := do(t, router, http.MethodPost, "/deposit-batches",
		CreateDepositBatchRequest{FacilityID: facilityID.String(), Description: "Family deposits"}, testUser)
	require.Equal(t, http.StatusCreated, rr.Code)
	var b depositbatch.Batch
	decodeData(t, env, &b)
	base := "/deposit-batches/" + b.ID.String()

	t.Run("ChequeNumberRequired", func(t *testing.T) {
		rr, env := do(t, router, http.MethodPost, base+"/entries",
			gin.H{"resident_id": steady.String(), "amount": "10.00", "method": "cheque"}, testUser)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		require.NotNil(t, env.Error)
		assert.Contains(t, env.Error.Message, "cheque_number")
	})

	var flakyEntry depositbatch.Entry
	t.Run("Entries", func(t *testing.T) {
		rr, _ := do(t, router, http.MethodPost, base+"/entries",
			gin.H{"resident_id": steady.String(), "amount": "15.00", "method": "cash"}, testUser)
		require.Equal(t, http.StatusCreated, rr.Code)

		rr, env := do(t, router, http.MethodPost, base+"/entries",
			gin.H{"resident_id": flaky.String(), "amount": "9.00", "method": "cheque", "cheque_number": "0042"}, testUser)
		require.Equal(t, http.StatusCreated, rr.Code)
		decodeData(t, env, &flakyEntry)

		rr, _ = do(t, router, http.MethodPut, base+"/entries/"+flakyEntry.ID.String(),
			gin.H{"resident_id": flaky.String(), "amount": "11.00", "method": "cheque", "cheque_number": "0042"}, testUser)
		require.Equal(t, http.StatusOK, rr.Code)

		rr, env = do(t, router, http.MethodGet, base, nil, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var got depositbatch.Batch
		decodeData(t, env, &got)
		assert.Equal(t, "26.00", got.TotalAmount.StringFixed(2))
		assert.Equal(t, "15.00", got.TotalCash.StringFixed(2))
		assert.Equal(t, "11.00", got.TotalCheques.StringFixed(2))
	})

	t.Run("PartialCloseReportsOutcomes", func(t *testing.T) {
		rr, env := do(t, router, http.MethodPost, base+"/close", nil, testUser)
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		require.NotNil(t, env.Error)
		assert.Equal(t, "SERVICE_UNAVAILABLE", env.Error.Code)

		var result engine.CloseResult
		decodeData(t, env, &result)
		require.Len(t, result.Outcomes, 2)
		for _, o := range result.Outcomes {
			if o.ItemID == flakyEntry.ID {
				assert.Equal(t, string(depositbatch.EntryPending), o.Status)
			} else {
				assert.Equal(t, string(depositbatch.EntryProcessed), o.Status)
			}
		}

		balance, err := eng.Ledger.GetBalance(context.Background(), steady)
		require.NoError(t, err)
		assert.Equal(t, "15.00", balance.StringFixed(2))
	})

	t.Run("RemoveFailingEntryThenClose", func(t *testing.T) {
		rr, _ := do(t, router, http.MethodDelete, base+"/entries/"+flakyEntry.ID.String(), nil, testUser)
		require.Equal(t, http.StatusNoContent, rr.Code)

		rr, env := do(t, router, http.MethodPost, base+"/close", nil, testUser)
		require.Equal(t, http.StatusOK, rr.Code)
		var result engine.CloseResult
		decodeData(t, env, &result)
		assert.Equal(t, depositbatch.StatusClosed, result.Batch.Status)

		balance, err := eng.Ledger.GetBalance(context.Background(), steady)
		require.NoError(t, err)
		assert.Equal(t, "15.00", balance.StringFixed(2), "the processed entry is not credited again")

		rr, _ = do(t, router, http.MethodPost, base+"/entries",
			gin.H{"resident_id": steady.String(), "amount": "1.00", "method": "cash"}, testUser)
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("ListByFacility", func(t *testing.T) {
		rr, env := do(t, router, http.MethodGet, "/facilities/"+facilityID.String()+"/deposit-batches", nil, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var batches []depositbatch.Batch
		decodeData(t, env, &batches)
		assert.Len(t, batches, 1)
	})
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantName string
	}{
		{"validation", shared.NewValidationError("amount", "must be greater than zero"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", fmt.Errorf("resident 42: %w", shared.ErrNotFound), http.StatusNotFound, "NOT_FOUND"},
		{"batch not open", shared.ErrBatchNotOpen, http.StatusConflict, "INVALID_STATE"},
		{"insufficient funds", shared.ErrInsufficientFunds, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
		{"concurrency hazard", shared.ErrConcurrencyHazard, http.StatusConflict, "CONCURRENCY_HAZARD"},
		{"remote failure", shared.Remote("get balance", errors.New("timeout")), http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"partial close", depositbatch.ErrPartialClose{Failed: 1, Total: 2}, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{"unclassified", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, name := errorStatus(tt.err)
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantName, name)
		})
	}
}
