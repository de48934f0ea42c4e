package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/api_gateway/middleware"
	"github.com/resident-trust-ledger/internal/config"
	"github.com/resident-trust-ledger/internal/data/memory"
	"github.com/resident-trust-ledger/internal/engine"
	"github.com/resident-trust-ledger/internal/platform/cache"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testUser = "clerk@facility"

type envelope struct {
	Data          json.RawMessage `json:"data"`
	Error         *ErrorInfo      `json:"error"`
	CorrelationID string          `json:"correlation_id"`
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testEngine(t *testing.T) (*engine.Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	cfg := &config.Config{
		Ledger:     config.LedgerConfig{AdjustRetryDelay: time.Millisecond},
		CashBox:    config.CashBoxConfig{OpeningBalance: "200.00"},
		WorkerPool: config.WorkerPoolConfig{PreAuthCap: 2},
	}
	eng, err := engine.New(cfg, engine.Repositories{
		Residents:      store.Residents(),
		Ledger:         store.Ledger(),
		ServiceBatches: store.ServiceBatches(),
		DepositBatches: store.DepositBatches(),
		PreAuth:        store.PreAuth(),
		CashBox:        store.CashBox(),
		CashBoxHistory: store.CashBoxHistory(),
		Withdrawals:    store.Withdrawals(),
	}, cache.NewMemoryCache(time.Minute), testLogger())
	require.NoError(t, err)
	t.Cleanup(eng.Shutdown)
	return eng, store
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.CorrelationID())
	r.Use(middleware.UserID())
	return r
}

// do sends a JSON request as testUser unless user is empty
func do(t *testing.T, router http.Handler, method, path string, body interface{}, user string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(middleware.UserIDHeader, user)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	var env envelope
	if rr.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	}
	return rr, env
}

func decodeData(t *testing.T, env envelope, dest interface{}) {
	t.Helper()
	require.NotEmpty(t, env.Data, "response has no data")
	require.NoError(t, json.Unmarshal(env.Data, dest))
}

// openResident creates an account through the engine and funds it
func openResident(t *testing.T, eng *engine.Engine, facilityID uuid.UUID, balance string) uuid.UUID {
	t.Helper()
	acc, err := eng.Ledger.OpenAccount(context.Background(), facilityID, "Resident "+balance)
	require.NoError(t, err)
	if balance != "0" {
		router := setupTestRouter()
		h := NewResidentHandler(testLogger(), eng.Ledger)
		router.POST("/residents/:id/entries", h.RecordEntry)
		rr, _ := do(t, router, http.MethodPost, "/residents/"+acc.ID.String()+"/entries",
			gin.H{"type": "credit", "amount": balance}, testUser)
		require.Equal(t, http.StatusCreated, rr.Code)
	}
	return acc.ID
}
