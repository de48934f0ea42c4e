package handler

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/cashbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCashBoxHandler(t *testing.T) {
	eng, _ := testEngine(t)
	h := NewCashBoxHandler(testLogger(), eng.CashBox)
	router := setupTestRouter()
	router.GET("/facilities/:id/cash-box", h.GetBalance)
	router.POST("/facilities/:id/cash-box/transactions", h.CreateTransaction)
	router.GET("/facilities/:id/cash-box/transactions", h.ListTransactions)
	router.POST("/facilities/:id/cash-box/reset", h.Reset)
	router.GET("/facilities/:id/cash-box/history", h.ListHistory)

	facilityID := uuid.New()
	base := "/facilities/" + facilityID.String() + "/cash-box"

	balance := func(t *testing.T) string {
		t.Helper()
		rr, env := do(t, router, http.MethodGet, base, nil, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var got CashBoxBalanceResponse
		decodeData(t, env, &got)
		return got.Balance
	}

	t.Run("OpeningBalance", func(t *testing.T) {
		assert.Equal(t, "200.00", balance(t))
	})

	t.Run("IdempotentTransaction", func(t *testing.T) {
		req := CashBoxTransactionRequest{Type: "withdrawal", Amount: dec("35.00"), Description: "Stamps", TransactionID: "till-1"}

		rr, env := do(t, router, http.MethodPost, base+"/transactions", req, testUser)
		require.Equal(t, http.StatusCreated, rr.Code)
		var first cashbox.Transaction
		decodeData(t, env, &first)
		assert.Equal(t, "165.00", first.BalanceAfter.StringFixed(2))

		rr, env = do(t, router, http.MethodPost, base+"/transactions", req, testUser)
		require.Equal(t, http.StatusCreated, rr.Code)
		var again cashbox.Transaction
		decodeData(t, env, &again)
		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, "165.00", balance(t))
	})

	t.Run("InvalidTransactions", func(t *testing.T) {
		rr, _ := do(t, router, http.MethodPost, base+"/transactions",
			CashBoxTransactionRequest{Type: "transfer", Amount: dec("1.00"), TransactionID: "x"}, testUser)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr, _ = do(t, router, http.MethodPost, base+"/transactions",
			CashBoxTransactionRequest{Type: "deposit", Amount: dec("0"), TransactionID: "y"}, testUser)
		assert.Equal(t, http.StatusBadRequest, rr.Code)

		rr, _ = do(t, router, http.MethodPost, "/facilities/not-a-uuid/cash-box/transactions",
			CashBoxTransactionRequest{Type: "deposit", Amount: dec("1.00"), TransactionID: "z"}, testUser)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("Reset", func(t *testing.T) {
		rr, _ := do(t, router, http.MethodPost, base+"/reset", nil, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, "a reset needs an acting user")

		rr, env := do(t, router, http.MethodPost, base+"/reset", nil, testUser)
		require.Equal(t, http.StatusOK, rr.Code)
		var history cashbox.History
		decodeData(t, env, &history)
		assert.True(t, history.ResetCompleted)
		assert.Equal(t, "165.00", history.EndingBalance.StringFixed(2))
		assert.Len(t, history.Transactions, 1)

		assert.Equal(t, "200.00", balance(t))

		rr, env = do(t, router, http.MethodGet, base+"/transactions", nil, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var txs []cashbox.Transaction
		decodeData(t, env, &txs)
		assert.Empty(t, txs)

		rr, env = do(t, router, http.MethodGet, base+"/history?limit=5", nil, "")
		require.Equal(t, http.StatusOK, rr.Code)
		var list []cashbox.History
		decodeData(t, env, &list)
		assert.Len(t, list, 1)

		rr, _ = do(t, router, http.MethodGet, base+"/history?limit=zero", nil, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
