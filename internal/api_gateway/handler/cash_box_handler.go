package handler

import (
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/api_gateway/middleware"
	"github.com/resident-trust-ledger/internal/domain/cashbox"
	"github.com/resident-trust-ledger/internal/engine"
)

// CashBoxHandler handles HTTP requests for the facility petty cash box
type CashBoxHandler struct {
	cashBox *engine.CashBoxService
	logger  *slog.Logger
}

func NewCashBoxHandler(logger *slog.Logger, cashBox *engine.CashBoxService) *CashBoxHandler {
	return &CashBoxHandler{
		cashBox: cashBox,
		logger:  logger,
	}
}

func (h *CashBoxHandler) GetBalance(c *gin.Context) {
	facilityID, ok := parseID(c, h.logger, "id", "facility ID")
	if !ok {
		return
	}

	balance, err := h.cashBox.GetBalance(c.Request.Context(), facilityID)
	if err != nil {
		h.logger.Error("Failed to get cash box balance", "facility_id", facilityID, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, CashBoxBalanceResponse{FacilityID: facilityID.String(), Balance: money(balance)})
}

// CreateTransaction applies a direct cash box movement. Repeating a
// transaction_id returns the original transaction.
func (h *CashBoxHandler) CreateTransaction(c *gin.Context) {
	facilityID, ok := parseID(c, h.logger, "id", "facility ID")
	if !ok {
		return
	}

	var req CashBoxTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	params := cashbox.TransactionParams{
		FacilityID:    facilityID,
		Type:          cashbox.TransactionType(req.Type),
		Amount:        req.Amount,
		Description:   req.Description,
		UserID:        middleware.GetUserID(c),
		TransactionID: req.TransactionID,
	}
	if req.ResidentID != "" {
		residentID := uuid.MustParse(req.ResidentID)
		params.ResidentID = &residentID
	}

	tx, err := h.cashBox.ProcessTransaction(c.Request.Context(), params)
	if err != nil {
		h.logger.Error("Failed to process cash box transaction", "facility_id", facilityID, "transaction_id", req.TransactionID, "error", err)
		RespondError(c, err)
		return
	}

	RespondCreated(c, tx)
}

// ListTransactions returns the transactions of the current period
func (h *CashBoxHandler) ListTransactions(c *gin.Context) {
	facilityID, ok := parseID(c, h.logger, "id", "facility ID")
	if !ok {
		return
	}

	txs, err := h.cashBox.ListTransactions(c.Request.Context(), facilityID)
	if err != nil {
		h.logger.Error("Failed to list cash box transactions", "facility_id", facilityID, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, txs)
}

// Reset archives the current period and restores the opening balance
func (h *CashBoxHandler) Reset(c *gin.Context) {
	facilityID, ok := parseID(c, h.logger, "id", "facility ID")
	if !ok {
		return
	}

	history, err := h.cashBox.ResetMonthly(c.Request.Context(), facilityID, middleware.GetUserID(c))
	if err != nil {
		h.logger.Error("Failed to reset cash box", "facility_id", facilityID, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, history)
}

func (h *CashBoxHandler) ListHistory(c *gin.Context) {
	facilityID, ok := parseID(c, h.logger, "id", "facility ID")
	if !ok {
		return
	}

	limit := 12
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			RespondBadRequest(c, "Invalid limit")
			return
		}
		limit = n
	}

	history, err := h.cashBox.ListHistory(c.Request.Context(), facilityID, limit)
	if err != nil {
		h.logger.Error("Failed to list cash box history", "facility_id", facilityID, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, history)
}
