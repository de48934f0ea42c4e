package handler

import (
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/api_gateway/middleware"
	"github.com/resident-trust-ledger/internal/domain/depositbatch"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/engine"
)

// DepositBatchHandler handles HTTP requests for cash and cheque deposit batches
type DepositBatchHandler struct {
	batches *engine.DepositBatchService
	logger  *slog.Logger
}

func NewDepositBatchHandler(logger *slog.Logger, batches *engine.DepositBatchService) *DepositBatchHandler {
	return &DepositBatchHandler{
		batches: batches,
		logger:  logger,
	}
}

func (h *DepositBatchHandler) Create(c *gin.Context) {
	var req CreateDepositBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	b, err := h.batches.Create(c.Request.Context(), uuid.MustParse(req.FacilityID), req.Description, middleware.GetUserID(c))
	if err != nil {
		h.logger.Error("Failed to create deposit batch", "facility_id", req.FacilityID, "error", err)
		RespondError(c, err)
		return
	}

	RespondCreated(c, b)
}

func (h *DepositBatchHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id", "batch ID")
	if !ok {
		return
	}

	b, err := h.batches.Get(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get deposit batch", "batch_id", id, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, b)
}

func (h *DepositBatchHandler) ListByFacility(c *gin.Context) {
	facilityID, ok := parseID(c, h.logger, "id", "facility ID")
	if !ok {
		return
	}

	batches, err := h.batches.ListByFacility(c.Request.Context(), facilityID)
	if err != nil {
		h.logger.Error("Failed to list deposit batches", "facility_id", facilityID, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, batches)
}

func (h *DepositBatchHandler) bindEntry(c *gin.Context) (depositbatch.EntryInput, bool) {
	var req DepositEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return depositbatch.EntryInput{}, false
	}
	return depositbatch.EntryInput{
		ResidentID:   uuid.MustParse(req.ResidentID),
		Amount:       req.Amount,
		Method:       shared.PaymentMethod(req.Method),
		ChequeNumber: req.ChequeNumber,
		Description:  req.Description,
	}, true
}

func (h *DepositBatchHandler) AddEntry(c *gin.Context) {
	batchID, ok := parseID(c, h.logger, "id", "batch ID")
	if !ok {
		return
	}
	in, ok := h.bindEntry(c)
	if !ok {
		return
	}

	entry, err := h.batches.AddEntry(c.Request.Context(), batchID, in)
	if err != nil {
		h.logger.Error("Failed to add deposit entry", "batch_id", batchID, "error", err)
		RespondError(c, err)
		return
	}

	RespondCreated(c, entry)
}

func (h *DepositBatchHandler) UpdateEntry(c *gin.Context) {
	batchID, ok := parseID(c, h.logger, "id", "batch ID")
	if !ok {
		return
	}
	entryID, ok := parseID(c, h.logger, "entryId", "entry ID")
	if !ok {
		return
	}
	in, ok := h.bindEntry(c)
	if !ok {
		return
	}

	entry, err := h.batches.UpdateEntry(c.Request.Context(), batchID, entryID, in)
	if err != nil {
		h.logger.Error("Failed to update deposit entry", "batch_id", batchID, "entry_id", entryID, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, entry)
}

func (h *DepositBatchHandler) RemoveEntry(c *gin.Context) {
	batchID, ok := parseID(c, h.logger, "id", "batch ID")
	if !ok {
		return
	}
	entryID, ok := parseID(c, h.logger, "entryId", "entry ID")
	if !ok {
		return
	}

	if err := h.batches.RemoveEntry(c.Request.Context(), batchID, entryID); err != nil {
		h.logger.Error("Failed to remove deposit entry", "batch_id", batchID, "entry_id", entryID, "error", err)
		RespondError(c, err)
		return
	}

	RespondNoContent(c)
}

// Close credits every pending entry. When some entries fail the batch stays
// open and the response carries the outcomes so the close can be retried.
func (h *DepositBatchHandler) Close(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id", "batch ID")
	if !ok {
		return
	}

	result, err := h.batches.Close(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		h.logger.Error("Failed to close deposit batch", "batch_id", id, "error", err)
		var partial depositbatch.ErrPartialClose
		if errors.As(err, &partial) && result != nil {
			RespondErrorWithData(c, err, result)
			return
		}
		RespondError(c, err)
		return
	}

	RespondOK(c, result)
}

func (h *DepositBatchHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id", "batch ID")
	if !ok {
		return
	}

	if err := h.batches.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to delete deposit batch", "batch_id", id, "error", err)
		RespondError(c, err)
		return
	}

	RespondNoContent(c)
}
