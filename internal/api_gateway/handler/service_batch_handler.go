package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/api_gateway/middleware"
	"github.com/resident-trust-ledger/internal/domain/servicebatch"
	"github.com/resident-trust-ledger/internal/engine"
)

// ServiceBatchHandler handles HTTP requests for service charge batches
type ServiceBatchHandler struct {
	batches *engine.ServiceBatchService
	logger  *slog.Logger
}

func NewServiceBatchHandler(logger *slog.Logger, batches *engine.ServiceBatchService) *ServiceBatchHandler {
	return &ServiceBatchHandler{
		batches: batches,
		logger:  logger,
	}
}

func (h *ServiceBatchHandler) Create(c *gin.Context) {
	var req CreateServiceBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	b, err := h.batches.Create(c.Request.Context(), uuid.MustParse(req.FacilityID),
		servicebatch.ServiceType(req.ServiceType), middleware.GetUserID(c))
	if err != nil {
		h.logger.Error("Failed to create service batch", "facility_id", req.FacilityID, "error", err)
		RespondError(c, err)
		return
	}

	RespondCreated(c, b)
}

func (h *ServiceBatchHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id", "batch ID")
	if !ok {
		return
	}

	b, err := h.batches.Get(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get service batch", "batch_id", id, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, b)
}

func (h *ServiceBatchHandler) ListByFacility(c *gin.Context) {
	facilityID, ok := parseID(c, h.logger, "id", "facility ID")
	if !ok {
		return
	}

	batches, err := h.batches.ListByFacility(c.Request.Context(), facilityID)
	if err != nil {
		h.logger.Error("Failed to list service batches", "facility_id", facilityID, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, batches)
}

// itemTarget parses the batch and resident path parameters of an item route
func (h *ServiceBatchHandler) itemTarget(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	batchID, ok := parseID(c, h.logger, "id", "batch ID")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	residentID, ok := parseID(c, h.logger, "residentId", "resident ID")
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return batchID, residentID, true
}

// PutItem adds the resident to the batch, or replaces the amount if already present
func (h *ServiceBatchHandler) PutItem(c *gin.Context) {
	batchID, residentID, ok := h.itemTarget(c)
	if !ok {
		return
	}

	var req ServiceItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	item, err := h.batches.AddItem(c.Request.Context(), batchID, residentID, req.Amount)
	if err != nil {
		h.logger.Error("Failed to add service batch item", "batch_id", batchID, "resident_id", residentID, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, item)
}

// PatchItem changes the amount of an existing item
func (h *ServiceBatchHandler) PatchItem(c *gin.Context) {
	batchID, residentID, ok := h.itemTarget(c)
	if !ok {
		return
	}

	var req ServiceItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.batches.UpdateItem(c.Request.Context(), batchID, residentID, req.Amount); err != nil {
		h.logger.Error("Failed to update service batch item", "batch_id", batchID, "resident_id", residentID, "error", err)
		RespondError(c, err)
		return
	}

	RespondNoContent(c)
}

func (h *ServiceBatchHandler) RemoveItem(c *gin.Context) {
	batchID, residentID, ok := h.itemTarget(c)
	if !ok {
		return
	}

	if err := h.batches.RemoveItem(c.Request.Context(), batchID, residentID); err != nil {
		h.logger.Error("Failed to remove service batch item", "batch_id", batchID, "resident_id", residentID, "error", err)
		RespondError(c, err)
		return
	}

	RespondNoContent(c)
}

// Post debits every item. Items that fail do not fail the request; the
// per-item outcomes are in the response.
func (h *ServiceBatchHandler) Post(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id", "batch ID")
	if !ok {
		return
	}

	var req PostServiceBatchRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Error("Invalid request body", "error", err)
			RespondBadRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	result, err := h.batches.Post(c.Request.Context(), id, middleware.GetUserID(c), req.ChequeNumber)
	if err != nil {
		h.logger.Error("Failed to post service batch", "batch_id", id, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, result)
}

func (h *ServiceBatchHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id", "batch ID")
	if !ok {
		return
	}

	if err := h.batches.Delete(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to delete service batch", "batch_id", id, "error", err)
		RespondError(c, err)
		return
	}

	RespondNoContent(c)
}
