package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/api_gateway/middleware"
	"github.com/resident-trust-ledger/internal/api_gateway/service"
	"github.com/resident-trust-ledger/internal/domain/preauth"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/engine"
)

// PreAuthHandler handles HTTP requests for recurring pre-authorized postings
type PreAuthHandler struct {
	preAuth *engine.PreAuthService
	runs    service.PreAuthRunService
	logger  *slog.Logger
}

// NewPreAuthHandler creates a new pre-authorization handler. runs may be nil,
// in which case asynchronous runs answer 503.
func NewPreAuthHandler(logger *slog.Logger, preAuth *engine.PreAuthService, runs service.PreAuthRunService) *PreAuthHandler {
	return &PreAuthHandler{
		preAuth: preAuth,
		runs:    runs,
		logger:  logger,
	}
}

func (h *PreAuthHandler) Create(c *gin.Context) {
	var req CreatePreAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	d, err := h.preAuth.CreateAuthorization(c.Request.Context(), preauth.NewDebitParams{
		ResidentID:   uuid.MustParse(req.ResidentID),
		FacilityID:   uuid.MustParse(req.FacilityID),
		AuthorizedBy: middleware.GetUserID(c),
		Description:  req.Description,
		TargetMonth:  req.TargetMonth,
		Amount:       req.Amount,
		Type:         shared.EntryType(req.Type),
	})
	if err != nil {
		h.logger.Error("Failed to create pre-authorization", "resident_id", req.ResidentID, "error", err)
		RespondError(c, err)
		return
	}

	RespondCreated(c, d)
}

func (h *PreAuthHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id", "pre-authorization ID")
	if !ok {
		return
	}

	d, err := h.preAuth.GetAuthorization(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get pre-authorization", "debit_id", id, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, d)
}

// Process posts one authorization and returns it in its new state
func (h *PreAuthHandler) Process(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id", "pre-authorization ID")
	if !ok {
		return
	}

	if err := h.preAuth.ProcessOne(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to process pre-authorization", "debit_id", id, "error", err)
		RespondError(c, err)
		return
	}

	d, err := h.preAuth.GetAuthorization(c.Request.Context(), id)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, d)
}

func (h *PreAuthHandler) Cancel(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id", "pre-authorization ID")
	if !ok {
		return
	}

	if err := h.preAuth.Cancel(c.Request.Context(), id); err != nil {
		h.logger.Error("Failed to cancel pre-authorization", "debit_id", id, "error", err)
		RespondError(c, err)
		return
	}

	RespondNoContent(c)
}

// ProcessBatch processes the given authorizations on the bounded pool and
// waits for all of them
func (h *PreAuthHandler) ProcessBatch(c *gin.Context) {
	var req ProcessPreAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		ids = append(ids, uuid.MustParse(raw))
	}

	result, err := h.preAuth.ProcessAll(c.Request.Context(), ids)
	if err != nil {
		h.logger.Error("Failed to process pre-authorizations", "count", len(ids), "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, result)
}

func (h *PreAuthHandler) GetMonthlyList(c *gin.Context) {
	facilityID, ok := parseID(c, h.logger, "id", "facility ID")
	if !ok {
		return
	}
	month := c.Param("month")

	list, err := h.preAuth.GetMonthlyList(c.Request.Context(), facilityID, month)
	if err != nil {
		h.logger.Error("Failed to get monthly list", "facility_id", facilityID, "month", month, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, list)
}

func (h *PreAuthHandler) CloseMonthlyList(c *gin.Context) {
	facilityID, ok := parseID(c, h.logger, "id", "facility ID")
	if !ok {
		return
	}
	month := c.Param("month")

	list, err := h.preAuth.CloseMonthlyList(c.Request.Context(), facilityID, month, middleware.GetUserID(c))
	if err != nil {
		h.logger.Error("Failed to close monthly list", "facility_id", facilityID, "month", month, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, list)
}

// RunMonth queues the month for the ledger worker and answers 202 with the request
func (h *PreAuthHandler) RunMonth(c *gin.Context) {
	facilityID, ok := parseID(c, h.logger, "id", "facility ID")
	if !ok {
		return
	}
	month := c.Param("month")

	if h.runs == nil {
		RespondWithError(c, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Asynchronous runs are not enabled")
		return
	}

	req, err := h.runs.RequestRun(c.Request.Context(), facilityID, month, middleware.GetUserID(c), middleware.GetCorrelationID(c))
	if err != nil {
		h.logger.Error("Failed to request pre-authorization run", "facility_id", facilityID, "month", month, "error", err)
		RespondError(c, err)
		return
	}

	RespondAccepted(c, gin.H{
		"request_id": req.RequestID,
		"status":     "QUEUED",
	})
}
