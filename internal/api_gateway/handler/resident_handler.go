package handler

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/api_gateway/middleware"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/engine"
)

// defaultReportWindow is used when a withdrawal or entry report omits "from"
const defaultReportWindow = 31 * 24 * time.Hour

// ResidentHandler handles HTTP requests for resident accounts and their ledger
type ResidentHandler struct {
	ledger *engine.LedgerService
	logger *slog.Logger
}

// NewResidentHandler creates a new resident handler
func NewResidentHandler(logger *slog.Logger, ledger *engine.LedgerService) *ResidentHandler {
	return &ResidentHandler{
		ledger: ledger,
		logger: logger,
	}
}

// parseID reads a UUID path parameter and answers 400 when it is malformed
func parseID(c *gin.Context, logger *slog.Logger, param, label string) (uuid.UUID, bool) {
	raw := c.Param(param)
	id, err := uuid.Parse(raw)
	if err != nil {
		logger.Error("Invalid "+label, param, raw, "error", err)
		RespondBadRequest(c, "Invalid "+label)
		return uuid.Nil, false
	}
	return id, true
}

// Create opens a resident trust account with a zero balance
func (h *ResidentHandler) Create(c *gin.Context) {
	var req CreateResidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	acc, err := h.ledger.OpenAccount(c.Request.Context(), uuid.MustParse(req.FacilityID), req.Name)
	if err != nil {
		h.logger.Error("Failed to open resident account", "facility_id", req.FacilityID, "error", err)
		RespondError(c, err)
		return
	}

	RespondCreated(c, mapResidentToResponse(acc))
}

// GetByID retrieves a resident account, returns 404 if not found
func (h *ResidentHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id", "resident ID")
	if !ok {
		return
	}

	acc, err := h.ledger.GetAccount(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get resident", "resident_id", id, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, mapResidentToResponse(acc))
}

// GetBalance returns the resident balance through the read-through cache
func (h *ResidentHandler) GetBalance(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id", "resident ID")
	if !ok {
		return
	}

	balance, err := h.ledger.GetBalance(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to get balance", "resident_id", id, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, BalanceResponse{ResidentID: id.String(), Balance: money(balance)})
}

// ListEntries returns the newest entries of one resident
func (h *ResidentHandler) ListEntries(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id", "resident ID")
	if !ok {
		return
	}

	var params ListParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.logger.Error("Invalid list parameters", "error", err)
		RespondBadRequest(c, "Invalid list parameters")
		return
	}

	entries, err := h.ledger.ListEntries(c.Request.Context(), id, params.Limit)
	if err != nil {
		h.logger.Error("Failed to list entries", "resident_id", id, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, mapEntries(entries))
}

// RecordEntry posts a manual credit or debit. Manual debits may overdraw.
func (h *ResidentHandler) RecordEntry(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id", "resident ID")
	if !ok {
		return
	}

	var req RecordEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if req.Method == "" {
		req.Method = string(shared.MethodManual)
	}

	entry, err := h.ledger.RecordEntry(c.Request.Context(), engine.RecordEntryRequest{
		ResidentID:    id,
		Type:          shared.EntryType(req.Type),
		Amount:        req.Amount,
		Method:        shared.PaymentMethod(req.Method),
		Description:   req.Description,
		CreatedBy:     middleware.GetUserID(c),
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		h.logger.Error("Failed to record entry", "resident_id", id, "error", err)
		RespondError(c, err)
		return
	}

	RespondCreated(c, mapEntryToResponse(entry))
}

// Reconcile compares the stored balance with the sum of the resident's entries
func (h *ResidentHandler) Reconcile(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id", "resident ID")
	if !ok {
		return
	}

	rec, err := h.ledger.Reconcile(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to reconcile resident", "resident_id", id, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, rec)
}

// Deactivate closes a resident account to new postings. Repeating it is a no-op.
func (h *ResidentHandler) Deactivate(c *gin.Context) {
	id, ok := parseID(c, h.logger, "id", "resident ID")
	if !ok {
		return
	}

	acc, err := h.ledger.Deactivate(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("Failed to deactivate resident", "resident_id", id, "error", err)
		RespondError(c, err)
		return
	}

	RespondOK(c, mapResidentToResponse(acc))
}

// ListByFacility returns the residents of a facility
func (h *ResidentHandler) ListByFacility(c *gin.Context) {
	facilityID, ok := parseID(c, h.logger, "id", "facility ID")
	if !ok {
		return
	}

	accounts, err := h.ledger.ListAccounts(c.Request.Context(), facilityID)
	if err != nil {
		h.logger.Error("Failed to list residents", "facility_id", facilityID, "error", err)
		RespondError(c, err)
		return
	}

	residents := make([]ResidentResponse, 0, len(accounts))
	for _, acc := range accounts {
		residents = append(residents, mapResidentToResponse(acc))
	}
	RespondOK(c, residents)
}

// ListFacilityEntries returns the newest facility entries, or the entries in
// a window when "from" or "to" is given.
func (h *ResidentHandler) ListFacilityEntries(c *gin.Context) {
	facilityID, ok := parseID(c, h.logger, "id", "facility ID")
	if !ok {
		return
	}

	var rng RangeParams
	if err := c.ShouldBindQuery(&rng); err != nil {
		h.logger.Error("Invalid range parameters", "error", err)
		RespondBadRequest(c, "Invalid range parameters")
		return
	}

	if rng.From.IsZero() && rng.To.IsZero() {
		var params ListParams
		if err := c.ShouldBindQuery(&params); err != nil {
			h.logger.Error("Invalid list parameters", "error", err)
			RespondBadRequest(c, "Invalid list parameters")
			return
		}
		entries, err := h.ledger.ListFacilityEntries(c.Request.Context(), facilityID, params.Limit)
		if err != nil {
			h.logger.Error("Failed to list facility entries", "facility_id", facilityID, "error", err)
			RespondError(c, err)
			return
		}
		RespondOK(c, mapEntries(entries))
		return
	}

	from, to := rng.window(time.Now().UTC())
	entries, err := h.ledger.ListFacilityEntriesInRange(c.Request.Context(), facilityID, from, to)
	if err != nil {
		h.logger.Error("Failed to list facility entries", "facility_id", facilityID, "error", err)
		RespondError(c, err)
		return
	}
	RespondOK(c, mapEntries(entries))
}

// ListWithdrawals returns the facility withdrawal report for a window
func (h *ResidentHandler) ListWithdrawals(c *gin.Context) {
	facilityID, ok := parseID(c, h.logger, "id", "facility ID")
	if !ok {
		return
	}

	var rng RangeParams
	if err := c.ShouldBindQuery(&rng); err != nil {
		h.logger.Error("Invalid range parameters", "error", err)
		RespondBadRequest(c, "Invalid range parameters")
		return
	}

	from, to := rng.window(time.Now().UTC())
	records, err := h.ledger.ListWithdrawals(c.Request.Context(), facilityID, from, to)
	if err != nil {
		h.logger.Error("Failed to list withdrawals", "facility_id", facilityID, "error", err)
		RespondError(c, err)
		return
	}
	RespondOK(c, records)
}

// window fills missing bounds: "to" defaults to now, "from" to one report window earlier
func (r RangeParams) window(now time.Time) (time.Time, time.Time) {
	to := r.To
	if to.IsZero() {
		to = now
	}
	from := r.From
	if from.IsZero() {
		from = to.Add(-defaultReportWindow)
	}
	return from, to
}
