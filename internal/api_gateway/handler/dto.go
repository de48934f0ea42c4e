package handler

import (
	"time"

	"github.com/resident-trust-ledger/internal/domain/ledger"
	"github.com/resident-trust-ledger/internal/domain/resident"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Amounts are accepted as JSON strings or numbers and always returned as
// fixed two-decimal strings.

// CreateResidentRequest represents a request to open a resident trust account
type CreateResidentRequest struct {
	FacilityID string `json:"facility_id" binding:"required,uuid"`
	Name       string `json:"name" binding:"required"`
}

// ResidentResponse represents a resident account in API responses
type ResidentResponse struct {
	ID         string `json:"id"`
	FacilityID string `json:"facility_id"`
	Name       string `json:"name"`
	Balance    string `json:"balance"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at"`
}

// BalanceResponse represents a resident balance
type BalanceResponse struct {
	ResidentID string `json:"resident_id"`
	Balance    string `json:"balance"`
}

// RecordEntryRequest represents a manual credit or debit against a resident
type RecordEntryRequest struct {
	Type        string          `json:"type" binding:"required,oneof=credit debit"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method" binding:"omitempty,oneof=manual cash cheque"`
	Description string          `json:"description"`
}

// EntryResponse represents a ledger entry in API responses
type EntryResponse struct {
	ID          string        `json:"id"`
	ResidentID  string        `json:"resident_id"`
	FacilityID  string        `json:"facility_id"`
	Type        string        `json:"type"`
	Amount      string        `json:"amount"`
	Method      string        `json:"method"`
	Description string        `json:"description"`
	Source      ledger.Source `json:"source"`
	CreatedBy   string        `json:"created_by"`
	CreatedAt   string        `json:"created_at"`
}

// EntryListResponse represents a list of ledger entries in API responses
type EntryListResponse struct {
	Entries []EntryResponse `json:"entries"`
}

// ListParams bounds list endpoints
type ListParams struct {
	Limit int `form:"limit,default=50" binding:"min=1,max=500"`
}

// RangeParams selects a reporting window. Both bounds are RFC 3339.
type RangeParams struct {
	From time.Time `form:"from"`
	To   time.Time `form:"to"`
}

// CreateServiceBatchRequest represents a request to open a service batch
type CreateServiceBatchRequest struct {
	FacilityID  string `json:"facility_id" binding:"required,uuid"`
	ServiceType string `json:"service_type" binding:"required"`
}

// ServiceItemRequest sets the amount charged to one resident in a service batch
type ServiceItemRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// PostServiceBatchRequest represents a request to post a service batch
type PostServiceBatchRequest struct {
	ChequeNumber string `json:"cheque_number"`
}

// CreateDepositBatchRequest represents a request to open a deposit batch
type CreateDepositBatchRequest struct {
	FacilityID  string `json:"facility_id" binding:"required,uuid"`
	Description string `json:"description"`
}

// DepositEntryRequest represents one deposit in a deposit batch
type DepositEntryRequest struct {
	ResidentID   string          `json:"resident_id" binding:"required,uuid"`
	Amount       decimal.Decimal `json:"amount"`
	Method       string          `json:"method" binding:"required"`
	ChequeNumber string          `json:"cheque_number"`
	Description  string          `json:"description"`
}

// CreatePreAuthRequest represents a recurring authorization for a target month
type CreatePreAuthRequest struct {
	ResidentID  string          `json:"resident_id" binding:"required,uuid"`
	FacilityID  string          `json:"facility_id" binding:"required,uuid"`
	Description string          `json:"description"`
	TargetMonth string          `json:"target_month" binding:"required"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type" binding:"required,oneof=credit debit"`
}

// ProcessPreAuthRequest lists authorizations to process synchronously
type ProcessPreAuthRequest struct {
	IDs []string `json:"ids" binding:"required,min=1,dive,uuid"`
}

// CashBoxTransactionRequest represents a direct cash box movement
type CashBoxTransactionRequest struct {
	Type          string          `json:"transaction_type" binding:"required,oneof=deposit withdrawal"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	ResidentID    string          `json:"resident_id" binding:"omitempty,uuid"`
	TransactionID string          `json:"transaction_id" binding:"required"`
}

// CashBoxBalanceResponse represents the live cash box balance
type CashBoxBalanceResponse struct {
	FacilityID string `json:"facility_id"`
	Balance    string `json:"balance"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(shared.MoneyScale)
}

// mapResidentToResponse maps a resident account to a response DTO
func mapResidentToResponse(acc *resident.Account) ResidentResponse {
	return ResidentResponse{
		ID:         acc.ID.String(),
		FacilityID: acc.FacilityID.String(),
		Name:       acc.Name,
		Balance:    money(acc.Balance),
		Status:     string(acc.Status),
		CreatedAt:  acc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  acc.UpdatedAt.Format(time.RFC3339),
	}
}

// mapEntryToResponse maps a ledger entry to a response DTO
func mapEntryToResponse(e *ledger.Entry) EntryResponse {
	return EntryResponse{
		ID:          e.ID.String(),
		ResidentID:  e.ResidentID.String(),
		FacilityID:  e.FacilityID.String(),
		Type:        string(e.Type),
		Amount:      money(e.Amount),
		Method:      string(e.Method),
		Description: e.Description,
		Source:      e.Source,
		CreatedBy:   e.CreatedBy,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

func mapEntries(entries []*ledger.Entry) EntryListResponse {
	out := EntryListResponse{Entries: make([]EntryResponse, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, mapEntryToResponse(e))
	}
	return out
}
