package cashbox

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// TransactionType is the direction of a cash box movement
type TransactionType string

const (
	TypeWithdrawal TransactionType = "withdrawal"
	TypeDeposit    TransactionType = "deposit"
)

func (t TransactionType) Valid() bool {
	return t == TypeWithdrawal || t == TypeDeposit
}

// Balance is the live cash on hand of a facility
type Balance struct {
	FacilityID uuid.UUID       `json:"facility_id"`
	Balance    decimal.Decimal `json:"balance"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Transaction is an append-only cash box movement. TransactionID is the
// caller supplied idempotency key.
type Transaction struct {
	ID            uuid.UUID       `json:"id"`
	FacilityID    uuid.UUID       `json:"facility_id"`
	TransactionID string          `json:"transaction_id"`
	Type          TransactionType `json:"transaction_type"`
	Amount        decimal.Decimal `json:"amount"`
	Description   string          `json:"description"`
	ResidentID    *uuid.UUID      `json:"resident_id,omitempty"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	CreatedBy     string          `json:"created_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TransactionParams groups the inputs of NewTransaction
type TransactionParams struct {
	FacilityID    uuid.UUID
	Type          TransactionType
	Amount        decimal.Decimal
	Description   string
	ResidentID    *uuid.UUID
	UserID        string
	TransactionID string
}

func NewTransaction(p TransactionParams) (*Transaction, error) {
	if p.FacilityID == uuid.Nil {
		return nil, shared.NewValidationError("facility_id", "is required")
	}
	if !p.Type.Valid() {
		return nil, shared.NewValidationError("transaction_type", fmt.Sprintf("unknown type %q", p.Type))
	}
	if err := shared.ValidateAmount("amount", p.Amount); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.UserID) == "" {
		return nil, shared.NewValidationError("user_id", "is required")
	}
	key := strings.TrimSpace(p.TransactionID)
	if key == "" {
		return nil, shared.NewValidationError("transaction_id", "idempotency key is required")
	}
	return &Transaction{
		ID:            uuid.New(),
		FacilityID:    p.FacilityID,
		TransactionID: key,
		Type:          p.Type,
		Amount:        p.Amount,
		Description:   strings.TrimSpace(p.Description),
		ResidentID:    p.ResidentID,
		CreatedBy:     p.UserID,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Delta is the signed change this transaction applies to the cash balance
func (t *Transaction) Delta() decimal.Decimal {
	if t.Type == TypeWithdrawal {
		return t.Amount.Neg()
	}
	return t.Amount
}

// History archives one cash box period at reset time. ResetCompleted stays
// false until the live balance has actually been reset.
type History struct {
	ID              uuid.UUID       `json:"id"`
	FacilityID      uuid.UUID       `json:"facility_id"`
	PeriodStart     time.Time       `json:"period_start"`
	StartingBalance decimal.Decimal `json:"starting_balance"`
	EndingBalance   decimal.Decimal `json:"ending_balance"`
	ResetAmount     decimal.Decimal `json:"reset_amount"`
	ResetDate       time.Time       `json:"reset_date"`
	ResetBy         string          `json:"reset_by"`
	Transactions    []*Transaction  `json:"transactions"`
	ResetCompleted  bool            `json:"reset_completed"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

// NewHistory snapshots a period. The previous history, if any, supplies the
// period start and its opening balance.
func NewHistory(facilityID uuid.UUID, previous *History, opening, ending decimal.Decimal, txs []*Transaction, resetBy string, now time.Time) *History {
	h := &History{
		ID:              uuid.New(),
		FacilityID:      facilityID,
		StartingBalance: opening,
		EndingBalance:   ending,
		ResetAmount:     opening,
		ResetDate:       now,
		ResetBy:         resetBy,
		Transactions:    txs,
	}
	if previous != nil {
		h.PeriodStart = previous.ResetDate
		h.StartingBalance = previous.ResetAmount
	}
	if h.Transactions == nil {
		h.Transactions = []*Transaction{}
	}
	return h
}

func (h *History) MarkCompleted(at time.Time) {
	h.ResetCompleted = true
	h.CompletedAt = &at
}
