package mongo

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/cashbox"
	"github.com/resident-trust-ledger/internal/domain/reporting"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Documents keep ids as strings and money as Decimal128 so that reports
// remain queryable from the mongo shell.

type withdrawalDocument struct {
	EntryID        string               `bson:"_id"`
	FacilityID     string               `bson:"facility_id"`
	ResidentID     string               `bson:"resident_id"`
	Amount         primitive.Decimal128 `bson:"amount"`
	Method         string               `bson:"method"`
	Description    string               `bson:"description"`
	CreatedBy      string               `bson:"created_by"`
	EntryCreatedAt time.Time            `bson:"entry_created_at"`
	RecordedAt     time.Time            `bson:"recorded_at"`
}

type historyDocument struct {
	ID              string               `bson:"_id"`
	FacilityID      string               `bson:"facility_id"`
	PeriodStart     time.Time            `bson:"period_start"`
	StartingBalance primitive.Decimal128 `bson:"starting_balance"`
	EndingBalance   primitive.Decimal128 `bson:"ending_balance"`
	ResetAmount     primitive.Decimal128 `bson:"reset_amount"`
	ResetDate       time.Time            `bson:"reset_date"`
	ResetBy         string               `bson:"reset_by"`
	Transactions    []cashTxDocument     `bson:"transactions"`
	ResetCompleted  bool                 `bson:"reset_completed"`
	CompletedAt     *time.Time           `bson:"completed_at,omitempty"`
}

type cashTxDocument struct {
	ID            string               `bson:"id"`
	TransactionID string               `bson:"transaction_id"`
	Type          string               `bson:"transaction_type"`
	Amount        primitive.Decimal128 `bson:"amount"`
	Description   string               `bson:"description"`
	ResidentID    string               `bson:"resident_id,omitempty"`
	BalanceAfter  primitive.Decimal128 `bson:"balance_after"`
	CreatedBy     string               `bson:"created_by"`
	CreatedAt     time.Time            `bson:"created_at"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.StringFixed(shared.MoneyScale))
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("failed to encode amount %s: %w", d, err)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode amount %s: %w", v, err)
	}
	return d, nil
}

func newWithdrawalDocument(r *reporting.WithdrawalRecord) (*withdrawalDocument, error) {
	amount, err := toDecimal128(r.Amount)
	if err != nil {
		return nil, err
	}
	return &withdrawalDocument{
		EntryID:        r.EntryID.String(),
		FacilityID:     r.FacilityID.String(),
		ResidentID:     r.ResidentID.String(),
		Amount:         amount,
		Method:         string(r.Method),
		Description:    r.Description,
		CreatedBy:      r.CreatedBy,
		EntryCreatedAt: r.EntryCreatedAt,
		RecordedAt:     r.RecordedAt,
	}, nil
}

func (d *withdrawalDocument) record() (*reporting.WithdrawalRecord, error) {
	amount, err := fromDecimal128(d.Amount)
	if err != nil {
		return nil, err
	}
	entryID, err := uuid.Parse(d.EntryID)
	if err != nil {
		return nil, fmt.Errorf("invalid entry id %q: %w", d.EntryID, err)
	}
	facilityID, err := uuid.Parse(d.FacilityID)
	if err != nil {
		return nil, fmt.Errorf("invalid facility id %q: %w", d.FacilityID, err)
	}
	residentID, err := uuid.Parse(d.ResidentID)
	if err != nil {
		return nil, fmt.Errorf("invalid resident id %q: %w", d.ResidentID, err)
	}
	return &reporting.WithdrawalRecord{
		EntryID:        entryID,
		FacilityID:     facilityID,
		ResidentID:     residentID,
		Amount:         amount,
		Method:         shared.PaymentMethod(d.Method),
		Description:    d.Description,
		CreatedBy:      d.CreatedBy,
		EntryCreatedAt: d.EntryCreatedAt,
		RecordedAt:     d.RecordedAt,
	}, nil
}

func newHistoryDocument(h *cashbox.History) (*historyDocument, error) {
	doc := &historyDocument{
		ID:             h.ID.String(),
		FacilityID:     h.FacilityID.String(),
		PeriodStart:    h.PeriodStart,
		ResetDate:      h.ResetDate,
		ResetBy:        h.ResetBy,
		ResetCompleted: h.ResetCompleted,
		CompletedAt:    h.CompletedAt,
		Transactions:   make([]cashTxDocument, 0, len(h.Transactions)),
	}

	var err error
	if doc.StartingBalance, err = toDecimal128(h.StartingBalance); err != nil {
		return nil, err
	}
	if doc.EndingBalance, err = toDecimal128(h.EndingBalance); err != nil {
		return nil, err
	}
	if doc.ResetAmount, err = toDecimal128(h.ResetAmount); err != nil {
		return nil, err
	}

	for _, tx := range h.Transactions {
		txDoc := cashTxDocument{
			ID:            tx.ID.String(),
			TransactionID: tx.TransactionID,
			Type:          string(tx.Type),
			Description:   tx.Description,
			CreatedBy:     tx.CreatedBy,
			CreatedAt:     tx.CreatedAt,
		}
		if tx.ResidentID != nil {
			txDoc.ResidentID = tx.ResidentID.String()
		}
		if txDoc.Amount, err = toDecimal128(tx.Amount); err != nil {
			return nil, err
		}
		if txDoc.BalanceAfter, err = toDecimal128(tx.BalanceAfter); err != nil {
			return nil, err
		}
		doc.Transactions = append(doc.Transactions, txDoc)
	}
	return doc, nil
}

func (d *historyDocument) history() (*cashbox.History, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid history id %q: %w", d.ID, err)
	}
	facilityID, err := uuid.Parse(d.FacilityID)
	if err != nil {
		return nil, fmt.Errorf("invalid facility id %q: %w", d.FacilityID, err)
	}

	h := &cashbox.History{
		ID:             id,
		FacilityID:     facilityID,
		PeriodStart:    d.PeriodStart,
		ResetDate:      d.ResetDate,
		ResetBy:        d.ResetBy,
		ResetCompleted: d.ResetCompleted,
		CompletedAt:    d.CompletedAt,
		Transactions:   make([]*cashbox.Transaction, 0, len(d.Transactions)),
	}
	if h.StartingBalance, err = fromDecimal128(d.StartingBalance); err != nil {
		return nil, err
	}
	if h.EndingBalance, err = fromDecimal128(d.EndingBalance); err != nil {
		return nil, err
	}
	if h.ResetAmount, err = fromDecimal128(d.ResetAmount); err != nil {
		return nil, err
	}

	for _, txDoc := range d.Transactions {
		tx := &cashbox.Transaction{
			FacilityID:    facilityID,
			TransactionID: txDoc.TransactionID,
			Type:          cashbox.TransactionType(txDoc.Type),
			Description:   txDoc.Description,
			CreatedBy:     txDoc.CreatedBy,
			CreatedAt:     txDoc.CreatedAt,
		}
		if tx.ID, err = uuid.Parse(txDoc.ID); err != nil {
			return nil, fmt.Errorf("invalid transaction id %q: %w", txDoc.ID, err)
		}
		if txDoc.ResidentID != "" {
			residentID, err := uuid.Parse(txDoc.ResidentID)
			if err != nil {
				return nil, fmt.Errorf("invalid resident id %q: %w", txDoc.ResidentID, err)
			}
			tx.ResidentID = &residentID
		}
		if tx.Amount, err = fromDecimal128(txDoc.Amount); err != nil {
			return nil, err
		}
		if tx.BalanceAfter, err = fromDecimal128(txDoc.BalanceAfter); err != nil {
			return nil, err
		}
		h.Transactions = append(h.Transactions, tx)
	}
	return h, nil
}
