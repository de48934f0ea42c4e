package servicebatch

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/batch"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ServiceType is the kind of service billed by a batch
type ServiceType string

const (
	ServiceHairCare       ServiceType = "hair_care"
	ServicePharmacy       ServiceType = "pharmacy"
	ServiceTransportation ServiceType = "transportation"
	ServiceCableTV        ServiceType = "cable_tv"
	ServiceTelephone      ServiceType = "telephone"
	ServicePersonalItems  ServiceType = "personal_items"
	ServiceOther          ServiceType = "other"
)

func (s ServiceType) Valid() bool {
	switch s {
	case ServiceHairCare, ServicePharmacy, ServiceTransportation, ServiceCableTV,
		ServiceTelephone, ServicePersonalItems, ServiceOther:
		return true
	}
	return false
}

const StatusPosted batch.Status = "posted"

var Lifecycle = batch.Lifecycle{Terminal: StatusPosted}

// ItemStatus tracks the posting outcome of one item
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemProcessed ItemStatus = "processed"
	ItemFailed    ItemStatus = "failed"
)

// InsufficientFundsMessage is recorded on items skipped for lack of balance
const InsufficientFundsMessage = "Insufficient funds"

// Batch is a group of service charges debited from residents in one posting
type Batch struct {
	ID             uuid.UUID       `json:"id"`
	FacilityID     uuid.UUID       `json:"facility_id"`
	ServiceType    ServiceType     `json:"service_type"`
	Status         batch.Status    `json:"status"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	PostedBy       *string         `json:"posted_by,omitempty"`
	PostedAt       *time.Time      `json:"posted_at,omitempty"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	ProcessedCount int             `json:"processed_count"`
	Items          []*Item         `json:"items"`
}

// Item is one resident's charge in a batch
type Item struct {
	ID           uuid.UUID       `json:"id"`
	BatchID      uuid.UUID       `json:"batch_id"`
	ResidentID   uuid.UUID       `json:"resident_id"`
	Amount       decimal.Decimal `json:"amount"`
	Status       ItemStatus      `json:"status"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	ProcessedAt  *time.Time      `json:"processed_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

func NewBatch(facilityID uuid.UUID, serviceType ServiceType, createdBy string) (*Batch, error) {
	if facilityID == uuid.Nil {
		return nil, shared.NewValidationError("facility_id", "is required")
	}
	if !serviceType.Valid() {
		return nil, shared.NewValidationError("service_type", fmt.Sprintf("unknown service type %q", serviceType))
	}
	if strings.TrimSpace(createdBy) == "" {
		return nil, shared.NewValidationError("created_by", "is required")
	}
	return &Batch{
		ID:          uuid.New(),
		FacilityID:  facilityID,
		ServiceType: serviceType,
		Status:      batch.StatusOpen,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now().UTC(),
		TotalAmount: decimal.Zero,
		Items:       []*Item{},
	}, nil
}

func NewItem(batchID, residentID uuid.UUID, amount decimal.Decimal) (*Item, error) {
	if residentID == uuid.Nil {
		return nil, shared.NewValidationError("resident_id", "is required")
	}
	if err := shared.ValidateAmount("amount", amount); err != nil {
		return nil, err
	}
	return &Item{
		ID:         uuid.New(),
		BatchID:    batchID,
		ResidentID: residentID,
		Amount:     amount,
		Status:     ItemPending,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// RequireOpen guards item mutations and deletion
func (b *Batch) RequireOpen() error {
	return Lifecycle.RequireOpen(b.Status)
}

// RequirePostable fails with ErrBatchAlreadyPosted for a posted batch
func (b *Batch) RequirePostable() error {
	if Lifecycle.IsTerminal(b.Status) {
		return shared.ErrBatchAlreadyPosted
	}
	return b.RequireOpen()
}

// SumItems is the total of all item amounts regardless of outcome
func (b *Batch) SumItems() decimal.Decimal {
	total := decimal.Zero
	for _, it := range b.Items {
		total = total.Add(it.Amount)
	}
	return total
}

func (b *Batch) FindItem(residentID uuid.UUID) *Item {
	for _, it := range b.Items {
		if it.ResidentID == residentID {
			return it
		}
	}
	return nil
}

// PendingItems are the items a post still has to attempt
func (b *Batch) PendingItems() []*Item {
	pending := make([]*Item, 0, len(b.Items))
	for _, it := range b.Items {
		if it.Status == ItemPending {
			pending = append(pending, it)
		}
	}
	return pending
}

func (b *Batch) CountProcessed() int {
	n := 0
	for _, it := range b.Items {
		if it.Status == ItemProcessed {
			n++
		}
	}
	return n
}

// MarkPosted moves the batch to its terminal state
func (b *Batch) MarkPosted(postedBy string, at time.Time) {
	b.Status = StatusPosted
	b.PostedBy = &postedBy
	b.PostedAt = &at
	b.ProcessedCount = b.CountProcessed()
	b.TotalAmount = b.SumItems()
}

// EntryDescription renders the human readable ledger description for an item
func (b *Batch) EntryDescription(chequeNumber string) string {
	desc := fmt.Sprintf("Service charge: %s (batch %s)", b.ServiceType, b.ID)
	if chequeNumber != "" {
		desc += ", cheque " + chequeNumber
	}
	return desc
}

func (i *Item) MarkProcessed(at time.Time) {
	i.Status = ItemProcessed
	i.ProcessedAt = &at
	i.ErrorMessage = nil
}

func (i *Item) MarkFailed(message string) {
	i.Status = ItemFailed
	i.ErrorMessage = &message
}
