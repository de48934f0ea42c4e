package shared

// EntryType is the direction of a ledger entry
type EntryType string

const (
	EntryTypeCredit EntryType = "credit"
	EntryTypeDebit  EntryType = "debit"
)

func (t EntryType) Valid() bool {
	return t == EntryTypeCredit || t == EntryTypeDebit
}

// PaymentMethod describes how money moved for an entry
type PaymentMethod string

const (
	MethodManual PaymentMethod = "manual"
	MethodCash   PaymentMethod = "cash"
	MethodCheque PaymentMethod = "cheque"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodManual, MethodCash, MethodCheque:
		return true
	}
	return false
}

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)
