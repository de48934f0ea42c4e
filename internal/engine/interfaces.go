// Package engine implements batch posting and balance reconciliation on top
// of the ledger store repositories. Every operation that moves money funnels
// through LedgerService.RecordEntry.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/cashbox"
	"github.com/resident-trust-ledger/internal/domain/depositbatch"
	"github.com/resident-trust-ledger/internal/domain/ledger"
	"github.com/resident-trust-ledger/internal/domain/preauth"
	"github.com/resident-trust-ledger/internal/domain/reporting"
	"github.com/resident-trust-ledger/internal/domain/resident"
	"github.com/resident-trust-ledger/internal/domain/servicebatch"
	"github.com/shopspring/decimal"
)

// EntryRecorder records a ledger entry and moves the resident balance with it
type EntryRecorder interface {
	RecordEntry(ctx context.Context, req RecordEntryRequest) (*ledger.Entry, error)
}

// CashMirror records resident cash movements in the facility cash box
type CashMirror interface {
	ProcessTransaction(ctx context.Context, p cashbox.TransactionParams) (*cashbox.Transaction, error)
}

// ResidentLedger defines resident account and ledger operations
type ResidentLedger interface {
	EntryRecorder

	// OpenAccount creates an active account with a zero balance
	OpenAccount(ctx context.Context, facilityID uuid.UUID, name string) (*resident.Account, error)
	GetAccount(ctx context.Context, residentID uuid.UUID) (*resident.Account, error)
	ListAccounts(ctx context.Context, facilityID uuid.UUID) ([]*resident.Account, error)
	// Deactivate marks the account inactive. Deactivating twice is not an error.
	Deactivate(ctx context.Context, residentID uuid.UUID) (*resident.Account, error)

	GetBalance(ctx context.Context, residentID uuid.UUID) (decimal.Decimal, error)
	// ListEntries returns the newest entries first; limit <= 0 means all
	ListEntries(ctx context.Context, residentID uuid.UUID, limit int) ([]*ledger.Entry, error)
	ListFacilityEntries(ctx context.Context, facilityID uuid.UUID, limit int) ([]*ledger.Entry, error)
	ListFacilityEntriesInRange(ctx context.Context, facilityID uuid.UUID, from, to time.Time) ([]*ledger.Entry, error)
	ListWithdrawals(ctx context.Context, facilityID uuid.UUID, from, to time.Time) ([]*reporting.WithdrawalRecord, error)

	// Reconcile compares the stored balance with the sum of the ledger
	Reconcile(ctx context.Context, residentID uuid.UUID) (*Reconciliation, error)
}

// ServiceBatches defines service batch operations
type ServiceBatches interface {
	Create(ctx context.Context, facilityID uuid.UUID, serviceType servicebatch.ServiceType, createdBy string) (*servicebatch.Batch, error)
	Get(ctx context.Context, batchID uuid.UUID) (*servicebatch.Batch, error)
	ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]*servicebatch.Batch, error)

	// AddItem inserts the resident's item or replaces the amount of the existing one
	AddItem(ctx context.Context, batchID, residentID uuid.UUID, amount decimal.Decimal) (*servicebatch.Item, error)
	UpdateItem(ctx context.Context, batchID, residentID uuid.UUID, amount decimal.Decimal) error
	RemoveItem(ctx context.Context, batchID, residentID uuid.UUID) error

	// Post debits every item it can and moves the batch to posted.
	// Returns shared.ErrBatchAlreadyPosted for a posted batch.
	Post(ctx context.Context, batchID uuid.UUID, postedBy, chequeNumber string) (*PostResult, error)
	Delete(ctx context.Context, batchID uuid.UUID) error
}

// DepositBatches defines deposit batch operations
type DepositBatches interface {
	Create(ctx context.Context, facilityID uuid.UUID, description, createdBy string) (*depositbatch.Batch, error)
	Get(ctx context.Context, batchID uuid.UUID) (*depositbatch.Batch, error)
	ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]*depositbatch.Batch, error)

	AddEntry(ctx context.Context, batchID uuid.UUID, in depositbatch.EntryInput) (*depositbatch.Entry, error)
	UpdateEntry(ctx context.Context, batchID, entryID uuid.UUID, in depositbatch.EntryInput) (*depositbatch.Entry, error)
	RemoveEntry(ctx context.Context, batchID, entryID uuid.UUID) error

	// Close credits every pending entry and closes the batch. Closing a closed
	// batch succeeds without crediting anything. If an entry fails the batch
	// stays open and depositbatch.ErrPartialClose is returned with the result.
	Close(ctx context.Context, batchID uuid.UUID, closedBy string) (*CloseResult, error)
	Delete(ctx context.Context, batchID uuid.UUID) error
}

// PreAuthScheduler defines pre-authorization operations
type PreAuthScheduler interface {
	CreateAuthorization(ctx context.Context, p preauth.NewDebitParams) (*preauth.Debit, error)
	GetAuthorization(ctx context.Context, id uuid.UUID) (*preauth.Debit, error)
	Cancel(ctx context.Context, id uuid.UUID) error

	ProcessOne(ctx context.Context, id uuid.UUID) error
	// ProcessAll runs ProcessOne over ids on the bounded worker pool
	ProcessAll(ctx context.Context, ids []uuid.UUID) (*RunResult, error)
	// ProcessMonth runs every active pending authorization of an open facility month
	ProcessMonth(ctx context.Context, facilityID uuid.UUID, month string) (*RunResult, error)

	GetMonthlyList(ctx context.Context, facilityID uuid.UUID, month string) (*preauth.MonthlyList, error)
	CloseMonthlyList(ctx context.Context, facilityID uuid.UUID, month, closedBy string) (*preauth.MonthlyList, error)
}

// CashBox defines facility cash box operations
type CashBox interface {
	CashMirror

	GetBalance(ctx context.Context, facilityID uuid.UUID) (decimal.Decimal, error)
	// ListTransactions returns the movements since the last completed reset
	ListTransactions(ctx context.Context, facilityID uuid.UUID) ([]*cashbox.Transaction, error)
	// ResetMonthly archives the current period then resets the live balance
	ResetMonthly(ctx context.Context, facilityID uuid.UUID, userID string) (*cashbox.History, error)
	ListHistory(ctx context.Context, facilityID uuid.UUID, limit int) ([]*cashbox.History, error)
}

var (
	_ ResidentLedger   = (*LedgerService)(nil)
	_ ServiceBatches   = (*ServiceBatchService)(nil)
	_ DepositBatches   = (*DepositBatchService)(nil)
	_ PreAuthScheduler = (*PreAuthService)(nil)
	_ CashBox          = (*CashBoxService)(nil)
)
