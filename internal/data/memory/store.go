// Package memory is a mutex-guarded, process-local implementation of every
// store interface. It backs STORE_DRIVER=memory and the engine scenario tests.
package memory

import (
	"sync"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/cashbox"
	"github.com/resident-trust-ledger/internal/domain/depositbatch"
	"github.com/resident-trust-ledger/internal/domain/ledger"
	"github.com/resident-trust-ledger/internal/domain/outbox"
	"github.com/resident-trust-ledger/internal/domain/preauth"
	"github.com/resident-trust-ledger/internal/domain/reporting"
	"github.com/resident-trust-ledger/internal/domain/resident"
	"github.com/resident-trust-ledger/internal/domain/servicebatch"
)

// Primitive names an atomic balance operation the store can be told to lack
type Primitive string

const (
	PrimitiveResidentAdjust    Primitive = "adjust_resident_balance"
	PrimitiveResidentIncrement Primitive = "increment_resident_balance"
	PrimitiveCashBoxApply      Primitive = "process_cash_box_transaction"
	PrimitiveCashBoxAdjust     Primitive = "adjust_cash_box_balance"
)

var (
	_ resident.Repository            = (*ResidentRepository)(nil)
	_ ledger.Repository              = (*LedgerRepository)(nil)
	_ outbox.Repository              = (*OutboxRepository)(nil)
	_ servicebatch.Repository        = (*ServiceBatchRepository)(nil)
	_ depositbatch.Repository        = (*DepositBatchRepository)(nil)
	_ preauth.Repository             = (*PreAuthRepository)(nil)
	_ cashbox.Repository             = (*CashBoxRepository)(nil)
	_ cashbox.HistoryRepository      = (*CashBoxHistoryRepository)(nil)
	_ reporting.WithdrawalRepository = (*WithdrawalRepository)(nil)
)

type Store struct {
	mu sync.RWMutex

	residents map[uuid.UUID]*resident.Account

	entries      []*ledger.Entry
	entriesByID  map[uuid.UUID]*ledger.Entry
	outbox       []*outbox.Message
	nextOutboxID int64

	serviceBatches map[uuid.UUID]*servicebatch.Batch
	depositBatches map[uuid.UUID]*depositbatch.Batch

	debits map[uuid.UUID]*preauth.Debit
	lists  map[string]*preauth.MonthlyList

	cashBalances map[uuid.UUID]*cashbox.Balance
	cashTxs      []*cashbox.Transaction
	cashTxByKey  map[string]*cashbox.Transaction
	histories    []*cashbox.History

	withdrawals map[uuid.UUID]*reporting.WithdrawalRecord

	unavailable map[Primitive]bool
}

func New() *Store {
	return &Store{
		residents:      make(map[uuid.UUID]*resident.Account),
		entriesByID:    make(map[uuid.UUID]*ledger.Entry),
		serviceBatches: make(map[uuid.UUID]*servicebatch.Batch),
		depositBatches: make(map[uuid.UUID]*depositbatch.Batch),
		debits:         make(map[uuid.UUID]*preauth.Debit),
		lists:          make(map[string]*preauth.MonthlyList),
		cashBalances:   make(map[uuid.UUID]*cashbox.Balance),
		cashTxByKey:    make(map[string]*cashbox.Transaction),
		withdrawals:    make(map[uuid.UUID]*reporting.WithdrawalRecord),
		unavailable:    make(map[Primitive]bool),
	}
}

// Disable makes the named primitives return shared.ErrPrimitiveUnavailable,
// emulating a store that was deployed without them
func (s *Store) Disable(primitives ...Primitive) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range primitives {
		s.unavailable[p] = true
	}
}

func (s *Store) available(p Primitive) bool {
	return !s.unavailable[p]
}

func (s *Store) Residents() *ResidentRepository {
	return &ResidentRepository{s: s}
}

func (s *Store) Ledger() *LedgerRepository {
	return &LedgerRepository{s: s}
}

func (s *Store) Outbox() *OutboxRepository {
	return &OutboxRepository{s: s}
}

func (s *Store) ServiceBatches() *ServiceBatchRepository {
	return &ServiceBatchRepository{s: s}
}

func (s *Store) DepositBatches() *DepositBatchRepository {
	return &DepositBatchRepository{s: s}
}

func (s *Store) PreAuth() *PreAuthRepository {
	return &PreAuthRepository{s: s}
}

func (s *Store) CashBox() *CashBoxRepository {
	return &CashBoxRepository{s: s}
}

func (s *Store) CashBoxHistory() *CashBoxHistoryRepository {
	return &CashBoxHistoryRepository{s: s}
}

func (s *Store) Withdrawals() *WithdrawalRepository {
	return &WithdrawalRepository{s: s}
}

// Stored values are copied on the way in and out so callers never alias store state.

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyServiceBatch(b *servicebatch.Batch, withItems bool) *servicebatch.Batch {
	c := *b
	c.PostedBy = copyPtr(b.PostedBy)
	c.PostedAt = copyPtr(b.PostedAt)
	c.Items = []*servicebatch.Item{}
	if withItems {
		for _, it := range b.Items {
			c.Items = append(c.Items, copyServiceItem(it))
		}
	}
	return &c
}

func copyServiceItem(it *servicebatch.Item) *servicebatch.Item {
	c := *it
	c.ErrorMessage = copyPtr(it.ErrorMessage)
	c.ProcessedAt = copyPtr(it.ProcessedAt)
	return &c
}

func copyDepositBatch(b *depositbatch.Batch, withEntries bool) *depositbatch.Batch {
	c := *b
	c.ClosedBy = copyPtr(b.ClosedBy)
	c.ClosedAt = copyPtr(b.ClosedAt)
	c.Entries = []*depositbatch.Entry{}
	if withEntries {
		for _, e := range b.Entries {
			c.Entries = append(c.Entries, copyDepositEntry(e))
		}
	}
	return &c
}

func copyDepositEntry(e *depositbatch.Entry) *depositbatch.Entry {
	c := *e
	c.ProcessedAt = copyPtr(e.ProcessedAt)
	return &c
}

func copyEntry(e *ledger.Entry) *ledger.Entry {
	c := *e
	c.Source.BatchID = copyPtr(e.Source.BatchID)
	c.Source.ItemID = copyPtr(e.Source.ItemID)
	return &c
}

func copyDebit(d *preauth.Debit) *preauth.Debit {
	c := *d
	c.ProcessedAt = copyPtr(d.ProcessedAt)
	return &c
}

func copyCashTx(tx *cashbox.Transaction) *cashbox.Transaction {
	c := *tx
	c.ResidentID = copyPtr(tx.ResidentID)
	return &c
}

func copyHistory(h *cashbox.History) *cashbox.History {
	c := *h
	c.CompletedAt = copyPtr(h.CompletedAt)
	c.Transactions = make([]*cashbox.Transaction, 0, len(h.Transactions))
	for _, tx := range h.Transactions {
		c.Transactions = append(c.Transactions, copyCashTx(tx))
	}
	return &c
}
