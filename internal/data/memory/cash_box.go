package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/cashbox"
	"github.com/resident-trust-ledger/internal/domain/reporting"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// CashBoxRepository implements cashbox.Repository
type CashBoxRepository struct {
	s *Store
}

func (r *CashBoxRepository) ApplyTransaction(_ context.Context, tx *cashbox.Transaction, opening decimal.Decimal) (*cashbox.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.s.available(PrimitiveCashBoxApply) {
		return nil, shared.ErrPrimitiveUnavailable
	}
	if existing, ok := r.s.cashTxByKey[tx.TransactionID]; ok {
		return copyCashTx(existing), nil
	}

	stored := copyCashTx(tx)
	stored.BalanceAfter = r.adjust(tx.FacilityID, tx.Delta(), opening)
	r.insert(stored)
	return copyCashTx(stored), nil
}

func (r *CashBoxRepository) AdjustBalance(_ context.Context, facilityID uuid.UUID, delta, opening decimal.Decimal) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.s.available(PrimitiveCashBoxAdjust) {
		return decimal.Zero, shared.ErrPrimitiveUnavailable
	}
	return r.adjust(facilityID, delta, opening), nil
}

// adjust seeds a missing balance with opening, then adds delta. Callers hold the lock.
func (r *CashBoxRepository) adjust(facilityID uuid.UUID, delta, opening decimal.Decimal) decimal.Decimal {
	b, ok := r.s.cashBalances[facilityID]
	if !ok {
		b = &cashbox.Balance{FacilityID: facilityID, Balance: opening}
		r.s.cashBalances[facilityID] = b
	}
	b.Balance = b.Balance.Add(delta)
	b.UpdatedAt = time.Now().UTC()
	return b.Balance
}

func (r *CashBoxRepository) insert(tx *cashbox.Transaction) {
	r.s.cashTxs = append(r.s.cashTxs, tx)
	r.s.cashTxByKey[tx.TransactionID] = tx
}

func (r *CashBoxRepository) WriteBalance(_ context.Context, facilityID uuid.UUID, balance decimal.Decimal, expected *decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.cashBalances[facilityID]
	switch {
	case expected == nil && ok,
		expected != nil && (!ok || !b.Balance.Equal(*expected)):
		return cashbox.ErrBalanceChanged{FacilityID: facilityID}
	case !ok:
		b = &cashbox.Balance{FacilityID: facilityID}
		r.s.cashBalances[facilityID] = b
	}
	b.Balance = balance
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *CashBoxRepository) InsertTransaction(_ context.Context, tx *cashbox.Transaction) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.cashTxByKey[tx.TransactionID]; ok {
		return false, nil
	}
	r.insert(copyCashTx(tx))
	return true, nil
}

func (r *CashBoxRepository) GetTransaction(_ context.Context, facilityID uuid.UUID, transactionID string) (*cashbox.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	tx, ok := r.s.cashTxByKey[transactionID]
	if !ok || tx.FacilityID != facilityID {
		return nil, cashbox.ErrTransactionNotFound{TransactionID: transactionID}
	}
	return copyCashTx(tx), nil
}

func (r *CashBoxRepository) ListTransactions(_ context.Context, facilityID uuid.UUID, since time.Time) ([]*cashbox.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	txs := []*cashbox.Transaction{}
	for _, tx := range r.s.cashTxs {
		if tx.FacilityID == facilityID && !tx.CreatedAt.Before(since) {
			txs = append(txs, copyCashTx(tx))
		}
	}
	sort.SliceStable(txs, func(i, j int) bool { return txs[i].CreatedAt.Before(txs[j].CreatedAt) })
	return txs, nil
}

func (r *CashBoxRepository) GetBalance(_ context.Context, facilityID uuid.UUID) (*cashbox.Balance, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.cashBalances[facilityID]
	if !ok {
		return nil, cashbox.ErrBalanceNotFound{FacilityID: facilityID}
	}
	return copyPtr(b), nil
}

func (r *CashBoxRepository) SetBalance(_ context.Context, facilityID uuid.UUID, balance decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.cashBalances[facilityID] = &cashbox.Balance{FacilityID: facilityID, Balance: balance, UpdatedAt: time.Now().UTC()}
	return nil
}

// CashBoxHistoryRepository implements cashbox.HistoryRepository
type CashBoxHistoryRepository struct {
	s *Store
}

func (r *CashBoxHistoryRepository) Create(_ context.Context, h *cashbox.History) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.histories = append(r.s.histories, copyHistory(h))
	return nil
}

func (r *CashBoxHistoryRepository) FindIncomplete(_ context.Context, facilityID uuid.UUID) (*cashbox.History, error) {
	return r.latest(facilityID, false), nil
}

func (r *CashBoxHistoryRepository) GetLatest(_ context.Context, facilityID uuid.UUID) (*cashbox.History, error) {
	return r.latest(facilityID, true), nil
}

func (r *CashBoxHistoryRepository) latest(facilityID uuid.UUID, completed bool) *cashbox.History {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var found *cashbox.History
	for _, h := range r.s.histories {
		if h.FacilityID != facilityID || h.ResetCompleted != completed {
			continue
		}
		if found == nil || h.ResetDate.After(found.ResetDate) {
			found = h
		}
	}
	if found == nil {
		return nil
	}
	return copyHistory(found)
}

func (r *CashBoxHistoryRepository) MarkCompleted(_ context.Context, h *cashbox.History) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, stored := range r.s.histories {
		if stored.ID == h.ID {
			stored.ResetCompleted = true
			stored.CompletedAt = copyPtr(h.CompletedAt)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (r *CashBoxHistoryRepository) ListByFacility(_ context.Context, facilityID uuid.UUID, limit int) ([]*cashbox.History, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*cashbox.History{}
	for _, h := range r.s.histories {
		if h.FacilityID == facilityID {
			out = append(out, copyHistory(h))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ResetDate.After(out[j].ResetDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// WithdrawalRepository implements reporting.WithdrawalRepository
type WithdrawalRepository struct {
	s *Store
}

func (r *WithdrawalRepository) Append(_ context.Context, rec *reporting.WithdrawalRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.withdrawals[rec.EntryID]; !exists {
		r.s.withdrawals[rec.EntryID] = copyPtr(rec)
	}
	return nil
}

func (r *WithdrawalRepository) ListByFacility(_ context.Context, facilityID uuid.UUID, from, to time.Time) ([]*reporting.WithdrawalRecord, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	records := []*reporting.WithdrawalRecord{}
	for _, rec := range r.s.withdrawals {
		if rec.FacilityID == facilityID && !rec.EntryCreatedAt.Before(from) && rec.EntryCreatedAt.Before(to) {
			records = append(records, copyPtr(rec))
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].EntryCreatedAt.Before(records[j].EntryCreatedAt) })
	return records, nil
}
