package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/ledger"
	"github.com/resident-trust-ledger/internal/domain/resident"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ResidentRepository implements resident.Repository
type ResidentRepository struct {
	s *Store
}

func (r *ResidentRepository) Create(_ context.Context, account *resident.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.residents[account.ID]; exists {
		return fmt.Errorf("resident %s: %w", account.ID, shared.ErrInvalidState)
	}
	r.s.residents[account.ID] = copyPtr(account)
	return nil
}

func (r *ResidentRepository) GetByID(_ context.Context, id uuid.UUID) (*resident.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	acc, ok := r.s.residents[id]
	if !ok {
		return nil, resident.ErrResidentNotFound{ResidentID: id}
	}
	return copyPtr(acc), nil
}

func (r *ResidentRepository) ListByFacility(_ context.Context, facilityID uuid.UUID) ([]*resident.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	accounts := []*resident.Account{}
	for _, acc := range r.s.residents {
		if acc.FacilityID == facilityID {
			accounts = append(accounts, copyPtr(acc))
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].Name < accounts[j].Name })
	return accounts, nil
}

func (r *ResidentRepository) UpdateStatus(_ context.Context, id uuid.UUID, status resident.Status) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	acc, ok := r.s.residents[id]
	if !ok {
		return resident.ErrResidentNotFound{ResidentID: id}
	}
	acc.Status = status
	acc.Version++
	acc.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *ResidentRepository) AdjustBalanceAtomic(_ context.Context, id, entryID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	return r.add(PrimitiveResidentAdjust, id, entryID, delta)
}

func (r *ResidentRepository) IncrementBalance(_ context.Context, id, entryID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	return r.add(PrimitiveResidentIncrement, id, entryID, delta)
}

func (r *ResidentRepository) add(p Primitive, id, entryID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if !r.s.available(p) {
		return decimal.Zero, shared.ErrPrimitiveUnavailable
	}
	acc, ok := r.s.residents[id]
	if !ok {
		return decimal.Zero, resident.ErrResidentNotFound{ResidentID: id}
	}
	entry, err := r.unapplied(id, entryID)
	if err != nil {
		return decimal.Zero, err
	}
	acc.Balance = acc.Balance.Add(delta)
	acc.Version++
	acc.UpdatedAt = time.Now().UTC()
	entry.BalanceApplied = true
	return acc.Balance, nil
}

// WriteBalance compares on version like the SQL implementation
func (r *ResidentRepository) WriteBalance(_ context.Context, id, entryID uuid.UUID, balance decimal.Decimal, expectedVersion int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	acc, ok := r.s.residents[id]
	if !ok {
		return resident.ErrResidentNotFound{ResidentID: id}
	}
	entry, err := r.unapplied(id, entryID)
	if err != nil {
		return err
	}
	if acc.Version != expectedVersion {
		return resident.ErrConcurrentModification{ResidentID: id}
	}
	acc.Balance = balance
	acc.Version++
	acc.UpdatedAt = time.Now().UTC()
	entry.BalanceApplied = true
	return nil
}

// unapplied returns the stored entry whose delta is about to move the balance.
// Caller holds the store lock.
func (r *ResidentRepository) unapplied(residentID, entryID uuid.UUID) (*ledger.Entry, error) {
	entry, ok := r.s.entriesByID[entryID]
	if !ok || entry.ResidentID != residentID {
		return nil, ledger.ErrEntryNotFound{EntryID: entryID}
	}
	if entry.BalanceApplied {
		return nil, resident.ErrBalanceAlreadyApplied{EntryID: entryID}
	}
	return entry, nil
}
