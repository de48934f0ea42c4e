package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/preauth"
	"github.com/resident-trust-ledger/internal/domain/shared"
)

// PreAuthRepository implements preauth.Repository
type PreAuthRepository struct {
	s *Store
}

func listKey(facilityID uuid.UUID, month string) string {
	return facilityID.String() + "/" + month
}

func (r *PreAuthRepository) CreateDebit(_ context.Context, d *preauth.Debit) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.debits[d.ID]; exists {
		return fmt.Errorf("pre-authorization %s: %w", d.ID, shared.ErrInvalidState)
	}
	r.s.debits[d.ID] = copyDebit(d)
	return nil
}

func (r *PreAuthRepository) GetDebit(_ context.Context, id uuid.UUID) (*preauth.Debit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	d, ok := r.s.debits[id]
	if !ok {
		return nil, preauth.ErrDebitNotFound{DebitID: id}
	}
	return copyDebit(d), nil
}

func (r *PreAuthRepository) ListByMonth(_ context.Context, facilityID uuid.UUID, month string) ([]*preauth.Debit, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	debits := []*preauth.Debit{}
	for _, d := range r.s.debits {
		if d.FacilityID == facilityID && d.TargetMonth == month {
			debits = append(debits, copyDebit(d))
		}
	}
	sort.Slice(debits, func(i, j int) bool { return debits[i].CreatedAt.Before(debits[j].CreatedAt) })
	return debits, nil
}

func (r *PreAuthRepository) MarkProcessed(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.transition(id, func(d *preauth.Debit) { d.MarkProcessed(at) })
}

func (r *PreAuthRepository) Cancel(_ context.Context, id uuid.UUID) error {
	return r.transition(id, func(d *preauth.Debit) { d.Status = preauth.StatusCancelled })
}

func (r *PreAuthRepository) transition(id uuid.UUID, apply func(*preauth.Debit)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.debits[id]
	if !ok || d.Status != preauth.StatusPending {
		return preauth.ErrNotProcessable{DebitID: id, Reason: "authorization is no longer pending"}
	}
	apply(d)
	return nil
}

func (r *PreAuthRepository) GetOrCreateList(_ context.Context, facilityID uuid.UUID, month string) (*preauth.MonthlyList, error) {
	fresh, err := preauth.NewMonthlyList(facilityID, month)
	if err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := listKey(facilityID, month)
	l, ok := r.s.lists[key]
	if !ok {
		l = fresh
		r.s.lists[key] = l
	}
	c := *l
	c.ClosedBy = copyPtr(l.ClosedBy)
	c.ClosedAt = copyPtr(l.ClosedAt)
	return &c, nil
}

func (r *PreAuthRepository) CloseList(_ context.Context, l *preauth.MonthlyList) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	stored, ok := r.s.lists[listKey(l.FacilityID, l.Month)]
	if !ok || stored.Status != preauth.ListOpen {
		return preauth.ErrListClosed{FacilityID: l.FacilityID, Month: l.Month}
	}
	stored.Status = preauth.ListClosed
	stored.ClosedBy = copyPtr(l.ClosedBy)
	stored.ClosedAt = copyPtr(l.ClosedAt)
	return nil
}
