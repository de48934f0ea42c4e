package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/ledger"
	"github.com/resident-trust-ledger/internal/domain/outbox"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// LedgerRepository implements ledger.Repository. Create also queues the
// outbox message, matching the single-statement SQL insert.
type LedgerRepository struct {
	s *Store
}

func (r *LedgerRepository) Create(_ context.Context, e *ledger.Entry) error {
	msg, err := outbox.NewMessage(e)
	if err != nil {
		return fmt.Errorf("failed to build outbox message: %w", err)
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.entriesByID[e.ID]; exists {
		return fmt.Errorf("ledger entry %s: %w", e.ID, shared.ErrInvalidState)
	}
	if e.Source.ItemID != nil {
		if r.findBySource(e.Source.Kind, *e.Source.ItemID) != nil {
			return ledger.ErrDuplicateEntry{Kind: e.Source.Kind, ItemID: *e.Source.ItemID}
		}
	}

	stored := copyEntry(e)
	stored.BalanceApplied = false
	r.s.entries = append(r.s.entries, stored)
	r.s.entriesByID[stored.ID] = stored

	r.s.nextOutboxID++
	msg.ID = r.s.nextOutboxID
	r.s.outbox = append(r.s.outbox, msg)
	return nil
}

func (r *LedgerRepository) findBySource(kind ledger.SourceKind, itemID uuid.UUID) *ledger.Entry {
	for _, e := range r.s.entries {
		if e.Source.Kind == kind && e.Source.ItemID != nil && *e.Source.ItemID == itemID {
			return e
		}
	}
	return nil
}

func (r *LedgerRepository) GetByID(_ context.Context, id uuid.UUID) (*ledger.Entry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e, ok := r.s.entriesByID[id]
	if !ok {
		return nil, ledger.ErrEntryNotFound{EntryID: id}
	}
	return copyEntry(e), nil
}

func (r *LedgerRepository) GetBySource(_ context.Context, kind ledger.SourceKind, itemID uuid.UUID) (*ledger.Entry, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	e := r.findBySource(kind, itemID)
	if e == nil {
		return nil, ledger.ErrEntryNotFound{}
	}
	return copyEntry(e), nil
}

func (r *LedgerRepository) ListByResident(_ context.Context, residentID uuid.UUID, limit int) ([]*ledger.Entry, error) {
	return r.list(func(e *ledger.Entry) bool { return e.ResidentID == residentID }, limit), nil
}

func (r *LedgerRepository) ListByFacility(_ context.Context, facilityID uuid.UUID, limit int) ([]*ledger.Entry, error) {
	return r.list(func(e *ledger.Entry) bool { return e.FacilityID == facilityID }, limit), nil
}

// ListByFacilityRange returns entries with from <= created_at < to, newest first
func (r *LedgerRepository) ListByFacilityRange(_ context.Context, facilityID uuid.UUID, from, to time.Time) ([]*ledger.Entry, error) {
	return r.list(func(e *ledger.Entry) bool {
		return e.FacilityID == facilityID && !e.CreatedAt.Before(from) && e.CreatedAt.Before(to)
	}, 0), nil
}

// list filters entries newest first. A non-positive limit returns everything.
func (r *LedgerRepository) list(match func(*ledger.Entry) bool, limit int) []*ledger.Entry {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := []*ledger.Entry{}
	for i := len(r.s.entries) - 1; i >= 0; i-- {
		if e := r.s.entries[i]; match(e) {
			out = append(out, copyEntry(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *LedgerRepository) SumByResident(_ context.Context, residentID uuid.UUID) (decimal.Decimal, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var own []*ledger.Entry
	for _, e := range r.s.entries {
		if e.ResidentID == residentID {
			own = append(own, e)
		}
	}
	return ledger.Sum(own), nil
}

// OutboxRepository implements outbox.Repository
type OutboxRepository struct {
	s *Store
}

func (r *OutboxRepository) GetPending(_ context.Context, limit int) ([]*outbox.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	pending := []*outbox.Message{}
	for _, m := range r.s.outbox {
		if m.Status != shared.OutboxStatusPending {
			continue
		}
		c := *m
		c.LastAttemptAt = copyPtr(m.LastAttemptAt)
		pending = append(pending, &c)
		if limit > 0 && len(pending) == limit {
			break
		}
	}
	return pending, nil
}

func (r *OutboxRepository) UpdateStatus(_ context.Context, id int64, status shared.OutboxStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m := r.find(id)
	if m == nil {
		return outbox.ErrMessageNotFound{ID: id}
	}
	m.Status = status
	now := time.Now().UTC()
	m.LastAttemptAt = &now
	return nil
}

func (r *OutboxRepository) IncrementAttempts(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m := r.find(id)
	if m == nil {
		return outbox.ErrMessageNotFound{ID: id}
	}
	m.IncrementAttempts()
	return nil
}

func (r *OutboxRepository) find(id int64) *outbox.Message {
	for _, m := range r.s.outbox {
		if m.ID == id {
			return m
		}
	}
	return nil
}
