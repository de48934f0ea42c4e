package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/resident-trust-ledger/internal/config"
	"github.com/resident-trust-ledger/internal/domain/ledger"
	"github.com/resident-trust-ledger/internal/domain/preauth"
	"github.com/resident-trust-ledger/internal/domain/resident"
	"github.com/resident-trust-ledger/internal/domain/shared"
)

// DefaultPreAuthWorkers caps concurrent authorizations. A configured cap may
// lower it but never raise it.
const DefaultPreAuthWorkers = config.MaxPreAuthCap

// RunFailure names an authorization that could not be processed
type RunFailure struct {
	DebitID uuid.UUID `json:"debit_id"`
	Error   string    `json:"error"`
}

// RunResult accumulates the outcome of ProcessAll
type RunResult struct {
	SuccessCount int          `json:"success_count"`
	FailedCount  int          `json:"failed_count"`
	Failures     []RunFailure `json:"failures"`
}

// WorkerCount is min(limit, DefaultPreAuthWorkers, max(1, cpus/2)). A
// non-positive limit means DefaultPreAuthWorkers.
func WorkerCount(limit, cpus int) int {
	if limit <= 0 || limit > DefaultPreAuthWorkers {
		limit = DefaultPreAuthWorkers
	}
	return min(limit, max(1, cpus/2))
}

// PreAuthService processes monthly authorizations. All ProcessAll calls share
// one ants pool, so the worker bound holds across concurrent runs too.
type PreAuthService struct {
	logger    *slog.Logger
	repo      preauth.Repository
	residents resident.Repository
	recorder  EntryRecorder
	pool      *ants.Pool
	workers   int
	now       func() time.Time
}

func NewPreAuthService(
	logger *slog.Logger,
	repo preauth.Repository,
	residents resident.Repository,
	recorder EntryRecorder,
	cfg config.WorkerPoolConfig,
) (*PreAuthService, error) {
	workers := WorkerCount(cfg.PreAuthCap, runtime.NumCPU())
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create pre-authorization worker pool: %w", err)
	}

	logger.Info("Pre-authorization worker pool ready", "workers", workers)
	return &PreAuthService{
		logger:    logger,
		repo:      repo,
		residents: residents,
		recorder:  recorder,
		pool:      pool,
		workers:   workers,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *PreAuthService) CreateAuthorization(ctx context.Context, p preauth.NewDebitParams) (*preauth.Debit, error) {
	d, err := preauth.NewDebit(p)
	if err != nil {
		return nil, err
	}
	acc, err := s.residents.GetByID(ctx, d.ResidentID)
	if err != nil {
		return nil, shared.Remote("get resident", err)
	}
	if acc.FacilityID != d.FacilityID {
		return nil, shared.NewValidationError("resident_id", "resident belongs to another facility")
	}
	if err := acc.RequireActive(); err != nil {
		return nil, err
	}
	if _, err := s.openList(ctx, d.FacilityID, d.TargetMonth); err != nil {
		return nil, err
	}

	if err := s.repo.CreateDebit(ctx, d); err != nil {
		return nil, shared.Remote("create pre-authorization", err)
	}
	s.logger.Info("Pre-authorization created",
		"debit_id", d.ID,
		"resident_id", d.ResidentID,
		"month", d.TargetMonth,
		"type", d.Type,
	)
	return d, nil
}

func (s *PreAuthService) GetAuthorization(ctx context.Context, id uuid.UUID) (*preauth.Debit, error) {
	d, err := s.repo.GetDebit(ctx, id)
	if err != nil {
		return nil, shared.Remote("get pre-authorization", err)
	}
	return d, nil
}

// Cancel withdraws a pending authorization
func (s *PreAuthService) Cancel(ctx context.Context, id uuid.UUID) error {
	d, err := s.GetAuthorization(ctx, id)
	if err != nil {
		return err
	}
	if d.Status != preauth.StatusPending {
		return preauth.ErrNotProcessable{DebitID: id, Reason: "only pending authorizations can be cancelled"}
	}
	if err := s.repo.Cancel(ctx, id); err != nil {
		return shared.Remote("cancel pre-authorization", err)
	}
	s.logger.Info("Pre-authorization cancelled", "debit_id", id)
	return nil
}

// ProcessOne posts a single authorization. An uncovered debit fails with
// shared.ErrInsufficientFunds and stays pending.
func (s *PreAuthService) ProcessOne(ctx context.Context, id uuid.UUID) error {
	d, err := s.GetAuthorization(ctx, id)
	if err != nil {
		return err
	}
	acc, err := s.residents.GetByID(ctx, d.ResidentID)
	if err != nil {
		return shared.Remote("get resident", err)
	}
	if err := d.RequireProcessable(); err != nil {
		return err
	}
	if _, err := s.openList(ctx, d.FacilityID, d.TargetMonth); err != nil {
		return err
	}
	if err := acc.RequireActive(); err != nil {
		return err
	}
	if d.Type == shared.EntryTypeDebit {
		if err := acc.RequireFunds(d.Amount); err != nil {
			return err
		}
	}

	debitID := d.ID
	_, err = s.recorder.RecordEntry(ctx, RecordEntryRequest{
		ResidentID:  d.ResidentID,
		Type:        d.Type,
		Amount:      d.Amount,
		Method:      shared.MethodManual,
		Description: d.EntryDescription(),
		Source:      ledger.Source{Kind: ledger.SourcePreAuth, ItemID: &debitID},
		CreatedBy:   d.AuthorizedBy,
	})
	// a duplicate is only reported once its entry has moved the balance
	if err != nil && !errors.Is(err, ledger.ErrDuplicateEntry{}) {
		return err
	}

	if err := s.repo.MarkProcessed(ctx, id, s.now()); err != nil {
		return shared.Remote("mark pre-authorization processed", err)
	}
	return nil
}

// ProcessAll hands ids to at most s.workers workers. Each worker claims the
// next index atomically until the ids run out.
func (s *PreAuthService) ProcessAll(ctx context.Context, ids []uuid.UUID) (*RunResult, error) {
	result := &RunResult{Failures: []RunFailure{}}
	if len(ids) == 0 {
		return result, nil
	}

	var (
		next      atomic.Int64
		mu        sync.Mutex
		wg        sync.WaitGroup
		submitted int
		submitErr error
	)

	worker := func() {
		defer wg.Done()
		for {
			i := int(next.Add(1)) - 1
			if i >= len(ids) {
				return
			}
			err := s.ProcessOne(ctx, ids[i])

			mu.Lock()
			if err != nil {
				result.FailedCount++
				result.Failures = append(result.Failures, RunFailure{DebitID: ids[i], Error: err.Error()})
			} else {
				result.SuccessCount++
			}
			mu.Unlock()

			if err != nil {
				s.logger.Warn("Pre-authorization failed", "debit_id", ids[i].String(), "error", err)
			}
		}
	}

	for w := 0; w < min(s.workers, len(ids)); w++ {
		wg.Add(1)
		if err := s.pool.Submit(worker); err != nil {
			wg.Done()
			submitErr = err
			break
		}
		submitted++
	}
	wg.Wait()

	if submitted == 0 {
		return nil, fmt.Errorf("failed to submit pre-authorization workers: %w", submitErr)
	}

	s.logger.Info("Pre-authorization run finished",
		"requested", len(ids),
		"workers", submitted,
		"succeeded", result.SuccessCount,
		"failed", result.FailedCount,
	)
	return result, nil
}

func (s *PreAuthService) ProcessMonth(ctx context.Context, facilityID uuid.UUID, month string) (*RunResult, error) {
	list, err := s.openList(ctx, facilityID, month)
	if err != nil {
		return nil, err
	}
	if err := s.aggregate(ctx, list); err != nil {
		return nil, err
	}
	return s.ProcessAll(ctx, list.Processable())
}

func (s *PreAuthService) GetMonthlyList(ctx context.Context, facilityID uuid.UUID, month string) (*preauth.MonthlyList, error) {
	list, err := s.list(ctx, facilityID, month)
	if err != nil {
		return nil, err
	}
	if err := s.aggregate(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// CloseMonthlyList is terminal; closing a closed list fails
func (s *PreAuthService) CloseMonthlyList(ctx context.Context, facilityID uuid.UUID, month, closedBy string) (*preauth.MonthlyList, error) {
	if closedBy == "" {
		return nil, shared.NewValidationError("closed_by", "is required")
	}
	list, err := s.list(ctx, facilityID, month)
	if err != nil {
		return nil, err
	}
	if err := list.Close(closedBy, s.now()); err != nil {
		return nil, err
	}
	if err := s.repo.CloseList(ctx, list); err != nil {
		return nil, shared.Remote("close pre-authorization list", err)
	}
	if err := s.aggregate(ctx, list); err != nil {
		return nil, err
	}
	s.logger.Info("Pre-authorization list closed", "facility_id", facilityID, "month", month, "closed_by", closedBy)
	return list, nil
}

func (s *PreAuthService) list(ctx context.Context, facilityID uuid.UUID, month string) (*preauth.MonthlyList, error) {
	if facilityID == uuid.Nil {
		return nil, shared.NewValidationError("facility_id", "is required")
	}
	if _, err := preauth.ParseMonth(month); err != nil {
		return nil, err
	}
	list, err := s.repo.GetOrCreateList(ctx, facilityID, month)
	if err != nil {
		return nil, shared.Remote("get pre-authorization list", err)
	}
	return list, nil
}

func (s *PreAuthService) openList(ctx context.Context, facilityID uuid.UUID, month string) (*preauth.MonthlyList, error) {
	list, err := s.list(ctx, facilityID, month)
	if err != nil {
		return nil, err
	}
	if err := list.RequireOpen(); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *PreAuthService) aggregate(ctx context.Context, list *preauth.MonthlyList) error {
	debits, err := s.repo.ListByMonth(ctx, list.FacilityID, list.Month)
	if err != nil {
		return shared.Remote("list pre-authorizations", err)
	}
	list.Aggregate(debits)
	return nil
}

// Workers is the size of the processing pool
func (s *PreAuthService) Workers() int {
	return s.workers
}

// Shutdown releases the worker pool
func (s *PreAuthService) Shutdown() {
	s.logger.Info("Shutting down pre-authorization pool", "running_workers", s.pool.Running())
	s.pool.Release()
}
