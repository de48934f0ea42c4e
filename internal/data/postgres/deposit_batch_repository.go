package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/resident-trust-ledger/internal/domain/depositbatch"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/platform/persistence"
)

const depositBatchColumns = `id, facility_id, description, status, total_amount, total_cash, total_cheques,
		created_by, created_at, closed_by, closed_at`

const depositEntryColumns = `id, batch_id, resident_id, amount, method, cheque_number, description,
		status, processed_at, created_at`

// DepositBatchRepository implements depositbatch.Repository for PostgreSQL
type DepositBatchRepository struct {
	db     persistence.Pool
	logger *slog.Logger
}

// NewDepositBatchRepository creates a new PostgreSQL deposit batch repository
func NewDepositBatchRepository(logger *slog.Logger, db *persistence.PostgresDB) *DepositBatchRepository {
	return &DepositBatchRepository{db: db.Pool(), logger: logger}
}

func (r *DepositBatchRepository) Create(ctx context.Context, b *depositbatch.Batch) error {
	query := `
		INSERT INTO deposit_batches (id, facility_id, description, status, total_amount, total_cash, total_cheques, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.Exec(ctx, query, b.ID, b.FacilityID, b.Description, b.Status,
		b.TotalAmount, b.TotalCash, b.TotalCheques, b.CreatedBy, b.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create deposit batch", "error", err)
		return fmt.Errorf("failed to create deposit batch: %w", err)
	}
	return nil
}

// GetByID loads the batch and its entries
func (r *DepositBatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*depositbatch.Batch, error) {
	query := `SELECT ` + depositBatchColumns + ` FROM deposit_batches WHERE id = $1`

	b, err := scanDepositBatch(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, depositbatch.ErrBatchNotFound{BatchID: id}
		}
		r.logger.Error("Failed to get deposit batch", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get deposit batch: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT `+depositEntryColumns+` FROM deposit_batch_entries
		WHERE batch_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get deposit batch entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanDepositEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deposit entry: %w", err)
		}
		b.Entries = append(b.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over deposit entries: %w", err)
	}

	return b, nil
}

// ListByFacility returns batch headers, newest first, without entries
func (r *DepositBatchRepository) ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]*depositbatch.Batch, error) {
	query := `SELECT ` + depositBatchColumns + ` FROM deposit_batches WHERE facility_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, facilityID)
	if err != nil {
		r.logger.Error("Failed to list deposit batches", "facility_id", facilityID.String(), "error", err)
		return nil, fmt.Errorf("failed to list deposit batches: %w", err)
	}
	defer rows.Close()

	batches := []*depositbatch.Batch{}
	for rows.Next() {
		b, err := scanDepositBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deposit batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// AddEntry appends an entry to an open batch
func (r *DepositBatchRepository) AddEntry(ctx context.Context, e *depositbatch.Entry) error {
	query := `
		INSERT INTO deposit_batch_entries (id, batch_id, resident_id, amount, method, cheque_number, description, status, created_at)
		SELECT $1, b.id, $3, $4, $5, $6, $7, $8, $9 FROM deposit_batches b WHERE b.id = $2 AND b.status = 'open'
	`

	result, err := r.db.Exec(ctx, query, e.ID, e.BatchID, e.ResidentID, e.Amount, e.Method,
		e.ChequeNumber, e.Description, e.Status, e.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to add deposit entry", "batch_id", e.BatchID.String(), "error", err)
		return fmt.Errorf("failed to add deposit entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrBatchNotOpen
	}
	return nil
}

func (r *DepositBatchRepository) UpdateEntry(ctx context.Context, e *depositbatch.Entry) error {
	query := `
		UPDATE deposit_batch_entries
		SET resident_id = $1, amount = $2, method = $3, cheque_number = $4, description = $5
		WHERE id = $6 AND batch_id = $7 AND status = 'pending'
	`

	result, err := r.db.Exec(ctx, query, e.ResidentID, e.Amount, e.Method, e.ChequeNumber, e.Description, e.ID, e.BatchID)
	if err != nil {
		r.logger.Error("Failed to update deposit entry", "entry_id", e.ID.String(), "error", err)
		return fmt.Errorf("failed to update deposit entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return depositbatch.ErrEntryNotFound{EntryID: e.ID}
	}
	return nil
}

func (r *DepositBatchRepository) DeleteEntry(ctx context.Context, batchID, entryID uuid.UUID) error {
	query := `DELETE FROM deposit_batch_entries WHERE id = $1 AND batch_id = $2 AND status = 'pending'`

	result, err := r.db.Exec(ctx, query, entryID, batchID)
	if err != nil {
		r.logger.Error("Failed to delete deposit entry", "entry_id", entryID.String(), "error", err)
		return fmt.Errorf("failed to delete deposit entry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return depositbatch.ErrEntryNotFound{EntryID: entryID}
	}
	return nil
}

func (r *DepositBatchRepository) MarkEntryProcessed(ctx context.Context, entryID uuid.UUID, at time.Time) error {
	query := `UPDATE deposit_batch_entries SET status = $1, processed_at = $2 WHERE id = $3`

	result, err := r.db.Exec(ctx, query, depositbatch.EntryProcessed, at, entryID)
	if err != nil {
		r.logger.Error("Failed to mark deposit entry processed", "entry_id", entryID.String(), "error", err)
		return fmt.Errorf("failed to mark deposit entry processed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return depositbatch.ErrEntryNotFound{EntryID: entryID}
	}
	return nil
}

// RecomputeTotals stores total, cash and cheque sums of the current entries
func (r *DepositBatchRepository) RecomputeTotals(ctx context.Context, batchID uuid.UUID) (depositbatch.Totals, error) {
	query := `
		UPDATE deposit_batches b
		SET total_amount = s.total, total_cash = s.cash, total_cheques = s.cheques
		FROM (
			SELECT COALESCE(SUM(amount), 0) AS total,
				COALESCE(SUM(amount) FILTER (WHERE method = 'cash'), 0) AS cash,
				COALESCE(SUM(amount) FILTER (WHERE method = 'cheque'), 0) AS cheques
			FROM deposit_batch_entries WHERE batch_id = $1
		) s
		WHERE b.id = $1
		RETURNING b.total_amount, b.total_cash, b.total_cheques
	`

	var t depositbatch.Totals
	if err := r.db.QueryRow(ctx, query, batchID).Scan(&t.Amount, &t.Cash, &t.Cheques); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return depositbatch.Totals{}, depositbatch.ErrBatchNotFound{BatchID: batchID}
		}
		r.logger.Error("Failed to recompute deposit totals", "batch_id", batchID.String(), "error", err)
		return depositbatch.Totals{}, fmt.Errorf("failed to recompute deposit totals: %w", err)
	}
	return t, nil
}

// MarkClosed performs the open -> closed transition exactly once
func (r *DepositBatchRepository) MarkClosed(ctx context.Context, b *depositbatch.Batch) error {
	query := `UPDATE deposit_batches SET status = $1, closed_by = $2, closed_at = $3 WHERE id = $4 AND status = 'open'`

	result, err := r.db.Exec(ctx, query, depositbatch.StatusClosed, b.ClosedBy, b.ClosedAt, b.ID)
	if err != nil {
		r.logger.Error("Failed to close deposit batch", "batch_id", b.ID.String(), "error", err)
		return fmt.Errorf("failed to close deposit batch: %w", err)
	}
	if result.RowsAffected() == 0 {
		return shared.ErrBatchNotOpen
	}
	return nil
}

// Delete removes an open batch, entries first
func (r *DepositBatchRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return persistence.RunInTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM deposit_batch_entries WHERE batch_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete deposit entries: %w", err)
		}
		result, err := tx.Exec(ctx, `DELETE FROM deposit_batches WHERE id = $1 AND status = 'open'`, id)
		if err != nil {
			return fmt.Errorf("failed to delete deposit batch: %w", err)
		}
		if result.RowsAffected() == 0 {
			return shared.ErrBatchNotOpen
		}
		return nil
	})
}

func scanDepositBatch(row pgx.Row) (*depositbatch.Batch, error) {
	b := depositbatch.Batch{Entries: []*depositbatch.Entry{}}
	err := row.Scan(
		&b.ID,
		&b.FacilityID,
		&b.Description,
		&b.Status,
		&b.TotalAmount,
		&b.TotalCash,
		&b.TotalCheques,
		&b.CreatedBy,
		&b.CreatedAt,
		&b.ClosedBy,
		&b.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanDepositEntry(row pgx.Row) (*depositbatch.Entry, error) {
	var e depositbatch.Entry
	err := row.Scan(
		&e.ID,
		&e.BatchID,
		&e.ResidentID,
		&e.Amount,
		&e.Method,
		&e.ChequeNumber,
		&e.Description,
		&e.Status,
		&e.ProcessedAt,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
