package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/resident-trust-ledger/internal/domain/servicebatch"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/platform/persistence"
	"github.com/shopspring/decimal"
)

const serviceBatchColumns = `id, facility_id, service_type, status, created_by, created_at,
		posted_by, posted_at, total_amount, processed_count`

const serviceItemColumns = `id, batch_id, resident_id, amount, status, error_message, processed_at, created_at`

// ServiceBatchRepository implements servicebatch.Repository for PostgreSQL
type ServiceBatchRepository struct {
	db     persistence.Pool
	logger *slog.Logger
}

// NewServiceBatchRepository creates a new PostgreSQL service batch repository
func NewServiceBatchRepository(logger *slog.Logger, db *persistence.PostgresDB) *ServiceBatchRepository {
	return &ServiceBatchRepository{db: db.Pool(), logger: logger}
}

func (r *ServiceBatchRepository) Create(ctx context.Context, b *servicebatch.Batch) error {
	query := `
		INSERT INTO service_batches (id, facility_id, service_type, status, created_by, created_at, total_amount, processed_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, query, b.ID, b.FacilityID, b.ServiceType, b.Status, b.CreatedBy, b.CreatedAt, b.TotalAmount, b.ProcessedCount)
	if err != nil {
		r.logger.Error("Failed to create service batch", "error", err)
		return fmt.Errorf("failed to create service batch: %w", err)
	}
	return nil
}

// GetByID loads the batch and its items
func (r *ServiceBatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*servicebatch.Batch, error) {
	query := `SELECT ` + serviceBatchColumns + ` FROM service_batches WHERE id = $1`

	b, err := scanServiceBatch(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, servicebatch.ErrBatchNotFound{BatchID: id}
		}
		r.logger.Error("Failed to get service batch", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get service batch: %w", err)
	}

	rows, err := r.db.Query(ctx, `SELECT `+serviceItemColumns+` FROM service_batch_items
		WHERE batch_id = $1 ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get service batch items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		it, err := scanServiceItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service batch item: %w", err)
		}
		b.Items = append(b.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over service batch items: %w", err)
	}

	return b, nil
}

// ListByFacility returns batch headers, newest first, without items
func (r *ServiceBatchRepository) ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]*servicebatch.Batch, error) {
	query := `SELECT ` + serviceBatchColumns + ` FROM service_batches WHERE facility_id = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, facilityID)
	if err != nil {
		r.logger.Error("Failed to list service batches", "facility_id", facilityID.String(), "error", err)
		return nil, fmt.Errorf("failed to list service batches: %w", err)
	}
	defer rows.Close()

	batches := []*servicebatch.Batch{}
	for rows.Next() {
		b, err := scanServiceBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service batch: %w", err)
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// UpsertItem inserts the item, or replaces the amount of the resident's
// existing pending item. Only an open batch accepts the write.
func (r *ServiceBatchRepository) UpsertItem(ctx context.Context, item *servicebatch.Item) (*servicebatch.Item, error) {
	query := `
		INSERT INTO service_batch_items (id, batch_id, resident_id, amount, status, created_at)
		SELECT $1, b.id, $3, $4, $5, $6 FROM service_batches b WHERE b.id = $2 AND b.status = 'open'
		ON CONFLICT (batch_id, resident_id) DO UPDATE SET amount = EXCLUDED.amount
			WHERE service_batch_items.status = 'pending'
		RETURNING ` + serviceItemColumns

	stored, err := scanServiceItem(r.db.QueryRow(ctx, query, item.ID, item.BatchID, item.ResidentID, item.Amount, item.Status, item.CreatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.upsertRejected(ctx, item)
		}
		r.logger.Error("Failed to upsert service batch item", "batch_id", item.BatchID.String(), "error", err)
		return nil, fmt.Errorf("failed to upsert service batch item: %w", err)
	}
	return stored, nil
}

// upsertRejected tells a closed batch apart from a settled item
func (r *ServiceBatchRepository) upsertRejected(ctx context.Context, item *servicebatch.Item) error {
	var open bool
	err := r.db.QueryRow(ctx,
		`SELECT status = 'open' FROM service_batches WHERE id = $1`,
		item.BatchID,
	).Scan(&open)
	switch {
	case errors.Is(err, pgx.ErrNoRows), err == nil && !open:
		return shared.ErrBatchNotOpen
	case err != nil:
		return fmt.Errorf("failed to read service batch status: %w", err)
	}
	return servicebatch.ErrItemNotPending{BatchID: item.BatchID, ResidentID: item.ResidentID}
}

func (r *ServiceBatchRepository) UpdateItemAmount(ctx context.Context, batchID, residentID uuid.UUID, amount decimal.Decimal) error {
	query := `
		UPDATE service_batch_items i SET amount = $1
		FROM service_batches b
		WHERE i.batch_id = b.id AND b.status = 'open' AND i.batch_id = $2 AND i.resident_id = $3
			AND i.status = 'pending'
	`

	result, err := r.db.Exec(ctx, query, amount, batchID, residentID)
	if err != nil {
		r.logger.Error("Failed to update service batch item", "batch_id", batchID.String(), "error", err)
		return fmt.Errorf("failed to update service batch item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return servicebatch.ErrItemNotFound{BatchID: batchID, ResidentID: residentID}
	}
	return nil
}

func (r *ServiceBatchRepository) DeleteItem(ctx context.Context, batchID, residentID uuid.UUID) error {
	query := `
		DELETE FROM service_batch_items i
		USING service_batches b
		WHERE i.batch_id = b.id AND b.status = 'open' AND i.batch_id = $1 AND i.resident_id = $2
			AND i.status = 'pending'
	`

	result, err := r.db.Exec(ctx, query, batchID, residentID)
	if err != nil {
		r.logger.Error("Failed to delete service batch item", "batch_id", batchID.String(), "error", err)
		return fmt.Errorf("failed to delete service batch item: %w", err)
	}
	if result.RowsAffected() == 0 {
		return servicebatch.ErrItemNotFound{BatchID: batchID, ResidentID: residentID}
	}
	return nil
}

// SaveItemOutcome persists the posting result of one item
func (r *ServiceBatchRepository) SaveItemOutcome(ctx context.Context, item *servicebatch.Item) error {
	query := `UPDATE service_batch_items SET status = $1, error_message = $2, processed_at = $3 WHERE id = $4`

	result, err := r.db.Exec(ctx, query, item.Status, item.ErrorMessage, item.ProcessedAt, item.ID)
	if err != nil {
		r.logger.Error("Failed to save service item outcome", "item_id", item.ID.String(), "error", err)
		return fmt.Errorf("failed to save service item outcome: %w", err)
	}
	if result.RowsAffected() == 0 {
		return servicebatch.ErrItemNotFound{BatchID: item.BatchID, ResidentID: item.ResidentID}
	}
	return nil
}

func (r *ServiceBatchRepository) RecomputeTotal(ctx context.Context, batchID uuid.UUID) (decimal.Decimal, error) {
	query := `
		UPDATE service_batches
		SET total_amount = (SELECT COALESCE(SUM(amount), 0) FROM service_batch_items WHERE batch_id = $1)
		WHERE id = $1
		RETURNING total_amount
	`

	var total decimal.Decimal
	if err := r.db.QueryRow(ctx, query, batchID).Scan(&total); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, servicebatch.ErrBatchNotFound{BatchID: batchID}
		}
		r.logger.Error("Failed to recompute service batch total", "batch_id", batchID.String(), "error", err)
		return decimal.Zero, fmt.Errorf("failed to recompute service batch total: %w", err)
	}
	return total, nil
}

// MarkPosted moves an open batch to posted and stores the processed count and
// total computed from its items. The status guard makes the transition happen once.
func (r *ServiceBatchRepository) MarkPosted(ctx context.Context, b *servicebatch.Batch) error {
	query := `
		UPDATE service_batches
		SET status = $1, posted_by = $2, posted_at = $3,
			processed_count = (SELECT COUNT(*) FROM service_batch_items WHERE batch_id = $4 AND status = 'processed'),
			total_amount = (SELECT COALESCE(SUM(amount), 0) FROM service_batch_items WHERE batch_id = $4)
		WHERE id = $4 AND status = 'open'
		RETURNING processed_count, total_amount
	`

	err := r.db.QueryRow(ctx, query, servicebatch.StatusPosted, b.PostedBy, b.PostedAt, b.ID).Scan(&b.ProcessedCount, &b.TotalAmount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrBatchAlreadyPosted
		}
		r.logger.Error("Failed to mark service batch posted", "batch_id", b.ID.String(), "error", err)
		return fmt.Errorf("failed to mark service batch posted: %w", err)
	}
	return nil
}

// Delete removes an open batch. Items go first so the batch row is never orphaned.
func (r *ServiceBatchRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return persistence.RunInTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM service_batch_items WHERE batch_id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete service batch items: %w", err)
		}
		result, err := tx.Exec(ctx, `DELETE FROM service_batches WHERE id = $1 AND status = 'open'`, id)
		if err != nil {
			return fmt.Errorf("failed to delete service batch: %w", err)
		}
		if result.RowsAffected() == 0 {
			return shared.ErrBatchNotOpen
		}
		return nil
	})
}

func scanServiceBatch(row pgx.Row) (*servicebatch.Batch, error) {
	b := servicebatch.Batch{Items: []*servicebatch.Item{}}
	err := row.Scan(
		&b.ID,
		&b.FacilityID,
		&b.ServiceType,
		&b.Status,
		&b.CreatedBy,
		&b.CreatedAt,
		&b.PostedBy,
		&b.PostedAt,
		&b.TotalAmount,
		&b.ProcessedCount,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanServiceItem(row pgx.Row) (*servicebatch.Item, error) {
	var it servicebatch.Item
	err := row.Scan(
		&it.ID,
		&it.BatchID,
		&it.ResidentID,
		&it.Amount,
		&it.Status,
		&it.ErrorMessage,
		&it.ProcessedAt,
		&it.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &it, nil
}
