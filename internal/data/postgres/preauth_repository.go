package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/resident-trust-ledger/internal/domain/preauth"
	"github.com/resident-trust-ledger/internal/platform/persistence"
)

const debitColumns = `id, resident_id, facility_id, authorized_by, description, authorized_date, target_month,
		amount, entry_type, is_active, status, processed_at, created_at`

const listColumns = `id, facility_id, month, status, closed_by, closed_at, created_at`

// PreAuthRepository implements preauth.Repository for PostgreSQL
type PreAuthRepository struct {
	db     persistence.Pool
	logger *slog.Logger
}

// NewPreAuthRepository creates a new PostgreSQL pre-authorization repository
func NewPreAuthRepository(logger *slog.Logger, db *persistence.PostgresDB) *PreAuthRepository {
	return &PreAuthRepository{db: db.Pool(), logger: logger}
}

func (r *PreAuthRepository) CreateDebit(ctx context.Context, d *preauth.Debit) error {
	query := `
		INSERT INTO preauth_debits (` + debitColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.Exec(ctx, query, d.ID, d.ResidentID, d.FacilityID, d.AuthorizedBy, d.Description,
		d.AuthorizedDate, d.TargetMonth, d.Amount, d.Type, d.IsActive, d.Status, d.ProcessedAt, d.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create pre-authorization", "error", err)
		return fmt.Errorf("failed to create pre-authorization: %w", err)
	}
	return nil
}

func (r *PreAuthRepository) GetDebit(ctx context.Context, id uuid.UUID) (*preauth.Debit, error) {
	query := `SELECT ` + debitColumns + ` FROM preauth_debits WHERE id = $1`

	d, err := scanDebit(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, preauth.ErrDebitNotFound{DebitID: id}
		}
		r.logger.Error("Failed to get pre-authorization", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get pre-authorization: %w", err)
	}
	return d, nil
}

func (r *PreAuthRepository) ListByMonth(ctx context.Context, facilityID uuid.UUID, month string) ([]*preauth.Debit, error) {
	query := `SELECT ` + debitColumns + ` FROM preauth_debits
		WHERE facility_id = $1 AND target_month = $2 ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, facilityID, month)
	if err != nil {
		r.logger.Error("Failed to list pre-authorizations", "facility_id", facilityID.String(), "month", month, "error", err)
		return nil, fmt.Errorf("failed to list pre-authorizations: %w", err)
	}
	defer rows.Close()

	debits := []*preauth.Debit{}
	for rows.Next() {
		d, err := scanDebit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pre-authorization: %w", err)
		}
		debits = append(debits, d)
	}
	return debits, rows.Err()
}

// MarkProcessed moves a pending authorization to processed
func (r *PreAuthRepository) MarkProcessed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.transition(ctx, id, preauth.StatusProcessed, &at)
}

// Cancel moves a pending authorization to cancelled
func (r *PreAuthRepository) Cancel(ctx context.Context, id uuid.UUID) error {
	return r.transition(ctx, id, preauth.StatusCancelled, nil)
}

func (r *PreAuthRepository) transition(ctx context.Context, id uuid.UUID, to preauth.Status, at *time.Time) error {
	query := `UPDATE preauth_debits SET status = $1, processed_at = $2 WHERE id = $3 AND status = 'pending'`

	result, err := r.db.Exec(ctx, query, to, at, id)
	if err != nil {
		r.logger.Error("Failed to update pre-authorization status", "id", id.String(), "status", string(to), "error", err)
		return fmt.Errorf("failed to update pre-authorization status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return preauth.ErrNotProcessable{DebitID: id, Reason: "authorization is no longer pending"}
	}
	return nil
}

// GetOrCreateList returns the facility month list, creating it open if absent
func (r *PreAuthRepository) GetOrCreateList(ctx context.Context, facilityID uuid.UUID, month string) (*preauth.MonthlyList, error) {
	fresh, err := preauth.NewMonthlyList(facilityID, month)
	if err != nil {
		return nil, err
	}

	insert := `
		INSERT INTO monthly_preauth_lists (id, facility_id, month, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (facility_id, month) DO NOTHING
	`
	if _, err := r.db.Exec(ctx, insert, fresh.ID, fresh.FacilityID, fresh.Month, fresh.Status, fresh.CreatedAt); err != nil {
		r.logger.Error("Failed to create monthly pre-authorization list", "facility_id", facilityID.String(), "month", month, "error", err)
		return nil, fmt.Errorf("failed to create monthly pre-authorization list: %w", err)
	}

	var l preauth.MonthlyList
	err = r.db.QueryRow(ctx, `SELECT `+listColumns+` FROM monthly_preauth_lists WHERE facility_id = $1 AND month = $2`,
		facilityID, month).Scan(&l.ID, &l.FacilityID, &l.Month, &l.Status, &l.ClosedBy, &l.ClosedAt, &l.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly pre-authorization list: %w", err)
	}
	return &l, nil
}

// CloseList persists the open -> closed transition of a month list
func (r *PreAuthRepository) CloseList(ctx context.Context, l *preauth.MonthlyList) error {
	query := `UPDATE monthly_preauth_lists SET status = $1, closed_by = $2, closed_at = $3 WHERE id = $4 AND status = 'open'`

	result, err := r.db.Exec(ctx, query, preauth.ListClosed, l.ClosedBy, l.ClosedAt, l.ID)
	if err != nil {
		r.logger.Error("Failed to close monthly pre-authorization list", "list_id", l.ID.String(), "error", err)
		return fmt.Errorf("failed to close monthly pre-authorization list: %w", err)
	}
	if result.RowsAffected() == 0 {
		return preauth.ErrListClosed{FacilityID: l.FacilityID, Month: l.Month}
	}
	return nil
}

func scanDebit(row pgx.Row) (*preauth.Debit, error) {
	var d preauth.Debit
	err := row.Scan(
		&d.ID,
		&d.ResidentID,
		&d.FacilityID,
		&d.AuthorizedBy,
		&d.Description,
		&d.AuthorizedDate,
		&d.TargetMonth,
		&d.Amount,
		&d.Type,
		&d.IsActive,
		&d.Status,
		&d.ProcessedAt,
		&d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
