// Package postgres provides PostgreSQL implementations of the domain repositories.
// It is the ledger store of the trust engine: resident balances, ledger entries,
// batches, pre-authorizations and the cash box all live here.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/resident-trust-ledger/internal/domain/ledger"
	"github.com/resident-trust-ledger/internal/domain/resident"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/platform/persistence"
	"github.com/shopspring/decimal"
)

// codeNoDataFound is raised by adjust_resident_balance for an unknown resident
const codeNoDataFound = "P0002"

// codeForeignKeyViolation is raised by adjust_resident_balance for an unknown entry
const codeForeignKeyViolation = "23503"

const residentColumns = `id, facility_id, name, balance, status, version, created_at, updated_at`

// ResidentRepository implements the resident.Repository interface for PostgreSQL
type ResidentRepository struct {
	db     persistence.Pool
	logger *slog.Logger
}

// NewResidentRepository creates a new PostgreSQL resident repository
func NewResidentRepository(logger *slog.Logger, db *persistence.PostgresDB) *ResidentRepository {
	return &ResidentRepository{db: db.Pool(), logger: logger}
}

// Create stores a newly opened account
func (r *ResidentRepository) Create(ctx context.Context, acc *resident.Account) error {
	query := `
		INSERT INTO residents (id, facility_id, name, balance, status, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Exec(ctx, query,
		acc.ID,
		acc.FacilityID,
		acc.Name,
		acc.Balance,
		acc.Status,
		acc.Version,
		acc.CreatedAt,
		acc.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create resident", "error", err)
		return fmt.Errorf("failed to create resident: %w", err)
	}

	return nil
}

// GetByID retrieves a resident account by its ID
func (r *ResidentRepository) GetByID(ctx context.Context, id uuid.UUID) (*resident.Account, error) {
	query := `SELECT ` + residentColumns + ` FROM residents WHERE id = $1`

	acc, err := scanResident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, resident.ErrResidentNotFound{ResidentID: id}
		}
		r.logger.Error("Failed to get resident", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get resident: %w", err)
	}

	return acc, nil
}

// ListByFacility returns the facility's residents ordered by name
func (r *ResidentRepository) ListByFacility(ctx context.Context, facilityID uuid.UUID) ([]*resident.Account, error) {
	query := `SELECT ` + residentColumns + ` FROM residents WHERE facility_id = $1 ORDER BY name`

	rows, err := r.db.Query(ctx, query, facilityID)
	if err != nil {
		r.logger.Error("Failed to list residents", "facility_id", facilityID.String(), "error", err)
		return nil, fmt.Errorf("failed to list residents: %w", err)
	}
	defer rows.Close()

	accounts := []*resident.Account{}
	for rows.Next() {
		acc, err := scanResident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resident: %w", err)
		}
		accounts = append(accounts, acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over residents: %w", err)
	}

	return accounts, nil
}

// UpdateStatus sets the account status. Accounts are never deleted.
func (r *ResidentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status resident.Status) error {
	query := `UPDATE residents SET status = $1, version = version + 1, updated_at = NOW() WHERE id = $2`

	result, err := r.db.Exec(ctx, query, status, id)
	if err != nil {
		r.logger.Error("Failed to update resident status", "id", id.String(), "error", err)
		return fmt.Errorf("failed to update resident status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return resident.ErrResidentNotFound{ResidentID: id}
	}

	return nil
}

// AdjustBalanceAtomic calls the adjust_resident_balance stored function, which
// flags the entry and moves the balance together
func (r *ResidentRepository) AdjustBalanceAtomic(ctx context.Context, id, entryID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.NullDecimal
	err := r.db.QueryRow(ctx, `SELECT adjust_resident_balance($1, $2, $3)`, id, entryID, delta).Scan(&balance)
	if err != nil {
		switch {
		case persistence.HasCode(err, persistence.CodeUndefinedFunction):
			return decimal.Zero, shared.ErrPrimitiveUnavailable
		case persistence.HasCode(err, codeNoDataFound):
			return decimal.Zero, resident.ErrResidentNotFound{ResidentID: id}
		case persistence.HasCode(err, codeForeignKeyViolation):
			return decimal.Zero, ledger.ErrEntryNotFound{EntryID: entryID}
		}
		r.logger.Error("Atomic balance adjustment failed", "id", id.String(), "entry_id", entryID.String(), "error", err)
		return decimal.Zero, fmt.Errorf("failed to adjust resident balance: %w", err)
	}
	if !balance.Valid {
		return decimal.Zero, resident.ErrBalanceAlreadyApplied{EntryID: entryID}
	}
	return balance.Decimal, nil
}

// IncrementBalance applies delta with a relative single-row update guarded by
// the entry's applied flag
func (r *ResidentRepository) IncrementBalance(ctx context.Context, id, entryID uuid.UUID, delta decimal.Decimal) (decimal.Decimal, error) {
	query := `
		WITH flagged AS (
			UPDATE ledger_entries
			SET balance_applied = TRUE
			WHERE id = $3 AND resident_id = $2 AND NOT balance_applied
			RETURNING id
		)
		UPDATE residents
		SET balance = balance + $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND EXISTS (SELECT 1 FROM flagged)
		RETURNING balance
	`

	var balance decimal.Decimal
	if err := r.db.QueryRow(ctx, query, delta, id, entryID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, r.unappliedCause(ctx, id, entryID, nil)
		}
		r.logger.Error("Balance increment failed", "id", id.String(), "entry_id", entryID.String(), "error", err)
		return decimal.Zero, fmt.Errorf("failed to increment resident balance: %w", err)
	}
	return balance, nil
}

// WriteBalance stores an absolute balance using optimistic locking on version.
// Returns ErrConcurrentModification if the account changed since it was read.
func (r *ResidentRepository) WriteBalance(ctx context.Context, id, entryID uuid.UUID, balance decimal.Decimal, expectedVersion int) error {
	query := `
		WITH moved AS (
			UPDATE residents
			SET balance = $1, version = version + 1, updated_at = NOW()
			WHERE id = $2 AND version = $3
				AND EXISTS (SELECT 1 FROM ledger_entries WHERE id = $4 AND resident_id = $2 AND NOT balance_applied)
			RETURNING id
		)
		UPDATE ledger_entries
		SET balance_applied = TRUE
		WHERE id = $4 AND EXISTS (SELECT 1 FROM moved)
	`

	result, err := r.db.Exec(ctx, query, balance, id, expectedVersion, entryID)
	if err != nil {
		r.logger.Error("Failed to write resident balance", "id", id.String(), "entry_id", entryID.String(), "error", err)
		return fmt.Errorf("failed to write resident balance: %w", err)
	}
	if result.RowsAffected() == 0 {
		return r.unappliedCause(ctx, id, entryID, resident.ErrConcurrentModification{ResidentID: id})
	}
	return nil
}

// unappliedCause explains a balance write that changed nothing. fallback is
// returned when the entry exists and is still unapplied.
func (r *ResidentRepository) unappliedCause(ctx context.Context, id, entryID uuid.UUID, fallback error) error {
	var applied bool
	err := r.db.QueryRow(ctx,
		`SELECT balance_applied FROM ledger_entries WHERE id = $1 AND resident_id = $2`,
		entryID, id,
	).Scan(&applied)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return ledger.ErrEntryNotFound{EntryID: entryID}
	case err != nil:
		return fmt.Errorf("failed to read ledger entry state: %w", err)
	case applied:
		return resident.ErrBalanceAlreadyApplied{EntryID: entryID}
	case fallback != nil:
		return fallback
	}
	return resident.ErrResidentNotFound{ResidentID: id}
}

func scanResident(row pgx.Row) (*resident.Account, error) {
	var acc resident.Account
	err := row.Scan(
		&acc.ID,
		&acc.FacilityID,
		&acc.Name,
		&acc.Balance,
		&acc.Status,
		&acc.Version,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}
