package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/resident-trust-ledger/internal/domain/ledger"
	"github.com/resident-trust-ledger/internal/domain/outbox"
	"github.com/resident-trust-ledger/internal/platform/persistence"
	"github.com/shopspring/decimal"
)

const sourceItemConstraint = "ledger_entries_source_item_key"

const entryColumns = `id, resident_id, facility_id, entry_type, amount, method, description,
		source_kind, source_batch_id, source_item_id, service_type, cheque_number,
		created_by, correlation_id, created_at`

// balance_applied is owned by the balance primitives and never inserted
const entrySelectColumns = entryColumns + `, balance_applied`

// LedgerRepository implements the ledger.Repository interface for PostgreSQL
type LedgerRepository struct {
	db     persistence.Pool
	logger *slog.Logger
}

// NewLedgerRepository creates a new PostgreSQL ledger entry repository
func NewLedgerRepository(logger *slog.Logger, db *persistence.PostgresDB) *LedgerRepository {
	return &LedgerRepository{db: db.Pool(), logger: logger}
}

// Create inserts the entry and its outbox message in one statement, so an
// entry is never recorded without being published.
func (r *LedgerRepository) Create(ctx context.Context, e *ledger.Entry) error {
	msg, err := outbox.NewMessage(e)
	if err != nil {
		return fmt.Errorf("failed to build outbox message: %w", err)
	}

	query := `
		WITH entry AS (
			INSERT INTO ledger_entries (` + entryColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			RETURNING id, facility_id
		)
		INSERT INTO ledger_outbox (entry_id, facility_id, payload, status, attempts, created_at)
		SELECT id, facility_id, $16, $17, 0, $18 FROM entry
	`

	_, err = r.db.Exec(ctx, query,
		e.ID,
		e.ResidentID,
		e.FacilityID,
		e.Type,
		e.Amount,
		e.Method,
		e.Description,
		e.Source.Kind,
		e.Source.BatchID,
		e.Source.ItemID,
		e.Source.ServiceType,
		e.Source.ChequeNumber,
		e.CreatedBy,
		e.CorrelationID,
		e.CreatedAt,
		msg.Payload,
		msg.Status,
		msg.CreatedAt,
	)
	if err != nil {
		if persistence.IsUniqueViolation(err, sourceItemConstraint) && e.Source.ItemID != nil {
			return ledger.ErrDuplicateEntry{Kind: e.Source.Kind, ItemID: *e.Source.ItemID}
		}
		r.logger.Error("Failed to create ledger entry", "entry_id", e.ID.String(), "error", err)
		return fmt.Errorf("failed to create ledger entry: %w", err)
	}

	return nil
}

// GetByID retrieves a single entry
func (r *LedgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	query := `SELECT ` + entrySelectColumns + ` FROM ledger_entries WHERE id = $1`

	e, err := scanEntry(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound{EntryID: id}
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}
	return e, nil
}

// GetBySource finds the entry posted for a batch item, deposit entry or authorization
func (r *LedgerRepository) GetBySource(ctx context.Context, kind ledger.SourceKind, itemID uuid.UUID) (*ledger.Entry, error) {
	query := `SELECT ` + entrySelectColumns + ` FROM ledger_entries WHERE source_kind = $1 AND source_item_id = $2`

	e, err := scanEntry(r.db.QueryRow(ctx, query, kind, itemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound{}
		}
		return nil, fmt.Errorf("failed to get ledger entry by source: %w", err)
	}
	return e, nil
}

// ListByResident returns the newest entries of a resident first. A limit of
// zero or less returns all entries.
func (r *LedgerRepository) ListByResident(ctx context.Context, residentID uuid.UUID, limit int) ([]*ledger.Entry, error) {
	query := `SELECT ` + entrySelectColumns + ` FROM ledger_entries WHERE resident_id = $1
		ORDER BY created_at DESC, id LIMIT $2`
	return r.list(ctx, "resident", query, residentID, limitArg(limit))
}

// ListByFacility returns the newest entries of a facility first
func (r *LedgerRepository) ListByFacility(ctx context.Context, facilityID uuid.UUID, limit int) ([]*ledger.Entry, error) {
	query := `SELECT ` + entrySelectColumns + ` FROM ledger_entries WHERE facility_id = $1
		ORDER BY created_at DESC, id LIMIT $2`
	return r.list(ctx, "facility", query, facilityID, limitArg(limit))
}

// ListByFacilityRange returns entries with from <= created_at < to, newest first
func (r *LedgerRepository) ListByFacilityRange(ctx context.Context, facilityID uuid.UUID, from, to time.Time) ([]*ledger.Entry, error) {
	query := `SELECT ` + entrySelectColumns + ` FROM ledger_entries
		WHERE facility_id = $1 AND created_at >= $2 AND created_at < $3
		ORDER BY created_at DESC, id`
	return r.list(ctx, "facility range", query, facilityID, from, to)
}

// SumByResident returns credits minus debits over every entry of the resident
func (r *LedgerRepository) SumByResident(ctx context.Context, residentID uuid.UUID) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(CASE WHEN entry_type = 'credit' THEN amount ELSE -amount END), 0)
		FROM ledger_entries
		WHERE resident_id = $1
	`

	var sum decimal.Decimal
	if err := r.db.QueryRow(ctx, query, residentID).Scan(&sum); err != nil {
		r.logger.Error("Failed to sum ledger entries", "resident_id", residentID.String(), "error", err)
		return decimal.Zero, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	return sum, nil
}

func (r *LedgerRepository) list(ctx context.Context, scope, query string, args ...interface{}) ([]*ledger.Entry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list ledger entries", "scope", scope, "error", err)
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	entries := []*ledger.Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over ledger entries: %w", err)
	}
	return entries, nil
}

// limitArg turns a non-positive limit into NULL, which LIMIT treats as no limit
func limitArg(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var e ledger.Entry
	err := row.Scan(
		&e.ID,
		&e.ResidentID,
		&e.FacilityID,
		&e.Type,
		&e.Amount,
		&e.Method,
		&e.Description,
		&e.Source.Kind,
		&e.Source.BatchID,
		&e.Source.ItemID,
		&e.Source.ServiceType,
		&e.Source.ChequeNumber,
		&e.CreatedBy,
		&e.CorrelationID,
		&e.CreatedAt,
		&e.BalanceApplied,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
