package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/resident-trust-ledger/internal/domain/cashbox"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/platform/persistence"
	"github.com/shopspring/decimal"
)

const cashTxColumns = `id, facility_id, transaction_id, transaction_type, amount, description,
		resident_id, balance_after, created_by, created_at`

// CashBoxRepository implements cashbox.Repository for PostgreSQL
type CashBoxRepository struct {
	db     persistence.Pool
	logger *slog.Logger
}

// NewCashBoxRepository creates a new PostgreSQL cash box repository
func NewCashBoxRepository(logger *slog.Logger, db *persistence.PostgresDB) *CashBoxRepository {
	return &CashBoxRepository{db: db.Pool(), logger: logger}
}

// ApplyTransaction runs process_cash_box_transaction, which inserts the row and
// moves the balance in one call
func (r *CashBoxRepository) ApplyTransaction(ctx context.Context, tx *cashbox.Transaction, opening decimal.Decimal) (*cashbox.Transaction, error) {
	query := `SELECT ` + cashTxColumns + ` FROM process_cash_box_transaction($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	stored, err := scanCashTx(r.db.QueryRow(ctx, query, tx.ID, tx.FacilityID, tx.TransactionID, tx.Type, tx.Amount,
		tx.Description, tx.ResidentID, tx.CreatedBy, tx.CreatedAt, opening))
	if err != nil {
		switch {
		case persistence.HasCode(err, persistence.CodeUndefinedFunction):
			return nil, shared.ErrPrimitiveUnavailable
		case persistence.IsUniqueViolation(err, ""):
			// A concurrent call with the same key won the insert
			return r.GetTransaction(ctx, tx.FacilityID, tx.TransactionID)
		}
		r.logger.Error("Atomic cash box transaction failed", "facility_id", tx.FacilityID.String(), "error", err)
		return nil, fmt.Errorf("failed to process cash box transaction: %w", err)
	}
	return stored, nil
}

// AdjustBalance calls adjust_cash_box_balance
func (r *CashBoxRepository) AdjustBalance(ctx context.Context, facilityID uuid.UUID, delta, opening decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.QueryRow(ctx, `SELECT adjust_cash_box_balance($1, $2, $3)`, facilityID, delta, opening).Scan(&balance)
	if err != nil {
		if persistence.HasCode(err, persistence.CodeUndefinedFunction) {
			return decimal.Zero, shared.ErrPrimitiveUnavailable
		}
		r.logger.Error("Cash box balance adjustment failed", "facility_id", facilityID.String(), "error", err)
		return decimal.Zero, fmt.Errorf("failed to adjust cash box balance: %w", err)
	}
	return balance, nil
}

// WriteBalance stores balance only if the row still holds expected, or does
// not exist yet when expected is nil
func (r *CashBoxRepository) WriteBalance(ctx context.Context, facilityID uuid.UUID, balance decimal.Decimal, expected *decimal.Decimal) error {
	var (
		query string
		args  []interface{}
	)
	if expected == nil {
		query = `INSERT INTO cash_box_balances (facility_id, balance, updated_at) VALUES ($1, $2, NOW())
			ON CONFLICT (facility_id) DO NOTHING`
		args = []interface{}{facilityID, balance}
	} else {
		query = `UPDATE cash_box_balances SET balance = $1, updated_at = NOW() WHERE facility_id = $2 AND balance = $3`
		args = []interface{}{balance, facilityID, *expected}
	}

	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to write cash box balance", "facility_id", facilityID.String(), "error", err)
		return fmt.Errorf("failed to write cash box balance: %w", err)
	}
	if result.RowsAffected() == 0 {
		return cashbox.ErrBalanceChanged{FacilityID: facilityID}
	}
	return nil
}

// InsertTransaction appends tx, reporting false when its key already exists
func (r *CashBoxRepository) InsertTransaction(ctx context.Context, tx *cashbox.Transaction) (bool, error) {
	query := `
		INSERT INTO cash_box_transactions (` + cashTxColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (transaction_id) DO NOTHING
	`

	result, err := r.db.Exec(ctx, query, tx.ID, tx.FacilityID, tx.TransactionID, tx.Type, tx.Amount,
		tx.Description, tx.ResidentID, tx.BalanceAfter, tx.CreatedBy, tx.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert cash box transaction", "transaction_id", tx.TransactionID, "error", err)
		return false, fmt.Errorf("failed to insert cash box transaction: %w", err)
	}
	return result.RowsAffected() == 1, nil
}

func (r *CashBoxRepository) GetTransaction(ctx context.Context, facilityID uuid.UUID, transactionID string) (*cashbox.Transaction, error) {
	query := `SELECT ` + cashTxColumns + ` FROM cash_box_transactions WHERE transaction_id = $1 AND facility_id = $2`

	tx, err := scanCashTx(r.db.QueryRow(ctx, query, transactionID, facilityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cashbox.ErrTransactionNotFound{TransactionID: transactionID}
		}
		return nil, fmt.Errorf("failed to get cash box transaction: %w", err)
	}
	return tx, nil
}

// ListTransactions returns transactions at or after since in posting order
func (r *CashBoxRepository) ListTransactions(ctx context.Context, facilityID uuid.UUID, since time.Time) ([]*cashbox.Transaction, error) {
	query := `SELECT ` + cashTxColumns + ` FROM cash_box_transactions
		WHERE facility_id = $1 AND created_at >= $2 ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, facilityID, since)
	if err != nil {
		r.logger.Error("Failed to list cash box transactions", "facility_id", facilityID.String(), "error", err)
		return nil, fmt.Errorf("failed to list cash box transactions: %w", err)
	}
	defer rows.Close()

	txs := []*cashbox.Transaction{}
	for rows.Next() {
		tx, err := scanCashTx(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cash box transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func (r *CashBoxRepository) GetBalance(ctx context.Context, facilityID uuid.UUID) (*cashbox.Balance, error) {
	var b cashbox.Balance
	err := r.db.QueryRow(ctx, `SELECT facility_id, balance, updated_at FROM cash_box_balances WHERE facility_id = $1`, facilityID).
		Scan(&b.FacilityID, &b.Balance, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cashbox.ErrBalanceNotFound{FacilityID: facilityID}
		}
		r.logger.Error("Failed to get cash box balance", "facility_id", facilityID.String(), "error", err)
		return nil, fmt.Errorf("failed to get cash box balance: %w", err)
	}
	return &b, nil
}

// SetBalance overwrites the live balance, creating the row if needed
func (r *CashBoxRepository) SetBalance(ctx context.Context, facilityID uuid.UUID, balance decimal.Decimal) error {
	query := `
		INSERT INTO cash_box_balances (facility_id, balance, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (facility_id) DO UPDATE SET balance = EXCLUDED.balance, updated_at = NOW()
	`

	if _, err := r.db.Exec(ctx, query, facilityID, balance); err != nil {
		r.logger.Error("Failed to set cash box balance", "facility_id", facilityID.String(), "error", err)
		return fmt.Errorf("failed to set cash box balance: %w", err)
	}
	return nil
}

func scanCashTx(row pgx.Row) (*cashbox.Transaction, error) {
	var tx cashbox.Transaction
	err := row.Scan(
		&tx.ID,
		&tx.FacilityID,
		&tx.TransactionID,
		&tx.Type,
		&tx.Amount,
		&tx.Description,
		&tx.ResidentID,
		&tx.BalanceAfter,
		&tx.CreatedBy,
		&tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}
