package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smallbank/backend/internal/models"
)

// LedgerStore owns transaction records. Entries are inserted PENDING
// under a caller-supplied uid and transitioned exactly once to a
// terminal status by the orchestrator that created them.
type LedgerStore struct{}

func NewLedgerStore() *LedgerStore {
	return &LedgerStore{}
}

const transactionColumns = `id, uid, customer_id, type, amount, description, transaction_date, reference_uid, status, created_at, created_by`

// insertColumns builds the column/value lists for an insert. Optional
// fields are included only when present, mirroring how the rows are
// read back (absent columns fall back to their database defaults).
func insertColumns(entry models.Transaction) ([]string, []any) {
	cols := []string{"uid", "customer_id", "type", "amount", "transaction_date", "status"}
	vals := []any{entry.UID, entry.CustomerID, string(entry.Type), entry.Amount, entry.TransactionDate, string(entry.Status)}

	if entry.Description != "" {
		cols = append(cols, "description")
		vals = append(vals, entry.Description)
	}
	if entry.ReferenceUID != nil {
		cols = append(cols, "reference_uid")
		vals = append(vals, *entry.ReferenceUID)
	}
	if entry.CreatedBy != "" {
		cols = append(cols, "created_by")
		vals = append(vals, entry.CreatedBy)
	}
	return cols, vals
}

// Insert durably persists a new ledger entry. The uid is the idempotency
// key; re-insertion under the same uid fails with a unique-constraint
// violation, which callers detect with IsUniqueViolation.
func (s *LedgerStore) Insert(ctx context.Context, dbtx DBTX, entry models.Transaction) error {
	cols, vals := insertColumns(entry)

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(
		"INSERT INTO transactions (%s) VALUES (%s)",
		strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)

	if _, err := dbtx.ExecContext(ctx, query, vals...); err != nil {
		if IsUniqueViolation(err) {
			return err
		}
		return fmt.Errorf("insert transaction %s: %w", entry.UID, err)
	}
	return nil
}

// TransitionStatus atomically updates the status field and reports
// whether exactly one row was affected.
func (s *LedgerStore) TransitionStatus(ctx context.Context, dbtx DBTX, uid uuid.UUID, status models.TransactionStatus) (bool, error) {
	result, err := dbtx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1
		WHERE uid = $2`, string(status), uid)
	if err != nil {
		return false, fmt.Errorf("transition transaction %s to %s: %w", uid, status, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// FindByUID is the point lookup used for idempotency resolution and
// refund-reference validation. Returns (nil, nil) when absent.
func (s *LedgerStore) FindByUID(ctx context.Context, dbtx DBTX, uid uuid.UUID) (*models.Transaction, error) {
	return s.findByUID(ctx, dbtx, uid, false)
}

// FindByUIDForUpdate locks the entry's row for the remainder of the
// enclosing transaction. Refund validation locks the referenced purchase
// this way so two concurrent refunds against the same purchase serialize
// before the ceiling check.
func (s *LedgerStore) FindByUIDForUpdate(ctx context.Context, dbtx DBTX, uid uuid.UUID) (*models.Transaction, error) {
	return s.findByUID(ctx, dbtx, uid, true)
}

func (s *LedgerStore) findByUID(ctx context.Context, dbtx DBTX, uid uuid.UUID, forUpdate bool) (*models.Transaction, error) {
	query := fmt.Sprintf("SELECT %s FROM transactions WHERE uid = $1", transactionColumns)
	if forUpdate {
		query += " FOR UPDATE"
	}

	var (
		t            models.Transaction
		description  sql.NullString
		referenceUID uuid.NullUUID
		createdBy    sql.NullString
	)
	err := dbtx.QueryRowContext(ctx, query, uid).Scan(
		&t.ID, &t.UID, &t.CustomerID, &t.Type, &t.Amount,
		&description, &t.TransactionDate, &referenceUID, &t.Status, &t.CreatedAt, &createdBy,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction %s: %w", uid, err)
	}

	t.Description = description.String
	t.CreatedBy = createdBy.String
	if referenceUID.Valid {
		ref := referenceUID.UUID
		t.ReferenceUID = &ref
	}
	return &t, nil
}

// SumNonFailedRefunds aggregates the amounts of all PARTIAL_REFUND
// entries referencing the given purchase whose status is not FAILED.
// Returns zero when none exist.
func (s *LedgerStore) SumNonFailedRefunds(ctx context.Context, dbtx DBTX, referenceUID uuid.UUID) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := dbtx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE reference_uid = $1
		  AND type = $2
		  AND status <> $3`,
		referenceUID, string(models.TypePartialRefund), string(models.StatusFailed),
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum refunds for transaction %s: %w", referenceUID, err)
	}
	return total, nil
}

// ListByCustomerID returns a customer's most recent entries, newest
// first.
func (s *LedgerStore) ListByCustomerID(ctx context.Context, dbtx DBTX, customerID int64, limit int) ([]models.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE customer_id = $1 ORDER BY transaction_date DESC LIMIT $2`, transactionColumns)

	rows, err := dbtx.QueryContext(ctx, query, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions for customer %d: %w", customerID, err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var (
			t            models.Transaction
			description  sql.NullString
			referenceUID uuid.NullUUID
			createdBy    sql.NullString
		)
		if err := rows.Scan(
			&t.ID, &t.UID, &t.CustomerID, &t.Type, &t.Amount,
			&description, &t.TransactionDate, &referenceUID, &t.Status, &t.CreatedAt, &createdBy,
		); err != nil {
			return nil, err
		}
		t.Description = description.String
		t.CreatedBy = createdBy.String
		if referenceUID.Valid {
			ref := referenceUID.UUID
			t.ReferenceUID = &ref
		}
		transactions = append(transactions, t)
	}
	return transactions, rows.Err()
}
