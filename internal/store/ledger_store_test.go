package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/smallbank/backend/internal/models"
)

func TestLedgerStore_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerStore()
	ctx := context.Background()

	t.Run("minimal entry omits optional columns", func(t *testing.T) {
		entry := models.Transaction{
			UID:             uuid.New(),
			CustomerID:      7,
			Type:            models.TypeTopUp,
			Amount:          decimal.RequireFromString("50.00"),
			TransactionDate: time.Now(),
			Status:          models.StatusPending,
		}

		mock.ExpectExec("INSERT INTO transactions \\(uid, customer_id, type, amount, transaction_date, status\\) VALUES \\(\\$1, \\$2, \\$3, \\$4, \\$5, \\$6\\)").
			WithArgs(entry.UID, entry.CustomerID, "TOP_UP", entry.Amount, entry.TransactionDate, "PENDING").
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := ledger.Insert(ctx, db, entry)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("refund entry carries description and reference", func(t *testing.T) {
		referenceUID := uuid.New()
		entry := models.Transaction{
			UID:             uuid.New(),
			CustomerID:      7,
			Type:            models.TypePartialRefund,
			Amount:          decimal.RequireFromString("20.00"),
			Description:     "damaged goods",
			TransactionDate: time.Now(),
			ReferenceUID:    &referenceUID,
			Status:          models.StatusPending,
			CreatedBy:       "customer-uid",
		}

		mock.ExpectExec("INSERT INTO transactions \\(uid, customer_id, type, amount, transaction_date, status, description, reference_uid, created_by\\) VALUES \\(\\$1, \\$2, \\$3, \\$4, \\$5, \\$6, \\$7, \\$8, \\$9\\)").
			WithArgs(entry.UID, entry.CustomerID, "PARTIAL_REFUND", entry.Amount, entry.TransactionDate, "PENDING", "damaged goods", referenceUID, "customer-uid").
			WillReturnResult(sqlmock.NewResult(1, 1))

		err := ledger.Insert(ctx, db, entry)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate uid surfaces as unique violation", func(t *testing.T) {
		entry := models.Transaction{
			UID:             uuid.New(),
			CustomerID:      7,
			Type:            models.TypePurchase,
			Amount:          decimal.RequireFromString("10.00"),
			TransactionDate: time.Now(),
			Status:          models.StatusPending,
		}

		mock.ExpectExec("INSERT INTO transactions").
			WithArgs(entry.UID, entry.CustomerID, "PURCHASE", entry.Amount, entry.TransactionDate, "PENDING").
			WillReturnError(&pq.Error{Code: "23505"})

		err := ledger.Insert(ctx, db, entry)
		assert.Error(t, err)
		assert.True(t, IsUniqueViolation(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerStore_TransitionStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerStore()
	ctx := context.Background()

	t.Run("single row transitioned", func(t *testing.T) {
		uid := uuid.New()

		mock.ExpectExec("UPDATE transactions SET status = \\$1 WHERE uid = \\$2").
			WithArgs("COMPLETED", uid).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := ledger.TransitionStatus(ctx, db, uid, models.StatusCompleted)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing row reported", func(t *testing.T) {
		uid := uuid.New()

		mock.ExpectExec("UPDATE transactions SET status = \\$1 WHERE uid = \\$2").
			WithArgs("FAILED", uid).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := ledger.TransitionStatus(ctx, db, uid, models.StatusFailed)
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerStore_FindByUID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerStore()
	ctx := context.Background()
	columns := []string{"id", "uid", "customer_id", "type", "amount", "description", "transaction_date", "reference_uid", "status", "created_at", "created_by"}

	t.Run("entry with null optionals", func(t *testing.T) {
		uid := uuid.New()
		now := time.Now()

		mock.ExpectQuery("SELECT id, uid, customer_id, type, amount, description, transaction_date, reference_uid, status, created_at, created_by FROM transactions WHERE uid = \\$1").
			WithArgs(uid).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(3, uid.String(), 7, "PURCHASE", "100.00", nil, now, nil, "COMPLETED", now, nil))

		entry, err := ledger.FindByUID(ctx, db, uid)
		assert.NoError(t, err)
		assert.Equal(t, uid, entry.UID)
		assert.Equal(t, models.TypePurchase, entry.Type)
		assert.Equal(t, models.StatusCompleted, entry.Status)
		assert.True(t, entry.Amount.Equal(decimal.RequireFromString("100.00")))
		assert.Empty(t, entry.Description)
		assert.Nil(t, entry.ReferenceUID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("refund entry resolves reference uid", func(t *testing.T) {
		uid := uuid.New()
		referenceUID := uuid.New()
		now := time.Now()

		mock.ExpectQuery("SELECT .+ FROM transactions WHERE uid = \\$1").
			WithArgs(uid).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(4, uid.String(), 7, "PARTIAL_REFUND", "20.00", "damaged goods", now, referenceUID.String(), "REFUNDED", now, "customer-uid"))

		entry, err := ledger.FindByUID(ctx, db, uid)
		assert.NoError(t, err)
		assert.Equal(t, models.TypePartialRefund, entry.Type)
		assert.Equal(t, "damaged goods", entry.Description)
		assert.NotNil(t, entry.ReferenceUID)
		assert.Equal(t, referenceUID, *entry.ReferenceUID)
		assert.Equal(t, "customer-uid", entry.CreatedBy)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing entry returns nil", func(t *testing.T) {
		uid := uuid.New()

		mock.ExpectQuery("SELECT .+ FROM transactions WHERE uid = \\$1").
			WithArgs(uid).
			WillReturnRows(sqlmock.NewRows(columns))

		entry, err := ledger.FindByUID(ctx, db, uid)
		assert.NoError(t, err)
		assert.Nil(t, entry)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("for update variant locks the row", func(t *testing.T) {
		uid := uuid.New()
		now := time.Now()

		mock.ExpectQuery("SELECT .+ FROM transactions WHERE uid = \\$1 FOR UPDATE").
			WithArgs(uid).
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow(5, uid.String(), 7, "PURCHASE", "100.00", nil, now, nil, "COMPLETED", now, nil))

		entry, err := ledger.FindByUIDForUpdate(ctx, db, uid)
		assert.NoError(t, err)
		assert.Equal(t, uid, entry.UID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerStore_SumNonFailedRefunds(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerStore()
	ctx := context.Background()

	t.Run("aggregates existing refunds", func(t *testing.T) {
		referenceUID := uuid.New()

		mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM transactions WHERE reference_uid = \\$1 AND type = \\$2 AND status <> \\$3").
			WithArgs(referenceUID, "PARTIAL_REFUND", "FAILED").
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("60.00"))

		total, err := ledger.SumNonFailedRefunds(ctx, db, referenceUID)
		assert.NoError(t, err)
		assert.True(t, total.Equal(decimal.RequireFromString("60.00")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero when no refunds exist", func(t *testing.T) {
		referenceUID := uuid.New()

		mock.ExpectQuery("SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM transactions").
			WithArgs(referenceUID, "PARTIAL_REFUND", "FAILED").
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow("0"))

		total, err := ledger.SumNonFailedRefunds(ctx, db, referenceUID)
		assert.NoError(t, err)
		assert.True(t, total.IsZero())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
