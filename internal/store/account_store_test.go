package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestAccountStore_LockByUID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	accounts := NewAccountStore()
	ctx := context.Background()

	t.Run("existing customer", func(t *testing.T) {
		customerUID := uuid.New()

		mock.ExpectQuery("SELECT id, uid, name, surname, birth_date, phone_number, balance FROM customers WHERE uid = \\$1 FOR UPDATE").
			WithArgs(customerUID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "name", "surname", "birth_date", "phone_number", "balance"}).
				AddRow(1, customerUID.String(), "Jane", "Doe", nil, "+15550001111", "150.00"))

		customer, err := accounts.LockByUID(ctx, db, customerUID)
		assert.NoError(t, err)
		assert.Equal(t, customerUID, customer.UID)
		assert.Equal(t, "Jane", customer.Name)
		assert.True(t, customer.Balance.Equal(decimal.RequireFromString("150.00")))
		assert.Nil(t, customer.BirthDate)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing customer returns nil", func(t *testing.T) {
		customerUID := uuid.New()

		mock.ExpectQuery("SELECT id, uid, name, surname, birth_date, phone_number, balance FROM customers WHERE uid = \\$1 FOR UPDATE").
			WithArgs(customerUID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "name", "surname", "birth_date", "phone_number", "balance"}))

		customer, err := accounts.LockByUID(ctx, db, customerUID)
		assert.NoError(t, err)
		assert.Nil(t, customer)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountStore_ApplyBalanceDelta(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	accounts := NewAccountStore()
	ctx := context.Background()

	t.Run("credit applied", func(t *testing.T) {
		customerUID := uuid.New()
		delta := decimal.RequireFromString("25.00")

		mock.ExpectExec("UPDATE customers SET balance = balance \\+ \\$1 WHERE uid = \\$2").
			WithArgs(delta, customerUID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := accounts.ApplyBalanceDelta(ctx, db, customerUID, delta)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("debit carries negative delta", func(t *testing.T) {
		customerUID := uuid.New()
		delta := decimal.RequireFromString("-40.00")

		mock.ExpectExec("UPDATE customers SET balance = balance \\+ \\$1 WHERE uid = \\$2").
			WithArgs(delta, customerUID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := accounts.ApplyBalanceDelta(ctx, db, customerUID, delta)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows affected reported to caller", func(t *testing.T) {
		customerUID := uuid.New()
		delta := decimal.RequireFromString("10.00")

		mock.ExpectExec("UPDATE customers SET balance = balance \\+ \\$1 WHERE uid = \\$2").
			WithArgs(delta, customerUID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := accounts.ApplyBalanceDelta(ctx, db, customerUID, delta)
		assert.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountStore_FindByUID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	accounts := NewAccountStore()
	ctx := context.Background()

	t.Run("missing customer returns nil", func(t *testing.T) {
		customerUID := uuid.New()

		mock.ExpectQuery("SELECT id, uid, name, surname, birth_date, phone_number, balance FROM customers WHERE uid = \\$1").
			WithArgs(customerUID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "uid", "name", "surname", "birth_date", "phone_number", "balance"}))

		customer, err := accounts.FindByUID(ctx, db, customerUID)
		assert.NoError(t, err)
		assert.Nil(t, customer)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
