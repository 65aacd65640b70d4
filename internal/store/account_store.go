package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smallbank/backend/internal/models"
)

// AccountStore owns customer balance reads and writes. Balance is only
// ever mutated through ApplyBalanceDelta, and only after the row has been
// locked with LockByUID inside the same transaction.
type AccountStore struct{}

func NewAccountStore() *AccountStore {
	return &AccountStore{}
}

// LockByUID reads the customer row under an exclusive row lock held for
// the remainder of the enclosing transaction. Concurrent operations on
// the same customer block here; this is the serialization point for all
// balance decisions. Returns (nil, nil) when the customer does not exist.
func (s *AccountStore) LockByUID(ctx context.Context, dbtx DBTX, uid uuid.UUID) (*models.Customer, error) {
	var c models.Customer
	err := dbtx.QueryRowContext(ctx, `
		SELECT id, uid, name, surname, birth_date, phone_number, balance
		FROM customers
		WHERE uid = $1
		FOR UPDATE`, uid).Scan(
		&c.ID, &c.UID, &c.Name, &c.Surname, &c.BirthDate, &c.PhoneNumber, &c.Balance,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock customer %s: %w", uid, err)
	}
	return &c, nil
}

// ApplyBalanceDelta atomically adds delta (signed) to the stored balance.
// It reports whether exactly one row was affected; zero rows means the
// account vanished and the caller decides how to react.
func (s *AccountStore) ApplyBalanceDelta(ctx context.Context, dbtx DBTX, uid uuid.UUID, delta decimal.Decimal) (bool, error) {
	result, err := dbtx.ExecContext(ctx, `
		UPDATE customers
		SET balance = balance + $1
		WHERE uid = $2`, delta, uid)
	if err != nil {
		return false, fmt.Errorf("update balance for customer %s: %w", uid, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// FindByUID is a plain read used by the enquiry endpoints; it takes no
// lock and must not feed any balance mutation.
func (s *AccountStore) FindByUID(ctx context.Context, dbtx DBTX, uid uuid.UUID) (*models.Customer, error) {
	var c models.Customer
	err := dbtx.QueryRowContext(ctx, `
		SELECT id, uid, name, surname, birth_date, phone_number, balance
		FROM customers
		WHERE uid = $1`, uid).Scan(
		&c.ID, &c.UID, &c.Name, &c.Surname, &c.BirthDate, &c.PhoneNumber, &c.Balance,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find customer %s: %w", uid, err)
	}
	return &c, nil
}
