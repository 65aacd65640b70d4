package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Customer represents a bank customer and the single balance ledgered
// against them. The internal id is the surrogate key; the uid is the
// stable client-facing identifier.
type Customer struct {
	ID          int64           `json:"-" db:"id"`
	UID         uuid.UUID       `json:"uid" db:"uid"`
	Name        string          `json:"name" db:"name"`
	Surname     string          `json:"surname" db:"surname"`
	BirthDate   *time.Time      `json:"birth_date,omitempty" db:"birth_date"`
	PhoneNumber string          `json:"phone_number" db:"phone_number"`
	Balance     decimal.Decimal `json:"balance" db:"balance"`
}
