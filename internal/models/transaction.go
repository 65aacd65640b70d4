package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType is the kind of monetary movement.
type TransactionType string

const (
	TypeTopUp         TransactionType = "TOP_UP"
	TypePurchase      TransactionType = "PURCHASE"
	TypePartialRefund TransactionType = "PARTIAL_REFUND"
)

// TransactionStatus is the lifecycle state of a ledger entry.
// Entries are created PENDING and move exactly once to a terminal state.
type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusRefunded  TransactionStatus = "REFUNDED"
	StatusFailed    TransactionStatus = "FAILED"
)

// Terminal reports whether s is a terminal status.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRefunded || s == StatusFailed
}

// Transaction is a single ledger entry. The uid doubles as the
// idempotency key: it is supplied by the caller, unique, and never reused.
// ReferenceUID points at the refunded PURCHASE entry and is set only for
// PARTIAL_REFUND rows.
type Transaction struct {
	ID              int64             `json:"-" db:"id"`
	UID             uuid.UUID         `json:"uid" db:"uid"`
	CustomerID      int64             `json:"-" db:"customer_id"`
	Type            TransactionType   `json:"type" db:"type"`
	Amount          decimal.Decimal   `json:"amount" db:"amount"`
	Description     string            `json:"description,omitempty" db:"description"`
	TransactionDate time.Time         `json:"transaction_date" db:"transaction_date"`
	ReferenceUID    *uuid.UUID        `json:"reference_uid,omitempty" db:"reference_uid"`
	Status          TransactionStatus `json:"status" db:"status"`
	CreatedAt       time.Time         `json:"created_at" db:"created_at"`
	CreatedBy       string            `json:"created_by,omitempty" db:"created_by"`
}
