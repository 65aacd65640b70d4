package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smallbank/backend/internal/audit"
	"github.com/smallbank/backend/internal/models"
	"github.com/smallbank/backend/internal/store"
)

const transactionEventsQueue = "transaction_events"

// TransactionRequest is the client-facing shape of a movement request.
// The idempotency key travels separately (it comes from a header, not
// the body) and becomes the ledger entry's uid.
type TransactionRequest struct {
	CustomerUID  uuid.UUID              `json:"customer_uid" validate:"required"`
	Type         models.TransactionType `json:"type" validate:"required,oneof=TOP_UP PURCHASE PARTIAL_REFUND"`
	Amount       decimal.Decimal        `json:"amount" validate:"required"`
	Description  string                 `json:"description,omitempty" validate:"omitempty,max=255"`
	ReferenceUID *uuid.UUID             `json:"reference_uid,omitempty"`
}

// TransactionResult carries the persisted entry plus whether it was an
// idempotent replay of an earlier request.
type TransactionResult struct {
	Transaction *models.Transaction
	Replayed    bool
}

type TransactionService struct {
	db       *sql.DB
	redis    *redis.Client
	accounts *store.AccountStore
	ledger   *store.LedgerStore
	audit    *audit.Logger
}

func NewTransactionService(db *sql.DB, redisClient *redis.Client) *TransactionService {
	return &TransactionService{
		db:       db,
		redis:    redisClient,
		accounts: store.NewAccountStore(),
		ledger:   store.NewLedgerStore(),
		audit:    audit.NewLogger(),
	}
}

// Process runs one monetary movement end to end: idempotency resolution,
// row locking, validation, the PENDING ledger insert, the balance
// mutation and the terminal status transition, all inside a single
// database transaction. idempotencyKey becomes the entry's uid; retries
// under the same key replay the stored outcome without touching the
// balance again. createdBy is the authenticated caller recorded on the
// entry.
func (ts *TransactionService) Process(ctx context.Context, idempotencyKey uuid.UUID, req TransactionRequest, createdBy string) (*TransactionResult, error) {
	if err := ts.validateRequest(req); err != nil {
		ts.audit.LogRejection(idempotencyKey.String(), req.CustomerUID.String(), err)
		return nil, err
	}

	tx, err := ts.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Fast path: a committed entry under this key means the request was
	// already processed. Return it untouched.
	existing, err := ts.ledger.FindByUID(ctx, tx, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		ts.audit.LogReplay(idempotencyKey.String(), req.CustomerUID.String(), string(existing.Status))
		return &TransactionResult{Transaction: existing, Replayed: true}, nil
	}

	// Lock the customer row. Every balance decision for this customer
	// serializes here until commit.
	customer, err := ts.accounts.LockByUID(ctx, tx, req.CustomerUID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		err := NewNotFoundError("Customer with id %s not found", req.CustomerUID)
		ts.audit.LogRejection(idempotencyKey.String(), req.CustomerUID.String(), err)
		return nil, err
	}

	if req.Type != models.TypeTopUp && customer.Balance.LessThan(req.Amount) {
		err := NewInsufficientFundsError("Customer does not have sufficient balance")
		ts.audit.LogRejection(idempotencyKey.String(), req.CustomerUID.String(), err)
		return nil, err
	}

	if req.Type == models.TypePartialRefund {
		if err := ts.validateRefund(ctx, tx, customer, req); err != nil {
			ts.audit.LogRejection(idempotencyKey.String(), req.CustomerUID.String(), err)
			return nil, err
		}
	}

	entry := models.Transaction{
		UID:             idempotencyKey,
		CustomerID:      customer.ID,
		Type:            req.Type,
		Amount:          req.Amount,
		Description:     req.Description,
		TransactionDate: time.Now().UTC(),
		ReferenceUID:    req.ReferenceUID,
		Status:          models.StatusPending,
		CreatedBy:       createdBy,
	}

	if err := ts.ledger.Insert(ctx, tx, entry); err != nil {
		if store.IsUniqueViolation(err) {
			// A concurrent request with the same key won the insert
			// race. Drop our transaction and replay theirs.
			tx.Rollback()
			return ts.replayCommitted(ctx, idempotencyKey, req.CustomerUID)
		}
		return nil, err
	}

	delta := req.Amount
	if req.Type == models.TypePurchase {
		delta = req.Amount.Neg()
	}

	ok, err := ts.accounts.ApplyBalanceDelta(ctx, tx, req.CustomerUID, delta)
	if err != nil {
		return nil, err
	}
	if !ok {
		// The locked row did not take the update. Preserve the entry as
		// FAILED so the attempt stays on the audit trail, then surface
		// the inconsistency.
		if _, err := ts.ledger.TransitionStatus(ctx, tx, entry.UID, models.StatusFailed); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit failed entry %s: %w", entry.UID, err)
		}
		consErr := NewConsistencyError("Balance update for customer %s affected no rows", req.CustomerUID)
		ts.audit.LogRejection(entry.UID.String(), req.CustomerUID.String(), consErr)
		return nil, consErr
	}

	terminal := models.StatusCompleted
	if req.Type == models.TypePartialRefund {
		terminal = models.StatusRefunded
	}
	transitioned, err := ts.ledger.TransitionStatus(ctx, tx, entry.UID, terminal)
	if err != nil {
		return nil, err
	}
	if !transitioned {
		return nil, NewConsistencyError("Transaction %s vanished before completion", entry.UID)
	}
	entry.Status = terminal

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction %s: %w", entry.UID, err)
	}

	ts.audit.LogMovement(entry.UID.String(), req.CustomerUID.String(), string(entry.Type), entry.Amount, string(entry.Status))

	// Queue for downstream consumers (after commit).
	if err := ts.queueTransactionEvent(ctx, &entry, req.CustomerUID); err != nil {
		log.Printf("[TRANSACTION] Failed to queue event for %s: %v", entry.UID, err)
	}

	return &TransactionResult{Transaction: &entry}, nil
}

// TopUp is the convenience entry point for balance credits. Requests
// carrying any other kind are rejected before touching the database.
func (ts *TransactionService) TopUp(ctx context.Context, idempotencyKey uuid.UUID, req TransactionRequest, createdBy string) (*TransactionResult, error) {
	if req.Type != "" && req.Type != models.TypeTopUp {
		return nil, NewValidationError("Transaction type %q is not supported", req.Type)
	}
	req.Type = models.TypeTopUp
	return ts.Process(ctx, idempotencyKey, req, createdBy)
}

func (ts *TransactionService) validateRequest(req TransactionRequest) error {
	if req.CustomerUID == uuid.Nil {
		return NewValidationError("Customer ID is required")
	}
	if !req.Amount.IsPositive() {
		return NewValidationError("Amount must be greater than zero")
	}
	switch req.Type {
	case models.TypeTopUp, models.TypePurchase, models.TypePartialRefund:
	default:
		return NewValidationError("Transaction type %q is not supported", req.Type)
	}
	if req.Type == models.TypePartialRefund && req.ReferenceUID == nil {
		return NewValidationError("Reference transaction ID is required")
	}
	if req.Type != models.TypePartialRefund && req.ReferenceUID != nil {
		return NewValidationError("Reference transaction ID is only allowed for refunds")
	}
	return nil
}

// validateRefund checks refund eligibility against the referenced
// purchase. The purchase row is locked so two concurrent refunds of the
// same purchase serialize before the ceiling is computed.
func (ts *TransactionService) validateRefund(ctx context.Context, tx *sql.Tx, customer *models.Customer, req TransactionRequest) error {
	reference, err := ts.ledger.FindByUIDForUpdate(ctx, tx, *req.ReferenceUID)
	if err != nil {
		return err
	}
	if reference == nil {
		return NewNotFoundError("Refund transaction with Reference uid %s not found", *req.ReferenceUID)
	}
	if reference.CustomerID != customer.ID {
		return NewRefundPolicyError("Referenced transaction does not belong to customer %s", customer.UID)
	}
	if reference.Type != models.TypePurchase {
		return NewRefundPolicyError("Only purchase transactions can be refunded")
	}
	if reference.Status != models.StatusCompleted {
		return NewRefundPolicyError("Referenced transaction %s is not COMPLETED", reference.UID)
	}

	refunded, err := ts.ledger.SumNonFailedRefunds(ctx, tx, reference.UID)
	if err != nil {
		return err
	}
	if refunded.Add(req.Amount).GreaterThan(reference.Amount) {
		return NewRefundPolicyError("Total refunded amount would exceed original transaction amount")
	}
	return nil
}

// replayCommitted re-reads an entry another request committed under the
// same idempotency key. Runs outside any transaction; our own insert
// lost the race and has been rolled back.
func (ts *TransactionService) replayCommitted(ctx context.Context, key, customerUID uuid.UUID) (*TransactionResult, error) {
	committed, err := ts.ledger.FindByUID(ctx, ts.db, key)
	if err != nil {
		return nil, err
	}
	if committed == nil {
		return nil, NewConsistencyError("Transaction %s conflicted on insert but is not readable", key)
	}
	ts.audit.LogReplay(key.String(), customerUID.String(), string(committed.Status))
	return &TransactionResult{Transaction: committed, Replayed: true}, nil
}

func (ts *TransactionService) queueTransactionEvent(ctx context.Context, entry *models.Transaction, customerUID uuid.UUID) error {
	if ts.redis == nil {
		return nil
	}
	payload := map[string]any{
		"uid":          entry.UID,
		"customer_uid": customerUID,
		"type":         entry.Type,
		"amount":       entry.Amount,
		"status":       entry.Status,
		"occurred_at":  entry.TransactionDate,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return ts.redis.RPush(ctx, transactionEventsQueue, data).Err()
}

// GetByUID fetches a single ledger entry.
func (ts *TransactionService) GetByUID(ctx context.Context, uid uuid.UUID) (*models.Transaction, error) {
	entry, err := ts.ledger.FindByUID(ctx, ts.db, uid)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, NewNotFoundError("Transaction with uid %s not found", uid)
	}
	return entry, nil
}

// BalanceFor returns the customer's current balance without locking.
func (ts *TransactionService) BalanceFor(ctx context.Context, customerUID uuid.UUID) (*models.Customer, error) {
	customer, err := ts.accounts.FindByUID(ctx, ts.db, customerUID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, NewNotFoundError("Customer with id %s not found", customerUID)
	}
	return customer, nil
}

// HistoryFor lists a customer's recent ledger entries, newest first.
func (ts *TransactionService) HistoryFor(ctx context.Context, customerUID uuid.UUID, limit int) ([]models.Transaction, error) {
	customer, err := ts.accounts.FindByUID(ctx, ts.db, customerUID)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, NewNotFoundError("Customer with id %s not found", customerUID)
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return ts.ledger.ListByCustomerID(ctx, ts.db, customer.ID, limit)
}
