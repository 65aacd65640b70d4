package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smallbank/backend/internal/models"
	"github.com/smallbank/backend/internal/services"
)

// idempotencyKeyHeader carries the client-generated key that becomes
// the ledger entry uid. Retries must reuse the same value.
const idempotencyKeyHeader = "X-Idempotency-Key"

// TransactionProcessor is the slice of the transaction service the
// handler needs.
type TransactionProcessor interface {
	Process(ctx context.Context, idempotencyKey uuid.UUID, req services.TransactionRequest, createdBy string) (*services.TransactionResult, error)
	TopUp(ctx context.Context, idempotencyKey uuid.UUID, req services.TransactionRequest, createdBy string) (*services.TransactionResult, error)
	GetByUID(ctx context.Context, uid uuid.UUID) (*models.Transaction, error)
	BalanceFor(ctx context.Context, customerUID uuid.UUID) (*models.Customer, error)
	HistoryFor(ctx context.Context, customerUID uuid.UUID, limit int) ([]models.Transaction, error)
}

type TransactionHandler struct {
	service   TransactionProcessor
	validator *services.ValidationHelper
}

func NewTransactionHandler(service TransactionProcessor) *TransactionHandler {
	return &TransactionHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// Create accepts a movement request. The idempotency key arrives in the
// X-Idempotency-Key header; replays return the stored outcome with 200
// instead of 201.
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	createdBy, ok := r.Context().Value("customerUID").(string)
	if !ok || createdBy == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	keyHeader := r.Header.Get(idempotencyKeyHeader)
	if keyHeader == "" {
		services.SendErrorResponse(w, "X-Idempotency-Key header is required", http.StatusBadRequest, nil)
		return
	}
	idempotencyKey, err := uuid.Parse(keyHeader)
	if err != nil {
		services.SendErrorResponse(w, "X-Idempotency-Key must be a valid UUID", http.StatusBadRequest, nil)
		return
	}

	var req services.TransactionRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.service.Process(r.Context(), idempotencyKey, req, createdBy)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"transaction": result.Transaction,
		"replayed":    result.Replayed,
	})
}

// topUpRequest is the body for the top-up shortcut; the movement kind
// is implied by the route.
type topUpRequest struct {
	CustomerUID uuid.UUID       `json:"customer_uid" validate:"required"`
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Description string          `json:"description,omitempty" validate:"omitempty,max=255"`
}

// TopUp credits the customer's balance. Same idempotency contract as
// Create, but the client never names a movement kind.
func (h *TransactionHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	createdBy, ok := r.Context().Value("customerUID").(string)
	if !ok || createdBy == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	keyHeader := r.Header.Get(idempotencyKeyHeader)
	if keyHeader == "" {
		services.SendErrorResponse(w, "X-Idempotency-Key header is required", http.StatusBadRequest, nil)
		return
	}
	idempotencyKey, err := uuid.Parse(keyHeader)
	if err != nil {
		services.SendErrorResponse(w, "X-Idempotency-Key must be a valid UUID", http.StatusBadRequest, nil)
		return
	}

	var body topUpRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&body); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&body); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.service.TopUp(r.Context(), idempotencyKey, services.TransactionRequest{
		CustomerUID: body.CustomerUID,
		Amount:      body.Amount,
		Description: body.Description,
	}, createdBy)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"transaction": result.Transaction,
		"replayed":    result.Replayed,
	})
}

// Get fetches a single ledger entry by uid.
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, err := uuid.Parse(chi.URLParam(r, "uid"))
	if err != nil {
		services.SendErrorResponse(w, "Transaction uid must be a valid UUID", http.StatusBadRequest, nil)
		return
	}

	entry, err := h.service.GetByUID(r.Context(), uid)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// Balance returns the authenticated customer's current balance.
func (h *TransactionHandler) Balance(w http.ResponseWriter, r *http.Request) {
	customerUID, ok := h.authenticatedUID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	customer, err := h.service.BalanceFor(r.Context(), customerUID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"customer_uid": customer.UID,
		"balance":      customer.Balance,
	})
}

// History lists the authenticated customer's recent movements.
func (h *TransactionHandler) History(w http.ResponseWriter, r *http.Request) {
	customerUID, ok := h.authenticatedUID(r)
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}

	transactions, err := h.service.HistoryFor(r.Context(), customerUID, limit)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

func (h *TransactionHandler) authenticatedUID(r *http.Request) (uuid.UUID, bool) {
	raw, ok := r.Context().Value("customerUID").(string)
	if !ok || raw == "" {
		return uuid.Nil, false
	}
	uid, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	return uid, true
}

func (h *TransactionHandler) writeServiceError(w http.ResponseWriter, err error) {
	var (
		validationErr  *services.ValidationError
		notFoundErr    *services.NotFoundError
		fundsErr       *services.InsufficientFundsError
		refundErr      *services.RefundPolicyError
		consistencyErr *services.ConsistencyError
	)

	switch {
	case errors.As(err, &validationErr):
		services.SendErrorResponse(w, validationErr.Message, http.StatusBadRequest, nil)
	case errors.As(err, &notFoundErr):
		services.SendErrorResponse(w, notFoundErr.Message, http.StatusNotFound, nil)
	case errors.As(err, &fundsErr):
		services.SendErrorResponse(w, fundsErr.Message, http.StatusBadRequest, nil)
	case errors.As(err, &refundErr):
		services.SendErrorResponse(w, refundErr.Message, http.StatusBadRequest, nil)
	case errors.As(err, &consistencyErr):
		log.Printf("[TRANSACTION] Consistency failure: %v", err)
		services.SendErrorResponse(w, "Transaction could not be completed", http.StatusInternalServerError, nil)
	default:
		log.Printf("[TRANSACTION] Unexpected error: %v", err)
		services.SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
	}
}
