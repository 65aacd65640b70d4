package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smallbank/backend/internal/services"
)

type QRHandler struct {
	service   *services.QRService
	validator *services.ValidationHelper
}

func NewQRHandler(service *services.QRService) *QRHandler {
	return &QRHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// GenerateQR creates a single-use payment code for the authenticated
// customer and the requested amount.
func (h *QRHandler) GenerateQR(w http.ResponseWriter, r *http.Request) {
	raw, ok := r.Context().Value("customerUID").(string)
	if !ok || raw == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}
	customerUID, err := uuid.Parse(raw)
	if err != nil {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount" validate:"required"`
	}

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

	if !req.Amount.IsPositive() {
		services.SendErrorResponse(w, "Amount must be greater than zero", http.StatusBadRequest, nil)
		return
	}

	code, qrImage, err := h.service.GenerateQRCode(r.Context(), customerUID, req.Amount)
	if err != nil {
		if errors.Is(err, services.ErrQRStoreUnavailable) {
			services.SendErrorResponse(w, "QR codes are temporarily unavailable", http.StatusServiceUnavailable, nil)
			return
		}
		services.SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"qrCode":  code,
		"qrImage": qrImage,
	})
}

// RedeemQR resolves a scanned payment code to its payload, consuming it.
func (h *QRHandler) RedeemQR(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QRData string `json:"qrData" validate:"required"`
	}

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

	payload, err := h.service.RedeemQRCode(r.Context(), req.QRData)
	if err != nil {
		var notFound *services.NotFoundError
		if errors.As(err, &notFound) {
			services.SendErrorResponse(w, notFound.Message, http.StatusNotFound, nil)
			return
		}
		if errors.Is(err, services.ErrQRStoreUnavailable) {
			services.SendErrorResponse(w, "QR codes are temporarily unavailable", http.StatusServiceUnavailable, nil)
			return
		}
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success": true,
		"data":    payload,
	})
}
