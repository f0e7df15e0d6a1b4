/**
 * @description
 * This file contains the HTTP handlers for the credit service's API endpoints.
 * Handlers parse incoming requests, call the application service, and map its
 * results and errors onto HTTP responses.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

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
	"github.com/predictpro/credit-service/internal/app"
	"github.com/predictpro/credit-service/internal/domain"
	"github.com/predictpro/credit-service/internal/store"
)

const maxCallbackBodyBytes = 1 << 20

// CreditService is the application surface the handlers depend on.
type CreditService interface {
	InitiatePayment(ctx context.Context, userID uuid.UUID, req domain.InitiatePaymentRequest) (*domain.InitiatePaymentResult, error)
	HandleCallback(ctx context.Context, body []byte, token string) domain.CallbackAck
	QueryStatusForUser(ctx context.Context, userID uuid.UUID, checkoutRequestID string) (*domain.StatusResult, error)
	PaymentInstructions() domain.PaymentInstructions
	GetPayment(ctx context.Context, userID, paymentID uuid.UUID) (*domain.Payment, error)
	GetPaymentHistory(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error)
	CancelPayment(ctx context.Context, userID, paymentID uuid.UUID) (*domain.Payment, error)
	AccessPrediction(ctx context.Context, userID uuid.UUID, req domain.PredictionAccessRequest) (*domain.PredictionAccessResponse, error)
	GetAccessStatus(ctx context.Context, userID uuid.UUID) (*domain.LedgerSnapshot, error)
	GetAccessHistory(ctx context.Context, userID uuid.UUID) ([]domain.AccessRecord, error)
}

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service CreditService
}

// NewHandlers creates a new instance of Handlers.
func NewHandlers(service CreditService) *Handlers {
	return &Handlers{service: service}
}

// InitiatePaymentHandler starts an STK push for the authenticated user.
func (h *Handlers) InitiatePaymentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeErrorJSON(w, http.StatusUnauthorized, "Could not get user ID from context")
		return
	}

	var req domain.InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.InitiatePayment(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, "initiate_payment", userID, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Payment request sent to your phone. Enter your M-Pesa PIN to complete the payment.",
		"data":    result,
	})
}

// MpesaCallbackHandler receives the gateway's STK result. It always answers 200 so
// the gateway does not redeliver; the outcome is carried in the ack body.
func (h *Handlers) MpesaCallbackHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBodyBytes))
	if err != nil {
		log.Printf("level=warn component=api endpoint=mpesa_callback msg=\"failed to read body\" err=%v", err)
		writeJSON(w, http.StatusOK, domain.CallbackAck{ResultCode: 1, ResultDesc: "Callback processing failed"})
		return
	}

	ack := h.service.HandleCallback(r.Context(), body, r.URL.Query().Get("token"))
	writeJSON(w, http.StatusOK, ack)
}

// QueryPaymentStatusHandler polls the gateway for one of the user's payments.
func (h *Handlers) QueryPaymentStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeErrorJSON(w, http.StatusUnauthorized, "Could not get user ID from context")
		return
	}

	var req domain.QueryStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.service.QueryStatusForUser(r.Context(), userID, req.CheckoutRequestID)
	if err != nil {
		h.writeServiceError(w, "query_payment_status", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// PaymentInstructionsHandler describes how to pay, including the live exchange rate.
func (h *Handlers) PaymentInstructionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.PaymentInstructions())
}

// PaymentHistoryHandler lists the user's recent payments.
func (h *Handlers) PaymentHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeErrorJSON(w, http.StatusUnauthorized, "Could not get user ID from context")
		return
	}

	payments, err := h.service.GetPaymentHistory(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "payment_history", userID, err)
		return
	}
	if payments == nil {
		payments = []domain.Payment{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payments": payments})
}

// GetPaymentHandler returns one of the user's payments.
func (h *Handlers) GetPaymentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeErrorJSON(w, http.StatusUnauthorized, "Could not get user ID from context")
		return
	}
	paymentID, err := uuid.Parse(chi.URLParam(r, "paymentID"))
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "Invalid payment ID")
		return
	}

	payment, err := h.service.GetPayment(r.Context(), userID, paymentID)
	if err != nil {
		h.writeServiceError(w, "get_payment", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// CancelPaymentHandler aborts one of the user's pending payments.
func (h *Handlers) CancelPaymentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeErrorJSON(w, http.StatusUnauthorized, "Could not get user ID from context")
		return
	}
	paymentID, err := uuid.Parse(chi.URLParam(r, "paymentID"))
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "Invalid payment ID")
		return
	}

	payment, err := h.service.CancelPayment(r.Context(), userID, paymentID)
	if err != nil {
		h.writeServiceError(w, "cancel_payment", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

// AccessPredictionHandler unlocks a prediction against the user's credits.
func (h *Handlers) AccessPredictionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeErrorJSON(w, http.StatusUnauthorized, "Could not get user ID from context")
		return
	}

	var req domain.PredictionAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.service.AccessPrediction(r.Context(), userID, req)
	if err != nil {
		h.writeServiceError(w, "access_prediction", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// AccessStatusHandler returns the user's credit ledger snapshot.
func (h *Handlers) AccessStatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeErrorJSON(w, http.StatusUnauthorized, "Could not get user ID from context")
		return
	}

	snapshot, err := h.service.GetAccessStatus(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "access_status", userID, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// AccessHistoryHandler lists the user's recent prediction unlocks.
func (h *Handlers) AccessHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeErrorJSON(w, http.StatusUnauthorized, "Could not get user ID from context")
		return
	}

	records, err := h.service.GetAccessHistory(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "access_history", userID, err)
		return
	}
	if records == nil {
		records = []domain.AccessRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accesses": records})
}

func (h *Handlers) writeServiceError(w http.ResponseWriter, endpoint string, userID uuid.UUID, err error) {
	var balanceErr *app.InsufficientBalanceError
	var rateErr *app.RateLimitError

	switch {
	case errors.Is(err, app.ErrValidation):
		writeErrorJSON(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &balanceErr):
		writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error":    "Insufficient balance",
			"required": balanceErr.Required,
			"balance":  balanceErr.Balance,
		})
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		writeErrorJSON(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
	case errors.Is(err, store.ErrPaymentNotFound):
		writeErrorJSON(w, http.StatusNotFound, "Payment not found")
	case errors.Is(err, store.ErrUserNotFound):
		writeErrorJSON(w, http.StatusNotFound, "User not found")
	case errors.Is(err, app.ErrPaymentNotCancellable):
		writeErrorJSON(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrGatewayRequest):
		log.Printf("level=warn component=api endpoint=%s outcome=gateway_error user_id=%s err=%v", endpoint, userID, err)
		writeErrorJSON(w, http.StatusBadGateway, "M-Pesa request failed. Please try again.")
	default:
		log.Printf("level=error component=api endpoint=%s outcome=internal_error user_id=%s err=%v", endpoint, userID, err)
		writeErrorJSON(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeErrorJSON is a helper for writing JSON error responses.
func writeErrorJSON(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
