/**
 * @description
 * This file defines the core domain models for the credit service: the Payment record
 * that tracks one M-Pesa push-payment attempt, the user's credit Ledger, and the DTOs
 * exchanged with the HTTP layer.
 *
 * @notes
 * - USD amounts and balances use decimal.Decimal to avoid floating-point drift.
 * - Local (KES) amounts are whole shillings, as the gateway only accepts integers.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Payment statuses. Anything other than pending is terminal.
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
)

// Payment purposes.
const (
	PurposePredictionAccess = "prediction_access"
	PurposeBalanceTopup     = "balance_topup"
)

const (
	CurrencyUSD = "USD"
	CurrencyKES = "KES"
)

// Payment represents one push-payment attempt.
// This struct maps directly to the `payments` table in the database.
type Payment struct {
	ID                   uuid.UUID        `json:"id"`
	UserID               uuid.UUID        `json:"user_id"`
	Amount               decimal.Decimal  `json:"amount"`
	LocalAmount          int64            `json:"local_amount"`
	Currency             string           `json:"currency"`
	LocalCurrency        string           `json:"local_currency"`
	Purpose              string           `json:"purpose"`
	PredictionsPurchased int              `json:"predictions_purchased"`
	PhoneNumber          string           `json:"phone_number"`
	Status               string           `json:"status"`
	CheckoutRequestID    *string          `json:"checkout_request_id,omitempty"`
	MerchantRequestID    *string          `json:"merchant_request_id,omitempty"`
	ReceiptNumber        *string          `json:"receipt_number,omitempty"`
	FailureReason        *string          `json:"failure_reason,omitempty"`
	PaidAmount           *decimal.Decimal `json:"paid_amount,omitempty"`
	PayerPhone           *string          `json:"payer_phone,omitempty"`
	CompletedAt          *time.Time       `json:"completed_at,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// IsTerminal reports whether the payment has left the pending state.
func (p *Payment) IsTerminal() bool {
	return p.Status != PaymentStatusPending
}

// IsValidPurpose reports whether purpose is a known payment purpose.
func IsValidPurpose(purpose string) bool {
	return purpose == PurposePredictionAccess || purpose == PurposeBalanceTopup
}

// IsTerminalPaymentStatus reports whether status is one of the final outcomes.
func IsTerminalPaymentStatus(status string) bool {
	switch status {
	case PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	default:
		return false
	}
}

// InitiatePaymentRequest is the DTO for incoming STK push initiation requests.
type InitiatePaymentRequest struct {
	Amount           decimal.Decimal `json:"amount"`
	PhoneNumber      string          `json:"phone_number"`
	Purpose          string          `json:"purpose"`
	PredictionsCount int             `json:"predictions_count,omitempty"`
}

// InitiatePaymentResult is returned to the caller once the gateway accepted the push.
type InitiatePaymentResult struct {
	PaymentID         uuid.UUID       `json:"payment_id"`
	CheckoutRequestID string          `json:"checkout_request_id"`
	MerchantRequestID string          `json:"merchant_request_id"`
	CustomerMessage   string          `json:"customer_message"`
	Amount            decimal.Decimal `json:"amount"`
	LocalAmount       int64           `json:"local_amount"`
	LocalCurrency     string          `json:"local_currency"`
	PhoneNumber       string          `json:"phone_number"`
}

// QueryStatusRequest is the DTO for explicit status polls.
type QueryStatusRequest struct {
	CheckoutRequestID string `json:"checkout_request_id"`
}

// StatusResult is the outcome of a status poll against the gateway.
type StatusResult struct {
	Success           bool   `json:"success"`
	Pending           bool   `json:"pending"`
	ResultCode        string `json:"result_code"`
	ResultDesc        string `json:"result_desc"`
	CheckoutRequestID string `json:"checkout_request_id"`
	PaymentStatus     string `json:"payment_status,omitempty"`
}

// PaymentInstructions describes how a user pays, served to clients before initiation.
type PaymentInstructions struct {
	Method        string          `json:"method"`
	BusinessName  string          `json:"business_name"`
	BusinessPhone string          `json:"business_phone,omitempty"`
	Shortcode     string          `json:"shortcode,omitempty"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
	Currency      string          `json:"currency"`
	LocalCurrency string          `json:"local_currency"`
	MinimumAmount decimal.Decimal `json:"minimum_amount"`
	AccessCost    decimal.Decimal `json:"access_cost"`
	Steps         []string        `json:"steps"`
}

// CallbackAck is the body returned to the gateway for every webhook delivery.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}
