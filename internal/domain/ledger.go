package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Prediction kinds a user may unlock.
const (
	PredictionKindFootball = "football"
	PredictionKindForex    = "forex"
)

// Ledger is the per-user credit state. It lives on the `users` row and is only
// changed through the conditional updates in the store.
type Ledger struct {
	UserID                   uuid.UUID       `json:"user_id"`
	PhoneNumber              *string         `json:"phone_number,omitempty"`
	Balance                  decimal.Decimal `json:"balance"`
	FreePredictionsUsed      int             `json:"free_predictions_used"`
	TotalPredictionsAccessed int             `json:"total_predictions_accessed"`
}

// LedgerSnapshot is the ledger plus the values a client needs to render access state.
type LedgerSnapshot struct {
	FreePredictionsUsed      int             `json:"free_predictions_used"`
	FreePredictionsRemaining int             `json:"free_predictions_remaining"`
	TotalPredictionsAccessed int             `json:"total_predictions_accessed"`
	Balance                  decimal.Decimal `json:"balance"`
	NextPredictionCost       decimal.Decimal `json:"next_prediction_cost"`
}

// AccessGrant is the result of trying to consume one prediction access.
type AccessGrant struct {
	Granted bool            `json:"granted"`
	WasFree bool            `json:"was_free"`
	Cost    decimal.Decimal `json:"cost"`
	Ledger  *Ledger         `json:"-"`
}

// AccessRecord is the audit row written for every unlocked prediction.
type AccessRecord struct {
	ID         uuid.UUID       `json:"id"`
	UserID     uuid.UUID       `json:"user_id"`
	Kind       string          `json:"kind"`
	Identifier string          `json:"identifier"`
	IsFree     bool            `json:"is_free"`
	Cost       decimal.Decimal `json:"cost"`
	AccessedAt time.Time       `json:"accessed_at"`
}

// PredictionAccessRequest is the DTO for unlocking a prediction.
type PredictionAccessRequest struct {
	Kind       string `json:"type"`
	Identifier string `json:"identifier"`
}

// PredictionAccessResponse is returned after a successful unlock.
type PredictionAccessResponse struct {
	AccessID                 uuid.UUID       `json:"access_id"`
	Kind                     string          `json:"type"`
	Identifier               string          `json:"identifier"`
	IsFree                   bool            `json:"is_free"`
	Cost                     decimal.Decimal `json:"cost"`
	FreePredictionsRemaining int             `json:"free_predictions_remaining"`
	Balance                  decimal.Decimal `json:"balance"`
}

// IsValidPredictionKind reports whether kind is a known prediction kind.
func IsValidPredictionKind(kind string) bool {
	return kind == PredictionKindFootball || kind == PredictionKindForex
}
