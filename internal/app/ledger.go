package app

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/predictpro/credit-service/internal/domain"
	"github.com/predictpro/credit-service/internal/store"
	"github.com/shopspring/decimal"
)

// Ledger applies atomic changes to a user's balance and free-prediction allowance.
// Top-up credits are not exposed here: they are applied by the finalizer inside the
// same transaction that completes the payment.
type Ledger struct {
	repo      store.Repository
	freeLimit int
}

// NewLedger creates a ledger granting freeLimit free predictions per user.
func NewLedger(repo store.Repository, freeLimit int) *Ledger {
	return &Ledger{repo: repo, freeLimit: freeLimit}
}

// FreeLimit returns the number of free predictions each user gets.
func (l *Ledger) FreeLimit() int {
	return l.freeLimit
}

// GrantFreeAccess consumes one free prediction if any remain.
func (l *Ledger) GrantFreeAccess(ctx context.Context, userID uuid.UUID) (*domain.Ledger, bool, error) {
	return l.repo.GrantFreeAccess(ctx, userID, l.freeLimit)
}

// Debit subtracts cost if the balance covers it. A false result leaves the balance untouched.
func (l *Ledger) Debit(ctx context.Context, userID uuid.UUID, cost decimal.Decimal) (*domain.Ledger, bool, error) {
	if !cost.IsPositive() {
		return nil, false, validationError("debit amount must be positive")
	}
	return l.repo.DebitBalance(ctx, userID, cost)
}

// TryConsumeAccess unlocks one prediction, preferring the free allowance over the balance.
func (l *Ledger) TryConsumeAccess(ctx context.Context, userID uuid.UUID, cost decimal.Decimal) (*domain.AccessGrant, error) {
	ledger, granted, err := l.GrantFreeAccess(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("grant free access: %w", err)
	}
	if granted {
		return &domain.AccessGrant{Granted: true, WasFree: true, Cost: decimal.Zero, Ledger: ledger}, nil
	}

	ledger, debited, err := l.Debit(ctx, userID, cost)
	if err != nil {
		return nil, fmt.Errorf("debit balance: %w", err)
	}
	if !debited {
		log.Printf("level=info component=ledger msg=\"access refused; insufficient balance\" user_id=%s balance=%s cost=%s", userID, ledger.Balance.StringFixed(2), cost.StringFixed(2))
		return &domain.AccessGrant{Granted: false, Cost: cost, Ledger: ledger}, nil
	}
	return &domain.AccessGrant{Granted: true, WasFree: false, Cost: cost, Ledger: ledger}, nil
}

// Snapshot returns the ledger together with the derived access figures.
func (l *Ledger) Snapshot(ctx context.Context, userID uuid.UUID, nextCost decimal.Decimal) (*domain.LedgerSnapshot, error) {
	ledger, err := l.repo.FindLedgerByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return l.snapshotOf(ledger, nextCost), nil
}

func (l *Ledger) snapshotOf(ledger *domain.Ledger, nextCost decimal.Decimal) *domain.LedgerSnapshot {
	remaining := l.freeRemaining(ledger)
	cost := nextCost
	if remaining > 0 {
		cost = decimal.Zero
	}
	return &domain.LedgerSnapshot{
		FreePredictionsUsed:      ledger.FreePredictionsUsed,
		FreePredictionsRemaining: remaining,
		TotalPredictionsAccessed: ledger.TotalPredictionsAccessed,
		Balance:                  ledger.Balance,
		NextPredictionCost:       cost,
	}
}

func (l *Ledger) freeRemaining(ledger *domain.Ledger) int {
	remaining := l.freeLimit - ledger.FreePredictionsUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}
