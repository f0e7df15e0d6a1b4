package app

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/predictpro/credit-service/internal/domain"
)

// AccessPrediction unlocks one prediction for userID and records the access.
// It returns an error matching ErrInsufficientBalance when neither the free
// allowance nor the balance can cover it.
func (s *Service) AccessPrediction(ctx context.Context, userID uuid.UUID, req domain.PredictionAccessRequest) (*domain.PredictionAccessResponse, error) {
	kind := strings.ToLower(strings.TrimSpace(req.Kind))
	identifier := strings.TrimSpace(req.Identifier)
	if !domain.IsValidPredictionKind(kind) {
		return nil, validationError("prediction type must be %q or %q", domain.PredictionKindFootball, domain.PredictionKindForex)
	}
	if identifier == "" {
		return nil, validationError("prediction identifier is required")
	}

	grant, err := s.ledger.TryConsumeAccess(ctx, userID, s.cfg.AccessCost)
	if err != nil {
		return nil, err
	}
	if !grant.Granted {
		return nil, &InsufficientBalanceError{Required: s.cfg.AccessCost, Balance: grant.Ledger.Balance}
	}

	record := &domain.AccessRecord{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       kind,
		Identifier: identifier,
		IsFree:     grant.WasFree,
		Cost:       grant.Cost,
	}
	// The credit has already been consumed; a failed audit write is logged, not surfaced.
	if err := s.repo.CreateAccessRecord(ctx, record); err != nil {
		log.Printf("level=error component=ledger msg=\"access record write failed\" user_id=%s kind=%s identifier=%q err=%v", userID, kind, identifier, err)
	}

	log.Printf("level=info component=ledger msg=\"prediction unlocked\" user_id=%s kind=%s free=%t cost=%s", userID, kind, grant.WasFree, grant.Cost.StringFixed(2))

	return &domain.PredictionAccessResponse{
		AccessID:                 record.ID,
		Kind:                     kind,
		Identifier:               identifier,
		IsFree:                   grant.WasFree,
		Cost:                     grant.Cost,
		FreePredictionsRemaining: s.ledger.freeRemaining(grant.Ledger),
		Balance:                  grant.Ledger.Balance,
	}, nil
}

// GetAccessStatus returns the user's ledger snapshot.
func (s *Service) GetAccessStatus(ctx context.Context, userID uuid.UUID) (*domain.LedgerSnapshot, error) {
	return s.ledger.Snapshot(ctx, userID, s.cfg.AccessCost)
}

// GetAccessHistory returns the user's most recent unlocks.
func (s *Service) GetAccessHistory(ctx context.Context, userID uuid.UUID) ([]domain.AccessRecord, error) {
	return s.repo.FindAccessRecordsByUserID(ctx, userID, historyLimit)
}
