/**
 * @description
 * Scheduled job implementations for the credit service.
 */
package app

import (
	"context"
	"log/slog"
	"time"
)

// PaymentSweeper resolves payments stuck in pending.
type PaymentSweeper interface {
	ExpireStalePayments(ctx context.Context) (*SweepSummary, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	sweeper PaymentSweeper
	logger  *slog.Logger
	timeout time.Duration
}

// NewJobs creates a new Jobs runner. Each run is bounded by timeout.
func NewJobs(sweeper PaymentSweeper, logger *slog.Logger, timeout time.Duration) *Jobs {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Jobs{
		sweeper: sweeper,
		logger:  logger,
		timeout: timeout,
	}
}

// SweepPendingPayments expires or completes payments left pending past their TTL.
func (j *Jobs) SweepPendingPayments() {
	j.logger.Info("starting pending payment sweep job")
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	summary, err := j.sweeper.ExpireStalePayments(ctx)
	if err != nil {
		j.logger.Error("pending payment sweep failed", "error", err)
		return
	}

	j.logger.Info("pending payment sweep job finished",
		"examined", summary.Examined,
		"completed", summary.Completed,
		"expired", summary.Expired,
		"skipped", summary.Skipped,
	)
}
