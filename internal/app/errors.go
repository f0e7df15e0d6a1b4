package app

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrGatewayRequest        = errors.New("payment gateway request failed")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrRateLimited           = errors.New("rate limit exceeded")
	ErrPaymentNotCancellable = errors.New("payment can no longer be cancelled")
)

// GatewayRequestError wraps a failed STK push or query, including token failures.
type GatewayRequestError struct {
	Op  string
	Err error
}

func (e *GatewayRequestError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayRequestError) Unwrap() error { return e.Err }

func (e *GatewayRequestError) Is(target error) bool { return target == ErrGatewayRequest }

// InsufficientBalanceError carries the numbers a client needs to prompt a top-up.
type InsufficientBalanceError struct {
	Required decimal.Decimal
	Balance  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: required %s, available %s", e.Required.StringFixed(2), e.Balance.StringFixed(2))
}

func (e *InsufficientBalanceError) Is(target error) bool { return target == ErrInsufficientBalance }

// RateLimitError reports how long the caller should wait.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded; retry after %ds", e.RetryAfterSeconds)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

func validationError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
