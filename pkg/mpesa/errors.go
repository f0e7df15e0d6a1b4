package mpesa

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrGatewayAuth is matched by every failure to obtain an access token.
var ErrGatewayAuth = errors.New("mpesa: access token request failed")

// ErrorCodeTransactionProcessing is returned by the STK query endpoint while the
// customer has not yet answered the push prompt.
const ErrorCodeTransactionProcessing = "500.001.1001"

// AuthError describes a failed token exchange.
type AuthError struct {
	StatusCode int
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("mpesa: access token request failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("mpesa: access token request failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *AuthError) Is(target error) bool { return target == ErrGatewayAuth }

// APIError represents a non-2xx response from the Daraja API.
type APIError struct {
	StatusCode int    `json:"-"`
	RequestID  string `json:"requestId"`
	Code       string `json:"errorCode"`
	Message    string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	if e.Code != "" || e.Message != "" {
		return fmt.Sprintf("mpesa api error (status %d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("mpesa api error (status %d)", e.StatusCode)
}

// IsTransactionProcessing reports whether err is the gateway's "still processing" answer.
func IsTransactionProcessing(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == ErrorCodeTransactionProcessing
}

// IsRequestRejected reports whether err is a definitive 4xx answer about the request
// itself, such as an unknown or malformed CheckoutRequestID. Credential, throttling
// and routing failures are excluded since retrying later may succeed.
func IsRequestRejected(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code == ErrorCodeTransactionProcessing {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}
