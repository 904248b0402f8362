package signer

import (
	"errors"
	"fmt"
)

// ErrorResponse represents a wallet gateway error
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("wallet gateway error [%d]: %s (code: %s)", e.StatusCode, e.Message, e.Code)
}

func (e *ErrorResponse) IsNotFound() bool {
	return e.StatusCode == 404
}

func (e *ErrorResponse) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// ErrMalformedAmount is returned when the gateway sends a non-integer nanoton amount.
var ErrMalformedAmount = errors.New("malformed nanoton amount")
