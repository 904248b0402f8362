package tonapi

import "fmt"

// ErrorResponse represents a tonapi error response
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Message    string `json:"error"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("tonapi error [%d]: %s", e.StatusCode, e.Message)
}

func (e *ErrorResponse) IsNotFound() bool {
	return e.StatusCode == 404
}

func (e *ErrorResponse) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsRetryable is true for throttling and server-side failures.
func (e *ErrorResponse) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
