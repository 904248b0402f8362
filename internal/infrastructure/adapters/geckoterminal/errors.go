package geckoterminal

import "fmt"

// ErrorResponse represents a GeckoTerminal API error
type ErrorResponse struct {
	StatusCode int `json:"-"`
	Errors     []struct {
		Status string `json:"status"`
		Title  string `json:"title"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	title := ""
	if len(e.Errors) > 0 {
		title = e.Errors[0].Title
	}
	return fmt.Sprintf("geckoterminal error [%d]: %s", e.StatusCode, title)
}

func (e *ErrorResponse) IsNotFound() bool {
	return e.StatusCode == 404
}

func (e *ErrorResponse) IsRateLimited() bool {
	return e.StatusCode == 429
}

func (e *ErrorResponse) IsRetryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
