package bridge

import "fmt"

// ErrorResponse represents a bridge API error response
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("bridge API error [%d]: %s (code: %s)", e.StatusCode, e.Message, e.Code)
}

func (e *ErrorResponse) IsNotFound() bool {
	return e.StatusCode == 404
}

func (e *ErrorResponse) IsRateLimited() bool {
	return e.StatusCode == 429
}

// ErrTransferNotFound indicates the provider has no record of the transfer
var ErrTransferNotFound = fmt.Errorf("transfer not found")
