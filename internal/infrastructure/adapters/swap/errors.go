package swap

import "fmt"

// ErrorResponse represents a swap API error response
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("swap API error [%d]: %s (code: %s)", e.StatusCode, e.Message, e.Code)
}

func (e *ErrorResponse) IsNotFound() bool {
	return e.StatusCode == 404
}

func (e *ErrorResponse) IsRateLimited() bool {
	return e.StatusCode == 429
}

// ErrInsufficientLiquidity indicates the venue cannot fill the amount
var ErrInsufficientLiquidity = fmt.Errorf("insufficient liquidity for amount")
