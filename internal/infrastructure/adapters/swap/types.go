package swap

import "github.com/shopspring/decimal"

// QuoteRequest asks for an indicative conversion rate
type QuoteRequest struct {
	ChainID      int64           `json:"chain_id"`
	TokenAddress string          `json:"token_address"`
	Amount       decimal.Decimal `json:"amount"`
}

// QuoteResponse carries the indicative USDC output for a quote
type QuoteResponse struct {
	QuoteID      string          `json:"quote_id"`
	AmountOut    decimal.Decimal `json:"amount_out"`
	FeeEstimate  decimal.Decimal `json:"fee_estimate"`
	ExpiresAtSec int64           `json:"expires_at"`
}

// ExecuteRequest submits a conversion. IdempotencyKey makes retried
// submissions return the original execution instead of converting twice.
type ExecuteRequest struct {
	IdempotencyKey string          `json:"idempotency_key"`
	ChainID        int64           `json:"chain_id"`
	TokenAddress   string          `json:"token_address"`
	Amount         decimal.Decimal `json:"amount"`
}

// ExecuteResponse is the settled conversion result
type ExecuteResponse struct {
	ExecutionID string          `json:"execution_id"`
	AmountOut   decimal.Decimal `json:"amount_out"`
	Status      string          `json:"status"`
}
