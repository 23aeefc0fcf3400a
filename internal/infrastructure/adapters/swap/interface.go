package swap

import "context"

// SwapClient defines the interface for token-to-USDC conversion
type SwapClient interface {
	// GetQuote returns an indicative USDC output for an amount
	GetQuote(ctx context.Context, req QuoteRequest) (*QuoteResponse, error)

	// Execute converts the amount to USDC. Safe to retry with the same
	// idempotency key.
	Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error)
}

// Ensure Client implements SwapClient interface
var _ SwapClient = (*Client)(nil)
