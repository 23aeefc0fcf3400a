package bridge

import "context"

// BridgeClient defines the interface for cross-chain USDC transfers
type BridgeClient interface {
	// SubmitTransfer starts a transfer to the destination chain. Safe to
	// retry with the same idempotency key.
	SubmitTransfer(ctx context.Context, req TransferRequest) (*TransferResponse, error)

	// GetTransfer polls the state of an in-flight transfer
	GetTransfer(ctx context.Context, transferID string) (*TransferStatusResponse, error)

	// Health reports provider availability and in-flight load
	Health(ctx context.Context) (*HealthResponse, error)
}

// Ensure Client implements BridgeClient interface
var _ BridgeClient = (*Client)(nil)
