package bridge

import "github.com/shopspring/decimal"

// Transfer status values reported by the bridge provider. Confirmed means
// the provider has seen enough destination-chain depth to call it final.
const (
	TransferStatusPending   = "pending"
	TransferStatusConfirmed = "confirmed"
	TransferStatusFailed    = "failed"
)

// TransferRequest submits a USDC transfer to the destination chain.
// IdempotencyKey makes retried submissions return the original transfer.
type TransferRequest struct {
	IdempotencyKey string          `json:"idempotency_key"`
	SourceChainID  int64           `json:"source_chain_id"`
	DestChainID    int64           `json:"dest_chain_id"`
	Amount         decimal.Decimal `json:"amount"`
	Recipient      string          `json:"recipient"`
}

// TransferResponse acknowledges a submitted transfer
type TransferResponse struct {
	TransferID string          `json:"transfer_id"`
	Status     string          `json:"status"`
	Fee        decimal.Decimal `json:"fee"`
}

// TransferStatusResponse is the polled state of an in-flight transfer
type TransferStatusResponse struct {
	TransferID string `json:"transfer_id"`
	Status     string `json:"status"`
	DestTxHash string `json:"dest_tx_hash"`
	Error      string `json:"error,omitempty"`
}

// HealthResponse reports provider availability
type HealthResponse struct {
	Healthy       bool   `json:"healthy"`
	InFlightCount int    `json:"in_flight_count"`
	Detail        string `json:"detail,omitempty"`
}
