package entities

import "github.com/google/uuid"

// ErrorResponse is the common error payload returned by all endpoints
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// QueueTipRequest carries one confirmed source-chain tip transaction
type QueueTipRequest struct {
	TxHash          string `json:"transaction_hash" binding:"required"`
	ChainID         int64  `json:"chain_id" binding:"required"`
	TokenAddress    string `json:"token_address" binding:"required"`
	Amount          string `json:"amount" binding:"required"`
	StreamerAddress string `json:"streamer_address" binding:"required"`
	BusinessAddress string `json:"business_address,omitempty"`
	Message         string `json:"message,omitempty"`
}

// QueueTipResponse returns the id of the batch the tip was grouped into
type QueueTipResponse struct {
	SettlementID uuid.UUID `json:"settlement_id"`
}

// ManualSettleRequest forces an immediate close of matching open groups.
// Chain and token narrow the scope; zero values mean all.
type ManualSettleRequest struct {
	StreamerAddress string `json:"streamer_address" binding:"required"`
	ChainID         int64  `json:"chain_id,omitempty"`
	TokenAddress    string `json:"token_address,omitempty"`
}

// ManualSettleResponse lists the batches the request closed
type ManualSettleResponse struct {
	TriggeredBatchIDs []uuid.UUID `json:"triggered_batch_ids"`
}

// ProcessBatchRequest triggers processing of one closed batch
type ProcessBatchRequest struct {
	BatchID uuid.UUID `json:"batch_id" binding:"required"`
}

// ProcessBatchResponse reports the outcome of a processing run
type ProcessBatchResponse struct {
	BatchID    uuid.UUID        `json:"batch_id"`
	Status     SettlementStatus `json:"status"`
	DestTxHash string           `json:"dest_tx_hash,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// StatusResponse is the point-in-time status of one settlement
type StatusResponse struct {
	SettlementID uuid.UUID        `json:"settlement_id"`
	Status       SettlementStatus `json:"status"`
}
