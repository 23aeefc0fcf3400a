package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SettlementStatus represents the stage of a settlement batch
type SettlementStatus string

const (
	SettlementStatusPending    SettlementStatus = "pending"    // Tips accumulating in the open group
	SettlementStatusBatching   SettlementStatus = "batching"   // Closed, queued for processing
	SettlementStatusConverting SettlementStatus = "converting" // Swap to settlement currency in progress
	SettlementStatusBridging   SettlementStatus = "bridging"   // Transfer to destination chain in progress
	SettlementStatusCompleted  SettlementStatus = "completed"  // Terminal
	SettlementStatusFailed     SettlementStatus = "failed"     // Terminal unless retried
)

// legalTransitions encodes the settlement state machine. failed -> converting
// is the explicit-retry path; everything else moves forward only.
var legalTransitions = map[SettlementStatus][]SettlementStatus{
	SettlementStatusPending:    {SettlementStatusBatching},
	SettlementStatusBatching:   {SettlementStatusConverting},
	SettlementStatusConverting: {SettlementStatusBridging, SettlementStatusFailed},
	SettlementStatusBridging:   {SettlementStatusCompleted, SettlementStatusFailed},
	SettlementStatusFailed:     {SettlementStatusConverting},
}

// CanTransitionTo reports whether moving from s to next is a legal state-machine step
func (s SettlementStatus) CanTransitionTo(next SettlementStatus) bool {
	for _, allowed := range legalTransitions[s] {
		if next == allowed {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status requires no further processing
func (s SettlementStatus) IsTerminal() bool {
	return s == SettlementStatusCompleted || s == SettlementStatusFailed
}

// Tip is one confirmed recipient-directed token transfer observed on a source chain.
// Immutable after creation except for the settlement id stamped when grouped.
type Tip struct {
	TxHash          string          `json:"tx_hash" db:"tx_hash"`
	ChainID         int64           `json:"chain_id" db:"chain_id"`
	TokenAddress    string          `json:"token_address" db:"token_address"`
	Amount          decimal.Decimal `json:"amount" db:"amount"` // smallest token unit, integral
	StreamerAddress string          `json:"streamer_address" db:"streamer_address"`
	BusinessAddress string          `json:"business_address,omitempty" db:"business_address"`
	Message         string          `json:"message,omitempty" db:"message"`
	SettlementID    *uuid.UUID      `json:"settlement_id,omitempty" db:"settlement_id"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// Key returns the aggregation key this tip belongs to
func (t *Tip) Key() SettlementKey {
	return SettlementKey{
		StreamerAddress: t.StreamerAddress,
		ChainID:         t.ChainID,
		TokenAddress:    t.TokenAddress,
	}
}

// SettlementKey identifies one accumulation stream: a streamer on a
// source chain tipping in one token
type SettlementKey struct {
	StreamerAddress string
	ChainID         int64
	TokenAddress    string
}

// String renders the key in a stable form usable for lock striping
func (k SettlementKey) String() string {
	return fmt.Sprintf("%s:%d:%s", k.StreamerAddress, k.ChainID, k.TokenAddress)
}

// Settlement is a batch of tips for one key, processed together through
// conversion and bridging
type Settlement struct {
	ID              uuid.UUID        `json:"id"`
	StreamerAddress string           `json:"streamer_address"`
	BusinessAddress string           `json:"business_address,omitempty"`
	ChainID         int64            `json:"chain_id"`
	TokenAddress    string           `json:"token_address"`
	TotalAmount     decimal.Decimal  `json:"total_amount"`
	TipCount        int              `json:"tip_count"`
	TipHashes       []string         `json:"tip_hashes"`
	Status          SettlementStatus `json:"status"`
	ConvertedAmount decimal.Decimal  `json:"converted_amount,omitempty"`
	PlatformFee     decimal.Decimal  `json:"platform_fee,omitempty"`
	BusinessShare   decimal.Decimal  `json:"business_share,omitempty"`
	StreamerShare   decimal.Decimal  `json:"streamer_share,omitempty"`
	DestTxHash      string           `json:"dest_tx_hash,omitempty"`
	ErrorDetail     string           `json:"error_detail,omitempty"`
	AttemptCount    int              `json:"attempt_count"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Key returns the aggregation key of the settlement
func (s *Settlement) Key() SettlementKey {
	return SettlementKey{
		StreamerAddress: s.StreamerAddress,
		ChainID:         s.ChainID,
		TokenAddress:    s.TokenAddress,
	}
}

// PendingGroup is the currently-accumulating aggregate for a key. Its
// identity is the open settlement it feeds; closing the group detaches it
// and a fresh group opens for the same key.
type PendingGroup struct {
	SettlementID uuid.UUID       `json:"settlement_id"`
	Key          SettlementKey   `json:"key"`
	Amount       decimal.Decimal `json:"amount"`
	TipCount     int             `json:"tip_count"`
	TipHashes    []string        `json:"tip_hashes"`
	OldestTipAt  time.Time       `json:"oldest_tip_at"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// BatchSnapshot is the frozen view of a settlement handed to the
// orchestrator at close time
type BatchSnapshot struct {
	SettlementID    uuid.UUID
	StreamerAddress string
	BusinessAddress string
	ChainID         int64
	TokenAddress    string
	TotalAmount     decimal.Decimal
	TipCount        int
	TipHashes       []string
}

// PendingTotal is the accumulated amount and count for one (chain, token)
type PendingTotal struct {
	Amount decimal.Decimal `json:"amount"`
	Count  int             `json:"count"`
}

// PendingTotals maps chain id -> token address -> accumulated pending total
type PendingTotals map[int64]map[string]PendingTotal

// PendingBatch is the list view of an open group exposed to callers
type PendingBatch struct {
	BatchID         uuid.UUID       `json:"batch_id"`
	StreamerAddress string          `json:"streamer_address"`
	ChainID         int64           `json:"chain_id"`
	TokenAddress    string          `json:"token_address"`
	Amount          decimal.Decimal `json:"amount"`
	Count           int             `json:"count"`
}

// BridgeStatus summarizes provider health for the status query
type BridgeStatus struct {
	Healthy       bool      `json:"healthy"`
	InFlightCount int       `json:"in_flight_count"`
	LastError     string    `json:"last_error,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}
