package entities

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSettlementStatusTransitions(t *testing.T) {
	tests := []struct {
		from    SettlementStatus
		to      SettlementStatus
		allowed bool
	}{
		{SettlementStatusPending, SettlementStatusBatching, true},
		{SettlementStatusBatching, SettlementStatusConverting, true},
		{SettlementStatusConverting, SettlementStatusBridging, true},
		{SettlementStatusConverting, SettlementStatusFailed, true},
		{SettlementStatusBridging, SettlementStatusCompleted, true},
		{SettlementStatusBridging, SettlementStatusFailed, true},
		{SettlementStatusFailed, SettlementStatusConverting, true},

		{SettlementStatusPending, SettlementStatusConverting, false},
		{SettlementStatusPending, SettlementStatusCompleted, false},
		{SettlementStatusBatching, SettlementStatusCompleted, false},
		{SettlementStatusCompleted, SettlementStatusConverting, false},
		{SettlementStatusCompleted, SettlementStatusFailed, false},
		{SettlementStatusFailed, SettlementStatusBridging, false},
		{SettlementStatusBridging, SettlementStatusConverting, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to),
			"%s -> %s", tt.from, tt.to)
	}
}

func TestSettlementStatusIsTerminal(t *testing.T) {
	assert.True(t, SettlementStatusCompleted.IsTerminal())
	assert.True(t, SettlementStatusFailed.IsTerminal())
	assert.False(t, SettlementStatusPending.IsTerminal())
	assert.False(t, SettlementStatusBatching.IsTerminal())
	assert.False(t, SettlementStatusConverting.IsTerminal())
	assert.False(t, SettlementStatusBridging.IsTerminal())
}

func TestTipKey(t *testing.T) {
	tip := Tip{
		TxHash:          "0xaa",
		ChainID:         137,
		TokenAddress:    "0xtoken",
		Amount:          decimal.NewFromInt(100),
		StreamerAddress: "0xstreamer",
	}

	key := tip.Key()
	assert.Equal(t, "0xstreamer", key.StreamerAddress)
	assert.Equal(t, int64(137), key.ChainID)
	assert.Equal(t, "0xtoken", key.TokenAddress)
	assert.Equal(t, "0xstreamer:137:0xtoken", key.String())
}

func TestTimeframe(t *testing.T) {
	assert.True(t, Timeframe24h.Valid())
	assert.True(t, TimeframeAll.Valid())
	assert.False(t, Timeframe("1y").Valid())

	assert.NotZero(t, Timeframe7d.Duration())
	assert.Zero(t, TimeframeAll.Duration())
}
