package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Timeframe bounds an analytics query
type Timeframe string

const (
	Timeframe24h Timeframe = "24h"
	Timeframe7d  Timeframe = "7d"
	Timeframe30d Timeframe = "30d"
	TimeframeAll Timeframe = "all"
)

// Duration returns the lookback window, or zero for the unbounded timeframe
func (t Timeframe) Duration() time.Duration {
	switch t {
	case Timeframe24h:
		return 24 * time.Hour
	case Timeframe7d:
		return 7 * 24 * time.Hour
	case Timeframe30d:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether the timeframe is one of the supported windows
func (t Timeframe) Valid() bool {
	switch t {
	case Timeframe24h, Timeframe7d, Timeframe30d, TimeframeAll:
		return true
	}
	return false
}

// ChainStat aggregates settlements observed on one source chain
type ChainStat struct {
	Count  int             `json:"count"`
	Volume decimal.Decimal `json:"volume"`
}

// TokenStat aggregates settlements denominated in one token
type TokenStat struct {
	Count  int             `json:"count"`
	Volume decimal.Decimal `json:"volume"`
}

// DailyVolumePoint is one day of completed settlement volume
type DailyVolumePoint struct {
	Date   string          `json:"date"` // YYYY-MM-DD, UTC
	Volume decimal.Decimal `json:"volume"`
}

// ActivityEntry is one row of the recent-activity feed
type ActivityEntry struct {
	SettlementID uuid.UUID        `json:"settlement_id"`
	Status       SettlementStatus `json:"status"`
	ChainID      int64            `json:"chain_id"`
	TokenAddress string           `json:"token_address"`
	Amount       decimal.Decimal  `json:"amount"`
	TipCount     int              `json:"tip_count"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// StreamerAnalytics is the full read-only metrics view for a streamer,
// derived entirely from ledger state
type StreamerAnalytics struct {
	StreamerAddress         string               `json:"streamer_address"`
	Timeframe               Timeframe            `json:"timeframe"`
	TotalTips               int                  `json:"total_tips"`
	TotalVolume             decimal.Decimal      `json:"total_volume"`
	AverageTip              decimal.Decimal      `json:"average_tip"`
	SuccessRate             float64              `json:"success_rate"`
	AverageSettlementTimeMs int64                `json:"average_settlement_time_ms"`
	ChainDistribution       map[int64]ChainStat  `json:"chain_distribution"`
	TokenDistribution       map[string]TokenStat `json:"token_distribution"`
	DailyVolume             []DailyVolumePoint   `json:"daily_volume"`
	RecentActivity          []ActivityEntry      `json:"recent_activity"`
}
