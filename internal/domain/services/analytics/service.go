// Package analytics derives the read-only streamer metrics view from
// ledger state. Nothing here writes; results are cached briefly in Redis
// since the underlying settlements change slowly.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/streamtip/settlement_service/internal/domain/entities"
	domainerrors "github.com/streamtip/settlement_service/internal/domain/errors"
	"github.com/streamtip/settlement_service/internal/domain/services/ledger"
	"github.com/streamtip/settlement_service/internal/infrastructure/cache"
)

const (
	cacheTTL           = 60 * time.Second
	settlementScanSize = 1000
	recentActivitySize = 20
)

// Service computes streamer analytics over settled and in-flight batches
type Service struct {
	ledger *ledger.Service
	cache  cache.RedisClient
	logger *zap.Logger
}

// NewService creates a new analytics service. The cache may be nil, in
// which case every call recomputes.
func NewService(ledgerSvc *ledger.Service, cacheClient cache.RedisClient, logger *zap.Logger) *Service {
	return &Service{
		ledger: ledgerSvc,
		cache:  cacheClient,
		logger: logger,
	}
}

// GetStreamerAnalytics returns the metrics view for one streamer over the
// given timeframe. Volume figures are in the settlement unit and only count
// completed batches; in-flight and failed batches still appear in the
// activity feed and success rate.
func (s *Service) GetStreamerAnalytics(ctx context.Context, streamer string, timeframe entities.Timeframe) (*entities.StreamerAnalytics, error) {
	if !timeframe.Valid() {
		return nil, domainerrors.ValidationError("timeframe", fmt.Sprintf("unsupported timeframe %q", timeframe))
	}

	cacheKey := fmt.Sprintf("analytics:%s:%s", streamer, timeframe)
	if s.cache != nil {
		var cached entities.StreamerAnalytics
		err := s.cache.Get(ctx, cacheKey, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("Analytics cache read failed", zap.Error(err))
		}
	}

	result, err := s.compute(ctx, streamer, timeframe)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, result, cacheTTL); err != nil {
			s.logger.Warn("Analytics cache write failed", zap.Error(err))
		}
	}
	return result, nil
}

func (s *Service) compute(ctx context.Context, streamer string, timeframe entities.Timeframe) (*entities.StreamerAnalytics, error) {
	settlements, err := s.ledger.ListByStreamer(ctx, streamer, settlementScanSize)
	if err != nil {
		return nil, domainerrors.Wrap(err, "list settlements")
	}

	var cutoff time.Time
	if d := timeframe.Duration(); d > 0 {
		cutoff = time.Now().UTC().Add(-d)
	}

	result := &entities.StreamerAnalytics{
		StreamerAddress:   streamer,
		Timeframe:         timeframe,
		TotalVolume:       decimal.Zero,
		AverageTip:        decimal.Zero,
		ChainDistribution: make(map[int64]entities.ChainStat),
		TokenDistribution: make(map[string]entities.TokenStat),
		DailyVolume:       []entities.DailyVolumePoint{},
		RecentActivity:    []entities.ActivityEntry{},
	}

	var (
		completed       int
		terminal        int
		completedTips   int
		totalSettleTime time.Duration
		dailyVolume     = make(map[string]decimal.Decimal)
	)

	for _, settlement := range settlements {
		if !cutoff.IsZero() && settlement.CreatedAt.Before(cutoff) {
			continue
		}

		result.TotalTips += settlement.TipCount

		if len(result.RecentActivity) < recentActivitySize {
			result.RecentActivity = append(result.RecentActivity, entities.ActivityEntry{
				SettlementID: settlement.ID,
				Status:       settlement.Status,
				ChainID:      settlement.ChainID,
				TokenAddress: settlement.TokenAddress,
				Amount:       settlement.TotalAmount,
				TipCount:     settlement.TipCount,
				UpdatedAt:    settlement.UpdatedAt,
			})
		}

		if settlement.Status.IsTerminal() {
			terminal++
		}
		if settlement.Status != entities.SettlementStatusCompleted {
			continue
		}

		completed++
		completedTips += settlement.TipCount
		totalSettleTime += settlement.UpdatedAt.Sub(settlement.CreatedAt)
		result.TotalVolume = result.TotalVolume.Add(settlement.ConvertedAmount)

		chainStat := result.ChainDistribution[settlement.ChainID]
		chainStat.Count++
		chainStat.Volume = chainStat.Volume.Add(settlement.ConvertedAmount)
		result.ChainDistribution[settlement.ChainID] = chainStat

		tokenStat := result.TokenDistribution[settlement.TokenAddress]
		tokenStat.Count++
		tokenStat.Volume = tokenStat.Volume.Add(settlement.ConvertedAmount)
		result.TokenDistribution[settlement.TokenAddress] = tokenStat

		day := settlement.UpdatedAt.UTC().Format("2006-01-02")
		dailyVolume[day] = dailyVolume[day].Add(settlement.ConvertedAmount)
	}

	if completedTips > 0 {
		result.AverageTip = result.TotalVolume.DivRound(decimal.NewFromInt(int64(completedTips)), 18)
	}
	if terminal > 0 {
		result.SuccessRate = float64(completed) / float64(terminal)
	}
	if completed > 0 {
		result.AverageSettlementTimeMs = totalSettleTime.Milliseconds() / int64(completed)
	}

	days := make([]string, 0, len(dailyVolume))
	for day := range dailyVolume {
		days = append(days, day)
	}
	sort.Strings(days)
	for _, day := range days {
		result.DailyVolume = append(result.DailyVolume, entities.DailyVolumePoint{
			Date:   day,
			Volume: dailyVolume[day],
		})
	}

	return result, nil
}

// InvalidateStreamer drops the cached views for a streamer, called after a
// settlement for them reaches a terminal state
func (s *Service) InvalidateStreamer(ctx context.Context, streamer string) {
	if s.cache == nil {
		return
	}
	for _, tf := range []entities.Timeframe{entities.Timeframe24h, entities.Timeframe7d, entities.Timeframe30d, entities.TimeframeAll} {
		key := fmt.Sprintf("analytics:%s:%s", streamer, tf)
		if err := s.cache.Del(ctx, key); err != nil {
			s.logger.Warn("Analytics cache invalidation failed", zap.String("key", key), zap.Error(err))
		}
	}
}
