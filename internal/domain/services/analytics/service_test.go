package analytics

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streamtip/settlement_service/internal/domain/entities"
	domainerrors "github.com/streamtip/settlement_service/internal/domain/errors"
	"github.com/streamtip/settlement_service/internal/domain/services/ledger"
	"github.com/streamtip/settlement_service/internal/infrastructure/repositories/memstore"
)

const streamer = "0x1111111111111111111111111111111111111111"

func setup(t *testing.T) (*Service, *ledger.Service) {
	t.Helper()
	store := memstore.New()
	ledgerSvc := ledger.NewService(store.Tips(), store.Settlements(), store.PendingGroups(), zap.NewNop())
	return NewService(ledgerSvc, nil, zap.NewNop()), ledgerSvc
}

// completeBatch runs one tip through close and completion with the given
// converted amount
func completeBatch(t *testing.T, ledgerSvc *ledger.Service, chainID int64, token string, converted string) {
	t.Helper()
	ctx := context.Background()

	id, err := ledgerSvc.AppendToOpenSettlement(ctx, &entities.Tip{
		TxHash:          fmt.Sprintf("0x%x", time.Now().UnixNano()),
		ChainID:         chainID,
		TokenAddress:    token,
		Amount:          decimal.NewFromInt(1000),
		StreamerAddress: streamer,
		CreatedAt:       time.Now().UTC(),
	})
	require.NoError(t, err)
	_, err = ledgerSvc.CloseSettlement(ctx, id)
	require.NoError(t, err)

	c := decimal.RequireFromString(converted)
	fee := c.Mul(decimal.RequireFromString("0.05"))
	business := c.Sub(fee).Mul(decimal.RequireFromString("0.70"))
	streamerShare := c.Sub(fee).Sub(business)

	require.NoError(t, ledgerSvc.UpdateStatus(ctx, id, entities.SettlementStatusConverting, ""))
	require.NoError(t, ledgerSvc.MarkBridging(ctx, id, c))
	require.NoError(t, ledgerSvc.RecordCompletion(ctx, id, "0xdest", fee, business, streamerShare))
}

func failBatch(t *testing.T, ledgerSvc *ledger.Service, chainID int64, token string) {
	t.Helper()
	ctx := context.Background()

	id, err := ledgerSvc.AppendToOpenSettlement(ctx, &entities.Tip{
		TxHash:          fmt.Sprintf("0xf%x", time.Now().UnixNano()),
		ChainID:         chainID,
		TokenAddress:    token,
		Amount:          decimal.NewFromInt(100),
		StreamerAddress: streamer,
		CreatedAt:       time.Now().UTC(),
	})
	require.NoError(t, err)
	_, err = ledgerSvc.CloseSettlement(ctx, id)
	require.NoError(t, err)
	require.NoError(t, ledgerSvc.UpdateStatus(ctx, id, entities.SettlementStatusConverting, ""))
	require.NoError(t, ledgerSvc.MarkFailed(ctx, id, "venue down", ""))
}

func TestGetStreamerAnalytics(t *testing.T) {
	ctx := context.Background()
	usdc := "0x2791bca1f2de4661ed88a30c99a7a9449aa84174"
	dai := "0x6b175474e89094c44da98b954eedeac495271d0f"

	t.Run("aggregates completed settlements", func(t *testing.T) {
		svc, ledgerSvc := setup(t)
		completeBatch(t, ledgerSvc, 137, usdc, "10")
		completeBatch(t, ledgerSvc, 137, usdc, "20")
		completeBatch(t, ledgerSvc, 1, dai, "5")
		failBatch(t, ledgerSvc, 8453, usdc)

		result, err := svc.GetStreamerAnalytics(ctx, streamer, entities.TimeframeAll)
		require.NoError(t, err)

		assert.Equal(t, 4, result.TotalTips)
		assert.True(t, result.TotalVolume.Equal(decimal.NewFromInt(35)))
		assert.InDelta(t, 0.75, result.SuccessRate, 0.0001)

		assert.Equal(t, 2, result.ChainDistribution[137].Count)
		assert.True(t, result.ChainDistribution[137].Volume.Equal(decimal.NewFromInt(30)))
		assert.Equal(t, 1, result.ChainDistribution[1].Count)

		assert.Equal(t, 2, result.TokenDistribution[usdc].Count)
		assert.Equal(t, 1, result.TokenDistribution[dai].Count)

		require.NotEmpty(t, result.DailyVolume)
		assert.True(t, result.DailyVolume[0].Volume.Equal(decimal.NewFromInt(35)))
		assert.Len(t, result.RecentActivity, 4)
	})

	t.Run("empty history yields zeros", func(t *testing.T) {
		svc, _ := setup(t)

		result, err := svc.GetStreamerAnalytics(ctx, streamer, entities.Timeframe7d)
		require.NoError(t, err)
		assert.Zero(t, result.TotalTips)
		assert.True(t, result.TotalVolume.IsZero())
		assert.Zero(t, result.SuccessRate)
		assert.Empty(t, result.RecentActivity)
	})

	t.Run("rejects unknown timeframe", func(t *testing.T) {
		svc, _ := setup(t)

		_, err := svc.GetStreamerAnalytics(ctx, streamer, entities.Timeframe("1y"))
		require.Error(t, err)
		assert.True(t, domainerrors.IsInvalidInput(err))
	})
}
