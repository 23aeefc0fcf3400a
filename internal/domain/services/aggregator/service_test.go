package aggregator

import (
	"context"
	"fmt"
	"sync"
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
	"github.com/streamtip/settlement_service/pkg/keylock"
)

type captureDispatcher struct {
	mu        sync.Mutex
	snapshots []*entities.BatchSnapshot
}

func (d *captureDispatcher) Dispatch(snapshot *entities.BatchSnapshot) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.snapshots = append(d.snapshots, snapshot)
}

func (d *captureDispatcher) all() []*entities.BatchSnapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*entities.BatchSnapshot(nil), d.snapshots...)
}

func newTestAggregator(threshold int64, window time.Duration) (*Service, *ledger.Service, *captureDispatcher) {
	store := memstore.New()
	ledgerSvc := ledger.NewService(store.Tips(), store.Settlements(), store.PendingGroups(), zap.NewNop())
	dispatcher := &captureDispatcher{}
	svc := NewService(ledgerSvc, dispatcher, keylock.New(16), Config{
		MinBatchAmount: decimal.NewFromInt(threshold),
		MaxBatchWindow: window,
	}, zap.NewNop())
	return svc, ledgerSvc, dispatcher
}

func tip(txHash string, amount int64) *entities.Tip {
	return &entities.Tip{
		TxHash:          txHash,
		ChainID:         137,
		TokenAddress:    "0x2791bca1f2de4661ed88a30c99a7a9449aa84174",
		Amount:          decimal.NewFromInt(amount),
		StreamerAddress: "0x1111111111111111111111111111111111111111",
		BusinessAddress: "0x2222222222222222222222222222222222222222",
		CreatedAt:       time.Now().UTC(),
	}
}

func TestQueueTip(t *testing.T) {
	ctx := context.Background()

	t.Run("keeps batch open below threshold", func(t *testing.T) {
		svc, ledgerSvc, dispatcher := newTestAggregator(700, time.Hour)

		id, err := svc.QueueTip(ctx, tip("0xa1", 100))
		require.NoError(t, err)
		_, err = svc.QueueTip(ctx, tip("0xa2", 200))
		require.NoError(t, err)

		assert.Empty(t, dispatcher.all())
		settlement, err := ledgerSvc.GetSettlement(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entities.SettlementStatusPending, settlement.Status)
	})

	t.Run("closes and dispatches at threshold", func(t *testing.T) {
		svc, ledgerSvc, dispatcher := newTestAggregator(700, time.Hour)

		for i, amount := range []int64{100, 200, 350, 400} {
			_, err := svc.QueueTip(ctx, tip(fmt.Sprintf("0xa%d", i), amount))
			require.NoError(t, err)
		}

		snapshots := dispatcher.all()
		require.Len(t, snapshots, 1)
		assert.True(t, snapshots[0].TotalAmount.Equal(decimal.NewFromInt(1050)))
		assert.Equal(t, 4, snapshots[0].TipCount)

		settlement, err := ledgerSvc.GetSettlement(ctx, snapshots[0].SettlementID)
		require.NoError(t, err)
		assert.Equal(t, entities.SettlementStatusBatching, settlement.Status)
	})

	t.Run("tips after a close land in a new batch", func(t *testing.T) {
		svc, _, dispatcher := newTestAggregator(500, time.Hour)

		closedID, err := svc.QueueTip(ctx, tip("0xa1", 600))
		require.NoError(t, err)
		require.Len(t, dispatcher.all(), 1)

		nextID, err := svc.QueueTip(ctx, tip("0xa2", 10))
		require.NoError(t, err)
		assert.NotEqual(t, closedID, nextID)
	})

	t.Run("duplicate tip is rejected", func(t *testing.T) {
		svc, _, _ := newTestAggregator(700, time.Hour)

		_, err := svc.QueueTip(ctx, tip("0xa1", 100))
		require.NoError(t, err)

		_, err = svc.QueueTip(ctx, tip("0xa1", 100))
		require.Error(t, err)
		assert.True(t, domainerrors.IsDuplicateTip(err))
	})

	t.Run("concurrent tips conserve the total", func(t *testing.T) {
		// threshold high enough that nothing closes mid-test
		svc, ledgerSvc, _ := newTestAggregator(1_000_000, time.Hour)

		const workers = 50
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				_, err := svc.QueueTip(ctx, tip(fmt.Sprintf("0xc%d", n), 10))
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		totals, err := ledgerSvc.PendingTotals(ctx, "0x1111111111111111111111111111111111111111")
		require.NoError(t, err)
		got := totals[137]["0x2791bca1f2de4661ed88a30c99a7a9449aa84174"]
		assert.True(t, got.Amount.Equal(decimal.NewFromInt(10*workers)))
		assert.Equal(t, workers, got.Count)
	})
}

func TestManualSettle(t *testing.T) {
	ctx := context.Background()

	t.Run("closes open batches for the streamer", func(t *testing.T) {
		svc, _, dispatcher := newTestAggregator(1_000_000, time.Hour)

		_, err := svc.QueueTip(ctx, tip("0xa1", 100))
		require.NoError(t, err)

		other := tip("0xa2", 50)
		other.ChainID = 1
		_, err = svc.QueueTip(ctx, other)
		require.NoError(t, err)

		triggered, err := svc.ManualSettle(ctx, "0x1111111111111111111111111111111111111111", 0, "")
		require.NoError(t, err)
		assert.Len(t, triggered, 2)
		assert.Len(t, dispatcher.all(), 2)
	})

	t.Run("scopes by chain", func(t *testing.T) {
		svc, _, _ := newTestAggregator(1_000_000, time.Hour)

		_, err := svc.QueueTip(ctx, tip("0xa1", 100))
		require.NoError(t, err)
		other := tip("0xa2", 50)
		other.ChainID = 1
		_, err = svc.QueueTip(ctx, other)
		require.NoError(t, err)

		triggered, err := svc.ManualSettle(ctx, "0x1111111111111111111111111111111111111111", 1, "")
		require.NoError(t, err)
		assert.Len(t, triggered, 1)
	})

	t.Run("nothing open is a no-op", func(t *testing.T) {
		svc, _, dispatcher := newTestAggregator(700, time.Hour)

		triggered, err := svc.ManualSettle(ctx, "0x1111111111111111111111111111111111111111", 0, "")
		require.NoError(t, err)
		assert.Empty(t, triggered)
		assert.Empty(t, dispatcher.all())
	})
}

func TestSweepExpiredWindows(t *testing.T) {
	ctx := context.Background()
	svc, _, dispatcher := newTestAggregator(1_000_000, 30*time.Minute)

	old := tip("0xa1", 100)
	old.CreatedAt = time.Now().UTC().Add(-time.Hour)
	_, err := svc.QueueTip(ctx, old)
	require.NoError(t, err)

	fresh := tip("0xa2", 100)
	fresh.ChainID = 1
	_, err = svc.QueueTip(ctx, fresh)
	require.NoError(t, err)

	closed, err := svc.SweepExpiredWindows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)

	snapshots := dispatcher.all()
	require.Len(t, snapshots, 1)
	assert.Equal(t, int64(137), snapshots[0].ChainID)
}
