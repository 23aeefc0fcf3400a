package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/streamtip/settlement_service/internal/domain/entities"
	domainerrors "github.com/streamtip/settlement_service/internal/domain/errors"
	"github.com/streamtip/settlement_service/internal/domain/services/ledger"
	"github.com/streamtip/settlement_service/internal/infrastructure/adapters/bridge"
	"github.com/streamtip/settlement_service/internal/infrastructure/adapters/swap"
	"github.com/streamtip/settlement_service/internal/infrastructure/repositories/memstore"
)

type stubSwap struct {
	mu      sync.Mutex
	quote   func(req swap.QuoteRequest) (*swap.QuoteResponse, error)
	execute func(req swap.ExecuteRequest) (*swap.ExecuteResponse, error)
	calls   int
}

func (s *stubSwap) GetQuote(_ context.Context, req swap.QuoteRequest) (*swap.QuoteResponse, error) {
	if s.quote != nil {
		return s.quote(req)
	}
	return &swap.QuoteResponse{AmountOut: req.Amount}, nil
}

func (s *stubSwap) Execute(_ context.Context, req swap.ExecuteRequest) (*swap.ExecuteResponse, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return s.execute(req)
}

type stubBridge struct {
	submit func(req bridge.TransferRequest) (*bridge.TransferResponse, error)
	status func(transferID string) (*bridge.TransferStatusResponse, error)
}

func (b *stubBridge) SubmitTransfer(_ context.Context, req bridge.TransferRequest) (*bridge.TransferResponse, error) {
	return b.submit(req)
}

func (b *stubBridge) GetTransfer(_ context.Context, transferID string) (*bridge.TransferStatusResponse, error) {
	return b.status(transferID)
}

func (b *stubBridge) Health(_ context.Context) (*bridge.HealthResponse, error) {
	return &bridge.HealthResponse{Healthy: true}, nil
}

func testConfig() Config {
	return Config{
		PlatformFeePct:   decimal.RequireFromString("0.05"),
		BusinessSharePct: decimal.RequireFromString("0.70"),
		DestChainID:      33139,
		ConfirmDeadline:  5 * time.Second,
		PollInterval:     time.Millisecond,
	}
}

func newClosedBatch(t *testing.T, ledgerSvc *ledger.Service, amount int64) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	id, err := ledgerSvc.AppendToOpenSettlement(ctx, &entities.Tip{
		TxHash:          fmt.Sprintf("0x%x", time.Now().UnixNano()),
		ChainID:         137,
		TokenAddress:    "0x2791bca1f2de4661ed88a30c99a7a9449aa84174",
		Amount:          decimal.NewFromInt(amount),
		StreamerAddress: "0x1111111111111111111111111111111111111111",
		BusinessAddress: "0x2222222222222222222222222222222222222222",
		CreatedAt:       time.Now().UTC(),
	})
	require.NoError(t, err)
	_, err = ledgerSvc.CloseSettlement(ctx, id)
	require.NoError(t, err)
	return id
}

func newLedger() *ledger.Service {
	store := memstore.New()
	return ledger.NewService(store.Tips(), store.Settlements(), store.PendingGroups(), zap.NewNop())
}

func TestProcessBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path completes with exact split", func(t *testing.T) {
		ledgerSvc := newLedger()
		svc := NewService(ledgerSvc,
			swap.NewSimulator(decimal.RequireFromString("0.000001")),
			bridge.NewSimulator(),
			nil, testConfig(), zap.NewNop())

		id := newClosedBatch(t, ledgerSvc, 1_000_000) // converts to 1 USDC

		result, err := svc.ProcessBatch(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entities.SettlementStatusCompleted, result.Status)
		assert.NotEmpty(t, result.DestTxHash)
		assert.True(t, result.ConvertedAmount.Equal(decimal.NewFromInt(1)))

		assert.True(t, result.PlatformFee.Equal(decimal.RequireFromString("0.05")))
		assert.True(t, result.BusinessShare.Equal(decimal.RequireFromString("0.665")))
		assert.True(t, result.StreamerShare.Equal(decimal.RequireFromString("0.285")))

		sum := result.PlatformFee.Add(result.BusinessShare).Add(result.StreamerShare)
		assert.True(t, sum.Equal(result.ConvertedAmount))
	})

	t.Run("swap failure marks failed and retry succeeds with the frozen member set", func(t *testing.T) {
		ledgerSvc := newLedger()
		broken := true
		swapStub := &stubSwap{execute: func(req swap.ExecuteRequest) (*swap.ExecuteResponse, error) {
			if broken {
				return nil, fmt.Errorf("venue down")
			}
			return &swap.ExecuteResponse{ExecutionID: "x", AmountOut: req.Amount, Status: "filled"}, nil
		}}
		svc := NewService(ledgerSvc, swapStub, bridge.NewSimulator(), nil, testConfig(), zap.NewNop())

		id := newClosedBatch(t, ledgerSvc, 500)
		before, err := ledgerSvc.GetSettlement(ctx, id)
		require.NoError(t, err)

		result, err := svc.ProcessBatch(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entities.SettlementStatusFailed, result.Status)
		assert.Contains(t, result.ErrorDetail, "conversion")
		assert.Equal(t, 1, result.AttemptCount)

		broken = false
		result, err = svc.ProcessBatch(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entities.SettlementStatusCompleted, result.Status)
		assert.Equal(t, 2, result.AttemptCount)
		assert.Equal(t, before.TipHashes, result.TipHashes)
		assert.True(t, before.TotalAmount.Equal(result.TotalAmount))
	})

	t.Run("bridge transfer failure marks failed", func(t *testing.T) {
		ledgerSvc := newLedger()
		bridgeStub := &stubBridge{
			submit: func(req bridge.TransferRequest) (*bridge.TransferResponse, error) {
				return &bridge.TransferResponse{TransferID: "t1", Status: bridge.TransferStatusPending}, nil
			},
			status: func(transferID string) (*bridge.TransferStatusResponse, error) {
				return &bridge.TransferStatusResponse{
					TransferID: transferID,
					Status:     bridge.TransferStatusFailed,
					Error:      "destination reverted",
				}, nil
			},
		}
		svc := NewService(ledgerSvc,
			swap.NewSimulator(decimal.NewFromInt(1)),
			bridgeStub, nil, testConfig(), zap.NewNop())

		id := newClosedBatch(t, ledgerSvc, 500)
		result, err := svc.ProcessBatch(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entities.SettlementStatusFailed, result.Status)
		assert.Contains(t, result.ErrorDetail, "destination reverted")
	})

	t.Run("confirmation deadline marks failed", func(t *testing.T) {
		ledgerSvc := newLedger()
		cfg := testConfig()
		cfg.ConfirmDeadline = 20 * time.Millisecond
		bridgeStub := &stubBridge{
			submit: func(req bridge.TransferRequest) (*bridge.TransferResponse, error) {
				return &bridge.TransferResponse{TransferID: "t1", Status: bridge.TransferStatusPending}, nil
			},
			status: func(transferID string) (*bridge.TransferStatusResponse, error) {
				return &bridge.TransferStatusResponse{TransferID: transferID, Status: bridge.TransferStatusPending}, nil
			},
		}
		svc := NewService(ledgerSvc, swap.NewSimulator(decimal.NewFromInt(1)), bridgeStub, nil, cfg, zap.NewNop())

		id := newClosedBatch(t, ledgerSvc, 500)
		result, err := svc.ProcessBatch(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entities.SettlementStatusFailed, result.Status)
		assert.Contains(t, result.ErrorDetail, "deadline")
	})

	t.Run("completed batch is an idempotent no-op returning the stored result", func(t *testing.T) {
		ledgerSvc := newLedger()
		swapStub := &stubSwap{execute: func(req swap.ExecuteRequest) (*swap.ExecuteResponse, error) {
			return &swap.ExecuteResponse{ExecutionID: "x", AmountOut: req.Amount, Status: "filled"}, nil
		}}
		svc := NewService(ledgerSvc, swapStub, bridge.NewSimulator(), nil, testConfig(), zap.NewNop())

		id := newClosedBatch(t, ledgerSvc, 500)
		first, err := svc.ProcessBatch(ctx, id)
		require.NoError(t, err)
		require.Equal(t, entities.SettlementStatusCompleted, first.Status)

		again, err := svc.ProcessBatch(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entities.SettlementStatusCompleted, again.Status)
		assert.Equal(t, first.DestTxHash, again.DestTxHash)
		assert.Equal(t, first.AttemptCount, again.AttemptCount)
		assert.Equal(t, 1, swapStub.calls)
	})

	t.Run("bridge failure keeps a partially known destination hash", func(t *testing.T) {
		ledgerSvc := newLedger()
		bridgeStub := &stubBridge{
			submit: func(req bridge.TransferRequest) (*bridge.TransferResponse, error) {
				return &bridge.TransferResponse{TransferID: "t1", Status: bridge.TransferStatusPending}, nil
			},
			status: func(transferID string) (*bridge.TransferStatusResponse, error) {
				return &bridge.TransferStatusResponse{
					TransferID: transferID,
					Status:     bridge.TransferStatusFailed,
					DestTxHash: "0xdeadbeef",
					Error:      "reorged out",
				}, nil
			},
		}
		svc := NewService(ledgerSvc, swap.NewSimulator(decimal.NewFromInt(1)), bridgeStub, nil, testConfig(), zap.NewNop())

		id := newClosedBatch(t, ledgerSvc, 500)
		result, err := svc.ProcessBatch(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entities.SettlementStatusFailed, result.Status)
		assert.Equal(t, "0xdeadbeef", result.DestTxHash)
	})

	t.Run("insufficient liquidity quote fails before execution", func(t *testing.T) {
		ledgerSvc := newLedger()
		swapStub := &stubSwap{
			quote: func(req swap.QuoteRequest) (*swap.QuoteResponse, error) {
				return &swap.QuoteResponse{AmountOut: decimal.Zero}, nil
			},
			execute: func(req swap.ExecuteRequest) (*swap.ExecuteResponse, error) {
				return &swap.ExecuteResponse{ExecutionID: "x", AmountOut: req.Amount, Status: "filled"}, nil
			},
		}
		svc := NewService(ledgerSvc, swapStub, bridge.NewSimulator(), nil, testConfig(), zap.NewNop())

		id := newClosedBatch(t, ledgerSvc, 500)
		result, err := svc.ProcessBatch(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entities.SettlementStatusFailed, result.Status)
		assert.Contains(t, result.ErrorDetail, "liquidity")
		assert.Equal(t, 0, swapStub.calls)
	})

	t.Run("rejects a batch in the wrong state", func(t *testing.T) {
		ledgerSvc := newLedger()
		svc := NewService(ledgerSvc, swap.NewSimulator(decimal.NewFromInt(1)), bridge.NewSimulator(), nil, testConfig(), zap.NewNop())

		// still open, never closed
		id, err := ledgerSvc.AppendToOpenSettlement(ctx, &entities.Tip{
			TxHash:          "0xopen",
			ChainID:         137,
			TokenAddress:    "0x2791bca1f2de4661ed88a30c99a7a9449aa84174",
			Amount:          decimal.NewFromInt(5),
			StreamerAddress: "0x1111111111111111111111111111111111111111",
			CreatedAt:       time.Now().UTC(),
		})
		require.NoError(t, err)

		_, err = svc.ProcessBatch(ctx, id)
		require.Error(t, err)
		assert.True(t, domainerrors.IsIllegalTransition(err))
	})

	t.Run("concurrent runs are rejected and convert once", func(t *testing.T) {
		ledgerSvc := newLedger()
		entered := make(chan struct{})
		release := make(chan struct{})
		swapStub := &stubSwap{execute: func(req swap.ExecuteRequest) (*swap.ExecuteResponse, error) {
			close(entered)
			<-release
			return &swap.ExecuteResponse{ExecutionID: "x", AmountOut: req.Amount, Status: "filled"}, nil
		}}
		svc := NewService(ledgerSvc, swapStub, bridge.NewSimulator(), nil, testConfig(), zap.NewNop())

		id := newClosedBatch(t, ledgerSvc, 500)

		done := make(chan error, 1)
		go func() {
			_, err := svc.ProcessBatch(ctx, id)
			done <- err
		}()

		<-entered
		_, err := svc.ProcessBatch(ctx, id)
		require.Error(t, err)
		assert.True(t, domainerrors.IsConcurrentRun(err))

		close(release)
		require.NoError(t, <-done)
		assert.Equal(t, 1, swapStub.calls)
	})
}

func TestRedispatchStuck(t *testing.T) {
	ctx := context.Background()

	t.Run("picks up stranded batching settlements", func(t *testing.T) {
		ledgerSvc := newLedger()
		svc := NewService(ledgerSvc, swap.NewSimulator(decimal.NewFromInt(1)), bridge.NewSimulator(), nil, testConfig(), zap.NewNop())

		id := newClosedBatch(t, ledgerSvc, 500)

		n, err := svc.RedispatchStuck(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		require.Eventually(t, func() bool {
			s, err := ledgerSvc.GetSettlement(ctx, id)
			return err == nil && s.Status == entities.SettlementStatusCompleted
		}, 2*time.Second, 5*time.Millisecond)
	})

	t.Run("leaves failed settlements to explicit retry", func(t *testing.T) {
		ledgerSvc := newLedger()
		swapStub := &stubSwap{execute: func(req swap.ExecuteRequest) (*swap.ExecuteResponse, error) {
			return nil, fmt.Errorf("venue down")
		}}
		svc := NewService(ledgerSvc, swapStub, bridge.NewSimulator(), nil, testConfig(), zap.NewNop())

		id := newClosedBatch(t, ledgerSvc, 500)
		result, err := svc.ProcessBatch(ctx, id)
		require.NoError(t, err)
		require.Equal(t, entities.SettlementStatusFailed, result.Status)

		n, err := svc.RedispatchStuck(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)

		time.Sleep(20 * time.Millisecond)
		after, err := ledgerSvc.GetSettlement(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, entities.SettlementStatusFailed, after.Status)
		assert.Equal(t, 1, after.AttemptCount)
	})
}

type recordingInvalidator struct {
	mu        sync.Mutex
	streamers []string
}

func (r *recordingInvalidator) InvalidateStreamer(_ context.Context, streamer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streamers = append(r.streamers, streamer)
}

func TestTerminalStatesInvalidateAnalytics(t *testing.T) {
	ctx := context.Background()

	t.Run("completion", func(t *testing.T) {
		ledgerSvc := newLedger()
		inv := &recordingInvalidator{}
		svc := NewService(ledgerSvc, swap.NewSimulator(decimal.NewFromInt(1)), bridge.NewSimulator(), inv, testConfig(), zap.NewNop())

		id := newClosedBatch(t, ledgerSvc, 500)
		result, err := svc.ProcessBatch(ctx, id)
		require.NoError(t, err)
		require.Equal(t, entities.SettlementStatusCompleted, result.Status)
		assert.Equal(t, []string{result.StreamerAddress}, inv.streamers)
	})

	t.Run("failure", func(t *testing.T) {
		ledgerSvc := newLedger()
		inv := &recordingInvalidator{}
		swapStub := &stubSwap{execute: func(req swap.ExecuteRequest) (*swap.ExecuteResponse, error) {
			return nil, fmt.Errorf("venue down")
		}}
		svc := NewService(ledgerSvc, swapStub, bridge.NewSimulator(), inv, testConfig(), zap.NewNop())

		id := newClosedBatch(t, ledgerSvc, 500)
		result, err := svc.ProcessBatch(ctx, id)
		require.NoError(t, err)
		require.Equal(t, entities.SettlementStatusFailed, result.Status)
		assert.Equal(t, []string{result.StreamerAddress}, inv.streamers)
	})
}

func TestSplitConverted(t *testing.T) {
	fee := decimal.RequireFromString("0.05")
	business := decimal.RequireFromString("0.70")

	t.Run("clean amounts", func(t *testing.T) {
		f, b, s := SplitConverted(decimal.NewFromInt(100), fee, business)
		assert.True(t, f.Equal(decimal.NewFromInt(5)))
		assert.True(t, b.Equal(decimal.RequireFromString("66.5")))
		assert.True(t, s.Equal(decimal.RequireFromString("28.5")))
	})

	t.Run("awkward amounts still sum exactly", func(t *testing.T) {
		amounts := []string{"0.000001", "1.000003", "33.333333", "12345.678901"}
		for _, raw := range amounts {
			converted := decimal.RequireFromString(raw)
			f, b, s := SplitConverted(converted, fee, business)
			assert.True(t, f.Add(b).Add(s).Equal(converted), "amount %s", raw)
			assert.False(t, f.IsNegative())
			assert.False(t, b.IsNegative())
			assert.False(t, s.IsNegative())
		}
	})
}

func TestBridgeStatusCache(t *testing.T) {
	ledgerSvc := newLedger()
	svc := NewService(ledgerSvc, swap.NewSimulator(decimal.NewFromInt(1)), bridge.NewSimulator(), nil, testConfig(), zap.NewNop())

	assert.True(t, svc.BridgeStatus().CheckedAt.IsZero())

	status := svc.RefreshBridgeStatus(context.Background())
	assert.True(t, status.Healthy)
	assert.False(t, svc.BridgeStatus().CheckedAt.IsZero())
}
