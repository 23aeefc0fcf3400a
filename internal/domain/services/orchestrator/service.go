// Package orchestrator drives closed settlement batches through conversion
// and bridging to completion, enforcing the status state machine and the
// exact three-way split of the converted amount.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/streamtip/settlement_service/internal/domain/entities"
	domainerrors "github.com/streamtip/settlement_service/internal/domain/errors"
	"github.com/streamtip/settlement_service/internal/domain/services/ledger"
	"github.com/streamtip/settlement_service/internal/infrastructure/adapters/bridge"
	"github.com/streamtip/settlement_service/internal/infrastructure/adapters/swap"
	"github.com/streamtip/settlement_service/pkg/metrics"
)

// settlementUnitPlaces is the decimal precision of the settlement unit
// (USDC carries 6 decimals)
const settlementUnitPlaces = 6

// Config holds the split ratios and bridge polling knobs
type Config struct {
	// PlatformFeePct is the platform's cut of the converted amount
	PlatformFeePct decimal.Decimal
	// BusinessSharePct is the business's share of the post-fee remainder;
	// the streamer receives the rest
	BusinessSharePct decimal.Decimal
	// DestChainID is the destination chain for bridged funds
	DestChainID int64
	// ConfirmDeadline bounds how long a bridge transfer may stay pending
	ConfirmDeadline time.Duration
	// PollInterval is the gap between bridge status polls
	PollInterval time.Duration
}

// CacheInvalidator drops derived read views for a streamer once a
// settlement of theirs reaches a terminal state
type CacheInvalidator interface {
	InvalidateStreamer(ctx context.Context, streamer string)
}

// Service processes one settlement batch at a time per id. An in-process
// run guard rejects concurrent ProcessBatch calls for the same settlement;
// status writes are additionally CAS-guarded at the store.
type Service struct {
	ledger      *ledger.Service
	swap        swap.SwapClient
	bridge      bridge.BridgeClient
	invalidator CacheInvalidator // optional
	config      Config
	logger      *zap.Logger

	running sync.Map // uuid.UUID -> struct{}

	statusMu     sync.RWMutex
	bridgeStatus entities.BridgeStatus
}

// NewService creates a new orchestrator service. invalidator may be nil.
func NewService(ledgerSvc *ledger.Service, swapClient swap.SwapClient, bridgeClient bridge.BridgeClient, invalidator CacheInvalidator, config Config, logger *zap.Logger) *Service {
	if config.PollInterval <= 0 {
		config.PollInterval = 3 * time.Second
	}
	if config.ConfirmDeadline <= 0 {
		config.ConfirmDeadline = 10 * time.Minute
	}
	return &Service{
		ledger:      ledgerSvc,
		swap:        swapClient,
		bridge:      bridgeClient,
		invalidator: invalidator,
		config:      config,
		logger:      logger,
	}
}

// Dispatch hands a freshly closed batch to the processing pipeline without
// blocking the caller
func (s *Service) Dispatch(snapshot *entities.BatchSnapshot) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.config.ConfirmDeadline+time.Minute)
		defer cancel()
		if _, err := s.ProcessBatch(ctx, snapshot.SettlementID); err != nil {
			if domainerrors.IsConcurrentRun(err) {
				return
			}
			s.logger.Error("Dispatched batch processing failed",
				zap.String("settlement_id", snapshot.SettlementID.String()),
				zap.Error(err))
		}
	}()
}

// ProcessBatch drives a closed batch through converting -> bridging ->
// completed. A batch already being processed is rejected; a failed batch is
// retried from conversion with the member set it closed with. The returned
// settlement reflects the terminal state of this run.
func (s *Service) ProcessBatch(ctx context.Context, settlementID uuid.UUID) (*entities.Settlement, error) {
	if _, loaded := s.running.LoadOrStore(settlementID, struct{}{}); loaded {
		return nil, domainerrors.ConcurrentRunError(settlementID.String())
	}
	defer s.running.Delete(settlementID)

	settlement, err := s.ledger.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, err
	}

	switch settlement.Status {
	case entities.SettlementStatusBatching, entities.SettlementStatusFailed:
	case entities.SettlementStatusCompleted:
		// already settled; callers get the stored result back
		return settlement, nil
	default:
		return nil, domainerrors.IllegalTransitionError(string(settlement.Status), string(entities.SettlementStatusConverting))
	}

	started := time.Now()
	metrics.BridgeInFlightGauge.Inc()
	defer metrics.BridgeInFlightGauge.Dec()

	if err := s.ledger.UpdateStatus(ctx, settlementID, entities.SettlementStatusConverting, ""); err != nil {
		return nil, err
	}

	attempt, err := s.ledger.IncrementAttempt(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	idempotencyKey := fmt.Sprintf("%s:%d", settlementID, attempt)

	s.logger.Info("Processing settlement batch",
		zap.String("settlement_id", settlementID.String()),
		zap.String("total_amount", settlement.TotalAmount.String()),
		zap.Int("tip_count", settlement.TipCount),
		zap.Int("attempt", attempt))

	converted, err := s.convert(ctx, settlement, idempotencyKey)
	if err != nil {
		return s.fail(ctx, settlement, fmt.Sprintf("conversion: %v", err), "")
	}

	if err := s.ledger.MarkBridging(ctx, settlementID, converted); err != nil {
		return nil, err
	}

	destTxHash, err := s.bridgeFunds(ctx, settlement, converted, idempotencyKey)
	if err != nil {
		// destTxHash may be partially known when the transfer failed or
		// timed out after landing on the destination chain
		return s.fail(ctx, settlement, fmt.Sprintf("bridge: %v", err), destTxHash)
	}

	fee, businessShare, streamerShare := SplitConverted(converted, s.config.PlatformFeePct, s.config.BusinessSharePct)
	if err := s.ledger.RecordCompletion(ctx, settlementID, destTxHash, fee, businessShare, streamerShare); err != nil {
		return nil, err
	}

	metrics.SettlementsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.SettlementDuration.Observe(time.Since(started).Seconds())
	s.invalidate(ctx, settlement.StreamerAddress)

	s.logger.Info("Settlement completed",
		zap.String("settlement_id", settlementID.String()),
		zap.String("converted_amount", converted.String()),
		zap.String("platform_fee", fee.String()),
		zap.String("business_share", businessShare.String()),
		zap.String("streamer_share", streamerShare.String()),
		zap.String("dest_tx_hash", destTxHash))

	return s.ledger.GetSettlement(ctx, settlementID)
}

// convert quotes the batch first and only submits the execution when the
// venue can fill it
func (s *Service) convert(ctx context.Context, settlement *entities.Settlement, idempotencyKey string) (decimal.Decimal, error) {
	quote, err := s.swap.GetQuote(ctx, swap.QuoteRequest{
		ChainID:      settlement.ChainID,
		TokenAddress: settlement.TokenAddress,
		Amount:       settlement.TotalAmount,
	})
	if err != nil {
		return decimal.Zero, domainerrors.ExternalFailureError("swap", err)
	}
	if quote.AmountOut.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, domainerrors.ExternalFailureError("swap", swap.ErrInsufficientLiquidity)
	}

	resp, err := s.swap.Execute(ctx, swap.ExecuteRequest{
		IdempotencyKey: idempotencyKey,
		ChainID:        settlement.ChainID,
		TokenAddress:   settlement.TokenAddress,
		Amount:         settlement.TotalAmount,
	})
	if err != nil {
		return decimal.Zero, domainerrors.ExternalFailureError("swap", err)
	}
	if resp.AmountOut.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, domainerrors.ExternalFailureError("swap", fmt.Errorf("non-positive output %s", resp.AmountOut))
	}
	return resp.AmountOut, nil
}

// bridgeFunds submits the converted amount and polls until the provider
// reports it final on the destination chain. On error the returned hash is
// the last destination hash the provider reported, if any.
func (s *Service) bridgeFunds(ctx context.Context, settlement *entities.Settlement, amount decimal.Decimal, idempotencyKey string) (string, error) {
	submitted, err := s.bridge.SubmitTransfer(ctx, bridge.TransferRequest{
		IdempotencyKey: idempotencyKey,
		SourceChainID:  settlement.ChainID,
		DestChainID:    s.config.DestChainID,
		Amount:         amount,
		Recipient:      settlement.StreamerAddress,
	})
	if err != nil {
		return "", domainerrors.ExternalFailureError("bridge", err)
	}

	s.logger.Info("Bridge transfer submitted",
		zap.String("settlement_id", settlement.ID.String()),
		zap.String("transfer_id", submitted.TransferID))

	deadline := time.NewTimer(s.config.ConfirmDeadline)
	defer deadline.Stop()
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	lastKnownHash := ""
	for {
		status, err := s.bridge.GetTransfer(ctx, submitted.TransferID)
		if err == nil {
			if status.DestTxHash != "" {
				lastKnownHash = status.DestTxHash
			}
			switch status.Status {
			case bridge.TransferStatusConfirmed:
				return status.DestTxHash, nil
			case bridge.TransferStatusFailed:
				return lastKnownHash, domainerrors.ExternalFailureError("bridge", fmt.Errorf("transfer failed: %s", status.Error))
			}
		} else {
			s.logger.Warn("Bridge status poll failed",
				zap.String("transfer_id", submitted.TransferID),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return lastKnownHash, domainerrors.ExternalFailureError("bridge", ctx.Err())
		case <-deadline.C:
			return lastKnownHash, domainerrors.ExternalFailureError("bridge", fmt.Errorf("confirmation deadline exceeded after %s", s.config.ConfirmDeadline))
		case <-ticker.C:
		}
	}
}

// fail records the failure and returns the settlement in its failed state;
// the member set stays frozen so a retry reprocesses exactly this batch
func (s *Service) fail(ctx context.Context, settlement *entities.Settlement, detail, destTxHash string) (*entities.Settlement, error) {
	metrics.SettlementsProcessedTotal.WithLabelValues("failed").Inc()

	if err := s.ledger.MarkFailed(ctx, settlement.ID, detail, destTxHash); err != nil {
		return nil, err
	}
	s.invalidate(ctx, settlement.StreamerAddress)
	s.logger.Error("Settlement failed",
		zap.String("settlement_id", settlement.ID.String()),
		zap.String("detail", detail))
	return s.ledger.GetSettlement(ctx, settlement.ID)
}

func (s *Service) invalidate(ctx context.Context, streamer string) {
	if s.invalidator != nil {
		s.invalidator.InvalidateStreamer(ctx, streamer)
	}
}

// RedispatchStuck re-runs batches stranded in batching, typically after a
// crash between close and dispatch. Failed settlements are left alone;
// retrying those is a caller decision through ProcessBatch. Returns how
// many were picked up.
func (s *Service) RedispatchStuck(ctx context.Context) (int, error) {
	stuck, err := s.ledger.ListByStatus(ctx, entities.SettlementStatusBatching)
	if err != nil {
		return 0, err
	}
	redispatched := 0
	for _, settlement := range stuck {
		if _, running := s.running.Load(settlement.ID); running {
			continue
		}
		s.Dispatch(&entities.BatchSnapshot{SettlementID: settlement.ID})
		redispatched++
	}
	return redispatched, nil
}

// RefreshBridgeStatus polls provider health and caches the result
func (s *Service) RefreshBridgeStatus(ctx context.Context) entities.BridgeStatus {
	status := entities.BridgeStatus{CheckedAt: time.Now().UTC()}

	health, err := s.bridge.Health(ctx)
	if err != nil {
		status.Healthy = false
		status.LastError = err.Error()
	} else {
		status.Healthy = health.Healthy
		status.InFlightCount = health.InFlightCount
		status.LastError = health.Detail
	}

	s.statusMu.Lock()
	s.bridgeStatus = status
	s.statusMu.Unlock()
	return status
}

// BridgeStatus returns the most recently cached provider health
func (s *Service) BridgeStatus() entities.BridgeStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.bridgeStatus
}

// SplitConverted divides a converted amount into platform fee, business
// share and streamer share. The fee and business share round down at the
// settlement unit's precision and the streamer receives the exact
// remainder, so the three parts always sum to the input.
func SplitConverted(converted, platformFeePct, businessSharePct decimal.Decimal) (fee, businessShare, streamerShare decimal.Decimal) {
	fee = converted.Mul(platformFeePct).RoundDown(settlementUnitPlaces)
	remainder := converted.Sub(fee)
	businessShare = remainder.Mul(businessSharePct).RoundDown(settlementUnitPlaces)
	streamerShare = remainder.Sub(businessShare)
	return fee, businessShare, streamerShare
}
