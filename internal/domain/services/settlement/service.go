// Package settlement is the single entry point for callers: it validates
// input at the boundary and dispatches to the aggregation, orchestration
// and analytics services behind it.
package settlement

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/streamtip/settlement_service/internal/domain/entities"
	domainerrors "github.com/streamtip/settlement_service/internal/domain/errors"
	"github.com/streamtip/settlement_service/internal/domain/services/aggregator"
	"github.com/streamtip/settlement_service/internal/domain/services/analytics"
	"github.com/streamtip/settlement_service/internal/domain/services/ledger"
	"github.com/streamtip/settlement_service/internal/domain/services/orchestrator"
)

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	txHashPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// Config holds the boundary validation knobs
type Config struct {
	// SourceChainIDs are the chains tips may arrive from
	SourceChainIDs map[int64]bool
	// MaxTipMessageLen bounds the optional tip message
	MaxTipMessageLen int
}

// Service is the façade over the settlement core
type Service struct {
	ledger       *ledger.Service
	aggregator   *aggregator.Service
	orchestrator *orchestrator.Service
	analytics    *analytics.Service
	config       Config
	logger       *zap.Logger
}

// NewService creates the settlement façade
func NewService(
	ledgerSvc *ledger.Service,
	aggregatorSvc *aggregator.Service,
	orchestratorSvc *orchestrator.Service,
	analyticsSvc *analytics.Service,
	config Config,
	logger *zap.Logger,
) *Service {
	return &Service{
		ledger:       ledgerSvc,
		aggregator:   aggregatorSvc,
		orchestrator: orchestratorSvc,
		analytics:    analyticsSvc,
		config:       config,
		logger:       logger,
	}
}

// QueueTip validates and ingests one confirmed tip, returning the id of the
// settlement batch it was grouped into. A replayed tip fails with a
// duplicate error naming the original batch.
func (s *Service) QueueTip(ctx context.Context, req *entities.QueueTipRequest) (uuid.UUID, error) {
	tip, err := s.tipFromRequest(req)
	if err != nil {
		return uuid.Nil, err
	}
	return s.aggregator.QueueTip(ctx, tip)
}

func (s *Service) tipFromRequest(req *entities.QueueTipRequest) (*entities.Tip, error) {
	if !txHashPattern.MatchString(req.TxHash) {
		return nil, domainerrors.ValidationError("transaction_hash", "must be a 0x-prefixed 32-byte hex hash")
	}
	if !s.config.SourceChainIDs[req.ChainID] {
		return nil, domainerrors.ValidationError("chain_id", fmt.Sprintf("unsupported source chain %d", req.ChainID))
	}
	if !addressPattern.MatchString(req.TokenAddress) {
		return nil, domainerrors.ValidationError("token_address", "must be a 0x-prefixed 20-byte hex address")
	}
	if !addressPattern.MatchString(req.StreamerAddress) {
		return nil, domainerrors.ValidationError("streamer_address", "must be a 0x-prefixed 20-byte hex address")
	}
	if req.BusinessAddress != "" && !addressPattern.MatchString(req.BusinessAddress) {
		return nil, domainerrors.ValidationError("business_address", "must be a 0x-prefixed 20-byte hex address")
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return nil, domainerrors.ValidationError("amount", "must be a decimal integer in the token's smallest unit")
	}
	if !amount.IsInteger() || amount.LessThanOrEqual(decimal.Zero) {
		return nil, domainerrors.ValidationError("amount", "must be a positive integer in the token's smallest unit")
	}
	if s.config.MaxTipMessageLen > 0 && len(req.Message) > s.config.MaxTipMessageLen {
		return nil, domainerrors.ValidationError("message", fmt.Sprintf("must be at most %d characters", s.config.MaxTipMessageLen))
	}

	return &entities.Tip{
		TxHash:          strings.ToLower(req.TxHash),
		ChainID:         req.ChainID,
		TokenAddress:    strings.ToLower(req.TokenAddress),
		Amount:          amount,
		StreamerAddress: strings.ToLower(req.StreamerAddress),
		BusinessAddress: strings.ToLower(req.BusinessAddress),
		Message:         req.Message,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// ManualSettle force-closes the streamer's non-empty open batches,
// optionally narrowed to one chain or token. Returns the ids it triggered;
// with nothing open it is a successful no-op.
func (s *Service) ManualSettle(ctx context.Context, req *entities.ManualSettleRequest) ([]uuid.UUID, error) {
	if !addressPattern.MatchString(req.StreamerAddress) {
		return nil, domainerrors.ValidationError("streamer_address", "must be a 0x-prefixed 20-byte hex address")
	}
	if req.TokenAddress != "" && !addressPattern.MatchString(req.TokenAddress) {
		return nil, domainerrors.ValidationError("token_address", "must be a 0x-prefixed 20-byte hex address")
	}
	return s.aggregator.ManualSettle(ctx, strings.ToLower(req.StreamerAddress), req.ChainID, strings.ToLower(req.TokenAddress))
}

// ProcessBatch runs a closed or failed batch through conversion and
// bridging. Concurrent calls for the same batch are rejected.
func (s *Service) ProcessBatch(ctx context.Context, settlementID uuid.UUID) (*entities.Settlement, error) {
	return s.orchestrator.ProcessBatch(ctx, settlementID)
}

// GetSettlement returns one settlement by id
func (s *Service) GetSettlement(ctx context.Context, settlementID uuid.UUID) (*entities.Settlement, error) {
	return s.ledger.GetSettlement(ctx, settlementID)
}

// ListSettlementTips returns the member tips of one settlement batch
func (s *Service) ListSettlementTips(ctx context.Context, settlementID uuid.UUID) ([]*entities.Tip, error) {
	if _, err := s.ledger.GetSettlement(ctx, settlementID); err != nil {
		return nil, err
	}
	return s.ledger.ListSettlementTips(ctx, settlementID)
}

// CountStreamerTips returns how many tips have ever been recorded for a
// streamer, across open and settled batches
func (s *Service) CountStreamerTips(ctx context.Context, streamer string) (int, error) {
	if !addressPattern.MatchString(streamer) {
		return 0, domainerrors.ValidationError("streamer_address", "must be a 0x-prefixed 20-byte hex address")
	}
	return s.ledger.CountTipsByStreamer(ctx, strings.ToLower(streamer))
}

// ListSettlements returns a streamer's settlements, newest first
func (s *Service) ListSettlements(ctx context.Context, streamer string, limit int) ([]*entities.Settlement, error) {
	if !addressPattern.MatchString(streamer) {
		return nil, domainerrors.ValidationError("streamer_address", "must be a 0x-prefixed 20-byte hex address")
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.ledger.ListByStreamer(ctx, strings.ToLower(streamer), limit)
}

// PendingTotals returns a streamer's open amounts grouped by chain and token
func (s *Service) PendingTotals(ctx context.Context, streamer string) (entities.PendingTotals, error) {
	if !addressPattern.MatchString(streamer) {
		return nil, domainerrors.ValidationError("streamer_address", "must be a 0x-prefixed 20-byte hex address")
	}
	return s.ledger.PendingTotals(ctx, strings.ToLower(streamer))
}

// ListPendingBatches returns every non-empty open batch
func (s *Service) ListPendingBatches(ctx context.Context) ([]entities.PendingBatch, error) {
	return s.ledger.ListPendingBatches(ctx)
}

// BridgeStatus returns the cached bridge provider health
func (s *Service) BridgeStatus(ctx context.Context) entities.BridgeStatus {
	status := s.orchestrator.BridgeStatus()
	if status.CheckedAt.IsZero() {
		return s.orchestrator.RefreshBridgeStatus(ctx)
	}
	return status
}

// GetStreamerAnalytics returns the metrics view for one streamer
func (s *Service) GetStreamerAnalytics(ctx context.Context, streamer string, timeframe entities.Timeframe) (*entities.StreamerAnalytics, error) {
	if !addressPattern.MatchString(streamer) {
		return nil, domainerrors.ValidationError("streamer_address", "must be a 0x-prefixed 20-byte hex address")
	}
	return s.analytics.GetStreamerAnalytics(ctx, strings.ToLower(streamer), timeframe)
}
