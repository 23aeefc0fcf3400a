// Package aggregator serializes tip ingestion per aggregation key and
// decides when an open settlement batch closes: amount threshold, window
// expiry, or a manual trigger.
package aggregator

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/streamtip/settlement_service/internal/domain/entities"
	domainerrors "github.com/streamtip/settlement_service/internal/domain/errors"
	"github.com/streamtip/settlement_service/internal/domain/services/ledger"
	"github.com/streamtip/settlement_service/pkg/keylock"
	"github.com/streamtip/settlement_service/pkg/metrics"
)

// Dispatcher receives closed batch snapshots for downstream processing.
// Dispatch must not block the caller.
type Dispatcher interface {
	Dispatch(snapshot *entities.BatchSnapshot)
}

// Config holds the close policy knobs
type Config struct {
	// MinBatchAmount is the threshold at or above which a batch closes
	// immediately, in the token's smallest unit
	MinBatchAmount decimal.Decimal
	// MaxBatchWindow closes a batch once its oldest tip is this old
	MaxBatchWindow time.Duration
}

// Service groups confirmed tips into settlement batches. A striped lock
// table keyed by (streamer, chain, token) makes queue and close decisions
// for one key single-writer; distinct keys proceed in parallel.
type Service struct {
	ledger     *ledger.Service
	dispatcher Dispatcher
	locks      *keylock.Table
	config     Config
	logger     *zap.Logger
}

// NewService creates a new aggregator service
func NewService(ledgerSvc *ledger.Service, dispatcher Dispatcher, locks *keylock.Table, config Config, logger *zap.Logger) *Service {
	return &Service{
		ledger:     ledgerSvc,
		dispatcher: dispatcher,
		locks:      locks,
		config:     config,
		logger:     logger,
	}
}

// QueueTip appends a confirmed tip to its key's open settlement, closing
// the batch when the running total reaches the threshold. Returns the id
// of the settlement the tip was grouped into.
func (s *Service) QueueTip(ctx context.Context, tip *entities.Tip) (uuid.UUID, error) {
	key := tip.Key()

	var (
		settlementID uuid.UUID
		snapshot     *entities.BatchSnapshot
	)
	err := s.withKey(key, func() error {
		id, err := s.ledger.AppendToOpenSettlement(ctx, tip)
		if err != nil {
			return err
		}
		settlementID = id

		group, err := s.ledger.GetOpenGroup(ctx, key)
		if err != nil {
			return err
		}
		if group != nil && group.Amount.GreaterThanOrEqual(s.config.MinBatchAmount) {
			snapshot, err = s.ledger.CloseSettlement(ctx, group.SettlementID)
			if err != nil {
				return err
			}
			if snapshot != nil {
				metrics.BatchesClosedTotal.WithLabelValues("threshold").Inc()
			}
		}
		return nil
	})
	if err != nil {
		if domainerrors.IsDuplicateTip(err) {
			metrics.DuplicateTipsTotal.Inc()
		}
		return uuid.Nil, err
	}

	metrics.TipsQueuedTotal.WithLabelValues(chainLabel(tip.ChainID)).Inc()

	if snapshot != nil {
		s.logger.Info("Batch reached amount threshold",
			zap.String("settlement_id", snapshot.SettlementID.String()),
			zap.String("total_amount", snapshot.TotalAmount.String()))
		s.dispatcher.Dispatch(snapshot)
	}
	return settlementID, nil
}

// ManualSettle closes the streamer's non-empty open batches and dispatches
// them. Chain id and token narrow the scope; zero values mean all. Empty
// batches stay open; with nothing to close the call is a no-op.
func (s *Service) ManualSettle(ctx context.Context, streamer string, chainID int64, tokenAddress string) ([]uuid.UUID, error) {
	groups, err := s.openGroups(ctx, streamer, chainID, tokenAddress)
	if err != nil {
		return nil, err
	}

	triggered := make([]uuid.UUID, 0, len(groups))
	for _, g := range groups {
		snapshot, err := s.closeGroup(ctx, g.Key, g.SettlementID)
		if err != nil {
			return triggered, err
		}
		if snapshot == nil {
			continue
		}
		metrics.BatchesClosedTotal.WithLabelValues("manual").Inc()
		triggered = append(triggered, snapshot.SettlementID)
		s.dispatcher.Dispatch(snapshot)
	}

	s.logger.Info("Manual settle triggered",
		zap.String("streamer", streamer),
		zap.Int("batches", len(triggered)))
	return triggered, nil
}

// SweepExpiredWindows closes open batches whose oldest tip has exceeded the
// batching window. Called periodically by the settlement worker.
func (s *Service) SweepExpiredWindows(ctx context.Context) (int, error) {
	groups, err := s.ledger.ListOpenGroups(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().UTC().Add(-s.config.MaxBatchWindow)
	closed := 0
	for _, g := range groups {
		if g.TipCount == 0 || g.OldestTipAt.After(cutoff) {
			continue
		}
		snapshot, err := s.closeGroup(ctx, g.Key, g.SettlementID)
		if err != nil {
			s.logger.Error("Window sweep close failed",
				zap.String("settlement_id", g.SettlementID.String()),
				zap.Error(err))
			continue
		}
		if snapshot == nil {
			continue
		}
		metrics.BatchesClosedTotal.WithLabelValues("window").Inc()
		closed++
		s.dispatcher.Dispatch(snapshot)
	}
	return closed, nil
}

// closeGroup re-checks membership under the key lock before closing, so a
// batch that emptied or already closed between listing and locking is skipped
func (s *Service) closeGroup(ctx context.Context, key entities.SettlementKey, settlementID uuid.UUID) (*entities.BatchSnapshot, error) {
	var snapshot *entities.BatchSnapshot
	err := s.withKey(key, func() error {
		group, err := s.ledger.GetOpenGroup(ctx, key)
		if err != nil {
			return err
		}
		if group == nil || group.SettlementID != settlementID || group.TipCount == 0 {
			return nil
		}
		snapshot, err = s.ledger.CloseSettlement(ctx, settlementID)
		return err
	})
	return snapshot, err
}

func (s *Service) openGroups(ctx context.Context, streamer string, chainID int64, tokenAddress string) ([]*entities.PendingGroup, error) {
	all, err := s.ledger.ListOpenGroups(ctx)
	if err != nil {
		return nil, err
	}
	groups := make([]*entities.PendingGroup, 0, len(all))
	for _, g := range all {
		if streamer != "" && g.Key.StreamerAddress != streamer {
			continue
		}
		if chainID != 0 && g.Key.ChainID != chainID {
			continue
		}
		if tokenAddress != "" && g.Key.TokenAddress != tokenAddress {
			continue
		}
		groups = append(groups, g)
	}
	return groups, nil
}

func (s *Service) withKey(key entities.SettlementKey, fn func() error) error {
	return s.locks.WithLock(key.String(), fn)
}

func chainLabel(chainID int64) string {
	return strconv.FormatInt(chainID, 10)
}
