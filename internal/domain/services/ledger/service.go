// Package ledger is the durable accounting core: the append-only tip log,
// the open per-key aggregation groups, and the settlement batches with
// their status state machine. All monetary arithmetic is exact decimal;
// no floating point ever touches an amount.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/streamtip/settlement_service/internal/domain/entities"
	domainerrors "github.com/streamtip/settlement_service/internal/domain/errors"
	"github.com/streamtip/settlement_service/internal/domain/repositories"
)

// Service enforces the accounting invariants over the three stores.
// Mutating calls for one aggregation key must be serialized by the caller
// (the aggregator holds the key lock); status moves on closed settlements
// are guarded by compare-and-swap writes instead.
type Service struct {
	tips        repositories.TipRepository
	settlements repositories.SettlementRepository
	groups      repositories.PendingGroupRepository
	logger      *zap.Logger
}

// NewService creates a new ledger service
func NewService(
	tips repositories.TipRepository,
	settlements repositories.SettlementRepository,
	groups repositories.PendingGroupRepository,
	logger *zap.Logger,
) *Service {
	return &Service{
		tips:        tips,
		settlements: settlements,
		groups:      groups,
		logger:      logger,
	}
}

// AppendToOpenSettlement records the tip and adds it to the open settlement
// for its key, creating the settlement and group lazily on first tip.
// Replayed deliveries fail with a duplicate error carrying the settlement id
// the original tip was grouped into.
func (s *Service) AppendToOpenSettlement(ctx context.Context, tip *entities.Tip) (uuid.UUID, error) {
	key := tip.Key()

	// reject replays before touching group state, so a duplicate arriving
	// when its key has no open group does not open an empty one
	existing, err := s.tips.GetByHash(ctx, tip.TxHash, tip.ChainID)
	if err != nil {
		return uuid.Nil, domainerrors.Wrap(err, "check duplicate")
	}
	if existing != nil {
		settlementID := ""
		if existing.SettlementID != nil {
			settlementID = existing.SettlementID.String()
		}
		return uuid.Nil, domainerrors.DuplicateTipError(tip.TxHash, tip.ChainID, settlementID)
	}

	group, err := s.groups.GetOpen(ctx, key)
	if err != nil {
		return uuid.Nil, domainerrors.Wrap(err, "get open group")
	}
	if group == nil {
		group, err = s.openGroup(ctx, tip)
		if err != nil {
			return uuid.Nil, err
		}
	}

	settlementID := group.SettlementID
	tip.SettlementID = &settlementID

	if err := s.tips.Create(ctx, tip); err != nil {
		// backstop for a replay racing past the pre-check
		if domainerrors.IsDuplicateTip(err) {
			return uuid.Nil, s.duplicateError(ctx, tip)
		}
		return uuid.Nil, domainerrors.Wrap(err, "record tip")
	}

	group.Amount = group.Amount.Add(tip.Amount)
	group.TipCount++
	group.TipHashes = append(group.TipHashes, tip.TxHash)
	if group.OldestTipAt.IsZero() {
		group.OldestTipAt = tip.CreatedAt
	}
	if err := s.groups.Update(ctx, group); err != nil {
		return uuid.Nil, domainerrors.Wrap(err, "update group")
	}

	settlement, err := s.settlements.GetByID(ctx, settlementID)
	if err != nil {
		return uuid.Nil, domainerrors.Wrap(err, "load settlement")
	}
	settlement.TotalAmount = settlement.TotalAmount.Add(tip.Amount)
	settlement.TipCount++
	settlement.TipHashes = append(settlement.TipHashes, tip.TxHash)
	if err := s.settlements.Update(ctx, settlement); err != nil {
		return uuid.Nil, domainerrors.Wrap(err, "update settlement")
	}

	return settlementID, nil
}

// openGroup creates the settlement and pending group for a key's first tip
func (s *Service) openGroup(ctx context.Context, tip *entities.Tip) (*entities.PendingGroup, error) {
	now := time.Now().UTC()
	settlement := &entities.Settlement{
		ID:              uuid.New(),
		StreamerAddress: tip.StreamerAddress,
		BusinessAddress: tip.BusinessAddress,
		ChainID:         tip.ChainID,
		TokenAddress:    tip.TokenAddress,
		TotalAmount:     decimal.Zero,
		Status:          entities.SettlementStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.settlements.Create(ctx, settlement); err != nil {
		return nil, domainerrors.Wrap(err, "create settlement")
	}

	group := &entities.PendingGroup{
		SettlementID: settlement.ID,
		Key:          tip.Key(),
		Amount:       decimal.Zero,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, domainerrors.Wrap(err, "create group")
	}

	s.logger.Debug("Opened new settlement batch",
		zap.String("settlement_id", settlement.ID.String()),
		zap.String("streamer", tip.StreamerAddress),
		zap.Int64("chain_id", tip.ChainID))

	return group, nil
}

func (s *Service) duplicateError(ctx context.Context, tip *entities.Tip) error {
	existing, err := s.tips.GetByHash(ctx, tip.TxHash, tip.ChainID)
	settlementID := ""
	if err == nil && existing != nil && existing.SettlementID != nil {
		settlementID = existing.SettlementID.String()
	}
	return domainerrors.DuplicateTipError(tip.TxHash, tip.ChainID, settlementID)
}

// ListSettlementTips returns the member tips of one settlement batch,
// whether it is still open or already closed
func (s *Service) ListSettlementTips(ctx context.Context, settlementID uuid.UUID) ([]*entities.Tip, error) {
	tips, err := s.tips.ListBySettlement(ctx, settlementID)
	if err != nil {
		return nil, domainerrors.Wrap(err, "list settlement tips")
	}
	return tips, nil
}

// CloseSettlement freezes the group's membership, moves the settlement to
// batching and returns a snapshot for the orchestrator. Returns nil when the
// group was already closed by a concurrent trigger.
func (s *Service) CloseSettlement(ctx context.Context, settlementID uuid.UUID) (*entities.BatchSnapshot, error) {
	closed, err := s.groups.Close(ctx, settlementID)
	if err != nil {
		return nil, domainerrors.Wrap(err, "close group")
	}
	if !closed {
		return nil, nil
	}

	if err := s.UpdateStatus(ctx, settlementID, entities.SettlementStatusBatching, ""); err != nil {
		return nil, err
	}

	settlement, err := s.settlements.GetByID(ctx, settlementID)
	if err != nil {
		return nil, domainerrors.Wrap(err, "load settlement")
	}

	s.logger.Info("Settlement batch closed",
		zap.String("settlement_id", settlementID.String()),
		zap.String("total_amount", settlement.TotalAmount.String()),
		zap.Int("tip_count", settlement.TipCount))

	return &entities.BatchSnapshot{
		SettlementID:    settlement.ID,
		StreamerAddress: settlement.StreamerAddress,
		BusinessAddress: settlement.BusinessAddress,
		ChainID:         settlement.ChainID,
		TokenAddress:    settlement.TokenAddress,
		TotalAmount:     settlement.TotalAmount,
		TipCount:        settlement.TipCount,
		TipHashes:       settlement.TipHashes,
	}, nil
}

// UpdateStatus applies a state-machine-legal transition. The underlying
// write is guarded by the current status, so a racing transition surfaces
// as an illegal move rather than a lost update.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to entities.SettlementStatus, detail string) error {
	return s.updateStatus(ctx, id, to, detail, "")
}

func (s *Service) updateStatus(ctx context.Context, id uuid.UUID, to entities.SettlementStatus, detail, destTxHash string) error {
	settlement, err := s.GetSettlement(ctx, id)
	if err != nil {
		return err
	}
	from := settlement.Status
	if !from.CanTransitionTo(to) {
		return domainerrors.IllegalTransitionError(string(from), string(to))
	}

	ok, err := s.settlements.UpdateStatus(ctx, id, from, to, detail, destTxHash)
	if err != nil {
		return domainerrors.Wrap(err, "update status")
	}
	if !ok {
		return domainerrors.IllegalTransitionError(string(from), string(to))
	}
	return nil
}

// MarkFailed records a failure detail (and the destination hash when
// partially known) and moves the settlement to failed
func (s *Service) MarkFailed(ctx context.Context, id uuid.UUID, detail, destTxHash string) error {
	return s.updateStatus(ctx, id, entities.SettlementStatusFailed, detail, destTxHash)
}

// MarkBridging stores the converted amount and moves converting -> bridging
func (s *Service) MarkBridging(ctx context.Context, id uuid.UUID, convertedAmount decimal.Decimal) error {
	settlement, err := s.GetSettlement(ctx, id)
	if err != nil {
		return err
	}
	if !settlement.Status.CanTransitionTo(entities.SettlementStatusBridging) {
		return domainerrors.IllegalTransitionError(string(settlement.Status), string(entities.SettlementStatusBridging))
	}
	settlement.Status = entities.SettlementStatusBridging
	settlement.ConvertedAmount = convertedAmount
	settlement.ErrorDetail = ""
	return domainerrors.Wrap(s.settlements.Update(ctx, settlement), "update settlement")
}

// RecordCompletion stores the destination hash and the three-way split and
// moves bridging -> completed
func (s *Service) RecordCompletion(ctx context.Context, id uuid.UUID, destTxHash string, fee, businessShare, streamerShare decimal.Decimal) error {
	settlement, err := s.GetSettlement(ctx, id)
	if err != nil {
		return err
	}
	if !settlement.Status.CanTransitionTo(entities.SettlementStatusCompleted) {
		return domainerrors.IllegalTransitionError(string(settlement.Status), string(entities.SettlementStatusCompleted))
	}
	settlement.Status = entities.SettlementStatusCompleted
	settlement.DestTxHash = destTxHash
	settlement.PlatformFee = fee
	settlement.BusinessShare = businessShare
	settlement.StreamerShare = streamerShare
	settlement.ErrorDetail = ""
	return domainerrors.Wrap(s.settlements.Update(ctx, settlement), "update settlement")
}

// IncrementAttempt bumps the settlement's attempt counter and returns the
// new value, used to derive per-attempt idempotency tokens
func (s *Service) IncrementAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	settlement, err := s.GetSettlement(ctx, id)
	if err != nil {
		return 0, err
	}
	settlement.AttemptCount++
	if err := s.settlements.Update(ctx, settlement); err != nil {
		return 0, domainerrors.Wrap(err, "update settlement")
	}
	return settlement.AttemptCount, nil
}

// GetSettlement returns the settlement or a typed not-found error
func (s *Service) GetSettlement(ctx context.Context, id uuid.UUID) (*entities.Settlement, error) {
	settlement, err := s.settlements.GetByID(ctx, id)
	if err != nil {
		return nil, domainerrors.Wrap(err, "get settlement")
	}
	if settlement == nil {
		return nil, domainerrors.NotFoundError("settlement", id.String())
	}
	return settlement, nil
}

// ListByStreamer returns the streamer's settlements, newest first
func (s *Service) ListByStreamer(ctx context.Context, streamer string, limit int) ([]*entities.Settlement, error) {
	return s.settlements.ListByStreamer(ctx, streamer, limit)
}

// ListByStatus returns all settlements in the given status, oldest first
func (s *Service) ListByStatus(ctx context.Context, status entities.SettlementStatus) ([]*entities.Settlement, error) {
	return s.settlements.ListByStatus(ctx, status)
}

// GetOpenGroup returns the open group for a key, or nil
func (s *Service) GetOpenGroup(ctx context.Context, key entities.SettlementKey) (*entities.PendingGroup, error) {
	return s.groups.GetOpen(ctx, key)
}

// ListOpenGroups returns every open group
func (s *Service) ListOpenGroups(ctx context.Context) ([]*entities.PendingGroup, error) {
	return s.groups.ListOpen(ctx)
}

// PendingTotals returns the streamer's open-group amounts grouped as
// chain id -> token address -> {amount, count}
func (s *Service) PendingTotals(ctx context.Context, streamer string) (entities.PendingTotals, error) {
	groups, err := s.groups.ListOpenByStreamer(ctx, streamer)
	if err != nil {
		return nil, domainerrors.Wrap(err, "list open groups")
	}

	totals := make(entities.PendingTotals)
	for _, g := range groups {
		if g.TipCount == 0 {
			continue
		}
		byToken, ok := totals[g.Key.ChainID]
		if !ok {
			byToken = make(map[string]entities.PendingTotal)
			totals[g.Key.ChainID] = byToken
		}
		byToken[g.Key.TokenAddress] = entities.PendingTotal{
			Amount: g.Amount,
			Count:  g.TipCount,
		}
	}
	return totals, nil
}

// ListPendingBatches returns the non-empty open groups as the caller-facing
// pending batch view
func (s *Service) ListPendingBatches(ctx context.Context) ([]entities.PendingBatch, error) {
	groups, err := s.groups.ListOpen(ctx)
	if err != nil {
		return nil, domainerrors.Wrap(err, "list open groups")
	}

	batches := make([]entities.PendingBatch, 0, len(groups))
	for _, g := range groups {
		if g.TipCount == 0 {
			continue
		}
		batches = append(batches, entities.PendingBatch{
			BatchID:         g.SettlementID,
			StreamerAddress: g.Key.StreamerAddress,
			ChainID:         g.Key.ChainID,
			TokenAddress:    g.Key.TokenAddress,
			Amount:          g.Amount,
			Count:           g.TipCount,
		})
	}
	return batches, nil
}

// CountTipsByStreamer returns the total recorded tips for a streamer
func (s *Service) CountTipsByStreamer(ctx context.Context, streamer string) (int, error) {
	return s.tips.CountByStreamer(ctx, streamer)
}
