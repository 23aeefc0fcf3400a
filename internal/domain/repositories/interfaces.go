// Package repositories defines the persistence interfaces the domain
// services depend on. Postgres implementations live under
// internal/infrastructure/repositories; an in-memory implementation used
// by demo mode and tests lives under
// internal/infrastructure/repositories/memstore.
package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/streamtip/settlement_service/internal/domain/entities"
)

// TipRepository persists the append-only tip log
type TipRepository interface {
	// Create stores a new tip. Returns a duplicate error if the
	// (txHash, chainID) pair is already recorded.
	Create(ctx context.Context, tip *entities.Tip) error
	GetByHash(ctx context.Context, txHash string, chainID int64) (*entities.Tip, error)
	ListBySettlement(ctx context.Context, settlementID uuid.UUID) ([]*entities.Tip, error)
	CountByStreamer(ctx context.Context, streamer string) (int, error)
}

// SettlementRepository persists settlement batches
type SettlementRepository interface {
	Create(ctx context.Context, s *entities.Settlement) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Settlement, error)
	Update(ctx context.Context, s *entities.Settlement) error
	// UpdateStatus applies status, error detail and destination hash in one
	// write, guarded by the expected current status. Returns false when the
	// guard did not match.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to entities.SettlementStatus, detail, destTxHash string) (bool, error)
	ListByStreamer(ctx context.Context, streamer string, limit int) ([]*entities.Settlement, error)
	ListByStatus(ctx context.Context, status entities.SettlementStatus) ([]*entities.Settlement, error)
}

// PendingGroupRepository persists the open aggregation groups
type PendingGroupRepository interface {
	// GetOpen returns the open group for key, or nil when none exists
	GetOpen(ctx context.Context, key entities.SettlementKey) (*entities.PendingGroup, error)
	Create(ctx context.Context, g *entities.PendingGroup) error
	Update(ctx context.Context, g *entities.PendingGroup) error
	// Close detaches the group identified by settlementID from future tip
	// assignment. Returns false when the group was already closed.
	Close(ctx context.Context, settlementID uuid.UUID) (bool, error)
	ListOpen(ctx context.Context) ([]*entities.PendingGroup, error)
	ListOpenByStreamer(ctx context.Context, streamer string) ([]*entities.PendingGroup, error)
}
