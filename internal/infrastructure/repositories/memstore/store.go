// Package memstore provides in-memory implementations of the persistence
// interfaces. It backs demo mode, where the service runs without a
// database, and the service-level tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/streamtip/settlement_service/internal/domain/entities"
	domainerrors "github.com/streamtip/settlement_service/internal/domain/errors"
)

// Store holds all in-memory state behind one lock. The repositories handed
// out by the accessors share it.
type Store struct {
	mu          sync.RWMutex
	tips        map[tipKey]*entities.Tip
	settlements map[uuid.UUID]*entities.Settlement
	groups      map[uuid.UUID]*groupRecord
}

type tipKey struct {
	txHash  string
	chainID int64
}

type groupRecord struct {
	group *entities.PendingGroup
	open  bool
}

// New creates an empty store
func New() *Store {
	return &Store{
		tips:        make(map[tipKey]*entities.Tip),
		settlements: make(map[uuid.UUID]*entities.Settlement),
		groups:      make(map[uuid.UUID]*groupRecord),
	}
}

// Tips returns the tip repository view of the store
func (s *Store) Tips() *TipRepository { return &TipRepository{store: s} }

// Settlements returns the settlement repository view of the store
func (s *Store) Settlements() *SettlementRepository { return &SettlementRepository{store: s} }

// PendingGroups returns the pending group repository view of the store
func (s *Store) PendingGroups() *PendingGroupRepository { return &PendingGroupRepository{store: s} }

// TipRepository implements repositories.TipRepository in memory
type TipRepository struct {
	store *Store
}

func (r *TipRepository) Create(ctx context.Context, tip *entities.Tip) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	k := tipKey{txHash: tip.TxHash, chainID: tip.ChainID}
	if _, exists := r.store.tips[k]; exists {
		return domainerrors.ErrDuplicateTip
	}
	r.store.tips[k] = copyTip(tip)
	return nil
}

func (r *TipRepository) GetByHash(ctx context.Context, txHash string, chainID int64) (*entities.Tip, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	tip, ok := r.store.tips[tipKey{txHash: txHash, chainID: chainID}]
	if !ok {
		return nil, nil
	}
	return copyTip(tip), nil
}

func (r *TipRepository) ListBySettlement(ctx context.Context, settlementID uuid.UUID) ([]*entities.Tip, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var tips []*entities.Tip
	for _, tip := range r.store.tips {
		if tip.SettlementID != nil && *tip.SettlementID == settlementID {
			tips = append(tips, copyTip(tip))
		}
	}
	sort.Slice(tips, func(i, j int) bool { return tips[i].CreatedAt.Before(tips[j].CreatedAt) })
	return tips, nil
}

func (r *TipRepository) CountByStreamer(ctx context.Context, streamer string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	count := 0
	for _, tip := range r.store.tips {
		if tip.StreamerAddress == streamer {
			count++
		}
	}
	return count, nil
}

// SettlementRepository implements repositories.SettlementRepository in memory
type SettlementRepository struct {
	store *Store
}

func (r *SettlementRepository) Create(ctx context.Context, s *entities.Settlement) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.settlements[s.ID] = copySettlement(s)
	return nil
}

func (r *SettlementRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Settlement, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	s, ok := r.store.settlements[id]
	if !ok {
		return nil, nil
	}
	return copySettlement(s), nil
}

func (r *SettlementRepository) Update(ctx context.Context, s *entities.Settlement) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	s.UpdatedAt = time.Now().UTC()
	r.store.settlements[s.ID] = copySettlement(s)
	return nil
}

func (r *SettlementRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entities.SettlementStatus, detail, destTxHash string) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	s, ok := r.store.settlements[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	s.ErrorDetail = detail
	if destTxHash != "" {
		s.DestTxHash = destTxHash
	}
	s.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *SettlementRepository) ListByStreamer(ctx context.Context, streamer string, limit int) ([]*entities.Settlement, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*entities.Settlement
	for _, s := range r.store.settlements {
		if s.StreamerAddress == streamer {
			out = append(out, copySettlement(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *SettlementRepository) ListByStatus(ctx context.Context, status entities.SettlementStatus) ([]*entities.Settlement, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*entities.Settlement
	for _, s := range r.store.settlements {
		if s.Status == status {
			out = append(out, copySettlement(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// PendingGroupRepository implements repositories.PendingGroupRepository in memory
type PendingGroupRepository struct {
	store *Store
}

func (r *PendingGroupRepository) GetOpen(ctx context.Context, key entities.SettlementKey) (*entities.PendingGroup, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	for _, rec := range r.store.groups {
		if rec.open && rec.group.Key == key {
			return copyGroup(rec.group), nil
		}
	}
	return nil, nil
}

func (r *PendingGroupRepository) Create(ctx context.Context, g *entities.PendingGroup) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.groups[g.SettlementID] = &groupRecord{group: copyGroup(g), open: true}
	return nil
}

func (r *PendingGroupRepository) Update(ctx context.Context, g *entities.PendingGroup) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	rec, ok := r.store.groups[g.SettlementID]
	if !ok || !rec.open {
		return nil
	}
	g.UpdatedAt = time.Now().UTC()
	rec.group = copyGroup(g)
	return nil
}

func (r *PendingGroupRepository) Close(ctx context.Context, settlementID uuid.UUID) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	rec, ok := r.store.groups[settlementID]
	if !ok || !rec.open {
		return false, nil
	}
	rec.open = false
	return true, nil
}

func (r *PendingGroupRepository) ListOpen(ctx context.Context) ([]*entities.PendingGroup, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*entities.PendingGroup
	for _, rec := range r.store.groups {
		if rec.open {
			out = append(out, copyGroup(rec.group))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *PendingGroupRepository) ListOpenByStreamer(ctx context.Context, streamer string) ([]*entities.PendingGroup, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*entities.PendingGroup
	for _, rec := range r.store.groups {
		if rec.open && rec.group.Key.StreamerAddress == streamer {
			out = append(out, copyGroup(rec.group))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func copyTip(t *entities.Tip) *entities.Tip {
	c := *t
	if t.SettlementID != nil {
		id := *t.SettlementID
		c.SettlementID = &id
	}
	return &c
}

func copySettlement(s *entities.Settlement) *entities.Settlement {
	c := *s
	c.TipHashes = append([]string(nil), s.TipHashes...)
	return &c
}

func copyGroup(g *entities.PendingGroup) *entities.PendingGroup {
	c := *g
	c.TipHashes = append([]string(nil), g.TipHashes...)
	return &c
}
