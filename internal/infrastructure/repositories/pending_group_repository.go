package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/streamtip/settlement_service/internal/domain/entities"
)

// PendingGroupRepository implements the pending group repository interface on Postgres
type PendingGroupRepository struct {
	db *sqlx.DB
}

// NewPendingGroupRepository creates a new pending group repository
func NewPendingGroupRepository(db *sqlx.DB) *PendingGroupRepository {
	return &PendingGroupRepository{db: db}
}

type pendingGroupRow struct {
	SettlementID    uuid.UUID       `db:"settlement_id"`
	StreamerAddress string          `db:"streamer_address"`
	ChainID         int64           `db:"chain_id"`
	TokenAddress    string          `db:"token_address"`
	Amount          decimal.Decimal `db:"amount"`
	TipCount        int             `db:"tip_count"`
	TipHashes       pq.StringArray  `db:"tip_hashes"`
	OldestTipAt     sql.NullTime    `db:"oldest_tip_at"`
	Open            bool            `db:"open"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

func (row *pendingGroupRow) toEntity() *entities.PendingGroup {
	g := &entities.PendingGroup{
		SettlementID: row.SettlementID,
		Key: entities.SettlementKey{
			StreamerAddress: row.StreamerAddress,
			ChainID:         row.ChainID,
			TokenAddress:    row.TokenAddress,
		},
		Amount:    row.Amount,
		TipCount:  row.TipCount,
		TipHashes: []string(row.TipHashes),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.OldestTipAt.Valid {
		g.OldestTipAt = row.OldestTipAt.Time
	}
	return g
}

func (r *PendingGroupRepository) GetOpen(ctx context.Context, key entities.SettlementKey) (*entities.PendingGroup, error) {
	var row pendingGroupRow
	query := `
		SELECT * FROM pending_groups
		WHERE streamer_address = $1 AND chain_id = $2 AND token_address = $3 AND open`
	err := r.db.GetContext(ctx, &row, query, key.StreamerAddress, key.ChainID, key.TokenAddress)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toEntity(), nil
}

func (r *PendingGroupRepository) Create(ctx context.Context, g *entities.PendingGroup) error {
	query := `
		INSERT INTO pending_groups (
			settlement_id, streamer_address, chain_id, token_address,
			amount, tip_count, tip_hashes, oldest_tip_at, open, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		g.SettlementID, g.Key.StreamerAddress, g.Key.ChainID, g.Key.TokenAddress,
		g.Amount, g.TipCount, pq.StringArray(g.TipHashes), nullTime(g.OldestTipAt),
		g.CreatedAt, g.UpdatedAt,
	)
	return err
}

func (r *PendingGroupRepository) Update(ctx context.Context, g *entities.PendingGroup) error {
	query := `
		UPDATE pending_groups SET
			amount = $2, tip_count = $3, tip_hashes = $4, oldest_tip_at = $5, updated_at = $6
		WHERE settlement_id = $1 AND open`

	g.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		g.SettlementID, g.Amount, g.TipCount, pq.StringArray(g.TipHashes),
		nullTime(g.OldestTipAt), g.UpdatedAt,
	)
	return err
}

// Close is the compare-and-swap that detaches a group: the WHERE open guard
// makes a second close of the same group a no-op
func (r *PendingGroupRepository) Close(ctx context.Context, settlementID uuid.UUID) (bool, error) {
	query := `UPDATE pending_groups SET open = FALSE, updated_at = $2 WHERE settlement_id = $1 AND open`
	res, err := r.db.ExecContext(ctx, query, settlementID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PendingGroupRepository) ListOpen(ctx context.Context) ([]*entities.PendingGroup, error) {
	var rows []pendingGroupRow
	query := `SELECT * FROM pending_groups WHERE open ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}
	return groupsToEntities(rows), nil
}

func (r *PendingGroupRepository) ListOpenByStreamer(ctx context.Context, streamer string) ([]*entities.PendingGroup, error) {
	var rows []pendingGroupRow
	query := `SELECT * FROM pending_groups WHERE streamer_address = $1 AND open ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &rows, query, streamer); err != nil {
		return nil, err
	}
	return groupsToEntities(rows), nil
}

func groupsToEntities(rows []pendingGroupRow) []*entities.PendingGroup {
	out := make([]*entities.PendingGroup, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toEntity())
	}
	return out
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
