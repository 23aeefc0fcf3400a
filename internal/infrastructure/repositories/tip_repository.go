package repositories

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/streamtip/settlement_service/internal/domain/entities"
	domainerrors "github.com/streamtip/settlement_service/internal/domain/errors"
)

// TipRepository implements the tip repository interface on Postgres
type TipRepository struct {
	db *sqlx.DB
}

// NewTipRepository creates a new tip repository
func NewTipRepository(db *sqlx.DB) *TipRepository {
	return &TipRepository{db: db}
}

func (r *TipRepository) Create(ctx context.Context, tip *entities.Tip) error {
	query := `
		INSERT INTO tips (
			tx_hash, chain_id, token_address, amount, streamer_address,
			business_address, message, settlement_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.ExecContext(ctx, query,
		tip.TxHash, tip.ChainID, tip.TokenAddress, tip.Amount,
		tip.StreamerAddress, tip.BusinessAddress, tip.Message,
		tip.SettlementID, tip.CreatedAt,
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return domainerrors.ErrDuplicateTip
	}
	return err
}

func (r *TipRepository) GetByHash(ctx context.Context, txHash string, chainID int64) (*entities.Tip, error) {
	var tip entities.Tip
	query := `SELECT * FROM tips WHERE tx_hash = $1 AND chain_id = $2`
	if err := r.db.GetContext(ctx, &tip, query, txHash, chainID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &tip, nil
}

func (r *TipRepository) ListBySettlement(ctx context.Context, settlementID uuid.UUID) ([]*entities.Tip, error) {
	var tips []*entities.Tip
	query := `SELECT * FROM tips WHERE settlement_id = $1 ORDER BY created_at ASC`
	err := r.db.SelectContext(ctx, &tips, query, settlementID)
	return tips, err
}

func (r *TipRepository) CountByStreamer(ctx context.Context, streamer string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM tips WHERE streamer_address = $1`
	err := r.db.GetContext(ctx, &count, query, streamer)
	return count, err
}
