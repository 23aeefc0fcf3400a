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

// SettlementRepository implements the settlement repository interface on Postgres
type SettlementRepository struct {
	db *sqlx.DB
}

// NewSettlementRepository creates a new settlement repository
func NewSettlementRepository(db *sqlx.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// settlementRow maps the settlements table; nullable monetary columns use
// NullDecimal and the hash list uses the pq array adapter
type settlementRow struct {
	ID              uuid.UUID           `db:"id"`
	StreamerAddress string              `db:"streamer_address"`
	BusinessAddress string              `db:"business_address"`
	ChainID         int64               `db:"chain_id"`
	TokenAddress    string              `db:"token_address"`
	TotalAmount     decimal.Decimal     `db:"total_amount"`
	TipCount        int                 `db:"tip_count"`
	TipHashes       pq.StringArray      `db:"tip_hashes"`
	Status          string              `db:"status"`
	ConvertedAmount decimal.NullDecimal `db:"converted_amount"`
	PlatformFee     decimal.NullDecimal `db:"platform_fee"`
	BusinessShare   decimal.NullDecimal `db:"business_share"`
	StreamerShare   decimal.NullDecimal `db:"streamer_share"`
	DestTxHash      string              `db:"dest_tx_hash"`
	ErrorDetail     string              `db:"error_detail"`
	AttemptCount    int                 `db:"attempt_count"`
	CreatedAt       time.Time           `db:"created_at"`
	UpdatedAt       time.Time           `db:"updated_at"`
}

func (row *settlementRow) toEntity() *entities.Settlement {
	s := &entities.Settlement{
		ID:              row.ID,
		StreamerAddress: row.StreamerAddress,
		BusinessAddress: row.BusinessAddress,
		ChainID:         row.ChainID,
		TokenAddress:    row.TokenAddress,
		TotalAmount:     row.TotalAmount,
		TipCount:        row.TipCount,
		TipHashes:       []string(row.TipHashes),
		Status:          entities.SettlementStatus(row.Status),
		DestTxHash:      row.DestTxHash,
		ErrorDetail:     row.ErrorDetail,
		AttemptCount:    row.AttemptCount,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
	if row.ConvertedAmount.Valid {
		s.ConvertedAmount = row.ConvertedAmount.Decimal
	}
	if row.PlatformFee.Valid {
		s.PlatformFee = row.PlatformFee.Decimal
	}
	if row.BusinessShare.Valid {
		s.BusinessShare = row.BusinessShare.Decimal
	}
	if row.StreamerShare.Valid {
		s.StreamerShare = row.StreamerShare.Decimal
	}
	return s
}

func (r *SettlementRepository) Create(ctx context.Context, s *entities.Settlement) error {
	query := `
		INSERT INTO settlements (
			id, streamer_address, business_address, chain_id, token_address,
			total_amount, tip_count, tip_hashes, status, dest_tx_hash,
			error_detail, attempt_count, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.StreamerAddress, s.BusinessAddress, s.ChainID, s.TokenAddress,
		s.TotalAmount, s.TipCount, pq.StringArray(s.TipHashes), s.Status,
		s.DestTxHash, s.ErrorDetail, s.AttemptCount, s.CreatedAt, s.UpdatedAt,
	)
	return err
}

func (r *SettlementRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Settlement, error) {
	var row settlementRow
	query := `SELECT * FROM settlements WHERE id = $1`
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return row.toEntity(), nil
}

func (r *SettlementRepository) Update(ctx context.Context, s *entities.Settlement) error {
	query := `
		UPDATE settlements SET
			total_amount = $2, tip_count = $3, tip_hashes = $4, status = $5,
			converted_amount = $6, platform_fee = $7, business_share = $8,
			streamer_share = $9, dest_tx_hash = $10, error_detail = $11,
			attempt_count = $12, updated_at = $13
		WHERE id = $1`

	s.UpdatedAt = time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.TotalAmount, s.TipCount, pq.StringArray(s.TipHashes), s.Status,
		nullDecimal(s.ConvertedAmount), nullDecimal(s.PlatformFee),
		nullDecimal(s.BusinessShare), nullDecimal(s.StreamerShare),
		s.DestTxHash, s.ErrorDetail, s.AttemptCount, s.UpdatedAt,
	)
	return err
}

func (r *SettlementRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entities.SettlementStatus, detail, destTxHash string) (bool, error) {
	query := `
		UPDATE settlements SET
			status = $3,
			error_detail = $4,
			dest_tx_hash = CASE WHEN $5 <> '' THEN $5 ELSE dest_tx_hash END,
			updated_at = $6
		WHERE id = $1 AND status = $2`

	res, err := r.db.ExecContext(ctx, query, id, from, to, detail, destTxHash, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *SettlementRepository) ListByStreamer(ctx context.Context, streamer string, limit int) ([]*entities.Settlement, error) {
	var rows []settlementRow
	query := `
		SELECT * FROM settlements
		WHERE streamer_address = $1
		ORDER BY updated_at DESC
		LIMIT $2`
	if err := r.db.SelectContext(ctx, &rows, query, streamer, limit); err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

func (r *SettlementRepository) ListByStatus(ctx context.Context, status entities.SettlementStatus) ([]*entities.Settlement, error) {
	var rows []settlementRow
	query := `SELECT * FROM settlements WHERE status = $1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &rows, query, status); err != nil {
		return nil, err
	}
	return toEntities(rows), nil
}

func toEntities(rows []settlementRow) []*entities.Settlement {
	out := make([]*entities.Settlement, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toEntity())
	}
	return out
}

func nullDecimal(d decimal.Decimal) decimal.NullDecimal {
	if d.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
