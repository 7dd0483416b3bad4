package postgres

import (
	"context"

	"github.com/google/uuid"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

var _ storage.CopyTradeStore = (*CopyTradeStore)(nil)

// CopyTradeStore implements storage.CopyTradeStore using sqlx.
type CopyTradeStore struct {
	db DBTX
}

func NewCopyTradeStore(db DBTX) *CopyTradeStore {
	return &CopyTradeStore{db: db}
}

func (s *CopyTradeStore) Insert(ctx context.Context, p *domain.CopyTradePosition) error {
	query := `
		INSERT INTO copy_trade_positions (
			id, wallet_id, open_activity_id, condition_id,
			outcome, outcome_index, market_title,
			invested_usd, shares_bought, entry_price, entry_tx_hash, entered_at,
			shares_sold, exit_price, exit_tx_hash, exited_at,
			realized_pnl, percent_pnl, final_value,
			status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22
		)`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.WalletID, p.OpenActivityID, p.ConditionID,
		p.Outcome, p.OutcomeIndex, p.MarketTitle,
		p.InvestedUSD, p.SharesBought, p.EntryPrice, p.EntryTxHash, p.EnteredAt,
		p.SharesSold, p.ExitPrice, p.ExitTxHash, p.ExitedAt,
		p.RealizedPnl, p.PercentPnl, p.FinalValue,
		p.Status, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (s *CopyTradeStore) Update(ctx context.Context, p *domain.CopyTradePosition) error {
	query := `
		UPDATE copy_trade_positions SET
			shares_sold = $2,
			exit_price = $3,
			exit_tx_hash = $4,
			exited_at = $5,
			realized_pnl = $6,
			percent_pnl = $7,
			final_value = $8,
			status = $9,
			updated_at = now()
		WHERE id = $1`

	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.SharesSold, p.ExitPrice, p.ExitTxHash, p.ExitedAt,
		p.RealizedPnl, p.PercentPnl, p.FinalValue, p.Status,
	)
	return err
}

func (s *CopyTradeStore) OpenByKey(ctx context.Context, walletID uuid.UUID, conditionID string, outcomeIndex int) ([]domain.CopyTradePosition, error) {
	var positions []domain.CopyTradePosition

	query := `
		SELECT * FROM copy_trade_positions
		WHERE wallet_id = $1
		  AND condition_id = $2
		  AND outcome_index = $3
		  AND status IN ('open', 'partially_closed')
		ORDER BY entered_at ASC`

	err := s.db.SelectContext(ctx, &positions, query, walletID, conditionID, outcomeIndex)
	if err != nil {
		return nil, err
	}
	return positions, nil
}
