package postgres

import (
	"context"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

var _ storage.ActivityStore = (*ActivityStore)(nil)

// ActivityStore implements storage.ActivityStore using sqlx.
type ActivityStore struct {
	db DBTX
}

func NewActivityStore(db DBTX) *ActivityStore {
	return &ActivityStore{db: db}
}

func (s *ActivityStore) Insert(ctx context.Context, rec *domain.ActivityRecord) error {
	query := `
		INSERT INTO activity_records (
			id, wallet_id, type, tx_hash, condition_id,
			outcome, outcome_index, size, price, usd_value,
			token, category, metadata, status,
			realized_pnl, percent_pnl, notification_ref, alerting,
			traded_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21
		)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.WalletID, rec.Type, rec.TxHash, rec.ConditionID,
		rec.Outcome, rec.OutcomeIndex, rec.Size, rec.Price, rec.UsdValue,
		rec.Token, rec.Category, rec.Metadata, rec.Status,
		rec.RealizedPnl, rec.PercentPnl, rec.NotificationRef, rec.Alerting,
		rec.TradedAt, rec.CreatedAt, rec.UpdatedAt,
	)
	return err
}

func (s *ActivityStore) Update(ctx context.Context, rec *domain.ActivityRecord) error {
	query := `
		UPDATE activity_records SET
			status = $2,
			realized_pnl = $3,
			percent_pnl = $4,
			notification_ref = $5,
			alerting = $6,
			updated_at = now()
		WHERE id = $1`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Status, rec.RealizedPnl, rec.PercentPnl, rec.NotificationRef, rec.Alerting,
	)
	return err
}

func (s *ActivityStore) ExistsTrade(ctx context.Context, key domain.PositionKey, txHash string) (bool, error) {
	var exists bool

	query := `
		SELECT EXISTS (
			SELECT 1 FROM activity_records a
			JOIN tracked_wallets w ON w.id = a.wallet_id
			WHERE w.address = $1
			  AND a.condition_id = $2
			  AND a.outcome_index = $3
			  AND a.tx_hash = $4
			  AND a.type IN ('BUY', 'SELL')
		)`

	err := s.db.GetContext(ctx, &exists, query,
		key.Wallet, key.ConditionID, key.OutcomeIndex, txHash)
	return exists, err
}

func (s *ActivityStore) ExistsTx(ctx context.Context, txHash string) (bool, error) {
	var exists bool

	query := `SELECT EXISTS (SELECT 1 FROM activity_records WHERE tx_hash = $1)`

	err := s.db.GetContext(ctx, &exists, query, txHash)
	return exists, err
}

func (s *ActivityStore) OpenPositions(ctx context.Context, key domain.PositionKey) ([]domain.ActivityRecord, error) {
	var recs []domain.ActivityRecord

	query := `
		SELECT a.* FROM activity_records a
		JOIN tracked_wallets w ON w.id = a.wallet_id
		WHERE w.address = $1
		  AND a.condition_id = $2
		  AND a.outcome_index = $3
		  AND a.type = 'BUY'
		  AND a.status IN ('open', 'added')
		ORDER BY a.traded_at ASC`

	err := s.db.SelectContext(ctx, &recs, query,
		key.Wallet, key.ConditionID, key.OutcomeIndex)
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (s *ActivityStore) HasOpen(ctx context.Context, key domain.PositionKey) (bool, error) {
	var exists bool

	query := `
		SELECT EXISTS (
			SELECT 1 FROM activity_records a
			JOIN tracked_wallets w ON w.id = a.wallet_id
			WHERE w.address = $1
			  AND a.condition_id = $2
			  AND a.outcome_index = $3
			  AND a.status = 'open'
		)`

	err := s.db.GetContext(ctx, &exists, query,
		key.Wallet, key.ConditionID, key.OutcomeIndex)
	return exists, err
}
