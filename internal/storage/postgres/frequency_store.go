package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

var _ storage.FrequencyStore = (*FrequencyStore)(nil)

// FrequencyStore implements storage.FrequencyStore using sqlx.
type FrequencyStore struct {
	db DBTX
}

func NewFrequencyStore(db DBTX) *FrequencyStore {
	return &FrequencyStore{db: db}
}

func (s *FrequencyStore) Get(ctx context.Context, walletID uuid.UUID) (*domain.FrequencyWindow, error) {
	var w domain.FrequencyWindow

	query := `SELECT * FROM frequency_windows WHERE wallet_id = $1`

	err := s.db.GetContext(ctx, &w, query, walletID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *FrequencyStore) Put(ctx context.Context, w *domain.FrequencyWindow) error {
	query := `
		INSERT INTO frequency_windows (wallet_id, remaining, reset_at, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (wallet_id) DO UPDATE
		SET remaining = EXCLUDED.remaining,
		    reset_at = EXCLUDED.reset_at,
		    updated_at = now()`

	_, err := s.db.ExecContext(ctx, query, w.WalletID, w.Remaining, w.ResetAt)
	return err
}
