package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

var _ storage.WalletStore = (*WalletStore)(nil)

// WalletStore implements storage.WalletStore using sqlx.
type WalletStore struct {
	db DBTX
}

func NewWalletStore(db DBTX) *WalletStore {
	return &WalletStore{db: db}
}

func (s *WalletStore) ListActive(ctx context.Context) ([]domain.TrackedWallet, error) {
	var wallets []domain.TrackedWallet

	query := `
		SELECT * FROM tracked_wallets
		WHERE active = TRUE
		ORDER BY created_at`

	if err := s.db.SelectContext(ctx, &wallets, query); err != nil {
		return nil, err
	}
	return wallets, nil
}

func (s *WalletStore) GetByAddress(ctx context.Context, address string) (*domain.TrackedWallet, error) {
	var w domain.TrackedWallet

	query := `SELECT * FROM tracked_wallets WHERE address = $1`

	err := s.db.GetContext(ctx, &w, query, domain.NormalizeAddress(address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *WalletStore) GetCheckpoint(ctx context.Context, walletID uuid.UUID) (time.Time, error) {
	var at time.Time

	query := `SELECT last_seen FROM wallet_checkpoints WHERE wallet_id = $1`

	err := s.db.GetContext(ctx, &at, query, walletID)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, storage.ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return at, nil
}

func (s *WalletStore) SetCheckpoint(ctx context.Context, walletID uuid.UUID, at time.Time) error {
	query := `
		INSERT INTO wallet_checkpoints (wallet_id, last_seen, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (wallet_id) DO UPDATE
		SET last_seen = EXCLUDED.last_seen, updated_at = now()`

	_, err := s.db.ExecContext(ctx, query, walletID, at)
	return err
}
