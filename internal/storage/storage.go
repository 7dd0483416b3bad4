// Package storage defines the persistence interfaces for the whale
// pipeline and the arbitrage scanner. Implementations live in the
// postgres and memory subpackages.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"whalewatch/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("storage: not found")

// WalletStore manages tracked whale wallets. The pipeline only reads;
// rows are managed externally.
type WalletStore interface {
	ListActive(ctx context.Context) ([]domain.TrackedWallet, error)
	GetByAddress(ctx context.Context, address string) (*domain.TrackedWallet, error)

	// Checkpoints record the last processed trade timestamp per wallet
	// so restarts do not replay old activity.
	GetCheckpoint(ctx context.Context, walletID uuid.UUID) (time.Time, error)
	SetCheckpoint(ctx context.Context, walletID uuid.UUID, at time.Time) error
}

// ActivityStore persists deduplicated activity records and their
// lifecycle state.
type ActivityStore interface {
	Insert(ctx context.Context, rec *domain.ActivityRecord) error
	Update(ctx context.Context, rec *domain.ActivityRecord) error

	// ExistsTrade reports whether a BUY/SELL with this tx hash was
	// already recorded for the position key.
	ExistsTrade(ctx context.Context, key domain.PositionKey, txHash string) (bool, error)

	// ExistsTx reports whether any record carries this tx hash; used
	// for transfer-type dedup.
	ExistsTx(ctx context.Context, txHash string) (bool, error)

	// OpenPositions returns open and added BUY records for the key,
	// oldest first, for FIFO close matching.
	OpenPositions(ctx context.Context, key domain.PositionKey) ([]domain.ActivityRecord, error)

	// HasOpen reports whether an open record exists for the key.
	HasOpen(ctx context.Context, key domain.PositionKey) (bool, error)
}

// FrequencyStore persists per-wallet alert windows.
type FrequencyStore interface {
	Get(ctx context.Context, walletID uuid.UUID) (*domain.FrequencyWindow, error)
	Put(ctx context.Context, w *domain.FrequencyWindow) error
}

// CopyTradeStore persists simulated copy-trade positions.
type CopyTradeStore interface {
	Insert(ctx context.Context, p *domain.CopyTradePosition) error
	Update(ctx context.Context, p *domain.CopyTradePosition) error

	// OpenByKey returns open/partially-closed simulations for the
	// wallet and position key, oldest first.
	OpenByKey(ctx context.Context, walletID uuid.UUID, conditionID string, outcomeIndex int) ([]domain.CopyTradePosition, error)
}

// OpportunityStore persists cross-venue arbitrage opportunities.
type OpportunityStore interface {
	// Upsert inserts or refreshes the opportunity keyed on
	// (polymarket_id, kalshi_ticker). The stored verified flag and
	// first_seen_at survive refreshes.
	Upsert(ctx context.Context, o *domain.ArbitrageOpportunity) error

	Get(ctx context.Context, polymarketID, kalshiTicker string) (*domain.ArbitrageOpportunity, error)
	ListProfitable(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error)
}

// Stores bundles every store behind one wiring point.
type Stores struct {
	Wallets       WalletStore
	Activity      ActivityStore
	Frequency     FrequencyStore
	CopyTrades    CopyTradeStore
	Opportunities OpportunityStore
}
