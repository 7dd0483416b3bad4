package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// CopySimulator mirrors whale entries with a fixed paper investment per
// wallet and settles the mirror when the whale exits. It never touches
// real funds; the point is to answer "what would copying this wallet
// have returned".
type CopySimulator struct {
	logger *zap.Logger
	store  storage.CopyTradeStore
}

func NewCopySimulator(logger *zap.Logger, store storage.CopyTradeStore) *CopySimulator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CopySimulator{logger: logger, store: store}
}

// OnOpen starts a simulation when the whale opens a position. Returns
// nil without error when the wallet has no copy amount configured or a
// simulation is already running on the key.
func (cs *CopySimulator) OnOpen(
	ctx context.Context,
	wallet *domain.TrackedWallet,
	rec *domain.ActivityRecord,
) (*domain.CopyTradePosition, error) {
	if !wallet.CopyTrade || !wallet.CopyTradeAmount.IsPositive() {
		return nil, nil
	}
	if !rec.Price.IsPositive() {
		cs.logger.Warn("skipping copy simulation, entry price not positive",
			zap.String("txHash", rec.TxHash),
			zap.String("price", rec.Price.String()),
		)
		return nil, nil
	}

	existing, err := cs.store.OpenByKey(ctx, wallet.ID, rec.ConditionID, rec.OutcomeIndex)
	if err != nil {
		return nil, fmt.Errorf("check open simulations: %w", err)
	}
	if len(existing) > 0 {
		// One simulation per position; additions ride the original
		// entry price.
		return nil, nil
	}

	now := time.Now().UTC()
	sim := &domain.CopyTradePosition{
		ID:             uuid.New(),
		WalletID:       wallet.ID,
		OpenActivityID: rec.ID,
		ConditionID:    rec.ConditionID,
		Outcome:        rec.Outcome,
		OutcomeIndex:   rec.OutcomeIndex,
		MarketTitle:    rec.Metadata.Title,
		InvestedUSD:    wallet.CopyTradeAmount,
		SharesBought:   domain.SharesFor(wallet.CopyTradeAmount, rec.Price),
		EntryPrice:     rec.Price,
		EntryTxHash:    rec.TxHash,
		EnteredAt:      rec.TradedAt,
		Status:         domain.CopyStatusOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := cs.store.Insert(ctx, sim); err != nil {
		return nil, fmt.Errorf("insert copy simulation: %w", err)
	}

	cs.logger.Info("copy simulation opened",
		zap.String("wallet", domain.ShortAddress(wallet.Address)),
		zap.String("invested", sim.InvestedUSD.String()),
		zap.String("shares", sim.SharesBought.String()),
	)

	return sim, nil
}

// OnClose settles the simulation against the whale's exit. The mirror
// sells the same fraction of its shares that the whale sold of its
// tracked entries, at the whale's exit price.
func (cs *CopySimulator) OnClose(
	ctx context.Context,
	wallet *domain.TrackedWallet,
	rec *domain.ActivityRecord,
	result *LifecycleResult,
) (*domain.CopyTradePosition, error) {
	sims, err := cs.store.OpenByKey(ctx, wallet.ID, rec.ConditionID, rec.OutcomeIndex)
	if err != nil {
		return nil, fmt.Errorf("load open simulations: %w", err)
	}
	if len(sims) == 0 {
		return nil, nil
	}
	sim := &sims[0]

	fraction := decimal.NewFromInt(1)
	entrySize := decimal.Zero
	for _, entry := range result.ClosedRecords {
		entrySize = entrySize.Add(entry.Size)
	}
	if entrySize.IsPositive() && rec.Size.LessThan(entrySize) {
		fraction = rec.Size.DivRound(entrySize, 18)
	}

	sharesSold := sim.SharesBought.Mul(fraction)
	sim.Close(sharesSold, rec.Price, rec.TxHash, rec.TradedAt)
	sim.UpdatedAt = time.Now().UTC()

	if err := cs.store.Update(ctx, sim); err != nil {
		return nil, fmt.Errorf("update copy simulation: %w", err)
	}

	cs.logger.Info("copy simulation settled",
		zap.String("wallet", domain.ShortAddress(wallet.Address)),
		zap.String("status", sim.Status),
		zap.String("realizedPnl", sim.RealizedPnl.String()),
	)

	return sim, nil
}
