package app

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// Lifecycle outcomes for a processed trade.
const (
	LifecycleOpened = "opened"
	LifecycleAdded  = "added"
	LifecycleClosed = "closed"
	LifecycleOrphan = "orphan"
)

// LifecycleResult describes what a trade did to the wallet's position
// on its key.
type LifecycleResult struct {
	Kind string

	// Set for closes: realized P&L over the matched quantity and the
	// percentage against the matched cost basis.
	RealizedPnl *decimal.Decimal
	PercentPnl  *decimal.Decimal

	// Entry records fully consumed by this close.
	ClosedRecords []domain.ActivityRecord
}

// PositionTracker applies BUY/SELL records to the wallet's position
// lifecycle. A wallet holds at most one open position per
// (wallet, conditionId, outcomeIndex) key; repeat BUYs attach to it as
// additions, and a SELL consumes entries oldest-first.
type PositionTracker struct {
	logger     *zap.Logger
	activities storage.ActivityStore
}

func NewPositionTracker(logger *zap.Logger, activities storage.ActivityStore) *PositionTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PositionTracker{logger: logger, activities: activities}
}

// ApplyTrade decides the lifecycle transition for rec and persists it.
// rec must already be deduplicated and inserted is expected to happen
// here: the record's status is set before the insert so the partial
// unique index on open rows holds.
func (pt *PositionTracker) ApplyTrade(
	ctx context.Context,
	wallet *domain.TrackedWallet,
	rec *domain.ActivityRecord,
) (*LifecycleResult, error) {
	key := rec.Key(wallet.Address)

	switch rec.Type {
	case domain.ActivityBuy:
		return pt.applyBuy(ctx, key, rec)
	case domain.ActivitySell:
		return pt.applySell(ctx, key, rec)
	default:
		return nil, fmt.Errorf("activity type %s is not a trade", rec.Type)
	}
}

func (pt *PositionTracker) applyBuy(
	ctx context.Context,
	key domain.PositionKey,
	rec *domain.ActivityRecord,
) (*LifecycleResult, error) {
	hasOpen, err := pt.activities.HasOpen(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("check open position: %w", err)
	}

	result := &LifecycleResult{Kind: LifecycleOpened}
	rec.Status = domain.StatusOpen
	if hasOpen {
		result.Kind = LifecycleAdded
		rec.Status = domain.StatusAdded
	}

	if err := pt.activities.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert buy record: %w", err)
	}

	pt.logger.Info("position "+result.Kind,
		zap.String("key", key.String()),
		zap.String("size", rec.Size.String()),
		zap.String("price", rec.Price.String()),
	)

	return result, nil
}

// applySell consumes open entries oldest-first. An entry is closed once
// the sell has touched it; the realized P&L counts only the quantity
// the sell actually covered.
func (pt *PositionTracker) applySell(
	ctx context.Context,
	key domain.PositionKey,
	rec *domain.ActivityRecord,
) (*LifecycleResult, error) {
	open, err := pt.activities.OpenPositions(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}

	rec.Status = domain.StatusClosed

	// A sell against nothing we saw opened. Happens when tracking
	// started after the entry; record it and move on.
	if len(open) == 0 {
		if err := pt.activities.Insert(ctx, rec); err != nil {
			return nil, fmt.Errorf("insert orphan sell: %w", err)
		}
		pt.logger.Warn("sell without a tracked entry",
			zap.String("key", key.String()),
			zap.String("txHash", rec.TxHash),
		)
		return &LifecycleResult{Kind: LifecycleOrphan}, nil
	}

	remaining := rec.Size
	pnl := decimal.Zero
	costBasis := decimal.Zero
	var closed []domain.ActivityRecord

	for i := range open {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		entry := open[i]

		matched := entry.Size
		if remaining.LessThan(matched) {
			matched = remaining
		}

		pnl = pnl.Add(matched.Mul(rec.Price.Sub(entry.Price)))
		costBasis = costBasis.Add(matched.Mul(entry.Price))
		remaining = remaining.Sub(matched)

		entry.Status = domain.StatusClosed
		if err := pt.activities.Update(ctx, &entry); err != nil {
			return nil, fmt.Errorf("close entry %s: %w", entry.ID, err)
		}
		closed = append(closed, entry)
	}

	var pct decimal.Decimal
	if costBasis.IsPositive() {
		pct = pnl.DivRound(costBasis, 18).Mul(decimal.NewFromInt(100))
	}

	rec.RealizedPnl = &pnl
	rec.PercentPnl = &pct
	if err := pt.activities.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert sell record: %w", err)
	}

	pt.logger.Info("position closed",
		zap.String("key", key.String()),
		zap.Int("entriesClosed", len(closed)),
		zap.String("realizedPnl", pnl.String()),
	)

	return &LifecycleResult{
		Kind:          LifecycleClosed,
		RealizedPnl:   &pnl,
		PercentPnl:    &pct,
		ClosedRecords: closed,
	}, nil
}
