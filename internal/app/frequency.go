package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// frequencyWindowLength is how long an alert allowance lasts before it
// refreshes.
const frequencyWindowLength = 24 * time.Hour

// FrequencyGate rations opening-position alerts per wallet. Each
// wallet gets a fixed number of alerts per rolling 24h window based on
// its tier, with an optional per-wallet override. Windows are evaluated
// lazily: an expired window is reset before the remaining allowance is
// checked, so a stale window never blocks an admission. The signal that
// first creates a wallet's window rides for free; rationing starts with
// the next one.
type FrequencyGate struct {
	logger *zap.Logger
	store  storage.FrequencyStore
	now    func() time.Time
}

func NewFrequencyGate(logger *zap.Logger, store storage.FrequencyStore) *FrequencyGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FrequencyGate{
		logger: logger,
		store:  store,
		now:    time.Now,
	}
}

// Admit reports whether the wallet may send one more alert right now,
// consuming one unit of the allowance when it may. Admission and the
// decrement are a single decision: a true return has already spent the
// unit.
func (g *FrequencyGate) Admit(ctx context.Context, wallet *domain.TrackedWallet) (bool, error) {
	now := g.now()

	window, err := g.store.Get(ctx, wallet.ID)
	if errors.Is(err, storage.ErrNotFound) {
		// First signal ever for this wallet: open the window with the
		// full allowance and let the signal through without spending
		// a unit.
		window = &domain.FrequencyWindow{
			WalletID:  wallet.ID,
			Remaining: wallet.DailyAlertQuota(),
			ResetAt:   now.Add(frequencyWindowLength),
		}
		if err := g.store.Put(ctx, window); err != nil {
			return false, fmt.Errorf("save frequency window: %w", err)
		}
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("load frequency window: %w", err)
	}

	if window.Expired(now) {
		// Reset before evaluating, never the other way around.
		window.Remaining = wallet.DailyAlertQuota()
		window.ResetAt = now.Add(frequencyWindowLength)
		if err := g.store.Put(ctx, window); err != nil {
			return false, fmt.Errorf("save frequency window: %w", err)
		}
	}

	if window.Remaining <= 0 {
		// Denied without mutation; the window is untouched until it
		// expires.
		g.logger.Debug("alert suppressed by frequency gate",
			zap.String("wallet", domain.ShortAddress(wallet.Address)),
			zap.Time("resetAt", window.ResetAt),
		)
		return false, nil
	}

	window.Remaining--
	if err := g.store.Put(ctx, window); err != nil {
		return false, fmt.Errorf("save frequency window: %w", err)
	}

	return true, nil
}
