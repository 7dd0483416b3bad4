// Package memory implements the storage interfaces with in-process
// maps. It backs tests and the no-database dry-run mode; it has no
// durability.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"whalewatch/internal/domain"
	"whalewatch/internal/storage"
)

// NewStores wires every in-memory store.
func NewStores() *storage.Stores {
	return &storage.Stores{
		Wallets:       NewWalletStore(),
		Activity:      NewActivityStore(),
		Frequency:     NewFrequencyStore(),
		CopyTrades:    NewCopyTradeStore(),
		Opportunities: NewOpportunityStore(),
	}
}

// WalletStore is an in-memory storage.WalletStore.
type WalletStore struct {
	mu          sync.RWMutex
	wallets     map[uuid.UUID]domain.TrackedWallet
	byAddress   map[string]uuid.UUID
	checkpoints map[uuid.UUID]time.Time
}

var _ storage.WalletStore = (*WalletStore)(nil)

func NewWalletStore() *WalletStore {
	return &WalletStore{
		wallets:     make(map[uuid.UUID]domain.TrackedWallet),
		byAddress:   make(map[string]uuid.UUID),
		checkpoints: make(map[uuid.UUID]time.Time),
	}
}

// Add registers a wallet. Test/dry-run seeding helper; not part of the
// storage.WalletStore interface.
func (s *WalletStore) Add(w domain.TrackedWallet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Address = domain.NormalizeAddress(w.Address)
	s.wallets[w.ID] = w
	s.byAddress[w.Address] = w.ID
}

func (s *WalletStore) ListActive(ctx context.Context) ([]domain.TrackedWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.TrackedWallet
	for _, w := range s.wallets {
		if w.Active {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *WalletStore) GetByAddress(ctx context.Context, address string) (*domain.TrackedWallet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAddress[domain.NormalizeAddress(address)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	w := s.wallets[id]
	return &w, nil
}

func (s *WalletStore) GetCheckpoint(ctx context.Context, walletID uuid.UUID) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	at, ok := s.checkpoints[walletID]
	if !ok {
		return time.Time{}, storage.ErrNotFound
	}
	return at, nil
}

func (s *WalletStore) SetCheckpoint(ctx context.Context, walletID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[walletID] = at
	return nil
}

// ActivityStore is an in-memory storage.ActivityStore.
type ActivityStore struct {
	mu      sync.RWMutex
	records map[uuid.UUID]domain.ActivityRecord
	order   []uuid.UUID

	// wallet address by wallet id, needed to resolve position keys the
	// way the SQL implementation joins tracked_wallets.
	addresses map[uuid.UUID]string
}

var _ storage.ActivityStore = (*ActivityStore)(nil)

func NewActivityStore() *ActivityStore {
	return &ActivityStore{
		records:   make(map[uuid.UUID]domain.ActivityRecord),
		addresses: make(map[uuid.UUID]string),
	}
}

// BindWallet associates a wallet id with its address for key lookups.
func (s *ActivityStore) BindWallet(id uuid.UUID, address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses[id] = domain.NormalizeAddress(address)
}

func (s *ActivityStore) Insert(ctx context.Context, rec *domain.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = *rec
	s.order = append(s.order, rec.ID)
	return nil
}

func (s *ActivityStore) Update(ctx context.Context, rec *domain.ActivityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		return storage.ErrNotFound
	}
	s.records[rec.ID] = *rec
	return nil
}

func (s *ActivityStore) matchesKey(rec domain.ActivityRecord, key domain.PositionKey) bool {
	addr := s.addresses[rec.WalletID]
	return addr == strings.ToLower(key.Wallet) &&
		rec.ConditionID == key.ConditionID &&
		rec.OutcomeIndex == key.OutcomeIndex
}

func (s *ActivityStore) ExistsTrade(ctx context.Context, key domain.PositionKey, txHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.Type.IsTrade() && rec.TxHash == txHash && s.matchesKey(rec, key) {
			return true, nil
		}
	}
	return false, nil
}

func (s *ActivityStore) ExistsTx(ctx context.Context, txHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.TxHash == txHash {
			return true, nil
		}
	}
	return false, nil
}

func (s *ActivityStore) OpenPositions(ctx context.Context, key domain.PositionKey) ([]domain.ActivityRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ActivityRecord
	for _, id := range s.order {
		rec := s.records[id]
		if rec.Type == domain.ActivityBuy &&
			(rec.Status == domain.StatusOpen || rec.Status == domain.StatusAdded) &&
			s.matchesKey(rec, key) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TradedAt.Before(out[j].TradedAt) })
	return out, nil
}

func (s *ActivityStore) HasOpen(ctx context.Context, key domain.PositionKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.Status == domain.StatusOpen && s.matchesKey(rec, key) {
			return true, nil
		}
	}
	return false, nil
}

// All returns every record in insertion order. Test helper.
func (s *ActivityStore) All() []domain.ActivityRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ActivityRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out
}

// FrequencyStore is an in-memory storage.FrequencyStore.
type FrequencyStore struct {
	mu      sync.RWMutex
	windows map[uuid.UUID]domain.FrequencyWindow
}

var _ storage.FrequencyStore = (*FrequencyStore)(nil)

func NewFrequencyStore() *FrequencyStore {
	return &FrequencyStore{windows: make(map[uuid.UUID]domain.FrequencyWindow)}
}

func (s *FrequencyStore) Get(ctx context.Context, walletID uuid.UUID) (*domain.FrequencyWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.windows[walletID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &w, nil
}

func (s *FrequencyStore) Put(ctx context.Context, w *domain.FrequencyWindow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[w.WalletID] = *w
	return nil
}

// CopyTradeStore is an in-memory storage.CopyTradeStore.
type CopyTradeStore struct {
	mu        sync.RWMutex
	positions map[uuid.UUID]domain.CopyTradePosition
	order     []uuid.UUID
}

var _ storage.CopyTradeStore = (*CopyTradeStore)(nil)

func NewCopyTradeStore() *CopyTradeStore {
	return &CopyTradeStore{positions: make(map[uuid.UUID]domain.CopyTradePosition)}
}

func (s *CopyTradeStore) Insert(ctx context.Context, p *domain.CopyTradePosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[p.ID] = *p
	s.order = append(s.order, p.ID)
	return nil
}

func (s *CopyTradeStore) Update(ctx context.Context, p *domain.CopyTradePosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[p.ID]; !ok {
		return storage.ErrNotFound
	}
	s.positions[p.ID] = *p
	return nil
}

func (s *CopyTradeStore) OpenByKey(ctx context.Context, walletID uuid.UUID, conditionID string, outcomeIndex int) ([]domain.CopyTradePosition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.CopyTradePosition
	for _, id := range s.order {
		p := s.positions[id]
		if p.WalletID == walletID &&
			p.ConditionID == conditionID &&
			p.OutcomeIndex == outcomeIndex &&
			(p.Status == domain.CopyStatusOpen || p.Status == domain.CopyStatusPartiallyClosed) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EnteredAt.Before(out[j].EnteredAt) })
	return out, nil
}

// All returns every simulated position in insertion order. Test helper.
func (s *CopyTradeStore) All() []domain.CopyTradePosition {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.CopyTradePosition, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.positions[id])
	}
	return out
}

// OpportunityStore is an in-memory storage.OpportunityStore.
type OpportunityStore struct {
	mu   sync.RWMutex
	opps map[string]domain.ArbitrageOpportunity
}

var _ storage.OpportunityStore = (*OpportunityStore)(nil)

func NewOpportunityStore() *OpportunityStore {
	return &OpportunityStore{opps: make(map[string]domain.ArbitrageOpportunity)}
}

func pairKey(polymarketID, kalshiTicker string) string {
	return polymarketID + "|" + kalshiTicker
}

func (s *OpportunityStore) Upsert(ctx context.Context, o *domain.ArbitrageOpportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(o.PolymarketID, o.KalshiTicker)
	if existing, ok := s.opps[key]; ok {
		// The stored row owns identity, the verified flag, and the
		// first-seen time.
		o.ID = existing.ID
		o.Verified = existing.Verified
		o.FirstSeenAt = existing.FirstSeenAt
	}
	s.opps[key] = *o
	return nil
}

func (s *OpportunityStore) Get(ctx context.Context, polymarketID, kalshiTicker string) (*domain.ArbitrageOpportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.opps[pairKey(polymarketID, kalshiTicker)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &o, nil
}

func (s *OpportunityStore) ListProfitable(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var out []domain.ArbitrageOpportunity
	for _, o := range s.opps {
		if o.IsProfitable() {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BestMargin.LessThan(out[j].BestMargin) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetVerified flips the manual verification flag. Helper for tests and
// the dry-run mode.
func (s *OpportunityStore) SetVerified(polymarketID, kalshiTicker string, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(polymarketID, kalshiTicker)
	o, ok := s.opps[key]
	if !ok {
		return storage.ErrNotFound
	}
	o.Verified = verified
	s.opps[key] = o
	return nil
}
