package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ActivityType classifies what a wallet did on-chain.
type ActivityType string

const (
	ActivityBuy        ActivityType = "BUY"
	ActivitySell       ActivityType = "SELL"
	ActivityRedeem     ActivityType = "REDEEM"
	ActivitySplit      ActivityType = "SPLIT"
	ActivityMerge      ActivityType = "MERGE"
	ActivityConversion ActivityType = "CONVERSION"
	ActivityReward     ActivityType = "REWARD"
)

// IsTrade reports whether the type participates in the position
// lifecycle. Transfer-like types (redeem, split, merge, conversion,
// reward) are recorded but deduplicated by transaction hash only.
func (t ActivityType) IsTrade() bool {
	return t == ActivityBuy || t == ActivitySell
}

// Position lifecycle statuses for an activity record.
const (
	StatusOpen   = "open"
	StatusAdded  = "added"
	StatusClosed = "closed"
)

// PositionKey is the natural key a BUY/SELL is deduplicated and
// lifecycle-matched on. At most one open record may exist per key.
type PositionKey struct {
	Wallet       string
	ConditionID  string
	OutcomeIndex int
}

func (k PositionKey) String() string {
	return fmt.Sprintf("%s:%s:%d", k.Wallet, k.ConditionID, k.OutcomeIndex)
}

// ActivityMetadata carries market display context that is useful in
// alerts but irrelevant to lifecycle decisions.
type ActivityMetadata struct {
	Slug      string   `json:"slug,omitempty"`
	Title     string   `json:"title,omitempty"`
	EventSlug string   `json:"eventSlug,omitempty"`
	Icon      string   `json:"icon,omitempty"`
	Tags      []string `json:"tags,omitempty"`

	// Raw holds source fields that do not map onto named columns.
	Raw map[string]string `json:"raw,omitempty"`
}

// Value implements driver.Valuer so metadata persists as jsonb.
func (m ActivityMetadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *ActivityMetadata) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*m = ActivityMetadata{}
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("unsupported metadata source %T", src)
	}
}

// ActivityRecord is one deduplicated sighting of wallet activity.
// Records are append-only; lifecycle transitions update status and the
// realized P&L columns in place.
type ActivityRecord struct {
	ID       uuid.UUID    `db:"id"`
	WalletID uuid.UUID    `db:"wallet_id"`
	Type     ActivityType `db:"type"`

	TxHash       string `db:"tx_hash"`
	ConditionID  string `db:"condition_id"`
	Outcome      string `db:"outcome"`
	OutcomeIndex int    `db:"outcome_index"`

	Size     decimal.Decimal `db:"size"`
	Price    decimal.Decimal `db:"price"`
	UsdValue decimal.Decimal `db:"usd_value"`
	Token    string          `db:"token"`

	Category string           `db:"category"`
	Metadata ActivityMetadata `db:"metadata"`

	Status      string           `db:"status"`
	RealizedPnl *decimal.Decimal `db:"realized_pnl"`
	PercentPnl  *decimal.Decimal `db:"percent_pnl"`

	// NotificationRef is the channel message reference for alerted
	// records; nil when Alerting is false or the send failed.
	NotificationRef *string `db:"notification_ref"`
	Alerting        bool    `db:"alerting"`

	TradedAt  time.Time `db:"traded_at"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Key returns the natural position key for trade-type records.
func (a *ActivityRecord) Key(walletAddress string) PositionKey {
	return PositionKey{
		Wallet:       NormalizeAddress(walletAddress),
		ConditionID:  a.ConditionID,
		OutcomeIndex: a.OutcomeIndex,
	}
}
