package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Copy-trade position statuses.
const (
	CopyStatusOpen            = "open"
	CopyStatusClosed          = "closed"
	CopyStatusPartiallyClosed = "partially_closed"
)

// copyDivPrecision is the fractional-digit precision used for all
// copy-trade share and P&L arithmetic.
const copyDivPrecision = 18

// CopyTradePosition simulates mirroring a whale's position with a fixed
// investment amount. All arithmetic is exact decimal; shares are never
// rounded to binary floats.
type CopyTradePosition struct {
	ID             uuid.UUID `db:"id"`
	WalletID       uuid.UUID `db:"wallet_id"`
	OpenActivityID uuid.UUID `db:"open_activity_id"`

	ConditionID  string `db:"condition_id"`
	Outcome      string `db:"outcome"`
	OutcomeIndex int    `db:"outcome_index"`
	MarketTitle  string `db:"market_title"`

	InvestedUSD  decimal.Decimal `db:"invested_usd"`
	SharesBought decimal.Decimal `db:"shares_bought"`
	EntryPrice   decimal.Decimal `db:"entry_price"`
	EntryTxHash  string          `db:"entry_tx_hash"`
	EnteredAt    time.Time       `db:"entered_at"`

	SharesSold *decimal.Decimal `db:"shares_sold"`
	ExitPrice  *decimal.Decimal `db:"exit_price"`
	ExitTxHash *string          `db:"exit_tx_hash"`
	ExitedAt   *time.Time       `db:"exited_at"`

	RealizedPnl *decimal.Decimal `db:"realized_pnl"`
	PercentPnl  *decimal.Decimal `db:"percent_pnl"`
	FinalValue  *decimal.Decimal `db:"final_value"`

	Status    string    `db:"status"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SharesFor computes how many outcome shares a fixed investment buys at
// the given entry price: invested / entryPrice.
func SharesFor(invested, entryPrice decimal.Decimal) decimal.Decimal {
	return invested.DivRound(entryPrice, copyDivPrecision)
}

// Close settles the position at exitPrice, selling sharesSold shares.
// realizedPnl = sharesSold * (exitPrice - entryPrice)
// percentPnl  = realizedPnl / invested * 100
// finalValue  = invested + realizedPnl
func (p *CopyTradePosition) Close(sharesSold, exitPrice decimal.Decimal, txHash string, at time.Time) {
	pnl := sharesSold.Mul(exitPrice.Sub(p.EntryPrice))
	pct := pnl.DivRound(p.InvestedUSD, copyDivPrecision).Mul(decimal.NewFromInt(100))
	final := p.InvestedUSD.Add(pnl)

	p.SharesSold = &sharesSold
	p.ExitPrice = &exitPrice
	p.ExitTxHash = &txHash
	p.ExitedAt = &at
	p.RealizedPnl = &pnl
	p.PercentPnl = &pct
	p.FinalValue = &final

	if sharesSold.GreaterThanOrEqual(p.SharesBought) {
		p.Status = CopyStatusClosed
	} else {
		p.Status = CopyStatusPartiallyClosed
	}
}
