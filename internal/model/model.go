// Package model defines the core domain types shared across the bot.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseLot is one purchase event of a fixed quantity at a fixed price.
// Lots are created by a purchase and only ever decremented or deleted by a
// FIFO sell. A lot is never persisted with a zero quantity.
type PurchaseLot struct {
	ID        int64           `json:"id" db:"id"`
	GuildID   int64           `json:"guild_id,string" db:"guild_id"`
	UserID    int64           `json:"user_id,string" db:"user_id"`
	Ticker    string          `json:"ticker" db:"ticker"`
	Price     decimal.Decimal `json:"price" db:"purchase_price"`
	Quantity  int64           `json:"quantity" db:"quantity"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// Cost returns price × quantity for the lot.
func (l PurchaseLot) Cost() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(l.Quantity))
}

// Position aggregates all lots of one ticker in a guild. It is derived on
// every read and never stored.
type Position struct {
	Ticker       string          `json:"ticker"`
	Quantity     int64           `json:"quantity"`
	Invested     decimal.Decimal `json:"invested"`      // Σ price × qty
	AveragePrice decimal.Decimal `json:"average_price"` // invested / quantity
}

// Valuation is a position marked to a current price. When Available is
// false the price could not be fetched and only the position fields are set.
type Valuation struct {
	Position
	Available     bool                `json:"available"`
	CurrentPrice  decimal.Decimal     `json:"current_price"`
	CurrentValue  decimal.Decimal     `json:"current_value"`
	Profit        decimal.Decimal     `json:"profit"`
	ProfitPct     decimal.Decimal     `json:"profit_pct"`
	PreviousClose decimal.NullDecimal `json:"previous_close"`
}

// PortfolioReport is the guild-wide valuation returned by the show command.
type PortfolioReport struct {
	GuildID        int64               `json:"guild_id,string"`
	Valuations     []Valuation         `json:"valuations"`
	TotalInvested  decimal.Decimal     `json:"total_invested"` // priced positions only
	TotalValue     decimal.Decimal     `json:"total_value"`
	TotalProfit    decimal.Decimal     `json:"total_profit"`
	TotalProfitPct decimal.Decimal     `json:"total_profit_pct"`
	PreviousValue  decimal.Decimal     `json:"previous_value"` // Σ previous close × qty where known
	DayChangeValue decimal.Decimal     `json:"day_change_value"`
	DayChangePct   decimal.NullDecimal `json:"day_change_pct"`
	Unavailable    int                 `json:"unavailable"`
}

// SellResult describes the realized outcome of a FIFO sell.
type SellResult struct {
	Ticker      string          `json:"ticker"`
	Quantity    int64           `json:"quantity"`
	SellPrice   decimal.Decimal `json:"sell_price"`
	CostBasis   decimal.Decimal `json:"cost_basis"`   // consumed lot cost
	AverageCost decimal.Decimal `json:"average_cost"` // cost basis / quantity
	Revenue     decimal.Decimal `json:"revenue"`
	Profit      decimal.Decimal `json:"profit"`
	ProfitPct   decimal.Decimal `json:"profit_pct"`
	Remaining   int64           `json:"remaining"`
	LotsClosed  int             `json:"lots_closed"`
}

// Direction is the side of a threshold an alert watches.
type Direction string

const (
	Above Direction = "above"
	Below Direction = "below"
)

// Crossed reports whether price satisfies the direction against threshold.
// Both boundaries are inclusive.
func (d Direction) Crossed(price, threshold decimal.Decimal) bool {
	switch d {
	case Above:
		return price.GreaterThanOrEqual(threshold)
	case Below:
		return price.LessThanOrEqual(threshold)
	}
	return false
}

// Alert is a standing request to be notified once a ticker crosses a
// threshold. Alerts live in process memory only and are lost on restart.
type Alert struct {
	ID        int64           `json:"id"`
	Ticker    string          `json:"ticker"`
	Threshold decimal.Decimal `json:"threshold"`
	Direction Direction       `json:"direction"`
	UserID    int64           `json:"user_id,string"`
	ChannelID int64           `json:"channel_id,string"`
	CreatedAt time.Time       `json:"created_at"`
}

// Trigger pairs a fired alert with the price that fired it.
type Trigger struct {
	Alert Alert           `json:"alert"`
	Price decimal.Decimal `json:"price"`
}

// Quote is the latest close for a ticker, with the previous close when the
// provider returned one.
type Quote struct {
	Ticker        string              `json:"ticker"`
	Price         decimal.Decimal     `json:"price"`
	PreviousClose decimal.NullDecimal `json:"previous_close"`
	FetchedAt     time.Time           `json:"fetched_at"`
}

// ChangePct returns the percent change against the previous close.
func (q Quote) ChangePct() decimal.NullDecimal {
	if !q.PreviousClose.Valid || q.PreviousClose.Decimal.IsZero() {
		return decimal.NullDecimal{}
	}
	pct := q.Price.Sub(q.PreviousClose.Decimal).Div(q.PreviousClose.Decimal).Mul(decimal.NewFromInt(100))
	return decimal.NewNullDecimal(pct)
}
