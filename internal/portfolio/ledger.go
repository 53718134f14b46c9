// Package portfolio records purchase lots, executes FIFO sells and values
// positions for a guild.
//
// All monetary values use shopspring/decimal, never float64.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/atmx/stocker/internal/metrics"
	"github.com/atmx/stocker/internal/model"
	"github.com/atmx/stocker/internal/store"
	"github.com/atmx/stocker/internal/ticker"
)

var hundred = decimal.NewFromInt(100)

// MaxQuantity bounds a single purchase or sale. It matches the 32-bit
// quantity column and keeps per-ticker sums far from int64 overflow.
const MaxQuantity = math.MaxInt32

// Ledger is the guild portfolio. It holds no lot state of its own; every
// call reads and writes through the store inside one transaction.
type Ledger struct {
	store   store.LedgerStore
	tickers *ticker.Normalizer
	log     *slog.Logger

	schemaMu    sync.Mutex
	schemaReady bool
}

// NewLedger creates a ledger over st. Tickers are canonicalized with norm.
func NewLedger(st store.LedgerStore, norm *ticker.Normalizer, log *slog.Logger) *Ledger {
	return &Ledger{
		store:   st,
		tickers: norm,
		log:     log.With("component", "portfolio"),
	}
}

// PurchaseResult is returned by RecordPurchase.
type PurchaseResult struct {
	Lot       model.PurchaseLot
	TotalCost decimal.Decimal
}

// RecordPurchase inserts one new lot for (guild, ticker).
func (l *Ledger) RecordPurchase(ctx context.Context, guildID, userID int64, rawTicker string, price decimal.Decimal, quantity int64) (*PurchaseResult, error) {
	sym, err := l.tickers.Normalize(rawTicker)
	if err != nil {
		return nil, err
	}
	if err := validateAmounts(price, quantity, "purchase price"); err != nil {
		return nil, err
	}
	if err := l.ensureSchema(ctx); err != nil {
		return nil, err
	}

	lot := model.PurchaseLot{
		GuildID:  guildID,
		UserID:   userID,
		Ticker:   sym,
		Price:    price,
		Quantity: quantity,
	}
	err = l.store.WithTx(ctx, func(tx store.LedgerTx) error {
		return tx.InsertLot(ctx, &lot)
	})
	if err != nil {
		l.log.Error("record purchase failed", "guild", guildID, "ticker", sym, "err", err)
		return nil, fmt.Errorf("%w: record purchase: %w", model.ErrStorage, err)
	}

	metrics.LotsInserted.Inc()
	l.log.Info("lot recorded",
		"guild", guildID,
		"user", userID,
		"lot_id", lot.ID,
		"ticker", sym,
		"qty", quantity,
		"price", price.String(),
	)

	return &PurchaseResult{Lot: lot, TotalCost: lot.Cost()}, nil
}

// Sell consumes lots oldest-first. The whole sell is rejected when the guild
// holds nothing or less than quantity; otherwise every consumed lot is
// updated or deleted in one transaction.
func (l *Ledger) Sell(ctx context.Context, guildID int64, rawTicker string, quantity int64, sellPrice decimal.Decimal) (*model.SellResult, error) {
	sym, err := l.tickers.Normalize(rawTicker)
	if err != nil {
		return nil, err
	}
	if err := validateAmounts(sellPrice, quantity, "sell price"); err != nil {
		return nil, err
	}
	if err := l.ensureSchema(ctx); err != nil {
		return nil, err
	}

	var res *model.SellResult
	err = l.store.WithTx(ctx, func(tx store.LedgerTx) error {
		lots, err := tx.ListLots(ctx, guildID, sym)
		if err != nil {
			return err
		}
		plan, err := planSell(sym, lots, quantity)
		if err != nil {
			return err
		}
		for _, step := range plan.steps {
			if step.remaining == 0 {
				err = tx.DeleteLot(ctx, step.lotID)
			} else {
				err = tx.UpdateLotQuantity(ctx, step.lotID, step.remaining)
			}
			if err != nil {
				return err
			}
		}
		res = plan.result(sellPrice)
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrNoPosition) || errors.Is(err, model.ErrInsufficientQuantity) {
			return nil, err
		}
		l.log.Error("sell failed", "guild", guildID, "ticker", sym, "err", err)
		return nil, fmt.Errorf("%w: sell: %w", model.ErrStorage, err)
	}

	metrics.SellsExecuted.Inc()
	l.log.Info("sell executed",
		"guild", guildID,
		"ticker", sym,
		"qty", quantity,
		"price", sellPrice.String(),
		"cost_basis", res.CostBasis.String(),
		"profit", res.Profit.String(),
		"lots_closed", res.LotsClosed,
	)
	return res, nil
}

// ListPositions aggregates the guild's lots per ticker, sorted by ticker.
// An empty guild yields an empty slice and no error.
func (l *Ledger) ListPositions(ctx context.Context, guildID int64) ([]model.Position, error) {
	if err := l.ensureSchema(ctx); err != nil {
		return nil, err
	}

	var lots []model.PurchaseLot
	err := l.store.WithTx(ctx, func(tx store.LedgerTx) error {
		var err error
		lots, err = tx.ListGuildLots(ctx, guildID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list positions: %w", model.ErrStorage, err)
	}
	return Aggregate(lots), nil
}

// Aggregate folds lots into one position per ticker.
func Aggregate(lots []model.PurchaseLot) []model.Position {
	byTicker := make(map[string]*model.Position)
	for _, lot := range lots {
		p, ok := byTicker[lot.Ticker]
		if !ok {
			p = &model.Position{Ticker: lot.Ticker}
			byTicker[lot.Ticker] = p
		}
		p.Quantity += lot.Quantity
		p.Invested = p.Invested.Add(lot.Cost())
	}

	positions := make([]model.Position, 0, len(byTicker))
	for _, p := range byTicker {
		if p.Quantity > 0 {
			p.AveragePrice = p.Invested.Div(decimal.NewFromInt(p.Quantity))
		}
		positions = append(positions, *p)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].Ticker < positions[j].Ticker })
	return positions
}

// Valuate marks a position to price. An invalid price produces an
// unavailable valuation rather than a zero one.
func Valuate(p model.Position, price decimal.NullDecimal) model.Valuation {
	v := model.Valuation{Position: p}
	if !price.Valid {
		return v
	}
	v.Available = true
	v.CurrentPrice = price.Decimal
	v.CurrentValue = price.Decimal.Mul(decimal.NewFromInt(p.Quantity))
	v.Profit = v.CurrentValue.Sub(p.Invested)
	v.ProfitPct = percentOf(v.Profit, p.Invested)
	return v
}

// percentOf returns part/whole×100, or 0 when whole is zero.
func percentOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(hundred)
}

func validateAmounts(price decimal.Decimal, quantity int64, priceName string) error {
	if !price.IsPositive() {
		return model.NewValidationError(fmt.Sprintf("%s must be positive", priceName))
	}
	if quantity <= 0 {
		return model.NewValidationError("quantity must be positive")
	}
	if quantity > MaxQuantity {
		return model.NewValidationError(fmt.Sprintf("quantity must be at most %d", MaxQuantity))
	}
	return nil
}

// ensureSchema runs EnsureSchema until it succeeds once.
func (l *Ledger) ensureSchema(ctx context.Context) error {
	l.schemaMu.Lock()
	defer l.schemaMu.Unlock()
	if l.schemaReady {
		return nil
	}
	if err := l.store.EnsureSchema(ctx); err != nil {
		l.log.Error("ensure schema failed", "err", err)
		return fmt.Errorf("%w: %w", model.ErrStorage, err)
	}
	l.schemaReady = true
	return nil
}
