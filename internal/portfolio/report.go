package portfolio

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/stocker/internal/model"
	"github.com/atmx/stocker/internal/quote"
)

// maxConcurrentQuotes bounds parallel provider calls for one report.
const maxConcurrentQuotes = 4

// Report values every position in the guild. Each ticker is quoted exactly
// once and that quote feeds both the current value and the day change.
// Positions whose quote is unavailable are listed but left out of totals.
func (l *Ledger) Report(ctx context.Context, guildID int64, quotes quote.Provider) (*model.PortfolioReport, error) {
	positions, err := l.ListPositions(ctx, guildID)
	if err != nil {
		return nil, err
	}

	fetched := make([]*model.Quote, len(positions))
	var g errgroup.Group
	g.SetLimit(maxConcurrentQuotes)
	for i, p := range positions {
		g.Go(func() error {
			q, err := quotes.Latest(ctx, p.Ticker)
			if err != nil {
				l.log.Warn("report quote unavailable", "guild", guildID, "ticker", p.Ticker, "err", err)
				return nil
			}
			fetched[i] = q
			return nil
		})
	}
	_ = g.Wait()

	report := &model.PortfolioReport{
		GuildID:    guildID,
		Valuations: make([]model.Valuation, 0, len(positions)),
	}
	var prevBase decimal.Decimal // current value of positions that have a previous close
	for i, p := range positions {
		q := fetched[i]
		if q == nil {
			report.Valuations = append(report.Valuations, Valuate(p, decimal.NullDecimal{}))
			report.Unavailable++
			continue
		}

		v := Valuate(p, decimal.NewNullDecimal(q.Price))
		v.PreviousClose = q.PreviousClose
		report.Valuations = append(report.Valuations, v)

		report.TotalInvested = report.TotalInvested.Add(p.Invested)
		report.TotalValue = report.TotalValue.Add(v.CurrentValue)
		if q.PreviousClose.Valid {
			qty := decimal.NewFromInt(p.Quantity)
			report.PreviousValue = report.PreviousValue.Add(q.PreviousClose.Decimal.Mul(qty))
			prevBase = prevBase.Add(v.CurrentValue)
		}
	}

	report.TotalProfit = report.TotalValue.Sub(report.TotalInvested)
	report.TotalProfitPct = percentOf(report.TotalProfit, report.TotalInvested)
	if report.PreviousValue.IsPositive() {
		report.DayChangeValue = prevBase.Sub(report.PreviousValue)
		report.DayChangePct = decimal.NewNullDecimal(percentOf(report.DayChangeValue, report.PreviousValue))
	}
	return report, nil
}

// Quote fetches a single ticker after canonicalizing it. It backs the price
// command so that callers share the ledger's ticker rules.
func (l *Ledger) Quote(ctx context.Context, rawTicker string, quotes quote.Provider) (string, *model.Quote, error) {
	sym, err := l.tickers.Normalize(rawTicker)
	if err != nil {
		return "", nil, err
	}
	q, err := quotes.Latest(ctx, sym)
	if err != nil {
		return sym, nil, fmt.Errorf("quote %s: %w", sym, err)
	}
	return sym, q, nil
}
