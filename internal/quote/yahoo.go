package quote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wnjoon/go-yfinance/pkg/models"
	"github.com/wnjoon/go-yfinance/pkg/ticker"

	"github.com/atmx/stocker/internal/model"
)

// Yahoo implements Provider and InfoProvider on top of go-yfinance.
// The library does not accept a context, so callers should wrap it in
// Bounded/BoundedInfo.
type Yahoo struct {
	log *slog.Logger
	now func() time.Time
}

func NewYahoo(log *slog.Logger) *Yahoo {
	return &Yahoo{log: log.With("client", "yahoo"), now: time.Now}
}

// Latest reads the last two daily bars: the newest close is the price and
// the one before it is the previous close.
func (y *Yahoo) Latest(ctx context.Context, symbol string) (*model.Quote, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return nil, fmt.Errorf("create ticker %s: %w", symbol, err)
	}
	defer t.Close()

	bars, err := t.History(models.HistoryParams{
		Period:     "5d",
		Interval:   "1d",
		AutoAdjust: true,
	})
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", symbol, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	closes := make([]float64, 0, len(bars))
	for _, bar := range bars {
		if bar.Close > 0 {
			closes = append(closes, bar.Close)
		}
	}
	if len(closes) == 0 {
		return nil, fmt.Errorf("history %s: no bars", symbol)
	}

	q := &model.Quote{
		Ticker:    symbol,
		Price:     decimal.NewFromFloat(closes[len(closes)-1]),
		FetchedAt: y.now().UTC(),
	}
	if len(closes) > 1 {
		q.PreviousClose = decimal.NewNullDecimal(decimal.NewFromFloat(closes[len(closes)-2]))
	}

	y.log.Debug("quote fetched", "ticker", symbol, "price", q.Price.String())
	return q, nil
}

// Lookup returns the long name, falling back to the short name.
func (y *Yahoo) Lookup(ctx context.Context, symbol string) (string, error) {
	t, err := ticker.New(symbol)
	if err != nil {
		return "", fmt.Errorf("create ticker %s: %w", symbol, err)
	}
	defer t.Close()

	info, err := t.Info()
	if err != nil {
		return "", fmt.Errorf("info %s: %w", symbol, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if info.LongName != "" {
		return info.LongName, nil
	}
	if info.ShortName != "" {
		return info.ShortName, nil
	}
	return "", fmt.Errorf("info %s: no name", symbol)
}
