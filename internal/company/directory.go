// Package company resolves display names for tickers, caching each name
// after the first successful lookup.
package company

import (
	"context"
	"log/slog"

	"github.com/atmx/stocker/internal/quote"
	"github.com/atmx/stocker/internal/store"
)

// Directory is a read-through cache in front of an InfoProvider.
type Directory struct {
	provider quote.InfoProvider
	cache    store.NameCache
	log      *slog.Logger
}

func NewDirectory(provider quote.InfoProvider, cache store.NameCache, log *slog.Logger) *Directory {
	return &Directory{provider: provider, cache: cache, log: log.With("component", "company")}
}

// DisplayName returns the company name for ticker, or ticker itself when no
// name can be found. Failed lookups are not cached, so a later call retries.
func (d *Directory) DisplayName(ctx context.Context, ticker string) string {
	if name, ok, err := d.cache.Get(ctx, ticker); err != nil {
		d.log.Warn("name cache read failed", "ticker", ticker, "err", err)
	} else if ok {
		return name
	}

	name, err := d.provider.Lookup(ctx, ticker)
	if err != nil || name == "" {
		d.log.Info("company name unavailable", "ticker", ticker, "err", err)
		return ticker
	}

	if err := d.cache.Set(ctx, ticker, name); err != nil {
		d.log.Warn("name cache write failed", "ticker", ticker, "err", err)
	}
	return name
}
