// Package quote fetches prices and company names from the quote provider.
// Every lookup is bounded by a timeout; a timeout or provider failure is
// reported as model.ErrQuoteUnavailable and never crashes the caller.
package quote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/atmx/stocker/internal/metrics"
	"github.com/atmx/stocker/internal/model"
)

// Provider returns the latest close (and previous close when known).
type Provider interface {
	Latest(ctx context.Context, ticker string) (*model.Quote, error)
}

// InfoProvider returns a company display name for a ticker.
type InfoProvider interface {
	Lookup(ctx context.Context, ticker string) (string, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, ticker string) (*model.Quote, error)

func (f ProviderFunc) Latest(ctx context.Context, ticker string) (*model.Quote, error) {
	return f(ctx, ticker)
}

// Bounded wraps a Provider so that each call gives up after timeout. The
// underlying call keeps running in the background if it ignores ctx; its
// result is discarded.
type Bounded struct {
	next    Provider
	timeout time.Duration
	log     *slog.Logger
}

// NewBounded wraps next with a per-call timeout.
func NewBounded(next Provider, timeout time.Duration, log *slog.Logger) *Bounded {
	return &Bounded{next: next, timeout: timeout, log: log.With("component", "quote")}
}

func (b *Bounded) Latest(ctx context.Context, ticker string) (*model.Quote, error) {
	q, err := withTimeout(ctx, b.timeout, func(ctx context.Context) (*model.Quote, error) {
		return b.next.Latest(ctx, ticker)
	})
	if err != nil {
		metrics.QuoteFailures.WithLabelValues("price").Inc()
		b.log.Warn("quote unavailable", "ticker", ticker, "err", err)
		return nil, fmt.Errorf("%w: %s: %w", model.ErrQuoteUnavailable, ticker, err)
	}
	if q == nil || !q.Price.IsPositive() {
		metrics.QuoteFailures.WithLabelValues("price").Inc()
		return nil, fmt.Errorf("%w: %s: empty result", model.ErrQuoteUnavailable, ticker)
	}
	return q, nil
}

// BoundedInfo applies the same timeout discipline to an InfoProvider.
type BoundedInfo struct {
	next    InfoProvider
	timeout time.Duration
}

func NewBoundedInfo(next InfoProvider, timeout time.Duration) *BoundedInfo {
	return &BoundedInfo{next: next, timeout: timeout}
}

func (b *BoundedInfo) Lookup(ctx context.Context, ticker string) (string, error) {
	name, err := withTimeout(ctx, b.timeout, func(ctx context.Context) (string, error) {
		return b.next.Lookup(ctx, ticker)
	})
	if err != nil {
		metrics.QuoteFailures.WithLabelValues("info").Inc()
		return "", fmt.Errorf("%w: %s: %w", model.ErrQuoteUnavailable, ticker, err)
	}
	return name, nil
}

type result[T any] struct {
	v   T
	err error
}

func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := fn(ctx)
		done <- result[T]{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
