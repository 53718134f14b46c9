// Package alert keeps standing price alerts in memory and fires each one
// at most once when its threshold is crossed.
package alert

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/atmx/stocker/internal/metrics"
	"github.com/atmx/stocker/internal/model"
	"github.com/atmx/stocker/internal/ticker"
)

// maxConcurrentLookups bounds parallel price lookups in one evaluation.
const maxConcurrentLookups = 4

// PriceLookup resolves the current price of a canonical ticker.
type PriceLookup func(ctx context.Context, ticker string) (decimal.Decimal, error)

// Book is the live alert collection. One mutex guards the alerts and the
// id counter; price lookups happen outside it.
type Book struct {
	mu     sync.Mutex
	nextID int64
	alerts map[int64]model.Alert

	tickers *ticker.Normalizer
	now     func() time.Time
	log     *slog.Logger
}

// NewBook creates an empty alert book.
func NewBook(norm *ticker.Normalizer, log *slog.Logger) *Book {
	return &Book{
		nextID:  1,
		alerts:  make(map[int64]model.Alert),
		tickers: norm,
		now:     time.Now,
		log:     log.With("component", "alert"),
	}
}

// Register adds an alert and returns it with its id and canonical ticker.
func (b *Book) Register(userID, channelID int64, rawTicker string, threshold decimal.Decimal, dir model.Direction) (model.Alert, error) {
	sym, err := b.tickers.Normalize(rawTicker)
	if err != nil {
		return model.Alert{}, err
	}
	if !threshold.IsPositive() {
		return model.Alert{}, model.NewValidationError("threshold must be positive")
	}
	if dir != model.Above && dir != model.Below {
		return model.Alert{}, model.NewValidationError("direction must be above or below")
	}

	b.mu.Lock()
	a := model.Alert{
		ID:        b.nextID,
		Ticker:    sym,
		Threshold: threshold,
		Direction: dir,
		UserID:    userID,
		ChannelID: channelID,
		CreatedAt: b.now().UTC(),
	}
	b.nextID++
	b.alerts[a.ID] = a
	live := len(b.alerts)
	b.mu.Unlock()

	metrics.AlertsRegistered.WithLabelValues(string(dir)).Inc()
	metrics.AlertsLive.Set(float64(live))
	b.log.Info("alert registered",
		"alert_id", a.ID,
		"user", userID,
		"channel", channelID,
		"ticker", sym,
		"threshold", threshold.String(),
		"direction", dir,
	)
	return a, nil
}

// Cancel removes every alert the user holds on ticker, whatever its channel
// or direction, and returns how many were removed.
func (b *Book) Cancel(userID int64, rawTicker string) (int, error) {
	sym, err := b.tickers.Normalize(rawTicker)
	if err != nil {
		return 0, err
	}

	b.mu.Lock()
	removed := 0
	for id, a := range b.alerts {
		if a.UserID == userID && a.Ticker == sym {
			delete(b.alerts, id)
			removed++
		}
	}
	live := len(b.alerts)
	b.mu.Unlock()

	metrics.AlertsLive.Set(float64(live))
	b.log.Info("alerts cancelled", "user", userID, "ticker", sym, "removed", removed)
	return removed, nil
}

// List returns the user's live alerts ordered by id.
func (b *Book) List(userID int64) []model.Alert {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []model.Alert
	for _, a := range b.alerts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sortByID(out)
	return out
}

// Len returns the number of live alerts.
func (b *Book) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.alerts)
}

// Evaluation summarizes one pass over the book.
type Evaluation struct {
	Triggers    []model.Trigger
	Alerts      int // alerts in the snapshot
	Tickers     int // distinct tickers looked up
	Unavailable int // tickers whose price could not be resolved
}

// Evaluate snapshots the live alerts, resolves each distinct ticker once
// through lookup without holding the lock, then fires and removes every
// snapshotted alert that is still live and whose threshold is crossed.
// An alert cancelled during the lookups is not fired. Alerts registered
// during the lookups wait for the next evaluation.
func (b *Book) Evaluate(ctx context.Context, lookup PriceLookup) Evaluation {
	b.mu.Lock()
	snapshot := make([]model.Alert, 0, len(b.alerts))
	for _, a := range b.alerts {
		snapshot = append(snapshot, a)
	}
	b.mu.Unlock()

	ev := Evaluation{Alerts: len(snapshot)}
	if len(snapshot) == 0 {
		return ev
	}
	sortByID(snapshot)

	var syms []string
	seen := make(map[string]bool)
	for _, a := range snapshot {
		if !seen[a.Ticker] {
			seen[a.Ticker] = true
			syms = append(syms, a.Ticker)
		}
	}
	ev.Tickers = len(syms)

	prices := make([]decimal.NullDecimal, len(syms))
	var g errgroup.Group
	g.SetLimit(maxConcurrentLookups)
	for i, sym := range syms {
		g.Go(func() error {
			p, err := lookup(ctx, sym)
			if err != nil {
				b.log.Warn("alert price unavailable", "ticker", sym, "err", err)
				return nil
			}
			prices[i] = decimal.NewNullDecimal(p)
			return nil
		})
	}
	_ = g.Wait()

	priceOf := make(map[string]decimal.Decimal, len(syms))
	for i, sym := range syms {
		if prices[i].Valid {
			priceOf[sym] = prices[i].Decimal
		} else {
			ev.Unavailable++
		}
	}

	b.mu.Lock()
	for _, a := range snapshot {
		price, ok := priceOf[a.Ticker]
		if !ok {
			continue
		}
		if _, live := b.alerts[a.ID]; !live {
			continue
		}
		if !a.Direction.Crossed(price, a.Threshold) {
			continue
		}
		delete(b.alerts, a.ID)
		ev.Triggers = append(ev.Triggers, model.Trigger{Alert: a, Price: price})
	}
	live := len(b.alerts)
	b.mu.Unlock()

	metrics.AlertsLive.Set(float64(live))
	for _, t := range ev.Triggers {
		metrics.AlertsFired.WithLabelValues(string(t.Alert.Direction)).Inc()
	}
	return ev
}

func sortByID(alerts []model.Alert) {
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].ID < alerts[j].ID })
}
