package alert

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"github.com/atmx/stocker/internal/format"
	"github.com/atmx/stocker/internal/metrics"
	"github.com/atmx/stocker/internal/model"
	"github.com/atmx/stocker/internal/quote"
)

// DefaultInterval is how often the scanner evaluates the book.
const DefaultInterval = 5 * time.Minute

// Sink delivers a notification to a channel.
type Sink interface {
	SendChannel(ctx context.Context, channelID int64, text string) error
}

// Scanner evaluates the book on a fixed schedule and sends one message per
// fired alert. Failed deliveries are logged and not retried.
type Scanner struct {
	book     *Book
	quotes   quote.Provider
	sink     Sink
	interval time.Duration
	cron     *cron.Cron
	log      *slog.Logger

	tickMu sync.Mutex
}

// NewScanner creates a scanner. quotes should already be timeout-bounded.
func NewScanner(book *Book, quotes quote.Provider, sink Sink, interval time.Duration, log *slog.Logger) *Scanner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scanner{
		book:     book,
		quotes:   quotes,
		sink:     sink,
		interval: interval,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		log:      log.With("component", "scanner"),
	}
}

// Start schedules the periodic tick. Each tick gets the interval as its
// deadline.
func (s *Scanner) Start() error {
	spec := "@every " + s.interval.String()
	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.interval)
		defer cancel()
		s.Tick(ctx)
	}); err != nil {
		return fmt.Errorf("schedule alert scan %q: %w", spec, err)
	}
	s.cron.Start()
	s.log.Info("scanner started", "interval", s.interval.String())
	return nil
}

// Stop halts scheduling and waits for a running tick to finish.
func (s *Scanner) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scanner stopped")
}

// TickStats reports the outcome of one tick.
type TickStats struct {
	Alerts           int
	Tickers          int
	Unavailable      int
	Triggered        int
	DeliveryFailures int
}

// Tick runs one evaluation pass and delivers the resulting notifications.
// Ticks never overlap.
func (s *Scanner) Tick(ctx context.Context) TickStats {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	defer func() { metrics.ScanDuration.Observe(time.Since(start).Seconds()) }()

	ev := s.book.Evaluate(ctx, func(ctx context.Context, sym string) (decimal.Decimal, error) {
		q, err := s.quotes.Latest(ctx, sym)
		if err != nil {
			return decimal.Zero, err
		}
		return q.Price, nil
	})

	stats := TickStats{
		Alerts:      ev.Alerts,
		Tickers:     ev.Tickers,
		Unavailable: ev.Unavailable,
		Triggered:   len(ev.Triggers),
	}
	for _, t := range ev.Triggers {
		if err := s.sink.SendChannel(ctx, t.Alert.ChannelID, Message(t)); err != nil {
			stats.DeliveryFailures++
			metrics.DeliveryFailures.WithLabelValues("alert").Inc()
			s.log.Error("alert delivery failed",
				"alert_id", t.Alert.ID,
				"channel", t.Alert.ChannelID,
				"ticker", t.Alert.Ticker,
				"err", fmt.Errorf("%w: %w", model.ErrDelivery, err),
			)
			continue
		}
		s.log.Info("alert fired",
			"alert_id", t.Alert.ID,
			"ticker", t.Alert.Ticker,
			"price", t.Price.String(),
			"threshold", t.Alert.Threshold.String(),
			"direction", t.Alert.Direction,
		)
	}

	if stats.Alerts > 0 {
		s.log.Debug("scan complete",
			"alerts", stats.Alerts,
			"tickers", stats.Tickers,
			"unavailable", stats.Unavailable,
			"triggered", stats.Triggered,
			"delivery_failures", stats.DeliveryFailures,
		)
	}
	return stats
}

// Message is the channel notification for a fired alert, e.g.
// "@everyone 7203.T hit 2,500.00 (threshold 2,400.00 and above)".
func Message(t model.Trigger) string {
	return fmt.Sprintf("@everyone %s hit %s (threshold %s and %s)",
		t.Alert.Ticker, format.Price(t.Price), format.Price(t.Alert.Threshold), t.Alert.Direction)
}
