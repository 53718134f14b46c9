// Package command implements the bot's commands and the interaction
// lifecycle around them: immediate replies for quick commands, and
// defer/followup with a timeout notice for slow ones.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atmx/stocker/internal/alert"
	"github.com/atmx/stocker/internal/metrics"
	"github.com/atmx/stocker/internal/model"
	"github.com/atmx/stocker/internal/portfolio"
	"github.com/atmx/stocker/internal/quote"
	"github.com/atmx/stocker/internal/ticker"
)

// Command names.
const (
	AlertAbove = "alert_above"
	AlertBelow = "alert_below"
	Cancel     = "cancel"
	Alerts     = "alerts"
	Price      = "price"
	Set        = "set"
	Show       = "show"
	Sell       = "sell"
)

// Known reports whether name is a command this service handles.
func Known(name string) bool {
	switch name {
	case AlertAbove, AlertBelow, Cancel, Alerts, Price, Set, Show, Sell:
		return true
	}
	return false
}

// Options are the arguments of a command. Unused fields are ignored.
type Options struct {
	Ticker   string          `json:"ticker"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

// Namer resolves company display names.
type Namer interface {
	DisplayName(ctx context.Context, ticker string) string
}

// Service runs commands against the ledger and the alert book.
type Service struct {
	ledger   *portfolio.Ledger
	book     *alert.Book
	quotes   quote.Provider
	names    Namer
	notifier Notifier
	tickers  *ticker.Normalizer
	log      *slog.Logger
}

// NewService creates a command service. quotes should already be
// timeout-bounded.
func NewService(
	ledger *portfolio.Ledger,
	book *alert.Book,
	quotes quote.Provider,
	names Namer,
	notifier Notifier,
	norm *ticker.Normalizer,
	log *slog.Logger,
) *Service {
	return &Service{
		ledger:   ledger,
		book:     book,
		quotes:   quotes,
		names:    names,
		notifier: notifier,
		tickers:  norm,
		log:      log.With("component", "command"),
	}
}

// Dispatch runs one command to completion. Errors are reported to the
// requester and logged here; they are returned for the caller's records.
func (s *Service) Dispatch(ctx context.Context, in Interaction, name string, opts Options) error {
	start := time.Now()

	var err error
	switch name {
	case AlertAbove:
		err = s.registerAlert(ctx, in, opts, model.Above)
	case AlertBelow:
		err = s.registerAlert(ctx, in, opts, model.Below)
	case Cancel:
		err = s.cancelAlerts(ctx, in, opts)
	case Alerts:
		err = s.reply(ctx, in, alertList(s.book.List(in.UserID())), nil)
	case Price:
		err = s.price(ctx, in, opts)
	case Set:
		err = s.recordPurchase(ctx, in, opts)
	case Show:
		err = s.show(ctx, in)
	case Sell:
		err = s.sell(ctx, in, opts)
	default:
		err = model.NewValidationError(fmt.Sprintf("unknown command %q", name))
		err = s.reply(ctx, in, errorMessage(err, ""), err)
	}

	metrics.CommandsTotal.WithLabelValues(name, outcome(err)).Inc()
	metrics.CommandLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		s.log.Info("command finished with error", "command", name, "user", in.UserID(), "err", err)
	}
	return err
}

func (s *Service) registerAlert(ctx context.Context, in Interaction, opts Options, dir model.Direction) error {
	a, err := s.book.Register(in.UserID(), in.ChannelID(), opts.Ticker, opts.Price, dir)
	if err != nil {
		return s.reply(ctx, in, errorMessage(err, ""), err)
	}
	return s.reply(ctx, in, alertRegistered(a), nil)
}

func (s *Service) cancelAlerts(ctx context.Context, in Interaction, opts Options) error {
	sym, err := s.tickers.Normalize(opts.Ticker)
	if err != nil {
		return s.reply(ctx, in, errorMessage(err, ""), err)
	}
	n, err := s.book.Cancel(in.UserID(), sym)
	if err != nil {
		return s.reply(ctx, in, errorMessage(err, sym), err)
	}
	return s.reply(ctx, in, alertsCancelled(sym, n), nil)
}

func (s *Service) price(ctx context.Context, in Interaction, opts Options) error {
	return s.deferred(ctx, in, func(ctx context.Context) (string, error) {
		sym, q, err := s.ledger.Quote(ctx, opts.Ticker, s.quotes)
		if err != nil {
			return errorMessage(err, sym), err
		}
		return priceReply(sym, s.names.DisplayName(ctx, sym), q), nil
	})
}

func (s *Service) recordPurchase(ctx context.Context, in Interaction, opts Options) error {
	guildID, ok := in.GuildID()
	if !ok {
		return s.rejectOutsideGuild(ctx, in)
	}
	return s.deferred(ctx, in, func(ctx context.Context) (string, error) {
		sym, err := s.tickers.Normalize(opts.Ticker)
		if err != nil {
			return errorMessage(err, ""), err
		}
		res, err := s.ledger.RecordPurchase(context.WithoutCancel(ctx), guildID, in.UserID(), sym, opts.Price, opts.Quantity)
		if err != nil {
			return errorMessage(err, sym), err
		}
		return purchaseRecorded(res.Lot), nil
	})
}

func (s *Service) show(ctx context.Context, in Interaction) error {
	guildID, ok := in.GuildID()
	if !ok {
		return s.rejectOutsideGuild(ctx, in)
	}
	return s.deferred(ctx, in, func(ctx context.Context) (string, error) {
		report, err := s.ledger.Report(ctx, guildID, s.quotes)
		if err != nil {
			return errorMessage(err, ""), err
		}
		return portfolioReport(report), nil
	})
}

func (s *Service) sell(ctx context.Context, in Interaction, opts Options) error {
	guildID, ok := in.GuildID()
	if !ok {
		return s.rejectOutsideGuild(ctx, in)
	}
	return s.deferred(ctx, in, func(ctx context.Context) (string, error) {
		sym, err := s.tickers.Normalize(opts.Ticker)
		if err != nil {
			return errorMessage(err, ""), err
		}
		res, err := s.ledger.Sell(context.WithoutCancel(ctx), guildID, sym, opts.Quantity, opts.Price)
		if err != nil {
			return errorMessage(err, sym), err
		}
		return sellExecuted(res), nil
	})
}

func (s *Service) rejectOutsideGuild(ctx context.Context, in Interaction) error {
	err := model.NewValidationError("command requires a server")
	return s.reply(ctx, in, guildOnly, err)
}

// reply answers immediately. cause is the command's own error, if any.
func (s *Service) reply(ctx context.Context, in Interaction, text string, cause error) error {
	if err := in.Respond(ctx, text); err != nil {
		metrics.DeliveryFailures.WithLabelValues("reply").Inc()
		s.log.Error("reply failed", "user", in.UserID(), "channel", in.ChannelID(), "err", err)
		if cause != nil {
			return cause
		}
		return fmt.Errorf("%w: reply: %w", model.ErrDelivery, err)
	}
	return cause
}

// deferred acknowledges the interaction, runs work, and sends its text as
// the followup. When the acknowledgement fails the requester gets a
// timeout notice instead and work never runs.
func (s *Service) deferred(ctx context.Context, in Interaction, work func(context.Context) (string, error)) error {
	if err := in.Defer(ctx); err != nil {
		s.log.Warn("defer failed", "user", in.UserID(), "channel", in.ChannelID(), "err", err)
		s.notifyTimeout(ctx, in)
		return fmt.Errorf("defer: %w", err)
	}

	text, err := work(ctx)
	if ferr := in.Followup(ctx, text); ferr != nil {
		metrics.DeliveryFailures.WithLabelValues("followup").Inc()
		s.log.Error("followup failed", "user", in.UserID(), "channel", in.ChannelID(), "err", ferr)
		if err == nil {
			err = fmt.Errorf("%w: followup: %w", model.ErrDelivery, ferr)
		}
	}
	return err
}

// notifyTimeout tells the requester their command was dropped, through the
// invocation's channel first and a direct message second.
func (s *Service) notifyTimeout(ctx context.Context, in Interaction) {
	err := s.notifier.SendChannel(ctx, in.ChannelID(), timeoutNotice)
	if err == nil {
		return
	}
	s.log.Warn("timeout notice to channel failed", "channel", in.ChannelID(), "err", err)

	if err := s.notifier.SendDirect(ctx, in.UserID(), timeoutNotice); err != nil {
		metrics.DeliveryFailures.WithLabelValues("timeout_notice").Inc()
		s.log.Error("timeout notice undeliverable", "user", in.UserID(), "err", err)
	}
}
