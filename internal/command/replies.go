package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/atmx/stocker/internal/format"
	"github.com/atmx/stocker/internal/model"
)

const (
	timeoutNotice  = "⏱ The response timed out. Please try again."
	guildOnly      = "❌ This command can only be used in a server."
	genericFailure = "❌ Something went wrong. Please try again later."
)

// errorMessage maps a command error to the text shown to the requester.
func errorMessage(err error, sym string) string {
	var qe *model.InsufficientQuantityError
	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return "❌ " + ve.Msg
	case errors.Is(err, model.ErrNoPosition):
		return fmt.Sprintf("❌ No holdings of %s.", sym)
	case errors.As(err, &qe):
		return fmt.Sprintf("❌ Cannot sell more than the %s shares held.", format.Quantity(qe.Held))
	case errors.Is(err, model.ErrQuoteUnavailable):
		return fmt.Sprintf("❌ Could not fetch the price of %s.", sym)
	default:
		return genericFailure
	}
}

// outcome labels an error for the commands metric.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInteractionExpired):
		return "expired"
	case errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrNoPosition),
		errors.Is(err, model.ErrInsufficientQuantity):
		return "rejected"
	case errors.Is(err, model.ErrQuoteUnavailable):
		return "unavailable"
	case errors.Is(err, model.ErrDelivery):
		return "undelivered"
	default:
		return "error"
	}
}

func alertRegistered(a model.Alert) string {
	return fmt.Sprintf("✅ Alert registered:\nI will notify this channel when %s is at %s or %s. (id %d)",
		a.Ticker, format.Price(a.Threshold), a.Direction, a.ID)
}

func alertsCancelled(sym string, n int) string {
	if n == 0 {
		return fmt.Sprintf("❌ No alerts found for %s.", sym)
	}
	return fmt.Sprintf("✅ Removed %d alert(s) for %s.", n, sym)
}

func alertList(alerts []model.Alert) string {
	if len(alerts) == 0 {
		return "You have no alerts."
	}
	lines := []string{"Your alerts:"}
	for _, a := range alerts {
		lines = append(lines, fmt.Sprintf("#%d %s %s %s", a.ID, a.Ticker, a.Direction, format.Price(a.Threshold)))
	}
	return strings.Join(lines, "\n")
}

func priceReply(sym, name string, q *model.Quote) string {
	header := sym
	if name != "" && name != sym {
		header = fmt.Sprintf("%s %s", sym, name)
	}
	lines := []string{header, "Price: " + format.Price(q.Price)}
	if pct := q.ChangePct(); pct.Valid {
		change := q.Price.Sub(q.PreviousClose.Decimal)
		lines = append(lines, fmt.Sprintf("Change: %s (%s)", format.Signed(change), format.Percent(pct.Decimal)))
	}
	return strings.Join(lines, "\n")
}

func purchaseRecorded(lot model.PurchaseLot) string {
	return fmt.Sprintf("Recorded:\n%s - %s shares @ %s\nTotal %s",
		lot.Ticker, format.Quantity(lot.Quantity), format.Price(lot.Price), format.Price(lot.Cost()))
}

func sellExecuted(r *model.SellResult) string {
	return strings.Join([]string{
		"Sold " + r.Ticker,
		"",
		"Quantity: " + format.Quantity(r.Quantity),
		"Average cost: " + format.Price(r.AverageCost),
		"Sell price: " + format.Price(r.SellPrice),
		fmt.Sprintf("P/L: %s (%s)", format.Signed(r.Profit), format.Percent(r.ProfitPct)),
		"Remaining: " + format.Quantity(r.Remaining),
	}, "\n")
}

func portfolioReport(r *model.PortfolioReport) string {
	if len(r.Valuations) == 0 {
		return "The portfolio is empty."
	}

	lines := []string{"Server portfolio", ""}
	for _, v := range r.Valuations {
		lines = append(lines,
			v.Ticker,
			fmt.Sprintf("  Bought: %s × %s", format.Price(v.AveragePrice), format.Quantity(v.Quantity)),
		)
		if !v.Available {
			lines = append(lines, "  Now: unavailable", "")
			continue
		}
		lines = append(lines,
			"  Now: "+format.Price(v.CurrentPrice),
			fmt.Sprintf("  P/L: %s (%s)", format.Signed(v.Profit), format.Percent(v.ProfitPct)),
			"",
		)
	}

	if r.TotalInvested.IsPositive() {
		lines = append(lines,
			"Invested: "+format.Price(r.TotalInvested),
			"Value: "+format.Price(r.TotalValue),
			fmt.Sprintf("P/L: %s (%s)", format.Signed(r.TotalProfit), format.Percent(r.TotalProfitPct)),
		)
		if r.DayChangePct.Valid {
			lines = append(lines, fmt.Sprintf("Today: %s (%s)", format.Signed(r.DayChangeValue), format.Percent(r.DayChangePct.Decimal)))
		}
	}
	if r.Unavailable > 0 {
		lines = append(lines, fmt.Sprintf("(%d position(s) without a price are excluded from the totals)", r.Unavailable))
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n")
}
