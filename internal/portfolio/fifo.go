package portfolio

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/atmx/stocker/internal/model"
)

// sellStep is the new quantity of one consumed lot; zero means delete.
type sellStep struct {
	lotID     int64
	remaining int64
}

type sellPlan struct {
	ticker    string
	quantity  int64
	held      int64
	costBasis decimal.Decimal
	steps     []sellStep
}

// planSell walks lots (already in FIFO order) and decides which lots to
// delete or shrink. It performs no writes, so a rejected plan leaves the
// store untouched.
func planSell(ticker string, lots []model.PurchaseLot, quantity int64) (*sellPlan, error) {
	if len(lots) == 0 {
		return nil, fmt.Errorf("%w: %s", model.ErrNoPosition, ticker)
	}

	var held int64
	for _, lot := range lots {
		held += lot.Quantity
	}
	if quantity > held {
		return nil, &model.InsufficientQuantityError{Ticker: ticker, Held: held, Requested: quantity}
	}

	plan := &sellPlan{ticker: ticker, quantity: quantity, held: held}
	remaining := quantity
	for _, lot := range lots {
		if remaining == 0 {
			break
		}
		if lot.Quantity <= remaining {
			// Full sale of this lot.
			plan.costBasis = plan.costBasis.Add(lot.Cost())
			plan.steps = append(plan.steps, sellStep{lotID: lot.ID})
			remaining -= lot.Quantity
			continue
		}
		// Partial sale from this lot.
		plan.costBasis = plan.costBasis.Add(lot.Price.Mul(decimal.NewFromInt(remaining)))
		plan.steps = append(plan.steps, sellStep{lotID: lot.ID, remaining: lot.Quantity - remaining})
		remaining = 0
	}
	return plan, nil
}

func (p *sellPlan) result(sellPrice decimal.Decimal) *model.SellResult {
	qty := decimal.NewFromInt(p.quantity)
	revenue := sellPrice.Mul(qty)
	profit := revenue.Sub(p.costBasis)

	closed := 0
	for _, s := range p.steps {
		if s.remaining == 0 {
			closed++
		}
	}

	return &model.SellResult{
		Ticker:      p.ticker,
		Quantity:    p.quantity,
		SellPrice:   sellPrice,
		CostBasis:   p.costBasis,
		AverageCost: p.costBasis.Div(qty),
		Revenue:     revenue,
		Profit:      profit,
		ProfitPct:   percentOf(profit, p.costBasis),
		Remaining:   p.held - p.quantity,
		LotsClosed:  closed,
	}
}
