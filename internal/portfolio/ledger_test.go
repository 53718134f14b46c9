package portfolio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/stocker/internal/model"
	"github.com/atmx/stocker/internal/quote"
	"github.com/atmx/stocker/internal/store"
	"github.com/atmx/stocker/internal/ticker"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const guild = int64(1001)

// newTestLedger returns a ledger over a memory store whose clock advances a
// minute per lot, so insertion order is creation order.
func newTestLedger(t *testing.T) (*Ledger, *store.MemoryStore) {
	t.Helper()
	ms := store.NewMemoryStore()
	next := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	ms.SetClock(func() time.Time {
		now := next
		next = next.Add(time.Minute)
		return now
	})
	return NewLedger(ms, ticker.NewNormalizer(ticker.DefaultSuffix), discard), ms
}

func buy(t *testing.T, l *Ledger, sym, price string, qty int64) {
	t.Helper()
	_, err := l.RecordPurchase(context.Background(), guild, 42, sym, d(price), qty)
	require.NoError(t, err)
}

func TestRecordPurchase(t *testing.T) {
	l, ms := newTestLedger(t)

	res, err := l.RecordPurchase(context.Background(), guild, 42, "7203", d("1000"), 10)
	require.NoError(t, err)

	assert.True(t, res.TotalCost.Equal(d("10000")))
	assert.Equal(t, "7203.T", res.Lot.Ticker)
	assert.NotZero(t, res.Lot.ID)

	lots := ms.Lots()
	require.Len(t, lots, 1)
	assert.Equal(t, int64(42), lots[0].UserID)
}

func TestRecordPurchase_Validation(t *testing.T) {
	l, ms := newTestLedger(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		ticker string
		price  string
		qty    int64
	}{
		{"zero price", "7203", "0", 10},
		{"negative price", "7203", "-5", 10},
		{"zero quantity", "7203", "1000", 0},
		{"negative quantity", "7203", "1000", -1},
		{"missing ticker", "", "1000", 1},
		{"quantity above bound", "7203", "1", MaxQuantity + 1},
		{"max int64 quantity", "7203", "1", math.MaxInt64},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.RecordPurchase(ctx, guild, 42, tc.ticker, d(tc.price), tc.qty)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrValidation))
		})
	}
	assert.Empty(t, ms.Lots())
}

// Worked example: 10 @ 1000, 10 @ 1200, sell 15 @ 1300.
func TestSell_FIFOExample(t *testing.T) {
	l, _ := newTestLedger(t)
	buy(t, l, "7203", "1000", 10)
	buy(t, l, "7203.T", "1200", 10)

	res, err := l.Sell(context.Background(), guild, "7203", 15, d("1300"))
	require.NoError(t, err)

	assert.True(t, res.CostBasis.Equal(d("16000")), res.CostBasis.String())
	assert.Equal(t, "1066.67", res.AverageCost.StringFixed(2))
	assert.True(t, res.Revenue.Equal(d("19500")))
	assert.True(t, res.Profit.Equal(d("3500")))
	assert.Equal(t, "21.88", res.ProfitPct.StringFixed(2))
	assert.Equal(t, int64(5), res.Remaining)
	assert.Equal(t, 1, res.LotsClosed)

	positions, err := l.ListPositions(context.Background(), guild)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(5), positions[0].Quantity)
	assert.True(t, positions[0].AveragePrice.Equal(d("1200")))
}

func TestSell_CostBasisIsOldestLotsFirst(t *testing.T) {
	l, _ := newTestLedger(t)
	prices := []string{"500", "700", "300", "900"}
	qtys := []int64{3, 4, 5, 6}
	for i := range prices {
		buy(t, l, "6758", prices[i], qtys[i])
	}

	// 3@500 + 4@700 + 2@300
	res, err := l.Sell(context.Background(), guild, "6758", 9, d("1000"))
	require.NoError(t, err)
	assert.True(t, res.CostBasis.Equal(d("4900")), res.CostBasis.String())
	assert.Equal(t, int64(9), res.Remaining)

	// Remaining: 3@300 then 6@900.
	res, err = l.Sell(context.Background(), guild, "6758", 4, d("1000"))
	require.NoError(t, err)
	assert.True(t, res.CostBasis.Equal(d("1800")), res.CostBasis.String())
}

func TestSell_SameTimestampUsesIDOrder(t *testing.T) {
	ms := store.NewMemoryStore()
	fixed := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	ms.SetClock(func() time.Time { return fixed })
	l := NewLedger(ms, ticker.NewNormalizer(""), discard)

	buy(t, l, "7203", "100", 1)
	buy(t, l, "7203", "200", 1)

	res, err := l.Sell(context.Background(), guild, "7203", 1, d("150"))
	require.NoError(t, err)
	assert.True(t, res.CostBasis.Equal(d("100")))
}

func TestSell_OversellLeavesLotsUnchanged(t *testing.T) {
	l, ms := newTestLedger(t)
	buy(t, l, "7203", "1000", 10)
	buy(t, l, "7203", "1200", 10)
	before := ms.Lots()

	_, err := l.Sell(context.Background(), guild, "7203", 21, d("1300"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInsufficientQuantity))

	var qe *model.InsufficientQuantityError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, int64(20), qe.Held)
	assert.Equal(t, int64(21), qe.Requested)

	assert.Equal(t, before, ms.Lots())
}

func TestSell_NoPosition(t *testing.T) {
	l, _ := newTestLedger(t)
	buy(t, l, "7203", "1000", 10)

	_, err := l.Sell(context.Background(), guild, "6758", 1, d("1000"))
	assert.True(t, errors.Is(err, model.ErrNoPosition))

	// Another guild's lots are not visible.
	_, err = l.Sell(context.Background(), guild+1, "7203", 1, d("1000"))
	assert.True(t, errors.Is(err, model.ErrNoPosition))
}

func TestSell_FullQuantityRemovesPosition(t *testing.T) {
	l, ms := newTestLedger(t)
	buy(t, l, "7203", "1000", 10)
	buy(t, l, "7203", "1200", 10)
	buy(t, l, "6758", "3000", 1)

	res, err := l.Sell(context.Background(), guild, "7203", 20, d("1100"))
	require.NoError(t, err)
	assert.Equal(t, 2, res.LotsClosed)
	assert.Equal(t, int64(0), res.Remaining)

	positions, err := l.ListPositions(context.Background(), guild)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "6758.T", positions[0].Ticker)

	for _, lot := range ms.Lots() {
		assert.Positive(t, lot.Quantity, "no lot may be stored at zero")
	}
}

func TestSell_Validation(t *testing.T) {
	l, _ := newTestLedger(t)
	buy(t, l, "7203", "1000", 10)

	_, err := l.Sell(context.Background(), guild, "7203", 0, d("1000"))
	assert.True(t, errors.Is(err, model.ErrValidation))
	_, err = l.Sell(context.Background(), guild, "7203", 1, d("0"))
	assert.True(t, errors.Is(err, model.ErrValidation))
}

func TestSell_QuantityAboveBoundRejected(t *testing.T) {
	l, ms := newTestLedger(t)
	buy(t, l, "7203", "1000", 10)

	_, err := l.Sell(context.Background(), guild, "7203", math.MaxInt64, d("1000"))
	assert.True(t, errors.Is(err, model.ErrValidation))
	require.Len(t, ms.Lots(), 1)
	assert.Equal(t, int64(10), ms.Lots()[0].Quantity)
}

func TestLedger_LargeLotsKeepPositivePosition(t *testing.T) {
	l, _ := newTestLedger(t)
	buy(t, l, "7203", "1", MaxQuantity)
	buy(t, l, "7203", "1", MaxQuantity)

	res, err := l.Sell(context.Background(), guild, "7203", 1, d("1"))
	require.NoError(t, err)
	assert.Equal(t, int64(2*MaxQuantity-1), res.Remaining)

	positions, err := l.ListPositions(context.Background(), guild)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, int64(2*MaxQuantity-1), positions[0].Quantity)
	assert.True(t, positions[0].AveragePrice.Equal(d("1")))
}

// failingStore breaks the delete step of a sell after the plan succeeds.
type failingStore struct {
	*store.MemoryStore
}

func (f failingStore) WithTx(ctx context.Context, fn func(tx store.LedgerTx) error) error {
	return f.MemoryStore.WithTx(ctx, func(tx store.LedgerTx) error {
		return fn(failingTx{tx})
	})
}

type failingTx struct{ store.LedgerTx }

func (failingTx) UpdateLotQuantity(context.Context, int64, int64) error {
	return errors.New("connection reset")
}

func TestSell_StorageFailureRollsBack(t *testing.T) {
	ms := store.NewMemoryStore()
	good := NewLedger(ms, ticker.NewNormalizer(""), discard)
	buy(t, good, "7203", "1000", 10)
	buy(t, good, "7203", "1200", 10)
	before := ms.Lots()

	bad := NewLedger(failingStore{ms}, ticker.NewNormalizer(""), discard)
	// Deletes the first lot, then fails on the partial update of the second.
	_, err := bad.Sell(context.Background(), guild, "7203", 15, d("1300"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrStorage))

	assert.Equal(t, before, ms.Lots())
}

type schemaFailStore struct {
	*store.MemoryStore
	calls int
}

func (s *schemaFailStore) EnsureSchema(context.Context) error {
	s.calls++
	if s.calls == 1 {
		return errors.New("db starting up")
	}
	return nil
}

func TestEnsureSchema_RetriedUntilSuccess(t *testing.T) {
	st := &schemaFailStore{MemoryStore: store.NewMemoryStore()}
	l := NewLedger(st, ticker.NewNormalizer(""), discard)

	_, err := l.RecordPurchase(context.Background(), guild, 1, "7203", d("1"), 1)
	assert.True(t, errors.Is(err, model.ErrStorage))

	buy(t, l, "7203", "1", 1)
	buy(t, l, "7203", "1", 1)
	assert.Equal(t, 2, st.calls)
}

func TestListPositions_EmptyGuild(t *testing.T) {
	l, _ := newTestLedger(t)
	positions, err := l.ListPositions(context.Background(), guild)
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestListPositions_WeightedAverage(t *testing.T) {
	l, _ := newTestLedger(t)
	buy(t, l, "7203", "1000", 10)
	buy(t, l, "7203", "1300", 5)
	buy(t, l, "6758", "3000", 2)

	positions, err := l.ListPositions(context.Background(), guild)
	require.NoError(t, err)
	require.Len(t, positions, 2)

	assert.Equal(t, "6758.T", positions[0].Ticker)
	toyota := positions[1]
	assert.Equal(t, int64(15), toyota.Quantity)
	assert.True(t, toyota.Invested.Equal(d("16500")))
	assert.True(t, toyota.AveragePrice.Equal(d("1100")))
}

func TestValuate(t *testing.T) {
	p := model.Position{Ticker: "7203.T", Quantity: 10, Invested: d("10000"), AveragePrice: d("1000")}

	v := Valuate(p, decimal.NewNullDecimal(d("1250")))
	assert.True(t, v.Available)
	assert.True(t, v.CurrentValue.Equal(d("12500")))
	assert.True(t, v.Profit.Equal(d("2500")))
	assert.True(t, v.ProfitPct.Equal(d("25")))
}

func TestValuate_ZeroInvested(t *testing.T) {
	v := Valuate(model.Position{Ticker: "7203.T"}, decimal.NewNullDecimal(d("1250")))
	assert.True(t, v.Available)
	assert.True(t, v.ProfitPct.IsZero())
}

func TestValuate_Unavailable(t *testing.T) {
	p := model.Position{Ticker: "7203.T", Quantity: 10, Invested: d("10000")}
	v := Valuate(p, decimal.NullDecimal{})
	assert.False(t, v.Available)
	assert.Equal(t, p, v.Position)
}

type countingQuotes struct {
	mu     sync.Mutex
	calls  map[string]int
	quotes map[string]*model.Quote
}

func (c *countingQuotes) Latest(_ context.Context, sym string) (*model.Quote, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[sym]++
	if q, ok := c.quotes[sym]; ok {
		return q, nil
	}
	return nil, model.ErrQuoteUnavailable
}

var _ quote.Provider = (*countingQuotes)(nil)

func TestReport(t *testing.T) {
	l, _ := newTestLedger(t)
	buy(t, l, "7203", "1000", 10) // invested 10000
	buy(t, l, "6758", "3000", 2)  // invested 6000
	buy(t, l, "9984", "8000", 1)  // quote unavailable

	quotes := &countingQuotes{
		calls: map[string]int{},
		quotes: map[string]*model.Quote{
			"7203.T": {Ticker: "7203.T", Price: d("1200"), PreviousClose: decimal.NewNullDecimal(d("1100"))},
			"6758.T": {Ticker: "6758.T", Price: d("2700")},
		},
	}

	r, err := l.Report(context.Background(), guild, quotes)
	require.NoError(t, err)

	for sym, n := range quotes.calls {
		assert.Equal(t, 1, n, "ticker %s fetched more than once", sym)
	}
	assert.Len(t, quotes.calls, 3)

	require.Len(t, r.Valuations, 3)
	assert.Equal(t, 1, r.Unavailable)
	assert.False(t, r.Valuations[2].Available)
	assert.Equal(t, "9984.T", r.Valuations[2].Ticker)

	// 12000 + 5400 against 16000; the unavailable lot is excluded.
	assert.True(t, r.TotalInvested.Equal(d("16000")))
	assert.True(t, r.TotalValue.Equal(d("17400")))
	assert.True(t, r.TotalProfit.Equal(d("1400")))
	assert.Equal(t, "8.75", r.TotalProfitPct.StringFixed(2))

	// Day change only over 7203.T: 12000 vs 11000.
	assert.True(t, r.PreviousValue.Equal(d("11000")))
	assert.True(t, r.DayChangeValue.Equal(d("1000")))
	require.True(t, r.DayChangePct.Valid)
	assert.Equal(t, "9.09", r.DayChangePct.Decimal.StringFixed(2))
}

func TestReport_EmptyGuild(t *testing.T) {
	l, _ := newTestLedger(t)
	r, err := l.Report(context.Background(), guild, &countingQuotes{calls: map[string]int{}})
	require.NoError(t, err)
	assert.Empty(t, r.Valuations)
	assert.True(t, r.TotalProfitPct.IsZero())
	assert.False(t, r.DayChangePct.Valid)
}
