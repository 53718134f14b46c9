package alert

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atmx/stocker/internal/model"
	"github.com/atmx/stocker/internal/quote"
)

type sent struct {
	channel int64
	text    string
}

type recordingSink struct {
	mu      sync.Mutex
	msgs    []sent
	failFor map[int64]bool
	calls   map[int64]int
}

func newRecordingSink() *recordingSink {
	return &recordingSink{failFor: map[int64]bool{}, calls: map[int64]int{}}
}

func (s *recordingSink) SendChannel(_ context.Context, channelID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[channelID]++
	if s.failFor[channelID] {
		return errors.New("channel gone")
	}
	s.msgs = append(s.msgs, sent{channelID, text})
	return nil
}

func (s *recordingSink) messages() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.msgs...)
}

func quotes(prices map[string]string) quote.Provider {
	return quote.ProviderFunc(func(_ context.Context, sym string) (*model.Quote, error) {
		p, ok := prices[sym]
		if !ok {
			return nil, errors.New("provider exploded")
		}
		return &model.Quote{Ticker: sym, Price: d(p)}, nil
	})
}

func TestTick_DeliversMessage(t *testing.T) {
	b := newBook()
	_, _ = b.Register(1, 10, "7203", d("2400"), model.Above)
	sink := newRecordingSink()
	s := NewScanner(b, quotes(map[string]string{"7203.T": "2500"}), sink, time.Minute, discard)

	stats := s.Tick(context.Background())

	assert.Equal(t, TickStats{Alerts: 1, Tickers: 1, Triggered: 1}, stats)
	msgs := sink.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(10), msgs[0].channel)
	assert.Equal(t, "@everyone 7203.T hit 2,500.00 (threshold 2,400.00 and above)", msgs[0].text)
}

func TestTick_ProviderFailureIsolatedPerTicker(t *testing.T) {
	b := newBook()
	_, _ = b.Register(1, 10, "7203", d("2400"), model.Above)
	_, _ = b.Register(1, 10, "6758", d("3000"), model.Below)
	sink := newRecordingSink()
	s := NewScanner(b, quotes(map[string]string{"6758.T": "2900"}), sink, time.Minute, discard)

	stats := s.Tick(context.Background())

	assert.Equal(t, 1, stats.Unavailable)
	assert.Equal(t, 1, stats.Triggered)
	require.Len(t, sink.messages(), 1)
	assert.Contains(t, sink.messages()[0].text, "6758.T hit 2,900.00")
	assert.Equal(t, 1, b.Len())
}

func TestTick_DeliveryFailureNotRetried(t *testing.T) {
	b := newBook()
	_, _ = b.Register(1, 10, "7203", d("2400"), model.Above)
	_, _ = b.Register(2, 20, "7203", d("2400"), model.Above)
	sink := newRecordingSink()
	sink.failFor[10] = true
	s := NewScanner(b, quotes(map[string]string{"7203.T": "2450"}), sink, time.Minute, discard)

	stats := s.Tick(context.Background())
	assert.Equal(t, 2, stats.Triggered)
	assert.Equal(t, 1, stats.DeliveryFailures)

	// The failed alert is consumed all the same.
	stats = s.Tick(context.Background())
	assert.Equal(t, 0, stats.Triggered)
	assert.Equal(t, 1, sink.calls[10])
	assert.Equal(t, 0, b.Len())
}

func TestTick_EmptyBook(t *testing.T) {
	sink := newRecordingSink()
	var called bool
	provider := quote.ProviderFunc(func(context.Context, string) (*model.Quote, error) {
		called = true
		return nil, nil
	})
	s := NewScanner(newBook(), provider, sink, time.Minute, discard)

	assert.Equal(t, TickStats{}, s.Tick(context.Background()))
	assert.False(t, called)
}

func TestScanner_StartStop(t *testing.T) {
	b := newBook()
	_, _ = b.Register(1, 10, "7203", d("1"), model.Above)
	sink := newRecordingSink()
	s := NewScanner(b, quotes(map[string]string{"7203.T": "2"}), sink, time.Second, discard)

	require.NoError(t, s.Start())
	require.Eventually(t, func() bool { return len(sink.messages()) == 1 }, 5*time.Second, 50*time.Millisecond)
	s.Stop()
}

func TestNewScanner_DefaultInterval(t *testing.T) {
	s := NewScanner(newBook(), quotes(nil), newRecordingSink(), 0, discard)
	assert.Equal(t, DefaultInterval, s.interval)
}

func TestMessage_Below(t *testing.T) {
	msg := Message(model.Trigger{
		Alert: model.Alert{Ticker: "6758.T", Threshold: d("3000"), Direction: model.Below},
		Price: decimal.RequireFromString("2987.5"),
	})
	assert.Equal(t, "@everyone 6758.T hit 2,987.50 (threshold 3,000.00 and below)", msg)
}
