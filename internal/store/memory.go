package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/atmx/stocker/internal/model"
)

// MemoryStore implements LedgerStore with an in-memory slice. Used for
// testing and development. Not suitable for production (no persistence).
//
// Transactions are serialized and work on a copy of the lots, which is
// swapped in only when the callback succeeds.
type MemoryStore struct {
	mu     sync.Mutex
	lots   []model.PurchaseLot
	nextID int64
	now    func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nextID: 1, now: time.Now}
}

// SetClock overrides the timestamp source for new lots.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) EnsureSchema(context.Context) error { return nil }

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx LedgerTx) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		lots:   append([]model.PurchaseLot(nil), s.lots...),
		nextID: s.nextID,
		now:    s.now,
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("memory tx panic: %v", p)
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.lots = tx.lots
	s.nextID = tx.nextID
	return nil
}

// Lots returns a copy of every stored lot. Intended for tests.
func (s *MemoryStore) Lots() []model.PurchaseLot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.PurchaseLot(nil), s.lots...)
}

type memoryTx struct {
	lots   []model.PurchaseLot
	nextID int64
	now    func() time.Time
}

func (tx *memoryTx) InsertLot(_ context.Context, lot *model.PurchaseLot) error {
	if lot.Quantity <= 0 {
		return fmt.Errorf("insert lot: quantity must be positive, got %d", lot.Quantity)
	}
	lot.ID = tx.nextID
	tx.nextID++
	if lot.CreatedAt.IsZero() {
		lot.CreatedAt = tx.now().UTC()
	}
	tx.lots = append(tx.lots, *lot)
	return nil
}

func (tx *memoryTx) ListLots(_ context.Context, guildID int64, ticker string) ([]model.PurchaseLot, error) {
	var result []model.PurchaseLot
	for _, l := range tx.lots {
		if l.GuildID == guildID && l.Ticker == ticker {
			result = append(result, l)
		}
	}
	sortFIFO(result)
	return result, nil
}

func (tx *memoryTx) ListGuildLots(_ context.Context, guildID int64) ([]model.PurchaseLot, error) {
	var result []model.PurchaseLot
	for _, l := range tx.lots {
		if l.GuildID == guildID {
			result = append(result, l)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Ticker != result[j].Ticker {
			return result[i].Ticker < result[j].Ticker
		}
		return fifoLess(result[i], result[j])
	})
	return result, nil
}

func (tx *memoryTx) UpdateLotQuantity(_ context.Context, id int64, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("update lot %d: quantity must be positive, got %d", id, qty)
	}
	for i := range tx.lots {
		if tx.lots[i].ID == id {
			tx.lots[i].Quantity = qty
			return nil
		}
	}
	return fmt.Errorf("lot %d not found", id)
}

func (tx *memoryTx) DeleteLot(_ context.Context, id int64) error {
	for i := range tx.lots {
		if tx.lots[i].ID == id {
			tx.lots = append(tx.lots[:i], tx.lots[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("lot %d not found", id)
}

func fifoLess(a, b model.PurchaseLot) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func sortFIFO(lots []model.PurchaseLot) {
	sort.SliceStable(lots, func(i, j int) bool { return fifoLess(lots[i], lots[j]) })
}
