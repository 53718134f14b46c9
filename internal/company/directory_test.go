package company

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atmx/stocker/internal/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type countingInfo struct {
	calls atomic.Int32
	names map[string]string
}

func (c *countingInfo) Lookup(_ context.Context, ticker string) (string, error) {
	c.calls.Add(1)
	if name, ok := c.names[ticker]; ok {
		return name, nil
	}
	return "", errors.New("not found")
}

func TestDirectory_CachesSuccessfulLookups(t *testing.T) {
	info := &countingInfo{names: map[string]string{"7203.T": "Toyota Motor Corporation"}}
	dir := NewDirectory(info, store.NewMemoryNameCache(), discard)

	for i := 0; i < 3; i++ {
		assert.Equal(t, "Toyota Motor Corporation", dir.DisplayName(context.Background(), "7203.T"))
	}
	assert.Equal(t, int32(1), info.calls.Load())
}

func TestDirectory_FallsBackToTickerAndRetries(t *testing.T) {
	info := &countingInfo{names: map[string]string{}}
	cache := store.NewMemoryNameCache()
	dir := NewDirectory(info, cache, discard)

	assert.Equal(t, "9999.T", dir.DisplayName(context.Background(), "9999.T"))
	assert.Equal(t, "9999.T", dir.DisplayName(context.Background(), "9999.T"))
	assert.Equal(t, int32(2), info.calls.Load())
	assert.Equal(t, 0, cache.Len())
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("redis down")
}
func (brokenCache) Set(context.Context, string, string) error { return errors.New("redis down") }

func TestDirectory_CacheFailureStillResolves(t *testing.T) {
	info := &countingInfo{names: map[string]string{"6758.T": "Sony Group Corporation"}}
	dir := NewDirectory(info, brokenCache{}, discard)

	assert.Equal(t, "Sony Group Corporation", dir.DisplayName(context.Background(), "6758.T"))
}
