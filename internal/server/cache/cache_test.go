package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/affilink/internal/server/kv"
)

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("read failed")
}
func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("write failed")
}
func (brokenStore) Delete(context.Context, string) error { return nil }
func (brokenStore) Close() error                         { return nil }

func newTestCache(t *testing.T, store kv.Store) (*Cache, *time.Time) {
	t.Helper()

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	c := New(store, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.SetClock(func() time.Time { return now })

	return c, &now
}

func TestCache_GetWithinTTL(t *testing.T) {
	ctx := context.Background()
	c, now := newTestCache(t, kv.NewMemoryStore(kv.MemoryOptions{}))
	key := Key{CallerID: 1, Source: "blog", URL: "https://example.com/a"}

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)

	c.Put(ctx, key, "https://track.example/a")

	*now = now.Add(59 * time.Minute)
	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "https://track.example/a", got)
}

func TestCache_ExpiredWhilePhysicallyPresent(t *testing.T) {
	ctx := context.Background()
	// Хранилище без собственных часов продолжает держать запись
	store := kv.NewMemoryStore(kv.MemoryOptions{})
	c, now := newTestCache(t, store)
	key := Key{CallerID: 1, Source: "blog", URL: "https://example.com/a"}

	c.Put(ctx, key, "https://track.example/a")
	*now = now.Add(time.Hour)

	_, err := store.Get(ctx, key.String())
	require.NoError(t, err)

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
}

func TestCache_Overwrite(t *testing.T) {
	ctx := context.Background()
	c, now := newTestCache(t, kv.NewMemoryStore(kv.MemoryOptions{}))
	key := Key{CallerID: 1, Source: "blog", URL: "https://example.com/a"}

	c.Put(ctx, key, "first")
	*now = now.Add(50 * time.Minute)
	c.Put(ctx, key, "second")
	*now = now.Add(50 * time.Minute)

	got, ok := c.Get(ctx, key)
	require.True(t, ok)
	assert.Equal(t, "second", got)
}

func TestCache_KeysAreSeparated(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, kv.NewMemoryStore(kv.MemoryOptions{}))

	base := Key{CallerID: 1, Source: "blog", URL: "https://example.com/a"}
	c.Put(ctx, base, "rewritten")

	others := []Key{
		{CallerID: 2, Source: "blog", URL: "https://example.com/a"},
		{CallerID: 1, Source: "newsletter", URL: "https://example.com/a"},
		{CallerID: 1, Source: "blog", URL: "https://example.com/b"},
		{CallerID: 1, Source: "blog:https", URL: "//example.com/a"},
	}
	for _, k := range others {
		_, ok := c.Get(ctx, k)
		assert.False(t, ok, "key %+v must not hit", k)
	}
}

func TestKey_String(t *testing.T) {
	k := Key{CallerID: 7, Source: "blog", URL: "https://example.com/x?a=1"}
	assert.Equal(t, "cache:7:blog:https://example.com/x?a=1", k.String())

	k.Source = "gpt:plugin"
	assert.Equal(t, "cache:7:gpt%3Aplugin:https://example.com/x?a=1", k.String())
}

func TestCache_StoreErrorsAreAMiss(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, brokenStore{})
	key := Key{CallerID: 1, Source: "blog", URL: "https://example.com/a"}

	assert.NotPanics(t, func() { c.Put(ctx, key, "x") })

	_, ok := c.Get(ctx, key)
	assert.False(t, ok)
}
