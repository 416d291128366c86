package rediskv

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/affilink/internal/server/kv"
)

// Тесты требуют запущенный Redis: REDIS_ADDR=localhost:6379 go test ./...
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR is not set")
	}

	s, err := New(context.Background(), addr, os.Getenv("REDIS_PASSWORD"))
	require.NoError(t, err)
	s.prefix = "affilink-test:" + uuid.NewString() + ":"
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestStore_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))

	value, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestStore_Expiry(t *testing.T) {
	ctx := context.Background()
	s := setupTestStore(t)

	require.NoError(t, s.Set(ctx, "short", []byte("v"), 50*time.Millisecond))
	time.Sleep(150 * time.Millisecond)

	_, err := s.Get(ctx, "short")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestNew_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := New(ctx, "127.0.0.1:1", "")
	assert.Error(t, err)
}
