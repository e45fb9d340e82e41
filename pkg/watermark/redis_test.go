package watermark_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/illmade-knight/go-analytics-bridge/pkg/watermark"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*watermark.RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := watermark.NewRedisStore(context.Background(), &watermark.RedisConfig{
		Addr:    mr.Addr(),
		Key:     "bridge:last_time",
		Timeout: time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Missing key reads as zero", func(t *testing.T) {
		store, _ := newTestRedisStore(t)

		nanos, err := store.Load(ctx)

		require.NoError(t, err)
		assert.Equal(t, int64(0), nanos)
	})

	t.Run("Corrupted value reads as zero", func(t *testing.T) {
		// Arrange
		store, mr := newTestRedisStore(t)
		require.NoError(t, mr.Set("bridge:last_time", "garbage"))

		// Act
		nanos, err := store.Load(ctx)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, int64(0), nanos)
	})

	t.Run("Round trip without expiry", func(t *testing.T) {
		// Arrange
		store, mr := newTestRedisStore(t)

		// Act
		require.NoError(t, store.Save(ctx, 1718000000000000001))
		got, err := store.Load(ctx)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, int64(1718000000000000001), got)
		assert.Equal(t, time.Duration(0), mr.TTL("bridge:last_time"))
	})

	t.Run("Unreachable server surfaces an error", func(t *testing.T) {
		store, mr := newTestRedisStore(t)
		mr.Close()

		_, err := store.Load(ctx)
		assert.Error(t, err)
	})
}

func TestNewRedisStore_RequiresKey(t *testing.T) {
	mr := miniredis.RunT(t)
	_, err := watermark.NewRedisStore(context.Background(), &watermark.RedisConfig{Addr: mr.Addr()}, zerolog.Nop())
	assert.Error(t, err)
}
