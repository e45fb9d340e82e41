package watermark_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/illmade-knight/go-analytics-bridge/pkg/watermark"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Missing file reads as zero", func(t *testing.T) {
		// Arrange
		store, err := watermark.NewFileStore(filepath.Join(t.TempDir(), "last_time.txt"), zerolog.Nop())
		require.NoError(t, err)

		// Act
		nanos, err := store.Load(ctx)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, int64(0), nanos)
	})

	t.Run("Corrupted content reads as zero", func(t *testing.T) {
		// Arrange
		path := filepath.Join(t.TempDir(), "last_time.txt")
		require.NoError(t, os.WriteFile(path, []byte("not-a-number"), 0o644))
		store, err := watermark.NewFileStore(path, zerolog.Nop())
		require.NoError(t, err)

		// Act
		nanos, err := store.Load(ctx)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, int64(0), nanos)
	})

	t.Run("Trailing newline is tolerated", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "last_time.txt")
		require.NoError(t, os.WriteFile(path, []byte("1700000000000000000\n"), 0o644))
		store, err := watermark.NewFileStore(path, zerolog.Nop())
		require.NoError(t, err)

		nanos, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1700000000000000000), nanos)
	})

	t.Run("Round trip", func(t *testing.T) {
		// Arrange
		path := filepath.Join(t.TempDir(), "last_time.txt")
		store, err := watermark.NewFileStore(path, zerolog.Nop())
		require.NoError(t, err)
		const want = int64(1718000000123456789)

		// Act
		require.NoError(t, store.Save(ctx, want))
		got, err := store.Load(ctx)

		// Assert
		require.NoError(t, err)
		assert.Equal(t, want, got)
		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "1718000000123456789", string(raw))
	})

	t.Run("Save into missing directory fails", func(t *testing.T) {
		store, err := watermark.NewFileStore(filepath.Join(t.TempDir(), "nope", "last_time.txt"), zerolog.Nop())
		require.NoError(t, err)

		err = store.Save(ctx, 42)
		assert.Error(t, err)
	})

	t.Run("Empty path is rejected", func(t *testing.T) {
		_, err := watermark.NewFileStore("", zerolog.Nop())
		assert.Error(t, err)
	})
}
