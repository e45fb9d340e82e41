package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/illmade-knight/go-analytics-bridge/pkg/config"
	"github.com/illmade-knight/go-analytics-bridge/pkg/dispatch"
	"github.com/illmade-knight/go-analytics-bridge/pkg/media"
	"github.com/illmade-knight/go-analytics-bridge/pkg/watermark"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func TestNewWatermarkStore(t *testing.T) {
	ctx := context.Background()

	t.Run("file", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Watermark.File = filepath.Join(t.TempDir(), "last_time.txt")

		store, closer, err := newWatermarkStore(ctx, cfg, zerolog.Nop())

		require.NoError(t, err)
		assert.Nil(t, closer)
		assert.IsType(t, &watermark.FileStore{}, store)
	})

	t.Run("memory", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Watermark.Backend = "memory"

		store, _, err := newWatermarkStore(ctx, cfg, zerolog.Nop())

		require.NoError(t, err)
		assert.IsType(t, &watermark.InMemoryStore{}, store)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig(t)
		cfg.Watermark.Backend = "redis"
		cfg.Watermark.Redis.Addr = mr.Addr()

		store, closer, err := newWatermarkStore(ctx, cfg, zerolog.Nop())

		require.NoError(t, err)
		require.NotNil(t, closer)
		t.Cleanup(func() { _ = closer.Close() })
		require.NoError(t, store.Save(ctx, 42))
		got, err := mr.Get(cfg.Watermark.Redis.Key)
		require.NoError(t, err)
		assert.Equal(t, "42", got)
	})
}

func TestNewMediaSource_Local(t *testing.T) {
	cfg := testConfig(t)
	cfg.Media.Dir = t.TempDir()

	src, closer, err := newMediaSource(context.Background(), cfg, zerolog.Nop())

	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.IsType(t, &media.LocalDir{}, src)
}

func TestNewDependencies_RegistersEveryRequestTopic(t *testing.T) {
	cfg := testConfig(t)
	store := watermark.NewInMemoryStore(0)
	src, err := media.NewLocalDir(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	deps, err := newDependencies(cfg, store, src, zerolog.Nop())
	require.NoError(t, err)
	registry := dispatch.NewRegistry()
	require.NoError(t, dispatch.RegisterDefaults(registry, deps))

	assert.Len(t, registry.Topics(), 9)
	assert.Equal(t, cfg.Backends.Whisper.URL, deps.Endpoints.Whisper)
	assert.Equal(t, cfg.Tools.AUD, deps.Commands.AUD)
}

func TestNewBusConnection(t *testing.T) {
	ctx := context.Background()

	t.Run("websocket by default", func(t *testing.T) {
		cfg := testConfig(t)

		conn, closer, err := newBusConnection(ctx, cfg, zerolog.Nop())

		require.NoError(t, err)
		assert.Nil(t, closer)
		assert.False(t, conn.Connected())
	})

	t.Run("mqtt", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Bus.Transport = "mqtt"
		cfg.MQTT.BrokerURL = "tcp://localhost:1883"

		conn, _, err := newBusConnection(ctx, cfg, zerolog.Nop())

		require.NoError(t, err)
		assert.False(t, conn.Connected())
	})
}
