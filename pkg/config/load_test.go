package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/illmade-knight/go-analytics-bridge/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate runs the test in an empty directory so no stray config.yaml is read.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, "websocket", cfg.Bus.Transport)
	assert.Equal(t, "ws://localhost:3000/ws", cfg.Bus.URL)
	assert.Equal(t, time.Second, cfg.Bus.InitialBackoff)
	assert.Equal(t, 32*time.Second, cfg.Bus.MaxBackoff)
	assert.Equal(t, 1, cfg.Pipeline.Workers)
	assert.Equal(t, 1<<20, cfg.Pipeline.MaxFrameBytes)
	assert.Equal(t, "file", cfg.Watermark.Backend)
	assert.Equal(t, "last_time.txt", cfg.Watermark.File)
	assert.Equal(t, 50, cfg.Alarms.Last)
	assert.Equal(t, "http://localhost:5040", cfg.Backends.Whisper.URL)
	assert.Equal(t, "http://localhost:7070", cfg.Backends.SpeakerVerification.URL)
	assert.Equal(t, uint32(5), cfg.Backends.Breaker.ConsecutiveFailures)
	assert.Equal(t, []string{"curl", "http://localhost:5050/{request}"}, cfg.Tools.AUD)
	assert.Contains(t, cfg.Tools.DeepSpeech, "{audio}")
}

func TestLoad_FileThenEnv(t *testing.T) {
	// Arrange
	dir := isolate(t)
	path := filepath.Join(dir, "bridge.yaml")
	yamlContent := `
bus:
  url: ws://bus.internal:3000/ws
pipeline:
  workers: 4
backends:
  timeout: 5s
  whisper:
    url: http://whisper.internal:5040
watermark:
  backend: redis
  redis:
    addr: redis.internal:6379
`
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o600))
	t.Setenv(config.ConfigPathEnvVar, path)
	t.Setenv("BRIDGE_PIPELINE__WORKERS", "2")
	t.Setenv("BRIDGE_ALARMS__TIMEOUT", "3s")
	t.Setenv("BRIDGE_TOOLS__AUD", "aud-cli --request {request}")

	// Act
	cfg, err := config.Load()

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "ws://bus.internal:3000/ws", cfg.Bus.URL)
	assert.Equal(t, 2, cfg.Pipeline.Workers, "env overrides file")
	assert.Equal(t, 5*time.Second, cfg.Backends.Timeout)
	assert.Equal(t, "http://whisper.internal:5040", cfg.Backends.Whisper.URL)
	assert.Equal(t, "http://localhost:5000", cfg.Backends.AudioAnomaly.URL, "untouched defaults survive")
	assert.Equal(t, 3*time.Second, cfg.Alarms.Timeout)
	assert.Equal(t, "redis", cfg.Watermark.Backend)
	assert.Equal(t, "redis.internal:6379", cfg.Watermark.Redis.Addr)
	assert.Equal(t, []string{"aud-cli", "--request", "{request}"}, cfg.Tools.AUD)
}

func TestLoad_DefaultFileInWorkingDir(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.DefaultConfigPath), []byte("log:\n  level: debug\n"), 0o600))

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_ValidationFailures(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{name: "unknown transport", env: map[string]string{"BRIDGE_BUS__TRANSPORT": "carrier-pigeon"}},
		{name: "mqtt without broker", env: map[string]string{"BRIDGE_BUS__TRANSPORT": "mqtt"}},
		{name: "pubsub without project", env: map[string]string{"BRIDGE_BUS__TRANSPORT": "pubsub"}},
		{name: "zero workers", env: map[string]string{"BRIDGE_PIPELINE__WORKERS": "0"}},
		{name: "unknown watermark backend", env: map[string]string{"BRIDGE_WATERMARK__BACKEND": "etcd"}},
		{name: "firestore without project", env: map[string]string{"BRIDGE_WATERMARK__BACKEND": "firestore"}},
		{name: "gcs without bucket", env: map[string]string{"BRIDGE_MEDIA__BACKEND": "gcs"}},
		{name: "bad backend url", env: map[string]string{"BRIDGE_BACKENDS__WHISPER__URL": "not a url"}},
		{name: "bad log level", env: map[string]string{"BRIDGE_LOG__LEVEL": "loud"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := config.Load()

			assert.Error(t, err)
		})
	}
}

func TestLoad_MQTTTransport(t *testing.T) {
	isolate(t)
	t.Setenv("BRIDGE_BUS__TRANSPORT", "mqtt")
	t.Setenv("BRIDGE_MQTT__BROKER_URL", "tcp://broker:1883")

	cfg, err := config.Load()

	require.NoError(t, err)
	assert.Equal(t, "sifis/bus", cfg.MQTT.Topic)
	assert.Equal(t, "sifis/bus/results", cfg.MQTT.ResultsTopic)
}
