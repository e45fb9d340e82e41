package microservice_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/illmade-knight/go-analytics-bridge/pkg/metrics"
	"github.com/illmade-knight/go-analytics-bridge/pkg/microservice"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestBaseServer_Endpoints(t *testing.T) {
	// Arrange
	var ready atomic.Bool
	server := microservice.NewBaseServer(zerolog.Nop(), ":0", ready.Load)
	require.NoError(t, server.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	})
	base := "http://localhost" + server.GetHTTPPort()
	metrics.EventsTotal.WithLabelValues("SIFIS:Privacy_Aware_AUD", "handled").Inc()

	// Act & Assert
	status, body := get(t, base+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK", body)

	status, _ = get(t, base+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, status)

	ready.Store(true)
	status, body = get(t, base+"/readyz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "READY", body)

	status, body = get(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "analytics_bridge_events_total")
}

func TestReadyzHandler_NilFuncIsReady(t *testing.T) {
	rec := httptest.NewRecorder()
	microservice.ReadyzHandler(nil)(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBaseServer_StartFailsOnBadAddress(t *testing.T) {
	server := microservice.NewBaseServer(zerolog.Nop(), "not-an-address", nil)
	assert.Error(t, server.Start())
}
