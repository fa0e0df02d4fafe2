package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adgate/internal/models"
	"adgate/internal/version"
)

func TestNewMetricsServer(t *testing.T) {
	p, err := Setup(
		models.MetricsConfig{Enabled: true, Path: "/metrics", Port: 0},
		models.ObservabilityConfig{ServiceName: "adgate-test"},
		version.GetInfo())
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	ms := NewMetricsServer(models.MetricsConfig{Enabled: true, Path: "/metrics", Port: 0}, p)
	require.NotNil(t, ms)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	ms.server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Body.String())
}

func TestNewMetricsServer_ConfiguredPathAndPort(t *testing.T) {
	p, err := Setup(
		models.MetricsConfig{Enabled: true, Path: "/internal/metrics", Port: 9191},
		models.ObservabilityConfig{ServiceName: "adgate-test"},
		version.GetInfo())
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	ms := NewMetricsServer(models.MetricsConfig{Enabled: true, Path: "/internal/metrics", Port: 9191}, p)
	assert.Equal(t, ":9191", ms.server.Addr)

	req := httptest.NewRequest("GET", "/internal/metrics", nil)
	rec := httptest.NewRecorder()
	ms.server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest("GET", "/metrics", nil)
	rec = httptest.NewRecorder()
	ms.server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code, "only the configured path is mounted")
}

func TestNewMetricsServer_NilProvider(t *testing.T) {
	ms := NewMetricsServer(models.MetricsConfig{Path: "/metrics"}, nil)
	require.NotNil(t, ms)

	// Without an exporter the path is simply unregistered.
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	ms.server.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsServer_Shutdown(t *testing.T) {
	ms := NewMetricsServer(models.MetricsConfig{Path: "/metrics"}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, ms.Shutdown(ctx))
}
