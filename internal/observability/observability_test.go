package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adgate/internal/models"
	"adgate/internal/version"
)

func TestSetup_MetricsOnly(t *testing.T) {
	p, err := Setup(
		models.MetricsConfig{Enabled: true, Path: "/metrics", Port: 9090},
		models.ObservabilityConfig{ServiceName: "adgate-test"},
		version.GetInfo())
	require.NoError(t, err)
	require.NotNil(t, p)
	defer p.Shutdown(context.Background())

	assert.NotNil(t, p.PrometheusExporter())
	assert.Nil(t, p.tracerProvider, "tracing disabled means no tracer provider")
}

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(
		models.MetricsConfig{Enabled: false},
		models.ObservabilityConfig{ServiceName: "adgate-test"},
		version.GetInfo())
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	assert.Nil(t, p.PrometheusExporter())
}

func TestSetup_StdoutTracing(t *testing.T) {
	p, err := Setup(
		models.MetricsConfig{Enabled: false},
		models.ObservabilityConfig{
			ServiceName: "adgate-test",
			Tracing: models.TracingConfig{
				Enabled:    true,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
		version.GetInfo())
	require.NoError(t, err)
	require.NotNil(t, p.tracerProvider)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, p.Shutdown(ctx))
}

func TestSetup_UnsupportedExporter(t *testing.T) {
	_, err := Setup(
		models.MetricsConfig{Enabled: false},
		models.ObservabilityConfig{
			ServiceName: "adgate-test",
			Tracing: models.TracingConfig{
				Enabled:  true,
				Exporter: "jaeger",
			},
		},
		version.GetInfo())
	assert.Error(t, err)
}

func TestProvider_ShutdownEmpty(t *testing.T) {
	p := &Provider{}
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestGetEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "")
	t.Setenv("DEPLOYMENT_ENV", "")
	assert.Equal(t, "development", getEnvironment())

	t.Setenv("DEPLOYMENT_ENV", "staging")
	assert.Equal(t, "staging", getEnvironment())

	t.Setenv("ENVIRONMENT", "production")
	assert.Equal(t, "production", getEnvironment())
}
