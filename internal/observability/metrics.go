package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"adgate/internal/models"
)

// MetricsServer serves the gateway's Prometheus scrape endpoint on its own
// port, so operator traffic never competes with metered marketplace traffic
// and the rate-limit middleware never sees scrapes.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer builds the scrape server from the gateway's metrics
// configuration. The handler is only mounted when the provider carries a
// Prometheus exporter; otherwise the path answers 404 and the server is inert.
func NewMetricsServer(cfg models.MetricsConfig, provider *Provider) *MetricsServer {
	mux := http.NewServeMux()

	if provider != nil && provider.promExporter != nil {
		mux.Handle(cfg.Path, promhttp.Handler())
	}

	return &MetricsServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: mux,
		},
	}
}

// Start begins serving metrics in a blocking call.
// Returns http.ErrServerClosed on graceful shutdown.
func (ms *MetricsServer) Start() error {
	slog.Info("Starting metrics server", "addr", ms.server.Addr)
	return ms.server.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}
