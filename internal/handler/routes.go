package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"binance-proxy-go/internal/config"
	"binance-proxy-go/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
// Only GET is routed to the forwarder.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, proxy *ProxyHandler, status *StatusHandler) {
	e.GET("/", status.Info)
	e.GET("/health", status.Health)

	e.GET(cfg.Proxy.Prefix+"/*", proxy.Handle)
}

// RegisterMetrics exposes m at the configured path. A nil m registers nothing.
func RegisterMetrics(e *echo.Echo, cfg *config.Config, m *metrics.Metrics) {
	if m == nil {
		return
	}
	e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
}
