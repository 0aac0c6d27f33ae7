package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"binance-proxy-go/internal/config"
)

// Version is a string type for dependency injection of the build version.
type Version string

const serviceName = "Binance API Proxy"

// isoMillis matches JavaScript's Date.toISOString layout.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

type healthResponse struct {
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
	BinanceAPI string `json:"binance_api"`
}

type infoResponse struct {
	Name      string        `json:"name"`
	Version   string        `json:"version"`
	Endpoints infoEndpoints `json:"endpoints"`
	Usage     infoUsage     `json:"usage"`
}

type infoEndpoints struct {
	Health string `json:"health"`
	Proxy  string `json:"proxy"`
}

type infoUsage struct {
	Example string `json:"example"`
	Note    string `json:"note"`
}

// StatusHandler serves the service info and health endpoints.
// It performs no external I/O.
type StatusHandler struct {
	cfg     *config.Config
	version Version
	now     func() time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(cfg *config.Config, v Version) *StatusHandler {
	return &StatusHandler{cfg: cfg, version: v, now: time.Now}
}

// Health reports liveness together with the current time and upstream base URL.
func (h *StatusHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, healthResponse{
		Status:     "ok",
		Timestamp:  h.now().UTC().Format(isoMillis),
		BinanceAPI: h.cfg.Upstream.BaseURL,
	})
}

// Info returns service metadata and an example URL built from the request's
// own scheme and host.
func (h *StatusHandler) Info(c echo.Context) error {
	prefix := h.cfg.Proxy.Prefix
	return c.JSON(http.StatusOK, infoResponse{
		Name:    serviceName,
		Version: string(h.version),
		Endpoints: infoEndpoints{
			Health: "/health",
			Proxy:  prefix + "/*",
		},
		Usage: infoUsage{
			Example: fmt.Sprintf("%s://%s%s/fapi/v1/premiumIndex", c.Scheme(), c.Request().Host, prefix),
			Note:    fmt.Sprintf("all %s/* requests are forwarded to %s", prefix, h.cfg.Upstream.BaseURL),
		},
	})
}
