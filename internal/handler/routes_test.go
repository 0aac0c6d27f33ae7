package handler

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"binance-proxy-go/internal/config"
	"binance-proxy-go/internal/metrics"
)

func TestRegisterRoutes_Wiring(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL)

	e := echo.New()
	e.HTTPErrorHandler = NewErrorHandler(discardLogger())
	RegisterRoutes(e, cfg, newTestProxyHandler(cfg), NewStatusHandler(cfg, "test"))

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET /", http.MethodGet, "/", http.StatusOK},
		{"GET /health", http.MethodGet, "/health", http.StatusOK},
		{"GET /api/fapi/v1/premiumIndex", http.MethodGet, "/api/fapi/v1/premiumIndex", http.StatusOK},
		{"GET /api/ with query", http.MethodGet, "/api/fapi/v1/klines?symbol=BTCUSDT", http.StatusOK},
		{"POST /api/ not routed", http.MethodPost, "/api/fapi/v1/order", http.StatusMethodNotAllowed},
		{"GET /unknown returns 404", http.MethodGet, "/unknown", http.StatusNotFound},
		{"GET /metrics absent when disabled", http.MethodGet, "/metrics", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
				t.Errorf("Content-Type = %q, want JSON", ct)
			}
		})
	}
}

func TestRegisterRoutes_CustomPrefix(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.URL.Path))
	}))
	defer upstream.Close()

	cfg := testConfig(upstream.URL)
	cfg.Proxy.Prefix = "/binance"

	e := echo.New()
	RegisterRoutes(e, cfg, newTestProxyHandler(cfg), NewStatusHandler(cfg, "test"))

	req := httptest.NewRequest(http.MethodGet, "/binance/fapi/v1/time", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "/fapi/v1/time" {
		t.Errorf("upstream saw path %q, want %q", rec.Body.String(), "/fapi/v1/time")
	}
}

func TestRegisterMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Enabled = true
	m := metrics.New(cfg.Proxy.Prefix)
	m.RequestsTotal.WithLabelValues("GET", "200", "/api").Inc()

	e := echo.New()
	RegisterMetrics(e, cfg, m)

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "binance_proxy_http_requests_total") {
		t.Error("expected binance_proxy_http_requests_total in exposition")
	}
}

func TestRegisterMetrics_Nil(t *testing.T) {
	e := echo.New()
	RegisterMetrics(e, config.Default(), nil)

	if n := len(e.Routes()); n != 0 {
		t.Errorf("registered %d routes for nil metrics, want 0", n)
	}
}
