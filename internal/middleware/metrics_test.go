package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	dto "github.com/prometheus/client_model/go"

	"binance-proxy-go/internal/metrics"
)

// findRequestMetric returns the labels of the first requests_total sample
// whose path_prefix equals prefix, or nil.
func findRequestMetric(t *testing.T, m *metrics.Metrics, prefix string) (map[string]string, *dto.Metric) {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, f := range families {
		if f.GetName() != "binance_proxy_http_requests_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["path_prefix"] == prefix {
				return labels, metric
			}
		}
	}
	return nil, nil
}

func TestMetricsMiddleware_IncrementsCounter(t *testing.T) {
	m := metrics.New("/api")

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/api/*", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/fapi/v1/premiumIndex", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	labels, metric := findRequestMetric(t, m, "/api")
	if labels == nil {
		t.Fatal("expected binance_proxy_http_requests_total with path_prefix=/api")
	}
	if v := metric.GetCounter().GetValue(); v != 1 {
		t.Errorf("counter value = %v, want 1", v)
	}
	if labels["status_code"] != "200" {
		t.Errorf("status_code = %q, want %q", labels["status_code"], "200")
	}
}

func TestMetricsMiddleware_RecordsDuration(t *testing.T) {
	m := metrics.New("/api")

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/health", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}

	found := false
	for _, f := range families {
		if f.GetName() == "binance_proxy_http_request_duration_seconds" {
			for _, metric := range f.GetMetric() {
				if metric.GetHistogram().GetSampleCount() > 0 {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected binance_proxy_http_request_duration_seconds with at least one sample")
	}
}

func TestMetricsMiddleware_HTTPErrorStatus(t *testing.T) {
	m := metrics.New("/api")

	e := echo.New()
	e.Use(MetricsMiddleware(m))
	e.GET("/api/*", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTooManyRequests, "slow down")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/fapi/v1/time", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	labels, _ := findRequestMetric(t, m, "/api")
	if labels == nil {
		t.Fatal("expected binance_proxy_http_requests_total with path_prefix=/api")
	}
	if labels["status_code"] != "429" {
		t.Errorf("status_code = %q, want %q", labels["status_code"], "429")
	}
}

func TestMetricsMiddleware_RouterNotFound(t *testing.T) {
	m := metrics.New("/api")

	e := echo.New()
	e.Use(MetricsMiddleware(m))

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	labels, _ := findRequestMetric(t, m, "other")
	if labels == nil {
		t.Fatal("expected binance_proxy_http_requests_total with path_prefix=other")
	}
	if labels["method"] != "GET" || labels["status_code"] != "404" {
		t.Errorf("labels = %v, want method=GET status_code=404", labels)
	}
}
