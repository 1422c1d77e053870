package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	jobmetrics "github.com/meridian-erp/meridian-erp/internal/jobs"
)

func TestMetricsHandlerExposesPrometheusMetrics(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = jobs.Track("consol:run").End(nil)

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/consol/groups", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}

	body := rr.Body.String()
	if !strings.Contains(body, "meridian_http_requests_total") {
		t.Fatalf("expected body to contain meridian_http_requests_total, got: %s", body)
	}
	if !strings.Contains(body, "meridian_jobs_total") {
		t.Fatalf("expected body to contain meridian_jobs_total, got: %s", body)
	}
}
