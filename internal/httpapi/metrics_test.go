package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddlewareLabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Delete("/providers/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	c := httpRequests.WithLabelValues("/providers/{name}", http.MethodDelete, "204")
	before := testutil.ToFloat64(c)
	for _, name := range []string{"groq", "ollama"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/providers/"+name, nil))
		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected 204, got %d", rr.Code)
		}
	}
	if got := testutil.ToFloat64(c) - before; got != 2 {
		t.Fatalf("expected 2 requests under the route pattern, got %v", got)
	}
}

func TestMetricsMiddlewareUnmatchedAndImplicitOK(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	ok := httpRequests.WithLabelValues("/healthz", http.MethodGet, "200")
	missing := httpRequests.WithLabelValues("unmatched", http.MethodGet, "404")
	okBefore, missBefore := testutil.ToFloat64(ok), testutil.ToFloat64(missing)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	if testutil.ToFloat64(ok)-okBefore != 1 {
		t.Fatalf("implicit 200 not counted")
	}
	if testutil.ToFloat64(missing)-missBefore != 1 {
		t.Fatalf("unmatched 404 not counted")
	}
	if testutil.ToFloat64(httpInflight) != 0 {
		t.Fatalf("inflight gauge should return to 0")
	}
}

func TestMetricsEndpointServesFamilies(t *testing.T) {
	h := NewMux(&mockService{})
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `insightd_http_requests_total{code="200",method="GET",route="/healthz"}`) {
		t.Fatalf("request counter missing from /metrics")
	}
}
