package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected scrape status %d", rec.Code)
	}
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read scrape body: %v", err)
	}
	return string(body)
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	m := New("test")
	route := func(r *http.Request) string {
		switch {
		case r.URL.Path == "/health":
			return "/health"
		case strings.HasPrefix(r.URL.Path, "/static/"):
			return "/static/"
		default:
			return ""
		}
	}
	handler := m.Middleware(route, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if route(r) == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))

	for _, path := range []string{"/health", "/missing-0", "/missing-1", "/static/app.js"} {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	body := scrape(t, m)
	for _, want := range []string{
		`search_evaluator_http_requests_total{method="GET",path="/health",service="test",status="200"} 1`,
		`search_evaluator_http_requests_total{method="GET",path="unmatched",service="test",status="404"} 2`,
		`search_evaluator_http_requests_total{method="GET",path="/static/",service="test",status="200"} 1`,
		`search_evaluator_http_in_flight_requests{service="test"} 0`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected scrape to contain %q\n%s", want, body)
		}
	}
	if strings.Contains(body, "/missing-") {
		t.Fatalf("raw request paths must not become labels\n%s", body)
	}
}

func TestMiddlewareWithoutRouteLabelsUnmatched(t *testing.T) {
	m := New("test")
	handler := m.Middleware(nil, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/anything", nil))

	want := `search_evaluator_http_requests_total{method="GET",path="unmatched",service="test",status="204"} 1`
	if body := scrape(t, m); !strings.Contains(body, want) {
		t.Fatalf("expected scrape to contain %q\n%s", want, body)
	}
}

func TestDomainCounters(t *testing.T) {
	m := New("test")

	m.RecordEvaluation("Exact Match", false)
	m.RecordEvaluation("Exact Match", true)
	m.RecordEvaluation("", false)
	m.RecordEvaluationError("generation")
	m.RecordImageSource("placeholder")

	body := scrape(t, m)
	for _, want := range []string{
		`search_evaluator_evaluation_results_total{reason_code="Exact Match",service="test"} 2`,
		`search_evaluator_evaluation_results_total{reason_code="unknown",service="test"} 1`,
		`search_evaluator_evaluation_parse_fallback_total{service="test"} 1`,
		`search_evaluator_evaluation_errors_total{kind="generation",service="test"} 1`,
		`search_evaluator_image_resolved_total{service="test",source="placeholder"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected scrape to contain %q\n%s", want, body)
		}
	}
}
