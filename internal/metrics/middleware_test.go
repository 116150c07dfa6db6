package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func newRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(Middleware())
	r.Get("/documents", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"url":"https://news.example/a"}`))
	})
	r.Post("/search", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	})
	r.Delete("/documents", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return r
}

func TestMiddleware_LabelsByRouteAndStatus(t *testing.T) {
	r := newRouter()

	tests := []struct {
		method string
		target string
		route  string
		status string
	}{
		{"GET", "/documents?url=https://news.example/a", "/documents", "200"},
		{"POST", "/search", "/search", "422"},
		{"DELETE", "/documents?url=x", "/documents", "204"},
		{"GET", "/boom", "/boom", "500"},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.route, func(t *testing.T) {
			before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(tc.method, tc.route, tc.status))

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.target, http.NoBody))

			after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(tc.method, tc.route, tc.status))
			if after-before != 1 {
				t.Errorf("requests_total delta = %v, want 1", after-before)
			}
		})
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	r := newRouter()

	for _, p := range []string{"/nope/1", "/nope/2", "/nope/3"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", p, http.NoBody))
	}

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", unmatchedRoute, "404")); got < 3 {
		t.Errorf("unmatched requests = %v, want >= 3", got)
	}
	if n := testutil.CollectAndCount(httpRequestsTotal); n == 0 {
		t.Error("expected series")
	}
}

func TestMiddleware_ObservesDurationAndSize(t *testing.T) {
	r := newRouter()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/documents", http.NoBody))

	if testutil.CollectAndCount(httpRequestDuration) == 0 {
		t.Error("expected duration observations")
	}

	expected := `# HELP newsdex_http_requests_in_flight HTTP requests currently being served
# TYPE newsdex_http_requests_in_flight gauge
newsdex_http_requests_in_flight 0
`
	if err := testutil.CollectAndCompare(httpInFlight, strings.NewReader(expected)); err != nil {
		t.Errorf("in-flight gauge: %v", err)
	}
	if testutil.CollectAndCount(httpResponseBytes) == 0 {
		t.Error("expected response size observations")
	}
}

func TestRouteLabel_NoRouteContext(t *testing.T) {
	req := httptest.NewRequest("GET", "/raw", http.NoBody)
	if got := routeLabel(req); got != unmatchedRoute {
		t.Errorf("routeLabel = %q, want %q", got, unmatchedRoute)
	}
}
