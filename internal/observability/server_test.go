package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandler_Endpoints(t *testing.T) {
	ready := false
	h := Handler(func() bool { return ready })

	tests := []struct {
		name     string
		path     string
		ready    bool
		expected int
	}{
		{"healthz", "/healthz", false, http.StatusOK},
		{"metrics", "/metrics", false, http.StatusOK},
		{"readyz not ready", "/readyz", false, http.StatusServiceUnavailable},
		{"readyz ready", "/readyz", true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ready = tt.ready
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.expected {
				t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.expected)
			}
		})
	}
}

func TestHandler_NilReadyAlwaysReady(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
