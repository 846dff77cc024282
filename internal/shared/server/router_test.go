package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"contrib-backend/internal/shared/config"
)

func TestRouterHealthAndMetricsRoutes(t *testing.T) {
	r := NewRouter(RouterDeps{Config: config.Config{}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("health expected 200, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("metrics expected 200, got %d", resp.Code)
	}
}

func TestRouterRateLimitsAfterBurst(t *testing.T) {
	r := NewRouter(RouterDeps{Config: config.Config{}})

	limited := false
	for i := 0; i < 60; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		resp := httptest.NewRecorder()
		r.ServeHTTP(resp, req)
		switch resp.Code {
		case http.StatusOK:
		case http.StatusTooManyRequests:
			limited = true
		default:
			t.Fatalf("unexpected status %d", resp.Code)
		}
	}
	if !limited {
		t.Fatalf("expected a 429 once the polling burst is spent")
	}
}
