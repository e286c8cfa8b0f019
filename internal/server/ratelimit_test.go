package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// okHandler answers 200 so tests can tell a request got through.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func newTestLimiter(t *testing.T, rps float64, burst int) http.Handler {
	t.Helper()
	rl, stop := newRateLimiter(rps, burst, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(stop)
	return rl.middleware(okHandler)
}

func hit(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/query", nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// TestRateLimit_BurstThenReject verifies the bucket admits exactly burst
// requests before answering 429 with Retry-After.
func TestRateLimit_BurstThenReject(t *testing.T) {
	t.Parallel()

	h := newTestLimiter(t, 0.001, 3)
	for i := range 3 {
		if w := hit(h, "10.0.0.1:9999"); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}

	w := hit(h, "10.0.0.1:9999")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if got := w.Header().Get("Retry-After"); got != "1000" {
		t.Errorf("Retry-After: expected 1000, got %q", got)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
}

// TestRateLimit_PortIgnored verifies a client reconnecting from a new source
// port shares its bucket.
func TestRateLimit_PortIgnored(t *testing.T) {
	t.Parallel()

	h := newTestLimiter(t, 0.001, 1)
	hit(h, "10.0.0.2:1111")
	if w := hit(h, "10.0.0.2:2222"); w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 from the same host, got %d", w.Code)
	}
}

// TestRateLimit_PerClientIsolation verifies exhausting one client's bucket
// leaves another's untouched.
func TestRateLimit_PerClientIsolation(t *testing.T) {
	t.Parallel()

	h := newTestLimiter(t, 0.001, 1)
	for range 5 {
		hit(h, "192.168.1.1:1111")
	}
	if w := hit(h, "192.168.1.2:2222"); w.Code != http.StatusOK {
		t.Errorf("second client: expected 200, got %d", w.Code)
	}
}

// TestRateLimit_StopForgetsClients verifies the stop func resets buckets.
func TestRateLimit_StopForgetsClients(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 1, slog.New(slog.NewTextHandler(io.Discard, nil)))
	h := rl.middleware(okHandler)
	hit(h, "10.0.0.3:1")
	stop()
	if w := hit(h, "10.0.0.3:1"); w.Code != http.StatusOK {
		t.Errorf("expected 200 after stop, got %d", w.Code)
	}
}

func TestRetryAfter(t *testing.T) {
	t.Parallel()

	cases := []struct {
		rps  float64
		want string
	}{
		{10, "1"},
		{0.5, "2"},
		{0, "60"},
		{0.00001, "3600"},
	}
	for _, tc := range cases {
		rl, _ := newRateLimiter(tc.rps, 1, slog.Default())
		if got := rl.retryAfter(); got != tc.want {
			t.Errorf("rps=%v: expected %q, got %q", tc.rps, tc.want, got)
		}
	}
}

func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remoteAddr string
		wantIP     string
	}{
		{"127.0.0.1:54321", "127.0.0.1"},
		{"[::1]:8080", "::1"},
		{"noport", "noport"},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remoteAddr
		if got := clientIP(req); got != tc.wantIP {
			t.Errorf("remoteAddr=%q: expected %q, got %q", tc.remoteAddr, tc.wantIP, got)
		}
	}
}
