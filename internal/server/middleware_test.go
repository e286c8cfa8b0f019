package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/54b3r/cinerag-go/internal/logging"
)

func Test_RequestLogger_AssignsAndEchoesID(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logging.NewWithWriter(&buf, "info", "json")

	var seen string
	h := requestLogger(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get(requestIDHeader)
		logging.FromContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusAccepted)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	id := w.Header().Get(requestIDHeader)
	if len(id) != 36 {
		t.Fatalf("want generated UUID request id, got %q", id)
	}
	if seen != "" {
		t.Errorf("inbound request must not be mutated, got header %q", seen)
	}
	out := buf.String()
	if strings.Count(out, id) != 2 {
		t.Errorf("want request id on handler and access log lines, got:\n%s", out)
	}
	if !strings.Contains(out, `"status":202`) {
		t.Errorf("want captured status 202 in access log, got:\n%s", out)
	}
}

func Test_RequestLogger_ReusesInboundID(t *testing.T) {
	t.Parallel()

	h := requestLogger(logging.Discard(), http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "edge-123")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "edge-123" {
		t.Errorf("want inbound id reused, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); len(got) != 36 {
		t.Errorf("want oversized inbound id replaced, got %q", got)
	}
}
