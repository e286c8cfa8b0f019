package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Fake Pinger for readiness tests
// ---------------------------------------------------------------------------

// fakePinger is a test double for the Pinger interface.
type fakePinger struct {
	// name is returned by Name().
	name string
	// err is returned by Ping(); nil means healthy.
	err error
}

func (f *fakePinger) Name() string                 { return f.name }
func (f *fakePinger) Ping(_ context.Context) error { return f.err }

// newReadyTestServer builds a *Server with the given pingers wired in.
func newReadyTestServer(pingers ...Pinger) *Server {
	s := newTestServer()
	s.pingers = pingers
	return s
}

// ---------------------------------------------------------------------------
// GET /api/health: liveness
// ---------------------------------------------------------------------------

// TestHandleHealth_OK verifies that GET /api/health returns 200 with the
// status and the generation backend state.
func TestHandleHealth_OK(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	w := httptest.NewRecorder()

	s.handleHealth(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d; body: %s", w.Code, w.Body.String())
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}

	var body healthResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status: expected %q, got %q", "ok", body.Status)
	}
	if body.GenerationBackend != "ollama" || !body.GenerationAvailable {
		t.Errorf("generation: expected ollama/available, got %q/%v", body.GenerationBackend, body.GenerationAvailable)
	}
}

// TestHandleHealth_NoBackend verifies that a missing generation backend is
// reported but does not fail liveness.
func TestHandleHealth_NoBackend(t *testing.T) {
	t.Parallel()

	s := newTestServer()
	s.generator = &fakeGenerator{name: "none", available: false}
	w := httptest.NewRecorder()

	s.handleHealth(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var body healthResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.GenerationAvailable {
		t.Error("expected generation_available=false")
	}
}

// ---------------------------------------------------------------------------
// GET /api/ready: readiness
// ---------------------------------------------------------------------------

func getReady(t *testing.T, s *Server) (int, readyResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	s.handleReady(w, httptest.NewRequest(http.MethodGet, "/api/ready", nil))

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return w.Code, resp
}

// TestHandleReady covers the aggregate status for each mix of probe results.
// Checks must come back in registration order even though probes run
// concurrently.
func TestHandleReady(t *testing.T) {
	t.Parallel()

	down := errors.New("dial tcp: connection refused")
	cases := []struct {
		name       string
		pingers    []Pinger
		wantStatus int
		wantOK     []bool
	}{
		{name: "no pingers", wantStatus: http.StatusOK, wantOK: []bool{}},
		{
			name:       "all healthy",
			pingers:    []Pinger{&fakePinger{name: "ollama"}, &fakePinger{name: "qdrant"}, &fakePinger{name: "catalog"}},
			wantStatus: http.StatusOK,
			wantOK:     []bool{true, true, true},
		},
		{
			name:       "vector store down",
			pingers:    []Pinger{&fakePinger{name: "ollama"}, &fakePinger{name: "pgvector", err: down}, &fakePinger{name: "catalog"}},
			wantStatus: http.StatusServiceUnavailable,
			wantOK:     []bool{true, false, true},
		},
		{
			name:       "all down",
			pingers:    []Pinger{&fakePinger{name: "ollama", err: down}, &fakePinger{name: "catalog", err: down}},
			wantStatus: http.StatusServiceUnavailable,
			wantOK:     []bool{false, false},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			code, resp := getReady(t, newReadyTestServer(tc.pingers...))
			if code != tc.wantStatus {
				t.Fatalf("status: expected %d, got %d", tc.wantStatus, code)
			}
			if resp.Ready != (tc.wantStatus == http.StatusOK) {
				t.Errorf("ready: got %v", resp.Ready)
			}
			if len(resp.Checks) != len(tc.wantOK) {
				t.Fatalf("expected %d checks, got %d", len(tc.wantOK), len(resp.Checks))
			}
			for i, c := range resp.Checks {
				if c.Name != tc.pingers[i].Name() {
					t.Errorf("check %d: expected %q, got %q", i, tc.pingers[i].Name(), c.Name)
				}
				if c.OK != tc.wantOK[i] {
					t.Errorf("check %q: ok=%v, want %v", c.Name, c.OK, tc.wantOK[i])
				}
				if c.OK == (c.Error != "") {
					t.Errorf("check %q: ok=%v with error %q", c.Name, c.OK, c.Error)
				}
			}
		})
	}
}

// blockingPinger waits for its context to end.
type blockingPinger struct{}

func (blockingPinger) Name() string { return "slow" }
func (blockingPinger) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

// TestHandleReady_ProbeTimeout verifies a hung dependency is reported as
// failed once ProbeTimeout elapses instead of stalling the endpoint.
func TestHandleReady_ProbeTimeout(t *testing.T) {
	t.Parallel()

	s := newReadyTestServer(blockingPinger{}, &fakePinger{name: "catalog"})
	s.cfg.ProbeTimeout = 20 * time.Millisecond

	start := time.Now()
	code, resp := getReady(t, s)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("readiness took %v; probe timeout not applied", elapsed)
	}
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if resp.Checks[0].OK || !strings.Contains(resp.Checks[0].Error, "deadline") {
		t.Errorf("slow check: %+v", resp.Checks[0])
	}
	if !resp.Checks[1].OK {
		t.Errorf("catalog check should pass: %+v", resp.Checks[1])
	}
}
