package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/54b3r/cinerag-go/internal/logging"
)

// defaultProbeTimeout bounds each dependency probe when Config.ProbeTimeout
// is zero.
const defaultProbeTimeout = 5 * time.Second

// Pinger reports whether one pipeline dependency is reachable. Ping returns
// nil when healthy. Implementations must be safe for concurrent use.
type Pinger interface {
	Ping(ctx context.Context) error

	// Name labels the dependency in readiness output, e.g. "qdrant".
	Name() string
}

// readyCheck is the outcome of one probe.
type readyCheck struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// readyResponse is the JSON body returned by GET /api/ready. Checks keep the
// order of Config.Pingers.
type readyResponse struct {
	Ready  bool         `json:"ready"`
	Checks []readyCheck `json:"checks"`
}

// handleReady handles GET /api/ready. Every probe runs concurrently under its
// own timeout; the endpoint answers 200 only when all of them pass, else 503.
// A failed probe does not stop /api/query from answering; the pipeline
// degrades and reports a diagnostic instead.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	timeout := s.cfg.ProbeTimeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	checks := make([]readyCheck, len(s.pingers))
	var g errgroup.Group
	for i, p := range s.pingers {
		g.Go(func() error {
			checks[i] = probe(r.Context(), p, timeout)
			return nil
		})
	}
	_ = g.Wait()

	resp := readyResponse{Ready: true, Checks: checks}
	for _, c := range checks {
		if c.OK {
			continue
		}
		resp.Ready = false
		log.Warn("readiness probe failed",
			slog.String("dependency", c.Name),
			slog.Int64("latency_ms", c.LatencyMS),
			slog.String("error", c.Error),
		)
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, log, status, resp)
}

func probe(ctx context.Context, p Pinger, timeout time.Duration) readyCheck {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(ctx)
	c := readyCheck{Name: p.Name(), OK: err == nil, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		c.Error = err.Error()
	}
	return c
}
