package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/54b3r/cinerag-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained per-client rate (requests/second) on
	// /api/query, /api/generate and /api/runs.
	defaultRateLimit = 10
	// defaultRateBurst is the per-client burst. A single chat turn can fire
	// a handful of requests in quick succession.
	defaultRateBurst = 20
	// maxTrackedClients bounds the limiter cache. The least recently seen
	// client is dropped first.
	maxTrackedClients = 4096
	// clientIdleTTL is how long a client's bucket survives without traffic.
	clientIdleTTL = 5 * time.Minute
)

// rateLimiter enforces a token bucket per client IP. Buckets live in an
// expiring LRU, so idle clients are forgotten and memory stays bounded.
type rateLimiter struct {
	mu      sync.Mutex
	clients *expirable.LRU[string, *rate.Limiter]
	rps     rate.Limit
	burst   int
	log     *slog.Logger
}

// newRateLimiter returns a limiter allowing rps requests per second with the
// given burst per client. The returned func drops every tracked bucket.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		clients: expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, clientIdleTTL),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
	}
	return rl, rl.clients.Purge
}

// limiterFor returns the bucket for ip and pushes its expiry forward.
func (rl *rateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	lim, ok := rl.clients.Get(ip)
	if !ok {
		lim = rate.NewLimiter(rl.rps, rl.burst)
	}
	rl.clients.Add(ip, lim)
	return lim
}

// retryAfter is the whole number of seconds until one token is available.
func (rl *rateLimiter) retryAfter() string {
	if rl.rps <= 0 {
		return "60"
	}
	secs := math.Ceil(1 / float64(rl.rps))
	return strconv.Itoa(int(min(max(secs, 1), 3600)))
}

// middleware rejects requests over the client's budget with 429 and a JSON
// error body.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if rl.limiterFor(ip).Allow() {
			next.ServeHTTP(w, r)
			return
		}

		log := logging.FromContext(r.Context())
		log.Warn("rate limit exceeded",
			slog.String("client_ip", ip),
			slog.String("path", r.URL.Path),
		)
		w.Header().Set("Retry-After", rl.retryAfter())
		writeError(w, log, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

// clientIP returns the host part of RemoteAddr. Forwarding headers are
// ignored since the server binds to loopback by default.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
