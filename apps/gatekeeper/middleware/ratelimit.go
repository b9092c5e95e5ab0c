package middleware

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pitabwire/util"
	"golang.org/x/time/rate"
)

const (
	defaultCleanupInterval = 5 * time.Minute
	defaultStaleAfter      = 10 * time.Minute
	secondsPerMinute       = 60.0
	apiKeyHeader           = "X-Api-Key" //nolint:gosec // This is a header name, not a credential
	xForwardedForHdr       = "X-Forwarded-For"
)

// RateLimiter applies a token bucket per client. Clients are identified by
// API key, then by the first X-Forwarded-For address, then by remote address.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientBucket

	limit      rate.Limit
	burst      int
	staleAfter time.Duration
	exempt     map[string]struct{}

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Option configures a RateLimiter.
type Option func(*RateLimiter)

// WithExemptPaths lets requests for the given paths bypass the limiter.
func WithExemptPaths(paths ...string) Option {
	return func(rl *RateLimiter) {
		for _, p := range paths {
			rl.exempt[p] = struct{}{}
		}
	}
}

// WithStaleAfter sets how long an idle client keeps its bucket.
func WithStaleAfter(d time.Duration) Option {
	return func(rl *RateLimiter) {
		rl.staleAfter = d
	}
}

// NewRateLimiter creates a limiter allowing requestsPerMinute with the given
// burst per client. Stop must be called to release the cleanup goroutine.
func NewRateLimiter(requestsPerMinute, burst int, opts ...Option) *RateLimiter {
	rl := &RateLimiter{
		clients:    make(map[string]*clientBucket),
		limit:      rate.Limit(float64(requestsPerMinute) / secondsPerMinute),
		burst:      burst,
		staleAfter: defaultStaleAfter,
		exempt:     make(map[string]struct{}),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(rl)
	}

	go rl.cleanupLoop(defaultCleanupInterval)
	return rl
}

// Stop ends the cleanup goroutine and waits for it. It is safe to call twice.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stop)
	})
	<-rl.done
}

// Allow consumes a token for clientID.
func (rl *RateLimiter) Allow(clientID string) bool {
	return rl.bucket(clientID).Allow()
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Middleware rejects requests over the limit with 429 and a Retry-After header.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := rl.exempt[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		clientID := ClientID(r)
		limiter := rl.bucket(clientID)
		if limiter.Allow() {
			next.ServeHTTP(w, r)
			return
		}

		retryAfter := retryAfterSeconds(limiter)
		util.Log(r.Context()).Warn("rate limit exceeded",
			"client_id", clientID,
			"path", r.URL.Path,
			"retry_after", retryAfter,
		)

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":       "rate_limit_exceeded",
			"message":     "Too many requests. Please retry after " + strconv.Itoa(retryAfter) + " seconds.",
			"retry_after": retryAfter,
		})
	})
}

// ClientID derives the rate limiting key of a request.
func ClientID(r *http.Request) string {
	if apiKey := r.Header.Get(apiKeyHeader); apiKey != "" {
		return "apikey:" + apiKey
	}

	if xff := r.Header.Get(xForwardedForHdr); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		first = strings.TrimSpace(first)
		if host, _, err := net.SplitHostPort(first); err == nil {
			return "ip:" + host
		}
		return "ip:" + first
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return "ip:" + host
	}
	return "ip:" + r.RemoteAddr
}

func (rl *RateLimiter) bucket(clientID string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if b, ok := rl.clients[clientID]; ok {
		b.lastSeen = now
		return b.limiter
	}

	b := &clientBucket{limiter: rate.NewLimiter(rl.limit, rl.burst), lastSeen: now}
	rl.clients[clientID] = b
	return b.limiter
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	defer close(rl.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.evictIdle(time.Now())
		case <-rl.stop:
			return
		}
	}
}

// evictIdle drops clients not seen since staleAfter before now.
func (rl *RateLimiter) evictIdle(now time.Time) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.staleAfter)
	removed := 0
	for id, b := range rl.clients {
		if b.lastSeen.Before(cutoff) {
			delete(rl.clients, id)
			removed++
		}
	}
	return removed
}

// retryAfterSeconds is the whole number of seconds until a token is free.
func retryAfterSeconds(limiter *rate.Limiter) int {
	r := limiter.Reserve()
	delay := r.Delay()
	r.Cancel()

	if delay <= 0 {
		return 1
	}
	return int(math.Ceil(delay.Seconds()))
}
