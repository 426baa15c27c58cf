package api

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"recon-orchestrator/internal/monitor"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyAPIKey
)

// RequestIDFromContext returns the request ID attached by
// RequestIDMiddleware, or "" outside a request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// RequestIDMiddleware honors an incoming X-Request-ID and mints one
// otherwise, echoing it back on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID, id)))
	})
}

type responseCapture struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (rc *responseCapture) WriteHeader(code int) {
	rc.status = code
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(p []byte) (int, error) {
	n, err := rc.ResponseWriter.Write(p)
	rc.bytes += n
	return n, err
}

func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		capture := &responseCapture{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(capture, r)

		log.Info().
			Str("request_id", RequestIDFromContext(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", capture.status).
			Int("bytes", capture.bytes).
			Str("remote_addr", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// AuthMiddleware validates the configured API key header, accepting a
// bearer token as a fallback. With no keys configured the
// allowUnauthenticated switch decides between open and closed.
func AuthMiddleware(header string, allowedKeys []string, allowUnauthenticated bool) func(http.Handler) http.Handler {
	if header == "" {
		header = "X-API-Key"
	}
	keys := make(map[string]struct{}, len(allowedKeys))
	for _, k := range allowedKeys {
		if k != "" {
			keys[k] = struct{}{}
		}
	}
	open := len(keys) == 0 && allowUnauthenticated

	reject := func(w http.ResponseWriter) {
		writeError(w, http.StatusUnauthorized, "AUTH_REQUIRED", "unauthorized")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if open {
				next.ServeHTTP(w, r)
				return
			}
			presented := r.Header.Get(header)
			if presented == "" {
				presented = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if presented == "" {
				reject(w)
				return
			}
			if _, ok := keys[presented]; !ok {
				reject(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyAPIKey, presented)))
		})
	}
}

// bucketLimiter is a per-client token bucket. Clients are keyed by
// RemoteAddr: X-Forwarded-For is attacker-controlled, so it is never
// consulted. Behind a reverse proxy, strip the port here instead.
type bucketLimiter struct {
	rps   float64
	burst float64

	mu      sync.Mutex
	clients map[string]*bucket
}

type bucket struct {
	tokens float64
	seen   time.Time
}

func newBucketLimiter(rps float64, burst int) *bucketLimiter {
	bl := &bucketLimiter{
		rps:     rps,
		burst:   float64(burst),
		clients: make(map[string]*bucket),
	}
	go bl.janitor()
	return bl
}

func (bl *bucketLimiter) janitor() {
	for range time.Tick(time.Minute) {
		bl.mu.Lock()
		for addr, b := range bl.clients {
			if time.Since(b.seen) > 5*time.Minute {
				delete(bl.clients, addr)
			}
		}
		bl.mu.Unlock()
	}
}

func (bl *bucketLimiter) allow(addr string) bool {
	bl.mu.Lock()
	defer bl.mu.Unlock()

	b, ok := bl.clients[addr]
	if !ok {
		b = &bucket{tokens: bl.burst, seen: time.Now()}
		bl.clients[addr] = b
	}

	now := time.Now()
	b.tokens += now.Sub(b.seen).Seconds() * bl.rps
	b.seen = now
	if b.tokens > bl.burst {
		b.tokens = bl.burst
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func RateLimitMiddleware(rps float64, burst int) func(http.Handler) http.Handler {
	limiter := newBucketLimiter(rps, burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.allow(r.RemoteAddr) {
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func MetricsMiddleware(metrics *monitor.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metrics.RequestsInFlight.Inc()
			defer metrics.RequestsInFlight.Dec()
			next.ServeHTTP(w, r)
		})
	}
}

func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Str("path", r.URL.Path).
					Str("request_id", RequestIDFromContext(r.Context())).
					Msg("panic recovered")
				writeError(w, http.StatusInternalServerError, "INTERNAL", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func MaxBodyMiddleware(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
