package server

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
			Str("remote_addr", r.RemoteAddr).
			Str("user_agent", r.UserAgent()).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseWriterWrapper) Write(data []byte) (int, error) {
	return w.ResponseWriter.Write(data)
}

// RateLimiter enforces sliding-window request budgets per client IP.
// Session starts (the /ws/session upgrade) are budgeted separately
// from plain API requests. A zero limit disables that window.
type RateLimiter struct {
	perMinute     int
	perHour       int
	startsPerHour int

	mu      sync.Mutex
	minute  map[string][]time.Time
	hour    map[string][]time.Time
	starts  map[string][]time.Time
	nowFunc func() time.Time
}

// NewRateLimiter creates a rate limiter with the given per-IP budgets.
func NewRateLimiter(perMinute, perHour, startsPerHour int) *RateLimiter {
	return &RateLimiter{
		perMinute:     perMinute,
		perHour:       perHour,
		startsPerHour: startsPerHour,
		minute:        make(map[string][]time.Time),
		hour:          make(map[string][]time.Time),
		starts:        make(map[string][]time.Time),
		nowFunc:       time.Now,
	}
}

// Allow records a request from ip and reports whether it fits the
// budgets. A denied request is not recorded. The reason is empty when
// the request is allowed.
func (rl *RateLimiter) Allow(ip string, sessionStart bool) (bool, string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.nowFunc()
	rl.minute[ip] = prune(rl.minute[ip], now.Add(-time.Minute))
	rl.hour[ip] = prune(rl.hour[ip], now.Add(-time.Hour))
	rl.starts[ip] = prune(rl.starts[ip], now.Add(-time.Hour))

	if rl.perMinute > 0 && len(rl.minute[ip]) >= rl.perMinute {
		return false, fmt.Sprintf("Rate limit exceeded: %d requests per minute", rl.perMinute)
	}
	if rl.perHour > 0 && len(rl.hour[ip]) >= rl.perHour {
		return false, fmt.Sprintf("Rate limit exceeded: %d requests per hour", rl.perHour)
	}
	if sessionStart && rl.startsPerHour > 0 && len(rl.starts[ip]) >= rl.startsPerHour {
		return false, fmt.Sprintf("Session limit exceeded: %d sessions per hour", rl.startsPerHour)
	}

	rl.minute[ip] = append(rl.minute[ip], now)
	rl.hour[ip] = append(rl.hour[ip], now)
	if sessionStart {
		rl.starts[ip] = append(rl.starts[ip], now)
	}

	return true, ""
}

// Remaining reports how many requests ip has left in the current
// minute and hour windows.
func (rl *RateLimiter) Remaining(ip string) (int, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.nowFunc()
	rl.minute[ip] = prune(rl.minute[ip], now.Add(-time.Minute))
	rl.hour[ip] = prune(rl.hour[ip], now.Add(-time.Hour))

	minuteLeft := rl.perMinute - len(rl.minute[ip])
	if minuteLeft < 0 {
		minuteLeft = 0
	}
	hourLeft := rl.perHour - len(rl.hour[ip])
	if hourLeft < 0 {
		hourLeft = 0
	}
	return minuteLeft, hourLeft
}

// prune drops timestamps at or before the cutoff. Slices stay sorted
// because appends only ever add the current time.
func prune(stamps []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(stamps) && !stamps[i].After(cutoff) {
		i++
	}
	return stamps[i:]
}

// rateLimitMiddleware rejects requests over budget with 429 and stamps
// the remaining counts on allowed responses.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		sessionStart := r.URL.Path == "/ws/session"

		allowed, reason := s.limiter.Allow(ip, sessionStart)
		if !allowed {
			log.Warn().
				Str("client_ip", ip).
				Str("path", r.URL.Path).
				Str("reason", reason).
				Msg("Request rate limited")

			w.Header().Set("Retry-After", "60")
			http.Error(w, reason, http.StatusTooManyRequests)
			return
		}

		minuteLeft, hourLeft := s.limiter.Remaining(ip)
		w.Header().Set("X-RateLimit-Remaining-Minute", strconv.Itoa(minuteLeft))
		w.Header().Set("X-RateLimit-Remaining-Hour", strconv.Itoa(hourLeft))

		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address, honoring X-Forwarded-For from
// a fronting proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.Index(fwd, ","); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
