package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
)

// requestLogger logs one line per request
func (s *Server) requestLogger(next http.Handler) http.Handler {
	logger := log.WithComponent("api")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// instrument records request counters and latency
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		metrics.APIRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.Status())).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

// authenticate checks the configured bearer credential. Health and metrics
// stay open for probes and scrapers.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Credential == "" || r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.cfg.Credential {
			writeJSONError(w, http.StatusUnauthorized, "invalid credential")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tripCheck fails fast once the trip switch has actuated
func (s *Server) tripCheck(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.trips != nil {
			if err := s.trips.Check(); err != nil {
				writeError(w, err)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// pauseCheckpoint is the request's first checkpoint: while the node is
// paused, the request blocks here until resume or client disconnect
func (s *Server) pauseCheckpoint(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.pauser != nil {
			if err := s.pauser.TestPause(r.Context()); err != nil {
				writeJSONError(w, http.StatusServiceUnavailable, "request cancelled while paused")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// adminRateLimit bounds the control endpoints
func (s *Server) adminRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeJSONError(w, http.StatusTooManyRequests, "admin rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
