package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

func logMiddleware(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(ww, r)
		logger.Info("http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

type latencyRecorder interface {
	RecordLatency(ctx context.Context, key string, durationMs float64) error
}

// latencyMiddleware times every request into the latency window of the
// matched route pattern. Requests matching no route share one key so that
// scanners cannot create unbounded series.
func latencyMiddleware(mux *http.ServeMux, rec latencyRecorder, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		mux.ServeHTTP(w, r)
		_, pattern := mux.Handler(r)
		if pattern == "" {
			pattern = "unmatched"
		}
		ms := float64(time.Since(start).Microseconds()) / 1000
		if err := rec.RecordLatency(r.Context(), pattern, ms); err != nil {
			logger.Warn("record latency", "key", pattern, "err", err)
		}
	})
}
