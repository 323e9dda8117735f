package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"botwatch/internal/metrics"
	"botwatch/internal/models"
	"botwatch/internal/monitor"
	"botwatch/internal/telegram"
)

const maxWebhookBody = 1 << 20

type AlertLister interface {
	RecentAlerts(ctx context.Context, since time.Time, limit int) ([]models.Alert, error)
}

type Options struct {
	WebhookRate   float64
	WebhookBurst  int
	WebhookSecret string
}

type Route struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Description string `json:"description"`
}

type Server struct {
	mon     *monitor.Service
	alerts  AlertLister
	limiter *rate.Limiter
	secret  string
	prom    *prometheus.Registry
	log     *slog.Logger
	now     func() time.Time
	routes  []Route
}

func NewServer(mon *monitor.Service, alerts AlertLister, opts Options, logger *slog.Logger) *Server {
	if opts.WebhookRate <= 0 {
		opts.WebhookRate = 30
	}
	if opts.WebhookBurst <= 0 {
		opts.WebhookBurst = 60
	}
	prom := prometheus.NewRegistry()
	prom.MustRegister(
		metrics.NewCollector(mon.Metrics()),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Server{
		mon:     mon,
		alerts:  alerts,
		limiter: rate.NewLimiter(rate.Limit(opts.WebhookRate), opts.WebhookBurst),
		secret:  opts.WebhookSecret,
		prom:    prom,
		log:     logger,
		now:     time.Now,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	s.routes = s.routes[:0]
	s.handle(mux, "GET", "/health", "overall status with health checks", s.handleHealth)
	s.handle(mux, "GET", "/health/ping", "liveness", s.handlePing)
	s.handle(mux, "GET", "/health/metrics", "counters and system load", s.handleMetrics)
	s.handle(mux, "GET", "/health/routes", "this list", s.handleRoutes)
	s.handle(mux, "GET", "/health/history", "in-memory samples, ?hours=24", s.handleHistory)
	s.handle(mux, "GET", "/health/export", "report for ?start=&end= (RFC3339)", s.handleExport)
	s.handle(mux, "GET", "/health/alerts", "persisted alerts, ?range=24h", s.handleAlerts)
	s.handle(mux, "GET, POST", "/health/thresholds", "read or partially update alert thresholds", s.handleThresholds)
	s.handle(mux, "POST", "/health/reset", "reset counters and history", s.handleReset)
	s.handle(mux, "POST", "/webhook", "telegram updates", s.handleWebhook)
	metricsHandler := promhttp.HandlerFor(s.prom, promhttp.HandlerOpts{ErrorLog: slog.NewLogLogger(s.log.Handler(), slog.LevelError)})
	mux.Handle("/metrics", metricsHandler)
	s.routes = append(s.routes, Route{Method: "GET", Path: "/metrics", Description: "prometheus exposition"})

	return logMiddleware(latencyMiddleware(mux, s.mon, s.log), s.log)
}

func (s *Server) handle(mux *http.ServeMux, methods, path, desc string, h http.HandlerFunc) {
	allowed := strings.Split(methods, ", ")
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		for _, m := range allowed {
			if r.Method == m {
				h(w, r)
				return
			}
		}
		w.Header().Set("Allow", methods)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})
	s.routes = append(s.routes, Route{Method: methods, Path: path, Description: desc})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.mon.Status(r.Context())
	code := http.StatusOK
	if st.Status.Rank() >= models.StatusUnhealthy.Rank() {
		code = http.StatusServiceUnavailable
	}
	writeJSONStatus(w, code, st)
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"status": "ok", "timestamp": s.now().UTC()})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	reg := s.mon.Metrics()
	sum := reg.Summary()
	writeJSON(w, map[string]any{
		"start_time":    sum.StartTime,
		"message_count": sum.MessageCount,
		"error_count":   sum.ErrorCount,
		"active_users":  sum.ActiveUsers,
		"error_rate":    reg.ErrorRate(),
		"success_rate":  reg.SuccessRate(),
		"performance": map[string]any{
			"average_response_time": sum.Performance.AverageResponseTime,
			"sample_count":          sum.Performance.SampleCount,
			"latency":               sum.Performance.Latency,
		},
		"system": s.mon.SystemLoad(),
	})
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.routes)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	hours := 24.0
	if v := r.URL.Query().Get("hours"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			hours = parsed
		}
	}
	writeJSON(w, s.mon.History(hours))
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	end := s.now().UTC()
	start := end.Add(-24 * time.Hour)
	var err error
	if v := r.URL.Query().Get("start"); v != "" {
		if start, err = time.Parse(time.RFC3339, v); err != nil {
			http.Error(w, "invalid start: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if end, err = time.Parse(time.RFC3339, v); err != nil {
			http.Error(w, "invalid end: "+err.Error(), http.StatusBadRequest)
			return
		}
	}
	writeJSON(w, s.mon.ExportReport(r.Context(), start, end))
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	rng := parseRange(r.URL.Query().Get("range"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	alerts, err := s.alerts.RecentAlerts(r.Context(), s.now().Add(-rng), limit)
	if err != nil {
		s.log.Error("list alerts", "err", err)
		http.Error(w, "alerts unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, alerts)
}

func (s *Server) handleThresholds(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		writeJSON(w, s.mon.Thresholds())
		return
	}
	var u models.ThresholdsUpdate
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&u); err != nil {
		http.Error(w, "invalid thresholds: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateThresholds(u); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, s.mon.UpdateThresholds(u))
}

func validateThresholds(u models.ThresholdsUpdate) error {
	check := func(name string, v *float64, max float64) error {
		if v == nil {
			return nil
		}
		if *v < 0 || (max > 0 && *v > max) {
			return fmt.Errorf("%s out of range: %v", name, *v)
		}
		return nil
	}
	return errors.Join(
		check("error_rate", u.ErrorRate, 1),
		check("response_time_ms", u.ResponseTimeMs, 0),
		check("cpu_percent", u.CPUPercent, 100),
		check("disk_percent", u.DiskPercent, 100),
	)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.mon.Reset(r.Context())
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if s.secret != "" && r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != s.secret {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !s.limiter.Allow() {
		s.mon.RecordRateLimited()
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	var upd telegram.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxWebhookBody)).Decode(&upd); err != nil {
		s.mon.RecordError(r.Context(), fmt.Errorf("decode webhook update: %w", err))
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}
	if upd.Message == nil || upd.Message.From == nil {
		writeJSON(w, map[string]string{"status": "ignored"})
		return
	}
	s.mon.RecordMessage(upd.Message.From.ID, upd.Message.Type())
	writeJSON(w, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func parseRange(v string) time.Duration {
	if v == "" {
		return 24 * time.Hour
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}
