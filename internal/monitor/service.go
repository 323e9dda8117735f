package monitor

import (
	"context"
	"log/slog"
	"time"

	"botwatch/internal/alerts"
	"botwatch/internal/health"
	"botwatch/internal/history"
	"botwatch/internal/metrics"
	"botwatch/internal/models"
)

type Archive interface {
	InsertEvent(ctx context.Context, e models.MonitoringEvent) error
	EventsBetween(ctx context.Context, from, to time.Time) ([]models.MonitoringEvent, error)
	HistorySamplesBetween(ctx context.Context, from, to time.Time, limit int) ([]models.HistorySample, error)
}

// Service is the single entry point request handlers and the web layer use.
// Recording calls update the registry and run the matching alert evaluation
// in the same call.
type Service struct {
	metrics *metrics.Registry
	health  *health.Registry
	alerts  *alerts.Evaluator
	history *history.Store
	archive Archive
	log     *slog.Logger
	now     func() time.Time
}

func NewService(reg *metrics.Registry, checks *health.Registry, eval *alerts.Evaluator, hist *history.Store, archive Archive, logger *slog.Logger) *Service {
	return &Service{
		metrics: reg,
		health:  checks,
		alerts:  eval,
		history: hist,
		archive: archive,
		log:     logger,
		now:     time.Now,
	}
}

func (s *Service) Metrics() *metrics.Registry { return s.metrics }

func (s *Service) RecordMessage(userID int64, messageType string) {
	s.metrics.RecordMessage(userID, messageType)
}

func (s *Service) RecordError(ctx context.Context, err error) {
	s.metrics.RecordError(err)
	s.alerts.EvaluateErrorRate(ctx)
}

// RecordLatency stores the sample and checks the combined average. Invalid
// durations are returned as *metrics.ValidationError and change nothing.
func (s *Service) RecordLatency(ctx context.Context, key string, durationMs float64) error {
	if err := s.metrics.RecordLatency(key, durationMs); err != nil {
		return err
	}
	s.alerts.EvaluateLatency(ctx, s.metrics.AverageLatency(""))
	return nil
}

func (s *Service) RecordRateLimited() {
	s.metrics.RecordRateLimited()
}

// Reset clears the registry and the in-memory history and records a reset
// event. The event write is best effort.
func (s *Service) Reset(ctx context.Context) {
	s.metrics.Reset()
	s.history.Clear()
	s.log.Info("monitoring data reset")

	if s.archive == nil {
		return
	}
	ev := models.MonitoringEvent{Type: "reset", Reason: "manual_reset", Timestamp: s.now().UTC()}
	if err := s.archive.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("persist reset event", "err", err)
	}
}

func (s *Service) Thresholds() models.AlertThresholds {
	return s.alerts.Thresholds()
}

func (s *Service) UpdateThresholds(u models.ThresholdsUpdate) models.AlertThresholds {
	return s.alerts.UpdateThresholds(u)
}

func (s *Service) RegisterHealthCheck(name string, probe health.Probe) {
	s.health.Register(name, probe)
}

func (s *Service) HealthCheckNames() []string {
	return s.health.Names()
}

func (s *Service) History(hours float64) []models.HistorySample {
	return s.history.Query(hours)
}
