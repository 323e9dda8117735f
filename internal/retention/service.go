package retention

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultRetention = 14 * 24 * time.Hour
	DefaultSchedule  = "@every 6h"
)

type Pruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) error
}

type Service struct {
	repo      Pruner
	retention time.Duration
	log       *slog.Logger
	now       func() time.Time
}

func NewService(repo Pruner, retention time.Duration, logger *slog.Logger) *Service {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Service{repo: repo, retention: retention, log: logger, now: time.Now}
}

func (s *Service) Run(ctx context.Context) {
	cutoff := s.now().UTC().Add(-s.retention)
	if err := s.repo.DeleteOlderThan(ctx, cutoff); err != nil {
		s.log.Error("retention cleanup failed", "err", err)
	} else {
		s.log.Info("retention cleanup completed", "cutoff", cutoff)
	}
}

// Schedule registers Run on c. Runs started after ctx is done are skipped.
func (s *Service) Schedule(ctx context.Context, c *cron.Cron, spec string) (cron.EntryID, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	id, err := c.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		s.Run(ctx)
	})
	if err != nil {
		return 0, err
	}
	s.log.Info("retention scheduled", "schedule", spec, "retention", s.retention)
	return id, nil
}
