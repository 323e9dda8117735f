package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"botwatch/internal/models"
)

const (
	DefaultInterval  = time.Minute
	DefaultRetention = 24 * time.Hour
)

type Source interface {
	Summary() models.Summary
}

type Sink interface {
	InsertHistorySample(ctx context.Context, s models.HistorySample) error
}

// Store keeps an in-memory, chronologically ordered series of samples no
// older than the retention period.
type Store struct {
	source    Source
	sink      Sink
	retention time.Duration
	log       *slog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	samples []models.HistorySample
}

func NewStore(source Source, sink Sink, retention time.Duration, logger *slog.Logger) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Store{source: source, sink: sink, retention: retention, log: logger, now: time.Now}
}

// Tick appends one sample and prunes expired ones. Nothing is written once
// ctx is done.
func (s *Store) Tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	sum := s.source.Summary()
	sample := models.HistorySample{
		Timestamp: s.now().UTC(),
		Metrics:   sum,
		Resources: sum.Resources,
	}
	s.append(sample)

	if s.sink == nil {
		return
	}
	if err := s.sink.InsertHistorySample(ctx, sample); err != nil {
		s.log.Warn("persist history sample", "err", err)
	}
}

func (s *Store) append(sample models.HistorySample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	s.pruneLocked(sample.Timestamp)
}

func (s *Store) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.retention)
	i := 0
	for i < len(s.samples) && !s.samples[i].Timestamp.After(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	kept := make([]models.HistorySample, len(s.samples)-i)
	copy(kept, s.samples[i:])
	s.samples = kept
}

func (s *Store) Query(hours float64) []models.HistorySample {
	cutoff := s.now().Add(-time.Duration(hours * float64(time.Hour)))
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.HistorySample, 0, len(s.samples))
	for _, sample := range s.samples {
		if sample.Timestamp.After(cutoff) {
			out = append(out, sample)
		}
	}
	return out
}

// Export returns the samples with start <= timestamp <= end. An inverted
// range yields an empty result.
func (s *Store) Export(start, end time.Time) []models.HistorySample {
	out := []models.HistorySample{}
	if start.After(end) {
		return out
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sample := range s.samples {
		if sample.Timestamp.Before(start) || sample.Timestamp.After(end) {
			continue
		}
		out = append(out, sample)
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.samples = nil
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples)
}
