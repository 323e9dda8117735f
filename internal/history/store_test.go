package history

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botwatch/internal/metrics"
	"botwatch/internal/models"
)

type counterSource struct{ n int64 }

func (c *counterSource) Summary() models.Summary {
	c.n++
	return models.Summary{MessageCount: c.n, ActiveUsers: int(c.n), Resources: models.Resources{CPUPercent: float64(c.n)}}
}

type sinkFunc func(context.Context, models.HistorySample) error

func (f sinkFunc) InsertHistorySample(ctx context.Context, s models.HistorySample) error {
	return f(ctx, s)
}

func newTestStore(sink Sink, retention time.Duration) (*Store, *time.Time) {
	now := time.Date(2026, 2, 21, 0, 0, 0, 0, time.UTC)
	s := NewStore(&counterSource{}, sink, retention, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return now }
	return s, &now
}

func TestRetentionPruning(t *testing.T) {
	s, now := newTestStore(nil, 24*time.Hour)
	start := *now
	for h := 0; h <= 30; h++ {
		*now = start.Add(time.Duration(h) * time.Hour)
		s.Tick(context.Background())
	}

	got := s.Query(48)
	require.Len(t, got, 24)
	cutoff := now.Add(-24 * time.Hour)
	for i, sample := range got {
		assert.True(t, sample.Timestamp.After(cutoff), "sample %d at %s", i, sample.Timestamp)
		if i > 0 {
			assert.True(t, sample.Timestamp.After(got[i-1].Timestamp))
		}
	}
	assert.Equal(t, start.Add(7*time.Hour), got[0].Timestamp)
	assert.EqualValues(t, 8, got[0].Metrics.MessageCount)
	assert.Equal(t, 8, got[0].Metrics.ActiveUsers)
	assert.Equal(t, 8.0, got[0].Resources.CPUPercent)
}

func TestQueryHours(t *testing.T) {
	s, now := newTestStore(nil, 24*time.Hour)
	start := *now
	for m := 0; m < 5; m++ {
		*now = start.Add(time.Duration(m) * 30 * time.Minute)
		s.Tick(context.Background())
	}
	// samples at 0, 30, 60, 90, 120 minutes; now is 120
	assert.Len(t, s.Query(1), 2)
	assert.Len(t, s.Query(0.25), 1)
	assert.Len(t, s.Query(24), 5)
}

func TestExportRange(t *testing.T) {
	s, now := newTestStore(nil, 24*time.Hour)
	start := *now
	for h := 0; h < 6; h++ {
		*now = start.Add(time.Duration(h) * time.Hour)
		s.Tick(context.Background())
	}

	got := s.Export(start.Add(time.Hour), start.Add(3*time.Hour))
	require.Len(t, got, 3)
	assert.Equal(t, start.Add(time.Hour), got[0].Timestamp)
	assert.Equal(t, start.Add(3*time.Hour), got[2].Timestamp)

	assert.Empty(t, s.Export(start.Add(3*time.Hour), start.Add(time.Hour)))
	assert.NotNil(t, s.Export(start.Add(3*time.Hour), start.Add(time.Hour)))
	assert.Empty(t, s.Export(start.Add(48*time.Hour), start.Add(72*time.Hour)))
}

func TestTickPersistsBestEffort(t *testing.T) {
	calls := 0
	s, _ := newTestStore(sinkFunc(func(context.Context, models.HistorySample) error {
		calls++
		return errors.New("database is locked")
	}), time.Hour)

	s.Tick(context.Background())
	s.Tick(context.Background())
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, s.Len())
}

func TestTickAfterCancelWritesNothing(t *testing.T) {
	s, _ := newTestStore(nil, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.Tick(ctx)
	assert.Zero(t, s.Len())
}

func TestClear(t *testing.T) {
	s, _ := newTestStore(nil, time.Hour)
	s.Tick(context.Background())
	s.Clear()
	assert.Zero(t, s.Len())
	assert.Empty(t, s.Query(1))
}

func TestSampleSizeIndependentOfUsers(t *testing.T) {
	reg := metrics.NewRegistry(100)
	var sizes []int
	s := NewStore(reg, sinkFunc(func(_ context.Context, sample models.HistorySample) error {
		b, err := json.Marshal(sample)
		require.NoError(t, err)
		sizes = append(sizes, len(b))
		return nil
	}), time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for _, key := range []string{"/webhook", "/health"} {
		for i := 0; i < 100; i++ {
			require.NoError(t, reg.RecordLatency(key, 12))
		}
	}
	reg.RecordMessage(1, "text")
	s.Tick(context.Background())
	for id := int64(2); id < 10000; id++ {
		reg.RecordMessage(id, "text")
	}
	s.Tick(context.Background())

	require.Len(t, sizes, 2)
	assert.InDelta(t, sizes[0], sizes[1], 64)
	assert.Equal(t, 9999, s.Query(1)[1].Metrics.ActiveUsers)
}
