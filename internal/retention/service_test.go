package retention

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botwatch/internal/db"
	"botwatch/internal/models"
)

type pruneFunc func(ctx context.Context, cutoff time.Time) error

func (f pruneFunc) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	return f(ctx, cutoff)
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestRunUsesRetentionCutoff(t *testing.T) {
	var got time.Time
	s := NewService(pruneFunc(func(_ context.Context, cutoff time.Time) error {
		got = cutoff
		return nil
	}), 48*time.Hour, discard())
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Run(context.Background())
	assert.Equal(t, now.Add(-48*time.Hour), got)
}

func TestRunToleratesFailure(t *testing.T) {
	s := NewService(pruneFunc(func(context.Context, time.Time) error {
		return errors.New("database is locked")
	}), 0, discard())
	assert.Equal(t, DefaultRetention, s.retention)
	assert.NotPanics(t, func() { s.Run(context.Background()) })
}

func TestRunPrunesSQLite(t *testing.T) {
	sqldb, err := db.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })
	require.NoError(t, db.Migrate(sqldb))
	repo := db.NewRepository(sqldb)
	ctx := context.Background()
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.InsertAlert(ctx, models.Alert{ID: "old", Type: models.AlertDisk, Status: "active", Timestamp: now.Add(-72 * time.Hour)}))
	require.NoError(t, repo.InsertAlert(ctx, models.Alert{ID: "new", Type: models.AlertDisk, Status: "active", Timestamp: now.Add(-time.Hour)}))

	s := NewService(repo, 24*time.Hour, discard())
	s.now = func() time.Time { return now }
	s.Run(ctx)

	alerts, err := repo.RecentAlerts(ctx, now.Add(-30*24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "new", alerts[0].ID)
}

func TestSchedule(t *testing.T) {
	s := NewService(pruneFunc(func(context.Context, time.Time) error { return nil }), time.Hour, discard())
	c := cron.New()

	id, err := s.Schedule(context.Background(), c, "")
	require.NoError(t, err)
	assert.NotZero(t, id)
	require.Len(t, c.Entries(), 1)

	_, err = s.Schedule(context.Background(), c, "not a schedule")
	require.Error(t, err)
}
