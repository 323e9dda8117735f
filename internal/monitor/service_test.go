package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botwatch/internal/alerts"
	"botwatch/internal/db"
	"botwatch/internal/health"
	"botwatch/internal/history"
	"botwatch/internal/metrics"
	"botwatch/internal/models"
)

type fixture struct {
	svc  *Service
	reg  *metrics.Registry
	eval *alerts.Evaluator
	hist *history.Store
	repo *db.Repository
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	sqldb, err := db.Open(t.TempDir() + "/monitor.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqldb.Close() })
	require.NoError(t, db.Migrate(sqldb))
	repo := db.NewRepository(sqldb)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := metrics.NewRegistry(10)
	eval := alerts.NewEvaluator(repo, reg, alerts.DefaultThresholds(), log)
	t.Cleanup(eval.Wait)
	hist := history.NewStore(reg, repo, time.Hour, log)
	checks := health.NewRegistry(time.Second, log)
	return fixture{
		svc:  NewService(reg, checks, eval, hist, repo, log),
		reg:  reg,
		eval: eval,
		hist: hist,
		repo: repo,
	}
}

func (f fixture) alerts(t *testing.T) []models.Alert {
	t.Helper()
	f.eval.Wait()
	got, err := f.repo.RecentAlerts(context.Background(), time.Now().Add(-time.Hour), 100)
	require.NoError(t, err)
	return got
}

func TestExampleScenarioRaisesErrorRateAlert(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		f.svc.RecordMessage(1, "text")
	}
	f.svc.RecordError(ctx, errors.New("telegram api timeout"))
	f.svc.RecordError(ctx, errors.New("telegram api timeout"))

	req := f.reg.Requests()
	assert.EqualValues(t, 12, req.Total)
	assert.EqualValues(t, 2, req.Failed)
	assert.InDelta(t, 0.1667, f.reg.ErrorRate(), 1e-4)

	// the first error leaves the rate at 1/11, below the threshold
	got := f.alerts(t)
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertErrorRate, got[0].Type)
	assert.InDelta(t, 0.1667, got[0].Data.Current, 1e-4)
	assert.Equal(t, 0.1, got[0].Data.Threshold)
	assert.Equal(t, "active", got[0].Status)
}

func TestRecordLatency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var verr *metrics.ValidationError
	require.ErrorAs(t, f.svc.RecordLatency(ctx, "/health", -1), &verr)
	assert.Zero(t, f.reg.Snapshot().Performance.SampleCount)

	require.NoError(t, f.svc.RecordLatency(ctx, "/health", 20))
	assert.Empty(t, f.alerts(t))

	require.NoError(t, f.svc.RecordLatency(ctx, "/webhook", 12000))
	got := f.alerts(t)
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertResponseTime, got[0].Type)
	assert.InDelta(t, 6010, got[0].Data.Current, 1e-9)
}

func TestStatusHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.svc.Status(ctx)
	second := f.svc.Status(ctx)

	assert.Nil(t, first.LastPing)
	assert.Nil(t, second.LastPing)
	assert.Zero(t, second.Metrics.MessageCount)
	assert.Zero(t, second.Metrics.Requests.Total)
	assert.Equal(t, 100.0, second.Metrics.Requests.SuccessRate)
	assert.Equal(t, models.StatusHealthy, second.Status)
	assert.Empty(t, second.HealthChecks)
}

func TestStatusComposition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.reg.Summary().StartTime
	f.svc.now = func() time.Time { return start.Add(90 * time.Minute) }

	f.svc.RegisterHealthCheck("database", health.PingProbe(f.repo.Ping))
	f.svc.RegisterHealthCheck("memory", func(context.Context) (models.HealthResult, error) {
		return models.HealthResult{Status: models.StatusWarning}, nil
	})
	f.svc.RecordMessage(7, "text")
	f.svc.RecordMessage(8, "photo")
	f.svc.RecordMessage(7, "text")
	f.svc.RecordError(ctx, errors.New("boom"))
	f.reg.SetMemory(300*1024*1024, 4096*1024*1024)
	for _, ms := range []float64{10, 20, 30, 40} {
		require.NoError(t, f.svc.RecordLatency(ctx, "/webhook", ms))
	}

	st := f.svc.Status(ctx)
	assert.Equal(t, models.StatusWarning, st.Status)
	assert.EqualValues(t, 1, st.UptimeHours)
	assert.EqualValues(t, 3, st.Metrics.MessageCount)
	assert.EqualValues(t, 1, st.Metrics.ErrorCount)
	assert.Equal(t, 2, st.Metrics.ActiveUsers)
	assert.EqualValues(t, 300, st.Metrics.MemoryUsedMB)
	assert.EqualValues(t, 4096, st.Metrics.MemoryTotalMB)
	assert.EqualValues(t, 4, st.Metrics.Requests.Total)
	assert.InDelta(t, 75, st.Metrics.Requests.SuccessRate, 1e-9)
	assert.InDelta(t, 25, st.Performance.AverageResponseTime, 1e-9)
	assert.Equal(t, 40.0, st.Performance.P95ResponseTime)
	assert.Equal(t, 4, st.Performance.SampleCount)
	require.NotNil(t, st.LastError)
	assert.Equal(t, "boom", st.LastError.Message)
	assert.NotEmpty(t, st.LastError.Stack)
	require.NotNil(t, st.LastPing)
	assert.Len(t, st.HealthChecks, 2)
	assert.Equal(t, models.StatusHealthy, st.HealthChecks["database"].Status)
	assert.Equal(t, []string{"database", "memory"}, f.svc.HealthCheckNames())
}

func TestResetClearsStateAndRecordsEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.RecordMessage(1, "text")
	f.hist.Tick(ctx)
	require.Equal(t, 1, f.hist.Len())

	before := time.Now().Add(-time.Minute)
	f.svc.Reset(ctx)

	assert.Zero(t, f.reg.Snapshot().MessageCount)
	assert.Zero(t, f.hist.Len())
	events, err := f.repo.EventsBetween(ctx, before, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "reset", events[0].Type)
	assert.Equal(t, "manual_reset", events[0].Reason)
}

func TestExportReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.svc.RecordMessage(1, "text")
	f.svc.RecordMessage(2, "text")
	f.svc.RecordMessage(3, "text")
	f.svc.RecordError(ctx, errors.New("send failed"))
	f.reg.SetMemory(50, 200)
	f.reg.SetNetwork(10, 20)
	f.hist.Tick(ctx)
	f.svc.Reset(ctx)
	f.svc.RecordMessage(4, "text")
	f.hist.Tick(ctx)

	start, end := time.Now().Add(-time.Hour), time.Now().Add(time.Hour)
	r := f.svc.ExportReport(ctx, start, end)
	assert.Equal(t, start, r.Period.Start)
	assert.EqualValues(t, 1, r.Metrics.MessageCount)
	assert.Equal(t, 1, r.Metrics.ActiveUsers)
	assert.Equal(t, 0.0, r.Performance.ErrorRate)
	assert.Equal(t, 100.0, r.Performance.SuccessRate)
	// reset clears the in-memory series, not the archive
	require.Len(t, r.History, 2)
	assert.EqualValues(t, 3, r.History[0].Metrics.MessageCount)
	assert.EqualValues(t, 1, r.History[1].Metrics.MessageCount)
	require.Len(t, r.Events, 1)
	assert.Equal(t, "reset", r.Events[0].Type)

	empty := f.svc.ExportReport(ctx, end, start)
	assert.Empty(t, empty.History)
	assert.NotNil(t, empty.Events)
	assert.Empty(t, empty.Events)
}

func TestSystemLoad(t *testing.T) {
	f := newFixture(t)
	f.reg.SetMemory(1, 3)
	f.reg.SetCPU(12.5)
	f.reg.SetDisk(40)
	f.reg.SetNetwork(100, 200)

	load := f.svc.SystemLoad()
	assert.Equal(t, 33.33, load.Memory.Percentage)
	assert.Equal(t, 12.5, load.CPUUsage)
	assert.Equal(t, 40.0, load.DiskUsage)
	assert.EqualValues(t, 100, load.Network.BytesIn)
	assert.EqualValues(t, 200, load.Network.BytesOut)
	assert.Equal(t, 100.0, load.Requests.SuccessRate)

	f.reg.SetMemory(0, 0)
	assert.Zero(t, f.svc.SystemLoad().Memory.Percentage)
}

func TestThresholdsPassThrough(t *testing.T) {
	f := newFixture(t)
	rate := 0.5
	got := f.svc.UpdateThresholds(models.ThresholdsUpdate{ErrorRate: &rate})
	assert.Equal(t, 0.5, got.ErrorRate)
	assert.Equal(t, got, f.svc.Thresholds())

	f.svc.RecordMessage(1, "text")
	f.svc.RecordError(context.Background(), errors.New("x"))
	assert.Empty(t, f.alerts(t))
}

func TestExportReportReadsArchiveBeyondMemory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	old := time.Now().Add(-72 * time.Hour).UTC()
	require.NoError(t, f.repo.InsertHistorySample(ctx, models.HistorySample{
		Timestamp: old,
		Metrics:   models.Summary{MessageCount: 42, ActiveUsers: 5},
	}))
	f.hist.Tick(ctx)

	r := f.svc.ExportReport(ctx, old.Add(-time.Minute), old.Add(time.Minute))
	require.Len(t, r.History, 1)
	assert.EqualValues(t, 42, r.History[0].Metrics.MessageCount)
	assert.Equal(t, 5, r.History[0].Metrics.ActiveUsers)
}

type brokenArchive struct{}

func (brokenArchive) InsertEvent(context.Context, models.MonitoringEvent) error {
	return errors.New("database is locked")
}

func (brokenArchive) EventsBetween(context.Context, time.Time, time.Time) ([]models.MonitoringEvent, error) {
	return nil, errors.New("database is locked")
}

func (brokenArchive) HistorySamplesBetween(context.Context, time.Time, time.Time, int) ([]models.HistorySample, error) {
	return nil, errors.New("database is locked")
}

func TestExportReportFallsBackToMemory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewService(f.reg, health.NewRegistry(time.Second, f.svc.log), f.eval, f.hist, brokenArchive{}, f.svc.log)

	svc.RecordMessage(1, "text")
	f.hist.Tick(ctx)
	svc.Reset(ctx)
	svc.RecordMessage(2, "text")
	f.hist.Tick(ctx)

	r := svc.ExportReport(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.Len(t, r.History, 1)
	assert.EqualValues(t, 1, r.History[0].Metrics.MessageCount)
	assert.NotNil(t, r.Events)
	assert.Empty(t, r.Events)
}
