package alerts

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"botwatch/internal/models"
)

const (
	defaultMaxInFlight    = 16
	defaultPersistTimeout = 10 * time.Second
)

type Store interface {
	InsertAlert(ctx context.Context, a models.Alert) error
}

type RequestStats interface {
	Requests() models.Requests
}

func DefaultThresholds() models.AlertThresholds {
	return models.AlertThresholds{
		ErrorRate:      0.1,
		ResponseTimeMs: 5000,
		MemoryBytes:    512 * 1024 * 1024,
		CPUPercent:     80,
		DiskPercent:    90,
	}
}

// Evaluator compares measurements with thresholds and emits alerts. Every
// breach produces a new alert; nothing is deduplicated or resolved here.
// Persistence runs in the background and its failures are only logged.
type Evaluator struct {
	store Store
	stats RequestStats
	log   *slog.Logger
	now   func() time.Time

	mu         sync.RWMutex
	thresholds models.AlertThresholds

	inflight       chan struct{}
	wg             sync.WaitGroup
	persistTimeout time.Duration
}

func NewEvaluator(store Store, stats RequestStats, thresholds models.AlertThresholds, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		store:          store,
		stats:          stats,
		log:            logger,
		now:            time.Now,
		thresholds:     thresholds,
		inflight:       make(chan struct{}, defaultMaxInFlight),
		persistTimeout: defaultPersistTimeout,
	}
}

func (e *Evaluator) Thresholds() models.AlertThresholds {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.thresholds
}

func (e *Evaluator) UpdateThresholds(u models.ThresholdsUpdate) models.AlertThresholds {
	e.mu.Lock()
	if u.ErrorRate != nil {
		e.thresholds.ErrorRate = *u.ErrorRate
	}
	if u.ResponseTimeMs != nil {
		e.thresholds.ResponseTimeMs = *u.ResponseTimeMs
	}
	if u.MemoryBytes != nil {
		e.thresholds.MemoryBytes = *u.MemoryBytes
	}
	if u.CPUPercent != nil {
		e.thresholds.CPUPercent = *u.CPUPercent
	}
	if u.DiskPercent != nil {
		e.thresholds.DiskPercent = *u.DiskPercent
	}
	th := e.thresholds
	e.mu.Unlock()

	e.log.Info("alert thresholds updated",
		"error_rate", th.ErrorRate,
		"response_time_ms", th.ResponseTimeMs,
		"memory_bytes", th.MemoryBytes,
		"cpu_percent", th.CPUPercent,
		"disk_percent", th.DiskPercent,
	)
	return th
}

// EvaluateErrorRate returns the current error rate, 0 when no request was
// recorded, and emits an error_rate alert when it exceeds the threshold.
func (e *Evaluator) EvaluateErrorRate(ctx context.Context) float64 {
	req := e.stats.Requests()
	rate := 0.0
	if req.Total > 0 {
		rate = float64(req.Failed) / float64(req.Total)
	}
	e.check(ctx, models.AlertErrorRate, rate, e.Thresholds().ErrorRate)
	return rate
}

func (e *Evaluator) EvaluateLatency(ctx context.Context, avgMs float64) {
	e.check(ctx, models.AlertResponseTime, avgMs, e.Thresholds().ResponseTimeMs)
}

func (e *Evaluator) EvaluateMemory(ctx context.Context, usedBytes uint64) {
	e.check(ctx, models.AlertMemory, float64(usedBytes), float64(e.Thresholds().MemoryBytes))
}

func (e *Evaluator) EvaluateCPU(ctx context.Context, pct float64) {
	e.check(ctx, models.AlertCPU, pct, e.Thresholds().CPUPercent)
}

func (e *Evaluator) EvaluateDisk(ctx context.Context, pct float64) {
	e.check(ctx, models.AlertDisk, pct, e.Thresholds().DiskPercent)
}

func (e *Evaluator) check(ctx context.Context, typ models.AlertType, value, threshold float64) {
	if value > threshold {
		e.Emit(ctx, typ, models.AlertData{Current: value, Threshold: threshold})
	}
}

// Emit builds an alert, logs it and hands it to the store in the background.
// When too many writes are already pending the alert is only logged.
func (e *Evaluator) Emit(ctx context.Context, typ models.AlertType, data models.AlertData) models.Alert {
	a := models.Alert{
		ID:        uuid.NewString(),
		Type:      typ,
		Data:      data,
		Timestamp: e.now().UTC(),
		Status:    "active",
	}
	e.log.Warn("system alert", "type", typ, "current", data.Current, "threshold", data.Threshold, "alert_id", a.ID)
	if e.store == nil {
		return a
	}

	select {
	case e.inflight <- struct{}{}:
	default:
		e.log.Warn("alert persistence skipped, too many pending writes", "alert_id", a.ID)
		return a
	}
	// detached from the caller: a finished request must not cancel the write
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.persistTimeout)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer cancel()
		defer func() { <-e.inflight }()
		defer func() {
			if p := recover(); p != nil {
				e.log.Error("alert persistence panicked", "alert_id", a.ID, "panic", p)
			}
		}()
		if err := e.store.InsertAlert(pctx, a); err != nil {
			e.log.Error("persist alert", "err", err, "alert_id", a.ID, "type", typ)
		}
	}()
	return a
}

func (e *Evaluator) Wait() {
	e.wg.Wait()
}
