package health

import (
	"context"
	"fmt"
	"time"

	"botwatch/internal/models"
)

func PingProbe(ping func(context.Context) error) Probe {
	return func(ctx context.Context) (models.HealthResult, error) {
		err := ping(ctx)
		res := models.HealthResult{
			Status:    models.StatusHealthy,
			Details:   map[string]any{"connected": err == nil},
			Timestamp: time.Now(),
		}
		if err != nil {
			res.Status = models.StatusUnhealthy
			res.Details["error"] = err.Error()
		}
		return res, nil
	}
}

func MemoryProbe(usage func() (used, total uint64), threshold func() uint64) Probe {
	return func(ctx context.Context) (models.HealthResult, error) {
		used, total := usage()
		limit := threshold()
		status := models.StatusHealthy
		if used >= limit {
			status = models.StatusWarning
		}
		return models.HealthResult{
			Status: status,
			Details: map[string]any{
				"used":      megabytes(used),
				"total":     megabytes(total),
				"threshold": megabytes(limit),
			},
			Timestamp: time.Now(),
		}, nil
	}
}

func LatencyProbe(average func() float64, threshold func() float64) Probe {
	return func(ctx context.Context) (models.HealthResult, error) {
		avg := average()
		status := models.StatusHealthy
		if avg >= threshold() {
			status = models.StatusWarning
		}
		return models.HealthResult{
			Status:    status,
			Details:   map[string]any{"average_latency": fmt.Sprintf("%.2fms", avg)},
			Timestamp: time.Now(),
		}, nil
	}
}

func ReachabilityProbe(enabled func() bool, call func(context.Context) error) Probe {
	return func(ctx context.Context) (models.HealthResult, error) {
		if enabled != nil && !enabled() {
			return models.HealthResult{
				Status:    models.StatusHealthy,
				Details:   map[string]any{"configured": false},
				Timestamp: time.Now(),
			}, nil
		}
		start := time.Now()
		if err := call(ctx); err != nil {
			return models.HealthResult{}, err
		}
		return models.HealthResult{
			Status:    models.StatusHealthy,
			Details:   map[string]any{"configured": true, "latency_ms": time.Since(start).Milliseconds()},
			Timestamp: time.Now(),
		}, nil
	}
}

func megabytes(b uint64) string {
	return fmt.Sprintf("%.2f MB", float64(b)/1024/1024)
}
