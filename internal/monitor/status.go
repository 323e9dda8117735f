package monitor

import (
	"context"
	"math"
	"time"

	"botwatch/internal/health"
	"botwatch/internal/metrics"
	"botwatch/internal/models"
)

type Status struct {
	Status       models.HealthStatus            `json:"status"`
	UptimeHours  int64                          `json:"uptime_hours"`
	Metrics      StatusMetrics                  `json:"metrics"`
	Performance  StatusPerformance              `json:"performance"`
	LastError    *models.LastError              `json:"last_error"`
	LastPing     *time.Time                     `json:"last_ping"`
	HealthChecks map[string]models.HealthResult `json:"health_checks"`
}

type StatusMetrics struct {
	MessageCount  int64        `json:"message_count"`
	ErrorCount    int64        `json:"error_count"`
	ActiveUsers   int          `json:"active_users"`
	MemoryUsedMB  uint64       `json:"memory_used_mb"`
	MemoryTotalMB uint64       `json:"memory_total_mb"`
	CPUUsage      float64      `json:"cpu_usage"`
	DiskUsage     float64      `json:"disk_usage"`
	Requests      RequestStats `json:"requests"`
}

type RequestStats struct {
	models.Requests
	SuccessRate float64 `json:"success_rate"`
}

type StatusPerformance struct {
	AverageResponseTime float64 `json:"average_response_time"`
	P95ResponseTime     float64 `json:"p95_response_time"`
	SampleCount         int     `json:"sample_count"`
}

type SystemLoad struct {
	CPUUsage  float64      `json:"cpu_usage"`
	DiskUsage float64      `json:"disk_usage"`
	Memory    MemoryLoad   `json:"memory"`
	Network   NetworkLoad  `json:"network"`
	Requests  RequestStats `json:"requests"`
}

type MemoryLoad struct {
	Used       uint64  `json:"used"`
	Total      uint64  `json:"total"`
	Percentage float64 `json:"percentage"`
}

type NetworkLoad struct {
	BytesIn  uint64 `json:"bytes_in"`
	BytesOut uint64 `json:"bytes_out"`
}

type Report struct {
	Period      Period                   `json:"period"`
	Metrics     ReportMetrics            `json:"metrics"`
	Performance ReportPerformance        `json:"performance"`
	Resources   SystemLoad               `json:"resources"`
	History     []models.HistorySample   `json:"history"`
	Events      []models.MonitoringEvent `json:"events"`
}

type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type ReportMetrics struct {
	MessageCount int64 `json:"message_count"`
	ErrorCount   int64 `json:"error_count"`
	ActiveUsers  int   `json:"active_users"`
}

type ReportPerformance struct {
	AverageResponseTime float64 `json:"average_response_time"`
	ErrorRate           float64 `json:"error_rate"`
	SuccessRate         float64 `json:"success_rate"`
}

// Status runs the health checks and combines their results with the current
// registry summary. It only reads; calling it does not count as a ping.
func (s *Service) Status(ctx context.Context) Status {
	checks := s.health.RunAll(ctx)
	sum := s.metrics.Summary()

	uptime := s.now().Sub(sum.StartTime)
	if uptime < 0 {
		uptime = 0
	}
	return Status{
		Status:      health.Overall(checks),
		UptimeHours: int64(uptime / time.Hour),
		Metrics: StatusMetrics{
			MessageCount:  sum.MessageCount,
			ErrorCount:    sum.ErrorCount,
			ActiveUsers:   sum.ActiveUsers,
			MemoryUsedMB:  sum.Resources.MemoryUsed / (1024 * 1024),
			MemoryTotalMB: sum.Resources.MemoryTotal / (1024 * 1024),
			CPUUsage:      sum.Resources.CPUPercent,
			DiskUsage:     sum.Resources.DiskPercent,
			Requests:      requestStats(sum.Requests),
		},
		Performance: StatusPerformance{
			AverageResponseTime: sum.Performance.AverageResponseTime,
			P95ResponseTime:     s.metrics.LatencyPercentile("", 95),
			SampleCount:         sum.Performance.SampleCount,
		},
		LastError:    s.metrics.LastError(),
		LastPing:     sum.LastPing,
		HealthChecks: checks,
	}
}

func (s *Service) SystemLoad() SystemLoad {
	return systemLoad(s.metrics.Summary())
}

// ExportReport summarizes the current counters together with the persisted
// history samples and events between start and end. When the archive cannot
// be read the in-memory samples are used and events are left out.
func (s *Service) ExportReport(ctx context.Context, start, end time.Time) Report {
	sum := s.metrics.Summary()
	r := Report{
		Period: Period{Start: start, End: end},
		Metrics: ReportMetrics{
			MessageCount: sum.MessageCount,
			ErrorCount:   sum.ErrorCount,
			ActiveUsers:  sum.ActiveUsers,
		},
		Performance: ReportPerformance{
			AverageResponseTime: sum.Performance.AverageResponseTime,
			ErrorRate:           metrics.FailureRatio(sum.Requests),
			SuccessRate:         metrics.SuccessPercent(sum.Requests),
		},
		Resources: systemLoad(sum),
		History:   []models.HistorySample{},
		Events:    []models.MonitoringEvent{},
	}
	if start.After(end) {
		return r
	}
	if s.archive == nil {
		r.History = s.history.Export(start, end)
		return r
	}

	samples, err := s.archive.HistorySamplesBetween(ctx, start, end, 0)
	if err != nil {
		s.log.Warn("load history samples", "err", err, "start", start, "end", end)
		r.History = s.history.Export(start, end)
	} else if samples != nil {
		r.History = samples
	}
	events, err := s.archive.EventsBetween(ctx, start, end)
	if err != nil {
		s.log.Warn("load monitoring events", "err", err, "start", start, "end", end)
		return r
	}
	if events != nil {
		r.Events = events
	}
	return r
}

func systemLoad(sum models.Summary) SystemLoad {
	res := sum.Resources
	pct := 0.0
	if res.MemoryTotal > 0 {
		pct = math.Round(float64(res.MemoryUsed)/float64(res.MemoryTotal)*100*100) / 100
	}
	return SystemLoad{
		CPUUsage:  res.CPUPercent,
		DiskUsage: res.DiskPercent,
		Memory:    MemoryLoad{Used: res.MemoryUsed, Total: res.MemoryTotal, Percentage: pct},
		Network:   NetworkLoad{BytesIn: res.NetworkIn, BytesOut: res.NetworkOut},
		Requests:  requestStats(sum.Requests),
	}
}

func requestStats(req models.Requests) RequestStats {
	return RequestStats{Requests: req, SuccessRate: metrics.SuccessPercent(req)}
}
