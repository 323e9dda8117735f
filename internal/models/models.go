package models

import "time"

type Requests struct {
	Total       int64 `json:"total"`
	Success     int64 `json:"success"`
	Failed      int64 `json:"failed"`
	RateLimited int64 `json:"rate_limited"`
}

type Resources struct {
	MemoryUsed  uint64  `json:"memory_used"`
	MemoryTotal uint64  `json:"memory_total"`
	CPUPercent  float64 `json:"cpu_percent"`
	DiskPercent float64 `json:"disk_percent"`
	NetworkIn   uint64  `json:"network_bytes_in"`
	NetworkOut  uint64  `json:"network_bytes_out"`
}

type LastError struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Stack     string    `json:"stack,omitempty"`
}

type Performance struct {
	AverageResponseTime float64              `json:"average_response_time"`
	SampleCount         int                  `json:"sample_count"`
	Latency             map[string][]float64 `json:"latency,omitempty"`
}

// Snapshot is a point-in-time copy of the metrics registry. It shares no
// memory with the registry it was taken from.
type Snapshot struct {
	StartTime    time.Time   `json:"start_time"`
	MessageCount int64       `json:"message_count"`
	ErrorCount   int64       `json:"error_count"`
	Requests     Requests    `json:"requests"`
	Resources    Resources   `json:"resources"`
	ActiveUsers  []int64     `json:"active_users"`
	LastError    *LastError  `json:"last_error"`
	LastPing     *time.Time  `json:"last_ping"`
	Performance  Performance `json:"performance"`
}

type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusWarning   HealthStatus = "warning"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusError     HealthStatus = "error"
)

func (s HealthStatus) Rank() int {
	switch s {
	case StatusWarning:
		return 1
	case StatusUnhealthy:
		return 2
	case StatusError:
		return 3
	default:
		return 0
	}
}

type HealthResult struct {
	Status    HealthStatus   `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type AlertThresholds struct {
	ErrorRate      float64 `json:"error_rate"`
	ResponseTimeMs float64 `json:"response_time_ms"`
	MemoryBytes    uint64  `json:"memory_bytes"`
	CPUPercent     float64 `json:"cpu_percent"`
	DiskPercent    float64 `json:"disk_percent"`
}

// ThresholdsUpdate is a partial AlertThresholds; nil fields are left as they are.
type ThresholdsUpdate struct {
	ErrorRate      *float64 `json:"error_rate,omitempty"`
	ResponseTimeMs *float64 `json:"response_time_ms,omitempty"`
	MemoryBytes    *uint64  `json:"memory_bytes,omitempty"`
	CPUPercent     *float64 `json:"cpu_percent,omitempty"`
	DiskPercent    *float64 `json:"disk_percent,omitempty"`
}

type AlertType string

const (
	AlertErrorRate    AlertType = "error_rate"
	AlertResponseTime AlertType = "response_time"
	AlertMemory       AlertType = "memory"
	AlertCPU          AlertType = "cpu_usage"
	AlertDisk         AlertType = "disk_space"
)

type AlertData struct {
	Current   float64 `json:"current"`
	Threshold float64 `json:"threshold"`
}

type Alert struct {
	ID        string    `json:"id"`
	Type      AlertType `json:"type"`
	Data      AlertData `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// Summary is the fixed-size part of a Snapshot: counts instead of the user
// set and per-key means instead of the raw latency windows.
type Summary struct {
	StartTime    time.Time          `json:"start_time"`
	MessageCount int64              `json:"message_count"`
	ErrorCount   int64              `json:"error_count"`
	Requests     Requests           `json:"requests"`
	Resources    Resources          `json:"resources"`
	ActiveUsers  int                `json:"active_users"`
	LastError    *LastError         `json:"last_error"`
	LastPing     *time.Time         `json:"last_ping"`
	Performance  SummaryPerformance `json:"performance"`
}

type SummaryPerformance struct {
	AverageResponseTime float64            `json:"average_response_time"`
	SampleCount         int                `json:"sample_count"`
	Latency             map[string]float64 `json:"latency,omitempty"`
}

type HistorySample struct {
	Timestamp time.Time `json:"timestamp"`
	Metrics   Summary   `json:"metrics"`
	Resources Resources `json:"resources"`
}

type MonitoringEvent struct {
	Type      string    `json:"type"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
