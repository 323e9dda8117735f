package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "botwatch"

// Collector exposes a Registry to Prometheus. Every scrape reads a single
// snapshot so the exported values are mutually consistent.
type Collector struct {
	reg *Registry

	messages     *prometheus.Desc
	errors       *prometheus.Desc
	requests     *prometheus.Desc
	activeUsers  *prometheus.Desc
	memoryUsed   *prometheus.Desc
	memoryTotal  *prometheus.Desc
	cpu          *prometheus.Desc
	disk         *prometheus.Desc
	network      *prometheus.Desc
	latencyAvg   *prometheus.Desc
	latencyCount *prometheus.Desc
	uptime       *prometheus.Desc
}

func NewCollector(reg *Registry) *Collector {
	return &Collector{
		reg:          reg,
		messages:     prometheus.NewDesc(namespace+"_messages_total", "Messages handled since start or last reset.", nil, nil),
		errors:       prometheus.NewDesc(namespace+"_errors_total", "Errors recorded since start or last reset.", nil, nil),
		requests:     prometheus.NewDesc(namespace+"_requests_total", "Requests by outcome.", []string{"outcome"}, nil),
		activeUsers:  prometheus.NewDesc(namespace+"_active_users", "Distinct users seen since start or last reset.", nil, nil),
		memoryUsed:   prometheus.NewDesc(namespace+"_memory_used_bytes", "Resident memory of the process.", nil, nil),
		memoryTotal:  prometheus.NewDesc(namespace+"_memory_total_bytes", "Total memory of the host.", nil, nil),
		cpu:          prometheus.NewDesc(namespace+"_cpu_usage_percent", "Process CPU usage.", nil, nil),
		disk:         prometheus.NewDesc(namespace+"_disk_usage_percent", "Disk usage of the data volume.", nil, nil),
		network:      prometheus.NewDesc(namespace+"_network_bytes", "Host network counters.", []string{"direction"}, nil),
		latencyAvg:   prometheus.NewDesc(namespace+"_latency_average_ms", "Mean of retained latency samples.", []string{"key"}, nil),
		latencyCount: prometheus.NewDesc(namespace+"_latency_samples", "Retained latency samples.", []string{"key"}, nil),
		uptime:       prometheus.NewDesc(namespace+"_start_time_seconds", "Unix time of start or last reset.", nil, nil),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.messages, c.errors, c.requests, c.activeUsers, c.memoryUsed, c.memoryTotal,
		c.cpu, c.disk, c.network, c.latencyAvg, c.latencyCount, c.uptime,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.reg.Snapshot()
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	counter(c.messages, float64(s.MessageCount))
	counter(c.errors, float64(s.ErrorCount))
	counter(c.requests, float64(s.Requests.Success), "success")
	counter(c.requests, float64(s.Requests.Failed), "failed")
	counter(c.requests, float64(s.Requests.RateLimited), "rate_limited")
	gauge(c.activeUsers, float64(len(s.ActiveUsers)))
	gauge(c.memoryUsed, float64(s.Resources.MemoryUsed))
	gauge(c.memoryTotal, float64(s.Resources.MemoryTotal))
	gauge(c.cpu, s.Resources.CPUPercent)
	gauge(c.disk, s.Resources.DiskPercent)
	gauge(c.network, float64(s.Resources.NetworkIn), "in")
	gauge(c.network, float64(s.Resources.NetworkOut), "out")
	gauge(c.uptime, float64(s.StartTime.Unix()))
	for key, vals := range s.Performance.Latency {
		var sum float64
		for _, v := range vals {
			sum += v
		}
		avg := 0.0
		if len(vals) > 0 {
			avg = sum / float64(len(vals))
		}
		gauge(c.latencyAvg, avg, key)
		gauge(c.latencyCount, float64(len(vals)), key)
	}
}
