package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"botwatch/internal/models"
)

type Config struct {
	Addr     string     `env:"APP_ADDR" envDefault:":8080"`
	DataDir  string     `env:"APP_DATA_DIR" envDefault:"./data"`
	DBPath   string     `env:"APP_DB_PATH"`
	LogLevel slog.Level `env:"APP_LOG_LEVEL" envDefault:"INFO"`

	// resource sampling
	ResourceInterval time.Duration `env:"APP_RESOURCE_INTERVAL" envDefault:"60s"`
	CPUSampleDelay   time.Duration `env:"APP_CPU_SAMPLE_DELAY" envDefault:"100ms"`
	DiskPath         string        `env:"APP_DISK_PATH" envDefault:"/"`

	// in-memory history and latency windows
	SamplingInterval  time.Duration `env:"APP_SAMPLING_INTERVAL" envDefault:"60s"`
	SamplingRetention time.Duration `env:"APP_SAMPLING_RETENTION" envDefault:"24h"`
	SampleSize        int           `env:"APP_SAMPLE_SIZE" envDefault:"100"`

	ProbeTimeout time.Duration `env:"APP_PROBE_TIMEOUT" envDefault:"5s"`

	// persisted rows
	RetentionDays     int    `env:"APP_RETENTION_DAYS" envDefault:"14"`
	RetentionSchedule string `env:"APP_RETENTION_SCHEDULE" envDefault:"@every 6h"`

	WebhookRate   float64 `env:"APP_WEBHOOK_RATE" envDefault:"30"`
	WebhookBurst  int     `env:"APP_WEBHOOK_BURST" envDefault:"60"`
	WebhookSecret string  `env:"TELEGRAM_WEBHOOK_SECRET"`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`

	Alerts AlertConfig
}

type AlertConfig struct {
	ErrorRate      float64 `env:"ALERT_ERROR_RATE" envDefault:"0.1"`
	ResponseTimeMs float64 `env:"ALERT_RESPONSE_TIME_MS" envDefault:"5000"`
	MemoryMB       uint64  `env:"ALERT_MEMORY_MB" envDefault:"512"`
	CPUPercent     float64 `env:"ALERT_CPU_PERCENT" envDefault:"80"`
	DiskPercent    float64 `env:"ALERT_DISK_PERCENT" envDefault:"90"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "app.db")
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	var errs []error
	positive := map[string]time.Duration{
		"APP_RESOURCE_INTERVAL":  c.ResourceInterval,
		"APP_CPU_SAMPLE_DELAY":   c.CPUSampleDelay,
		"APP_SAMPLING_INTERVAL":  c.SamplingInterval,
		"APP_SAMPLING_RETENTION": c.SamplingRetention,
		"APP_PROBE_TIMEOUT":      c.ProbeTimeout,
	}
	for name, d := range positive {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if c.SampleSize <= 0 {
		errs = append(errs, fmt.Errorf("APP_SAMPLE_SIZE must be positive, got %d", c.SampleSize))
	}
	if c.RetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("APP_RETENTION_DAYS must be positive, got %d", c.RetentionDays))
	}
	if c.WebhookRate <= 0 || c.WebhookBurst <= 0 {
		errs = append(errs, errors.New("APP_WEBHOOK_RATE and APP_WEBHOOK_BURST must be positive"))
	}
	return errors.Join(errs...)
}

func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func (c Config) Thresholds() models.AlertThresholds {
	return models.AlertThresholds{
		ErrorRate:      c.Alerts.ErrorRate,
		ResponseTimeMs: c.Alerts.ResponseTimeMs,
		MemoryBytes:    c.Alerts.MemoryMB * 1024 * 1024,
		CPUPercent:     c.Alerts.CPUPercent,
		DiskPercent:    c.Alerts.DiskPercent,
	}
}
