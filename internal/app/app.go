package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"botwatch/internal/alerts"
	"botwatch/internal/collector"
	"botwatch/internal/config"
	"botwatch/internal/db"
	"botwatch/internal/health"
	"botwatch/internal/history"
	"botwatch/internal/metrics"
	"botwatch/internal/monitor"
	"botwatch/internal/retention"
	"botwatch/internal/telegram"
	"botwatch/internal/web"
)

type App struct {
	cfg config.Config
	log *slog.Logger

	db *db.Repository

	metrics   *metrics.Registry
	alerts    *alerts.Evaluator
	sampler   *collector.Sampler
	history   *history.Store
	monitor   *monitor.Service
	retention *retention.Service
	telegram  *telegram.Client
	web       *web.Server

	cron    *cron.Cron
	httpSrv *http.Server
}

func New(cfg config.Config, logger *slog.Logger) (*App, error) {
	sqldb, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(sqldb); err != nil {
		_ = sqldb.Close()
		return nil, err
	}
	repo := db.NewRepository(sqldb)

	reg := metrics.NewRegistry(cfg.SampleSize)
	eval := alerts.NewEvaluator(repo, reg, cfg.Thresholds(), logger.With("module", "alerts"))
	hist := history.NewStore(reg, repo, cfg.SamplingRetention, logger.With("module", "history"))
	checks := health.NewRegistry(cfg.ProbeTimeout, logger.With("module", "health"))
	mon := monitor.NewService(reg, checks, eval, hist, repo, logger.With("module", "monitor"))
	tg := telegram.NewClient(cfg.TelegramBotToken)

	registerHealthChecks(mon, reg, repo, tg)
	logger.Info("health checks registered", "checks", mon.HealthCheckNames(), "telegram", tg.Enabled())

	w := web.NewServer(mon, repo, web.Options{
		WebhookRate:   cfg.WebhookRate,
		WebhookBurst:  cfg.WebhookBurst,
		WebhookSecret: cfg.WebhookSecret,
	}, logger.With("module", "web"))

	app := &App{
		cfg:       cfg,
		log:       logger,
		db:        repo,
		metrics:   reg,
		alerts:    eval,
		sampler:   collector.NewSampler(reg, eval, cfg.DiskPath, cfg.CPUSampleDelay, logger.With("module", "collector")),
		history:   hist,
		monitor:   mon,
		retention: retention.NewService(repo, cfg.Retention(), logger.With("module", "retention")),
		telegram:  tg,
		web:       w,
		cron:      cron.New(),
	}
	app.httpSrv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           w.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return app, nil
}

func registerHealthChecks(mon *monitor.Service, reg *metrics.Registry, repo *db.Repository, tg *telegram.Client) {
	mon.RegisterHealthCheck("database", health.PingProbe(repo.Ping))
	mon.RegisterHealthCheck("memory", health.MemoryProbe(
		func() (uint64, uint64) {
			res := reg.Resources()
			return res.MemoryUsed, res.MemoryTotal
		},
		func() uint64 { return mon.Thresholds().MemoryBytes },
	))
	mon.RegisterHealthCheck("api", health.LatencyProbe(
		func() float64 { return reg.AverageLatency("") },
		func() float64 { return mon.Thresholds().ResponseTimeMs },
	))
	mon.RegisterHealthCheck("telegram", health.ReachabilityProbe(tg.Enabled, tg.Ping))
}

func (a *App) Run(ctx context.Context) error {
	go func() {
		a.log.Info("http server listening", "addr", a.cfg.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("http server failed", "err", err)
		}
	}()

	if _, err := a.retention.Schedule(ctx, a.cron, a.cfg.RetentionSchedule); err != nil {
		a.log.Error("retention schedule rejected, pruning disabled", "schedule", a.cfg.RetentionSchedule, "err", err)
	}
	a.cron.Start()

	resourceTicker := time.NewTicker(a.cfg.ResourceInterval)
	historyTicker := time.NewTicker(a.cfg.SamplingInterval)
	defer resourceTicker.Stop()
	defer historyTicker.Stop()

	// Immediate first run
	a.sampler.Tick(ctx)
	a.retention.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return a.shutdown()
		case <-resourceTicker.C:
			a.sampler.Tick(ctx)
		case <-historyTicker.C:
			a.history.Tick(ctx)
		}
	}
}

func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cronDone := a.cron.Stop()
	if err := a.httpSrv.Shutdown(shutdownCtx); err != nil {
		a.log.Warn("http shutdown", "err", err)
	}
	select {
	case <-cronDone.Done():
	case <-shutdownCtx.Done():
		a.log.Warn("retention job still running at shutdown")
	}
	a.sampler.Wait()
	a.alerts.Wait()
	a.log.Info("shutdown complete")
	return a.db.DB().Close()
}
