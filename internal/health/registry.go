package health

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"botwatch/internal/models"
)

const DefaultTimeout = 5 * time.Second

// Probe checks one dependency. A returned error, a panic or running past the
// registry timeout all turn into an error result.
type Probe func(ctx context.Context) (models.HealthResult, error)

type Registry struct {
	mu      sync.RWMutex
	probes  map[string]Probe
	timeout time.Duration
	log     *slog.Logger
	now     func() time.Time
}

func NewRegistry(timeout time.Duration, logger *slog.Logger) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{probes: map[string]Probe{}, timeout: timeout, log: logger, now: time.Now}
}

func (r *Registry) Register(name string, probe Probe) {
	r.mu.Lock()
	_, exists := r.probes[name]
	r.probes[name] = probe
	r.mu.Unlock()
	if exists {
		r.log.Info("health check replaced", "name", name)
		return
	}
	r.log.Info("health check registered", "name", name)
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.probes))
	for n := range r.probes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) RunAll(ctx context.Context) map[string]models.HealthResult {
	r.mu.RLock()
	probes := make(map[string]Probe, len(r.probes))
	for n, p := range r.probes {
		probes[n] = p
	}
	r.mu.RUnlock()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]models.HealthResult, len(probes))
	)
	for name, probe := range probes {
		wg.Add(1)
		go func(name string, probe Probe) {
			defer wg.Done()
			res := r.run(ctx, name, probe)
			mu.Lock()
			results[name] = res
			mu.Unlock()
		}(name, probe)
	}
	wg.Wait()
	return results
}

type outcome struct {
	res models.HealthResult
	err error
}

func (r *Registry) run(ctx context.Context, name string, probe Probe) models.HealthResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	// buffered so a probe that ignores ctx can still finish without blocking
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("probe panicked: %v", p)}
			}
		}()
		res, err := probe(ctx)
		done <- outcome{res: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			r.log.Warn("health check failed", "name", name, "err", o.err)
			return r.errorResult(o.err)
		}
		if o.res.Timestamp.IsZero() {
			o.res.Timestamp = r.now()
		}
		if o.res.Status == "" {
			o.res.Status = models.StatusHealthy
		}
		return o.res
	case <-ctx.Done():
		r.log.Warn("health check timed out", "name", name, "timeout", r.timeout)
		return r.errorResult(fmt.Errorf("health check %s: %w", name, ctx.Err()))
	}
}

func (r *Registry) errorResult(err error) models.HealthResult {
	return models.HealthResult{Status: models.StatusError, Error: err.Error(), Timestamp: r.now()}
}

func Overall(results map[string]models.HealthResult) models.HealthStatus {
	worst := models.StatusHealthy
	for _, res := range results {
		if res.Status.Rank() > worst.Rank() {
			worst = res.Status
		}
	}
	return worst
}
