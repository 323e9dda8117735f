package collector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

const DefaultCPUDelay = 100 * time.Millisecond

type Gauges interface {
	SetMemory(used, total uint64)
	SetCPU(pct float64)
	SetDisk(pct float64)
	SetNetwork(in, out uint64)
}

type Evaluator interface {
	EvaluateMemory(ctx context.Context, usedBytes uint64)
	EvaluateCPU(ctx context.Context, pct float64)
	EvaluateDisk(ctx context.Context, pct float64)
}

// Sampler measures process memory and CPU plus host disk and network usage.
// CPU needs two readings of the process CPU time, so each tick starts a
// measurement that completes cpuDelay later on its own goroutine.
type Sampler struct {
	gauges   Gauges
	eval     Evaluator
	log      *slog.Logger
	diskPath string
	cpuDelay time.Duration

	wg sync.WaitGroup

	// readers, replaced in tests
	processMemory func(context.Context) (uint64, error)
	hostMemory    func(context.Context) (uint64, error)
	processCPU    func(context.Context) (float64, error)
	diskPercent   func(context.Context, string) (float64, error)
	netCounters   func(context.Context) (in, out uint64, err error)
	numCPU        func() int
}

func NewSampler(gauges Gauges, eval Evaluator, diskPath string, cpuDelay time.Duration, logger *slog.Logger) *Sampler {
	if cpuDelay <= 0 {
		cpuDelay = DefaultCPUDelay
	}
	if diskPath == "" {
		diskPath = "/"
	}
	proc, procErr := process.NewProcess(int32(os.Getpid()))
	s := &Sampler{
		gauges:   gauges,
		eval:     eval,
		log:      logger,
		diskPath: diskPath,
		cpuDelay: cpuDelay,
		numCPU:   runtime.NumCPU,
		hostMemory: func(ctx context.Context) (uint64, error) {
			v, err := mem.VirtualMemoryWithContext(ctx)
			if err != nil {
				return 0, err
			}
			return v.Total, nil
		},
		diskPercent: func(ctx context.Context, path string) (float64, error) {
			u, err := disk.UsageWithContext(ctx, path)
			if err != nil {
				return 0, err
			}
			return u.UsedPercent, nil
		},
		netCounters: func(ctx context.Context) (uint64, uint64, error) {
			stats, err := psnet.IOCountersWithContext(ctx, false)
			if err != nil {
				return 0, 0, err
			}
			if len(stats) == 0 {
				return 0, 0, fmt.Errorf("no network counters")
			}
			return stats[0].BytesRecv, stats[0].BytesSent, nil
		},
	}
	s.processMemory = func(ctx context.Context) (uint64, error) {
		if procErr != nil {
			return 0, procErr
		}
		info, err := proc.MemoryInfoWithContext(ctx)
		if err != nil {
			return 0, err
		}
		return info.RSS, nil
	}
	s.processCPU = func(ctx context.Context) (float64, error) {
		if procErr != nil {
			return 0, procErr
		}
		t, err := proc.TimesWithContext(ctx)
		if err != nil {
			return 0, err
		}
		return busySeconds(t), nil
	}
	return s
}

func busySeconds(t *cpu.TimesStat) float64 {
	return t.User + t.System
}

// Tick samples once. A failed memory read skips the whole tick; disk and
// network failures only skip their own gauges.
func (s *Sampler) Tick(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("resource sampling panicked", "panic", p)
		}
	}()

	used, err := s.processMemory(ctx)
	if err != nil {
		s.log.Warn("collect process memory", "err", err)
		return
	}
	total, err := s.hostMemory(ctx)
	if err != nil {
		s.log.Warn("collect host memory", "err", err)
	}
	s.gauges.SetMemory(used, total)
	s.eval.EvaluateMemory(ctx, used)

	if pct, err := s.diskPercent(ctx, s.diskPath); err == nil {
		s.gauges.SetDisk(pct)
		s.eval.EvaluateDisk(ctx, pct)
	} else {
		s.log.Warn("collect disk usage", "path", s.diskPath, "err", err)
	}

	if in, out, err := s.netCounters(ctx); err == nil {
		s.gauges.SetNetwork(in, out)
	} else {
		s.log.Warn("collect network counters", "err", err)
	}

	s.measureCPU(ctx)
}

func (s *Sampler) measureCPU(ctx context.Context) {
	first, err := s.processCPU(ctx)
	if err != nil {
		s.log.Warn("collect cpu times", "err", err)
		return
	}
	started := time.Now()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if p := recover(); p != nil {
				s.log.Error("cpu measurement panicked", "panic", p)
			}
		}()

		timer := time.NewTimer(s.cpuDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		second, err := s.processCPU(ctx)
		if err != nil {
			s.log.Warn("collect cpu times", "err", err)
			return
		}
		pct := cpuPercent(second-first, time.Since(started), s.numCPU())
		s.gauges.SetCPU(pct)
		s.eval.EvaluateCPU(ctx, pct)
	}()
}

// cpuPercent converts busy CPU seconds over a wall-clock interval into a
// share of the whole machine, clamped to [0,100].
func cpuPercent(busy float64, elapsed time.Duration, cpus int) float64 {
	if elapsed <= 0 || busy <= 0 {
		return 0
	}
	if cpus <= 0 {
		cpus = 1
	}
	pct := busy / elapsed.Seconds() / float64(cpus) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

func (s *Sampler) Wait() {
	s.wg.Wait()
}
