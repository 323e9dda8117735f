package metrics

import (
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"botwatch/internal/models"
)

const DefaultSampleSize = 100

// Registry holds the live counters, gauges, active users and latency windows
// of the process. All methods are safe for concurrent use. Reset swaps the
// whole state under the write lock, so readers observe either the old or the
// new state, never a mix.
type Registry struct {
	mu         sync.RWMutex
	st         *state
	sampleSize int
	now        func() time.Time
}

type state struct {
	startTime    time.Time
	messageCount int64
	errorCount   int64
	requests     models.Requests
	resources    models.Resources
	activeUsers  map[int64]struct{}
	lastError    *models.LastError
	lastPing     *time.Time

	latency    map[string]*window
	avgLatency float64
}

func NewRegistry(sampleSize int) *Registry {
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	r := &Registry{sampleSize: sampleSize, now: time.Now}
	r.st = newState(r.now())
	return r
}

func newState(start time.Time) *state {
	return &state{
		startTime:   start,
		activeUsers: map[int64]struct{}{},
		latency:     map[string]*window{},
	}
}

func (r *Registry) RecordMessage(userID int64, messageType string) {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.st
	st.messageCount++
	st.activeUsers[userID] = struct{}{}
	st.lastPing = &now
	st.requests.Total++
	st.requests.Success++
}

// RecordError counts a failed request. The stack is the one of the caller,
// since Go errors carry none.
func (r *Registry) RecordError(err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	le := &models.LastError{Timestamp: r.now(), Message: msg, Stack: string(debug.Stack())}
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.st
	st.errorCount++
	st.requests.Total++
	st.requests.Failed++
	st.lastError = le
}

func (r *Registry) RecordRateLimited() {
	r.mu.Lock()
	r.st.requests.RateLimited++
	r.mu.Unlock()
}

func (r *Registry) SetMemory(used, total uint64) {
	r.mu.Lock()
	r.st.resources.MemoryUsed = used
	r.st.resources.MemoryTotal = total
	r.mu.Unlock()
}

func (r *Registry) SetCPU(pct float64) {
	r.mu.Lock()
	r.st.resources.CPUPercent = pct
	r.mu.Unlock()
}

func (r *Registry) SetDisk(pct float64) {
	r.mu.Lock()
	r.st.resources.DiskPercent = pct
	r.mu.Unlock()
}

func (r *Registry) SetNetwork(in, out uint64) {
	r.mu.Lock()
	r.st.resources.NetworkIn = in
	r.st.resources.NetworkOut = out
	r.mu.Unlock()
}

func (r *Registry) Resources() models.Resources {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.st.resources
}

func (r *Registry) Requests() models.Requests {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.st.requests
}

func (r *Registry) LastError() *models.LastError {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.st.lastError == nil {
		return nil
	}
	le := *r.st.lastError
	return &le
}

func (r *Registry) ErrorRate() float64 {
	return FailureRatio(r.Requests())
}

func (r *Registry) SuccessRate() float64 {
	return SuccessPercent(r.Requests())
}

func FailureRatio(req models.Requests) float64 {
	if req.Total == 0 {
		return 0
	}
	return float64(req.Failed) / float64(req.Total)
}

func SuccessPercent(req models.Requests) float64 {
	if req.Total == 0 {
		return 100
	}
	return float64(req.Success) / float64(req.Total) * 100
}

func (r *Registry) Reset() {
	fresh := newState(r.now())
	r.mu.Lock()
	r.st = fresh
	r.mu.Unlock()
}

func (r *Registry) Snapshot() models.Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := r.st

	snap := models.Snapshot{
		StartTime:    st.startTime,
		MessageCount: st.messageCount,
		ErrorCount:   st.errorCount,
		Requests:     st.requests,
		Resources:    st.resources,
		ActiveUsers:  make([]int64, 0, len(st.activeUsers)),
		Performance: models.Performance{
			AverageResponseTime: st.avgLatency,
			Latency:             make(map[string][]float64, len(st.latency)),
		},
	}
	for id := range st.activeUsers {
		snap.ActiveUsers = append(snap.ActiveUsers, id)
	}
	sort.Slice(snap.ActiveUsers, func(i, j int) bool { return snap.ActiveUsers[i] < snap.ActiveUsers[j] })
	if st.lastError != nil {
		le := *st.lastError
		snap.LastError = &le
	}
	if st.lastPing != nil {
		p := *st.lastPing
		snap.LastPing = &p
	}
	for key, w := range st.latency {
		vals := w.values()
		snap.Performance.Latency[key] = vals
		snap.Performance.SampleCount += len(vals)
	}
	return snap
}

// Summary is Snapshot without the user set and the raw latency samples. Its
// size does not grow with traffic. LastError is copied without the stack.
func (r *Registry) Summary() models.Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st := r.st

	sum := models.Summary{
		StartTime:    st.startTime,
		MessageCount: st.messageCount,
		ErrorCount:   st.errorCount,
		Requests:     st.requests,
		Resources:    st.resources,
		ActiveUsers:  len(st.activeUsers),
		Performance: models.SummaryPerformance{
			AverageResponseTime: st.avgLatency,
			Latency:             make(map[string]float64, len(st.latency)),
		},
	}
	if st.lastError != nil {
		sum.LastError = &models.LastError{Timestamp: st.lastError.Timestamp, Message: st.lastError.Message}
	}
	if st.lastPing != nil {
		p := *st.lastPing
		sum.LastPing = &p
	}
	for key, w := range st.latency {
		sum.Performance.Latency[key] = w.mean()
		sum.Performance.SampleCount += w.n
	}
	return sum
}
