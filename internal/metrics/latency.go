package metrics

import (
	"fmt"
	"math"
	"sort"
)

type ValidationError struct {
	Field string
	Value float64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Value)
}

// window is a fixed-capacity FIFO of samples backed by a ring buffer.
type window struct {
	buf   []float64
	start int
	n     int
	sum   float64
}

func newWindow(size int) *window {
	return &window{buf: make([]float64, size)}
}

func (w *window) add(v float64) {
	if w.n < len(w.buf) {
		w.buf[(w.start+w.n)%len(w.buf)] = v
		w.n++
		w.sum += v
		return
	}
	w.buf[w.start] = v
	w.start = (w.start + 1) % len(w.buf)
	// resum instead of subtracting the evicted value, which drifts
	w.sum = 0
	for _, x := range w.buf {
		w.sum += x
	}
}

func (w *window) values() []float64 {
	out := make([]float64, w.n)
	for i := 0; i < w.n; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

func (w *window) mean() float64 {
	if w.n == 0 {
		return 0
	}
	return w.sum / float64(w.n)
}

func (r *Registry) RecordLatency(key string, durationMs float64) error {
	if math.IsNaN(durationMs) || math.IsInf(durationMs, 0) || durationMs < 0 {
		return &ValidationError{Field: "latency", Value: durationMs}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.st
	w, ok := st.latency[key]
	if !ok {
		w = newWindow(r.sampleSize)
		st.latency[key] = w
	}
	w.add(durationMs)
	st.avgLatency = combinedMean(st.latency)
	return nil
}

func combinedMean(series map[string]*window) float64 {
	var sum float64
	var n int
	for _, w := range series {
		sum += w.sum
		n += w.n
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// AverageLatency is the mean of the retained samples of key, or of all keys
// when key is empty. It is 0 when nothing was recorded.
func (r *Registry) AverageLatency(key string) float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if key == "" {
		return r.st.avgLatency
	}
	w, ok := r.st.latency[key]
	if !ok {
		return 0
	}
	return w.mean()
}

func (r *Registry) LatencyPercentile(key string, p float64) float64 {
	r.mu.RLock()
	var vals []float64
	if key == "" {
		for _, w := range r.st.latency {
			vals = append(vals, w.values()...)
		}
	} else if w, ok := r.st.latency[key]; ok {
		vals = w.values()
	}
	r.mu.RUnlock()
	return Percentile(vals, p)
}

// Percentile returns the nearest-rank percentile p of vals, sorting vals in
// place. It is 0 for an empty slice.
func Percentile(vals []float64, p float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sort.Float64s(vals)
	if p <= 0 {
		return vals[0]
	}
	if p >= 100 {
		return vals[len(vals)-1]
	}
	rank := int(math.Ceil(p / 100 * float64(len(vals))))
	return vals[rank-1]
}

func (r *Registry) LatencySamples(key string) []float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.st.latency[key]
	if !ok {
		return nil
	}
	return w.values()
}
