// Package stats aggregates request latencies of a test run into
// percentile summaries backed by an HDR histogram.
package stats

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// Latencies are recorded in microseconds between 1us and 60s.
	minLatencyUs = 1
	maxLatencyUs = 60_000_000
	sigFigs      = 3
)

// Recorder collects request latencies. It is safe for concurrent use.
type Recorder struct {
	mu sync.Mutex

	total  atomic.Int64
	errors atomic.Int64

	histogram *hdrhistogram.Histogram
	perFile   map[string]*hdrhistogram.Histogram

	startTime time.Time
	endTime   time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{
		histogram: newHistogram(),
		perFile:   make(map[string]*hdrhistogram.Histogram),
	}
}

func newHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(minLatencyUs, maxLatencyUs, sigFigs)
}

// Start marks the beginning of the run
func (r *Recorder) Start() {
	r.mu.Lock()
	r.startTime = time.Now()
	r.mu.Unlock()
}

// Stop marks the end of the run
func (r *Recorder) Stop() {
	r.mu.Lock()
	r.endTime = time.Now()
	r.mu.Unlock()
}

// Record adds one request. Failed requests are counted but their latency is
// not part of the percentiles.
func (r *Recorder) Record(file string, duration time.Duration, err error) {
	r.total.Add(1)
	if err != nil {
		r.errors.Add(1)
		return
	}

	latencyUs := clamp(duration.Microseconds())

	r.mu.Lock()
	defer r.mu.Unlock()

	_ = r.histogram.RecordValue(latencyUs)
	if file == "" {
		return
	}
	h, ok := r.perFile[file]
	if !ok {
		h = newHistogram()
		r.perFile[file] = h
	}
	_ = h.RecordValue(latencyUs)
}

func clamp(us int64) int64 {
	if us < minLatencyUs {
		return minLatencyUs
	}
	if us > maxLatencyUs {
		return maxLatencyUs
	}
	return us
}

// Summary is a point-in-time view of the recorded latencies
type Summary struct {
	Duration time.Duration `json:"duration"`
	Requests int64         `json:"requests"`
	Errors   int64         `json:"errors"`
	RPS      float64       `json:"rps"`

	Latency Percentiles `json:"latency"`

	Files []FileSummary `json:"files,omitempty"`
}

type Percentiles struct {
	Min  time.Duration `json:"min"`
	Mean time.Duration `json:"mean"`
	P50  time.Duration `json:"p50"`
	P95  time.Duration `json:"p95"`
	P99  time.Duration `json:"p99"`
	Max  time.Duration `json:"max"`
}

type FileSummary struct {
	File     string      `json:"file"`
	Requests int64       `json:"requests"`
	Latency  Percentiles `json:"latency"`
}

func percentiles(h *hdrhistogram.Histogram) Percentiles {
	if h.TotalCount() == 0 {
		return Percentiles{}
	}
	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	return Percentiles{
		Min:  us(h.Min()),
		Mean: us(int64(h.Mean())),
		P50:  us(h.ValueAtQuantile(50)),
		P95:  us(h.ValueAtQuantile(95)),
		P99:  us(h.ValueAtQuantile(99)),
		Max:  us(h.Max()),
	}
}

// Summary returns the aggregate view; per-file entries are sorted by path.
func (r *Recorder) Summary() *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	duration := r.endTime.Sub(r.startTime)
	if r.endTime.IsZero() {
		duration = time.Since(r.startTime)
	}
	if r.startTime.IsZero() {
		duration = 0
	}

	total := r.total.Load()
	rps := float64(0)
	if duration.Seconds() > 0 {
		rps = float64(total) / duration.Seconds()
	}

	summary := &Summary{
		Duration: duration,
		Requests: total,
		Errors:   r.errors.Load(),
		RPS:      rps,
		Latency:  percentiles(r.histogram),
	}

	for file, h := range r.perFile {
		summary.Files = append(summary.Files, FileSummary{
			File:     file,
			Requests: h.TotalCount(),
			Latency:  percentiles(h),
		})
	}
	sort.Slice(summary.Files, func(i, j int) bool {
		return summary.Files[i].File < summary.Files[j].File
	})

	return summary
}
