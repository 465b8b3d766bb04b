package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// selfHistorySize bounds the in-memory sample buffer. At the default
// 30s interval this covers one hour.
const selfHistorySize = 120

// DefaultSelfInterval is the sampling pause used when none is configured.
const DefaultSelfInterval = 30 * time.Second

// Sample is one observation of the pollenwall process's own resource usage.
type Sample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryRSS  uint64    `json:"memory_rss"`
	MemoryVMS  uint64    `json:"memory_vms"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"` // Unix only
	Goroutines int       `json:"goroutines"`
	TakenAt    time.Time `json:"taken_at"`
}

// SelfMonitor periodically samples this process via gopsutil and mirrors
// the readings into Prometheus gauges. A small circular buffer keeps the
// most recent samples available in-process.
type SelfMonitor struct {
	interval time.Duration
	proc     *process.Process

	mu       sync.RWMutex
	samples  []Sample
	startIdx int
	count    int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	cpuPercent prometheus.Gauge
	memoryRSS  prometheus.Gauge
	numThreads prometheus.Gauge
	numFDs     prometheus.Gauge
	goroutines prometheus.Gauge
}

// NewSelfMonitor builds a monitor for the current process. An interval of
// zero or less selects DefaultSelfInterval.
func NewSelfMonitor(interval time.Duration) (*SelfMonitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("open own process handle: %w", err)
	}
	if interval <= 0 {
		interval = DefaultSelfInterval
	}
	return &SelfMonitor{
		interval: interval,
		proc:     proc,
		samples:  make([]Sample, selfHistorySize),
		stopCh:   make(chan struct{}),
		cpuPercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pollenwall",
			Subsystem: "process",
			Name:      "cpu_percent",
			Help:      "CPU usage of the pollenwall process.",
		}),
		memoryRSS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pollenwall",
			Subsystem: "process",
			Name:      "memory_rss_bytes",
			Help:      "Resident memory of the pollenwall process.",
		}),
		numThreads: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pollenwall",
			Subsystem: "process",
			Name:      "num_threads",
			Help:      "OS threads of the pollenwall process.",
		}),
		numFDs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pollenwall",
			Subsystem: "process",
			Name:      "num_fds",
			Help:      "Open file descriptors of the pollenwall process (Unix only).",
		}),
		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pollenwall",
			Subsystem: "process",
			Name:      "goroutines",
			Help:      "Goroutines in the pollenwall process.",
		}),
	}, nil
}

// RegisterMetrics registers the monitor's gauges with r. Already-registered
// collectors are tolerated so tests can share the default registry.
func (m *SelfMonitor) RegisterMetrics(r prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.cpuPercent,
		m.memoryRSS,
		m.numThreads,
		m.goroutines,
	}
	if runtime.GOOS != "windows" {
		collectors = append(collectors, m.numFDs)
	}
	for _, c := range collectors {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Start launches the sampling loop. It returns immediately; the loop ends
// when ctx is cancelled or Stop is called.
func (m *SelfMonitor) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.sample(time.Now())
			}
		}
	}()
}

// Stop ends the sampling loop and waits for it to exit.
func (m *SelfMonitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// sample takes one reading. Individual probe failures degrade to zero
// values rather than dropping the sample.
func (m *SelfMonitor) sample(now time.Time) {
	s := Sample{PID: m.proc.Pid, Goroutines: runtime.NumGoroutine(), TakenAt: now}

	if cpu, err := m.proc.CPUPercent(); err == nil {
		s.CPUPercent = cpu
	} else {
		slog.Debug("cpu sample failed", "err", err)
	}
	if mem, err := m.proc.MemoryInfo(); err == nil {
		s.MemoryRSS = mem.RSS
		s.MemoryVMS = mem.VMS
	} else {
		slog.Debug("memory sample failed", "err", err)
	}
	if threads, err := m.proc.NumThreads(); err == nil {
		s.NumThreads = threads
	}
	if runtime.GOOS != "windows" {
		if fds, err := m.proc.NumFDs(); err == nil {
			s.NumFDs = fds
		}
	}

	m.cpuPercent.Set(s.CPUPercent)
	m.memoryRSS.Set(float64(s.MemoryRSS))
	m.numThreads.Set(float64(s.NumThreads))
	m.goroutines.Set(float64(s.Goroutines))
	if runtime.GOOS != "windows" {
		m.numFDs.Set(float64(s.NumFDs))
	}

	m.record(s)
}

// record appends s to the circular buffer.
func (m *SelfMonitor) record(s Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count < len(m.samples) {
		m.samples[m.count] = s
		m.count++
		return
	}
	m.samples[m.startIdx] = s
	m.startIdx = (m.startIdx + 1) % len(m.samples)
}

// Latest returns the most recent sample, if any has been taken.
func (m *SelfMonitor) Latest() (Sample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.count == 0 {
		return Sample{}, false
	}
	if m.count < len(m.samples) {
		return m.samples[m.count-1], true
	}
	idx := (m.startIdx - 1 + len(m.samples)) % len(m.samples)
	return m.samples[idx], true
}

// History returns the retained samples in chronological order.
func (m *SelfMonitor) History() []Sample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Sample, m.count)
	if m.count < len(m.samples) {
		copy(out, m.samples[:m.count])
		return out
	}
	n := copy(out, m.samples[m.startIdx:])
	copy(out[n:], m.samples[:m.startIdx])
	return out
}
