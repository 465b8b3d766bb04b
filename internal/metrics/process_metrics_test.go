package metrics

import (
	"context"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewSelfMonitorDefaults(t *testing.T) {
	m, err := NewSelfMonitor(0)
	if err != nil {
		t.Fatalf("NewSelfMonitor: %v", err)
	}
	if m.interval != DefaultSelfInterval {
		t.Fatalf("interval = %v, want %v", m.interval, DefaultSelfInterval)
	}
	if m.proc.Pid != int32(os.Getpid()) {
		t.Fatalf("monitoring pid %d, want %d", m.proc.Pid, os.Getpid())
	}
	if _, ok := m.Latest(); ok {
		t.Fatal("fresh monitor should have no samples")
	}
}

func TestSampleExportsGauges(t *testing.T) {
	m, err := NewSelfMonitor(time.Second)
	if err != nil {
		t.Fatalf("NewSelfMonitor: %v", err)
	}
	reg := prometheus.NewRegistry()
	if err := m.RegisterMetrics(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.RegisterMetrics(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	now := time.Now()
	m.sample(now)

	s, ok := m.Latest()
	if !ok {
		t.Fatal("expected a sample")
	}
	if s.PID != int32(os.Getpid()) {
		t.Fatalf("sample pid = %d, want %d", s.PID, os.Getpid())
	}
	if s.Goroutines <= 0 {
		t.Fatalf("goroutines = %d, want > 0", s.Goroutines)
	}
	if !s.TakenAt.Equal(now) {
		t.Fatalf("taken_at = %v, want %v", s.TakenAt, now)
	}
	if runtime.GOOS == "linux" && s.MemoryRSS == 0 {
		t.Fatal("expected nonzero RSS on linux")
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"pollenwall_process_cpu_percent":      false,
		"pollenwall_process_memory_rss_bytes": false,
		"pollenwall_process_num_threads":      false,
		"pollenwall_process_goroutines":       false,
	}
	for _, mf := range mfs {
		if _, ok := wantNames[mf.GetName()]; ok {
			wantNames[mf.GetName()] = true
		}
	}
	for n, found := range wantNames {
		if !found {
			t.Fatalf("expected to find gauge %s", n)
		}
	}
}

func TestHistoryIsChronologicalAndBounded(t *testing.T) {
	m, err := NewSelfMonitor(time.Second)
	if err != nil {
		t.Fatalf("NewSelfMonitor: %v", err)
	}

	total := selfHistorySize + 5
	base := time.Now()
	for i := 0; i < total; i++ {
		m.record(Sample{NumThreads: int32(i), TakenAt: base.Add(time.Duration(i) * time.Second)})
	}

	hist := m.History()
	if len(hist) != selfHistorySize {
		t.Fatalf("history length = %d, want %d", len(hist), selfHistorySize)
	}
	if got, want := hist[0].NumThreads, int32(5); got != want {
		t.Fatalf("oldest retained sample = %d, want %d", got, want)
	}
	if got, want := hist[len(hist)-1].NumThreads, int32(total-1); got != want {
		t.Fatalf("newest retained sample = %d, want %d", got, want)
	}
	for i := 1; i < len(hist); i++ {
		if hist[i].TakenAt.Before(hist[i-1].TakenAt) {
			t.Fatalf("history out of order at %d", i)
		}
	}

	latest, ok := m.Latest()
	if !ok || latest.NumThreads != int32(total-1) {
		t.Fatalf("latest = %+v, ok=%v", latest, ok)
	}
}

func TestStartStopCollects(t *testing.T) {
	m, err := NewSelfMonitor(10 * time.Millisecond)
	if err != nil {
		t.Fatalf("NewSelfMonitor: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := m.Latest(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no sample collected before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
	m.Stop()
	m.Stop() // safe to call twice
}
