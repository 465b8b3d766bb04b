package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	polls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pollenwall",
			Subsystem: "engine",
			Name:      "polls_total",
			Help:      "Number of completed poll cycles.",
		},
	)
	pollFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pollenwall",
			Subsystem: "engine",
			Name:      "poll_failures_total",
			Help:      "Number of poll cycles skipped due to feed errors.",
		},
	)
	discovered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pollenwall",
			Subsystem: "engine",
			Name:      "pollens_discovered_total",
			Help:      "Number of pollens seen for the first time.",
		},
	)
	downloads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pollenwall",
			Subsystem: "engine",
			Name:      "downloads_total",
			Help:      "Number of artifact downloads that reached the cache.",
		},
	)
	downloadFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pollenwall",
			Subsystem: "engine",
			Name:      "download_failures_total",
			Help:      "Number of artifact downloads that failed.",
		},
	)
	applies = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pollenwall",
			Subsystem: "engine",
			Name:      "applies_total",
			Help:      "Number of successful wallpaper applications.",
		},
	)
	applyFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pollenwall",
			Subsystem: "engine",
			Name:      "apply_failures_total",
			Help:      "Number of failed wallpaper applications.",
		},
	)
	tracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pollenwall",
			Subsystem: "engine",
			Name:      "tracked_pollens",
			Help:      "Pollens currently held by the tracker.",
		},
	)
	processing = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pollenwall",
			Subsystem: "engine",
			Name:      "processing_pollens",
			Help:      "Tracked pollens still processing.",
		},
	)
	artifactBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pollenwall",
			Subsystem: "cache",
			Name:      "artifact_bytes",
			Help:      "Size distribution of downloaded artifacts.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{
		polls, pollFailures, discovered, downloads, downloadFailures,
		applies, applyFailures, tracked, processing, artifactBytes,
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by the engine to record metrics.
// They no-op if Register hasn't been called.

func IncPoll() {
	if regOK.Load() {
		polls.Inc()
	}
}
func IncPollFailure() {
	if regOK.Load() {
		pollFailures.Inc()
	}
}
func AddDiscovered(n int) {
	if regOK.Load() && n > 0 {
		discovered.Add(float64(n))
	}
}
func IncDownload() {
	if regOK.Load() {
		downloads.Inc()
	}
}
func IncDownloadFailure() {
	if regOK.Load() {
		downloadFailures.Inc()
	}
}
func IncApply() {
	if regOK.Load() {
		applies.Inc()
	}
}
func IncApplyFailure() {
	if regOK.Load() {
		applyFailures.Inc()
	}
}
func SetTracked(n int) {
	if regOK.Load() {
		tracked.Set(float64(n))
	}
}
func SetProcessing(n int) {
	if regOK.Load() {
		processing.Set(float64(n))
	}
}
func ObserveArtifactBytes(n int) {
	if regOK.Load() {
		artifactBytes.Observe(float64(n))
	}
}
