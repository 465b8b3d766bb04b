// Package pollenwall turns AI image generations ("pollens") from a
// pollinations gateway into desktop wallpapers. This package is the
// embedding facade over the internal engine; the pollenwall command is a
// thin CLI over the same pieces.
package pollenwall

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pollinations/pollenwall/internal/cache"
	cfg "github.com/pollinations/pollenwall/internal/config"
	"github.com/pollinations/pollenwall/internal/engine"
	"github.com/pollinations/pollenwall/internal/feed"
	"github.com/pollinations/pollenwall/internal/metrics"
	"github.com/pollinations/pollenwall/internal/pollen"
	iapi "github.com/pollinations/pollenwall/internal/server"
	"github.com/pollinations/pollenwall/internal/service"
	"github.com/pollinations/pollenwall/internal/wallpaper"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Pollen = pollen.Pollen

type PollenStatus = pollen.Status

type Status = engine.Status

type Event = engine.Event

type EventType = engine.EventType

type Mode = engine.Mode

type Config = cfg.Config

type Applier = wallpaper.Applier

type ServiceOptions = service.Options

const (
	ModeDefault = engine.ModeDefault
	ModeAttach  = engine.ModeAttach

	EventDiscovered     = engine.EventDiscovered
	EventApplied        = engine.EventApplied
	EventAttachSelected = engine.EventAttachSelected
	EventAttachDone     = engine.EventAttachDone
)

// Options assembles an embedded engine. Address is the only required field;
// everything else has a working default.
type Options struct {
	// Address is the pollen gateway base URL.
	Address string
	// CacheDir overrides the default ~/.pollenwall artifact cache.
	CacheDir string
	// Interval between polls; zero selects the engine default.
	Interval time.Duration
	// StaleCycles before an absent pollen is pruned; zero selects the
	// tracker default.
	StaleCycles uint64
	// Attach follows a single pollen to completion. AttachTarget names it;
	// empty picks a random Processing pollen.
	Attach       bool
	AttachTarget string
	// TrimCache keeps only the applied artifact on disk.
	TrimCache bool
	// Applier overrides the platform wallpaper integration, for hosts that
	// render the artifact themselves.
	Applier Applier
	// OnEvent receives progress notifications. Must not block.
	OnEvent func(Event)
}

// Engine is a thin facade over the internal polling engine.
// It provides a stable public API for embedding.
type Engine struct {
	inner *engine.Engine
	store *cache.Store
}

// New builds an Engine from opts.
func New(opts Options) (*Engine, error) {
	f, err := feed.NewHTTP(opts.Address)
	if err != nil {
		return nil, err
	}
	dir := opts.CacheDir
	if dir == "" {
		home, err := cfg.ResolveHome("")
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(home, cfg.DirName)
	}
	applier := opts.Applier
	if applier == nil {
		applier, err = wallpaper.New()
		if err != nil {
			return nil, err
		}
	}
	store := cache.New(dir)
	inner, err := engine.New(engine.Config{
		Feed:         f,
		Cache:        store,
		Applier:      applier,
		Interval:     opts.Interval,
		StaleCycles:  opts.StaleCycles,
		Attach:       opts.Attach,
		AttachTarget: opts.AttachTarget,
		TrimCache:    opts.TrimCache,
		OnEvent:      opts.OnEvent,
	})
	if err != nil {
		return nil, err
	}
	return &Engine{inner: inner, store: store}, nil
}

// Run polls until ctx is cancelled or, in attach mode, the followed pollen
// completes.
func (e *Engine) Run(ctx context.Context) error { return e.inner.Run(ctx) }

// PollOnce performs a single poll cycle. It reports true once attach mode
// has finished.
func (e *Engine) PollOnce(ctx context.Context) (bool, error) { return e.inner.PollOnce(ctx) }

func (e *Engine) Mode() Mode                      { return e.inner.Mode() }
func (e *Engine) Status() Status                  { return e.inner.Status() }
func (e *Engine) Pollens() []Pollen               { return e.inner.Pollens() }
func (e *Engine) Pollen(id string) (Pollen, bool) { return e.inner.Pollen(id) }

// Close releases the cache handle. The engine must not be running.
func (e *Engine) Close() error { return e.store.Close() }

// LoadConfig reads the optional TOML config file; an empty path yields
// defaults.
func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

// CleanCache deletes every artifact under dir and returns how many were
// removed. A missing directory is not an error.
func CleanCache(dir string) (int, error) { return cache.New(dir).Clean() }

// PublicURL maps an artifact ref to a shareable public gateway URL.
func PublicURL(ref string) string { return feed.PublicURL(ref) }

// GenerateService renders a platform autostart descriptor.
func GenerateService(opts ServiceOptions) (string, error) { return service.Generate(opts) }

// NewHTTPServer starts the read-only status API for an embedded engine.
func NewHTTPServer(addr, basePath string, e *Engine) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, e.inner)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics serves /metrics from the default registry on addr. It blocks
// in the caller's goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
