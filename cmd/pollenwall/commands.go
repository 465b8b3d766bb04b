package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pollinations/pollenwall/internal/banner"
	"github.com/pollinations/pollenwall/internal/cache"
	"github.com/pollinations/pollenwall/internal/config"
	"github.com/pollinations/pollenwall/internal/engine"
	"github.com/pollinations/pollenwall/internal/feed"
	"github.com/pollinations/pollenwall/internal/metrics"
	"github.com/pollinations/pollenwall/internal/server"
	"github.com/pollinations/pollenwall/internal/service"
	"github.com/pollinations/pollenwall/internal/wallpaper"
)

// command implements the root command's operations.
type command struct {
	out    io.Writer
	errOut io.Writer
}

// loadConfig resolves the home directory, loads the optional TOML file and
// applies flag overrides. Validation failures surface here, before anything
// is started.
func loadConfig(flags *Flags) (config.Config, string, error) {
	home, err := config.ResolveHome(flags.Home)
	if err != nil {
		return config.Config{}, "", err
	}
	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return config.Config{}, "", fmt.Errorf("load config: %w", err)
	}
	if flags.Address != "" {
		cfg.Address = flags.Address
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, "", err
	}
	return cfg, home, nil
}

// Clean empties the artifact cache and reports how many files were removed.
func (c command) Clean(flags *Flags) error {
	cfg, home, err := loadConfig(flags)
	if err != nil {
		return err
	}
	dir, err := cfg.ResolveCacheDir(home)
	if err != nil {
		return err
	}
	n, err := cache.New(dir).Clean()
	if err != nil {
		return fmt.Errorf("clean cache: %w", err)
	}
	banner.CleanResult(c.out, n)
	return nil
}

// GenerateService prints an autostart descriptor for the current platform
// to stdout. The flag value, when given, is embedded as extra arguments.
func (c command) GenerateService(flags *Flags) error {
	opts, err := service.DefaultOptions(strings.Fields(flags.GenerateService))
	if err != nil {
		return err
	}
	text, err := service.Generate(opts)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprint(c.out, text)
	if hint := service.InstallHint(opts.Platform); hint != "" {
		_, _ = fmt.Fprintln(c.errOut, hint)
	}
	return nil
}

// Run starts the polling engine and blocks until it finishes or a signal
// arrives. attachSet reports whether --attach appeared on the command line.
func (c command) Run(ctx context.Context, flags *Flags, attachSet bool) error {
	cfg, home, err := loadConfig(flags)
	if err != nil {
		return err
	}

	logCfg, err := cfg.LoggerConfig()
	if err != nil {
		return err
	}
	slog.SetDefault(logCfg.NewSlogger())

	dir, err := cfg.ResolveCacheDir(home)
	if err != nil {
		return err
	}
	_, statErr := os.Stat(dir)
	firstRun := os.IsNotExist(statErr)
	store := cache.New(dir)
	defer func() { _ = store.Close() }()
	// An unusable cache directory is a startup error, not a per-artifact one.
	if err := store.Ensure(); err != nil {
		return fmt.Errorf("prepare cache: %w", err)
	}
	if firstRun {
		banner.FirstRun(c.out, dir)
	}

	feedClient, err := feed.NewHTTP(cfg.Address)
	if err != nil {
		return err
	}
	applier, err := wallpaper.New()
	if err != nil {
		return err
	}

	target := ""
	if attachSet && flags.Attach != attachRandom {
		target = flags.Attach
	}

	eng, err := engine.New(engine.Config{
		Feed:         feedClient,
		Cache:        store,
		Applier:      applier,
		Interval:     cfg.PollInterval,
		StaleCycles:  cfg.StaleCycles,
		Attach:       attachSet,
		AttachTarget: target,
		TrimCache:    cfg.TrimCache,
		OnEvent:      func(ev engine.Event) { banner.Event(c.out, ev) },
	})
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			slog.Warn("metrics registration failed", "err", err)
		} else {
			msrv := serveMetrics(cfg.Metrics.Listen)
			defer func() { _ = msrv.Close() }()
			slog.Info("metrics listening", "addr", cfg.Metrics.Listen)
		}
		if cfg.Metrics.Process {
			mon, err := metrics.NewSelfMonitor(cfg.Metrics.ProcessInterval)
			switch {
			case err != nil:
				slog.Warn("process metrics unavailable", "err", err)
			default:
				if err := mon.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
					slog.Warn("process metrics registration failed", "err", err)
				} else {
					mon.Start(runCtx)
					defer mon.Stop()
				}
			}
		}
	}

	if cfg.Server.Enabled {
		srv, err := server.NewServer(cfg.Server.Listen, cfg.Server.BasePath, eng)
		if err != nil {
			return fmt.Errorf("start status server: %w", err)
		}
		defer func() { _ = srv.Close() }()
		slog.Info("status API listening", "addr", cfg.Server.Listen, "base", cfg.Server.BasePath)
	}

	banner.Startup(c.out, version, cfg.Address, eng.Mode(), cfg.PollInterval)

	if err := eng.Run(runCtx); err != nil {
		if errors.Is(err, context.Canceled) {
			slog.Info("shutting down")
			return nil
		}
		return err
	}
	return nil
}

// serveMetrics exposes the default Prometheus registry on its own listener.
func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", "err", err)
		}
	}()
	return srv
}
