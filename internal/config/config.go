package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/pollinations/pollenwall/internal/feed"
	"github.com/pollinations/pollenwall/internal/logger"
)

// DefaultAddress is the pollen gateway polled when none is configured.
const DefaultAddress = "https://ipfs.pollinations.ai"

// DirName is the volatile working directory created under the user's home.
// Everything inside it is disposable.
const DirName = ".pollenwall"

// Config is the top-level TOML structure. All fields have working defaults,
// so both the file and every key in it are optional.
type Config struct {
	Address      string        `toml:"address" mapstructure:"address"`
	PollInterval time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	StaleCycles  uint64        `toml:"stale_cycles" mapstructure:"stale_cycles"`
	CacheDir     string        `toml:"cache_dir" mapstructure:"cache_dir"`
	TrimCache    bool          `toml:"trim_cache" mapstructure:"trim_cache"`
	Log          LogConfig     `toml:"log" mapstructure:"log"`
	Metrics      MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	Server       ServerConfig  `toml:"server" mapstructure:"server"`
}

type LogConfig struct {
	Level      string `toml:"level" mapstructure:"level"`
	File       string `toml:"file" mapstructure:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
	// Process enables sampling of pollenwall's own CPU and memory usage.
	Process         bool          `toml:"process" mapstructure:"process"`
	ProcessInterval time.Duration `toml:"process_interval" mapstructure:"process_interval"`
}

type ServerConfig struct {
	Enabled  bool   `toml:"enabled" mapstructure:"enabled"`
	Listen   string `toml:"listen" mapstructure:"listen"`
	BasePath string `toml:"base_path" mapstructure:"base_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("address", DefaultAddress)
	v.SetDefault("poll_interval", 5*time.Second)
	v.SetDefault("stale_cycles", 12)
	v.SetDefault("trim_cache", true)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 7)
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9234")
	v.SetDefault("metrics.process", false)
	v.SetDefault("metrics.process_interval", 30*time.Second)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.listen", "127.0.0.1:7130")
	v.SetDefault("server.base_path", "/api")
}

// Load reads a TOML config file into a Config with defaults applied.
// An empty path yields the defaults.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the loaded values. A failure here is fatal at startup.
func (c *Config) Validate() error {
	if _, err := feed.NormalizeAddress(c.Address); err != nil {
		return fmt.Errorf("address: %w", err)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if c.StaleCycles < 1 {
		return errors.New("stale_cycles must be at least 1")
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			return fmt.Errorf("metrics.listen: %w", err)
		}
		if c.Metrics.Process && c.Metrics.ProcessInterval <= 0 {
			return fmt.Errorf("metrics.process_interval must be positive, got %s", c.Metrics.ProcessInterval)
		}
	}
	if c.Server.Enabled {
		if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
			return fmt.Errorf("server.listen: %w", err)
		}
		if !strings.HasPrefix(c.Server.BasePath, "/") {
			return fmt.Errorf("server.base_path must start with /, got %q", c.Server.BasePath)
		}
	}
	return nil
}

// LoggerConfig maps the [log] table onto the logger package's config,
// expanding ~ in the file path. Console color stays on; the logger drops it
// when a file is in play.
func (c *Config) LoggerConfig() (logger.Config, error) {
	file, err := ExpandHome(c.Log.File)
	if err != nil {
		return logger.Config{}, err
	}
	return logger.Config{
		Level:      c.Log.Level,
		Color:      true,
		File:       file,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
		Compress:   c.Log.Compress,
	}, nil
}

// ResolveHome returns the directory treated as the user's home. An explicit
// override wins over the OS account home.
func ResolveHome(override string) (string, error) {
	if override != "" {
		return override, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return home, nil
}

// ResolveCacheDir returns the artifact cache directory: an explicit cache_dir
// (with ~ expanded) when set, otherwise <home>/.pollenwall.
func (c *Config) ResolveCacheDir(home string) (string, error) {
	if c.CacheDir == "" {
		return filepath.Join(home, DirName), nil
	}
	return ExpandHome(c.CacheDir)
}

// ExpandHome rewrites a leading "~" to the current user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand ~: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
