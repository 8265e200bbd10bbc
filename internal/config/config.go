// Package config loads daemon configuration from a YAML file, the
// environment, and flags, in that order of increasing precedence.
package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the resolved daemon configuration.
type Config struct {
	API struct {
		// BaseURL of the gestion-ventes backend.
		BaseURL string `mapstructure:"base_url"`
		// Token is the bearer token used for authenticated calls.
		Token string `mapstructure:"token"`
	} `mapstructure:"api"`

	BoutiqueID int64 `mapstructure:"boutique_id"`
	VendeurID  int64 `mapstructure:"vendeur_id"`

	Store struct {
		// Path of the local SQLite database.
		Path string `mapstructure:"path"`
	} `mapstructure:"store"`

	Sync struct {
		// IntervalMinutes between automatic sync passes.
		IntervalMinutes int `mapstructure:"interval_minutes"`
		// RequestTimeoutSeconds bounds each remote call.
		RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
	} `mapstructure:"sync"`

	Netmon struct {
		// IntervalSeconds between reachability probes.
		IntervalSeconds int `mapstructure:"interval_seconds"`
	} `mapstructure:"netmon"`

	Dashboard struct {
		// Enabled starts the WebSocket dashboard in the daemon.
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port"`
	} `mapstructure:"dashboard"`

	Log struct {
		// File to write daemon logs to. Empty means stderr only.
		File string `mapstructure:"file"`
		// MaxSizeMB before the log file is rotated.
		MaxSizeMB int `mapstructure:"max_size_mb"`
	} `mapstructure:"log"`
}

// SyncInterval returns the auto-sync interval as a duration.
func (c *Config) SyncInterval() time.Duration {
	return time.Duration(c.Sync.IntervalMinutes) * time.Minute
}

// RequestTimeout returns the per-request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Sync.RequestTimeoutSeconds) * time.Second
}

// ProbeInterval returns the connectivity probe interval as a duration.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Netmon.IntervalSeconds) * time.Second
}

// DefaultPath returns the default config file location
// (~/.gestion-ventes/config.yaml).
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".gestion-ventes", "config.yaml")
}

// DefaultStorePath returns the default database location.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "gestion-ventes.db"
	}
	return filepath.Join(home, ".gestion-ventes", "gestion-ventes.db")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8000/api")
	v.SetDefault("api.token", "")
	v.SetDefault("boutique_id", 0)
	v.SetDefault("vendeur_id", 0)
	v.SetDefault("store.path", DefaultStorePath())
	v.SetDefault("sync.interval_minutes", 5)
	v.SetDefault("sync.request_timeout_seconds", 15)
	v.SetDefault("netmon.interval_seconds", 30)
	v.SetDefault("dashboard.enabled", true)
	v.SetDefault("dashboard.port", 8970)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
}

// Loader owns a viper instance and supports hot reload of the file it
// loaded from.
type Loader struct {
	v      *viper.Viper
	logger *log.Logger

	mu      sync.RWMutex
	current *Config
}

// Load reads configuration from path. A missing file is not an error;
// defaults and GVSYNC_* environment variables still apply.
func Load(path string, logger *log.Logger) (*Loader, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[config] ", log.LstdFlags)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GVSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
			logger.Printf("No config file at %s, using defaults", path)
		}
	}

	l := &Loader{v: v, logger: logger}
	cfg, err := l.decode()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Sync.IntervalMinutes <= 0 {
		return fmt.Errorf("sync.interval_minutes must be positive, got %d", c.Sync.IntervalMinutes)
	}
	if c.Sync.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("sync.request_timeout_seconds must be positive, got %d", c.Sync.RequestTimeoutSeconds)
	}
	if c.Netmon.IntervalSeconds <= 0 {
		return fmt.Errorf("netmon.interval_seconds must be positive, got %d", c.Netmon.IntervalSeconds)
	}
	return nil
}

// Current returns the most recently loaded configuration.
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// Watch re-reads the config file whenever it changes on disk and calls
// onChange with the new configuration. Invalid edits are logged and
// skipped; the previous configuration stays active.
func (l *Loader) Watch(onChange func(*Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := l.decode()
		if err != nil {
			l.logger.Printf("Ignoring config change from %s: %v", e.Name, err)
			return
		}

		l.mu.Lock()
		l.current = cfg
		l.mu.Unlock()

		l.logger.Printf("Config reloaded from %s", e.Name)
		if onChange != nil {
			onChange(cfg)
		}
	})
	l.v.WatchConfig()
}
