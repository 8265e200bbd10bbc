package config

import (
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "[test] ", log.LstdFlags)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")

	loader, err := Load(path, testLogger())
	if err != nil {
		t.Fatalf("expected defaults for missing file, got error: %v", err)
	}

	cfg := loader.Current()
	if cfg.Sync.IntervalMinutes != 5 {
		t.Errorf("expected default interval 5, got %d", cfg.Sync.IntervalMinutes)
	}
	if cfg.SyncInterval() != 5*time.Minute {
		t.Errorf("expected 5m interval, got %v", cfg.SyncInterval())
	}
	if cfg.Dashboard.Port != 8970 {
		t.Errorf("expected default dashboard port 8970, got %d", cfg.Dashboard.Port)
	}
	if !cfg.Dashboard.Enabled {
		t.Error("expected dashboard enabled by default")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: https://ventes.example.com/api
  token: secret123
boutique_id: 7
vendeur_id: 3
store:
  path: /tmp/test-gvsync.db
sync:
  interval_minutes: 2
  request_timeout_seconds: 30
dashboard:
  enabled: false
`)

	loader, err := Load(path, testLogger())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	cfg := loader.Current()
	if cfg.API.BaseURL != "https://ventes.example.com/api" {
		t.Errorf("unexpected base_url %q", cfg.API.BaseURL)
	}
	if cfg.API.Token != "secret123" {
		t.Errorf("unexpected token %q", cfg.API.Token)
	}
	if cfg.BoutiqueID != 7 || cfg.VendeurID != 3 {
		t.Errorf("unexpected ids: boutique=%d vendeur=%d", cfg.BoutiqueID, cfg.VendeurID)
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.RequestTimeout())
	}
	if cfg.Dashboard.Enabled {
		t.Error("expected dashboard disabled")
	}
	// Unspecified keys keep their defaults.
	if cfg.Netmon.IntervalSeconds != 30 {
		t.Errorf("expected default netmon interval, got %d", cfg.Netmon.IntervalSeconds)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := writeConfig(t, `
sync:
  interval_minutes: 0
`)

	if _, err := Load(path, testLogger()); err == nil {
		t.Error("expected error for non-positive sync interval")
	}
}

func TestWatchReloadsOnChange(t *testing.T) {
	path := writeConfig(t, `
sync:
  interval_minutes: 5
`)

	loader, err := Load(path, testLogger())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	changed := make(chan *Config, 1)
	loader.Watch(func(cfg *Config) {
		select {
		case changed <- cfg:
		default:
		}
	})

	// Give the watcher a moment to attach before rewriting.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("sync:\n  interval_minutes: 1\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}

	select {
	case cfg := <-changed:
		if cfg.Sync.IntervalMinutes != 1 {
			t.Errorf("expected reloaded interval 1, got %d", cfg.Sync.IntervalMinutes)
		}
		if loader.Current().Sync.IntervalMinutes != 1 {
			t.Error("expected Current to reflect the reload")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestWatchIgnoresInvalidEdit(t *testing.T) {
	path := writeConfig(t, `
sync:
  interval_minutes: 5
`)

	loader, err := Load(path, testLogger())
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	loader.Watch(nil)
	time.Sleep(100 * time.Millisecond)

	// An edit that fails validation must leave the active config alone.
	if err := os.WriteFile(path, []byte("sync:\n  interval_minutes: -3\n"), 0644); err != nil {
		t.Fatalf("failed to rewrite config: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	if got := loader.Current().Sync.IntervalMinutes; got != 5 {
		t.Errorf("expected previous config retained, got interval %d", got)
	}
}
