package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFirstRunWritesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RefreshCron != "*/5 * * * *" {
		t.Errorf("RefreshCron = %q", cfg.RefreshCron)
	}
	if cfg.GraceDays != 7 || cfg.LookaheadDays != 60 || cfg.RetentionDays != 180 {
		t.Errorf("window defaults = %d/%d/%d", cfg.GraceDays, cfg.LookaheadDays, cfg.RetentionDays)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("config mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	in := DefaultConfig()
	in.Listen = "127.0.0.1:8080"
	in.Timezone = "Europe/Berlin"
	in.Calendars = []CalendarConfig{
		{ID: "cal-work", Label: "Work", URL: "https://example.com/work.ics"},
	}
	in.BasicAuth = &BasicAuthConfig{Username: "admin", Password: "secret"}

	if err := in.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Listen != in.Listen || out.Timezone != in.Timezone {
		t.Errorf("round trip lost fields: %+v", out)
	}
	if len(out.Calendars) != 1 || out.Calendars[0].URL != "https://example.com/work.ics" {
		t.Errorf("calendars = %+v", out.Calendars)
	}
	if out.BasicAuth == nil || out.BasicAuth.Username != "admin" {
		t.Errorf("basic auth = %+v", out.BasicAuth)
	}
}

func TestLoadMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("listen: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load accepted malformed YAML")
	}
}

func TestNormalizeFillsZeroValues(t *testing.T) {
	cfg := &Config{GraceDays: -1}
	cfg.Normalize()

	if cfg.RefreshCron == "" {
		t.Error("RefreshCron left empty")
	}
	if cfg.GraceDays != 7 {
		t.Errorf("GraceDays = %d, want 7", cfg.GraceDays)
	}
	if cfg.Calendars == nil {
		t.Error("Calendars left nil")
	}
}

func TestSaveRejectsEmptyPath(t *testing.T) {
	if err := Save("", DefaultConfig()); err == nil {
		t.Error("Save accepted empty path")
	}
	if _, err := Load(""); err == nil {
		t.Error("Load accepted empty path")
	}
}
