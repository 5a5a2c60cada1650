package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// CalendarConfig describes one remote calendar subscription seeded into
// the planner at startup.
type CalendarConfig struct {
	// ID is the stable row identifier; generated when left empty.
	ID string `yaml:"id" json:"id"`
	// Label is the display name of the planner row.
	Label string `yaml:"label" json:"label"`
	// Color is cosmetic only.
	Color string `yaml:"color,omitempty" json:"color,omitempty"`
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the status API. Empty
	// disables the server.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used when bucketing events into
	// dates (e.g. "Europe/Berlin"). Empty means the process-local zone.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron schedules periodic calendar refreshes, cron syntax.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// GraceDays extends the fetch window that many days into the past.
	GraceDays int `yaml:"grace_days" json:"grace_days"`

	// LookaheadDays bounds recurrence expansion into the future.
	LookaheadDays int `yaml:"lookahead_days" json:"lookahead_days"`

	// RetentionDays bounds how far the latest template revision governs
	// when no later revision exists.
	RetentionDays int `yaml:"retention_days" json:"retention_days"`

	// StatePath is where the planner snapshot is persisted.
	StatePath string `yaml:"state_path" json:"state_path"`

	// Calendars are the subscribed remote feeds.
	Calendars []CalendarConfig `yaml:"calendars" json:"calendars"`

	// BasicAuth, if non-nil, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone:      "",
		RefreshCron:   "*/5 * * * *",
		GraceDays:     7,
		LookaheadDays: 60,
		RetentionDays: 180,
		StatePath:     "./planner-state.json",
		Calendars:     []CalendarConfig{},
	}
}

// Normalize fills missing/zero values with defaults so partially filled
// configs from older versions still behave.
func (c *Config) Normalize() {
	if c.RefreshCron == "" {
		c.RefreshCron = "*/5 * * * *"
	}
	if c.GraceDays <= 0 {
		c.GraceDays = 7
	}
	if c.LookaheadDays <= 0 {
		c.LookaheadDays = 60
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = 180
	}
	if c.StatePath == "" {
		c.StatePath = "./planner-state.json"
	}
	if c.Calendars == nil {
		c.Calendars = []CalendarConfig{}
	}
}

// Load loads configuration from the given YAML path. A missing file is
// first-run: a default config is written (0600) and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".uplanner-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method delegating to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
