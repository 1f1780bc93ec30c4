package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ScheduleConfig describes where the conference program document comes from.
type ScheduleConfig struct {
	// Source is either an http(s) URL or a local file path.
	Source string `yaml:"source" json:"source"`
	// CacheDir holds the last successfully fetched body for remote sources.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
	// Refresh is a cron-style schedule string (e.g. "*/15 * * * *").
	// An empty string disables periodic refresh.
	Refresh string `yaml:"refresh" json:"refresh"`
	// Watch reloads a local Source whenever the file changes.
	Watch bool `yaml:"watch" json:"watch"`
}

// SessionConfig controls the login session cookie.
type SessionConfig struct {
	Secret     string        `yaml:"secret" json:"-"`
	TTL        time.Duration `yaml:"ttl" json:"ttl"`
	CookieName string        `yaml:"cookie_name" json:"cookie_name"`
}

// FilterConfig holds the day-scoped time slots offered for filtering.
type FilterConfig struct {
	// TimeSlots maps a day date (YYYY-MM-DD) to its slot labels, in display order.
	TimeSlots map[string][]string `yaml:"time_slots" json:"time_slots"`
	// ExactMatchDays lists dates whose closed slots match only sessions
	// with identical start and end.
	ExactMatchDays []string `yaml:"exact_match_days" json:"exact_match_days"`
}

// TypeConfig names the session types whose presentations are bookmarked individually.
type TypeConfig struct {
	Talk   []string `yaml:"talk" json:"talk"`
	Poster []string `yaml:"poster" json:"poster"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// LogLevel is one of DEBUG, INFO, ERROR.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// Timezone is the IANA timezone the program times are expressed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Locale drives collation of the person index (BCP 47 tag).
	Locale string `yaml:"locale" json:"locale"`

	// DatabasePath is the SQLite file holding accounts and saved programs.
	DatabasePath string `yaml:"database_path" json:"database_path"`

	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`
	Session  SessionConfig  `yaml:"session" json:"session"`
	Filters  FilterConfig   `yaml:"filters" json:"filters"`
	Types    TypeConfig     `yaml:"types" json:"types"`
}

// DefaultTimeSlots are the DHD 2026 filter slots.
func DefaultTimeSlots() map[string][]string {
	return map[string][]string{
		"2026-02-24": {"9:00–12:30", "9:00–17:30", "14:00–17:30", "ab 18:00"},
		"2026-02-25": {"9:00–10:30", "11:00–12:30", "12:30–14:00", "14:00–15:30", "16:00–18:00"},
		"2026-02-26": {"9:00–10:30", "11:00–12:30", "12:30–14:00", "14:00–15:30", "16:00–17:30", "ab 18:00"},
		"2026-02-27": {"9:00–10:30", "11:00–12:30", "ab 14:00"},
	}
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:8080",
		LogLevel:     "INFO",
		Timezone:     "Europe/Berlin",
		Locale:       "de",
		DatabasePath: "./var/conference.db",
		Schedule: ScheduleConfig{
			Source:   "./static/dhd2026_programm.json",
			CacheDir: "./var/program-cache",
			Refresh:  "*/15 * * * *",
			Watch:    true,
		},
		Session: SessionConfig{
			TTL:        30 * 24 * time.Hour,
			CookieName: "confprog_session",
		},
		Filters: FilterConfig{
			TimeSlots: DefaultTimeSlots(),
			// Workshop day slots overlap by construction, so only exact slots count.
			ExactMatchDays: []string{"2026-02-24"},
		},
		Types: TypeConfig{
			Talk:   []string{"Vortragssession", "Doctoral Consortium"},
			Poster: []string{"Poster Session"},
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Locale == "" {
		c.Locale = def.Locale
	}
	if c.DatabasePath == "" {
		c.DatabasePath = def.DatabasePath
	}
	if c.Schedule.Source == "" {
		c.Schedule.Source = def.Schedule.Source
	}
	if c.Schedule.CacheDir == "" {
		c.Schedule.CacheDir = def.Schedule.CacheDir
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = def.Session.TTL
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = def.Session.CookieName
	}
	if c.Filters.TimeSlots == nil {
		c.Filters.TimeSlots = map[string][]string{}
	}
	if c.Filters.ExactMatchDays == nil {
		c.Filters.ExactMatchDays = []string{}
	}
	if len(c.Types.Talk) == 0 && len(c.Types.Poster) == 0 {
		c.Types = def.Types
	}
}

// ApplyEnv overrides secrets from the environment.
func (c *Config) ApplyEnv() {
	if s := os.Getenv("CONFPROG_SESSION_SECRET"); s != "" {
		c.Session.Secret = s
	}
	if s := os.Getenv("CONFPROG_SCHEDULE_SOURCE"); s != "" {
		c.Schedule.Source = s
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
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

// Save writes the given configuration to the specified path atomically
// (temp file + rename) with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, ".confprog-config-*.tmp")
}

// WriteFileAtomic writes data next to path and renames it into place.
// The parent directory is created with 0700 if missing.
func WriteFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
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

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
