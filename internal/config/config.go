package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. TABSESSION_DATA_DIR.
const EnvPrefix = "tabsession"

// Config holds all configurable tabsession settings.
type Config struct {
	DataDir        string   `json:"data_dir"`   // where the session files live
	SaveDelay      Duration `json:"save_delay"` // e.g. "2.5s"
	LogLevel       string   `json:"log_level"`
	LogDevelopment bool     `json:"log_development"`
	DefaultFormat  string   `json:"default_format"` // "text" | "json" | "markdown"
}

// Duration is a time.Duration written as a Go duration string in JSON.
type Duration time.Duration

// UnmarshalJSON accepts "2.5s" style strings and plain milliseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		return d.Decode(s)
	}
	var ms int64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("duration must be a string or milliseconds: %s", b)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Decode parses a Go duration string such as "2.5s".
func (d *Duration) Decode(value string) error {
	v, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		DataDir:       defaultDataDir(),
		SaveDelay:     Duration(2500 * time.Millisecond),
		LogLevel:      "info",
		DefaultFormat: "text",
	}
}

// defaultDataDir is $XDG_DATA_HOME/tabsession or ~/.local/share/tabsession.
func defaultDataDir() string {
	if base := os.Getenv("XDG_DATA_HOME"); base != "" {
		return filepath.Join(base, "tabsession")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "tabsession"
	}
	return filepath.Join(home, ".local", "share", "tabsession")
}

// LoadGlobal reads ~/.config/tabsession/config.json.
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	path := filepath.Join(home, ".config", "tabsession", "config.json")
	return loadFile(path, true)
}

// LoadProject reads .tabsession in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return loadFile(".tabsession", false)
}

// loadFile reads and parses a JSON config file at path.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func loadFile(path string, returnDefaults bool) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if returnDefaults {
				d := Defaults()
				return &d, nil
			}
			return nil, nil
		}
		return nil, err
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	result := Defaults()
	for _, c := range []*Config{global, project} {
		if c == nil {
			continue
		}
		if c.DataDir != "" {
			result.DataDir = c.DataDir
		}
		if c.SaveDelay > 0 {
			result.SaveDelay = c.SaveDelay
		}
		if c.LogLevel != "" {
			result.LogLevel = c.LogLevel
		}
		if c.LogDevelopment {
			result.LogDevelopment = true
		}
		if c.DefaultFormat != "" {
			result.DefaultFormat = c.DefaultFormat
		}
	}
	return result
}

// envOverrides mirrors Config for TABSESSION_* variables. Unset variables
// leave the field zero (or nil) so they do not override anything.
type envOverrides struct {
	DataDir   string        `envconfig:"DATA_DIR"`
	SaveDelay time.Duration `envconfig:"SAVE_DELAY"`
	LogLevel  string        `envconfig:"LOG_LEVEL"`
	LogDev    *bool         `envconfig:"LOG_DEV"`
	Format    string        `envconfig:"FORMAT"`
}

// ApplyEnv overrides cfg with any TABSESSION_* environment variables.
func ApplyEnv(cfg Config) (Config, error) {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return cfg, fmt.Errorf("reading environment: %w", err)
	}
	if env.DataDir != "" {
		cfg.DataDir = env.DataDir
	}
	if env.SaveDelay > 0 {
		cfg.SaveDelay = Duration(env.SaveDelay)
	}
	if env.LogLevel != "" {
		cfg.LogLevel = env.LogLevel
	}
	if env.LogDev != nil {
		cfg.LogDevelopment = *env.LogDev
	}
	if env.Format != "" {
		cfg.DefaultFormat = env.Format
	}
	return cfg, nil
}

// Load merges the global file, the project file and the environment.
func Load() (Config, error) {
	global, err := LoadGlobal()
	if err != nil {
		return Config{}, fmt.Errorf("loading global config: %w", err)
	}
	project, err := LoadProject()
	if err != nil {
		return Config{}, fmt.Errorf("loading project config: %w", err)
	}
	return ApplyEnv(Merge(global, project))
}

// ParseError is returned when a config file exists but cannot be parsed.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return "failed to parse config file " + e.Path + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
