package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configurable tutor settings.
type Config struct {
	ServerURL       string   `json:"server_url" yaml:"server_url"`
	Voice           string   `json:"voice" yaml:"voice"`
	RecordCommand   []string `json:"record_command" yaml:"record_command"` // empty means arecord
	PlayCommand     []string `json:"play_command" yaml:"play_command"`     // empty means ffplay
	StatusHideDelay string   `json:"status_hide_delay" yaml:"status_hide_delay"`
	RequestTimeout  string   `json:"request_timeout" yaml:"request_timeout"`
	LogLevel        string   `json:"log_level" yaml:"log_level"`
	DefaultFormat   string   `json:"default_format" yaml:"default_format"` // "markdown" | "json"
	ExportDir       string   `json:"export_dir" yaml:"export_dir"`
}

// Defaults returns sensible default configuration values.
func Defaults() Config {
	return Config{
		ServerURL:       "http://localhost:5000",
		Voice:           "elli",
		StatusHideDelay: "3s",
		RequestTimeout:  "2m",
		LogLevel:        "info",
		DefaultFormat:   "markdown",
		ExportDir:       ".",
	}
}

// HideDelay parses StatusHideDelay, falling back to the default.
func (c Config) HideDelay() time.Duration {
	return parseDuration(c.StatusHideDelay, 3*time.Second)
}

// Timeout parses RequestTimeout, falling back to the default.
func (c Config) Timeout() time.Duration {
	return parseDuration(c.RequestTimeout, 2*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// Validate reports settings that cannot be used.
func (c Config) Validate() error {
	if c.StatusHideDelay != "" {
		if _, err := time.ParseDuration(c.StatusHideDelay); err != nil {
			return fmt.Errorf("status_hide_delay: %w", err)
		}
	}
	if c.RequestTimeout != "" {
		if _, err := time.ParseDuration(c.RequestTimeout); err != nil {
			return fmt.Errorf("request_timeout: %w", err)
		}
	}
	if c.DefaultFormat != "" && c.DefaultFormat != "markdown" && c.DefaultFormat != "json" {
		return fmt.Errorf("default_format: unknown format %q", c.DefaultFormat)
	}
	return nil
}

// Dir returns the tutor config directory, ~/.config/tutor.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "tutor"), nil
}

// GlobalPath returns the global config file in use. config.json wins over
// config.yaml when both exist; config.json is returned when neither does.
func GlobalPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	jsonPath := filepath.Join(dir, "config.json")
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, nil
	}
	for _, name := range []string{"config.yaml", "config.yml"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return jsonPath, nil
}

// LoadGlobal reads ~/.config/tutor/config.json (or config.yaml).
// Returns defaults if the file is absent.
func LoadGlobal() (*Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path, true)
}

// LoadProject reads .tutorconfig in the current working directory.
// Returns nil (no error) if the file is absent.
func LoadProject() (*Config, error) {
	return LoadFile(".tutorconfig", false)
}

// LoadFile reads and parses a config file at path. Files ending in .yaml or
// .yml are decoded as YAML, everything else as JSON.
// If returnDefaults is true, returns defaults when the file is absent.
// If returnDefaults is false, returns nil when the file is absent.
func LoadFile(path string, returnDefaults bool) (*Config, error) {
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
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &cfg, nil
}

// Load layers the global file, then the project file, over base and the
// defaults. base carries profile values and may be nil.
func Load(base *Config) (Config, error) {
	path, err := GlobalPath()
	if err != nil {
		return Config{}, err
	}
	global, err := LoadFile(path, false)
	if err != nil {
		return Config{}, err
	}
	return LoadOver(base, global)
}

// LoadOver is Load with an already decoded global file. global may be nil.
func LoadOver(base, global *Config) (Config, error) {
	project, err := LoadProject()
	if err != nil {
		return Config{}, err
	}
	merged := Layer(base, global, project)
	if err := merged.Validate(); err != nil {
		return Config{}, err
	}
	return merged, nil
}

// Merge combines global and project configs, with project taking precedence.
// Missing keys fall back to global, then defaults.
func Merge(global, project *Config) Config {
	return Layer(global, project)
}

// Layer applies each non-nil layer over the defaults in order, so later
// layers win.
func Layer(layers ...*Config) Config {
	result := Defaults()
	for _, l := range layers {
		apply(&result, l)
	}
	return result
}

// apply copies every set field of src over dst.
func apply(dst, src *Config) {
	if src == nil {
		return
	}
	setString(&dst.ServerURL, src.ServerURL)
	setString(&dst.Voice, src.Voice)
	setString(&dst.StatusHideDelay, src.StatusHideDelay)
	setString(&dst.RequestTimeout, src.RequestTimeout)
	setString(&dst.LogLevel, src.LogLevel)
	setString(&dst.DefaultFormat, src.DefaultFormat)
	setString(&dst.ExportDir, src.ExportDir)
	if len(src.RecordCommand) > 0 {
		dst.RecordCommand = src.RecordCommand
	}
	if len(src.PlayCommand) > 0 {
		dst.PlayCommand = src.PlayCommand
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
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
