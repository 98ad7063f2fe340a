// Package config loads and validates the relay configuration.
//
// The defaults/libraries sections are intentionally schemaless maps: PMM
// users hand-edit these and a typo must never stop the relay. Known keys
// with the wrong type produce warnings and fall back to defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tssgery/pmm-dizquetv/internal/safeurl"
)

// DefaultPath is used when neither -config nor PMM_DIZQUETV_CONFIG is set.
const DefaultPath = "/config/config.yml"

// Settings is one raw defaults/collection block from the YAML file.
// Merging and type coercion happen in the policy package.
type Settings map[string]any

type PlexConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type DiscordConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Avatar   string `yaml:"avatar"`
}

type DizqueTVConfig struct {
	URL     string        `yaml:"url"`
	Debug   bool          `yaml:"debug"`
	Discord DiscordConfig `yaml:"discord"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`         // listen address, default ":8000"
	JournalPath string `yaml:"journal_path"` // sqlite outcome journal; "" = disabled
	Workers     int    `yaml:"workers"`      // background sync workers, default 2
	QueueSize   int    `yaml:"queue_size"`   // pending event queue, default 64
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Stdout     bool   `yaml:"stdout"`
}

type Config struct {
	Plex      PlexConfig                     `yaml:"plex"`
	DizqueTV  DizqueTVConfig                 `yaml:"dizquetv"`
	Server    ServerConfig                   `yaml:"server"`
	Log       LogConfig                      `yaml:"log"`
	Defaults  map[string]Settings            `yaml:"defaults"`
	Libraries map[string]map[string]Settings `yaml:"libraries"`
}

// Path returns the config file location: PMM_DIZQUETV_CONFIG or DefaultPath.
func Path() string {
	if p := os.Getenv("PMM_DIZQUETV_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads and parses the YAML config at path. Schema violations in the
// defaults/libraries sections are returned as warnings; only an unreadable
// or unparsable file, or missing plex/dizquetv endpoints, is an error.
func Load(path string) (*Config, []string, error) {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if c.Plex.URL == "" {
		return nil, nil, fmt.Errorf("config %s: plex.url is required", path)
	}
	if !safeurl.IsHTTPOrHTTPS(c.Plex.URL) {
		return nil, nil, fmt.Errorf("config %s: plex.url must be an http(s) URL", path)
	}
	if c.Plex.Token == "" {
		return nil, nil, fmt.Errorf("config %s: plex.token is required", path)
	}
	if c.DizqueTV.URL == "" {
		return nil, nil, fmt.Errorf("config %s: dizquetv.url is required", path)
	}
	if !safeurl.IsHTTPOrHTTPS(c.DizqueTV.URL) {
		return nil, nil, fmt.Errorf("config %s: dizquetv.url must be an http(s) URL", path)
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8000"
	}
	if c.Server.Workers <= 0 {
		c.Server.Workers = 2
	}
	if c.Server.QueueSize <= 0 {
		c.Server.QueueSize = 64
	}
	return &c, Validate(&c), nil
}

// knownKeys maps a settings key to its expected YAML type. channel_name and
// ignore are only meaningful per-collection but tolerated in defaults.
var knownKeys = map[string]string{
	"pad":            "int",
	"fillers":        "list",
	"channel_group":  "string",
	"minimum_days":   "int",
	"channel_name":   "string",
	"random":         "bool",
	"ignore":         "bool",
	"dizquetv_start": "int",
}

// Validate checks the defaults/libraries blocks against the known keys and
// returns human-readable warnings. It never fails: a malformed section is
// advisory only and processing continues with best-effort merged values.
func Validate(c *Config) []string {
	var warns []string
	for lib, s := range c.Defaults {
		warns = append(warns, validateSettings(s, fmt.Sprintf("defaults for %q", lib))...)
	}
	for lib, colls := range c.Libraries {
		for coll, s := range colls {
			warns = append(warns, validateSettings(s, fmt.Sprintf("settings for %q in library %q", coll, lib))...)
		}
	}
	return warns
}

func validateSettings(s Settings, where string) []string {
	var warns []string
	for k, v := range s {
		want, ok := knownKeys[k]
		if !ok {
			warns = append(warns, fmt.Sprintf("%s: unknown key %q", where, k))
			continue
		}
		if !typeMatches(want, v) {
			warns = append(warns, fmt.Sprintf("%s: key %q should be a %s, got %T", where, k, want, v))
		}
	}
	return warns
}

func typeMatches(want string, v any) bool {
	switch want {
	case "int":
		_, ok := v.(int)
		return ok
	case "bool":
		_, ok := v.(bool)
		return ok
	case "string":
		_, ok := v.(string)
		return ok
	case "list":
		_, ok := v.([]any)
		return ok
	}
	return false
}
