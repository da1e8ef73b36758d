// Package config loads the kgexplorer TOML configuration shared by the
// server and the kgx CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dossier/kgexplorer/internal/source"
)

// Config holds kgexplorer configuration.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Backend BackendConfig `toml:"backend"`
	Neo4j   Neo4jConfig   `toml:"neo4j"`
	Cache   CacheConfig   `toml:"cache"`
	Session SessionConfig `toml:"session"`
	Log     LogConfig     `toml:"log"`
	UI      UIConfig      `toml:"ui"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port      int      `toml:"port"`
	RateLimit float64  `toml:"rate_limit"` // mutations per second
	Burst     int      `toml:"burst"`
	Origins   []string `toml:"cors_origins"`
}

// BackendConfig selects where graphs come from.
type BackendConfig struct {
	Kind      string   `toml:"kind"` // "http" or "neo4j"
	URL       string   `toml:"url"`
	Timeout   Duration `toml:"timeout"`
	RateLimit float64  `toml:"rate_limit"`
	Burst     int      `toml:"burst"`
}

// Neo4jConfig is used when the backend kind is neo4j.
type Neo4jConfig struct {
	URI      string `toml:"uri"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	Database string `toml:"database"`
}

// CacheConfig controls the SQLite response cache.
type CacheConfig struct {
	Enabled  bool     `toml:"enabled"`
	Path     string   `toml:"path"`
	MaxAge   Duration `toml:"max_age"`
	Parallel int      `toml:"parallel"`
}

// SessionConfig controls explorer sessions.
type SessionConfig struct {
	IdleTTL     Duration `toml:"idle_ttl"`
	MaxSessions int      `toml:"max_sessions"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// UIConfig controls terminal output.
type UIConfig struct {
	Color bool `toml:"color"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Port: 8080, RateLimit: 50, Burst: 100},
		Backend: BackendConfig{Kind: string(source.KindHTTP), URL: "http://localhost:8000", Timeout: Duration(60 * time.Second)},
		Neo4j:   Neo4jConfig{URI: "neo4j://localhost:7687", Database: "neo4j"},
		Cache:   CacheConfig{Enabled: true, Path: "./kgexplorer.db", MaxAge: Duration(7 * 24 * time.Hour), Parallel: 4},
		Session: SessionConfig{IdleTTL: Duration(30 * time.Minute), MaxSessions: 256},
		Log:     LogConfig{Level: "info"},
		UI:      UIConfig{Color: true},
	}
}

// ConfigDir returns the kgexplorer config directory path.
func ConfigDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "kgexplorer")
}

// Path returns the default config file path.
func Path() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// LoadFile reads path over the defaults. A missing file is not an error;
// a malformed one is.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to the default path.
func Save(cfg *Config) error {
	return SaveFile(Path(), cfg)
}

// SaveFile writes the config to path.
func SaveFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// EnsureExists creates the config file with defaults if it doesn't exist.
func EnsureExists() error {
	if _, err := os.Stat(Path()); err == nil {
		return nil
	}
	return Save(Default())
}

// ---------------------------------------------------------------------------
// Environment
// ---------------------------------------------------------------------------

// Env lists the KGX_* variables ApplyEnv reads.
var Env = []string{
	"KGX_PORT",
	"KGX_BACKEND_KIND",
	"KGX_BACKEND_URL",
	"KGX_NEO4J_URI",
	"KGX_NEO4J_USERNAME",
	"KGX_NEO4J_PASSWORD",
	"KGX_NEO4J_DATABASE",
	"KGX_CACHE_ENABLED",
	"KGX_CACHE_PATH",
	"KGX_SESSION_IDLE_TTL",
	"KGX_LOG_LEVEL",
}

// ApplyEnv overrides cfg with any KGX_* variables that are set.
func ApplyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("KGX_BACKEND_KIND", &cfg.Backend.Kind)
	str("KGX_BACKEND_URL", &cfg.Backend.URL)
	str("KGX_NEO4J_URI", &cfg.Neo4j.URI)
	str("KGX_NEO4J_USERNAME", &cfg.Neo4j.Username)
	str("KGX_NEO4J_PASSWORD", &cfg.Neo4j.Password)
	str("KGX_NEO4J_DATABASE", &cfg.Neo4j.Database)
	str("KGX_CACHE_PATH", &cfg.Cache.Path)
	str("KGX_LOG_LEVEL", &cfg.Log.Level)

	if v := os.Getenv("KGX_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: KGX_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("KGX_CACHE_ENABLED"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: KGX_CACHE_ENABLED %q: %w", v, err)
		}
		cfg.Cache.Enabled = on
	}
	if v := os.Getenv("KGX_SESSION_IDLE_TTL"); v != "" {
		var d Duration
		if err := d.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("config: KGX_SESSION_IDLE_TTL: %w", err)
		}
		cfg.Session.IdleTTL = d
	}
	return nil
}

// ---------------------------------------------------------------------------
// Derived settings
// ---------------------------------------------------------------------------

// Source returns the upstream source configuration.
func (c *Config) Source() source.Config {
	return source.Config{
		Kind:      source.Kind(c.Backend.Kind),
		BaseURL:   c.Backend.URL,
		Timeout:   c.Backend.Timeout.Std(),
		RateLimit: c.Backend.RateLimit,
		Burst:     c.Backend.Burst,
		URI:       c.Neo4j.URI,
		Username:  c.Neo4j.Username,
		Password:  c.Neo4j.Password,
		Database:  c.Neo4j.Database,
	}
}

// ---------------------------------------------------------------------------
// Duration
// ---------------------------------------------------------------------------

// Duration is a time.Duration written as "30m" or "168h" in TOML.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// String implements fmt.Stringer.
func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}
