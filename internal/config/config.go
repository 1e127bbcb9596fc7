// Package config loads the server configuration. Layers, lowest priority
// first: built-in defaults, TOML files, .env plus STELLAR_* environment
// variables, then explicit overrides (command-line flags).
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/samber/lo"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "STELLAR_"

// Sink names.
const (
	SinkBrowser = "browser"
	SinkMPD     = "mpd"
	SinkSpeaker = "speaker"
)

// Sinks lists the accepted sink names.
var Sinks = []string{SinkBrowser, SinkMPD, SinkSpeaker}

// Config is the server configuration.
type Config struct {
	Port             int      `koanf:"port"`
	StaticDir        string   `koanf:"static_dir"` // UI bundle; also serves library.json
	DataDir          string   `koanf:"data_dir"`   // shell cache database and upload spool
	PublicURL        string   `koanf:"public_url"` // base of minted media handles
	Debug            bool     `koanf:"debug"`
	LogFile          string   `koanf:"log_file"` // rotating JSON log, off when empty
	Sink             string   `koanf:"sink"`     // "browser", "mpd" or "speaker"
	MaxRemoteClients int      `koanf:"max_remote_clients"`
	WatchDirs        []string `koanf:"watch_dirs"`

	Manifest   ManifestConfig   `koanf:"manifest"`
	MPD        MPDConfig        `koanf:"mpd"`
	ShellCache ShellCacheConfig `koanf:"shell_cache"`
}

// ManifestConfig locates the remote album manifest.
type ManifestConfig struct {
	URL         string `koanf:"url"` // http(s):// or s3://bucket/key
	S3Endpoint  string `koanf:"s3_endpoint"`
	S3AccessKey string `koanf:"s3_access_key"`
	S3SecretKey string `koanf:"s3_secret_key"`
	S3UseSSL    bool   `koanf:"s3_use_ssl"`
	S3Region    string `koanf:"s3_region"`
}

// MPDConfig holds the MPD daemon address, used by the mpd sink.
type MPDConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Password string `koanf:"password"`
}

// ShellCacheConfig controls the offline app-shell cache.
type ShellCacheConfig struct {
	Enabled bool   `koanf:"enabled"`
	Version string `koanf:"version"` // cache name; changing it purges the others
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Port:             3001,
		DataDir:          "data",
		Sink:             SinkBrowser,
		MaxRemoteClients: 4,
		Manifest: ManifestConfig{
			S3UseSSL: true,
		},
		MPD: MPDConfig{
			Host: "localhost",
			Port: 6600,
		},
		ShellCache: ShellCacheConfig{
			Enabled: true,
			Version: "musicplayer-app-shell-v1",
		},
	}
}

// keyKind tells the environment layer how to read a value.
type keyKind int

const (
	kindScalar keyKind = iota
	kindList
)

// keys lists every configuration key.
var keys = map[string]keyKind{
	"port":                   kindScalar,
	"static_dir":             kindScalar,
	"data_dir":               kindScalar,
	"public_url":             kindScalar,
	"debug":                  kindScalar,
	"log_file":               kindScalar,
	"sink":                   kindScalar,
	"max_remote_clients":     kindScalar,
	"watch_dirs":             kindList,
	"manifest.url":           kindScalar,
	"manifest.s3_endpoint":   kindScalar,
	"manifest.s3_access_key": kindScalar,
	"manifest.s3_secret_key": kindScalar,
	"manifest.s3_use_ssl":    kindScalar,
	"manifest.s3_region":     kindScalar,
	"mpd.host":               kindScalar,
	"mpd.port":               kindScalar,
	"mpd.password":           kindScalar,
	"shell_cache.enabled":    kindScalar,
	"shell_cache.version":    kindScalar,
}

// Keys returns every configuration key, sorted.
func Keys() []string {
	out := lo.Keys(keys)
	slices.Sort(out)
	return out
}

// EnvName returns the environment variable read for key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Options selects the sources Load reads.
type Options struct {
	// Files are TOML files read in order; missing files are skipped. Nil
	// means DefaultPaths().
	Files []string
	// EnvFile is loaded into the environment first, without overriding
	// variables already set. Empty means ".env"; a missing file is fine.
	EnvFile string
	// Overrides are applied last, keyed like the TOML keys.
	Overrides map[string]any
}

// DefaultPaths returns ~/.config/stellar-player/config.toml then
// ./config.toml; the later file wins.
func DefaultPaths() []string {
	paths := []string{}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "stellar-player", "config.toml"))
	}
	return append(paths, "config.toml")
}

// Load builds the configuration from every layer.
func Load(opts Options) (*Config, error) {
	k := koanf.New(".")

	files := opts.Files
	if files == nil {
		files = DefaultPaths()
	}
	for _, path := range files {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	for key, kind := range keys {
		v, ok := os.LookupEnv(EnvName(key))
		if !ok {
			continue
		}
		var val any = v
		if kind == kindList {
			val = splitList(v)
		}
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("set %s: %w", key, err)
		}
	}

	for key, val := range opts.Overrides {
		if _, known := keys[key]; !known {
			return nil, fmt.Errorf("unknown config key %q", key)
		}
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("set %s: %w", key, err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.StaticDir = expandPath(cfg.StaticDir)
	cfg.DataDir = expandPath(cfg.DataDir)
	cfg.LogFile = expandPath(cfg.LogFile)
	for i, dir := range cfg.WatchDirs {
		cfg.WatchDirs[i] = expandPath(dir)
	}
	cfg.PublicURL = strings.TrimSuffix(cfg.PublicURL, "/")
	cfg.Sink = strings.ToLower(strings.TrimSpace(cfg.Sink))

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if !lo.Contains(Sinks, c.Sink) {
		return fmt.Errorf("unknown sink %q (want one of %s)", c.Sink, strings.Join(Sinks, ", "))
	}
	if c.Sink == SinkMPD && (c.MPD.Port < 1 || c.MPD.Port > 65535) {
		return fmt.Errorf("mpd port %d out of range", c.MPD.Port)
	}
	if c.Manifest.URL != "" {
		u, err := url.Parse(c.Manifest.URL)
		if err != nil {
			return fmt.Errorf("invalid manifest url: %w", err)
		}
		switch u.Scheme {
		case "http", "https", "s3":
		default:
			return fmt.Errorf("manifest url scheme %q not supported (want http, https or s3)", u.Scheme)
		}
	}
	if c.PublicURL != "" {
		if u, err := url.Parse(c.PublicURL); err != nil || u.Host == "" {
			return fmt.Errorf("invalid public url %q", c.PublicURL)
		}
	}
	if c.ShellCache.Enabled && c.ShellCache.Version == "" {
		return errors.New("shell_cache.version is required when the cache is enabled")
	}
	return nil
}

// BaseURL is the public origin clients reach the server on.
func (c *Config) BaseURL() string {
	if c.PublicURL != "" {
		return c.PublicURL
	}
	return "http://localhost:" + strconv.Itoa(c.Port)
}

// ManifestURL returns the configured manifest location, falling back to
// library.json in the static directory when one is served.
func (c *Config) ManifestURL() string {
	if c.Manifest.URL != "" {
		return c.Manifest.URL
	}
	if c.StaticDir != "" {
		return c.BaseURL() + "/library.json"
	}
	return ""
}

// IsS3Manifest reports whether the manifest is read from object storage.
func (c *Config) IsS3Manifest() bool {
	return strings.HasPrefix(c.Manifest.URL, "s3://")
}

func splitList(v string) []string {
	return lo.Compact(lo.Map(strings.Split(v, ","), func(s string, _ int) string {
		return strings.TrimSpace(s)
	}))
}

func expandPath(path string) string {
	if path != "" && path[0] == '~' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
