// Package config builds the immutable configuration value shared by the
// server, the CLI and the processing pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

var (
	ErrMissingAPIKey        = errors.New("tmdb api key is required")
	ErrMissingRootPath      = errors.New("tv shows root path is required")
	ErrRootPathInaccessible = errors.New("tv shows root path is not an accessible directory")
)

// Season folder ordering policies.
const (
	SeasonSortLexical = "lexical"
	SeasonSortNumeric = "numeric"
)

// Episode matching strategies selectable by default.
const (
	MatchIndex    = "index"
	MatchFilename = "filename"
)

// Config holds everything read once at startup. Treat it as read-only after
// Load returns.
type Config struct {
	TMDB    TMDB    `toml:"tmdb"`
	Library Library `toml:"library"`
	Server  Server  `toml:"server"`
	Logging Logging `toml:"logging"`
}

type TMDB struct {
	APIKey          string `toml:"api_key"`
	ReadAccessToken string `toml:"read_access_token"`
	Language        string `toml:"language"`
	ImageBaseURL    string `toml:"image_base_url"`
	ImageSize       string `toml:"image_size"`
	CacheTTLMinutes int    `toml:"cache_ttl_minutes"`
	RequestTimeout  int    `toml:"request_timeout"` // seconds
}

type Library struct {
	RootPath      string `toml:"root_path"`
	SeasonSort    string `toml:"season_sort"`
	MatchStrategy string `toml:"match_strategy"`
	WriteTags     bool   `toml:"write_tags"`
}

type Server struct {
	Port    string `toml:"port"`
	DBPath  string `toml:"db_path"`
	DataDir string `toml:"data_dir"`
	MDNS    bool   `toml:"mdns"`
}

type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Default returns the built-in configuration before any file or environment
// overrides are applied.
func Default() Config {
	return Config{
		TMDB: TMDB{
			Language:        "en-US",
			ImageBaseURL:    "https://image.tmdb.org/t/p/",
			ImageSize:       "w500",
			CacheTTLMinutes: 60,
			RequestTimeout:  30,
		},
		Library: Library{
			SeasonSort:    SeasonSortLexical,
			MatchStrategy: MatchIndex,
		},
		Server: Server{
			Port:   "3000",
			DBPath: "show_renamer.db",
		},
		Logging: Logging{
			Format: "auto",
			Level:  "info",
		},
	}
}

// Load reads the optional TOML file at path, applies environment overrides
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("TMDB_API_KEY", &c.TMDB.APIKey)
	set("TMDB_READ_ACCESS_TOKEN", &c.TMDB.ReadAccessToken)
	set("TMDB_LANGUAGE", &c.TMDB.Language)
	set("TV_SHOWS_BASE_PATH", &c.Library.RootPath)
	set("PORT", &c.Server.Port)
	set("SHOW_RENAMER_DB", &c.Server.DBPath)
	set("SHOW_RENAMER_DATA_DIR", &c.Server.DataDir)
	set("SHOW_RENAMER_LOG_FORMAT", &c.Logging.Format)
	set("SHOW_RENAMER_LOG_LEVEL", &c.Logging.Level)
}

func (c *Config) normalize() {
	c.Library.SeasonSort = strings.ToLower(strings.TrimSpace(c.Library.SeasonSort))
	c.Library.MatchStrategy = strings.ToLower(strings.TrimSpace(c.Library.MatchStrategy))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Library.RootPath != "" {
		c.Library.RootPath = filepath.Clean(c.Library.RootPath)
	}
	if c.Server.DataDir == "" {
		c.Server.DataDir = filepath.Dir(c.Server.DBPath)
	}
	if !strings.HasSuffix(c.TMDB.ImageBaseURL, "/") {
		c.TMDB.ImageBaseURL += "/"
	}
}

// Validate reports the first configuration problem that would make the
// process unusable.
func (c *Config) Validate() error {
	if c.TMDB.APIKey == "" {
		return fmt.Errorf("%w: set TMDB_API_KEY or tmdb.api_key", ErrMissingAPIKey)
	}
	if c.Library.RootPath == "" {
		return fmt.Errorf("%w: set TV_SHOWS_BASE_PATH or library.root_path", ErrMissingRootPath)
	}
	info, err := os.Stat(c.Library.RootPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRootPathInaccessible, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s", ErrRootPathInaccessible, c.Library.RootPath)
	}
	switch c.Library.SeasonSort {
	case SeasonSortLexical, SeasonSortNumeric:
	default:
		return fmt.Errorf("library.season_sort: unsupported value %q", c.Library.SeasonSort)
	}
	switch c.Library.MatchStrategy {
	case MatchIndex, MatchFilename:
	default:
		return fmt.Errorf("library.match_strategy: unsupported value %q", c.Library.MatchStrategy)
	}
	switch c.Logging.Format {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

// CacheTTL is how long metadata responses stay cached.
func (c *Config) CacheTTL() time.Duration {
	if c.TMDB.CacheTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.TMDB.CacheTTLMinutes) * time.Minute
}

// RequestTimeout bounds a single call to the metadata source or image host.
func (c *Config) RequestTimeout() time.Duration {
	if c.TMDB.RequestTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TMDB.RequestTimeout) * time.Second
}
