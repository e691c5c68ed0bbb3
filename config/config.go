// Package config loads tabquery configuration from defaults, a YAML file,
// TABQUERY_ environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Engine names accepted by session.engine.
const (
	EngineDuckDB   = "duckdb"
	EngineSQLite   = "sqlite"
	EngineFallback = "fallback"
)

// Default values.
const (
	DefaultDatabasePath         = "tabquery.db"
	DefaultMaxFileBytes         = 10 << 20
	DefaultMaxRows              = 1_000_000
	DefaultMaxDecompressedBytes = 256 << 20
	DefaultQueryTimeout         = 30 * time.Second
	DefaultQueryMaxRows         = 10000
	DefaultQueryMaxLength       = 10000
	DefaultMaxConcurrent        = 8
	DefaultPlaceholder          = "data"
	DefaultHistoryLimit         = 50
	DefaultCacheEntries         = 16
)

// Config is the full tabquery configuration.
type Config struct {
	Storage StorageConfig `koanf:"storage"`
	Ingest  IngestConfig  `koanf:"ingest"`
	Query   QueryConfig   `koanf:"query"`
	Session SessionConfig `koanf:"session"`
	Log     LogConfig     `koanf:"log"`
}

// StorageConfig locates the persistent database and raw uploads.
type StorageConfig struct {
	DatabasePath string `koanf:"database_path"`
	// UploadDir keeps raw uploads when set.
	UploadDir string `koanf:"upload_dir"`
}

// IngestConfig bounds what a single upload may contain.
type IngestConfig struct {
	MaxFileBytes         int64  `koanf:"max_file_bytes"`
	MaxRows              int    `koanf:"max_rows"`
	MaxDecompressedBytes int64  `koanf:"max_decompressed_bytes"`
	Delimiter            string `koanf:"delimiter"`
}

// QueryConfig controls validation, rewriting and execution.
type QueryConfig struct {
	Timeout       time.Duration `koanf:"timeout"`
	MaxRows       int           `koanf:"max_rows"`
	MaxLength     int           `koanf:"max_length"`
	MaxConcurrent int           `koanf:"max_concurrent"`
	StrictGrammar bool          `koanf:"strict_grammar"`
	Placeholder   string        `koanf:"placeholder"`
	HistoryLimit  int           `koanf:"history_limit"`
}

// SessionConfig controls the ephemeral per-call engine.
type SessionConfig struct {
	Engine       string `koanf:"engine"`
	CacheEntries int    `koanf:"cache_entries"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Storage: StorageConfig{DatabasePath: DefaultDatabasePath},
		Ingest: IngestConfig{
			MaxFileBytes:         DefaultMaxFileBytes,
			MaxRows:              DefaultMaxRows,
			MaxDecompressedBytes: DefaultMaxDecompressedBytes,
		},
		Query: QueryConfig{
			Timeout:       DefaultQueryTimeout,
			MaxRows:       DefaultQueryMaxRows,
			MaxLength:     DefaultQueryMaxLength,
			MaxConcurrent: DefaultMaxConcurrent,
			StrictGrammar: true,
			Placeholder:   DefaultPlaceholder,
			HistoryLimit:  DefaultHistoryLimit,
		},
		Session: SessionConfig{Engine: EngineDuckDB, CacheEntries: DefaultCacheEntries},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error
	if c.Storage.DatabasePath == "" {
		errs = append(errs, errors.New("storage.database_path is required"))
	}
	if c.Ingest.MaxFileBytes <= 0 {
		errs = append(errs, errors.New("ingest.max_file_bytes must be positive"))
	}
	if c.Ingest.MaxRows <= 0 {
		errs = append(errs, errors.New("ingest.max_rows must be positive"))
	}
	if n := len([]rune(c.Ingest.Delimiter)); n > 1 {
		errs = append(errs, fmt.Errorf("ingest.delimiter must be a single character, got %q", c.Ingest.Delimiter))
	}
	if c.Query.Timeout <= 0 {
		errs = append(errs, errors.New("query.timeout must be positive"))
	}
	if c.Query.MaxRows <= 0 {
		errs = append(errs, errors.New("query.max_rows must be positive"))
	}
	if c.Query.MaxConcurrent <= 0 {
		errs = append(errs, errors.New("query.max_concurrent must be positive"))
	}
	switch c.Session.Engine {
	case EngineDuckDB, EngineSQLite, EngineFallback:
	default:
		errs = append(errs, fmt.Errorf("session.engine must be one of duckdb, sqlite, fallback, got %q", c.Session.Engine))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// DelimiterRune returns the configured delimiter, or 0 for auto-detection.
func (c IngestConfig) DelimiterRune() rune {
	if c.Delimiter == "" {
		return 0
	}
	if c.Delimiter == `\t` {
		return '\t'
	}
	return []rune(c.Delimiter)[0]
}

// SlogLevel returns the configured level, defaulting to info.
func (c LogConfig) SlogLevel() slog.Level {
	level, err := parseLevel(c.Level)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// JSON reports whether logs are written as JSON.
func (c LogConfig) JSON() bool {
	return strings.EqualFold(c.Format, "json")
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
