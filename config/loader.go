package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "TABQUERY_"

// DefaultFile is loaded when no explicit path is given and it exists.
const DefaultFile = "tabquery.yaml"

// flagKeys maps command-line flag names onto configuration keys.
var flagKeys = map[string]string{
	"database":       "storage.database_path",
	"upload-dir":     "storage.upload_dir",
	"max-file-bytes": "ingest.max_file_bytes",
	"delimiter":      "ingest.delimiter",
	"timeout":        "query.timeout",
	"max-rows":       "query.max_rows",
	"strict":         "query.strict_grammar",
	"engine":         "session.engine",
	"log-level":      "log.level",
	"log-format":     "log.format",
}

// Load loads configuration from defaults, the YAML file, environment
// variables and flags. Precedence (highest to lowest): flags > env vars >
// config file > defaults. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Load defaults
	if err := k.Load(confmap.Provider(defaultMap(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// 3. Environment: TABQUERY_QUERY_MAX_ROWS -> query.max_rows
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags, only those explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// envKey turns TABQUERY_SECTION_SOME_KEY into section.some_key.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(key, "_", ".", 1)
}

func defaultMap() map[string]interface{} {
	d := Default()
	return map[string]interface{}{
		"storage.database_path":         d.Storage.DatabasePath,
		"storage.upload_dir":            d.Storage.UploadDir,
		"ingest.max_file_bytes":         d.Ingest.MaxFileBytes,
		"ingest.max_rows":               d.Ingest.MaxRows,
		"ingest.max_decompressed_bytes": d.Ingest.MaxDecompressedBytes,
		"ingest.delimiter":              d.Ingest.Delimiter,
		"query.timeout":                 d.Query.Timeout.String(),
		"query.max_rows":                d.Query.MaxRows,
		"query.max_length":              d.Query.MaxLength,
		"query.max_concurrent":          d.Query.MaxConcurrent,
		"query.strict_grammar":          d.Query.StrictGrammar,
		"query.placeholder":             d.Query.Placeholder,
		"query.history_limit":           d.Query.HistoryLimit,
		"session.engine":                d.Session.Engine,
		"session.cache_entries":         d.Session.CacheEntries,
		"log.level":                     d.Log.Level,
		"log.format":                    d.Log.Format,
	}
}
