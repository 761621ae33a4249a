package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"spherecore/internal/blob"
	"spherecore/internal/core"
)

// config holds the resolved spherectl settings.
type config struct {
	Storage     core.StorageConfig
	Blob        blob.Config
	LogLevel    string
	LogFormat   string
	MetricsFile string
	TraceFile   string
	Seed        uint64
}

// configResolver resolves a single setting from a flag, then an environment
// variable, then a default.
type configResolver struct {
	flagName    string
	envVarName  string
	defaultVal  string
	description string
	setter      func(*config, string) error
}

func resolvers() []configResolver {
	return []configResolver{
		{
			flagName:    "storage",
			envVarName:  core.EnvStorageDriver,
			defaultVal:  string(core.StorageSQLite),
			description: "storage driver: memory, sqlite, postgres",
			setter: func(c *config, v string) error {
				c.Storage.Driver = core.StorageDriver(strings.ToLower(v))
				return nil
			},
		},
		{
			flagName:    "sqlite-path",
			envVarName:  core.EnvSQLitePath,
			defaultVal:  "spherecore.db",
			description: "sqlite database file",
			setter:      func(c *config, v string) error { c.Storage.SQLitePath = v; return nil },
		},
		{
			flagName:    "postgres-dsn",
			envVarName:  core.EnvPostgresDSN,
			description: "postgres connection string",
			setter:      func(c *config, v string) error { c.Storage.PostgresDSN = v; return nil },
		},
		{
			flagName:    "blob",
			envVarName:  "SPHERECORE_BLOB_DRIVER",
			defaultVal:  string(blob.DriverFilesystem),
			description: "checkpoint archive driver: fs, s3, memory",
			setter:      func(c *config, v string) error { c.Blob.Driver = blob.Driver(strings.ToLower(v)); return nil },
		},
		{
			flagName:    "blob-root",
			envVarName:  "SPHERECORE_BLOB_FS_ROOT",
			defaultVal:  blob.DefaultFilesystemRoot,
			description: "checkpoint archive directory for the fs driver",
			setter:      func(c *config, v string) error { c.Blob.FSRoot = v; return nil },
		},
		{
			flagName:    "log-level",
			envVarName:  "SPHERECORE_LOG_LEVEL",
			defaultVal:  "info",
			description: "log level: debug, info, warn, error",
			setter: func(c *config, v string) error {
				if _, err := parseLevel(v); err != nil {
					return err
				}
				c.LogLevel = v
				return nil
			},
		},
		{
			flagName:    "log-format",
			envVarName:  "SPHERECORE_LOG_FORMAT",
			defaultVal:  "text",
			description: "log format: text or json",
			setter: func(c *config, v string) error {
				switch strings.ToLower(v) {
				case "text", "json":
					c.LogFormat = strings.ToLower(v)
					return nil
				}
				return fmt.Errorf("invalid log format %q", v)
			},
		},
		{
			flagName:    "metrics-file",
			envVarName:  "SPHERECORE_METRICS_FILE",
			description: "write prometheus metrics in text format to this file on exit",
			setter:      func(c *config, v string) error { c.MetricsFile = v; return nil },
		},
		{
			flagName:    "trace-file",
			envVarName:  "SPHERECORE_TRACE_FILE",
			description: "append one JSON line per traced operation to this file",
			setter:      func(c *config, v string) error { c.TraceFile = v; return nil },
		},
		{
			flagName:    "seed",
			envVarName:  "SPHERECORE_RANDOM_SEED",
			defaultVal:  "0",
			description: "random seed for life discovery; 0 seeds from the clock",
			setter: func(c *config, v string) error {
				n, err := strconv.ParseUint(v, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid seed %q: %w", v, err)
				}
				c.Seed = n
				return nil
			},
		},
	}
}

// loadConfig registers the resolvers on fs, parses args, and resolves each
// setting. S3 settings are read from the environment only.
func loadConfig(fs *flag.FlagSet, args []string, getenv func(string) string) (config, error) {
	cfg := config{Blob: blob.ConfigFromEnv()}
	all := resolvers()
	flagVars := make(map[string]*string, len(all))
	for _, r := range all {
		flagVars[r.flagName] = fs.String(r.flagName, "", r.description)
	}
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	for _, r := range all {
		value := r.defaultVal
		if v := *flagVars[r.flagName]; v != "" {
			value = v
		} else if v := getenv(r.envVarName); v != "" {
			value = v
		}
		if err := r.setter(&cfg, value); err != nil {
			return cfg, fmt.Errorf("-%s: %w", r.flagName, err)
		}
	}
	return cfg, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

func newLogger(cfg config, w io.Writer) *slog.Logger {
	level, _ := parseLevel(cfg.LogLevel)
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
