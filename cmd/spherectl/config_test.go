package main

import (
	"bytes"
	"context"
	"flag"
	"io"
	"log/slog"
	"strings"
	"testing"

	"spherecore/internal/blob"
	"spherecore/internal/core"
)

func TestLoadConfigPrecedence(t *testing.T) {
	env := map[string]string{
		core.EnvStorageDriver:    "postgres",
		core.EnvPostgresDSN:      "postgres://env",
		"SPHERECORE_BLOB_DRIVER": "S3",
		"SPHERECORE_LOG_LEVEL":   "debug",
	}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	cfg, err := loadConfig(fs, []string{"-storage", "memory", "-seed", "9", "tick"}, func(k string) string { return env[k] })
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Driver != core.StorageMemory {
		t.Fatalf("flag must win over env, got %s", cfg.Storage.Driver)
	}
	if cfg.Storage.PostgresDSN != "postgres://env" || cfg.Blob.Driver != blob.DriverS3 || cfg.LogLevel != "debug" {
		t.Fatalf("env values not applied: %+v", cfg)
	}
	if cfg.Storage.SQLitePath != "spherecore.db" || cfg.Blob.FSRoot != blob.DefaultFilesystemRoot || cfg.LogFormat != "text" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.Seed != 9 {
		t.Fatalf("expected seed 9, got %d", cfg.Seed)
	}
	if args := fs.Args(); len(args) != 1 || args[0] != "tick" {
		t.Fatalf("unexpected remaining args %v", args)
	}
}

func TestNewLoggerHonorsFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config{LogLevel: "warn", LogFormat: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "body", "earth")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"body":"earth"`) {
		t.Fatalf("unexpected json log output %q", out)
	}

	buf.Reset()
	logger = newLogger(config{LogLevel: "DEBUG", LogFormat: "text"}, &buf)
	logger.Debug("visible")
	if !strings.Contains(buf.String(), "level=DEBUG") {
		t.Fatalf("unexpected text log output %q", buf.String())
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatalf("debug level not enabled")
	}
}
