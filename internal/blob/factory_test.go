package blob

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenConfigSelectsDriver(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "archive")
	cases := []struct {
		name string
		cfg  Config
		want Driver
	}{
		{name: "default fs", cfg: Config{FSRoot: root}, want: DriverFilesystem},
		{name: "memory", cfg: Config{Driver: DriverMemory}, want: DriverMemory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, err := OpenConfig(ctx, tc.cfg)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if store.Driver() != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, store.Driver())
			}
		})
	}
	if _, err := OpenConfig(ctx, Config{Driver: DriverS3}); err == nil || !strings.Contains(err.Error(), "BUCKET") {
		t.Fatalf("expected missing bucket error, got %v", err)
	}
	if _, err := OpenConfig(ctx, Config{Driver: "tape"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SPHERECORE_BLOB_DRIVER", "s3")
	t.Setenv("SPHERECORE_BLOB_S3_BUCKET", "worlds")
	t.Setenv("SPHERECORE_BLOB_S3_REGION", "eu-west-1")
	t.Setenv("SPHERECORE_BLOB_S3_ENDPOINT", "http://minio:9000")
	t.Setenv("SPHERECORE_BLOB_S3_PATH_STYLE", "TRUE")
	cfg := ConfigFromEnv()
	if cfg.Driver != DriverS3 || cfg.S3.Bucket != "worlds" || cfg.S3.Region != "eu-west-1" || !cfg.S3.PathStyle {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("SPHERECORE_BLOB_DRIVER", "memory")
	store, err := Open(context.Background())
	if err != nil || store.Driver() != DriverMemory {
		t.Fatalf("expected memory store from env, got %v %v", store, err)
	}
}
