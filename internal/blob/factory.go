package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"spherecore/internal/infra/blob/fs"
	memorystore "spherecore/internal/infra/blob/memory"
	infraS3 "spherecore/internal/infra/blob/s3"
)

// DefaultFilesystemRoot is used when the fs driver has no configured root.
const DefaultFilesystemRoot = "./blobdata"

// S3Config configures the S3 backend.
type S3Config = infraS3.Config

// Config selects and configures a blob backend.
type Config struct {
	Driver Driver
	FSRoot string
	S3     S3Config
}

// ConfigFromEnv reads the blob configuration from the environment.
//
//	SPHERECORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	SPHERECORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	SPHERECORE_BLOB_S3_BUCKET, _REGION, _ENDPOINT, _PATH_STYLE: s3 settings
func ConfigFromEnv() Config {
	return Config{
		Driver: Driver(os.Getenv("SPHERECORE_BLOB_DRIVER")),
		FSRoot: os.Getenv("SPHERECORE_BLOB_FS_ROOT"),
		S3: S3Config{
			Bucket:    os.Getenv("SPHERECORE_BLOB_S3_BUCKET"),
			Region:    os.Getenv("SPHERECORE_BLOB_S3_REGION"),
			Endpoint:  os.Getenv("SPHERECORE_BLOB_S3_ENDPOINT"),
			PathStyle: strings.EqualFold(os.Getenv("SPHERECORE_BLOB_S3_PATH_STYLE"), "true"),
		},
	}
}

// Open selects a blob.Store implementation using environment variables.
func Open(ctx context.Context) (Store, error) {
	return OpenConfig(ctx, ConfigFromEnv())
}

// OpenConfig constructs the backend named by cfg.Driver.
func OpenConfig(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		root := cfg.FSRoot
		if root == "" {
			root = DefaultFilesystemRoot
		}
		return fs.New(root)
	case DriverS3:
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("SPHERECORE_BLOB_S3_BUCKET required for s3 driver")
		}
		return infraS3.New(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// NewMemory returns an empty in-process store.
func NewMemory() Store { return memorystore.New() }
