package blob

import (
	"context"
	"fmt"

	"kittycore/internal/infra/blob/fs"
	"kittycore/internal/infra/blob/memory"
	"kittycore/internal/infra/blob/s3"
)

// Config selects and configures a blob backend.
type Config struct {
	Driver Driver    `env:"DRIVER" envDefault:"fs"`
	FSRoot string    `env:"FS_ROOT" envDefault:"./blobdata"`
	S3     s3.Config `envPrefix:"S3_"`
}

// Open constructs the blob.Store described by cfg. An empty driver selects
// the filesystem backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return fs.New(cfg.FSRoot)
	case DriverS3:
		return s3.New(ctx, cfg.S3)
	case DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
