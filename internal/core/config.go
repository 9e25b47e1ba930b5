package core

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"kittycore/internal/blob"
	"kittycore/pkg/pow"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "KITTYCORE_"

// Config is the process configuration read from KITTYCORE_* variables.
type Config struct {
	Difficulty      uint32        `env:"DIFFICULTY"       envDefault:"64"`
	MaxPopulation   uint32        `env:"MAX_POPULATION"   envDefault:"0"`
	StepInterval    time.Duration `env:"STEP_INTERVAL"    envDefault:"1s"`
	PoolCapacity    int           `env:"POOL_CAPACITY"    envDefault:"32"`
	ProofLongevity  uint64        `env:"PROOF_LONGEVITY"  envDefault:"5"`
	HTTPAddr        string        `env:"HTTP_ADDR"        envDefault:"127.0.0.1:9464"`
	LogLevel        string        `env:"LOG_LEVEL"        envDefault:"info"`
	ArchiveReceipts bool          `env:"ARCHIVE_RECEIPTS" envDefault:"true"`
	Storage         StorageConfig `envPrefix:"STORAGE_"`
	Blob            blob.Config   `envPrefix:"BLOB_"`
}

// LoadConfig parses configuration from environ, or from the process
// environment when environ is nil, and validates it.
func LoadConfig(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot start a node.
func (c Config) Validate() error {
	var errs []error
	if _, err := pow.NewDifficulty(c.Difficulty); err != nil {
		errs = append(errs, err)
	}
	if c.StepInterval <= 0 {
		errs = append(errs, fmt.Errorf("step interval must be positive, got %s", c.StepInterval))
	}
	if c.PoolCapacity <= 0 {
		errs = append(errs, fmt.Errorf("pool capacity must be positive, got %d", c.PoolCapacity))
	}
	if c.ProofLongevity == 0 {
		errs = append(errs, errors.New("proof longevity must be at least one step"))
	}
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StoragePostgres, StorageBadger, "":
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %s", c.Storage.Driver))
	}
	switch c.Blob.Driver {
	case blob.DriverFilesystem, blob.DriverS3, blob.DriverMemory, "":
	default:
		errs = append(errs, fmt.Errorf("unknown blob driver %s", c.Blob.Driver))
	}
	if c.ArchiveReceipts && c.Blob.Driver == blob.DriverS3 && c.Blob.S3.Bucket == "" {
		errs = append(errs, errors.New("s3 bucket required for receipt archive"))
	}
	return errors.Join(errs...)
}

// PowDifficulty returns the validated difficulty.
func (c Config) PowDifficulty() (pow.Difficulty, error) {
	return pow.NewDifficulty(c.Difficulty)
}
