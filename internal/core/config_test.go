package core

import (
	"strings"
	"testing"
	"time"

	"kittycore/internal/blob"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(map[string]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Difficulty != 64 || cfg.StepInterval != time.Second || cfg.PoolCapacity != 32 || cfg.ProofLongevity != 5 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Storage.Driver != StorageSQLite || cfg.Storage.SQLitePath != "kittycore.db" {
		t.Fatalf("unexpected storage defaults %+v", cfg.Storage)
	}
	if cfg.Blob.Driver != blob.DriverFilesystem || !cfg.ArchiveReceipts {
		t.Fatalf("unexpected blob defaults %+v", cfg.Blob)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := LoadConfig(map[string]string{
		"KITTYCORE_DIFFICULTY":          "3",
		"KITTYCORE_MAX_POPULATION":      "100",
		"KITTYCORE_STEP_INTERVAL":       "250ms",
		"KITTYCORE_STORAGE_DRIVER":      "badger",
		"KITTYCORE_STORAGE_BADGER_PATH": "/var/lib/kitty",
		"KITTYCORE_BLOB_DRIVER":         "s3",
		"KITTYCORE_BLOB_S3_BUCKET":      "receipts",
		"KITTYCORE_BLOB_S3_REGION":      "eu-west-1",
		"KITTYCORE_ARCHIVE_RECEIPTS":    "true",
		"KITTYCORE_LOG_LEVEL":           "debug",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Difficulty != 3 || cfg.MaxPopulation != 100 || cfg.StepInterval != 250*time.Millisecond {
		t.Fatalf("unexpected values %+v", cfg)
	}
	if cfg.Storage.Driver != StorageBadger || cfg.Storage.BadgerPath != "/var/lib/kitty" {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	if cfg.Blob.S3.Bucket != "receipts" || cfg.Blob.S3.Region != "eu-west-1" {
		t.Fatalf("unexpected s3 %+v", cfg.Blob.S3)
	}
	d, err := cfg.PowDifficulty()
	if err != nil || d != 3 {
		t.Fatalf("difficulty %d err %v", d, err)
	}
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"zero difficulty", map[string]string{"KITTYCORE_DIFFICULTY": "0"}, "difficulty"},
		{"bad interval", map[string]string{"KITTYCORE_STEP_INTERVAL": "-1s"}, "step interval"},
		{"zero capacity", map[string]string{"KITTYCORE_POOL_CAPACITY": "0"}, "pool capacity"},
		{"zero longevity", map[string]string{"KITTYCORE_PROOF_LONGEVITY": "0"}, "longevity"},
		{"unknown storage", map[string]string{"KITTYCORE_STORAGE_DRIVER": "mongo"}, "storage driver"},
		{"unknown blob", map[string]string{"KITTYCORE_BLOB_DRIVER": "gcs"}, "blob driver"},
		{"s3 without bucket", map[string]string{"KITTYCORE_BLOB_DRIVER": "s3"}, "bucket"},
		{"unparsable", map[string]string{"KITTYCORE_DIFFICULTY": "many"}, "parse env"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(tc.env)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}
