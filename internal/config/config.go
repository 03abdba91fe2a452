// Package config holds DFTracer-Utils' process-wide configuration,
// loaded once at startup from a JSON file the same way the teacher
// repository's internal/config package loads schema.ProgramConfig.
package config

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/joho/godotenv"

	"github.com/dftracer/dftracer-utils/pkg/log"
)

// NatsConfig mirrors the teacher's pkg/nats.NatsConfig: connection details
// for the distributed executor's transport (spec §4.6, §6).
type NatsConfig struct {
	Address       string `json:"address"`
	Username      string `json:"username"`
	Password      string `json:"password"`
	CredsFilePath string `json:"creds-file-path"`
}

// CheckpointBackend selects where the analyzer persists intermediate
// HighLevelMetrics views (spec §4.7 step 7).
type CheckpointBackend string

const (
	CheckpointBackendFS     CheckpointBackend = "fs"
	CheckpointBackendSQLite CheckpointBackend = "sqlite"
	CheckpointBackendS3     CheckpointBackend = "s3"
)

// S3Config carries the optional S3-backed checkpoint-output backend's
// connection details (spec SPEC_FULL.md DOMAIN STACK, aws-sdk-go-v2/s3).
type S3Config struct {
	Bucket         string `json:"bucket"`
	Region         string `json:"region"`
	Endpoint       string `json:"endpoint"`
	UsePathStyle   bool   `json:"use-path-style"`
}

// ProgramConfig is DFTracer-Utils' equivalent of the teacher's
// schema.ProgramConfig: one struct of defaults, decoded over with a JSON
// config file.
type ProgramConfig struct {
	// CheckpointStrideBytes is the default target gap between successive
	// Indexer checkpoints (spec §4.3, "checkpoint_stride_bytes").
	CheckpointStrideBytes int64 `json:"checkpoint-stride-bytes"`

	// PartitionSizeBytes is the default analyzer chunk size for splitting
	// one trace file's byte range across tasks (spec §4.7 step 1).
	PartitionSizeBytes int64 `json:"partition-size-bytes"`

	// WorkerCount is a thread-executor pool size; 0 means hardware
	// concurrency (spec §4.6, "Thread executor"). No command in this module
	// reads it: dft-analyze takes its pool size from --workers.
	WorkerCount int `json:"worker-count"`

	// Nats configures the distributed executor's transport.
	Nats NatsConfig `json:"nats"`

	// CheckpointBackend names a kind of analyzer checkpoint-output store. No
	// command in this module reads it: dft-analyze always uses the fs backend.
	CheckpointBackend CheckpointBackend `json:"checkpoint-backend"`

	// CheckpointDir is where fs/sqlite checkpoint backends write files.
	CheckpointDir string `json:"checkpoint-dir"`

	S3 S3Config `json:"s3"`

	// LogLevel feeds pkg/log.SetLogLevel at startup.
	LogLevel string `json:"log-level"`
}

// Keys holds the global configuration, pre-populated with defaults the
// same way the teacher's config.Keys is, then optionally overridden by
// Init.
var Keys = ProgramConfig{
	CheckpointStrideBytes: 1 << 20, // 1 MiB
	PartitionSizeBytes:    128 << 20,
	WorkerCount:           0,
	CheckpointBackend:     CheckpointBackendFS,
	CheckpointDir:         "./var/dftracer-checkpoints",
	LogLevel:              "info",
}

// Init loads .env (if present) then decodes a JSON config file over Keys,
// matching the teacher's cmd/cc-backend startup sequence: godotenv first,
// then config.Init.
func Init(flagConfigFile string) error {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("config: .env: %v", err)
	}

	if flagConfigFile == "" {
		log.SetLogLevel(Keys.LogLevel)
		return nil
	}

	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if os.IsNotExist(err) {
			log.SetLogLevel(Keys.LogLevel)
			return nil
		}
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return err
	}

	log.SetLogLevel(Keys.LogLevel)
	return nil
}
