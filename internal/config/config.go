package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	DataDir    string `toml:"data_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Server contains settings for the asset service HTTP API.
type Server struct {
	// BodyLimitMiB is the small-tier single-request body limit. Payloads over
	// it must use the chunked endpoints.
	BodyLimitMiB int `toml:"body_limit_mib"`
	// MaxUploadMiB is the absolute payload ceiling enforced on both tiers.
	MaxUploadMiB int `toml:"max_upload_mib"`
	// SessionTTLMinutes bounds how long an idle chunked upload session is kept.
	SessionTTLMinutes int `toml:"session_ttl_minutes"`
	// SweepIntervalMinutes controls how often stale sessions are reaped.
	SweepIntervalMinutes int `toml:"sweep_interval_minutes"`
}

// S3 contains credentials and addressing for S3-compatible object storage.
type S3 struct {
	Bucket    string `toml:"bucket"`
	Prefix    string `toml:"prefix"`
	Region    string `toml:"region"`
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
}

// Storage selects and configures the blob storage backend.
type Storage struct {
	Backend  string `toml:"backend"` // "local" or "s3"
	LocalDir string `toml:"local_dir"`
	BaseURL  string `toml:"base_url"`
	S3       S3     `toml:"s3"`
}

// Ingest contains client-side pipeline tuning.
type Ingest struct {
	ServerURL string `toml:"server_url"`
	// FingerprintCeilingMiB is the size above which content hashing is skipped.
	FingerprintCeilingMiB int `toml:"fingerprint_ceiling_mib"`
	DedupTimeoutSeconds   int `toml:"dedup_timeout_seconds"`
	ChunkSizeMiB          int `toml:"chunk_size_mib"`
	ChunkRetryLimit       int `toml:"chunk_retry_limit"`
	// LargeTransferSlots caps concurrent chunked transfers across a batch.
	LargeTransferSlots int `toml:"large_transfer_slots"`
	MinFreeSpaceMiB    int `toml:"min_free_space_mib"`
}

// Compression contains settings for the video compression engine.
type Compression struct {
	FFmpegBinary  string `toml:"ffmpeg_binary"`
	FFprobeBinary string `toml:"ffprobe_binary"`
	// TargetCeilingMiB is the output size the quality ladder aims for; it
	// matches the server's small-tier body limit.
	TargetCeilingMiB int `toml:"target_ceiling_mib"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Loft.
//
// Configuration sections by subsystem:
//   - Paths: directories, bind address, API token
//   - Server: upload size limits and chunk session lifecycle
//   - Storage: blob backend selection (local disk or S3)
//   - Ingest: client pipeline tuning (fingerprint ceiling, chunking, budget)
//   - Compression: ffmpeg/ffprobe binaries and the ladder's target ceiling
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Server      Server      `toml:"server"`
	Storage     Storage     `toml:"storage"`
	Ingest      Ingest      `toml:"ingest"`
	Compression Compression `toml:"compression"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/loft/config.toml")
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// CreateSample writes the annotated sample configuration to path.
func CreateSample(path string) error {
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// ExpandPath resolves ~ prefixes and returns an absolute, cleaned path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a config file was found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("loft.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon and CLI operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Storage.Backend == "local" && strings.TrimSpace(c.Storage.LocalDir) != "" {
		if err := os.MkdirAll(c.Storage.LocalDir, 0o755); err != nil {
			return fmt.Errorf("create storage directory %q: %w", c.Storage.LocalDir, err)
		}
	}
	return nil
}

const mib = 1 << 20

// BodyLimitBytes returns the small-tier single-request body limit in bytes.
func (c *Config) BodyLimitBytes() int64 { return int64(c.Server.BodyLimitMiB) * mib }

// MaxUploadBytes returns the absolute payload ceiling in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.Server.MaxUploadMiB) * mib }

// FingerprintCeilingBytes returns the hashing ceiling in bytes.
func (c *Config) FingerprintCeilingBytes() int64 {
	return int64(c.Ingest.FingerprintCeilingMiB) * mib
}

// ChunkSizeBytes returns the chunked-transfer chunk size in bytes.
func (c *Config) ChunkSizeBytes() int64 { return int64(c.Ingest.ChunkSizeMiB) * mib }

// TargetCeilingBytes returns the compression target ceiling in bytes.
func (c *Config) TargetCeilingBytes() int64 {
	return int64(c.Compression.TargetCeilingMiB) * mib
}

// MinFreeSpaceBytes returns the staging free-space floor in bytes.
func (c *Config) MinFreeSpaceBytes() int64 { return int64(c.Ingest.MinFreeSpaceMiB) * mib }

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
