package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeIngest()
	c.normalizeCompression()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("LOFT_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeServer() {
	if c.Server.BodyLimitMiB <= 0 {
		c.Server.BodyLimitMiB = defaultBodyLimitMiB
	}
	if c.Server.MaxUploadMiB <= 0 {
		c.Server.MaxUploadMiB = defaultMaxUploadMiB
	}
	if c.Server.SessionTTLMinutes <= 0 {
		c.Server.SessionTTLMinutes = defaultSessionTTLMinutes
	}
	if c.Server.SweepIntervalMinutes <= 0 {
		c.Server.SweepIntervalMinutes = defaultSweepIntervalMinutes
	}
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaultStorageBackend
	}
	var err error
	if strings.TrimSpace(c.Storage.LocalDir) == "" {
		c.Storage.LocalDir = defaultStorageLocalDir
	}
	if c.Storage.LocalDir, err = expandPath(c.Storage.LocalDir); err != nil {
		return fmt.Errorf("storage.local_dir: %w", err)
	}
	c.Storage.BaseURL = strings.TrimRight(strings.TrimSpace(c.Storage.BaseURL), "/")
	if c.Storage.BaseURL == "" {
		c.Storage.BaseURL = defaultStorageBaseURL
	}
	if c.Storage.S3.AccessKey == "" {
		if value, ok := os.LookupEnv("LOFT_S3_ACCESS_KEY"); ok {
			c.Storage.S3.AccessKey = strings.TrimSpace(value)
		}
	}
	if c.Storage.S3.SecretKey == "" {
		if value, ok := os.LookupEnv("LOFT_S3_SECRET_KEY"); ok {
			c.Storage.S3.SecretKey = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Storage.S3.Region) == "" {
		c.Storage.S3.Region = defaultS3Region
	}
	return nil
}

func (c *Config) normalizeIngest() {
	c.Ingest.ServerURL = strings.TrimRight(strings.TrimSpace(c.Ingest.ServerURL), "/")
	if c.Ingest.ServerURL == "" {
		c.Ingest.ServerURL = defaultServerURL
	}
	if c.Ingest.FingerprintCeilingMiB <= 0 {
		c.Ingest.FingerprintCeilingMiB = defaultFingerprintCeiling
	}
	if c.Ingest.DedupTimeoutSeconds <= 0 {
		c.Ingest.DedupTimeoutSeconds = defaultDedupTimeoutSeconds
	}
	if c.Ingest.ChunkSizeMiB <= 0 {
		c.Ingest.ChunkSizeMiB = defaultChunkSizeMiB
	}
	if c.Ingest.ChunkRetryLimit <= 0 {
		c.Ingest.ChunkRetryLimit = defaultChunkRetryLimit
	}
	if c.Ingest.LargeTransferSlots <= 0 {
		c.Ingest.LargeTransferSlots = defaultLargeTransferSlots
	}
	if c.Ingest.MinFreeSpaceMiB <= 0 {
		c.Ingest.MinFreeSpaceMiB = defaultMinFreeSpaceMiB
	}
}

func (c *Config) normalizeCompression() {
	c.Compression.FFmpegBinary = strings.TrimSpace(c.Compression.FFmpegBinary)
	if c.Compression.FFmpegBinary == "" {
		c.Compression.FFmpegBinary = "ffmpeg"
	}
	c.Compression.FFprobeBinary = strings.TrimSpace(c.Compression.FFprobeBinary)
	if c.Compression.FFprobeBinary == "" {
		c.Compression.FFprobeBinary = "ffprobe"
	}
	if c.Compression.TargetCeilingMiB <= 0 {
		c.Compression.TargetCeilingMiB = defaultTargetCeilingMiB
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
