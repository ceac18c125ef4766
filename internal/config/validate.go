package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateIngest(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.BodyLimitMiB > c.Server.MaxUploadMiB {
		return fmt.Errorf("server.body_limit_mib (%d) must not exceed server.max_upload_mib (%d)",
			c.Server.BodyLimitMiB, c.Server.MaxUploadMiB)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case "local":
		if strings.TrimSpace(c.Storage.LocalDir) == "" {
			return errors.New("storage.local_dir must be set for the local backend")
		}
	case "s3":
		if strings.TrimSpace(c.Storage.S3.Bucket) == "" {
			return errors.New("storage.s3.bucket must be set for the s3 backend")
		}
	default:
		return fmt.Errorf("storage.backend: unsupported value %q (expected \"local\" or \"s3\")", c.Storage.Backend)
	}
	return nil
}

func (c *Config) validateIngest() error {
	if _, err := url.ParseRequestURI(c.Ingest.ServerURL); err != nil {
		return fmt.Errorf("ingest.server_url: invalid URL %q", c.Ingest.ServerURL)
	}
	if c.Ingest.ChunkSizeMiB > c.Server.BodyLimitMiB {
		return fmt.Errorf("ingest.chunk_size_mib (%d) must not exceed server.body_limit_mib (%d)",
			c.Ingest.ChunkSizeMiB, c.Server.BodyLimitMiB)
	}
	if c.Compression.TargetCeilingMiB > c.Server.MaxUploadMiB {
		return fmt.Errorf("compression.target_ceiling_mib (%d) must not exceed server.max_upload_mib (%d)",
			c.Compression.TargetCeilingMiB, c.Server.MaxUploadMiB)
	}
	return nil
}
