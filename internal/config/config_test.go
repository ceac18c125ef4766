package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"loft/internal/config"
)

func TestLoadDefaultsAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "loft", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Server.BodyLimitMiB != 4 || cfg.Server.MaxUploadMiB != 100 {
		t.Fatalf("unexpected server limits: %+v", cfg.Server)
	}
	if cfg.Storage.Backend != "local" {
		t.Fatalf("unexpected storage backend: %q", cfg.Storage.Backend)
	}
	if cfg.BodyLimitBytes() != 4<<20 {
		t.Fatalf("unexpected body limit bytes: %d", cfg.BodyLimitBytes())
	}
}

func TestLoadParsesFileAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loft.toml")
	content := strings.Join([]string{
		"[paths]",
		`staging_dir = "` + filepath.Join(dir, "staging") + `"`,
		"[server]",
		"body_limit_mib = 8",
		"max_upload_mib = 64",
		"[ingest]",
		"chunk_size_mib = 8",
		`server_url = "http://localhost:9999"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config to exist")
	}
	if cfg.Server.BodyLimitMiB != 8 {
		t.Fatalf("unexpected body limit: %d", cfg.Server.BodyLimitMiB)
	}
	if cfg.Ingest.ServerURL != "http://localhost:9999" {
		t.Fatalf("unexpected server url: %q", cfg.Ingest.ServerURL)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "body limit over ceiling",
			mutate: func(c *config.Config) { c.Server.BodyLimitMiB = 200 },
			want:   "body_limit_mib",
		},
		{
			name:   "unknown backend",
			mutate: func(c *config.Config) { c.Storage.Backend = "ftp" },
			want:   "storage.backend",
		},
		{
			name: "s3 without bucket",
			mutate: func(c *config.Config) {
				c.Storage.Backend = "s3"
				c.Storage.S3.Bucket = ""
			},
			want: "storage.s3.bucket",
		},
		{
			name:   "chunk size over body limit",
			mutate: func(c *config.Config) { c.Ingest.ChunkSizeMiB = 16 },
			want:   "chunk_size_mib",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestAPITokenFallsBackToEnv(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("LOFT_API_TOKEN", "secret-token")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.APIToken != "secret-token" {
		t.Fatalf("expected env token, got %q", cfg.Paths.APIToken)
	}
}
