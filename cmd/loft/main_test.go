package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"loft/internal/daemon"
	"loft/internal/storage"
	"loft/internal/testsupport"
)

type cliTestEnv struct {
	configPath string
	serverURL  string
}

// setupCLITestEnv starts a real daemon and writes a config file pointing
// the CLI at it.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	backend, err := storage.New(cfg, nil)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	d, err := daemon.New(cfg, store, backend, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(t.Context()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(d.Stop)

	cfg.Ingest.ServerURL = "http://" + d.Addr()
	configPath := filepath.Join(t.TempDir(), "config.toml")
	encoded, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(configPath, encoded, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return &cliTestEnv{configPath: configPath, serverURL: cfg.Ingest.ServerURL}
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, error) {
	t.Helper()

	full := append([]string{}, args...)
	if env != nil {
		full = append(full, "--config", env.configPath)
	}

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(full)
	cmd.SetContext(t.Context())
	err := cmd.Execute()
	return out.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestConfigInitCommand(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	out, err := runCLI(t, nil, "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	// Re-running without --overwrite refuses to clobber.
	if _, err := runCLI(t, nil, "config", "init", "--path", target); err == nil {
		t.Fatal("expected error when config already exists")
	}
}

func TestAssetsListEmpty(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := runCLI(t, env, "assets", "list")
	if err != nil {
		t.Fatalf("assets list: %v", err)
	}
	requireContains(t, out, "No assets stored")
}

func TestUploadListShowRoundTrip(t *testing.T) {
	env := setupCLITestEnv(t)

	file := filepath.Join(t.TempDir(), "hallway.jpg")
	testsupport.WriteFile(t, file, 8*1024)

	out, err := runCLI(t, env, "upload", file, "--skip-preflight")
	if err != nil {
		t.Fatalf("upload: %v\n%s", err, out)
	}
	requireContains(t, out, "stored as")

	out, err = runCLI(t, env, "assets", "list")
	if err != nil {
		t.Fatalf("assets list: %v", err)
	}
	requireContains(t, out, "hallway.jpg")
}

func TestUploadDuplicateUsesExistingFlag(t *testing.T) {
	env := setupCLITestEnv(t)

	file := filepath.Join(t.TempDir(), "roof.jpg")
	testsupport.WriteFile(t, file, 8*1024)

	if out, err := runCLI(t, env, "upload", file, "--skip-preflight"); err != nil {
		t.Fatalf("first upload: %v\n%s", err, out)
	}
	out, err := runCLI(t, env, "upload", file, "--skip-preflight", "--use-existing")
	if err != nil {
		t.Fatalf("second upload: %v\n%s", err, out)
	}
	requireContains(t, out, "reused existing asset")
}

func TestUsageAttachAndDeletionReport(t *testing.T) {
	env := setupCLITestEnv(t)

	file := filepath.Join(t.TempDir(), "deck.jpg")
	testsupport.WriteFile(t, file, 4*1024)
	out, err := runCLI(t, env, "upload", file, "--skip-preflight",
		"--property", "prop-1", "--zone", "zone-1", "--step", "step-1")
	if err != nil {
		t.Fatalf("upload: %v\n%s", err, out)
	}

	// Extract the asset id from "stored as <id> (...)".
	idx := strings.Index(out, "stored as ")
	if idx < 0 {
		t.Fatalf("missing asset id in output:\n%s", out)
	}
	rest := out[idx+len("stored as "):]
	assetID := strings.Fields(rest)[0]

	out, err = runCLI(t, env, "deletion-report", assetID)
	if err != nil {
		t.Fatalf("deletion-report: %v", err)
	}
	requireContains(t, out, "still in use")

	out, err = runCLI(t, env, "usage", "detach", assetID,
		"--property", "prop-1", "--zone", "zone-1", "--step", "step-1")
	if err != nil {
		t.Fatalf("usage detach: %v", err)
	}
	requireContains(t, out, "0 usage(s)")

	out, err = runCLI(t, env, "deletion-report", assetID)
	if err != nil {
		t.Fatalf("deletion-report: %v", err)
	}
	requireContains(t, out, "safe to delete")
}

func TestStatusReportsHealth(t *testing.T) {
	env := setupCLITestEnv(t)
	out, err := runCLI(t, env, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Health")
	requireContains(t, out, "ok")
}
