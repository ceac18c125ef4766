package daemon_test

import (
	"strings"
	"testing"

	"loft/internal/apiclient"
	"loft/internal/daemon"
	"loft/internal/storage"
	"loft/internal/testsupport"
)

func newDaemon(t *testing.T) *daemon.Daemon {
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
	return d
}

func TestDaemonServesAPI(t *testing.T) {
	d := newDaemon(t)
	if err := d.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()

	if !d.Running() {
		t.Fatal("daemon should report running")
	}
	addr := d.Addr()
	if addr == "" {
		t.Fatal("expected a bound address")
	}

	client := apiclient.New("http://"+addr, "", nil)
	health, err := client.Health(t.Context())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Status != "ok" {
		t.Fatalf("unexpected health status %q", health.Status)
	}

	d.Stop()
	if d.Running() {
		t.Fatal("daemon should report stopped")
	}
}

func TestDaemonStartIsExclusivePerLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	backend, err := storage.New(cfg, nil)
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}

	first, err := daemon.New(cfg, store, backend, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := first.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Stop()

	second, err := daemon.New(cfg, store, backend, nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	err = second.Start(t.Context())
	if err == nil {
		second.Stop()
		t.Fatal("second instance must not start while the lock is held")
	}
	if !strings.Contains(err.Error(), "already running") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDaemonStatusSnapshot(t *testing.T) {
	d := newDaemon(t)
	status := d.Status()
	if status.Running {
		t.Fatal("fresh daemon should not be running")
	}
	if status.DatabasePath == "" || status.LockFilePath == "" {
		t.Fatalf("incomplete status %+v", status)
	}

	if err := d.Start(t.Context()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer d.Stop()
	status = d.Status()
	if !status.Running || status.BindAddress == "" {
		t.Fatalf("expected running status with bind address, got %+v", status)
	}
}
