package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"loft/internal/catalog"
	"loft/internal/config"
	"loft/internal/logging"
	"loft/internal/metrics"
	"loft/internal/server"
	"loft/internal/storage"
)

const shutdownTimeout = 10 * time.Second

// Daemon runs the asset service and enforces single-instance execution.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *catalog.Store
	backend   storage.Backend
	collector *metrics.Collector
	srv       *server.Server

	lockPath string
	lock     *flock.Flock

	mu       sync.Mutex
	httpSrv  *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}

	running atomic.Bool
}

// Status reports daemon runtime information for the CLI.
type Status struct {
	Running      bool
	BindAddress  string
	DatabasePath string
	LockFilePath string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *catalog.Store, backend storage.Backend, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || backend == nil {
		return nil, errors.New("daemon requires config, store, and storage backend")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	collector := metrics.New()
	lockPath := filepath.Join(cfg.Paths.LogDir, "loftd.lock")
	return &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		store:     store,
		backend:   backend,
		collector: collector,
		srv:       server.New(cfg, store, backend, collector, logger),
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, binds the API listener, and launches
// the HTTP server and the session sweeper.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another loft daemon instance is already running")
	}

	listener, err := net.Listen("tcp", d.cfg.Paths.APIBind)
	if err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("bind %s: %w", d.cfg.Paths.APIBind, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	httpSrv := &http.Server{
		Handler:           d.srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	d.mu.Lock()
	d.httpSrv = httpSrv
	d.listener = listener
	d.cancel = cancel
	d.done = make(chan struct{})
	d.mu.Unlock()

	if count, err := d.store.CountAssets(runCtx); err == nil {
		d.collector.SetAssetCount(count)
	}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("api server stopped", logging.Error(err))
		}
	}()
	go d.sweepLoop(runCtx)

	d.running.Store(true)
	d.logger.Info("loft daemon started",
		logging.String("bind", listener.Addr().String()),
		logging.String("lock", d.lockPath))
	return nil
}

// Addr returns the bound listener address, empty before Start.
func (d *Daemon) Addr() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.listener == nil {
		return ""
	}
	return d.listener.Addr().String()
}

// Stop drains the HTTP server, stops the sweeper, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	d.mu.Lock()
	httpSrv := d.httpSrv
	cancel := d.cancel
	done := d.done
	d.httpSrv = nil
	d.listener = nil
	d.cancel = nil
	d.done = nil
	d.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if httpSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn("graceful shutdown incomplete", logging.Error(err))
		}
		shutdownCancel()
	}
	if done != nil {
		<-done
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("loft daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Running reports whether the daemon has been started.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Status returns a runtime snapshot for status displays.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		BindAddress:  d.Addr(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
	}
}

// sweepLoop reaps expired chunked upload sessions until ctx ends. The
// first sweep runs immediately so a restart cleans up leftovers.
func (d *Daemon) sweepLoop(ctx context.Context) {
	d.mu.Lock()
	done := d.done
	d.mu.Unlock()
	if done != nil {
		defer close(done)
	}

	interval := time.Duration(d.cfg.Server.SweepIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	d.sweep(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.sweep(ctx)
		}
	}
}

func (d *Daemon) sweep(ctx context.Context) {
	ttl := time.Duration(d.cfg.Server.SessionTTLMinutes) * time.Minute
	if ttl <= 0 {
		ttl = time.Hour
	}
	cutoff := time.Now().Add(-ttl)

	removed, err := d.srv.SweepExpiredSessions(ctx, cutoff)
	if err != nil {
		d.logger.Warn("session sweep failed", logging.Error(err))
		return
	}
	if removed > 0 {
		d.logger.Info("expired upload sessions removed", logging.Int("count", removed))
	}

	if count, err := d.store.CountAssets(ctx); err == nil {
		d.collector.SetAssetCount(count)
	}
}
