// Package daemon wires the osforge components into one long-running
// process: record store, event journal, pipeline executor, dispatcher,
// HTTP API, optional NATS publisher and retention sweeper.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/osforge/internal/config"
	"git.home.luguber.info/inful/osforge/internal/dispatcher"
	"git.home.luguber.info/inful/osforge/internal/eventstore"
	"git.home.luguber.info/inful/osforge/internal/logfields"
	"git.home.luguber.info/inful/osforge/internal/metrics"
	"git.home.luguber.info/inful/osforge/internal/notify"
	"git.home.luguber.info/inful/osforge/internal/pipeline"
	"git.home.luguber.info/inful/osforge/internal/retention"
	"git.home.luguber.info/inful/osforge/internal/server/httpserver"
	"git.home.luguber.info/inful/osforge/internal/store"
	"git.home.luguber.info/inful/osforge/internal/toolchain"
)

// Daemon owns all long-lived components and their shutdown order.
type Daemon struct {
	cfg      *config.Config
	logLevel *slog.LevelVar

	records    store.RecordStore
	events     eventstore.Store
	publisher  *notify.Publisher
	recorder   *metrics.PrometheusRecorder
	dispatcher *dispatcher.Dispatcher
	server     *httpserver.Server
	sweeper    *retention.Sweeper
	watcher    *config.Watcher

	mu        sync.RWMutex
	status    string
	startTime time.Time
}

// New builds the full component graph from config. configPath enables the
// config hot-reload watcher when non-empty; logLevel may be nil when runtime
// level changes are not wanted.
func New(cfg *config.Config, configPath string, logLevel *slog.LevelVar) (*Daemon, error) {
	d := &Daemon{
		cfg:      cfg,
		logLevel: logLevel,
		status:   "starting",
	}

	d.records = store.NewInMemoryStore()

	if cfg.Events.Path != "" {
		events, err := eventstore.NewSQLiteStore(cfg.Events.Path)
		if err != nil {
			return nil, fmt.Errorf("open event journal: %w", err)
		}
		d.events = events
	}
	journal := eventstore.NewJournal(d.events)

	d.recorder = metrics.NewPrometheusRecorder(prometheus.NewRegistry())

	if cfg.Messaging.Enabled {
		publisher, err := notify.NewPublisher(&cfg.Messaging)
		if err != nil {
			return nil, fmt.Errorf("messaging: %w", err)
		}
		d.publisher = publisher
	}

	exec := pipeline.NewExecutor(d.records, toolchain.NewLocal(), pipeline.Options{
		Workdir:        cfg.Build.Workdir,
		RegistryPrefix: cfg.Build.RegistryPrefix,
		KeepStaging:    cfg.Build.KeepStaging,
	}).WithJournal(journal).WithMetrics(d.recorder)
	if d.publisher != nil {
		exec = exec.WithNotifier(d.publisher)
	}

	d.dispatcher = dispatcher.New(d.records, exec, cfg.Build.ConcurrentBuilds).
		WithJournal(journal).
		WithMetrics(d.recorder)
	if d.publisher != nil {
		d.dispatcher = d.dispatcher.WithNotifier(d.publisher)
	}

	d.server = httpserver.New(&cfg.Server, d.dispatcher, d.records, d, httpserver.Options{
		MetricsHandler: d.recorder.HTTPHandler(),
	})

	if cfg.Retention.Enabled {
		sweeper, err := retention.NewSweeper(cfg.Retention, d.records, d.events)
		if err != nil {
			return nil, fmt.Errorf("retention: %w", err)
		}
		d.sweeper = sweeper
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, d.onConfigReload)
		if err != nil {
			slog.Warn("Config watcher unavailable", logfields.Error(err))
		} else {
			d.watcher = watcher
		}
	}

	return d, nil
}

// Start brings the daemon up: workspace, API server, sweeper, watcher.
func (d *Daemon) Start(ctx context.Context) error {
	if err := os.MkdirAll(d.cfg.Build.Workdir, 0o755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}

	if err := d.server.Start(ctx); err != nil {
		return err
	}

	if d.sweeper != nil {
		d.sweeper.Start()
	}
	if d.watcher != nil {
		if err := d.watcher.Start(ctx); err != nil {
			slog.Warn("Config watcher failed to start", logfields.Error(err))
		}
	}

	d.mu.Lock()
	d.status = "running"
	d.startTime = time.Now()
	d.mu.Unlock()

	slog.Info("osforge daemon started", slog.String("addr", d.server.Addr()))
	return nil
}

// Stop shuts components down in reverse dependency order: stop accepting,
// drain running builds within the shutdown timeout, then release resources.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.status = "stopping"
	d.mu.Unlock()

	if d.watcher != nil {
		_ = d.watcher.Stop()
	}
	if d.sweeper != nil {
		if err := d.sweeper.Stop(); err != nil {
			slog.Warn("Retention sweeper stop failed", logfields.Error(err))
		}
	}

	if err := d.server.Stop(ctx); err != nil {
		slog.Warn("API server shutdown incomplete", logfields.Error(err))
	}

	drainCtx, cancel := context.WithTimeout(ctx, d.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := d.dispatcher.StopAndWait(drainCtx); err != nil {
		slog.Warn("Builds still running at shutdown deadline", logfields.Error(err))
	}

	if d.publisher != nil {
		_ = d.publisher.Close()
	}
	if d.events != nil {
		if err := d.events.Close(); err != nil {
			slog.Warn("Event journal close failed", logfields.Error(err))
		}
	}

	d.mu.Lock()
	d.status = "stopped"
	d.mu.Unlock()

	slog.Info("osforge daemon stopped")
	return nil
}

// onConfigReload applies safe runtime changes from a rewritten config file.
// Only the log level may change without a restart.
func (d *Daemon) onConfigReload(newCfg *config.Config) {
	if d.logLevel == nil {
		return
	}
	level := config.NormalizeLogLevel(newCfg.Logging.Level).SlogLevel()
	if d.logLevel.Level() != level {
		d.logLevel.Set(level)
		slog.Info("Log level changed", slog.String("level", level.String()))
	}
}

// GetStatus reports the daemon lifecycle state.
func (d *Daemon) GetStatus() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// StartTime reports when the daemon finished starting.
func (d *Daemon) StartTime() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.startTime
}

// ActiveBuilds reports how many pipelines are currently executing.
func (d *Daemon) ActiveBuilds() int {
	return d.dispatcher.ActiveBuilds()
}

// ConcurrentBuilds reports the configured concurrency cap.
func (d *Daemon) ConcurrentBuilds() int {
	return d.cfg.Build.ConcurrentBuilds
}

// Addr returns the bound API address, valid after Start.
func (d *Daemon) Addr() string {
	return d.server.Addr()
}
