// Package dispatcher accepts validated build submissions, creates their
// records and launches one pipeline executor per build. Builds run
// concurrently and never block each other; the dispatcher only bounds how
// many run at once.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"

	"git.home.luguber.info/inful/osforge/internal/errors"
	"git.home.luguber.info/inful/osforge/internal/eventstore"
	"git.home.luguber.info/inful/osforge/internal/logfields"
	"git.home.luguber.info/inful/osforge/internal/metrics"
	"git.home.luguber.info/inful/osforge/internal/observability"
	"git.home.luguber.info/inful/osforge/internal/pipeline"
	"git.home.luguber.info/inful/osforge/internal/spec"
	"git.home.luguber.info/inful/osforge/internal/store"
)

// AcceptNotifier receives accepted submissions, typically forwarded to a
// message broker.
type AcceptNotifier interface {
	BuildAccepted(ctx context.Context, buildID string)
}

// Dispatcher validates submissions synchronously and runs accepted builds
// asynchronously.
type Dispatcher struct {
	validator *spec.Validator
	records   store.RecordStore
	executor  *pipeline.Executor
	journal   *eventstore.Journal
	metrics   metrics.Recorder
	notifier  AcceptNotifier

	workers WorkerGroup
	sem     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	handles map[string]context.CancelFunc
	active  int
}

// New creates a dispatcher. concurrentBuilds caps parallel pipelines;
// zero or negative means unlimited.
func New(records store.RecordStore, executor *pipeline.Executor, concurrentBuilds int) *Dispatcher {
	ctx, cancel := context.WithCancel(context.Background())

	var sem chan struct{}
	if concurrentBuilds > 0 {
		sem = make(chan struct{}, concurrentBuilds)
	}

	return &Dispatcher{
		validator: spec.NewValidator(),
		records:   records,
		executor:  executor,
		journal:   eventstore.NewJournal(nil),
		metrics:   metrics.NoopRecorder{},
		sem:       sem,
		ctx:       ctx,
		cancel:    cancel,
		handles:   make(map[string]context.CancelFunc),
	}
}

// WithJournal attaches a build event journal.
func (d *Dispatcher) WithJournal(j *eventstore.Journal) *Dispatcher {
	if j != nil {
		d.journal = j
	}
	return d
}

// WithMetrics attaches a metrics recorder.
func (d *Dispatcher) WithMetrics(m metrics.Recorder) *Dispatcher {
	if m != nil {
		d.metrics = m
	}
	return d
}

// WithNotifier attaches an accept notifier.
func (d *Dispatcher) WithNotifier(n AcceptNotifier) *Dispatcher {
	d.notifier = n
	return d
}

// Submit validates raw JSON, creates a PENDING record and launches its
// executor. Returns the build identifier immediately; validation failures
// are synchronous and create no record.
func (d *Dispatcher) Submit(raw []byte) (string, error) {
	validated, err := d.validator.ValidateJSON(raw)
	if err != nil {
		d.metrics.IncSubmissions(false)
		return "", err
	}

	buildID, err := d.records.Create(validated)
	if err != nil {
		d.metrics.IncSubmissions(false)
		return "", err
	}

	launched := d.workers.Go(func() {
		d.run(buildID)
	})
	if !launched {
		// Shutting down: withdraw the record so the caller never polls a
		// build that will not run.
		if delErr := d.records.Delete(buildID); delErr != nil {
			slog.Warn("Failed to withdraw unlaunched build", logfields.BuildID(buildID), logfields.Error(delErr))
		}
		d.metrics.IncSubmissions(false)
		return "", errors.DaemonError("daemon is shutting down, submission rejected")
	}

	d.metrics.IncSubmissions(true)
	d.journal.BuildAccepted(d.ctx, buildID, string(validated.Base), string(validated.Architecture))
	if d.notifier != nil {
		d.notifier.BuildAccepted(d.ctx, buildID)
	}

	slog.Info("Build accepted",
		logfields.BuildID(buildID),
		logfields.Base(string(validated.Base)),
		logfields.Architecture(string(validated.Architecture)))

	return buildID, nil
}

// run executes one build end to end, respecting the concurrency cap.
func (d *Dispatcher) run(buildID string) {
	if d.sem != nil {
		select {
		case d.sem <- struct{}{}:
			defer func() { <-d.sem }()
		case <-d.ctx.Done():
			d.abandon(buildID)
			return
		}
	}

	buildCtx, cancel := context.WithCancel(observability.WithBuildID(d.ctx, buildID))
	d.track(buildID, cancel)
	defer d.untrack(buildID)

	if err := d.executor.Execute(buildCtx, buildID); err != nil {
		slog.Warn("Build did not succeed", logfields.BuildID(buildID), logfields.Error(err))
	}
}

// abandon finalizes a build that was accepted but never started because the
// daemon is stopping.
func (d *Dispatcher) abandon(buildID string) {
	if err := d.records.AppendLog(buildID, "Build abandoned: daemon shutting down before execution started"); err == nil {
		if err := d.records.SetStatus(buildID, store.StatusFailure); err != nil {
			slog.Warn("Failed to fail abandoned build", logfields.BuildID(buildID), logfields.Error(err))
		}
	}
}

func (d *Dispatcher) track(buildID string, cancel context.CancelFunc) {
	d.mu.Lock()
	d.handles[buildID] = cancel
	d.active++
	active := d.active
	d.mu.Unlock()
	d.metrics.SetActiveBuilds(active)
}

func (d *Dispatcher) untrack(buildID string) {
	d.mu.Lock()
	if cancel, ok := d.handles[buildID]; ok {
		cancel()
		delete(d.handles, buildID)
	}
	d.active--
	active := d.active
	d.mu.Unlock()
	d.metrics.SetActiveBuilds(active)
}

// ActiveBuilds reports how many executors are currently running.
func (d *Dispatcher) ActiveBuilds() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

// StopAndWait rejects new submissions and waits for running builds, bounded
// by ctx. Builds still running when the bound expires keep their last
// persisted state and are cancelled through their contexts.
func (d *Dispatcher) StopAndWait(ctx context.Context) error {
	err := d.workers.StopAndWait(ctx)
	if err != nil {
		// Grace period elapsed: cancel stragglers.
		d.cancel()
		return err
	}
	d.cancel()
	return nil
}
