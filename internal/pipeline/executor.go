package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"git.home.luguber.info/inful/osforge/internal/errors"
	"git.home.luguber.info/inful/osforge/internal/eventstore"
	"git.home.luguber.info/inful/osforge/internal/logfields"
	"git.home.luguber.info/inful/osforge/internal/metrics"
	"git.home.luguber.info/inful/osforge/internal/observability"
	"git.home.luguber.info/inful/osforge/internal/store"
	"git.home.luguber.info/inful/osforge/internal/toolchain"
)

// Notifier receives terminal build transitions, typically forwarded to a
// message broker. Implementations must be non-blocking or fast.
type Notifier interface {
	BuildFinalized(ctx context.Context, buildID string, status store.Status)
}

// Options configures where the executor stages and emits build output.
type Options struct {
	// Workdir is the root under which per-build directories are created.
	Workdir string
	// RegistryPrefix, when set, yields an additional docker-image-ref
	// artifact tagged under this prefix.
	RegistryPrefix string
	// KeepStaging leaves the staged root filesystem on disk after the
	// build instead of removing it.
	KeepStaging bool
}

// Executor runs the stage sequence for one build. It is the single writer
// of that build's record; the record store provides snapshots to readers.
type Executor struct {
	records  store.RecordStore
	tools    *toolchain.Toolchain
	opts     Options
	journal  *eventstore.Journal
	metrics  metrics.Recorder
	notifier Notifier
	stages   func() []Stage
}

// NewExecutor creates an executor with no-op observability. Use the With
// methods to attach a journal, metrics recorder or notifier.
func NewExecutor(records store.RecordStore, tools *toolchain.Toolchain, opts Options) *Executor {
	return &Executor{
		records: records,
		tools:   tools,
		opts:    opts,
		journal: eventstore.NewJournal(nil),
		metrics: metrics.NoopRecorder{},
		stages:  defaultSequence,
	}
}

// WithJournal attaches a build event journal.
func (e *Executor) WithJournal(j *eventstore.Journal) *Executor {
	if j != nil {
		e.journal = j
	}
	return e
}

// WithMetrics attaches a metrics recorder.
func (e *Executor) WithMetrics(m metrics.Recorder) *Executor {
	if m != nil {
		e.metrics = m
	}
	return e
}

// WithNotifier attaches a lifecycle notifier.
func (e *Executor) WithNotifier(n Notifier) *Executor {
	e.notifier = n
	return e
}

// Execute runs the full pipeline for buildID and finalizes the record as
// SUCCESS or FAILURE. The returned error describes the failure; callers
// that only care about the record may ignore it.
func (e *Executor) Execute(ctx context.Context, buildID string) error {
	rec, err := e.records.Get(buildID)
	if err != nil {
		return err
	}

	started := time.Now()
	if err := e.records.SetStatus(buildID, store.StatusInProgress); err != nil {
		return err
	}
	slog.Info("Build started",
		logfields.BuildID(buildID),
		logfields.Base(string(rec.Spec.Base)),
		logfields.Architecture(string(rec.Spec.Architecture)))

	outputDir := filepath.Join(e.opts.Workdir, buildID)
	stagingDir := filepath.Join(outputDir, "staging")
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		wrapped := errors.Wrap(err, errors.CategoryStage, "failed to create build workspace").
			WithContext("build_id", buildID)
		e.appendLog(buildID, "Build failed: cannot create workspace: %v", err)
		e.finalize(ctx, buildID, store.StatusFailure, started)
		return wrapped
	}

	sc := &StageContext{
		BuildID:        buildID,
		Spec:           rec.Spec,
		StagingDir:     stagingDir,
		OutputDir:      outputDir,
		RegistryPrefix: e.opts.RegistryPrefix,
		Tools:          e.tools,
		Logf: func(format string, args ...any) {
			e.appendLog(buildID, format, args...)
		},
		registerArtifact: func(a store.Artifact) error {
			if err := e.records.AddArtifact(buildID, a); err != nil {
				return err
			}
			e.journal.ArtifactAdded(ctx, buildID, string(a.FileType), a.FileName)
			return nil
		},
	}

	defer e.cleanup(buildID, stagingDir)

	for _, stage := range e.stages() {
		if err := e.runStage(ctx, stage, sc); err != nil {
			e.appendLog(buildID, "Stage %s failed: %v", stage.Name(), err)
			e.finalize(ctx, buildID, store.StatusFailure, started)
			return errors.Wrap(err, errors.CategoryStage, "pipeline stage failed").
				WithContext("build_id", buildID).
				WithContext("stage", stage.Name())
		}
	}

	if missing := e.missingArtifactType(buildID); missing != "" {
		e.appendLog(buildID, "Build incomplete: no artifact of type %s was produced", missing)
		e.finalize(ctx, buildID, store.StatusFailure, started)
		return errors.IntegrityError("artifact completeness check failed").
			WithContext("build_id", buildID).
			WithContext("missing_type", missing)
	}

	e.appendLog(buildID, "Build completed successfully")
	e.finalize(ctx, buildID, store.StatusSuccess, started)
	return nil
}

// runStage runs one stage with timing, journaling and panic containment.
// A panicking stage is reported as a stage failure, not a process crash.
func (e *Executor) runStage(ctx context.Context, stage Stage, sc *StageContext) (err error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	name := stage.Name()
	ctx = observability.WithStage(ctx, name)
	started := time.Now()
	e.journal.StageStarted(ctx, sc.BuildID, name)
	e.appendLog(sc.BuildID, "Stage %s started", name)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panicked: %v", r)
		}
		d := time.Since(started)
		e.metrics.ObserveStageDuration(name, d)
		if err != nil {
			e.metrics.IncStageResult(name, metrics.ResultFailure)
			e.journal.StageFailed(ctx, sc.BuildID, name, d, err.Error())
			observability.ErrorContext(ctx, "Stage failed",
				logfields.BuildID(sc.BuildID),
				logfields.Error(err))
			return
		}
		e.metrics.IncStageResult(name, metrics.ResultSuccess)
		e.journal.StageCompleted(ctx, sc.BuildID, name, d)
		e.appendLog(sc.BuildID, "Stage %s completed", name)
	}()

	return stage.Run(ctx, sc)
}

// missingArtifactType checks the completeness invariant: a successful build
// must have produced a bootable image and a container image. Returns the
// missing type name, or empty when the record is complete.
func (e *Executor) missingArtifactType(buildID string) string {
	rec, err := e.records.Get(buildID)
	if err != nil {
		return string(store.ArtifactISO)
	}
	if !rec.HasArtifactType(store.ArtifactISO) {
		return string(store.ArtifactISO)
	}
	if !rec.HasArtifactType(store.ArtifactDockerImage) && !rec.HasArtifactType(store.ArtifactDockerImageRef) {
		return string(store.ArtifactDockerImage)
	}
	return ""
}

func (e *Executor) finalize(ctx context.Context, buildID string, status store.Status, started time.Time) {
	if err := e.records.SetStatus(buildID, status); err != nil {
		slog.Error("Failed to finalize build record",
			logfields.BuildID(buildID),
			logfields.Status(string(status)),
			logfields.Error(err))
	}

	duration := time.Since(started)
	artifacts := 0
	if rec, err := e.records.Get(buildID); err == nil {
		artifacts = len(rec.Artifacts)
	}
	e.journal.BuildFinalized(ctx, buildID, string(status), duration, artifacts)
	e.metrics.ObserveBuildDuration(duration)
	if status == store.StatusSuccess {
		e.metrics.IncBuildOutcome(metrics.OutcomeSuccess)
	} else {
		e.metrics.IncBuildOutcome(metrics.OutcomeFailure)
	}
	if e.notifier != nil {
		e.notifier.BuildFinalized(ctx, buildID, status)
	}

	slog.Info("Build finalized",
		logfields.BuildID(buildID),
		logfields.Status(string(status)),
		logfields.DurationMS(float64(duration.Milliseconds())))
}

// cleanup removes the staged root filesystem. Output artifacts stay.
func (e *Executor) cleanup(buildID, stagingDir string) {
	if e.opts.KeepStaging {
		return
	}
	if err := os.RemoveAll(stagingDir); err != nil {
		slog.Warn("Failed to remove staging directory",
			logfields.BuildID(buildID),
			logfields.Path(stagingDir),
			logfields.Error(err))
	}
}

// appendLog writes one formatted line to the build record. Failures are
// logged but never interrupt the pipeline.
func (e *Executor) appendLog(buildID, format string, args ...any) {
	if err := e.records.AppendLog(buildID, fmt.Sprintf(format, args...)); err != nil {
		slog.Warn("Failed to append build log", logfields.BuildID(buildID), logfields.Error(err))
	}
}
