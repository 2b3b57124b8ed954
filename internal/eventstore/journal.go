package eventstore

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Journal is a convenience wrapper over a Store that writes the typed
// lifecycle events emitted by the dispatcher and executor. Journal write
// failures are logged but never fail a build.
type Journal struct {
	store Store
}

// NewJournal wraps a store; a nil store yields a no-op journal.
func NewJournal(store Store) *Journal {
	return &Journal{store: store}
}

func (j *Journal) append(ctx context.Context, buildID, eventType string, payload any) {
	if j == nil || j.store == nil {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("Failed to marshal journal payload", "event_type", eventType, "error", err)
		return
	}
	if err := j.store.Append(ctx, buildID, eventType, b, nil); err != nil {
		slog.Warn("Failed to append journal event", "event_type", eventType, "build_id", buildID, "error", err)
	}
}

// BuildAccepted records a validated submission.
func (j *Journal) BuildAccepted(ctx context.Context, buildID, base, architecture string) {
	j.append(ctx, buildID, TypeBuildAccepted, map[string]string{
		"base":         base,
		"architecture": architecture,
	})
}

// StageStarted records the beginning of one pipeline stage.
func (j *Journal) StageStarted(ctx context.Context, buildID, stage string) {
	j.append(ctx, buildID, TypeStageStarted, StagePayload{Stage: stage})
}

// StageCompleted records a successful stage with its duration.
func (j *Journal) StageCompleted(ctx context.Context, buildID, stage string, d time.Duration) {
	j.append(ctx, buildID, TypeStageCompleted, StagePayload{Stage: stage, DurationMS: d.Milliseconds()})
}

// StageFailed records a failed stage with its diagnostic.
func (j *Journal) StageFailed(ctx context.Context, buildID, stage string, d time.Duration, errMsg string) {
	j.append(ctx, buildID, TypeStageFailed, StagePayload{Stage: stage, DurationMS: d.Milliseconds(), Error: errMsg})
}

// ArtifactAdded records a registered artifact.
func (j *Journal) ArtifactAdded(ctx context.Context, buildID, fileType, fileName string) {
	j.append(ctx, buildID, TypeArtifactAdded, map[string]string{
		"file_type": fileType,
		"file_name": fileName,
	})
}

// BuildFinalized records the terminal status of a build.
func (j *Journal) BuildFinalized(ctx context.Context, buildID, status string, d time.Duration, artifacts int) {
	j.append(ctx, buildID, TypeBuildFinalized, FinalizedPayload{
		Status:     status,
		DurationMS: d.Milliseconds(),
		Artifacts:  artifacts,
	})
}
