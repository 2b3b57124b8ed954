// Package store holds the authoritative in-memory table of build state.
package store

import (
	"time"

	"git.home.luguber.info/inful/osforge/internal/spec"
)

// Status represents the lifecycle state of a build.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
	StatusFailure    Status = "FAILURE"
)

// IsTerminal reports whether the status is final.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// rank orders statuses along the state machine; transitions must not go
// backwards.
func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusSuccess, StatusFailure:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next is legal.
// Terminal states are absorbing.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	return next.rank() > s.rank()
}

// ArtifactType enumerates known build output types.
type ArtifactType string

const (
	ArtifactISO            ArtifactType = "iso"
	ArtifactDockerImage    ArtifactType = "docker-image"
	ArtifactDockerImageRef ArtifactType = "docker-image-ref"
)

// Artifact is a typed, named, addressable output of a successful stage.
type Artifact struct {
	FileType ArtifactType `json:"fileType"`
	FileName string       `json:"fileName"`
	URL      string       `json:"url"`
}

// LogEntry is one line of build output. Field names match the status API
// contract consumed by polling clients.
type LogEntry struct {
	CreatedAt time.Time `json:"createdAt"`
	Message   string    `json:"message"`
}

// BuildRecord is the mutable state of one accepted build. During execution
// only that build's executor mutates it; any number of status readers may
// observe it concurrently through snapshots.
type BuildRecord struct {
	BuildID     string                   `json:"buildId"`
	Spec        *spec.BuildSpecification `json:"spec"`
	Status      Status                   `json:"status"`
	Logs        []LogEntry               `json:"logs"`
	Artifacts   []Artifact               `json:"artifacts"`
	CreatedAt   time.Time                `json:"createdAt"`
	CompletedAt *time.Time               `json:"completedAt,omitempty"`
}

// HasArtifactType reports whether any artifact of the given type is recorded.
func (r *BuildRecord) HasArtifactType(t ArtifactType) bool {
	for _, a := range r.Artifacts {
		if a.FileType == t {
			return true
		}
	}
	return false
}

// snapshot returns a deep-enough copy: slices are duplicated so readers
// never alias writer-owned backing arrays. The spec itself is immutable
// and shared.
func (r *BuildRecord) snapshot() *BuildRecord {
	cp := *r
	cp.Logs = append([]LogEntry(nil), r.Logs...)
	cp.Artifacts = append([]Artifact(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
