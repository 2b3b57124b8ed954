// Package pipeline runs the ordered stage sequence for one accepted build:
// resolve, bootstrap, system configuration, display configuration, ISO
// mastering, container image, finalization. The executor owns the build
// record's status transitions and appends every log line immediately so
// polling clients observe progress mid-stage.
package pipeline

import (
	"context"

	"git.home.luguber.info/inful/osforge/internal/spec"
	"git.home.luguber.info/inful/osforge/internal/store"
	"git.home.luguber.info/inful/osforge/internal/toolchain"
)

// Stage is one ordered unit of work within a build. Run either succeeds or
// returns an error that terminates the pipeline; no later stage executes
// after a failure.
type Stage interface {
	Name() string
	Run(ctx context.Context, sc *StageContext) error
}

// StageContext carries the build's immutable inputs, the shared toolchain
// and the mutable intermediate state handed from stage to stage. Artifacts
// registered here land in the build record immediately.
type StageContext struct {
	BuildID        string
	Spec           *spec.BuildSpecification
	StagingDir     string
	OutputDir      string
	RegistryPrefix string
	Tools          *toolchain.Toolchain
	Logf           toolchain.LogFunc

	// Populated by earlier stages for later ones.
	Resolved *toolchain.ResolvedSet
	RootFS   *toolchain.RootFS

	registerArtifact func(store.Artifact) error
	artifacts        []store.Artifact
}

// RegisterArtifact records a typed output artifact on the build record.
func (sc *StageContext) RegisterArtifact(a store.Artifact) error {
	if err := sc.registerArtifact(a); err != nil {
		return err
	}
	sc.artifacts = append(sc.artifacts, a)
	return nil
}

// Artifacts returns the artifacts registered so far, in registration order.
func (sc *StageContext) Artifacts() []store.Artifact {
	return sc.artifacts
}

// shortID returns the leading segment of a build identifier, used in
// artifact names and image tags.
func shortID(buildID string) string {
	if len(buildID) > 8 {
		return buildID[:8]
	}
	return buildID
}
