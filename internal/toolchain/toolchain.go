// Package toolchain defines the capability interfaces consumed by the
// pipeline executor and provides local implementations of each. Every
// collaborator has one entry point and reports free-text log lines through
// the supplied LogFunc, so fakes can be substituted in tests.
package toolchain

import (
	"context"

	"git.home.luguber.info/inful/osforge/internal/spec"
)

// LogFunc receives human-readable progress lines. Implementations append
// them to the build record immediately, so polling clients observe
// progress mid-stage.
type LogFunc func(format string, args ...any)

// ResolvedSet is the outcome of package resolution: the base system plus
// all requested categories, deduplicated in stable order.
type ResolvedSet struct {
	Base     spec.BaseDistribution
	Kernel   string
	Packages []string
}

// RootFS is a handle to a staged root filesystem directory.
type RootFS struct {
	Path     string
	Base     spec.BaseDistribution
	Packages int
}

// PackageResolver validates and resolves the requested package categories
// against the chosen base distribution.
type PackageResolver interface {
	Resolve(ctx context.Context, s *spec.BuildSpecification, logf LogFunc) (*ResolvedSet, error)
}

// Bootstrapper stages a base root filesystem with the resolved package set
// installed.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, set *ResolvedSet, s *spec.BuildSpecification, dir string, logf LogFunc) (*RootFS, error)
}

// IsoMaster produces a bootable ISO image from a configured root filesystem
// and returns the image path.
type IsoMaster interface {
	MasterISO(ctx context.Context, rootfs *RootFS, outPath, volumeLabel string, logf LogFunc) (string, error)
}

// ImageBuilder produces a container image from the same configured root
// filesystem and returns the image reference.
type ImageBuilder interface {
	BuildImage(ctx context.Context, rootfs *RootFS, outPath, imageRef string, logf LogFunc) (string, error)
}

// Toolchain bundles the four collaborators injected into the executor.
type Toolchain struct {
	Resolver     PackageResolver
	Bootstrapper Bootstrapper
	IsoMaster    IsoMaster
	ImageBuilder ImageBuilder
}

// NewLocal returns a toolchain backed entirely by local implementations:
// catalog-based resolution, directory staging, an ISO-9660 writer and a
// docker-save image tarball builder.
func NewLocal() *Toolchain {
	return &Toolchain{
		Resolver:     NewLocalResolver(),
		Bootstrapper: NewLocalBootstrapper(),
		IsoMaster:    NewIso9660Master(),
		ImageBuilder: NewTarballImageBuilder(),
	}
}
