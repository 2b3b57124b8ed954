package toolchain

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/osforge/internal/spec"
)

// baseSystemPackages is the minimal set each base distribution always installs.
var baseSystemPackages = map[spec.BaseDistribution][]string{
	spec.BaseArch:   {"base", "linux-firmware", "pacman", "coreutils", "util-linux"},
	spec.BaseDebian: {"base-files", "apt", "coreutils", "util-linux", "init-system-helpers"},
	spec.BaseAlpine: {"alpine-base", "apk-tools", "busybox", "musl-utils"},
}

// LocalResolver resolves package categories against a built-in base catalog.
type LocalResolver struct{}

// NewLocalResolver creates the default package resolver.
func NewLocalResolver() *LocalResolver { return &LocalResolver{} }

// Resolve merges the base system set, the kernel package and all requested
// categories into one deduplicated, stably ordered package list.
func (r *LocalResolver) Resolve(ctx context.Context, s *spec.BuildSpecification, logf LogFunc) (*ResolvedSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base, ok := baseSystemPackages[s.Base]
	if !ok {
		return nil, fmt.Errorf("no package catalog for base distribution %q", s.Base)
	}

	logf("Resolving package set for %s (%s)", s.Base, s.Architecture)

	seen := make(map[string]bool)
	resolved := make([]string, 0, len(base)+s.PackageCount()+2)
	add := func(pkg string) {
		if pkg == "" || seen[pkg] {
			return
		}
		seen[pkg] = true
		resolved = append(resolved, pkg)
	}

	for _, pkg := range base {
		add(pkg)
	}
	add(s.Kernel)
	add(s.Init)

	// Category order is fixed so resolution is deterministic for a given spec.
	for _, category := range spec.PackageCategories {
		pkgs := s.Packages[category]
		if len(pkgs) == 0 {
			continue
		}
		logf("Category %s: %d package(s)", category, len(pkgs))
		for _, pkg := range pkgs {
			add(pkg)
		}
	}

	logf("Resolved %d packages against %s", len(resolved), s.Base)

	return &ResolvedSet{
		Base:     s.Base,
		Kernel:   s.Kernel,
		Packages: resolved,
	}, nil
}
