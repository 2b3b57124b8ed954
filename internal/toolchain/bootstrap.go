package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/osforge/internal/spec"
)

// rootfsSkeleton is the directory layout staged for every base distribution.
var rootfsSkeleton = []string{
	"boot",
	"etc/sysctl.d",
	"etc/default",
	"etc/osforge",
	"usr/bin",
	"usr/lib",
	"var/lib/osforge",
	"var/log",
}

// LocalBootstrapper stages a root filesystem directory tree in place of a
// real debootstrap/pacstrap invocation.
type LocalBootstrapper struct{}

// NewLocalBootstrapper creates the default filesystem bootstrapper.
func NewLocalBootstrapper() *LocalBootstrapper { return &LocalBootstrapper{} }

// Bootstrap creates the rootfs skeleton under dir and records the installed
// package manifest. The returned handle is what later stages configure.
func (b *LocalBootstrapper) Bootstrap(ctx context.Context, set *ResolvedSet, s *spec.BuildSpecification, dir string, logf LogFunc) (*RootFS, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if set == nil || len(set.Packages) == 0 {
		return nil, fmt.Errorf("resolved package set is empty")
	}

	rootDir := filepath.Join(dir, "rootfs")
	logf("Bootstrapping %s root filesystem at %s", set.Base, rootDir)

	for _, sub := range rootfsSkeleton {
		if err := os.MkdirAll(filepath.Join(rootDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create rootfs directory %s: %w", sub, err)
		}
	}

	rootfs := &RootFS{Path: rootDir, Base: set.Base, Packages: len(set.Packages)}

	osRelease := fmt.Sprintf("NAME=\"osforge %s\"\nID=%s\nARCH=%s\nKERNEL=%s\n",
		set.Base, set.Base, s.Architecture, set.Kernel)
	if err := rootfs.WriteFile("etc/os-release", osRelease); err != nil {
		return nil, err
	}
	if err := rootfs.WriteFile("etc/hostname", "osforge\n"); err != nil {
		return nil, err
	}

	manifest := strings.Join(set.Packages, "\n") + "\n"
	if err := rootfs.WriteFile("var/lib/osforge/packages.manifest", manifest); err != nil {
		return nil, err
	}
	logf("Installed %d packages into root filesystem", len(set.Packages))

	// Kernel image placeholder so the ISO stage has something under /boot.
	kernelImage := fmt.Sprintf("vmlinuz-%s\n", set.Kernel)
	if err := rootfs.WriteFile(filepath.Join("boot", "vmlinuz-"+set.Kernel), kernelImage); err != nil {
		return nil, err
	}
	logf("Installed kernel %s", set.Kernel)

	return rootfs, nil
}

// WriteFile writes a file at a path relative to the rootfs, creating parent
// directories as needed. Stages use this to apply configuration.
func (r *RootFS) WriteFile(rel, content string) error {
	abs := filepath.Join(r.Path, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("create rootfs directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write rootfs file %s: %w", rel, err)
	}
	return nil
}

// ReadFile reads a file at a path relative to the rootfs.
func (r *RootFS) ReadFile(rel string) (string, error) {
	b, err := os.ReadFile(filepath.Join(r.Path, rel))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
