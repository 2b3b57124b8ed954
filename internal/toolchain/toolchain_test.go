package toolchain

import (
	"archive/tar"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kdomanski/iso9660"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/osforge/internal/spec"
)

func testSpec() *spec.BuildSpecification {
	return &spec.BuildSpecification{
		Base:         spec.BaseArch,
		Kernel:       "linux-zen",
		Init:         "systemd",
		Architecture: spec.ArchX8664,
		Packages: map[string][]string{
			"system": {"networkmanager", "openssh"},
			"dev":    {"git", "go"},
			"utils":  {"htop", "git"},
		},
	}
}

func discardLog(string, ...any) {}

func TestLocalResolverMergesAndDeduplicates(t *testing.T) {
	set, err := NewLocalResolver().Resolve(context.Background(), testSpec(), discardLog)
	require.NoError(t, err)

	assert.Equal(t, spec.BaseArch, set.Base)
	assert.Equal(t, "linux-zen", set.Kernel)

	seen := make(map[string]int)
	for _, pkg := range set.Packages {
		seen[pkg]++
	}
	for pkg, count := range seen {
		assert.Equal(t, 1, count, "package %s appears more than once", pkg)
	}

	assert.Contains(t, set.Packages, "base")
	assert.Contains(t, set.Packages, "linux-zen")
	assert.Contains(t, set.Packages, "systemd")
	assert.Contains(t, set.Packages, "networkmanager")
	assert.Contains(t, set.Packages, "go")
	assert.Contains(t, set.Packages, "htop")
}

func TestLocalResolverStableOrder(t *testing.T) {
	ctx := context.Background()
	r := NewLocalResolver()

	first, err := r.Resolve(ctx, testSpec(), discardLog)
	require.NoError(t, err)
	second, err := r.Resolve(ctx, testSpec(), discardLog)
	require.NoError(t, err)

	assert.Equal(t, first.Packages, second.Packages)
}

func TestLocalResolverUnknownBase(t *testing.T) {
	s := testSpec()
	s.Base = spec.BaseDistribution("gentoo")

	_, err := NewLocalResolver().Resolve(context.Background(), s, discardLog)
	assert.Error(t, err)
}

func TestLocalBootstrapperStagesRootFS(t *testing.T) {
	ctx := context.Background()
	s := testSpec()
	set, err := NewLocalResolver().Resolve(ctx, s, discardLog)
	require.NoError(t, err)

	dir := t.TempDir()
	rootfs, err := NewLocalBootstrapper().Bootstrap(ctx, set, s, dir, discardLog)
	require.NoError(t, err)
	require.NotNil(t, rootfs)

	assert.Equal(t, filepath.Join(dir, "rootfs"), rootfs.Path)
	assert.Equal(t, len(set.Packages), rootfs.Packages)

	osRelease, err := rootfs.ReadFile("etc/os-release")
	require.NoError(t, err)
	assert.Contains(t, osRelease, "ID=arch")
	assert.Contains(t, osRelease, "KERNEL=linux-zen")

	manifest, err := rootfs.ReadFile("var/lib/osforge/packages.manifest")
	require.NoError(t, err)
	for _, pkg := range set.Packages {
		assert.Contains(t, manifest, pkg)
	}

	_, err = os.Stat(filepath.Join(rootfs.Path, "boot", "vmlinuz-linux-zen"))
	assert.NoError(t, err)
}

func TestLocalBootstrapperRejectsEmptySet(t *testing.T) {
	_, err := NewLocalBootstrapper().Bootstrap(context.Background(), &ResolvedSet{}, testSpec(), t.TempDir(), discardLog)
	assert.Error(t, err)
}

func TestRootFSWriteFileCreatesParents(t *testing.T) {
	rootfs := &RootFS{Path: t.TempDir()}
	require.NoError(t, rootfs.WriteFile("etc/sysctl.d/99-forge.conf", "vm.swappiness=10\n"))

	content, err := rootfs.ReadFile("etc/sysctl.d/99-forge.conf")
	require.NoError(t, err)
	assert.Equal(t, "vm.swappiness=10\n", content)
}

func TestIso9660MasterWritesOpenableImage(t *testing.T) {
	rootfs := &RootFS{Path: t.TempDir(), Base: spec.BaseArch}
	require.NoError(t, rootfs.WriteFile("etc/hostname", "forge\n"))
	require.NoError(t, rootfs.WriteFile("boot/vmlinuz-linux", "kernel\n"))

	outPath := filepath.Join(t.TempDir(), "forge.iso")
	got, err := NewIso9660Master().MasterISO(context.Background(), rootfs, outPath, "arch x86_64", discardLog)
	require.NoError(t, err)
	assert.Equal(t, outPath, got)

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()

	img, err := iso9660.OpenImage(f)
	require.NoError(t, err)
	root, err := img.RootDir()
	require.NoError(t, err)
	children, err := root.GetChildren()
	require.NoError(t, err)
	assert.NotEmpty(t, children)
}

func TestIso9660MasterRequiresRootFS(t *testing.T) {
	_, err := NewIso9660Master().MasterISO(context.Background(), nil, filepath.Join(t.TempDir(), "x.iso"), "X", discardLog)
	assert.Error(t, err)
}

func TestSanitizeVolumeLabel(t *testing.T) {
	tests := []struct {
		name  string
		parts []string
		want  string
	}{
		{"lowercase and spaces", []string{"arch x86_64"}, "ARCH_X86_64"},
		{"joined parts", []string{"debian", "aarch64"}, "DEBIAN_AARCH64"},
		{"empty input", nil, "OSFORGE"},
		{"truncated", []string{strings.Repeat("a", 50)}, strings.Repeat("A", 32)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeVolumeLabel(tt.parts...))
		})
	}
}

func TestTarballImageBuilderProducesLoadableLayout(t *testing.T) {
	rootfs := &RootFS{Path: t.TempDir(), Base: spec.BaseAlpine}
	require.NoError(t, rootfs.WriteFile("etc/os-release", "ID=alpine\n"))
	require.NoError(t, rootfs.WriteFile("etc/hostname", "forge\n"))

	outPath := filepath.Join(t.TempDir(), "image.tar")
	ref, err := NewTarballImageBuilder().BuildImage(context.Background(), rootfs, outPath, "osforge/build:abc123", discardLog)
	require.NoError(t, err)
	assert.Equal(t, "osforge/build:abc123", ref)

	f, err := os.Open(outPath)
	require.NoError(t, err)
	defer f.Close()

	entries := make(map[string][]byte)
	tr := tar.NewReader(f)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		entries[hdr.Name] = data
	}

	manifestBytes, ok := entries["manifest.json"]
	require.True(t, ok, "manifest.json missing from image tarball")

	var manifest []struct {
		Config   string   `json:"Config"`
		RepoTags []string `json:"RepoTags"`
		Layers   []string `json:"Layers"`
	}
	require.NoError(t, json.Unmarshal(manifestBytes, &manifest))
	require.Len(t, manifest, 1)
	assert.Equal(t, []string{"osforge/build:abc123"}, manifest[0].RepoTags)
	assert.Equal(t, []string{"layer.tar.gz"}, manifest[0].Layers)

	cfgBytes, ok := entries[manifest[0].Config]
	require.True(t, ok, "config %s missing from image tarball", manifest[0].Config)

	var cfg struct {
		OS     string `json:"os"`
		RootFS struct {
			Type    string   `json:"type"`
			DiffIDs []string `json:"diff_ids"`
		} `json:"rootfs"`
	}
	require.NoError(t, json.Unmarshal(cfgBytes, &cfg))
	assert.Equal(t, "linux", cfg.OS)
	require.Len(t, cfg.RootFS.DiffIDs, 1)
	assert.True(t, strings.HasPrefix(cfg.RootFS.DiffIDs[0], "sha256:"))

	layerBytes, ok := entries["layer.tar.gz"]
	require.True(t, ok, "layer.tar.gz missing from image tarball")

	gz, err := gzip.NewReader(strings.NewReader(string(layerBytes)))
	require.NoError(t, err)
	layer := tar.NewReader(gz)
	names := make([]string, 0, 4)
	for {
		hdr, err := layer.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
	}
	assert.Contains(t, names, "etc/os-release")
	assert.Contains(t, names, "etc/hostname")
}

func TestTarballImageBuilderRequiresReference(t *testing.T) {
	rootfs := &RootFS{Path: t.TempDir()}
	_, err := NewTarballImageBuilder().BuildImage(context.Background(), rootfs, filepath.Join(t.TempDir(), "img.tar"), "", discardLog)
	assert.Error(t, err)
}
