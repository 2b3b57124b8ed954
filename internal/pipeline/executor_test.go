package pipeline

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/osforge/internal/spec"
	"git.home.luguber.info/inful/osforge/internal/store"
	"git.home.luguber.info/inful/osforge/internal/toolchain"
)

type fakeResolver struct {
	err   error
	panic bool
}

func (f *fakeResolver) Resolve(_ context.Context, s *spec.BuildSpecification, logf toolchain.LogFunc) (*toolchain.ResolvedSet, error) {
	if f.panic {
		panic("resolver blew up")
	}
	if f.err != nil {
		return nil, f.err
	}
	logf("Resolved 3 packages against %s", s.Base)
	return &toolchain.ResolvedSet{Base: s.Base, Kernel: s.Kernel, Packages: []string{"base", s.Kernel, s.Init}}, nil
}

type fakeBootstrapper struct{ err error }

func (f *fakeBootstrapper) Bootstrap(_ context.Context, set *toolchain.ResolvedSet, _ *spec.BuildSpecification, dir string, logf toolchain.LogFunc) (*toolchain.RootFS, error) {
	if f.err != nil {
		return nil, f.err
	}
	logf("Bootstrapped root filesystem")
	return &toolchain.RootFS{Path: dir, Base: set.Base, Packages: len(set.Packages)}, nil
}

type fakeIsoMaster struct{ err error }

func (f *fakeIsoMaster) MasterISO(_ context.Context, _ *toolchain.RootFS, outPath, _ string, logf toolchain.LogFunc) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	logf("ISO image written")
	return outPath, nil
}

type fakeImageBuilder struct{ err error }

func (f *fakeImageBuilder) BuildImage(_ context.Context, _ *toolchain.RootFS, _, imageRef string, logf toolchain.LogFunc) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	logf("Container image written")
	return imageRef, nil
}

func fakeToolchain() *toolchain.Toolchain {
	return &toolchain.Toolchain{
		Resolver:     &fakeResolver{},
		Bootstrapper: &fakeBootstrapper{},
		IsoMaster:    &fakeIsoMaster{},
		ImageBuilder: &fakeImageBuilder{},
	}
}

func pipelineSpec() *spec.BuildSpecification {
	return &spec.BuildSpecification{
		Base:         spec.BaseArch,
		Kernel:       "linux",
		Init:         "systemd",
		Architecture: spec.ArchX8664,
		Packages:     map[string][]string{},
	}
}

func newBuild(t *testing.T, st store.RecordStore) string {
	t.Helper()
	id, err := st.Create(pipelineSpec())
	require.NoError(t, err)
	return id
}

func logMessages(rec *store.BuildRecord) []string {
	out := make([]string, 0, len(rec.Logs))
	for _, l := range rec.Logs {
		out = append(out, l.Message)
	}
	return out
}

func TestExecuteSuccess(t *testing.T) {
	st := store.NewInMemoryStore()
	id := newBuild(t, st)
	exec := NewExecutor(st, fakeToolchain(), Options{Workdir: t.TempDir()})

	require.NoError(t, exec.Execute(context.Background(), id))

	rec, err := st.Get(id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuccess, rec.Status)
	require.NotNil(t, rec.CompletedAt)

	assert.True(t, rec.HasArtifactType(store.ArtifactISO))
	assert.True(t, rec.HasArtifactType(store.ArtifactDockerImage))
	assert.False(t, rec.HasArtifactType(store.ArtifactDockerImageRef))

	logs := strings.Join(logMessages(rec), "\n")
	assert.Contains(t, logs, "Stage resolve started")
	assert.Contains(t, logs, "Stage finalize completed")
	assert.Contains(t, logs, "Build completed successfully")
}

func TestExecuteRegistryPrefixAddsImageRef(t *testing.T) {
	st := store.NewInMemoryStore()
	id := newBuild(t, st)
	exec := NewExecutor(st, fakeToolchain(), Options{
		Workdir:        t.TempDir(),
		RegistryPrefix: "registry.local",
	})

	require.NoError(t, exec.Execute(context.Background(), id))

	rec, err := st.Get(id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusSuccess, rec.Status)
	assert.True(t, rec.HasArtifactType(store.ArtifactDockerImageRef))

	for _, a := range rec.Artifacts {
		if a.FileType == store.ArtifactDockerImageRef {
			assert.True(t, strings.HasPrefix(a.URL, "registry.local/osforge:"), "unexpected ref %q", a.URL)
		}
	}
}

func TestExecuteStageFailureStopsPipeline(t *testing.T) {
	tc := fakeToolchain()
	tc.IsoMaster = &fakeIsoMaster{err: fmt.Errorf("mastering tool exited 1")}

	st := store.NewInMemoryStore()
	id := newBuild(t, st)
	exec := NewExecutor(st, tc, Options{Workdir: t.TempDir()})

	err := exec.Execute(context.Background(), id)
	require.Error(t, err)

	rec, getErr := st.Get(id)
	require.NoError(t, getErr)
	assert.Equal(t, store.StatusFailure, rec.Status)
	assert.False(t, rec.HasArtifactType(store.ArtifactISO))
	assert.Empty(t, rec.Artifacts)

	logs := strings.Join(logMessages(rec), "\n")
	assert.Contains(t, logs, "Stage iso failed: mastering tool exited 1")
	assert.NotContains(t, logs, "Stage container-image started")
	assert.NotContains(t, logs, "Stage finalize started")
}

func TestExecuteEarlyFailureProducesNoArtifacts(t *testing.T) {
	tc := fakeToolchain()
	tc.Resolver = &fakeResolver{err: fmt.Errorf("unknown package category")}

	st := store.NewInMemoryStore()
	id := newBuild(t, st)
	exec := NewExecutor(st, tc, Options{Workdir: t.TempDir()})

	require.Error(t, exec.Execute(context.Background(), id))

	rec, err := st.Get(id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailure, rec.Status)
	assert.Empty(t, rec.Artifacts)

	logs := strings.Join(logMessages(rec), "\n")
	assert.Contains(t, logs, "Stage resolve failed")
	assert.NotContains(t, logs, "Stage bootstrap started")
}

func TestExecutePanicContainedAsFailure(t *testing.T) {
	tc := fakeToolchain()
	tc.Resolver = &fakeResolver{panic: true}

	st := store.NewInMemoryStore()
	id := newBuild(t, st)
	exec := NewExecutor(st, tc, Options{Workdir: t.TempDir()})

	require.Error(t, exec.Execute(context.Background(), id))

	rec, err := st.Get(id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailure, rec.Status)

	logs := strings.Join(logMessages(rec), "\n")
	assert.Contains(t, logs, "stage panicked")
}

func TestExecuteCompletenessInvariant(t *testing.T) {
	st := store.NewInMemoryStore()
	id := newBuild(t, st)
	exec := NewExecutor(st, fakeToolchain(), Options{Workdir: t.TempDir()})

	// All stages succeed but none registers the bootable image.
	exec.stages = func() []Stage {
		return []Stage{resolveStage{}, bootstrapStage{}, containerStage{}, finalizeStage{}}
	}

	err := exec.Execute(context.Background(), id)
	require.Error(t, err)

	rec, getErr := st.Get(id)
	require.NoError(t, getErr)
	assert.Equal(t, store.StatusFailure, rec.Status)

	logs := strings.Join(logMessages(rec), "\n")
	assert.Contains(t, logs, "no artifact of type iso")
}

func TestExecuteLogsObservedInAppendOrder(t *testing.T) {
	st := store.NewInMemoryStore()
	id := newBuild(t, st)
	exec := NewExecutor(st, fakeToolchain(), Options{Workdir: t.TempDir()})

	require.NoError(t, exec.Execute(context.Background(), id))

	rec, err := st.Get(id)
	require.NoError(t, err)
	logs := logMessages(rec)

	indexOf := func(needle string) int {
		for i, msg := range logs {
			if strings.Contains(msg, needle) {
				return i
			}
		}
		t.Fatalf("log line %q not found", needle)
		return -1
	}

	resolveStart := indexOf("Stage resolve started")
	resolveDetail := indexOf("Resolved 3 packages")
	resolveDone := indexOf("Stage resolve completed")
	bootstrapStart := indexOf("Stage bootstrap started")

	assert.Less(t, resolveStart, resolveDetail)
	assert.Less(t, resolveDetail, resolveDone)
	assert.Less(t, resolveDone, bootstrapStart)
}

func TestExecuteCancelledContext(t *testing.T) {
	st := store.NewInMemoryStore()
	id := newBuild(t, st)
	exec := NewExecutor(st, fakeToolchain(), Options{Workdir: t.TempDir()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, exec.Execute(ctx, id))

	rec, err := st.Get(id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailure, rec.Status)
}

func TestExecuteUnknownBuild(t *testing.T) {
	exec := NewExecutor(store.NewInMemoryStore(), fakeToolchain(), Options{Workdir: t.TempDir()})
	assert.Error(t, exec.Execute(context.Background(), "no-such-build"))
}
