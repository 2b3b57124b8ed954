package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/osforge/internal/config"
	"git.home.luguber.info/inful/osforge/internal/dispatcher"
	"git.home.luguber.info/inful/osforge/internal/pipeline"
	"git.home.luguber.info/inful/osforge/internal/server/responses"
	"git.home.luguber.info/inful/osforge/internal/spec"
	"git.home.luguber.info/inful/osforge/internal/store"
	"git.home.luguber.info/inful/osforge/internal/toolchain"
)

type testResolver struct{}

func (testResolver) Resolve(_ context.Context, s *spec.BuildSpecification, logf toolchain.LogFunc) (*toolchain.ResolvedSet, error) {
	logf("Resolved packages")
	return &toolchain.ResolvedSet{Base: s.Base, Kernel: s.Kernel, Packages: []string{"base", s.Kernel}}, nil
}

type testBootstrapper struct{}

func (testBootstrapper) Bootstrap(_ context.Context, set *toolchain.ResolvedSet, _ *spec.BuildSpecification, dir string, logf toolchain.LogFunc) (*toolchain.RootFS, error) {
	logf("Bootstrapped")
	return &toolchain.RootFS{Path: dir, Base: set.Base, Packages: len(set.Packages)}, nil
}

type testIsoMaster struct{}

func (testIsoMaster) MasterISO(_ context.Context, _ *toolchain.RootFS, outPath, _ string, logf toolchain.LogFunc) (string, error) {
	logf("ISO written")
	return outPath, nil
}

type testImageBuilder struct{}

func (testImageBuilder) BuildImage(_ context.Context, _ *toolchain.RootFS, _, imageRef string, logf toolchain.LogFunc) (string, error) {
	logf("Image written")
	return imageRef, nil
}

type testRuntime struct{ started time.Time }

func (rt testRuntime) GetStatus() string     { return "running" }
func (rt testRuntime) StartTime() time.Time  { return rt.started }
func (rt testRuntime) ActiveBuilds() int     { return 0 }
func (rt testRuntime) ConcurrentBuilds() int { return 2 }

const submission = `{
	"base": "alpine",
	"kernel": "linux-lts",
	"init": "openrc",
	"architecture": "x86_64",
	"display": {"server": "wayland", "compositor": "sway", "bar": "", "launcher": "", "terminal": "foot", "notifications": "", "lockscreen": ""},
	"packages": {"system": ["openssh"], "utils": ["htop"]},
	"securityFeatures": ["firewall"],
	"defaults": {"swappiness": 10, "trim": true, "kernelParams": "quiet", "dnsOverHttps": true, "macRandomization": false}
}`

func newTestServer(t *testing.T) (*httptest.Server, store.RecordStore, *dispatcher.Dispatcher) {
	t.Helper()

	st := store.NewInMemoryStore()
	tc := &toolchain.Toolchain{
		Resolver:     testResolver{},
		Bootstrapper: testBootstrapper{},
		IsoMaster:    testIsoMaster{},
		ImageBuilder: testImageBuilder{},
	}
	exec := pipeline.NewExecutor(st, tc, pipeline.Options{Workdir: t.TempDir()})
	d := dispatcher.New(st, exec, 2)

	srv := New(&config.ServerConfig{Port: 0}, d, st, testRuntime{started: time.Now()}, Options{})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = d.StopAndWait(context.Background())
	})
	return ts, st, d
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealthEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	var health responses.HealthResponse
	code := getJSON(t, ts.URL+"/api/health", &health)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", health.Status)
}

func TestDaemonStatusEndpoint(t *testing.T) {
	ts, _, _ := newTestServer(t)

	var status responses.DaemonStatusResponse
	code := getJSON(t, ts.URL+"/api/status", &status)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, 2, status.ConcurrentBuilds)
}

func TestStartBuildAccepted(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/build/start", "application/json", bytes.NewBufferString(submission))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted responses.BuildAcceptedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	assert.NotEmpty(t, accepted.BuildID)
}

func TestStartBuildRejectsInvalidSpec(t *testing.T) {
	ts, st, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/build/start", "application/json", bytes.NewBufferString(`{"base": "solaris"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, st.List(), "rejected submission must not create a record")
}

func TestBuildStatusUnknownBuild(t *testing.T) {
	ts, _, _ := newTestServer(t)

	code := getJSON(t, ts.URL+"/api/build/status/00000000-0000-0000-0000-000000000000", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSubmitAndPollUntilSuccess(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/build/start", "application/json", bytes.NewBufferString(submission))
	require.NoError(t, err)
	var accepted responses.BuildAcceptedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	resp.Body.Close()

	var status responses.BuildStatusResponse
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		code := getJSON(t, ts.URL+"/api/build/status/"+accepted.BuildID, &status)
		require.Equal(t, http.StatusOK, code)
		if status.Status == string(store.StatusSuccess) || status.Status == string(store.StatusFailure) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	require.Equal(t, string(store.StatusSuccess), status.Status)
	assert.NotEmpty(t, status.Logs)

	types := make(map[store.ArtifactType]int)
	for _, a := range status.Artifacts {
		types[a.FileType]++
		assert.NotEmpty(t, a.FileName)
		assert.NotEmpty(t, a.URL)
	}
	assert.Equal(t, 1, types[store.ArtifactISO])
	assert.Equal(t, 1, types[store.ArtifactDockerImage])
}

func TestLogsGrowMonotonically(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/build/start", "application/json", bytes.NewBufferString(submission))
	require.NoError(t, err)
	var accepted responses.BuildAcceptedResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	resp.Body.Close()

	lastLen := 0
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		var status responses.BuildStatusResponse
		code := getJSON(t, ts.URL+"/api/build/status/"+accepted.BuildID, &status)
		require.Equal(t, http.StatusOK, code)
		require.GreaterOrEqual(t, len(status.Logs), lastLen, "log must never shrink")
		lastLen = len(status.Logs)
		if status.Status == string(store.StatusSuccess) || status.Status == string(store.StatusFailure) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("build never finished")
}

func TestListBuilds(t *testing.T) {
	ts, _, _ := newTestServer(t)

	for i := 0; i < 2; i++ {
		resp, err := http.Post(ts.URL+"/api/build/start", "application/json", bytes.NewBufferString(submission))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}

	var list responses.BuildListResponse
	code := getJSON(t, ts.URL+"/api/builds", &list)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, list.Count)
	for _, b := range list.Builds {
		assert.Equal(t, "alpine", b.Base)
		assert.NotEmpty(t, b.BuildID)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _, _ := newTestServer(t)

	code := getJSON(t, ts.URL+"/api/build/start", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, code)
}
