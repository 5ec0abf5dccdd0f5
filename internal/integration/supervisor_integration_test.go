package integration

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paperward/paperward/internal/artifact"
	"github.com/paperward/paperward/internal/download"
	"github.com/paperward/paperward/internal/registry"
	"github.com/paperward/paperward/internal/supervisor"
)

// gameVersion is the version every scripted registry in this package serves.
const gameVersion = "1.16.5"

// testPromptTimeout keeps scripted prompts from slowing the suite down.
const testPromptTimeout = 50 * time.Millisecond

// recordingRunner stands in for the java process, noting each launch.
type recordingRunner struct {
	mu    sync.Mutex
	paths []string

	// onRun, when set, observes the launch ordinal while "running".
	onRun func(launch int)
}

func (r *recordingRunner) Run(_ context.Context, jarPath string) error {
	r.mu.Lock()
	r.paths = append(r.paths, jarPath)
	launch := len(r.paths)
	onRun := r.onRun
	r.mu.Unlock()

	if onRun != nil {
		onRun(launch)
	}

	return nil
}

// launches returns a copy of the recorded jar paths.
func (r *recordingRunner) launches() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.paths...)
}

// scriptedPrompter replays decisions and stops once the script runs out.
type scriptedPrompter struct {
	decisions []supervisor.Decision
}

func (p *scriptedPrompter) Await(context.Context, time.Duration) (supervisor.Decision, error) {
	if len(p.decisions) == 0 {
		return supervisor.DecisionStop, nil
	}

	next := p.decisions[0]
	p.decisions = p.decisions[1:]

	return next, nil
}

// buildFixture is the downloadable build a scripted registry serves.
type buildFixture struct {
	build int
	name  string
	body  []byte
}

// startRegistry serves a minimal build registry: a build list for the test
// game version and a single downloadable artifact, counting download hits.
func startRegistry(t *testing.T, builds []int, fixture buildFixture) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	checksum := sha256.Sum256(fixture.body)

	var downloads atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/projects/paper/versions/"+gameVersion,
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprintf(w, `{"builds": %s}`, intList(builds))
		})
	mux.HandleFunc(fmt.Sprintf("/projects/paper/versions/%s/builds/%d", gameVersion, fixture.build),
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprintf(w, `{"build": %d, "downloads": {"application": {"name": %q, "sha256": %q}}}`,
				fixture.build, fixture.name, hex.EncodeToString(checksum[:]))
		})
	mux.HandleFunc(fmt.Sprintf("/projects/paper/versions/%s/builds/%d/downloads/%s",
		gameVersion, fixture.build, fixture.name),
		func(w http.ResponseWriter, _ *http.Request) {
			downloads.Add(1)
			_, _ = w.Write(fixture.body)
		})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, &downloads
}

// intList renders builds as a JSON array literal.
func intList(builds []int) string {
	out := "["
	for i, b := range builds {
		if i > 0 {
			out += ", "
		}

		out += fmt.Sprintf("%d", b)
	}

	return out + "]"
}

// newOptions wires the real registry client, artifact store and downloader
// against a scripted runner and prompter.
func newOptions(t *testing.T, endpoint, dir string, runner supervisor.Runner,
	prompter supervisor.Prompter,
) *supervisor.Options {
	t.Helper()

	registryClient, err := registry.NewClient(endpoint, "paper", gameVersion)
	require.NoError(t, err)

	return &supervisor.Options{
		Registry:      registryClient,
		Store:         artifact.NewStore(dir),
		Fetcher:       download.NewDownloader(download.WithStagingDir(t.TempDir())),
		Runner:        runner,
		Prompter:      prompter,
		PromptTimeout: testPromptTimeout,
	}
}

// writeBuild pretends a build was installed earlier.
func writeBuild(t *testing.T, dir string, build int, contents []byte) string {
	t.Helper()

	path := filepath.Join(dir, fmt.Sprintf("papermc-server_%d.jar", build))
	require.NoError(t, os.WriteFile(path, contents, 0o644))

	return path
}

// TestSupervisor_Run_InstallsFreshBuild covers first start in an empty
// directory: build 77 is fetched exactly once, committed as
// papermc-server_77.jar and launched with that path.
func TestSupervisor_Run_InstallsFreshBuild(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	body := []byte("jar bytes for build 77")

	srv, downloads := startRegistry(t, []int{42, 77}, buildFixture{build: 77, name: "paper-77.jar", body: body})

	runner := &recordingRunner{}

	err := supervisor.Run(context.Background(), newOptions(t, srv.URL, dir, runner, &scriptedPrompter{}))
	require.NoError(t, err)

	installedPath := filepath.Join(dir, "papermc-server_77.jar")
	require.Equal(t, []string{installedPath}, runner.launches())

	contents, err := os.ReadFile(installedPath)
	require.NoError(t, err)
	require.Equal(t, body, contents)

	require.Equal(t, int32(1), downloads.Load())
}

// TestSupervisor_Run_UpToDateSkipsDownload ensures a current installation
// triggers no artifact transfer at all.
func TestSupervisor_Run_UpToDateSkipsDownload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	existing := writeBuild(t, dir, 42, []byte("build 42"))

	srv, downloads := startRegistry(t, []int{40, 42}, buildFixture{build: 42, name: "paper-42.jar", body: []byte("x")})

	runner := &recordingRunner{}

	err := supervisor.Run(context.Background(), newOptions(t, srv.URL, dir, runner, &scriptedPrompter{}))
	require.NoError(t, err)

	require.Equal(t, []string{existing}, runner.launches())
	require.Equal(t, int32(0), downloads.Load())
}

// TestSupervisor_Run_RegistryDownRunsInstalledBuild ensures a dead registry
// only skips the update; the installed build still runs.
func TestSupervisor_Run_RegistryDownRunsInstalledBuild(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	existing := writeBuild(t, dir, 42, []byte("build 42"))

	// A closed server leaves a reserved-but-dead endpoint behind.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	runner := &recordingRunner{}

	err := supervisor.Run(context.Background(), newOptions(t, srv.URL, dir, runner, &scriptedPrompter{}))
	require.NoError(t, err)

	require.Equal(t, []string{existing}, runner.launches())
}

// TestSupervisor_Run_RegistryDownWithoutArtifact ensures the no-jar dead end
// is reported instead of launching a path that does not exist.
func TestSupervisor_Run_RegistryDownWithoutArtifact(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	runner := &recordingRunner{}

	err := supervisor.Run(context.Background(), newOptions(t, srv.URL, t.TempDir(), runner, &scriptedPrompter{}))
	require.ErrorIs(t, err, supervisor.ErrNoArtifact)
	require.Empty(t, runner.launches())
}

// TestSupervisor_Run_TruncatedDownloadKeepsCurrent injects a connection
// drop mid-transfer and verifies the half-downloaded build never becomes
// current: the previous jar survives and is the one launched.
func TestSupervisor_Run_TruncatedDownloadKeepsCurrent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	existing := writeBuild(t, dir, 42, []byte("build 42"))

	mux := http.NewServeMux()
	mux.HandleFunc("/projects/paper/versions/"+gameVersion,
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"builds": [42, 77]}`))
		})
	mux.HandleFunc("/projects/paper/versions/"+gameVersion+"/builds/77",
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"build": 77, "downloads": {"application": {"name": "paper-77.jar"}}}`))
		})
	mux.HandleFunc("/projects/paper/versions/"+gameVersion+"/builds/77/downloads/paper-77.jar",
		func(w http.ResponseWriter, _ *http.Request) {
			// Announce more than is sent; the client sees a dropped connection.
			w.Header().Set("Content-Length", "4096")
			_, _ = w.Write([]byte("a few bytes only"))
		})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	runner := &recordingRunner{}

	err := supervisor.Run(context.Background(), newOptions(t, srv.URL, dir, runner, &scriptedPrompter{}))
	require.NoError(t, err)

	// The failed update fell back to build 42.
	require.Equal(t, []string{existing}, runner.launches())

	_, err = os.Stat(filepath.Join(dir, "papermc-server_77.jar"))
	require.ErrorIs(t, err, os.ErrNotExist)

	current, err := artifact.NewStore(dir).FindCurrent(context.Background())
	require.NoError(t, err)
	require.NotNil(t, current)
	require.Equal(t, 42, current.Build)
}

// TestSupervisor_Run_ChecksumMismatchKeepsCurrent ensures a corrupted
// download is rejected at commit time and the previous build keeps running.
func TestSupervisor_Run_ChecksumMismatchKeepsCurrent(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	existing := writeBuild(t, dir, 42, []byte("build 42"))

	wrong := sha256.Sum256([]byte("the registry promised different bytes"))

	mux := http.NewServeMux()
	mux.HandleFunc("/projects/paper/versions/"+gameVersion,
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"builds": [42, 77]}`))
		})
	mux.HandleFunc("/projects/paper/versions/"+gameVersion+"/builds/77",
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = fmt.Fprintf(w,
				`{"build": 77, "downloads": {"application": {"name": "paper-77.jar", "sha256": %q}}}`,
				hex.EncodeToString(wrong[:]))
		})
	mux.HandleFunc("/projects/paper/versions/"+gameVersion+"/builds/77/downloads/paper-77.jar",
		func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("jar bytes for build 77"))
		})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	runner := &recordingRunner{}

	err := supervisor.Run(context.Background(), newOptions(t, srv.URL, dir, runner, &scriptedPrompter{}))
	require.NoError(t, err)

	require.Equal(t, []string{existing}, runner.launches())

	_, err = os.Stat(filepath.Join(dir, "papermc-server_77.jar"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestSupervisor_Run_SilentOperatorRestarts drives the loop through a real
// console prompter with an operator who stays silent through the first
// prompt: the timeout default restarts the server rather than ending the
// loop. The operator types "s" after the second launch so the test stops.
func TestSupervisor_Run_SilentOperatorRestarts(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeBuild(t, dir, 42, []byte("build 42"))

	srv, _ := startRegistry(t, []int{42}, buildFixture{build: 42, name: "paper-42.jar", body: []byte("x")})

	// The pipe stays open and silent like an unattended console.
	in, operator := io.Pipe()
	t.Cleanup(func() { _ = operator.Close() })

	runner := &recordingRunner{}
	runner.onRun = func(launch int) {
		if launch == 2 {
			_, _ = io.WriteString(operator, "s\n")
		}
	}

	var console bytes.Buffer

	options := newOptions(t, srv.URL, dir, runner, supervisor.NewConsolePrompter(in, &console))

	require.NoError(t, supervisor.Run(context.Background(), options))

	require.Len(t, runner.launches(), 2)
	require.Contains(t, console.String(), "No response. Automatically restarting server...")
	require.Contains(t, console.String(), "Stopping.")
}

// TestSupervisor_Run_GuardsDirectoryWhileRunning ensures the marker file
// exists while the server runs and is cleaned up after the stop decision.
func TestSupervisor_Run_GuardsDirectoryWhileRunning(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeBuild(t, dir, 42, []byte("build 42"))

	srv, _ := startRegistry(t, []int{42}, buildFixture{build: 42, name: "paper-42.jar", body: []byte("x")})

	markerPath := filepath.Join(dir, supervisor.MarkerFilename)

	runner := &recordingRunner{}
	runner.onRun = func(int) {
		_, err := os.Stat(markerPath)
		require.NoError(t, err)
	}

	options := newOptions(t, srv.URL, dir, runner, &scriptedPrompter{})
	options.Guard = supervisor.NewGuard(dir)

	require.NoError(t, supervisor.Run(context.Background(), options))

	_, err := os.Stat(markerPath)
	require.ErrorIs(t, err, os.ErrNotExist)
}
