package app_test

import (
	"bytes"
	"context"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/adapters/cache"
	"go.trai.ch/bake/internal/adapters/cas"
	"go.trai.ch/bake/internal/adapters/config"
	"go.trai.ch/bake/internal/adapters/fs"
	"go.trai.ch/bake/internal/adapters/shell"
	"go.trai.ch/bake/internal/adapters/telemetry"
	"go.trai.ch/bake/internal/app"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/bake/internal/core/ports/mocks"
	"go.trai.ch/bake/internal/engine/scheduler"
	"go.uber.org/mock/gomock"
)

const scriptProject = `
project: demo
schemes:
  ci: { targets: [Gen] }
targets:
  - name: Gen
    kind: aggregate
    phases:
      - kind: script
        name: Generate
        script: cat "$SRCROOT/src.txt" > "$SRCROOT/out.txt"
        inputs: [src.txt]
        outputs: [out.txt]
`

type harness struct {
	root    string
	app     *app.App
	cache   *cache.DescriptionCache
	watcher *mocks.MockWatcher
	stdout  *bytes.Buffer
	stderr  *bytes.Buffer
}

func newHarness(t *testing.T, project string) *harness {
	t.Helper()
	t.Setenv(config.EnvCapturedBuildInfoDir, "")
	t.Setenv(config.EnvDerivedData, "")
	t.Setenv(config.EnvParallelism, "")

	root := t.TempDir()
	writeFile(t, filepath.Join(root, domain.ProjectFileName), project)
	writeFile(t, filepath.Join(root, "src.txt"), "one")

	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any()).AnyTimes()
	log.EXPECT().Info(gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any()).AnyTimes()
	log.EXPECT().Error(gomock.Any()).AnyTimes()

	descriptions, err := cache.NewDescriptionCache(cache.DefaultSize)
	require.NoError(t, err)

	sched := scheduler.NewScheduler(
		shell.NewExecutor(log, shell.WithoutPTY()),
		fs.NewHasher(fs.NewWalker()),
		telemetry.NewNoOpTracer(),
		log,
	)
	opener := cas.NewOpener()
	w := mocks.NewMockWatcher(ctrl)

	h := &harness{
		root:    root,
		cache:   descriptions,
		watcher: w,
		stdout:  &bytes.Buffer{},
		stderr:  &bytes.Buffer{},
	}
	h.app = app.New(
		config.NewLoader(log, fs.NewResolver()),
		sched,
		func(root string) ports.SignatureStore { return opener.Open(root) },
		descriptions,
		w,
		log,
	).WithWorkDir(root).WithOutput(h.stdout, h.stderr)
	return h
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestApp_Build(t *testing.T) {
	h := newHarness(t, scriptProject)

	res, err := h.app.Build(t.Context(), app.BuildOptions{Targets: []string{"Gen"}})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSucceeded, res.Outcome)
	assert.Equal(t, 3, res.Executed, "build directory, script file and script")
	assert.Equal(t, "one", readFile(t, filepath.Join(h.root, "out.txt")))
	assert.Contains(t, h.stderr.String(), "PhaseScriptExecution Generate")
	assert.DirExists(t, filepath.Join(h.root, domain.DefaultStorePath()))

	// A second build finds everything up to date and reuses the planned description.
	res, err = h.app.Build(t.Context(), app.BuildOptions{Targets: []string{"Gen"}})
	require.NoError(t, err)
	assert.Zero(t, res.Executed)
	assert.Equal(t, 3, res.UpToDate)
	assert.Equal(t, 1, h.cache.Len())

	writeFile(t, filepath.Join(h.root, "src.txt"), "two")
	res, err = h.app.Build(t.Context(), app.BuildOptions{Targets: []string{"Gen"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Executed)
	assert.Equal(t, 2, res.UpToDate)
	assert.Equal(t, "two", readFile(t, filepath.Join(h.root, "out.txt")))
}

func TestApp_Build_Scheme(t *testing.T) {
	h := newHarness(t, scriptProject)

	res, err := h.app.Build(t.Context(), app.BuildOptions{Scheme: "ci"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Executed)

	_, err = h.app.Build(t.Context(), app.BuildOptions{Scheme: "nightly"})
	require.ErrorIs(t, err, domain.ErrSchemeNotFound)
}

func TestApp_Build_NoTargets(t *testing.T) {
	h := newHarness(t, scriptProject)

	_, err := h.app.Build(t.Context(), app.BuildOptions{})
	require.ErrorIs(t, err, domain.ErrNoTargetsSpecified)
}

func TestApp_Build_UnknownTarget(t *testing.T) {
	h := newHarness(t, scriptProject)

	_, err := h.app.Build(t.Context(), app.BuildOptions{Targets: []string{"Missing"}})
	require.ErrorIs(t, err, domain.ErrTargetNotFound)
}

func TestApp_Build_Failure(t *testing.T) {
	h := newHarness(t, `
project: demo
targets:
  - name: Broken
    phases:
      - { kind: script, name: Fail, script: "echo boom; exit 3" }
`)

	res, err := h.app.Build(t.Context(), app.BuildOptions{Targets: []string{"Broken"}})
	require.ErrorIs(t, err, domain.ErrBuildFailed)
	require.NotNil(t, res)
	assert.Equal(t, domain.OutcomeFailed, res.Outcome)
	assert.Contains(t, h.stdout.String()+h.stderr.String(), "boom")
}

func TestApp_Build_Cancelled(t *testing.T) {
	h := newHarness(t, scriptProject)

	// The dry run plans the description; the cancelled build reuses it and runs nothing.
	_, err := h.app.Build(t.Context(), app.BuildOptions{Targets: []string{"Gen"}, DryRun: true})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	res, err := h.app.Build(ctx, app.BuildOptions{Targets: []string{"Gen"}})
	require.ErrorIs(t, err, domain.ErrBuildCancelled)
	require.NotNil(t, res)
	assert.Equal(t, domain.OutcomeCancelled, res.Outcome)
	assert.Zero(t, res.Executed)
	assert.NoFileExists(t, filepath.Join(h.root, "out.txt"))
}

func TestApp_Build_CancelledWhilePlanning(t *testing.T) {
	h := newHarness(t, scriptProject)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	res, err := h.app.Build(ctx, app.BuildOptions{Targets: []string{"Gen"}})
	require.ErrorIs(t, err, domain.ErrBuildCancelled)
	assert.Nil(t, res)
}

func TestApp_Build_DryRun(t *testing.T) {
	h := newHarness(t, scriptProject)

	res, err := h.app.Build(t.Context(), app.BuildOptions{Targets: []string{"Gen"}, DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Executed)
	assert.NoFileExists(t, filepath.Join(h.root, "out.txt"))
}

func TestApp_Build_EventsOutput(t *testing.T) {
	h := newHarness(t, scriptProject)

	_, err := h.app.Build(t.Context(), app.BuildOptions{Targets: []string{"Gen"}, OutputMode: "events"})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(h.stdout.String()), "\n")
	require.NotEmpty(t, lines)
	assert.JSONEq(t, `{"kind":"buildStarted"}`, lines[0])
	assert.JSONEq(t, `{"kind":"buildCompleted","outcome":"succeeded"}`, lines[len(lines)-1])
	assert.Empty(t, h.stderr.String())
}

func TestApp_Build_CapturedBuildInfo(t *testing.T) {
	h := newHarness(t, scriptProject)
	writeFile(t, filepath.Join(h.root, domain.EnvFileName), "BAKE_CAPTURED_BUILD_INFO_DIR=capture\n")
	require.NoError(t, os.Unsetenv(config.EnvCapturedBuildInfoDir))

	_, err := h.app.Build(t.Context(), app.BuildOptions{Targets: []string{"Gen"}, DryRun: true})
	require.NoError(t, err)

	info := readFile(t, filepath.Join(h.root, "capture", domain.CapturedBuildInfoFileName))
	assert.Contains(t, info, `"Gen"`)
}

func TestApp_PlanThenBuildManifest(t *testing.T) {
	h := newHarness(t, scriptProject)

	path, err := h.app.Plan(t.Context(), app.BuildOptions{Targets: []string{"Gen"}}, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(h.root, domain.DefaultManifestPath()), path)
	assert.Contains(t, readFile(t, path), "PhaseScriptExecution")

	res, err := h.app.Build(t.Context(), app.BuildOptions{Manifest: path})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Executed)
	assert.Equal(t, "one", readFile(t, filepath.Join(h.root, "out.txt")))
}

func TestApp_Clean(t *testing.T) {
	h := newHarness(t, scriptProject)

	arena := filepath.Join(h.root, domain.DefaultArenaPath())
	store := filepath.Join(h.root, domain.DefaultStorePath())
	writeFile(t, filepath.Join(arena, "Debug", "product"), "x")
	writeFile(t, filepath.Join(store, "record.json"), "{}")

	require.NoError(t, h.app.Clean(t.Context(), app.CleanOptions{}))
	assert.NoDirExists(t, arena)
	assert.DirExists(t, store)

	require.NoError(t, h.app.Clean(t.Context(), app.CleanOptions{Store: true}))
	assert.NoDirExists(t, store)
}

func TestApp_Watch(t *testing.T) {
	h := newHarness(t, scriptProject)

	events := make(chan ports.WatchEvent, 10)
	h.watcher.EXPECT().Start(gomock.Any(), h.root).Return(nil)
	h.watcher.EXPECT().Events().Return(iter.Seq[ports.WatchEvent](func(yield func(ports.WatchEvent) bool) {
		for ev := range events {
			if !yield(ev) {
				return
			}
		}
	}))
	h.watcher.EXPECT().Stop().DoAndReturn(func() error {
		close(events)
		return nil
	})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- h.app.Watch(ctx, app.WatchOptions{
			BuildOptions: app.BuildOptions{Targets: []string{"Gen"}, OutputMode: "quiet"},
			Debounce:     10 * time.Millisecond,
		})
	}()

	out := filepath.Join(h.root, "out.txt")
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(out)
		return err == nil && string(data) == "one"
	}, 10*time.Second, 10*time.Millisecond)

	// Changes below the bake directory are ignored.
	events <- ports.WatchEvent{Path: filepath.Join(h.root, domain.BakeDirName, "store", "x"), Operation: ports.OpWrite}

	writeFile(t, filepath.Join(h.root, "src.txt"), "two")
	events <- ports.WatchEvent{Path: filepath.Join(h.root, "src.txt"), Operation: ports.OpWrite}
	require.Eventually(t, func() bool {
		data, err := os.ReadFile(out)
		return err == nil && string(data) == "two"
	}, 10*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		require.FailNow(t, "watch did not stop")
	}
}
