// Package app implements the application layer for bake.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/muesli/termenv"
	"go.trai.ch/bake/internal/adapters/detector"  //nolint:depguard // Output mode is chosen per run
	"go.trai.ch/bake/internal/adapters/events"    //nolint:depguard // Output mode is chosen per run
	"go.trai.ch/bake/internal/adapters/linear"    //nolint:depguard // Output mode is chosen per run
	"go.trai.ch/bake/internal/adapters/telemetry" //nolint:depguard // Each run gets its own tracer provider
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/bake/internal/engine/manifest"
	"go.trai.ch/bake/internal/engine/planner"
	"go.trai.ch/bake/internal/engine/resolver"
	"go.trai.ch/bake/internal/engine/scheduler"
	"go.trai.ch/bake/internal/engine/tasktype"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// StoreOpener opens the signature store of a workspace root.
type StoreOpener func(root string) ports.SignatureStore

// App represents the main application logic.
type App struct {
	configLoader ports.ConfigLoader
	scheduler    *scheduler.Scheduler
	openStore    StoreOpener
	cache        ports.DescriptionCache
	watcher      ports.Watcher
	logger       ports.Logger
	registry     *tasktype.Registry

	workDir string
	stdout  io.Writer
	stderr  io.Writer
	profile termenv.Profile
}

// New creates a new App instance.
func New(
	loader ports.ConfigLoader,
	sched *scheduler.Scheduler,
	openStore StoreOpener,
	cache ports.DescriptionCache,
	watcher ports.Watcher,
	log ports.Logger,
) *App {
	return &App{
		configLoader: loader,
		scheduler:    sched,
		openStore:    openStore,
		cache:        cache,
		watcher:      watcher,
		logger:       log,
		registry:     tasktype.Default(),
		workDir:      ".",
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		profile:      detector.DetectEnvironment().ColorProfile(),
	}
}

// WithWorkDir sets the directory the workspace is discovered from.
func (a *App) WithWorkDir(dir string) *App {
	a.workDir = dir
	return a
}

// WithOutput redirects rendered progress. The color profile is reset to plain text.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.profile = termenv.Ascii
	return a
}

// BuildOptions configures Build, Plan and Watch.
type BuildOptions struct {
	Targets       []string
	Scheme        string
	Configuration string
	// Settings are overrides applied to every requested target.
	Settings map[string]string
	// Files selects sources to preprocess instead of building.
	Files []string

	Index                bool
	DryRun               bool
	ContinueAfterErrors  bool
	OnlyRequestedTargets bool
	Parallelism          int
	OutputMode           string
	// Manifest executes a previously written manifest instead of planning.
	Manifest string

	// replan skips the description cache.
	replan bool
}

// Build plans and executes a build.
// A cancelled build returns the partial result together with domain.ErrBuildCancelled.
func (a *App) Build(ctx context.Context, opts BuildOptions) (*domain.BuildResult, error) {
	ws, err := a.configLoader.Load(a.workDir)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load configuration")
	}
	env := a.environment(ws)

	var (
		desc      *domain.BuildDescription
		schedOpts scheduler.Options
	)
	if opts.Manifest != "" {
		desc, err = a.readManifest(opts.Manifest)
		if err != nil {
			return nil, err
		}
		schedOpts = scheduler.Options{
			Parallelism:                 opts.Parallelism,
			ContinueBuildingAfterErrors: opts.ContinueAfterErrors,
			DryRun:                      opts.DryRun,
		}
		if opts.Index {
			schedOpts.Command = domain.CommandPrepareForIndexing
		}
	} else {
		req, err := a.request(ws, env, opts)
		if err != nil {
			return nil, err
		}
		desc, err = a.plan(ctx, ws, env, req, opts.replan)
		if err != nil {
			if ctx.Err() != nil {
				return nil, domain.ErrBuildCancelled
			}
			return nil, err
		}
		schedOpts = scheduler.OptionsFor(req)
	}
	if schedOpts.Parallelism == 0 {
		schedOpts.Parallelism = env.parallelism
	}

	for _, w := range desc.Warnings {
		a.logger.Warn(w)
	}
	if err := a.writeCapturedBuildInfo(env, desc); err != nil {
		return nil, err
	}

	return a.execute(ctx, ws.Root, desc, schedOpts, opts.OutputMode)
}

// execute runs the renderer and the scheduler concurrently.
func (a *App) execute(
	ctx context.Context,
	root string,
	desc *domain.BuildDescription,
	opts scheduler.Options,
	outputMode string,
) (*domain.BuildResult, error) {
	renderer, sink := a.newRenderer(outputMode)

	tp, shutdown := telemetry.Setup(renderer)
	defer func() {
		_ = shutdown(context.WithoutCancel(ctx))
	}()
	tracer := telemetry.NewOTelTracerFromProvider(tp, telemetry.InstrumentationName).WithRenderer(renderer)
	sched := a.scheduler.WithTracer(tracer)
	store := a.openStore(root)

	var result *domain.BuildResult
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := renderer.Start(gctx); err != nil {
			return err
		}
		return renderer.Wait()
	})

	g.Go(func() error {
		defer func() {
			_ = renderer.Stop()
		}()
		var eventSink ports.BuildEventSink
		if sink != nil {
			eventSink = sink
		}
		res, err := sched.Run(gctx, desc, store, opts, eventSink)
		result = res
		return err
	})

	if err := g.Wait(); err != nil {
		return result, err
	}
	if sink != nil {
		if err := sink.Err(); err != nil {
			return result, zerr.Wrap(err, "failed to write build events")
		}
	}
	if result != nil && result.Outcome == domain.OutcomeCancelled {
		return result, domain.ErrBuildCancelled
	}
	return result, nil
}

// newRenderer picks the renderer for the output mode. The events mode also returns the event sink.
func (a *App) newRenderer(outputMode string) (ports.Renderer, *events.JSONLines) {
	switch detector.ResolveMode(outputMode) {
	case detector.ModeEvents:
		return linear.NewRenderer(io.Discard, io.Discard), events.NewJSONLines(a.stdout)
	case detector.ModeQuiet:
		return linear.NewRenderer(a.stdout, a.stderr, linear.WithProfile(a.profile), linear.Quiet()), nil
	default:
		return linear.NewRenderer(a.stdout, a.stderr, linear.WithProfile(a.profile)), nil
	}
}

// plan returns the build description of req, reusing a cached one while the project files are unchanged.
func (a *App) plan(
	ctx context.Context,
	ws *domain.Workspace,
	env environment,
	req *domain.BuildRequest,
	replan bool,
) (*domain.BuildDescription, error) {
	key := planner.Signature(req) + env.fingerprint()
	mtimes, err := a.configLoader.DiscoverConfigPaths(a.workDir)
	if err != nil {
		a.logger.Debug(fmt.Sprintf("not caching build description: %v", err))
		mtimes = nil
	}
	if mtimes != nil && !replan {
		if desc, ok := a.cache.Get(key, mtimes); ok {
			a.logger.Debug("reusing build description " + key)
			return desc, nil
		}
	}

	p := planner.New(
		resolver.New(resolver.Options{DiagnoseDiamonds: env.diagnoseDiamonds}),
		planner.Options{Registry: a.registry, CaptureDir: env.captureDir, Logger: a.logger},
	)
	desc, err := p.Plan(ctx, ws, req)
	if err != nil {
		return nil, domain.Wrap(domain.ErrBuildDescriptionFailed, err)
	}
	if mtimes != nil {
		a.cache.Put(key, mtimes, desc)
	}
	return desc, nil
}

// Plan writes the build description of a request as a manifest and returns its path.
// An empty out selects the default manifest location under the workspace root.
func (a *App) Plan(ctx context.Context, opts BuildOptions, out string) (string, error) {
	ws, err := a.configLoader.Load(a.workDir)
	if err != nil {
		return "", zerr.Wrap(err, "failed to load configuration")
	}
	env := a.environment(ws)

	req, err := a.request(ws, env, opts)
	if err != nil {
		return "", err
	}
	desc, err := a.plan(ctx, ws, env, req, true)
	if err != nil {
		return "", err
	}
	for _, w := range desc.Warnings {
		a.logger.Warn(w)
	}
	if err := a.writeCapturedBuildInfo(env, desc); err != nil {
		return "", err
	}

	if out == "" {
		out = filepath.Join(ws.Root, domain.DefaultManifestPath())
	}
	if err := writeManifest(out, desc); err != nil {
		return "", err
	}
	a.logger.Info(fmt.Sprintf("wrote %d task(s) to %s", len(desc.Tasks), out))
	return out, nil
}

func writeManifest(path string, desc *domain.BuildDescription) error {
	data, err := manifest.Marshal(desc)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), domain.DirPerm); err != nil {
		return zerr.With(domain.Wrap(domain.ErrManifestEncodeFailed, err), "path", path)
	}
	if err := os.WriteFile(path, data, domain.FilePerm); err != nil {
		return zerr.With(domain.Wrap(domain.ErrManifestEncodeFailed, err), "path", path)
	}
	return nil
}

func (a *App) readManifest(path string) (*domain.BuildDescription, error) {
	f, err := os.Open(path) //nolint:gosec // Path comes from the command line
	if err != nil {
		return nil, zerr.With(domain.Wrap(domain.ErrFileOpenFailed, err), "path", path)
	}
	defer f.Close() //nolint:errcheck // Read-only file

	desc, err := manifest.Decode(f, a.registry)
	if err != nil {
		return nil, zerr.With(err, "path", path)
	}
	return desc, nil
}

// CleanOptions configuration for the Clean method.
type CleanOptions struct {
	// Store also removes the signature store, forcing every task to run again.
	Store bool
}

// Clean removes the derived data root and optionally the signature store.
func (a *App) Clean(_ context.Context, options CleanOptions) error {
	ws, err := a.configLoader.Load(a.workDir)
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}
	env := a.environment(ws)

	var errs error
	remove := func(path string, name string) {
		a.logger.Info(fmt.Sprintf("removing %s...", name))
		if err := os.RemoveAll(path); err != nil {
			errs = errors.Join(errs, zerr.With(domain.Wrap(domain.ErrCleanFailed, err), "path", path))
			return
		}
		a.logger.Info(fmt.Sprintf("removed %s", name))
	}

	remove(env.arenaRoot(ws.Root), "build folder")
	if options.Store {
		remove(filepath.Join(ws.Root, domain.DefaultStorePath()), "signature store")
	}
	return errs
}
