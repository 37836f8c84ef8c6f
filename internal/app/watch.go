package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"go.trai.ch/bake/internal/adapters/watcher" //nolint:depguard // Debouncing is part of the watch loop
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/zerr"
)

// WatchOptions configures Watch.
type WatchOptions struct {
	BuildOptions
	// Debounce is the quiet period after the last change before a rebuild starts.
	Debounce time.Duration
}

// Watch builds once and then rebuilds whenever files below the workspace root change,
// until ctx is cancelled. Build failures are reported and do not end the loop.
func (a *App) Watch(ctx context.Context, opts WatchOptions) error {
	ws, err := a.configLoader.Load(a.workDir)
	if err != nil {
		return zerr.Wrap(err, "failed to load configuration")
	}
	root := ws.Root
	// Derived data written by the builds themselves must not trigger rebuilds.
	ignored := []string{filepath.Join(root, domain.BakeDirName), a.environment(ws).arenaRoot(root)}
	if opts.Debounce <= 0 {
		opts.Debounce = watcher.DefaultDebounceWindow
	}

	if err := a.watcher.Start(ctx, root); err != nil {
		return zerr.With(domain.Wrap(domain.ErrWatcherFailed, err), "root", root)
	}
	defer func() {
		_ = a.watcher.Stop()
	}()

	triggers := make(chan []string, 1)
	var structural atomic.Bool
	debouncer := watcher.NewDebouncer(opts.Debounce, func(paths []string) {
		// A pending trigger already covers these paths.
		select {
		case triggers <- paths:
		default:
		}
	})

	go func() {
		for ev := range a.watcher.Events() {
			if underAny(ev.Path, ignored) {
				continue
			}
			if ev.Operation.ChangesLayout() {
				structural.Store(true)
			}
			debouncer.Add(ev.Path)
		}
	}()

	opts.replan = true
	a.rebuild(ctx, opts.BuildOptions)

	for {
		select {
		case <-ctx.Done():
			return nil
		case paths := <-triggers:
			a.logger.Info(fmt.Sprintf("%d file(s) changed, rebuilding", len(paths)))
			a.logger.Debug("changed: " + strings.Join(paths, ", "))
			opts.replan = structural.Swap(false)
			a.rebuild(ctx, opts.BuildOptions)
		}
	}
}

// rebuild runs one build of the watch loop.
func (a *App) rebuild(ctx context.Context, opts BuildOptions) {
	res, err := a.Build(ctx, opts)
	switch {
	case errors.Is(err, domain.ErrBuildCancelled):
	case err != nil:
		a.logger.Error(err)
	case res != nil:
		a.logger.Info(fmt.Sprintf("build succeeded: %d task(s) ran, %d up to date", res.Executed, res.UpToDate))
	}
}

func underAny(path string, dirs []string) bool {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
