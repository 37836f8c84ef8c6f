package app

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.trai.ch/bake/internal/adapters/config" //nolint:depguard // Variable names are owned by the loader
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/zerr"
)

// environment holds the BAKE_* overrides of a workspace.
type environment struct {
	captureDir       string
	derivedData      string
	parallelism      int
	diagnoseDiamonds bool
	jsonLogs         bool
}

// jsonLogger is implemented by loggers that can switch to JSON output at runtime.
type jsonLogger interface {
	SetJSON(enabled bool)
}

// environment parses the overrides of ws and applies the log format.
func (a *App) environment(ws *domain.Workspace) environment {
	vars := ws.Environment
	env := environment{
		captureDir:       vars[config.EnvCapturedBuildInfoDir],
		derivedData:      vars[config.EnvDerivedData],
		diagnoseDiamonds: truthy(vars[config.EnvDiagnoseDiamonds]),
		jsonLogs:         strings.EqualFold(vars[config.EnvLogFormat], "json"),
	}
	if env.derivedData != "" && !filepath.IsAbs(env.derivedData) {
		env.derivedData = filepath.Join(ws.Root, env.derivedData)
	}
	if env.captureDir != "" && !filepath.IsAbs(env.captureDir) {
		env.captureDir = filepath.Join(ws.Root, env.captureDir)
	}
	if raw := vars[config.EnvParallelism]; raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.logger.Warn(fmt.Sprintf("ignoring %s=%q: not a non-negative integer", config.EnvParallelism, raw))
		} else {
			env.parallelism = n
		}
	}
	if l, ok := a.logger.(jsonLogger); ok && env.jsonLogs {
		l.SetJSON(true)
	}
	return env
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "yes", "true", "on":
		return true
	default:
		return false
	}
}

// fingerprint distinguishes descriptions planned under different overrides.
func (e environment) fingerprint() string {
	return fmt.Sprintf("|%s|%s|%t", e.captureDir, e.derivedData, e.diagnoseDiamonds)
}

// arenaRoot returns the derived data root of the workspace.
func (e environment) arenaRoot(root string) string {
	if e.derivedData != "" {
		return e.derivedData
	}
	return filepath.Join(root, domain.DefaultArenaPath())
}

// request turns command-line options into a build request.
func (a *App) request(ws *domain.Workspace, env environment, opts BuildOptions) (*domain.BuildRequest, error) {
	names := opts.Targets
	parallel := true
	if opts.Scheme != "" {
		scheme, ok := ws.Schemes[opts.Scheme]
		if !ok {
			return nil, zerr.With(zerr.Wrap(domain.ErrSchemeNotFound, opts.Scheme), "scheme", opts.Scheme)
		}
		if len(names) == 0 {
			names = scheme.Targets
		}
		parallel = scheme.ParallelizeTargets
	}
	if len(names) == 0 {
		return nil, domain.ErrNoTargetsSpecified
	}

	configuration := opts.Configuration
	if configuration == "" {
		configuration = "Debug"
	}
	req := &domain.BuildRequest{
		Parameters: domain.BuildParameters{
			Configuration: configuration,
			Action:        domain.ActionBuild,
			Overrides:     maps.Clone(opts.Settings),
			ArenaRoot:     env.arenaRoot(ws.Root),
		},
		Command:                     domain.CommandBuild,
		SchemeCommand:               opts.Scheme,
		ContinueBuildingAfterErrors: opts.ContinueAfterErrors,
		UseParallelTargets:          parallel,
		UseImplicitDependencies:     true,
		UseDryRun:                   opts.DryRun,
		Parallelism:                 opts.Parallelism,
	}
	if opts.OnlyRequestedTargets {
		req.Scope = domain.ScopeBuildRequest
	}
	for _, name := range names {
		req.Targets = append(req.Targets, domain.BuildTarget{Name: name})
	}

	switch {
	case len(opts.Files) > 0:
		req.Command = domain.CommandGeneratePreprocessedFile
		req.Parameters.Action = domain.ActionGeneratePreprocessedFile
		for _, f := range opts.Files {
			if !filepath.IsAbs(f) {
				abs, err := filepath.Abs(f)
				if err != nil {
					return nil, zerr.With(zerr.Wrap(err, "invalid file"), "file", f)
				}
				f = abs
			}
			req.Files = append(req.Files, f)
		}
	case opts.Index:
		req.Command = domain.CommandPrepareForIndexing
		req.Parameters.Action = domain.ActionIndexBuild
	}
	return req, nil
}

// writeCapturedBuildInfo stores the captured build info of desc when a capture directory is configured.
func (a *App) writeCapturedBuildInfo(env environment, desc *domain.BuildDescription) error {
	if env.captureDir == "" || desc.CapturedBuildInfo == nil {
		return nil
	}
	data, err := json.MarshalIndent(desc.CapturedBuildInfo, "", "  ")
	if err != nil {
		return zerr.Wrap(err, "failed to marshal captured build info")
	}
	if err := os.MkdirAll(env.captureDir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create capture directory"), "dir", env.captureDir)
	}
	path := filepath.Join(env.captureDir, domain.CapturedBuildInfoFileName)
	if err := os.WriteFile(path, data, domain.FilePerm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write captured build info"), "path", path)
	}
	a.logger.Debug("captured build info written to " + path)
	return nil
}
