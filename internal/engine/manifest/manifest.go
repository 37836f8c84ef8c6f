// Package manifest reads and writes the deterministic text form of a build description.
package manifest

import (
	"bytes"
	"errors"
	"io"
	"maps"
	"slices"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/engine/actions"
	"go.trai.ch/bake/internal/engine/cycles"
	"go.trai.ch/bake/internal/engine/tasktype"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Version is written into every manifest.
const Version = "1"

var reasonNames = map[domain.DependencyReasonKind]string{
	domain.ReasonUnknown:                     "unknown",
	domain.ReasonExplicit:                    "explicit",
	domain.ReasonImplicitBuildPhaseLinkage:   "implicitBuildPhaseLinkage",
	domain.ReasonImplicitBuildSettingLinkage: "implicitBuildSettingLinkage",
	domain.ReasonTransitive:                  "transitive",
}

// Marshal renders desc. The output is byte-identical for identical descriptions.
func Marshal(desc *domain.BuildDescription) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, desc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes desc to w.
func Encode(w io.Writer, desc *domain.BuildDescription) error {
	doc := Document{
		Version:                Version,
		Signature:              desc.Signature,
		TargetsBuildInParallel: desc.TargetsBuildInParallel,
		ModuleSessionFilePath:  desc.ModuleSessionFilePath,
		CopiedPathMap:          desc.CopiedPathMap,
		GeneratedFilesPathMap:  desc.GeneratedFilesPathMap,
		Warnings:               desc.Warnings,
	}

	for _, ct := range desc.Targets {
		dto := TargetDTO{
			ID:            ct.ID(),
			Name:          ct.Target.Name,
			Project:       ct.Target.Project,
			Dir:           ct.Target.Dir,
			Kind:          string(ct.Target.Kind),
			ProductName:   ct.Target.Settings["PRODUCT_NAME"],
			Configuration: ct.Parameters.Configuration,
			Action:        string(ct.Parameters.Action),
			Platform:      ct.Parameters.Platform,
			ArenaRoot:     ct.Parameters.ArenaRoot,
			Overrides:     ct.Parameters.Overrides,
		}
		for _, d := range ct.Dependencies {
			dto.Dependencies = append(dto.Dependencies, DependencyDTO{
				Target:       d.Target.ID(),
				Reason:       reasonNames[d.Reason.Kind],
				Links:        d.Links,
				Filename:     d.Reason.Filename,
				BuildPhase:   d.Reason.BuildPhase,
				Setting:      d.Reason.Setting,
				Options:      d.Reason.Options,
				Intermediate: d.Reason.Intermediate,
			})
		}
		doc.Targets = append(doc.Targets, dto)
	}

	for _, t := range desc.Tasks {
		dto := TaskDTO{
			Rule:                t.RuleInfo,
			CommandLine:         t.CommandLine,
			Environment:         t.Environment,
			WorkingDirectory:    t.WorkingDirectory,
			Inputs:              nodeStrings(t.Inputs),
			Outputs:             nodeStrings(t.Outputs),
			AdditionalOutput:    t.AdditionalOutput,
			PreparesForIndexing: t.PreparesForIndexing,
			TargetDependencies:  len(t.TargetDependencies) > 0,
		}
		if t.ForTarget != nil {
			dto.Target = t.ForTarget.ID()
		}
		for _, after := range t.MustPrecede {
			dto.MustPrecede = append(dto.MustPrecede, after.Key())
		}
		if t.Action != nil {
			dto.Action = &ActionDTO{Kind: t.Action.Kind(), Params: t.Action.Params()}
		}
		doc.Tasks = append(doc.Tasks, dto)
	}

	if info := desc.CapturedBuildInfo; info != nil {
		doc.Captured = &CapturedDTO{Signature: info.Signature}
		for _, ti := range info.Targets {
			doc.Captured.Targets = append(doc.Captured.Targets, CapturedTargetDTO(ti))
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return domain.Wrap(domain.ErrManifestEncodeFailed, err)
	}
	if err := enc.Close(); err != nil {
		return domain.Wrap(domain.ErrManifestEncodeFailed, err)
	}
	return nil
}

func nodeStrings(nodes []domain.Node) []string {
	if len(nodes) == 0 {
		return nil
	}
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.String()
	}
	return out
}

// Decode reads a manifest and rebuilds the description. Task types come from registry,
// or from the default registry when it is nil.
func Decode(r io.Reader, registry *tasktype.Registry) (*domain.BuildDescription, error) {
	var doc Document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, domain.Wrap(domain.ErrManifestDecodeFailed, err)
	}
	if doc.Version != Version {
		return nil, zerr.With(zerr.Wrap(domain.ErrManifestDecodeFailed, "unsupported manifest version"), "version", doc.Version)
	}
	if registry == nil {
		registry = tasktype.Default()
	}

	targets := make([]*domain.ConfiguredTarget, len(doc.Targets))
	byID := make(map[string]*domain.ConfiguredTarget, len(doc.Targets))
	for i, dto := range doc.Targets {
		kind, ok := domain.ParseProductKind(dto.Kind)
		if !ok {
			return nil, zerr.With(zerr.Wrap(domain.ErrInvalidProductKind, dto.Kind), "target", dto.Name)
		}
		target := &domain.Target{Name: dto.Name, Project: dto.Project, Dir: dto.Dir, Kind: kind, Settings: map[string]string{}}
		if dto.ProductName != "" {
			target.Settings["PRODUCT_NAME"] = dto.ProductName
		}
		ct := domain.NewConfiguredTarget(target, domain.BuildParameters{
			Configuration: dto.Configuration,
			Action:        domain.BuildAction(dto.Action),
			Platform:      dto.Platform,
			Overrides:     maps.Clone(dto.Overrides),
			ArenaRoot:     dto.ArenaRoot,
		})
		targets[i] = ct
		byID[dto.ID] = ct
	}
	for i, dto := range doc.Targets {
		for _, d := range dto.Dependencies {
			dep, ok := byID[d.Target]
			if !ok {
				return nil, zerr.With(zerr.Wrap(domain.ErrManifestDecodeFailed, "unknown dependency target"), "target", d.Target)
			}
			targets[i].Dependencies = append(targets[i].Dependencies, domain.ResolvedDependency{
				Target: dep,
				Links:  d.Links,
				Reason: domain.DependencyReason{
					Kind:         parseReason(d.Reason),
					Filename:     d.Filename,
					BuildPhase:   d.BuildPhase,
					Setting:      d.Setting,
					Options:      d.Options,
					Intermediate: d.Intermediate,
				},
			})
		}
	}

	tasks := make([]*domain.Task, len(doc.Tasks))
	byKey := make(map[string]*domain.Task, len(doc.Tasks))
	for i, dto := range doc.Tasks {
		t := &domain.Task{
			RuleInfo:            dto.Rule,
			CommandLine:         dto.CommandLine,
			Environment:         dto.Environment,
			WorkingDirectory:    dto.WorkingDirectory,
			Inputs:              parseNodes(dto.Inputs),
			Outputs:             parseNodes(dto.Outputs),
			AdditionalOutput:    dto.AdditionalOutput,
			PreparesForIndexing: dto.PreparesForIndexing,
		}
		if dto.Target != "" {
			ct, ok := byID[dto.Target]
			if !ok {
				return nil, zerr.With(zerr.Wrap(domain.ErrManifestDecodeFailed, "unknown task target"), "target", dto.Target)
			}
			t.ForTarget = ct
			if dto.TargetDependencies {
				t.TargetDependencies = ct.Dependencies
			}
		}
		if dto.Action != nil {
			action, err := actions.Decode(dto.Action.Kind, dto.Action.Params)
			if err != nil {
				return nil, zerr.With(err, "task", t.Key())
			}
			t.Action = action
		}
		tasks[i] = t
		byKey[t.Key()] = t
	}
	for i, dto := range doc.Tasks {
		for _, key := range dto.MustPrecede {
			after, ok := byKey[key]
			if !ok {
				return nil, zerr.With(zerr.Wrap(domain.ErrUnknownMustPrecede, key), "task", tasks[i].Key())
			}
			tasks[i].MustPrecede = append(tasks[i].MustPrecede, after)
		}
	}
	registry.Assign(tasks)

	desc, err := domain.NewBuildDescription(tasks)
	if err != nil {
		return nil, err
	}
	desc.Signature = doc.Signature
	desc.Targets = targets
	desc.TargetsBuildInParallel = doc.TargetsBuildInParallel
	desc.ModuleSessionFilePath = doc.ModuleSessionFilePath
	desc.Warnings = doc.Warnings
	if doc.CopiedPathMap != nil {
		desc.CopiedPathMap = doc.CopiedPathMap
	}
	if doc.GeneratedFilesPathMap != nil {
		desc.GeneratedFilesPathMap = doc.GeneratedFilesPathMap
	}
	if doc.Captured != nil {
		desc.CapturedBuildInfo = &domain.CapturedBuildInfo{Signature: doc.Captured.Signature}
		for _, ti := range doc.Captured.Targets {
			desc.CapturedBuildInfo.Targets = append(desc.CapturedBuildInfo.Targets, domain.CapturedTargetInfo(ti))
		}
	}

	errs := slices.Clone(desc.Graph().MutationErrors())
	errs = append(errs, cycles.Errors(desc, &domain.BuildRequest{UseParallelTargets: desc.TargetsBuildInParallel})...)
	if len(errs) > 0 {
		return nil, domain.Wrap(domain.ErrManifestDecodeFailed, errors.Join(errs...))
	}
	return desc, nil
}

func parseReason(s string) domain.DependencyReasonKind {
	for kind, name := range reasonNames {
		if name == s {
			return kind
		}
	}
	return domain.ReasonUnknown
}

func parseNodes(ss []string) []domain.Node {
	if len(ss) == 0 {
		return nil
	}
	out := make([]domain.Node, len(ss))
	for i, s := range ss {
		out[i] = domain.ParseNode(s)
	}
	return out
}
