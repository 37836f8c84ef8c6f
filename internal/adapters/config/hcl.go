package config

import (
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"go.trai.ch/bake/internal/core/domain"
)

// hclProjectfile is the bake.hcl form of Projectfile. Schemes, targets and phases are labeled blocks.
type hclProjectfile struct {
	Version  string            `hcl:"version,optional"`
	Project  string            `hcl:"project,optional"`
	Settings map[string]string `hcl:"settings,optional"`
	Schemes  []*hclScheme      `hcl:"scheme,block"`
	Targets  []*hclTarget      `hcl:"target,block"`
}

type hclScheme struct {
	Name               string   `hcl:"name,label"`
	Targets            []string `hcl:"targets,optional"`
	ParallelizeTargets *bool    `hcl:"parallelize_targets,optional"`
}

type hclTarget struct {
	Name           string            `hcl:"name,label"`
	Kind           string            `hcl:"kind,optional"`
	Dependencies   []string          `hcl:"dependencies,optional"`
	Settings       map[string]string `hcl:"settings,optional"`
	DynamicVariant bool              `hcl:"dynamic_variant,optional"`
	ResourceBundle string            `hcl:"resource_bundle,optional"`
	Phases         []*hclPhase       `hcl:"phase,block"`
}

type hclPhase struct {
	Kind           string   `hcl:"kind,label"`
	Name           string   `hcl:"name,optional"`
	Files          []string `hcl:"files,optional"`
	Destination    string   `hcl:"destination,optional"`
	Script         string   `hcl:"script,optional"`
	Inputs         []string `hcl:"inputs,optional"`
	Outputs        []string `hcl:"outputs,optional"`
	DependencyInfo string   `hcl:"dependency_info,optional"`
}

// parseHCL decodes a bake.hcl file into the same model as bake.yaml.
func parseHCL(data []byte, filename string) (*Projectfile, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, domain.Wrap(domain.ErrConfigParseFailed, diags)
	}

	var raw hclProjectfile
	if diags := gohcl.DecodeBody(file.Body, nil, &raw); diags.HasErrors() {
		return nil, domain.Wrap(domain.ErrConfigParseFailed, diags)
	}
	return raw.projectfile(), nil
}

func (h *hclProjectfile) projectfile() *Projectfile {
	pf := &Projectfile{
		Version:  h.Version,
		Project:  h.Project,
		Settings: h.Settings,
		Schemes:  make(map[string]*SchemeDTO, len(h.Schemes)),
	}
	for _, s := range h.Schemes {
		pf.Schemes[s.Name] = &SchemeDTO{Targets: s.Targets, ParallelizeTargets: s.ParallelizeTargets}
	}
	for _, t := range h.Targets {
		dto := &TargetDTO{
			Name:           t.Name,
			Kind:           t.Kind,
			Dependencies:   t.Dependencies,
			Settings:       t.Settings,
			DynamicVariant: t.DynamicVariant,
			ResourceBundle: t.ResourceBundle,
		}
		for _, p := range t.Phases {
			dto.Phases = append(dto.Phases, &PhaseDTO{
				Kind:           p.Kind,
				Name:           p.Name,
				Files:          p.Files,
				Destination:    p.Destination,
				Script:         p.Script,
				Inputs:         p.Inputs,
				Outputs:        p.Outputs,
				DependencyInfo: p.DependencyInfo,
			})
		}
		pf.Targets = append(pf.Targets, dto)
	}
	return pf
}
