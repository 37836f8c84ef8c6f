package tasktype

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/zerr"
)

// DependencyInfoEnv names the environment variable through which a script phase receives
// the path of the dependency info file it promised to write.
const DependencyInfoEnv = "SCRIPT_DEPENDENCY_INFO_FILE"

func builtins() []*Descriptor {
	compile := WithDescribe(func(t *domain.Task) (string, bool) {
		return withTarget(t, "compile command with input '"+ruleArg(t, 2)+"'")
	})
	copyFromTo := WithDescribe(func(t *domain.Task) (string, bool) {
		return withTarget(t, "copy command from '"+ruleArg(t, 1)+"' to '"+ruleArg(t, 2)+"'")
	})
	link := WithDescribe(func(t *domain.Task) (string, bool) {
		return withTarget(t, "link command with output '"+ruleArg(t, 1)+"'")
	})
	none := WithDescribe(func(*domain.Task) (string, bool) { return "", false })

	return []*Descriptor{
		New(domain.GateRule, none),
		New(CreateBuildDirectory, none),
		New(CompileC, compile),
		New(DataModelCompile, compile),
		New(CompileSwiftSources, WithDescribe(func(t *domain.Task) (string, bool) {
			return withTarget(t, "compile command for Swift source files")
		})),
		New(Preprocess, WithDescribe(func(t *domain.Task) (string, bool) {
			return withTarget(t, "preprocess command with input '"+ruleArg(t, 2)+"'")
		})),
		New(ProcessPCH, WithDescribe(func(t *domain.Task) (string, bool) {
			return withTarget(t, "process command with input '"+ruleArg(t, 2)+"'")
		})),
		New(ProcessSDKImports, WithDescribe(func(t *domain.Task) (string, bool) {
			return withTarget(t, "process command with output '"+ruleArg(t, 1)+"'")
		})),
		New(CpHeader, copyFromTo),
		New(CpResource, copyFromTo),
		New(Copy, copyFromTo),
		New(Ld, link, UnsafeToInterrupt()),
		New(Libtool, link, UnsafeToInterrupt()),
		New(MkDir, WithDescribe(func(t *domain.Task) (string, bool) {
			return withTarget(t, "create directory command with output '"+ruleArg(t, 1)+"'")
		})),
		New(SymLink, WithDescribe(func(t *domain.Task) (string, bool) {
			return withTarget(t, "symlink command from '"+ruleArg(t, 1)+"' to '"+ruleArg(t, 2)+"'")
		})),
		New(GenerateDSYMFile, WithDescribe(func(t *domain.Task) (string, bool) {
			return withTarget(t, "a command with output '"+ruleArg(t, 1)+"'")
		})),
		New(WriteAuxiliaryFile, WithDescribe(describeAuxiliaryFile)),
		New(PhaseScriptExecution,
			WithDescribe(describeScriptPhase),
			WithSignature(func(t *domain.Task) string { return t.Environment[DependencyInfoEnv] }),
			WithOutputParser(parseDependencyInfo),
		),
	}
}

func describeAuxiliaryFile(t *domain.Task) (string, bool) {
	path := ruleArg(t, len(t.RuleInfo)-1)
	switch {
	case strings.HasSuffix(path, ".sh"):
		return "", false
	case strings.HasSuffix(path, ".yaml"):
		return "Command", true
	case t.TargetName() != "":
		return "Target '" + t.TargetName() + "'", true
	default:
		return "Command", true
	}
}

func describeScriptPhase(t *domain.Task) (string, bool) {
	name := ruleArg(t, 1)
	if target := t.TargetName(); target != "" {
		return "That command depends on command in Target '" + target + "': script phase “" + name + "”", true
	}
	return "That command depends on command: script phase “" + name + "”", true
}

// parseDependencyInfo fails a script phase whose declared dependency info file is missing
// or is not in "outputs: inputs" form.
func parseDependencyInfo(t *domain.Task, _ []byte) error {
	path := t.Environment[DependencyInfoEnv]
	if path == "" {
		return nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(t.WorkingDirectory, path)
	}

	//nolint:gosec // path is declared by the project
	data, err := os.ReadFile(path)
	if err != nil {
		return zerr.With(domain.Wrap(domain.ErrTaskOutputParseFailed, err), "dependency_info", path)
	}

	for line := range bytes.Lines(data) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if bytes.IndexByte(line, ':') <= 0 {
			return zerr.With(zerr.Wrap(domain.ErrTaskOutputParseFailed, "malformed dependency info"),
				"dependency_info", path)
		}
	}
	return nil
}
