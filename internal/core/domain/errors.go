package domain

import (
	"fmt"

	"go.trai.ch/zerr"
)

var (
	// ErrTargetNotFound is returned when a requested or referenced target does not exist in the workspace.
	ErrTargetNotFound = zerr.New("target not found")

	// ErrDuplicateTargetName is returned when two targets of a workspace share the same identifier.
	ErrDuplicateTargetName = zerr.New("duplicate target name")

	// ErrNoTargetsSpecified is returned when a build request names no targets.
	ErrNoTargetsSpecified = zerr.New("no targets specified")

	// ErrInvalidProductKind is returned when a target declares an unknown product kind.
	ErrInvalidProductKind = zerr.New("invalid product kind")

	// ErrInvalidPhaseKind is returned when a build phase declares an unknown kind.
	ErrInvalidPhaseKind = zerr.New("invalid build phase kind")

	// ErrInvalidProjectName is returned when a project name is invalid.
	ErrInvalidProjectName = zerr.New("project name can only contain alphanumeric characters, hyphens and underscores")

	// ErrMissingProjectName is returned when a project of a workspace has no name.
	ErrMissingProjectName = zerr.New("project name is required in workspace mode")

	// ErrDuplicateProjectName is returned when multiple projects share the same name in a workspace.
	ErrDuplicateProjectName = zerr.New("duplicate project name")

	// ErrSchemeNotFound is returned when a requested scheme does not exist.
	ErrSchemeNotFound = zerr.New("scheme not found")

	// ErrTargetCycle is returned when the target dependency graph contains a cycle.
	ErrTargetCycle = zerr.New("cycle in target dependencies")

	// ErrTaskCycle is returned when the task graph contains a cycle.
	ErrTaskCycle = zerr.New("cycle in task dependencies")

	// ErrDiamondProblem is returned when a static library would be linked into more than one product.
	ErrDiamondProblem = zerr.New("library is linked statically into multiple products")

	// ErrDuplicateOutput is returned when more than one command produces the same file.
	ErrDuplicateOutput = zerr.New("multiple commands produce the same output")

	// ErrInvalidMutation is returned when a chain of tasks mutating a shared node cannot be ordered safely.
	ErrInvalidMutation = zerr.New("invalid mutating task")

	// ErrDuplicateTaskKey is returned when two tasks share the same rule identity.
	ErrDuplicateTaskKey = zerr.New("duplicate task rule")

	// ErrUnknownMustPrecede is returned when a task orders itself before a task outside the graph.
	ErrUnknownMustPrecede = zerr.New("must-precede references unknown task")

	// ErrBuildDescriptionFailed is returned when the build description cannot be constructed.
	ErrBuildDescriptionFailed = zerr.New("failed to construct build description")

	// ErrTaskExecutionFailed is returned when a task execution fails.
	ErrTaskExecutionFailed = zerr.New("task execution failed")

	// ErrTaskOutputParseFailed is returned when a task type rejects the output of a task that exited successfully.
	ErrTaskOutputParseFailed = zerr.New("failed to parse task output")

	// ErrBuildFailed is returned when one or more tasks of a build failed.
	ErrBuildFailed = zerr.New("build failed")

	// ErrBuildCancelled is returned when a build ends because it was cancelled.
	ErrBuildCancelled = zerr.New("build cancelled")

	// ErrStoreCreateFailed is returned when the signature store directory cannot be created.
	ErrStoreCreateFailed = zerr.New("failed to create signature store directory")

	// ErrStoreReadFailed is returned when a task record cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read task record")

	// ErrStoreUnmarshalFailed is returned when a task record cannot be unmarshaled.
	ErrStoreUnmarshalFailed = zerr.New("failed to unmarshal task record")

	// ErrStoreMarshalFailed is returned when a task record cannot be marshaled.
	ErrStoreMarshalFailed = zerr.New("failed to marshal task record")

	// ErrStoreWriteFailed is returned when a task record cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write task record")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrConfigNotFound is returned when the config file cannot be found.
	ErrConfigNotFound = zerr.New("could not find bake.yaml, bake.hcl or bake.work.yaml")

	// ErrEnvLoadFailed is returned when the .env file exists but cannot be loaded.
	ErrEnvLoadFailed = zerr.New("failed to load environment file")

	// ErrManifestEncodeFailed is returned when a build description cannot be serialized.
	ErrManifestEncodeFailed = zerr.New("failed to encode manifest")

	// ErrManifestDecodeFailed is returned when a manifest cannot be parsed.
	ErrManifestDecodeFailed = zerr.New("failed to decode manifest")

	// ErrUnknownAction is returned when a manifest references an in-process action kind that is not registered.
	ErrUnknownAction = zerr.New("unknown action kind")

	// ErrFailedToGetRoot is returned when the workspace root path cannot be determined.
	ErrFailedToGetRoot = zerr.New("failed to get absolute path of workspace root")

	// ErrFileOpenFailed is returned when a file cannot be opened.
	ErrFileOpenFailed = zerr.New("failed to open file")

	// ErrFileHashFailed is returned when hashing a file fails.
	ErrFileHashFailed = zerr.New("failed to hash file content")

	// ErrPathStatFailed is returned when stating a path fails.
	ErrPathStatFailed = zerr.New("failed to stat path")

	// ErrDirectoryWalkFailed is returned when listing a directory tree fails.
	ErrDirectoryWalkFailed = zerr.New("failed to walk directory tree")

	// ErrCleanFailed is returned when the derived data directory cannot be removed.
	ErrCleanFailed = zerr.New("failed to clean build folder")

	// ErrWatcherFailed is returned when the file watcher cannot be started.
	ErrWatcherFailed = zerr.New("failed to start file watcher")
)

// Wrap tags err with the sentinel kind. The result matches both under errors.Is.
func Wrap(kind, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", kind, err)
}
