package domain

import "path/filepath"

const (
	// BakeDirName is the name of the internal workspace directory.
	BakeDirName = ".bake"

	// StoreDirName is the name of the signature store directory.
	StoreDirName = "store"

	// BuildDirName is the default derived data directory.
	BuildDirName = "build"

	// ManifestFileName is the name of the manifest written by plan.
	ManifestFileName = "manifest.yaml"

	// ProjectFileName is the name of the YAML project file.
	ProjectFileName = "bake.yaml"

	// HCLProjectFileName is the name of the HCL project file.
	HCLProjectFileName = "bake.hcl"

	// WorkFileName is the name of the workspace configuration file.
	WorkFileName = "bake.work.yaml"

	// EnvFileName is the name of the optional environment file in the workspace root.
	EnvFileName = ".env"

	// CapturedBuildInfoFileName is written into the capture directory.
	CapturedBuildInfoFileName = "build-info.json"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644
)

// DefaultBakePath returns the default root directory for bake metadata.
func DefaultBakePath() string {
	return BakeDirName
}

// DefaultStorePath returns the default path for the signature store.
func DefaultStorePath() string {
	return filepath.Join(BakeDirName, StoreDirName)
}

// DefaultArenaPath returns the default derived data root.
func DefaultArenaPath() string {
	return filepath.Join(BakeDirName, BuildDirName)
}

// DefaultManifestPath returns the default manifest location.
func DefaultManifestPath() string {
	return filepath.Join(BakeDirName, ManifestFileName)
}

// ProductsDir returns where products of a configuration are written.
func ProductsDir(arena, configuration string) string {
	if configuration == "" {
		configuration = "Debug"
	}
	return filepath.Join(arena, "Products", configuration)
}

// IntermediatesDir returns the per-target intermediates directory.
func IntermediatesDir(arena, configuration, targetName string) string {
	if configuration == "" {
		configuration = "Debug"
	}
	return filepath.Join(arena, "Intermediates", configuration, targetName+".build")
}

// ModuleCacheDir returns the shared module cache directory.
func ModuleCacheDir(arena string) string {
	return filepath.Join(arena, "ModuleCache")
}
