package config

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/zerr"
)

// EnvPrefix selects the variables that configure bake.
const EnvPrefix = "BAKE_"

// Environment variables read from .env and the process environment.
const (
	EnvCapturedBuildInfoDir = "BAKE_CAPTURED_BUILD_INFO_DIR"
	EnvDerivedData          = "BAKE_DERIVED_DATA"
	EnvParallelism          = "BAKE_PARALLELISM"
	EnvDiagnoseDiamonds     = "BAKE_DIAGNOSE_DIAMONDS"
	EnvLogFormat            = "BAKE_LOG_FORMAT"
)

// loadEnvironment reads the BAKE_* variables of the .env file in root and overlays the process environment.
// A missing .env file is not an error.
func (l *Loader) loadEnvironment(root string) (map[string]string, error) {
	env := make(map[string]string)

	path := filepath.Join(root, domain.EnvFileName)
	data, err := l.fs.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, zerr.With(domain.Wrap(domain.ErrEnvLoadFailed, err), "path", path)
	default:
		parsed, err := godotenv.Parse(bytes.NewReader(data))
		if err != nil {
			return nil, zerr.With(domain.Wrap(domain.ErrEnvLoadFailed, err), "path", path)
		}
		for k, v := range parsed {
			if strings.HasPrefix(k, EnvPrefix) {
				env[k] = v
			}
		}
	}

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}
	return env, nil
}
