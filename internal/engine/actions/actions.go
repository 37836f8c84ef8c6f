// Package actions implements the in-process behaviors that tasks can run instead of a command line.
package actions

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/zerr"
)

// Action kinds as they appear in manifests.
const (
	KindWriteFile = "write-file"
	KindAppend    = "append"
	KindCheck     = "check"
	KindCopy      = "copy"
	KindMkdir     = "mkdir"
)

// Parameter names.
const (
	ParamPath     = "path"
	ParamContent  = "content"
	ParamSource   = "source"
	ParamMode     = "mode"
	ParamExpected = "expected"
)

type action struct {
	kind   string
	params map[string]string
	run    func(ctx context.Context, params map[string]string, out io.Writer) error
}

var _ domain.Action = (*action)(nil)

func (a *action) Kind() string { return a.kind }

func (a *action) Params() map[string]string { return maps.Clone(a.params) }

// Signature hashes the kind and parameters, so changing the payload forces a rerun.
func (a *action) Signature() string {
	h := xxhash.New()
	_, _ = h.WriteString(a.kind)
	_, _ = h.Write([]byte{0})
	for _, k := range slices.Sorted(maps.Keys(a.params)) {
		_, _ = h.WriteString(k)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(a.params[k])
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

func (a *action) Run(ctx context.Context, out io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return a.run(ctx, a.params, out)
}

// WriteFile creates or truncates path with content.
func WriteFile(path, content string) domain.Action {
	return &action{kind: KindWriteFile, params: map[string]string{ParamPath: path, ParamContent: content}, run: runWriteFile}
}

// WriteExecutable writes a script with the executable bit set.
func WriteExecutable(path, content string) domain.Action {
	return &action{
		kind:   KindWriteFile,
		params: map[string]string{ParamPath: path, ParamContent: content, ParamMode: "0755"},
		run:    runWriteFile,
	}
}

// Append appends content to path, creating it if needed.
func Append(path, content string) domain.Action {
	return &action{kind: KindAppend, params: map[string]string{ParamPath: path, ParamContent: content}, run: runAppend}
}

// Check fails unless path holds exactly expected.
func Check(path, expected string) domain.Action {
	return &action{kind: KindCheck, params: map[string]string{ParamPath: path, ParamExpected: expected}, run: runCheck}
}

// CopyFile copies source to path.
func CopyFile(source, path string) domain.Action {
	return &action{kind: KindCopy, params: map[string]string{ParamSource: source, ParamPath: path}, run: runCopy}
}

// Mkdir creates a directory and its parents.
func Mkdir(path string) domain.Action {
	return &action{kind: KindMkdir, params: map[string]string{ParamPath: path}, run: runMkdir}
}

// Decode rebuilds an action from its manifest form.
func Decode(kind string, params map[string]string) (domain.Action, error) {
	var run func(context.Context, map[string]string, io.Writer) error
	switch kind {
	case KindWriteFile:
		run = runWriteFile
	case KindAppend:
		run = runAppend
	case KindCheck:
		run = runCheck
	case KindCopy:
		run = runCopy
	case KindMkdir:
		run = runMkdir
	default:
		return nil, zerr.With(zerr.Wrap(domain.ErrUnknownAction, kind), "kind", kind)
	}
	return &action{kind: kind, params: maps.Clone(params), run: run}, nil
}

func ensureParent(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create parent directory"), "path", path)
	}
	return nil
}

func runWriteFile(_ context.Context, p map[string]string, _ io.Writer) error {
	path := p[ParamPath]
	if err := ensureParent(path); err != nil {
		return err
	}
	perm := os.FileMode(domain.FilePerm)
	if p[ParamMode] == "0755" {
		perm = 0o755
	}
	//nolint:gosec // path comes from the build description
	if err := os.WriteFile(path, []byte(p[ParamContent]), perm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to write file"), "path", path)
	}
	if perm != domain.FilePerm {
		// WriteFile keeps the mode of an existing file.
		//nolint:gosec // scripts must be executable
		if err := os.Chmod(path, perm); err != nil {
			return zerr.With(zerr.Wrap(err, "failed to set file mode"), "path", path)
		}
	}
	return nil
}

func runAppend(_ context.Context, p map[string]string, _ io.Writer) error {
	path := p[ParamPath]
	if err := ensureParent(path); err != nil {
		return err
	}
	//nolint:gosec // path comes from the build description
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, domain.FilePerm)
	if err != nil {
		return zerr.With(domain.Wrap(domain.ErrFileOpenFailed, err), "path", path)
	}
	if _, err := f.WriteString(p[ParamContent]); err != nil {
		_ = f.Close()
		return zerr.With(zerr.Wrap(err, "failed to append to file"), "path", path)
	}
	return f.Close()
}

func runCheck(_ context.Context, p map[string]string, out io.Writer) error {
	path := p[ParamPath]
	//nolint:gosec // path comes from the build description
	got, err := os.ReadFile(path)
	if err != nil {
		return zerr.With(domain.Wrap(domain.ErrFileOpenFailed, err), "path", path)
	}
	if !bytes.Equal(got, []byte(p[ParamExpected])) {
		_, _ = fmt.Fprintf(out, "%s: expected %q, found %q\n", path, p[ParamExpected], got)
		return zerr.With(zerr.New("unexpected file content"), "path", path)
	}
	return nil
}

func runCopy(_ context.Context, p map[string]string, _ io.Writer) error {
	src, dst := p[ParamSource], p[ParamPath]
	if err := ensureParent(dst); err != nil {
		return err
	}
	//nolint:gosec // path comes from the build description
	in, err := os.Open(src)
	if err != nil {
		return zerr.With(domain.Wrap(domain.ErrFileOpenFailed, err), "path", src)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return zerr.With(domain.Wrap(domain.ErrPathStatFailed, err), "path", src)
	}

	//nolint:gosec // path comes from the build description
	outFile, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return zerr.With(domain.Wrap(domain.ErrFileOpenFailed, err), "path", dst)
	}
	if _, err := io.Copy(outFile, in); err != nil {
		_ = outFile.Close()
		return zerr.With(zerr.Wrap(err, "failed to copy file"), "path", dst)
	}
	return outFile.Close()
}

func runMkdir(_ context.Context, p map[string]string, _ io.Writer) error {
	if err := os.MkdirAll(p[ParamPath], domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(err, "failed to create directory"), "path", p[ParamPath])
	}
	return nil
}
