package actions_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/engine/actions"
)

func TestMutationSequence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "test.txt")
	ctx := context.Background()

	for _, a := range []domain.Action{
		actions.WriteFile(path, "Hello"),
		actions.Append(path, ", "),
		actions.Append(path, "world"),
		actions.Append(path, "!"),
	} {
		require.NoError(t, a.Run(ctx, &bytes.Buffer{}))
	}

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", string(got))

	require.NoError(t, actions.Check(path, "Hello, world!").Run(ctx, &bytes.Buffer{}))

	var out bytes.Buffer
	require.Error(t, actions.Check(path, "Hello").Run(ctx, &out))
	assert.Contains(t, out.String(), "expected \"Hello\"")
}

func TestSignature_TracksPayload(t *testing.T) {
	a := actions.WriteFile("/tmp/x", "Hello")
	b := actions.WriteFile("/tmp/x", "Hello")
	c := actions.WriteFile("/tmp/x", "Howdy")

	assert.Equal(t, a.Signature(), b.Signature())
	assert.NotEqual(t, a.Signature(), c.Signature())
	assert.NotEqual(t, a.Signature(), actions.Append("/tmp/x", "Hello").Signature())
}

func TestDecode(t *testing.T) {
	orig := actions.CopyFile("/src/a.h", "/dst/a.h")

	decoded, err := actions.Decode(orig.Kind(), orig.Params())
	require.NoError(t, err)
	assert.Equal(t, orig.Signature(), decoded.Signature())

	_, err = actions.Decode("teleport", nil)
	require.ErrorIs(t, err, domain.ErrUnknownAction)
}

func TestCopyAndMkdir(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.h")
	require.NoError(t, os.WriteFile(src, []byte("int a;"), domain.FilePerm))

	dst := filepath.Join(dir, "out", "include", "a.h")
	require.NoError(t, actions.CopyFile(src, dst).Run(context.Background(), &bytes.Buffer{}))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "int a;", string(got))

	wrapper := filepath.Join(dir, "App.app", "Contents")
	require.NoError(t, actions.Mkdir(wrapper).Run(context.Background(), &bytes.Buffer{}))
	assert.DirExists(t, wrapper)
}

func TestRun_HonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	path := filepath.Join(t.TempDir(), "never.txt")

	require.ErrorIs(t, actions.WriteFile(path, "x").Run(ctx, &bytes.Buffer{}), context.Canceled)
	assert.NoFileExists(t, path)
}
