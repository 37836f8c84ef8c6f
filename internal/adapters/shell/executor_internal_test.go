package shell

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEnvironment(t *testing.T) {
	tests := []struct {
		name     string
		sysEnv   []string
		taskEnv  map[string]string
		expected []string
	}{
		{
			name:     "System Only (Allowed)",
			sysEnv:   []string{"USER=test", "PATH=/bin", "HOME=/home/test"},
			expected: []string{"USER=test", "PATH=/bin", "HOME=/home/test"},
		},
		{
			name:     "System Only (Filtered)",
			sysEnv:   []string{"USER=test", "SSH_AUTH_SOCK=/tmp/ssh", "SECRET=key"},
			expected: []string{"USER=test"},
		},
		{
			name:     "Task Override",
			sysEnv:   []string{"USER=test", "PATH=/bin"},
			taskEnv:  map[string]string{"USER": "bake", "FOO": "bar"},
			expected: []string{"USER=bake", "PATH=/bin", "FOO=bar"},
		},
		{
			name:     "Task PATH",
			sysEnv:   []string{"PATH=/bin"},
			taskEnv:  map[string]string{"PATH": "/custom/bin"},
			expected: []string{"PATH=/custom/bin"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveEnvironment(tt.sysEnv, tt.taskEnv)

			sort.Strings(got)
			sort.Strings(tt.expected)

			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestLookPath(t *testing.T) {
	dir := t.TempDir()
	tool := filepath.Join(dir, "tool")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\n"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain"), []byte("x"), 0o644))

	got, err := lookPath("tool", []string{"PATH=" + dir})
	require.NoError(t, err)
	assert.Equal(t, tool, got)

	_, err = lookPath("plain", []string{"PATH=" + dir})
	require.Error(t, err)

	_, err = lookPath("tool", nil)
	require.Error(t, err)
}

func TestLogWriter_FlushesPartialLineOnClose(t *testing.T) {
	var lines []string
	w := &logWriter{logger: lineLogger(func(s string) { lines = append(lines, s) })}

	_, _ = w.Write([]byte("a\r\nb"))
	assert.Equal(t, []string{"a"}, lines)
	require.NoError(t, w.Close())
	assert.Equal(t, []string{"a", "b"}, lines)
}

type lineLogger func(string)

func (l lineLogger) Debug(msg string) { l(msg) }
func (l lineLogger) Info(string)      {}
func (l lineLogger) Warn(string)      {}
func (l lineLogger) Error(error)      {}
