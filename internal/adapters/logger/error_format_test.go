package logger_test

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.trai.ch/bake/internal/adapters/logger"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/engine/cycles"
	"go.trai.ch/zerr"
)

func duplicateProjectErr() error {
	err := zerr.With(zerr.Wrap(domain.ErrDuplicateProjectName, ""), "project_name", "app")
	return zerr.With(err, "duplicate_at", "apps/b")
}

func buildFailedErr() error {
	return zerr.With(zerr.Wrap(domain.ErrBuildFailed, "1 task(s) failed"), "cause", "task execution failed: exit status 1")
}

func cycleDiagnostic() cycles.Diagnostic {
	return cycles.Diagnostic{
		Header: "Cycle in dependencies between targets 'A' and 'B'; building could produce unreliable results.",
		Path:   "Cycle path: A → B → A",
		Lines: []string{
			"→ Target 'A' has link command with input '/ws/build/libB.a'",
			"→ Target 'B' has script phase with input '/ws/build/A.h'",
		},
	}
}

func TestCollectErrorEntries(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantMessages []string
		wantMetadata []map[string]any
	}{
		{
			name:         "standard error",
			err:          fs.ErrPermission,
			wantMessages: []string{"permission denied"},
			wantMetadata: []map[string]any{nil},
		},
		{
			name:         "bare sentinel",
			err:          domain.ErrNoTargetsSpecified,
			wantMessages: []string{"no targets specified"},
			wantMetadata: []map[string]any{{}},
		},
		{
			name:         "sentinel with metadata",
			err:          duplicateProjectErr(),
			wantMessages: []string{"duplicate project name"},
			wantMetadata: []map[string]any{
				{"project_name": "app", "duplicate_at": "apps/b"},
			},
		},
		{
			name:         "cause tagged with a sentinel",
			err:          zerr.With(domain.Wrap(domain.ErrConfigReadFailed, fs.ErrNotExist), "path", "/ws/bake.yaml"),
			wantMessages: []string{"failed to read config file: file does not exist"},
			wantMetadata: []map[string]any{{"path": "/ws/bake.yaml"}},
		},
		{
			name:         "failed build",
			err:          buildFailedErr(),
			wantMessages: []string{"1 task(s) failed", "build failed"},
			wantMetadata: []map[string]any{
				{"cause": "task execution failed: exit status 1"},
				{},
			},
		},
		{
			name: "task failure keeps the command error text",
			err: func() error {
				cmd := zerr.With(zerr.Wrap(errors.New("exit status 1"), "command failed"), "exit_code", 1)
				return zerr.With(domain.Wrap(domain.ErrTaskExecutionFailed, cmd), "task", "CompileC main.o")
			}(),
			wantMessages: []string{"task execution failed: command failed: exit status 1"},
			wantMetadata: []map[string]any{{"task": "CompileC main.o"}},
		},
		{
			name:         "dependency cycle",
			err:          cycles.NewError(cycleDiagnostic()),
			wantMessages: []string{cycleDiagnostic().String()},
			wantMetadata: []map[string]any{{"path": "A → B → A"}},
		},
		{
			name:         "nil error handling",
			err:          nil,
			wantMessages: nil,
			wantMetadata: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := logger.CollectErrorEntriesExported(tt.err)

			if tt.err == nil {
				assert.Empty(t, entries, "nil error should produce no entries")
				return
			}

			assert.Len(t, entries, len(tt.wantMessages), "entry count mismatch")
			for i, wantMsg := range tt.wantMessages {
				assert.Equal(t, wantMsg, entries[i].Message, "message mismatch at index %d", i)
				assert.Equal(t, tt.wantMetadata[i], entries[i].Metadata, "metadata mismatch at index %d", i)
			}
		})
	}
}

func TestFormatErrorEntries(t *testing.T) {
	tests := []struct {
		name    string
		entries []logger.ErrorEntry
		want    string
	}{
		{
			name:    "single entry",
			entries: []logger.ErrorEntry{{Message: "no targets specified"}},
			want:    "Error: no targets specified",
		},
		{
			name: "cause chain",
			entries: []logger.ErrorEntry{
				{Message: "failed to load configuration"},
				{Message: "failed to resolve workspace projects"},
				{Message: "duplicate project name"},
			},
			want: "Error: failed to load configuration\n\n" +
				"  Caused by:\n" +
				"    → failed to resolve workspace projects\n" +
				"    → duplicate project name",
		},
		{
			name: "metadata on cause",
			entries: []logger.ErrorEntry{
				{Message: "failed to load configuration"},
				{Message: "invalid product kind", Metadata: map[string]any{"target": "T", "kind": "gadget"}},
			},
			want: "Error: failed to load configuration\n\n" +
				"  Caused by:\n" +
				"    → invalid product kind\n" +
				"      kind: gadget\n" +
				"      target: T",
		},
		{
			name: "multiline cause",
			entries: []logger.ErrorEntry{
				{Message: "duplicate output"},
				{Message: "Multiple commands produce '/ws/build/a.o'\n1) Target 'A': CompileC a.c"},
			},
			want: "Error: duplicate output\n\n" +
				"  Caused by:\n" +
				"    → Multiple commands produce '/ws/build/a.o'\n" +
				"      1) Target 'A': CompileC a.c",
		},
		{
			name:    "empty entries",
			entries: []logger.ErrorEntry{},
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, logger.FormatErrorEntriesExported(tt.entries))
		})
	}
}

func TestCollectAndFormatIntegration(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "sentinel with metadata",
			err:  duplicateProjectErr(),
			want: "Error: duplicate project name\n" +
				"       duplicate_at: apps/b\n" +
				"       project_name: app",
		},
		{
			name: "failed build",
			err:  buildFailedErr(),
			want: "Error: 1 task(s) failed\n" +
				"       cause: task execution failed: exit status 1\n\n" +
				"  Caused by:\n" +
				"    → build failed",
		},
		{
			name: "dependency cycle",
			err:  cycles.NewError(cycleDiagnostic()),
			want: "Error: Cycle in dependencies between targets 'A' and 'B'; building could produce unreliable results.\n" +
				"       Cycle path: A → B → A\n" +
				"       Cycle details:\n" +
				"       → Target 'A' has link command with input '/ws/build/libB.a'\n" +
				"       → Target 'B' has script phase with input '/ws/build/A.h'\n" +
				"       path: A → B → A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := logger.CollectErrorEntriesExported(tt.err)
			assert.Equal(t, tt.want, logger.FormatErrorEntriesExported(entries))
		})
	}
}
