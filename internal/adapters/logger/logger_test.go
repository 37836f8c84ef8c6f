package logger_test

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/adapters/logger"
	"go.trai.ch/zerr"
)

// newTestLogger creates a logger writing to a buffer with colors disabled.
func newTestLogger(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")
	t.Setenv(logger.FormatEnv, "")
	t.Setenv(logger.LevelEnv, "")

	buf := &bytes.Buffer{}
	lg := logger.New().(*logger.Logger)
	lg.SetOutput(buf)
	return lg, buf
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name       string
		log        func(*logger.Logger)
		goldenName string
	}{
		{"info", func(l *logger.Logger) { l.Info("some message") }, "info_basic"},
		{"multiline info", func(l *logger.Logger) { l.Info("line1\nline2") }, "info_multiline"},
		{"warn", func(l *logger.Logger) { l.Warn("some warning") }, "warn_basic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lg, buf := newTestLogger(t)
			tt.log(lg)

			g := goldie.New(t)
			g.Assert(t, tt.goldenName, buf.Bytes())
		})
	}
}

func TestLogger_Debug(t *testing.T) {
	lg, buf := newTestLogger(t)

	lg.Debug("verbose detail")
	assert.Empty(t, buf.String())

	lg.SetLevel(slog.LevelDebug)
	lg.Debug("verbose detail")

	g := goldie.New(t)
	g.Assert(t, "debug_enabled", buf.Bytes())
}

func TestLogger_LevelFromEnvironment(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	t.Setenv(logger.LevelEnv, "debug")

	buf := &bytes.Buffer{}
	lg := logger.New().(*logger.Logger)
	lg.SetOutput(buf)
	lg.Debug("verbose detail")

	assert.Contains(t, buf.String(), "verbose detail")
}

func TestLogger_Error(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		goldenName string
	}{
		{
			name:       "simple error",
			err:        os.ErrPermission,
			goldenName: "error_simple",
		},
		{
			name:       "two level chain",
			err:        zerr.Wrap(errors.New("underlying cause"), "wrapped message"),
			goldenName: "error_chain_zerr_two",
		},
		{
			name: "three level chain",
			err: zerr.Wrap(
				zerr.Wrap(errors.New("database connection failed"), "failed to load user data"),
				"failed to process request",
			),
			goldenName: "error_chain_zerr_three",
		},
		{
			name: "stdlib chain",
			err: fmt.Errorf("failed to initialize service: %w",
				fmt.Errorf("failed to connect to database: %w", errors.New("connection refused"))),
			goldenName: "error_chain_stdlib",
		},
		{
			name: "metadata on main error",
			err: func() error {
				outer := zerr.Wrap(errors.New("connection refused"), "service unavailable")
				outer = zerr.With(outer, "service", "auth-api")
				return zerr.With(outer, "retry_count", 3)
			}(),
			goldenName: "error_metadata_main",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lg, buf := newTestLogger(t)
			lg.Error(tt.err)

			g := goldie.New(t)
			g.Assert(t, tt.goldenName, buf.Bytes())
		})
	}
}

func TestLogger_Error_Nil(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.Error(nil)
	assert.Empty(t, buf.String())
}

func TestLogger_JSON(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.SetJSON(true)
	lg.Error(zerr.With(zerr.Wrap(errors.New("database connection failed"), "failed to load user data"), "user_id", "12345"))

	out := buf.String()
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, "failed to load user data")
	assert.NotContains(t, out, "✗")
}

func TestLogger_JSONFromEnvironment(t *testing.T) {
	t.Setenv(logger.FormatEnv, "json")

	buf := &bytes.Buffer{}
	lg := logger.New().(*logger.Logger)
	lg.SetOutput(buf)
	lg.Info("hello")

	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestLogger_FormatSwitching(t *testing.T) {
	lg, buf := newTestLogger(t)

	lg.Error(errors.New("pretty"))
	assert.Contains(t, buf.String(), "✗")
	buf.Reset()

	lg.SetJSON(true)
	lg.Error(errors.New("json"))
	assert.Contains(t, buf.String(), `"error"`)
	buf.Reset()

	lg.SetJSON(false)
	lg.Error(errors.New("pretty again"))
	assert.Contains(t, buf.String(), "✗")
}

func TestLogger_ConcurrentAccess(t *testing.T) {
	lg, _ := newTestLogger(t)

	done := make(chan struct{}, 5)
	for _, fn := range []func(){
		func() { lg.Info("concurrent info") },
		func() { lg.Debug("concurrent debug") },
		func() { lg.Error(errors.New("concurrent error")) },
		func() { lg.SetJSON(true) },
		func() { lg.SetOutput(&bytes.Buffer{}) },
	} {
		go func() {
			fn()
			done <- struct{}{}
		}()
	}
	for range 5 {
		<-done
	}
}

func TestPrettyHandler_Attrs(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	t.Run("record attributes", func(t *testing.T) {
		buf := &bytes.Buffer{}
		slog.New(logger.NewPrettyHandler(buf, nil)).Info("single attr message", "key", "value")

		g := goldie.New(t)
		g.Assert(t, "handler_attrs_single", buf.Bytes())
	})

	t.Run("group", func(t *testing.T) {
		buf := &bytes.Buffer{}
		slog.New(logger.NewPrettyHandler(buf, nil)).WithGroup("build").Info("grouped message", "target", "App")

		g := goldie.New(t)
		g.Assert(t, "handler_group", buf.Bytes())
	})

	t.Run("level filter", func(t *testing.T) {
		buf := &bytes.Buffer{}
		h := logger.NewPrettyHandler(buf, &slog.HandlerOptions{Level: slog.LevelWarn})
		slog.New(h).Info("hidden")
		require.Empty(t, buf.String())
	})
}
