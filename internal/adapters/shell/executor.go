// Package shell provides the executor for process-backed tasks and in-process actions.
package shell

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/zerr"
)

// DefaultWaitDelay is how long an interrupted process may take to exit before it is killed.
const DefaultWaitDelay = 5 * time.Second

var _ ports.Executor = (*Executor)(nil)

// Executor implements ports.Executor using os/exec and pty.
type Executor struct {
	logger    ports.Logger
	waitDelay time.Duration
	usePTY    bool
}

// Option configures an Executor.
type Option func(*Executor)

// WithoutPTY connects commands to plain pipes instead of a pseudo terminal.
func WithoutPTY() Option {
	return func(e *Executor) { e.usePTY = false }
}

// WithWaitDelay overrides DefaultWaitDelay.
func WithWaitDelay(d time.Duration) Option {
	return func(e *Executor) { e.waitDelay = d }
}

// NewExecutor creates a new Executor.
func NewExecutor(logger ports.Logger, opts ...Option) *Executor {
	e := &Executor{
		logger:    logger,
		waitDelay: DefaultWaitDelay,
		usePTY:    true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the in-process action of the task, or its command line.
//
// Cancelling ctx sends an interrupt to the process and kills it if it has not exited
// after the wait delay. Callers that must not interrupt a task pass a context without cancellation.
func (e *Executor) Execute(ctx context.Context, task *domain.Task, stdout, stderr io.Writer) error {
	if task.Action != nil {
		if err := task.Action.Run(ctx, stdout); err != nil {
			return zerr.With(zerr.Wrap(err, "action failed"), "action", task.Action.Kind())
		}
		return nil
	}
	if len(task.CommandLine) == 0 {
		return nil
	}

	log := &logWriter{logger: e.logger}
	defer func() { _ = log.Close() }()

	cmd := e.command(ctx, task)
	var err error
	if e.usePTY {
		err = e.runPTY(cmd, io.MultiWriter(log, stdout))
		if errors.Is(err, errPTYUnavailable) {
			cmd = e.command(ctx, task)
			err = e.runPipes(cmd, io.MultiWriter(log, stdout), io.MultiWriter(log, stderr))
		}
	} else {
		err = e.runPipes(cmd, io.MultiWriter(log, stdout), io.MultiWriter(log, stderr))
	}

	if err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return zerr.With(zerr.Wrap(err, "command failed"), "exit_code", exitCode)
	}
	return nil
}

func (e *Executor) command(ctx context.Context, task *domain.Task) *exec.Cmd {
	name := task.CommandLine[0]
	args := task.CommandLine[1:]

	cmdEnv := resolveEnvironment(os.Environ(), task.Environment)

	executable := name
	if !filepath.IsAbs(name) {
		if lp, err := lookPath(name, cmdEnv); err == nil {
			executable = lp
		}
	}

	cmd := exec.CommandContext(ctx, executable, args...) //nolint:gosec // Commands come from the build description
	if len(cmd.Args) > 0 {
		cmd.Args[0] = name
	}
	if task.WorkingDirectory != "" {
		cmd.Dir = task.WorkingDirectory
	}
	cmd.Env = cmdEnv
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = e.waitDelay
	return cmd
}

var errPTYUnavailable = errors.New("pty unavailable")

// runPTY merges stdout and stderr through a pseudo terminal so tools keep their terminal output.
func (e *Executor) runPTY(cmd *exec.Cmd, out io.Writer) error {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		if errors.Is(err, pty.ErrUnsupported) {
			return errPTYUnavailable
		}
		return zerr.Wrap(err, "failed to start pty")
	}

	ioDone := make(chan struct{})
	go func() {
		defer close(ioDone)
		_, _ = io.Copy(out, ptmx)
	}()

	err = cmd.Wait()
	_ = ptmx.Close()
	<-ioDone
	return err
}

func (e *Executor) runPipes(cmd *exec.Cmd, stdout, stderr io.Writer) error {
	var mu sync.Mutex
	cmd.Stdout = &lockedWriter{mu: &mu, w: stdout}
	cmd.Stderr = &lockedWriter{mu: &mu, w: stderr}
	return cmd.Run()
}

type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// logWriter forwards complete output lines to the debug log.
type logWriter struct {
	logger ports.Logger
	buf    []byte
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.logLine(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

func (w *logWriter) Close() error {
	if len(w.buf) > 0 {
		w.logLine(w.buf)
		w.buf = nil
	}
	return nil
}

func (w *logWriter) logLine(line []byte) {
	// PTYs may introduce \r.
	w.logger.Debug(strings.TrimSuffix(string(line), "\r"))
}

// allowListedEnvVars are the system environment variables tasks inherit.
var allowListedEnvVars = map[string]struct{}{
	"HOME":   {},
	"TERM":   {},
	"USER":   {},
	"PATH":   {},
	"TMPDIR": {},
}

// resolveEnvironment starts from the allow-listed system variables and applies the task environment.
func resolveEnvironment(sysEnv []string, taskEnv map[string]string) []string {
	envMap := make(map[string]string)
	for _, entry := range sysEnv {
		if k, v, ok := strings.Cut(entry, "="); ok {
			if _, allowed := allowListedEnvVars[k]; allowed {
				envMap[k] = v
			}
		}
	}
	for k, v := range taskEnv {
		envMap[k] = v
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	return result
}

// lookPath searches for an executable in the directories named by the PATH environment variable.
func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			path = strings.TrimPrefix(e, "PATH=")
			break
		}
	}

	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			// Unix shell semantics: path element "" means "."
			dir = "."
		}
		path := filepath.Join(dir, file)
		if err := findExecutable(path); err == nil {
			return path, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
