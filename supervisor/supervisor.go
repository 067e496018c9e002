// devtools-protocol - a Go CDP pipe-transport broker.
// Licensed under the GNU Affero General Public License v3.0 or later.
// See https://www.gnu.org/licenses/ for details.

// Package supervisor implements the Process Supervisor (spec §4.7): it
// spawns the child browser process, wires the pipe transport's handles to
// its fds 3/4, watches for exit, and runs the shutdown state machine
// (Running -> AwaitExit -> ForceProcessGroup -> ForceKill -> Cleanup),
// with Unix and Windows variants of the termination and temp-dir steps.
// The child's fds 3/4 are passed through exec.Cmd.ExtraFiles, which
// os/exec does not support on Windows, so Launch fails to start the
// child there.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ayjayt/devtools-protocol/internal/log"
	"github.com/ayjayt/devtools-protocol/internal/transport"
)

// AwaitExitTimeout is the bounded wait for a graceful child exit after
// Browser.close, per the shutdown table in spec §4.7.
const AwaitExitTimeout = 3 * time.Second

// ForceTimeout bounds each escalation step (ForceProcessGroup,
// ForceKill) before moving to the next.
const ForceTimeout = 3 * time.Second

// Config is the per-Browser launch configuration (spec §9, "Global-like
// state" design note: scoped explicitly here instead of process-wide
// flags).
type Config struct {
	// BrowserPath is the absolute path to the browser executable
	// (BROWSER_PATH, spec §6). Locating it is out of scope (spec §1); the
	// caller supplies it.
	BrowserPath string
	// Headless, if true, appends --headless (HEADLESS, spec §6).
	Headless bool
	// ExtraArgs are appended verbatim to the child's command line.
	ExtraArgs []string
	// ExtraEnv is appended to the child's environment, after
	// BROWSER_PATH/USER_DATA_DIR/HEADLESS.
	ExtraEnv []string
	// TempDirParent overrides the parent directory the per-profile temp
	// directory is created under; empty uses the OS default.
	TempDirParent string
}

// Supervisor owns one child browser process and its per-profile temp
// directory.
type Supervisor struct {
	id     uuid.UUID
	logger log.Logger
	tracer trace.Tracer

	cmd         *exec.Cmd
	userDataDir string
	transport   transport.Transport
	exited      chan struct{}
	// reaper is the single errgroup.Group whose one goroutine owns the
	// only call to cmd.Wait; exec.Cmd.Wait may not be called concurrently
	// or more than once, so every other caller (Wait, Shutdown) observes
	// s.exited/s.reaper.Wait instead of calling cmd.Wait itself.
	reaper *errgroup.Group

	mu    sync.Mutex
	state state
}

type state int

const (
	stateRunning state = iota
	stateAwaitExit
	stateForceProcessGroup
	stateForceKill
	stateCleanup
	stateDone
)

func (s state) String() string {
	switch s {
	case stateRunning:
		return "Running"
	case stateAwaitExit:
		return "AwaitExit"
	case stateForceProcessGroup:
		return "ForceProcessGroup"
	case stateForceKill:
		return "ForceKill"
	case stateCleanup:
		return "Cleanup"
	default:
		return "Done"
	}
}

// Launch creates the temp directory, the pipe pair, and spawns the
// child, per the startup sequence in spec §4.7.
func Launch(ctx context.Context, cfg Config, logger log.Logger) (*Supervisor, transport.Transport, error) {
	id := uuid.New()
	tracer := otel.Tracer("github.com/ayjayt/devtools-protocol/supervisor")
	ctx, span := tracer.Start(ctx, "supervisor.Launch", trace.WithAttributes(
		attribute.String("browser.instance_id", id.String()),
	))
	defer span.End()

	userDataDir, err := os.MkdirTemp(cfg.TempDirParent, "devtools-protocol-user-data-*")
	if err != nil {
		return nil, nil, fmt.Errorf("supervisor: create temp dir: %w", err)
	}

	childStdin, parentToChild, err := os.Pipe()
	if err != nil {
		os.RemoveAll(userDataDir)
		return nil, nil, fmt.Errorf("supervisor: create stdin pipe: %w", err)
	}
	parentFromChild, childStdout, err := os.Pipe()
	if err != nil {
		childStdin.Close()
		parentToChild.Close()
		os.RemoveAll(userDataDir)
		return nil, nil, fmt.Errorf("supervisor: create stdout pipe: %w", err)
	}

	args := append([]string{}, cfg.ExtraArgs...)
	if cfg.Headless {
		args = append(args, "--headless")
	}

	cmd := exec.CommandContext(ctx, cfg.BrowserPath, args...)
	// fd 3 = childStdin (child's read end), fd 4 = childStdout (child's
	// write end): ExtraFiles starts numbering at fd 3, subsuming the
	// spec's child-launch shim (SPEC_FULL.md §4.1).
	cmd.ExtraFiles = []*os.File{childStdin, childStdout}
	cmd.Env = append(os.Environ(),
		"BROWSER_PATH="+cfg.BrowserPath,
		"USER_DATA_DIR="+userDataDir,
	)
	if cfg.Headless {
		cmd.Env = append(cmd.Env, "HEADLESS=1")
	}
	cmd.Env = append(cmd.Env, cfg.ExtraEnv...)

	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		childStdin.Close()
		childStdout.Close()
		parentToChild.Close()
		parentFromChild.Close()
		os.RemoveAll(userDataDir)
		return nil, nil, fmt.Errorf("supervisor: start child: %w", err)
	}
	// The child inherited these via ExtraFiles; the parent's copies are
	// no longer needed and must be closed so EOF propagates correctly
	// when the child exits.
	childStdin.Close()
	childStdout.Close()

	pipeTransport := transport.NewPipe(parentToChild, parentFromChild)

	exited := make(chan struct{})
	reaper := new(errgroup.Group)
	reaper.Go(func() error {
		defer close(exited)
		return cmd.Wait()
	})

	sup := &Supervisor{
		id:          id,
		logger:      logger,
		tracer:      tracer,
		cmd:         cmd,
		userDataDir: userDataDir,
		transport:   pipeTransport,
		exited:      exited,
		reaper:      reaper,
	}
	return sup, pipeTransport, nil
}

// PID returns the child process's PID.
func (s *Supervisor) PID() int {
	if s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Shutdown runs the shutdown state machine described in spec §4.7.
// sendBrowserClose is called once, from the Running state, to ask the
// browser to close gracefully (typically broker.SendCommand(ctx, "",
// "Browser.close", nil)); its error is logged, never fatal, since every
// later state still runs.
func (s *Supervisor) Shutdown(ctx context.Context, sendBrowserClose func(context.Context) error) error {
	s.transition(ctx, stateRunning)
	if sendBrowserClose != nil {
		if err := sendBrowserClose(ctx); err != nil {
			s.logger.Warnf("supervisor", "Browser.close failed: %v", err)
		}
	}

	s.transition(ctx, stateAwaitExit)
	if waitFor(s.exited, AwaitExitTimeout) {
		return s.cleanup(ctx)
	}

	s.transition(ctx, stateForceProcessGroup)
	if err := terminateProcessGroup(s.cmd); err != nil {
		s.logger.Warnf("supervisor", "terminate process group: %v", err)
	}
	if waitFor(s.exited, ForceTimeout) {
		return s.cleanup(ctx)
	}

	s.transition(ctx, stateForceKill)
	if err := killProcessGroup(s.cmd); err != nil {
		s.logger.Warnf("supervisor", "force kill: %v", err)
	}
	waitFor(s.exited, ForceTimeout)
	return s.cleanup(ctx)
}

func (s *Supervisor) transition(ctx context.Context, next state) {
	_, span := s.tracer.Start(ctx, "supervisor.transition", trace.WithAttributes(
		attribute.String("browser.instance_id", s.id.String()),
		attribute.String("supervisor.state", next.String()),
	))
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	span.End()
}

// cleanup runs the Cleanup state: close the pipe, remove the temp dir
// with a Windows read-only fallback. It must run even if earlier steps
// failed, and its own failures degrade to warnings (spec §4.7, §7).
func (s *Supervisor) cleanup(ctx context.Context) error {
	s.transition(ctx, stateCleanup)

	closeErr := s.transport.Close()
	if closeErr != nil {
		s.logger.Warnf("supervisor", "close pipe: %v", closeErr)
	}

	if err := removeTempDirWithFallback(s.userDataDir); err != nil {
		s.logger.Warnf("supervisor", "remove temp dir %s: %v", s.userDataDir, err)
	}

	s.transition(ctx, stateDone)
	return closeErr
}

func waitFor(ch <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Wait blocks until the child process exits and returns cmd.Wait's
// result, for callers (the browser package) that coordinate it alongside
// the broker's read loop. It is safe to call from multiple goroutines
// and repeatedly, unlike exec.Cmd.Wait itself, since it joins the single
// errgroup.Group goroutine Launch started rather than calling cmd.Wait
// again.
func (s *Supervisor) Wait() error {
	return s.reaper.Wait()
}

// Exited returns the channel closed once the child process has exited,
// for callers that want to select on it alongside other events (e.g. the
// broker's read loop ending).
func (s *Supervisor) Exited() <-chan struct{} {
	return s.exited
}
