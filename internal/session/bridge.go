package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"sl-ot-viewer/internal/shell"

	"github.com/google/uuid"
)

// defaultDrainTimeout bounds how long the exit watcher waits for the pumps
// after the shell exits. A background job started from the shell can keep
// the output pipes open indefinitely.
const defaultDrainTimeout = 2 * time.Second

// Locator chooses the program a session launches.
type Locator interface {
	Locate() shell.Program
}

// Options configures a Bridge.
type Options struct {
	// WorkDir is the shell's working directory. Empty means the current one.
	WorkDir string
	// Env is the shell's environment. Nil inherits the current process's.
	Env []string
	// DrainTimeout overrides defaultDrainTimeout when positive.
	DrainTimeout time.Duration
	Logger       *slog.Logger
}

// Bridge launches at most one shell at a time, streams its output to a Sink
// and forwards input to it.
type Bridge struct {
	registry     *Registry
	locator      Locator
	sink         Sink
	workDir      string
	env          []string
	drainTimeout time.Duration
	logger       *slog.Logger
}

// stdinWriter wraps the shell's stdin pipe. Writes are serialized by mu;
// Close does not take mu so it can interrupt a write blocked on a full pipe.
type stdinWriter struct {
	mu     sync.Mutex
	writer *os.File
	closed atomic.Bool
}

// Write sends data to the pipe. *os.File is unbuffered, so a successful
// return means the bytes reached the OS pipe.
func (sw *stdinWriter) Write(data []byte) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.closed.Load() {
		return fmt.Errorf("stdin pipe: %w", os.ErrClosed)
	}
	_, err := sw.writer.Write(data)
	return err
}

func (sw *stdinWriter) Close() {
	if sw.closed.CompareAndSwap(false, true) {
		sw.writer.Close()
	}
}

// NewBridge creates a bridge over registry.
func NewBridge(registry *Registry, locator Locator, sink Sink, opts Options) *Bridge {
	drain := opts.DrainTimeout
	if drain <= 0 {
		drain = defaultDrainTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bridge{
		registry:     registry,
		locator:      locator,
		sink:         sink,
		workDir:      opts.WorkDir,
		env:          opts.Env,
		drainTimeout: drain,
		logger:       logger,
	}
}

// Start launches a shell unless one is already running, in which case it
// returns an "already running" status and spawns nothing. It returns as soon
// as the process is started; output and exit are reported to the Sink.
func (b *Bridge) Start() (Status, error) {
	b.registry.mu.Lock()
	defer b.registry.mu.Unlock()

	if b.registry.runningLocked() {
		return Status{
			Message:        "already running",
			AlreadyRunning: true,
			Session:        b.registry.slot.info(),
		}, nil
	}

	prog := b.locator.Locate()
	b.logger.Info("spawning shell", "program", prog.Name, "args", prog.Args)

	sess, stdout, stderr, err := b.spawn(prog)
	if err != nil {
		b.logger.Error("spawn failed", "program", prog.Name, "error", err)
		return Status{}, err
	}

	b.registry.slot = sess

	var pumps sync.WaitGroup
	pumps.Add(2)
	go func() {
		defer pumps.Done()
		defer stdout.Close()
		pump(stdout, sess.ID, StreamStdout, b.sink, b.logger)
	}()
	go func() {
		defer pumps.Done()
		defer stderr.Close()
		pump(stderr, sess.ID, StreamStderr, b.sink, b.logger)
	}()

	go b.waitForExit(sess, &pumps)

	msg := fmt.Sprintf("spawned %s (pid %d)", prog.Name, sess.PID)
	b.logger.Info(msg, "session", sess.ID)
	return Status{Message: msg, Session: sess.info()}, nil
}

// spawn starts prog with three fresh pipes. On success the caller owns the
// returned read ends of stdout and stderr.
func (b *Bridge) spawn(prog shell.Program) (*Session, *os.File, *os.File, error) {
	cmd := exec.Command(prog.Name, prog.Args...)
	cmd.Dir = b.workDir
	cmd.Env = b.env

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, nil, nil, &SpawnError{Program: prog.Name, Err: fmt.Errorf("create stdin pipe: %w", err)}
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		closeFiles(stdinR, stdinW)
		return nil, nil, nil, &SpawnError{Program: prog.Name, Err: fmt.Errorf("create stdout pipe: %w", err)}
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeFiles(stdinR, stdinW, stdoutR, stdoutW)
		return nil, nil, nil, &SpawnError{Program: prog.Name, Err: fmt.Errorf("create stderr pipe: %w", err)}
	}

	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	sess := &Session{
		ID:      uuid.New().String(),
		Program: prog.Name,
		Args:    append([]string(nil), prog.Args...),
		State:   StateStarting,
		cmd:     cmd,
		stdin:   &stdinWriter{writer: stdinW},
		done:    make(chan struct{}),
	}

	if err := cmd.Start(); err != nil {
		closeFiles(stdinR, stdinW, stdoutR, stdoutW, stderrR, stderrW)
		return nil, nil, nil, &SpawnError{Program: prog.Name, Err: err}
	}

	// The child holds its own copies of these ends now.
	closeFiles(stdinR, stdoutW, stderrW)

	sess.PID = cmd.Process.Pid
	sess.StartedAt = time.Now().UTC()
	sess.State = StateRunning

	return sess, stdoutR, stderrR, nil
}

// waitForExit waits for the shell to exit, gives the pumps a bounded chance
// to deliver the remaining output, then frees the slot and notifies the sink.
func (b *Bridge) waitForExit(sess *Session, pumps *sync.WaitGroup) {
	err := sess.cmd.Wait()
	exit := Exit{SessionID: sess.ID, Code: exitCode(err)}
	if err != nil && exit.Code == nil {
		b.logger.Warn("wait error", "session", sess.ID, "error", err)
	}

	drained := make(chan struct{})
	go func() {
		pumps.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(b.drainTimeout):
		b.logger.Warn("output still open after exit", "session", sess.ID, "timeout", b.drainTimeout)
	}

	if !b.registry.release(sess) {
		b.logger.Warn("exited session no longer registered", "session", sess.ID)
	}
	sess.stdin.Close()

	b.logger.Info("shell exited", "session", sess.ID, "pid", sess.PID, "exitCode", formatCode(exit.Code))
	b.sink.Ended(exit)
	close(sess.done)
}

// Write forwards data verbatim to the shell's stdin.
func (b *Bridge) Write(data []byte) error {
	in, ok := b.registry.input()
	if !ok {
		return ErrNoActiveSession
	}
	if err := in.Write(data); err != nil {
		b.logger.Debug("write failed", "error", err)
		return &WriteError{Err: err}
	}
	return nil
}

// Current returns a snapshot of the most recent session.
func (b *Bridge) Current() (Info, bool) {
	return b.registry.Current()
}

// Shutdown closes the running shell's stdin so it exits on its own, then
// waits for the exit to be reported or for ctx to end.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.registry.mu.Lock()
	sess := b.registry.slot
	running := b.registry.runningLocked()
	b.registry.mu.Unlock()

	if !running {
		return nil
	}

	sess.stdin.Close()

	select {
	case <-sess.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func exitCode(err error) *int {
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil
		}
		code = exitErr.ExitCode()
		if code < 0 {
			return nil
		}
	}
	return &code
}

func formatCode(code *int) string {
	if code == nil {
		return "unknown"
	}
	return fmt.Sprint(*code)
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		f.Close()
	}
}
