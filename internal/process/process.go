package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fcclab/streamlab/internal/logging"
)

// ErrEmptyCommand is returned when a process has no arguments.
var ErrEmptyCommand = errors.New("empty command")

// killedExitCode is reported when the subprocess had to be force killed.
const killedExitCode = 137

// OutputHandler receives every output line from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser maps an output line to a log level and message.
type LogParser func(line string) (level, msg string)

// Option configures a Process.
type Option func(*Process)

// WithLogParser sets the parser used to pick a level for each output line.
func WithLogParser(parser LogParser) Option {
	return func(p *Process) {
		p.logParser = parser
	}
}

// WithOutputHandler forwards raw output lines to handler.
func WithOutputHandler(handler OutputHandler) Option {
	return func(p *Process) {
		p.outputHandler = handler
	}
}

// WithTimeouts overrides the graceful shutdown and post-kill timeouts.
func WithTimeouts(graceful, kill time.Duration) Option {
	return func(p *Process) {
		p.gracefulTimeout = graceful
		p.killTimeout = kill
	}
}

// Process manages one subprocess at a time.
type Process struct {
	id              string
	args            []string
	logger          logging.Logger
	logParser       LogParser
	outputHandler   OutputHandler
	gracefulTimeout time.Duration
	killTimeout     time.Duration

	mu   sync.Mutex
	cmd  *exec.Cmd
	runs int
}

// New creates a process that will execute args.
func New(id string, args []string, logger logging.Logger, opts ...Option) *Process {
	p := &Process{
		id:              id,
		args:            args,
		logger:          logger,
		gracefulTimeout: 5 * time.Second,
		killTimeout:     5 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Runs returns how many times the subprocess was started.
func (p *Process) Runs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runs
}

// Run starts the subprocess and blocks until it exits or ctx is cancelled.
// It returns the exit code; a start failure is returned as an error.
func (p *Process) Run(ctx context.Context) (int, error) {
	if len(p.args) == 0 {
		return 1, ErrEmptyCommand
	}

	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return 1, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return 1, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return 1, fmt.Errorf("start %s: %w", p.args[0], err)
	}

	p.mu.Lock()
	p.cmd = cmd
	p.runs++
	p.mu.Unlock()

	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid)

	var output sync.WaitGroup
	output.Add(2)
	go func() {
		defer output.Done()
		p.streamOutput(stdout, "stdout")
	}()
	go func() {
		defer output.Done()
		p.streamOutput(stderr, "stderr")
	}()

	// Wait closes the pipes once the process exits, which ends both scanners.
	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()
	defer output.Wait()

	select {
	case err := <-done:
		code := exitCode(err)
		p.logger.Info("Process exited", "id", p.id, "exit_code", code)
		return code, nil
	case <-ctx.Done():
		p.logger.Info("Stopping process", "id", p.id, "pid", cmd.Process.Pid)
		return p.stop(cmd, done), nil
	}
}

// LoopOptions controls Loop.
type LoopOptions struct {
	// Loop restarts the subprocess after every clean exit.
	Loop bool
	// RestartDelay is waited between runs.
	RestartDelay time.Duration
}

// Loop runs the subprocess until it fails, ctx is cancelled, or, without
// Loop set, it exits cleanly once. A non-zero exit is returned as an
// *ExitError.
func (p *Process) Loop(ctx context.Context, opts LoopOptions) error {
	for {
		code, err := p.Run(ctx)
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if code != 0 {
			return &ExitError{Code: code}
		}
		if !opts.Loop {
			return nil
		}

		p.logger.Info("Restarting process", "id", p.id, "runs", p.Runs())
		if opts.RestartDelay > 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(opts.RestartDelay):
			}
		}
	}
}

// ExitError reports a non-zero subprocess exit.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("process exited with code %d", e.Code)
}

// stop sends SIGINT and escalates to SIGKILL after the graceful timeout.
func (p *Process) stop(cmd *exec.Cmd, done <-chan error) int {
	if err := cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to send SIGINT", "id", p.id, "error", err)
	}

	select {
	case err := <-done:
		return exitCode(err)
	case <-time.After(p.gracefulTimeout):
	}

	p.logger.Warn("Graceful shutdown timeout, forcing kill", "id", p.id, "timeout", p.gracefulTimeout)
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		p.logger.Error("Failed to kill process", "id", p.id, "error", err)
	}
	select {
	case <-done:
	case <-time.After(p.killTimeout):
		p.logger.Error("Process did not exit after kill", "id", p.id)
	}
	return killedExitCode
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		return killedExitCode
	}
	return 1
}

func (p *Process) streamOutput(reader io.Reader, source string) {
	logger := p.logger

	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := scanner.Text()
		if p.outputHandler != nil {
			p.outputHandler.HandleLine(source, line)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		level, msg := "info", line
		if p.logParser != nil {
			level, msg = p.logParser(line)
		}
		switch level {
		case "error":
			logger.Error(msg, "source", source)
		case "warning":
			logger.Warn(msg, "source", source)
		case "debug":
			logger.Debug(msg, "source", source)
		default:
			logger.Info(msg, "source", source)
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Warn("Error reading output", "id", p.id, "source", source, "error", err)
	}
}
