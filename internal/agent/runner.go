// Package agent runs one external agent session as a subprocess and
// classifies its outcome.
package agent

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/mark3labs/taskloop/internal/logger"
)

// Outcome classifies one session invocation.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeExitError
	OutcomeSpawnError
	OutcomeTimeout
)

// String returns the string representation of an outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeExitError:
		return "exit-error"
	case OutcomeSpawnError:
		return "spawn-error"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// DefaultMaxOutput caps captured stdout/stderr per stream. A misbehaving
// subprocess can emit gigabytes; beyond the cap output is dropped, not fatal.
const DefaultMaxOutput = 32 << 20

// Result holds the classified outcome of one session.
type Result struct {
	Outcome  Outcome
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
	Err      error
}

// Runner invokes the external agent command for one session at a time.
type Runner struct {
	command   string
	channel   string
	user      string
	timeout   time.Duration
	maxOutput int64
}

// RunnerConfig holds configuration for creating a new Runner.
type RunnerConfig struct {
	Command   string        // Agent command binary
	Channel   string        // Channel identifier passed to the agent
	User      string        // User identifier passed to the agent
	Timeout   time.Duration // Wall-clock bound for one session
	MaxOutput int64         // Per-stream capture cap (0 = DefaultMaxOutput)
}

// NewRunner creates a new Runner instance.
func NewRunner(cfg RunnerConfig) *Runner {
	maxOutput := cfg.MaxOutput
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}
	return &Runner{
		command:   cfg.Command,
		channel:   cfg.Channel,
		user:      cfg.User,
		timeout:   cfg.Timeout,
		maxOutput: maxOutput,
	}
}

// Run invokes the agent command synchronously with the rendered prompt and
// blocks until it exits, fails to start, or hits the timeout. A timeout
// always classifies as OutcomeTimeout regardless of any partial exit
// information.
func (r *Runner) Run(ctx context.Context, promptText string) Result {
	args := []string{"send", "--channel", r.channel, "--user", r.user, "--wait", promptText}

	cmd := exec.Command(r.command, args...)
	cmd.Env = os.Environ()
	// Own process group so a timeout can tear down the agent's children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout := newCapBuffer(r.maxOutput)
	stderr := newCapBuffer(r.maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	logger.Debug("Starting agent session: %s send --channel %s --user %s --wait (prompt: %d chars)",
		r.command, r.channel, r.user, len(promptText))

	if err := cmd.Start(); err != nil {
		logger.Error("Failed to start agent command %s: %v", r.command, err)
		return Result{Outcome: OutcomeSpawnError, ExitCode: -1, Err: err, Duration: time.Since(start)}
	}

	waitDone := make(chan error, 1)
	go func() { waitDone <- cmd.Wait() }()

	var timeoutCh <-chan time.Time
	if r.timeout > 0 {
		timer := time.NewTimer(r.timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-waitDone:
	case <-timeoutCh:
		timedOut = true
		logger.Warn("Agent session exceeded timeout of %v, killing process group", r.timeout)
		r.killGroup(cmd)
		waitErr = <-waitDone
	case <-ctx.Done():
		logger.Warn("Run cancelled, killing agent process group")
		r.killGroup(cmd)
		waitErr = <-waitDone
	}

	result := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
		Err:      waitErr,
	}

	switch {
	case timedOut:
		result.Outcome = OutcomeTimeout
		result.ExitCode = -1
	case waitErr != nil:
		result.Outcome = OutcomeExitError
		result.ExitCode = exitCode(waitErr)
	default:
		result.Outcome = OutcomeSuccess
	}

	logger.Debug("Agent session finished: outcome=%s exit=%d duration=%v stdout=%dB stderr=%dB",
		result.Outcome, result.ExitCode, result.Duration.Round(time.Millisecond), len(result.Stdout), len(result.Stderr))
	return result
}

// killGroup forcibly terminates the subprocess and its descendants.
func (r *Runner) killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		// Group kill can fail if the leader already exited; fall back to the
		// process itself.
		_ = cmd.Process.Kill()
	}
}

func exitCode(err error) int {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// capBuffer is a write sink that keeps at most limit bytes and silently
// drops the rest.
type capBuffer struct {
	buf       bytes.Buffer
	limit     int64
	truncated bool
}

func newCapBuffer(limit int64) *capBuffer {
	return &capBuffer{limit: limit}
}

func (c *capBuffer) Write(p []byte) (int, error) {
	remaining := c.limit - int64(c.buf.Len())
	if remaining <= 0 {
		c.truncated = true
		return len(p), nil
	}
	if int64(len(p)) > remaining {
		c.truncated = true
		c.buf.Write(p[:remaining])
		return len(p), nil
	}
	c.buf.Write(p)
	return len(p), nil
}

func (c *capBuffer) String() string {
	if c.truncated {
		return c.buf.String() + "\n[output truncated]"
	}
	return c.buf.String()
}
