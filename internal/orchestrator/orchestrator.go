// Package orchestrator drives the session loop: count remaining checklist
// items, dispatch one agent session at a time, evaluate progress, and stop on
// completion, session limit, preview, or stall.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/taskloop/internal/agent"
	"github.com/mark3labs/taskloop/internal/checklist"
	ierr "github.com/mark3labs/taskloop/internal/errors"
	"github.com/mark3labs/taskloop/internal/hooks"
	"github.com/mark3labs/taskloop/internal/logger"
	"github.com/mark3labs/taskloop/internal/progress"
	"github.com/mark3labs/taskloop/internal/prompt"
)

// State is a loop controller state.
type State int

const (
	StateIdle State = iota
	StateCountingRemaining
	StateDone
	StateDispatching
	StateAwaitingSession
	StateEvaluatingProgress
	StateBackoff
	StateStopped
)

// String returns the string representation of a state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCountingRemaining:
		return "counting-remaining"
	case StateDone:
		return "done"
	case StateDispatching:
		return "dispatching"
	case StateAwaitingSession:
		return "awaiting-session"
	case StateEvaluatingProgress:
		return "evaluating-progress"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// StopReason explains why the loop reached a terminal state.
type StopReason int

const (
	ReasonChecklistComplete StopReason = iota
	ReasonSessionLimit
	ReasonPreview
	ReasonStalled
)

// String returns the string representation of a stop reason.
func (r StopReason) String() string {
	switch r {
	case ReasonChecklistComplete:
		return "checklist complete"
	case ReasonSessionLimit:
		return "session limit reached"
	case ReasonPreview:
		return "preview only"
	case ReasonStalled:
		return "no progress in 3 consecutive sessions"
	default:
		return "unknown"
	}
}

// SessionRunner runs one agent session. Implemented by agent.Runner.
type SessionRunner interface {
	Run(ctx context.Context, promptText string) agent.Result
}

// Config holds configuration for the loop controller.
type Config struct {
	ChecklistPath string        // Path to the checklist document
	Runner        SessionRunner // Session runner
	BatchSize     int           // Max items per session prompt
	MaxSessions   int           // Session limit for this run
	DryRun        bool          // Preview mode: render one prompt, never dispatch
	Backoff       time.Duration // Pause after a zero-progress session
	WorkDir       string        // Working directory for hooks
	Hooks         *hooks.Config // Optional session hooks (nil = none)
	Channel       string        // Channel identifier, exposed to hooks
	Out           io.Writer     // Interactive output stream
}

// Summary reports the final state of one loop run.
type Summary struct {
	RunID     string
	Sessions  int
	Remaining int
	Reason    StopReason
}

// Orchestrator is the loop controller state machine.
type Orchestrator struct {
	cfg      Config
	tracker  progress.Tracker
	state    State
	sessions int
	runID    string

	// carried between states within one iteration of the machine
	remaining   int
	sessionText string
}

// New creates a new Orchestrator with the given configuration.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.ChecklistPath == "" {
		return nil, fmt.Errorf("checklist path is required")
	}
	if cfg.Runner == nil && !cfg.DryRun {
		return nil, fmt.Errorf("session runner is required")
	}
	if cfg.BatchSize < 1 {
		return nil, fmt.Errorf("batch size must be >= 1, got %d", cfg.BatchSize)
	}
	if cfg.MaxSessions < 1 {
		return nil, fmt.Errorf("max sessions must be >= 1, got %d", cfg.MaxSessions)
	}
	if cfg.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		cfg.WorkDir = wd
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}

	return &Orchestrator{
		cfg:   cfg,
		state: StateIdle,
		runID: uuid.NewString()[:8],
	}, nil
}

// Run executes the state machine until a terminal state and returns the
// final summary. The returned error is non-nil only for faults that should
// end the process with a non-zero status; session failures and stalls are
// reported through the summary instead.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	logger.Info("[%s] Starting loop: checklist=%s batch=%d max-sessions=%d dry-run=%v",
		o.runID, o.cfg.ChecklistPath, o.cfg.BatchSize, o.cfg.MaxSessions, o.cfg.DryRun)

	o.transition(StateCountingRemaining)

	for {
		switch o.state {
		case StateCountingRemaining:
			if err := o.countRemaining(); err != nil {
				return nil, err
			}

		case StateDispatching:
			if err := o.dispatch(ctx); err != nil {
				return nil, err
			}

		case StateAwaitingSession:
			if err := o.awaitSession(ctx); err != nil {
				return nil, err
			}

		case StateEvaluatingProgress:
			if err := o.evaluateProgress(); err != nil {
				return nil, err
			}

		case StateBackoff:
			logger.Info("[%s] No progress this session, backing off %v", o.runID, o.cfg.Backoff)
			select {
			case <-time.After(o.cfg.Backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			o.transition(StateCountingRemaining)

		case StateDone:
			return o.finish(ReasonChecklistComplete), nil

		case StateStopped:
			return o.finish(o.stopReason()), nil

		default:
			return nil, fmt.Errorf("loop reached invalid state %s", o.state)
		}
	}
}

// stopReason is derived when entering StateStopped.
func (o *Orchestrator) stopReason() StopReason {
	switch {
	case o.cfg.DryRun:
		return ReasonPreview
	case o.tracker.Stalled():
		return ReasonStalled
	default:
		return ReasonSessionLimit
	}
}

func (o *Orchestrator) transition(next State) {
	logger.Debug("[%s] %s -> %s", o.runID, o.state, next)
	o.state = next
}

func (o *Orchestrator) countRemaining() error {
	doc, err := checklist.Load(o.cfg.ChecklistPath)
	if err != nil {
		return fmt.Errorf("counting remaining items: %w", err)
	}

	o.remaining = checklist.CountUnchecked(doc)
	logger.Info("[%s] Remaining unchecked items: %d", o.runID, o.remaining)

	if o.remaining == 0 {
		o.transition(StateDone)
		return nil
	}
	o.transition(StateDispatching)
	return nil
}

func (o *Orchestrator) dispatch(ctx context.Context) error {
	if o.sessions >= o.cfg.MaxSessions {
		logger.Info("[%s] Session limit of %d reached", o.runID, o.cfg.MaxSessions)
		o.transition(StateStopped)
		return nil
	}
	o.sessions++

	doc, err := checklist.Load(o.cfg.ChecklistPath)
	if err != nil {
		return fmt.Errorf("loading checklist for dispatch: %w", err)
	}
	items := checklist.Parse(doc)

	notes := o.runPreSessionHook(ctx)

	o.sessionText = prompt.Build(prompt.BuildConfig{
		Items:         items,
		BatchSize:     o.cfg.BatchSize,
		ChecklistPath: o.cfg.ChecklistPath,
		Notes:         notes,
	})
	logger.Info("[%s] Session %d/%d: prompting %d of %d items (%d chars)",
		o.runID, o.sessions, o.cfg.MaxSessions, min(len(items), o.cfg.BatchSize), len(items), len(o.sessionText))

	if o.cfg.DryRun {
		fmt.Fprintln(o.cfg.Out, o.sessionText)
		o.transition(StateStopped)
		return nil
	}

	o.transition(StateAwaitingSession)
	return nil
}

func (o *Orchestrator) awaitSession(ctx context.Context) error {
	logger.Info("[%s] Session %d: dispatching agent", o.runID, o.sessions)

	var res agent.Result
	err := ierr.Recover(func() error {
		res = o.cfg.Runner.Run(ctx, o.sessionText)
		return nil
	})
	if err != nil {
		var panicErr *ierr.PanicError
		if errors.As(err, &panicErr) {
			logger.Error("[%s] Session %d panicked: %v\n%s", o.runID, o.sessions, panicErr.Value, panicErr.StackTrace)
		}
		return fmt.Errorf("session %d: %w", o.sessions, err)
	}

	switch res.Outcome {
	case agent.OutcomeSuccess:
		logger.Info("[%s] Session %d finished in %v", o.runID, o.sessions, res.Duration.Round(time.Second))
	case agent.OutcomeExitError:
		logger.Warn("[%s] Session %d exited with status %d: %s", o.runID, o.sessions, res.ExitCode, truncate(res.Stderr, 500))
	case agent.OutcomeSpawnError:
		logger.Error("[%s] Session %d failed to start: %s", o.runID, o.sessions, truncate(errText(res.Err), 500))
	case agent.OutcomeTimeout:
		logger.Warn("[%s] Session %d timed out after %v", o.runID, o.sessions, res.Duration.Round(time.Second))
	}

	o.runPostSessionHook(ctx)

	// The subprocess may have made partial progress before failing, so
	// progress is evaluated regardless of outcome.
	o.transition(StateEvaluatingProgress)
	return nil
}

func (o *Orchestrator) evaluateProgress() error {
	doc, err := checklist.Load(o.cfg.ChecklistPath)
	if err != nil {
		return fmt.Errorf("evaluating progress: %w", err)
	}
	after := checklist.CountUnchecked(doc)

	completed := o.tracker.Record(o.remaining, after)
	logger.Info("[%s] Session %d completed %d items (%d -> %d remaining)",
		o.runID, o.sessions, completed, o.remaining, after)
	o.remaining = after

	switch {
	case o.tracker.Stalled():
		logger.Warn("[%s] Stalled: %d consecutive sessions without progress", o.runID, o.tracker.NoProgressCount())
		o.transition(StateStopped)
	case completed <= 0:
		o.transition(StateBackoff)
	default:
		o.transition(StateCountingRemaining)
	}
	return nil
}

func (o *Orchestrator) finish(reason StopReason) *Summary {
	summary := &Summary{
		RunID:     o.runID,
		Sessions:  o.sessions,
		Remaining: o.remaining,
		Reason:    reason,
	}
	logger.Info("[%s] Loop finished: %s (%d sessions, %d items remaining)",
		o.runID, reason, summary.Sessions, summary.Remaining)
	return summary
}

func (o *Orchestrator) runPreSessionHook(ctx context.Context) string {
	if o.cfg.Hooks == nil || o.cfg.Hooks.PreSession == nil {
		return ""
	}
	out, err := hooks.Execute(ctx, o.cfg.Hooks.PreSession, o.cfg.WorkDir, o.hookVars())
	if err != nil {
		logger.Warn("[%s] Pre-session hook cancelled: %v", o.runID, err)
		return ""
	}
	return out
}

func (o *Orchestrator) runPostSessionHook(ctx context.Context) {
	if o.cfg.Hooks == nil || o.cfg.Hooks.PostSession == nil {
		return
	}
	if _, err := hooks.Execute(ctx, o.cfg.Hooks.PostSession, o.cfg.WorkDir, o.hookVars()); err != nil {
		logger.Warn("[%s] Post-session hook cancelled: %v", o.runID, err)
	}
}

func (o *Orchestrator) hookVars() hooks.Variables {
	return hooks.Variables{
		Session:   strconv.Itoa(o.sessions),
		Channel:   o.cfg.Channel,
		Remaining: strconv.Itoa(o.remaining),
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
