package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mark3labs/taskloop/internal/agent"
	"github.com/mark3labs/taskloop/internal/config"
	"github.com/mark3labs/taskloop/internal/hooks"
	"github.com/mark3labs/taskloop/internal/lockfile"
	"github.com/mark3labs/taskloop/internal/logger"
	"github.com/mark3labs/taskloop/internal/orchestrator"
	"github.com/spf13/cobra"
)

var runFlags struct {
	checklist    string
	channel      string
	user         string
	agentCommand string
	batchSize    int
	maxSessions  int
	timeoutMins  int
	lockPath     string
	logFile      string
	dryRun       bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the checklist session loop",
	Long: `Run the session loop against the configured checklist.

Each session prompts the agent with up to --batch-size unchecked items, waits
for the agent command to finish, and re-reads the checklist to measure
progress. Only one taskloop instance may run per lock path; a second instance
exits immediately unless the recorded owner is dead.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.checklist, "checklist", "c", "", "Checklist document path (default: TODO.md)")
	runCmd.Flags().StringVar(&runFlags.channel, "channel", "", "Channel identifier passed to the agent command")
	runCmd.Flags().StringVar(&runFlags.user, "user", "", "User identifier passed to the agent command")
	runCmd.Flags().StringVar(&runFlags.agentCommand, "agent-command", "", "Agent command binary (default: agentchat)")
	runCmd.Flags().IntVarP(&runFlags.batchSize, "batch-size", "b", 0, "Items per session prompt (default: 5)")
	runCmd.Flags().IntVarP(&runFlags.maxSessions, "max-sessions", "m", 0, "Session limit for this run (default: 50)")
	runCmd.Flags().IntVar(&runFlags.timeoutMins, "timeout", 0, "Per-session timeout in minutes (default: 30)")
	runCmd.Flags().StringVar(&runFlags.lockPath, "lock-path", "", "Lock file path (default: derived from checklist name)")
	runCmd.Flags().StringVar(&runFlags.logFile, "log-file", "", "Append-only log file (default: derived from checklist name)")
	runCmd.Flags().BoolVarP(&runFlags.dryRun, "dry-run", "n", false, "Render one prompt and exit without dispatching")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyRunFlags(cmd, cfg)

	// Preview mode never invokes the agent, so channel and user may be unset.
	if !cfg.DryRun {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(cfg.Checklist); err != nil {
		return fmt.Errorf("checklist not found: %s", cfg.Checklist)
	}

	// Wire the log sink and interactive mirror before anything logs.
	if level, err := logger.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if err := logger.SetFile(cfg.ResolvedLogFile()); err != nil {
		return fmt.Errorf("setting up log sink: %w", err)
	}
	logger.SetMirror(os.Stdout)

	// Single-instance guard: acquire or fail, release on every exit path.
	lock, err := lockfile.Acquire(cfg.ResolvedLockPath(), lockfile.SignalProber{})
	if err != nil {
		return err
	}

	var cleanupOnce sync.Once
	cleanup := func() { lock.Release() }
	defer cleanupOnce.Do(cleanup)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Warn("Received %s, shutting down", sig)
		cancel()
		cleanupOnce.Do(cleanup)
		_ = logger.Close()
		os.Exit(0)
	}()

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting working directory: %w", err)
	}
	hooksCfg, err := hooks.LoadConfig(workDir)
	if err != nil {
		return fmt.Errorf("loading hooks config: %w", err)
	}

	runner := agent.NewRunner(agent.RunnerConfig{
		Command: cfg.AgentCommand,
		Channel: cfg.Channel,
		User:    cfg.User,
		Timeout: time.Duration(cfg.TimeoutMinutes) * time.Minute,
	})

	orch, err := orchestrator.New(orchestrator.Config{
		ChecklistPath: cfg.Checklist,
		Runner:        runner,
		BatchSize:     cfg.BatchSize,
		MaxSessions:   cfg.MaxSessions,
		DryRun:        cfg.DryRun,
		Backoff:       time.Duration(cfg.BackoffSeconds) * time.Second,
		WorkDir:       workDir,
		Hooks:         hooksCfg,
		Channel:       cfg.Channel,
		Out:           os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	summary, err := orch.Run(ctx)
	if err != nil {
		return fmt.Errorf("session loop failed: %w", err)
	}

	// Session-limit and stall stops are expected terminal paths, not process
	// failures: report them and exit 0.
	fmt.Printf("\nRun %s finished: %s\n", summary.RunID, summary.Reason)
	fmt.Printf("Sessions run: %d, items remaining: %d\n", summary.Sessions, summary.Remaining)
	return nil
}

// applyRunFlags overlays explicitly-set CLI flags onto the loaded config,
// completing the flags > env > file > defaults precedence chain.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("checklist") {
		cfg.Checklist = runFlags.checklist
	}
	if cmd.Flags().Changed("channel") {
		cfg.Channel = runFlags.channel
	}
	if cmd.Flags().Changed("user") {
		cfg.User = runFlags.user
	}
	if cmd.Flags().Changed("agent-command") {
		cfg.AgentCommand = runFlags.agentCommand
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.BatchSize = runFlags.batchSize
	}
	if cmd.Flags().Changed("max-sessions") {
		cfg.MaxSessions = runFlags.maxSessions
	}
	if cmd.Flags().Changed("timeout") {
		cfg.TimeoutMinutes = runFlags.timeoutMins
	}
	if cmd.Flags().Changed("lock-path") {
		cfg.LockPath = runFlags.lockPath
	}
	if cmd.Flags().Changed("log-file") {
		cfg.LogFile = runFlags.logFile
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.DryRun = runFlags.dryRun
	}
}
