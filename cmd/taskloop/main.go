package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/mark3labs/taskloop/internal/logger"
	"github.com/spf13/cobra"
)

// Version set via ldflags during build
var version = "dev"

func main() {
	// Local .env can hold TASKLOOP_* settings (channel and user IDs, tokens
	// for the agent command). Missing file is fine.
	_ = godotenv.Load()

	// Ensure logger is closed on exit
	defer func() { _ = logger.Close() }()

	if err := fang.Execute(context.Background(), rootCmd, fang.WithVersion(version)); err != nil {
		logger.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "taskloop",
	Short: "Checklist-driven loop for autonomous agent sessions",
	Long: `taskloop works through a Markdown checklist by repeatedly dispatching an
external autonomous-agent command and re-reading the checklist to measure
progress. It stops when the checklist is complete, when the session limit is
reached, or after three consecutive sessions without progress.

The checklist is the source of truth: the agent checks items off as a side
effect of its sessions, and taskloop only ever reads it.`,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(doctorCmd)
}
