package main

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mark3labs/taskloop/internal/checklist"
	"github.com/mark3labs/taskloop/internal/config"
	"github.com/mark3labs/taskloop/internal/lockfile"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the environment for a working loop setup",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	failed := false
	check := func(ok bool, label, detail string) {
		status := "ok"
		if !ok {
			status = "FAIL"
			failed = true
		}
		fmt.Printf("%-6s %s", status, label)
		if detail != "" {
			fmt.Printf(" (%s)", detail)
		}
		fmt.Println()
	}

	// Agent command resolvable on PATH
	if path, err := exec.LookPath(cfg.AgentCommand); err == nil {
		check(true, "agent command", path)
	} else {
		check(false, "agent command", fmt.Sprintf("%s not found on PATH", cfg.AgentCommand))
	}

	// Checklist readable, with item counts
	if doc, err := checklist.Load(cfg.Checklist); err == nil {
		remaining := checklist.CountUnchecked(doc)
		check(true, "checklist", fmt.Sprintf("%s, %d unchecked items", cfg.Checklist, remaining))
	} else {
		check(false, "checklist", err.Error())
	}

	// Channel and user configured
	check(cfg.Channel != "", "channel", cfg.Channel)
	check(cfg.User != "", "user", cfg.User)

	// Lock status
	lockPath := cfg.ResolvedLockPath()
	if data, err := os.ReadFile(lockPath); err == nil {
		detail := fmt.Sprintf("%s exists", lockPath)
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil {
			switch (lockfile.SignalProber{}).Probe(pid) {
			case lockfile.Dead:
				detail = fmt.Sprintf("stale lock from dead PID %d, will be reclaimed", pid)
			default:
				detail = fmt.Sprintf("held by live PID %d", pid)
			}
		}
		check(true, "lock", detail)
	} else {
		check(true, "lock", fmt.Sprintf("%s absent, no active instance", lockPath))
	}

	if failed {
		return fmt.Errorf("environment checks failed")
	}
	return nil
}
