// Package lockfile guarantees single-instance execution via a PID lock file.
//
// Acquisition is check-then-create: read any existing lock, probe whether its
// recorded PID is alive, and either fail fast (live owner), replace it
// (stale), or create it (absent). The sequence is not atomic against a second
// instance starting at the same instant; this is an accepted limitation for a
// single-operator tool.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/mark3labs/taskloop/internal/logger"
)

// Liveness is the outcome of probing a process identifier.
type Liveness int

const (
	Dead Liveness = iota
	Alive
	Unknown // probe not permitted; treated as alive to avoid clobbering
)

// Prober reports whether a process with the given PID is alive.
type Prober interface {
	Probe(pid int) Liveness
}

// ErrHeld is returned when the lock is owned by a live process.
var ErrHeld = errors.New("lock already held")

// Handle represents ownership of an acquired lock file.
type Handle struct {
	path     string
	released bool
}

// SignalProber probes liveness with a zero-effect signal, the Unix
// convention: signal 0 delivers nothing but still performs the existence and
// permission checks.
type SignalProber struct{}

// Probe sends signal 0 to pid and classifies the result.
func (SignalProber) Probe(pid int) Liveness {
	proc, err := os.FindProcess(pid)
	if err != nil {
		// Only possible on platforms where FindProcess actually searches.
		return Dead
	}

	err = proc.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return Alive
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return Dead
	case errors.Is(err, syscall.EPERM):
		return Unknown
	default:
		return Unknown
	}
}

// Acquire takes ownership of the lock at path for the current process.
// A lock held by a live (or unprobeable) process returns ErrHeld wrapped with
// the owner's PID; a stale lock is deleted and replaced.
func Acquire(path string, prober Prober) (*Handle, error) {
	return acquire(path, prober, os.Getpid())
}

func acquire(path string, prober Prober, pid int) (*Handle, error) {
	if data, err := os.ReadFile(path); err == nil {
		ownerPID, parseErr := strconv.Atoi(strings.TrimSpace(string(data)))
		if parseErr != nil {
			// Unreadable contents: treat as stale rather than blocking forever.
			logger.Warn("Lock file %s has invalid contents %q, treating as stale", path, strings.TrimSpace(string(data)))
		} else if liveness := prober.Probe(ownerPID); liveness != Dead {
			return nil, fmt.Errorf("%w by PID %d (lock file: %s)", ErrHeld, ownerPID, path)
		} else {
			logger.Info("Removing stale lock file (dead PID %d)", ownerPID)
		}

		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("removing stale lock %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading lock %s: %w", path, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("writing lock %s: %w", path, err)
	}

	logger.Debug("Acquired lock %s (PID %d)", path, pid)
	return &Handle{path: path}, nil
}

// Release removes the lock file. Safe to call more than once; release must be
// registered against every exit path (normal return, interrupt, terminate).
func (h *Handle) Release() {
	if h == nil || h.released {
		return
	}
	h.released = true

	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to remove lock file %s: %v", h.path, err)
		return
	}
	logger.Debug("Released lock %s", h.path)
}

// Path returns the lock file path.
func (h *Handle) Path() string {
	return h.path
}
