// Package progress tracks completed-item deltas across agent sessions and
// detects stalled runs.
package progress

// StallThreshold is the number of consecutive zero-progress sessions after
// which the loop stops.
const StallThreshold = 3

// Tracker maintains the consecutive zero-progress counter.
type Tracker struct {
	noProgress int
}

// Record computes completed = before - after and updates the zero-progress
// counter. A negative delta (the document regressed: items added or
// unchecked mid-session) counts as zero progress, not as an error.
func (t *Tracker) Record(before, after int) int {
	completed := before - after
	if completed > 0 {
		t.noProgress = 0
	} else {
		t.noProgress++
	}
	return completed
}

// Stalled reports whether the zero-progress counter has reached the
// threshold.
func (t *Tracker) Stalled() bool {
	return t.noProgress >= StallThreshold
}

// NoProgressCount returns the current consecutive zero-progress count.
func (t *Tracker) NoProgressCount() int {
	return t.noProgress
}
