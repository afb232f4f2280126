// Package checklist parses Markdown checklist documents into work items.
//
// Unchecked items start with "- [ ] " at column 0. Checked items ("- [x]")
// are ignored. Lines indented by at least two spaces continue the current
// item and are space-joined into its text. The document is owned externally:
// the agent subprocess edits it between sessions, so callers must re-read it
// rather than trust a cached parse.
package checklist

import (
	"fmt"
	"os"
	"strings"
)

const uncheckedMarker = "- [ ] "

// Item is the rendered text of one unchecked entry, continuation lines
// already collapsed in.
type Item string

// Load reads the checklist document at path.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading checklist %s: %w", path, err)
	}
	return string(data), nil
}

// Parse extracts unchecked items in document order.
func Parse(doc string) []Item {
	var items []Item
	var current *strings.Builder

	flush := func() {
		if current != nil {
			items = append(items, Item(current.String()))
			current = nil
		}
	}

	for _, line := range strings.Split(doc, "\n") {
		if strings.HasPrefix(line, uncheckedMarker) {
			flush()
			current = &strings.Builder{}
			current.WriteString(strings.TrimSpace(line[len(uncheckedMarker):]))
			continue
		}

		if current != nil && strings.HasPrefix(line, "  ") {
			text := strings.TrimSpace(line)
			if text != "" {
				current.WriteString(" ")
				current.WriteString(text)
			}
			continue
		}

		// Anything else ends the current item.
		flush()
	}
	flush()

	return items
}

// CountUnchecked counts lines matching the unchecked marker. The count is
// deliberately independent of continuation collapsing so that before/after
// comparisons stay stable.
func CountUnchecked(doc string) int {
	count := 0
	for _, line := range strings.Split(doc, "\n") {
		if strings.HasPrefix(line, uncheckedMarker) {
			count++
		}
	}
	return count
}
