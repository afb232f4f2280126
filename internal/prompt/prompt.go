// Package prompt renders the instruction message for one agent session.
package prompt

import (
	"fmt"
	"strings"

	"github.com/mark3labs/taskloop/internal/checklist"
)

// ChannelMessageLimit is the chat surface's maximum message length. Above it
// the surface silently switches to file-snippet delivery, which the consuming
// agent cannot parse. The default batch size stays well under the limit;
// callers raising the batch size own keeping titles short enough.
const ChannelMessageLimit = 40000

// maxTitleLen caps each derived item title.
const maxTitleLen = 80

// DefaultTemplate is the session instruction template. {{items}} receives the
// numbered item list, {{checklist}} the checklist document path, and
// {{notes}} optional environment notes from pre-session hooks.
const DefaultTemplate = `This is an autonomous working session. No human is watching the channel.

Work through the following checklist items. Full details for each item are in {{checklist}}; read it before starting.

{{items}}

Rules:
- Do not ask for confirmation; decide and proceed.
- Keep the build passing at all times.
- When an item is complete, check it off in {{checklist}} and update the changelog.
- Prefer real implementations over stubs.
- Do not push changes upstream.
{{notes}}`

// BuildConfig holds the inputs for rendering one session prompt.
type BuildConfig struct {
	Items         []checklist.Item // Parsed unchecked items, document order
	BatchSize     int              // Max items to surface this session
	ChecklistPath string           // Path the agent should consult
	Notes         string           // Optional pre-session hook output
}

// Build renders the instruction message for up to BatchSize items.
func Build(cfg BuildConfig) string {
	items := cfg.Items
	if cfg.BatchSize > 0 && len(items) > cfg.BatchSize {
		items = items[:cfg.BatchSize]
	}

	var list strings.Builder
	for i, item := range items {
		fmt.Fprintf(&list, "%d. %s\n", i+1, Title(string(item)))
	}

	notes := ""
	if cfg.Notes != "" {
		notes = fmt.Sprintf("\nEnvironment notes:\n%s\n", strings.TrimSpace(cfg.Notes))
	}

	result := DefaultTemplate
	result = strings.ReplaceAll(result, "{{items}}", strings.TrimRight(list.String(), "\n"))
	result = strings.ReplaceAll(result, "{{checklist}}", cfg.ChecklistPath)
	result = strings.ReplaceAll(result, "{{notes}}", notes)
	return result
}

// Title derives a short display title from an item: bold markers stripped,
// text cut at the first period, trimmed, capped at 80 characters.
func Title(item string) string {
	title := strings.ReplaceAll(item, "*", "")
	if idx := strings.Index(title, "."); idx >= 0 {
		title = title[:idx]
	}
	title = strings.TrimSpace(title)
	if len(title) > maxTitleLen {
		title = title[:maxTitleLen]
	}
	return title
}
