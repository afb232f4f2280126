package checklist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCollapsesContinuationLines(t *testing.T) {
	doc := `# Backlog
- [ ] Add login flow
  with OAuth support
  and refresh tokens
- [x] Already done
- [ ] Write parser tests
`

	items := Parse(doc)
	require.Len(t, items, 2)
	assert.Equal(t, Item("Add login flow with OAuth support and refresh tokens"), items[0])
	assert.Equal(t, Item("Write parser tests"), items[1])
}

func TestParsePreservesDocumentOrder(t *testing.T) {
	doc := "- [ ] first\n\n- [ ] second\nSome prose.\n- [ ] third\n"

	items := Parse(doc)
	require.Len(t, items, 3)
	assert.Equal(t, []Item{"first", "second", "third"}, items)
}

func TestParseEndsItemOnNonIndentedLine(t *testing.T) {
	doc := "- [ ] item one\nnot indented\n  this is orphaned\n- [ ] item two\n"

	items := Parse(doc)
	require.Len(t, items, 2)
	assert.Equal(t, Item("item one"), items[0])
	assert.Equal(t, Item("item two"), items[1])
}

func TestParseSkipsCheckedAndNoise(t *testing.T) {
	doc := `- [x] done thing
- [X] also done
random prose
* not a checkbox
`
	assert.Empty(t, Parse(doc))
}

func TestParseIgnoresBlankContinuationContent(t *testing.T) {
	doc := "- [ ] title\n   \n- [ ] next\n"

	items := Parse(doc)
	require.Len(t, items, 2)
	assert.Equal(t, Item("title"), items[0])
}

func TestCountUncheckedIndependentOfCollapsing(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want int
	}{
		{"empty", "", 0},
		{"only checked", "- [x] a\n- [X] b\n", 0},
		{"multi-line items still count once per marker", "- [ ] a\n  cont\n  cont\n- [ ] b\n", 2},
		{"indented markers are not top-level", "- [ ] a\n  - [ ] nested\n", 1},
		{"mixed", "# h\n- [ ] a\n- [x] b\n- [ ] c\ntext\n- [ ] d\n", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CountUnchecked(tt.doc))
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "TODO.md")
	require.NoError(t, os.WriteFile(path, []byte("- [ ] a\n"), 0644))

	doc, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "- [ ] a\n", doc)

	_, err = Load(filepath.Join(t.TempDir(), "missing.md"))
	assert.Error(t, err)
}
