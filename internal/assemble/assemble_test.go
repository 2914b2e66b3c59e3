package assemble

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/kelsos/doc2x-cli/internal/models"
)

func idx(i int) *int { return &i }

func samplePages() []models.Page {
	return []models.Page{{PageIdx: idx(1), MD: "AB"}, {PageIdx: idx(0), MD: "C"}}
}

func TestMergePagesUnlimited(t *testing.T) {
	got := MergePages(samplePages(), "-", Limits{})
	assert.Equal(t, Merged{Text: "C-AB", Truncated: false, ReturnedPages: 2, TotalPages: 2}, got)
}

func TestMergePagesCharBudgetAtSeparator(t *testing.T) {
	got := MergePages(samplePages(), "-", Limits{MaxChars: 2})
	assert.Equal(t, Merged{Text: "C-", Truncated: true, ReturnedPages: 1, TotalPages: 2}, got)
}

func TestMergePagesSeparatorDoesNotFit(t *testing.T) {
	got := MergePages(samplePages(), "---", Limits{MaxChars: 2})
	assert.Equal(t, "C", got.Text)
	assert.True(t, got.Truncated)
	assert.Equal(t, 1, got.ReturnedPages)
}

func TestMergePagesPartialPageCounts(t *testing.T) {
	got := MergePages(samplePages(), "-", Limits{MaxChars: 3})
	assert.Equal(t, "C-A", got.Text)
	assert.True(t, got.Truncated)
	assert.Equal(t, 2, got.ReturnedPages)
}

func TestMergePagesPageLimit(t *testing.T) {
	pages := []models.Page{{PageIdx: idx(2), MD: "c"}, {PageIdx: idx(0), MD: "a"}, {PageIdx: idx(1), MD: "b"}}
	got := MergePages(pages, "|", Limits{MaxPages: 2})
	assert.Equal(t, Merged{Text: "a|b", Truncated: true, ReturnedPages: 2, TotalPages: 3}, got)
}

func TestMergePagesStableAndMissingIndex(t *testing.T) {
	pages := []models.Page{{PageIdx: idx(1), MD: "x"}, {MD: "first"}, {PageIdx: idx(0), MD: "second"}}
	got := MergePages(pages, " ", Limits{})
	assert.Equal(t, "first second x", got.Text)
}

func TestMergePagesIdempotentAndNonMutating(t *testing.T) {
	pages := samplePages()
	a := MergePages(pages, "-", Limits{MaxChars: 3})
	b := MergePages(pages, "-", Limits{MaxChars: 3})
	assert.Equal(t, a, b)
	assert.Equal(t, "AB", pages[0].MD)
}

func TestMergePagesCountsRunes(t *testing.T) {
	pages := []models.Page{{PageIdx: idx(0), MD: "数学公式"}}
	got := MergePages(pages, "", Limits{MaxChars: 2})
	assert.Equal(t, "数学", got.Text)
	assert.True(t, got.Truncated)
}

func TestMergePagesEmpty(t *testing.T) {
	assert.Equal(t, Merged{}, MergePages(nil, "-", Limits{MaxChars: 5}))
}

func TestAppendNotice(t *testing.T) {
	notice := TruncationNotice("uid-1", 1, 3)
	assert.Contains(t, notice, "pages 1/3")
	assert.Contains(t, notice, "uid=uid-1")

	assert.Equal(t, "abc!", AppendNotice("abc", "!", 0))
	assert.Equal(t, "ab!", AppendNotice("abcdef", "!", 3))
	assert.Equal(t, "no", AppendNotice("abc", "notice", 2))

	text := "long body " + string(make([]byte, 200))
	out := AppendNotice(text, notice, 150)
	assert.Equal(t, 150, utf8.RuneCountInString(out))
	assert.Contains(t, out, "Output truncated")
}
