package assemble

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/kelsos/doc2x-cli/internal/models"
)

// DefaultSeparator joins pages when the caller gives none.
const DefaultSeparator = "\n\n---\n\n"

// Limits bounds merged output. Zero means unlimited.
type Limits struct {
	MaxChars int
	MaxPages int
}

// Merged is the outcome of MergePages. Character counts are in runes.
type Merged struct {
	Text          string `json:"text"`
	Truncated     bool   `json:"truncated"`
	ReturnedPages int    `json:"returned_pages"`
	TotalPages    int    `json:"total_pages"`
}

// MergePages sorts pages by index (stable, missing index = 0) and joins their
// markdown with sep, stopping as soon as a limit would be exceeded. A page
// that only partly fits contributes its fitting prefix and counts as
// returned. The input slice is not modified.
func MergePages(pages []models.Page, sep string, limits Limits) Merged {
	sorted := make([]models.Page, len(pages))
	copy(sorted, pages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Index() < sorted[j].Index() })

	out := Merged{TotalPages: len(sorted)}
	sepLen := utf8.RuneCountInString(sep)
	remaining := limits.MaxChars
	charLimited := limits.MaxChars > 0

	var b strings.Builder
	for i, page := range sorted {
		if limits.MaxPages > 0 && out.ReturnedPages >= limits.MaxPages {
			out.Truncated = true
			break
		}

		if i > 0 {
			if charLimited && sepLen > remaining {
				out.Truncated = true
				break
			}
			b.WriteString(sep)
			if charLimited {
				remaining -= sepLen
			}
		}

		md := page.MD
		if !charLimited {
			b.WriteString(md)
			out.ReturnedPages++
			continue
		}

		mdLen := utf8.RuneCountInString(md)
		if mdLen <= remaining {
			b.WriteString(md)
			remaining -= mdLen
			out.ReturnedPages++
			continue
		}

		if remaining > 0 {
			b.WriteString(string([]rune(md)[:remaining]))
			out.ReturnedPages++
			remaining = 0
		}
		out.Truncated = true
		break
	}

	if out.ReturnedPages < out.TotalPages {
		out.Truncated = true
	}
	out.Text = b.String()
	return out
}

// TruncationNotice tells the reader the text was cut and how to get the rest.
func TruncationNotice(uid string, returned, total int) string {
	return fmt.Sprintf("\n\n---\n[doc2x] Output truncated (pages %d/%d, uid=%s). "+
		"Fetch the full markdown with `doc2x export wait --uid %s --to md` and download the result.\n",
		returned, total, uid, uid)
}

// AppendNotice appends notice to text so that the result still fits maxChars
// runes, cutting text to make room. When the notice alone exceeds the budget
// its prefix is returned. maxChars <= 0 means unlimited.
func AppendNotice(text, notice string, maxChars int) string {
	if maxChars <= 0 {
		return text + notice
	}
	noticeLen := utf8.RuneCountInString(notice)
	if noticeLen >= maxChars {
		return string([]rune(notice)[:maxChars])
	}
	room := maxChars - noticeLen
	if utf8.RuneCountInString(text) > room {
		text = string([]rune(text)[:room])
	}
	return text + notice
}
