package chatview

import (
	"html"
	"strings"
	"unicode"

	"github.com/yigit/educhat/internal/app/models"
)

// Match is a search hit with its text rendered for display
type Match struct {
	Message     *models.Message `json:"message"`
	Highlighted string          `json:"highlighted" example:"Домашнее <mark>задание</mark>"`
}

// Search returns the messages whose text contains query, ignoring case.
// File names are not searched. A blank query matches nothing.
func Search(messages []*models.Message, query string) []Match {
	matches := make([]Match, 0)
	needle := foldRunes(strings.TrimSpace(query))
	if len(needle) == 0 {
		return matches
	}
	for _, m := range messages {
		if m == nil || m.Text == "" {
			continue
		}
		text := []rune(m.Text)
		spans := findSpans(foldRunes(m.Text), needle)
		if len(spans) == 0 {
			continue
		}
		matches = append(matches, Match{
			Message:     m,
			Highlighted: render(text, spans),
		})
	}
	return matches
}

// Highlight HTML-escapes text and wraps every case-insensitive occurrence of
// query in <mark>
func Highlight(text, query string) string {
	needle := foldRunes(strings.TrimSpace(query))
	runes := []rune(text)
	if len(needle) == 0 {
		return html.EscapeString(text)
	}
	return render(runes, findSpans(foldRunes(text), needle))
}

// foldRunes lowercases rune by rune so offsets line up with []rune(s)
func foldRunes(s string) []rune {
	runes := []rune(s)
	for i, r := range runes {
		runes[i] = unicode.ToLower(r)
	}
	return runes
}

type span struct{ start, end int }

// findSpans returns non-overlapping occurrences of needle, left to right
func findSpans(haystack, needle []rune) []span {
	var spans []span
	for i := 0; i+len(needle) <= len(haystack); {
		if equalRunes(haystack[i:i+len(needle)], needle) {
			spans = append(spans, span{i, i + len(needle)})
			i += len(needle)
			continue
		}
		i++
	}
	return spans
}

func equalRunes(a, b []rune) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func render(text []rune, spans []span) string {
	var b strings.Builder
	last := 0
	for _, sp := range spans {
		b.WriteString(html.EscapeString(string(text[last:sp.start])))
		b.WriteString("<mark>")
		b.WriteString(html.EscapeString(string(text[sp.start:sp.end])))
		b.WriteString("</mark>")
		last = sp.end
	}
	b.WriteString(html.EscapeString(string(text[last:])))
	return b.String()
}
