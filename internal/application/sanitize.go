package application

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// maxTextLen bounds owner, label, and reason in characters.
const maxTextLen = 200

var textPolicy = bluemonday.StrictPolicy()

// cleanText trims caller-supplied free text. It reports false when the text
// carries HTML markup or character references; such input is rejected, never
// rewritten, so stored text is exactly what the caller typed.
func cleanText(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, textPolicy.Sanitize(s) == html.EscapeString(s)
}

func tooLong(s string) bool {
	return utf8.RuneCountInString(s) > maxTextLen
}
