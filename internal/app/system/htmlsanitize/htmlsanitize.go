// Package htmlsanitize strips markup from user-supplied display text
// (profile fields, tenant and group names) before it is stored.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strict removes every tag. bluemonday policies are safe for concurrent use.
var strict = bluemonday.StrictPolicy()

// PlainText returns s with all markup removed and entities decoded, so
// "R&D" survives as written while "<b>R&D</b>" becomes "R&D".
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// Changed reports whether sanitizing would alter s. Handlers use it to
// reject input instead of silently rewriting it.
func Changed(s string) bool {
	return PlainText(s) != strings.TrimSpace(s)
}
