// Package locale picks the display locale for a request and carries it
// through the request context.
package locale

import (
	"context"
	"strings"

	"golang.org/x/text/language"
)

// Matcher resolves a stored locale string against the supported set.
type Matcher struct {
	supported []language.Tag
	matcher   language.Matcher
	def       language.Tag
}

// NewMatcher builds a Matcher. The default locale is always supported and is
// placed first so it wins ties. Unparseable entries are skipped.
func NewMatcher(defaultLocale string, supported []string) *Matcher {
	def, err := language.Parse(strings.TrimSpace(defaultLocale))
	if err != nil {
		def = language.English
	}
	tags := []language.Tag{def}
	for _, s := range supported {
		t, err := language.Parse(strings.TrimSpace(s))
		if err != nil || t == def {
			continue
		}
		tags = append(tags, t)
	}
	return &Matcher{supported: tags, matcher: language.NewMatcher(tags), def: def}
}

// Default returns the fallback locale tag string.
func (m *Matcher) Default() string { return m.def.String() }

// Resolve returns the supported locale for stored, or the default when stored
// is empty, malformed or not confidently matched.
func (m *Matcher) Resolve(stored string) string {
	stored = strings.TrimSpace(stored)
	if stored == "" {
		return m.def.String()
	}
	t, err := language.Parse(stored)
	if err != nil {
		return m.def.String()
	}
	_, idx, conf := m.matcher.Match(t)
	if conf < language.High {
		return m.def.String()
	}
	return m.supported[idx].String()
}

type ctxKey struct{}

// WithLocale stores the locale on ctx.
func WithLocale(ctx context.Context, loc string) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

// FromContext returns the locale stored on ctx, or "" if none.
func FromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxKey{}).(string)
	return s
}

// ParseList splits a comma separated list of locales.
func ParseList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
