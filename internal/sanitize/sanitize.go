// Package sanitize filters dispatcher comment lines against an ordered
// denylist of named noise patterns and assembles the surviving lines into
// the comment blob stored on the evaluation row.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxRunes is the width of the evaluation table's comments column.
const DefaultMaxRunes = 4000

// Matcher is one named denylist rule.
type Matcher struct {
	Name    string
	Pattern *regexp.Regexp
}

// Match reports whether line is noise under this rule.
func (m Matcher) Match(line string) bool {
	return m.Pattern.MatchString(line)
}

// DefaultDenylist returns the standard rule set in evaluation order. Each call
// returns a fresh slice.
func DefaultDenylist() []Matcher {
	return []Matcher{
		// Shorthand dispatch codes: "ENR:", "DISP ON:", "ADV/ER PD:".
		{Name: "dispatch_code", Pattern: regexp.MustCompile(`^[A-Z,/]{3,}(\s[A-Z]{2,})?(\s[A-Z]{2,})?:`)},
		{Name: "slash_code_block", Pattern: regexp.MustCompile(`[A-Z,^0-9]{3,}/`)},
		{Name: "end_of_response", Pattern: regexp.MustCompile(`END OF (K)?DOR RESPONSE`)},
		{Name: "dash_rule", Pattern: regexp.MustCompile(`-{3,}`)},
		{Name: "ten_code_banner", Pattern: regexp.MustCompile(`10-[0-9]{2} \*{2,}`)},
		{Name: "license_plate", Pattern: regexp.MustCompile(`LICENSE:`)},
		{Name: "asterisk_banner", Pattern: regexp.MustCompile(`\*{3,}`)},
		{Name: "field_event", Pattern: regexp.MustCompile(`Field Event`)},
		{Name: "event_held", Pattern: regexp.MustCompile(`\*{2} Event held for [0-9]{2} minutes`)},
	}
}

// Sanitizer applies a denylist to comment lines.
type Sanitizer struct {
	matchers  []Matcher
	maxRunes  int
	separator string
}

// Option configures a Sanitizer.
type Option func(*Sanitizer)

// WithMaxRunes overrides the blob length limit.
func WithMaxRunes(n int) Option {
	return func(s *Sanitizer) { s.maxRunes = n }
}

// WithSeparator sets the string placed between allowed lines. The default
// is no separator; archive lines carry their own spacing.
func WithSeparator(sep string) Option {
	return func(s *Sanitizer) { s.separator = sep }
}

// WithMatchers appends rules after the default set.
func WithMatchers(m ...Matcher) Option {
	return func(s *Sanitizer) { s.matchers = append(s.matchers, m...) }
}

// New returns a Sanitizer over DefaultDenylist.
func New(opts ...Option) *Sanitizer {
	s := &Sanitizer{
		matchers: DefaultDenylist(),
		maxRunes: DefaultMaxRunes,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Rules returns the names of the active rules in evaluation order.
func (s *Sanitizer) Rules() []string {
	names := make([]string, len(s.matchers))
	for i, m := range s.matchers {
		names[i] = m.Name
	}
	return names
}

// Allowed reports whether line survives the denylist. When it does not, rule
// names the first matcher that rejected it.
func (s *Sanitizer) Allowed(line string) (ok bool, rule string) {
	for _, m := range s.matchers {
		if m.Match(line) {
			return false, m.Name
		}
	}
	return true, ""
}

// Blob joins the allowed lines in input order and truncates the result to the
// configured rune limit. ok is false when no line survives, in which case no
// comment should be staged for the event.
func (s *Sanitizer) Blob(lines []string) (blob string, ok bool) {
	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		if allowed, _ := s.Allowed(l); allowed {
			kept = append(kept, l)
		}
	}
	if len(kept) == 0 {
		return "", false
	}
	return Truncate(strings.Join(kept, s.separator), s.maxRunes), true
}

// Truncate returns the first max runes of s.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	i := 0
	for pos := range s {
		if i == max {
			return s[:pos]
		}
		i++
	}
	return s
}
