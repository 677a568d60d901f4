// Package pattern compiles route and action patterns into immutable matchers.
//
// A pattern is either a path template with named placeholders ("select_item::id",
// "/orders/:id/items/:item") or a regular expression source ("^/start$"). Templates are
// anchored and each placeholder captures up to the next "/". Regular expression sources
// are compiled as-is; named groups they declare are reported as params.
package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrEmptyPattern is returned when compiling an empty pattern.
var ErrEmptyPattern = errors.New("pattern: empty pattern")

// Params holds the named captures of a successful match.
type Params map[string]string

// Get returns the named capture or an empty string.
func (p Params) Get(name string) string {
	if p == nil {
		return ""
	}
	return p[name]
}

// Matcher is a compiled pattern. It is safe for concurrent use.
type Matcher struct {
	source   string
	re       *regexp.Regexp
	names    []string
	template bool
}

// Compile turns source into a Matcher.
func Compile(source string) (*Matcher, error) {
	if source == "" {
		return nil, ErrEmptyPattern
	}

	expr := source
	template := hasPlaceholder(source)
	if template {
		expr = templateExpr(source)
	}

	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("pattern: compile %q: %w", source, err)
	}

	return newMatcher(source, re, template), nil
}

// MustCompile is like Compile but panics on error. It is meant for registration code.
func MustCompile(source string) *Matcher {
	m, err := Compile(source)
	if err != nil {
		panic(err)
	}
	return m
}

// FromRegexp wraps an already compiled expression.
func FromRegexp(re *regexp.Regexp) *Matcher {
	if re == nil {
		return nil
	}
	return newMatcher(re.String(), re, false)
}

func newMatcher(source string, re *regexp.Regexp, template bool) *Matcher {
	names := make([]string, 0, re.NumSubexp())
	for _, name := range re.SubexpNames() {
		if name != "" {
			names = append(names, name)
		}
	}

	return &Matcher{
		source:   source,
		re:       re,
		names:    names,
		template: template,
	}
}

// Match tests text and returns the named captures. Params is non-nil on success, even
// when the pattern declares no names.
func (m *Matcher) Match(text string) (Params, bool) {
	if m == nil || m.re == nil {
		return nil, false
	}

	groups := m.re.FindStringSubmatch(text)
	if groups == nil {
		return nil, false
	}

	params := make(Params, len(m.names))
	for i, name := range m.re.SubexpNames() {
		if name == "" || i >= len(groups) {
			continue
		}
		params[name] = groups[i]
	}

	return params, true
}

// String returns the source the matcher was compiled from.
func (m *Matcher) String() string {
	if m == nil {
		return ""
	}
	return m.source
}

// Names lists the named captures in declaration order.
func (m *Matcher) Names() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.names...)
}

// IsTemplate reports whether the matcher was built from a placeholder template.
func (m *Matcher) IsTemplate() bool {
	return m != nil && m.template
}

// hasPlaceholder reports whether source contains a ":name" marker. A colon directly
// after "?" belongs to a regexp group such as "(?:a|b)" and is not a marker; neither
// is an escaped "\:".
func hasPlaceholder(source string) bool {
	for i := 0; i < len(source); i++ {
		if isMarker(source, i) {
			return true
		}
	}
	return false
}

func isMarker(source string, i int) bool {
	if source[i] != ':' || i+1 >= len(source) || !isNameStart(source[i+1]) {
		return false
	}
	return i == 0 || (source[i-1] != '?' && source[i-1] != '\\')
}

// quoteLiteral unescapes \: and quotes the rest of a template chunk.
func quoteLiteral(chunk string) string {
	return regexp.QuoteMeta(strings.ReplaceAll(chunk, `\:`, ":"))
}

func templateExpr(source string) string {
	var b strings.Builder
	b.WriteString("^")

	literalStart := 0
	for i := 0; i < len(source); {
		if !isMarker(source, i) {
			i++
			continue
		}

		b.WriteString(quoteLiteral(source[literalStart:i]))

		end := i + 1
		for end < len(source) && isNameChar(source[end]) {
			end++
		}
		fmt.Fprintf(&b, "(?P<%s>[^/]+)", source[i+1:end])

		i = end
		literalStart = end
	}

	b.WriteString(quoteLiteral(source[literalStart:]))
	b.WriteString("$")
	return b.String()
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
