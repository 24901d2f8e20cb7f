package ownership

import (
	"regexp"
	"strings"

	"github.com/anthrax3/sentry/internal/digest"
)

// MatcherType selects which event attribute a matcher inspects.
type MatcherType string

const (
	// MatcherTypePath matches the filename of the event's last stack-trace frame.
	MatcherTypePath MatcherType = "path"
	// MatcherTypeURL matches the event's request URL.
	MatcherTypeURL MatcherType = "url"
)

// Matcher is a (type, glob-pattern) pair. Patterns use shell-glob syntax
// (*, ?, character classes) and match case-sensitively against the whole
// attribute string. Unlike path globbing, * also matches separators, so
// "*.py" matches "src/app/hello.py".
type Matcher struct {
	Type    MatcherType `json:"type"`
	Pattern string      `json:"pattern"`
}

// Test reports whether the matcher matches the event. An absent attribute,
// an unknown matcher type, or an invalid glob pattern is a non-match, never
// an error: one misconfigured rule must not break digests for a project.
func (m Matcher) Test(e digest.Event) bool {
	var value string
	switch m.Type {
	case MatcherTypePath:
		value = e.Filename
	case MatcherTypeURL:
		value = e.URL
	default:
		return false
	}
	if value == "" {
		return false
	}
	return globMatch(m.Pattern, value)
}

// globMatch matches value against a shell glob by translating the glob to
// an anchored regular expression. Invalid patterns match nothing.
func globMatch(pattern, value string) bool {
	re, err := regexp.Compile(translateGlob(pattern))
	if err != nil {
		return false
	}
	return re.MatchString(value)
}

// translateGlob converts a glob pattern to regular expression syntax:
// * becomes .*, ? becomes ., [...] classes pass through with ! negation
// mapped to ^, everything else is quoted literally.
func translateGlob(pattern string) string {
	var b strings.Builder
	b.WriteString(`\A`)
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			j := i + 1
			if j < len(pattern) && (pattern[j] == '!' || pattern[j] == '^') {
				j++
			}
			// A ] immediately after the opening bracket is a literal member.
			if j < len(pattern) && pattern[j] == ']' {
				j++
			}
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j >= len(pattern) {
				// Unterminated class: treat the bracket literally.
				b.WriteString(`\[`)
				continue
			}
			class := pattern[i+1 : j]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + class + "]")
			i = j
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString(`\z`)
	return b.String()
}
