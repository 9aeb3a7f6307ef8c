package history

import (
	"fmt"
	"regexp"
	"strings"
)

// compileGlob translates a SQLite GLOB pattern into an anchored regexp.
// * matches any run of characters (newlines included), ? one character, and
// [...] a character class.
func compileGlob(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?s)^`)

	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '*':
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		case '[':
			// A ']' right after '[' or '[^' is a member, not the end.
			start := i + 1
			negate := start < len(pattern) && pattern[start] == '^'
			if negate {
				start++
			}
			first := start
			if first < len(pattern) && pattern[first] == ']' {
				first++
			}
			end := strings.IndexByte(pattern[first:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated class in %q", ErrInvalidQuery, pattern)
			}
			end += first

			class := regexp.QuoteMeta(pattern[start:end])
			if negate {
				class = "^" + class
			}
			b.WriteString("[" + class + "]")
			i = end
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}

	b.WriteString(`$`)
	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidQuery, pattern, err)
	}
	return re, nil
}
