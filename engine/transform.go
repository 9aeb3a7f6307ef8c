package engine

import (
	"fmt"
	"go/token"
	"strings"
	"unicode"
)

// transformed is the result of input transformation. Source is what runs.
// Reported is the autocall rewrite of the input with directive lines left as
// typed, set only when an autocall rewrite happened.
type transformed struct {
	Source   string
	Reported string
	Autocall bool
}

// transform expands % directive lines and rewrites autocall lines
// ("f a, b" into "f(a, b)"). Only unindented lines are considered.
func transform(code string, directives map[string]Directive, callable func(string) bool) (transformed, error) {
	lines := strings.Split(code, "\n")
	source := make([]string, len(lines))
	reported := make([]string, len(lines))
	var autocall bool

	for i, line := range lines {
		source[i], reported[i] = line, line

		if name, args, ok := directiveLine(line); ok {
			d, found := directives[name]
			if !found {
				return transformed{}, fmt.Errorf("%w: %%%s", ErrUnknownDirective, name)
			}
			expanded, err := d(args)
			if err != nil {
				return transformed{}, fmt.Errorf("%%%s: %w", name, err)
			}
			source[i] = expanded
			continue
		}

		if rewritten, ok := autocallLine(line, callable); ok {
			source[i], reported[i] = rewritten, rewritten
			autocall = true
		}
	}

	t := transformed{Source: strings.Join(source, "\n"), Autocall: autocall}
	if autocall {
		t.Reported = strings.Join(reported, "\n")
	}
	return t, nil
}

func directiveLine(line string) (name, args string, ok bool) {
	rest, found := strings.CutPrefix(line, "%")
	if !found {
		return "", "", false
	}
	name, args, _ = strings.Cut(rest, " ")
	if !token.IsIdentifier(name) {
		return "", "", false
	}
	return name, strings.TrimSpace(args), true
}

// autocallLine rewrites "name arg, ..." when name is a callable and the rest
// starts like an operand rather than an operator.
func autocallLine(line string, callable func(string) bool) (string, bool) {
	if callable == nil || line == "" || unicode.IsSpace(rune(line[0])) {
		return "", false
	}

	name, args, found := strings.Cut(strings.TrimRight(line, " \t;"), " ")
	args = strings.TrimSpace(args)
	if !found || args == "" || !token.IsIdentifier(name) {
		return "", false
	}

	switch c := rune(args[0]); {
	case unicode.IsLetter(c), unicode.IsDigit(c), c == '_', c == '"', c == '\'', c == '`':
	default:
		return "", false
	}
	if !callable(name) {
		return "", false
	}
	return name + "(" + args + ")", true
}
