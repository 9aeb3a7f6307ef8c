package repl

import (
	"go/token"
	"path"
	"reflect"
	"slices"
	"strings"

	"github.com/traefik/yaegi/stdlib"

	"github.com/tailored-agentic-units/evalkernel/protocol"
)

var builtins = []string{
	"append", "cap", "clear", "close", "complex", "copy", "delete", "imag",
	"len", "make", "max", "min", "new", "panic", "print", "println", "real",
	"recover", "any", "bool", "byte", "complex128", "error", "float32",
	"float64", "int", "int16", "int32", "int64", "int8", "rune", "string",
	"uint", "uint16", "uint32", "uint64", "uint8", "true", "false", "nil",
}

// Inspect implements engine.Runtime. Only identifiers and selectors are
// evaluated, so inspection has no side effects.
func (r *Runtime) Inspect(name string) protocol.ObjectInfoReplyContent {
	info := protocol.ObjectInfoReplyContent{Name: name}
	if !isReference(name) {
		return info
	}

	r.mu.Lock()
	kind, declared := r.names[name]
	importPath, imported := r.imports[name]
	r.mu.Unlock()

	switch {
	case imported:
		info.Found, info.Kind, info.StringForm = true, kindPackage, importPath
		return info
	case kind == kindType:
		info.Found, info.Kind, info.TypeName = true, kindType, name
		return info
	}

	v, err := r.interp.Eval(name)
	if err != nil || !v.IsValid() {
		return info
	}

	info.Found = true
	info.TypeName = v.Type().String()
	info.StringForm = plain(v)
	switch {
	case declared:
		info.Kind = kind
	case v.Kind() == reflect.Func:
		info.Kind = kindFunc
	default:
		info.Kind = kindVar
	}
	return info
}

// IsCallable implements engine.Runtime.
func (r *Runtime) IsCallable(name string) bool {
	r.mu.Lock()
	kind, declared := r.names[name]
	r.mu.Unlock()

	switch {
	case !declared || !token.IsIdentifier(name):
		return false
	case kind == kindFunc:
		return true
	case kind != kindVar:
		return false
	}

	v, err := r.interp.Eval(name)
	return err == nil && v.IsValid() && v.Kind() == reflect.Func
}

// Complete implements engine.Runtime. Candidates are user names, imported
// package names, keywords and builtins, or the exported symbols of a package
// for "pkg.Prefix".
func (r *Runtime) Complete(text, line string, cursor int) ([]string, string) {
	word := currentWord(line[:cursor])
	if word == "" {
		word = text
	}

	var candidates []string
	if pkg, prefix, found := strings.Cut(word, "."); found {
		for _, sym := range r.packageSymbols(pkg) {
			if strings.HasPrefix(sym, prefix) {
				candidates = append(candidates, pkg+"."+sym)
			}
		}
	} else {
		r.mu.Lock()
		for name := range r.names {
			candidates = append(candidates, name)
		}
		for name := range r.imports {
			candidates = append(candidates, name)
		}
		r.mu.Unlock()

		for tok := token.BREAK; tok <= token.VAR; tok++ {
			candidates = append(candidates, tok.String())
		}
		candidates = append(candidates, builtins...)
		candidates = slices.DeleteFunc(candidates, func(c string) bool { return !strings.HasPrefix(c, word) })
	}

	slices.Sort(candidates)
	return slices.Compact(candidates), word
}

func (r *Runtime) packageSymbols(pkg string) []string {
	r.mu.Lock()
	importPath, ok := r.imports[pkg]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	var symbols map[string]reflect.Value
	if importPath == kernelPackage {
		symbols = r.exports()[kernelPackage+"/"+kernelPackage]
	} else {
		symbols = stdlib.Symbols[importPath+"/"+path.Base(importPath)]
	}

	names := make([]string, 0, len(symbols))
	for name := range symbols {
		if token.IsExported(name) {
			names = append(names, name)
		}
	}
	return names
}

func currentWord(s string) string {
	i := len(s)
	for i > 0 {
		c := s[i-1]
		if c == '_' || c == '.' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || ('0' <= c && c <= '9') {
			i--
			continue
		}
		break
	}
	return s[i:]
}

func isReference(name string) bool {
	for _, part := range strings.Split(name, ".") {
		if !token.IsIdentifier(part) {
			return false
		}
	}
	return true
}
