// Package normalizers holds the named value transforms a matching criterion may apply
// to both sides before comparing them.
package normalizers

import (
	"fmt"
	"strings"
	"unicode"
)

// Func transforms one attribute value.
type Func func(string) string

var builtins = map[string]Func{
	"trim":           strings.TrimSpace,
	"lowercase":      strings.ToLower,
	"uppercase":      strings.ToUpper,
	"collapse-space": CollapseSpace,
	"digits":         keep(unicode.IsDigit),
	"alphanumeric":   keep(func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }),
	"postcode":       Postcode,
}

// Lookup returns the builtin named name.
func Lookup(name string) (Func, bool) {
	fn, ok := builtins[name]
	return fn, ok
}

// Names lists the builtin names, for error messages.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	return names
}

// Chain composes names left to right. An empty chain is the identity.
func Chain(names ...string) (Func, error) {
	fns := make([]Func, 0, len(names))
	for _, name := range names {
		fn, ok := builtins[name]
		if !ok {
			return nil, fmt.Errorf("unknown normalizer %q", name)
		}
		fns = append(fns, fn)
	}
	return func(s string) string {
		for _, fn := range fns {
			s = fn(s)
		}
		return s
	}, nil
}

// CollapseSpace trims s and folds every whitespace run into one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Postcode upper-cases a UK postcode and drops its spaces, so "sw1a 1aa" and
// "SW1A1AA" compare equal.
func Postcode(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

func keep(pred func(rune) bool) Func {
	return func(s string) string {
		var b strings.Builder
		for _, r := range s {
			if pred(r) {
				b.WriteRune(r)
			}
		}
		return b.String()
	}
}
