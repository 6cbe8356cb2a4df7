// Package globmatch implements the include/exclude glob syntax spec.md
// §4.4 specifies: `**` matches any sequence including `/`, `*` matches
// any sequence not containing `/`, `?` matches one character, and every
// other regex metacharacter is literal. internal/discovery/classifier.go
// classified pgcov's SQL files by a bare suffix check; covlua's
// include/exclude rules need the fuller glob grammar, so this package
// compiles each pattern to a regexp once rather than hand-rolling a
// matcher.
package globmatch

import (
	"regexp"
	"strings"
	"sync"
)

// Matcher compiles a glob pattern once and matches paths against it.
type Matcher struct {
	re *regexp.Regexp
}

var cache sync.Map // pattern string -> *Matcher

// Compile returns a cached Matcher for pattern.
func Compile(pattern string) *Matcher {
	if m, ok := cache.Load(pattern); ok {
		return m.(*Matcher)
	}
	m := &Matcher{re: regexp.MustCompile("^" + globToRegexp(pattern) + "$")}
	cache.Store(pattern, m)
	return m
}

// Match reports whether path satisfies the glob pattern.
func (m *Matcher) Match(path string) bool {
	return m.re.MatchString(path)
}

// Match is a convenience one-shot form of Compile(pattern).Match(path).
func Match(pattern, path string) bool {
	return Compile(pattern).Match(path)
}

// MatchAny reports whether path matches any of patterns.
func MatchAny(patterns []string, path string) bool {
	for _, p := range patterns {
		if Match(p, path) {
			return true
		}
	}
	return false
}

// ShouldInstrument applies spec.md §4.4's precedence: include is checked
// first (any match continues), then exclude (any match rejects).
func ShouldInstrument(include, exclude []string, path string) bool {
	if !MatchAny(include, path) {
		return false
	}
	return !MatchAny(exclude, path)
}

// globToRegexp translates one glob pattern into an anchored regexp body,
// handling `**` before `*` since the single-star rule is a more specific
// case of the double-star one.
func globToRegexp(pattern string) string {
	var b strings.Builder
	i := 0
	for i < len(pattern) {
		c := pattern[i]
		switch {
		case c == '*' && i+1 < len(pattern) && pattern[i+1] == '*':
			i += 2
			// Swallow an immediately following path separator so `**/x`
			// also matches `x` at the root, matching common glob libraries'
			// behavior for this idiom.
			if i < len(pattern) && pattern[i] == '/' {
				i++
				b.WriteString("(?:.*/)?")
			} else {
				b.WriteString(".*")
			}
		case c == '*':
			b.WriteString("[^/]*")
			i++
		case c == '?':
			b.WriteString("[^/]")
			i++
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	return b.String()
}
