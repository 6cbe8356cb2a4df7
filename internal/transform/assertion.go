package transform

import (
	"fmt"

	"github.com/cybertec-postgresql/covlua/internal/ast"
	"github.com/cybertec-postgresql/covlua/pkg/luatypes"
)

// assertionRoots names the call-chain roots the transformer recognizes as
// entry points into an assertion library's fluent chain (spec.md §4.6:
// "wraps assertion library entry points... `expect(x).to.be.ok()`,
// `assert.equals(a, b)`"), matching the canonical, globally addressable
// assertion surface internal/assertion.Names wraps at runtime (spec.md
// §4.8 step 1 / §6's "Assertion library" collaborator entry): expect and
// assert plus the ten boolean-returning checks a minimal Lua assertion
// library exposes by name.
var assertionRoots = map[string]bool{
	"expect":       true,
	"assert":       true,
	"is_true":      true,
	"is_false":     true,
	"is_nil":       true,
	"is_not_nil":   true,
	"equals":       true,
	"not_equals":   true,
	"matches":      true,
	"not_matches":  true,
	"has_error":    true,
	"has_no_error": true,
}

// isAssertionCall reports whether stmt's root call (after unwrapping any
// chained :method()/.field access back to its origin) is a call to one of
// assertionRoots, per spec.md §4.6's detection rule: "statically detect a
// call whose outermost chain root is a known assertion-library entry
// point, at the statement level."
func isAssertionCall(stmt ast.Node) bool {
	var expr ast.Node
	switch s := stmt.(type) {
	case *ast.Call:
		expr = s
	case *ast.Invoke:
		expr = s
	default:
		return false
	}
	return assertionRootName(expr) != ""
}

// assertionRootName walks down through Invoke/Call/Index chains to the
// innermost Call, and returns its callee's name if that callee is a bare
// Id naming a known assertion root.
func assertionRootName(n ast.Node) string {
	for {
		switch e := n.(type) {
		case *ast.Invoke:
			n = e.Obj
		case *ast.Call:
			if id, ok := e.Fn.(*ast.Id); ok {
				if assertionRoots[id.Name] {
					return id.Name
				}
				return ""
			}
			n = e.Fn
		case *ast.Index:
			n = e.Obj
		case *ast.Id:
			if assertionRoots[e.Name] {
				return e.Name
			}
			return ""
		default:
			return ""
		}
	}
}

// assertionStatement wraps a detected assertion call in the scope-guard
// pattern spec.md §4.6 describes: track_assertion_enter snapshots the
// store's executed-line set before the call runs, and the call's own
// first return value is
// captured into a local and threaded through to track_assertion_exit so
// the Assertion Hook can gate promotion on it -- reaching the exit call
// only means the bracketed call didn't raise, not that it passed (an
// is_true(false)/equals(a, b) that returns false rather than throwing
// must not promote; see internal/assertion.Hook.Resolve).
func (w *emitter) assertionStatement(stmt ast.Node, indent, line int) {
	w.trackLine(indent, line)
	w.fnCounter++
	guard := fmt.Sprintf("__covlua_guard%d", w.fnCounter)
	result := fmt.Sprintf("__covlua_result%d", w.fnCounter)
	w.emit(indent, line, fmt.Sprintf("local %s = %s.track_assertion_enter(%q, %d)", guard, luatypes.PreludeGlobal, w.fileID, line))
	w.emit(indent, line, fmt.Sprintf("local %s = %s", result, w.flatten(stmt, indent)))
	w.emit(indent, line, fmt.Sprintf("%s.track_assertion_exit(%s, %s)", luatypes.PreludeGlobal, guard, result))
}
