// Package tracker installs the coverage engine's namespaced Lua global
// (luatypes.PreludeGlobal) into a *lua.LState: the five entry points
// instrumented source calls into -- track_line, track_function_entry,
// track_branch, track_assertion_enter, track_assertion_exit -- per
// spec.md §5's Runtime Tracker. Every call here must be cheap and never
// suspend the interpreter, since it runs on every executable line of
// every test file. Tracker only ever sets EXECUTED/execution_count;
// COVERED is internal/assertion.Hook's alone to write (spec.md §3), so
// trackAssertionExit hands its pass/fail verdict and the newly-executed
// diff to a Hook rather than touching the store's coverage bits itself.
package tracker

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/cybertec-postgresql/covlua/internal/assertion"
	"github.com/cybertec-postgresql/covlua/internal/store"
	"github.com/cybertec-postgresql/covlua/pkg/luatypes"
)

// Tracker binds a Store to a concrete Lua table installed as the
// PreludeGlobal, so every instrumented file in every *lua.LState the
// engine opens shares the one process-wide Global Store.
type Tracker struct {
	store *store.Store
	hook  *assertion.Hook
}

// New creates a Tracker over store, delegating COVERED promotion to hook.
func New(s *store.Store, hook *assertion.Hook) *Tracker {
	return &Tracker{store: s, hook: hook}
}

// Install registers the tracker's functions as a table global named
// luatypes.PreludeGlobal in L, ready for instrumented source to call.
func (t *Tracker) Install(l *lua.LState) error {
	tbl := l.NewTable()
	l.SetField(tbl, "track_line", l.NewFunction(t.trackLine))
	l.SetField(tbl, "track_function_entry", l.NewFunction(t.trackFunctionEntry))
	l.SetField(tbl, "track_branch", l.NewFunction(t.trackBranch))
	l.SetField(tbl, "track_assertion_enter", l.NewFunction(t.trackAssertionEnter))
	l.SetField(tbl, "track_assertion_exit", l.NewFunction(t.trackAssertionExit))
	l.SetGlobal(luatypes.PreludeGlobal, tbl)
	return nil
}

// trackLine(file_id, line) records a plain line execution.
func (t *Tracker) trackLine(l *lua.LState) int {
	id := luatypes.FileId(l.CheckString(1))
	line := l.CheckInt(2)
	t.store.RecordExecution(id, line)
	return 0
}

// trackBranch(file_id, line) records an if/elseif/else clause entry; it
// shares RecordExecution's semantics (EXECUTED, not COVERED) since branch
// coverage promotion to COVERED still flows exclusively through a
// passing assertion.
func (t *Tracker) trackBranch(l *lua.LState) int {
	id := luatypes.FileId(l.CheckString(1))
	line := l.CheckInt(2)
	t.store.RecordExecution(id, line)
	return 0
}

// trackFunctionEntry(file_id, function_id) records that a function body
// started executing. Name/kind/line range were already registered at
// instrumentation time (internal/transform registers every discovered
// function up front, called or not), so entry only needs the id to look
// the record back up; the zero-value name/kind/range args are ignored by
// store.RecordFunctionEntry's already-registered fast path.
func (t *Tracker) trackFunctionEntry(l *lua.LState) int {
	id := luatypes.FileId(l.CheckString(1))
	functionID := l.CheckString(2)
	t.store.RecordFunctionEntry(id, functionID, "", 0, 0, 0)
	return 0
}

// assertionGuard is the opaque userdata the generated `do local guard =
// track_assertion_enter(...) ... track_assertion_exit(guard) end` pattern
// threads through a single assertion call's dynamic extent.
type assertionGuard struct {
	fileID luatypes.FileId
	line   int
}

// trackAssertionEnter(file_id, line) pushes a new assertion extent onto
// the store's stack and returns an opaque guard value for the matching
// trackAssertionExit call.
func (t *Tracker) trackAssertionEnter(l *lua.LState) int {
	id := luatypes.FileId(l.CheckString(1))
	line := l.CheckInt(2)
	t.store.PushAssertion(string(id), line)
	ud := l.NewUserData()
	ud.Value = &assertionGuard{fileID: id, line: line}
	l.Push(ud)
	return 1
}

// trackAssertionExit(guard, result) pops the matching assertion extent
// and hands the newly-executed diff to the Assertion Hook along with the
// bracketed call's own result, per spec.md §4.7's "does NOT by itself
// promote lines (the Assertion Hook does promotion based on pass/fail)".
// result is whatever the wrapped call returned (assertionStatement
// captures it via a local before calling here); a falsy result (false or
// an explicit nil) fails the assertion even though the call itself never
// raised -- the is_true(false)/equals(a, b) == false case a throw-only
// check would miss. A call with no result argument at all counts as a
// pass.
func (t *Tracker) trackAssertionExit(l *lua.LState) int {
	if _, ok := l.CheckUserData(1).Value.(*assertionGuard); !ok {
		return 0
	}
	pass := true
	if l.GetTop() >= 2 {
		pass = lua.LVAsBool(l.Get(2))
	}
	testFile, testLine, newly := t.store.PopAssertion()
	covered := t.hook.Resolve(pass, newly)
	t.store.AppendAssertion(store.AssertionRecord{
		TestFile:      testFile,
		TestLine:      testLine,
		AssertionKind: "expect",
		CoveredLines:  covered,
	})
	return 0
}
