// Package assertion implements the Assertion Hook spec.md §4.7/§4.8
// describes: the component that owns writing COVERED, deliberately kept
// separate from the Runtime Tracker (internal/tracker), which only ever
// sets EXECUTED and execution_count. Two mechanisms cooperate here, the
// way internal/loader's Interceptor owns `require` while the transformer
// decides what gets fed into it:
//
//   - internal/transform statically brackets a recognized assertion
//     call-site in a track_assertion_enter/exit scope guard and threads
//     the call's own return value through to the exit call; Hook.Resolve
//     is what the Runtime Tracker calls at that exit point to turn a
//     pass/fail verdict plus a newly-executed diff into COVERED writes.
//   - Hook.Install additionally wraps whichever of the canonical
//     assertion-library globals (Names) a given *lua.LState defines, so a
//     call the static transformer never bracketed -- stored in a
//     variable, invoked through pcall, built dynamically -- still gets
//     diffed and gated on its own pass/fail outcome.
//
// Both paths funnel through the same store.RecordCoverage /
// store.PromoteFunctionCoverage calls; Hook is the only package in this
// module that calls them.
package assertion

import (
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/cybertec-postgresql/covlua/internal/logger"
	"github.com/cybertec-postgresql/covlua/internal/store"
	"github.com/cybertec-postgresql/covlua/pkg/luatypes"
)

// Names is the canonical, globally addressable assertion-library surface
// spec.md §4.8 step 1 and §6's "Assertion library" collaborator entry
// describe. Not every test file's assertion library defines all twelve;
// Install wraps only the ones actually present as callable globals.
var Names = []string{
	"expect", "assert",
	"is_true", "is_false", "is_nil", "is_not_nil",
	"equals", "not_equals", "matches", "not_matches",
	"has_error", "has_no_error",
}

// Hook wraps Names' globals and resolves the Runtime Tracker's bracketed
// extents, promoting lines to COVERED only when the assertion they were
// executed under actually passed.
type Hook struct {
	store *store.Store

	mu        sync.Mutex
	originals map[*lua.LState]map[string]lua.LValue
}

// New creates a Hook over s.
func New(s *store.Store) *Hook {
	return &Hook{store: s, originals: make(map[*lua.LState]map[string]lua.LValue)}
}

// Install wraps every one of Names that l currently defines as a plain
// Lua function global. Idempotent: installing twice on the same state is
// a no-op, matching internal/loader.Interceptor.Install's contract.
func (h *Hook) Install(l *lua.LState) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.originals[l]; ok {
		return nil
	}
	saved := make(map[string]lua.LValue)
	for _, name := range Names {
		orig, ok := l.GetGlobal(name).(*lua.LFunction)
		if !ok {
			continue
		}
		saved[name] = orig
		l.SetGlobal(name, l.NewFunction(h.wrap(name, orig)))
	}
	h.originals[l] = saved
	return nil
}

// Uninstall restores l's original assertion globals.
func (h *Hook) Uninstall(l *lua.LState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	saved, ok := h.originals[l]
	if !ok {
		return
	}
	for name, orig := range saved {
		l.SetGlobal(name, orig)
	}
	delete(h.originals, l)
}

// IsInstalled reports whether Install has run (and not been undone) on l.
func (h *Hook) IsInstalled(l *lua.LState) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.originals[l]
	return ok
}

// wrap builds the replacement for one assertion global. Per spec.md
// §4.8 steps 2-4: snapshot executed_lines, invoke the original under a
// protected call so a raised error propagates unchanged, and gate
// promotion of the newly-executed diff on the call's own result -- a
// bare non-throwing return with no value (common for has_error-style
// helpers that only ever signal failure by raising) counts as a pass; an
// explicit falsy return (is_true(false), equals(a, b) returning false)
// does not.
func (h *Hook) wrap(name string, orig *lua.LFunction) lua.LGFunction {
	return func(l *lua.LState) int {
		n := l.GetTop()
		before := h.store.ExecutedLines()

		l.Push(orig)
		for i := 1; i <= n; i++ {
			l.Push(l.Get(i))
		}
		if err := l.PCall(n, lua.MultRet, nil); err != nil {
			l.RaiseError("%s", err.Error())
			return 0
		}

		nret := l.GetTop() - n
		pass := true
		if nret > 0 {
			pass = lua.LVAsBool(l.Get(n + 1))
		}

		h.resolve(name, before, pass)
		return nret
	}
}

// Resolve is what the Runtime Tracker calls when a statically-bracketed
// assertion's dynamic extent ends (track_assertion_exit), handing back
// the per-file/line map for the AssertionRecord it appends. It never
// consults the store's assertion stack itself -- that snapshot/diff is
// the tracker's job via store.PushAssertion/PopAssertion -- Resolve only
// ever decides, from a pass/fail verdict and an already-computed newly
// map, whether to call RecordCoverage/PromoteFunctionCoverage.
func (h *Hook) Resolve(pass bool, newly map[string]bool) map[luatypes.FileId]map[int]bool {
	covered := make(map[luatypes.FileId]map[int]bool)
	if !pass {
		return covered
	}
	for k := range newly {
		id, line, ok := store.SplitKey(k)
		if !ok {
			continue
		}
		h.store.RecordCoverage(id, line)
		h.store.PromoteFunctionCoverage(id, line)
		if covered[id] == nil {
			covered[id] = make(map[int]bool)
		}
		covered[id][line] = true
	}
	return covered
}

// resolve is Install's own diff/promote path: it takes its own
// before-snapshot (globally-wrapped calls aren't bracketed by the
// transformer's push/pop stack, so there is no PopAssertion diff to
// reuse) and promotes independently of Resolve/track_assertion_exit.
func (h *Hook) resolve(name string, before map[string]bool, pass bool) {
	after := h.store.ExecutedLines()
	newly := make(map[string]bool, len(after))
	for k := range after {
		if !before[k] {
			newly[k] = true
		}
	}
	covered := h.Resolve(pass, newly)
	if !pass {
		logger.Debug("assertion: %s failed, no lines promoted", name)
		return
	}
	h.store.AppendAssertion(store.AssertionRecord{
		AssertionKind: name,
		CoveredLines:  covered,
	})
}
