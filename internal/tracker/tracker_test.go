package tracker

import (
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/cybertec-postgresql/covlua/internal/assertion"
	"github.com/cybertec-postgresql/covlua/internal/store"
	"github.com/cybertec-postgresql/covlua/pkg/luatypes"
)

func newTestState(t *testing.T, s *store.Store) *lua.LState {
	t.Helper()
	l := lua.NewState()
	t.Cleanup(l.Close)
	if err := New(s, assertion.New(s)).Install(l); err != nil {
		t.Fatalf("Install: %v", err)
	}
	return l
}

func TestInstallSetsPreludeGlobal(t *testing.T) {
	s := store.New()
	l := newTestState(t, s)
	v := l.GetGlobal(luatypes.PreludeGlobal)
	if v.Type() != lua.LTTable {
		t.Fatalf("global %s = %v, want a table", luatypes.PreludeGlobal, v)
	}
}

func TestTrackLineRecordsExecution(t *testing.T) {
	s := store.New()
	id := luatypes.FileId("/a.lua")
	s.RegisterFile(id, "/a.lua", "return 1\n", nil)
	l := newTestState(t, s)

	script := `covlua.track_line("/a.lua", 1)`
	if err := l.DoString(script); err != nil {
		t.Fatalf("DoString: %v", err)
	}
	if got := s.GetLineState(id, 1); got != luatypes.StateExecuted {
		t.Errorf("line state = %v, want EXECUTED", got)
	}
}

func TestTrackFunctionEntryPromotesRegisteredFunction(t *testing.T) {
	s := store.New()
	id := luatypes.FileId("/a.lua")
	s.RegisterFile(id, "/a.lua", "local function f()\nend\n", nil)
	s.RegisterFunction(id, "f:1", "f", luatypes.FuncLocal, 1, 2)
	l := newTestState(t, s)

	if err := l.DoString(`covlua.track_function_entry("/a.lua", "f:1")`); err != nil {
		t.Fatalf("DoString: %v", err)
	}
	fr, _ := s.GetFileData(id)
	if !fr.Functions["f:1"].Executed {
		t.Error("expected function to be marked executed")
	}
}

func TestAssertionEnterExitPromotesLinesCovered(t *testing.T) {
	s := store.New()
	id := luatypes.FileId("/a.lua")
	s.RegisterFile(id, "/a.lua", "return 1\nreturn 2\n", nil)
	l := newTestState(t, s)

	script := `
local guard = covlua.track_assertion_enter("/a.lua", 10)
covlua.track_line("/a.lua", 1)
covlua.track_line("/a.lua", 2)
covlua.track_assertion_exit(guard)
`
	if err := l.DoString(script); err != nil {
		t.Fatalf("DoString: %v", err)
	}

	if got := s.GetLineState(id, 1); got != luatypes.StateCovered {
		t.Errorf("line 1 state = %v, want COVERED", got)
	}
	if got := s.GetLineState(id, 2); got != luatypes.StateCovered {
		t.Errorf("line 2 state = %v, want COVERED", got)
	}

	assertions := s.Assertions()
	if len(assertions) != 1 || assertions[0].TestLine != 10 {
		t.Fatalf("Assertions() = %+v", assertions)
	}
}

func TestAssertionExitDoesNotPromoteOnFailedResult(t *testing.T) {
	s := store.New()
	id := luatypes.FileId("/a.lua")
	s.RegisterFile(id, "/a.lua", "return 1\nreturn 2\n", nil)
	l := newTestState(t, s)

	script := `
local guard = covlua.track_assertion_enter("/a.lua", 10)
covlua.track_line("/a.lua", 1)
covlua.track_line("/a.lua", 2)
covlua.track_assertion_exit(guard, false)
`
	if err := l.DoString(script); err != nil {
		t.Fatalf("DoString: %v", err)
	}

	if got := s.GetLineState(id, 1); got != luatypes.StateExecuted {
		t.Errorf("line 1 state = %v, want EXECUTED (not promoted by a failing assertion)", got)
	}
	if got := s.GetLineState(id, 2); got != luatypes.StateExecuted {
		t.Errorf("line 2 state = %v, want EXECUTED (not promoted by a failing assertion)", got)
	}

	assertions := s.Assertions()
	if len(assertions) != 1 {
		t.Fatalf("Assertions() = %+v, want one recorded (failing) assertion", assertions)
	}
	if len(assertions[0].CoveredLines) != 0 {
		t.Errorf("failing assertion recorded CoveredLines = %+v, want empty", assertions[0].CoveredLines)
	}
}

func TestAssertionExitIgnoresForeignArgument(t *testing.T) {
	s := store.New()
	l := newTestState(t, s)
	if err := l.DoString(`covlua.track_assertion_exit("not-a-guard")`); err != nil {
		t.Fatalf("DoString should not error on a malformed guard: %v", err)
	}
}

func TestNestedAssertionsOnlyPromoteOwnLinesAtInnerExit(t *testing.T) {
	s := store.New()
	id := luatypes.FileId("/a.lua")
	s.RegisterFile(id, "/a.lua", "return 1\nreturn 2\nreturn 3\n", nil)
	l := newTestState(t, s)

	script := `
local outer = covlua.track_assertion_enter("/a.lua", 1)
covlua.track_line("/a.lua", 1)
local inner = covlua.track_assertion_enter("/a.lua", 2)
covlua.track_line("/a.lua", 2)
covlua.track_assertion_exit(inner)
covlua.track_line("/a.lua", 3)
covlua.track_assertion_exit(outer)
`
	if err := l.DoString(script); err != nil {
		t.Fatalf("DoString: %v", err)
	}

	for _, line := range []int{1, 2, 3} {
		if got := s.GetLineState(id, line); got != luatypes.StateCovered {
			t.Errorf("line %d state = %v, want COVERED", line, got)
		}
	}
	if len(s.Assertions()) != 2 {
		t.Errorf("expected 2 recorded assertions, got %d", len(s.Assertions()))
	}
}
