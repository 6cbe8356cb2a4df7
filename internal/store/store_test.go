package store

import (
	"testing"

	"github.com/cybertec-postgresql/covlua/pkg/luatypes"
)

func TestRegisterFileIdempotent(t *testing.T) {
	s := New()
	id := luatypes.FileId("/a.lua")
	s.RegisterFile(id, "/a.lua", "local x = 1\n", nil)
	s.RecordExecution(id, 1)
	s.RegisterFile(id, "/a.lua", "different text\n", nil)

	fr, ok := s.GetFileData(id)
	if !ok {
		t.Fatal("file not registered")
	}
	if fr.Source != "local x = 1\n" {
		t.Errorf("re-registration overwrote source: %q", fr.Source)
	}
}

func TestRecordExecutionAndCoverage(t *testing.T) {
	s := New()
	id := luatypes.FileId("/a.lua")
	s.RegisterFile(id, "/a.lua", "local x = 1\nreturn x\n", nil)

	if got := s.GetLineState(id, 1); got != luatypes.StateNotCovered {
		t.Fatalf("unregistered line state = %v, want NOT_COVERED", got)
	}

	s.RecordExecution(id, 1)
	if got := s.GetLineState(id, 1); got != luatypes.StateExecuted {
		t.Errorf("after RecordExecution, state = %v, want EXECUTED", got)
	}

	s.RecordCoverage(id, 1)
	if got := s.GetLineState(id, 1); got != luatypes.StateCovered {
		t.Errorf("after RecordCoverage, state = %v, want COVERED", got)
	}

	fr, _ := s.GetFileData(id)
	if fr.Lines[1].ExecutionCount != 1 {
		t.Errorf("execution count = %d, want 1", fr.Lines[1].ExecutionCount)
	}
}

func TestRecordExecutionOnNonCodeLineIsNoOp(t *testing.T) {
	s := New()
	id := luatypes.FileId("/a.lua")
	s.RegisterFile(id, "/a.lua", "-- comment\nreturn 1\n", nil)
	s.SetLineKind(id, 1, luatypes.LineComment)

	s.RecordExecution(id, 1)
	if got := s.GetLineState(id, 1); got != luatypes.StateNonExecutable {
		t.Errorf("comment line state = %v, want NON_EXECUTABLE", got)
	}
}

func TestSetLineKindClearsFlagsWhenReclassifiedNonCode(t *testing.T) {
	s := New()
	id := luatypes.FileId("/a.lua")
	s.RegisterFile(id, "/a.lua", "return 1\n", nil)
	s.RecordCoverage(id, 1)

	s.SetLineKind(id, 1, luatypes.LineBlank)
	if got := s.GetLineState(id, 1); got != luatypes.StateNonExecutable {
		t.Errorf("reclassified line state = %v, want NON_EXECUTABLE", got)
	}
}

func TestResetKeepsFilesClearsExecution(t *testing.T) {
	s := New()
	id := luatypes.FileId("/a.lua")
	s.RegisterFile(id, "/a.lua", "return 1\n", nil)
	s.RecordCoverage(id, 1)

	s.Reset()

	if !s.IsRegistered(id) {
		t.Fatal("Reset should keep registered files")
	}
	if got := s.GetLineState(id, 1); got != luatypes.StateNotCovered {
		t.Errorf("after Reset, state = %v, want NOT_COVERED", got)
	}
}

func TestResetPreservesExecutionCountWhenConfigured(t *testing.T) {
	s := New()
	s.SetPreserveExecutionCount(true)
	id := luatypes.FileId("/a.lua")
	s.RegisterFile(id, "/a.lua", "return 1\n", nil)
	s.RecordExecution(id, 1)
	s.RecordExecution(id, 1)

	s.Reset()

	fr, _ := s.GetFileData(id)
	if fr.Lines[1].ExecutionCount != 2 {
		t.Errorf("execution count after Reset = %d, want 2 preserved", fr.Lines[1].ExecutionCount)
	}
}

func TestFullResetDropsFiles(t *testing.T) {
	s := New()
	id := luatypes.FileId("/a.lua")
	s.RegisterFile(id, "/a.lua", "return 1\n", nil)
	s.FullReset()
	if s.IsRegistered(id) {
		t.Fatal("FullReset should drop registered files")
	}
}

func TestFunctionEntryAndPromotion(t *testing.T) {
	s := New()
	id := luatypes.FileId("/a.lua")
	s.RegisterFile(id, "/a.lua", "local function f()\n  return 1\nend\n", nil)
	s.RegisterFunction(id, "f:1", "f", luatypes.FuncLocal, 1, 3)

	s.RecordFunctionEntry(id, "f:1", "f", luatypes.FuncLocal, 1, 3)
	fr, _ := s.GetFileData(id)
	fn := fr.Functions["f:1"]
	if !fn.Executed || fn.ExecutionCount != 1 {
		t.Fatalf("function record after entry = %+v", fn)
	}
	if fn.Covered {
		t.Fatal("function should not be covered before promotion")
	}

	s.PromoteFunctionCoverage(id, 2)
	if !fr.Functions["f:1"].Covered {
		t.Error("function should be covered after a line inside its range is promoted")
	}
}

func TestPushPopAssertionDiff(t *testing.T) {
	s := New()
	id := luatypes.FileId("/a.lua")
	s.RegisterFile(id, "/a.lua", "return 1\nreturn 2\n", nil)

	s.RecordExecution(id, 1)
	s.PushAssertion("test.lua", 10)
	s.RecordExecution(id, 2)
	_, _, newly := s.PopAssertion()

	if len(newly) != 1 {
		t.Fatalf("expected exactly 1 newly executed line, got %d: %v", len(newly), newly)
	}
}

func TestNestedAssertions(t *testing.T) {
	s := New()
	id := luatypes.FileId("/a.lua")
	s.RegisterFile(id, "/a.lua", "return 1\nreturn 2\nreturn 3\n", nil)

	s.PushAssertion("test.lua", 1)
	s.RecordExecution(id, 1)
	s.PushAssertion("test.lua", 2)
	s.RecordExecution(id, 2)
	_, _, innerNewly := s.PopAssertion()
	s.RecordExecution(id, 3)
	_, _, outerNewly := s.PopAssertion()

	if len(innerNewly) != 1 {
		t.Errorf("inner assertion newly = %v, want 1 entry", innerNewly)
	}
	if len(outerNewly) != 3 {
		t.Errorf("outer assertion newly = %v, want 3 entries (lines 1, 2 and 3)", outerNewly)
	}
}

func TestInAssertion(t *testing.T) {
	s := New()
	if s.InAssertion() {
		t.Fatal("InAssertion should be false with no pushed assertion")
	}
	s.PushAssertion("t.lua", 1)
	if !s.InAssertion() {
		t.Fatal("InAssertion should be true after Push")
	}
	s.PopAssertion()
	if s.InAssertion() {
		t.Fatal("InAssertion should be false after Pop")
	}
}

func TestAppendAndListAssertions(t *testing.T) {
	s := New()
	rec := AssertionRecord{TestFile: "t.lua", TestLine: 5, AssertionKind: "expect"}
	s.AppendAssertion(rec)
	got := s.Assertions()
	if len(got) != 1 || got[0].TestLine != 5 {
		t.Fatalf("Assertions() = %+v", got)
	}
	got[0].TestLine = 999
	if s.Assertions()[0].TestLine == 999 {
		t.Error("Assertions() should return a copy, not a live reference")
	}
}

func TestGetLineStateUnregisteredFile(t *testing.T) {
	s := New()
	if got := s.GetLineState(luatypes.FileId("/nope.lua"), 1); got != luatypes.StateNotCovered {
		t.Errorf("unregistered file line state = %v, want NOT_COVERED", got)
	}
}

func TestFilesListsEveryRegisteredFile(t *testing.T) {
	s := New()
	s.RegisterFile("a", "/a.lua", "", nil)
	s.RegisterFile("b", "/b.lua", "", nil)
	ids := s.Files()
	if len(ids) != 2 {
		t.Fatalf("Files() = %v, want 2 entries", ids)
	}
}
