package aggregate

import (
	"testing"

	"github.com/cybertec-postgresql/covlua/internal/lexer"
	"github.com/cybertec-postgresql/covlua/internal/store"
	"github.com/cybertec-postgresql/covlua/pkg/luatypes"
)

func TestClassifyLinesThreeState(t *testing.T) {
	s := store.New()
	id := luatypes.FileId("/a.lua")
	src := "local function add(a, b)\n  return a + b\nend\n"
	s.RegisterFile(id, "/a.lua", src, nil)
	s.RecordExecution(id, 1)
	s.RecordExecution(id, 2)
	s.RecordCoverage(id, 1)

	fr, _ := s.GetFileData(id)
	ClassifyLines(s, id, fr, nil, map[int]bool{1: true, 2: true})

	if got := s.GetLineState(id, 1); got != luatypes.StateCovered {
		t.Errorf("line 1 = %v, want COVERED", got)
	}
	if got := s.GetLineState(id, 2); got != luatypes.StateExecuted {
		t.Errorf("line 2 = %v, want EXECUTED (covered=false)", got)
	}
	if got := s.GetLineState(id, 3); got != luatypes.StateNonExecutable {
		t.Errorf("line 3 (end) = %v, want NON_EXECUTABLE", got)
	}
}

func TestClassifyLinesComments(t *testing.T) {
	s := store.New()
	id := luatypes.FileId("/a.lua")
	src := "-- header comment\nreturn 1\n"
	s.RegisterFile(id, "/a.lua", src, nil)
	fr, _ := s.GetFileData(id)

	comments := []lexer.Comment{{Line: 1, Kind: lexer.CommentLine, Text: "-- header comment"}}
	ClassifyLines(s, id, fr, comments, map[int]bool{2: true})

	if fr.Lines[1].Kind != luatypes.LineComment {
		t.Errorf("line 1 kind = %v, want COMMENT", fr.Lines[1].Kind)
	}
	if fr.Lines[2].Kind != luatypes.LineCode {
		t.Errorf("line 2 kind = %v, want CODE", fr.Lines[2].Kind)
	}
}

func TestClassifyLinesBlank(t *testing.T) {
	s := store.New()
	id := luatypes.FileId("/a.lua")
	src := "return 1\n\n"
	s.RegisterFile(id, "/a.lua", src, nil)
	fr, _ := s.GetFileData(id)
	ClassifyLines(s, id, fr, nil, map[int]bool{1: true})

	if fr.Lines[2].Kind != luatypes.LineBlank {
		t.Errorf("blank line kind = %v, want BLANK", fr.Lines[2].Kind)
	}
}

func TestSummarizeFileZeroExecutableLinesNoDivideByZero(t *testing.T) {
	s := store.New()
	id := luatypes.FileId("/empty.lua")
	s.RegisterFile(id, "/empty.lua", "", nil)
	fr, _ := s.GetFileData(id)
	ClassifyLines(s, id, fr, nil, map[int]bool{})

	fs := SummarizeFile(s, id)
	if fs.CoveragePercent != 0.0 || fs.ExecutedPercent != 0.0 {
		t.Errorf("zero-executable-line summary = %+v, want 0%% for both percentages", fs)
	}
}

func TestSummarizeFileUnregistered(t *testing.T) {
	s := store.New()
	fs := SummarizeFile(s, luatypes.FileId("/nope.lua"))
	if fs.Path != "" || fs.TotalLines != 0 {
		t.Errorf("unregistered file summary should be zero value, got %+v", fs)
	}
}

func TestSummarizeGlobalSumsFiles(t *testing.T) {
	s := store.New()
	for _, name := range []string{"/a.lua", "/b.lua"} {
		id := luatypes.FileId(name)
		s.RegisterFile(id, name, "return 1\nreturn 2\n", nil)
		s.RecordCoverage(id, 1)
		s.RecordExecution(id, 2)
		fr, _ := s.GetFileData(id)
		ClassifyLines(s, id, fr, nil, map[int]bool{1: true, 2: true})
	}

	g := SummarizeGlobal(s)
	if len(g.Files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(g.Files))
	}
	if g.ExecutableLines != 4 || g.CoveredLines != 2 || g.ExecutedLines != 4 {
		t.Errorf("global summary = %+v", g)
	}
}

func TestSummarizeFileFunctions(t *testing.T) {
	s := store.New()
	id := luatypes.FileId("/a.lua")
	s.RegisterFile(id, "/a.lua", "local function f()\nend\n", nil)
	s.RegisterFunction(id, "f:1", "f", luatypes.FuncLocal, 1, 2)
	s.RecordFunctionEntry(id, "f:1", "f", luatypes.FuncLocal, 1, 2)

	fs := SummarizeFile(s, id)
	if len(fs.Functions) != 1 || fs.Functions[0].Name != "f" || !fs.Functions[0].Executed {
		t.Fatalf("function summaries = %+v", fs.Functions)
	}
}
