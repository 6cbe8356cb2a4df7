// Package aggregate computes per-file and global coverage summaries over
// the Runtime Data Store, classifying each line per spec.md §4.9. It
// generalizes internal/coverage/model.go's two-state
// LineCoveragePercent/TotalLineCoveragePercent into the spec's three-state
// (covered/executed/not-covered) classification, guarding every division
// against the zero-executable-lines case the teacher's own code handled
// the same way.
package aggregate

import (
	"regexp"
	"strings"

	"github.com/cybertec-postgresql/covlua/internal/lexer"
	"github.com/cybertec-postgresql/covlua/internal/store"
	"github.com/cybertec-postgresql/covlua/pkg/luatypes"
)

// structuralRE matches a line that is nothing but a bare block delimiter:
// `end`, `else`, `until ...`, `elseif ... then`, or a lone `then`/`do`.
var structuralRE = regexp.MustCompile(`^\s*(end|else|until.*|elseif\s+.*\s+then|then|do)\s*$`)

// FileSummary is the per-file aggregate spec.md §4.9 describes.
type FileSummary struct {
	Path            string
	TotalLines      int
	ExecutableLines int
	ExecutedLines   int
	CoveredLines    int
	CoveragePercent float64
	ExecutedPercent float64
	Functions       []FunctionSummary
}

// FunctionSummary mirrors a store.FunctionRecord for report consumption.
type FunctionSummary struct {
	Name           string
	Kind           luatypes.FunctionKind
	StartLine      int
	EndLine        int
	Executed       bool
	Covered        bool
	ExecutionCount int
}

// GlobalSummary sums FileSummary across every registered file.
type GlobalSummary struct {
	Files           []FileSummary
	TotalLines      int
	ExecutableLines int
	ExecutedLines   int
	CoveredLines    int
	CoveragePercent float64
	ExecutedPercent float64
}

// ClassifyLines re-reads fr.Source and assigns each line's Kind, using
// the comment table the lexer produced and the executable-line set the
// parser/transformer derived from statement positions. Lines not already
// known to be CODE or COMMENT are tested against structuralRE, then
// finally classified BLANK.
func ClassifyLines(s *store.Store, id luatypes.FileId, fr *store.FileRecord, comments []lexer.Comment, executableLines map[int]bool) {
	commentLines := make(map[int]bool)
	for _, c := range comments {
		commentLines[c.Line] = true
		if c.Kind == lexer.CommentLong {
			for i := 0; i < strings.Count(c.Text, "\n"); i++ {
				commentLines[c.Line+i+1] = true
			}
		}
	}

	lines := strings.Split(fr.Source, "\n")
	for i, text := range lines {
		lineNo := i + 1
		switch {
		case executableLines[lineNo]:
			s.SetLineKind(id, lineNo, luatypes.LineCode)
		case commentLines[lineNo]:
			s.SetLineKind(id, lineNo, luatypes.LineComment)
		case strings.TrimSpace(text) == "":
			s.SetLineKind(id, lineNo, luatypes.LineBlank)
		case structuralRE.MatchString(text):
			s.SetLineKind(id, lineNo, luatypes.LineStructural)
		default:
			s.SetLineKind(id, lineNo, luatypes.LineBlank)
		}
	}
}

// SummarizeFile computes a FileSummary from the store's current state.
func SummarizeFile(s *store.Store, id luatypes.FileId) FileSummary {
	fr, ok := s.GetFileData(id)
	if !ok {
		return FileSummary{}
	}
	sum := FileSummary{Path: fr.FilePath, TotalLines: fr.LineCount}
	for line, lr := range fr.Lines {
		if lr.Kind != luatypes.LineCode {
			continue
		}
		sum.ExecutableLines++
		switch s.GetLineState(id, line) {
		case luatypes.StateCovered:
			sum.CoveredLines++
			sum.ExecutedLines++
		case luatypes.StateExecuted:
			sum.ExecutedLines++
		}
	}
	sum.CoveragePercent = percent(sum.CoveredLines, sum.ExecutableLines)
	sum.ExecutedPercent = percent(sum.ExecutedLines, sum.ExecutableLines)

	for _, fn := range fr.Functions {
		sum.Functions = append(sum.Functions, FunctionSummary{
			Name: fn.Name, Kind: fn.Kind, StartLine: fn.StartLine, EndLine: fn.EndLine,
			Executed: fn.Executed, Covered: fn.Covered, ExecutionCount: fn.ExecutionCount,
		})
	}
	return sum
}

// SummarizeGlobal computes the whole-store summary, per
// Controller.GetData / spec.md §4.9's "global summary sums over files".
func SummarizeGlobal(s *store.Store) GlobalSummary {
	var g GlobalSummary
	for _, id := range s.Files() {
		fs := SummarizeFile(s, id)
		g.Files = append(g.Files, fs)
		g.TotalLines += fs.TotalLines
		g.ExecutableLines += fs.ExecutableLines
		g.ExecutedLines += fs.ExecutedLines
		g.CoveredLines += fs.CoveredLines
	}
	g.CoveragePercent = percent(g.CoveredLines, g.ExecutableLines)
	g.ExecutedPercent = percent(g.ExecutedLines, g.ExecutableLines)
	return g
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(n) / float64(total) * 100.0
}
