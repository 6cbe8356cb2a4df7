package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/cybertec-postgresql/covlua/internal/aggregate"
	"github.com/cybertec-postgresql/covlua/internal/store"
)

// JSONReporter formats the coverage summary as JSON.
type JSONReporter struct{}

// NewJSONReporter creates a new JSON reporter.
func NewJSONReporter() *JSONReporter {
	return &JSONReporter{}
}

// jsonLine is one line's detail in the JSON report's per-file line array.
type jsonLine struct {
	Line           int    `json:"line"`
	State          string `json:"state"`
	ExecutionCount int    `json:"execution_count"`
}

type jsonFunction struct {
	Name           string `json:"name"`
	Kind           string `json:"kind"`
	StartLine      int    `json:"start_line"`
	EndLine        int    `json:"end_line"`
	Executed       bool   `json:"executed"`
	Covered        bool   `json:"covered"`
	ExecutionCount int    `json:"execution_count"`
}

type jsonFile struct {
	Path            string         `json:"path"`
	TotalLines      int            `json:"total_lines"`
	ExecutableLines int            `json:"executable_lines"`
	ExecutedLines   int            `json:"executed_lines"`
	CoveredLines    int            `json:"covered_lines"`
	CoveragePercent float64        `json:"coverage_percent"`
	ExecutedPercent float64        `json:"executed_percent"`
	Functions       []jsonFunction `json:"functions"`
	Lines           []jsonLine     `json:"lines"`
}

type jsonReport struct {
	CoveragePercent float64    `json:"coverage_percent"`
	ExecutedPercent float64    `json:"executed_percent"`
	TotalLines      int        `json:"total_lines"`
	ExecutableLines int        `json:"executable_lines"`
	ExecutedLines   int        `json:"executed_lines"`
	CoveredLines    int        `json:"covered_lines"`
	Files           []jsonFile `json:"files"`
}

func buildJSONReport(summary aggregate.GlobalSummary, s *store.Store) jsonReport {
	out := jsonReport{
		CoveragePercent: summary.CoveragePercent,
		ExecutedPercent: summary.ExecutedPercent,
		TotalLines:      summary.TotalLines,
		ExecutableLines: summary.ExecutableLines,
		ExecutedLines:   summary.ExecutedLines,
		CoveredLines:    summary.CoveredLines,
	}

	files := append([]aggregate.FileSummary(nil), summary.Files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	for _, fs := range files {
		jf := jsonFile{
			Path: fs.Path, TotalLines: fs.TotalLines, ExecutableLines: fs.ExecutableLines,
			ExecutedLines: fs.ExecutedLines, CoveredLines: fs.CoveredLines,
			CoveragePercent: fs.CoveragePercent, ExecutedPercent: fs.ExecutedPercent,
		}
		for _, fn := range fs.Functions {
			jf.Functions = append(jf.Functions, jsonFunction{
				Name: fn.Name, Kind: fn.Kind.String(), StartLine: fn.StartLine, EndLine: fn.EndLine,
				Executed: fn.Executed, Covered: fn.Covered, ExecutionCount: fn.ExecutionCount,
			})
		}
		jf.Lines = fileLines(s, fs.Path)
		out.Files = append(out.Files, jf)
	}
	return out
}

func fileLines(s *store.Store, path string) []jsonLine {
	id := storeFileID(path)
	fr, ok := s.GetFileData(id)
	if !ok {
		return nil
	}
	var lineNos []int
	for ln := range fr.Lines {
		lineNos = append(lineNos, ln)
	}
	sort.Ints(lineNos)
	out := make([]jsonLine, 0, len(lineNos))
	for _, ln := range lineNos {
		lr := fr.Lines[ln]
		out = append(out, jsonLine{
			Line:           ln,
			State:          s.GetLineState(id, ln).String(),
			ExecutionCount: lr.ExecutionCount,
		})
	}
	return out
}

// Format writes summary as indented JSON.
func (r *JSONReporter) Format(summary aggregate.GlobalSummary, s *store.Store, writer io.Writer) error {
	data, err := json.MarshalIndent(buildJSONReport(summary, s), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal coverage to JSON: %w", err)
	}
	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	_, err = writer.Write([]byte("\n"))
	return err
}

// FormatString returns summary as a JSON string.
func (r *JSONReporter) FormatString(summary aggregate.GlobalSummary, s *store.Store) (string, error) {
	data, err := json.MarshalIndent(buildJSONReport(summary, s), "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal coverage to JSON: %w", err)
	}
	return string(data), nil
}

// Name returns "json".
func (r *JSONReporter) Name() string {
	return "json"
}
