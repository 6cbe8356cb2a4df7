package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/cybertec-postgresql/covlua/internal/aggregate"
	"github.com/cybertec-postgresql/covlua/internal/store"
	"github.com/cybertec-postgresql/covlua/pkg/luatypes"
)

// LCOVReporter formats the coverage summary in LCOV's text format
// (https://github.com/linux-test-project/lcov), treating every EXECUTED
// line, COVERED or not, as LCOV's "hit" with its execution count, since
// LCOV has no third state of its own.
type LCOVReporter struct{}

// NewLCOVReporter creates a new LCOV reporter.
func NewLCOVReporter() *LCOVReporter {
	return &LCOVReporter{}
}

// Format writes summary in LCOV format to writer.
func (r *LCOVReporter) Format(summary aggregate.GlobalSummary, s *store.Store, writer io.Writer) error {
	files := append([]aggregate.FileSummary(nil), summary.Files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	for _, fs := range files {
		if err := r.formatFile(fs, s, writer); err != nil {
			return err
		}
	}
	return nil
}

func (r *LCOVReporter) formatFile(fs aggregate.FileSummary, s *store.Store, writer io.Writer) error {
	if _, err := fmt.Fprintf(writer, "SF:%s\n", fs.Path); err != nil {
		return err
	}

	id := storeFileID(fs.Path)
	fr, ok := s.GetFileData(id)
	if !ok {
		_, err := fmt.Fprintf(writer, "end_of_record\n")
		return err
	}

	var lineNos []int
	for ln, lr := range fr.Lines {
		if lr.Kind == luatypes.LineCode {
			lineNos = append(lineNos, ln)
		}
	}
	sort.Ints(lineNos)

	for _, ln := range lineNos {
		lr := fr.Lines[ln]
		hitCount := 0
		if lr.Flags.Executed() {
			hitCount = lr.ExecutionCount
			if hitCount == 0 {
				hitCount = 1
			}
		}
		if _, err := fmt.Fprintf(writer, "DA:%d,%d\n", ln, hitCount); err != nil {
			return err
		}
	}

	if err := writeFnLCOV(fs, writer); err != nil {
		return err
	}

	if _, err := fmt.Fprintf(writer, "LF:%d\n", len(lineNos)); err != nil {
		return err
	}
	linesHit := 0
	for _, ln := range lineNos {
		if fr.Lines[ln].Flags.Executed() {
			linesHit++
		}
	}
	if _, err := fmt.Fprintf(writer, "LH:%d\n", linesHit); err != nil {
		return err
	}
	_, err := fmt.Fprintf(writer, "end_of_record\n")
	return err
}

// writeFnLCOV emits LCOV's FN:/FNDA:/FNF:/FNH: function-coverage records.
func writeFnLCOV(fs aggregate.FileSummary, writer io.Writer) error {
	fns := append([]aggregate.FunctionSummary(nil), fs.Functions...)
	sort.Slice(fns, func(i, j int) bool { return fns[i].StartLine < fns[j].StartLine })
	for _, fn := range fns {
		if _, err := fmt.Fprintf(writer, "FN:%d,%s\n", fn.StartLine, fn.Name); err != nil {
			return err
		}
	}
	hit := 0
	for _, fn := range fns {
		count := fn.ExecutionCount
		if fn.Executed && count == 0 {
			count = 1
		}
		if _, err := fmt.Fprintf(writer, "FNDA:%d,%s\n", count, fn.Name); err != nil {
			return err
		}
		if fn.Executed {
			hit++
		}
	}
	if _, err := fmt.Fprintf(writer, "FNF:%d\n", len(fns)); err != nil {
		return err
	}
	_, err := fmt.Fprintf(writer, "FNH:%d\n", hit)
	return err
}

// FormatString returns summary as an LCOV-formatted string.
func (r *LCOVReporter) FormatString(summary aggregate.GlobalSummary, s *store.Store) (string, error) {
	var buf strings.Builder
	if err := r.Format(summary, s, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Name returns "lcov".
func (r *LCOVReporter) Name() string {
	return "lcov"
}
