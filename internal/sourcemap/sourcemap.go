// Package sourcemap maps instrumented source positions back to the
// original source they were generated from, the way internal/instrument's
// TrackLocation bookkeeping let pgcov report a pg_notify hit against the
// statement that produced it. Here the transformer re-emits the entire
// file, so every line (not just tracked ones) needs an entry.
package sourcemap

// Violation describes one failure found by Validate.
type Violation struct {
	InstrumentedLine int
	Message          string
}

// Sourcemap records, for each line of instrumented output, which original
// line it was generated from (0 for a synthetic tracker-call line with no
// single owning original line).
type Sourcemap struct {
	// lineMap[i] is the original line for instrumented line i+1.
	lineMap []int
	// instrumentedOffsets parallels lineMap, advancing one unit per
	// instrumented line (see AddInstrumentedLine); originalOffsets holds
	// the cumulative byte offset after each line passed to AddSourceLine.
	instrumentedOffsets []int
	originalOffsets     []int
}

// New creates an empty Sourcemap.
func New() *Sourcemap {
	return &Sourcemap{}
}

// AddSourceLine is unused directly by the transformer today (it re-emits
// line-by-line via AddInstrumentedLine with an explicit original line
// number) but is kept as the contract's documented entry point for a
// transformer that wants to track original-side byte offsets too.
func (s *Sourcemap) AddSourceLine(text string) {
	last := 0
	if n := len(s.originalOffsets); n > 0 {
		last = s.originalOffsets[n-1]
	}
	s.originalOffsets = append(s.originalOffsets, last+len(text)+1)
}

// AddInstrumentedLine records that the next emitted instrumented line
// (1-based, in emission order) originated from originalLine, which is 0
// for a synthetic tracker-call-only line.
func (s *Sourcemap) AddInstrumentedLine(originalLine int) {
	last := 0
	if n := len(s.instrumentedOffsets); n > 0 {
		last = s.instrumentedOffsets[n-1]
	}
	s.lineMap = append(s.lineMap, originalLine)
	// Offsets are approximate bookkeeping (one unit per line); callers
	// needing exact byte offsets should prefer MapLine, which is what
	// every report generator and error-rewriter actually calls.
	s.instrumentedOffsets = append(s.instrumentedOffsets, last+1)
}

// MapLine returns the original line for instrumented line n (1-based), or
// 0 if n is out of range or maps to a synthetic line.
func (s *Sourcemap) MapLine(instrumentedLine int) int {
	if instrumentedLine < 1 || instrumentedLine > len(s.lineMap) {
		return 0
	}
	return s.lineMap[instrumentedLine-1]
}

// MapPosition returns the original line of the first instrumented line
// whose recorded offset is at or beyond instrumentedByteOffset, the last
// recorded original line when the offset lies past all of them, or -1
// if nothing has been recorded. It walks the recorded per-line offsets
// rather than tracking exact intra-line columns, which matches the
// contract's use (rewriting a runtime error's reported line, not its
// column).
func (s *Sourcemap) MapPosition(instrumentedByteOffset int) int {
	for i, off := range s.instrumentedOffsets {
		if off >= instrumentedByteOffset {
			return s.lineMap[i]
		}
	}
	if len(s.lineMap) > 0 {
		return s.lineMap[len(s.lineMap)-1]
	}
	return -1
}

// Validate checks that the mapping is monotone non-decreasing across
// non-synthetic (non-zero) entries, per spec.md §4.3's contract.
func (s *Sourcemap) Validate() []Violation {
	var violations []Violation
	last := 0
	for i, orig := range s.lineMap {
		if orig == 0 {
			continue
		}
		if orig < last {
			violations = append(violations, Violation{
				InstrumentedLine: i + 1,
				Message:          "original line decreased relative to a prior instrumented line",
			})
		}
		last = orig
	}
	return violations
}

// Len returns the number of instrumented lines recorded.
func (s *Sourcemap) Len() int { return len(s.lineMap) }
