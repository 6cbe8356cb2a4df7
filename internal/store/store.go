// Package store implements the Runtime Data Store: the process-wide
// Global Store of File Records spec.md §3/§4.6 describes, mutex-guarded
// the way internal/coverage/collector.go's Collector guarded its
// FileHits map for parallel test runs, generalized from a flat hit-count
// map to a per-line bitset-plus-count model that distinguishes EXECUTED
// from COVERED.
package store

import (
	"sync"

	"github.com/cybertec-postgresql/covlua/internal/sourcemap"
	"github.com/cybertec-postgresql/covlua/pkg/luatypes"
)

// LineFlags is a two-bit set: bit 0 EXECUTED, bit 1 COVERED. COVERED
// implies EXECUTED (invariant P1 / spec.md §3 invariant 1).
type LineFlags uint8

const (
	FlagExecuted LineFlags = 1 << iota
	FlagCovered
)

func (f LineFlags) Executed() bool { return f&FlagExecuted != 0 }
func (f LineFlags) Covered() bool  { return f&FlagCovered != 0 }

// LineRecord is the per-line state spec.md §3 describes.
type LineRecord struct {
	Kind           luatypes.LineKind
	Flags          LineFlags
	ExecutionCount int
}

// FunctionRecord tracks one function's executed/covered state.
type FunctionRecord struct {
	ID             string
	Name           string
	Kind           luatypes.FunctionKind
	StartLine      int
	EndLine        int
	Executed       bool
	Covered        bool
	ExecutionCount int
}

// FileRecord is one instrumented file's complete coverage state.
type FileRecord struct {
	FileID    luatypes.FileId
	FilePath  string
	Source    string
	LineCount int
	Lines     map[int]*LineRecord
	Functions map[string]*FunctionRecord
	Sourcemap *sourcemap.Sourcemap
}

func newFileRecord(id luatypes.FileId, path, source string, sm *sourcemap.Sourcemap) *FileRecord {
	lineCount := 1
	for _, c := range source {
		if c == '\n' {
			lineCount++
		}
	}
	return &FileRecord{
		FileID:    id,
		FilePath:  path,
		Source:    source,
		LineCount: lineCount,
		Lines:     make(map[int]*LineRecord),
		Functions: make(map[string]*FunctionRecord),
		Sourcemap: sm,
	}
}

func (fr *FileRecord) line(n int) *LineRecord {
	l, ok := fr.Lines[n]
	if !ok {
		l = &LineRecord{Kind: luatypes.LineCode}
		fr.Lines[n] = l
	}
	return l
}

// AssertionRecord is the ephemeral per-call record spec.md §3 describes.
type AssertionRecord struct {
	TestFile      string
	TestLine      int
	AssertionKind string
	CoveredLines  map[luatypes.FileId]map[int]bool
}

// Store is the Global Store: the sole owner of every File Record.
type Store struct {
	mu sync.Mutex

	files     map[luatypes.FileId]*FileRecord
	executed  map[string]bool // "fileid:line"
	covered   map[string]bool
	assertions []AssertionRecord

	// assertionStack supports nested assertions (spec.md §5): each level
	// keeps its own pre-assertion snapshot of executed lines.
	assertionStack []*pendingAssertion

	// keepExecutionCountOnReset mirrors spec.md §4.6 rule 3: by default
	// reset() zeroes execution_count; a config may opt to preserve it.
	keepExecutionCountOnReset bool
}

type pendingAssertion struct {
	file, line int
	testFile   string
	snapshot   map[string]bool
}

// New creates an empty Global Store.
func New() *Store {
	return &Store{
		files:    make(map[luatypes.FileId]*FileRecord),
		executed: make(map[string]bool),
		covered:  make(map[string]bool),
	}
}

func key(id luatypes.FileId, line int) string {
	return string(id) + ":" + itoa(line)
}

// itoa avoids pulling in strconv for a hot path called on every tracked
// line; kept tiny and allocation-light per spec.md §5's "never suspend,
// allocation-light" requirement on the tracker's call path.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// SplitKey reverses key's "fileid:line" encoding, exported so the
// Assertion Hook can turn ExecutedLines()/PopAssertion() diffs back into
// (file, line) pairs without either package re-deriving the encoding.
func SplitKey(k string) (luatypes.FileId, int, bool) {
	for i := len(k) - 1; i >= 0; i-- {
		if k[i] == ':' {
			n, ok := atoi(k[i+1:])
			if !ok {
				return "", 0, false
			}
			return luatypes.FileId(k[:i]), n, true
		}
	}
	return "", 0, false
}

func atoi(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	neg := false
	i := 0
	if s[0] == '-' {
		neg = true
		i = 1
	}
	if i >= len(s) {
		return 0, false
	}
	n := 0
	for ; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}

// RegisterFile idempotently creates a File Record. Per spec.md §4.6,
// duplicate registration of an already-registered file is a no-op.
func (s *Store) RegisterFile(id luatypes.FileId, path, source string, sm *sourcemap.Sourcemap) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[id]; ok {
		return
	}
	s.files[id] = newFileRecord(id, path, source, sm)
}

// IsRegistered reports whether id already has a File Record, letting the
// Module-Load Interceptor implement spec.md P4's idempotence guard.
func (s *Store) IsRegistered(id luatypes.FileId) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[id]
	return ok
}

// Reset drops all execution/coverage data but keeps registered files.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, fr := range s.files {
		for ln, lr := range fr.Lines {
			count := lr.ExecutionCount
			lr.Flags = 0
			if s.keepExecutionCountOnReset {
				lr.ExecutionCount = count
			} else {
				lr.ExecutionCount = 0
			}
			fr.Lines[ln] = lr
		}
		for _, fn := range fr.Functions {
			fn.Executed, fn.Covered = false, false
			if !s.keepExecutionCountOnReset {
				fn.ExecutionCount = 0
			}
		}
	}
	s.executed = make(map[string]bool)
	s.covered = make(map[string]bool)
	s.assertions = nil
	s.assertionStack = nil
}

// FullReset drops everything, including registered files.
func (s *Store) FullReset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = make(map[luatypes.FileId]*FileRecord)
	s.executed = make(map[string]bool)
	s.covered = make(map[string]bool)
	s.assertions = nil
	s.assertionStack = nil
}

// SetPreserveExecutionCount controls whether Reset() keeps execution
// counts across test runs (spec.md §4.6 rule 3).
func (s *Store) SetPreserveExecutionCount(keep bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keepExecutionCountOnReset = keep
}

// RecordExecution sets EXECUTED on (fileID, line) and increments its hit
// count, unless the line's classification is non-executable (spec.md
// §4.6 rule 1). Safe to call before the line's kind has been classified:
// an unclassified line defaults to CODE and is reclassified lazily by the
// aggregator.
func (s *Store) RecordExecution(id luatypes.FileId, line int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, ok := s.files[id]
	if !ok {
		return
	}
	lr := fr.line(line)
	if lr.Kind != luatypes.LineCode {
		return
	}
	lr.Flags |= FlagExecuted
	lr.ExecutionCount++
	s.executed[key(id, line)] = true
}

// RecordCoverage sets COVERED (and, by invariant, EXECUTED) on
// (fileID, line). This is the only path that ever sets COVERED.
func (s *Store) RecordCoverage(id luatypes.FileId, line int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, ok := s.files[id]
	if !ok {
		return
	}
	lr := fr.line(line)
	if lr.Kind != luatypes.LineCode {
		return
	}
	lr.Flags |= FlagExecuted | FlagCovered
	k := key(id, line)
	s.executed[k] = true
	s.covered[k] = true
}

// SetLineKind classifies a line, used by the aggregator once it has
// re-read the source and consulted the parser for executable positions.
// If the line was already recorded as EXECUTED/COVERED under a default
// CODE classification and turns out to be non-executable, its flags are
// cleared to preserve invariant 3.
func (s *Store) SetLineKind(id luatypes.FileId, line int, kind luatypes.LineKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, ok := s.files[id]
	if !ok {
		return
	}
	lr := fr.line(line)
	lr.Kind = kind
	if kind != luatypes.LineCode {
		lr.Flags = 0
		lr.ExecutionCount = 0
		k := key(id, line)
		delete(s.executed, k)
		delete(s.covered, k)
	}
}

// RegisterFunction idempotently creates a FunctionRecord so a function
// that is never called still appears in reports as not-executed, rather
// than being absent entirely.
func (s *Store) RegisterFunction(id luatypes.FileId, functionID, name string, kind luatypes.FunctionKind, startLine, endLine int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, ok := s.files[id]
	if !ok {
		return
	}
	if _, ok := fr.Functions[functionID]; ok {
		return
	}
	fr.Functions[functionID] = &FunctionRecord{ID: functionID, Name: name, Kind: kind, StartLine: startLine, EndLine: endLine}
}

// RecordFunctionEntry marks a function as executed and bumps its count.
func (s *Store) RecordFunctionEntry(id luatypes.FileId, functionID, name string, kind luatypes.FunctionKind, startLine, endLine int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, ok := s.files[id]
	if !ok {
		return
	}
	fn, ok := fr.Functions[functionID]
	if !ok {
		fn = &FunctionRecord{ID: functionID, Name: name, Kind: kind, StartLine: startLine, EndLine: endLine}
		fr.Functions[functionID] = fn
	}
	fn.Executed = true
	fn.ExecutionCount++
}

// PromoteFunctionCoverage marks a function covered, called when any of
// its lines are promoted to COVERED by a passing assertion.
func (s *Store) PromoteFunctionCoverage(id luatypes.FileId, line int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, ok := s.files[id]
	if !ok {
		return
	}
	for _, fn := range fr.Functions {
		if line >= fn.StartLine && line <= fn.EndLine {
			fn.Covered = true
		}
	}
}

// GetLineState classifies a single line for reporting.
func (s *Store) GetLineState(id luatypes.FileId, line int) luatypes.LineState {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, ok := s.files[id]
	if !ok {
		return luatypes.StateNotCovered
	}
	lr, ok := fr.Lines[line]
	if !ok {
		return luatypes.StateNotCovered
	}
	if lr.Kind != luatypes.LineCode {
		return luatypes.StateNonExecutable
	}
	switch {
	case lr.Flags.Covered():
		return luatypes.StateCovered
	case lr.Flags.Executed():
		return luatypes.StateExecuted
	default:
		return luatypes.StateNotCovered
	}
}

// GetFileData returns a read-only snapshot of a File Record.
func (s *Store) GetFileData(id luatypes.FileId) (*FileRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fr, ok := s.files[id]
	return fr, ok
}

// Files returns every registered FileId, for iterating the whole store.
func (s *Store) Files() []luatypes.FileId {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]luatypes.FileId, 0, len(s.files))
	for id := range s.files {
		ids = append(ids, id)
	}
	return ids
}

// ExecutedLines returns a copy of the global executed-lines set, used by
// the Assertion Hook to snapshot before/after an assertion call.
func (s *Store) ExecutedLines() map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(map[string]bool, len(s.executed))
	for k := range s.executed {
		cp[k] = true
	}
	return cp
}

// PushAssertion begins tracking a new (possibly nested) assertion's
// dynamic extent, snapshotting the current executed set.
func (s *Store) PushAssertion(testFile string, testLine int) {
	snap := s.ExecutedLines()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assertionStack = append(s.assertionStack, &pendingAssertion{
		file: testLine, testFile: testFile, line: testLine, snapshot: snap,
	})
}

// PopAssertion ends the innermost assertion's dynamic extent and returns
// the set of lines (as "fileid:line" keys) newly executed since its
// PushAssertion snapshot.
func (s *Store) PopAssertion() (testFile string, testLine int, newly map[string]bool) {
	after := s.ExecutedLines()
	s.mu.Lock()
	n := len(s.assertionStack)
	if n == 0 {
		s.mu.Unlock()
		return "", 0, nil
	}
	top := s.assertionStack[n-1]
	s.assertionStack = s.assertionStack[:n-1]
	s.mu.Unlock()

	newly = make(map[string]bool)
	for k := range after {
		if !top.snapshot[k] {
			newly[k] = true
		}
	}
	return top.testFile, top.line, newly
}

// InAssertion reports whether an assertion is currently being tracked
// (spec.md §3 invariant 6's current_assertion non-nullness).
func (s *Store) InAssertion() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.assertionStack) > 0
}

// AppendAssertion records a completed, passing assertion to the
// append-only assertions log.
func (s *Store) AppendAssertion(rec AssertionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assertions = append(s.assertions, rec)
}

// Assertions returns a copy of the assertions log.
func (s *Store) Assertions() []AssertionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AssertionRecord(nil), s.assertions...)
}
