package report

import (
	"strings"
	"testing"

	"github.com/cybertec-postgresql/covlua/internal/aggregate"
)

func TestLCOVReporterFormat(t *testing.T) {
	s, _ := newTestStore(t)
	summary := aggregate.SummarizeGlobal(s)

	out, err := NewLCOVReporter().FormatString(summary, s)
	if err != nil {
		t.Fatalf("FormatString: %v", err)
	}

	if !strings.Contains(out, "SF:/scripts/math.lua") {
		t.Errorf("missing SF record:\n%s", out)
	}
	if !strings.Contains(out, "DA:1,1") {
		t.Errorf("missing DA record for executed line 1:\n%s", out)
	}
	if !strings.Contains(out, "DA:2,1") {
		t.Errorf("missing DA record for covered line 2:\n%s", out)
	}
	if !strings.Contains(out, "FN:1,add") {
		t.Errorf("missing FN record:\n%s", out)
	}
	if !strings.Contains(out, "FNDA:1,add") {
		t.Errorf("missing FNDA record:\n%s", out)
	}
	if !strings.Contains(out, "LF:2") || !strings.Contains(out, "LH:2") {
		t.Errorf("unexpected LF/LH totals:\n%s", out)
	}
	if !strings.Contains(out, "end_of_record") {
		t.Errorf("missing end_of_record:\n%s", out)
	}
}

func TestLCOVReporterMissingFile(t *testing.T) {
	s, _ := newTestStore(t)
	summary := aggregate.SummarizeGlobal(s)
	summary.Files = append(summary.Files, aggregate.FileSummary{Path: "/scripts/unregistered.lua"})

	out, err := NewLCOVReporter().FormatString(summary, s)
	if err != nil {
		t.Fatalf("FormatString: %v", err)
	}
	if strings.Count(out, "end_of_record") != 2 {
		t.Errorf("expected 2 end_of_record blocks, got:\n%s", out)
	}
}

func TestLCOVReporterName(t *testing.T) {
	if got := NewLCOVReporter().Name(); got != "lcov" {
		t.Errorf("Name() = %q, want lcov", got)
	}
}
