package report

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/cybertec-postgresql/covlua/internal/aggregate"
)

func TestCoberturaReporterFormat(t *testing.T) {
	s, _ := newTestStore(t)
	summary := aggregate.SummarizeGlobal(s)

	out, err := NewCoberturaReporter().FormatString(summary, s)
	if err != nil {
		t.Fatalf("FormatString: %v", err)
	}

	if !strings.HasPrefix(out, xml.Header) {
		t.Errorf("missing XML header:\n%s", out)
	}

	var doc coberturaCoverage
	if err := xml.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("output is not valid XML: %v", err)
	}
	if doc.LinesCovered != summary.CoveredLines {
		t.Errorf("lines-covered = %d, want %d", doc.LinesCovered, summary.CoveredLines)
	}
	if len(doc.Packages.Package) != 1 {
		t.Fatalf("expected 1 package, got %d", len(doc.Packages.Package))
	}
	classes := doc.Packages.Package[0].Classes.Class
	if len(classes) != 1 || classes[0].Filename != "/scripts/math.lua" {
		t.Fatalf("unexpected classes: %+v", classes)
	}
	if classes[0].Name != "math" {
		t.Errorf("class name = %q, want math", classes[0].Name)
	}
	if len(classes[0].Methods.Method) != 1 || classes[0].Methods.Method[0].Name != "add" {
		t.Errorf("unexpected methods: %+v", classes[0].Methods.Method)
	}
}

func TestClassNameFor(t *testing.T) {
	cases := map[string]string{
		"/scripts/math.lua":    "math",
		"helpers/string.lua":   "string",
		"bare.lua":             "bare",
		"noext":                "noext",
	}
	for in, want := range cases {
		if got := classNameFor(in); got != want {
			t.Errorf("classNameFor(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCoberturaReporterName(t *testing.T) {
	if got := NewCoberturaReporter().Name(); got != "cobertura" {
		t.Errorf("Name() = %q, want cobertura", got)
	}
}
