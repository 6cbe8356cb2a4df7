package report

import (
	"strings"
	"testing"

	"github.com/cybertec-postgresql/covlua/internal/aggregate"
	"github.com/cybertec-postgresql/covlua/pkg/luatypes"
)

func TestGetFormatterDispatch(t *testing.T) {
	cases := map[luatypes.ReportFormat]string{
		luatypes.FormatJSON:      "json",
		luatypes.FormatLCOV:      "lcov",
		luatypes.FormatHTML:      "html",
		luatypes.FormatCobertura: "cobertura",
	}
	for format, name := range cases {
		f, err := GetFormatter(format)
		if err != nil {
			t.Fatalf("GetFormatter(%q): %v", format, err)
		}
		if got := f.Name(); got != name {
			t.Errorf("GetFormatter(%q).Name() = %q, want %q", format, got, name)
		}
	}
}

func TestGetFormatterUnsupported(t *testing.T) {
	if _, err := GetFormatter(luatypes.ReportFormat("yaml")); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestValidFormat(t *testing.T) {
	if !ValidFormat("json") {
		t.Error("json should be valid")
	}
	if ValidFormat("yaml") {
		t.Error("yaml should not be valid")
	}
}

func TestSupportedFormats(t *testing.T) {
	formats := SupportedFormats()
	if len(formats) != 4 {
		t.Errorf("expected 4 supported formats, got %d: %v", len(formats), formats)
	}
}

func TestFormatToWriterAndString(t *testing.T) {
	s, _ := newTestStore(t)
	summary := aggregate.SummarizeGlobal(s)

	var buf strings.Builder
	if err := FormatToWriter(summary, s, luatypes.FormatJSON, &buf); err != nil {
		t.Fatalf("FormatToWriter: %v", err)
	}
	if buf.String() == "" {
		t.Error("expected non-empty JSON output")
	}

	out, err := FormatToString(summary, s, luatypes.FormatLCOV)
	if err != nil {
		t.Fatalf("FormatToString: %v", err)
	}
	if out == "" {
		t.Error("expected non-empty LCOV output")
	}
}
