package report

import (
	"encoding/xml"
	"io"
	"sort"
	"strings"

	"github.com/cybertec-postgresql/covlua/internal/aggregate"
	"github.com/cybertec-postgresql/covlua/internal/store"
	"github.com/cybertec-postgresql/covlua/pkg/luatypes"
)

// CoberturaReporter formats the coverage summary as Cobertura XML, the
// format Jenkins/GitLab/most CI coverage plugins already understand.
// covlua has no notion of packages, so every file is emitted as its own
// single-class package, same shape the Cobertura spec allows for
// non-OO languages.
type CoberturaReporter struct{}

// NewCoberturaReporter creates a new Cobertura XML reporter.
func NewCoberturaReporter() *CoberturaReporter {
	return &CoberturaReporter{}
}

type coberturaCoverage struct {
	XMLName         xml.Name            `xml:"coverage"`
	LineRate        float64             `xml:"line-rate,attr"`
	BranchRate      float64             `xml:"branch-rate,attr"`
	LinesCovered    int                 `xml:"lines-covered,attr"`
	LinesValid      int                 `xml:"lines-valid,attr"`
	Version         string              `xml:"version,attr"`
	Timestamp       int64               `xml:"timestamp,attr"`
	Packages        coberturaPackages   `xml:"packages"`
}

type coberturaPackages struct {
	Package []coberturaPackage `xml:"package"`
}

type coberturaPackage struct {
	Name       string           `xml:"name,attr"`
	LineRate   float64          `xml:"line-rate,attr"`
	BranchRate float64          `xml:"branch-rate,attr"`
	Classes    coberturaClasses `xml:"classes"`
}

type coberturaClasses struct {
	Class []coberturaClass `xml:"class"`
}

type coberturaClass struct {
	Name     string         `xml:"name,attr"`
	Filename string         `xml:"filename,attr"`
	LineRate float64        `xml:"line-rate,attr"`
	Methods  coberturaMethods `xml:"methods"`
	Lines    coberturaLines `xml:"lines"`
}

type coberturaMethods struct {
	Method []coberturaMethod `xml:"method"`
}

type coberturaMethod struct {
	Name     string         `xml:"name,attr"`
	Signature string        `xml:"signature,attr"`
	LineRate float64        `xml:"line-rate,attr"`
	Lines    coberturaLines `xml:"lines"`
}

type coberturaLines struct {
	Line []coberturaLine `xml:"line"`
}

type coberturaLine struct {
	Number int    `xml:"number,attr"`
	Hits   int    `xml:"hits,attr"`
	Branch bool   `xml:"branch,attr,omitempty"`
}

// Format writes summary as Cobertura XML to writer.
func (r *CoberturaReporter) Format(summary aggregate.GlobalSummary, s *store.Store, writer io.Writer) error {
	doc := buildCobertura(summary, s)
	if _, err := writer.Write([]byte(xml.Header)); err != nil {
		return err
	}
	enc := xml.NewEncoder(writer)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := writer.Write([]byte("\n"))
	return err
}

func buildCobertura(summary aggregate.GlobalSummary, s *store.Store) coberturaCoverage {
	doc := coberturaCoverage{
		LineRate:     summary.CoveragePercent / 100.0,
		LinesCovered: summary.CoveredLines,
		LinesValid:   summary.ExecutableLines,
		Version:      "covlua",
	}

	files := append([]aggregate.FileSummary(nil), summary.Files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	for _, fs := range files {
		class := buildCoberturaClass(fs, s)
		doc.Packages.Package = append(doc.Packages.Package, coberturaPackage{
			Name:     fs.Path,
			LineRate: class.LineRate,
			Classes:  coberturaClasses{Class: []coberturaClass{class}},
		})
	}
	return doc
}

func buildCoberturaClass(fs aggregate.FileSummary, s *store.Store) coberturaClass {
	class := coberturaClass{
		Name:     classNameFor(fs.Path),
		Filename: fs.Path,
		LineRate: fs.CoveragePercent / 100.0,
	}

	fns := append([]aggregate.FunctionSummary(nil), fs.Functions...)
	sort.Slice(fns, func(i, j int) bool { return fns[i].StartLine < fns[j].StartLine })
	for _, fn := range fns {
		rate := 0.0
		if fn.Covered {
			rate = 1.0
		}
		hits := fn.ExecutionCount
		if fn.Executed && hits == 0 {
			hits = 1
		}
		class.Methods.Method = append(class.Methods.Method, coberturaMethod{
			Name:      fn.Name,
			Signature: "()",
			LineRate:  rate,
			Lines:     coberturaLines{Line: []coberturaLine{{Number: fn.StartLine, Hits: hits}}},
		})
	}

	id := storeFileID(fs.Path)
	fr, ok := s.GetFileData(id)
	if !ok {
		return class
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
		hits := 0
		if lr.Flags.Covered() {
			hits = lr.ExecutionCount
			if hits == 0 {
				hits = 1
			}
		}
		class.Lines.Line = append(class.Lines.Line, coberturaLine{Number: ln, Hits: hits})
	}
	return class
}

// classNameFor derives a Cobertura class name from a file path: the
// base name with its extension stripped, dots in directories left
// alone since Cobertura only cares that the name is stable and unique
// within its package.
func classNameFor(path string) string {
	base := path
	if i := strings.LastIndexAny(base, "/\\"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}

// FormatString returns summary as a Cobertura XML string.
func (r *CoberturaReporter) FormatString(summary aggregate.GlobalSummary, s *store.Store) (string, error) {
	var buf strings.Builder
	if err := r.Format(summary, s, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Name returns "cobertura".
func (r *CoberturaReporter) Name() string {
	return "cobertura"
}
