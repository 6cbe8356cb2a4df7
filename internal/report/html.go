package report

import (
	"fmt"
	"html"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cybertec-postgresql/covlua/internal/aggregate"
	"github.com/cybertec-postgresql/covlua/internal/store"
	"github.com/cybertec-postgresql/covlua/pkg/luatypes"
)

// HTMLReporter formats the coverage summary as a single self-contained
// HTML document: a file selector bar plus one inline syntax-highlighted
// source listing per file, color-coded by the three-state line model.
type HTMLReporter struct {
	title  string
	colors luatypes.ReportColors
}

// NewHTMLReporter creates a new HTML reporter. An empty title falls back
// to "Coverage Report".
func NewHTMLReporter(title string) *HTMLReporter {
	if title == "" {
		title = "Coverage Report"
	}
	return &HTMLReporter{title: title, colors: luatypes.ReportColors{
		Covered: "#4caf50", Executed: "#ffc107", NotCovered: "#f44336",
	}}
}

// WithColors overrides the reporter's palette, e.g. from Config.Colors.
func (r *HTMLReporter) WithColors(c luatypes.ReportColors) *HTMLReporter {
	r.colors = c
	return r
}

// Format writes summary as HTML to writer.
func (r *HTMLReporter) Format(summary aggregate.GlobalSummary, s *store.Store, writer io.Writer) error {
	files := append([]aggregate.FileSummary(nil), summary.Files...)
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	if err := r.writeHeader(summary, files, writer); err != nil {
		return err
	}
	for _, fs := range files {
		if err := r.writeFileDetail(fs, s, writer); err != nil {
			return err
		}
	}
	return r.writeFooter(writer)
}

func (r *HTMLReporter) writeHeader(summary aggregate.GlobalSummary, files []aggregate.FileSummary, writer io.Writer) error {
	timestamp := time.Now().Format(time.RFC1123)

	_, err := fmt.Fprintf(writer, `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif; background: #f5f5f5; color: #333; margin: 0; }
        .topbar { background: #000; color: white; padding: 10px 20px; display: flex; justify-content: space-between; align-items: center; }
        .topbar select { background: #333; color: white; border: 1px solid #555; padding: 5px 10px; border-radius: 3px; }
        .summary-bar { background: #eee; padding: 10px 20px; border-bottom: 1px solid #ccc; }
        .summary-stats { display: inline-block; margin-right: 20px; }
        .summary-stats .label { font-weight: bold; }
        .file-selector { background: white; border-bottom: 1px solid #ccc; padding: 0; }
        .file-selector a { display: block; padding: 10px 20px; text-decoration: none; color: #00f; border-bottom: 1px solid #eee; }
        .file-selector a:hover { background: #f5f5f5; }
        .file-content { background: white; }
        .source-line { display: block; font-family: 'Courier New', Consolas, monospace; font-size: 13px; line-height: 1.5; white-space: pre; padding: 0; border: none; }
        .source-line:hover { background: #f0f0f0; }
        .line-num { display: inline-block; width: 60px; text-align: right; padding-right: 10px; color: #666; user-select: none; background: #f5f5f5; border-right: 1px solid #ddd; }
        .line-count { display: inline-block; width: 80px; text-align: right; padding: 0 10px; user-select: none; font-weight: bold; }
        .line-code { display: inline-block; padding-left: 10px; }
        .cov-covered { background: %s33; }
        .cov-covered .line-count { color: %s; }
        .cov-executed { background: %s33; }
        .cov-executed .line-count { color: %s; }
        .cov-not-covered { background: %s33; }
        .cov-not-covered .line-count { color: %s; }
        .not-tracked { background: #f5f5f5; }
        .not-tracked .line-count { color: #999; }
        .lua-keyword { color: #0000ff; font-weight: bold; }
        .lua-string { color: #a31515; }
        .lua-comment { color: #008000; font-style: italic; }
        .lua-number { color: #098658; }
    </style>
</head>
<body>
    <div class="topbar">
        <span>%s</span>
        <select id="fileSelector" onchange="location.href='#'+this.value">
            <option value="">-- Select file --</option>
`, html.EscapeString(r.title), r.colors.Covered, r.colors.Covered, r.colors.Executed, r.colors.Executed, r.colors.NotCovered, r.colors.NotCovered, html.EscapeString(r.title))
	if err != nil {
		return err
	}

	for _, fs := range files {
		if _, err = fmt.Fprintf(writer, "            <option value=\"%s\">%s</option>\n", html.EscapeString(fs.Path), html.EscapeString(fs.Path)); err != nil {
			return err
		}
	}

	_, err = fmt.Fprintf(writer, `        </select>
    </div>
    <div class="summary-bar">
        <span class="summary-stats"><span class="label">Covered:</span> %.2f%%%%</span>
        <span class="summary-stats"><span class="label">Executed:</span> %.2f%%%%</span>
        <span class="summary-stats"><span class="label">Generated:</span> %s</span>
    </div>
    <div class="file-selector">
`, summary.CoveragePercent, summary.ExecutedPercent, html.EscapeString(timestamp))
	if err != nil {
		return err
	}

	for _, fs := range files {
		if _, err = fmt.Fprintf(writer, "        <a href=\"#%s\">%s (%.2f%%%%)</a>\n", html.EscapeString(fs.Path), html.EscapeString(fs.Path), fs.CoveragePercent); err != nil {
			return err
		}
	}

	_, err = writer.Write([]byte("    </div>\n"))
	return err
}

func (r *HTMLReporter) writeFileDetail(fs aggregate.FileSummary, s *store.Store, writer io.Writer) error {
	_, err := fmt.Fprintf(writer, `    <div class="file-content" id="%s">
        <h2 style="padding: 20px; background: #f0f0f0; border-bottom: 2px solid #ccc; font-family: 'Courier New', monospace;">%s (%.2f%%%%)</h2>
`, html.EscapeString(fs.Path), html.EscapeString(fs.Path), fs.CoveragePercent)
	if err != nil {
		return err
	}

	id := storeFileID(fs.Path)
	fr, ok := s.GetFileData(id)
	if !ok {
		if _, err = fmt.Fprintf(writer, "        <div style=\"padding: 20px; color: #c00;\">No source recorded for %s</div>\n", html.EscapeString(fs.Path)); err != nil {
			return err
		}
		_, err = writer.Write([]byte("    </div>\n"))
		return err
	}

	lines := strings.Split(fr.Source, "\n")
	for i, text := range lines {
		lineNo := i + 1
		state := s.GetLineState(id, lineNo)
		class, count := classAndCount(fr, lineNo, state)
		highlighted := highlightLua(text)
		if _, err = fmt.Fprintf(writer, `        <div class="source-line %s">
            <span class="line-num">%d</span>
            <span class="line-count">%s</span>
            <span class="line-code">%s</span>
        </div>
`, class, lineNo, count, highlighted); err != nil {
			return err
		}
	}

	_, err = writer.Write([]byte("    </div>\n"))
	return err
}

func classAndCount(fr *store.FileRecord, lineNo int, state luatypes.LineState) (string, string) {
	switch state {
	case luatypes.StateCovered:
		return "cov-covered", countFor(fr, lineNo)
	case luatypes.StateExecuted:
		return "cov-executed", countFor(fr, lineNo)
	case luatypes.StateNotCovered:
		if lr, ok := fr.Lines[lineNo]; ok && lr.Kind == luatypes.LineCode {
			return "cov-not-covered", "0"
		}
		return "not-tracked", ""
	default:
		return "not-tracked", ""
	}
}

func countFor(fr *store.FileRecord, lineNo int) string {
	if lr, ok := fr.Lines[lineNo]; ok {
		return fmt.Sprintf("%d", lr.ExecutionCount)
	}
	return "0"
}

var (
	luaKeywordRE = regexp.MustCompile(`(?i)\b(and|break|do|else|elseif|end|false|for|function|goto|if|in|local|nil|not|or|repeat|return|then|true|until|while)\b`)
	luaStringRE  = regexp.MustCompile(`"[^"]*"|'[^']*'`)
	luaCommentRE = regexp.MustCompile(`--.*$`)
	luaNumberRE  = regexp.MustCompile(`\b\d+(\.\d+)?\b`)
)

// highlightLua applies a light, regex-based Lua syntax highlight, in the
// same spirit as the teacher's SQL highlighter: good enough for a report,
// not a real tokenizer.
func highlightLua(line string) string {
	if line == "" {
		return ""
	}
	// Quotes are left unescaped (they are safe in element text) so that
	// luaStringRE can still find string literals.
	line = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;").Replace(line)
	line = luaStringRE.ReplaceAllStringFunc(line, func(m string) string {
		return `<span class="lua-string">` + m + `</span>`
	})
	line = luaKeywordRE.ReplaceAllStringFunc(line, func(m string) string {
		return `<span class="lua-keyword">` + m + `</span>`
	})
	line = luaNumberRE.ReplaceAllStringFunc(line, func(m string) string {
		return `<span class="lua-number">` + m + `</span>`
	})
	line = luaCommentRE.ReplaceAllStringFunc(line, func(m string) string {
		return `<span class="lua-comment">` + m + `</span>`
	})
	return line
}

func (r *HTMLReporter) writeFooter(writer io.Writer) error {
	_, err := writer.Write([]byte("</body>\n</html>\n"))
	return err
}

// FormatString returns summary as an HTML string.
func (r *HTMLReporter) FormatString(summary aggregate.GlobalSummary, s *store.Store) (string, error) {
	var buf strings.Builder
	if err := r.Format(summary, s, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Name returns "html".
func (r *HTMLReporter) Name() string {
	return "html"
}
