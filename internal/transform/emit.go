package transform

import (
	"fmt"
	"strings"

	"github.com/cybertec-postgresql/covlua/internal/ast"
)

// exprText re-emits an expression as Lua source. It is only ever asked to
// round-trip what the parser itself produced, so it does not need to
// reconstruct original whitespace or comments (spec.md §4.2: "whitespace
// and original comments are NOT preserved").
func exprText(n ast.Node) string {
	switch e := n.(type) {
	case *ast.Nil:
		return "nil"
	case *ast.Boolean:
		if e.Value {
			return "true"
		}
		return "false"
	case *ast.Dots:
		return "..."
	case *ast.Number:
		return e.Text
	case *ast.String:
		return quoteString(e.Value)
	case *ast.Id:
		return e.Name
	case *ast.Paren:
		return "(" + exprText(e.Inner) + ")"
	case *ast.Index:
		if e.Dot {
			if s, ok := e.Key.(*ast.String); ok {
				return exprText(e.Obj) + "." + s.Value
			}
		}
		return exprText(e.Obj) + "[" + exprText(e.Key) + "]"
	case *ast.Op:
		if e.Lhs == nil {
			sep := " "
			if e.Operator == "#" || e.Operator == "-" {
				sep = ""
			}
			return e.Operator + sep + exprText(e.Rhs)
		}
		return exprText(e.Lhs) + " " + e.Operator + " " + exprText(e.Rhs)
	case *ast.Call:
		return exprText(e.Fn) + "(" + exprListText(e.Args) + ")"
	case *ast.Invoke:
		return exprText(e.Obj) + ":" + e.Method + "(" + exprListText(e.Args) + ")"
	case *ast.Function:
		return functionLiteralHeader(e) + " ... end"
	case *ast.Table:
		return tableText(e)
	case *ast.Pair:
		if s, ok := e.Key.(*ast.String); ok && isIdentLike(s.Value) {
			return s.Value + " = " + exprText(e.Value)
		}
		return "[" + exprText(e.Key) + "] = " + exprText(e.Value)
	case *ast.ExpList:
		return exprListText(e.Exprs)
	default:
		return ""
	}
}

func functionLiteralHeader(fn *ast.Function) string {
	return "function(" + strings.Join(fn.Params, ", ") + func() string {
		if fn.IsVararg {
			if len(fn.Params) > 0 {
				return ", ..."
			}
			return "..."
		}
		return ""
	}() + ")"
}

func tableText(t *ast.Table) string {
	parts := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		parts[i] = exprText(f)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func exprListText(exprs []ast.Node) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = exprText(e)
	}
	return strings.Join(parts, ", ")
}

func isIdentLike(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		isAlpha := c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		isDigit := c >= '0' && c <= '9'
		if i == 0 && !isAlpha {
			return false
		}
		if !isAlpha && !isDigit {
			return false
		}
	}
	return true
}

// quoteString re-escapes a string literal's already-unescaped contents
// back into a double-quoted Lua literal, per spec.md §4.2's "string
// literals (double-quoted with standard escapes)".
func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case 0:
			b.WriteString(`\0`)
		default:
			if r < 0x20 {
				fmt.Fprintf(&b, `\%d`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

func namesWithAttribs(names, attribs []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		if i < len(attribs) && attribs[i] != "" {
			parts[i] = n + " <" + attribs[i] + ">"
		} else {
			parts[i] = n
		}
	}
	return strings.Join(parts, ", ")
}
