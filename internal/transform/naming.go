package transform

import (
	"fmt"

	"github.com/cybertec-postgresql/covlua/internal/ast"
	"github.com/cybertec-postgresql/covlua/pkg/luatypes"
)

// funcNaming is the {name, kind} spec.md §4.2 "Function naming" derives
// from the syntactic context a Function node appears in.
type funcNaming struct {
	name string
	kind luatypes.FunctionKind
}

// localrecNaming covers `local function name() ... end`.
func localrecNaming(name string) funcNaming {
	return funcNaming{name: name, kind: luatypes.FuncLocal}
}

// setNaming covers `name = function() ... end` and `a.b = function() ... end`
// and `function a:b() ... end` (already desugared to Set by the parser),
// distinguishing GLOBAL (bare Id target or a single-hop dotted name) from
// METHOD (colon-declared or a dotted chain of more than one hop,
// best-effort per spec.md §9's open question).
func setNaming(lhs ast.Node, fn *ast.Function) funcNaming {
	switch t := lhs.(type) {
	case *ast.Id:
		return funcNaming{name: t.Name, kind: luatypes.FuncGlobal}
	case *ast.Index:
		dotted, ok := dottedName(t)
		if !ok {
			return funcNaming{name: fmt.Sprintf("anonymous@%d", fn.Line), kind: luatypes.FuncAnonymous}
		}
		if fn.IsMethod {
			return funcNaming{name: dotted, kind: luatypes.FuncMethod}
		}
		// spec.md §9: deeply-nested index chains are under-specified;
		// best-effort dotted name with kind METHOD regardless of depth
		// once more than one Index hop is involved, GLOBAL-ish FUNCTION
		// naming otherwise for a single `a.b` hop.
		if depth(t) > 1 {
			return funcNaming{name: dotted, kind: luatypes.FuncMethod}
		}
		return funcNaming{name: dotted, kind: luatypes.FuncGlobal}
	default:
		return funcNaming{name: fmt.Sprintf("anonymous@%d", fn.Line), kind: luatypes.FuncAnonymous}
	}
}

// standaloneNaming covers a Function appearing directly as an expression,
// not the RHS of a Set/Local/Localrec; ANONYMOUS unless boundName is
// non-empty (the enclosing scope already binds a local of that name),
// in which case CLOSURE.
func standaloneNaming(fn *ast.Function, boundName string) funcNaming {
	if boundName != "" {
		return funcNaming{name: boundName, kind: luatypes.FuncClosure}
	}
	return funcNaming{name: fmt.Sprintf("anonymous@%d", fn.Line), kind: luatypes.FuncAnonymous}
}

func dottedName(idx *ast.Index) (string, bool) {
	var parts []string
	var cur ast.Node = idx
	for {
		switch n := cur.(type) {
		case *ast.Index:
			if !n.Dot {
				return "", false
			}
			s, ok := n.Key.(*ast.String)
			if !ok {
				return "", false
			}
			parts = append([]string{s.Value}, parts...)
			cur = n.Obj
		case *ast.Id:
			parts = append([]string{n.Name}, parts...)
			return join(parts, "."), true
		default:
			return "", false
		}
	}
}

func depth(idx *ast.Index) int {
	d := 0
	var cur ast.Node = idx
	for {
		i, ok := cur.(*ast.Index)
		if !ok {
			return d
		}
		d++
		cur = i.Obj
	}
}

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

// functionID builds the "{name}:{start_line}-{end_line}" identifier
// spec.md §4.2 specifies.
func functionID(name string, fn *ast.Function) string {
	return fmt.Sprintf("%s:%d-%d", name, fn.Line, fn.Body.EndLine)
}
