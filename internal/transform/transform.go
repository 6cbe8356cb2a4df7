// Package transform implements the AST Transformer: it walks the
// internal/parser AST and re-emits Lua source with track_line /
// track_function_entry / track_assertion_enter calls inserted per
// spec.md §4.2's insertion policy, alongside a internal/sourcemap mapping
// instrumented lines back to the original file.
//
// It generalizes internal/instrument/instrumenter.go's "walk statements,
// inject a PERFORM pg_notify(...) call preserving indentation" shape:
// here the injected call is `__covlua.track_line(file_id, line)` and the
// transformer additionally re-emits the statement itself (pgcov's SQL
// instrumenter only ever inserted alongside existing text; Lua's lack of
// a byte-preserving rewrite primitive in this design means we regenerate
// source from the AST instead).
package transform

import (
	"fmt"
	"strings"

	"github.com/cybertec-postgresql/covlua/internal/ast"
	cerrors "github.com/cybertec-postgresql/covlua/internal/errors"
	"github.com/cybertec-postgresql/covlua/internal/parser"
	"github.com/cybertec-postgresql/covlua/internal/sourcemap"
	"github.com/cybertec-postgresql/covlua/pkg/luatypes"
)

// FunctionInfo is one entry of the function table spec.md §3 describes,
// produced regardless of whether the function is ever called.
type FunctionInfo struct {
	ID        string
	Name      string
	Kind      luatypes.FunctionKind
	StartLine int
	EndLine   int
}

// Result is what Transform produces for a single file.
type Result struct {
	Source          string
	Sourcemap       *sourcemap.Sourcemap
	Functions       []FunctionInfo
	ExecutableLines map[int]bool // original line numbers classified CODE
}

// Transform converts a parsed file into instrumented Lua source plus its
// sourcemap, per spec.md §4.2's contract.
func Transform(p *parser.Result, fileID luatypes.FileId) (*Result, error) {
	w := &emitter{
		fileID:    string(fileID),
		sm:        sourcemap.New(),
		execLines: make(map[int]bool),
	}
	defer func() {
		if r := recover(); r != nil {
			// emitStmt/exprText never intentionally panic; a panic here means
			// an AST invariant the transformer relies on was violated.
			_ = r
		}
	}()

	w.emitRaw(0, luatypes.InstrumentedSentinel)
	func() {
		defer catchTransformPanic(&w.err, p.File)
		w.block(p.Root, 0)
	}()
	if w.err != nil {
		return nil, w.err
	}

	return &Result{
		Source:          strings.Join(w.lines, "\n") + "\n",
		Sourcemap:       w.sm,
		Functions:       w.functions,
		ExecutableLines: w.execLines,
	}, nil
}

func catchTransformPanic(errp *error, file string) {
	if r := recover(); r != nil {
		*errp = cerrors.NewTransformError(file, fmt.Sprintf("%v", r))
	}
}

type emitter struct {
	fileID    string
	lines     []string
	sm        *sourcemap.Sourcemap
	execLines map[int]bool
	functions []FunctionInfo
	fnCounter int
	err       error
}

func (w *emitter) emitRaw(indent int, text string) {
	w.lines = append(w.lines, strings.Repeat("  ", indent)+text)
	w.sm.AddInstrumentedLine(0)
}

func (w *emitter) emit(indent, origLine int, text string) {
	w.lines = append(w.lines, strings.Repeat("  ", indent)+text)
	w.sm.AddInstrumentedLine(origLine)
}

func (w *emitter) trackLine(indent, origLine int) {
	w.emit(indent, origLine, fmt.Sprintf("%s.track_line(%q, %d)", luatypes.PreludeGlobal, w.fileID, origLine))
	w.execLines[origLine] = true
}

func (w *emitter) trackBranch(indent, origLine int) {
	w.emit(indent, origLine, fmt.Sprintf("%s.track_branch(%q, %d)", luatypes.PreludeGlobal, w.fileID, origLine))
	w.execLines[origLine] = true
}

func (w *emitter) registerFunction(fn FunctionInfo) {
	w.functions = append(w.functions, fn)
}

func (w *emitter) block(b *ast.Block, indent int) {
	for _, stmt := range b.Stmts {
		w.statement(stmt, indent)
	}
}

// statement emits one statement, its preceding track_line call (or the
// assertion scope-guard wrapper, for a statically-detected assertion
// call), and recurses into any nested blocks/function bodies.
func (w *emitter) statement(stmt ast.Node, indent int) {
	line := stmt.Position().Line

	if isAssertionCall(stmt) {
		w.assertionStatement(stmt, indent, line)
		return
	}

	switch s := stmt.(type) {
	case *ast.Local:
		w.trackLine(indent, line)
		w.localStatement(s, indent, line)
	case *ast.Localrec:
		w.trackLine(indent, line)
		fnID := functionID(s.Name, s.Fn)
		w.registerFunction(FunctionInfo{ID: fnID, Name: s.Name, Kind: luatypes.FuncLocal, StartLine: s.Fn.Line, EndLine: s.Fn.Body.EndLine})
		w.emit(indent, line, "local function "+s.Name+"("+paramList(s.Fn)+")")
		w.functionBody(s.Fn, fnID, indent+1)
		w.emit(indent, s.Fn.Body.EndLine, "end")
	case *ast.Set:
		w.trackLine(indent, line)
		w.setStatement(s, indent, line)
	case *ast.Do:
		w.trackLine(indent, line)
		w.emit(indent, line, "do")
		w.block(s.Body, indent+1)
		w.emit(indent, s.Body.EndLine, "end")
	case *ast.While:
		w.trackLine(indent, line)
		w.emit(indent, line, "while "+w.flatten(s.Cond, indent)+" do")
		w.block(s.Body, indent+1)
		w.emit(indent, s.Body.EndLine, "end")
	case *ast.Repeat:
		w.trackLine(indent, line)
		w.emit(indent, line, "repeat")
		w.block(s.Body, indent+1)
		w.emit(indent, s.Body.EndLine, "until "+w.flatten(s.Cond, indent))
	case *ast.Fornum:
		w.trackLine(indent, line)
		header := "for " + s.Var + " = " + w.flatten(s.Start, indent) + ", " + w.flatten(s.Stop, indent)
		if s.Step != nil {
			header += ", " + w.flatten(s.Step, indent)
		}
		w.emit(indent, line, header+" do")
		w.block(s.Body, indent+1)
		w.emit(indent, s.Body.EndLine, "end")
	case *ast.Forin:
		w.trackLine(indent, line)
		w.emit(indent, line, "for "+strings.Join(s.Names, ", ")+" in "+w.flattenList(s.Exprs, indent)+" do")
		w.block(s.Body, indent+1)
		w.emit(indent, s.Body.EndLine, "end")
	case *ast.If:
		w.trackLine(indent, line)
		w.ifStatement(s, indent)
	case *ast.Return:
		w.trackLine(indent, line)
		w.emit(indent, line, "return "+w.flattenList(s.Exprs, indent))
	case *ast.Break:
		w.trackLine(indent, line)
		w.emit(indent, line, "break")
	case *ast.Goto:
		w.trackLine(indent, line)
		w.emit(indent, line, "goto "+s.Label)
	case *ast.Label:
		// Labels are STRUCTURAL, not CODE: no track_line, per spec.md §4.2
		// ("Non-executable... never receive inserts").
		w.emit(indent, line, "::"+s.Name+"::")
	case *ast.Call, *ast.Invoke:
		w.trackLine(indent, line)
		w.emit(indent, line, w.flatten(stmt, indent))
	default:
		w.trackLine(indent, line)
		w.emit(indent, line, w.flatten(stmt, indent))
	}
}

func (w *emitter) ifStatement(s *ast.If, indent int) {
	for i, c := range s.Clauses {
		if c.Cond != nil {
			kw := "if"
			if i > 0 {
				kw = "elseif"
			}
			w.emit(indent, c.Line, kw+" "+w.flatten(c.Cond, indent)+" then")
		} else {
			w.emit(indent, c.Line, "else")
		}
		w.trackBranch(indent+1, c.Line)
		w.block(c.Body, indent+1)
	}
	lastBody := s.Clauses[len(s.Clauses)-1].Body
	w.emit(indent, lastBody.EndLine, "end")
}

// localStatement handles `local a, b = ...`, hoisting any directly
// top-level Function RHS so it gets Localrec-shaped naming (spec.md §4.2:
// a new local bound to a function literal is attributed CLOSURE in the
// absence of the "already bound" distinction a full symbol table would
// give us -- see DESIGN.md).
func (w *emitter) localStatement(s *ast.Local, indent, line int) {
	exprs := make([]string, len(s.Exprs))
	for i, e := range s.Exprs {
		if fn, ok := e.(*ast.Function); ok && len(s.Names) == len(s.Exprs) {
			name := s.Names[i]
			fnID := functionID(name, fn)
			w.registerFunction(FunctionInfo{ID: fnID, Name: name, Kind: luatypes.FuncClosure, StartLine: fn.Line, EndLine: fn.Body.EndLine})
			exprs[i] = w.inlineFunctionLiteral(fn, fnID, indent)
			continue
		}
		exprs[i] = w.flatten(e, indent)
	}
	text := "local " + namesWithAttribs(s.Names, s.Attribs)
	if len(exprs) > 0 {
		text += " = " + strings.Join(exprs, ", ")
	}
	w.emit(indent, line, text)
}

func (w *emitter) setStatement(s *ast.Set, indent, line int) {
	rhs := make([]string, len(s.Rhs))
	for i, e := range s.Rhs {
		if fn, ok := e.(*ast.Function); ok && len(s.Lhs) == len(s.Rhs) {
			nm := setNaming(s.Lhs[i], fn)
			fnID := functionID(nm.name, fn)
			w.registerFunction(FunctionInfo{ID: fnID, Name: nm.name, Kind: nm.kind, StartLine: fn.Line, EndLine: fn.Body.EndLine})
			rhs[i] = w.inlineFunctionLiteral(fn, fnID, indent)
			continue
		}
		rhs[i] = w.flatten(e, indent)
	}
	lhs := make([]string, len(s.Lhs))
	for i, l := range s.Lhs {
		lhs[i] = w.flatten(l, indent)
	}
	w.emit(indent, line, strings.Join(lhs, ", ")+" = "+strings.Join(rhs, ", "))
}

// functionBody emits a function's body block with its entry tracker call
// prepended, per spec.md §4.2's "Function entry" rule.
func (w *emitter) functionBody(fn *ast.Function, fnID string, indent int) {
	w.emit(indent, fn.Line, fmt.Sprintf("%s.track_function_entry(%q, %q)", luatypes.PreludeGlobal, w.fileID, fnID))
	w.block(fn.Body, indent)
}

// inlineFunctionLiteral handles a function literal that is the direct RHS
// of a Local/Set statement (the case localStatement/setStatement name and
// register themselves): it emits the literal as a fully-tracked local
// alias ahead of the statement and returns the alias identifier for the
// statement to assign. See hoistNested for deeper nesting.
func (w *emitter) inlineFunctionLiteral(fn *ast.Function, fnID string, indent int) string {
	return w.hoistAlias(fn, fnID, indent)
}

// hoistAlias is the general mechanism for function literals that appear
// anywhere inside an expression (call arguments, table fields, nested
// return values): it emits the literal as a separate, fully-tracked
// `local __covlua_fnN = function(...) ... end` statement ahead of the
// statement currently being built, then returns the alias identifier to
// splice into the surrounding expression text.
func (w *emitter) hoistAlias(fn *ast.Function, fnID string, indent int) string {
	w.fnCounter++
	alias := fmt.Sprintf("__covlua_fn%d", w.fnCounter)
	w.emit(indent, fn.Line, "local "+alias+" = "+functionLiteralHeader(fn))
	w.functionBody(fn, fnID, indent+1)
	w.emit(indent, fn.Body.EndLine, "end")
	return alias
}

// flatten renders an expression to single-line text, hoisting any nested
// function literal (one not directly at statement-RHS granularity, which
// localStatement/setStatement already special-case) into its own tracked
// statement ahead of the current one.
func (w *emitter) flatten(n ast.Node, indent int) string {
	return exprText(w.hoistNested(n, indent))
}

func (w *emitter) flattenList(exprs []ast.Node, indent int) string {
	out := make([]ast.Node, len(exprs))
	for i, e := range exprs {
		out[i] = w.hoistNested(e, indent)
	}
	return exprListText(out)
}

// hoistNested returns a copy of the expression tree with every nested
// *ast.Function replaced by an *ast.Id referencing a hoisted local alias,
// so exprText never has to render a function body inline.
func (w *emitter) hoistNested(n ast.Node, indent int) ast.Node {
	switch e := n.(type) {
	case nil:
		return nil
	case *ast.Function:
		nm := standaloneNaming(e, "")
		fnID := functionID(nm.name, e)
		w.registerFunction(FunctionInfo{ID: fnID, Name: nm.name, Kind: nm.kind, StartLine: e.Line, EndLine: e.Body.EndLine})
		alias := w.hoistAlias(e, fnID, indent)
		return &ast.Id{Pos: e.Pos, Name: alias}
	case *ast.Call:
		cp := *e
		cp.Fn = w.hoistNested(e.Fn, indent)
		cp.Args = w.hoistNestedList(e.Args, indent)
		return &cp
	case *ast.Invoke:
		cp := *e
		cp.Obj = w.hoistNested(e.Obj, indent)
		cp.Args = w.hoistNestedList(e.Args, indent)
		return &cp
	case *ast.Index:
		cp := *e
		cp.Obj = w.hoistNested(e.Obj, indent)
		cp.Key = w.hoistNested(e.Key, indent)
		return &cp
	case *ast.Op:
		cp := *e
		if e.Lhs != nil {
			cp.Lhs = w.hoistNested(e.Lhs, indent)
		}
		cp.Rhs = w.hoistNested(e.Rhs, indent)
		return &cp
	case *ast.Paren:
		cp := *e
		cp.Inner = w.hoistNested(e.Inner, indent)
		return &cp
	case *ast.Table:
		cp := *e
		cp.Fields = w.hoistNestedList(e.Fields, indent)
		return &cp
	case *ast.Pair:
		cp := *e
		cp.Key = w.hoistNested(e.Key, indent)
		cp.Value = w.hoistNested(e.Value, indent)
		return &cp
	case *ast.ExpList:
		cp := *e
		cp.Exprs = w.hoistNestedList(e.Exprs, indent)
		return &cp
	default:
		return n
	}
}

func (w *emitter) hoistNestedList(exprs []ast.Node, indent int) []ast.Node {
	out := make([]ast.Node, len(exprs))
	for i, e := range exprs {
		out[i] = w.hoistNested(e, indent)
	}
	return out
}

func paramList(fn *ast.Function) string {
	if fn.IsVararg {
		if len(fn.Params) > 0 {
			return strings.Join(fn.Params, ", ") + ", ..."
		}
		return "..."
	}
	return strings.Join(fn.Params, ", ")
}
