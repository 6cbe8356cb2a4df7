package parser

import (
	"github.com/cybertec-postgresql/covlua/internal/ast"
	cerrors "github.com/cybertec-postgresql/covlua/internal/errors"
)

// validateGotos walks the tree checking that every goto resolves to a
// label visible somewhere in its enclosing scope stack, and that no block
// declares the same label twice. Function bodies start a fresh scope
// stack: a goto cannot escape into an enclosing function's labels.
func validateGotos(file string, root *ast.Block) error {
	v := &gotoValidator{file: file}
	return v.block(root, nil)
}

type gotoValidator struct{ file string }

// scope is one entry in the goto visibility stack: the set of labels
// declared directly in a block.
type scope struct {
	labels map[string]int // name -> declaring line
}

func (v *gotoValidator) block(b *ast.Block, stack []*scope) error {
	cur := &scope{labels: map[string]int{}}
	// First pass: collect this block's own labels so forward gotos resolve
	// and duplicates are caught regardless of declaration order.
	for _, stmt := range b.Stmts {
		if lbl, ok := stmt.(*ast.Label); ok {
			if _, dup := cur.labels[lbl.Name]; dup {
				return cerrors.NewParseError(v.file, lbl.Line, 0, "label '"+lbl.Name+"' already defined in this scope")
			}
			cur.labels[lbl.Name] = lbl.Line
		}
	}
	newStack := append(stack, cur)

	for _, stmt := range b.Stmts {
		if err := v.stmt(stmt, newStack); err != nil {
			return err
		}
	}
	return nil
}

func labelVisible(stack []*scope, name string) bool {
	for i := len(stack) - 1; i >= 0; i-- {
		if _, ok := stack[i].labels[name]; ok {
			return true
		}
	}
	return false
}

func (v *gotoValidator) stmt(n ast.Node, stack []*scope) error {
	switch s := n.(type) {
	case *ast.Goto:
		if !labelVisible(stack, s.Label) {
			return cerrors.NewParseError(v.file, s.Line, 0, "no visible label '"+s.Label+"' for goto")
		}
	case *ast.Do:
		return v.block(s.Body, stack)
	case *ast.While:
		if err := v.expr(s.Cond); err != nil {
			return err
		}
		return v.block(s.Body, stack)
	case *ast.Repeat:
		if err := v.block(s.Body, stack); err != nil {
			return err
		}
		return v.expr(s.Cond)
	case *ast.Fornum:
		for _, e := range []ast.Node{s.Start, s.Stop, s.Step} {
			if err := v.expr(e); err != nil {
				return err
			}
		}
		return v.block(s.Body, stack)
	case *ast.Forin:
		for _, e := range s.Exprs {
			if err := v.expr(e); err != nil {
				return err
			}
		}
		return v.block(s.Body, stack)
	case *ast.If:
		for _, c := range s.Clauses {
			if c.Cond != nil {
				if err := v.expr(c.Cond); err != nil {
					return err
				}
			}
			if err := v.block(c.Body, stack); err != nil {
				return err
			}
		}
	case *ast.Localrec:
		return v.functionBody(s.Fn)
	case *ast.Set:
		for _, rhs := range s.Rhs {
			if err := v.expr(rhs); err != nil {
				return err
			}
		}
	case *ast.Local:
		for _, rhs := range s.Exprs {
			if err := v.expr(rhs); err != nil {
				return err
			}
		}
	case *ast.Return:
		for _, e := range s.Exprs {
			if err := v.expr(e); err != nil {
				return err
			}
		}
	case *ast.Call:
		for _, a := range s.Args {
			if err := v.expr(a); err != nil {
				return err
			}
		}
	case *ast.Invoke:
		for _, a := range s.Args {
			if err := v.expr(a); err != nil {
				return err
			}
		}
	}
	return nil
}

// expr recurses into expression nodes solely to find and validate nested
// function literals; it does not itself check goto/label rules (those
// only apply to statements within a block).
func (v *gotoValidator) expr(n ast.Node) error {
	switch e := n.(type) {
	case *ast.Function:
		return v.functionBody(e)
	case *ast.Call:
		if err := v.expr(e.Fn); err != nil {
			return err
		}
		for _, a := range e.Args {
			if err := v.expr(a); err != nil {
				return err
			}
		}
	case *ast.Invoke:
		if err := v.expr(e.Obj); err != nil {
			return err
		}
		for _, a := range e.Args {
			if err := v.expr(a); err != nil {
				return err
			}
		}
	case *ast.Index:
		if err := v.expr(e.Obj); err != nil {
			return err
		}
		return v.expr(e.Key)
	case *ast.Op:
		if e.Lhs != nil {
			if err := v.expr(e.Lhs); err != nil {
				return err
			}
		}
		return v.expr(e.Rhs)
	case *ast.Paren:
		return v.expr(e.Inner)
	case *ast.Table:
		for _, f := range e.Fields {
			if err := v.expr(f); err != nil {
				return err
			}
		}
	case *ast.Pair:
		if err := v.expr(e.Key); err != nil {
			return err
		}
		return v.expr(e.Value)
	case *ast.ExpList:
		for _, x := range e.Exprs {
			if err := v.expr(x); err != nil {
				return err
			}
		}
	}
	return nil
}

// functionBody starts a fresh goto scope stack for a nested function,
// since labels do not cross function boundaries.
func (v *gotoValidator) functionBody(fn *ast.Function) error {
	return v.block(fn.Body, nil)
}
