package parser

import (
	"github.com/cybertec-postgresql/covlua/internal/ast"
	"github.com/cybertec-postgresql/covlua/internal/lexer"
)

func (p *parser) parseStatement() (ast.Node, error) {
	if err := p.checkBudget(); err != nil {
		return nil, err
	}
	switch p.tok.Type {
	case lexer.TokSemi:
		p.advance()
		return nil, nil
	case lexer.TokDColon:
		return p.parseLabel()
	case lexer.TokBreak:
		pos := p.startPos()
		p.advance()
		if p.loopDepth == 0 {
			return nil, p.errf("break outside loop")
		}
		return &ast.Break{Pos: pos}, nil
	case lexer.TokGoto:
		return p.parseGoto()
	case lexer.TokDo:
		return p.parseDo()
	case lexer.TokWhile:
		return p.parseWhile()
	case lexer.TokRepeat:
		return p.parseRepeat()
	case lexer.TokIf:
		return p.parseIf()
	case lexer.TokFor:
		return p.parseFor()
	case lexer.TokFunction:
		return p.parseFunctionStat()
	case lexer.TokLocal:
		return p.parseLocal()
	default:
		return p.parseExprStatement()
	}
}

func (p *parser) startPos() ast.Pos {
	return ast.Pos{StartPos: p.tok.Pos, Line: p.tok.Line}
}

func (p *parser) parseLabel() (ast.Node, error) {
	pos := p.startPos()
	p.advance() // ::
	name, err := p.expect(lexer.TokIdent, "label name")
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokDColon, "'::'"); err != nil {
		return nil, err
	}
	return &ast.Label{Pos: pos, Name: name.Text}, nil
}

func (p *parser) parseGoto() (ast.Node, error) {
	pos := p.startPos()
	p.advance() // goto
	name, err := p.expect(lexer.TokIdent, "label name")
	if err != nil {
		return nil, err
	}
	return &ast.Goto{Pos: pos, Label: name.Text}, nil
}

func (p *parser) parseDo() (ast.Node, error) {
	pos := p.startPos()
	p.advance() // do
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokEnd, "'end'"); err != nil {
		return nil, err
	}
	return &ast.Do{Pos: pos, Body: body}, nil
}

func (p *parser) parseWhile() (ast.Node, error) {
	pos := p.startPos()
	p.advance() // while
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokDo, "'do'"); err != nil {
		return nil, err
	}
	p.loopDepth++
	body, err := p.parseBlock()
	p.loopDepth--
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokEnd, "'end'"); err != nil {
		return nil, err
	}
	return &ast.While{Pos: pos, Cond: cond, Body: body}, nil
}

func (p *parser) parseRepeat() (ast.Node, error) {
	pos := p.startPos()
	p.advance() // repeat
	p.loopDepth++
	body, err := p.parseBlock()
	p.loopDepth--
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokUntil, "'until'"); err != nil {
		return nil, err
	}
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	return &ast.Repeat{Pos: pos, Body: body, Cond: cond}, nil
}

func (p *parser) parseIf() (ast.Node, error) {
	pos := p.startPos()
	var clauses []ast.IfClause

	p.advance() // if
	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokThen, "'then'"); err != nil {
		return nil, err
	}
	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	clauses = append(clauses, ast.IfClause{Cond: cond, Body: body, Line: pos.Line})

	for p.tok.Type == lexer.TokElseif {
		clauseLine := p.tok.Line
		p.advance()
		c, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokThen, "'then'"); err != nil {
			return nil, err
		}
		b, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, ast.IfClause{Cond: c, Body: b, Line: clauseLine})
	}

	if p.tok.Type == lexer.TokElse {
		elseLine := p.tok.Line
		p.advance()
		b, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, ast.IfClause{Cond: nil, Body: b, Line: elseLine})
	}

	if _, err := p.expect(lexer.TokEnd, "'end'"); err != nil {
		return nil, err
	}
	return &ast.If{Pos: pos, Clauses: clauses}, nil
}

func (p *parser) parseFor() (ast.Node, error) {
	pos := p.startPos()
	p.advance() // for
	name, err := p.expect(lexer.TokIdent, "loop variable")
	if err != nil {
		return nil, err
	}
	if p.tok.Type == lexer.TokAssign {
		return p.parseFornum(pos, name.Text)
	}
	return p.parseForin(pos, name.Text)
}

func (p *parser) parseFornum(pos ast.Pos, varName string) (ast.Node, error) {
	p.advance() // =
	start, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokComma, "','"); err != nil {
		return nil, err
	}
	stop, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	var step ast.Node
	if p.tok.Type == lexer.TokComma {
		p.advance()
		step, err = p.parseExpr()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.TokDo, "'do'"); err != nil {
		return nil, err
	}
	p.loopDepth++
	body, err := p.parseBlock()
	p.loopDepth--
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokEnd, "'end'"); err != nil {
		return nil, err
	}
	return &ast.Fornum{Pos: pos, Var: varName, Start: start, Stop: stop, Step: step, Body: body}, nil
}

func (p *parser) parseForin(pos ast.Pos, firstName string) (ast.Node, error) {
	names := []string{firstName}
	for p.tok.Type == lexer.TokComma {
		p.advance()
		n, err := p.expect(lexer.TokIdent, "loop variable")
		if err != nil {
			return nil, err
		}
		names = append(names, n.Text)
	}
	if _, err := p.expect(lexer.TokIn, "'in'"); err != nil {
		return nil, err
	}
	exprs, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokDo, "'do'"); err != nil {
		return nil, err
	}
	p.loopDepth++
	body, err := p.parseBlock()
	p.loopDepth--
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokEnd, "'end'"); err != nil {
		return nil, err
	}
	return &ast.Forin{Pos: pos, Names: names, Exprs: exprs, Body: body}, nil
}

// parseFunctionStat handles `function funcname funcbody`, desugaring into
// a Set (or Localrec-shaped Set for dotted/colon names, which are never
// recursive-by-name the way `local function` is).
func (p *parser) parseFunctionStat() (ast.Node, error) {
	pos := p.startPos()
	p.advance() // function

	first, err := p.expect(lexer.TokIdent, "function name")
	if err != nil {
		return nil, err
	}
	var target ast.Node = &ast.Id{Pos: pos, Name: first.Text}
	isMethod := false
	for p.tok.Type == lexer.TokDot || p.tok.Type == lexer.TokColon {
		dot := p.tok.Type == lexer.TokDot
		p.advance()
		field, err := p.expect(lexer.TokIdent, "field name")
		if err != nil {
			return nil, err
		}
		target = &ast.Index{Pos: pos, Obj: target, Key: &ast.String{Pos: pos, Value: field.Text}, Dot: dot}
		if !dot {
			isMethod = true
			break
		}
	}

	fn, err := p.parseFuncBody(isMethod)
	if err != nil {
		return nil, err
	}
	return &ast.Set{Pos: pos, Lhs: []ast.Node{target}, Rhs: []ast.Node{fn}}, nil
}

func (p *parser) parseLocal() (ast.Node, error) {
	pos := p.startPos()
	p.advance() // local

	if p.tok.Type == lexer.TokFunction {
		p.advance()
		name, err := p.expect(lexer.TokIdent, "function name")
		if err != nil {
			return nil, err
		}
		fn, err := p.parseFuncBody(false)
		if err != nil {
			return nil, err
		}
		return &ast.Localrec{Pos: pos, Name: name.Text, Fn: fn.(*ast.Function)}, nil
	}

	var names []string
	var attribs []string
	for {
		n, err := p.expect(lexer.TokIdent, "local name")
		if err != nil {
			return nil, err
		}
		names = append(names, n.Text)
		attrib := ""
		if p.tok.Type == lexer.TokLt {
			p.advance()
			a, err := p.expect(lexer.TokIdent, "attribute name")
			if err != nil {
				return nil, err
			}
			attrib = a.Text
			if _, err := p.expect(lexer.TokGt, "'>'"); err != nil {
				return nil, err
			}
		}
		attribs = append(attribs, attrib)
		if p.tok.Type != lexer.TokComma {
			break
		}
		p.advance()
	}

	var exprs []ast.Node
	if p.tok.Type == lexer.TokAssign {
		p.advance()
		var err error
		exprs, err = p.parseExprList()
		if err != nil {
			return nil, err
		}
	}
	return &ast.Local{Pos: pos, Names: names, Attribs: attribs, Exprs: exprs}, nil
}

func (p *parser) parseReturn() (ast.Node, error) {
	pos := p.startPos()
	p.advance() // return
	var exprs []ast.Node
	if !isBlockEnd(p.tok.Type) && p.tok.Type != lexer.TokSemi {
		var err error
		exprs, err = p.parseExprList()
		if err != nil {
			return nil, err
		}
	}
	if p.tok.Type == lexer.TokSemi {
		p.advance()
	}
	return &ast.Return{Pos: pos, Exprs: exprs}, nil
}

// parseExprStatement handles both assignment statements and bare
// function-call statements, since both start with a prefixexp.
func (p *parser) parseExprStatement() (ast.Node, error) {
	pos := p.startPos()
	first, err := p.parseSuffixedExpr()
	if err != nil {
		return nil, err
	}

	if p.tok.Type != lexer.TokAssign && p.tok.Type != lexer.TokComma {
		switch first.(type) {
		case *ast.Call, *ast.Invoke:
			return first, nil
		default:
			return nil, p.errf("syntax error: expression used as statement")
		}
	}

	lhs := []ast.Node{first}
	for p.tok.Type == lexer.TokComma {
		p.advance()
		next, err := p.parseSuffixedExpr()
		if err != nil {
			return nil, err
		}
		lhs = append(lhs, next)
	}
	for _, l := range lhs {
		switch l.(type) {
		case *ast.Id, *ast.Index:
		default:
			return nil, p.errf("cannot assign to this expression")
		}
	}
	if _, err := p.expect(lexer.TokAssign, "'='"); err != nil {
		return nil, err
	}
	rhs, err := p.parseExprList()
	if err != nil {
		return nil, err
	}
	return &ast.Set{Pos: pos, Lhs: lhs, Rhs: rhs}, nil
}
