package parser

import (
	"github.com/cybertec-postgresql/covlua/internal/ast"
	"github.com/cybertec-postgresql/covlua/internal/lexer"
)

// binPrec gives (left, right) binding power for each binary operator,
// following the Lua 5.4 reference manual's precedence table (low to
// high): or, and, comparisons, |, ~, &, shifts, .. (right-assoc),
// +/-, */÷//%, unary, ^ (right-assoc, tighter than unary).
type precPair struct{ left, right int }

var binPrec = map[lexer.TokenType]precPair{
	lexer.TokOr:      {1, 1},
	lexer.TokAnd:     {2, 2},
	lexer.TokLt:      {3, 3},
	lexer.TokGt:      {3, 3},
	lexer.TokLe:      {3, 3},
	lexer.TokGe:      {3, 3},
	lexer.TokNe:      {3, 3},
	lexer.TokEq:      {3, 3},
	lexer.TokPipe:    {4, 4},
	lexer.TokTilde:   {5, 5},
	lexer.TokAmp:     {6, 6},
	lexer.TokLShift:  {7, 7},
	lexer.TokRShift:  {7, 7},
	lexer.TokConcat:  {9, 8}, // right associative
	lexer.TokPlus:    {10, 10},
	lexer.TokMinus:   {10, 10},
	lexer.TokStar:    {11, 11},
	lexer.TokSlash:   {11, 11},
	lexer.TokDSlash:  {11, 11},
	lexer.TokPercent: {11, 11},
	lexer.TokCaret:   {14, 13}, // right associative, binds tighter than unary
}

const unaryPrec = 12

var opText = map[lexer.TokenType]string{
	lexer.TokOr: "or", lexer.TokAnd: "and",
	lexer.TokLt: "<", lexer.TokGt: ">", lexer.TokLe: "<=", lexer.TokGe: ">=",
	lexer.TokNe: "~=", lexer.TokEq: "==",
	lexer.TokPipe: "|", lexer.TokTilde: "~", lexer.TokAmp: "&",
	lexer.TokLShift: "<<", lexer.TokRShift: ">>",
	lexer.TokConcat: "..", lexer.TokPlus: "+", lexer.TokMinus: "-",
	lexer.TokStar: "*", lexer.TokSlash: "/", lexer.TokDSlash: "//",
	lexer.TokPercent: "%", lexer.TokCaret: "^",
	lexer.TokNot: "not", lexer.TokHash: "#",
}

func (p *parser) parseExpr() (ast.Node, error) {
	return p.parseBinExpr(0)
}

func (p *parser) parseBinExpr(minPrec int) (ast.Node, error) {
	if err := p.checkBudget(); err != nil {
		return nil, err
	}
	lhs, err := p.parseUnaryExpr()
	if err != nil {
		return nil, err
	}
	for {
		prec, ok := binPrec[p.tok.Type]
		if !ok || prec.left <= minPrec {
			return lhs, nil
		}
		opTok := p.tok
		p.advance()
		rhs, err := p.parseBinExpr(prec.right)
		if err != nil {
			return nil, err
		}
		lhs = &ast.Op{
			Pos:      ast.Pos{StartPos: opTok.Pos, Line: opTok.Line},
			Operator: opText[opTok.Type],
			Lhs:      lhs,
			Rhs:      rhs,
		}
	}
}

func (p *parser) parseUnaryExpr() (ast.Node, error) {
	switch p.tok.Type {
	case lexer.TokNot, lexer.TokHash, lexer.TokMinus, lexer.TokTilde:
		opTok := p.tok
		p.advance()
		operand, err := p.parseBinExpr(unaryPrec)
		if err != nil {
			return nil, err
		}
		text := opText[opTok.Type]
		if opTok.Type == lexer.TokMinus {
			text = "-"
		}
		return &ast.Op{Pos: ast.Pos{StartPos: opTok.Pos, Line: opTok.Line}, Operator: text, Rhs: operand}, nil
	default:
		return p.parsePow()
	}
}

// parsePow handles the `^` operator's right-associativity, which binds
// tighter than unary operators on its left but looser on first glance;
// it is threaded through parseBinExpr via unaryPrec/prec.right above, so
// this is just the primary-expression entry point.
func (p *parser) parsePow() (ast.Node, error) {
	return p.parseSuffixedExpr()
}

func (p *parser) parseExprList() ([]ast.Node, error) {
	var exprs []ast.Node
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	exprs = append(exprs, e)
	for p.tok.Type == lexer.TokComma {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, e)
	}
	return exprs, nil
}

func (p *parser) parsePrimaryExpr() (ast.Node, error) {
	pos := p.startPos()
	switch p.tok.Type {
	case lexer.TokNil:
		p.advance()
		return &ast.Nil{Pos: pos}, nil
	case lexer.TokTrue:
		p.advance()
		return &ast.Boolean{Pos: pos, Value: true}, nil
	case lexer.TokFalse:
		p.advance()
		return &ast.Boolean{Pos: pos, Value: false}, nil
	case lexer.TokNumber:
		text := p.tok.Text
		p.advance()
		return &ast.Number{Pos: pos, Text: text}, nil
	case lexer.TokString:
		text := p.tok.Text
		p.advance()
		return &ast.String{Pos: pos, Value: text}, nil
	case lexer.TokDots:
		if !p.varargStack[len(p.varargStack)-1] {
			return nil, p.errf("cannot use '...' outside a vararg function")
		}
		p.advance()
		return &ast.Dots{Pos: pos}, nil
	case lexer.TokFunction:
		p.advance()
		return p.parseFuncBody(false)
	case lexer.TokLBrace:
		return p.parseTable()
	case lexer.TokIdent:
		name := p.tok.Text
		p.advance()
		return &ast.Id{Pos: pos, Name: name}, nil
	case lexer.TokLParen:
		p.advance()
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokRParen, "')'"); err != nil {
			return nil, err
		}
		return &ast.Paren{Pos: pos, Inner: inner}, nil
	default:
		return nil, p.errf("unexpected token %q in expression", p.tok.Text)
	}
}

// parseSuffixedExpr parses a primary expression followed by any chain of
// `.name`, `[expr]`, `:name(args)`, and `(args)` suffixes.
func (p *parser) parseSuffixedExpr() (ast.Node, error) {
	if err := p.checkBudget(); err != nil {
		return nil, err
	}
	expr, err := p.parsePrimaryExpr()
	if err != nil {
		return nil, err
	}
	for {
		pos := p.startPos()
		switch p.tok.Type {
		case lexer.TokDot:
			p.advance()
			field, err := p.expect(lexer.TokIdent, "field name")
			if err != nil {
				return nil, err
			}
			expr = &ast.Index{Pos: pos, Obj: expr, Key: &ast.String{Pos: pos, Value: field.Text}, Dot: true}
		case lexer.TokLBracket:
			p.advance()
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokRBracket, "']'"); err != nil {
				return nil, err
			}
			expr = &ast.Index{Pos: pos, Obj: expr, Key: key, Dot: false}
		case lexer.TokColon:
			p.advance()
			method, err := p.expect(lexer.TokIdent, "method name")
			if err != nil {
				return nil, err
			}
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			expr = &ast.Invoke{Pos: pos, Obj: expr, Method: method.Text, Args: args}
		case lexer.TokLParen, lexer.TokString, lexer.TokLBrace:
			args, err := p.parseArgs()
			if err != nil {
				return nil, err
			}
			expr = &ast.Call{Pos: pos, Fn: expr, Args: args}
		default:
			return expr, nil
		}
	}
}

// parseArgs handles the three call-argument forms: `(explist)`, a single
// string literal, or a single table constructor.
func (p *parser) parseArgs() ([]ast.Node, error) {
	switch p.tok.Type {
	case lexer.TokLParen:
		p.advance()
		if p.tok.Type == lexer.TokRParen {
			p.advance()
			return nil, nil
		}
		args, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokRParen, "')'"); err != nil {
			return nil, err
		}
		return args, nil
	case lexer.TokString:
		pos := p.startPos()
		text := p.tok.Text
		p.advance()
		return []ast.Node{&ast.String{Pos: pos, Value: text}}, nil
	case lexer.TokLBrace:
		tbl, err := p.parseTable()
		if err != nil {
			return nil, err
		}
		return []ast.Node{tbl}, nil
	default:
		return nil, p.errf("expected function arguments")
	}
}

func (p *parser) parseTable() (ast.Node, error) {
	pos := p.startPos()
	if _, err := p.expect(lexer.TokLBrace, "'{'"); err != nil {
		return nil, err
	}
	var fields []ast.Node
	for p.tok.Type != lexer.TokRBrace {
		fieldPos := p.startPos()
		switch {
		case p.tok.Type == lexer.TokLBracket:
			p.advance()
			key, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokRBracket, "']'"); err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokAssign, "'='"); err != nil {
				return nil, err
			}
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			fields = append(fields, &ast.Pair{Pos: fieldPos, Key: key, Value: val})
		case p.tok.Type == lexer.TokIdent && p.peekIsAssign():
			name := p.tok.Text
			p.advance()
			p.advance() // =
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			fields = append(fields, &ast.Pair{Pos: fieldPos, Key: &ast.String{Pos: fieldPos, Value: name}, Value: val})
		default:
			val, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			fields = append(fields, val)
		}
		if p.tok.Type == lexer.TokComma || p.tok.Type == lexer.TokSemi {
			p.advance()
		} else {
			break
		}
	}
	if _, err := p.expect(lexer.TokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return &ast.Table{Pos: pos, Fields: fields}, nil
}

// peekIsAssign reports whether the token after the current TokIdent is
// '=', which disambiguates `{name = val}` from `{name}` (an array entry
// that happens to be a bare identifier expression) without backtracking:
// Lua's grammar only needs one token of lookahead here since `=` cannot
// otherwise follow a bare Name inside a table constructor.
func (p *parser) peekIsAssign() bool {
	return p.peek().Type == lexer.TokAssign
}

func (p *parser) parseFuncBody(isMethod bool) (ast.Node, error) {
	pos := p.startPos()
	if _, err := p.expect(lexer.TokLParen, "'('"); err != nil {
		return nil, err
	}
	var params []string
	if isMethod {
		params = append(params, "self")
	}
	vararg := false
	if p.tok.Type != lexer.TokRParen {
		for {
			if p.tok.Type == lexer.TokDots {
				vararg = true
				p.advance()
				break
			}
			n, err := p.expect(lexer.TokIdent, "parameter name")
			if err != nil {
				return nil, err
			}
			params = append(params, n.Text)
			if p.tok.Type != lexer.TokComma {
				break
			}
			p.advance()
		}
	}
	if _, err := p.expect(lexer.TokRParen, "')'"); err != nil {
		return nil, err
	}

	p.varargStack = append(p.varargStack, vararg)
	outerLoopDepth := p.loopDepth
	p.loopDepth = 0 // a function body starts outside any loop
	body, err := p.parseBlock()
	p.loopDepth = outerLoopDepth
	p.varargStack = p.varargStack[:len(p.varargStack)-1]
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokEnd, "'end'"); err != nil {
		return nil, err
	}
	return &ast.Function{Pos: pos, Params: params, IsVararg: vararg, IsMethod: isMethod, Body: body}, nil
}
