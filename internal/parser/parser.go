// Package parser implements a recursive-descent parser for Lua 5.3/5.4,
// built directly on internal/lexer, producing the positioned internal/ast
// tree spec.md §4.1 describes. Its style mirrors a faithful grammar port:
// one method per production, explicit lookahead, no parser generator.
package parser

import (
	"fmt"
	"time"

	"github.com/cybertec-postgresql/covlua/internal/ast"
	cerrors "github.com/cybertec-postgresql/covlua/internal/errors"
	"github.com/cybertec-postgresql/covlua/internal/lexer"
)

// MaxSourceBytes is the parser's hard size cap (spec.md §4.1).
const MaxSourceBytes = 1 << 20 // 1 MiB

// ParseTimeBudget is the nominal wall-clock budget for a single parse.
const ParseTimeBudget = 10 * time.Second

// ruleCheckInterval is how many grammar-rule entries pass between
// cooperative wall-clock checks, so the timeout is enforced without
// calling time.Now() on every single token.
const ruleCheckInterval = 2000

// Result is what a successful parse produces.
type Result struct {
	File     string
	Root     *ast.Block
	Comments []lexer.Comment
}

// Parse parses src (the contents of file) into a Result, or returns one
// of SourceTooLargeError, ParseTimeoutError, or ParseError.
func Parse(file string, src []byte) (*Result, error) {
	if len(src) > MaxSourceBytes {
		return nil, cerrors.NewSourceTooLargeError(file, len(src))
	}
	p := newParser(file, src)
	root, err := p.parseChunk()
	if err != nil {
		return nil, err
	}
	if err := validateGotos(file, root); err != nil {
		return nil, err
	}
	return &Result{File: file, Root: root, Comments: p.lex.Comments}, nil
}

type parser struct {
	file  string
	lex   *lexer.Scanner
	tok   lexer.Token
	start time.Time

	ruleCount   int
	loopDepth   int
	varargStack []bool // one entry per enclosing function; chunk itself is vararg
	lexErr      error

	// queued holds a single token of lookahead beyond tok, filled on
	// demand by peek() and drained by advance(); table constructors are
	// the only grammar point needing it (distinguishing `{name}` from
	// `{name = val}`).
	queued    lexer.Token
	hasQueued bool
}

func newParser(file string, src []byte) *parser {
	p := &parser{
		file:        file,
		lex:         lexer.NewScanner(src),
		start:       time.Now(),
		varargStack: []bool{true}, // the main chunk accepts ...
	}
	p.advance()
	return p
}

func (p *parser) advance() {
	if p.hasQueued {
		p.tok = p.queued
		p.hasQueued = false
		return
	}
	tok, err := p.lex.Scan()
	if err != nil {
		// Lexical errors surface through the same ParseError channel as
		// syntax errors; the lexer's message already carries a line.
		p.tok = lexer.Token{Type: lexer.TokEOF, Line: p.lex.Line()}
		p.lexErr = err
		return
	}
	p.tok = tok
}

// peek returns the token after p.tok without consuming it, scanning and
// buffering it on first use.
func (p *parser) peek() lexer.Token {
	if !p.hasQueued {
		tok, err := p.lex.Scan()
		if err != nil {
			p.lexErr = err
			tok = lexer.Token{Type: lexer.TokEOF, Line: p.lex.Line()}
		}
		p.queued = tok
		p.hasQueued = true
	}
	return p.queued
}

func (p *parser) checkBudget() error {
	p.ruleCount++
	if p.lexErr != nil {
		err := p.lexErr
		p.lexErr = nil
		return cerrors.NewParseError(p.file, p.tok.Line, 0, err.Error())
	}
	if p.ruleCount%ruleCheckInterval == 0 {
		if time.Since(p.start) > ParseTimeBudget {
			return cerrors.NewParseTimeoutError(p.file, p.ruleCount)
		}
	}
	return nil
}

func (p *parser) errf(format string, args ...interface{}) error {
	return cerrors.NewParseError(p.file, p.tok.Line, 0, fmt.Sprintf(format, args...))
}

func (p *parser) expect(tt lexer.TokenType, what string) (lexer.Token, error) {
	if p.tok.Type != tt {
		return lexer.Token{}, p.errf("expected %s, got %q", what, p.tok.Text)
	}
	tok := p.tok
	p.advance()
	return tok, nil
}

func (p *parser) parseChunk() (*ast.Block, error) {
	block, err := p.parseBlock()
	if err != nil {
		return nil, err
	}
	if p.tok.Type != lexer.TokEOF {
		return nil, p.errf("unexpected token %q after chunk", p.tok.Text)
	}
	return block, nil
}

func isBlockEnd(tt lexer.TokenType) bool {
	switch tt {
	case lexer.TokEOF, lexer.TokEnd, lexer.TokElse, lexer.TokElseif, lexer.TokUntil:
		return true
	}
	return false
}

func (p *parser) parseBlock() (*ast.Block, error) {
	if err := p.checkBudget(); err != nil {
		return nil, err
	}
	startPos, startLine := p.tok.Pos, p.tok.Line
	block := &ast.Block{Pos: ast.Pos{StartPos: startPos, Line: startLine}}
	for !isBlockEnd(p.tok.Type) {
		if p.tok.Type == lexer.TokReturn {
			stmt, err := p.parseReturn()
			if err != nil {
				return nil, err
			}
			block.Stmts = append(block.Stmts, stmt)
			break // return must be the last statement in a block
		}
		stmt, err := p.parseStatement()
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			block.Stmts = append(block.Stmts, stmt)
		}
	}
	block.EndPos = p.tok.Pos
	block.EndLine = p.tok.Line
	return block, nil
}
