package lexer

import "testing"

func scanAll(t *testing.T, src string) []Token {
	t.Helper()
	s := NewScanner([]byte(src))
	var toks []Token
	for {
		tok, err := s.Scan()
		if err != nil {
			t.Fatalf("Scan() error: %v", err)
		}
		toks = append(toks, tok)
		if tok.Type == TokEOF {
			break
		}
	}
	return toks
}

func TestScanner_Keywords(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want TokenType
	}{
		{"and", "and", TokAnd},
		{"function", "function", TokFunction},
		{"local", "local", TokLocal},
		{"end", "end", TokEnd},
		{"identifier not keyword", "endpoint", TokIdent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := scanAll(t, tt.src)
			if toks[0].Type != tt.want {
				t.Errorf("got %v, want %v", toks[0].Type, tt.want)
			}
		})
	}
}

func TestScanner_Operators(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []TokenType
	}{
		{"double equals", "==", []TokenType{TokEq, TokEOF}},
		{"single equals", "=", []TokenType{TokAssign, TokEOF}},
		{"concat vs dots", "..", []TokenType{TokConcat, TokEOF}},
		{"vararg", "...", []TokenType{TokDots, TokEOF}},
		{"dot field", ".", []TokenType{TokDot, TokEOF}},
		{"floor div", "1 // 2", []TokenType{TokNumber, TokDSlash, TokNumber, TokEOF}},
		{"label", "::top::", []TokenType{TokDColon, TokIdent, TokDColon, TokEOF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := scanAll(t, tt.src)
			if len(toks) != len(tt.want) {
				t.Fatalf("got %d tokens, want %d", len(toks), len(tt.want))
			}
			for i, want := range tt.want {
				if toks[i].Type != want {
					t.Errorf("token %d: got %v, want %v", i, toks[i].Type, want)
				}
			}
		})
	}
}

func TestScanner_Numbers(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"integer", "42", "42"},
		{"float", "3.14", "3.14"},
		{"exponent", "1e10", "1e10"},
		{"hex", "0xFF", "0xFF"},
		{"hex float", "0x1p4", "0x1p4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := scanAll(t, tt.src)
			if toks[0].Type != TokNumber {
				t.Fatalf("got token type %v, want TokNumber", toks[0].Type)
			}
			if toks[0].Text != tt.want {
				t.Errorf("got %q, want %q", toks[0].Text, tt.want)
			}
		})
	}
}

func TestScanner_Strings(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"double quoted", `"hello"`, "hello"},
		{"single quoted", `'hello'`, "hello"},
		{"escaped newline", `"a\nb"`, "a\nb"},
		{"escaped quote", `"a\"b"`, `a"b`},
		{"long bracket level 0", "[[hello]]", "hello"},
		{"long bracket level 1", "[=[hello]=]", "hello"},
		{"long bracket strips leading newline", "[[\nhello]]", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			toks := scanAll(t, tt.src)
			if toks[0].Type != TokString {
				t.Fatalf("got token type %v, want TokString", toks[0].Type)
			}
			if toks[0].Text != tt.want {
				t.Errorf("got %q, want %q", toks[0].Text, tt.want)
			}
		})
	}
}

func TestScanner_Comments(t *testing.T) {
	s := NewScanner([]byte("-- line comment\nlocal x --[[long\ncomment]] = 1"))
	toks := scanAll(t, "")
	_ = toks
	s2 := NewScanner([]byte("-- line comment\nlocal x --[[long\ncomment]] = 1"))
	for {
		tok, err := s2.Scan()
		if err != nil {
			t.Fatalf("Scan() error: %v", err)
		}
		if tok.Type == TokEOF {
			break
		}
	}
	if len(s2.Comments) != 2 {
		t.Fatalf("got %d comments, want 2", len(s2.Comments))
	}
	if s2.Comments[0].Kind != CommentLine {
		t.Errorf("comment 0 kind = %v, want CommentLine", s2.Comments[0].Kind)
	}
	if s2.Comments[1].Kind != CommentLong {
		t.Errorf("comment 1 kind = %v, want CommentLong", s2.Comments[1].Kind)
	}
	_ = s
}

func TestScanner_UnterminatedLongComment(t *testing.T) {
	s := NewScanner([]byte("--[[ never closes\nstill going"))
	for {
		tok, err := s.Scan()
		if err != nil {
			t.Fatalf("Scan() error: %v", err)
		}
		if tok.Type == TokEOF {
			break
		}
	}
	if len(s.Comments) == 0 {
		t.Fatal("expected at least one comment")
	}
}
