package lang

import "testing"

func TestLexAllBasic(t *testing.T) {
	toks := LexAll("MA(C, 3)")
	want := []TokenKind{TokIdent, TokLParen, TokIdent, TokComma, TokNumber, TokRParen, TokEOF}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d: %+v", len(toks), len(want), toks)
	}
	for i, k := range want {
		if toks[i].Kind != k {
			t.Errorf("token %d: got %s, want %s", i, toks[i].Kind, k)
		}
	}
	if toks[2].Text != "C" {
		t.Errorf("ident text = %q, want C", toks[2].Text)
	}
	if toks[4].Num != 3 {
		t.Errorf("number = %v, want 3", toks[4].Num)
	}
}

func TestLexKeywordsCaseInsensitive(t *testing.T) {
	for _, src := range []string{"and", "AND", "And"} {
		toks := LexAll(src)
		if toks[0].Kind != TokAnd {
			t.Errorf("%q: got %s, want AND", src, toks[0].Kind)
		}
		if toks[0].Text != src {
			t.Errorf("%q: text = %q, want original case preserved", src, toks[0].Text)
		}
	}
}

func TestLexOperators(t *testing.T) {
	cases := []struct {
		src  string
		kind TokenKind
	}{
		{":=", TokColonEq},
		{">=", TokGe},
		{"<=", TokLe},
		{"==", TokEq},
		{"=", TokEq},
		{"!=", TokNe},
		{"!", TokNot},
		{">", TokGt},
		{"<", TokLt},
	}
	for _, c := range cases {
		toks := LexAll(c.src)
		if toks[0].Kind != c.kind {
			t.Errorf("%q: got %s, want %s", c.src, toks[0].Kind, c.kind)
		}
	}
}

func TestLexUnknownColon(t *testing.T) {
	toks := LexAll(":")
	if toks[0].Kind != TokUnknown || toks[0].Text != ":" {
		t.Errorf("got %+v, want Unknown(':')", toks[0])
	}
}

func TestLexNumberNoTrailingDot(t *testing.T) {
	toks := LexAll("3.")
	if toks[0].Kind != TokNumber || toks[0].Num != 3 {
		t.Fatalf("got %+v", toks[0])
	}
	if toks[1].Kind != TokUnknown {
		t.Errorf("expected trailing '.' to lex separately, got %s", toks[1].Kind)
	}
}

func TestLexAllTerminatesWithSingleEOF(t *testing.T) {
	toks := LexAll("")
	if len(toks) != 1 || toks[0].Kind != TokEOF {
		t.Fatalf("empty source should lex to exactly [EOF], got %+v", toks)
	}
}
