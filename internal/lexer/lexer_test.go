package lexer

import (
	"testing"

	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/position"
)

func TestBasicTokens(t *testing.T) {
	input := `func main() -> Int {
	let x = 1 + 2.5
	return x
}`

	tests := []struct {
		expectedType  TokenType
		expectedValue string
	}{
		{TokenFunc, "func"},
		{TokenIdentifier, "main"},
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenArrow, "->"},
		{TokenIdentifier, "Int"},
		{TokenLBrace, "{"},
		{TokenLet, "let"},
		{TokenIdentifier, "x"},
		{TokenAssign, "="},
		{TokenInteger, "1"},
		{TokenOperator, "+"},
		{TokenFloat, "2.5"},
		{TokenReturn, "return"},
		{TokenIdentifier, "x"},
		{TokenRBrace, "}"},
		{TokenEOF, ""},
	}

	l := NewString(input)

	for i, tt := range tests {
		tok := l.NextToken()

		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q",
				i, tt.expectedType, tok.Type)
		}

		if tok.Literal != tt.expectedValue {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q",
				i, tt.expectedValue, tok.Literal)
		}
	}
}

func TestKeywords(t *testing.T) {
	input := `import precedencegroup infix prefix operator protocol struct private mir in`

	expected := []TokenType{
		TokenImport, TokenPrecedenceGroup, TokenInfix, TokenPrefix, TokenOperatorKw,
		TokenProtocol, TokenStruct, TokenPrivate, TokenMIR, TokenIn, TokenEOF,
	}

	l := NewString(input)
	for i, want := range expected {
		tok := l.NextToken()
		if tok.Type != want {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q", i, want, tok.Type)
		}
		if want != TokenEOF && !tok.Type.IsKeyword() {
			t.Errorf("tests[%d] - %s should be a keyword", i, tok.Type)
		}
	}
}

func TestOperatorRuns(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"a |> f", []string{"a", "|>", "f"}},
		{"x==-1", []string{"x", "==-", "1"}},
		{"a <= b && !c", []string{"a", "<=", "b", "&&", "!", "c"}},
		{"a +// note", []string{"a", "+"}},
	}

	for _, tt := range tests {
		var got []string
		for tok := range NewString(tt.input).All() {
			if tok.Type == TokenEOF {
				break
			}
			got = append(got, tok.Literal)
		}
		if len(got) != len(tt.expected) {
			t.Fatalf("%q: got %v, want %v", tt.input, got, tt.expected)
		}
		for i := range got {
			if got[i] != tt.expected[i] {
				t.Errorf("%q: token %d = %q, want %q", tt.input, i, got[i], tt.expected[i])
			}
		}
	}
}

func TestTrivia(t *testing.T) {
	l := NewString("a // trailing\n/* lead */ b")

	a := l.NextToken()
	if len(a.Trailing) != 2 || a.Trailing[1].Kind != TriviaLineComment {
		t.Fatalf("unexpected trailing trivia %+v", a.Trailing)
	}

	b := l.NextToken()
	if !b.AtStartOfLine() {
		t.Errorf("expected b at start of line")
	}
	var sawBlock bool
	for _, tr := range b.Leading {
		if tr.Kind == TriviaBlockComment && tr.Text == "/* lead */" {
			sawBlock = true
		}
	}
	if !sawBlock {
		t.Errorf("block comment missing from leading trivia %+v", b.Leading)
	}
}

func TestKeepComments(t *testing.T) {
	file := position.NewSourceFile("c.oz", "a /* x */ b // y")
	var types []TokenType
	for _, tok := range Tokenize(file, Options{KeepComments: true}) {
		types = append(types, tok.Type)
	}

	want := []TokenType{TokenIdentifier, TokenComment, TokenIdentifier, TokenComment, TokenEOF}
	if len(types) != len(want) {
		t.Fatalf("got %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("token %d = %s, want %s", i, types[i], want[i])
		}
	}
}

func TestRange(t *testing.T) {
	src := "let a = 1\nlet b = 2\n"
	file := position.NewSourceFile("r.oz", src)

	toks := Tokenize(file, Options{Offset: 10, EndOffset: 19})
	if len(toks) != 5 {
		t.Fatalf("expected 5 tokens, got %d: %v", len(toks), toks)
	}
	if toks[1].Literal != "b" || toks[1].Span.Start.Line != 2 {
		t.Errorf("unexpected token %v", toks[1])
	}
	if toks[4].Type != TokenEOF || toks[4].Offset() != 19 {
		t.Errorf("EOF at %d, want 19", toks[4].Offset())
	}
}

func TestRestartable(t *testing.T) {
	l := NewString("a b c")
	first := 0
	for range l.All() {
		first++
	}
	second := 0
	for range l.All() {
		second++
	}
	if first != 4 || second != first {
		t.Errorf("token counts %d and %d, want 4 twice", first, second)
	}
}

func TestStringLiterals(t *testing.T) {
	tok := NewString(`"a\tb\"c\\"`).NextToken()
	if tok.Type != TokenString {
		t.Fatalf("expected STRING, got %s (%s)", tok.Type, tok.Reason)
	}
	if tok.Value != "a\tb\"c\\" {
		t.Errorf("Value = %q", tok.Value)
	}
}

func TestStringInterpolation(t *testing.T) {
	src := `"x = \(x + f("y")) end"`
	tok := NewString(src).NextToken()

	if tok.Type != TokenStringInterpolation {
		t.Fatalf("expected STRING_INTERPOLATION, got %s", tok.Type)
	}
	if len(tok.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(tok.Segments))
	}
	if tok.Segments[0].Text != "x = " || tok.Segments[2].Text != " end" {
		t.Errorf("literal segments %q / %q", tok.Segments[0].Text, tok.Segments[2].Text)
	}

	expr := tok.Segments[1]
	if !expr.IsExpr {
		t.Fatalf("middle segment should be an expression")
	}
	var lits []string
	for _, st := range expr.Tokens {
		lits = append(lits, st.Literal)
	}
	want := []string{"x", "+", "f", "(", `"y"`, ")"}
	if len(lits) != len(want) {
		t.Fatalf("sub tokens %v, want %v", lits, want)
	}
	for i := range want {
		if lits[i] != want[i] {
			t.Errorf("sub token %d = %q, want %q", i, lits[i], want[i])
		}
	}
	// sub-token spans are absolute within the buffer
	if expr.Tokens[0].Offset() != 7 {
		t.Errorf("first sub token at %d, want 7", expr.Tokens[0].Offset())
	}
}

func TestInterpolationFlagOff(t *testing.T) {
	file := position.NewSourceFile("", `"v\(a)"`)
	toks := Tokenize(file, Options{})
	if toks[0].Type != TokenString {
		t.Fatalf("expected STRING, got %s", toks[0].Type)
	}
	if toks[0].Value != `v\(a)` {
		t.Errorf("Value = %q", toks[0].Value)
	}
}

func TestErrorTokens(t *testing.T) {
	tests := []struct {
		input  string
		reason string
	}{
		{`"open`, diagnostic.LexUnterminatedString},
		{`"bad \q"`, diagnostic.LexBadEscape},
		{`"\(x"`, diagnostic.LexUnterminatedInterpolation},
		{`12abc`, diagnostic.LexMalformedNumber},
		{`0x`, diagnostic.LexMalformedNumber},
		{`$`, diagnostic.LexInvalidCharacter},
		{`/* never closed`, diagnostic.LexUnterminatedComment},
	}

	for _, tt := range tests {
		toks := Tokenize(position.NewSourceFile("", tt.input+"\nnext"), Options{TokenizeInterpolatedString: true})
		if toks[0].Type != TokenError {
			t.Errorf("%q: expected ERROR, got %s", tt.input, toks[0].Type)
			continue
		}
		if toks[0].Reason != tt.reason {
			t.Errorf("%q: reason %q, want %q", tt.input, toks[0].Reason, tt.reason)
		}
		// tokenization continues after the error
		last := toks[len(toks)-1]
		if last.Type != TokenEOF {
			t.Errorf("%q: stream did not reach EOF", tt.input)
		}
	}
}

func TestNumbers(t *testing.T) {
	tests := []struct {
		input string
		typ   TokenType
	}{
		{"42", TokenInteger},
		{"1_000", TokenInteger},
		{"0xFF", TokenInteger},
		{"3.14", TokenFloat},
		{"1e10", TokenFloat},
		{"2.5e-3", TokenFloat},
	}
	for _, tt := range tests {
		tok := NewString(tt.input).NextToken()
		if tok.Type != tt.typ || tok.Literal != tt.input {
			t.Errorf("%q: got %s %q", tt.input, tok.Type, tok.Literal)
		}
	}
}

func TestIsOperatorSpelling(t *testing.T) {
	for _, s := range []string{"|>", "+", "<=>", "**"} {
		if !IsOperatorSpelling(s) {
			t.Errorf("%q should be an operator spelling", s)
		}
	}
	for _, s := range []string{"", "=", "->", "a+", "(+)"} {
		if IsOperatorSpelling(s) {
			t.Errorf("%q should not be an operator spelling", s)
		}
	}
}
