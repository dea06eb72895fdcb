// Package lexer implements the ozc tokenizer: a lazy, restartable token
// stream over a byte range of a source buffer. Lexical errors never abort
// tokenization; they surface as TokenError tokens carrying a reason key.
package lexer

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/orizon-lang/ozc/internal/diagnostic"
	"github.com/orizon-lang/ozc/internal/position"
)

// Options control the range and shape of the token stream.
type Options struct {
	// Offset is the first byte to tokenize.
	Offset int
	// EndOffset is one past the last byte; 0 means the end of the buffer.
	EndOffset int
	// KeepComments emits comments as TokenComment instead of trivia.
	KeepComments bool
	// TokenizeInterpolatedString splits `\( ... )` segments of string
	// literals into nested token runs.
	TokenizeInterpolatedString bool
}

// Lexer represents the lexical analyzer over one source buffer range.
type Lexer struct {
	file  *position.SourceFile
	input string
	opts  Options

	start int // first byte of the range
	end   int // one past the last byte of the range

	position     int  // current position in input (points to current char)
	readPosition int  // current reading position in input (after current char)
	ch           byte // current char under examination

	done bool
}

// New creates a lexer over file restricted to the options' byte range.
func New(file *position.SourceFile, opts Options) *Lexer {
	end := opts.EndOffset
	if end <= 0 || end > len(file.Content) {
		end = len(file.Content)
	}
	start := opts.Offset
	if start < 0 {
		start = 0
	}
	if start > end {
		start = end
	}
	l := &Lexer{file: file, input: file.Content, opts: opts, start: start, end: end}
	l.Reset()
	return l
}

// NewString creates a lexer over an anonymous buffer with interpolation
// splitting enabled.
func NewString(input string) *Lexer {
	return New(position.NewSourceFile("", input), Options{TokenizeInterpolatedString: true})
}

// Reset rewinds the stream to the start of its range.
func (l *Lexer) Reset() {
	l.readPosition = l.start
	l.done = false
	l.readChar()
}

// File returns the buffer the lexer reads from.
func (l *Lexer) File() *position.SourceFile { return l.file }

// All yields every token of the range, ending with TokenEOF. Each call
// restarts the stream.
func (l *Lexer) All() iter.Seq[Token] {
	return func(yield func(Token) bool) {
		l.Reset()
		for {
			tok := l.NextToken()
			if !yield(tok) || tok.Type == TokenEOF {
				return
			}
		}
	}
}

// Tokenize collects the whole range into a slice.
func Tokenize(file *position.SourceFile, opts Options) []Token {
	var out []Token
	for tok := range New(file, opts).All() {
		out = append(out, tok)
	}
	return out
}

// readChar reads the next character and advances position
func (l *Lexer) readChar() {
	if l.readPosition >= l.end {
		l.ch = 0 // NUL represents end of range
		l.position = l.end
		l.readPosition = l.end + 1
		return
	}
	l.ch = l.input[l.readPosition]
	l.position = l.readPosition
	l.readPosition++
}

// peekChar returns the next character without advancing position
func (l *Lexer) peekChar() byte {
	if l.readPosition >= l.end {
		return 0
	}
	return l.input[l.readPosition]
}

func (l *Lexer) atEnd() bool { return l.position >= l.end }

func (l *Lexer) span(from, to int) position.Span {
	return l.file.SpanFromOffsets(from, to)
}

// NextToken scans the input and returns the next token with trivia attached.
func (l *Lexer) NextToken() Token {
	if l.done {
		return Token{Type: TokenEOF, Span: l.span(l.end, l.end)}
	}

	leading := l.scanLeadingTrivia()
	startPos := l.position

	if l.atEnd() {
		l.done = true
		return Token{Type: TokenEOF, Span: l.span(l.end, l.end), Leading: leading}
	}

	var tok Token
	switch {
	case l.ch == '/' && (l.peekChar() == '/' || l.peekChar() == '*'):
		tok = l.readCommentToken()
	case isLetter(l.ch) || l.ch == '_' || l.ch >= utf8.RuneSelf:
		tok = l.readIdentifierToken()
	case isDigit(l.ch):
		tok = l.readNumberToken()
	case l.ch == '"':
		tok = l.readStringToken()
	case isOperatorChar(l.ch):
		tok = l.readOperatorToken()
	default:
		tok = l.readPunctuation()
	}

	tok.Leading = leading
	tok.Literal = l.input[startPos:l.position]
	tok.Span = l.span(startPos, l.position)
	tok.Trailing = l.scanTrailingTrivia()
	return tok
}

// scanLeadingTrivia consumes whitespace, newlines and (unless comments are
// kept as tokens) comments before a token.
func (l *Lexer) scanLeadingTrivia() []Trivia {
	var out []Trivia
	for !l.atEnd() {
		switch {
		case l.ch == ' ' || l.ch == '\t' || l.ch == '\r':
			out = append(out, Trivia{Kind: TriviaWhitespace, Text: l.readWhile(isHorizontalSpace)})
		case l.ch == '\n':
			l.readChar()
			out = append(out, Trivia{Kind: TriviaNewline, Text: "\n"})
		case l.ch == '/' && l.peekChar() == '/' && !l.opts.KeepComments:
			out = append(out, Trivia{Kind: TriviaLineComment, Text: l.readLineComment()})
		case l.ch == '/' && l.peekChar() == '*' && !l.opts.KeepComments:
			text, ok := l.readBlockComment()
			if !ok {
				// leave the unterminated comment to be reported as a token
				l.rewind(l.position - len(text))
				return out
			}
			out = append(out, Trivia{Kind: TriviaBlockComment, Text: text})
		default:
			return out
		}
	}
	return out
}

// scanTrailingTrivia consumes same-line whitespace and comments after a token.
func (l *Lexer) scanTrailingTrivia() []Trivia {
	var out []Trivia
	for !l.atEnd() {
		switch {
		case isHorizontalSpace(l.ch):
			out = append(out, Trivia{Kind: TriviaWhitespace, Text: l.readWhile(isHorizontalSpace)})
		case l.ch == '/' && l.peekChar() == '/' && !l.opts.KeepComments:
			out = append(out, Trivia{Kind: TriviaLineComment, Text: l.readLineComment()})
		default:
			return out
		}
	}
	return out
}

func (l *Lexer) rewind(pos int) {
	l.readPosition = pos
	l.readChar()
}

func (l *Lexer) readWhile(pred func(byte) bool) string {
	start := l.position
	for !l.atEnd() && pred(l.ch) {
		l.readChar()
	}
	return l.input[start:l.position]
}

func (l *Lexer) readLineComment() string {
	start := l.position
	for !l.atEnd() && l.ch != '\n' {
		l.readChar()
	}
	return l.input[start:l.position]
}

// readBlockComment reads a possibly nested /* */ comment.
func (l *Lexer) readBlockComment() (string, bool) {
	start := l.position
	depth := 0
	for !l.atEnd() {
		if l.ch == '/' && l.peekChar() == '*' {
			depth++
			l.readChar()
			l.readChar()
			continue
		}
		if l.ch == '*' && l.peekChar() == '/' {
			depth--
			l.readChar()
			l.readChar()
			if depth == 0 {
				return l.input[start:l.position], true
			}
			continue
		}
		l.readChar()
	}
	return l.input[start:l.position], false
}

func (l *Lexer) readCommentToken() Token {
	if l.peekChar() == '/' {
		l.readLineComment()
		return Token{Type: TokenComment}
	}
	if _, ok := l.readBlockComment(); !ok {
		return Token{Type: TokenError, Reason: diagnostic.LexUnterminatedComment}
	}
	return Token{Type: TokenComment}
}

func (l *Lexer) readIdentifierToken() Token {
	start := l.position
	for !l.atEnd() {
		if isLetter(l.ch) || isDigit(l.ch) || l.ch == '_' {
			l.readChar()
			continue
		}
		if l.ch >= utf8.RuneSelf {
			r, size := utf8.DecodeRuneInString(l.input[l.position:l.end])
			if unicode.IsLetter(r) || (l.position > start && unicode.IsDigit(r)) {
				for i := 0; i < size; i++ {
					l.readChar()
				}
				continue
			}
			if l.position == start {
				// not an identifier start: consume the rune as an invalid character
				for i := 0; i < size; i++ {
					l.readChar()
				}
				return Token{Type: TokenError, Reason: diagnostic.LexInvalidCharacter}
			}
		}
		break
	}
	word := l.input[start:l.position]
	if kw, ok := keywords[word]; ok {
		return Token{Type: kw}
	}
	return Token{Type: TokenIdentifier}
}

func (l *Lexer) readNumberToken() Token {
	kind := TokenInteger

	if l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X') {
		l.readChar()
		l.readChar()
		if !isHexDigit(l.ch) {
			l.readWhile(isIdentChar)
			return Token{Type: TokenError, Reason: diagnostic.LexMalformedNumber}
		}
		l.readWhile(func(c byte) bool { return isHexDigit(c) || c == '_' })
	} else {
		l.readWhile(func(c byte) bool { return isDigit(c) || c == '_' })

		// Handle decimal point
		if l.ch == '.' && isDigit(l.peekChar()) {
			kind = TokenFloat
			l.readChar()
			l.readWhile(func(c byte) bool { return isDigit(c) || c == '_' })
		}
		if l.ch == 'e' || l.ch == 'E' {
			next := l.peekChar()
			if isDigit(next) || next == '+' || next == '-' {
				kind = TokenFloat
				l.readChar()
				if l.ch == '+' || l.ch == '-' {
					l.readChar()
				}
				if !isDigit(l.ch) {
					l.readWhile(isIdentChar)
					return Token{Type: TokenError, Reason: diagnostic.LexMalformedNumber}
				}
				l.readWhile(isDigit)
			}
		}
	}

	// Check for malformed number (letters after digits)
	if isLetter(l.ch) || l.ch == '_' {
		l.readWhile(isIdentChar)
		return Token{Type: TokenError, Reason: diagnostic.LexMalformedNumber}
	}
	return Token{Type: kind}
}

// readStringToken reads a single-line string literal, decoding escapes and
// locating interpolation segments.
func (l *Lexer) readStringToken() Token {
	l.readChar() // opening quote

	var (
		segments []Segment
		text     strings.Builder
		textFrom = l.position
		reason   string
		hasExpr  bool
	)

	flush := func(to int) {
		segments = append(segments, Segment{Text: text.String(), Span: l.span(textFrom, to)})
		text.Reset()
	}

	for {
		if l.atEnd() || l.ch == '\n' {
			return Token{Type: TokenError, Reason: diagnostic.LexUnterminatedString}
		}
		if l.ch == '"' {
			flush(l.position)
			l.readChar()
			break
		}
		if l.ch != '\\' {
			text.WriteByte(l.ch)
			l.readChar()
			continue
		}

		escStart := l.position
		l.readChar()
		switch l.ch {
		case 'n':
			text.WriteByte('\n')
		case 't':
			text.WriteByte('\t')
		case 'r':
			text.WriteByte('\r')
		case '0':
			text.WriteByte(0)
		case '\\', '"', '\'':
			text.WriteByte(l.ch)
		case '(':
			flush(escStart)
			exprStart := l.position + 1
			exprEnd, ok := l.skipInterpolation()
			if !ok {
				return Token{Type: TokenError, Reason: diagnostic.LexUnterminatedInterpolation}
			}
			hasExpr = true
			seg := Segment{IsExpr: true, Span: l.span(exprStart, exprEnd)}
			if l.opts.TokenizeInterpolatedString {
				sub := New(l.file, Options{
					Offset:                     exprStart,
					EndOffset:                  exprEnd,
					KeepComments:               l.opts.KeepComments,
					TokenizeInterpolatedString: true,
				})
				for tok := range sub.All() {
					if tok.Type != TokenEOF {
						seg.Tokens = append(seg.Tokens, tok)
					}
				}
			} else {
				seg.Text = l.input[escStart:l.position]
			}
			segments = append(segments, seg)
			textFrom = l.position
			continue
		default:
			if reason == "" {
				reason = diagnostic.LexBadEscape
			}
		}
		if !l.atEnd() && l.ch != '\n' {
			l.readChar()
		}
	}

	if reason != "" {
		return Token{Type: TokenError, Reason: reason}
	}
	if hasExpr && l.opts.TokenizeInterpolatedString {
		return Token{Type: TokenStringInterpolation, Segments: segments}
	}

	var value strings.Builder
	for _, s := range segments {
		value.WriteString(s.Text)
	}
	return Token{Type: TokenString, Value: value.String()}
}

// skipInterpolation is entered on the '(' of `\(`. It stops after the
// matching ')' and returns the offset of that ')'.
func (l *Lexer) skipInterpolation() (int, bool) {
	depth := 0
	for !l.atEnd() {
		switch l.ch {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				closeAt := l.position
				l.readChar()
				return closeAt, true
			}
		case '"':
			// nested string literal inside the expression
			l.readChar()
			for !l.atEnd() && l.ch != '"' && l.ch != '\n' {
				if l.ch == '\\' {
					l.readChar()
				}
				l.readChar()
			}
			if l.ch != '"' {
				return 0, false
			}
		case '\n':
			return 0, false
		}
		l.readChar()
	}
	return 0, false
}

func (l *Lexer) readOperatorToken() Token {
	start := l.position
	for !l.atEnd() && isOperatorChar(l.ch) {
		if l.ch == '/' && (l.peekChar() == '/' || l.peekChar() == '*') && l.position > start {
			break
		}
		l.readChar()
	}
	switch l.input[start:l.position] {
	case "=":
		return Token{Type: TokenAssign}
	case "->":
		return Token{Type: TokenArrow}
	}
	return Token{Type: TokenOperator}
}

func (l *Lexer) readPunctuation() Token {
	ch := l.ch
	l.readChar()
	switch ch {
	case '(':
		return Token{Type: TokenLParen}
	case ')':
		return Token{Type: TokenRParen}
	case '{':
		return Token{Type: TokenLBrace}
	case '}':
		return Token{Type: TokenRBrace}
	case '[':
		return Token{Type: TokenLBracket}
	case ']':
		return Token{Type: TokenRBracket}
	case ',':
		return Token{Type: TokenComma}
	case ':':
		return Token{Type: TokenColon}
	case ';':
		return Token{Type: TokenSemicolon}
	case '.':
		return Token{Type: TokenDot}
	case '@':
		return Token{Type: TokenAt}
	}
	return Token{Type: TokenError, Reason: diagnostic.LexInvalidCharacter}
}

// isLetter checks if character is ASCII letter
func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z'
}

// isDigit checks if character is ASCII digit
func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || 'a' <= ch && ch <= 'f' || 'A' <= ch && ch <= 'F'
}

func isIdentChar(ch byte) bool {
	return isLetter(ch) || isDigit(ch) || ch == '_'
}

func isHorizontalSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\r'
}

// isOperatorChar reports whether ch may appear in an operator spelling.
func isOperatorChar(ch byte) bool {
	switch ch {
	case '+', '-', '*', '/', '%', '=', '<', '>', '!', '&', '|', '^', '~', '?':
		return true
	}
	return false
}

// IsOperatorSpelling reports whether s is a valid custom operator spelling.
func IsOperatorSpelling(s string) bool {
	if s == "" || s == "=" || s == "->" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isOperatorChar(s[i]) {
			return false
		}
	}
	return true
}
