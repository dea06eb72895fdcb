package lexer

import (
	"fmt"
	"strings"

	"github.com/orizon-lang/ozc/internal/position"
)

// TokenType represents the type of a token
type TokenType int

// String returns a string representation of the token type
func (tt TokenType) String() string {
	if name, ok := tokenNames[tt]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(tt))
}

const (
	// special
	TokenEOF TokenType = iota
	TokenError
	TokenComment

	// literals
	TokenIdentifier
	TokenInteger
	TokenFloat
	TokenString
	TokenStringInterpolation
	TokenOperator

	// keywords
	TokenFunc
	TokenLet
	TokenVar
	TokenStruct
	TokenProtocol
	TokenImport
	TokenIf
	TokenElse
	TokenWhile
	TokenReturn
	TokenBreak
	TokenContinue
	TokenTrue
	TokenFalse
	TokenIn
	TokenInfix
	TokenPrefix
	TokenOperatorKw
	TokenPrecedenceGroup
	TokenPrivate
	TokenMIR

	// punctuation
	TokenLParen
	TokenRParen
	TokenLBrace
	TokenRBrace
	TokenLBracket
	TokenRBracket
	TokenComma
	TokenColon
	TokenSemicolon
	TokenDot
	TokenArrow
	TokenAssign
	TokenAt
)

// tokenNames provides string representations for token types
var tokenNames = map[TokenType]string{
	TokenEOF:     "EOF",
	TokenError:   "ERROR",
	TokenComment: "COMMENT",

	TokenIdentifier:          "IDENTIFIER",
	TokenInteger:             "INTEGER",
	TokenFloat:               "FLOAT",
	TokenString:              "STRING",
	TokenStringInterpolation: "STRING_INTERPOLATION",
	TokenOperator:            "OPERATOR",

	TokenFunc:            "FUNC",
	TokenLet:             "LET",
	TokenVar:             "VAR",
	TokenStruct:          "STRUCT",
	TokenProtocol:        "PROTOCOL",
	TokenImport:          "IMPORT",
	TokenIf:              "IF",
	TokenElse:            "ELSE",
	TokenWhile:           "WHILE",
	TokenReturn:          "RETURN",
	TokenBreak:           "BREAK",
	TokenContinue:        "CONTINUE",
	TokenTrue:            "TRUE",
	TokenFalse:           "FALSE",
	TokenIn:              "IN",
	TokenInfix:           "INFIX",
	TokenPrefix:          "PREFIX",
	TokenOperatorKw:      "OPERATOR_KW",
	TokenPrecedenceGroup: "PRECEDENCEGROUP",
	TokenPrivate:         "PRIVATE",
	TokenMIR:             "MIR",

	TokenLParen:    "LPAREN",
	TokenRParen:    "RPAREN",
	TokenLBrace:    "LBRACE",
	TokenRBrace:    "RBRACE",
	TokenLBracket:  "LBRACKET",
	TokenRBracket:  "RBRACKET",
	TokenComma:     "COMMA",
	TokenColon:     "COLON",
	TokenSemicolon: "SEMICOLON",
	TokenDot:       "DOT",
	TokenArrow:     "ARROW",
	TokenAssign:    "ASSIGN",
	TokenAt:        "AT",
}

// keywords maps string keywords to their token types
var keywords = map[string]TokenType{
	"func":            TokenFunc,
	"let":             TokenLet,
	"var":             TokenVar,
	"struct":          TokenStruct,
	"protocol":        TokenProtocol,
	"import":          TokenImport,
	"if":              TokenIf,
	"else":            TokenElse,
	"while":           TokenWhile,
	"return":          TokenReturn,
	"break":           TokenBreak,
	"continue":        TokenContinue,
	"true":            TokenTrue,
	"false":           TokenFalse,
	"in":              TokenIn,
	"infix":           TokenInfix,
	"prefix":          TokenPrefix,
	"operator":        TokenOperatorKw,
	"precedencegroup": TokenPrecedenceGroup,
	"private":         TokenPrivate,
	"mir":             TokenMIR,
}

// IsKeyword reports whether tt is a reserved word.
func (tt TokenType) IsKeyword() bool {
	return tt >= TokenFunc && tt <= TokenMIR
}

// TriviaKind classifies text attached to a token that carries no syntax.
type TriviaKind int

const (
	TriviaWhitespace TriviaKind = iota
	TriviaNewline
	TriviaLineComment
	TriviaBlockComment
)

// Trivia is a run of whitespace or a comment.
type Trivia struct {
	Kind TriviaKind
	Text string
}

// Segment is one piece of an interpolated string literal: either literal
// text or the token run of an embedded `\( ... )` expression.
type Segment struct {
	Text   string
	Tokens []Token
	Span   position.Span
	IsExpr bool
}

// Token represents a lexical token with position information.
// Tokens are immutable once produced.
type Token struct {
	Type    TokenType
	Literal string // exact source text
	Value   string // decoded value of string literals
	Span    position.Span

	Leading  []Trivia
	Trailing []Trivia

	// Segments is set for TokenStringInterpolation.
	Segments []Segment

	// Reason is the diagnostic key explaining a TokenError.
	Reason string
}

// Offset returns the byte offset of the token start.
func (t Token) Offset() int { return t.Span.Start.Offset }

// End returns the byte offset just past the token.
func (t Token) End() int { return t.Span.End.Offset }

// AtStartOfLine reports whether a newline precedes the token.
func (t Token) AtStartOfLine() bool {
	for _, tr := range t.Leading {
		if tr.Kind == TriviaNewline {
			return true
		}
	}
	return false
}

// IsOperator reports whether the token is an operator with the given spelling.
func (t Token) IsOperator(spelling string) bool {
	return t.Type == TokenOperator && t.Literal == spelling
}

// String returns a string representation of the token
func (t Token) String() string {
	return fmt.Sprintf("{Type: %s, Literal: %q, Pos: %s}", t.Type, t.Literal, t.Span.Start)
}

// Describe renders the token for "expected X, found Y" diagnostics.
func (t Token) Describe() string {
	switch t.Type {
	case TokenEOF:
		return "end of input"
	case TokenIdentifier:
		return fmt.Sprintf("identifier %q", t.Literal)
	case TokenError:
		return "invalid token"
	}
	if t.Literal != "" {
		return "'" + strings.TrimSpace(t.Literal) + "'"
	}
	return t.Type.String()
}
