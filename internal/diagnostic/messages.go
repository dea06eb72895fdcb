package diagnostic

import (
	"fmt"
	"io"
	"strings"

	"github.com/orizon-lang/ozc/internal/cli"
)

// Message keys emitted by the pipeline.
const (
	LexUnterminatedString        = "lex.unterminated_string"
	LexUnterminatedComment       = "lex.unterminated_comment"
	LexUnterminatedInterpolation = "lex.unterminated_interpolation"
	LexMalformedNumber           = "lex.malformed_number"
	LexInvalidCharacter          = "lex.invalid_character"
	LexBadEscape                 = "lex.bad_escape"

	ParseExpected         = "parse.expected"
	ParseUnexpectedToken  = "parse.unexpected_token"
	ParseBodyRequired     = "parse.body_required"
	ParseIRWithoutContext = "parse.ir_without_context"
	ParseIRInvalid        = "parse.ir_invalid"
	ParseNotTopLevel      = "parse.not_top_level"
	ParseStatementInLib   = "parse.statement_outside_main"

	BindUnresolved          = "bind.unresolved"
	BindAmbiguous           = "bind.ambiguous"
	BindUnknownModule       = "bind.unknown_module"
	BindNoMatchingVersion   = "bind.no_matching_version"
	BindRedeclared          = "bind.redeclared"
	BindUnknownOperator     = "bind.unknown_operator"
	BindUnknownPrecedence   = "bind.unknown_precedence_group"
	BindNonAssociative      = "bind.non_associative"
	BindUnorderedPrecedence = "bind.unordered_precedence"
	BindNotAType            = "bind.not_a_type"

	TypeConflict             = "type.conflict"
	TypeCannotInfer          = "type.cannot_infer"
	TypeNotConforming        = "type.not_conforming"
	TypeMissingRequirement   = "type.missing_requirement"
	TypeArgCount             = "type.arg_count"
	TypeNotCallable          = "type.not_callable"
	TypeNoMember             = "type.no_member"
	TypePrivateMember        = "type.private_member"
	TypeImmutableAssign      = "type.immutable_assign"
	TypeMissingReturn        = "type.missing_return"
	TypeUnsupportedRequire   = "type.unsupported_requirement"
	TypeGenericArity         = "type.generic_arity"
	TypeInvalidEquatable     = "type.invalid_equatable"
	TypeNotAValue            = "type.not_a_value"
	TypeBreakOutsideLoop     = "type.break_outside_loop"
	TypeReturnOutsideFunc    = "type.return_outside_function"
	TypeInterpolationSegment = "type.interpolation_segment"

	LowerSkipped = "lower.skipped"
)

// Templates maps message keys to printf-style templates taking the
// diagnostic's Args in order. Only renderers use it.
var Templates = map[string]string{
	LexUnterminatedString:        "unterminated string literal",
	LexUnterminatedComment:       "unterminated block comment",
	LexUnterminatedInterpolation: "unterminated interpolation in string literal",
	LexMalformedNumber:           "malformed number literal %q",
	LexInvalidCharacter:          "invalid character %q",
	LexBadEscape:                 "invalid escape sequence %q",

	ParseExpected:         "expected %s, found %s",
	ParseUnexpectedToken:  "unexpected %s in %s",
	ParseBodyRequired:     "function %q requires a body",
	ParseIRWithoutContext: "mir block requires an IR parsing context",
	ParseIRInvalid:        "invalid textual MIR: %s",
	ParseNotTopLevel:      "%s is only allowed at top level",
	ParseStatementInLib:   "top-level statements are only allowed in the main unit",

	BindUnresolved:          "cannot find %q in scope",
	BindAmbiguous:           "ambiguous use of %q (%s candidates)",
	BindUnknownModule:       "no such module %q",
	BindNoMatchingVersion:   "no version of module %q satisfies %q",
	BindRedeclared:          "invalid redeclaration of %q",
	BindUnknownOperator:     "operator %q is not declared",
	BindUnknownPrecedence:   "unknown precedence group %q",
	BindNonAssociative:      "adjacent non-associative operators %q and %q",
	BindUnorderedPrecedence: "operators %q and %q have no relative precedence",
	BindNotAType:            "%q is not a type",

	TypeConflict:             "conflicting constraints: %s and %s",
	TypeCannotInfer:          "cannot infer type for %s",
	TypeNotConforming:        "type %s does not conform to protocol %s",
	TypeMissingRequirement:   "type %s is missing %q required by protocol %s",
	TypeArgCount:             "expected %s arguments, got %s",
	TypeNotCallable:          "value of type %s is not callable",
	TypeNoMember:             "type %s has no member %q",
	TypePrivateMember:        "%q is private to %s",
	TypeImmutableAssign:      "cannot assign to immutable %q",
	TypeMissingReturn:        "missing return in function %q returning %s",
	TypeUnsupportedRequire:   "unsupported requirement %s",
	TypeGenericArity:         "type %s takes no generic arguments",
	TypeInvalidEquatable:     "struct %s cannot be Equatable: field %q of type %s is not Equatable",
	TypeNotAValue:            "%q is not a value",
	TypeBreakOutsideLoop:     "%s outside of a loop",
	TypeReturnOutsideFunc:    "return outside of a function",
	TypeInterpolationSegment: "cannot interpolate value of type %s",

	LowerSkipped: "%s %q skipped during lowering: it has type errors",
}

// Format fills the template for d. Unknown keys fall back to the key plus args.
func Format(d Diagnostic) string {
	tmpl, ok := Templates[d.Code]
	if !ok {
		return d.Code + " " + strings.Join(d.Args, " ")
	}
	args := make([]interface{}, len(d.Args))
	for i, a := range d.Args {
		args[i] = a
	}
	return fmt.Sprintf(tmpl, args...)
}

// Render writes one line per diagnostic in the conventional
// "file:line:col: level: message" shape.
func Render(w io.Writer, diags []Diagnostic, color bool) {
	for _, d := range diags {
		code := "36"
		switch d.Level {
		case DiagnosticError:
			code = "31"
		case DiagnosticWarning:
			code = "33"
		}

		level := cli.Colorize(color, code, d.Level.String())
		fmt.Fprintf(w, "%s: %s: %s [%s]\n", d.Span.Start, level, Format(d), d.Code)
	}
}
