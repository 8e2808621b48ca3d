package compiler

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Diagnostics: error kinds and source-pointing formatting
// ---------------------------------------------------------------------------

// ErrorKind classifies a diagnostic for programmatic matching.
type ErrorKind int

const (
	ErrNone ErrorKind = iota

	// Tokenizer
	InvalidByteSequence
	MalformedNumber
	UnterminatedLiteral
	TrailingCharacters

	// Parser
	UnexpectedToken
	UnmatchedParenthesis
	UnsupportedConstruct
	NestingTooDeep

	// Validator
	Redeclaration
	UnknownIdentifier
	UnknownType
	UnknownMember
	TypeMismatch
	InvalidAssignmentTarget
	ArityMismatch
	UnknownNamedArgument
	DuplicateNamedArgument
	MisplacedPositionalArgument
	NoMatchingOverload
	MissingReturn
	ReturnTypeMismatch
	InvalidControlTransfer
	RecursiveValueMember
	DuplicateMember
)

var errorKindNames = [...]string{
	ErrNone:                     "error",
	InvalidByteSequence:         "invalid byte sequence",
	MalformedNumber:             "malformed number",
	UnterminatedLiteral:         "unterminated literal",
	TrailingCharacters:          "trailing characters",
	UnexpectedToken:             "unexpected token",
	UnmatchedParenthesis:        "unmatched parenthesis",
	UnsupportedConstruct:        "unsupported construct",
	NestingTooDeep:              "nesting too deep",
	Redeclaration:               "redeclaration",
	UnknownIdentifier:           "unknown identifier",
	UnknownType:                 "unknown type",
	UnknownMember:               "unknown member",
	TypeMismatch:                "type mismatch",
	InvalidAssignmentTarget:     "invalid assignment target",
	ArityMismatch:               "arity mismatch",
	UnknownNamedArgument:        "unknown named argument",
	DuplicateNamedArgument:      "duplicate named argument",
	MisplacedPositionalArgument: "misplaced positional argument",
	NoMatchingOverload:          "no matching overload",
	MissingReturn:               "missing return",
	ReturnTypeMismatch:          "return type mismatch",
	InvalidControlTransfer:      "invalid control transfer",
	RecursiveValueMember:        "recursive value member",
	DuplicateMember:             "duplicate member",
}

func (k ErrorKind) String() string {
	if k >= 0 && int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Stage names the pipeline stage that raises diagnostics of this kind.
func (k ErrorKind) Stage() string {
	switch {
	case k >= InvalidByteSequence && k <= TrailingCharacters:
		return "lexer"
	case k >= UnexpectedToken && k <= NestingTooDeep:
		return "parser"
	default:
		return "validator"
	}
}

// CandidateReport explains why one overload candidate was rejected.
type CandidateReport struct {
	Name     string
	Path     string
	Line     int
	Reason   ErrorKind
	Argument string // offending argument name, when relevant
	Expected string // required type text, or required count
	Obtained string // obtained type text, or obtained count
	Params   []string
}

// reason renders the indented explanation lines of a candidate block.
func (c CandidateReport) reason() string {
	var b strings.Builder
	switch c.Reason {
	case ArityMismatch:
		fmt.Fprintf(&b, "\tincorrect number of arguments\n")
		fmt.Fprintf(&b, "\trequires %s arguments\n", c.Expected)
		fmt.Fprintf(&b, "\tobtained %s arguments\n", c.Obtained)
	case UnknownNamedArgument:
		fmt.Fprintf(&b, "\tunknown argument '%s'\n", c.Argument)
		if len(c.Params) > 0 {
			b.WriteString("\tthe parameters of the function are:\n")
			for _, p := range c.Params {
				fmt.Fprintf(&b, "\t\t%s\n", p)
			}
		}
	case DuplicateNamedArgument:
		fmt.Fprintf(&b, "\targument '%s' was already named\n", c.Argument)
	case MisplacedPositionalArgument:
		b.WriteString("\tpositional argument after a named argument\n")
	case TypeMismatch:
		fmt.Fprintf(&b, "\tmismatched type for argument '%s'\n", c.Argument)
		fmt.Fprintf(&b, "\trequired type: %s\n", c.Expected)
		fmt.Fprintf(&b, "\tobtained type: %s\n", c.Obtained)
	default:
		fmt.Fprintf(&b, "\t%s\n", c.Reason)
	}
	return b.String()
}

// Diagnostic is a source-pointing front-end error.
type Diagnostic struct {
	Kind    ErrorKind
	Message string
	Path    string
	Token   Token

	// Related is a second span (for example the declaration a mismatch
	// refers to). Its zero value means no second span.
	Related *Token

	Candidates []CandidateReport

	// LineText is the source line Token points into, captured at creation.
	LineText string
}

// newDiagnostic builds a diagnostic pointing at tok inside src.
func newDiagnostic(kind ErrorKind, src string, tok Token, format string, args ...any) *Diagnostic {
	return &Diagnostic{
		Kind:     kind,
		Message:  fmt.Sprintf(format, args...),
		Token:    tok,
		LineText: lineAt(src, tok.Offset),
	}
}

func (d *Diagnostic) Error() string {
	return d.Format()
}

// Format renders the diagnostic: a header, the source line, a caret line
// and the token description, followed by one block per rejected candidate.
func (d *Diagnostic) Format() string {
	var b strings.Builder

	path := d.Path
	if path == "" {
		path = "<source>"
	}
	fmt.Fprintf(&b, "%s:%d:%d: %s: %s\n", path, d.Token.Line+1, d.Token.Column+1, d.Kind, d.Message)

	b.WriteString(d.LineText)
	b.WriteByte('\n')
	b.WriteString(CaretLine(d.LineText, d.Token.Column, d.Token.Text))
	b.WriteByte('\n')

	if d.Token.Kind != TokenUnknown {
		fmt.Fprintf(&b, "token: %q (%s)\n", d.Token.Text, d.Token.Kind)
	}

	if d.Related != nil {
		fmt.Fprintf(&b, "see: %q at %d:%d\n", d.Related.Text, d.Related.Line+1, d.Related.Column+1)
	}

	if d.Kind == NoMatchingOverload && len(d.Candidates) == 0 {
		b.WriteString("no candidate found; check that the function exists in the current or an imported module\n")
	}
	for _, c := range d.Candidates {
		fmt.Fprintf(&b, "\ncandidate: %s (%s:%d)\n", c.Name, c.Path, c.Line+1)
		b.WriteString(c.reason())
	}

	return b.String()
}

// CaretLine builds the underline for a token starting at byte column col of
// line. Tabs before the token are kept so the caret lines up under mixed
// indentation; the token itself becomes '^' then one '~' per remaining
// code point.
func CaretLine(line string, col int, text string) string {
	var b strings.Builder
	if col > len(line) {
		col = len(line)
	}
	for _, r := range line[:col] {
		if r == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	b.WriteByte('^')
	if n := utf8.RuneCountInString(text); n > 1 {
		b.WriteString(strings.Repeat("~", n-1))
	}
	return b.String()
}

// lineAt returns the full line of src containing offset, without newline.
func lineAt(src string, offset int) string {
	if offset > len(src) {
		offset = len(src)
	}
	if offset < 0 {
		offset = 0
	}
	start := strings.LastIndexByte(src[:offset], '\n') + 1
	end := strings.IndexByte(src[offset:], '\n')
	if end < 0 {
		end = len(src)
	} else {
		end += offset
	}
	return strings.TrimSuffix(src[start:end], "\r")
}

// ---------------------------------------------------------------------------
// DiagnosticList
// ---------------------------------------------------------------------------

// DiagnosticList collects diagnostics in multi-diagnostic mode.
type DiagnosticList []*Diagnostic

func (l DiagnosticList) Error() string {
	parts := make([]string, len(l))
	for i, d := range l {
		parts[i] = d.Format()
	}
	return strings.Join(parts, "\n")
}

// Err returns nil for an empty list, the single diagnostic for a list of
// one, and the list itself otherwise.
func (l DiagnosticList) Err() error {
	switch len(l) {
	case 0:
		return nil
	case 1:
		return l[0]
	default:
		return l
	}
}

// Diagnostics flattens err into the diagnostics it carries. Non-diagnostic
// errors yield nil.
func Diagnostics(err error) []*Diagnostic {
	switch e := err.(type) {
	case nil:
		return nil
	case *Diagnostic:
		return []*Diagnostic{e}
	case DiagnosticList:
		return e
	}
	return nil
}

// KindOf returns the kind of the first diagnostic carried by err.
func KindOf(err error) ErrorKind {
	if ds := Diagnostics(err); len(ds) > 0 {
		return ds[0].Kind
	}
	return ErrNone
}
