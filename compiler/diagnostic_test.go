package compiler

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestCaretLine(t *testing.T) {
	tests := []struct {
		line string
		col  int
		text string
		want string
	}{
		{"soit x = 5;", 5, "x", "     ^"},
		{"soit x = 5;", 0, "soit", "^~~~"},
		{"\t\tsi n { }", 5, "n", "\t\t   ^"},
		{"\tx = élève;", 5, "élève", "\t    ^~~~~"},
		{"x", 4, "", " ^"},
	}
	for _, tc := range tests {
		if got := CaretLine(tc.line, tc.col, tc.text); got != tc.want {
			t.Errorf("CaretLine(%q, %d, %q) = %q, want %q", tc.line, tc.col, tc.text, got, tc.want)
		}
	}
}

func TestDiagnosticFormat(t *testing.T) {
	d := &Diagnostic{
		Kind:     NoMatchingOverload,
		Message:  "no overload of 'g' accepts these arguments",
		Path:     "a.kuri",
		Token:    Token{Kind: TokenIdentifier, Text: "g", Line: 2, Column: 1},
		LineText: "\tg(vrai);",
		Candidates: []CandidateReport{
			{Name: "g(a : e32) : rien", Path: "a.kuri", Line: 0, Reason: TypeMismatch,
				Argument: "a", Expected: "e32", Obtained: "bool"},
			{Name: "g() : rien", Path: "b.kuri", Line: 4, Reason: ArityMismatch,
				Expected: "0", Obtained: "1"},
		},
	}
	want := `a.kuri:3:2: no matching overload: no overload of 'g' accepts these arguments
	g(vrai);
	^
token: "g" (IDENTIFIER)

candidate: g(a : e32) : rien (a.kuri:1)
	mismatched type for argument 'a'
	required type: e32
	obtained type: bool

candidate: g() : rien (b.kuri:5)
	incorrect number of arguments
	requires 0 arguments
	obtained 1 arguments
`
	if got := d.Format(); got != want {
		t.Errorf("Format() =\n%s\nwant\n%s", got, want)
	}
	if d.Error() != d.Format() {
		t.Error("Error() and Format() differ")
	}
}

func TestDiagnosticFormatVariants(t *testing.T) {
	related := Token{Text: "x", Line: 0, Column: 5}
	d := &Diagnostic{
		Kind:     Redeclaration,
		Message:  "'x' is already declared",
		Token:    Token{Kind: TokenIdentifier, Text: "x", Line: 1, Column: 5},
		Related:  &related,
		LineText: "soit x = 2;",
	}
	got := d.Format()
	if !strings.HasPrefix(got, "<source>:2:6: redeclaration:") {
		t.Errorf("header = %q", strings.SplitN(got, "\n", 2)[0])
	}
	if !strings.Contains(got, `see: "x" at 1:6`) {
		t.Errorf("related span missing:\n%s", got)
	}

	none := &Diagnostic{Kind: NoMatchingOverload, Message: "no function named 'f'", Token: Token{Kind: TokenUnknown}}
	got = none.Format()
	if !strings.Contains(got, "no candidate found") {
		t.Errorf("empty candidate list not explained:\n%s", got)
	}
	if strings.Contains(got, "token:") {
		t.Errorf("unknown token should not be described:\n%s", got)
	}

	unknown := CandidateReport{Reason: UnknownNamedArgument, Argument: "z", Params: []string{"a", "b"}}
	if got := unknown.reason(); !strings.Contains(got, "\t\ta\n\t\tb\n") {
		t.Errorf("parameter listing = %q", got)
	}
}

func TestDiagnosticFromSource(t *testing.T) {
	_, _, err := compileSource("fonction f() {\n\tsoit s = x;\n}")
	if err == nil {
		t.Fatal("expected an error")
	}
	msg := err.Error()
	for _, want := range []string{
		"principal.kuri:2:11: unknown identifier: unknown identifier 'x'",
		"\tsoit s = x;\n\t         ^\n",
		`token: "x" (IDENTIFIER)`,
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message lacks %q:\n%s", want, msg)
		}
	}
}

func TestDiagnosticList(t *testing.T) {
	a := &Diagnostic{Kind: TypeMismatch, Message: "a"}
	b := &Diagnostic{Kind: MissingReturn, Message: "b"}

	if (DiagnosticList{}).Err() != nil {
		t.Error("empty list should be a nil error")
	}
	if err := (DiagnosticList{a}).Err(); err != a {
		t.Errorf("single list Err() = %v, want the diagnostic itself", err)
	}
	err := DiagnosticList{a, b}.Err()
	if got := Diagnostics(err); len(got) != 2 || got[1] != b {
		t.Errorf("Diagnostics = %v", got)
	}
	if KindOf(err) != TypeMismatch {
		t.Errorf("KindOf = %v", KindOf(err))
	}
	if !strings.Contains(err.Error(), ": a\n") || !strings.Contains(err.Error(), ": b\n") {
		t.Errorf("Error() = %q", err.Error())
	}

	wrapped := fmt.Errorf("check: %w", a)
	var d *Diagnostic
	if !errors.As(wrapped, &d) || d != a {
		t.Error("errors.As should find a wrapped diagnostic")
	}
	if KindOf(errors.New("plain")) != ErrNone {
		t.Error("KindOf of a plain error should be ErrNone")
	}
}

func TestErrorKindStage(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{InvalidByteSequence, "lexer"},
		{TrailingCharacters, "lexer"},
		{UnexpectedToken, "parser"},
		{UnsupportedConstruct, "parser"},
		{NestingTooDeep, "parser"},
		{Redeclaration, "validator"},
		{DuplicateMember, "validator"},
	}
	for _, tc := range tests {
		if got := tc.kind.Stage(); got != tc.want {
			t.Errorf("%v.Stage() = %q, want %q", tc.kind, got, tc.want)
		}
	}
	for k := ErrNone; k <= DuplicateMember; k++ {
		if strings.HasPrefix(k.String(), "ErrorKind(") {
			t.Errorf("ErrorKind %d has no name", int(k))
		}
	}
}
