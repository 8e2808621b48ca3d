package server

import (
	"github.com/diekev/delsace-sub011/compiler"
	"github.com/diekev/delsace-sub011/compiler/wire"
)

// ---------------------------------------------------------------------------
// Messages of the kuri.v1 Connect services. They travel as CBOR.
// ---------------------------------------------------------------------------

// CheckRequest asks for one module to be compiled.
type CheckRequest struct {
	SessionID  string `cbor:"1,keyasint,omitempty"`
	Module     string `cbor:"2,keyasint"`
	Path       string `cbor:"3,keyasint,omitempty"`
	Source     string `cbor:"4,keyasint"`
	CollectAll bool   `cbor:"5,keyasint,omitempty"`
}

// CheckResponse reports the outcome of a check. On success CompileID names
// the stored interface.
type CheckResponse struct {
	Valid       bool            `cbor:"1,keyasint"`
	CompileID   string          `cbor:"2,keyasint,omitempty"`
	Fingerprint string          `cbor:"3,keyasint,omitempty"`
	Diagnostics []Diagnostic    `cbor:"4,keyasint,omitempty"`
	Interface   *wire.Interface `cbor:"5,keyasint,omitempty"`
	Cached      bool            `cbor:"6,keyasint,omitempty"`
}

// Diagnostic is a compiler diagnostic flattened for transport. Line and
// Column are zero-based.
type Diagnostic struct {
	Kind       string      `cbor:"1,keyasint"`
	Stage      string      `cbor:"2,keyasint"`
	Message    string      `cbor:"3,keyasint"`
	Path       string      `cbor:"4,keyasint,omitempty"`
	Line       int         `cbor:"5,keyasint"`
	Column     int         `cbor:"6,keyasint"`
	Length     int         `cbor:"7,keyasint"`
	Formatted  string      `cbor:"8,keyasint"`
	Candidates []Candidate `cbor:"9,keyasint,omitempty"`
}

// Candidate is one rejected overload of a NoMatchingOverload diagnostic.
type Candidate struct {
	Signature string `cbor:"1,keyasint"`
	Reason    string `cbor:"2,keyasint"`
	Path      string `cbor:"3,keyasint,omitempty"`
	Line      int    `cbor:"4,keyasint"`
}

// TokensRequest asks for the token stream of a source text.
type TokensRequest struct {
	Source string `cbor:"1,keyasint"`
}

// TokensResponse carries the tokens, or the tokenizer diagnostic.
type TokensResponse struct {
	Tokens     []Token     `cbor:"1,keyasint,omitempty"`
	Diagnostic *Diagnostic `cbor:"2,keyasint,omitempty"`
}

// Token is one token; Line and Column are zero-based.
type Token struct {
	Kind   string `cbor:"1,keyasint"`
	Text   string `cbor:"2,keyasint"`
	Line   int    `cbor:"3,keyasint"`
	Column int    `cbor:"4,keyasint"`
}

// InterfaceRequest fetches the interface stored by a successful check.
type InterfaceRequest struct {
	CompileID string `cbor:"1,keyasint"`
}

// InterfaceResponse carries the canonical CBOR encoding of the interface.
type InterfaceResponse struct {
	Data []byte `cbor:"1,keyasint"`
}

// CreateSessionRequest opens a session.
type CreateSessionRequest struct {
	Name string `cbor:"1,keyasint,omitempty"`
}

// CreateSessionResponse names the new session.
type CreateSessionResponse struct {
	SessionID string `cbor:"1,keyasint"`
}

// DestroySessionRequest closes a session.
type DestroySessionRequest struct {
	SessionID string `cbor:"1,keyasint"`
}

// DestroySessionResponse is empty.
type DestroySessionResponse struct{}

// CompleteRequest asks for declared names starting with Prefix.
type CompleteRequest struct {
	SessionID string `cbor:"1,keyasint"`
	Prefix    string `cbor:"2,keyasint"`
}

// CompleteResponse lists completion candidates.
type CompleteResponse struct {
	Items []CompletionItem `cbor:"1,keyasint,omitempty"`
}

// CompletionItem is one completion candidate.
type CompletionItem struct {
	Label  string `cbor:"1,keyasint"`
	Kind   string `cbor:"2,keyasint"`
	Detail string `cbor:"3,keyasint,omitempty"`
}

// diagnosticMessage flattens a compiler diagnostic.
func diagnosticMessage(d *compiler.Diagnostic) Diagnostic {
	out := Diagnostic{
		Kind:      d.Kind.String(),
		Stage:     d.Kind.Stage(),
		Message:   d.Message,
		Path:      d.Path,
		Line:      d.Token.Line,
		Column:    d.Token.Column,
		Length:    len([]rune(d.Token.Text)),
		Formatted: d.Format(),
	}
	for _, c := range d.Candidates {
		out.Candidates = append(out.Candidates, Candidate{
			Signature: c.Name,
			Reason:    c.Reason.String(),
			Path:      c.Path,
			Line:      c.Line,
		})
	}
	return out
}

// diagnosticMessages flattens every diagnostic carried by err. Errors that
// are not diagnostics (cancellation, loader failures) become one entry.
func diagnosticMessages(err error) []Diagnostic {
	ds := compiler.Diagnostics(err)
	if len(ds) == 0 {
		return []Diagnostic{{Kind: "error", Stage: "driver", Message: err.Error(), Formatted: err.Error()}}
	}
	out := make([]Diagnostic, len(ds))
	for i, d := range ds {
		out[i] = diagnosticMessage(d)
	}
	return out
}
