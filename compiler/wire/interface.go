// Package wire encodes the interface of a validated kuri module as
// canonical CBOR. Code generators and the module cache read it back without
// re-running the front end; the embedded fingerprint ties an encoding to
// the exact interface it was computed from.
package wire

import (
	"crypto/sha256"

	"github.com/diekev/delsace-sub011/compiler"
	"github.com/diekev/delsace-sub011/compiler/hash"
)

// Interface is everything a module exposes to its importers.
type Interface struct {
	Version     byte        `cbor:"1,keyasint"`
	Module      string      `cbor:"2,keyasint"`
	Path        string      `cbor:"3,keyasint"`
	Fingerprint [32]byte    `cbor:"4,keyasint"`
	SourceHash  [32]byte    `cbor:"5,keyasint"`
	Imports     []string    `cbor:"6,keyasint,omitempty"`
	Structures  []Structure `cbor:"7,keyasint,omitempty"`
	Enums       []Enum      `cbor:"8,keyasint,omitempty"`
	Globals     []Global    `cbor:"9,keyasint,omitempty"`
	Functions   []Function  `cbor:"10,keyasint,omitempty"`
}

// Function is one overload. Symbol is the name a code generator emits.
type Function struct {
	Name      string  `cbor:"1,keyasint"`
	Symbol    string  `cbor:"2,keyasint"`
	Params    []Param `cbor:"3,keyasint,omitempty"`
	Return    string  `cbor:"4,keyasint"`
	External  bool    `cbor:"5,keyasint,omitempty"`
	Coroutine bool    `cbor:"6,keyasint,omitempty"`
	Variadic  bool    `cbor:"7,keyasint,omitempty"`
}

// Param is one parameter; Type is the canonical type text.
type Param struct {
	Name     string `cbor:"1,keyasint"`
	Type     string `cbor:"2,keyasint"`
	Variadic bool   `cbor:"3,keyasint,omitempty"`
}

// Structure is a structure with its members in declaration order.
type Structure struct {
	Name    string   `cbor:"1,keyasint"`
	Size    uint32   `cbor:"2,keyasint"`
	Members []Member `cbor:"3,keyasint,omitempty"`
}

// Member is one structure field.
type Member struct {
	Name       string `cbor:"1,keyasint"`
	Type       string `cbor:"2,keyasint"`
	HasDefault bool   `cbor:"3,keyasint,omitempty"`
}

// Enum is an enum with its values in declaration order.
type Enum struct {
	Name   string      `cbor:"1,keyasint"`
	Base   string      `cbor:"2,keyasint"`
	Values []EnumValue `cbor:"3,keyasint,omitempty"`
}

// EnumValue is one enum constant.
type EnumValue struct {
	Name  string `cbor:"1,keyasint"`
	Value int64  `cbor:"2,keyasint"`
}

// Global is a module-level variable.
type Global struct {
	Name    string `cbor:"1,keyasint"`
	Type    string `cbor:"2,keyasint"`
	Mutable bool   `cbor:"3,keyasint,omitempty"`
}

// FromModule extracts the interface of a validated module.
func FromModule(c *compiler.Context, m *compiler.Module) *Interface {
	hm := hash.NormalizeModule(c, m)
	iface := &Interface{
		Version:     hash.HashVersion,
		Module:      m.Name,
		Path:        m.Path,
		Fingerprint: sha256.Sum256(hash.Serialize(hm)),
		SourceHash:  SourceHash(m.Source),
		Imports:     hm.Imports,
	}

	for _, s := range hm.Structures {
		ws := Structure{Name: s.Name}
		if st, ok := c.Structure(s.Name); ok {
			ws.Size = c.Types.SizeOf(st.Type)
		}
		for _, mb := range s.Members {
			ws.Members = append(ws.Members, Member{Name: mb.Name, Type: mb.Type.Text, HasDefault: mb.HasDefault})
		}
		iface.Structures = append(iface.Structures, ws)
	}
	for _, e := range hm.Enums {
		we := Enum{Name: e.Name, Base: e.Base.Text}
		for _, v := range e.Values {
			we.Values = append(we.Values, EnumValue{Name: v.Name, Value: v.Value})
		}
		iface.Enums = append(iface.Enums, we)
	}
	for _, g := range hm.Globals {
		iface.Globals = append(iface.Globals, Global{Name: g.Name, Type: g.Type.Text, Mutable: g.Mutable})
	}
	for _, f := range hm.Functions {
		wf := Function{
			Name:      f.Name,
			Symbol:    f.Symbol,
			Return:    f.Return.Text,
			External:  f.External,
			Coroutine: f.Coroutine,
			Variadic:  f.Variadic,
		}
		for _, p := range f.Params {
			wf.Params = append(wf.Params, Param{Name: p.Name, Type: p.Type.Text, Variadic: p.Variadic})
		}
		iface.Functions = append(iface.Functions, wf)
	}
	return iface
}

// SourceHash is the SHA-256 of a module's source text.
func SourceHash(source string) [32]byte {
	return sha256.Sum256([]byte(source))
}

// Lookup returns the overloads of name in declaration order.
func (i *Interface) Lookup(name string) []Function {
	var out []Function
	for _, f := range i.Functions {
		if f.Name == name {
			out = append(out, f)
		}
	}
	return out
}
