// Package astdump renders a validated kuri tree as YAML for people writing
// code generators against it.
package astdump

import (
	"fmt"
	"strconv"

	"github.com/diekev/delsace-sub011/compiler"
	"gopkg.in/yaml.v3"
)

// Node is the YAML shape of one tree node.
type Node struct {
	Kind     string   `yaml:"kind"`
	Line     int      `yaml:"line"`
	Column   int      `yaml:"column"`
	Text     string   `yaml:"text,omitempty"`
	Type     string   `yaml:"type,omitempty"`
	Value    string   `yaml:"value,omitempty"`
	Target   string   `yaml:"target,omitempty"`
	Hint     string   `yaml:"hint,omitempty"`
	Flags    []string `yaml:"flags,omitempty"`
	Names    []string `yaml:"names,omitempty"`
	Children []*Node  `yaml:"children,omitempty"`
}

// Module is the YAML document for one module.
type Module struct {
	Module string  `yaml:"module"`
	Path   string  `yaml:"path"`
	Root   []*Node `yaml:"declarations"`
}

var flagNames = []struct {
	bit  compiler.NodeFlags
	name string
}{
	{compiler.FlagDeclaration, "declaration"},
	{compiler.FlagMutable, "mutable"},
	{compiler.FlagConstant, "constant"},
	{compiler.FlagNeedsDeref, "deref"},
	{compiler.FlagConvertArray, "convert-array"},
	{compiler.FlagBoxAny, "box-eini"},
	{compiler.FlagUnboxAny, "unbox-eini"},
	{compiler.FlagExtractCString, "extract-cstring"},
	{compiler.FlagConvertByteArray, "convert-octets"},
	{compiler.FlagTakeReference, "take-reference"},
	{compiler.FlagExternal, "external"},
	{compiler.FlagIgnoreOperator, "ignore-operator"},
	{compiler.FlagFailed, "failed"},
}

// FlagNames lists the names of the bits set in f, lowest bit first.
func FlagNames(f compiler.NodeFlags) []string {
	var out []string
	for _, fn := range flagNames {
		if f.Has(fn.bit) {
			out = append(out, fn.name)
		}
	}
	return out
}

// Build converts the tree of m into its YAML shape.
func Build(c *compiler.Context, m *compiler.Module) *Module {
	out := &Module{Module: m.Name, Path: m.Path}
	root := c.Arena.Get(m.Root)
	if root == nil {
		return out
	}
	for _, id := range root.Children {
		if n := build(c, id); n != nil {
			out.Root = append(out.Root, n)
		}
	}
	return out
}

func build(c *compiler.Context, id compiler.NodeID) *Node {
	n := c.Arena.Get(id)
	if n == nil {
		return nil
	}
	d := &Node{
		Kind:   n.Kind.String(),
		Line:   n.Token.Line + 1,
		Column: n.Token.Column + 1,
		Text:   n.Token.Text,
		Hint:   n.Hint.String(),
		Flags:  FlagNames(n.Flags),
		Names:  n.Names,
	}
	if n.Type != compiler.TypeUnresolved {
		d.Type = c.Types.Text(n.Type)
	}
	d.Value = value(n)
	if n.Func != nil {
		d.Target = n.Func.MangledName
		if d.Target == "" {
			d.Target = n.Func.Name
		}
	}
	for _, child := range n.Children {
		if cn := build(c, child); cn != nil {
			d.Children = append(d.Children, cn)
		}
	}
	return d
}

func value(n *compiler.Node) string {
	switch n.Kind {
	case compiler.NodeIntLiteral, compiler.NodeCharLiteral:
		return strconv.FormatInt(n.Int, 10)
	case compiler.NodeRealLiteral:
		return strconv.FormatFloat(n.Real, 'g', -1, 64)
	case compiler.NodeBoolLiteral:
		return strconv.FormatBool(n.Bool)
	case compiler.NodeStringLiteral:
		return strconv.Quote(n.Str)
	case compiler.NodeBinaryOp, compiler.NodeUnaryOp, compiler.NodeMemberAccess,
		compiler.NodeVariable, compiler.NodeFunctionDecl, compiler.NodeBreakContinue:
		return n.Str
	case compiler.NodeFor:
		return n.Label
	}
	return ""
}

// Marshal renders the tree of m as YAML.
func Marshal(c *compiler.Context, m *compiler.Module) ([]byte, error) {
	data, err := yaml.Marshal(Build(c, m))
	if err != nil {
		return nil, fmt.Errorf("astdump: marshal %s: %w", m.Name, err)
	}
	return data, nil
}

// Unmarshal reads back a document written by Marshal.
func Unmarshal(data []byte) (*Module, error) {
	var m Module
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("astdump: unmarshal: %w", err)
	}
	return &m, nil
}
