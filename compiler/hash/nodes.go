package hash

// ---------------------------------------------------------------------------
// Frozen interface nodes.
//
// These mirror the declarations a module exposes to its importers, stripped
// of positions, bodies and context-specific type ids. Every slice is kept
// in a canonical order by the normalizer.
// ---------------------------------------------------------------------------

// HNode is the marker interface for interface nodes.
type HNode interface {
	hnode()
}

// HType is a type written in its canonical text form ("*e32",
// "fonction(r64)bool", "Noeud").
type HType struct {
	Text string
}

// HParam is one function parameter. Names are part of the interface since
// callers may pass arguments by name.
type HParam struct {
	Name     string
	Type     *HType
	Variadic bool
}

// HFunction is one overload.
type HFunction struct {
	Name      string
	Symbol    string
	Params    []*HParam
	Return    *HType
	External  bool
	Coroutine bool
	Variadic  bool
}

// HMember is one structure field.
type HMember struct {
	Name       string
	Type       *HType
	HasDefault bool
}

// HStructure is a declared structure, members in declaration order.
type HStructure struct {
	Name    string
	Members []*HMember
}

// HEnumValue is one enum constant.
type HEnumValue struct {
	Name  string
	Value int64
}

// HEnum is a declared enum, values in declaration order.
type HEnum struct {
	Name   string
	Base   *HType
	Values []*HEnumValue
}

// HGlobal is a module-level variable.
type HGlobal struct {
	Name    string
	Type    *HType
	Mutable bool
}

// HModule is the full interface of a module.
type HModule struct {
	Name       string
	Imports    []string
	Structures []*HStructure
	Enums      []*HEnum
	Globals    []*HGlobal
	Functions  []*HFunction
}

func (*HType) hnode()      {}
func (*HParam) hnode()     {}
func (*HFunction) hnode()  {}
func (*HMember) hnode()    {}
func (*HStructure) hnode() {}
func (*HEnumValue) hnode() {}
func (*HEnum) hnode()      {}
func (*HGlobal) hnode()    {}
func (*HModule) hnode()    {}
