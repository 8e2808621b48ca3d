package compiler

import "fmt"

// ---------------------------------------------------------------------------
// AST: node kinds, flags and the generation-checked arena
// ---------------------------------------------------------------------------

// NodeKind closes the set of syntax tree shapes. Every stage switches over
// it; adding a kind means extending nodeKindNames and the validator.
type NodeKind uint8

const (
	NodeInvalid NodeKind = iota
	NodeRoot
	NodeImport
	NodeFunctionDecl
	NodeCall
	NodeBlock
	NodeIf     // si
	NodeUnless // saufsi
	NodeFor
	NodeLoop  // boucle
	NodeWhile // tantque
	NodeBreakContinue
	NodeReturn
	NodeYield // retiens
	NodeDefer // diffère
	NodeUnsafe
	NodeBinaryOp
	NodeUnaryOp
	NodeAssign
	NodeVariable
	NodeMemberAccess
	NodeIntLiteral
	NodeRealLiteral
	NodeStringLiteral
	NodeCharLiteral
	NodeBoolLiteral
	NodeNull
	NodeStructDecl
	NodeEnumDecl
	NodeStructConstruct
	NodeArrayConstruct
	NodeRange
	NodeCast
	NodeSizeOf
	NodeMemory
	NodeAlloc
	NodeRealloc
	NodeFree
	NodeVariadicArray
	nodeKindCount
)

var nodeKindNames = [...]string{
	NodeInvalid:         "invalid",
	NodeRoot:            "root",
	NodeImport:          "import",
	NodeFunctionDecl:    "function",
	NodeCall:            "call",
	NodeBlock:           "block",
	NodeIf:              "if",
	NodeUnless:          "unless",
	NodeFor:             "for",
	NodeLoop:            "loop",
	NodeWhile:           "while",
	NodeBreakContinue:   "break-continue",
	NodeReturn:          "return",
	NodeYield:           "yield",
	NodeDefer:           "defer",
	NodeUnsafe:          "unsafe",
	NodeBinaryOp:        "binary",
	NodeUnaryOp:         "unary",
	NodeAssign:          "assign",
	NodeVariable:        "variable",
	NodeMemberAccess:    "member",
	NodeIntLiteral:      "int",
	NodeRealLiteral:     "real",
	NodeStringLiteral:   "string",
	NodeCharLiteral:     "char",
	NodeBoolLiteral:     "bool",
	NodeNull:            "null",
	NodeStructDecl:      "struct",
	NodeEnumDecl:        "enum",
	NodeStructConstruct: "construct",
	NodeArrayConstruct:  "array",
	NodeRange:           "range",
	NodeCast:            "cast",
	NodeSizeOf:          "sizeof",
	NodeMemory:          "memory",
	NodeAlloc:           "alloc",
	NodeRealloc:         "realloc",
	NodeFree:            "free",
	NodeVariadicArray:   "variadic",
}

func (k NodeKind) String() string {
	if int(k) < len(nodeKindNames) && nodeKindNames[k] != "" {
		return nodeKindNames[k]
	}
	return fmt.Sprintf("NodeKind(%d)", int(k))
}

// NodeFlags carries declaration properties and the coercions the code
// generator must materialize.
type NodeFlags uint32

const (
	FlagDeclaration NodeFlags = 1 << iota
	FlagMutable
	FlagConstant
	FlagNeedsDeref
	FlagConvertArray
	FlagBoxAny
	FlagUnboxAny
	FlagExtractCString
	FlagConvertByteArray
	FlagTakeReference
	FlagExternal
	FlagIgnoreOperator
	FlagFailed
)

func (f NodeFlags) Has(bit NodeFlags) bool { return f&bit != 0 }

// coercionFlags maps a compatibility result to the flags recorded on the
// argument node.
func coercionFlags(c Compat) NodeFlags {
	var f NodeFlags
	if c&CompatNeedsArrayConversion != 0 {
		f |= FlagConvertArray
	}
	if c&CompatNeedsAnyBox != 0 {
		f |= FlagBoxAny
	}
	if c&CompatNeedsAnyExtraction != 0 {
		f |= FlagUnboxAny
	}
	if c&CompatNeedsCStringExtraction != 0 {
		f |= FlagExtractCString
	}
	if c&CompatNeedsByteArrayConversion != 0 {
		f |= FlagConvertByteArray
	}
	if c&CompatNeedsReference != 0 {
		f |= FlagTakeReference
	}
	if c&CompatNeedsDereference != 0 {
		f |= FlagNeedsDeref
	}
	return f
}

// GenHint tells a code generator which lowering a loop or call needs.
type GenHint uint8

const (
	HintNone GenHint = iota
	HintRange
	HintRangeIndex
	HintArray
	HintArrayIndex
	HintCoroutine
	HintCoroutineIndex
	HintString
	HintStringIndex
	HintFuncPtrCall
)

var genHintNames = [...]string{
	HintNone:           "",
	HintRange:          "range",
	HintRangeIndex:     "range+index",
	HintArray:          "array",
	HintArrayIndex:     "array+index",
	HintCoroutine:      "coroutine",
	HintCoroutineIndex: "coroutine+index",
	HintString:         "string",
	HintStringIndex:    "string+index",
	HintFuncPtrCall:    "funcptr",
}

func (h GenHint) String() string {
	if int(h) < len(genHintNames) {
		return genHintNames[h]
	}
	return fmt.Sprintf("GenHint(%d)", int(h))
}

// TypeSpec is a type as written in source, resolved by the validator.
type TypeSpec struct {
	Token     Token
	Modifiers []Tag     // pointer, reference and array prefixes, outermost first
	Base      TokenKind // builtin keyword, or TokenIdentifier for a named type
	Name      string    // structure or enum name
	Callable  TagKind   // TagFunc or TagCoroutine for function pointer types
	Params    []*TypeSpec
	Return    *TypeSpec
	Variadic  bool
}

// Node is one tree element. Which fields are meaningful depends on Kind.
type Node struct {
	Kind     NodeKind
	Token    Token
	Children []NodeID
	Type     TypeID
	Flags    NodeFlags

	Int  int64
	Real float64
	Bool bool
	Str  string // decoded string, operator or member name, jump label of a break/continue

	Spec  *TypeSpec // declared or target type
	Names []string  // argument names of a call, member names of a construction, continue/break labels of a loop
	Func  *Function // declaration or call target
	Label string    // loop variable of a pour, or the loop a break/continue names
	Hint  GenHint
}

// ---------------------------------------------------------------------------
// Arena
// ---------------------------------------------------------------------------

// NodeID addresses a node in an Arena. A released slot bumps its
// generation, so stale ids no longer resolve. The zero NodeID is NoNode.
type NodeID struct {
	index uint32
	gen   uint32
}

// NoNode is the absent node.
var NoNode NodeID

func (id NodeID) IsValid() bool { return id.gen != 0 }

func (id NodeID) String() string {
	if !id.IsValid() {
		return "node(none)"
	}
	return fmt.Sprintf("node(%d#%d)", id.index, id.gen)
}

const arenaChunk = 256

type slot struct {
	node Node
	gen  uint32
	live bool
}

// Arena owns every node of a compilation. Storage is chunked so node
// pointers stay valid while new nodes are allocated. Released slots are
// reused per kind.
type Arena struct {
	chunks [][]slot
	next   uint32
	free   [nodeKindCount][]uint32
	live   int
}

// NewArena returns an empty arena.
func NewArena() *Arena {
	return &Arena{}
}

func (a *Arena) slotAt(index uint32) *slot {
	c := index / arenaChunk
	if int(c) >= len(a.chunks) || index >= a.next {
		return nil
	}
	return &a.chunks[c][index%arenaChunk]
}

// New allocates a node of the given kind.
func (a *Arena) New(kind NodeKind, tok Token) NodeID {
	var index uint32
	if n := len(a.free[kind]); n > 0 {
		index = a.free[kind][n-1]
		a.free[kind] = a.free[kind][:n-1]
	} else {
		index = a.next
		a.next++
		if int(index/arenaChunk) >= len(a.chunks) {
			a.chunks = append(a.chunks, make([]slot, arenaChunk))
		}
	}

	s := a.slotAt(index)
	children := s.node.Children[:0]
	s.node = Node{Kind: kind, Token: tok, Children: children}
	if s.gen == 0 {
		s.gen = 1
	}
	s.live = true
	a.live++
	return NodeID{index: index, gen: s.gen}
}

// Get returns the node for id, or nil if id is stale or absent.
func (a *Arena) Get(id NodeID) *Node {
	if !id.IsValid() {
		return nil
	}
	s := a.slotAt(id.index)
	if s == nil || !s.live || s.gen != id.gen {
		return nil
	}
	return &s.node
}

// Release frees one node. Its children are left alone.
func (a *Arena) Release(id NodeID) bool {
	n := a.Get(id)
	if n == nil {
		return false
	}
	s := a.slotAt(id.index)
	s.live = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	a.free[n.Kind] = append(a.free[n.Kind], id.index)
	a.live--
	return true
}

// ReleaseTree frees id and every node below it, returning the count.
func (a *Arena) ReleaseTree(id NodeID) int {
	n := a.Get(id)
	if n == nil {
		return 0
	}
	count := 0
	for _, c := range n.Children {
		count += a.ReleaseTree(c)
	}
	if a.Release(id) {
		count++
	}
	return count
}

// Live returns the number of allocated, unreleased nodes.
func (a *Arena) Live() int { return a.live }

// Walk visits id and its descendants depth-first. Returning false from fn
// skips the children of that node.
func (a *Arena) Walk(id NodeID, fn func(NodeID, *Node) bool) {
	n := a.Get(id)
	if n == nil {
		return
	}
	if !fn(id, n) {
		return
	}
	for _, c := range n.Children {
		a.Walk(c, fn)
	}
}

// AddChild appends child to parent's children.
func (a *Arena) AddChild(parent, child NodeID) {
	if n := a.Get(parent); n != nil {
		n.Children = append(n.Children, child)
	}
}

// Child returns the i-th child of id, or NoNode.
func (a *Arena) Child(id NodeID, i int) NodeID {
	n := a.Get(id)
	if n == nil || i < 0 || i >= len(n.Children) {
		return NoNode
	}
	return n.Children[i]
}
