package compiler

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Type descriptors
// ---------------------------------------------------------------------------

// TagKind is the low byte of a Tag.
type TagKind uint8

const (
	TagInvalid TagKind = iota
	TagBool
	TagOctet
	TagN8
	TagN16
	TagN32
	TagN64
	TagE8
	TagE16
	TagE32
	TagE64
	TagR16
	TagR32
	TagR64
	TagRien
	TagChaine
	TagEini
	TagNul
	TagPointer
	TagReference
	TagArray // payload: fixed length, 0 for a dynamic array
	TagFunc
	TagCoroutine
	TagOpen   // start of a parameter list
	TagComma  // parameter separator
	TagClose  // end of a parameter list
	TagStruct // payload: structure id
	TagEnum   // payload: structure id
	// trailing parameter of a function type, packed as []T
	TagVariadic
)

var tagKindNames = [...]string{
	TagInvalid:   "?",
	TagBool:      "bool",
	TagOctet:     "octet",
	TagN8:        "n8",
	TagN16:       "n16",
	TagN32:       "n32",
	TagN64:       "n64",
	TagE8:        "e8",
	TagE16:       "e16",
	TagE32:       "e32",
	TagE64:       "e64",
	TagR16:       "r16",
	TagR32:       "r32",
	TagR64:       "r64",
	TagRien:      "rien",
	TagChaine:    "chaine",
	TagEini:      "eini",
	TagNul:       "nul",
	TagPointer:   "*",
	TagReference: "&",
	TagArray:     "[]",
	TagFunc:      "fonction",
	TagCoroutine: "coroutine",
	TagOpen:      "(",
	TagComma:     ",",
	TagClose:     ")",
	TagStruct:    "struct",
	TagEnum:      "enum",
	TagVariadic:  "...",
}

func (k TagKind) String() string {
	if int(k) < len(tagKindNames) {
		return tagKindNames[k]
	}
	return fmt.Sprintf("TagKind(%d)", int(k))
}

// Tag is one element of a descriptor: the kind in the low byte, a 24-bit
// payload above it.
type Tag uint32

// MaxTagPayload is the largest array length or structure id a tag holds.
const MaxTagPayload = 1<<24 - 1

// MakeTag packs a kind and payload.
func MakeTag(kind TagKind, payload uint32) Tag {
	return Tag(uint32(kind) | (payload&MaxTagPayload)<<8)
}

func (t Tag) Kind() TagKind   { return TagKind(t & 0xff) }
func (t Tag) Payload() uint32 { return uint32(t) >> 8 }

// Descriptor is the canonical structural form of a type: modifiers first,
// then the base. `*[4]e32` is [Pointer, Array(4), E32].
type Descriptor []Tag

// Equal reports structural equality.
func (d Descriptor) Equal(o Descriptor) bool {
	if len(d) != len(o) {
		return false
	}
	for i := range d {
		if d[i] != o[i] {
			return false
		}
	}
	return true
}

// Base returns the first tag, or an invalid tag for an empty descriptor.
func (d Descriptor) Base() Tag {
	if len(d) == 0 {
		return MakeTag(TagInvalid, 0)
	}
	return d[0]
}

// hash is DJB2 over the tag values.
func (d Descriptor) hash() uint64 {
	h := uint64(5381)
	for _, t := range d {
		h = h*33 + uint64(t)
	}
	return h
}

// typeEnd returns the index just past the complete type starting at i.
func (d Descriptor) typeEnd(i int) int {
	for i < len(d) {
		switch d[i].Kind() {
		case TagPointer, TagReference, TagArray, TagVariadic:
			i++
			continue
		case TagFunc, TagCoroutine:
			i++
			if i >= len(d) || d[i].Kind() != TagOpen {
				return i
			}
			i++
			for i < len(d) && d[i].Kind() != TagClose {
				i = d.typeEnd(i)
				if i < len(d) && d[i].Kind() == TagComma {
					i++
				}
			}
			if i < len(d) {
				i++ // ')'
			}
			return d.typeEnd(i)
		}
		return i + 1
	}
	return i
}

// ---------------------------------------------------------------------------
// Type table
// ---------------------------------------------------------------------------

// TypeID is a stable handle into a TypeTable. Zero means unresolved.
type TypeID uint32

// Builtin ids, interned by NewTypeTable in this order.
const (
	TypeUnresolved TypeID = iota
	TypeBool
	TypeOctet
	TypeN8
	TypeN16
	TypeN32
	TypeN64
	TypeE8
	TypeE16
	TypeE32
	TypeE64
	TypeR16
	TypeR32
	TypeR64
	TypeRien
	TypeChaine
	TypeEini
	TypeNul
	TypePtrNul
	TypePtrRien
	TypePtrOctet
	TypePtrE8
	builtinTypeCount
)

var builtinDescriptors = [...]Descriptor{
	TypeBool:     {MakeTag(TagBool, 0)},
	TypeOctet:    {MakeTag(TagOctet, 0)},
	TypeN8:       {MakeTag(TagN8, 0)},
	TypeN16:      {MakeTag(TagN16, 0)},
	TypeN32:      {MakeTag(TagN32, 0)},
	TypeN64:      {MakeTag(TagN64, 0)},
	TypeE8:       {MakeTag(TagE8, 0)},
	TypeE16:      {MakeTag(TagE16, 0)},
	TypeE32:      {MakeTag(TagE32, 0)},
	TypeE64:      {MakeTag(TagE64, 0)},
	TypeR16:      {MakeTag(TagR16, 0)},
	TypeR32:      {MakeTag(TagR32, 0)},
	TypeR64:      {MakeTag(TagR64, 0)},
	TypeRien:     {MakeTag(TagRien, 0)},
	TypeChaine:   {MakeTag(TagChaine, 0)},
	TypeEini:     {MakeTag(TagEini, 0)},
	TypeNul:      {MakeTag(TagNul, 0)},
	TypePtrNul:   {MakeTag(TagPointer, 0), MakeTag(TagNul, 0)},
	TypePtrRien:  {MakeTag(TagPointer, 0), MakeTag(TagRien, 0)},
	TypePtrOctet: {MakeTag(TagPointer, 0), MakeTag(TagOctet, 0)},
	TypePtrE8:    {MakeTag(TagPointer, 0), MakeTag(TagE8, 0)},
}

// builtinByToken maps type keywords to their ids.
var builtinByToken = map[TokenKind]TypeID{
	TokenBool:   TypeBool,
	TokenOctet:  TypeOctet,
	TokenRien:   TypeRien,
	TokenChaine: TypeChaine,
	TokenEini:   TypeEini,
	TokenN8:     TypeN8,
	TokenN16:    TypeN16,
	TokenN32:    TypeN32,
	TokenN64:    TypeN64,
	TokenE8:     TypeE8,
	TokenE16:    TypeE16,
	TokenE32:    TypeE32,
	TokenE64:    TypeE64,
	TokenR16:    TypeR16,
	TokenR32:    TypeR32,
	TokenR64:    TypeR64,
}

type structEntry struct {
	name    string
	enum    bool
	members []TypeID // layout, for SizeOf
}

// TypeTable interns descriptors. Storage is append-only: an id handed out
// stays valid for the life of the table. Not safe for concurrent use.
type TypeTable struct {
	descs   []Descriptor
	buckets map[uint64][]TypeID
	structs []structEntry
}

// NewTypeTable returns a table with the builtin types pre-interned.
func NewTypeTable() *TypeTable {
	tt := &TypeTable{
		descs:   make([]Descriptor, 1, 64),
		buckets: make(map[uint64][]TypeID, 64),
	}
	for id := TypeBool; id < builtinTypeCount; id++ {
		if got := tt.Intern(builtinDescriptors[id]); got != id {
			panic(fmt.Sprintf("types: builtin %d interned as %d", id, got))
		}
	}
	return tt
}

// Len returns the number of interned descriptors, including the
// unresolved slot.
func (tt *TypeTable) Len() int { return len(tt.descs) }

// Intern returns the id of d, inserting a copy when it is new.
func (tt *TypeTable) Intern(d Descriptor) TypeID {
	h := d.hash()
	for _, id := range tt.buckets[h] {
		if tt.descs[id].Equal(d) {
			return id
		}
	}
	id := TypeID(len(tt.descs))
	tt.descs = append(tt.descs, append(Descriptor(nil), d...))
	tt.buckets[h] = append(tt.buckets[h], id)
	return id
}

// Descriptor returns the stored descriptor of id. Callers must not modify it.
func (tt *TypeTable) Descriptor(id TypeID) Descriptor {
	if int(id) >= len(tt.descs) {
		return nil
	}
	return tt.descs[id]
}

// Dereference drops the first tag of id's descriptor. The result is a
// fresh slice.
func (tt *TypeTable) Dereference(id TypeID) Descriptor {
	d := tt.Descriptor(id)
	if len(d) < 2 {
		return nil
	}
	return append(Descriptor(nil), d[1:]...)
}

// Element returns the interned id of the dereferenced type.
func (tt *TypeTable) Element(id TypeID) TypeID {
	d := tt.Dereference(id)
	if d == nil {
		return TypeUnresolved
	}
	return tt.Intern(d)
}

// Wrap prefixes id's descriptor with a modifier tag.
func (tt *TypeTable) Wrap(tag Tag, id TypeID) TypeID {
	d := tt.Descriptor(id)
	nd := make(Descriptor, 0, len(d)+1)
	nd = append(nd, tag)
	nd = append(nd, d...)
	return tt.Intern(nd)
}

func (tt *TypeTable) PointerTo(id TypeID) TypeID {
	return tt.Wrap(MakeTag(TagPointer, 0), id)
}

func (tt *TypeTable) ReferenceTo(id TypeID) TypeID {
	return tt.Wrap(MakeTag(TagReference, 0), id)
}

// ArrayOf returns [n]id, or []id when n is zero.
func (tt *TypeTable) ArrayOf(id TypeID, n uint32) TypeID {
	return tt.Wrap(MakeTag(TagArray, n), id)
}

// VariadicOf marks id as the trailing variadic parameter of a function type.
func (tt *TypeTable) VariadicOf(id TypeID) TypeID {
	return tt.Wrap(MakeTag(TagVariadic, 0), id)
}

// IsVariadic reports whether d is a variadic parameter descriptor.
func (d Descriptor) IsVariadic() bool { return d.Base().Kind() == TagVariadic }

// FunctionType builds fonction(params...)ret, or coroutine(...) when
// coroutine is set.
func (tt *TypeTable) FunctionType(params []TypeID, ret TypeID, coroutine bool) TypeID {
	kind := TagFunc
	if coroutine {
		kind = TagCoroutine
	}
	d := Descriptor{MakeTag(kind, 0), MakeTag(TagOpen, 0)}
	for i, p := range params {
		if i > 0 {
			d = append(d, MakeTag(TagComma, 0))
		}
		d = append(d, tt.Descriptor(p)...)
	}
	d = append(d, MakeTag(TagClose, 0))
	d = append(d, tt.Descriptor(ret)...)
	return tt.Intern(d)
}

// ParameterAndReturnTypes splits a function descriptor into its parameter
// descriptors followed by the return descriptor.
func (tt *TypeTable) ParameterAndReturnTypes(id TypeID) ([]Descriptor, error) {
	d := tt.Descriptor(id)
	if len(d) < 3 || !d[0].Kind().isCallable() || d[1].Kind() != TagOpen {
		return nil, fmt.Errorf("types: %s is not a function type", tt.Text(id))
	}

	var out []Descriptor
	i := 2
	for i < len(d) && d[i].Kind() != TagClose {
		end := d.typeEnd(i)
		out = append(out, append(Descriptor(nil), d[i:end]...))
		i = end
		if i < len(d) && d[i].Kind() == TagComma {
			i++
		}
	}
	if i >= len(d) {
		return nil, fmt.Errorf("types: unterminated parameter list in %s", tt.Text(id))
	}
	out = append(out, append(Descriptor(nil), d[i+1:]...))
	return out, nil
}

// ---------------------------------------------------------------------------
// Structures and enums
// ---------------------------------------------------------------------------

// DeclareStructure registers a named structure (or enum) and returns its
// type id.
func (tt *TypeTable) DeclareStructure(name string, enum bool) TypeID {
	sid := uint32(len(tt.structs))
	tt.structs = append(tt.structs, structEntry{name: name, enum: enum})
	kind := TagStruct
	if enum {
		kind = TagEnum
	}
	return tt.Intern(Descriptor{MakeTag(kind, sid)})
}

// SetLayout records the member types of a structure for SizeOf.
func (tt *TypeTable) SetLayout(id TypeID, members []TypeID) {
	if sid, ok := tt.structureIndex(id); ok {
		tt.structs[sid].members = members
	}
}

// Layout returns the member types recorded by SetLayout. An enum's layout
// is its single base type.
func (tt *TypeTable) Layout(id TypeID) []TypeID {
	if sid, ok := tt.structureIndex(id); ok {
		return tt.structs[sid].members
	}
	return nil
}

// StructureName returns the declared name of a structure or enum type.
func (tt *TypeTable) StructureName(id TypeID) string {
	if sid, ok := tt.structureIndex(id); ok {
		return tt.structs[sid].name
	}
	return ""
}

func (tt *TypeTable) structureIndex(id TypeID) (uint32, bool) {
	b := tt.Descriptor(id).Base()
	if k := b.Kind(); k != TagStruct && k != TagEnum {
		return 0, false
	}
	sid := b.Payload()
	return sid, int(sid) < len(tt.structs)
}

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

func (k TagKind) isIntegral() bool {
	return k == TagOctet || k >= TagN8 && k <= TagE64
}

func (k TagKind) isReal() bool { return k >= TagR16 && k <= TagR64 }

func (k TagKind) isCallable() bool { return k == TagFunc || k == TagCoroutine }

func (tt *TypeTable) Kind(id TypeID) TagKind { return tt.Descriptor(id).Base().Kind() }

func (tt *TypeTable) IsIntegral(id TypeID) bool { return tt.Kind(id).isIntegral() }
func (tt *TypeTable) IsReal(id TypeID) bool     { return tt.Kind(id).isReal() }
func (tt *TypeTable) IsPointer(id TypeID) bool  { return tt.Kind(id) == TagPointer }
func (tt *TypeTable) IsCallable(id TypeID) bool { return tt.Kind(id).isCallable() }

// IsArray reports whether id is a fixed or dynamic array.
func (tt *TypeTable) IsArray(id TypeID) bool { return tt.Kind(id) == TagArray }

// ArrayLength returns the fixed length of an array type, 0 for dynamic.
func (tt *TypeTable) ArrayLength(id TypeID) uint32 {
	b := tt.Descriptor(id).Base()
	if b.Kind() != TagArray {
		return 0
	}
	return b.Payload()
}

// ---------------------------------------------------------------------------
// Rendering and sizes
// ---------------------------------------------------------------------------

// Text renders id as source-like type text.
func (tt *TypeTable) Text(id TypeID) string {
	if id == TypeUnresolved {
		return "<unresolved>"
	}
	return tt.DescriptorText(tt.Descriptor(id))
}

// DescriptorText renders a descriptor that may not be interned.
func (tt *TypeTable) DescriptorText(d Descriptor) string {
	var b strings.Builder
	tt.writeType(&b, d, 0)
	return b.String()
}

func (tt *TypeTable) writeType(b *strings.Builder, d Descriptor, i int) int {
	for i < len(d) {
		t := d[i]
		switch k := t.Kind(); k {
		case TagPointer, TagReference, TagVariadic:
			b.WriteString(k.String())
			i++
		case TagArray:
			if n := t.Payload(); n != 0 {
				fmt.Fprintf(b, "[%d]", n)
			} else {
				b.WriteString("[]")
			}
			i++
		case TagFunc, TagCoroutine:
			b.WriteString(k.String())
			i++
			if i < len(d) && d[i].Kind() == TagOpen {
				b.WriteByte('(')
				i++
				for i < len(d) && d[i].Kind() != TagClose {
					i = tt.writeType(b, d, i)
					if i < len(d) && d[i].Kind() == TagComma {
						b.WriteByte(',')
						i++
					}
				}
				b.WriteByte(')')
				i++
			}
			return tt.writeType(b, d, i)
		case TagStruct, TagEnum:
			if sid := t.Payload(); int(sid) < len(tt.structs) {
				b.WriteString(tt.structs[sid].name)
			} else {
				fmt.Fprintf(b, "%s#%d", k, sid)
			}
			return i + 1
		default:
			b.WriteString(k.String())
			return i + 1
		}
	}
	return i
}

// SizeOf returns the byte size code generators should reserve for id.
func (tt *TypeTable) SizeOf(id TypeID) uint32 {
	return tt.sizeOf(tt.Descriptor(id), 0)
}

func (tt *TypeTable) sizeOf(d Descriptor, depth int) uint32 {
	if len(d) == 0 || depth > 64 {
		return 0
	}
	t := d[0]
	switch t.Kind() {
	case TagBool, TagOctet, TagN8, TagE8:
		return 1
	case TagN16, TagE16, TagR16:
		return 2
	case TagN32, TagE32, TagR32:
		return 4
	case TagN64, TagE64, TagR64:
		return 8
	case TagPointer, TagReference, TagFunc, TagCoroutine, TagNul:
		return 8
	case TagChaine, TagEini:
		return 16
	case TagVariadic:
		return 16
	case TagArray:
		n := t.Payload()
		if n == 0 {
			return 16
		}
		return n * tt.sizeOf(d[1:], depth+1)
	case TagEnum:
		if sid := t.Payload(); int(sid) < len(tt.structs) && len(tt.structs[sid].members) == 1 {
			return tt.sizeOf(tt.Descriptor(tt.structs[sid].members[0]), depth+1)
		}
		return 4
	case TagStruct:
		sid := t.Payload()
		if int(sid) >= len(tt.structs) {
			return 0
		}
		var total uint32
		for _, m := range tt.structs[sid].members {
			total += tt.sizeOf(tt.Descriptor(m), depth+1)
		}
		return total
	}
	return 0
}

// ---------------------------------------------------------------------------
// Compatibility
// ---------------------------------------------------------------------------

// Compat is the result of a compatibility check: zero rejects, otherwise a
// set of conversions the code generator must materialize.
type Compat uint8

const (
	CompatReject Compat = 0
	CompatOk     Compat = 1 << (iota - 1)
	CompatNeedsArrayConversion
	CompatNeedsAnyBox
	CompatNeedsAnyExtraction
	CompatNeedsCStringExtraction
	CompatNeedsByteArrayConversion
	CompatNeedsReference
	CompatNeedsDereference
)

func (c Compat) String() string {
	if c == CompatReject {
		return "reject"
	}
	names := []string{"ok", "array", "box", "unbox", "cstring", "bytes", "ref", "deref"}
	var parts []string
	for i, n := range names {
		if c&(1<<i) != 0 {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, "|")
}

// Weight is the overload-resolution score of one argument: 1 for an exact
// match, 0.5 for any coercion, 0 for a rejection.
func (c Compat) Weight() float64 {
	switch c {
	case CompatReject:
		return 0
	case CompatOk:
		return 1
	}
	return 0.5
}

// Compatible decides whether a value of type source, produced by a node of
// kind sourceKind, can flow into a slot of type target. Literal kinds widen
// to any integral or real target.
func (tt *TypeTable) Compatible(target, source TypeID, sourceKind NodeKind) Compat {
	if target == source {
		return CompatOk
	}

	td, sd := tt.Descriptor(target), tt.Descriptor(source)
	tb, sb := td.Base(), sd.Base()

	// a reference flows into any slot its referent could fill
	if sb.Kind() == TagReference && tb.Kind() != TagReference {
		c := tt.Compatible(target, tt.Element(source), sourceKind)
		if c == CompatReject {
			return CompatReject
		}
		return c&^CompatOk | CompatNeedsDereference
	}

	if sourceKind == NodeIntLiteral && tb.Kind().isIntegral() {
		return CompatOk
	}
	if sourceKind == NodeRealLiteral && tb.Kind().isReal() {
		return CompatOk
	}

	if tb.Kind() == TagEini {
		if sb.Kind() == TagArray && sb.Payload() != 0 {
			return CompatNeedsAnyBox | CompatNeedsArrayConversion
		}
		return CompatNeedsAnyBox
	}
	if sb.Kind() == TagEini {
		return CompatNeedsAnyExtraction
	}

	if tb.Kind().isCallable() {
		if source == TypePtrNul {
			return CompatOk
		}
		return CompatReject
	}

	if tb.Kind() == TagArray && tb.Payload() == 0 {
		if len(td) > 1 && td[1].Kind() == TagOctet {
			return CompatNeedsByteArrayConversion
		}
		if sb.Kind() != TagArray {
			return CompatReject
		}
		if td[1:].Equal(sd[1:]) {
			return CompatNeedsArrayConversion
		}
		return CompatReject
	}

	if tb.Kind() == TagPointer {
		if sb.Kind() == TagPointer {
			if source == TypePtrNul || target == TypePtrRien || target == TypePtrOctet {
				return CompatOk
			}
		}
		if target == TypePtrE8 && source == TypeChaine {
			return CompatNeedsCStringExtraction
		}
	}

	if tb.Kind() == TagReference && td[1:].Equal(sd) {
		return CompatNeedsReference
	}

	return CompatReject
}

// Operable reports whether a binary arithmetic or comparison operator may
// combine operands of types a and b, produced by nodes of kinds ka and kb.
func (tt *TypeTable) Operable(a, b TypeID, ka, kb NodeKind) bool {
	ta, tb := tt.Descriptor(a).Base(), tt.Descriptor(b).Base()
	if ta == tb {
		return true
	}
	if ta.Kind().isCallable() && b == TypePtrNul {
		return true
	}
	if ta.Kind().isIntegral() || tb.Kind().isIntegral() {
		if ta.Kind().isIntegral() && tb.Kind().isIntegral() {
			return true
		}
		return ta.Kind().isIntegral() && kb == NodeIntLiteral || tb.Kind().isIntegral() && ka == NodeIntLiteral
	}
	if ta.Kind().isReal() || tb.Kind().isReal() {
		if ta.Kind().isReal() && tb.Kind().isReal() {
			return true
		}
		return ta.Kind().isReal() && kb == NodeRealLiteral || tb.Kind().isReal() && ka == NodeRealLiteral
	}
	return false
}
