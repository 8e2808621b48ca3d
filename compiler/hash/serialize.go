package hash

import (
	"encoding/binary"
)

// ---------------------------------------------------------------------------
// Deterministic binary serialization of the frozen interface nodes.
//
// Encoding conventions:
//   - First byte: HashVersion (0x01)
//   - Integers: big-endian fixed-width (int64=8B, uint32=4B)
//   - Strings: uint32 big-endian length + UTF-8 bytes
//   - Booleans: single byte (0/1)
//   - Lists: uint32 big-endian count, then each element inline
// ---------------------------------------------------------------------------

// Serialize produces a deterministic byte serialization of an HNode tree.
// The returned bytes are suitable for hashing with SHA-256.
func Serialize(node HNode) []byte {
	s := &serializer{buf: make([]byte, 0, 256)}
	s.writeByte(HashVersion)
	s.serializeNode(node)
	return s.buf
}

type serializer struct {
	buf []byte
}

func (s *serializer) writeByte(b byte) {
	s.buf = append(s.buf, b)
}

func (s *serializer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeInt64(v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	s.buf = append(s.buf, b[:]...)
}

func (s *serializer) writeString(v string) {
	s.writeUint32(uint32(len(v)))
	s.buf = append(s.buf, v...)
}

func (s *serializer) writeBool(v bool) {
	if v {
		s.writeByte(1)
	} else {
		s.writeByte(0)
	}
}

func (s *serializer) writeCount(n int) {
	s.writeUint32(uint32(n))
}

func (s *serializer) serializeNode(node HNode) {
	switch n := node.(type) {
	case *HType:
		s.writeByte(TagType)
		if n == nil {
			s.writeString("")
			return
		}
		s.writeString(n.Text)

	case *HParam:
		s.writeByte(TagParam)
		s.writeString(n.Name)
		s.writeBool(n.Variadic)
		s.serializeNode(n.Type)

	case *HFunction:
		s.writeByte(TagFunction)
		var flags byte
		if n.External {
			flags |= FlagExternal
		}
		if n.Coroutine {
			flags |= FlagCoroutine
		}
		if n.Variadic {
			flags |= FlagVariadic
		}
		s.writeByte(flags)
		s.writeString(n.Name)
		s.writeString(n.Symbol)
		s.writeCount(len(n.Params))
		for _, p := range n.Params {
			s.serializeNode(p)
		}
		s.serializeNode(n.Return)

	case *HMember:
		s.writeByte(TagMember)
		s.writeString(n.Name)
		s.writeBool(n.HasDefault)
		s.serializeNode(n.Type)

	case *HStructure:
		s.writeByte(TagStructure)
		s.writeString(n.Name)
		s.writeCount(len(n.Members))
		for _, m := range n.Members {
			s.serializeNode(m)
		}

	case *HEnumValue:
		s.writeByte(TagEnumValue)
		s.writeString(n.Name)
		s.writeInt64(n.Value)

	case *HEnum:
		s.writeByte(TagEnum)
		s.writeString(n.Name)
		s.serializeNode(n.Base)
		s.writeCount(len(n.Values))
		for _, v := range n.Values {
			s.serializeNode(v)
		}

	case *HGlobal:
		s.writeByte(TagGlobal)
		s.writeString(n.Name)
		s.writeBool(n.Mutable)
		s.serializeNode(n.Type)

	case *HModule:
		s.writeByte(TagModule)
		s.writeString(n.Name)
		s.writeCount(len(n.Imports))
		for _, imp := range n.Imports {
			s.writeByte(TagImport)
			s.writeString(imp)
		}
		s.writeCount(len(n.Structures))
		for _, st := range n.Structures {
			s.serializeNode(st)
		}
		s.writeCount(len(n.Enums))
		for _, e := range n.Enums {
			s.serializeNode(e)
		}
		s.writeCount(len(n.Globals))
		for _, g := range n.Globals {
			s.serializeNode(g)
		}
		s.writeCount(len(n.Functions))
		for _, f := range n.Functions {
			s.serializeNode(f)
		}

	default:
		panic("hash: unknown node type")
	}
}
