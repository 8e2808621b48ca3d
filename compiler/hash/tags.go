package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for the interface serialization format.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones breaks
// all previously computed fingerprints.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
// Bumping this invalidates all existing fingerprints.
const HashVersion byte = 1

// Node type tags. Each tag uniquely identifies a node kind in the
// serialized byte stream.
const (
	TagReservedZero byte = 0x00 // version prefix / reserved

	// Containers
	TagModule byte = 0x01
	TagImport byte = 0x02

	// Declarations
	TagFunction  byte = 0x10
	TagParam     byte = 0x11
	TagStructure byte = 0x12
	TagMember    byte = 0x13
	TagEnum      byte = 0x14
	TagEnumValue byte = 0x15
	TagGlobal    byte = 0x16

	// Types
	TagType byte = 0x20

	// Reserved 0xFE-0xFF
)

// Function flag bits, written as one byte after TagFunction.
const (
	FlagExternal  byte = 1 << 0
	FlagCoroutine byte = 1 << 1
	FlagVariadic  byte = 1 << 2
)

// allTags lists every assigned tag for uniqueness testing.
var allTags = []byte{
	TagReservedZero,
	TagModule, TagImport,
	TagFunction, TagParam, TagStructure, TagMember, TagEnum, TagEnumValue, TagGlobal,
	TagType,
}
