package wire

import (
	"fmt"

	"github.com/diekev/delsace-sub011/compiler"
	"github.com/diekev/delsace-sub011/compiler/hash"
	"github.com/fxamacker/cbor/v2"
)

// cborEncMode is the canonical encoding mode, so equal interfaces encode
// to equal bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("wire: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// EncMode returns the canonical CBOR mode shared by every kuri encoding.
func EncMode() cbor.EncMode {
	return cborEncMode
}

// MarshalInterface serializes an Interface to CBOR bytes.
func MarshalInterface(i *Interface) ([]byte, error) {
	return cborEncMode.Marshal(i)
}

// UnmarshalInterface deserializes an Interface from CBOR bytes.
func UnmarshalInterface(data []byte) (*Interface, error) {
	var i Interface
	if err := cbor.Unmarshal(data, &i); err != nil {
		return nil, fmt.Errorf("wire: unmarshal interface: %w", err)
	}
	if i.Version != hash.HashVersion {
		return nil, fmt.Errorf("wire: interface version %d, want %d", i.Version, hash.HashVersion)
	}
	return &i, nil
}

// Verify checks that a decoded interface matches the module it claims to
// describe: same source text and same fingerprint once validated.
func Verify(i *Interface, c *compiler.Context, m *compiler.Module) error {
	if i.Module != m.Name {
		return fmt.Errorf("wire: interface describes %q, not %q", i.Module, m.Name)
	}
	if SourceHash(m.Source) != i.SourceHash {
		return fmt.Errorf("wire: source of %s changed since encoding", m.Name)
	}
	if computed := hash.HashModule(c, m); computed != i.Fingerprint {
		return fmt.Errorf("wire: fingerprint mismatch: declared %x, computed %x", i.Fingerprint, computed)
	}
	return nil
}
