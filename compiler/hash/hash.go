package hash

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/diekev/delsace-sub011/compiler"
)

// HashModule computes the SHA-256 fingerprint of a module interface.
//
// The hash is computed over a deterministic serialization of the module's
// normalized interface. Two modules exposing the same signatures, layouts
// and globals produce the same hash, whatever their function bodies or
// declaration order.
func HashModule(c *compiler.Context, m *compiler.Module) [32]byte {
	hm := NormalizeModule(c, m)
	data := Serialize(hm)
	return sha256.Sum256(data)
}

// Fingerprint returns HashModule as a lowercase hex string.
func Fingerprint(c *compiler.Context, m *compiler.Module) string {
	h := HashModule(c, m)
	return hex.EncodeToString(h[:])
}
