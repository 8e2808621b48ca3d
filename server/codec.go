package server

import (
	"github.com/diekev/delsace-sub011/compiler/wire"
	"github.com/fxamacker/cbor/v2"
)

// cborCodec carries kuri.v1 messages as canonical CBOR. Clients must be
// built with the same codec.
type cborCodec struct{}

// Name implements connect.Codec.
func (cborCodec) Name() string { return "cbor" }

// Marshal implements connect.Codec.
func (cborCodec) Marshal(msg any) ([]byte, error) {
	return wire.EncMode().Marshal(msg)
}

// Unmarshal implements connect.Codec.
func (cborCodec) Unmarshal(data []byte, msg any) error {
	return cbor.Unmarshal(data, msg)
}
