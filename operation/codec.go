package operation

import (
	"io"

	"github.com/fxamacker/cbor/v2"
)

// EncOptions is the deterministic CBOR encoding mode used for everything
// that must hash or sign the same way on every peer: sorted map keys,
// shortest-form integers, no indefinite-length items. This mirrors the
// teacher codebase's massifs CBOR codec, which fixes an equivalent
// deterministic mode for its own canonical header encoding.
var EncOptions = cbor.EncOptions{
	Sort:        cbor.SortCanonical,
	Time:        cbor.TimeUnix,
	ShortestFloat: cbor.ShortestFloat16,
	NaNConvert:  cbor.NaNConvert7e00,
	InfConvert:  cbor.InfConvertFloat16,
	IndefLength: cbor.IndefLengthForbidden,
}

// DecOptions pairs with EncOptions for decoding header bytes received from
// the network.
var DecOptions = cbor.DecOptions{
	DupMapKey:   cbor.DupMapKeyEnforcedAPF,
	IndefLength: cbor.IndefLengthForbidden,
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = EncOptions.EncMode()
	if err != nil {
		panic("operation: invalid canonical CBOR encoding options: " + err.Error())
	}
	decMode, err = DecOptions.DecMode()
	if err != nil {
		panic("operation: invalid canonical CBOR decoding options: " + err.Error())
	}
}

// Marshal encodes v using the canonical, deterministic CBOR mode.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data using the canonical CBOR mode.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewDecoder returns a streaming decoder over r using the canonical CBOR
// mode. Since CBOR data items are self-delimiting, successive Decode
// calls each consume exactly one item — the wire package relies on this
// to read one frame at a time off a byte stream with no extra framing.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}
