package operation

import (
	"github.com/datatrails/groveauth/hashing"
	"github.com/datatrails/groveauth/identity"
)

// Version is the only header version this implementation understands.
const Version = 1

// Extensions is the application-defined per-operation metadata. Spec §3
// leaves `extensions` an opaque map; this implementation pins it to a
// fixed schema (see LogID's doc comment) rather than an open map.
type Extensions struct {
	LogID LogID `cbor:"l"`
	Prune bool  `cbor:"p,omitempty"`
}

// Header is the authenticated envelope of an operation (spec §3). Its
// fields are declared in exactly the order the canonical CBOR array
// encoding requires (§6); the `cbor:",toarray"` tag on Header instructs
// fxamacker/cbor to encode the struct as a CBOR array by field order
// rather than as a map.
type Header struct {
	_ struct{} `cbor:",toarray"`

	Version     uint64
	PublicKey   identity.PublicKey
	Signature   *identity.Signature
	PayloadSize uint64
	PayloadHash *hashing.Hash
	Timestamp   uint64
	SeqNum      uint64
	Backlink    *hashing.Hash
	Previous    []hashing.Hash
	Extensions  Extensions
}

// unsigned returns a copy of h with Signature cleared, the form that is
// signed (spec §4.1: "serialize the header with
// signature = None, sign, then set signature = Some(sig)").
func (h Header) unsigned() Header {
	h.Signature = nil
	return h
}

// CanonicalBytes returns the canonical CBOR encoding of h with the
// signature field cleared, the exact bytes that are signed. Hash, by
// contrast, covers the encoding with the signature in place.
func (h Header) CanonicalBytes() ([]byte, error) {
	return Marshal(h.unsigned())
}

// Hash returns the content id of h: the hash of its canonical byte
// encoding, including the signature field as it currently stands (spec
// §4.2: "The hash of an operation is defined as
// hash(canonical_header_bytes_including_signature)").
func (h Header) Hash() (hashing.Hash, error) {
	b, err := Marshal(h)
	if err != nil {
		return hashing.Hash{}, err
	}
	return hashing.Of(b), nil
}
