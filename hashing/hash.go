// Package hashing implements the content-addressed identifiers (C2) that
// uniquely name operations across the network.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Size is the length in bytes of a Hash.
const Size = sha256.Size

// Hash is a 32-byte content-addressed identifier (a "ContentId" in spec
// terms). It is the SHA-256 digest of an operation's canonical header
// bytes, which gives >=128-bit collision resistance as required by §4.2.
type Hash [Size]byte

// Zero is the zero-value Hash, used as a sentinel for "no hash" in places
// where a pointer would otherwise be required.
var Zero Hash

// Of computes the Hash of arbitrary bytes.
func Of(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// String renders the hash as lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns the raw 32-byte encoding.
func (h Hash) Bytes() []byte {
	return h[:]
}

// IsZero reports whether h is the zero value.
func (h Hash) IsZero() bool {
	return h == Zero
}

// FromBytes validates and wraps a raw hash.
func FromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != Size {
		return h, fmt.Errorf("hashing: hash must be %d bytes, got %d", Size, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// FromHex decodes a hex-encoded hash.
func FromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("hashing: invalid hex encoding: %w", err)
	}
	return FromBytes(b)
}

// Less gives Hash a deterministic total order, used for the CRDT's
// lexicographic tie-break (spec §4.8) and for sorting hash sets before
// encoding them canonically.
func (h Hash) Less(other Hash) bool {
	for i := range h {
		if h[i] != other[i] {
			return h[i] < other[i]
		}
	}
	return false
}

// SortHashes returns a new, ascending-sorted copy of hashes, used wherever
// a set of hashes (e.g. `previous`, group `heads`) must be serialized
// deterministically.
func SortHashes(hashes []Hash) []Hash {
	out := make([]Hash, len(hashes))
	copy(out, hashes)
	// Insertion sort: these sets are small (a handful of causal
	// dependencies or group heads), so O(n^2) is simpler and fast enough.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Less(out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// MarshalCBOR encodes the hash as a CBOR byte string, the encoding used for
// every hash-valued header field under the canonical encoding (§6).
func (h Hash) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(h[:])
}

// UnmarshalCBOR decodes a CBOR byte string into the hash.
func (h *Hash) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	decoded, err := FromBytes(b)
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}
