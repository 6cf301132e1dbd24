package group

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/datatrails/groveauth/identity"
)

// wireMember is Member's on-the-wire shape; Member keeps its fields
// unexported so it needs its own (de)serializer, matching the approach
// taken for identity.PublicKey and access.Access elsewhere in this
// module.
type wireMember struct {
	_          struct{} `cbor:",toarray"`
	Kind       MemberKind
	Individual identity.PublicKey
	Group      ID
}

// MarshalCBOR encodes the member for use in group control message
// payloads.
func (m Member) MarshalCBOR() ([]byte, error) {
	w := wireMember{Kind: m.kind, Individual: m.individual, Group: m.group}
	return cbor.Marshal(w)
}

// UnmarshalCBOR decodes a member encoded by MarshalCBOR.
func (m *Member) UnmarshalCBOR(data []byte) error {
	var w wireMember
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	m.kind = w.Kind
	m.individual = w.Individual
	m.group = w.Group
	return nil
}
