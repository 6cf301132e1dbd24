package operation

import (
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// LogID opaquely names a log within an author's set of logs. Pinning it to
// a UUID (rather than leaving `extensions` an arbitrary map, as the
// original source does) resolves the "exact wire compatibility of
// extensions" open question from spec §9 for this implementation: every
// peer running this module agrees on the extension schema without an
// out-of-band negotiation.
type LogID uuid.UUID

// NewLogID generates a fresh random log identifier.
func NewLogID() LogID {
	return LogID(uuid.New())
}

// String renders the log id in canonical UUID text form.
func (id LogID) String() string {
	return uuid.UUID(id).String()
}

// MarshalCBOR encodes the log id as a 16-byte CBOR byte string.
func (id LogID) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(id[:])
}

// UnmarshalCBOR decodes a 16-byte CBOR byte string into the log id.
func (id *LogID) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	parsed, err := uuid.FromBytes(b)
	if err != nil {
		return err
	}
	*id = LogID(parsed)
	return nil
}
