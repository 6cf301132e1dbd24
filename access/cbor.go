package access

import "github.com/fxamacker/cbor/v2"

// wireAccess is Access[C]'s on-the-wire shape: Access keeps its fields
// unexported to protect the level/condition invariant, so it needs its
// own (de)serializer rather than relying on cbor's struct reflection.
type wireAccess[C Condition[C]] struct {
	_            struct{} `cbor:",toarray"`
	Level        Level
	HasCondition bool
	Condition    C
}

// MarshalCBOR encodes the access value for use in operation payloads
// (e.g. a group control message's member grants).
func (a Access[C]) MarshalCBOR() ([]byte, error) {
	w := wireAccess[C]{Level: a.level, HasCondition: a.hasCond}
	if a.hasCond {
		w.Condition = *a.condition
	}
	return cbor.Marshal(w)
}

// UnmarshalCBOR decodes an access value encoded by MarshalCBOR.
func (a *Access[C]) UnmarshalCBOR(data []byte) error {
	var w wireAccess[C]
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	a.level = w.Level
	a.hasCond = w.HasCondition
	if w.HasCondition {
		c := w.Condition
		a.condition = &c
	} else {
		a.condition = nil
	}
	return nil
}
