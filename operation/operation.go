// Package operation implements the append-only log record (C3): its
// header/body structure, canonical encoding, construction, signing, and
// the store-independent portion of receipt validation.
package operation

import (
	"fmt"

	"github.com/datatrails/groveauth/hashing"
	"github.com/datatrails/groveauth/identity"
)

// Operation is a fully constructed, hashed record (spec §3).
type Operation struct {
	Hash   hashing.Hash
	Header Header
	Body   []byte
}

// NewParams are the inputs to constructing and signing a fresh operation
// (spec §4.3 "on construction").
type NewParams struct {
	Author    identity.KeyPair
	SeqNum    uint64
	Backlink  *hashing.Hash // must be nil iff SeqNum == 0
	Previous  []hashing.Hash
	Timestamp uint64
	LogID     LogID
	Prune     bool
	Body      []byte
}

// New builds, signs, and hashes a new operation from params. It computes
// the payload hash/size from Body if present (spec §3: "if present,
// payload_hash = hash(body) and payload_size = len(body)").
func New(params NewParams) (Operation, error) {
	if params.SeqNum == 0 && params.Backlink != nil {
		return Operation{}, ErrBacklinkMissing
	}
	if params.SeqNum > 0 && params.Backlink == nil {
		return Operation{}, ErrBacklinkMissing
	}

	previous := hashing.SortHashes(params.Previous)
	for i, h := range previous {
		if i > 0 && h == previous[i-1] {
			return Operation{}, ErrDuplicatePrevious
		}
	}

	header := Header{
		Version:    Version,
		PublicKey:  params.Author.PublicKey(),
		Timestamp:  params.Timestamp,
		SeqNum:     params.SeqNum,
		Backlink:   params.Backlink,
		Previous:   previous,
		Extensions: Extensions{LogID: params.LogID, Prune: params.Prune},
	}

	if len(params.Body) > 0 {
		bodyHash := hashing.Of(params.Body)
		header.PayloadHash = &bodyHash
		header.PayloadSize = uint64(len(params.Body))
	}

	unsignedBytes, err := header.CanonicalBytes()
	if err != nil {
		return Operation{}, fmt.Errorf("operation: encoding header for signing: %w", err)
	}
	sig := params.Author.Sign(unsignedBytes)
	header.Signature = &sig

	h, err := header.Hash()
	if err != nil {
		return Operation{}, fmt.Errorf("operation: hashing signed header: %w", err)
	}

	for _, p := range previous {
		if p == h {
			return Operation{}, ErrSelfReference
		}
	}

	return Operation{Hash: h, Header: header, Body: params.Body}, nil
}

// FromWire reconstructs an Operation from header bytes and an optional
// body received over the network, without re-running validation (callers
// must call Validate separately, per the ingest pipeline's §4.6
// procedure).
func FromWire(headerBytes []byte, body []byte) (Operation, error) {
	var header Header
	if err := Unmarshal(headerBytes, &header); err != nil {
		return Operation{}, fmt.Errorf("operation: decoding header: %w", err)
	}
	h := hashing.Of(headerBytes)
	return Operation{Hash: h, Header: header, Body: body}, nil
}

// HeaderBytes returns the canonical, signed encoding of the operation's
// header — the bytes that are persisted and whose hash is the content id.
func (op Operation) HeaderBytes() ([]byte, error) {
	return Marshal(op.Header)
}

// Validate runs the store-independent portion of receipt validation (spec
// §4.3 steps 1, 2, 4, 6). Step 3 (payload hash and size) is VerifyBody;
// step 5 (backlink existence against the
// author's log) requires the operation store and is performed by the
// ingest pipeline (spec §4.6).
func (op Operation) Validate() error {
	h := op.Header

	if h.Version != Version {
		return ErrUnsupportedVersion
	}

	unsignedBytes, err := h.CanonicalBytes()
	if err != nil {
		return fmt.Errorf("operation: re-encoding header: %w", err)
	}
	if h.Signature == nil {
		return ErrSignatureInvalid
	}
	if !identity.Verify(h.PublicKey, unsignedBytes, *h.Signature) {
		return ErrSignatureInvalid
	}

	if h.SeqNum == 0 && h.Backlink != nil {
		return ErrBacklinkMissing
	}

	seen := make(map[hashing.Hash]struct{}, len(h.Previous))
	for _, p := range h.Previous {
		if p == op.Hash {
			return ErrSelfReference
		}
		if _, dup := seen[p]; dup {
			return ErrDuplicatePrevious
		}
		seen[p] = struct{}{}
	}

	return nil
}

// VerifyBody reports whether body matches the payload_hash/payload_size
// recorded in the header (spec §4.3 step 3). Takes the body explicitly
// rather than folding into Validate, so that Validate can check a header
// on its own.

func VerifyBody(h Header, body []byte) error {
	if len(body) == 0 {
		if h.PayloadHash != nil || h.PayloadSize != 0 {
			return ErrPayloadMismatch
		}
		return nil
	}
	if h.PayloadHash == nil {
		return ErrPayloadMismatch
	}
	if hashing.Of(body) != *h.PayloadHash {
		return ErrPayloadMismatch
	}
	if h.PayloadSize != uint64(len(body)) {
		return ErrPayloadMismatch
	}
	return nil
}
