package group

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/veraison/go-cose"

	"github.com/datatrails/groveauth/access"
	"github.com/datatrails/groveauth/hashing"
	"github.com/datatrails/groveauth/identity"
	"github.com/datatrails/groveauth/operation"
)

// Checkpoint is a COSE-signed, CBOR-encoded snapshot of a group's
// membership at a point in time (SPEC_FULL.md §4.10), grounded in the
// teacher codebase's RootSigner.Sign1 pattern of wrapping a canonical
// CBOR payload in a COSE_Sign1 envelope. Unlike the teacher's MMR
// state, a checkpoint commits to CRDT membership, not a Merkle root;
// it is purely a trust-bootstrapping convenience for new replicas and
// auditors and is never required for convergence.
type Checkpoint[C access.Condition[C]] struct {
	_ struct{} `cbor:",toarray"`

	GroupID   ID
	Heads     []hashing.Hash
	Members   []MemberAccess[C]
	Timestamp int64
}

// NewCheckpoint snapshots s's current heads and members.
func NewCheckpoint[C access.Condition[C]](s *State[C], timestamp int64) Checkpoint[C] {
	return Checkpoint[C]{
		GroupID:   s.ID(),
		Heads:     s.Heads(),
		Members:   s.Members(),
		Timestamp: timestamp,
	}
}

// SignCheckpoint encodes checkpoint canonically and wraps it in a
// COSE_Sign1 envelope signed by signer, identified on the wire by
// keyID, mirroring RootSigner.Sign1's "encode state, then Sign1 it"
// shape.
func SignCheckpoint[C access.Condition[C]](signer identity.KeyPair, keyID string, checkpoint Checkpoint[C]) ([]byte, error) {
	payload, err := operation.Marshal(checkpoint)
	if err != nil {
		return nil, fmt.Errorf("group: encoding checkpoint: %w", err)
	}

	coseSigner, err := cose.NewSigner(cose.AlgorithmEd25519, ed25519.PrivateKey(signer.PrivateKey().Bytes()))
	if err != nil {
		return nil, fmt.Errorf("group: constructing COSE signer: %w", err)
	}

	msg := cose.NewSign1Message()
	msg.Headers.Protected.SetAlgorithm(cose.AlgorithmEd25519)
	if keyID != "" {
		msg.Headers.Protected[cose.HeaderLabelKeyID] = []byte(keyID)
	}
	msg.Payload = payload

	if err := msg.Sign(rand.Reader, nil, coseSigner); err != nil {
		return nil, fmt.Errorf("group: signing checkpoint: %w", err)
	}

	sealed, err := msg.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("group: encoding signed checkpoint: %w", err)
	}
	return sealed, nil
}

// VerifyCheckpoint verifies sealed against pub and decodes the
// checkpoint it carries.
func VerifyCheckpoint[C access.Condition[C]](pub identity.PublicKey, sealed []byte) (Checkpoint[C], error) {
	var msg cose.Sign1Message
	if err := msg.UnmarshalCBOR(sealed); err != nil {
		return Checkpoint[C]{}, fmt.Errorf("group: decoding signed checkpoint: %w", err)
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmEd25519, ed25519.PublicKey(pub.Bytes()))
	if err != nil {
		return Checkpoint[C]{}, fmt.Errorf("group: constructing COSE verifier: %w", err)
	}
	if err := msg.Verify(nil, verifier); err != nil {
		return Checkpoint[C]{}, fmt.Errorf("group: checkpoint signature invalid: %w", err)
	}

	var checkpoint Checkpoint[C]
	if err := operation.Unmarshal(msg.Payload, &checkpoint); err != nil {
		return Checkpoint[C]{}, fmt.Errorf("group: decoding checkpoint payload: %w", err)
	}
	return checkpoint, nil
}
