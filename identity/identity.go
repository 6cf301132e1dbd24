// Package identity implements the Ed25519 keypairs and signing/verification
// primitives that authenticate authored operations (C1).
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const (
	// PublicKeySize is the length in bytes of a PublicKey.
	PublicKeySize = ed25519.PublicKeySize
	// PrivateKeySize is the length in bytes of a PrivateKey (seed + public key).
	PrivateKeySize = ed25519.PrivateKeySize
	// SignatureSize is the length in bytes of a Signature.
	SignatureSize = ed25519.SignatureSize
)

var (
	// ErrInvalidLength is returned when a key or signature byte slice does
	// not have the expected fixed length.
	ErrInvalidLength = errors.New("identity: invalid byte length")
	// ErrInvalidEncoding is returned when a hex-encoded key cannot be decoded.
	ErrInvalidEncoding = errors.New("identity: invalid encoding")
	// ErrInvalidSignature is returned by Verify when the signature does not
	// authenticate the given message under the given public key.
	ErrInvalidSignature = errors.New("identity: invalid signature")
)

// PublicKey identifies a peer and the author of a log. PublicKeys are
// totally ordered by their hex representation to provide a deterministic
// tie-break wherever authors must be sorted.
type PublicKey [PublicKeySize]byte

// PrivateKey is an Ed25519 private key used only to sign operations; it
// never crosses the network.
type PrivateKey [PrivateKeySize]byte

// Signature authenticates the canonical encoding of an operation header.
type Signature [SignatureSize]byte

// String renders the public key as lowercase hex, the canonical textual
// form used for tie-breaking and logging.
func (pk PublicKey) String() string {
	return hex.EncodeToString(pk[:])
}

// Bytes returns the raw 32-byte encoding.
func (pk PublicKey) Bytes() []byte {
	return pk[:]
}

// IsZero reports whether pk is the zero value.
func (pk PublicKey) IsZero() bool {
	return pk == PublicKey{}
}

// Less reports whether pk sorts before other under the hex total order
// required by spec §3 ("PublicKeys ... totally ordered by their hex
// representation for deterministic tie-breaking").
func (pk PublicKey) Less(other PublicKey) bool {
	return pk.String() < other.String()
}

// PublicKeyFromBytes validates and wraps a raw public key.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeySize {
		return pk, fmt.Errorf("%w: public key must be %d bytes, got %d", ErrInvalidLength, PublicKeySize, len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// PublicKeyFromHex decodes a hex-encoded public key.
func PublicKeyFromHex(s string) (PublicKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return PublicKey{}, fmt.Errorf("%w: %s", ErrInvalidEncoding, err)
	}
	return PublicKeyFromBytes(b)
}

// SignatureFromBytes validates and wraps a raw signature.
func SignatureFromBytes(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureSize {
		return sig, fmt.Errorf("%w: signature must be %d bytes, got %d", ErrInvalidLength, SignatureSize, len(b))
	}
	copy(sig[:], b)
	return sig, nil
}

// Bytes returns the raw 64-byte encoding.
func (s Signature) Bytes() []byte {
	return s[:]
}

// Bytes returns the raw 64-byte encoding (seed || public key). Callers
// that need to hand the key to a different signing API (e.g. a COSE
// signer) use this rather than reimplementing Ed25519 signing
// themselves.
func (priv PrivateKey) Bytes() []byte {
	return priv[:]
}

// KeyPair is an Ed25519 identity capable of signing on behalf of its
// public key.
type KeyPair struct {
	public  PublicKey
	private PrivateKey
}

// GenerateKeyPair creates a fresh random identity.
func GenerateKeyPair() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("identity: generating key pair: %w", err)
	}

	var kp KeyPair
	copy(kp.public[:], pub)
	copy(kp.private[:], priv)
	return kp, nil
}

// KeyPairFromPrivate reconstructs a KeyPair from a 64-byte Ed25519 private
// key (seed || public key), the same encoding ed25519.GenerateKey returns.
func KeyPairFromPrivate(priv []byte) (KeyPair, error) {
	if len(priv) != PrivateKeySize {
		return KeyPair{}, fmt.Errorf("%w: private key must be %d bytes, got %d", ErrInvalidLength, PrivateKeySize, len(priv))
	}

	edPriv := ed25519.PrivateKey(priv)
	pub, ok := edPriv.Public().(ed25519.PublicKey)
	if !ok {
		return KeyPair{}, fmt.Errorf("identity: unexpected public key type from private key")
	}

	var kp KeyPair
	copy(kp.public[:], pub)
	copy(kp.private[:], priv)
	return kp, nil
}

// PublicKey returns the identity's public key.
func (kp KeyPair) PublicKey() PublicKey {
	return kp.public
}

// PrivateKey returns the identity's private key, for callers that need
// to hand it to a different signing API (e.g. a COSE signer) rather
// than this package's own Sign.
func (kp KeyPair) PrivateKey() PrivateKey {
	return kp.private
}

// Sign signs message (typically the canonical header bytes with the
// signature field cleared, per spec §4.1) and returns the resulting
// signature.
func (kp KeyPair) Sign(message []byte) Signature {
	sig := ed25519.Sign(ed25519.PrivateKey(kp.private[:]), message)
	var out Signature
	copy(out[:], sig)
	return out
}

// Sign signs message bytes using an Ed25519 private key directly, without
// requiring a full KeyPair.
func Sign(priv PrivateKey, message []byte) Signature {
	sig := ed25519.Sign(ed25519.PrivateKey(priv[:]), message)
	var out Signature
	copy(out[:], sig)
	return out
}

// Verify reports whether sig authenticates message under pub. Ed25519
// verification is strict: malformed or non-canonical signatures are
// rejected by the underlying crypto/ed25519 implementation and surface
// here as a false result, never a panic.
func Verify(pub PublicKey, message []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), message, sig[:])
}

// VerifyStrict is Verify but returns ErrInvalidSignature instead of a bare
// bool, for callers that want to propagate the failure through an error
// chain (e.g. operation validation, §4.3 step 2).
func VerifyStrict(pub PublicKey, message []byte, sig Signature) error {
	if !Verify(pub, message, sig) {
		return ErrInvalidSignature
	}
	return nil
}

// MarshalCBOR encodes the public key as a CBOR byte string, so it can be
// embedded directly as a header field under the canonical encoding (§6).
func (pk PublicKey) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(pk[:])
}

// UnmarshalCBOR decodes a CBOR byte string into the public key.
func (pk *PublicKey) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	decoded, err := PublicKeyFromBytes(b)
	if err != nil {
		return err
	}
	*pk = decoded
	return nil
}

// MarshalCBOR encodes the signature as a CBOR byte string.
func (s Signature) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(s[:])
}

// UnmarshalCBOR decodes a CBOR byte string into the signature.
func (s *Signature) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	decoded, err := SignatureFromBytes(b)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}
