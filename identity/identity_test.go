package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSignVerifySoundness tests property 1 from spec §8: verify(sign(m,
// sk), pk(sk), m) == true, and any bit-flip in m or the signature makes it
// false.
func TestSignVerifySoundness(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("hello groveauth")
	sig := kp.Sign(msg)

	assert.True(t, Verify(kp.PublicKey(), msg, sig))

	flippedMsg := append([]byte(nil), msg...)
	flippedMsg[0] ^= 0xFF
	assert.False(t, Verify(kp.PublicKey(), flippedMsg, sig))

	flippedSig := sig
	flippedSig[0] ^= 0xFF
	assert.False(t, Verify(kp.PublicKey(), msg, flippedSig))
}

func TestDistinctKeyPairsProduceDistinctSignatures(t *testing.T) {
	kp1, err := GenerateKeyPair()
	require.NoError(t, err)
	kp2, err := GenerateKeyPair()
	require.NoError(t, err)

	msg := []byte("same message")
	sig1 := kp1.Sign(msg)
	sig2 := kp2.Sign(msg)

	assert.NotEqual(t, sig1, sig2)
	assert.True(t, Verify(kp1.PublicKey(), msg, sig1))
	assert.False(t, Verify(kp2.PublicKey(), msg, sig1))
	assert.True(t, Verify(kp2.PublicKey(), msg, sig2))
	assert.False(t, Verify(kp1.PublicKey(), msg, sig2))
}

func TestPublicKeyOrdering(t *testing.T) {
	a, err := PublicKeyFromHex("0000000000000000000000000000000000000000000000000000000000000a")
	require.Error(t, err) // 31 bytes, too short: sanity check on helper

	low, err := PublicKeyFromBytes(make([]byte, PublicKeySize))
	require.NoError(t, err)

	high := low
	high[PublicKeySize-1] = 0xFF

	assert.True(t, low.Less(high))
	assert.False(t, high.Less(low))
	_ = a
}

func TestKeyPairFromPrivateRoundtrip(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	reconstructed, err := KeyPairFromPrivate(kp.private[:])
	require.NoError(t, err)

	assert.Equal(t, kp.PublicKey(), reconstructed.PublicKey())
}

func TestInvalidLengths(t *testing.T) {
	_, err := PublicKeyFromBytes(make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = SignatureFromBytes(make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = KeyPairFromPrivate(make([]byte, 10))
	assert.ErrorIs(t, err, ErrInvalidLength)
}
