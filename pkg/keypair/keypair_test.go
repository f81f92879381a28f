package keypair

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSeed() []byte {
	return bytes.Repeat([]byte{7}, ed25519.SeedSize)
}

func TestFromBase58(t *testing.T) {
	seed := fixedSeed()
	want := ed25519.NewKeyFromSeed(seed).Public().(ed25519.PublicKey)

	t.Run("seed", func(t *testing.T) {
		kp, err := FromBase58(base58.Encode(seed))
		require.NoError(t, err)
		assert.Equal(t, []byte(want), kp.PublicKey())
		assert.Equal(t, base58.Encode(want), kp.PublicKeyBase58())
		assert.Equal(t, base58.Encode(seed), kp.PrivateKeyBase58())
	})

	t.Run("full private key", func(t *testing.T) {
		kp, err := FromBase58(base58.Encode(ed25519.NewKeyFromSeed(seed)))
		require.NoError(t, err)
		assert.Equal(t, base58.Encode(want), kp.PublicKeyBase58())
	})

	t.Run("mismatched public half", func(t *testing.T) {
		key := ed25519.NewKeyFromSeed(seed)
		key[63] ^= 0xff
		_, err := FromSeed(key)
		assert.True(t, errors.Is(err, ErrInvalidKey))
	})

	t.Run("wrong length", func(t *testing.T) {
		_, err := FromBase58(base58.Encode([]byte{1, 2, 3}))
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("not base58", func(t *testing.T) {
		_, err := FromBase58("0OIl")
		assert.Error(t, err)
	})
}

func TestSignAndVerify(t *testing.T) {
	kp, err := FromSeed(fixedSeed())
	require.NoError(t, err)

	sig := kp.Sign("hello")
	assert.Len(t, sig, ed25519.SignatureSize)
	assert.True(t, kp.Verify("hello", sig))
	assert.False(t, kp.Verify("hello!", sig))

	encoded := kp.SignBase58("hello")
	assert.Equal(t, base58.Encode(sig), encoded)
	assert.True(t, kp.VerifyBase58("hello", encoded))
	assert.False(t, kp.VerifyBase58("other", encoded))
	assert.False(t, kp.VerifyBase58("hello", "not-base58-0OIl"))

	other, err := Generate()
	require.NoError(t, err)
	assert.False(t, other.Verify("hello", sig))
	assert.NotEqual(t, kp.PublicKeyBase58(), other.PublicKeyBase58())
}

func TestGenerate_RoundTrip(t *testing.T) {
	kp, err := generate(bytes.NewReader(bytes.Repeat([]byte{42}, 64)))
	require.NoError(t, err)

	restored, err := FromBase58(kp.PrivateKeyBase58())
	require.NoError(t, err)
	assert.Equal(t, kp.PublicKeyBase58(), restored.PublicKeyBase58())
	assert.True(t, restored.Verify("msg", kp.Sign("msg")))

	_, err = generate(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestPublicKey_ReturnsCopy(t *testing.T) {
	kp, err := FromSeed(fixedSeed())
	require.NoError(t, err)
	pub := kp.PublicKey()
	pub[0] ^= 0xff
	assert.NotEqual(t, pub, kp.PublicKey())
}
