// Package keypair holds the Ed25519 identity a client signs with. Keys and
// signatures travel base58 encoded, the same text form the node uses for
// public keys.
package keypair

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"github.com/mr-tron/base58"
)

// ErrInvalidKey is returned for private keys that are neither a seed nor a full key
var ErrInvalidKey = errors.New("invalid ed25519 private key")

// Keypair is an Ed25519 signing key and its public half
type Keypair struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
}

// FromSeed builds a Keypair from a 32-byte seed or a 64-byte private key
func FromSeed(key []byte) (*Keypair, error) {
	var private ed25519.PrivateKey
	switch len(key) {
	case ed25519.SeedSize:
		private = ed25519.NewKeyFromSeed(key)
	case ed25519.PrivateKeySize:
		private = append(ed25519.PrivateKey(nil), key...)
		derived := ed25519.NewKeyFromSeed(private.Seed())
		if !derived.Equal(private) {
			return nil, fmt.Errorf("%w: public half does not match seed", ErrInvalidKey)
		}
	default:
		return nil, fmt.Errorf("%w: got %d bytes, want %d or %d", ErrInvalidKey, len(key), ed25519.SeedSize, ed25519.PrivateKeySize)
	}
	return &Keypair{
		private: private,
		public:  private.Public().(ed25519.PublicKey),
	}, nil
}

// FromBase58 decodes a base58 private key, usually the 32-byte seed
func FromBase58(encoded string) (*Keypair, error) {
	key, err := base58.Decode(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	return FromSeed(key)
}

// Generate creates a new random Keypair
func Generate() (*Keypair, error) {
	return generate(rand.Reader)
}

func generate(r io.Reader) (*Keypair, error) {
	_, private, err := ed25519.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("failed to generate keypair: %w", err)
	}
	return FromSeed(private)
}

func (k *Keypair) PublicKey() []byte {
	return append([]byte(nil), k.public...)
}

// PublicKeyBase58 is the form used for executor_public_key
func (k *Keypair) PublicKeyBase58() string {
	return base58.Encode(k.public)
}

// PrivateKeyBase58 encodes the seed, which FromBase58 accepts back
func (k *Keypair) PrivateKeyBase58() string {
	return base58.Encode(k.private.Seed())
}

// Sign signs the UTF-8 bytes of message
func (k *Keypair) Sign(message string) []byte {
	return ed25519.Sign(k.private, []byte(message))
}

func (k *Keypair) SignBase58(message string) string {
	return base58.Encode(k.Sign(message))
}

// Verify reports whether signature is valid for message under this public key
func (k *Keypair) Verify(message string, signature []byte) bool {
	return ed25519.Verify(k.public, []byte(message), signature)
}

// VerifyBase58 is Verify for a base58 signature. Undecodable input is not valid.
func (k *Keypair) VerifyBase58(message, signature string) bool {
	raw, err := base58.Decode(signature)
	if err != nil {
		return false
	}
	return k.Verify(message, raw)
}
