package cryptoutils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12

	// TagSize is the GCM authentication tag length in bytes.
	TagSize = 16

	// SaltSize is the PBKDF salt length in bytes.
	SaltSize = 32

	// DefaultKDFIterations is the PBKDF2 round count for password factors.
	DefaultKDFIterations = 10000
)

// Encrypt performs AES-256-GCM authenticated encryption. The nonce is
// generated fresh and uniformly at random on every call and is never reused
// for a given key. The 16-byte tag is returned separately from the
// ciphertext so the persisted layout can store them as distinct columns.
func Encrypt(plaintext, key []byte) (ciphertext, nonce, tag []byte, err error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, nil, nil, err
	}

	nonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: nonce generation: %w", interfaces.ErrCryptoFailure, err)
	}

	sealed := aesGCM.Seal(nil, nonce, plaintext, nil)
	ciphertext = sealed[:len(sealed)-TagSize]
	tag = sealed[len(sealed)-TagSize:]
	return ciphertext, nonce, tag, nil
}

// Decrypt reverses Encrypt. Tag verification failure, a wrong key, and
// tampered ciphertext or nonce all surface as the same
// ErrAuthenticationFailure through a single GCM open path, so callers and
// observers cannot distinguish the causes.
func Decrypt(ciphertext, nonce, tag, key []byte) ([]byte, error) {
	aesGCM, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: nonce must be %d bytes, got %d", interfaces.ErrCryptoFailure, NonceSize, len(nonce))
	}
	if len(tag) != TagSize {
		return nil, fmt.Errorf("%w: tag must be %d bytes, got %d", interfaces.ErrCryptoFailure, TagSize, len(tag))
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aesGCM.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, interfaces.ErrAuthenticationFailure
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", interfaces.ErrCryptoFailure, KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrCryptoFailure, err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrCryptoFailure, err)
	}

	return aesGCM, nil
}

// DeriveKey stretches a low-entropy secret into key material with
// PBKDF2-SHA256. Deterministic: identical inputs always produce identical
// output, which is what lets a password re-derive the same factor across
// devices.
func DeriveKey(secret, salt []byte, iterations, outputLength int) []byte {
	return pbkdf2.Key(secret, salt, iterations, outputLength, sha256.New)
}

// Xor combines two equal-length byte slices. Commutative, so derived
// combination keys are independent of factor ordering.
func Xor(a, b []byte) ([]byte, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("%w: %d vs %d bytes", interfaces.ErrLengthMismatch, len(a), len(b))
	}

	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out, nil
}

// Hash computes the SHA-256 digest used for lookup indexing.
func Hash(input []byte) [32]byte {
	return sha256.Sum256(input)
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrCryptoFailure, err)
	}
	return b, nil
}

// NewSalt returns a fresh PBKDF salt.
func NewSalt() ([]byte, error) {
	return RandomBytes(SaltSize)
}

// RandomFactor generates a fresh authentication factor.
func RandomFactor() (interfaces.Factor, error) {
	b, err := RandomBytes(interfaces.FactorSize)
	if err != nil {
		return interfaces.Factor{}, err
	}
	return interfaces.NewFactorFromBytes(b)
}

// RandomRootKey generates a fresh root key.
func RandomRootKey() (interfaces.RootKey, error) {
	b, err := RandomBytes(interfaces.FactorSize)
	if err != nil {
		return interfaces.RootKey{}, err
	}
	return interfaces.NewRootKeyFromBytes(b)
}
