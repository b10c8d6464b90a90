// Package interfaces defines the core types and contracts of the wallet
// recovery system. It provides the boundary between components without
// implementation details: authentication factors, recovery modes, persisted
// record shapes, storage interfaces, and the shared error taxonomy.
package interfaces

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// FactorSize is the byte length of every authentication factor and root key.
const FactorSize = 32

// Factor is an opaque 256-bit authentication factor. Three kinds exist per
// wallet: a presentation key issued after identity verification, a
// password-derived key, and a randomly generated recovery key. Factors are
// secret material and must never be logged or persisted in plaintext.
type Factor [FactorSize]byte

// NewFactorFromBytes creates a factor from raw bytes.
func NewFactorFromBytes(b []byte) (Factor, error) {
	if len(b) != FactorSize {
		return Factor{}, fmt.Errorf("%w: factor must be %d bytes, got %d", ErrLengthMismatch, FactorSize, len(b))
	}

	var f Factor
	copy(f[:], b)
	return f, nil
}

// NewFactorFromHex creates a factor from a 64-character hex string.
func NewFactorFromHex(s string) (Factor, error) {
	clean := strings.TrimPrefix(s, "0x")
	if len(clean) != FactorSize*2 {
		return Factor{}, fmt.Errorf("%w: factor hex must be %d characters, got %d", ErrLengthMismatch, FactorSize*2, len(clean))
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return Factor{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewFactorFromBytes(raw)
}

// Bytes returns the raw 32-byte factor.
func (f Factor) Bytes() []byte {
	return f[:]
}

// Equal compares two factors in constant time.
func (f Factor) Equal(other Factor) bool {
	return subtle.ConstantTimeCompare(f[:], other[:]) == 1
}

// IsZero reports whether the factor is unset.
func (f Factor) IsZero() bool {
	return f == Factor{}
}

// LookupHash returns the one-way digest used to locate records belonging to
// this factor without revealing the factor itself.
func (f Factor) LookupHash() LookupHash {
	return LookupHash(sha256.Sum256(f[:]))
}

// RootKey is a 256-bit wallet root key. The primary root key signs and spends;
// the privileged root key guards sensitive operations and factor backups.
type RootKey [FactorSize]byte

// NewRootKeyFromBytes creates a root key from raw bytes.
func NewRootKeyFromBytes(b []byte) (RootKey, error) {
	if len(b) != FactorSize {
		return RootKey{}, fmt.Errorf("%w: root key must be %d bytes, got %d", ErrLengthMismatch, FactorSize, len(b))
	}

	var k RootKey
	copy(k[:], b)
	return k, nil
}

// NewRootKeyFromHex creates a root key from a 64-character hex string.
func NewRootKeyFromHex(s string) (RootKey, error) {
	clean := strings.TrimPrefix(s, "0x")
	if len(clean) != FactorSize*2 {
		return RootKey{}, fmt.Errorf("%w: root key hex must be %d characters, got %d", ErrLengthMismatch, FactorSize*2, len(clean))
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return RootKey{}, fmt.Errorf("invalid hex format: %w", err)
	}

	return NewRootKeyFromBytes(raw)
}

// Bytes returns the raw 32-byte key.
func (k RootKey) Bytes() []byte {
	return k[:]
}

// Equal compares two root keys in constant time.
func (k RootKey) Equal(other RootKey) bool {
	return subtle.ConstantTimeCompare(k[:], other[:]) == 1
}

// IsZero reports whether the key is unset.
func (k RootKey) IsZero() bool {
	return k == RootKey{}
}

// LookupHash is a 32-byte SHA-256 digest of an identity-establishing factor.
// It indexes tokens server-side; knowing the hash reveals nothing about the
// factor.
type LookupHash [32]byte

// NewLookupHashFromBytes creates a lookup hash from raw bytes.
func NewLookupHashFromBytes(b []byte) (LookupHash, error) {
	if len(b) != 32 {
		return LookupHash{}, errors.New("invalid lookup hash length: must be 32 bytes")
	}

	var h LookupHash
	copy(h[:], b)
	return h, nil
}

// NewLookupHashFromHex creates a lookup hash from a 64-character hex string.
func NewLookupHashFromHex(s string) (LookupHash, error) {
	clean := strings.TrimPrefix(s, "0x")
	if len(clean) != 64 {
		return LookupHash{}, errors.New("invalid lookup hash length: hex string must be 64 characters")
	}

	raw, err := hex.DecodeString(clean)
	if err != nil {
		return LookupHash{}, fmt.Errorf("invalid hex format: %w", err)
	}

	var h LookupHash
	copy(h[:], raw)
	return h, nil
}

// String returns the hex representation.
func (h LookupHash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns the raw 32-byte digest.
func (h LookupHash) Bytes() []byte {
	return h[:]
}

// Equal compares two lookup hashes.
func (h LookupHash) Equal(other LookupHash) bool {
	return bytes.Equal(h[:], other[:])
}

// IsZero reports whether the hash is unset.
func (h LookupHash) IsZero() bool {
	return h == LookupHash{}
}

// FactorKind identifies which of the three factors an operation refers to.
type FactorKind int

const (
	// KindPresentation is the factor issued after external identity verification.
	KindPresentation FactorKind = iota
	// KindPassword is the slow-hash derivative of the user's password.
	KindPassword
	// KindRecovery is the randomly generated offline-storage factor.
	KindRecovery
)

// ParseFactorKind parses the wire name of a factor kind.
func ParseFactorKind(s string) (FactorKind, error) {
	switch s {
	case "presentation":
		return KindPresentation, nil
	case "password":
		return KindPassword, nil
	case "recovery":
		return KindRecovery, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidFactorKind, s)
	}
}

// String returns the wire name of the factor kind.
func (k FactorKind) String() string {
	switch k {
	case KindPresentation:
		return "presentation"
	case KindPassword:
		return "password"
	case KindRecovery:
		return "recovery"
	default:
		return "unknown"
	}
}

// Valid reports whether the kind is one of the three known factors.
func (k FactorKind) Valid() bool {
	return k == KindPresentation || k == KindPassword || k == KindRecovery
}

// RecoveryMode names the factor pair supplied to a recovery attempt. XOR
// combination is commutative, so the order of the two factors within a mode
// carries no meaning.
type RecoveryMode int

const (
	// ModePresentationPassword recovers with the presentation and password factors.
	ModePresentationPassword RecoveryMode = iota
	// ModePresentationRecovery recovers with the presentation and recovery factors.
	ModePresentationRecovery
	// ModeRecoveryPassword recovers with the recovery and password factors.
	ModeRecoveryPassword
)

// ParseRecoveryMode parses the wire name of a recovery mode.
func ParseRecoveryMode(s string) (RecoveryMode, error) {
	switch s {
	case "presentation+password":
		return ModePresentationPassword, nil
	case "presentation+recovery":
		return ModePresentationRecovery, nil
	case "recovery+password":
		return ModeRecoveryPassword, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
	}
}

// String returns the wire name of the recovery mode.
func (m RecoveryMode) String() string {
	switch m {
	case ModePresentationPassword:
		return "presentation+password"
	case ModePresentationRecovery:
		return "presentation+recovery"
	case ModeRecoveryPassword:
		return "recovery+password"
	default:
		return "unknown"
	}
}

// Valid reports whether the mode is one of the three supported pairs.
func (m RecoveryMode) Valid() bool {
	return m == ModePresentationPassword || m == ModePresentationRecovery || m == ModeRecoveryPassword
}

// FactorKinds returns the two factor kinds a mode combines, in slot order.
func (m RecoveryMode) FactorKinds() (FactorKind, FactorKind) {
	switch m {
	case ModePresentationPassword:
		return KindPresentation, KindPassword
	case ModePresentationRecovery:
		return KindPresentation, KindRecovery
	default:
		return KindRecovery, KindPassword
	}
}

// AccessAction is the custody operation kind recorded in the access log and
// throttled by the rate limiter.
type AccessAction int

const (
	// ActionStore is the initial share upload.
	ActionStore AccessAction = iota
	// ActionRetrieve is a share decryption request.
	ActionRetrieve
	// ActionUpdate is a share rotation.
	ActionUpdate
)

// ParseAccessAction parses the persisted name of an access action.
func ParseAccessAction(s string) (AccessAction, error) {
	switch s {
	case "store":
		return ActionStore, nil
	case "retrieve":
		return ActionRetrieve, nil
	case "update":
		return ActionUpdate, nil
	default:
		return 0, fmt.Errorf("unknown access action: %q", s)
	}
}

// String returns the persisted name of the access action.
func (a AccessAction) String() string {
	switch a {
	case ActionStore:
		return "store"
	case ActionRetrieve:
		return "retrieve"
	case ActionUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Valid reports whether the action is a known custody operation.
func (a AccessAction) Valid() bool {
	return a == ActionStore || a == ActionRetrieve || a == ActionUpdate
}
