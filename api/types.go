package api

import (
	"context"
	"time"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// Verification headers carry the proof for custody operations. The method
// names a registered verification mechanism; the proof is whatever that
// mechanism issued out of band (an OTP code, a signed assertion).
const (
	VerificationMethodHeader = "X-Verification-Method"
	VerificationProofHeader  = "X-Verification-Proof"
)

// BuildTokenRequest carries the material for a fresh threshold token. Factors
// and root keys are 64-character hex strings. The password factor is supplied
// either pre-derived (password_factor + password_salt) or as the raw password,
// in which case the server derives it under a fresh salt.
type BuildTokenRequest struct {
	PresentationFactor string `json:"presentation_factor"`
	RecoveryFactor     string `json:"recovery_factor"`

	Password       string `json:"password,omitempty"`
	PasswordFactor string `json:"password_factor,omitempty"`
	PasswordSalt   string `json:"password_salt,omitempty"`

	RootPrimary    string `json:"root_primary"`
	RootPrivileged string `json:"root_privileged"`

	// Profile is an optional opaque blob sealed into the token under the
	// privileged root key.
	Profile []byte `json:"profile,omitempty"`
}

// BuildTokenResponse returns the public coordinates of the stored token. The
// salt lets the client re-derive the password factor later; no factor or key
// material is ever echoed.
type BuildTokenResponse struct {
	PresentationHash string `json:"presentation_hash"`
	RecoveryHash     string `json:"recovery_hash"`
	Locator          string `json:"locator"`
	PasswordSalt     string `json:"password_salt"`
}

// TokenInfoResponse is the public metadata of a stored token, addressable by
// either lookup hash. It contains everything a client needs to prepare a
// recovery attempt and nothing that helps anyone without the factors.
type TokenInfoResponse struct {
	PresentationHash string    `json:"presentation_hash"`
	RecoveryHash     string    `json:"recovery_hash"`
	PasswordSalt     string    `json:"password_salt"`
	Locator          string    `json:"locator"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// RecoverRequest submits two factors for a recovery attempt. Factor order
// within the pair does not matter.
type RecoverRequest struct {
	Mode    string `json:"mode"`
	FactorA string `json:"factor_a"`
	FactorB string `json:"factor_b"`
}

// RecoverResponse carries the recovered root keys. RootPrivileged is empty
// and PrivilegedDerivable false when the token predates the privileged
// ciphertext reachable from the supplied pair.
type RecoverResponse struct {
	RootPrimary         string `json:"root_primary"`
	RootPrivileged      string `json:"root_privileged,omitempty"`
	PrivilegedDerivable bool   `json:"privileged_derivable"`
	PasswordSalt        string `json:"password_salt"`
	Profile             []byte `json:"profile,omitempty"`
}

// RotateFactorRequest replaces one factor of a token. The caller must hold
// both root keys from a prior recovery. For password rotation the raw
// new_password may be supplied instead of new_factor; the server derives the
// replacement under a fresh salt.
type RotateFactorRequest struct {
	LookupHash  string `json:"lookup_hash"`
	Kind        string `json:"kind"`
	OldFactor   string `json:"old_factor"`
	NewFactor   string `json:"new_factor,omitempty"`
	NewPassword string `json:"new_password,omitempty"`

	RootPrimary    string `json:"root_primary"`
	RootPrivileged string `json:"root_privileged"`
}

// RotateFactorResponse returns the token coordinates after rotation. Lookup
// hashes change when the presentation or recovery factor rotates; the salt is
// fresh after a password rotation.
type RotateFactorResponse struct {
	PresentationHash string `json:"presentation_hash"`
	RecoveryHash     string `json:"recovery_hash"`
	Locator          string `json:"locator"`
	PasswordSalt     string `json:"password_salt"`
}

// StoreShareRequest uploads an encoded share for custody. The share must be
// in the four-part index.data.threshold.checksum form.
type StoreShareRequest struct {
	Share string `json:"share"`
}

// ShareResponse describes a custody record. Share is populated only by
// retrieval; mutations return the version metadata instead.
type ShareResponse struct {
	Identity  string    `json:"identity"`
	Share     string    `json:"share,omitempty"`
	Version   int       `json:"version,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// VerificationStartRequest asks a verification method to issue a challenge
// for an identity.
type VerificationStartRequest struct {
	Identity string `json:"identity"`
	Method   string `json:"method"`
}

// VerificationProof names a registered verification method and the proof it
// issued for an identity. Custody operations carry it in the verification
// headers; a proof is consumed on success and cannot be replayed.
type VerificationProof struct {
	Method string
	Proof  string
}

// AuditLogResponse lists the newest access log entries for an identity.
type AuditLogResponse struct {
	Identity string                       `json:"identity"`
	Entries  []*interfaces.AccessLogEntry `json:"entries"`
}

// RecoveryProvider is the client-side contract of the token endpoints.
type RecoveryProvider interface {
	BuildToken(ctx context.Context, req *BuildTokenRequest) (*BuildTokenResponse, error)
	TokenInfo(ctx context.Context, lookupHash string) (*TokenInfoResponse, error)
	Recover(ctx context.Context, req *RecoverRequest) (*RecoverResponse, error)
	RotateFactor(ctx context.Context, req *RotateFactorRequest) (*RotateFactorResponse, error)
}

// CustodyProvider is the client-side contract of the share custody endpoints.
// Every operation requires a fresh verification proof.
type CustodyProvider interface {
	StoreShare(ctx context.Context, identity, share string, proof VerificationProof) (*ShareResponse, error)
	RetrieveShare(ctx context.Context, identity string, proof VerificationProof) (*ShareResponse, error)
	UpdateShare(ctx context.Context, identity, share string, proof VerificationProof) (*ShareResponse, error)
	DeleteShare(ctx context.Context, identity string, proof VerificationProof) error
}
