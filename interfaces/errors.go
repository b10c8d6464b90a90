package interfaces

import "errors"

// Cryptographic failures.
var (
	// ErrCryptoFailure is returned for malformed key, ciphertext, or nonce
	// material. Always fatal to the current operation, never retried.
	ErrCryptoFailure = errors.New("cryptographic operation failed")

	// ErrAuthenticationFailure is returned when an authenticated decryption
	// fails its tag check: wrong factor, tampered ciphertext, or tampered
	// nonce. Surfaced generically so callers cannot tell which factor was
	// wrong.
	ErrAuthenticationFailure = errors.New("authentication failed")

	// ErrLengthMismatch is returned when fixed-length operands (XOR inputs,
	// factors, keys) have differing or unexpected lengths.
	ErrLengthMismatch = errors.New("operand length mismatch")
)

// Token and recovery failures.
var (
	// ErrInvalidFactorKind is returned for a factor kind outside
	// {presentation, password, recovery}.
	ErrInvalidFactorKind = errors.New("invalid factor kind")

	// ErrUnsupportedMode is returned for a recovery mode outside the three
	// supported factor pairs.
	ErrUnsupportedMode = errors.New("unsupported recovery mode")

	// ErrTokenNotFound is returned when no token matches the supplied lookup
	// hash. Surfaced as a generic failure to avoid account enumeration.
	ErrTokenNotFound = errors.New("token not found")

	// ErrDuplicateToken is returned when a token already exists for a lookup
	// hash being registered.
	ErrDuplicateToken = errors.New("token already exists")
)

// Custody failures.
var (
	// ErrShareNotFound is returned by share stores when no record exists for
	// a user. The custody engine translates it into its not-found sentinel
	// rather than an error.
	ErrShareNotFound = errors.New("share not found")

	// ErrDuplicateShare is returned when storing a share for a user that
	// already has one. The single-share invariant is strict; rotation goes
	// through update.
	ErrDuplicateShare = errors.New("share already exists for user")

	// ErrNoExistingShare is returned when updating a share for a user that
	// has none.
	ErrNoExistingShare = errors.New("no existing share for user")

	// ErrUserNotFound is returned when no user record matches an identity.
	ErrUserNotFound = errors.New("user not found")

	// ErrDuplicateUser is returned when creating a user whose identity is
	// already registered. Callers racing on first contact re-fetch by
	// identity.
	ErrDuplicateUser = errors.New("user already exists")

	// ErrMissingEncryptionKey is returned at startup when the custody
	// encryption key is not configured.
	ErrMissingEncryptionKey = errors.New("custody encryption key not configured")

	// ErrInvalidKeyLength is returned when the configured custody key does
	// not decode to exactly 32 bytes.
	ErrInvalidKeyLength = errors.New("custody encryption key must be 32 bytes")

	// ErrInvalidShareEncoding is returned when a share payload fails the
	// 4-part dot-delimited format check performed at the API boundary.
	ErrInvalidShareEncoding = errors.New("invalid share encoding")
)

// Rate limiting.
var (
	// ErrRateLimited is returned when an identity or origin has exceeded its
	// failure budget. Carries no retry hint itself; the limiter's decision
	// does.
	ErrRateLimited = errors.New("rate limited")
)

// Verification failures.
var (
	// ErrVerificationFailed is returned when an identity verification proof
	// does not match the outstanding challenge.
	ErrVerificationFailed = errors.New("identity verification failed")

	// ErrChallengeExpired is returned when a verification proof arrives after
	// the challenge TTL.
	ErrChallengeExpired = errors.New("verification challenge expired")
)

// Archive failures.
var (
	// ErrSnapshotNotFound is returned when requested snapshot content cannot
	// be found in the archive backend.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrBackendUnavailable is returned when an archive backend is not
	// accessible: network issues, authentication failures, or outages.
	ErrBackendUnavailable = errors.New("archive backend unavailable")

	// ErrInvalidLocationURI is returned when an archive location URI is
	// malformed or uses an unsupported scheme.
	ErrInvalidLocationURI = errors.New("invalid archive location URI")
)
