// Package token implements the threshold token: the persisted data structure
// holding every encrypted key combination of one wallet.
//
// A wallet has three authentication factors (presentation, password-derived,
// recovery) and two root keys (primary, privileged). The token seals the
// primary root key once per unordered factor pair under the XOR of the two
// factors, so any two factors unlock it while any single factor reveals
// nothing. The privileged root key is sealed under XOR(password factor,
// primary root key) and under XOR(presentation factor, recovery factor).
//
// Tokens are pure data plus construction and rotation logic. Recovery lives
// in the recovery package; persistence and archival live in storage and
// archive. Build creates a token once at wallet creation; RotateFactor is the
// only mutation and always returns a new token, leaving the unrelated pair
// ciphertext byte-identical so rotation is atomic relative to concurrent
// recoveries once the caller swaps the persisted record.
//
// Lookup hashes of the presentation and recovery factors index the token
// server-side. The password factor is never hash-indexed: it is low entropy
// before stretching, and an index over it would invite offline guessing.
package token
