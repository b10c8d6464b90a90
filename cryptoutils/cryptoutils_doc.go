// Package cryptoutils provides the cryptographic operations the wallet
// recovery system is built on.
//
// This package implements symmetric authenticated encryption, slow key
// derivation, XOR key combination, and lookup hashing. It is used by the
// threshold token model to seal root keys under factor-pair combination keys
// and by the custody engine to encrypt Shamir shares at rest.
//
// The scheme uses the following components:
//
//   - AES-256-GCM for authenticated encryption with a fresh 12-byte random
//     nonce per call and a 16-byte tag kept separate from the ciphertext
//   - PBKDF2-SHA256 for deriving the password factor from a user secret and
//     per-user salt
//   - Bytewise XOR for combining two factors into a combination key
//   - SHA-256 for lookup-hash indexing
//
// # Sealed Secret Format
//
// SealedSecret keeps ciphertext, nonce, and tag as separate fields. Its
// binary encoding follows this layout:
//
//	[nonce length (2 bytes)][nonce][tag length (2 bytes)][tag][ciphertext length (4 bytes)][ciphertext]
//
// Where all length prefixes are big-endian unsigned integers.
//
// # Security Considerations
//
//   - Nonces are never reused for a given key; every Encrypt call draws a
//     fresh nonce from crypto/rand
//   - The GCM tag check is the only correctness signal; a decryption that
//     authenticates IS the proof the right key was supplied, and no
//     additional checksum is layered on top
//   - Decrypt reports one generic ErrAuthenticationFailure for a wrong key,
//     a tampered ciphertext, and a tampered nonce, through a single GCM open
//     path, so timing and error shape reveal nothing about the cause
//   - XOR combination is commutative; derived keys are independent of the
//     order the two factors are supplied in
//
// # Usage Example
//
//	combined, err := cryptoutils.Xor(presentation.Bytes(), password.Bytes())
//	if err != nil {
//	    return err
//	}
//
//	sealed, err := cryptoutils.Seal(rootKey.Bytes(), combined)
//	if err != nil {
//	    return err
//	}
//
//	// Later, with the same two factors in either order:
//	recovered, err := sealed.Open(combined)
package cryptoutils
