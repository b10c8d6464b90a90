package token

import (
	"fmt"

	"github.com/keyquorum/wallet-recovery-backend/cryptoutils"
	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// Factors bundles the three authentication factors of one wallet.
type Factors struct {
	Presentation interfaces.Factor
	Password     interfaces.Factor
	Recovery     interfaces.Factor
}

// Validate checks that all three factors are set.
func (f Factors) Validate() error {
	if f.Presentation.IsZero() || f.Password.IsZero() || f.Recovery.IsZero() {
		return fmt.Errorf("%w: all three factors are required", interfaces.ErrCryptoFailure)
	}
	return nil
}

// byKind returns the factor for a kind.
func (f Factors) byKind(kind interfaces.FactorKind) interfaces.Factor {
	switch kind {
	case interfaces.KindPresentation:
		return f.Presentation
	case interfaces.KindPassword:
		return f.Password
	default:
		return f.Recovery
	}
}

// setKind replaces the factor for a kind.
func (f *Factors) setKind(kind interfaces.FactorKind, factor interfaces.Factor) {
	switch kind {
	case interfaces.KindPresentation:
		f.Presentation = factor
	case interfaces.KindPassword:
		f.Password = factor
	case interfaces.KindRecovery:
		f.Recovery = factor
	}
}

// Token is the threshold token of one wallet: every encrypted combination
// needed to recover the root keys from any two factors.
//
// The primary root key is sealed three times, once per unordered factor pair,
// each under the XOR of the two factors. The privileged root key is sealed
// twice: under XOR(password factor, primary root key) and under
// XOR(presentation factor, recovery factor). Factor backups let a holder of
// the privileged key re-derive the full factor set during rotation.
type Token struct {
	// Primary-key ciphertexts, exactly one per unordered factor pair.
	PairPresentationPassword cryptoutils.SealedSecret `json:"pair_presentation_password"`
	PairPresentationRecovery cryptoutils.SealedSecret `json:"pair_presentation_recovery"`
	PairRecoveryPassword     cryptoutils.SealedSecret `json:"pair_recovery_password"`

	// Privileged-key ciphertexts.
	PrivilegedByPassword             cryptoutils.SealedSecret `json:"privileged_by_password"`
	PrivilegedByPresentationRecovery cryptoutils.SealedSecret `json:"privileged_by_presentation_recovery"`

	// Lookup hashes locate the token without revealing a factor. The
	// password factor is deliberately not hash-indexed.
	PresentationHash interfaces.LookupHash `json:"presentation_hash"`
	RecoveryHash     interfaces.LookupHash `json:"recovery_hash"`

	// Factor backups sealed under the privileged root key.
	PresentationBackup cryptoutils.SealedSecret `json:"presentation_backup"`
	PasswordBackup     cryptoutils.SealedSecret `json:"password_backup"`
	RecoveryBackup     cryptoutils.SealedSecret `json:"recovery_backup"`

	// PasswordSalt is the PBKDF salt the password factor was derived with.
	PasswordSalt []byte `json:"password_salt"`

	// Profile is an optional encrypted profile blob, sealed under the
	// privileged root key.
	Profile *cryptoutils.SealedSecret `json:"profile,omitempty"`

	// Locator is the opaque persistence reference of the archived token
	// snapshot. Never interpreted here.
	Locator string `json:"locator,omitempty"`
}

// Build computes a fresh token: all five ciphertexts, both lookup hashes, and
// the three factor backups. Nonces are random, so two builds from identical
// inputs differ byte-wise; equivalence is checked by decrypt round-trip.
func Build(factors Factors, rootPrimary, rootPrivileged interfaces.RootKey, salt []byte) (*Token, error) {
	if err := factors.Validate(); err != nil {
		return nil, err
	}
	if rootPrimary.IsZero() || rootPrivileged.IsZero() {
		return nil, fmt.Errorf("%w: both root keys are required", interfaces.ErrCryptoFailure)
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: password salt is required", interfaces.ErrCryptoFailure)
	}

	tok := &Token{
		PresentationHash: factors.Presentation.LookupHash(),
		RecoveryHash:     factors.Recovery.LookupHash(),
		PasswordSalt:     append([]byte(nil), salt...),
	}

	var err error
	if tok.PairPresentationPassword, err = sealUnderPair(rootPrimary.Bytes(), factors.Presentation, factors.Password); err != nil {
		return nil, err
	}
	if tok.PairPresentationRecovery, err = sealUnderPair(rootPrimary.Bytes(), factors.Presentation, factors.Recovery); err != nil {
		return nil, err
	}
	if tok.PairRecoveryPassword, err = sealUnderPair(rootPrimary.Bytes(), factors.Recovery, factors.Password); err != nil {
		return nil, err
	}

	if tok.PrivilegedByPassword, err = sealPrivilegedByPassword(factors.Password, rootPrimary, rootPrivileged); err != nil {
		return nil, err
	}
	if tok.PrivilegedByPresentationRecovery, err = sealUnderPair(rootPrivileged.Bytes(), factors.Presentation, factors.Recovery); err != nil {
		return nil, err
	}

	if tok.PresentationBackup, err = cryptoutils.Seal(factors.Presentation.Bytes(), rootPrivileged.Bytes()); err != nil {
		return nil, err
	}
	if tok.PasswordBackup, err = cryptoutils.Seal(factors.Password.Bytes(), rootPrivileged.Bytes()); err != nil {
		return nil, err
	}
	if tok.RecoveryBackup, err = cryptoutils.Seal(factors.Recovery.Bytes(), rootPrivileged.Bytes()); err != nil {
		return nil, err
	}

	return tok, nil
}

// sealUnderPair seals plaintext under the XOR combination of two factors.
// The combination key is wiped before returning.
func sealUnderPair(plaintext []byte, a, b interfaces.Factor) (cryptoutils.SealedSecret, error) {
	combined, err := cryptoutils.Xor(a.Bytes(), b.Bytes())
	if err != nil {
		return cryptoutils.SealedSecret{}, err
	}
	defer wipeBytes(combined)

	return cryptoutils.Seal(plaintext, combined)
}

// sealPrivilegedByPassword seals the privileged root key under
// XOR(password factor, primary root key).
func sealPrivilegedByPassword(password interfaces.Factor, rootPrimary, rootPrivileged interfaces.RootKey) (cryptoutils.SealedSecret, error) {
	combined, err := cryptoutils.Xor(password.Bytes(), rootPrimary.Bytes())
	if err != nil {
		return cryptoutils.SealedSecret{}, err
	}
	defer wipeBytes(combined)

	return cryptoutils.Seal(rootPrivileged.Bytes(), combined)
}

// PairCiphertext returns the primary-key ciphertext slot for a recovery mode.
func (t *Token) PairCiphertext(mode interfaces.RecoveryMode) (cryptoutils.SealedSecret, error) {
	switch mode {
	case interfaces.ModePresentationPassword:
		return t.PairPresentationPassword, nil
	case interfaces.ModePresentationRecovery:
		return t.PairPresentationRecovery, nil
	case interfaces.ModeRecoveryPassword:
		return t.PairRecoveryPassword, nil
	default:
		return cryptoutils.SealedSecret{}, fmt.Errorf("%w: %d", interfaces.ErrUnsupportedMode, mode)
	}
}

// FactorBackup returns the sealed backup slot for a factor kind.
func (t *Token) FactorBackup(kind interfaces.FactorKind) (cryptoutils.SealedSecret, error) {
	switch kind {
	case interfaces.KindPresentation:
		return t.PresentationBackup, nil
	case interfaces.KindPassword:
		return t.PasswordBackup, nil
	case interfaces.KindRecovery:
		return t.RecoveryBackup, nil
	default:
		return cryptoutils.SealedSecret{}, fmt.Errorf("%w: %d", interfaces.ErrInvalidFactorKind, kind)
	}
}

// Validate checks that every required field is populated.
func (t *Token) Validate() error {
	for name, secret := range map[string]cryptoutils.SealedSecret{
		"pair presentation+password":          t.PairPresentationPassword,
		"pair presentation+recovery":          t.PairPresentationRecovery,
		"pair recovery+password":              t.PairRecoveryPassword,
		"privileged by password":              t.PrivilegedByPassword,
		"privileged by presentation+recovery": t.PrivilegedByPresentationRecovery,
		"presentation backup":                 t.PresentationBackup,
		"password backup":                     t.PasswordBackup,
		"recovery backup":                     t.RecoveryBackup,
	} {
		if secret.IsZero() {
			return fmt.Errorf("%w: missing %s ciphertext", interfaces.ErrCryptoFailure, name)
		}
	}

	if t.PresentationHash.IsZero() || t.RecoveryHash.IsZero() {
		return fmt.Errorf("%w: missing lookup hash", interfaces.ErrCryptoFailure)
	}
	if len(t.PasswordSalt) == 0 {
		return fmt.Errorf("%w: missing password salt", interfaces.ErrCryptoFailure)
	}
	return nil
}

// SealProfile encrypts a profile blob under the privileged root key and
// attaches it to the token.
func (t *Token) SealProfile(profile []byte, rootPrivileged interfaces.RootKey) error {
	sealed, err := cryptoutils.Seal(profile, rootPrivileged.Bytes())
	if err != nil {
		return err
	}
	t.Profile = &sealed
	return nil
}

// OpenProfile decrypts the attached profile blob. Returns nil when the token
// carries no profile.
func (t *Token) OpenProfile(rootPrivileged interfaces.RootKey) ([]byte, error) {
	if t.Profile == nil {
		return nil, nil
	}
	return t.Profile.Open(rootPrivileged.Bytes())
}

// DerivePasswordFactor stretches a raw password into its factor with the
// package KDF defaults.
func DerivePasswordFactor(secret, salt []byte) (interfaces.Factor, error) {
	key := cryptoutils.DeriveKey(secret, salt, cryptoutils.DefaultKDFIterations, interfaces.FactorSize)
	return interfaces.NewFactorFromBytes(key)
}

// wipeBytes zeroes sensitive intermediate material.
func wipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
