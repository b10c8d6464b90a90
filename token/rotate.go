package token

import (
	"fmt"

	"github.com/keyquorum/wallet-recovery-backend/cryptoutils"
	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// RotateFactor replaces one factor of the token. The caller must already
// possess both root keys, obtained through a prior recovery.
//
// Rotation recomputes exactly the fields that involve the rotated kind: the
// two pair ciphertexts, the dependent privileged ciphertext, the kind's
// lookup hash (presentation and recovery kinds), and the kind's backup. The
// third, unrelated pair ciphertext is byte-identical in the returned token,
// and the input token is never mutated; persisting the result atomically is
// the caller's job.
//
// oldFactor is checked against the sealed backup in constant time before any
// field is recomputed; a mismatch fails with ErrAuthenticationFailure.
func RotateFactor(tok *Token, oldFactor, newFactor interfaces.Factor, kind interfaces.FactorKind, rootPrimary, rootPrivileged interfaces.RootKey) (*Token, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %d", interfaces.ErrInvalidFactorKind, kind)
	}
	if newFactor.IsZero() {
		return nil, fmt.Errorf("%w: new factor is required", interfaces.ErrCryptoFailure)
	}
	if rootPrimary.IsZero() || rootPrivileged.IsZero() {
		return nil, fmt.Errorf("%w: both root keys are required", interfaces.ErrCryptoFailure)
	}

	factors, err := openFactorBackups(tok, rootPrivileged)
	if err != nil {
		return nil, err
	}

	if !factors.byKind(kind).Equal(oldFactor) {
		return nil, interfaces.ErrAuthenticationFailure
	}

	factors.setKind(kind, newFactor)

	next := *tok

	switch kind {
	case interfaces.KindPresentation:
		if next.PairPresentationPassword, err = sealUnderPair(rootPrimary.Bytes(), factors.Presentation, factors.Password); err != nil {
			return nil, err
		}
		if next.PairPresentationRecovery, err = sealUnderPair(rootPrimary.Bytes(), factors.Presentation, factors.Recovery); err != nil {
			return nil, err
		}
		if next.PrivilegedByPresentationRecovery, err = sealUnderPair(rootPrivileged.Bytes(), factors.Presentation, factors.Recovery); err != nil {
			return nil, err
		}
		if next.PresentationBackup, err = cryptoutils.Seal(factors.Presentation.Bytes(), rootPrivileged.Bytes()); err != nil {
			return nil, err
		}
		next.PresentationHash = factors.Presentation.LookupHash()

	case interfaces.KindPassword:
		if next.PairPresentationPassword, err = sealUnderPair(rootPrimary.Bytes(), factors.Presentation, factors.Password); err != nil {
			return nil, err
		}
		if next.PairRecoveryPassword, err = sealUnderPair(rootPrimary.Bytes(), factors.Recovery, factors.Password); err != nil {
			return nil, err
		}
		if next.PrivilegedByPassword, err = sealPrivilegedByPassword(factors.Password, rootPrimary, rootPrivileged); err != nil {
			return nil, err
		}
		if next.PasswordBackup, err = cryptoutils.Seal(factors.Password.Bytes(), rootPrivileged.Bytes()); err != nil {
			return nil, err
		}

	case interfaces.KindRecovery:
		if next.PairPresentationRecovery, err = sealUnderPair(rootPrimary.Bytes(), factors.Presentation, factors.Recovery); err != nil {
			return nil, err
		}
		if next.PairRecoveryPassword, err = sealUnderPair(rootPrimary.Bytes(), factors.Recovery, factors.Password); err != nil {
			return nil, err
		}
		if next.PrivilegedByPresentationRecovery, err = sealUnderPair(rootPrivileged.Bytes(), factors.Presentation, factors.Recovery); err != nil {
			return nil, err
		}
		if next.RecoveryBackup, err = cryptoutils.Seal(factors.Recovery.Bytes(), rootPrivileged.Bytes()); err != nil {
			return nil, err
		}
		next.RecoveryHash = factors.Recovery.LookupHash()
	}

	return &next, nil
}

// RotatePassword rotates the password factor from a raw password: draws a
// fresh salt, derives the new factor, rotates, and stores the new salt on the
// returned token. The derived factor is returned so the caller can hand it
// back to the user agent.
func RotatePassword(tok *Token, oldFactor interfaces.Factor, newSecret []byte, rootPrimary, rootPrivileged interfaces.RootKey) (*Token, interfaces.Factor, error) {
	if len(newSecret) == 0 {
		return nil, interfaces.Factor{}, fmt.Errorf("%w: new password is required", interfaces.ErrCryptoFailure)
	}

	salt, err := cryptoutils.NewSalt()
	if err != nil {
		return nil, interfaces.Factor{}, err
	}

	newFactor, err := DerivePasswordFactor(newSecret, salt)
	if err != nil {
		return nil, interfaces.Factor{}, err
	}

	next, err := RotateFactor(tok, oldFactor, newFactor, interfaces.KindPassword, rootPrimary, rootPrivileged)
	if err != nil {
		return nil, interfaces.Factor{}, err
	}

	next.PasswordSalt = salt
	return next, newFactor, nil
}

// openFactorBackups decrypts all three factor backups under the privileged
// root key. Needed during rotation to recompute pair ciphertexts that involve
// factors the caller did not supply.
func openFactorBackups(tok *Token, rootPrivileged interfaces.RootKey) (Factors, error) {
	var factors Factors

	for kind, target := range map[interfaces.FactorKind]*interfaces.Factor{
		interfaces.KindPresentation: &factors.Presentation,
		interfaces.KindPassword:     &factors.Password,
		interfaces.KindRecovery:     &factors.Recovery,
	} {
		backup, err := tok.FactorBackup(kind)
		if err != nil {
			return Factors{}, err
		}
		if backup.IsZero() {
			return Factors{}, fmt.Errorf("%w: token is missing the %s factor backup", interfaces.ErrCryptoFailure, kind)
		}

		raw, err := backup.Open(rootPrivileged.Bytes())
		if err != nil {
			return Factors{}, err
		}

		factor, err := interfaces.NewFactorFromBytes(raw)
		wipeBytes(raw)
		if err != nil {
			return Factors{}, err
		}
		*target = factor
	}

	return factors, nil
}
