// Package recovery reconstructs wallet root keys from any two of the three
// recovery factors. The pure Recover function operates on an in-memory token;
// Engine adds token resolution by lookup hash on top of a token store.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/keyquorum/wallet-recovery-backend/cryptoutils"
	"github.com/keyquorum/wallet-recovery-backend/interfaces"
	"github.com/keyquorum/wallet-recovery-backend/token"
)

// Result is the outcome of one recovery attempt. RootPrivileged is nil when
// the supplied factor pair cannot reach either privileged ciphertext; the
// caller performs a second recovery with a different pair to obtain it.
type Result struct {
	RootPrimary interfaces.RootKey `json:"root_primary"`

	RootPrivileged *interfaces.RootKey `json:"root_privileged,omitempty"`

	// PrivilegedDerivable mirrors RootPrivileged != nil as an explicit
	// partial-result indicator.
	PrivilegedDerivable bool `json:"privileged_derivable"`
}

// Recover reconstructs the root keys of a wallet from any two factors.
//
// The mode selects the pair ciphertext slot; the combination key is the XOR
// of the two factors, so factorA and factorB may be supplied in either order.
// The GCM tag check on the selected slot is the factor-correctness check:
// wrong factors fail authentication, they never yield a silently wrong key.
//
// After the primary root key is recovered, the privileged root key is derived
// through whichever privileged path the supplied factors allow: the
// password-based path for password-involving modes, the presentation+recovery
// path otherwise. A token missing that privileged ciphertext produces a
// partial result, not an error.
func Recover(mode interfaces.RecoveryMode, factorA, factorB interfaces.Factor, tok *token.Token) (*Result, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %d", interfaces.ErrUnsupportedMode, mode)
	}
	if tok == nil {
		return nil, fmt.Errorf("%w: token is required", interfaces.ErrCryptoFailure)
	}
	if factorA.IsZero() || factorB.IsZero() {
		return nil, interfaces.ErrAuthenticationFailure
	}

	pair, err := tok.PairCiphertext(mode)
	if err != nil {
		return nil, err
	}
	if pair.IsZero() {
		return nil, fmt.Errorf("%w: token is missing the %s ciphertext", interfaces.ErrCryptoFailure, mode)
	}

	combined, err := cryptoutils.Xor(factorA.Bytes(), factorB.Bytes())
	if err != nil {
		return nil, err
	}
	defer wipeBytes(combined)

	raw, err := pair.Open(combined)
	if err != nil {
		return nil, err
	}

	rootPrimary, err := interfaces.NewRootKeyFromBytes(raw)
	wipeBytes(raw)
	if err != nil {
		return nil, err
	}

	result := &Result{RootPrimary: rootPrimary}

	rootPrivileged, derivable, err := derivePrivileged(mode, factorA, factorB, rootPrimary, tok)
	if err != nil {
		return nil, err
	}
	if derivable {
		result.RootPrivileged = &rootPrivileged
		result.PrivilegedDerivable = true
	}

	return result, nil
}

// derivePrivileged attempts the privileged path reachable from the supplied
// factors. A missing ciphertext yields (zero, false, nil): the partial-result
// case. A present ciphertext that fails to open is an inconsistency in the
// token and surfaces as an error, since the primary decryption already proved
// the factors correct.
func derivePrivileged(mode interfaces.RecoveryMode, factorA, factorB interfaces.Factor, rootPrimary interfaces.RootKey, tok *token.Token) (interfaces.RootKey, bool, error) {
	if mode == interfaces.ModePresentationRecovery {
		if tok.PrivilegedByPresentationRecovery.IsZero() {
			return interfaces.RootKey{}, false, nil
		}

		combined, err := cryptoutils.Xor(factorA.Bytes(), factorB.Bytes())
		if err != nil {
			return interfaces.RootKey{}, false, err
		}
		defer wipeBytes(combined)

		raw, err := tok.PrivilegedByPresentationRecovery.Open(combined)
		if err != nil {
			return interfaces.RootKey{}, false, err
		}
		key, err := interfaces.NewRootKeyFromBytes(raw)
		wipeBytes(raw)
		if err != nil {
			return interfaces.RootKey{}, false, err
		}
		return key, true, nil
	}

	// Password-involving modes use XOR(password factor, primary root key).
	// Factor order within the pair is not fixed, so both candidates are
	// tried; the tag check identifies the password factor.
	if tok.PrivilegedByPassword.IsZero() {
		return interfaces.RootKey{}, false, nil
	}

	var lastErr error
	for _, candidate := range []interfaces.Factor{factorB, factorA} {
		combined, err := cryptoutils.Xor(candidate.Bytes(), rootPrimary.Bytes())
		if err != nil {
			return interfaces.RootKey{}, false, err
		}

		raw, err := tok.PrivilegedByPassword.Open(combined)
		wipeBytes(combined)
		if err != nil {
			lastErr = err
			continue
		}

		key, err := interfaces.NewRootKeyFromBytes(raw)
		wipeBytes(raw)
		if err != nil {
			return interfaces.RootKey{}, false, err
		}
		return key, true, nil
	}

	return interfaces.RootKey{}, false, lastErr
}

// Engine resolves tokens by lookup hash and runs recovery against them.
type Engine struct {
	tokens interfaces.TokenStore
	log    *slog.Logger
}

// NewEngine creates a recovery engine backed by a token store.
func NewEngine(tokens interfaces.TokenStore, log *slog.Logger) *Engine {
	return &Engine{tokens: tokens, log: log}
}

// RecoverByLookup locates the wallet's token through the lookup hash of
// whichever supplied factor is hash-indexed, then recovers the root keys. The
// decoded token is returned alongside the result so callers holding the
// privileged key can open the profile without a second fetch.
//
// Both factors' hashes are tried so factor order stays irrelevant: for
// presentation+recovery both factors are indexed, for the other modes only
// one is and the second lookup simply misses.
func (e *Engine) RecoverByLookup(ctx context.Context, mode interfaces.RecoveryMode, factorA, factorB interfaces.Factor) (*Result, *token.Token, error) {
	if !mode.Valid() {
		return nil, nil, fmt.Errorf("%w: %d", interfaces.ErrUnsupportedMode, mode)
	}

	record, err := e.lookupRecord(ctx, factorA, factorB)
	if err != nil {
		return nil, nil, err
	}

	var tok token.Token
	if err := tok.UnmarshalBinary(record.Blob); err != nil {
		e.log.Error("Failed to decode stored token", "err", err, "token_id", record.ID)
		return nil, nil, err
	}

	result, err := Recover(mode, factorA, factorB, &tok)
	if err != nil {
		e.log.Info("Recovery attempt failed",
			slog.String("mode", mode.String()),
			slog.Uint64("token_id", record.ID))
		return nil, nil, err
	}

	e.log.Info("Recovery attempt succeeded",
		slog.String("mode", mode.String()),
		slog.Uint64("token_id", record.ID),
		slog.Bool("privileged_derivable", result.PrivilegedDerivable))
	return result, &tok, nil
}

// lookupRecord fetches the token record matching either factor's lookup hash.
func (e *Engine) lookupRecord(ctx context.Context, factorA, factorB interfaces.Factor) (*interfaces.TokenRecord, error) {
	record, err := e.tokens.ByLookupHash(ctx, factorA.LookupHash())
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, interfaces.ErrTokenNotFound) {
		return nil, err
	}

	return e.tokens.ByLookupHash(ctx, factorB.LookupHash())
}

// wipeBytes zeroes sensitive intermediate material.
func wipeBytes(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
