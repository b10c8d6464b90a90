// Package custody encrypts user-supplied recovery shares at rest and manages
// their single-record-per-user lifecycle. The share payload is opaque to this
// package; transport-level validation of the encoded form belongs to callers.
package custody

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"github.com/keyquorum/wallet-recovery-backend/cryptoutils"
	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// Engine performs authenticated encryption of shares under a single
// service-held key and persists them through a ShareStore.
type Engine struct {
	store interfaces.ShareStore
	key   []byte
	log   *slog.Logger
}

// NewEngine validates the hex-encoded custody key and wires the share store.
// An unset key fails with ErrMissingEncryptionKey; a key that does not decode
// to exactly 32 bytes fails with ErrInvalidKeyLength.
func NewEngine(store interfaces.ShareStore, hexKey string, log *slog.Logger) (*Engine, error) {
	if hexKey == "" {
		return nil, interfaces.ErrMissingEncryptionKey
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: custody key is not valid hex", interfaces.ErrInvalidKeyLength)
	}
	if len(key) != cryptoutils.KeySize {
		return nil, fmt.Errorf("%w: custody key must be %d bytes, got %d", interfaces.ErrInvalidKeyLength, cryptoutils.KeySize, len(key))
	}

	return &Engine{store: store, key: key, log: log}, nil
}

// StoreShare encrypts and persists a user's share. The store's user_id unique
// constraint is the source of truth for the single-share invariant: when two
// writers race, exactly one insert succeeds and the other surfaces
// ErrDuplicateShare from the database.
func (e *Engine) StoreShare(ctx context.Context, userID uint64, share string) (*interfaces.ShareRecord, error) {
	record, err := e.sealRecord(userID, share, 1)
	if err != nil {
		return nil, err
	}

	if err := e.store.Create(ctx, record); err != nil {
		return nil, err
	}

	e.log.Info("Stored encrypted share", slog.Uint64("user_id", userID))
	return record, nil
}

// RetrieveShare decrypts and returns a user's share. A missing share is the
// found=false sentinel, not an error; only storage and decryption problems
// surface as errors. The service controls the key, so a decryption failure
// means the stored record was corrupted.
func (e *Engine) RetrieveShare(ctx context.Context, userID uint64) (string, bool, error) {
	record, err := e.store.ByUserID(ctx, userID)
	if errors.Is(err, interfaces.ErrShareNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	share, err := e.openRecord(record)
	if err != nil {
		e.log.Error("Stored share failed decryption", "err", err, "user_id", userID)
		return "", false, err
	}
	return share, true, nil
}

// UpdateShare replaces a user's share under a fresh nonce and increments the
// version by exactly one. ErrNoExistingShare when the user has nothing stored.
func (e *Engine) UpdateShare(ctx context.Context, userID uint64, share string) (*interfaces.ShareRecord, error) {
	existing, err := e.store.ByUserID(ctx, userID)
	if errors.Is(err, interfaces.ErrShareNotFound) {
		return nil, interfaces.ErrNoExistingShare
	}
	if err != nil {
		return nil, err
	}

	record, err := e.sealRecord(userID, share, existing.Version+1)
	if err != nil {
		return nil, err
	}

	if err := e.store.Update(ctx, record); err != nil {
		return nil, err
	}

	e.log.Info("Updated encrypted share", slog.Uint64("user_id", userID), slog.Int("version", record.Version))
	return record, nil
}

// DeleteShare removes a user's share. Deleting an absent share is a no-op.
func (e *Engine) DeleteShare(ctx context.Context, userID uint64) error {
	if err := e.store.DeleteByUserID(ctx, userID); err != nil {
		return err
	}

	e.log.Info("Deleted share", slog.Uint64("user_id", userID))
	return nil
}

// sealRecord encrypts a share into its persisted layout: raw ciphertext plus
// hex-encoded nonce and tag columns.
func (e *Engine) sealRecord(userID uint64, share string, version int) (*interfaces.ShareRecord, error) {
	ciphertext, nonce, tag, err := cryptoutils.Encrypt([]byte(share), e.key)
	if err != nil {
		return nil, err
	}

	return &interfaces.ShareRecord{
		UserID:     userID,
		Ciphertext: ciphertext,
		Nonce:      hex.EncodeToString(nonce),
		Tag:        hex.EncodeToString(tag),
		Version:    version,
	}, nil
}

func (e *Engine) openRecord(record *interfaces.ShareRecord) (string, error) {
	nonce, err := hex.DecodeString(record.Nonce)
	if err != nil {
		return "", fmt.Errorf("%w: stored nonce is not valid hex: %w", interfaces.ErrCryptoFailure, err)
	}
	tag, err := hex.DecodeString(record.Tag)
	if err != nil {
		return "", fmt.Errorf("%w: stored tag is not valid hex: %w", interfaces.ErrCryptoFailure, err)
	}

	plaintext, err := cryptoutils.Decrypt(record.Ciphertext, nonce, tag, e.key)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
