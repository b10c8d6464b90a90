package storage

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// TokenStore persists threshold tokens indexed by lookup hash.
type TokenStore struct {
	db  *gorm.DB
	log *slog.Logger
}

// Create inserts a token row. Either lookup hash colliding with an existing
// token trips a unique constraint and returns ErrDuplicateToken.
func (s *TokenStore) Create(ctx context.Context, record *interfaces.TokenRecord) error {
	model := &tokenModel{
		PresentationHash: record.PresentationHash,
		RecoveryHash:     record.RecoveryHash,
		Blob:             record.Blob,
		Locator:          record.Locator,
	}

	err := s.db.WithContext(ctx).Create(model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return interfaces.ErrDuplicateToken
	}
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to create token record", "err", err)
		return err
	}

	record.ID = model.ID
	record.CreatedAt = model.CreatedAt
	record.UpdatedAt = model.UpdatedAt
	return nil
}

// ByLookupHash returns the token matching either hash column, or
// ErrTokenNotFound.
func (s *TokenStore) ByLookupHash(ctx context.Context, hash interfaces.LookupHash) (*interfaces.TokenRecord, error) {
	var model tokenModel
	err := s.db.WithContext(ctx).
		Where("presentation_hash = ? OR recovery_hash = ?", hash.String(), hash.String()).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrTokenNotFound
	}
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to fetch token record", "err", err)
		return nil, err
	}

	return model.toDomain(), nil
}

// Update overwrites the blob, hashes, and locator of an existing token in a
// single statement, so concurrent readers observe either the old or the new
// token but never a mix. ErrTokenNotFound when the row is gone.
func (s *TokenStore) Update(ctx context.Context, record *interfaces.TokenRecord) error {
	result := s.db.WithContext(ctx).
		Model(&tokenModel{}).
		Where("id = ?", record.ID).
		Updates(map[string]any{
			"presentation_hash": record.PresentationHash,
			"recovery_hash":     record.RecoveryHash,
			"blob":              record.Blob,
			"locator":           record.Locator,
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return interfaces.ErrDuplicateToken
		}
		s.log.ErrorContext(ctx, "Failed to update token record", "err", result.Error, "token_id", record.ID)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return interfaces.ErrTokenNotFound
	}
	return nil
}

// Delete removes a token row. Idempotent.
func (s *TokenStore) Delete(ctx context.Context, id uint64) error {
	err := s.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&tokenModel{}).Error
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to delete token record", "err", err, "token_id", id)
	}
	return err
}
