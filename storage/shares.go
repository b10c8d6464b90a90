package storage

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// ShareStore persists encrypted share records.
type ShareStore struct {
	db  *gorm.DB
	log *slog.Logger
}

// Create inserts a share row. The user_id unique constraint decides races:
// of two concurrent first stores exactly one insert commits and the other
// returns ErrDuplicateShare.
func (s *ShareStore) Create(ctx context.Context, record *interfaces.ShareRecord) error {
	model := &shareModel{
		UserID:     record.UserID,
		Ciphertext: record.Ciphertext,
		Nonce:      record.Nonce,
		Tag:        record.Tag,
		Version:    record.Version,
	}

	err := s.db.WithContext(ctx).Create(model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return interfaces.ErrDuplicateShare
	}
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to create share", "err", err, "user_id", record.UserID)
		return err
	}

	record.CreatedAt = model.CreatedAt
	record.UpdatedAt = model.UpdatedAt
	return nil
}

// ByUserID returns the user's share, or ErrShareNotFound.
func (s *ShareStore) ByUserID(ctx context.Context, userID uint64) (*interfaces.ShareRecord, error) {
	var model shareModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrShareNotFound
	}
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to fetch share", "err", err, "user_id", userID)
		return nil, err
	}

	return model.toDomain(), nil
}

// Update overwrites the ciphertext columns and version of an existing share.
// ErrShareNotFound when the user has no share row.
func (s *ShareStore) Update(ctx context.Context, record *interfaces.ShareRecord) error {
	result := s.db.WithContext(ctx).
		Model(&shareModel{}).
		Where("user_id = ?", record.UserID).
		Updates(map[string]any{
			"ciphertext": record.Ciphertext,
			"nonce":      record.Nonce,
			"tag":        record.Tag,
			"version":    record.Version,
		})
	if result.Error != nil {
		s.log.ErrorContext(ctx, "Failed to update share", "err", result.Error, "user_id", record.UserID)
		return result.Error
	}
	if result.RowsAffected == 0 {
		return interfaces.ErrShareNotFound
	}
	return nil
}

// DeleteByUserID removes the user's share row. Idempotent.
func (s *ShareStore) DeleteByUserID(ctx context.Context, userID uint64) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&shareModel{}).Error
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to delete share", "err", err, "user_id", userID)
	}
	return err
}
