package storage

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// UserStore persists custody users.
type UserStore struct {
	db  *gorm.DB
	log *slog.Logger
}

// Create inserts a user row. ErrDuplicateUser when the identity is taken.
func (s *UserStore) Create(ctx context.Context, user *interfaces.UserRecord) error {
	model := &userModel{Identity: user.Identity}

	err := s.db.WithContext(ctx).Create(model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return interfaces.ErrDuplicateUser
	}
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to create user", "err", err)
		return err
	}

	user.ID = model.ID
	user.CreatedAt = model.CreatedAt
	user.UpdatedAt = model.UpdatedAt
	return nil
}

// ByIdentity returns the user for an identity, or ErrUserNotFound.
func (s *UserStore) ByIdentity(ctx context.Context, identity string) (*interfaces.UserRecord, error) {
	var model userModel
	err := s.db.WithContext(ctx).
		Where("identity = ?", identity).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, interfaces.ErrUserNotFound
	}
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to fetch user", "err", err)
		return nil, err
	}

	return model.toDomain(), nil
}

// Delete removes a user together with its share and access log rows. The
// cascade runs in one transaction so a crash never leaves an orphaned share.
// Deleting an absent user is a no-op.
func (s *UserStore) Delete(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model userModel
		err := tx.Where("id = ?", id).First(&model).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.Where("user_id = ?", id).Delete(&shareModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("identity = ?", model.Identity).Delete(&accessLogModel{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model).Error
	})
}
