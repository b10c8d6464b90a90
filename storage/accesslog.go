package storage

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// AccessLogStore persists the append-only audit log.
type AccessLogStore struct {
	db  *gorm.DB
	log *slog.Logger
}

// Append inserts one audit entry. A caller-supplied timestamp is kept;
// otherwise the database stamps it.
func (s *AccessLogStore) Append(ctx context.Context, entry *interfaces.AccessLogEntry) error {
	model := &accessLogModel{
		Identity:  entry.Identity,
		Origin:    entry.Origin,
		Action:    entry.Action.String(),
		Success:   entry.Success,
		Reason:    entry.Reason,
		CreatedAt: entry.CreatedAt,
	}

	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		s.log.ErrorContext(ctx, "Failed to append access log entry", "err", err, "identity", entry.Identity)
		return err
	}

	entry.ID = model.ID
	entry.CreatedAt = model.CreatedAt
	return nil
}

// FailuresByIdentity returns the timestamps of failed attempts for an
// identity and action since a point in time, oldest first.
func (s *AccessLogStore) FailuresByIdentity(ctx context.Context, identity string, action interfaces.AccessAction, since time.Time) ([]time.Time, error) {
	return s.failureTimes(ctx, "identity = ?", identity, action, since)
}

// FailuresByOrigin returns the timestamps of failed attempts from an origin
// address and action since a point in time, oldest first.
func (s *AccessLogStore) FailuresByOrigin(ctx context.Context, origin string, action interfaces.AccessAction, since time.Time) ([]time.Time, error) {
	return s.failureTimes(ctx, "origin = ?", origin, action, since)
}

func (s *AccessLogStore) failureTimes(ctx context.Context, scopeCond, scopeVal string, action interfaces.AccessAction, since time.Time) ([]time.Time, error) {
	var times []time.Time
	err := s.db.WithContext(ctx).
		Model(&accessLogModel{}).
		Where(scopeCond, scopeVal).
		Where("action = ? AND success = ? AND created_at >= ?", action.String(), false, since).
		Order("created_at ASC").
		Pluck("created_at", &times).Error
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to query access failures", "err", err)
		return nil, err
	}
	return times, nil
}

// RecentByIdentity returns the newest entries for an identity, newest first,
// capped at limit. Serves the audit inspection endpoint.
func (s *AccessLogStore) RecentByIdentity(ctx context.Context, identity string, limit int) ([]*interfaces.AccessLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var models []accessLogModel
	err := s.db.WithContext(ctx).
		Where("identity = ?", identity).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to query access log", "err", err, "identity", identity)
		return nil, err
	}

	entries := make([]*interfaces.AccessLogEntry, 0, len(models))
	for i := range models {
		entry, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
