package storage

import (
	"time"

	"github.com/keyquorum/wallet-recovery-backend/interfaces"
)

// userModel is the GORM row for custody users. The identity unique index is
// what makes user creation race-safe on first contact.
type userModel struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Identity  string    `gorm:"type:varchar(190);not null;uniqueIndex:uk_users_identity"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (userModel) TableName() string {
	return "users"
}

func (m *userModel) toDomain() *interfaces.UserRecord {
	return &interfaces.UserRecord{
		ID:        m.ID,
		Identity:  m.Identity,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// shareModel is the GORM row for encrypted shares. The user_id unique index
// is the single-share invariant: concurrent first stores race on it and
// exactly one wins. Nonce and tag are stored hex encoded per the persisted
// layout, 24 and 32 characters respectively.
type shareModel struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement"`
	UserID     uint64    `gorm:"not null;uniqueIndex:uk_shares_user_id"`
	Ciphertext []byte    `gorm:"type:blob;not null"`
	Nonce      string    `gorm:"type:char(24);not null"`
	Tag        string    `gorm:"type:char(32);not null"`
	Version    int       `gorm:"not null;default:1"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

func (shareModel) TableName() string {
	return "shares"
}

func (m *shareModel) toDomain() *interfaces.ShareRecord {
	return &interfaces.ShareRecord{
		UserID:     m.UserID,
		Ciphertext: m.Ciphertext,
		Nonce:      m.Nonce,
		Tag:        m.Tag,
		Version:    m.Version,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

// accessLogModel is the append-only audit row. Identity is a string rather
// than a user foreign key so failures for identities without a user record
// still land in the log and count toward lockouts.
type accessLogModel struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Identity  string    `gorm:"type:varchar(190);not null;index:idx_access_identity_action,priority:1"`
	Origin    string    `gorm:"type:varchar(64);not null;index:idx_access_origin_action,priority:1"`
	Action    string    `gorm:"type:varchar(16);not null;index:idx_access_identity_action,priority:2;index:idx_access_origin_action,priority:2"`
	Success   bool      `gorm:"not null"`
	Reason    *string   `gorm:"type:varchar(190)"`
	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

func (accessLogModel) TableName() string {
	return "access_log"
}

func (m *accessLogModel) toDomain() (*interfaces.AccessLogEntry, error) {
	action, err := interfaces.ParseAccessAction(m.Action)
	if err != nil {
		return nil, err
	}

	return &interfaces.AccessLogEntry{
		ID:        m.ID,
		Identity:  m.Identity,
		Origin:    m.Origin,
		Action:    action,
		Success:   m.Success,
		Reason:    m.Reason,
		CreatedAt: m.CreatedAt,
	}, nil
}

// tokenModel is the GORM row for threshold tokens. Both lookup hashes are
// unique: each factor locates at most one token, and registering a token
// twice trips the constraint instead of shadowing the first.
type tokenModel struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement"`
	PresentationHash string    `gorm:"type:char(64);not null;uniqueIndex:uk_tokens_presentation"`
	RecoveryHash     string    `gorm:"type:char(64);not null;uniqueIndex:uk_tokens_recovery"`
	Blob             []byte    `gorm:"type:blob;not null"`
	Locator          string    `gorm:"type:varchar(255)"`
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
}

func (tokenModel) TableName() string {
	return "tokens"
}

func (m *tokenModel) toDomain() *interfaces.TokenRecord {
	return &interfaces.TokenRecord{
		ID:               m.ID,
		PresentationHash: m.PresentationHash,
		RecoveryHash:     m.RecoveryHash,
		Blob:             m.Blob,
		Locator:          m.Locator,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}
