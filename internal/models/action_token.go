package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TokenPayload holds purpose-specific context bound to an action token.
type TokenPayload struct {
	Email     string `json:"email,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
	SubTaskID string `json:"sub_task_id,omitempty"`
}

// ActionToken is a single-use credential. Only the keyed hash of the secret is stored,
// and SubjectKey allows at most one row per purpose and target.
type ActionToken struct {
	ID         string                           `gorm:"primaryKey;size:26" json:"id"`
	Type       TokenType                        `gorm:"size:32;not null;index" json:"type"`
	SubjectKey string                           `gorm:"size:255;not null;uniqueIndex" json:"-"`
	TokenHash  string                           `gorm:"size:128;not null" json:"-"`
	UserID     *string                          `gorm:"type:uuid;index" json:"user_id,omitempty"`
	GroupID    *string                          `gorm:"type:uuid;index" json:"group_id,omitempty"`
	IssuedByID *string                          `gorm:"type:uuid" json:"issued_by_id,omitempty"`
	Payload    datatypes.JSONType[TokenPayload] `json:"payload"`
	ExpiresAt  time.Time                        `gorm:"not null;index" json:"expires_at"`
	ConsumedAt *time.Time                       `gorm:"index" json:"consumed_at,omitempty"`
	RevokedAt  *time.Time                       `json:"revoked_at,omitempty"`
	CreatedAt  time.Time                        `json:"created_at"`
	UpdatedAt  time.Time                        `json:"updated_at"`
}

// BeforeCreate assigns a time-ordered identifier.
func (t *ActionToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = ulid.Make().String()
	}
	return nil
}

// Active reports whether the token may still be redeemed at now.
func (t *ActionToken) Active(now time.Time) bool {
	return t.ConsumedAt == nil && t.RevokedAt == nil && t.ExpiresAt.After(now)
}
