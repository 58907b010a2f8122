package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel carries the UUID key and timestamps shared by users, groups,
// tasks and assignment rows.
type BaseModel struct {
	ID        string    `gorm:"primaryKey;type:uuid" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate assigns a random UUID, or canonicalises a caller-chosen one.
func (m *BaseModel) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
		return nil
	}
	id, err := CanonicalID(m.ID)
	if err != nil {
		return err
	}
	m.ID = id
	return nil
}

// CanonicalID returns the lowercase hyphenated form of a UUID string.
func CanonicalID(raw string) (string, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("models: invalid id %q: %w", raw, err)
	}
	return id.String(), nil
}
