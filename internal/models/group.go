package models

import "time"

type Group struct {
	BaseModel

	Name        string `gorm:"not null" json:"name"`
	Slug        string `gorm:"uniqueIndex;not null" json:"slug"`
	Description string `json:"description"`
	CreatedByID string `gorm:"type:uuid;not null" json:"created_by_id"`

	Members []GroupMember `gorm:"foreignKey:GroupID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
}

// GroupMember is keyed by (group, user). Exactly one member per group holds RoleOwner.
type GroupMember struct {
	GroupID  string    `gorm:"primaryKey;type:uuid" json:"group_id"`
	UserID   string    `gorm:"primaryKey;type:uuid;index" json:"user_id"`
	Role     GroupRole `gorm:"size:16;not null" json:"role"`
	JoinedAt time.Time `gorm:"not null" json:"joined_at"`

	User *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}
