package services

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/taskhub/internal/database"
	"github.com/charlesng35/taskhub/internal/models"
)

func loadGroup(tx *gorm.DB, groupID string) (*models.Group, error) {
	if groupID == "" {
		return nil, ErrGroupNotFound
	}
	var group models.Group
	if err := tx.First(&group, "id = ?", groupID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("load group: %w", err)
	}
	return &group, nil
}

// lockMember re-reads a membership row inside tx, taking a row lock where the
// store supports one. found is false when the user is not in the group.
func lockMember(tx *gorm.DB, groupID, userID string) (member models.GroupMember, found bool, err error) {
	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Take(&member).Error
	if err != nil {
		if database.IsNotFound(err) {
			return models.GroupMember{}, false, nil
		}
		return models.GroupMember{}, false, fmt.Errorf("load membership: %w", err)
	}
	return member, true, nil
}

// actorRole resolves the acting user's role, failing with ErrNotAMember when
// there is no membership row and ErrGroupNotFound when the group is gone.
func actorRole(tx *gorm.DB, groupID, actorID string) (models.GroupRole, error) {
	if _, err := loadGroup(tx, groupID); err != nil {
		return "", err
	}
	member, found, err := lockMember(tx, groupID, actorID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrNotAMember
	}
	return member.Role, nil
}

// targetMember resolves the member an operation acts upon.
func targetMember(tx *gorm.DB, groupID, userID string) (models.GroupMember, error) {
	member, found, err := lockMember(tx, groupID, userID)
	if err != nil {
		return models.GroupMember{}, err
	}
	if !found {
		return models.GroupMember{}, ErrMemberNotFound
	}
	return member, nil
}

func isMember(tx *gorm.DB, groupID, userID string) (bool, error) {
	var count int64
	if err := tx.Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return count > 0, nil
}
