package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/taskhub/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.GroupMember{},
		&models.Task{},
		&models.SubTask{},
		&models.TaskAssignee{},
		&models.SubTaskAssignee{},
		&models.ActionToken{},
		&models.AuditLog{},
		&models.CacheEntry{},
	)
}
