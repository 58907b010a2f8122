package models

import "time"

// Closure carries the shared lifecycle columns of tasks and sub-tasks.
type Closure struct {
	Status                  TaskStatus       `gorm:"size:16;not null;default:OPEN;index" json:"status"`
	CompletionPolicy        CompletionPolicy `gorm:"size:32;not null;default:ALL_ASSIGNEES" json:"completion_policy"`
	ClosedAt                *time.Time       `json:"closed_at,omitempty"`
	ClosedByID              *string          `gorm:"type:uuid" json:"closed_by_id,omitempty"`
	ClosedReason            string           `json:"closed_reason,omitempty"`
	ClosedWithOpenAssignees bool             `gorm:"default:false" json:"closed_with_open_assignees"`
	ArchivedAt              *time.Time       `json:"archived_at,omitempty"`
}

// Task is a unit of work owned by a user, optionally shared with a group.
type Task struct {
	BaseModel
	Closure

	Title       string     `gorm:"not null" json:"title"`
	Description string     `json:"description"`
	OwnerID     string     `gorm:"type:uuid;not null;index" json:"owner_id"`
	GroupID     *string    `gorm:"type:uuid;index" json:"group_id,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`

	SubTasks  []SubTask      `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"sub_tasks,omitempty"`
	Assignees []TaskAssignee `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"assignees,omitempty"`
}

type SubTask struct {
	BaseModel
	Closure

	TaskID      string     `gorm:"type:uuid;not null;index" json:"task_id"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `json:"description"`
	DueAt       *time.Time `json:"due_at,omitempty"`

	Assignees []SubTaskAssignee `gorm:"foreignKey:SubTaskID;constraint:OnDelete:CASCADE" json:"assignees,omitempty"`
}

type TaskAssignee struct {
	BaseModel

	TaskID       string         `gorm:"type:uuid;not null;uniqueIndex:idx_task_assignee" json:"task_id"`
	AssigneeID   string         `gorm:"type:uuid;not null;uniqueIndex:idx_task_assignee" json:"assignee_id"`
	AssignedByID string         `gorm:"type:uuid;not null" json:"assigned_by_id"`
	Status       AssigneeStatus `gorm:"size:16;not null;default:PENDING" json:"status"`
	RespondedAt  *time.Time     `json:"responded_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

type SubTaskAssignee struct {
	BaseModel

	SubTaskID    string         `gorm:"type:uuid;not null;uniqueIndex:idx_subtask_assignee" json:"sub_task_id"`
	AssigneeID   string         `gorm:"type:uuid;not null;uniqueIndex:idx_subtask_assignee" json:"assignee_id"`
	AssignedByID string         `gorm:"type:uuid;not null" json:"assigned_by_id"`
	Status       AssigneeStatus `gorm:"size:16;not null;default:PENDING" json:"status"`
	RespondedAt  *time.Time     `json:"responded_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}
