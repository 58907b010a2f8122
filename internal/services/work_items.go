package services

import (
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/taskhub/internal/database"
	"github.com/charlesng35/taskhub/internal/lifecycle"
	"github.com/charlesng35/taskhub/internal/models"
	"github.com/charlesng35/taskhub/internal/tokens"
)

// ItemKind distinguishes tasks from sub-tasks.
type ItemKind string

const (
	KindTask    ItemKind = "task"
	KindSubTask ItemKind = "subtask"
)

// ItemRef addresses a task or a sub-task.
type ItemRef struct {
	Kind ItemKind
	ID   string
}

func TaskRef(id string) ItemRef    { return ItemRef{Kind: KindTask, ID: id} }
func SubTaskRef(id string) ItemRef { return ItemRef{Kind: KindSubTask, ID: id} }

// Assignment is the common view of TaskAssignee and SubTaskAssignee rows.
type Assignment struct {
	ID           string                `json:"id"`
	ItemKind     ItemKind              `gorm:"-" json:"item_kind"`
	ItemID       string                `gorm:"-" json:"item_id"`
	AssigneeID   string                `json:"assignee_id"`
	AssignedByID string                `json:"assigned_by_id"`
	Status       models.AssigneeStatus `json:"status"`
	RespondedAt  *time.Time            `json:"responded_at,omitempty"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
}

// workItem is a task or sub-task loaded inside a transaction together with
// its root task, which carries ownership and group.
type workItem struct {
	ref  ItemRef
	task *models.Task
	sub  *models.SubTask
}

func (w *workItem) closure() *models.Closure {
	if w.sub != nil {
		return &w.sub.Closure
	}
	return &w.task.Closure
}

func (w *workItem) title() string {
	if w.sub != nil {
		return w.sub.Title
	}
	return w.task.Title
}

func (w *workItem) table() string {
	if w.sub != nil {
		return "sub_tasks"
	}
	return "tasks"
}

func (w *workItem) assigneeTable() (table, fk string) {
	if w.sub != nil {
		return "sub_task_assignees", "sub_task_id"
	}
	return "task_assignees", "task_id"
}

func (w *workItem) groupID() *string {
	return w.task.GroupID
}

func (w *workItem) subjectKey(assigneeID string) string {
	if w.sub != nil {
		return tokens.SubTaskAssignmentSubject(w.ref.ID, assigneeID)
	}
	return tokens.TaskAssignmentSubject(w.ref.ID, assigneeID)
}

func (w *workItem) payload() models.TokenPayload {
	if w.sub != nil {
		return models.TokenPayload{TaskID: w.task.ID, SubTaskID: w.ref.ID}
	}
	return models.TokenPayload{TaskID: w.ref.ID}
}

// ensureMutable rejects changes to closed or archived items, and to sub-tasks
// whose parent task is archived.
func (w *workItem) ensureMutable() error {
	if w.sub != nil && w.task.Status == models.TaskArchived {
		return lifecycle.ErrInvalidTaskTransition
	}
	return lifecycle.EnsureOpen(w.closure().Status)
}

func refFromPayload(p models.TokenPayload) (ItemRef, bool) {
	switch {
	case p.SubTaskID != "":
		return SubTaskRef(p.SubTaskID), true
	case p.TaskID != "":
		return TaskRef(p.TaskID), true
	}
	return ItemRef{}, false
}

func loadItem(tx *gorm.DB, ref ItemRef) (*workItem, error) {
	locked := tx.Clauses(clause.Locking{Strength: "UPDATE"})
	item := &workItem{ref: ref}

	switch ref.Kind {
	case KindTask:
		var task models.Task
		if err := locked.First(&task, "id = ?", ref.ID).Error; err != nil {
			return nil, notFoundAs(err, ErrTaskNotFound)
		}
		item.task = &task
	case KindSubTask:
		var sub models.SubTask
		if err := locked.First(&sub, "id = ?", ref.ID).Error; err != nil {
			return nil, notFoundAs(err, ErrTaskNotFound)
		}
		var task models.Task
		if err := tx.First(&task, "id = ?", sub.TaskID).Error; err != nil {
			return nil, notFoundAs(err, ErrTaskNotFound)
		}
		item.sub = &sub
		item.task = &task
	default:
		return nil, invalidInputf("unknown item kind %q", ref.Kind)
	}
	return item, nil
}

func notFoundAs(err error, domain *DomainError) error {
	if database.IsNotFound(err) {
		return domain
	}
	return err
}

func (w *workItem) assignments(tx *gorm.DB) ([]Assignment, error) {
	table, fk := w.assigneeTable()
	var rows []Assignment
	if err := tx.Table(table).Where(fk+" = ?", w.ref.ID).Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list assignees: %w", err)
	}
	for i := range rows {
		rows[i].ItemKind = w.ref.Kind
		rows[i].ItemID = w.ref.ID
	}
	return rows, nil
}

func (w *workItem) assignment(tx *gorm.DB, assigneeID string) (*Assignment, error) {
	table, fk := w.assigneeTable()
	var row Assignment
	err := tx.Table(table).Where(fk+" = ? AND assignee_id = ?", w.ref.ID, assigneeID).Take(&row).Error
	if err != nil {
		return nil, notFoundAs(err, ErrAssignmentNotFound)
	}
	row.ItemKind = w.ref.Kind
	row.ItemID = w.ref.ID
	return &row, nil
}

func (w *workItem) createAssignment(tx *gorm.DB, assigneeID, assignedByID string, status models.AssigneeStatus, respondedAt *time.Time) (*Assignment, error) {
	var (
		id  string
		err error
	)
	if w.sub != nil {
		row := models.SubTaskAssignee{SubTaskID: w.ref.ID, AssigneeID: assigneeID, AssignedByID: assignedByID, Status: status, RespondedAt: respondedAt}
		err = tx.Create(&row).Error
		id = row.ID
	} else {
		row := models.TaskAssignee{TaskID: w.ref.ID, AssigneeID: assigneeID, AssignedByID: assignedByID, Status: status, RespondedAt: respondedAt}
		err = tx.Create(&row).Error
		id = row.ID
	}
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrAlreadyAssigned
		}
		return nil, fmt.Errorf("create assignment: %w", err)
	}
	return &Assignment{
		ID:           id,
		ItemKind:     w.ref.Kind,
		ItemID:       w.ref.ID,
		AssigneeID:   assigneeID,
		AssignedByID: assignedByID,
		Status:       status,
		RespondedAt:  respondedAt,
	}, nil
}

// transitionAssignment applies an update only while the row is still in
// from; losing that race surfaces as an invalid transition.
func (w *workItem) transitionAssignment(tx *gorm.DB, a *Assignment, from models.AssigneeStatus, changes map[string]any) error {
	table, _ := w.assigneeTable()
	res := tx.Table(table).Where("id = ? AND status = ?", a.ID, from).Updates(changes)
	if res.Error != nil {
		return fmt.Errorf("update assignment: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return lifecycle.ErrInvalidAssignmentTransition
	}
	return nil
}

// transitionItem applies a status change only while the item is still in from.
func (w *workItem) transitionItem(tx *gorm.DB, from models.TaskStatus, changes map[string]any) error {
	res := tx.Table(w.table()).Where("id = ? AND status = ?", w.ref.ID, from).Updates(changes)
	if res.Error != nil {
		return fmt.Errorf("update %s: %w", w.ref.Kind, res.Error)
	}
	if res.RowsAffected != 1 {
		return lifecycle.ErrInvalidTaskTransition
	}
	return nil
}
