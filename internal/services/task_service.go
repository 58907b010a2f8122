package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/taskhub/internal/database"
	"github.com/charlesng35/taskhub/internal/lifecycle"
	"github.com/charlesng35/taskhub/internal/models"
	"github.com/charlesng35/taskhub/internal/permissions"
	"github.com/charlesng35/taskhub/internal/tokens"
	"github.com/charlesng35/taskhub/pkg/logger"
	"github.com/charlesng35/taskhub/pkg/mail"
	"github.com/charlesng35/taskhub/pkg/metrics"
	"github.com/charlesng35/taskhub/pkg/validator"
)

const defaultAssignmentTTL = 7 * 24 * time.Hour

// CreateTaskInput describes a new task. An empty GroupID makes it personal.
type CreateTaskInput struct {
	Title            string                  `validate:"required,notblank,max=200"`
	Description      string                  `validate:"max=5000"`
	GroupID          string                  `validate:"omitempty,uuid"`
	CompletionPolicy models.CompletionPolicy `validate:"omitempty,oneof=ALL_ASSIGNEES ANY_ASSIGNEE"`
	DueAt            *time.Time
}

// CreateSubTaskInput describes a new sub-task.
type CreateSubTaskInput struct {
	Title            string                  `validate:"required,notblank,max=200"`
	Description      string                  `validate:"max=5000"`
	CompletionPolicy models.CompletionPolicy `validate:"omitempty,oneof=ALL_ASSIGNEES ANY_ASSIGNEE"`
	DueAt            *time.Time
}

// CloseInput carries the force flag and reason of a close request.
type CloseInput struct {
	Force  bool
	Reason string
}

// TaskFilters narrows ListTasks.
type TaskFilters struct {
	GroupID string
	Status  models.TaskStatus
}

// TaskOption customises TaskService behaviour.
type TaskOption func(*TaskService)

// WithAssignmentTTL overrides the lifetime of emailed assignment links.
func WithAssignmentTTL(d time.Duration) TaskOption {
	return func(s *TaskService) {
		if d > 0 {
			s.assignmentTTL = d
		}
	}
}

// WithTaskClock overrides the time source used for lifecycle timestamps.
func WithTaskClock(clock func() time.Time) TaskOption {
	return func(s *TaskService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// TaskService manages tasks, sub-tasks and their assignments.
type TaskService struct {
	uow           database.UnitOfWork
	db            *gorm.DB
	store         *tokens.Store
	audit         *AuditService
	notifier      Notifier
	links         Links
	assignmentTTL time.Duration
	now           func() time.Time
	log           *zap.Logger
}

// NewTaskService constructs a TaskService.
func NewTaskService(db *gorm.DB, store *tokens.Store, audit *AuditService, notifier Notifier, links Links, opts ...TaskOption) (*TaskService, error) {
	if db == nil {
		return nil, errors.New("task service: db is required")
	}
	if store == nil {
		return nil, errors.New("task service: token store is required")
	}
	svc := &TaskService{
		uow:           database.NewTransactor(db),
		db:            db,
		store:         store,
		audit:         audit,
		notifier:      notifierOrNoop(notifier),
		links:         links,
		assignmentTTL: defaultAssignmentTTL,
		now:           utcNow,
		log:           logger.WithModule("tasks"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// CreateTask creates an OPEN task owned by actorID. Group tasks require membership.
func (s *TaskService) CreateTask(ctx context.Context, actorID string, input CreateTaskInput) (*models.Task, error) {
	ctx = ensureContext(ctx)

	input.Title = strings.TrimSpace(input.Title)
	input.GroupID = strings.TrimSpace(input.GroupID)
	if err := validator.ValidateStruct(input); err != nil {
		return nil, invalidInput(err)
	}
	if input.CompletionPolicy == "" {
		input.CompletionPolicy = models.PolicyAllAssignees
	}

	task := &models.Task{
		Title:       input.Title,
		Description: strings.TrimSpace(input.Description),
		OwnerID:     actorID,
		DueAt:       input.DueAt,
		Closure: models.Closure{
			Status:           models.TaskOpen,
			CompletionPolicy: input.CompletionPolicy,
		},
	}
	if input.GroupID != "" {
		task.GroupID = strPtr(input.GroupID)
	}

	err := s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		if _, err := findUser(tx, "id = ?", actorID); err != nil {
			return err
		}
		if task.GroupID != nil {
			if _, err := actorRole(tx, *task.GroupID, actorID); err != nil {
				return err
			}
		}
		return tx.Create(task).Error
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    actorID,
		Action:     "task.create",
		Resource:   "task",
		ResourceID: task.ID,
		Result:     "success",
	})
	return task, nil
}

// AddSubTask creates an OPEN sub-task under taskID.
func (s *TaskService) AddSubTask(ctx context.Context, actorID, taskID string, input CreateSubTaskInput) (*models.SubTask, error) {
	ctx = ensureContext(ctx)

	input.Title = strings.TrimSpace(input.Title)
	if err := validator.ValidateStruct(input); err != nil {
		return nil, invalidInput(err)
	}
	if input.CompletionPolicy == "" {
		input.CompletionPolicy = models.PolicyAllAssignees
	}

	sub := &models.SubTask{
		TaskID:      taskID,
		Title:       input.Title,
		Description: strings.TrimSpace(input.Description),
		DueAt:       input.DueAt,
		Closure: models.Closure{
			Status:           models.TaskOpen,
			CompletionPolicy: input.CompletionPolicy,
		},
	}

	err := s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		parent, err := loadItem(tx, TaskRef(taskID))
		if err != nil {
			return err
		}
		if err := parent.ensureMutable(); err != nil {
			return err
		}
		if err := authorizeManage(tx, parent, actorID); err != nil {
			return err
		}
		return tx.Create(sub).Error
	})
	if err != nil {
		return nil, translate(err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    actorID,
		Action:     "subtask.create",
		Resource:   "task",
		ResourceID: taskID,
		Result:     "success",
		Metadata:   map[string]any{"sub_task_id": sub.ID},
	})
	return sub, nil
}

// GetTask returns a task with its sub-tasks and assignees if actorID may see it.
func (s *TaskService) GetTask(ctx context.Context, actorID, taskID string) (*models.Task, error) {
	ctx = ensureContext(ctx)
	tx := s.db.WithContext(ctx)

	var task models.Task
	if err := tx.Preload("SubTasks.Assignees").Preload("Assignees").First(&task, "id = ?", taskID).Error; err != nil {
		return nil, notFoundAs(err, ErrTaskNotFound)
	}
	ok, err := canView(tx, &task, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrTaskNotFound
	}
	return &task, nil
}

// ListTasks returns the tasks actorID owns, shares through a group, or is assigned to.
func (s *TaskService) ListTasks(ctx context.Context, actorID string, filters TaskFilters) ([]models.Task, error) {
	ctx = ensureContext(ctx)
	tx := s.db.WithContext(ctx)

	groups := tx.Model(&models.GroupMember{}).Select("group_id").Where("user_id = ?", actorID)
	assigned := tx.Model(&models.TaskAssignee{}).Select("task_id").Where("assignee_id = ?", actorID)
	subAssigned := tx.Model(&models.SubTask{}).Select("task_id").Where("id IN (?)",
		tx.Model(&models.SubTaskAssignee{}).Select("sub_task_id").Where("assignee_id = ?", actorID))

	query := tx.Model(&models.Task{}).
		Where("(owner_id = ? OR group_id IN (?) OR id IN (?) OR id IN (?))", actorID, groups, assigned, subAssigned)
	if filters.GroupID != "" {
		query = query.Where("group_id = ?", filters.GroupID)
	}
	if filters.Status != "" {
		query = query.Where("status = ?", filters.Status)
	}

	var tasks []models.Task
	if err := query.Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("task service: list tasks: %w", err)
	}
	return tasks, nil
}

// Assign adds assigneeID to the item, or re-opens a REJECTED assignment.
// Self-assignment is accepted immediately; anyone else receives an email with
// accept and reject links.
func (s *TaskService) Assign(ctx context.Context, actorID string, ref ItemRef, assigneeID string) (*Assignment, error) {
	ctx = ensureContext(ctx)

	var (
		assignment *Assignment
		issued     tokens.Issued
		item       *workItem
	)
	now := s.now()
	self := actorID == assigneeID

	err := s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		if item, err = loadItem(tx, ref); err != nil {
			return err
		}
		if err := item.ensureMutable(); err != nil {
			return err
		}
		if err := authorizeManage(tx, item, actorID); err != nil {
			return err
		}
		if err := checkAssignable(tx, item, assigneeID); err != nil {
			return err
		}

		status := models.AssigneePending
		var respondedAt *time.Time
		if self {
			status = models.AssigneeAccepted
			respondedAt = &now
		}

		existing, err := item.assignment(tx, assigneeID)
		switch {
		case errors.Is(err, ErrAssignmentNotFound):
			if assignment, err = item.createAssignment(tx, assigneeID, actorID, status, respondedAt); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if _, err := lifecycle.Reassign(existing.Status); err != nil {
				return err
			}
			if err := item.transitionAssignment(tx, existing, models.AssigneeRejected, map[string]any{
				"status":         status,
				"assigned_by_id": actorID,
				"responded_at":   respondedAt,
				"updated_at":     now,
			}); err != nil {
				return err
			}
			existing.Status = status
			existing.AssignedByID = actorID
			existing.RespondedAt = respondedAt
			assignment = existing
		}

		if self {
			return nil
		}
		issued, err = s.store.Issue(tx, tokens.IssueParams{
			Type:       models.TokenTaskAssignment,
			SubjectKey: item.subjectKey(assigneeID),
			UserID:     strPtr(assigneeID),
			GroupID:    item.groupID(),
			IssuedByID: strPtr(actorID),
			Payload:    item.payload(),
			TTL:        s.assignmentTTL,
		})
		return err
	})
	if err != nil {
		return nil, translate(err)
	}

	metrics.TaskTransitions.WithLabelValues(string(ref.Kind), "assign").Inc()
	if !self {
		metrics.TokensIssued.WithLabelValues(string(models.TokenTaskAssignment)).Inc()
		s.notifyAssignment(ctx, item, actorID, assigneeID, issued)
	}
	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    actorID,
		Action:     string(ref.Kind) + ".assign",
		Resource:   string(ref.Kind),
		ResourceID: ref.ID,
		Result:     "success",
		Metadata:   map[string]any{"assignee_id": assigneeID, "status": string(assignment.Status)},
	})
	return assignment, nil
}

// Respond records the assignee's in-app decision and revokes the emailed link.
func (s *TaskService) Respond(ctx context.Context, actorID string, ref ItemRef, decision models.AssigneeStatus) (*Assignment, error) {
	ctx = ensureContext(ctx)

	var (
		assignment *Assignment
		item       *workItem
	)
	err := s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		var err error
		if item, err = loadItem(tx, ref); err != nil {
			return err
		}
		if assignment, err = s.applyDecision(tx, item, actorID, decision); err != nil {
			return err
		}
		_, err = s.store.Revoke(tx, item.subjectKey(actorID))
		return err
	})
	if err != nil {
		return nil, translate(err)
	}

	s.afterDecision(ctx, item, assignment)
	return assignment, nil
}

// applyDecision moves assigneeID's PENDING assignment on item to decision.
func (s *TaskService) applyDecision(tx *gorm.DB, item *workItem, assigneeID string, decision models.AssigneeStatus) (*Assignment, error) {
	if err := item.ensureMutable(); err != nil {
		return nil, err
	}
	assignment, err := item.assignment(tx, assigneeID)
	if err != nil {
		return nil, err
	}
	next, err := lifecycle.ApplyAssignmentDecision(assignment.Status, decision)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := item.transitionAssignment(tx, assignment, models.AssigneePending, map[string]any{
		"status":       next,
		"responded_at": now,
		"updated_at":   now,
	}); err != nil {
		return nil, err
	}
	assignment.Status = next
	assignment.RespondedAt = &now
	return assignment, nil
}

// Complete marks actorID's ACCEPTED assignment as COMPLETED.
func (s *TaskService) Complete(ctx context.Context, actorID string, ref ItemRef) (*Assignment, error) {
	ctx = ensureContext(ctx)

	var assignment *Assignment
	err := s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		item, err := loadItem(tx, ref)
		if err != nil {
			return err
		}
		if err := item.ensureMutable(); err != nil {
			return err
		}
		if assignment, err = item.assignment(tx, actorID); err != nil {
			return err
		}
		next, err := lifecycle.Complete(assignment.Status)
		if err != nil {
			return err
		}
		now := s.now()
		if err := item.transitionAssignment(tx, assignment, models.AssigneeAccepted, map[string]any{
			"status":       next,
			"completed_at": now,
			"updated_at":   now,
		}); err != nil {
			return err
		}
		assignment.Status = next
		assignment.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	metrics.TaskTransitions.WithLabelValues(string(ref.Kind), "complete").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    actorID,
		Action:     string(ref.Kind) + ".complete",
		Resource:   string(ref.Kind),
		ResourceID: ref.ID,
		Result:     "success",
	})
	return assignment, nil
}

// Close closes the item under its completion policy, or forcibly with a reason.
func (s *TaskService) Close(ctx context.Context, actorID string, ref ItemRef, input CloseInput) (*models.Closure, error) {
	ctx = ensureContext(ctx)

	var closure models.Closure
	err := s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		item, err := loadItem(tx, ref)
		if err != nil {
			return err
		}
		if item.sub != nil && item.task.Status == models.TaskArchived {
			return lifecycle.ErrInvalidTaskTransition
		}
		if err := authorizeManage(tx, item, actorID); err != nil {
			return err
		}

		rows, err := item.assignments(tx)
		if err != nil {
			return err
		}
		statuses := make([]models.AssigneeStatus, len(rows))
		for i, row := range rows {
			statuses[i] = row.Status
		}

		current := item.closure()
		outcome, err := lifecycle.CanClose(lifecycle.CloseRequest{
			Status:    current.Status,
			Policy:    current.CompletionPolicy,
			Assignees: statuses,
			Force:     input.Force,
			Reason:    input.Reason,
		})
		if err != nil {
			return err
		}

		now := s.now()
		if err := item.transitionItem(tx, models.TaskOpen, map[string]any{
			"status":                     models.TaskClosed,
			"closed_at":                  now,
			"closed_by_id":               actorID,
			"closed_reason":              outcome.Reason,
			"closed_with_open_assignees": outcome.WithOpenAssignees,
			"updated_at":                 now,
		}); err != nil {
			return err
		}

		closure = *current
		closure.Status = models.TaskClosed
		closure.ClosedAt = &now
		closure.ClosedByID = strPtr(actorID)
		closure.ClosedReason = outcome.Reason
		closure.ClosedWithOpenAssignees = outcome.WithOpenAssignees
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}

	transition := "close"
	if closure.ClosedWithOpenAssignees {
		transition = "force_close"
	}
	metrics.TaskTransitions.WithLabelValues(string(ref.Kind), transition).Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    actorID,
		Action:     string(ref.Kind) + "." + transition,
		Resource:   string(ref.Kind),
		ResourceID: ref.ID,
		Result:     "success",
		Metadata:   map[string]any{"reason": closure.ClosedReason, "forced": input.Force},
	})
	return &closure, nil
}

// Archive moves a CLOSED item to ARCHIVED, after which it is immutable.
func (s *TaskService) Archive(ctx context.Context, actorID string, ref ItemRef) error {
	ctx = ensureContext(ctx)

	err := s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		item, err := loadItem(tx, ref)
		if err != nil {
			return err
		}
		if err := authorizeManage(tx, item, actorID); err != nil {
			return err
		}
		if item.sub != nil && item.task.Status == models.TaskArchived {
			return lifecycle.ErrInvalidTaskTransition
		}
		next, err := lifecycle.Archive(item.closure().Status)
		if err != nil {
			return err
		}
		now := s.now()
		return item.transitionItem(tx, models.TaskClosed, map[string]any{
			"status":      next,
			"archived_at": now,
			"updated_at":  now,
		})
	})
	if err != nil {
		return translate(err)
	}

	metrics.TaskTransitions.WithLabelValues(string(ref.Kind), "archive").Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    actorID,
		Action:     string(ref.Kind) + ".archive",
		Resource:   string(ref.Kind),
		ResourceID: ref.ID,
		Result:     "success",
	})
	return nil
}

// authorizeManage gates assign, close, archive and sub-task creation: group
// OWNER/ADMIN for group tasks, the owner for personal tasks.
func authorizeManage(tx *gorm.DB, item *workItem, actorID string) error {
	if item.groupID() == nil {
		allowed := item.task.OwnerID == actorID
		recordDecision(permissions.ActionManageTask, allowed)
		if !allowed {
			return &DomainError{Kind: KindNotAuthorized, Message: ErrNotAuthorized.Message, Action: permissions.ActionManageTask}
		}
		return nil
	}

	role, err := actorRole(tx, *item.groupID(), actorID)
	if err != nil {
		return err
	}
	allowed := permissions.CanManageTasks(role)
	recordDecision(permissions.ActionManageTask, allowed)
	if !allowed {
		return notAuthorized(permissions.ActionManageTask, role, "")
	}
	return nil
}

func checkAssignable(tx *gorm.DB, item *workItem, assigneeID string) error {
	if _, err := findUser(tx, "id = ?", assigneeID); err != nil {
		return err
	}
	if item.groupID() == nil {
		if assigneeID != item.task.OwnerID {
			return invalidInputf("personal tasks can only be assigned to their owner")
		}
		return nil
	}
	ok, err := isMember(tx, *item.groupID(), assigneeID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMemberNotFound
	}
	return nil
}

func canView(tx *gorm.DB, task *models.Task, actorID string) (bool, error) {
	if task.OwnerID == actorID {
		return true, nil
	}
	if task.GroupID != nil {
		ok, err := isMember(tx, *task.GroupID, actorID)
		if err != nil || ok {
			return ok, err
		}
	}
	for _, a := range task.Assignees {
		if a.AssigneeID == actorID {
			return true, nil
		}
	}
	for _, sub := range task.SubTasks {
		for _, a := range sub.Assignees {
			if a.AssigneeID == actorID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *TaskService) notifyAssignment(ctx context.Context, item *workItem, assignerID, assigneeID string, issued tokens.Issued) {
	db := s.db.WithContext(ctx)
	assignee, err := findUser(db, "id = ?", assigneeID)
	if err != nil {
		s.log.Warn("load assignee for notification", zap.String("assignee_id", assigneeID), zap.Error(err))
		return
	}
	assigner, err := findUser(db, "id = ?", assignerID)
	if err != nil {
		s.log.Warn("load assigner for notification", zap.String("assigner_id", assignerID), zap.Error(err))
		return
	}

	opaque := tokens.EncodeOpaque(issued.ID, issued.Secret)
	s.notifier.Notify(ctx, mail.Notification{
		Recipient: assignee.Email,
		UserID:    assignee.ID,
		Kind:      mail.KindTaskAssignment,
		Context: map[string]string{
			"name":        assignee.Name,
			"assigner":    assigner.Name,
			"task":        item.title(),
			"accept_link": s.links.AssignmentDecision(opaque, string(models.AssigneeAccepted)),
			"reject_link": s.links.AssignmentDecision(opaque, string(models.AssigneeRejected)),
		},
	})
}

// afterDecision reports a decision to metrics, the audit log and the assigner.
func (s *TaskService) afterDecision(ctx context.Context, item *workItem, a *Assignment) {
	metrics.TaskTransitions.WithLabelValues(string(item.ref.Kind), strings.ToLower(string(a.Status))).Inc()
	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    a.AssigneeID,
		Action:     string(item.ref.Kind) + ".assignment." + strings.ToLower(string(a.Status)),
		Resource:   string(item.ref.Kind),
		ResourceID: item.ref.ID,
		Result:     "success",
	})

	if a.AssignedByID == a.AssigneeID {
		return
	}
	db := s.db.WithContext(ctx)
	assigner, err := findUser(db, "id = ?", a.AssignedByID)
	if err != nil {
		s.log.Warn("load assigner for notification", zap.String("assigner_id", a.AssignedByID), zap.Error(err))
		return
	}
	assignee, err := findUser(db, "id = ?", a.AssigneeID)
	if err != nil {
		s.log.Warn("load assignee for notification", zap.String("assignee_id", a.AssigneeID), zap.Error(err))
		return
	}
	s.notifier.Notify(ctx, mail.Notification{
		Recipient: assigner.Email,
		UserID:    assigner.ID,
		Kind:      mail.KindAssignmentDecision,
		Context: map[string]string{
			"name":     assigner.Name,
			"assignee": assignee.Name,
			"decision": strings.ToLower(string(a.Status)),
			"task":     item.title(),
		},
	})
}
