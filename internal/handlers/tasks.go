package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskhub/internal/lifecycle"
	"github.com/charlesng35/taskhub/internal/models"
	"github.com/charlesng35/taskhub/internal/services"
	"github.com/charlesng35/taskhub/pkg/errors"
	"github.com/charlesng35/taskhub/pkg/response"
)

// TaskHandler exposes tasks, sub-tasks and their assignment workflow. Item
// actions are shared by /api/tasks/:id and /api/subtasks/:id.
type TaskHandler struct {
	tasks     *services.TaskService
	responses *services.AssignmentResponseService
}

func NewTaskHandler(tasks *services.TaskService, responses *services.AssignmentResponseService) *TaskHandler {
	return &TaskHandler{tasks: tasks, responses: responses}
}

type createTaskRequest struct {
	Title            string     `json:"title" validate:"required"`
	Description      string     `json:"description"`
	GroupID          string     `json:"group_id"`
	CompletionPolicy string     `json:"completion_policy"`
	DueAt            *time.Time `json:"due_at"`
}

type assignRequest struct {
	UserID string `json:"user_id" validate:"required,uuid"`
}

type respondRequest struct {
	Status string `json:"status" validate:"required"`
}

type closeRequest struct {
	Force  bool   `json:"force"`
	Reason string `json:"reason"`
}

// POST /api/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	var body createTaskRequest
	if !bindAndValidate(c, &body) {
		return
	}

	task, err := h.tasks.CreateTask(requestContext(c), actorID(c), services.CreateTaskInput{
		Title:            body.Title,
		Description:      body.Description,
		GroupID:          body.GroupID,
		CompletionPolicy: models.CompletionPolicy(body.CompletionPolicy),
		DueAt:            body.DueAt,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, task)
}

// GET /api/tasks
func (h *TaskHandler) List(c *gin.Context) {
	tasks, err := h.tasks.ListTasks(requestContext(c), actorID(c), services.TaskFilters{
		GroupID: c.Query("group_id"),
		Status:  models.TaskStatus(c.Query("status")),
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, tasks)
}

// GET /api/tasks/:id
func (h *TaskHandler) Get(c *gin.Context) {
	task, err := h.tasks.GetTask(requestContext(c), actorID(c), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, task)
}

// POST /api/tasks/:id/subtasks
func (h *TaskHandler) AddSubTask(c *gin.Context) {
	var body createTaskRequest
	if !bindAndValidate(c, &body) {
		return
	}
	if body.GroupID != "" {
		response.Error(c, errors.NewBadRequest("group_id is inherited from the parent task"))
		return
	}

	sub, err := h.tasks.AddSubTask(requestContext(c), actorID(c), c.Param("id"), services.CreateSubTaskInput{
		Title:            body.Title,
		Description:      body.Description,
		CompletionPolicy: models.CompletionPolicy(body.CompletionPolicy),
		DueAt:            body.DueAt,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, sub)
}

func itemRef(kind services.ItemKind, c *gin.Context) services.ItemRef {
	return services.ItemRef{Kind: kind, ID: c.Param("id")}
}

// Assign handles POST /api/{tasks,subtasks}/:id/assignees.
func (h *TaskHandler) Assign(kind services.ItemKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body assignRequest
		if !bindAndValidate(c, &body) {
			return
		}

		assignment, err := h.tasks.Assign(requestContext(c), actorID(c), itemRef(kind, c), body.UserID)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		response.Success(c, http.StatusCreated, assignment)
	}
}

// Respond handles POST /api/{tasks,subtasks}/:id/respond.
func (h *TaskHandler) Respond(kind services.ItemKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body respondRequest
		if !bindAndValidate(c, &body) {
			return
		}
		decision, ok := lifecycle.ParseDecision(body.Status)
		if !ok {
			response.Error(c, errors.NewBadRequest("status must be ACCEPTED or REJECTED"))
			return
		}

		assignment, err := h.tasks.Respond(requestContext(c), actorID(c), itemRef(kind, c), decision)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		response.Success(c, http.StatusOK, assignment)
	}
}

// Complete handles POST /api/{tasks,subtasks}/:id/complete.
func (h *TaskHandler) Complete(kind services.ItemKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		assignment, err := h.tasks.Complete(requestContext(c), actorID(c), itemRef(kind, c))
		if err != nil {
			writeServiceError(c, err)
			return
		}
		response.Success(c, http.StatusOK, assignment)
	}
}

// Close handles POST /api/{tasks,subtasks}/:id/close. The body is optional.
func (h *TaskHandler) Close(kind services.ItemKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body closeRequest
		if c.Request.ContentLength != 0 && !bindAndValidate(c, &body) {
			return
		}

		closure, err := h.tasks.Close(requestContext(c), actorID(c), itemRef(kind, c), services.CloseInput{
			Force:  body.Force,
			Reason: body.Reason,
		})
		if err != nil {
			writeServiceError(c, err)
			return
		}
		response.Success(c, http.StatusOK, closure)
	}
}

// Archive handles POST /api/{tasks,subtasks}/:id/archive.
func (h *TaskHandler) Archive(kind services.ItemKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.tasks.Archive(requestContext(c), actorID(c), itemRef(kind, c)); err != nil {
			writeServiceError(c, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{"archived": true})
	}
}

// GET /tasks/assignments/decide?token=...&status=...
//
// The emailed link is the credential, so this route is unauthenticated.
// PreviewDecision reports what the link would do; the decision is only
// applied by POST to the same URL.
func (h *TaskHandler) PreviewDecision(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, errors.NewBadRequest("token is required"))
		return
	}

	preview, err := h.responses.Preview(requestContext(c), token, c.Query("status"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, preview)
}

// POST /tasks/assignments/decide?token=...&status=...
func (h *TaskHandler) Decide(c *gin.Context) {
	token := c.Query("token")
	status := c.Query("status")
	if token == "" {
		response.Error(c, errors.NewBadRequest("token is required"))
		return
	}

	assignment, err := h.responses.Decide(requestContext(c), token, status)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"item_kind": assignment.ItemKind,
		"item_id":   assignment.ItemID,
		"status":    assignment.Status,
	})
}
