// Package lifecycle decides task, sub-task and assignment state transitions.
// It only computes outcomes; persisting them is up to the caller.
package lifecycle

import (
	"errors"
	"strings"

	"github.com/charlesng35/taskhub/internal/models"
)

var (
	// ErrInvalidTaskTransition is returned when the item is not in a state that allows the change.
	ErrInvalidTaskTransition = errors.New("lifecycle: invalid task transition")
	// ErrCompletionPolicyUnmet blocks a non-forced close.
	ErrCompletionPolicyUnmet = errors.New("lifecycle: completion policy not met")
	// ErrForceCloseReasonRequired is returned for a forced close over open assignees without a reason.
	ErrForceCloseReasonRequired = errors.New("lifecycle: force close requires a reason")
	// ErrInvalidAssignmentTransition is returned for decisions on assignments that are not in the expected state.
	ErrInvalidAssignmentTransition = errors.New("lifecycle: invalid assignment transition")
	// ErrAssignmentActive is returned when re-assigning someone whose assignment still stands.
	ErrAssignmentActive = errors.New("lifecycle: assignment already active")
)

var taskTransitions = map[models.TaskStatus]models.TaskStatus{
	models.TaskOpen:   models.TaskClosed,
	models.TaskClosed: models.TaskArchived,
}

// EnsureOpen rejects edits and assignment changes on closed or archived items.
func EnsureOpen(status models.TaskStatus) error {
	if status != models.TaskOpen {
		return ErrInvalidTaskTransition
	}
	return nil
}

// CloseRequest gathers everything CanClose needs.
type CloseRequest struct {
	Status    models.TaskStatus
	Policy    models.CompletionPolicy
	Assignees []models.AssigneeStatus
	Force     bool
	Reason    string
}

// CloseOutcome describes an allowed close.
type CloseOutcome struct {
	Forced            bool
	WithOpenAssignees bool
	Reason            string
}

// CanClose checks a close against the completion policy. A forced close with
// any assignee short of COMPLETED needs a reason and is flagged as such.
func CanClose(req CloseRequest) (CloseOutcome, error) {
	if taskTransitions[req.Status] != models.TaskClosed {
		return CloseOutcome{}, ErrInvalidTaskTransition
	}

	reason := strings.TrimSpace(req.Reason)
	open := hasOpenAssignee(req.Assignees)

	if !req.Force {
		if !PolicySatisfied(req.Policy, req.Assignees) {
			return CloseOutcome{}, ErrCompletionPolicyUnmet
		}
		return CloseOutcome{Reason: reason}, nil
	}

	if open && reason == "" {
		return CloseOutcome{}, ErrForceCloseReasonRequired
	}
	return CloseOutcome{Forced: true, WithOpenAssignees: open, Reason: reason}, nil
}

// PolicySatisfied reports whether assignees meet policy. An item with no
// assignees always satisfies it. Unknown policies are treated as ALL_ASSIGNEES.
func PolicySatisfied(policy models.CompletionPolicy, assignees []models.AssigneeStatus) bool {
	if len(assignees) == 0 {
		return true
	}
	if policy == models.PolicyAnyAssignee {
		for _, s := range assignees {
			if s == models.AssigneeCompleted {
				return true
			}
		}
		return false
	}
	return !hasOpenAssignee(assignees)
}

func hasOpenAssignee(assignees []models.AssigneeStatus) bool {
	for _, s := range assignees {
		if s != models.AssigneeCompleted {
			return true
		}
	}
	return false
}

// Archive moves a CLOSED item to ARCHIVED.
func Archive(status models.TaskStatus) (models.TaskStatus, error) {
	if taskTransitions[status] != models.TaskArchived {
		return status, ErrInvalidTaskTransition
	}
	return models.TaskArchived, nil
}

// ParseDecision accepts ACCEPTED or REJECTED, case-insensitively.
func ParseDecision(value string) (models.AssigneeStatus, bool) {
	switch models.AssigneeStatus(strings.ToUpper(strings.TrimSpace(value))) {
	case models.AssigneeAccepted:
		return models.AssigneeAccepted, true
	case models.AssigneeRejected:
		return models.AssigneeRejected, true
	}
	return "", false
}

// ApplyAssignmentDecision moves a PENDING assignment to ACCEPTED or REJECTED.
func ApplyAssignmentDecision(current, decision models.AssigneeStatus) (models.AssigneeStatus, error) {
	if current != models.AssigneePending {
		return current, ErrInvalidAssignmentTransition
	}
	switch decision {
	case models.AssigneeAccepted, models.AssigneeRejected:
		return decision, nil
	}
	return current, ErrInvalidAssignmentTransition
}

// Complete moves an ACCEPTED assignment to COMPLETED.
func Complete(current models.AssigneeStatus) (models.AssigneeStatus, error) {
	if current != models.AssigneeAccepted {
		return current, ErrInvalidAssignmentTransition
	}
	return models.AssigneeCompleted, nil
}

// Reassign resets a REJECTED assignment to PENDING. Any other existing
// assignment is still standing and cannot be re-created.
func Reassign(current models.AssigneeStatus) (models.AssigneeStatus, error) {
	if current != models.AssigneeRejected {
		return current, ErrAssignmentActive
	}
	return models.AssigneePending, nil
}
