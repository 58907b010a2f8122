package services

import (
	"errors"
	"fmt"

	"github.com/charlesng35/taskhub/internal/lifecycle"
	"github.com/charlesng35/taskhub/internal/models"
	"github.com/charlesng35/taskhub/internal/permissions"
	"github.com/charlesng35/taskhub/internal/tokens"
)

// ErrorKind enumerates the domain failures a caller can act on.
type ErrorKind int

const (
	KindInvalidToken ErrorKind = iota + 1
	KindAlreadyMember
	KindCannotInviteSelf
	KindUserNotFound
	KindNotAuthorized
	KindOwnerConstraintViolation
	KindInvalidAssignmentTransition
	KindForceCloseReasonRequired
	KindTaskNotFound
	KindGroupNotFound
	KindMemberNotFound
	KindNotAMember
	KindCompletionPolicyUnmet
	KindInvalidTaskTransition
	KindAlreadyAssigned
	KindAssignmentNotFound
	KindInvalidInput
	KindInvalidCredentials
	KindEmailTaken
)

var kindNames = map[ErrorKind]string{
	KindInvalidToken:                "invalid_token",
	KindAlreadyMember:               "already_member",
	KindCannotInviteSelf:            "cannot_invite_self",
	KindUserNotFound:                "user_not_found",
	KindNotAuthorized:               "not_authorized",
	KindOwnerConstraintViolation:    "owner_constraint_violation",
	KindInvalidAssignmentTransition: "invalid_assignment_transition",
	KindForceCloseReasonRequired:    "force_close_reason_required",
	KindTaskNotFound:                "task_not_found",
	KindGroupNotFound:               "group_not_found",
	KindMemberNotFound:              "member_not_found",
	KindNotAMember:                  "not_a_member",
	KindCompletionPolicyUnmet:       "completion_policy_unmet",
	KindInvalidTaskTransition:       "invalid_task_transition",
	KindAlreadyAssigned:             "already_assigned",
	KindAssignmentNotFound:          "assignment_not_found",
	KindInvalidInput:                "invalid_input",
	KindInvalidCredentials:          "invalid_credentials",
	KindEmailTaken:                  "email_taken",
}

func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// DomainError is an expected, caller-recoverable failure. Role context is
// for logs only and never part of Error().
type DomainError struct {
	Kind       ErrorKind
	Message    string
	Action     permissions.Action
	ActorRole  models.GroupRole
	TargetRole models.GroupRole
	Err        error
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}

func (e *DomainError) Unwrap() error { return e.Err }

// Is matches any DomainError of the same kind.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

var (
	ErrInvalidToken                = &DomainError{Kind: KindInvalidToken, Message: "link is invalid or has expired"}
	ErrAlreadyMember               = &DomainError{Kind: KindAlreadyMember, Message: "user is already a member of this group"}
	ErrCannotInviteSelf            = &DomainError{Kind: KindCannotInviteSelf, Message: "you cannot invite yourself"}
	ErrUserNotFound                = &DomainError{Kind: KindUserNotFound, Message: "user not found"}
	ErrNotAuthorized               = &DomainError{Kind: KindNotAuthorized, Message: "you are not allowed to perform this action"}
	ErrOwnerConstraintViolation    = &DomainError{Kind: KindOwnerConstraintViolation, Message: "a group must keep exactly one owner"}
	ErrInvalidAssignmentTransition = &DomainError{Kind: KindInvalidAssignmentTransition, Message: "assignment cannot change to the requested status"}
	ErrForceCloseReasonRequired    = &DomainError{Kind: KindForceCloseReasonRequired, Message: "a reason is required to force-close with open assignees"}
	ErrTaskNotFound                = &DomainError{Kind: KindTaskNotFound, Message: "task not found"}
	ErrGroupNotFound               = &DomainError{Kind: KindGroupNotFound, Message: "group not found"}
	ErrMemberNotFound              = &DomainError{Kind: KindMemberNotFound, Message: "member not found"}
	ErrNotAMember                  = &DomainError{Kind: KindNotAMember, Message: "you are not a member of this group"}
	ErrCompletionPolicyUnmet       = &DomainError{Kind: KindCompletionPolicyUnmet, Message: "assignees have not completed this task"}
	ErrInvalidTaskTransition       = &DomainError{Kind: KindInvalidTaskTransition, Message: "task cannot change to the requested state"}
	ErrAlreadyAssigned             = &DomainError{Kind: KindAlreadyAssigned, Message: "user is already assigned"}
	ErrAssignmentNotFound          = &DomainError{Kind: KindAssignmentNotFound, Message: "assignment not found"}
	ErrInvalidInput                = &DomainError{Kind: KindInvalidInput, Message: "invalid input"}
	ErrInvalidCredentials          = &DomainError{Kind: KindInvalidCredentials, Message: "invalid email or password"}
	ErrEmailTaken                  = &DomainError{Kind: KindEmailTaken, Message: "email is already registered"}
)

// KindOf extracts the domain kind from err, if any.
func KindOf(err error) (ErrorKind, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

func invalidInput(err error) *DomainError {
	return &DomainError{Kind: KindInvalidInput, Message: err.Error(), Err: err}
}

func invalidInputf(format string, args ...any) *DomainError {
	return &DomainError{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func notAuthorized(action permissions.Action, actor, target models.GroupRole) *DomainError {
	return &DomainError{
		Kind:       KindNotAuthorized,
		Message:    ErrNotAuthorized.Message,
		Action:     action,
		ActorRole:  actor,
		TargetRole: target,
	}
}

// translate converts package-level sentinels into domain errors and passes
// anything else through.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, tokens.ErrInvalidToken):
		return ErrInvalidToken
	case errors.Is(err, lifecycle.ErrInvalidTaskTransition):
		return ErrInvalidTaskTransition
	case errors.Is(err, lifecycle.ErrCompletionPolicyUnmet):
		return ErrCompletionPolicyUnmet
	case errors.Is(err, lifecycle.ErrForceCloseReasonRequired):
		return ErrForceCloseReasonRequired
	case errors.Is(err, lifecycle.ErrInvalidAssignmentTransition):
		return ErrInvalidAssignmentTransition
	case errors.Is(err, lifecycle.ErrAssignmentActive):
		return ErrAlreadyAssigned
	}
	return err
}
