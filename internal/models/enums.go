package models

// GroupRole is a member's role inside a group.
type GroupRole string

const (
	RoleOwner  GroupRole = "OWNER"
	RoleAdmin  GroupRole = "ADMIN"
	RoleMember GroupRole = "MEMBER"
)

// Roles lists every group role.
var Roles = []GroupRole{RoleOwner, RoleAdmin, RoleMember}

func (r GroupRole) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// TokenType identifies the purpose of an action token.
type TokenType string

const (
	TokenResetPassword  TokenType = "RESET_PASSWORD"
	TokenGroupInvite    TokenType = "GROUP_INVITE"
	TokenTaskAssignment TokenType = "TASK_ASSIGNMENT"
)

func (t TokenType) Valid() bool {
	switch t {
	case TokenResetPassword, TokenGroupInvite, TokenTaskAssignment:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of a task or sub-task.
type TaskStatus string

const (
	TaskOpen     TaskStatus = "OPEN"
	TaskClosed   TaskStatus = "CLOSED"
	TaskArchived TaskStatus = "ARCHIVED"
)

// CompletionPolicy decides when a task may close without force.
type CompletionPolicy string

const (
	PolicyAllAssignees CompletionPolicy = "ALL_ASSIGNEES"
	PolicyAnyAssignee  CompletionPolicy = "ANY_ASSIGNEE"
)

func (p CompletionPolicy) Valid() bool {
	return p == PolicyAllAssignees || p == PolicyAnyAssignee
}

// AssigneeStatus is the per-assignee acceptance state.
type AssigneeStatus string

const (
	AssigneePending   AssigneeStatus = "PENDING"
	AssigneeAccepted  AssigneeStatus = "ACCEPTED"
	AssigneeRejected  AssigneeStatus = "REJECTED"
	AssigneeCompleted AssigneeStatus = "COMPLETED"
)
