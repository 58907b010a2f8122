// Package permissions holds the group role matrix. Every function is total and
// free of side effects; callers resolve roles inside their own transaction.
package permissions

import "github.com/charlesng35/taskhub/internal/models"

// Action names a role-gated group operation.
type Action string

const (
	ActionInvite     Action = "invite"
	ActionRemove     Action = "remove"
	ActionUpdateRole Action = "update_role"
	ActionLeave      Action = "leave"
	ActionManageTask Action = "manage_task"
)

// removable lists, per actor role, the target roles it may remove.
var removable = map[models.GroupRole]map[models.GroupRole]bool{
	models.RoleOwner: {models.RoleAdmin: true, models.RoleMember: true},
	models.RoleAdmin: {models.RoleMember: true},
}

// CanInvite reports whether actor may invite new members.
func CanInvite(actor models.GroupRole) bool {
	return actor == models.RoleOwner || actor == models.RoleAdmin
}

// CanRemove reports whether actor may remove a member holding target.
// Nobody removes an OWNER. Self-removal is rejected by callers before this check.
func CanRemove(actor, target models.GroupRole) bool {
	return removable[actor][target]
}

// CanUpdateRole reports whether actor may change the role of a member holding
// target. Only an OWNER may, and never on another OWNER.
func CanUpdateRole(actor, target models.GroupRole) bool {
	return actor == models.RoleOwner && target.Valid() && target != models.RoleOwner
}

// CanLeave reports whether a member holding role may leave the group.
func CanLeave(role models.GroupRole) bool {
	return role.Valid() && role != models.RoleOwner
}

// CanManageTasks reports whether actor may assign, close or archive group tasks.
func CanManageTasks(actor models.GroupRole) bool {
	return actor == models.RoleOwner || actor == models.RoleAdmin
}
