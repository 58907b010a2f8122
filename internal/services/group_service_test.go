package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/taskhub/internal/models"
)

func TestCreateGroupMakesCreatorOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.register(t, "Olivia")

	first, err := env.groups.Create(ctx, owner.ID, CreateGroupInput{Name: "Platform Team"})
	require.NoError(t, err)
	require.Equal(t, "platform-team", first.Slug)

	second, err := env.groups.Create(ctx, owner.ID, CreateGroupInput{Name: "Platform Team"})
	require.NoError(t, err)
	require.NotEqual(t, first.Slug, second.Slug)

	role, err := env.groups.MemberRole(ctx, first.ID, owner.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleOwner, role)

	groups, err := env.groups.ListForUser(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, groups, 2)

	_, err = env.groups.Create(ctx, owner.ID, CreateGroupInput{Name: "   "})
	requireKind(t, err, KindInvalidInput)
}

func TestUpdateMemberRoleRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.register(t, "Olivia")
	admin := env.register(t, "Adam")
	member := env.register(t, "Mia")
	group := env.groupWith(t, owner, map[*models.User]models.GroupRole{
		admin:  models.RoleAdmin,
		member: models.RoleMember,
	})

	updated, err := env.groups.UpdateMemberRole(ctx, owner.ID, group.ID, member.ID, models.RoleAdmin)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, updated.Role)

	_, err = env.groups.UpdateMemberRole(ctx, admin.ID, group.ID, member.ID, models.RoleMember)
	requireKind(t, err, KindNotAuthorized)

	_, err = env.groups.UpdateMemberRole(ctx, owner.ID, group.ID, member.ID, models.RoleOwner)
	requireKind(t, err, KindOwnerConstraintViolation)

	_, err = env.groups.UpdateMemberRole(ctx, owner.ID, group.ID, owner.ID, models.RoleAdmin)
	requireKind(t, err, KindOwnerConstraintViolation)

	_, err = env.groups.UpdateMemberRole(ctx, owner.ID, group.ID, member.ID, "SUPERUSER")
	requireKind(t, err, KindInvalidInput)

	outsider := env.register(t, "Otto")
	_, err = env.groups.UpdateMemberRole(ctx, owner.ID, group.ID, outsider.ID, models.RoleAdmin)
	requireKind(t, err, KindMemberNotFound)
}

func TestRemoveMemberRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.register(t, "Olivia")
	admin := env.register(t, "Adam")
	other := env.register(t, "Abe")
	member := env.register(t, "Mia")
	group := env.groupWith(t, owner, map[*models.User]models.GroupRole{
		admin:  models.RoleAdmin,
		other:  models.RoleAdmin,
		member: models.RoleMember,
	})

	requireKind(t, env.groups.RemoveMember(ctx, admin.ID, group.ID, owner.ID), KindOwnerConstraintViolation)
	requireKind(t, env.groups.RemoveMember(ctx, admin.ID, group.ID, other.ID), KindNotAuthorized)
	requireKind(t, env.groups.RemoveMember(ctx, member.ID, group.ID, admin.ID), KindNotAuthorized)
	requireKind(t, env.groups.RemoveMember(ctx, admin.ID, group.ID, admin.ID), KindNotAuthorized)

	require.NoError(t, env.groups.RemoveMember(ctx, admin.ID, group.ID, member.ID))
	require.NoError(t, env.groups.RemoveMember(ctx, owner.ID, group.ID, other.ID))

	requireKind(t, env.groups.RemoveMember(ctx, owner.ID, group.ID, member.ID), KindMemberNotFound)

	members, err := env.groups.Members(ctx, owner.ID, group.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
}

func TestLeaveAndTransferOwnership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.register(t, "Olivia")
	member := env.register(t, "Mia")
	group := env.groupWith(t, owner, map[*models.User]models.GroupRole{member: models.RoleMember})

	requireKind(t, env.groups.Leave(ctx, owner.ID, group.ID), KindOwnerConstraintViolation)
	requireKind(t, env.groups.TransferOwnership(ctx, member.ID, group.ID, owner.ID), KindNotAuthorized)

	require.NoError(t, env.groups.TransferOwnership(ctx, owner.ID, group.ID, member.ID))

	role, err := env.groups.MemberRole(ctx, group.ID, member.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleOwner, role)
	role, err = env.groups.MemberRole(ctx, group.ID, owner.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, role)

	var owners int64
	require.NoError(t, env.db.Model(&models.GroupMember{}).
		Where("group_id = ? AND role = ?", group.ID, models.RoleOwner).Count(&owners).Error)
	require.EqualValues(t, 1, owners)

	require.NoError(t, env.groups.Leave(ctx, owner.ID, group.ID))
	_, err = env.groups.Get(ctx, owner.ID, group.ID)
	requireKind(t, err, KindNotAMember)
}
