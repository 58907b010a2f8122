package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/taskhub/internal/database/testutil"
	"github.com/charlesng35/taskhub/internal/models"
	"github.com/charlesng35/taskhub/internal/tokens"
	"github.com/charlesng35/taskhub/pkg/mail"
)

type taskFixture struct {
	env    *testEnv
	owner  *models.User
	admin  *models.User
	member *models.User
	group  *models.Group
	task   *models.Task
}

func newTaskFixture(t *testing.T, policy models.CompletionPolicy, dbOpts ...testutil.TestDBOption) *taskFixture {
	t.Helper()
	env := newTestEnv(t, dbOpts...)
	owner := env.register(t, "Olivia")
	admin := env.register(t, "Adam")
	member := env.register(t, "Mia")
	group := env.groupWith(t, owner, map[*models.User]models.GroupRole{
		admin:  models.RoleAdmin,
		member: models.RoleMember,
	})
	task, err := env.tasks.CreateTask(context.Background(), owner.ID, CreateTaskInput{
		Title:            "Ship release",
		GroupID:          group.ID,
		CompletionPolicy: policy,
	})
	require.NoError(t, err)
	return &taskFixture{env: env, owner: owner, admin: admin, member: member, group: group, task: task}
}

func (f *taskFixture) accept(t *testing.T, ref ItemRef, user *models.User) {
	t.Helper()
	_, err := f.env.tasks.Assign(context.Background(), f.owner.ID, ref, user.ID)
	require.NoError(t, err)
	_, err = f.env.tasks.Respond(context.Background(), user.ID, ref, models.AssigneeAccepted)
	require.NoError(t, err)
}

func TestCreateTaskDefaultsAndMembership(t *testing.T) {
	f := newTaskFixture(t, "")
	ctx := context.Background()
	require.Equal(t, models.TaskOpen, f.task.Status)
	require.Equal(t, models.PolicyAllAssignees, f.task.CompletionPolicy)

	outsider := f.env.register(t, "Otto")
	_, err := f.env.tasks.CreateTask(ctx, outsider.ID, CreateTaskInput{Title: "Sneak", GroupID: f.group.ID})
	requireKind(t, err, KindNotAMember)

	_, err = f.env.tasks.CreateTask(ctx, outsider.ID, CreateTaskInput{Title: "  "})
	requireKind(t, err, KindInvalidInput)

	_, err = f.env.tasks.CreateTask(ctx, outsider.ID, CreateTaskInput{Title: "Odd", CompletionPolicy: "MAJORITY"})
	requireKind(t, err, KindInvalidInput)

	personal, err := f.env.tasks.CreateTask(ctx, outsider.ID, CreateTaskInput{Title: "Groceries"})
	require.NoError(t, err)
	require.Nil(t, personal.GroupID)
}

func TestTaskVisibility(t *testing.T) {
	f := newTaskFixture(t, models.PolicyAllAssignees)
	ctx := context.Background()
	outsider := f.env.register(t, "Otto")

	got, err := f.env.tasks.GetTask(ctx, f.member.ID, f.task.ID)
	require.NoError(t, err)
	require.Equal(t, f.task.ID, got.ID)

	_, err = f.env.tasks.GetTask(ctx, outsider.ID, f.task.ID)
	requireKind(t, err, KindTaskNotFound)

	list, err := f.env.tasks.ListTasks(ctx, f.member.ID, TaskFilters{})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = f.env.tasks.ListTasks(ctx, outsider.ID, TaskFilters{})
	require.NoError(t, err)
	require.Empty(t, list)

	list, err = f.env.tasks.ListTasks(ctx, f.owner.ID, TaskFilters{Status: models.TaskClosed})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestAssignSendsDecisionLinks(t *testing.T) {
	f := newTaskFixture(t, models.PolicyAllAssignees)
	ctx := context.Background()

	assignment, err := f.env.tasks.Assign(ctx, f.admin.ID, TaskRef(f.task.ID), f.member.ID)
	require.NoError(t, err)
	require.Equal(t, models.AssigneePending, assignment.Status)
	require.Equal(t, f.admin.ID, assignment.AssignedByID)

	note := f.env.notifier.last(t, mail.KindTaskAssignment)
	require.Equal(t, f.member.Email, note.Recipient)
	require.Equal(t, "Ship release", note.Context["task"])
	require.Equal(t, "Adam", note.Context["assigner"])

	acceptToken, acceptStatus := decisionLink(t, note.Context["accept_link"])
	rejectToken, rejectStatus := decisionLink(t, note.Context["reject_link"])
	require.Equal(t, "ACCEPTED", acceptStatus)
	require.Equal(t, "REJECTED", rejectStatus)
	require.Equal(t, acceptToken, rejectToken)

	id, _, err := tokens.DecodeOpaque(acceptToken)
	require.NoError(t, err)
	var row models.ActionToken
	require.NoError(t, f.env.db.First(&row, "id = ?", id).Error)
	require.Equal(t, tokens.TaskAssignmentSubject(f.task.ID, f.member.ID), row.SubjectKey)
	require.Equal(t, f.task.ID, row.Payload.Data().TaskID)

	_, err = f.env.tasks.Assign(ctx, f.admin.ID, TaskRef(f.task.ID), f.member.ID)
	requireKind(t, err, KindAlreadyAssigned)
}

func TestAssignAuthorization(t *testing.T) {
	f := newTaskFixture(t, models.PolicyAllAssignees)
	ctx := context.Background()
	outsider := f.env.register(t, "Otto")

	_, err := f.env.tasks.Assign(ctx, f.member.ID, TaskRef(f.task.ID), f.admin.ID)
	requireKind(t, err, KindNotAuthorized)

	_, err = f.env.tasks.Assign(ctx, f.owner.ID, TaskRef(f.task.ID), outsider.ID)
	requireKind(t, err, KindMemberNotFound)

	_, err = f.env.tasks.Assign(ctx, f.owner.ID, TaskRef(f.task.ID), "00000000-0000-0000-0000-000000000000")
	requireKind(t, err, KindUserNotFound)

	_, err = f.env.tasks.Assign(ctx, f.owner.ID, TaskRef("00000000-0000-0000-0000-000000000000"), f.member.ID)
	requireKind(t, err, KindTaskNotFound)
}

func TestSelfAssignIsAcceptedWithoutMail(t *testing.T) {
	f := newTaskFixture(t, models.PolicyAllAssignees)

	assignment, err := f.env.tasks.Assign(context.Background(), f.admin.ID, TaskRef(f.task.ID), f.admin.ID)
	require.NoError(t, err)
	require.Equal(t, models.AssigneeAccepted, assignment.Status)
	require.NotNil(t, assignment.RespondedAt)
	require.Zero(t, f.env.notifier.count(mail.KindTaskAssignment))

	var count int64
	require.NoError(t, f.env.db.Model(&models.ActionToken{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestPersonalTaskAssignsOnlyOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.register(t, "Olivia")
	friend := env.register(t, "Fred")

	task, err := env.tasks.CreateTask(ctx, owner.ID, CreateTaskInput{Title: "Groceries"})
	require.NoError(t, err)

	_, err = env.tasks.Assign(ctx, owner.ID, TaskRef(task.ID), friend.ID)
	requireKind(t, err, KindInvalidInput)
	_, err = env.tasks.Assign(ctx, friend.ID, TaskRef(task.ID), friend.ID)
	requireKind(t, err, KindNotAuthorized)

	_, err = env.tasks.Assign(ctx, owner.ID, TaskRef(task.ID), owner.ID)
	require.NoError(t, err)
	_, err = env.tasks.Complete(ctx, owner.ID, TaskRef(task.ID))
	require.NoError(t, err)
	_, err = env.tasks.Close(ctx, owner.ID, TaskRef(task.ID), CloseInput{})
	require.NoError(t, err)
}

func TestRespondAndReassignAfterRejection(t *testing.T) {
	f := newTaskFixture(t, models.PolicyAllAssignees)
	ctx := context.Background()
	ref := TaskRef(f.task.ID)

	_, err := f.env.tasks.Assign(ctx, f.owner.ID, ref, f.member.ID)
	require.NoError(t, err)
	oldToken, _ := decisionLink(t, f.env.notifier.last(t, mail.KindTaskAssignment).Context["reject_link"])

	rejected, err := f.env.tasks.Respond(ctx, f.member.ID, ref, models.AssigneeRejected)
	require.NoError(t, err)
	require.Equal(t, models.AssigneeRejected, rejected.Status)

	decision := f.env.notifier.last(t, mail.KindAssignmentDecision)
	require.Equal(t, f.owner.Email, decision.Recipient)
	require.Equal(t, "rejected", decision.Context["decision"])

	_, err = f.env.responses.Decide(ctx, oldToken, "ACCEPTED")
	requireKind(t, err, KindInvalidToken)

	_, err = f.env.tasks.Respond(ctx, f.member.ID, ref, models.AssigneeAccepted)
	requireKind(t, err, KindInvalidAssignmentTransition)

	again, err := f.env.tasks.Assign(ctx, f.owner.ID, ref, f.member.ID)
	require.NoError(t, err)
	require.Equal(t, models.AssigneePending, again.Status)
	require.Equal(t, rejected.ID, again.ID)

	_, err = f.env.tasks.Respond(ctx, f.admin.ID, ref, models.AssigneeAccepted)
	requireKind(t, err, KindAssignmentNotFound)
}

func TestCompleteRequiresAcceptance(t *testing.T) {
	f := newTaskFixture(t, models.PolicyAllAssignees)
	ctx := context.Background()
	ref := TaskRef(f.task.ID)

	_, err := f.env.tasks.Assign(ctx, f.owner.ID, ref, f.member.ID)
	require.NoError(t, err)

	_, err = f.env.tasks.Complete(ctx, f.member.ID, ref)
	requireKind(t, err, KindInvalidAssignmentTransition)

	_, err = f.env.tasks.Respond(ctx, f.member.ID, ref, models.AssigneeAccepted)
	require.NoError(t, err)
	done, err := f.env.tasks.Complete(ctx, f.member.ID, ref)
	require.NoError(t, err)
	require.Equal(t, models.AssigneeCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	_, err = f.env.tasks.Complete(ctx, f.member.ID, ref)
	requireKind(t, err, KindInvalidAssignmentTransition)
}

func TestCloseAllAssigneesPolicy(t *testing.T) {
	f := newTaskFixture(t, models.PolicyAllAssignees)
	ctx := context.Background()
	ref := TaskRef(f.task.ID)

	f.accept(t, ref, f.member)
	f.accept(t, ref, f.admin)
	_, err := f.env.tasks.Complete(ctx, f.member.ID, ref)
	require.NoError(t, err)

	_, err = f.env.tasks.Close(ctx, f.owner.ID, ref, CloseInput{})
	requireKind(t, err, KindCompletionPolicyUnmet)

	_, err = f.env.tasks.Close(ctx, f.owner.ID, ref, CloseInput{Force: true, Reason: "  "})
	requireKind(t, err, KindForceCloseReasonRequired)

	_, err = f.env.tasks.Close(ctx, f.member.ID, ref, CloseInput{Force: true, Reason: "done enough"})
	requireKind(t, err, KindNotAuthorized)

	closure, err := f.env.tasks.Close(ctx, f.admin.ID, ref, CloseInput{Force: true, Reason: "deadline"})
	require.NoError(t, err)
	require.Equal(t, models.TaskClosed, closure.Status)
	require.True(t, closure.ClosedWithOpenAssignees)
	require.Equal(t, "deadline", closure.ClosedReason)

	var stored models.Task
	require.NoError(t, f.env.db.First(&stored, "id = ?", f.task.ID).Error)
	require.Equal(t, models.TaskClosed, stored.Status)
	require.True(t, stored.ClosedWithOpenAssignees)
	require.NotNil(t, stored.ClosedAt)
	require.Equal(t, f.admin.ID, *stored.ClosedByID)

	_, err = f.env.tasks.Close(ctx, f.admin.ID, ref, CloseInput{Force: true, Reason: "again"})
	requireKind(t, err, KindInvalidTaskTransition)
	_, err = f.env.tasks.Assign(ctx, f.owner.ID, ref, f.owner.ID)
	requireKind(t, err, KindInvalidTaskTransition)
}

func TestCloseAnyAssigneePolicy(t *testing.T) {
	f := newTaskFixture(t, models.PolicyAnyAssignee)
	ctx := context.Background()
	ref := TaskRef(f.task.ID)

	f.accept(t, ref, f.member)
	_, err := f.env.tasks.Assign(ctx, f.owner.ID, ref, f.admin.ID)
	require.NoError(t, err)

	_, err = f.env.tasks.Close(ctx, f.owner.ID, ref, CloseInput{})
	requireKind(t, err, KindCompletionPolicyUnmet)

	_, err = f.env.tasks.Complete(ctx, f.member.ID, ref)
	require.NoError(t, err)

	closure, err := f.env.tasks.Close(ctx, f.owner.ID, ref, CloseInput{})
	require.NoError(t, err)
	require.False(t, closure.ClosedWithOpenAssignees)
	require.Empty(t, closure.ClosedReason)
}

func TestArchiveFreezesTaskAndSubTasks(t *testing.T) {
	f := newTaskFixture(t, models.PolicyAllAssignees)
	ctx := context.Background()
	ref := TaskRef(f.task.ID)

	sub, err := f.env.tasks.AddSubTask(ctx, f.owner.ID, f.task.ID, CreateSubTaskInput{Title: "Write notes"})
	require.NoError(t, err)

	requireKind(t, f.env.tasks.Archive(ctx, f.owner.ID, ref), KindInvalidTaskTransition)

	_, err = f.env.tasks.Close(ctx, f.owner.ID, ref, CloseInput{})
	require.NoError(t, err)
	_, err = f.env.tasks.AddSubTask(ctx, f.owner.ID, f.task.ID, CreateSubTaskInput{Title: "Late"})
	requireKind(t, err, KindInvalidTaskTransition)

	requireKind(t, f.env.tasks.Archive(ctx, f.member.ID, ref), KindNotAuthorized)
	require.NoError(t, f.env.tasks.Archive(ctx, f.owner.ID, ref))
	requireKind(t, f.env.tasks.Archive(ctx, f.owner.ID, ref), KindInvalidTaskTransition)

	_, err = f.env.tasks.Assign(ctx, f.owner.ID, SubTaskRef(sub.ID), f.member.ID)
	requireKind(t, err, KindInvalidTaskTransition)
	_, err = f.env.tasks.Close(ctx, f.owner.ID, SubTaskRef(sub.ID), CloseInput{})
	requireKind(t, err, KindInvalidTaskTransition)

	var stored models.Task
	require.NoError(t, f.env.db.First(&stored, "id = ?", f.task.ID).Error)
	require.Equal(t, models.TaskArchived, stored.Status)
	require.NotNil(t, stored.ArchivedAt)
}

func TestSubTaskLifecycle(t *testing.T) {
	f := newTaskFixture(t, models.PolicyAllAssignees)
	ctx := context.Background()

	_, err := f.env.tasks.AddSubTask(ctx, f.member.ID, f.task.ID, CreateSubTaskInput{Title: "Nope"})
	requireKind(t, err, KindNotAuthorized)

	sub, err := f.env.tasks.AddSubTask(ctx, f.admin.ID, f.task.ID, CreateSubTaskInput{Title: "Changelog"})
	require.NoError(t, err)
	ref := SubTaskRef(sub.ID)

	_, err = f.env.tasks.Assign(ctx, f.owner.ID, ref, f.member.ID)
	require.NoError(t, err)

	token, _ := decisionLink(t, f.env.notifier.last(t, mail.KindTaskAssignment).Context["accept_link"])
	id, _, err := tokens.DecodeOpaque(token)
	require.NoError(t, err)
	var row models.ActionToken
	require.NoError(t, f.env.db.First(&row, "id = ?", id).Error)
	require.Equal(t, tokens.SubTaskAssignmentSubject(sub.ID, f.member.ID), row.SubjectKey)
	require.Equal(t, sub.ID, row.Payload.Data().SubTaskID)

	assignment, err := f.env.responses.Decide(ctx, token, "ACCEPTED")
	require.NoError(t, err)
	require.Equal(t, KindSubTask, assignment.ItemKind)

	_, err = f.env.tasks.Complete(ctx, f.member.ID, ref)
	require.NoError(t, err)
	closure, err := f.env.tasks.Close(ctx, f.owner.ID, ref, CloseInput{})
	require.NoError(t, err)
	require.Equal(t, models.TaskClosed, closure.Status)

	got, err := f.env.tasks.GetTask(ctx, f.member.ID, f.task.ID)
	require.NoError(t, err)
	require.Len(t, got.SubTasks, 1)
	require.Equal(t, models.TaskClosed, got.SubTasks[0].Status)
	require.Len(t, got.SubTasks[0].Assignees, 1)
}
