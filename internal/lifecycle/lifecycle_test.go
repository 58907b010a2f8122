package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/taskhub/internal/models"
)

var (
	pending   = models.AssigneePending
	accepted  = models.AssigneeAccepted
	rejected  = models.AssigneeRejected
	completed = models.AssigneeCompleted
)

func TestCanCloseAllAssigneesPolicy(t *testing.T) {
	req := CloseRequest{
		Status:    models.TaskOpen,
		Policy:    models.PolicyAllAssignees,
		Assignees: []models.AssigneeStatus{completed, accepted},
	}

	_, err := CanClose(req)
	require.ErrorIs(t, err, ErrCompletionPolicyUnmet)

	req.Force = true
	_, err = CanClose(req)
	require.ErrorIs(t, err, ErrForceCloseReasonRequired)

	req.Reason = "   "
	_, err = CanClose(req)
	require.ErrorIs(t, err, ErrForceCloseReasonRequired)

	req.Reason = "deadline passed"
	out, err := CanClose(req)
	require.NoError(t, err)
	require.True(t, out.Forced)
	require.True(t, out.WithOpenAssignees)
	require.Equal(t, "deadline passed", out.Reason)
}

func TestCanCloseWhenPolicySatisfied(t *testing.T) {
	out, err := CanClose(CloseRequest{
		Status:    models.TaskOpen,
		Policy:    models.PolicyAllAssignees,
		Assignees: []models.AssigneeStatus{completed, completed},
	})
	require.NoError(t, err)
	require.False(t, out.Forced)
	require.False(t, out.WithOpenAssignees)

	out, err = CanClose(CloseRequest{Status: models.TaskOpen, Policy: models.PolicyAllAssignees})
	require.NoError(t, err)
	require.False(t, out.WithOpenAssignees)
}

func TestForceCloseWithAllCompletedIsNotFlagged(t *testing.T) {
	out, err := CanClose(CloseRequest{
		Status:    models.TaskOpen,
		Policy:    models.PolicyAllAssignees,
		Assignees: []models.AssigneeStatus{completed},
		Force:     true,
	})
	require.NoError(t, err)
	require.True(t, out.Forced)
	require.False(t, out.WithOpenAssignees)
}

func TestCanCloseAnyAssigneePolicy(t *testing.T) {
	_, err := CanClose(CloseRequest{
		Status:    models.TaskOpen,
		Policy:    models.PolicyAnyAssignee,
		Assignees: []models.AssigneeStatus{pending, completed},
	})
	require.NoError(t, err)

	_, err = CanClose(CloseRequest{
		Status:    models.TaskOpen,
		Policy:    models.PolicyAnyAssignee,
		Assignees: []models.AssigneeStatus{pending, accepted},
	})
	require.ErrorIs(t, err, ErrCompletionPolicyUnmet)
}

func TestRejectedAssigneesBlockAllAssigneesClose(t *testing.T) {
	_, err := CanClose(CloseRequest{
		Status:    models.TaskOpen,
		Policy:    models.PolicyAllAssignees,
		Assignees: []models.AssigneeStatus{completed, rejected},
	})
	require.ErrorIs(t, err, ErrCompletionPolicyUnmet)
}

func TestCanCloseRequiresOpen(t *testing.T) {
	for _, status := range []models.TaskStatus{models.TaskClosed, models.TaskArchived} {
		_, err := CanClose(CloseRequest{Status: status, Force: true, Reason: "x"})
		require.ErrorIs(t, err, ErrInvalidTaskTransition)
	}
}

func TestArchive(t *testing.T) {
	next, err := Archive(models.TaskClosed)
	require.NoError(t, err)
	require.Equal(t, models.TaskArchived, next)

	_, err = Archive(models.TaskOpen)
	require.ErrorIs(t, err, ErrInvalidTaskTransition)
	_, err = Archive(models.TaskArchived)
	require.ErrorIs(t, err, ErrInvalidTaskTransition)

	require.NoError(t, EnsureOpen(models.TaskOpen))
	require.ErrorIs(t, EnsureOpen(models.TaskArchived), ErrInvalidTaskTransition)
}

func TestApplyAssignmentDecision(t *testing.T) {
	next, err := ApplyAssignmentDecision(pending, accepted)
	require.NoError(t, err)
	require.Equal(t, accepted, next)

	next, err = ApplyAssignmentDecision(pending, rejected)
	require.NoError(t, err)
	require.Equal(t, rejected, next)

	for _, current := range []models.AssigneeStatus{accepted, rejected, completed} {
		for _, decision := range []models.AssigneeStatus{accepted, rejected} {
			_, err := ApplyAssignmentDecision(current, decision)
			require.ErrorIs(t, err, ErrInvalidAssignmentTransition, "%s -> %s", current, decision)
		}
	}

	_, err = ApplyAssignmentDecision(pending, completed)
	require.ErrorIs(t, err, ErrInvalidAssignmentTransition)
}

func TestCompleteAndReassign(t *testing.T) {
	next, err := Complete(accepted)
	require.NoError(t, err)
	require.Equal(t, completed, next)

	_, err = Complete(pending)
	require.ErrorIs(t, err, ErrInvalidAssignmentTransition)

	next, err = Reassign(rejected)
	require.NoError(t, err)
	require.Equal(t, pending, next)

	_, err = Reassign(accepted)
	require.ErrorIs(t, err, ErrAssignmentActive)
}

func TestParseDecision(t *testing.T) {
	d, ok := ParseDecision("accepted")
	require.True(t, ok)
	require.Equal(t, accepted, d)

	d, ok = ParseDecision(" REJECTED ")
	require.True(t, ok)
	require.Equal(t, rejected, d)

	_, ok = ParseDecision("COMPLETED")
	require.False(t, ok)
}
