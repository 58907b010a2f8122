package tokens

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charlesng35/taskhub/internal/models"
)

// ResetPasswordSubject identifies the single outstanding reset token of a user.
func ResetPasswordSubject(userID string) string {
	return fmt.Sprintf("%s:user:%s", models.TokenResetPassword, userID)
}

// GroupInviteSubject identifies the single outstanding invite of an email to a group.
func GroupInviteSubject(groupID, email string) string {
	return fmt.Sprintf("%s:group:%s|email:%s", models.TokenGroupInvite, groupID, NormalizeEmail(email))
}

// TaskAssignmentSubject identifies the emailed response link of one task assignment.
func TaskAssignmentSubject(taskID, assigneeID string) string {
	return fmt.Sprintf("%s:task:%s|assignee:%s", models.TokenTaskAssignment, taskID, assigneeID)
}

// SubTaskAssignmentSubject is the sub-task counterpart of TaskAssignmentSubject.
func SubTaskAssignmentSubject(subTaskID, assigneeID string) string {
	return fmt.Sprintf("%s:subtask:%s|assignee:%s", models.TokenTaskAssignment, subTaskID, assigneeID)
}

// NormalizeEmail lower-cases and trims an address so subjects are stable.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var errMalformedOpaque = errors.New("tokens: malformed opaque token")

// EncodeOpaque joins a token id and raw secret into a single link parameter.
func EncodeOpaque(id, secret string) string {
	return id + "." + secret
}

// DecodeOpaque splits a value produced by EncodeOpaque.
func DecodeOpaque(value string) (id, secret string, err error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(value), ".")
	if !ok || id == "" || secret == "" {
		return "", "", errMalformedOpaque
	}
	return id, secret, nil
}
