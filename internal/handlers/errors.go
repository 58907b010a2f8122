package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/taskhub/internal/services"
	appErrors "github.com/charlesng35/taskhub/pkg/errors"
	"github.com/charlesng35/taskhub/pkg/logger"
	"github.com/charlesng35/taskhub/pkg/response"
	appValidator "github.com/charlesng35/taskhub/pkg/validator"
)

// appErrorFor maps a domain error kind to its API representation. Every kind
// has exactly one case; an unknown kind is a programming error and renders as 500.
func appErrorFor(de *services.DomainError) *appErrors.AppError {
	msg := de.Error()
	switch de.Kind {
	case services.KindInvalidToken:
		return appErrors.New("INVALID_TOKEN", msg, http.StatusBadRequest)
	case services.KindAlreadyMember:
		return appErrors.New("ALREADY_MEMBER", msg, http.StatusConflict)
	case services.KindCannotInviteSelf:
		return appErrors.New("CANNOT_INVITE_SELF", msg, http.StatusBadRequest)
	case services.KindUserNotFound:
		return appErrors.New("USER_NOT_FOUND", msg, http.StatusNotFound)
	case services.KindNotAuthorized:
		return appErrors.New("NOT_AUTHORIZED", msg, http.StatusForbidden)
	case services.KindOwnerConstraintViolation:
		return appErrors.New("OWNER_CONSTRAINT_VIOLATION", msg, http.StatusConflict)
	case services.KindInvalidAssignmentTransition:
		return appErrors.New("INVALID_ASSIGNMENT_TRANSITION", msg, http.StatusConflict)
	case services.KindForceCloseReasonRequired:
		return appErrors.New("FORCE_CLOSE_REASON_REQUIRED", msg, http.StatusUnprocessableEntity)
	case services.KindTaskNotFound:
		return appErrors.New("TASK_NOT_FOUND", msg, http.StatusNotFound)
	case services.KindGroupNotFound:
		return appErrors.New("GROUP_NOT_FOUND", msg, http.StatusNotFound)
	case services.KindMemberNotFound:
		return appErrors.New("MEMBER_NOT_FOUND", msg, http.StatusNotFound)
	case services.KindNotAMember:
		return appErrors.New("NOT_A_MEMBER", msg, http.StatusForbidden)
	case services.KindCompletionPolicyUnmet:
		return appErrors.New("COMPLETION_POLICY_UNMET", msg, http.StatusConflict)
	case services.KindInvalidTaskTransition:
		return appErrors.New("INVALID_TASK_TRANSITION", msg, http.StatusConflict)
	case services.KindAlreadyAssigned:
		return appErrors.New("ALREADY_ASSIGNED", msg, http.StatusConflict)
	case services.KindAssignmentNotFound:
		return appErrors.New("ASSIGNMENT_NOT_FOUND", msg, http.StatusNotFound)
	case services.KindInvalidInput:
		var ve appValidator.ValidationErrors
		if errors.As(de.Err, &ve) {
			msg = formatValidationError(ve)
		}
		return appErrors.NewBadRequest(msg)
	case services.KindInvalidCredentials:
		return appErrors.ErrInvalidCredentials
	case services.KindEmailTaken:
		return appErrors.New("EMAIL_TAKEN", msg, http.StatusConflict)
	}
	return appErrors.ErrInternalServer.WithInternal(de)
}

// writeServiceError renders err. Anything outside the domain taxonomy is an
// infrastructure failure: it is logged and surfaces as an opaque 500.
func writeServiceError(c *gin.Context, err error) {
	var de *services.DomainError
	if errors.As(err, &de) {
		appErr := appErrorFor(de)
		if appErr.StatusCode >= http.StatusInternalServerError {
			logger.WithModule("http").Error("unmapped domain error", zap.String("kind", de.Kind.String()))
		}
		response.Error(c, appErr)
		return
	}

	logger.WithModule("http").Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("route", c.FullPath()),
		zap.Error(err),
	)
	response.Error(c, appErrors.ErrInternalServer)
}
