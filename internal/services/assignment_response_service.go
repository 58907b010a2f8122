package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/charlesng35/taskhub/internal/lifecycle"
	"github.com/charlesng35/taskhub/internal/models"
	"github.com/charlesng35/taskhub/internal/tokens"
)

// AssignmentResponseService applies accept/reject decisions arriving through
// emailed TASK_ASSIGNMENT links. The link itself is the credential.
type AssignmentResponseService struct {
	tasks *TaskService
}

func NewAssignmentResponseService(tasks *TaskService) (*AssignmentResponseService, error) {
	if tasks == nil {
		return nil, errors.New("assignment response service: task service is required")
	}
	return &AssignmentResponseService{tasks: tasks}, nil
}

// DecisionPreview describes what applying an emailed decision link would do.
type DecisionPreview struct {
	ItemKind      ItemKind              `json:"item_kind"`
	ItemID        string                `json:"item_id"`
	Title         string                `json:"title"`
	CurrentStatus models.AssigneeStatus `json:"current_status"`
	Decision      models.AssigneeStatus `json:"decision"`
}

// Preview checks a decision link without consuming it or touching the
// assignment, so link scanners that fetch it cannot burn the token.
func (s *AssignmentResponseService) Preview(ctx context.Context, opaque, status string) (*DecisionPreview, error) {
	ctx = ensureContext(ctx)

	decision, ok := lifecycle.ParseDecision(status)
	if !ok {
		return nil, invalidInputf("status must be ACCEPTED or REJECTED")
	}
	tokenID, secret, err := tokens.DecodeOpaque(opaque)
	if err != nil {
		return nil, ErrInvalidToken
	}

	var preview *DecisionPreview
	err = s.tasks.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		row, err := s.tasks.store.Authenticate(tx, models.TokenTaskAssignment, tokenID, secret)
		if err != nil {
			return err
		}
		ref, ok := refFromPayload(row.Payload.Data())
		if !ok || row.UserID == nil {
			return tokens.ErrInvalidToken
		}

		item, err := loadItem(tx, ref)
		if err != nil {
			return err
		}
		if err := item.ensureMutable(); err != nil {
			return err
		}
		assignment, err := item.assignment(tx, *row.UserID)
		if err != nil {
			return err
		}
		if _, err := lifecycle.ApplyAssignmentDecision(assignment.Status, decision); err != nil {
			return err
		}
		preview = &DecisionPreview{
			ItemKind:      ref.Kind,
			ItemID:        ref.ID,
			Title:         item.title(),
			CurrentStatus: assignment.Status,
			Decision:      decision,
		}
		return nil
	})
	if err != nil {
		return nil, translate(err)
	}
	return preview, nil
}

// Decide verifies the opaque token, applies status to the bound assignment and
// consumes the token, all in one transaction.
func (s *AssignmentResponseService) Decide(ctx context.Context, opaque, status string) (*Assignment, error) {
	ctx = ensureContext(ctx)

	decision, ok := lifecycle.ParseDecision(status)
	if !ok {
		return nil, invalidInputf("status must be ACCEPTED or REJECTED")
	}
	tokenID, secret, err := tokens.DecodeOpaque(opaque)
	if err != nil {
		recordRedemption(models.TokenTaskAssignment, ErrInvalidToken)
		return nil, ErrInvalidToken
	}

	var (
		assignment *Assignment
		item       *workItem
	)
	err = s.tasks.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		row, err := s.tasks.store.Authenticate(tx, models.TokenTaskAssignment, tokenID, secret)
		if err != nil {
			return err
		}
		ref, ok := refFromPayload(row.Payload.Data())
		if !ok || row.UserID == nil {
			return tokens.ErrInvalidToken
		}
		assigneeID := *row.UserID

		if item, err = loadItem(tx, ref); err != nil {
			return err
		}
		if assignment, err = s.tasks.applyDecision(tx, item, assigneeID, decision); err != nil {
			return err
		}
		return s.tasks.store.ConsumeOnce(tx, row.ID, tokens.ForUser(assigneeID))
	})
	err = translate(err)
	recordRedemption(models.TokenTaskAssignment, err)
	if err != nil {
		return nil, err
	}

	s.tasks.afterDecision(ctx, item, assignment)
	return assignment, nil
}
