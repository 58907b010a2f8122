package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/taskhub/internal/database"
	"github.com/charlesng35/taskhub/internal/models"
	"github.com/charlesng35/taskhub/internal/permissions"
	"github.com/charlesng35/taskhub/pkg/logger"
	"github.com/charlesng35/taskhub/pkg/metrics"
	"github.com/charlesng35/taskhub/pkg/validator"
)

// CreateGroupInput describes a new group.
type CreateGroupInput struct {
	Name        string `validate:"required,notblank,max=120"`
	Description string `validate:"max=2000"`
}

// GroupOption customises GroupService behaviour.
type GroupOption func(*GroupService)

// WithGroupClock overrides the time source used for membership timestamps.
func WithGroupClock(clock func() time.Time) GroupOption {
	return func(s *GroupService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// GroupService manages groups and the membership role matrix.
type GroupService struct {
	uow   database.UnitOfWork
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
	log   *zap.Logger
}

// NewGroupService constructs a GroupService.
func NewGroupService(db *gorm.DB, audit *AuditService, opts ...GroupOption) (*GroupService, error) {
	if db == nil {
		return nil, errors.New("group service: db is required")
	}
	svc := &GroupService{
		uow:   database.NewTransactor(db),
		db:    db,
		audit: audit,
		now:   utcNow,
		log:   logger.WithModule("groups"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create makes a group with actorID as its sole OWNER.
func (s *GroupService) Create(ctx context.Context, actorID string, input CreateGroupInput) (*models.Group, error) {
	ctx = ensureContext(ctx)

	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	if err := validator.ValidateStruct(input); err != nil {
		return nil, invalidInput(err)
	}

	group := &models.Group{
		Name:        input.Name,
		Description: input.Description,
		CreatedByID: actorID,
	}

	err := s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		if _, err := findUser(tx, "id = ?", actorID); err != nil {
			return err
		}

		groupSlug, err := uniqueSlug(tx, input.Name)
		if err != nil {
			return err
		}
		group.Slug = groupSlug

		if err := tx.Create(group).Error; err != nil {
			return fmt.Errorf("create group: %w", err)
		}
		return tx.Create(&models.GroupMember{
			GroupID:  group.ID,
			UserID:   actorID,
			Role:     models.RoleOwner,
			JoinedAt: s.now(),
		}).Error
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    actorID,
		Action:     "group.create",
		Resource:   "group",
		ResourceID: group.ID,
		Result:     "success",
	})
	return group, nil
}

func uniqueSlug(tx *gorm.DB, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		base = "group"
	}
	candidate := base
	for attempt := 0; attempt < 5; attempt++ {
		var count int64
		if err := tx.Model(&models.Group{}).Where("slug = ?", candidate).Count(&count).Error; err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if count == 0 {
			return candidate, nil
		}
		candidate = base + "-" + uuid.NewString()[:8]
	}
	return "", errors.New("group service: could not allocate slug")
}

// Get returns a group visible to actorID.
func (s *GroupService) Get(ctx context.Context, actorID, groupID string) (*models.Group, error) {
	ctx = ensureContext(ctx)
	tx := s.db.WithContext(ctx)

	group, err := loadGroup(tx, groupID)
	if err != nil {
		return nil, err
	}
	ok, err := isMember(tx, groupID, actorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAMember
	}
	return group, nil
}

// ListForUser returns the groups userID belongs to.
func (s *GroupService) ListForUser(ctx context.Context, userID string) ([]models.Group, error) {
	ctx = ensureContext(ctx)

	tx := s.db.WithContext(ctx)
	memberships := tx.Model(&models.GroupMember{}).Select("group_id").Where("user_id = ?", userID)

	var groups []models.Group
	err := tx.Where("id IN (?)", memberships).Order("name ASC").Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("group service: list groups: %w", err)
	}
	return groups, nil
}

// Members lists a group's members for a member of that group.
func (s *GroupService) Members(ctx context.Context, actorID, groupID string) ([]models.GroupMember, error) {
	ctx = ensureContext(ctx)
	tx := s.db.WithContext(ctx)

	if _, err := s.Get(ctx, actorID, groupID); err != nil {
		return nil, err
	}

	var members []models.GroupMember
	if err := tx.Preload("User").
		Where("group_id = ?", groupID).
		Order("joined_at ASC").
		Find(&members).Error; err != nil {
		return nil, fmt.Errorf("group service: list members: %w", err)
	}
	return members, nil
}

// MemberRole reports userID's role in groupID.
func (s *GroupService) MemberRole(ctx context.Context, groupID, userID string) (models.GroupRole, error) {
	ctx = ensureContext(ctx)
	return actorRole(s.db.WithContext(ctx), groupID, userID)
}

// UpdateMemberRole changes targetID's role. OWNER cannot be granted or taken
// away here; see TransferOwnership.
func (s *GroupService) UpdateMemberRole(ctx context.Context, actorID, groupID, targetID string, role models.GroupRole) (*models.GroupMember, error) {
	ctx = ensureContext(ctx)

	if !role.Valid() {
		return nil, invalidInputf("unknown role %q", role)
	}
	if role == models.RoleOwner {
		return nil, ErrOwnerConstraintViolation
	}

	var updated models.GroupMember
	err := s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		actor, err := actorRole(tx, groupID, actorID)
		if err != nil {
			return err
		}
		target, err := targetMember(tx, groupID, targetID)
		if err != nil {
			return err
		}
		if target.Role == models.RoleOwner {
			return ErrOwnerConstraintViolation
		}
		if !s.decide(permissions.ActionUpdateRole, permissions.CanUpdateRole(actor, target.Role)) {
			return notAuthorized(permissions.ActionUpdateRole, actor, target.Role)
		}

		if err := tx.Model(&models.GroupMember{}).
			Where("group_id = ? AND user_id = ?", groupID, targetID).
			Update("role", role).Error; err != nil {
			return fmt.Errorf("update role: %w", err)
		}
		target.Role = role
		updated = target
		return nil
	})
	if err != nil {
		s.logDenied(err, actorID, groupID)
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    actorID,
		Action:     "group.member.update_role",
		Resource:   "group",
		ResourceID: groupID,
		Result:     "success",
		Metadata:   map[string]any{"target_id": targetID, "role": string(role)},
	})
	return &updated, nil
}

// RemoveMember deletes targetID's membership.
func (s *GroupService) RemoveMember(ctx context.Context, actorID, groupID, targetID string) error {
	ctx = ensureContext(ctx)

	err := s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		actor, err := actorRole(tx, groupID, actorID)
		if err != nil {
			return err
		}
		target, err := targetMember(tx, groupID, targetID)
		if err != nil {
			return err
		}
		if target.Role == models.RoleOwner {
			return ErrOwnerConstraintViolation
		}
		if actorID == targetID {
			return notAuthorized(permissions.ActionRemove, actor, target.Role)
		}
		if !s.decide(permissions.ActionRemove, permissions.CanRemove(actor, target.Role)) {
			return notAuthorized(permissions.ActionRemove, actor, target.Role)
		}
		return deleteMembership(tx, groupID, targetID)
	})
	if err != nil {
		s.logDenied(err, actorID, groupID)
		return err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    actorID,
		Action:     "group.member.remove",
		Resource:   "group",
		ResourceID: groupID,
		Result:     "success",
		Metadata:   map[string]any{"target_id": targetID},
	})
	return nil
}

// Leave removes actorID from the group. The OWNER must transfer ownership first.
func (s *GroupService) Leave(ctx context.Context, actorID, groupID string) error {
	ctx = ensureContext(ctx)

	err := s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		role, err := actorRole(tx, groupID, actorID)
		if err != nil {
			return err
		}
		if !s.decide(permissions.ActionLeave, permissions.CanLeave(role)) {
			return ErrOwnerConstraintViolation
		}
		return deleteMembership(tx, groupID, actorID)
	})
	if err != nil {
		return err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    actorID,
		Action:     "group.member.leave",
		Resource:   "group",
		ResourceID: groupID,
		Result:     "success",
	})
	return nil
}

// TransferOwnership makes targetID the OWNER and demotes actorID to ADMIN in
// one transaction, so the group never has zero or two owners.
func (s *GroupService) TransferOwnership(ctx context.Context, actorID, groupID, targetID string) error {
	ctx = ensureContext(ctx)

	err := s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		actor, err := actorRole(tx, groupID, actorID)
		if err != nil {
			return err
		}
		if actor != models.RoleOwner {
			return notAuthorized(permissions.ActionUpdateRole, actor, "")
		}
		if actorID == targetID {
			return ErrOwnerConstraintViolation
		}
		if _, err := targetMember(tx, groupID, targetID); err != nil {
			return err
		}

		if err := tx.Model(&models.GroupMember{}).
			Where("group_id = ? AND user_id = ?", groupID, actorID).
			Update("role", models.RoleAdmin).Error; err != nil {
			return fmt.Errorf("demote owner: %w", err)
		}
		if err := tx.Model(&models.GroupMember{}).
			Where("group_id = ? AND user_id = ?", groupID, targetID).
			Update("role", models.RoleOwner).Error; err != nil {
			return fmt.Errorf("promote owner: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logDenied(err, actorID, groupID)
		return err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    actorID,
		Action:     "group.transfer_ownership",
		Resource:   "group",
		ResourceID: groupID,
		Result:     "success",
		Metadata:   map[string]any{"target_id": targetID},
	})
	return nil
}

func deleteMembership(tx *gorm.DB, groupID, userID string) error {
	res := tx.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.GroupMember{})
	if res.Error != nil {
		return fmt.Errorf("delete membership: %w", res.Error)
	}
	if res.RowsAffected != 1 {
		return ErrMemberNotFound
	}
	return nil
}

func (s *GroupService) decide(action permissions.Action, allowed bool) bool {
	recordDecision(action, allowed)
	return allowed
}

func recordDecision(action permissions.Action, allowed bool) {
	result := "deny"
	if allowed {
		result = "allow"
	}
	metrics.AuthzDecisions.WithLabelValues(string(action), result).Inc()
}

func (s *GroupService) logDenied(err error, actorID, groupID string) {
	var de *DomainError
	if !errors.As(err, &de) || de.Kind != KindNotAuthorized {
		return
	}
	s.log.Info("group action denied",
		zap.String("action", string(de.Action)),
		zap.String("actor_id", actorID),
		zap.String("group_id", groupID),
		zap.String("actor_role", string(de.ActorRole)),
		zap.String("target_role", string(de.TargetRole)),
	)
}
