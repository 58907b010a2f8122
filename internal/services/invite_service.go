package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/taskhub/internal/database"
	"github.com/charlesng35/taskhub/internal/models"
	"github.com/charlesng35/taskhub/internal/permissions"
	"github.com/charlesng35/taskhub/internal/tokens"
	"github.com/charlesng35/taskhub/pkg/logger"
	"github.com/charlesng35/taskhub/pkg/mail"
	"github.com/charlesng35/taskhub/pkg/metrics"
	"github.com/charlesng35/taskhub/pkg/validator"
)

const defaultInviteTTL = 72 * time.Hour

type inviteInput struct {
	Email string `validate:"required,email,max=254"`
}

// InviteResult describes an issued invitation. It never carries the secret.
type InviteResult struct {
	TokenID   string    `json:"token_id"`
	GroupID   string    `json:"group_id"`
	InviteeID string    `json:"invitee_id"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// InviteOption customises GroupInviteService behaviour.
type InviteOption func(*GroupInviteService)

// WithInviteTTL overrides how long invitations stay valid.
func WithInviteTTL(d time.Duration) InviteOption {
	return func(s *GroupInviteService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithInviteClock overrides the time source used for membership timestamps.
func WithInviteClock(clock func() time.Time) InviteOption {
	return func(s *GroupInviteService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// GroupInviteService issues and redeems GROUP_INVITE action tokens.
type GroupInviteService struct {
	uow      database.UnitOfWork
	db       *gorm.DB
	store    *tokens.Store
	audit    *AuditService
	notifier Notifier
	links    Links
	ttl      time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewGroupInviteService constructs a GroupInviteService.
func NewGroupInviteService(db *gorm.DB, store *tokens.Store, audit *AuditService, notifier Notifier, links Links, opts ...InviteOption) (*GroupInviteService, error) {
	if db == nil {
		return nil, errors.New("invite service: db is required")
	}
	if store == nil {
		return nil, errors.New("invite service: token store is required")
	}
	svc := &GroupInviteService{
		uow:      database.NewTransactor(db),
		db:       db,
		store:    store,
		audit:    audit,
		notifier: notifierOrNoop(notifier),
		links:    links,
		ttl:      defaultInviteTTL,
		now:      utcNow,
		log:      logger.WithModule("invites"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Invite issues (or re-issues) the invitation of email to groupID. Re-inviting
// the same address replaces the previous link.
func (s *GroupInviteService) Invite(ctx context.Context, actorID, groupID, email string) (*InviteResult, error) {
	ctx = ensureContext(ctx)

	email = normalizeEmail(email)
	if err := validator.ValidateStruct(inviteInput{Email: email}); err != nil {
		return nil, invalidInput(err)
	}

	var (
		issued  tokens.Issued
		group   *models.Group
		inviter *models.User
		invitee *models.User
	)
	err := s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		role, err := actorRole(tx, groupID, actorID)
		if err != nil {
			return err
		}
		allowed := permissions.CanInvite(role)
		recordDecision(permissions.ActionInvite, allowed)
		if !allowed {
			return notAuthorized(permissions.ActionInvite, role, "")
		}

		if group, err = loadGroup(tx, groupID); err != nil {
			return err
		}
		if inviter, err = findUser(tx, "id = ?", actorID); err != nil {
			return err
		}
		if invitee, err = findUser(tx, "email = ?", email); err != nil {
			return err
		}
		if invitee.ID == actorID {
			return ErrCannotInviteSelf
		}
		member, err := isMember(tx, groupID, invitee.ID)
		if err != nil {
			return err
		}
		if member {
			return ErrAlreadyMember
		}

		issued, err = s.store.Issue(tx, tokens.IssueParams{
			Type:       models.TokenGroupInvite,
			SubjectKey: tokens.GroupInviteSubject(groupID, email),
			UserID:     strPtr(invitee.ID),
			GroupID:    strPtr(groupID),
			IssuedByID: strPtr(actorID),
			Payload:    models.TokenPayload{Email: email},
			TTL:        s.ttl,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.TokensIssued.WithLabelValues(string(models.TokenGroupInvite)).Inc()
	s.log.Info("group invite issued",
		zap.String("token_id", issued.ID),
		zap.String("group_id", groupID),
		zap.String("actor_id", actorID),
	)

	s.notifier.Notify(ctx, mail.Notification{
		Recipient: invitee.Email,
		UserID:    invitee.ID,
		Kind:      mail.KindGroupInvite,
		Context: map[string]string{
			"inviter": inviter.Name,
			"group":   group.Name,
			"link":    s.links.GroupInvite(issued.ID, issued.Secret),
			"ttl":     s.ttl.String(),
		},
	})
	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    actorID,
		Action:     "group.invite",
		Resource:   "group",
		ResourceID: groupID,
		Result:     "success",
		Metadata:   map[string]any{"token_id": issued.ID, "invitee_id": invitee.ID},
	})

	return &InviteResult{
		TokenID:   issued.ID,
		GroupID:   groupID,
		InviteeID: invitee.ID,
		Email:     email,
		ExpiresAt: issued.ExpiresAt,
	}, nil
}

// InvitationPreview describes a pending invitation to its invitee.
type InvitationPreview struct {
	GroupID   string    `json:"group_id"`
	GroupName string    `json:"group_name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Preview checks an invitation link for viewerID without consuming it.
func (s *GroupInviteService) Preview(ctx context.Context, viewerID, tokenID, secret string) (*InvitationPreview, error) {
	ctx = ensureContext(ctx)
	tx := s.db.WithContext(ctx)

	row, err := s.store.Authenticate(tx, models.TokenGroupInvite, tokenID, secret)
	if err != nil {
		return nil, translate(err)
	}
	if row.UserID == nil || *row.UserID != viewerID || row.GroupID == nil {
		return nil, ErrInvalidToken
	}
	group, err := loadGroup(tx, *row.GroupID)
	if err != nil {
		return nil, err
	}
	return &InvitationPreview{GroupID: group.ID, GroupName: group.Name, ExpiresAt: row.ExpiresAt}, nil
}

// Accept redeems an invitation on behalf of acceptorID, who must be the invitee.
func (s *GroupInviteService) Accept(ctx context.Context, acceptorID, tokenID, secret string) (*models.GroupMember, error) {
	ctx = ensureContext(ctx)

	var member models.GroupMember
	err := s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		row, err := s.store.Authenticate(tx, models.TokenGroupInvite, tokenID, secret)
		if err != nil {
			return err
		}
		if row.UserID == nil || *row.UserID != acceptorID || row.GroupID == nil {
			return tokens.ErrInvalidToken
		}
		groupID := *row.GroupID

		if _, err := loadGroup(tx, groupID); err != nil {
			return err
		}
		already, err := isMember(tx, groupID, acceptorID)
		if err != nil {
			return err
		}
		if already {
			return ErrAlreadyMember
		}

		member = models.GroupMember{
			GroupID:  groupID,
			UserID:   acceptorID,
			Role:     models.RoleMember,
			JoinedAt: s.now(),
		}
		if err := tx.Create(&member).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return ErrAlreadyMember
			}
			return fmt.Errorf("create membership: %w", err)
		}

		return s.store.ConsumeOnce(tx, row.ID, tokens.ForUser(acceptorID))
	})
	err = translate(err)
	recordRedemption(models.TokenGroupInvite, err)
	if err != nil {
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    acceptorID,
		Action:     "group.invite.accept",
		Resource:   "group",
		ResourceID: member.GroupID,
		Result:     "success",
		Metadata:   map[string]any{"token_id": tokenID},
	})
	return &member, nil
}

// RevokeInvite cancels the outstanding invitation of email, if any.
func (s *GroupInviteService) RevokeInvite(ctx context.Context, actorID, groupID, email string) error {
	ctx = ensureContext(ctx)
	email = normalizeEmail(email)

	var revoked int64
	err := s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		role, err := actorRole(tx, groupID, actorID)
		if err != nil {
			return err
		}
		allowed := permissions.CanInvite(role)
		recordDecision(permissions.ActionInvite, allowed)
		if !allowed {
			return notAuthorized(permissions.ActionInvite, role, "")
		}
		revoked, err = s.store.Revoke(tx, tokens.GroupInviteSubject(groupID, email))
		return err
	})
	if err != nil {
		return err
	}

	if revoked > 0 {
		recordAudit(s.audit, ctx, AuditEntry{
			ActorID:    actorID,
			Action:     "group.invite.revoke",
			Resource:   "group",
			ResourceID: groupID,
			Result:     "success",
		})
	}
	return nil
}

func recordRedemption(typ models.TokenType, err error) {
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrInvalidToken):
		result = "invalid"
	default:
		result = "error"
	}
	metrics.TokenRedemptions.WithLabelValues(string(typ), result).Inc()
}
