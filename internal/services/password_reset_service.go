package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/taskhub/internal/auth"
	"github.com/charlesng35/taskhub/internal/database"
	"github.com/charlesng35/taskhub/internal/models"
	"github.com/charlesng35/taskhub/internal/tokens"
	"github.com/charlesng35/taskhub/pkg/crypto"
	"github.com/charlesng35/taskhub/pkg/logger"
	"github.com/charlesng35/taskhub/pkg/mail"
	"github.com/charlesng35/taskhub/pkg/metrics"
)

const defaultResetTTL = 15 * time.Minute

// PasswordResetOption customises PasswordResetService behaviour.
type PasswordResetOption func(*PasswordResetService)

// WithResetTTL overrides the lifetime of reset links.
func WithResetTTL(d time.Duration) PasswordResetOption {
	return func(s *PasswordResetService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithResetClock overrides the time source used for password-change timestamps.
func WithResetClock(clock func() time.Time) PasswordResetOption {
	return func(s *PasswordResetService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// PasswordResetService issues and redeems RESET_PASSWORD action tokens.
type PasswordResetService struct {
	uow      database.UnitOfWork
	db       *gorm.DB
	store    *tokens.Store
	jwt      *auth.JWTService
	audit    *AuditService
	notifier Notifier
	links    Links
	ttl      time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewPasswordResetService constructs a PasswordResetService. jwt may be nil when
// the grant-based flow is not exposed.
func NewPasswordResetService(db *gorm.DB, store *tokens.Store, jwt *auth.JWTService, audit *AuditService, notifier Notifier, links Links, opts ...PasswordResetOption) (*PasswordResetService, error) {
	if db == nil {
		return nil, errors.New("password reset service: db is required")
	}
	if store == nil {
		return nil, errors.New("password reset service: token store is required")
	}
	svc := &PasswordResetService{
		uow:      database.NewTransactor(db),
		db:       db,
		store:    store,
		jwt:      jwt,
		audit:    audit,
		notifier: notifierOrNoop(notifier),
		links:    links,
		ttl:      defaultResetTTL,
		now:      utcNow,
		log:      logger.WithModule("password_reset"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// RequestReset mails a reset link to email. Unknown or inactive accounts
// succeed silently so the endpoint cannot be used to enumerate users.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	ctx = ensureContext(ctx)

	var (
		user   *models.User
		issued tokens.Issued
	)
	err := s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		found, err := findUser(tx, "email = ?", normalizeEmail(email))
		if err != nil {
			return err
		}
		if !found.IsActive {
			return ErrUserNotFound
		}
		user = found

		issued, err = s.store.Issue(tx, tokens.IssueParams{
			Type:       models.TokenResetPassword,
			SubjectKey: tokens.ResetPasswordSubject(user.ID),
			UserID:     strPtr(user.ID),
			TTL:        s.ttl,
		})
		return err
	})
	if errors.Is(err, ErrUserNotFound) {
		s.log.Debug("password reset requested for unknown account")
		return nil
	}
	if err != nil {
		return err
	}

	metrics.TokensIssued.WithLabelValues(string(models.TokenResetPassword)).Inc()
	s.log.Info("password reset issued", zap.String("token_id", issued.ID), zap.String("user_id", user.ID))

	s.notifier.Notify(ctx, mail.Notification{
		Recipient: user.Email,
		UserID:    user.ID,
		Kind:      mail.KindPasswordReset,
		Context: map[string]string{
			"name": user.Name,
			"link": s.links.ResetPassword(issued.ID, issued.Secret),
			"ttl":  s.ttl.String(),
		},
	})
	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    user.ID,
		Action:     "auth.password_reset.request",
		Resource:   "user",
		ResourceID: user.ID,
		Result:     "success",
		Metadata:   map[string]any{"token_id": issued.ID},
	})
	return nil
}

// VerifyResetToken checks a link without consuming it.
func (s *PasswordResetService) VerifyResetToken(ctx context.Context, tokenID, secret string) error {
	ctx = ensureContext(ctx)
	_, err := s.store.Authenticate(s.db.WithContext(ctx), models.TokenResetPassword, tokenID, secret)
	return translate(err)
}

// ResetPassword redeems a link and sets the new password in one transaction.
func (s *PasswordResetService) ResetPassword(ctx context.Context, tokenID, secret, newPassword string) error {
	ctx = ensureContext(ctx)

	if err := validatePassword(newPassword); err != nil {
		return err
	}

	var user *models.User
	err := s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		row, err := s.store.Authenticate(tx, models.TokenResetPassword, tokenID, secret)
		if err != nil {
			return err
		}
		if row.UserID == nil {
			return tokens.ErrInvalidToken
		}
		if user, err = s.setPassword(tx, *row.UserID, newPassword); err != nil {
			return err
		}
		return s.store.ConsumeOnce(tx, row.ID, tokens.ForUser(user.ID))
	})
	err = translate(err)
	recordRedemption(models.TokenResetPassword, err)
	if err != nil {
		return err
	}

	s.afterPasswordChange(ctx, user, tokenID)
	return nil
}

// ExchangeResetToken redeems a link for a short-lived reset grant.
func (s *PasswordResetService) ExchangeResetToken(ctx context.Context, tokenID, secret string) (string, error) {
	ctx = ensureContext(ctx)

	if s.jwt == nil {
		return "", errors.New("password reset service: grant issuer not configured")
	}

	var grant string
	err := s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		row, err := s.store.Authenticate(tx, models.TokenResetPassword, tokenID, secret)
		if err != nil {
			return err
		}
		if row.UserID == nil {
			return tokens.ErrInvalidToken
		}
		if err := s.store.ConsumeOnce(tx, row.ID, tokens.ForUser(*row.UserID)); err != nil {
			return err
		}
		grant, err = s.jwt.GenerateResetGrant(*row.UserID, row.ID)
		return err
	})
	err = translate(err)
	recordRedemption(models.TokenResetPassword, err)
	if err != nil {
		return "", err
	}
	return grant, nil
}

// CompleteReset sets a new password using a grant from ExchangeResetToken.
// The grant is bound to the reset token it was exchanged for and stops working
// once the password changes after that token was consumed, or once the token
// is re-issued.
func (s *PasswordResetService) CompleteReset(ctx context.Context, grant, newPassword string) error {
	ctx = ensureContext(ctx)

	if s.jwt == nil {
		return errors.New("password reset service: grant issuer not configured")
	}
	claims, err := s.jwt.ValidateResetGrant(grant)
	if err != nil {
		return ErrInvalidToken
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	var user *models.User
	err = s.uow.WithTransaction(ctx, func(tx *gorm.DB) error {
		current, err := findUser(tx, "id = ?", claims.UserID)
		if err != nil {
			return ErrInvalidToken
		}
		var row models.ActionToken
		err = tx.Select("id", "user_id", "consumed_at").
			Where("id = ? AND type = ?", claims.ID, models.TokenResetPassword).
			First(&row).Error
		if err != nil {
			if database.IsNotFound(err) {
				return ErrInvalidToken
			}
			return fmt.Errorf("load reset token: %w", err)
		}
		if !grantUsable(claims, &row, current) {
			return ErrInvalidToken
		}
		user, err = s.setPassword(tx, current.ID, newPassword)
		return err
	})
	if err != nil {
		return translate(err)
	}

	s.afterPasswordChange(ctx, user, claims.ID)
	return nil
}

// grantUsable reports whether a grant may still set the password. The token
// row must be the consumed reset of the same user, the grant must not predate
// that consumption (iat has second precision), and the password must not have
// changed since.
func grantUsable(claims *auth.Claims, row *models.ActionToken, user *models.User) bool {
	if row.UserID == nil || *row.UserID != user.ID || row.ConsumedAt == nil {
		return false
	}
	if claims.IssuedAt == nil || claims.IssuedAt.Unix() < row.ConsumedAt.Unix() {
		return false
	}
	return user.PasswordChangedAt == nil || user.PasswordChangedAt.Before(*row.ConsumedAt)
}

func (s *PasswordResetService) setPassword(tx *gorm.DB, userID, password string) (*models.User, error) {
	user, err := findUser(tx, "id = ?", userID)
	if err != nil {
		return nil, tokens.ErrInvalidToken
	}
	hashed, err := crypto.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := s.now()
	if err := tx.Model(&models.User{}).Where("id = ?", user.ID).Updates(map[string]any{
		"password":            hashed,
		"password_changed_at": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("update password: %w", err)
	}
	user.Password = hashed
	user.PasswordChangedAt = &now
	return user, nil
}

func (s *PasswordResetService) afterPasswordChange(ctx context.Context, user *models.User, tokenID string) {
	s.log.Info("password reset completed", zap.String("user_id", user.ID), zap.String("token_id", tokenID))
	s.notifier.Notify(ctx, mail.Notification{
		Recipient: user.Email,
		UserID:    user.ID,
		Kind:      mail.KindPasswordChanged,
		Context:   map[string]string{"name": user.Name},
	})
	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    user.ID,
		Action:     "auth.password_reset.complete",
		Resource:   "user",
		ResourceID: user.ID,
		Result:     "success",
		Metadata:   map[string]any{"token_id": tokenID},
	})
}
