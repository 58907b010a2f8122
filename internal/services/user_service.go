package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/taskhub/internal/database"
	"github.com/charlesng35/taskhub/internal/models"
	"github.com/charlesng35/taskhub/pkg/crypto"
	"github.com/charlesng35/taskhub/pkg/logger"
	"github.com/charlesng35/taskhub/pkg/validator"
)

// RegisterInput describes the fields accepted when creating an account.
type RegisterInput struct {
	Name     string `validate:"required,notblank,max=120"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,min=8,max=72"`
}

type passwordInput struct {
	Password string `validate:"required,min=8,max=72"`
}

// UserService manages accounts and credential checks.
type UserService struct {
	db    *gorm.DB
	audit *AuditService
	log   *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB, audit *AuditService) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db, audit: audit, log: logger.WithModule("users")}, nil
}

// Register provisions a new user with a hashed password.
func (s *UserService) Register(ctx context.Context, input RegisterInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	input.Name = strings.TrimSpace(input.Name)
	input.Email = normalizeEmail(input.Email)
	if err := validator.ValidateStruct(input); err != nil {
		return nil, invalidInput(err)
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Name:     input.Name,
		Email:    input.Email,
		Password: hashed,
		IsActive: true,
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		ActorID:    user.ID,
		Action:     "user.register",
		Resource:   "user",
		ResourceID: user.ID,
		Result:     "success",
	})
	return user, nil
}

// Authenticate checks an email/password pair. Unknown emails, inactive
// accounts and wrong passwords are indistinguishable.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if err != nil {
		if database.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	if !user.IsActive || !crypto.VerifyPassword(user.Password, password) {
		return nil, ErrInvalidCredentials
	}

	now := utcNow()
	if err := s.db.WithContext(ctx).Model(&user).Update("last_login_at", now).Error; err != nil {
		s.log.Warn("record last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	user.LastLoginAt = &now
	return &user, nil
}

// Get loads a user by id.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return findUser(s.db.WithContext(ensureContext(ctx)), "id = ?", strings.TrimSpace(id))
}

// FindByEmail loads a user by normalised email address.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return findUser(s.db.WithContext(ensureContext(ctx)), "email = ?", normalizeEmail(email))
}

func findUser(tx *gorm.DB, query string, arg string) (*models.User, error) {
	if arg == "" {
		return nil, ErrUserNotFound
	}
	var user models.User
	if err := tx.Where(query, arg).First(&user).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

func validatePassword(password string) error {
	if err := validator.ValidateStruct(passwordInput{Password: password}); err != nil {
		return invalidInput(err)
	}
	return nil
}
