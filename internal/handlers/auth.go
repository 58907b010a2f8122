package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/taskhub/internal/auth"
	"github.com/charlesng35/taskhub/internal/services"
	"github.com/charlesng35/taskhub/pkg/errors"
	"github.com/charlesng35/taskhub/pkg/response"
)

// AuthHandler manages accounts, API access tokens and password resets.
type AuthHandler struct {
	users  *services.UserService
	resets *services.PasswordResetService
	jwt    *iauth.JWTService
}

func NewAuthHandler(users *services.UserService, resets *services.PasswordResetService, jwt *iauth.JWTService) *AuthHandler {
	return &AuthHandler{users: users, resets: resets, jwt: jwt}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" validate:"required"`
}

type passwordRequest struct {
	Password string `json:"password" validate:"required"`
}

type completeResetRequest struct {
	Grant    string `json:"grant" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	User        any    `json:"user"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Register(requestContext(c), services.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, user)
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Authenticate(requestContext(c), req.Email, req.Password)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	token, err := h.jwt.GenerateAccessToken(user.ID)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.jwt.AccessTokenTTL().Seconds()),
		User:        user,
	})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.users.Get(requestContext(c), actorID(c))
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// POST /api/auth/password/forgot
//
// The response never reveals whether the address belongs to an account.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.resets.RequestReset(requestContext(c), req.Email); err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{
		"message": "If the address is registered, a reset link has been sent.",
	})
}

// GET /verify-reset-token/:id/:secret
func (h *AuthHandler) VerifyResetToken(c *gin.Context) {
	if err := h.resets.VerifyResetToken(requestContext(c), c.Param("id"), c.Param("secret")); err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"valid": true})
}

// POST /api/auth/password/reset/:id/:secret
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req passwordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.resets.ResetPassword(requestContext(c), c.Param("id"), c.Param("secret"), req.Password); err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reset": true})
}

// POST /api/auth/password/reset/:id/:secret/exchange
func (h *AuthHandler) ExchangeResetToken(c *gin.Context) {
	grant, err := h.resets.ExchangeResetToken(requestContext(c), c.Param("id"), c.Param("secret"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"grant": grant})
}

// POST /api/auth/password/complete
func (h *AuthHandler) CompleteReset(c *gin.Context) {
	var req completeResetRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.resets.CompleteReset(requestContext(c), req.Grant, req.Password); err != nil {
		writeServiceError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reset": true})
}
