package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultAccessTokenTTL defines the fallback validity period for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute
	// DefaultResetGrantTTL bounds how long a redeemed reset link may be used to set a password.
	DefaultResetGrantTTL = 10 * time.Minute

	AudienceAPI           = "api"
	AudiencePasswordReset = "password-reset"
)

// ErrWrongAudience is returned when a token is presented for a purpose it was not minted for.
var ErrWrongAudience = errors.New("jwt: token audience mismatch")

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret         string
	Issuer         string
	AccessTokenTTL time.Duration
	ResetGrantTTL  time.Duration
	Clock          func() time.Time
}

// Claims represents the custom claims embedded in issued JWTs.
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// JWTService is responsible for issuing and validating JSON Web Tokens.
type JWTService struct {
	secret   []byte
	issuer   string
	ttl      time.Duration
	grantTTL time.Duration
	now      func() time.Time
}

// NewJWTService constructs a JWTService instance when provided with the required configuration.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}

	ttl := cfg.AccessTokenTTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	grantTTL := cfg.ResetGrantTTL
	if grantTTL <= 0 {
		grantTTL = DefaultResetGrantTTL
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &JWTService{
		secret:   []byte(cfg.Secret),
		issuer:   cfg.Issuer,
		ttl:      ttl,
		grantTTL: grantTTL,
		now:      now,
	}, nil
}

// AccessTokenTTL reports the lifetime of issued access tokens.
func (s *JWTService) AccessTokenTTL() time.Duration {
	return s.ttl
}

// GenerateAccessToken issues an API access token for userID.
func (s *JWTService) GenerateAccessToken(userID string) (string, error) {
	return s.sign(userID, "", AudienceAPI, s.ttl)
}

// ValidateAccessToken parses an API access token.
func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, AudienceAPI)
}

// GenerateResetGrant issues the short-lived credential handed out when a
// password reset link is redeemed. grantID ties it to the consumed action token.
func (s *JWTService) GenerateResetGrant(userID, grantID string) (string, error) {
	return s.sign(userID, grantID, AudiencePasswordReset, s.grantTTL)
}

// ValidateResetGrant parses a reset grant. Access tokens are rejected.
func (s *JWTService) ValidateResetGrant(tokenString string) (*Claims, error) {
	return s.validate(tokenString, AudiencePasswordReset)
}

func (s *JWTService) sign(userID, id, audience string, ttl time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("jwt: user id is required")
	}

	now := s.now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   userID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwt: sign token: %w", err)
	}
	return signed, nil
}

func (s *JWTService) validate(tokenString, audience string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("jwt: token string is empty")
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	_, err := parser.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("jwt: parse token: %w", err)
	}

	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, errors.New("jwt: invalid issuer")
	}
	if !hasAudience(claims.Audience, audience) {
		return nil, ErrWrongAudience
	}
	if claims.UserID == "" {
		return nil, errors.New("jwt: missing user id claim")
	}

	return &claims, nil
}

func hasAudience(list jwt.ClaimStrings, want string) bool {
	for _, aud := range list {
		if aud == want {
			return true
		}
	}
	return false
}
