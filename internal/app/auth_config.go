package app

import (
	"github.com/charlesng35/taskhub/internal/auth"
)

// JWTServiceConfig converts the auth and token settings into the parameters
// expected by the JWT service.
func (c Config) JWTServiceConfig() auth.JWTConfig {
	ttl := c.Auth.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}
	grantTTL := c.Tokens.ResetGrantTTL
	if grantTTL <= 0 {
		grantTTL = auth.DefaultResetGrantTTL
	}

	return auth.JWTConfig{
		Secret:         c.Auth.JWT.Secret,
		Issuer:         c.Auth.JWT.Issuer,
		AccessTokenTTL: ttl,
		ResetGrantTTL:  grantTTL,
	}
}
