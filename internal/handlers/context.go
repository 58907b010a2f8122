package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskhub/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// actorID is the authenticated caller; routes using it sit behind middleware.Auth.
func actorID(c *gin.Context) string {
	return middleware.UserID(c)
}
