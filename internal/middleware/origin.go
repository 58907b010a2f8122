package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskhub/internal/auditctx"
)

// RequestOrigin records the client address and user agent on the request
// context so audit entries can attribute them.
func RequestOrigin() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := auditctx.WithOrigin(c.Request.Context(), auditctx.Origin{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
