package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/taskhub/internal/handlers"
)

func registerAuthRoutes(r *gin.Engine, h *handlers.AuthHandler, requireAuth, limited gin.HandlerFunc) {
	auth := r.Group("/api/auth")
	{
		auth.POST("/register", limited, h.Register)
		auth.POST("/login", limited, h.Login)
		auth.GET("/me", requireAuth, h.Me)

		auth.POST("/password/forgot", limited, h.ForgotPassword)
		auth.POST("/password/reset/:id/:secret", limited, h.ResetPassword)
		auth.POST("/password/reset/:id/:secret/exchange", limited, h.ExchangeResetToken)
		auth.POST("/password/complete", limited, h.CompleteReset)
	}

	// Target of the emailed reset link.
	r.GET("/verify-reset-token/:id/:secret", limited, h.VerifyResetToken)
}
