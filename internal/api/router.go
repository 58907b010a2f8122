package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/taskhub/internal/app"
	iauth "github.com/charlesng35/taskhub/internal/auth"
	"github.com/charlesng35/taskhub/internal/handlers"
	"github.com/charlesng35/taskhub/internal/middleware"
	"github.com/charlesng35/taskhub/internal/monitoring"
	"github.com/charlesng35/taskhub/internal/realtime"
	"github.com/charlesng35/taskhub/internal/services"
)

// Services bundles the domain services exposed over HTTP.
type Services struct {
	Users     *services.UserService
	Groups    *services.GroupService
	Invites   *services.GroupInviteService
	Resets    *services.PasswordResetService
	Tasks     *services.TaskService
	Responses *services.AssignmentResponseService
	Audit     *services.AuditService
	// Health is optional; by default only the database is probed.
	Health *monitoring.HealthManager
	// Realtime enables the WebSocket notification stream when set.
	Realtime *realtime.Hub
}

func (s Services) validate() error {
	switch {
	case s.Users == nil:
		return fmt.Errorf("user service must be provided")
	case s.Groups == nil:
		return fmt.Errorf("group service must be provided")
	case s.Invites == nil:
		return fmt.Errorf("invite service must be provided")
	case s.Resets == nil:
		return fmt.Errorf("password reset service must be provided")
	case s.Tasks == nil:
		return fmt.Errorf("task service must be provided")
	case s.Responses == nil:
		return fmt.Errorf("assignment response service must be provided")
	case s.Audit == nil:
		return fmt.Errorf("audit service must be provided")
	}
	return nil
}

// NewRouter builds the Gin engine, wires middleware and registers routes.
// A nil rateStore falls back to in-process counters.
func NewRouter(db *gorm.DB, jwt *iauth.JWTService, cfg *app.Config, svc Services, rateStore middleware.RateStore) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if jwt == nil {
		return nil, fmt.Errorf("jwt service must be provided")
	}
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if err := svc.validate(); err != nil {
		return nil, err
	}
	if rateStore == nil {
		rateStore = middleware.NewMemoryRateStore(nil)
	}
	if svc.Health == nil {
		svc.Health = monitoring.NewHealthManager(2*time.Second, monitoring.Database(db))
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.RequestOrigin())

	// Token-issuing and token-redeeming endpoints share one limit.
	limited := middleware.RateLimit(rateStore, cfg.RateLimit.Requests, cfg.RateLimit.Window)
	requireAuth := middleware.Auth(jwt)

	authHandler := handlers.NewAuthHandler(svc.Users, svc.Resets, jwt)
	groupHandler := handlers.NewGroupHandler(svc.Groups, svc.Invites)
	taskHandler := handlers.NewTaskHandler(svc.Tasks, svc.Responses)
	auditHandler := handlers.NewAuditHandler(svc.Audit)
	var realtimeHandler *handlers.RealtimeHandler
	if svc.Realtime != nil {
		realtimeHandler = handlers.NewRealtimeHandler(svc.Realtime, jwt)
	}

	registerHealthRoutes(r, svc.Health)
	registerMonitoringRoutes(r, cfg)
	registerAuthRoutes(r, authHandler, requireAuth, limited)
	registerRealtimeRoutes(r, realtimeHandler)

	api := r.Group("/api")
	api.Use(requireAuth)

	registerGroupRoutes(r, api, groupHandler, requireAuth, limited)
	registerTaskRoutes(r, api, taskHandler, limited)
	registerAuditRoutes(api, auditHandler)

	// NotFound fallback
	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
