package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/taskhub/internal/api"
	"github.com/charlesng35/taskhub/internal/app"
	"github.com/charlesng35/taskhub/internal/app/maintenance"
	iauth "github.com/charlesng35/taskhub/internal/auth"
	"github.com/charlesng35/taskhub/internal/cache"
	"github.com/charlesng35/taskhub/internal/database"
	"github.com/charlesng35/taskhub/internal/middleware"
	"github.com/charlesng35/taskhub/internal/monitoring"
	"github.com/charlesng35/taskhub/internal/realtime"
	"github.com/charlesng35/taskhub/internal/services"
	"github.com/charlesng35/taskhub/internal/tokens"
	"github.com/charlesng35/taskhub/pkg/logger"
	"github.com/charlesng35/taskhub/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     *cache.RedisStore
	Mailer    mail.Mailer
	Hub       *realtime.Hub
	Cleaner   *maintenance.Cleaner
	RateStore middleware.RateStore
	Router    *gin.Engine
}

// bootstrapRuntime initialises databases, caches, services, and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	if err := ensureSecretsPresent(cfg); err != nil {
		return nil, err
	}

	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	// enable gin debug mod
	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	dbStore := cache.NewDatabaseStore(stack.DB)

	if redisCfg, ok := cfg.Cache.RedisClientConfig(); ok {
		if stack.Redis, err = cache.NewRedisStore(ctx, redisCfg); err != nil {
			log.Warn("redis unavailable; falling back to database-backed operations", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", redisCfg.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	codec, err := cfg.Tokens.TokenCodec()
	if err != nil {
		return nil, fmt.Errorf("initialise token codec: %w", err)
	}
	tokenStore := tokens.NewStore(codec)

	stack.Mailer, err = buildMailer(cfg.Email)
	if err != nil {
		return nil, fmt.Errorf("initialise mail transport: %w", err)
	}
	stack.Hub = realtime.NewHub()
	notifier := services.FanOut(
		mail.NewNotifier(stack.Mailer, cfg.Email.TransportName(), logger.WithModule("mail")),
		realtime.NewNotifier(stack.Hub),
	)

	svc, err := buildServices(stack.DB, jwtSvc, tokenStore, notifier, cfg)
	if err != nil {
		return nil, err
	}

	stack.Cleaner = maintenance.NewCleaner(stack.DB, tokenStore, svc.Audit,
		maintenance.WithTokenRetention(cfg.Tokens.Retention),
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
		maintenance.WithTokenSchedule(cfg.Maintenance.TokenSchedule),
		maintenance.WithAuditSchedule(cfg.Maintenance.AuditSchedule),
		maintenance.WithCacheSchedule(cfg.Maintenance.CacheSchedule),
		maintenance.WithCacheStore(dbStore),
	)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	if stack.Redis != nil {
		stack.RateStore = middleware.NewCacheRateStore(stack.Redis)
	} else {
		stack.RateStore = middleware.NewCacheRateStore(dbStore)
	}

	svc.Realtime = stack.Hub
	svc.Health = monitoring.NewHealthManager(cfg.Cache.Redis.Timeout, monitoring.Database(stack.DB))
	if stack.Redis != nil {
		svc.Health.Register(monitoring.Cache(stack.Redis, true))
	} else {
		svc.Health.Register(monitoring.Cache(nil, cfg.Cache.Redis.Enabled))
	}

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, cfg, svc, stack.RateStore)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

func buildServices(db *gorm.DB, jwtSvc *iauth.JWTService, store *tokens.Store, notifier services.Notifier, cfg *app.Config) (api.Services, error) {
	var (
		svc api.Services
		err error
	)
	links := services.NewLinks(cfg.Server.BaseURL)

	if svc.Audit, err = services.NewAuditService(db); err != nil {
		return svc, fmt.Errorf("initialise audit service: %w", err)
	}
	if svc.Users, err = services.NewUserService(db, svc.Audit); err != nil {
		return svc, fmt.Errorf("initialise user service: %w", err)
	}
	if svc.Groups, err = services.NewGroupService(db, svc.Audit); err != nil {
		return svc, fmt.Errorf("initialise group service: %w", err)
	}
	if svc.Invites, err = services.NewGroupInviteService(db, store, svc.Audit, notifier, links,
		services.WithInviteTTL(cfg.Tokens.InviteTTL)); err != nil {
		return svc, fmt.Errorf("initialise invite service: %w", err)
	}
	if svc.Resets, err = services.NewPasswordResetService(db, store, jwtSvc, svc.Audit, notifier, links,
		services.WithResetTTL(cfg.Tokens.ResetTTL)); err != nil {
		return svc, fmt.Errorf("initialise password reset service: %w", err)
	}
	if svc.Tasks, err = services.NewTaskService(db, store, svc.Audit, notifier, links,
		services.WithAssignmentTTL(cfg.Tokens.AssignmentTTL)); err != nil {
		return svc, fmt.Errorf("initialise task service: %w", err)
	}
	if svc.Responses, err = services.NewAssignmentResponseService(svc.Tasks); err != nil {
		return svc, fmt.Errorf("initialise assignment response service: %w", err)
	}
	return svc, nil
}

// buildMailer resolves email.transport. A nil Mailer disables delivery.
func buildMailer(cfg app.EmailConfig) (mail.Mailer, error) {
	switch cfg.TransportName() {
	case app.TransportSMTP:
		return mail.NewSMTPMailer(cfg.SMTPSettings())
	case app.TransportKafka:
		producer, err := mail.NewKafkaMailer(cfg.KafkaSettings())
		if err != nil {
			return nil, err
		}
		return producer, nil
	default:
		return nil, nil
	}
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	// Hijacked WebSocket connections outlive http.Server.Shutdown.
	if s.Hub != nil {
		s.Hub.Close()
		s.Hub = nil
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
		s.Cleaner = nil
	}

	if closer, ok := s.Mailer.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Warn("mail transport shutdown", zap.Error(err))
		}
		s.Mailer = nil
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
		s.Redis = nil
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
		s.DB = nil
	}
}

func ensureSecretsPresent(cfg *app.Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Auth.JWT.Secret = strings.TrimSpace(cfg.Auth.JWT.Secret)
	if cfg.Auth.JWT.Secret == "" {
		return errors.New("auth.jwt.secret must be configured")
	}
	if strings.TrimSpace(cfg.Tokens.Secret) == "" {
		return errors.New("tokens.secret must be configured")
	}
	return nil
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.ConnectionConfig()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Prepare(db); err != nil {
		closeDatabase(db, logger.WithModule("database"))
		return nil, fmt.Errorf("prepare database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", dbCfg.Driver))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
