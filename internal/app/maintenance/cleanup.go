package maintenance

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/taskhub/internal/cache"
	"github.com/charlesng35/taskhub/internal/services"
	"github.com/charlesng35/taskhub/internal/tokens"
	"github.com/charlesng35/taskhub/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultTokenRetention     = 30 * 24 * time.Hour
	defaultTokenSpec          = "@hourly"
	defaultAuditSpec          = "@daily"
	defaultCacheSpec          = "@every 10m"
)

// Cleaner coordinates background retention jobs: purging inactive action
// tokens, pruning stale audit logs and dropping expired cache entries.
type Cleaner struct {
	db             *gorm.DB
	tokens         *tokens.Store
	audit          *services.AuditService
	cache          *cache.DatabaseStore
	cron           *cron.Cron
	now            func() time.Time
	log            *zap.Logger
	retention      int
	tokenRetention time.Duration

	tokenSchedule string
	auditSchedule string
	cacheSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithTokenRetention adjusts how long consumed, revoked or expired tokens are kept.
func WithTokenRetention(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.tokenRetention = d
		}
	}
}

// WithTokenSchedule overrides the cron specification for token cleanup.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// WithCacheSchedule overrides the cron specification for cache expiry.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.cacheSchedule = spec
		}
	}
}

// WithCacheStore enables the database cache expiry job.
func WithCacheStore(store *cache.DatabaseStore) Option {
	return func(cleaner *Cleaner) {
		cleaner.cache = store
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding cleanup job being skipped.
func NewCleaner(db *gorm.DB, store *tokens.Store, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:             db,
		tokens:         store,
		audit:          audit,
		now:            func() time.Time { return time.Now().UTC() },
		retention:      defaultAuditRetentionDays,
		tokenRetention: defaultTokenRetention,
		tokenSchedule:  defaultTokenSpec,
		auditSchedule:  defaultAuditSpec,
		cacheSchedule:  defaultCacheSpec,
		log:            logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

func (c *Cleaner) tokensEnabled() bool { return c.db != nil && c.tokens != nil }

// Start registers cleanup jobs with the cron scheduler and launches it if at least one cleanup is enabled.
func (c *Cleaner) Start() error {
	jobs := 0

	if c.tokensEnabled() {
		if _, err := c.cron.AddFunc(c.tokenSchedule, func() {
			if _, err := c.PurgeTokens(context.Background()); err != nil {
				c.log.Warn("token cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
		jobs++
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			if _, err := c.audit.CleanupOlderThan(context.Background(), c.retention); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
		jobs++
	}

	if c.cache != nil {
		if _, err := c.cron.AddFunc(c.cacheSchedule, func() {
			if _, err := c.cache.PurgeExpired(context.Background()); err != nil {
				c.log.Warn("cache cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
		jobs++
	}

	if jobs == 0 {
		return nil
	}
	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.tokensEnabled() {
		if _, err := c.PurgeTokens(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.cache != nil {
		if _, err := c.cache.PurgeExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// PurgeTokens deletes action tokens that became inactive before the retention cutoff.
func (c *Cleaner) PurgeTokens(ctx context.Context) (int64, error) {
	if !c.tokensEnabled() {
		return 0, errors.New("cleanup tokens: token store is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cutoff := c.now().Add(-c.tokenRetention)
	removed, err := c.tokens.PurgeInactive(c.db.WithContext(ctx), cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.log.Info("purged inactive action tokens", zap.Int64("count", removed))
	}
	return removed, nil
}
