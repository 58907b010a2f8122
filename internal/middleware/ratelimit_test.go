package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/taskhub/internal/cache"
	"github.com/charlesng35/taskhub/internal/database/testutil"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func limitedRouter(store RateStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/auth/password-reset", RateLimit(store, 2, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusAccepted)
	})
	return r
}

func hit(r *gin.Engine) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/auth/password-reset", nil)
	req.RemoteAddr = "203.0.113.7:4242"
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimitWithMemoryStore(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	r := limitedRouter(NewMemoryRateStore(clock.Now))

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusAccepted, hit(r).Code)
	}

	w := hit(r)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, "60", w.Header().Get("Retry-After"))

	clock.Advance(time.Minute)
	require.Equal(t, http.StatusAccepted, hit(r).Code)
}

func TestRateLimitWithDatabaseStore(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	r := limitedRouter(NewCacheRateStore(cache.NewDatabaseStore(db)))

	require.Equal(t, http.StatusAccepted, hit(r).Code)
	require.Equal(t, http.StatusAccepted, hit(r).Code)
	require.Equal(t, http.StatusTooManyRequests, hit(r).Code)
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration) (int, time.Duration, error) {
	return 0, 0, errors.New("down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := limitedRouter(failingStore{})
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusAccepted, hit(r).Code)
	}
}
