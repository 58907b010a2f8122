package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/taskhub/internal/api"
	"github.com/charlesng35/taskhub/internal/app"
	iauth "github.com/charlesng35/taskhub/internal/auth"
	sharedtestutil "github.com/charlesng35/taskhub/internal/database/testutil"
	"github.com/charlesng35/taskhub/internal/middleware"
	"github.com/charlesng35/taskhub/internal/realtime"
	"github.com/charlesng35/taskhub/internal/services"
	"github.com/charlesng35/taskhub/internal/tokens"
	"github.com/charlesng35/taskhub/pkg/mail"
	"github.com/charlesng35/taskhub/pkg/response"
)

const (
	// BaseURL prefixes every link the test environment mails out.
	BaseURL   = "http://taskhub.test"
	jwtSecret = "test-suite-super-secret-key-32-bytes!!"
)

// Outbox records notifications instead of delivering them.
type Outbox struct {
	mu    sync.Mutex
	notes []mail.Notification
}

func (o *Outbox) Notify(_ context.Context, note mail.Notification) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notes = append(o.notes, note)
}

// Last returns the most recent notification of kind addressed to recipient.
func (o *Outbox) Last(t *testing.T, kind, recipient string) mail.Notification {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.notes) - 1; i >= 0; i-- {
		if o.notes[i].Kind == kind && o.notes[i].Recipient == recipient {
			return o.notes[i]
		}
	}
	t.Fatalf("no %s notification for %s", kind, recipient)
	return mail.Notification{}
}

// Count reports how many notifications of kind were recorded.
func (o *Outbox) Count(kind string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, note := range o.notes {
		if note.Kind == kind {
			n++
		}
	}
	return n
}

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
	Outbox *Outbox
	Hub    *realtime.Hub
}

// EnvOption customises the configuration used by NewEnv.
type EnvOption func(*app.Config)

// WithRateLimit enables rate limiting of token endpoints.
func WithRateLimit(requests int, window time.Duration) EnvOption {
	return func(cfg *app.Config) {
		cfg.RateLimit = app.RateLimitConfig{Requests: requests, Window: window}
	}
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Server: app.ServerConfig{BaseURL: BaseURL},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{Secret: jwtSecret, Issuer: "test-suite", TTL: time.Hour},
		},
		Tokens: app.TokensConfig{
			Secret:        strings.Repeat("ab", 32),
			SecretBytes:   32,
			ResetTTL:      15 * time.Minute,
			InviteTTL:     72 * time.Hour,
			AssignmentTTL: 7 * 24 * time.Hour,
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.JWTServiceConfig())
	require.NoError(t, err)

	codec, err := cfg.Tokens.TokenCodec()
	require.NoError(t, err)
	store := tokens.NewStore(codec)

	outbox := &Outbox{}
	hub := realtime.NewHub()
	t.Cleanup(hub.Close)
	notifier := services.FanOut(outbox, realtime.NewNotifier(hub))
	links := services.NewLinks(cfg.Server.BaseURL)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	users, err := services.NewUserService(db, audit)
	require.NoError(t, err)
	groups, err := services.NewGroupService(db, audit)
	require.NoError(t, err)
	invites, err := services.NewGroupInviteService(db, store, audit, notifier, links,
		services.WithInviteTTL(cfg.Tokens.InviteTTL))
	require.NoError(t, err)
	resets, err := services.NewPasswordResetService(db, store, jwtSvc, audit, notifier, links,
		services.WithResetTTL(cfg.Tokens.ResetTTL))
	require.NoError(t, err)
	tasks, err := services.NewTaskService(db, store, audit, notifier, links,
		services.WithAssignmentTTL(cfg.Tokens.AssignmentTTL))
	require.NoError(t, err)

	responses, err := services.NewAssignmentResponseService(tasks)
	require.NoError(t, err)

	router, err := api.NewRouter(db, jwtSvc, cfg, api.Services{
		Users:     users,
		Groups:    groups,
		Invites:   invites,
		Resets:    resets,
		Tasks:     tasks,
		Responses: responses,
		Audit:     audit,
		Realtime:  hub,
	}, middleware.NewMemoryRateStore(nil))
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		Outbox: outbox,
		Hub:    hub,
	}
}

// UserPayload captures the subset of user fields returned from auth endpoints.
type UserPayload struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int         `json:"expires_in"`
	User        UserPayload `json:"user"`
}

// Account is a registered user together with a valid access token.
type Account struct {
	UserPayload
	Token string
}

// Register creates an account named name and logs it in.
func (e *Env) Register(name, password string) Account {
	e.T.Helper()

	email := strings.ToLower(name) + "@example.com"
	w := e.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusCreated, w.Code, w.Body.String())

	login := e.Login(email, password)
	return Account{UserPayload: login.User, Token: login.AccessToken}
}

// Login authenticates and returns the issued access token.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	require.Greater(e.T, result.ExpiresIn, 0)
	return result
}

// LinkTarget strips the base URL from an emailed link so it can be replayed
// against the router.
func LinkTarget(t *testing.T, link string) string {
	t.Helper()
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	require.Equal(t, BaseURL, parsed.Scheme+"://"+parsed.Host)
	return parsed.RequestURI()
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// ErrorCode returns the error code of a failed response.
func ErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp := DecodeResponse(t, w)
	require.False(t, resp.Success, w.Body.String())
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
