package services

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/taskhub/internal/auth"
	"github.com/charlesng35/taskhub/internal/database/testutil"
	"github.com/charlesng35/taskhub/internal/models"
	"github.com/charlesng35/taskhub/internal/tokens"
	"github.com/charlesng35/taskhub/pkg/mail"
)

const (
	testServerSecret = "0123456789abcdef0123456789abcdef"
	testBaseURL      = "https://taskhub.test"
	testPassword     = "correct-horse-1"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureNotifier struct {
	mu    sync.Mutex
	notes []mail.Notification
}

func (n *captureNotifier) Notify(_ context.Context, note mail.Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note)
}

func (n *captureNotifier) last(t *testing.T, kind string) mail.Notification {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.notes) - 1; i >= 0; i-- {
		if n.notes[i].Kind == kind {
			return n.notes[i]
		}
	}
	t.Fatalf("no %s notification captured", kind)
	return mail.Notification{}
}

func (n *captureNotifier) count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, note := range n.notes {
		if note.Kind == kind {
			total++
		}
	}
	return total
}

type testEnv struct {
	db        *gorm.DB
	clock     *testClock
	notifier  *captureNotifier
	audit     *AuditService
	users     *UserService
	groups    *GroupService
	invites   *GroupInviteService
	resets    *PasswordResetService
	tasks     *TaskService
	responses *AssignmentResponseService
	jwt       *auth.JWTService
}

func newTestEnv(t *testing.T, dbOpts ...testutil.TestDBOption) *testEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t, append([]testutil.TestDBOption{testutil.WithAutoMigrate()}, dbOpts...)...)
	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}
	notifier := &captureNotifier{}
	links := NewLinks(testBaseURL)

	codec, err := tokens.NewCodec(testServerSecret, tokens.DefaultSecretBytes)
	require.NoError(t, err)
	store := tokens.NewStore(codec, tokens.WithClock(clock.Now))

	jwtSvc, err := auth.NewJWTService(auth.JWTConfig{Secret: testServerSecret, Issuer: "taskhub-test", Clock: clock.Now})
	require.NoError(t, err)

	audit, err := NewAuditService(db, WithAuditClock(clock.Now))
	require.NoError(t, err)
	users, err := NewUserService(db, audit)
	require.NoError(t, err)
	groups, err := NewGroupService(db, audit, WithGroupClock(clock.Now))
	require.NoError(t, err)
	invites, err := NewGroupInviteService(db, store, audit, notifier, links, WithInviteClock(clock.Now))
	require.NoError(t, err)
	resets, err := NewPasswordResetService(db, store, jwtSvc, audit, notifier, links, WithResetClock(clock.Now))
	require.NoError(t, err)
	tasks, err := NewTaskService(db, store, audit, notifier, links, WithTaskClock(clock.Now))
	require.NoError(t, err)
	responses, err := NewAssignmentResponseService(tasks)
	require.NoError(t, err)

	return &testEnv{
		db:        db,
		clock:     clock,
		notifier:  notifier,
		audit:     audit,
		users:     users,
		groups:    groups,
		invites:   invites,
		resets:    resets,
		tasks:     tasks,
		responses: responses,
		jwt:       jwtSvc,
	}
}

func (e *testEnv) register(t *testing.T, name string) *models.User {
	t.Helper()
	user, err := e.users.Register(context.Background(), RegisterInput{
		Name:     name,
		Email:    strings.ToLower(name) + "@example.com",
		Password: testPassword,
	})
	require.NoError(t, err)
	return user
}

// groupWith creates a group owned by owner and adds each member with the given role.
func (e *testEnv) groupWith(t *testing.T, owner *models.User, members map[*models.User]models.GroupRole) *models.Group {
	t.Helper()
	group, err := e.groups.Create(context.Background(), owner.ID, CreateGroupInput{Name: "Team " + owner.Name})
	require.NoError(t, err)
	for user, role := range members {
		require.NoError(t, e.db.Create(&models.GroupMember{
			GroupID:  group.ID,
			UserID:   user.ID,
			Role:     role,
			JoinedAt: e.clock.Now(),
		}).Error)
	}
	return group
}

// pathCredentials extracts the id and secret from a link ending in /{id}/{secret}.
func pathCredentials(t *testing.T, link string) (string, string) {
	t.Helper()
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	require.GreaterOrEqual(t, len(parts), 2)
	return parts[len(parts)-2], parts[len(parts)-1]
}

// decisionLink returns the token and status query values of an assignment link.
func decisionLink(t *testing.T, link string) (string, string) {
	t.Helper()
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	require.Equal(t, "/tasks/assignments/decide", parsed.Path)
	return parsed.Query().Get("token"), parsed.Query().Get("status")
}

func requireKind(t *testing.T, err error, kind ErrorKind) {
	t.Helper()
	require.Error(t, err)
	got, ok := KindOf(err)
	require.True(t, ok, "expected domain error, got %v", err)
	require.Equal(t, kind, got, "unexpected kind for %v", err)
}
