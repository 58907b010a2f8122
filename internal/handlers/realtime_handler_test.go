package handlers_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/taskhub/internal/handlers/testutil"
	"github.com/charlesng35/taskhub/internal/realtime"
	"github.com/charlesng35/taskhub/pkg/mail"
)

func TestRealtimeHandler_RequiresAccessToken(t *testing.T) {
	env := testutil.NewEnv(t)

	missing := env.Request(http.MethodGet, "/api/ws", nil, "")
	require.Equal(t, http.StatusUnauthorized, missing.Code)

	forged := env.Request(http.MethodGet, "/api/ws?access_token=not-a-jwt", nil, "")
	require.Equal(t, http.StatusUnauthorized, forged.Code)
}

func TestRealtimeHandler_PushesAssignmentWithoutLinks(t *testing.T) {
	env := testutil.NewEnv(t)
	alice := env.Register("Alice", password)
	bob := env.Register("Bob", password)
	group := groupWithMember(t, env, alice, bob)

	server := httptest.NewServer(env.Router)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws?access_token=" + bob.Token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool { return env.Hub.Connected(bob.ID) == 1 }, time.Second, 10*time.Millisecond)

	task := createTask(t, env, alice, map[string]string{"title": "Review", "group_id": group.ID})
	assign(t, env, alice, "/api/tasks/"+task.ID, bob)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg realtime.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, mail.KindTaskAssignment, msg.Event)
	require.Equal(t, "Review", msg.Data["task"])
	require.NotContains(t, msg.Data, "accept_link")
	require.NotContains(t, msg.Data, "reject_link")
}
