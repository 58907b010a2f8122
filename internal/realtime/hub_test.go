package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/taskhub/pkg/mail"
)

func dial(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(userID, w, r)
	}))
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool { return hub.Connected(userID) == 1 }, time.Second, 10*time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHubPublishTargetsUser(t *testing.T) {
	hub := NewHub()
	alice := dial(t, hub, "alice")
	dial(t, hub, "bob")

	hub.Publish("alice", Message{Event: "task_assignment", Data: map[string]string{"task": "Ship"}})

	msg := readMessage(t, alice)
	require.Equal(t, "task_assignment", msg.Event)
	require.Equal(t, "Ship", msg.Data["task"])
	require.False(t, msg.At.IsZero())

	require.Zero(t, hub.Connected("carol"))
}

func TestHubPingAndDisconnect(t *testing.T) {
	hub := NewHub()
	conn := dial(t, hub, "alice")

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "ping"}))
	require.Equal(t, "pong", readMessage(t, conn).Event)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Connected("alice") == 0 }, time.Second, 10*time.Millisecond)
}

func TestHubClose(t *testing.T) {
	hub := NewHub()
	dial(t, hub, "alice")

	hub.Close()
	require.Zero(t, hub.Connected("alice"))
}

func TestNotifierStripsLinks(t *testing.T) {
	hub := NewHub()
	conn := dial(t, hub, "user-1")
	notifier := NewNotifier(hub)

	notifier.Notify(context.Background(), mail.Notification{
		Recipient: "a@example.com",
		UserID:    "user-1",
		Kind:      mail.KindPasswordReset,
		Context:   map[string]string{"link": "https://x/secret"},
	})
	notifier.Notify(context.Background(), mail.Notification{
		Recipient: "a@example.com",
		UserID:    "user-1",
		Kind:      mail.KindTaskAssignment,
		Context: map[string]string{
			"task":        "Ship",
			"accept_link": "https://x/accept",
			"reject_link": "https://x/reject",
		},
	})

	msg := readMessage(t, conn)
	require.Equal(t, mail.KindTaskAssignment, msg.Event)
	require.Equal(t, map[string]string{"task": "Ship"}, msg.Data)
}

func TestSameOriginOrLoopback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://taskhub.test/ws", nil)
	require.True(t, sameOriginOrLoopback(req))

	req.Header.Set("Origin", "https://taskhub.test")
	require.True(t, sameOriginOrLoopback(req))

	req.Header.Set("Origin", "http://localhost:5173")
	require.True(t, sameOriginOrLoopback(req))

	req.Header.Set("Origin", "https://evil.example")
	require.False(t, sameOriginOrLoopback(req))
}
