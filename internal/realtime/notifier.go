package realtime

import (
	"context"
	"strings"

	"github.com/charlesng35/taskhub/pkg/mail"
)

// inApp lists the notification kinds mirrored to connected clients. Password
// reset requests are mail-only since the requester is not signed in.
var inApp = map[string]struct{}{
	mail.KindPasswordChanged:    {},
	mail.KindGroupInvite:        {},
	mail.KindTaskAssignment:     {},
	mail.KindAssignmentDecision: {},
}

// Notifier mirrors notifications to the recipient's live connections.
type Notifier struct {
	hub *Hub
}

// NewNotifier wraps hub.
func NewNotifier(hub *Hub) *Notifier {
	return &Notifier{hub: hub}
}

// Notify publishes note without any embedded links; those carry token
// secrets and stay in the recipient's mailbox.
func (n *Notifier) Notify(_ context.Context, note mail.Notification) {
	if n == nil || n.hub == nil || note.UserID == "" {
		return
	}
	if _, ok := inApp[note.Kind]; !ok {
		return
	}

	data := make(map[string]string, len(note.Context))
	for key, value := range note.Context {
		if strings.HasSuffix(key, "link") {
			continue
		}
		data[key] = value
	}
	n.hub.Publish(note.UserID, Message{Event: note.Kind, Data: data})
}
