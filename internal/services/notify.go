package services

import (
	"context"
	"net/url"
	"strings"

	"github.com/charlesng35/taskhub/pkg/mail"
)

// Notifier delivers templated notifications. Implementations are best-effort
// and must not report failures back to the caller.
type Notifier interface {
	Notify(ctx context.Context, note mail.Notification)
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, mail.Notification) {}

type fanOut []Notifier

func (f fanOut) Notify(ctx context.Context, note mail.Notification) {
	for _, n := range f {
		n.Notify(ctx, note)
	}
}

// FanOut delivers every notification to each non-nil notifier in order.
func FanOut(notifiers ...Notifier) Notifier {
	var out fanOut
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func notifierOrNoop(n Notifier) Notifier {
	if n == nil {
		return noopNotifier{}
	}
	return n
}

// Links builds the absolute URLs embedded in outgoing mail.
type Links struct {
	base string
}

func NewLinks(baseURL string) Links {
	return Links{base: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

func (l Links) ResetPassword(id, secret string) string {
	return l.base + "/verify-reset-token/" + url.PathEscape(id) + "/" + url.PathEscape(secret)
}

func (l Links) GroupInvite(id, secret string) string {
	return l.base + "/groups/invitation/" + url.PathEscape(id) + "/" + url.PathEscape(secret)
}

func (l Links) AssignmentDecision(opaque, status string) string {
	q := url.Values{}
	q.Set("token", opaque)
	q.Set("status", status)
	return l.base + "/tasks/assignments/decide?" + q.Encode()
}
