package mail

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/taskhub/pkg/metrics"
)

const defaultNotifyTimeout = 15 * time.Second

// Notification is a templated message addressed to a single recipient.
type Notification struct {
	Recipient string
	// UserID identifies the recipient account for in-app delivery.
	UserID  string
	Kind    string
	Context map[string]string
}

// Notifier renders notifications and hands them to a Mailer. Delivery is
// best-effort: failures are logged and counted, never returned.
type Notifier struct {
	mailer    Mailer
	transport string
	timeout   time.Duration
	log       *zap.Logger
}

// NewNotifier wraps mailer. A nil mailer yields a notifier that drops everything.
func NewNotifier(mailer Mailer, transport string, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	if transport == "" {
		transport = "none"
	}
	return &Notifier{
		mailer:    mailer,
		transport: transport,
		timeout:   defaultNotifyTimeout,
		log:       log,
	}
}

// Notify renders and sends n. The caller's context only contributes values;
// cancellation of the originating request does not abort delivery.
func (n *Notifier) Notify(ctx context.Context, note Notification) {
	if n == nil || n.mailer == nil || note.Recipient == "" {
		return
	}

	msg, err := Render(note.Kind, note.Recipient, note.Context)
	if err != nil {
		n.log.Error("render notification", zap.String("kind", note.Kind), zap.Error(err))
		metrics.MailDeliveries.WithLabelValues(n.transport, "render_error").Inc()
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.timeout)
	defer cancel()

	if err := n.mailer.Send(sendCtx, msg); err != nil {
		if errors.Is(err, ErrSMTPDisabled) {
			metrics.MailDeliveries.WithLabelValues(n.transport, "disabled").Inc()
			return
		}
		n.log.Warn("notification delivery failed", zap.String("kind", note.Kind), zap.Error(err))
		metrics.MailDeliveries.WithLabelValues(n.transport, "failure").Inc()
		return
	}
	metrics.MailDeliveries.WithLabelValues(n.transport, "success").Inc()
}
