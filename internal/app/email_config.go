package app

import (
	"strings"

	"github.com/charlesng35/taskhub/pkg/mail"
)

// Supported values of email.transport.
const (
	TransportSMTP  = "smtp"
	TransportKafka = "kafka"
	TransportNone  = "none"
)

// TransportName normalises email.transport, defaulting to none.
func (c EmailConfig) TransportName() string {
	switch t := strings.ToLower(strings.TrimSpace(c.Transport)); t {
	case TransportSMTP, TransportKafka:
		return t
	default:
		return TransportNone
	}
}

// SMTPSettings converts EmailConfig to the mail package representation.
func (c EmailConfig) SMTPSettings() mail.SMTPSettings {
	return mail.SMTPSettings{
		Enabled:  c.SMTP.Enabled,
		Host:     strings.TrimSpace(c.SMTP.Host),
		Port:     c.SMTP.Port,
		Username: c.SMTP.Username,
		Password: c.SMTP.Password,
		From:     strings.TrimSpace(c.SMTP.From),
		UseTLS:   c.SMTP.UseTLS,
		Timeout:  c.SMTP.Timeout,
	}
}

// KafkaSettings converts EmailConfig to the queued mail transport settings.
func (c EmailConfig) KafkaSettings() mail.KafkaSettings {
	brokers := make([]string, 0, len(c.Kafka.Brokers))
	for _, b := range c.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return mail.KafkaSettings{
		Brokers:  brokers,
		Topic:    strings.TrimSpace(c.Kafka.Topic),
		GroupID:  strings.TrimSpace(c.Kafka.GroupID),
		Username: c.Kafka.Username,
		Password: c.Kafka.Password,
		UseTLS:   c.Kafka.UseTLS,
		Timeout:  c.Kafka.Timeout,
	}
}
