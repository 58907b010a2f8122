package mail

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
	"go.uber.org/zap"
)

// KafkaSettings configure the queued mail transport.
type KafkaSettings struct {
	Brokers  []string
	Topic    string
	GroupID  string
	Username string
	Password string
	UseTLS   bool
	Timeout  time.Duration
}

func (s KafkaSettings) validate() error {
	if len(s.Brokers) == 0 {
		return errors.New("kafka: at least one broker is required")
	}
	if strings.TrimSpace(s.Topic) == "" {
		return errors.New("kafka: topic is required")
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMailer enqueues messages on a Kafka topic for a mail worker to deliver.
type KafkaMailer struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafkaMailer builds a producer for the configured topic.
func NewKafkaMailer(cfg KafkaSettings) (*KafkaMailer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	transport := &kafka.Transport{}
	if cfg.Username != "" {
		transport.SASL = plain.Mechanism{Username: cfg.Username, Password: cfg.Password}
	}
	if cfg.UseTLS {
		transport.TLS = &tls.Config{}
	}

	return &KafkaMailer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
			Transport:    transport,
			WriteTimeout: cfg.Timeout,
		},
		timeout: cfg.Timeout,
	}, nil
}

// Send serialises msg and publishes it keyed by its first recipient.
func (m *KafkaMailer) Send(ctx context.Context, msg Message) error {
	if m == nil || m.writer == nil {
		return errors.New("kafka: producer not configured")
	}
	recipients := uniqueAddresses(msg.To)
	if len(recipients) == 0 {
		return errors.New("kafka: at least one recipient is required")
	}
	msg.To = recipients

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("kafka: encode message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err := m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(recipients[0]),
		Value: payload,
		Time:  time.Now(),
	}); err != nil {
		return fmt.Errorf("kafka: publish: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (m *KafkaMailer) Close() error {
	if m == nil || m.writer == nil {
		return nil
	}
	return m.writer.Close()
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads queued messages and hands them to a delivery Mailer.
type KafkaConsumer struct {
	reader   messageReader
	delivery Mailer
	log      *zap.Logger
}

// NewKafkaConsumer joins the configured consumer group.
func NewKafkaConsumer(cfg KafkaSettings, delivery Mailer, log *zap.Logger) (*KafkaConsumer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if delivery == nil {
		return nil, errors.New("kafka: delivery mailer is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	dialer := &kafka.Dialer{Timeout: 10 * time.Second, DualStack: true}
	if cfg.Username != "" {
		dialer.SASLMechanism = plain.Mechanism{Username: cfg.Username, Password: cfg.Password}
	}
	if cfg.UseTLS {
		dialer.TLS = &tls.Config{}
	}

	groupID := cfg.GroupID
	if groupID == "" {
		groupID = "taskhub-mailworker"
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  groupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		Dialer:   dialer,
	})

	return &KafkaConsumer{reader: reader, delivery: delivery, log: log}, nil
}

// Run consumes until ctx is cancelled. Messages that fail to decode are
// committed and dropped; delivery failures are logged and committed so a
// poisoned message cannot stall the partition.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		record, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return fmt.Errorf("kafka: fetch: %w", err)
		}

		c.handle(ctx, record)

		if err := c.reader.CommitMessages(ctx, record); err != nil {
			c.log.Warn("commit failed", zap.Int64("offset", record.Offset), zap.Error(err))
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, record kafka.Message) {
	var msg Message
	if err := json.Unmarshal(record.Value, &msg); err != nil {
		c.log.Warn("dropping undecodable mail message", zap.Int64("offset", record.Offset), zap.Error(err))
		return
	}
	if err := c.delivery.Send(ctx, msg); err != nil {
		c.log.Warn("mail delivery failed", zap.String("kind", msg.Kind), zap.Error(err))
		return
	}
	c.log.Debug("mail delivered", zap.String("kind", msg.Kind))
}

// Close leaves the consumer group.
func (c *KafkaConsumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
