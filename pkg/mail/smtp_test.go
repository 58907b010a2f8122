package mail

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

type fakeSMTPClient struct {
	from    string
	rcpts   []string
	body    bytes.Buffer
	rcptErr error
	quit    bool
}

func (c *fakeSMTPClient) Mail(from string) error { c.from = from; return nil }
func (c *fakeSMTPClient) Rcpt(to string) error {
	if c.rcptErr != nil {
		return c.rcptErr
	}
	c.rcpts = append(c.rcpts, to)
	return nil
}
func (c *fakeSMTPClient) Data() (io.WriteCloser, error)   { return nopCloser{&c.body}, nil }
func (c *fakeSMTPClient) Quit() error                     { c.quit = true; return nil }
func (c *fakeSMTPClient) Close() error                    { return nil }
func (c *fakeSMTPClient) StartTLS(*tls.Config) error      { return nil }
func (c *fakeSMTPClient) Auth(smtp.Auth) error            { return nil }
func (c *fakeSMTPClient) Extension(string) (bool, string) { return false, "" }

func enabledSettings() SMTPSettings {
	return SMTPSettings{Enabled: true, Host: "smtp.example.com", Port: 587, From: "taskhub@example.com"}
}

func fakeMailer(t *testing.T, client *fakeSMTPClient) *smtpMailer {
	t.Helper()
	m, err := NewSMTPMailer(enabledSettings())
	require.NoError(t, err)
	sm := m.(*smtpMailer)
	sm.dialFn = func(context.Context, SMTPSettings) (net.Conn, smtpClient, error) {
		server, conn := net.Pipe()
		t.Cleanup(func() { _ = server.Close() })
		return conn, client, nil
	}
	return sm
}

func TestNewSMTPMailerValidatesConfig(t *testing.T) {
	_, err := NewSMTPMailer(SMTPSettings{Enabled: true})
	require.ErrorContains(t, err, "host is required")

	_, err = NewSMTPMailer(SMTPSettings{Enabled: true, Host: "smtp.example.com"})
	require.ErrorContains(t, err, "port is required")

	m, err := NewSMTPMailer(enabledSettings())
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, m.(*smtpMailer).cfg.Timeout)
}

func TestSMTPMailerDisabled(t *testing.T) {
	m, err := NewSMTPMailer(SMTPSettings{})
	require.NoError(t, err)

	err = m.Send(context.Background(), Message{To: []string{"a@example.com"}})
	require.ErrorIs(t, err, ErrSMTPDisabled)
}

func TestSMTPMailerRejectsBadAddresses(t *testing.T) {
	m := fakeMailer(t, &fakeSMTPClient{})
	ctx := context.Background()

	require.ErrorContains(t, m.Send(ctx, Message{To: []string{" ", "\t"}}), "at least one recipient")
	require.ErrorContains(t, m.Send(ctx, Message{From: "nope", To: []string{"a@example.com"}}), "invalid from address")
	require.ErrorContains(t, m.Send(ctx, Message{To: []string{"a@example.com", "bad"}}), "invalid recipient address")
}

func TestSMTPMailerSendsDeduplicatedMessage(t *testing.T) {
	client := &fakeSMTPClient{}
	m := fakeMailer(t, client)

	err := m.Send(context.Background(), Message{
		To:      []string{"bob@example.com", " bob@example.com ", "carol@example.com"},
		Subject: "Invite\r\nBcc: evil@example.com",
		Body:    "hello",
	})
	require.NoError(t, err)
	require.Equal(t, "taskhub@example.com", client.from)
	require.Equal(t, []string{"bob@example.com", "carol@example.com"}, client.rcpts)
	require.True(t, client.quit)

	raw := client.body.String()
	require.Contains(t, raw, "Subject: Invite  Bcc: evil@example.com\r\n")
	require.True(t, strings.HasSuffix(raw, "\r\n\r\nhello"), raw)
}

func TestSMTPMailerWrapsRcptError(t *testing.T) {
	m := fakeMailer(t, &fakeSMTPClient{rcptErr: errors.New("550 mailbox unavailable")})

	err := m.Send(context.Background(), Message{To: []string{"bob@example.com"}})
	require.ErrorContains(t, err, "rcpt to bob@example.com")
}
