package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/quotedprintable"
	netmail "net/mail"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"digicop-backend/internal/config"
	"digicop-backend/internal/metrics"
	"digicop-backend/internal/models"
)

func testMessage() *models.ContactMessage {
	return &models.ContactMessage{
		ID:        uuid.MustParse("6f1c8a52-9d1e-4c55-8f1e-1f7b2b0f9a10"),
		Name:      "Al",
		Email:     "a@b.com",
		Subject:   "Hi there",
		Message:   "Line one\nLine two",
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func captureSend(n *SMTPNotifier) *string {
	var raw string
	n.send = func(_ context.Context, m *mail.Msg) error {
		var buf bytes.Buffer
		if _, err := m.WriteTo(&buf); err != nil {
			return err
		}
		raw = buf.String()
		return nil
	}
	return &raw
}

func parseMail(t *testing.T, raw string) *netmail.Message {
	t.Helper()
	msg, err := netmail.ReadMessage(strings.NewReader(raw))
	require.NoError(t, err)
	return msg
}

func TestSMTPNotifier_SendsMail(t *testing.T) {
	n := NewSMTPNotifier(config.SMTPConfig{
		Host:        "smtp.example.com",
		Port:        587,
		User:        "site@example.com",
		Pass:        "secret",
		NotifyEmail: "ops@example.com",
	})
	raw := captureSend(n)

	require.NoError(t, n.NotifyContact(context.Background(), testMessage()))

	msg := parseMail(t, *raw)
	require.Equal(t, `"Digi-Cop Website" <site@example.com>`, msg.Header.Get("From"))
	require.Equal(t, "<ops@example.com>", msg.Header.Get("To"))
	require.Equal(t, "New contact form submission: Al", msg.Header.Get("Subject"))

	body, err := io.ReadAll(quotedprintable.NewReader(msg.Body))
	require.NoError(t, err)
	require.Contains(t, string(body), "Message:\r\nLine one\r\nLine two")
	require.Contains(t, string(body), "ID: 6f1c8a52-9d1e-4c55-8f1e-1f7b2b0f9a10")
}

func TestSMTPNotifier_EncodesNonASCIISubject(t *testing.T) {
	n := NewSMTPNotifier(config.SMTPConfig{Host: "relay", Port: 25, NotifyEmail: "ops@example.com"})
	raw := captureSend(n)

	contact := testMessage()
	contact.Name = "José Ñúñez"
	require.NoError(t, n.NotifyContact(context.Background(), contact))

	headers, _, _ := strings.Cut(*raw, "\r\n\r\n")
	require.NotContains(t, headers, "José")
	require.Contains(t, headers, "=?UTF-8?q?")

	subject, err := new(mime.WordDecoder).DecodeHeader(parseMail(t, *raw).Header.Get("Subject"))
	require.NoError(t, err)
	require.Equal(t, "New contact form submission: José Ñúñez", subject)
}

func TestSMTPNotifier_SenderWithoutUser(t *testing.T) {
	n := NewSMTPNotifier(config.SMTPConfig{Host: "relay", Port: 25, NotifyEmail: "ops@example.com"})
	raw := captureSend(n)

	require.NoError(t, n.NotifyContact(context.Background(), testMessage()))
	require.Equal(t, `"Digi-Cop Website" <ops@example.com>`, parseMail(t, *raw).Header.Get("From"))
	require.Len(t, n.clientOptions(), 3)

	n.cfg.User = "site@example.com"
	require.Len(t, n.clientOptions(), 6)
}

func TestSMTPNotifier_HeaderInjection(t *testing.T) {
	n := NewSMTPNotifier(config.SMTPConfig{Host: "relay", Port: 25, NotifyEmail: "ops@example.com"})
	raw := captureSend(n)

	contact := testMessage()
	contact.Name = "Al\r\nBcc: victim@example.com"
	require.NoError(t, n.NotifyContact(context.Background(), contact))

	headers, _, _ := strings.Cut(*raw, "\r\n\r\n")
	require.NotContains(t, headers, "\r\nBcc:")
}

func TestSMTPNotifier_Errors(t *testing.T) {
	n := NewSMTPNotifier(config.SMTPConfig{Host: "relay", Port: 25, NotifyEmail: "ops@example.com"})
	n.send = func(context.Context, *mail.Msg) error {
		return errors.New("connection refused")
	}
	require.ErrorContains(t, n.NotifyContact(context.Background(), testMessage()), "connection refused")

	n.cfg.NotifyEmail = "not an address"
	require.Error(t, n.NotifyContact(context.Background(), testMessage()))
}

func TestSMTPNotifier_DialHonoursContext(t *testing.T) {
	n := NewSMTPNotifier(config.SMTPConfig{Host: "127.0.0.1", Port: 1, NotifyEmail: "ops@example.com"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() { done <- n.NotifyContact(ctx, testMessage()) }()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(dialTimeout):
		t.Fatal("send did not return after its context was cancelled")
	}
}

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaNotifier_PublishesEvent(t *testing.T) {
	w := &fakeWriter{}
	n := &KafkaNotifier{w: w}
	msg := testMessage()

	require.NoError(t, n.NotifyContact(context.Background(), msg))
	require.Len(t, w.msgs, 1)
	require.Equal(t, msg.ID.String(), string(w.msgs[0].Key))

	var ev ContactEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	require.Equal(t, EventContactSubmitted, ev.Type)
	require.Equal(t, msg.ID.String(), ev.ID)
	require.Equal(t, "Hi there", ev.Subject)

	require.NoError(t, Multi{n}.Close())
	require.True(t, w.closed)
}

type stubNotifier struct {
	name  string
	err   error
	calls int
}

func (s *stubNotifier) Name() string { return s.name }

func (s *stubNotifier) NotifyContact(context.Context, *models.ContactMessage) error {
	s.calls++
	return s.err
}

func TestMulti_DeliversToAllAndAggregates(t *testing.T) {
	a := &stubNotifier{name: "multi-a", err: errors.New("a failed")}
	b := &stubNotifier{name: "multi-b"}
	c := &stubNotifier{name: "multi-c", err: errors.New("c failed")}

	err := Multi{a, b, c}.NotifyContact(context.Background(), testMessage())
	require.Error(t, err)
	require.Contains(t, err.Error(), "a failed")
	require.Contains(t, err.Error(), "c failed")
	require.Equal(t, 1, a.calls)
	require.Equal(t, 1, b.calls)
	require.Equal(t, 1, c.calls)

	require.Equal(t, float64(1), testutil.ToFloat64(metrics.Notifications.WithLabelValues("multi-a", "error")))
	require.Equal(t, float64(1), testutil.ToFloat64(metrics.Notifications.WithLabelValues("multi-b", "sent")))
	require.Equal(t, float64(0), testutil.ToFloat64(metrics.Notifications.WithLabelValues("multi-b", "error")))

	require.NoError(t, Multi{b}.NotifyContact(context.Background(), testMessage()))
}

func TestFromConfig(t *testing.T) {
	require.Empty(t, FromConfig(&config.Config{}))

	m := FromConfig(&config.Config{
		SMTP:  config.SMTPConfig{Host: "relay", Port: 25, NotifyEmail: "ops@example.com"},
		Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}, ContactTopic: "contact.submitted"},
	})
	require.Len(t, m, 2)
	require.Equal(t, "smtp", m[0].Name())
	require.Equal(t, "kafka", m[1].Name())
	require.NoError(t, m.Close())
}
