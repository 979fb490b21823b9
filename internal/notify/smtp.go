package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"digicop-backend/internal/config"
	"digicop-backend/internal/models"
)

const (
	fromName    = "Digi-Cop Website"
	dialTimeout = 15 * time.Second
)

type sendFunc func(ctx context.Context, msg *mail.Msg) error

type SMTPNotifier struct {
	cfg  config.SMTPConfig
	send sendFunc
	now  func() time.Time
}

func NewSMTPNotifier(cfg config.SMTPConfig) *SMTPNotifier {
	n := &SMTPNotifier{cfg: cfg, now: time.Now}
	n.send = n.dialAndSend
	return n
}

func (n *SMTPNotifier) Name() string {
	return "smtp"
}

// NotifyContact mails the message to the configured recipient. ctx bounds the
// whole SMTP session.
func (n *SMTPNotifier) NotifyContact(ctx context.Context, msg *models.ContactMessage) error {
	m, err := n.buildMessage(msg)
	if err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	if err := n.send(ctx, m); err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	return nil
}

func (n *SMTPNotifier) sender() string {
	if n.cfg.User != "" {
		return n.cfg.User
	}
	return n.cfg.NotifyEmail
}

func (n *SMTPNotifier) buildMessage(msg *models.ContactMessage) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(fromName, n.sender()); err != nil {
		return nil, err
	}
	if err := m.To(n.cfg.NotifyEmail); err != nil {
		return nil, err
	}
	m.Subject("New contact form submission: " + msg.Name)
	m.SetDateWithValue(n.now())
	m.SetBodyString(mail.TypeTextPlain, fmt.Sprintf(
		"Name: %s\nEmail: %s\nSubject: %s\nMessage:\n%s\n\nID: %s",
		msg.Name, msg.Email, msg.Subject, msg.Message, msg.ID,
	))
	return m, nil
}

func (n *SMTPNotifier) clientOptions() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(n.cfg.Port),
		mail.WithTimeout(dialTimeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if n.cfg.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.cfg.User),
			mail.WithPassword(n.cfg.Pass),
		)
	}
	return opts
}

func (n *SMTPNotifier) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(n.cfg.Host, n.clientOptions()...)
	if err != nil {
		return err
	}
	return client.DialAndSendWithContext(ctx, msg)
}
