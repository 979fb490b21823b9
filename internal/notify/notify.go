// Package notify delivers best-effort notifications about new contact
// messages. Callers log failures; they never affect the submission itself.
package notify

import (
	"context"
	"io"

	"github.com/hashicorp/go-multierror"

	"digicop-backend/internal/config"
	"digicop-backend/internal/metrics"
	"digicop-backend/internal/models"
)

type Notifier interface {
	Name() string
	NotifyContact(ctx context.Context, msg *models.ContactMessage) error
}

// Multi delivers to every notifier, counts each delivery per channel and
// reports all failures together.
type Multi []Notifier

func (m Multi) NotifyContact(ctx context.Context, msg *models.ContactMessage) error {
	var errs error
	for _, n := range m {
		if err := n.NotifyContact(ctx, msg); err != nil {
			metrics.Notifications.WithLabelValues(n.Name(), "error").Inc()
			errs = multierror.Append(errs, err)
			continue
		}
		metrics.Notifications.WithLabelValues(n.Name(), "sent").Inc()
	}
	return errs
}

func (m Multi) Close() error {
	var errs error
	for _, n := range m {
		if c, ok := n.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
	}
	return errs
}

// FromConfig returns the notifiers enabled by cfg, or nil when none are.
func FromConfig(cfg *config.Config) Multi {
	var m Multi
	if cfg.SMTP.Enabled() {
		m = append(m, NewSMTPNotifier(cfg.SMTP))
	}
	if cfg.Kafka.Enabled() {
		m = append(m, NewKafkaNotifier(cfg.Kafka))
	}
	return m
}
