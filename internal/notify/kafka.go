package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"digicop-backend/internal/config"
	"digicop-backend/internal/models"
)

const EventContactSubmitted = "contact.submitted"

type ContactEvent struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes a contact.submitted event keyed by message ID.
type KafkaNotifier struct {
	w messageWriter
}

func NewKafkaNotifier(cfg config.KafkaConfig) *KafkaNotifier {
	return &KafkaNotifier{
		w: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.ContactTopic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (n *KafkaNotifier) Name() string {
	return "kafka"
}

func (n *KafkaNotifier) NotifyContact(ctx context.Context, msg *models.ContactMessage) error {
	value, err := json.Marshal(ContactEvent{
		Type:      EventContactSubmitted,
		ID:        msg.ID.String(),
		Name:      msg.Name,
		Email:     msg.Email,
		Subject:   msg.Subject,
		Message:   msg.Message,
		CreatedAt: msg.CreatedAt,
	})
	if err != nil {
		return err
	}

	err = n.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.ID.String()),
		Value: value,
		Time:  msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("kafka: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.w.Close()
}
