package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"digicop-backend/internal/database"
	"digicop-backend/internal/dto"
	"digicop-backend/internal/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

type ContactService struct {
	db  *database.DB
	now func() time.Time
}

func NewContactService(db *database.DB) *ContactService {
	return &ContactService{db: db, now: time.Now}
}

func (s *ContactService) CreateContactMessage(ctx context.Context, input *dto.ContactMessageRequest) (*models.ContactMessage, error) {
	message := &models.ContactMessage{
		ID:        uuid.New(),
		Name:      input.Name,
		Email:     input.Email,
		Subject:   input.Subject,
		Message:   input.Message,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}

	query := s.db.Rebind(`
		insert into contact_messages (id, name, email, subject, message, created_at)
		values (?, ?, ?, ?, ?, ?)
	`)
	if _, err := s.db.ExecContext(ctx, query,
		message.ID.String(), message.Name, message.Email, message.Subject, message.Message, message.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to create contact message: %w", err)
	}

	return message, nil
}

func (s *ContactService) ListContactMessages(ctx context.Context, limit, offset int) ([]models.ContactMessage, error) {
	limit, offset = ClampPage(limit, offset)

	query := s.db.Rebind(`
		select id, name, email, subject, message, created_at
		from contact_messages
		order by created_at desc
		limit ? offset ?
	`)

	messages := []models.ContactMessage{}
	if err := s.db.SelectContext(ctx, &messages, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list contact messages: %w", err)
	}
	return messages, nil
}

func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
