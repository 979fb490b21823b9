package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"digicop-backend/internal/dto"
	"digicop-backend/internal/metrics"
	"digicop-backend/internal/models"
	"digicop-backend/internal/notify"
	"digicop-backend/internal/validation"
	"digicop-backend/utils/response"
)

const (
	maxContactBody = 64 << 10
	notifyTimeout  = 30 * time.Second
)

type ContactStore interface {
	CreateContactMessage(ctx context.Context, input *dto.ContactMessageRequest) (*models.ContactMessage, error)
}

type ContactHandler struct {
	store     ContactStore
	notifiers notify.Multi
	log       *zap.SugaredLogger

	pending sync.WaitGroup
}

func NewContactHandler(store ContactStore, notifiers notify.Multi, log *zap.SugaredLogger) *ContactHandler {
	return &ContactHandler{store: store, notifiers: notifiers, log: log}
}

func (h *ContactHandler) CreateContactMessage(w http.ResponseWriter, r *http.Request) {
	var input dto.ContactMessageRequest
	if field, msg, ok := decodeContact(w, r, &input); !ok {
		metrics.ContactSubmissions.WithLabelValues("invalid").Inc()
		response.ValidationError(w, field, msg)
		return
	}

	if err := validation.Struct(&input); err != nil {
		metrics.ContactSubmissions.WithLabelValues("invalid").Inc()
		var fe *validation.FieldError
		if errors.As(err, &fe) {
			response.ValidationError(w, fe.Field, fe.Message)
			return
		}
		response.ValidationError(w, "", err.Error())
		return
	}

	message, err := h.store.CreateContactMessage(r.Context(), &input)
	if err != nil {
		metrics.ContactSubmissions.WithLabelValues("error").Inc()
		h.log.With("err", err).Error("failed to save contact message")
		response.Error(w, http.StatusInternalServerError, "Failed to save contact message")
		return
	}

	metrics.ContactSubmissions.WithLabelValues("created").Inc()
	h.log.With("id", message.ID, "email", message.Email).Info("contact message received")

	h.notify(message)

	response.JSON(w, http.StatusCreated, message)
}

func decodeContact(w http.ResponseWriter, r *http.Request, input *dto.ContactMessageRequest) (string, string, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxContactBody)

	if err := json.NewDecoder(r.Body).Decode(input); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return typeErr.Field, fmt.Sprintf("Expected string, received %s", typeErr.Value), false
		}
		return "", "Invalid request body", false
	}
	return "", "", true
}

// notify fans the message out to every notifier in the background. The
// request context is not used, so delivery outlives the response.
func (h *ContactHandler) notify(message *models.ContactMessage) {
	if len(h.notifiers) == 0 {
		return
	}

	h.pending.Add(1)
	go func() {
		defer h.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := h.notifiers.NotifyContact(ctx, message); err != nil {
			h.log.With("err", err, "id", message.ID).Warn("contact notification failed")
		}
	}()
}

// Wait blocks until in-flight notifications finish or ctx is done.
func (h *ContactHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
