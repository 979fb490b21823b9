package handlers

import (
	"context"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"digicop-backend/internal/dto"
	"digicop-backend/internal/models"
	"digicop-backend/internal/services"
	"digicop-backend/utils/response"
)

type ContactLister interface {
	ListContactMessages(ctx context.Context, limit, offset int) ([]models.ContactMessage, error)
}

type UploadLister interface {
	ListUploads(ctx context.Context) ([]models.UploadRecord, error)
	FindOrphans(ctx context.Context) ([]string, error)
}

// AdminHandler serves the read-only admin views over stored submissions.
type AdminHandler struct {
	contacts ContactLister
	uploads  UploadLister
	log      *zap.SugaredLogger
}

func NewAdminHandler(contacts ContactLister, uploads UploadLister, log *zap.SugaredLogger) *AdminHandler {
	return &AdminHandler{contacts: contacts, uploads: uploads, log: log}
}

func (h *AdminHandler) ListContactMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "offset must be an integer")
		return
	}
	limit, offset = services.ClampPage(limit, offset)

	messages, err := h.contacts.ListContactMessages(r.Context(), limit, offset)
	if err != nil {
		h.log.With("err", err).Error("failed to list contact messages")
		response.Error(w, http.StatusInternalServerError, "Failed to list contact messages")
		return
	}

	response.Success(w, dto.ContactListResponse{
		Items:  messages,
		Limit:  limit,
		Offset: offset,
	}, "")
}

// ListUploads returns every readable sidecar. Unreadable sidecars are logged
// and left out.
func (h *AdminHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	records, err := h.uploads.ListUploads(r.Context())
	if err != nil {
		if records == nil {
			h.log.With("err", err).Error("failed to list uploads")
			response.Error(w, http.StatusInternalServerError, "Failed to list uploads")
			return
		}
		h.log.With("err", err).Warn("some upload records could not be read")
	}
	if records == nil {
		records = []models.UploadRecord{}
	}

	response.Success(w, records, "")
}

func (h *AdminHandler) ListOrphans(w http.ResponseWriter, r *http.Request) {
	orphans, err := h.uploads.FindOrphans(r.Context())
	if err != nil {
		if orphans == nil {
			h.log.With("err", err).Error("failed to find orphaned uploads")
			response.Error(w, http.StatusInternalServerError, "Failed to find orphaned uploads")
			return
		}
		h.log.With("err", err).Warn("orphan report may be incomplete")
	}

	response.Success(w, orphans, "")
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
