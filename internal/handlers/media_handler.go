package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"digicop-backend/internal/storage"
	"digicop-backend/utils/response"
)

const presignTTL = 15 * time.Minute

type VideoOpener interface {
	OpenVideo(ctx context.Context, filename string) (io.ReadCloser, error)
}

type Presigner interface {
	PresignGet(ctx context.Context, filename string, ttl time.Duration) (*url.URL, error)
}

// MediaHandler serves stored videos under /uploads/. With a Presigner it
// redirects to a short-lived object URL instead of proxying the bytes.
type MediaHandler struct {
	videos    VideoOpener
	presigner Presigner
	log       *zap.SugaredLogger
}

func NewMediaHandler(videos VideoOpener, presigner Presigner, log *zap.SugaredLogger) *MediaHandler {
	return &MediaHandler{videos: videos, presigner: presigner, log: log}
}

func (h *MediaHandler) ServeVideo(w http.ResponseWriter, r *http.Request) {
	filename := r.PathValue("filename")

	if h.presigner != nil {
		u, err := h.presigner.PresignGet(r.Context(), filename, presignTTL)
		if err != nil {
			h.mediaError(w, filename, err)
			return
		}
		http.Redirect(w, r, u.String(), http.StatusFound)
		return
	}

	rc, err := h.videos.OpenVideo(r.Context(), filename)
	if err != nil {
		h.mediaError(w, filename, err)
		return
	}
	defer rc.Close()

	if ct := videoContentType(filename); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, filename, time.Time{}, rs)
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		h.log.With("err", err, "filename", filename).Warn("video stream interrupted")
	}
}

func videoContentType(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".mp4":
		return "video/mp4"
	case ".webm":
		return "video/webm"
	case ".ogv", ".ogg":
		return "video/ogg"
	default:
		return mime.TypeByExtension(ext)
	}
}

func (h *MediaHandler) mediaError(w http.ResponseWriter, filename string, err error) {
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidName) {
		response.Error(w, http.StatusNotFound, "File not found")
		return
	}
	h.log.With("err", err, "filename", filename).Error("failed to open video")
	response.Error(w, http.StatusInternalServerError, "Failed to retrieve file")
}
