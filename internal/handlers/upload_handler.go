package handlers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"digicop-backend/internal/dto"
	"digicop-backend/internal/metrics"
	"digicop-backend/internal/models"
	"digicop-backend/internal/services"
	"digicop-backend/utils/response"
)

const (
	videoField     = "video"
	formOverhead   = 1 << 20
	maxFieldBytes  = 64 << 10
	maxExtraFields = 16
)

var (
	errBadForm       = errors.New("Invalid multipart/form-data body")
	errFieldTooLong  = errors.New("Form field too long")
	errTooManyFields = errors.New("Too many form fields")
	errExtraVideo    = errors.New("Unexpected field")
)

type VideoStore interface {
	Store(ctx context.Context, in *services.VideoUpload) (*models.UploadRecord, error)
}

type UploadHandler struct {
	service VideoStore
	log     *zap.SugaredLogger
}

func NewUploadHandler(service VideoStore, log *zap.SugaredLogger) *UploadHandler {
	return &UploadHandler{service: service, log: log}
}

func (h *UploadHandler) UploadDemo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, services.MaxVideoBytes+formOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		h.fail(w, errBadForm)
		return
	}

	upload, err := readUploadForm(mr)
	if err != nil {
		h.fail(w, err)
		return
	}

	record, err := h.service.Store(r.Context(), upload)
	if err != nil {
		h.fail(w, err)
		return
	}

	metrics.Uploads.WithLabelValues("stored").Inc()
	metrics.UploadSize.Observe(float64(record.Size))
	h.log.With(
		"filename", record.Filename,
		"original", record.OriginalName,
		"size", record.Size,
	).Info("stored demo video")

	response.JSON(w, http.StatusOK, dto.UploadResponse{
		Success:      true,
		URL:          record.SavedPath,
		Hash:         record.Hash,
		Filename:     record.Filename,
		OriginalName: record.OriginalName,
		TS:           record.TS,
	})
}

// readUploadForm walks the parts in order. The video part's content type is
// checked from its header before any of its body is read.
func readUploadForm(mr *multipart.Reader) (*services.VideoUpload, error) {
	var upload *services.VideoUpload
	extra := map[string]string{}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return nil, services.ErrTooLarge
			}
			return nil, errBadForm
		}

		if part.FormName() == videoField && part.FileName() != "" {
			if upload != nil {
				part.Close()
				return nil, errExtraVideo
			}
			upload, err = readVideoPart(part)
			part.Close()
			if err != nil {
				return nil, err
			}
			continue
		}

		if part.FileName() != "" || part.FormName() == "" {
			part.Close()
			continue
		}
		if len(extra) >= maxExtraFields {
			part.Close()
			return nil, errTooManyFields
		}
		value, err := readField(part)
		part.Close()
		if err != nil {
			return nil, err
		}
		extra[part.FormName()] = value
	}

	if upload == nil {
		return nil, services.ErrNoVideo
	}
	upload.Extra = extra
	return upload, nil
}

func readVideoPart(part *multipart.Part) (*services.VideoUpload, error) {
	contentType, err := services.NormalizeContentType(part.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	data, err := services.ReadVideo(part)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || errors.Is(err, services.ErrTooLarge) {
			return nil, services.ErrTooLarge
		}
		return nil, errBadForm
	}

	return &services.VideoUpload{
		OriginalName: part.FileName(),
		ContentType:  contentType,
		Data:         data,
	}, nil
}

func readField(part *multipart.Part) (string, error) {
	b, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return "", services.ErrTooLarge
		}
		return "", errBadForm
	}
	if len(b) > maxFieldBytes {
		return "", errFieldTooLong
	}
	return string(b), nil
}

func (h *UploadHandler) fail(w http.ResponseWriter, err error) {
	status := uploadStatus(err)
	if status == http.StatusInternalServerError {
		metrics.Uploads.WithLabelValues("error").Inc()
		h.log.With("err", err).Error("failed to store demo video")
	} else {
		metrics.Uploads.WithLabelValues("rejected").Inc()
		h.log.With("err", err, "status", status).Info("rejected demo video")
	}
	response.Error(w, status, err.Error())
}

func uploadStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, services.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, services.ErrNoVideo),
		errors.Is(err, errBadForm),
		errors.Is(err, errFieldTooLong),
		errors.Is(err, errTooManyFields),
		errors.Is(err, errExtraVideo):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
