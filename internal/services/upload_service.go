package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"digicop-backend/internal/models"
	"digicop-backend/internal/storage"
)

const (
	MaxVideoBytes = 50 * 1024 * 1024 // 50 MiB
	PublicPrefix  = "/uploads/"
	defaultExt    = ".mp4"
)

var allowedVideoTypes = map[string]bool{
	"video/mp4":  true,
	"video/webm": true,
	"video/ogg":  true,
}

var (
	ErrNoVideo         = errors.New("No video uploaded")
	ErrUnsupportedType = errors.New("Only mp4/webm/ogg video allowed")
	ErrTooLarge        = errors.New("File too large")
)

type VideoUpload struct {
	OriginalName string
	ContentType  string
	Data         []byte
	Extra        map[string]string
}

type UploadService struct {
	store storage.Store
	now   func() time.Time
}

func NewUploadService(store storage.Store) *UploadService {
	return &UploadService{store: store, now: time.Now}
}

// NormalizeContentType returns the bare media type of a part's Content-Type
// header, or ErrUnsupportedType if it is not one of the accepted video formats.
func NormalizeContentType(header string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return "", ErrUnsupportedType
	}
	if !allowedVideoTypes[mediaType] {
		return "", ErrUnsupportedType
	}
	return mediaType, nil
}

// ReadVideo buffers r, failing with ErrTooLarge as soon as more than
// MaxVideoBytes have been read.
func ReadVideo(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer

	n, err := io.Copy(&buf, io.LimitReader(r, MaxVideoBytes+1))
	if err != nil {
		return nil, err
	}
	if n > MaxVideoBytes {
		return nil, ErrTooLarge
	}
	return buf.Bytes(), nil
}

// ExtensionFor picks the stored file extension: from the MIME type first, then
// the original file name, then the default.
func ExtensionFor(contentType, originalName string) string {
	switch {
	case strings.Contains(contentType, "mp4"):
		return ".mp4"
	case strings.Contains(contentType, "webm"):
		return ".webm"
	case strings.Contains(contentType, "ogg"):
		return ".ogv"
	}
	if ext := filepath.Ext(originalName); ext != "" {
		return ext
	}
	return defaultExt
}

// Store writes the video and then its sidecar. A failure of the second write
// leaves the video in place without metadata.
func (s *UploadService) Store(ctx context.Context, in *VideoUpload) (*models.UploadRecord, error) {
	if len(in.Data) > MaxVideoBytes {
		return nil, ErrTooLarge
	}

	sum := sha256.Sum256(in.Data)
	hash := hex.EncodeToString(sum[:])
	ts := s.now().UnixMilli()
	filename := models.UploadKey(hash, ts) + ExtensionFor(in.ContentType, in.OriginalName)

	extra := in.Extra
	if extra == nil {
		extra = map[string]string{}
	}

	record := &models.UploadRecord{
		Hash:         hash,
		OriginalName: in.OriginalName,
		Filename:     filename,
		MimeType:     in.ContentType,
		Size:         int64(len(in.Data)),
		SavedPath:    PublicPrefix + filename,
		TS:           ts,
		Extra:        extra,
	}

	if err := s.store.WriteVideo(ctx, filename, in.ContentType, in.Data); err != nil {
		return nil, err
	}
	if err := s.store.WriteMetadata(ctx, record); err != nil {
		return nil, err
	}

	return record, nil
}

// ListUploads returns all readable records, newest first.
func (s *UploadService) ListUploads(ctx context.Context) ([]models.UploadRecord, error) {
	records, err := s.store.ListMetadata(ctx)
	sort.Slice(records, func(i, j int) bool {
		return records[i].TS > records[j].TS
	})
	return records, err
}

// FindOrphans lists stored videos that have no sidecar. They are only
// reported; nothing removes them.
func (s *UploadService) FindOrphans(ctx context.Context) ([]string, error) {
	records, metaErr := s.store.ListMetadata(ctx)
	if records == nil && metaErr != nil {
		return nil, metaErr
	}

	known := make(map[string]bool, len(records))
	for i := range records {
		known[records[i].Key()] = true
	}

	videos, err := s.store.ListVideos(ctx)
	if err != nil {
		return nil, err
	}

	orphans := []string{}
	for _, name := range videos {
		hash, ts, ok := models.ParseUploadKey(name)
		if !ok || !known[models.UploadKey(hash, ts)] {
			orphans = append(orphans, name)
		}
	}
	return orphans, metaErr
}

// Verify re-hashes every recorded video and reports missing files and hash
// mismatches together.
func (s *UploadService) Verify(ctx context.Context) (int, error) {
	records, errs := s.store.ListMetadata(ctx)

	checked := 0
	for i := range records {
		if err := ctx.Err(); err != nil {
			return checked, err
		}
		if err := s.verifyOne(ctx, &records[i]); err != nil {
			errs = multierror.Append(errs, err)
		}
		checked++
	}
	return checked, errs
}

func (s *UploadService) verifyOne(ctx context.Context, rec *models.UploadRecord) error {
	r, err := s.store.OpenVideo(ctx, rec.Filename)
	if err != nil {
		return fmt.Errorf("%s: %w", rec.Filename, err)
	}
	defer r.Close()

	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return fmt.Errorf("%s: %w", rec.Filename, err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != rec.Hash {
		return fmt.Errorf("%s: hash mismatch (recorded %s, actual %s)", rec.Filename, rec.Hash, got)
	}
	return nil
}
