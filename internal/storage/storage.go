package storage

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"digicop-backend/internal/models"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalidName = errors.New("invalid file name")
)

// Store persists demo videos and their JSON sidecars. Videos and sidecars
// are written by separate calls; nothing ties the two writes together.
type Store interface {
	WriteVideo(ctx context.Context, filename, contentType string, data []byte) error
	WriteMetadata(ctx context.Context, record *models.UploadRecord) error
	OpenVideo(ctx context.Context, filename string) (io.ReadCloser, error)
	ListVideos(ctx context.Context) ([]string, error)
	ListMetadata(ctx context.Context) ([]models.UploadRecord, error)
	Ping(ctx context.Context) error
}

func MetadataName(record *models.UploadRecord) string {
	return record.Key() + ".json"
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, tmpPrefix) {
		return ErrInvalidName
	}
	return nil
}
