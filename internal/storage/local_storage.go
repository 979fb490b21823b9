package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"digicop-backend/internal/models"
)

const tmpPrefix = ".tmp-"

type LocalStore struct {
	uploadDir string
	metaDir   string
}

func NewLocalStore(uploadDir, metaDir string) (*LocalStore, error) {
	for _, dir := range []string{uploadDir, metaDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return &LocalStore{
		uploadDir: uploadDir,
		metaDir:   metaDir,
	}, nil
}

func (s *LocalStore) UploadDir() string {
	return s.uploadDir
}

func (s *LocalStore) WriteVideo(ctx context.Context, filename, contentType string, data []byte) error {
	if err := checkName(filename); err != nil {
		return err
	}
	if err := writeFileAtomic(s.uploadDir, filename, data); err != nil {
		return fmt.Errorf("failed to write video: %w", err)
	}
	return nil
}

func (s *LocalStore) WriteMetadata(ctx context.Context, record *models.UploadRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.metaDir, MetadataName(record), data); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func (s *LocalStore) OpenVideo(ctx context.Context, filename string) (io.ReadCloser, error) {
	if err := checkName(filename); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.uploadDir, filename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *LocalStore) ListVideos(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.uploadDir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// ListMetadata returns every readable sidecar. Unreadable ones are skipped and
// reported together in the returned error.
func (s *LocalStore) ListMetadata(ctx context.Context) ([]models.UploadRecord, error) {
	entries, err := os.ReadDir(s.metaDir)
	if err != nil {
		return nil, err
	}

	var errs error
	records := make([]models.UploadRecord, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" || strings.HasPrefix(e.Name(), tmpPrefix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.metaDir, e.Name()))
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		var rec models.UploadRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", e.Name(), err))
			continue
		}
		records = append(records, rec)
	}
	return records, errs
}

func (s *LocalStore) Ping(ctx context.Context) error {
	for _, dir := range []string{s.uploadDir, s.metaDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
	}
	return nil
}

// writeFileAtomic makes a single file appear complete or not at all.
func writeFileAtomic(dir, name string, data []byte) error {
	f, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return err
	}
	tmpPath := f.Name()
	defer os.Remove(tmpPath)

	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(0644); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, filepath.Join(dir, name))
}
